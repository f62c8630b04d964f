package store

import (
	"context"

	"github.com/hitoshi/planify/internal/model"
)

func habitID(h model.Habit) string { return h.ID }

func cloneHabits(habits []model.Habit) []model.Habit {
	out := make([]model.Habit, len(habits))
	for i, h := range habits {
		out[i] = h.Clone()
	}
	return out
}

// Habits は習慣一覧のコピーを返す。
func (s *Store) Habits() []model.Habit {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneHabits(s.habits)
}

// Habit はIDに一致する習慣を返す。
func (s *Store) Habit(id string) (model.Habit, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := indexOf(s.habits, id, habitID); i >= 0 {
		return s.habits[i].Clone(), true
	}
	return model.Habit{}, false
}

// AddHabit は習慣を追加して永続化する。色が未指定の場合は既存数から割り当てる。
func (s *Store) AddHabit(ctx context.Context, h model.Habit) (model.Habit, error) {
	h = h.Clone()
	if h.ID == "" {
		h.ID = s.newID()
	}
	h.CompletedDates = model.NormalizeDates(h.CompletedDates)
	h.Streak = model.ComputeStreak(h.CompletedDates, s.now())
	if err := h.Validate(); err != nil {
		return model.Habit{}, err
	}

	userID, gen, err := s.mutate(func() error {
		if indexOf(s.habits, h.ID, habitID) >= 0 {
			return &model.ValidationError{Field: "id", Reason: "duplicate"}
		}
		if h.Color == "" {
			h.Color = model.HabitColorFor(len(s.habits))
		}
		s.habits = append(s.habits, h.Clone())
		return nil
	})
	if err != nil {
		return model.Habit{}, err
	}
	s.record(KindHabit, OpAdd, h.ID)

	return h, persistLatest(s, ctx, KindHabit, OpAdd, h.ID, userID, gen, s.Habit, s.remote.Habits().Insert)
}

// UpdateHabit は部分更新をマージして永続化する。
func (s *Store) UpdateHabit(ctx context.Context, id string, patch model.HabitPatch) (model.Habit, error) {
	return s.updateHabit(ctx, id, OpUpdate, func(h *model.Habit) error {
		patch.Apply(h)
		return nil
	})
}

// ToggleHabitForDate は指定日の完了記録を反転し、今日を終点とする連続日数を再計算する。
func (s *Store) ToggleHabitForDate(ctx context.Context, id, day string) (model.Habit, error) {
	if !model.ValidDate(day) {
		return model.Habit{}, &model.ValidationError{Field: "date", Reason: "not an ISO day: " + day}
	}
	today := s.now()
	return s.updateHabit(ctx, id, OpToggle, func(h *model.Habit) error {
		h.CompletedDates = model.ToggleDate(model.NormalizeDates(h.CompletedDates), day)
		h.Streak = model.ComputeStreak(h.CompletedDates, today)
		return nil
	})
}

func (s *Store) updateHabit(ctx context.Context, id string, op Op, apply func(*model.Habit) error) (model.Habit, error) {
	var updated model.Habit
	userID, gen, err := s.mutate(func() error {
		i := indexOf(s.habits, id, habitID)
		if i < 0 {
			return &model.NotFoundError{Kind: string(KindHabit), ID: id}
		}
		next := s.habits[i].Clone()
		if err := apply(&next); err != nil {
			return err
		}
		if err := next.Validate(); err != nil {
			return err
		}
		s.habits[i] = next
		updated = next.Clone()
		return nil
	})
	if err != nil {
		return model.Habit{}, err
	}
	s.record(KindHabit, op, id)

	return updated, persistLatest(s, ctx, KindHabit, op, id, userID, gen, s.Habit, s.remote.Habits().Update)
}

// DeleteHabit は習慣を削除する。存在しない場合は何もしない。
func (s *Store) DeleteHabit(ctx context.Context, id string) error {
	removed := false
	userID, gen, err := s.mutate(func() error {
		if i := indexOf(s.habits, id, habitID); i >= 0 {
			s.habits = removeAt(s.habits, i)
			removed = true
		}
		return nil
	})
	if err != nil || !removed {
		return err
	}
	s.record(KindHabit, OpDelete, id)

	return s.persist(ctx, KindHabit, OpDelete, id, gen, func(ctx context.Context) error {
		return s.remote.Habits().Delete(ctx, userID, id)
	})
}

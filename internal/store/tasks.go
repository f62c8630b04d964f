package store

import (
	"context"
	"errors"

	"github.com/hitoshi/planify/internal/model"
)

func taskID(t model.Task) string { return t.ID }

func cloneTasks(tasks []model.Task) []model.Task {
	out := make([]model.Task, len(tasks))
	for i, t := range tasks {
		out[i] = t.Clone()
	}
	return out
}

// Tasks はタスク一覧のコピーを返す。
func (s *Store) Tasks() []model.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneTasks(s.tasks)
}

// Task はIDに一致するタスクを返す。
func (s *Store) Task(id string) (model.Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := indexOf(s.tasks, id, taskID); i >= 0 {
		return s.tasks[i].Clone(), true
	}
	return model.Task{}, false
}

// prepareTask は省略された項目を既定値で埋める。
func (s *Store) prepareTask(t *model.Task) {
	if t.ID == "" {
		t.ID = s.newID()
	}
	if t.Priority == "" {
		t.Priority = model.PriorityMedium
	}
	if t.Date == "" {
		t.Date = s.today()
	}
	if t.Tags == nil {
		t.Tags = []string{}
	}
	if t.Subtasks == nil {
		t.Subtasks = []model.Subtask{}
	}
	for i := range t.Subtasks {
		if t.Subtasks[i].ID == "" {
			t.Subtasks[i].ID = s.newID()
		}
	}
}

// AddTask はタスクを追加して永続化する。
func (s *Store) AddTask(ctx context.Context, t model.Task) (model.Task, error) {
	t = t.Clone()
	s.prepareTask(&t)
	if err := t.Validate(); err != nil {
		return model.Task{}, err
	}

	userID, gen, err := s.mutate(func() error {
		if indexOf(s.tasks, t.ID, taskID) >= 0 {
			return &model.ValidationError{Field: "id", Reason: "duplicate"}
		}
		s.tasks = append(s.tasks, t.Clone())
		return nil
	})
	if err != nil {
		return model.Task{}, err
	}
	s.record(KindTask, OpAdd, t.ID)

	return t, persistLatest(s, ctx, KindTask, OpAdd, t.ID, userID, gen, s.Task, s.remote.Tasks().Insert)
}

// UpdateTask は部分更新をマージして永続化する。
func (s *Store) UpdateTask(ctx context.Context, id string, patch model.TaskPatch) (model.Task, error) {
	return s.updateTask(ctx, id, OpUpdate, func(t *model.Task) { patch.Apply(t) })
}

// ToggleTask は完了状態を反転する。
func (s *Store) ToggleTask(ctx context.Context, id string) (model.Task, error) {
	return s.updateTask(ctx, id, OpToggle, func(t *model.Task) { t.Completed = !t.Completed })
}

func (s *Store) updateTask(ctx context.Context, id string, op Op, apply func(*model.Task)) (model.Task, error) {
	var updated model.Task
	userID, gen, err := s.mutate(func() error {
		i := indexOf(s.tasks, id, taskID)
		if i < 0 {
			return &model.NotFoundError{Kind: string(KindTask), ID: id}
		}
		next := s.tasks[i].Clone()
		apply(&next)
		next.ID = id
		if err := next.Validate(); err != nil {
			return err
		}
		s.tasks[i] = next
		updated = next.Clone()
		return nil
	})
	if err != nil {
		return model.Task{}, err
	}
	s.record(KindTask, op, id)

	return updated, persistLatest(s, ctx, KindTask, op, id, userID, gen, s.Task, s.remote.Tasks().Update)
}

// DeleteTask はタスクを削除する。存在しない場合は何もしない。
func (s *Store) DeleteTask(ctx context.Context, id string) error {
	removed := false
	userID, gen, err := s.mutate(func() error {
		if i := indexOf(s.tasks, id, taskID); i >= 0 {
			s.tasks = removeAt(s.tasks, i)
			removed = true
		}
		return nil
	})
	if err != nil || !removed {
		return err
	}
	s.record(KindTask, OpDelete, id)

	return s.persist(ctx, KindTask, OpDelete, id, gen, func(ctx context.Context) error {
		return s.remote.Tasks().Delete(ctx, userID, id)
	})
}

// BulkResult は一括追加の結果。
// Added はローカルに追加されたすべてのタスク、Failed は永続化に失敗したもの。
type BulkResult struct {
	Added  []model.Task
	Failed []*PersistError
}

// AddTasksBulk は複数のタスクを一度にローカルへ追加し、個別に永続化する。
// 一部の永続化に失敗しても残りの永続化は続け、操作全体は失敗にしない。
func (s *Store) AddTasksBulk(ctx context.Context, tasks []model.Task) (BulkResult, error) {
	prepared := make([]model.Task, 0, len(tasks))
	for _, t := range tasks {
		t = t.Clone()
		s.prepareTask(&t)
		if err := t.Validate(); err != nil {
			return BulkResult{}, err
		}
		prepared = append(prepared, t)
	}
	if len(prepared) == 0 {
		return BulkResult{Added: []model.Task{}}, nil
	}

	userID, gen, err := s.mutate(func() error {
		seen := make(map[string]struct{}, len(prepared))
		for _, t := range prepared {
			if _, dup := seen[t.ID]; dup || indexOf(s.tasks, t.ID, taskID) >= 0 {
				return &model.ValidationError{Field: "id", Reason: "duplicate"}
			}
			seen[t.ID] = struct{}{}
		}
		for _, t := range prepared {
			s.tasks = append(s.tasks, t.Clone())
		}
		return nil
	})
	if err != nil {
		return BulkResult{}, err
	}

	result := BulkResult{Added: prepared}
	for _, t := range prepared {
		s.record(KindTask, OpAdd, t.ID)
		err := persistLatest(s, ctx, KindTask, OpAdd, t.ID, userID, gen, s.Task, s.remote.Tasks().Insert)
		var pe *PersistError
		if errors.As(err, &pe) {
			result.Failed = append(result.Failed, pe)
		}
	}
	return result, nil
}

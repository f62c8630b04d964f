package model

import (
	"sort"
	"strings"
	"time"
)

// HabitColors は習慣に順番に割り当てる表示色。
var HabitColors = []string{
	"bg-indigo-500",
	"bg-emerald-500",
	"bg-rose-500",
	"bg-amber-500",
	"bg-sky-500",
	"bg-violet-500",
}

// HabitColorFor は既存の習慣数から次の表示色を選ぶ。
func HabitColorFor(existing int) string {
	return HabitColors[existing%len(HabitColors)]
}

// Habit は日次で記録する習慣を表す。
// CompletedDates は重複のない昇順のISO日付、Streak はそこから導出される。
type Habit struct {
	ID             string   `json:"id"`
	Title          string   `json:"title"`
	Streak         int      `json:"streak"`
	CompletedDates []string `json:"completed_dates"`
	Color          string   `json:"color"`
}

// Validate は習慣の不変条件を検証する。
func (h *Habit) Validate() error {
	if strings.TrimSpace(h.Title) == "" {
		return &ValidationError{Field: "title", Reason: "empty"}
	}
	for _, d := range h.CompletedDates {
		if !ValidDate(d) {
			return &ValidationError{Field: "completed_dates", Reason: "not an ISO day: " + d}
		}
	}
	return nil
}

// Clone はスライスを含めたコピーを返す。
func (h Habit) Clone() Habit {
	c := h
	c.CompletedDates = append([]string(nil), h.CompletedDates...)
	return c
}

// HabitPatch は習慣の部分更新。
type HabitPatch struct {
	Title *string `json:"title,omitempty"`
	Color *string `json:"color,omitempty"`
}

// Apply はパッチを習慣にマージする。
func (p HabitPatch) Apply(h *Habit) {
	if p.Title != nil {
		h.Title = *p.Title
	}
	if p.Color != nil {
		h.Color = *p.Color
	}
}

// NormalizeDates は重複を除いて昇順に並べ替えた日付一覧を返す。
func NormalizeDates(dates []string) []string {
	seen := make(map[string]struct{}, len(dates))
	out := make([]string, 0, len(dates))
	for _, d := range dates {
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// ToggleDate は day が含まれていれば取り除き、なければ追加した一覧を返す。
// 入力は NormalizeDates 済みであること。
func ToggleDate(dates []string, day string) []string {
	i := sort.SearchStrings(dates, day)
	out := make([]string, 0, len(dates)+1)
	if i < len(dates) && dates[i] == day {
		out = append(out, dates[:i]...)
		return append(out, dates[i+1:]...)
	}
	out = append(out, dates[:i]...)
	out = append(out, day)
	return append(out, dates[i:]...)
}

// ComputeStreak は today から遡って連続して完了している日数を返す。
// today が含まれていない場合は0。
func ComputeStreak(completedDates []string, today time.Time) int {
	done := make(map[string]struct{}, len(completedDates))
	for _, d := range completedDates {
		done[d] = struct{}{}
	}

	streak := 0
	day := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, today.Location())
	for {
		if _, ok := done[FormatDate(day)]; !ok {
			return streak
		}
		streak++
		day = day.AddDate(0, 0, -1)
	}
}

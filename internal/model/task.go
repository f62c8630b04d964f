package model

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout は日付（ISO日付文字列）のレイアウト。
const DateLayout = "2006-01-02"

// カレンダーのタイムグリッド範囲（時）。
const (
	CalendarStartHour = 6
	CalendarEndHour   = 22
)

// Priority はタスクの優先度を表す。
type Priority string

// 優先度の定義
const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// ParsePriority は文字列を優先度に変換する。未知の値の場合はfalseを返す。
func ParsePriority(s string) (Priority, bool) {
	switch Priority(strings.ToLower(strings.TrimSpace(s))) {
	case PriorityLow:
		return PriorityLow, true
	case PriorityMedium:
		return PriorityMedium, true
	case PriorityHigh:
		return PriorityHigh, true
	default:
		return "", false
	}
}

// Rank は並び替え用の順位を返す。high が最も小さい。
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityMedium:
		return 1
	default:
		return 2
	}
}

// Subtask はタスク配下のチェック項目。
type Subtask struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Completed bool   `json:"completed"`
}

// Task はユーザーのタスクを表す。
// Date は予定日、TimeBlock はカレンダー上の時間枠（"HH:00"）。
type Task struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Completed bool      `json:"completed"`
	Priority  Priority  `json:"priority"`
	Date      string    `json:"date"`
	Tags      []string  `json:"tags"`
	Subtasks  []Subtask `json:"subtasks"`
	TimeBlock *string   `json:"time_block,omitempty"`
}

// Validate はタスクの不変条件を検証する。
func (t *Task) Validate() error {
	if strings.TrimSpace(t.Title) == "" {
		return &ValidationError{Field: "title", Reason: "empty"}
	}
	if _, ok := ParsePriority(string(t.Priority)); !ok {
		return &ValidationError{Field: "priority", Reason: fmt.Sprintf("unknown value %q", t.Priority)}
	}
	if !ValidDate(t.Date) {
		return &ValidationError{Field: "date", Reason: fmt.Sprintf("not an ISO day: %q", t.Date)}
	}
	if t.TimeBlock != nil && !ValidTimeBlock(*t.TimeBlock) {
		return &ValidationError{Field: "time_block", Reason: fmt.Sprintf("unknown slot %q", *t.TimeBlock)}
	}
	return nil
}

// Clone はスライスを含めたコピーを返す。
func (t Task) Clone() Task {
	c := t
	c.Tags = append([]string(nil), t.Tags...)
	c.Subtasks = append([]Subtask(nil), t.Subtasks...)
	if t.TimeBlock != nil {
		tb := *t.TimeBlock
		c.TimeBlock = &tb
	}
	return c
}

// TaskPatch はタスクの部分更新。nilのフィールドは変更しない。
// ClearTimeBlock が true の場合は時間枠を外す。
type TaskPatch struct {
	Title          *string    `json:"title,omitempty"`
	Completed      *bool      `json:"completed,omitempty"`
	Priority       *Priority  `json:"priority,omitempty"`
	Date           *string    `json:"date,omitempty"`
	Tags           *[]string  `json:"tags,omitempty"`
	Subtasks       *[]Subtask `json:"subtasks,omitempty"`
	TimeBlock      *string    `json:"time_block,omitempty"`
	ClearTimeBlock bool       `json:"clear_time_block,omitempty"`
}

// Apply はパッチをタスクにマージする。
func (p TaskPatch) Apply(t *Task) {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Completed != nil {
		t.Completed = *p.Completed
	}
	if p.Priority != nil {
		t.Priority = *p.Priority
	}
	if p.Date != nil {
		t.Date = *p.Date
	}
	if p.Tags != nil {
		t.Tags = append([]string(nil), (*p.Tags)...)
	}
	if p.Subtasks != nil {
		t.Subtasks = append([]Subtask(nil), (*p.Subtasks)...)
	}
	if p.ClearTimeBlock {
		t.TimeBlock = nil
	} else if p.TimeBlock != nil {
		tb := *p.TimeBlock
		t.TimeBlock = &tb
	}
}

// TimeSlots はカレンダーの時間枠ラベル（06:00〜22:00）を返す。
func TimeSlots() []string {
	slots := make([]string, 0, CalendarEndHour-CalendarStartHour+1)
	for h := CalendarStartHour; h <= CalendarEndHour; h++ {
		slots = append(slots, fmt.Sprintf("%02d:00", h))
	}
	return slots
}

// ValidTimeBlock は時間枠ラベルが有効かどうかを返す。
func ValidTimeBlock(s string) bool {
	for _, slot := range TimeSlots() {
		if slot == s {
			return true
		}
	}
	return false
}

// ValidDate はISO日付文字列かどうかを返す。
func ValidDate(s string) bool {
	_, err := time.Parse(DateLayout, s)
	return err == nil
}

// FormatDate は日付をISO日付文字列に変換する。
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

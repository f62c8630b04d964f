// Package view は各画面が表示するための読み取りモデルを組み立てる。
// 入力はストアのスナップショットと現在時刻のみで、状態は持たない。
package view

import (
	"sort"
	"time"

	"github.com/hitoshi/planify/internal/model"
)

// FocusLimit はダッシュボードに表示する本日の未完了タスクの件数。
const FocusLimit = 3

// ExpiringDays はこの日数以内に期限が来る購読を「まもなく期限切れ」とする。
const ExpiringDays = 3

// 挨拶の時間帯
const (
	GreetingNight   = "night"
	GreetingMorning = "morning"
	GreetingDay     = "day"
	GreetingEvening = "evening"
)

// 購読状態
const (
	SubscriptionUnlimited = "unlimited"
	SubscriptionActive    = "active"
	SubscriptionExpiring  = "expiring"
	SubscriptionExpired   = "expired"
)

// GreetingSlot は時刻（0〜23時）から挨拶の時間帯を返す。
func GreetingSlot(hour int) string {
	switch {
	case hour < 5:
		return GreetingNight
	case hour < 12:
		return GreetingMorning
	case hour < 18:
		return GreetingDay
	default:
		return GreetingEvening
	}
}

// GreetingText は時間帯の挨拶文を返す。
func GreetingText(slot string, lang model.Language) string {
	switch slot {
	case GreetingNight:
		return lang.Pick("Xayrli tun", "Доброй ночи")
	case GreetingMorning:
		return lang.Pick("Xayrli tong", "Доброе утро")
	case GreetingDay:
		return lang.Pick("Xayrli kun", "Добрый день")
	default:
		return lang.Pick("Xayrli kech", "Добрый вечер")
	}
}

// Subscription は購読状態の表示内容。
type Subscription struct {
	Status    string     `json:"status"`
	DaysLeft  int        `json:"days_left"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// SubscriptionStatus はプロフィールの購読期限から状態を判定する。
func SubscriptionStatus(p model.UserProfile, now time.Time) Subscription {
	if p.IsUnlimited() {
		return Subscription{Status: SubscriptionUnlimited}
	}
	s := Subscription{ExpiresAt: p.SubscriptionExpiresAt, DaysLeft: p.DaysLeft(now)}
	switch {
	case p.IsExpired(now):
		s.Status = SubscriptionExpired
	case s.DaysLeft <= ExpiringDays:
		s.Status = SubscriptionExpiring
	default:
		s.Status = SubscriptionActive
	}
	return s
}

// Dashboard はダッシュボード画面の表示内容。
type Dashboard struct {
	Greeting     string       `json:"greeting"`
	GreetingText string       `json:"greeting_text"`
	Today        string       `json:"today"`
	Focus        []model.Task `json:"focus"`
	PendingCount int          `json:"pending_count"`
	TodayCount   int          `json:"today_count"`
	HabitCount   int          `json:"habit_count"`
	Level        int          `json:"level"`
	XP           int          `json:"xp"`
	Subscription Subscription `json:"subscription"`
}

// BuildDashboard はダッシュボードを組み立てる。
func BuildDashboard(tasks []model.Task, habits []model.Habit, profile model.UserProfile, now time.Time, lang model.Language) Dashboard {
	today := model.FormatDate(now)
	slot := GreetingSlot(now.Hour())

	d := Dashboard{
		Greeting:     slot,
		GreetingText: GreetingText(slot, lang),
		Today:        today,
		Focus:        []model.Task{},
		HabitCount:   len(habits),
		Level:        profile.Level,
		XP:           profile.XP,
		Subscription: SubscriptionStatus(profile, now),
	}
	if d.Level == 0 {
		d.Level = 1
	}
	for _, t := range tasks {
		if t.Date != today {
			continue
		}
		d.TodayCount++
		if t.Completed {
			continue
		}
		d.PendingCount++
		if len(d.Focus) < FocusLimit {
			d.Focus = append(d.Focus, t)
		}
	}
	return d
}

// TaskList はタスク一覧画面の表示内容。
type TaskList struct {
	Tasks     []model.Task `json:"tasks"`
	Total     int          `json:"total"`
	Completed int          `json:"completed"`
}

// SortTasks は未完了を先に、同じ完了状態の中では優先度の高い順に並べたコピーを返す。
func SortTasks(tasks []model.Task) []model.Task {
	out := append([]model.Task(nil), tasks...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Completed != out[j].Completed {
			return !out[i].Completed
		}
		return out[i].Priority.Rank() < out[j].Priority.Rank()
	})
	return out
}

// BuildTaskList はタスク一覧を組み立てる。
func BuildTaskList(tasks []model.Task) TaskList {
	l := TaskList{Tasks: SortTasks(tasks), Total: len(tasks)}
	for _, t := range tasks {
		if t.Completed {
			l.Completed++
		}
	}
	if l.Tasks == nil {
		l.Tasks = []model.Task{}
	}
	return l
}

package view

import (
	"math"
	"sort"
	"time"

	"github.com/hitoshi/planify/internal/model"
)

// AnalyticsDays は習慣分析の対象日数。
const AnalyticsDays = 30

// HabitDay は週表示の1マス。
type HabitDay struct {
	Date  string `json:"date"`
	Done  bool   `json:"done"`
	Today bool   `json:"today"`
}

// HabitRow は習慣1件の週表示。
type HabitRow struct {
	model.Habit
	DoneToday bool       `json:"done_today"`
	Days      []HabitDay `json:"days"`
}

// HabitWeek は習慣画面の週表示。
type HabitWeek struct {
	Start  string     `json:"start"`
	End    string     `json:"end"`
	Offset int        `json:"offset"`
	Habits []HabitRow `json:"habits"`
}

// BuildHabitWeek は now の週から offset 週ずらした週表示を組み立てる。
func BuildHabitWeek(habits []model.Habit, now time.Time, offset int) HabitWeek {
	today := model.FormatDate(now)
	dates := WeekDates(now.AddDate(0, 0, offset*7))

	w := HabitWeek{
		Start:  model.FormatDate(dates[0]),
		End:    model.FormatDate(dates[len(dates)-1]),
		Offset: offset,
		Habits: make([]HabitRow, 0, len(habits)),
	}
	for _, h := range habits {
		done := make(map[string]bool, len(h.CompletedDates))
		for _, d := range h.CompletedDates {
			done[d] = true
		}
		row := HabitRow{Habit: h, DoneToday: done[today], Days: make([]HabitDay, 0, len(dates))}
		for _, d := range dates {
			date := model.FormatDate(d)
			row.Days = append(row.Days, HabitDay{Date: date, Done: done[date], Today: date == today})
		}
		w.Habits = append(w.Habits, row)
	}
	return w
}

// HabitRate は習慣1件の達成率。
type HabitRate struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Color string `json:"color"`
	Rate  int    `json:"rate"`
}

// DayCount は1日あたりの完了数。
type DayCount struct {
	Date  string `json:"date"`
	Day   int    `json:"day"`
	Count int    `json:"count"`
}

// Analytics は習慣分析の表示内容。
type Analytics struct {
	Rates      []HabitRate `json:"rates"`
	Last30Days []DayCount  `json:"last_30_days"`
	TotalLogs  int         `json:"total_logs"`
	BestStreak int         `json:"best_streak"`
	HabitCount int         `json:"habit_count"`
}

// SuccessRate は完了日数の30日に対する割合（0〜100）を返す。
func SuccessRate(completions int) int {
	rate := int(math.Round(float64(completions) / AnalyticsDays * 100))
	if rate > 100 {
		return 100
	}
	return rate
}

// BuildAnalytics は習慣分析を組み立てる。達成率は高い順。
func BuildAnalytics(habits []model.Habit, now time.Time) Analytics {
	a := Analytics{
		Rates:      make([]HabitRate, 0, len(habits)),
		Last30Days: make([]DayCount, 0, AnalyticsDays),
		HabitCount: len(habits),
	}

	perDay := make(map[string]int)
	for _, h := range habits {
		a.TotalLogs += len(h.CompletedDates)
		if h.Streak > a.BestStreak {
			a.BestStreak = h.Streak
		}
		a.Rates = append(a.Rates, HabitRate{
			ID:    h.ID,
			Title: h.Title,
			Color: h.Color,
			Rate:  SuccessRate(len(h.CompletedDates)),
		})
		for _, d := range model.NormalizeDates(h.CompletedDates) {
			perDay[d]++
		}
	}
	sort.SliceStable(a.Rates, func(i, j int) bool { return a.Rates[i].Rate > a.Rates[j].Rate })

	for i := AnalyticsDays - 1; i >= 0; i-- {
		d := now.AddDate(0, 0, -i)
		date := model.FormatDate(d)
		a.Last30Days = append(a.Last30Days, DayCount{Date: date, Day: d.Day(), Count: perDay[date]})
	}
	return a
}

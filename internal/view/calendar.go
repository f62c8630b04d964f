package view

import (
	"time"

	"github.com/hitoshi/planify/internal/model"
)

// WeekDay は週表示の1日分。
type WeekDay struct {
	Date      string `json:"date"`
	Day       int    `json:"day"`
	Weekday   string `json:"weekday"`
	Today     bool   `json:"today"`
	Selected  bool   `json:"selected"`
	TaskCount int    `json:"task_count"`
}

// Slot はタイムグリッドの1時間枠。
type Slot struct {
	Label string       `json:"label"`
	Tasks []model.Task `json:"tasks"`
}

// Calendar はカレンダー画面の表示内容。
// NowOffset は現在時刻のグリッド先頭（06:00）からの位置を時間単位で表す。グリッド外の場合はnil。
type Calendar struct {
	Selected    string       `json:"selected"`
	Week        []WeekDay    `json:"week"`
	Slots       []Slot       `json:"slots"`
	Unscheduled []model.Task `json:"unscheduled"`
	NowOffset   *float64     `json:"now_offset,omitempty"`
}

// StartOfWeek は day を含む週の月曜日（0時）を返す。
func StartOfWeek(day time.Time) time.Time {
	d := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	offset := (int(d.Weekday()) + 6) % 7
	return d.AddDate(0, 0, -offset)
}

// WeekDates は day を含む月曜始まりの7日間を返す。
func WeekDates(day time.Time) []time.Time {
	start := StartOfWeek(day)
	dates := make([]time.Time, 7)
	for i := range dates {
		dates[i] = start.AddDate(0, 0, i)
	}
	return dates
}

// NowOffset は now がタイムグリッド（06:00〜22:59）内にあればその位置を返す。
func NowOffset(now time.Time) *float64 {
	h := now.Hour()
	if h < model.CalendarStartHour || h > model.CalendarEndHour {
		return nil
	}
	v := float64(h-model.CalendarStartHour) + float64(now.Minute())/60
	return &v
}

// BuildCalendar は selected の日のカレンダーを組み立てる。
func BuildCalendar(tasks []model.Task, selected, now time.Time) Calendar {
	selectedDate := model.FormatDate(selected)
	today := model.FormatDate(now)

	counts := make(map[string]int)
	for _, t := range tasks {
		counts[t.Date]++
	}

	c := Calendar{
		Selected:    selectedDate,
		Week:        make([]WeekDay, 0, 7),
		Unscheduled: []model.Task{},
	}
	for _, d := range WeekDates(selected) {
		date := model.FormatDate(d)
		c.Week = append(c.Week, WeekDay{
			Date:      date,
			Day:       d.Day(),
			Weekday:   d.Weekday().String()[:2],
			Today:     date == today,
			Selected:  date == selectedDate,
			TaskCount: counts[date],
		})
	}

	bySlot := make(map[string][]model.Task)
	for _, t := range tasks {
		if t.Date != selectedDate {
			continue
		}
		if t.TimeBlock == nil {
			c.Unscheduled = append(c.Unscheduled, t)
			continue
		}
		bySlot[*t.TimeBlock] = append(bySlot[*t.TimeBlock], t)
	}
	for _, label := range model.TimeSlots() {
		slot := Slot{Label: label, Tasks: bySlot[label]}
		if slot.Tasks == nil {
			slot.Tasks = []model.Task{}
		}
		c.Slots = append(c.Slots, slot)
	}

	if selectedDate == today {
		c.NowOffset = NowOffset(now)
	}
	return c
}

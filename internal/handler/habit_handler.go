package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/planify/internal/model"
	"github.com/hitoshi/planify/internal/view"
)

// HabitServiceInterface は習慣ハンドラーが必要とするサービスインターフェース。
type HabitServiceInterface interface {
	Habits() []model.Habit
	AddHabit(ctx context.Context, h model.Habit) (model.Habit, error)
	UpdateHabit(ctx context.Context, id string, patch model.HabitPatch) (model.Habit, error)
	ToggleHabitForDate(ctx context.Context, id, day string) (model.Habit, error)
	DeleteHabit(ctx context.Context, id string) error
	Now() time.Time
}

// HabitHandler は習慣のHTTPハンドラー。
type HabitHandler struct {
	service HabitServiceInterface
}

// NewHabitHandler はHabitHandlerを生成する。
func NewHabitHandler(service HabitServiceInterface) *HabitHandler {
	return &HabitHandler{service: service}
}

// toggleHabitRequest は習慣の記録切り替えのリクエストボディ。
// Date を省略した場合は今日。
type toggleHabitRequest struct {
	Date string `json:"date"`
}

// ListHabits は週表示の習慣一覧を返す。week は今週からの週数（負数で過去）。
// GET /api/habits?week=0
func (h *HabitHandler) ListHabits(w http.ResponseWriter, r *http.Request) {
	offset := 0
	if s := r.URL.Query().Get("week"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError(langOf(r), "week"))
			return
		}
		offset = n
	}

	writeJSON(w, http.StatusOK, view.BuildHabitWeek(h.service.Habits(), h.service.Now(), offset))
}

// Analytics は直近30日の習慣分析を返す。
// GET /api/habits/analytics
func (h *HabitHandler) Analytics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, view.BuildAnalytics(h.service.Habits(), h.service.Now()))
}

// CreateHabit は習慣を追加する。
// POST /api/habits
func (h *HabitHandler) CreateHabit(w http.ResponseWriter, r *http.Request) {
	var req model.Habit
	if !decodeJSON(w, r, &req) {
		return
	}

	habit, err := h.service.AddHabit(r.Context(), req)
	writeMutation(w, r, http.StatusCreated, habit, err)
}

// UpdateHabit は習慣の名前・色を更新する。
// PATCH /api/habits/{id}
func (h *HabitHandler) UpdateHabit(w http.ResponseWriter, r *http.Request) {
	var patch model.HabitPatch
	if !decodeJSON(w, r, &patch) {
		return
	}

	habit, err := h.service.UpdateHabit(r.Context(), chi.URLParam(r, "id"), patch)
	writeMutation(w, r, http.StatusOK, habit, err)
}

// ToggleHabit は指定日の記録を切り替える。
// POST /api/habits/{id}/toggle
func (h *HabitHandler) ToggleHabit(w http.ResponseWriter, r *http.Request) {
	var req toggleHabitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError(langOf(r)))
		return
	}
	if req.Date == "" {
		req.Date = model.FormatDate(h.service.Now())
	}

	habit, err := h.service.ToggleHabitForDate(r.Context(), chi.URLParam(r, "id"), req.Date)
	writeMutation(w, r, http.StatusOK, habit, err)
}

// DeleteHabit は習慣を削除する。?confirm=true が必要。
// DELETE /api/habits/{id}
func (h *HabitHandler) DeleteHabit(w http.ResponseWriter, r *http.Request) {
	if !confirmed(w, r) {
		return
	}

	err := h.service.DeleteHabit(r.Context(), chi.URLParam(r, "id"))
	if err == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeMutation(w, r, http.StatusNoContent, nil, err)
}

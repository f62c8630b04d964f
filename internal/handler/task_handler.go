package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/planify/internal/model"
	"github.com/hitoshi/planify/internal/view"
)

// TaskServiceInterface はタスクハンドラーが必要とするサービスインターフェース。
type TaskServiceInterface interface {
	Tasks() []model.Task
	AddTask(ctx context.Context, t model.Task) (model.Task, error)
	UpdateTask(ctx context.Context, id string, patch model.TaskPatch) (model.Task, error)
	ToggleTask(ctx context.Context, id string) (model.Task, error)
	DeleteTask(ctx context.Context, id string) error
	Now() time.Time
}

// TaskHandler はタスクとカレンダーのHTTPハンドラー。
type TaskHandler struct {
	service TaskServiceInterface
}

// NewTaskHandler はTaskHandlerを生成する。
func NewTaskHandler(service TaskServiceInterface) *TaskHandler {
	return &TaskHandler{service: service}
}

// ListTasks は並び替え済みのタスク一覧を返す。
// GET /api/tasks
func (h *TaskHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, view.BuildTaskList(h.service.Tasks()))
}

// CreateTask はタスクを追加する。優先度・日付を省略した場合は medium・今日になる。
// POST /api/tasks
func (h *TaskHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	var req model.Task
	if !decodeJSON(w, r, &req) {
		return
	}

	task, err := h.service.AddTask(r.Context(), req)
	writeMutation(w, r, http.StatusCreated, task, err)
}

// UpdateTask はタスクを部分更新する。
// PATCH /api/tasks/{id}
func (h *TaskHandler) UpdateTask(w http.ResponseWriter, r *http.Request) {
	var patch model.TaskPatch
	if !decodeJSON(w, r, &patch) {
		return
	}

	task, err := h.service.UpdateTask(r.Context(), chi.URLParam(r, "id"), patch)
	writeMutation(w, r, http.StatusOK, task, err)
}

// ToggleTask はタスクの完了状態を反転する。
// POST /api/tasks/{id}/toggle
func (h *TaskHandler) ToggleTask(w http.ResponseWriter, r *http.Request) {
	task, err := h.service.ToggleTask(r.Context(), chi.URLParam(r, "id"))
	writeMutation(w, r, http.StatusOK, task, err)
}

// DeleteTask はタスクを削除する。?confirm=true が必要。
// DELETE /api/tasks/{id}
func (h *TaskHandler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	if !confirmed(w, r) {
		return
	}

	err := h.service.DeleteTask(r.Context(), chi.URLParam(r, "id"))
	if err == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeMutation(w, r, http.StatusNoContent, nil, err)
}

// Calendar は指定日を含む週とその日の時間枠ごとのタスクを返す。
// date を省略した場合は今日。
// GET /api/calendar?date=YYYY-MM-DD
func (h *TaskHandler) Calendar(w http.ResponseWriter, r *http.Request) {
	now := h.service.Now()
	selected := now
	if s := r.URL.Query().Get("date"); s != "" {
		d, err := time.ParseInLocation(model.DateLayout, s, now.Location())
		if err != nil {
			writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError(langOf(r), "date"))
			return
		}
		selected = d
	}

	writeJSON(w, http.StatusOK, view.BuildCalendar(h.service.Tasks(), selected, now))
}

package handler

import (
	"context"
	"encoding/base64"
	"net/http"
	"strings"
	"time"

	"github.com/hitoshi/planify/internal/middleware"
	"github.com/hitoshi/planify/internal/model"
	"github.com/hitoshi/planify/internal/planner"
	"github.com/hitoshi/planify/internal/store"
)

// maxPlannerBodyBytes は解析リクエストの上限（画像を含む）。
const maxPlannerBodyBytes = 8 << 20

// PlannerServiceInterface はAIプランナーハンドラーが必要とするサービスインターフェース。
type PlannerServiceInterface interface {
	Parse(ctx context.Context, req planner.Request) ([]planner.Draft, error)
	Advice(ctx context.Context, taskCount, habitCount int, lang model.Language) string
	DailyBriefing(ctx context.Context, titles []string, lang model.Language) string
}

// PlanTaskStore は確定したタスク案の保存先。
type PlanTaskStore interface {
	Tasks() []model.Task
	Habits() []model.Habit
	AddTasksBulk(ctx context.Context, tasks []model.Task) (store.BulkResult, error)
	Now() time.Time
}

// PlannerHandler はAIプランナーのHTTPハンドラー。
type PlannerHandler struct {
	service PlannerServiceInterface
	tasks   PlanTaskStore
}

// NewPlannerHandler はPlannerHandlerを生成する。
func NewPlannerHandler(service PlannerServiceInterface, tasks PlanTaskStore) *PlannerHandler {
	return &PlannerHandler{service: service, tasks: tasks}
}

// parseRequest はタスク案生成のリクエストボディ。Image はbase64。
type parseRequest struct {
	Text          string `json:"text"`
	Image         string `json:"image,omitempty"`
	ImageMIMEType string `json:"image_mime_type,omitempty"`
}

// parseResponse はタスク案のAPIレスポンス。
// 何も解釈できなかった場合は Drafts が空で Message に案内を入れる。
type parseResponse struct {
	Drafts  []planner.Draft `json:"drafts"`
	Message string          `json:"message,omitempty"`
}

type confirmRequest struct {
	Drafts []planner.Draft `json:"drafts"`
}

// failedTask は永続化に失敗したタスク。
type failedTask struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}

// confirmResponse はタスク案確定のAPIレスポンス。
type confirmResponse struct {
	Added   []model.Task                  `json:"added"`
	Failed  []failedTask                  `json:"failed,omitempty"`
	Warning *middleware.ErrorResponseBody `json:"warning,omitempty"`
}

type textResponse struct {
	Text string `json:"text"`
}

// Parse は自由記述（と任意の画像）からタスク案を生成する。何も保存しない。
// POST /api/planner/parse
func (h *PlannerHandler) Parse(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxPlannerBodyBytes)
	var req parseRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	lang := langOf(r)
	preq := planner.Request{
		Text:        strings.TrimSpace(req.Text),
		CurrentDate: model.FormatDate(h.tasks.Now()),
		Language:    lang,
	}
	if req.Image != "" {
		data, err := base64.StdEncoding.DecodeString(req.Image)
		if err != nil {
			writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError(lang, "image"))
			return
		}
		mime := req.ImageMIMEType
		if mime == "" {
			mime = http.DetectContentType(data)
		}
		preq.Image = &planner.Image{Data: data, MIMEType: mime}
	}

	drafts, err := h.service.Parse(r.Context(), preq)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	if drafts == nil {
		drafts = []planner.Draft{}
	}
	resp := parseResponse{Drafts: drafts}
	if len(drafts) == 0 && (preq.Text != "" || preq.Image != nil) {
		resp.Message = model.EmptyPlanMessage(lang)
	}
	writeJSON(w, http.StatusOK, resp)
}

// Confirm は確認済みのタスク案を一括で追加する。
// 一部の永続化に失敗した場合は202で失敗分を返す。
// POST /api/planner/confirm
func (h *PlannerHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.tasks.AddTasksBulk(r.Context(), planner.Confirm(req.Drafts))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	resp := confirmResponse{Added: result.Added}
	if len(result.Failed) == 0 {
		writeJSON(w, http.StatusCreated, resp)
		return
	}
	for _, pe := range result.Failed {
		resp.Failed = append(resp.Failed, failedTask{ID: pe.ID, Error: pe.Err.Error()})
	}
	apiErr := persistWarning(langOf(r), result.Failed[0])
	resp.Warning = &middleware.ErrorResponseBody{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	}
	writeJSON(w, http.StatusAccepted, resp)
}

// Advice はタスク数と習慣数に応じた1文の助言を返す。失敗時は空文字。
// GET /api/planner/advice
func (h *PlannerHandler) Advice(w http.ResponseWriter, r *http.Request) {
	text := h.service.Advice(r.Context(), len(h.tasks.Tasks()), len(h.tasks.Habits()), langOf(r))
	writeJSON(w, http.StatusOK, textResponse{Text: text})
}

// Briefing は今日の未完了タスクを要約する。失敗時は空文字。
// GET /api/planner/briefing
func (h *PlannerHandler) Briefing(w http.ResponseWriter, r *http.Request) {
	today := model.FormatDate(h.tasks.Now())
	var titles []string
	for _, t := range h.tasks.Tasks() {
		if t.Date == today && !t.Completed {
			titles = append(titles, t.Title)
		}
	}

	text := h.service.DailyBriefing(r.Context(), titles, langOf(r))
	writeJSON(w, http.StatusOK, textResponse{Text: text})
}

package handler

import (
	"net/http"
	"time"

	"github.com/hitoshi/planify/internal/store"
	"github.com/hitoshi/planify/internal/view"
)

// DashboardServiceInterface はダッシュボードハンドラーが必要とするサービスインターフェース。
type DashboardServiceInterface interface {
	Snapshot() store.Snapshot
	Now() time.Time
}

// DashboardHandler はダッシュボードとデータ全体のHTTPハンドラー。
type DashboardHandler struct {
	service DashboardServiceInterface
}

// NewDashboardHandler はDashboardHandlerを生成する。
func NewDashboardHandler(service DashboardServiceInterface) *DashboardHandler {
	return &DashboardHandler{service: service}
}

// Dashboard は挨拶・今日のフォーカス・レベル・サブスクリプション状態を返す。
// GET /api/dashboard
func (h *DashboardHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	snap := h.service.Snapshot()
	writeJSON(w, http.StatusOK, view.BuildDashboard(snap.Tasks, snap.Habits, snap.Profile, h.service.Now(), langOf(r)))
}

// Snapshot はサインイン中ユーザーの全データを返す。
// GET /api/snapshot
func (h *DashboardHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.Snapshot())
}

// compile-time interface check
var _ StoreService = (*store.Store)(nil)

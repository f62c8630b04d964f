package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/planify/internal/auth"
	"github.com/hitoshi/planify/internal/middleware"
	"github.com/hitoshi/planify/internal/model"
)

// mockHealthChecker はHealthCheckerのモック実装。
type mockHealthChecker struct {
	err error
}

func (m *mockHealthChecker) PingContext(context.Context) error { return m.err }

type testRouter struct {
	handler http.Handler
	auth    *mockAuthService
	store   *mockStore
}

func newTestRouter(t *testing.T, health HealthChecker) *testRouter {
	t.Helper()
	rl := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		GeneralRate:     100,
		GeneralBurst:    100,
		PlannerRate:     1,
		PlannerBurst:    1,
		CleanupInterval: time.Minute,
	})
	t.Cleanup(rl.Stop)

	as := &mockAuthService{}
	ms := &mockStore{}
	deps := &RouterDeps{
		Session:           as,
		CORSAllowedOrigin: "http://localhost:5173",
		RateLimiter:       rl,
		DefaultLanguage:   model.LanguageUz,
		Logger:            slog.New(slog.NewJSONHandler(io.Discard, nil)),
		AuthService:       as,
		Store:             ms,
		Planner:           &mockPlanner{},
		HealthChecker:     health,
		MetricsHandler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, "# metrics\n")
		}),
	}
	return &testRouter{handler: NewRouter(deps), auth: as, store: ms}
}

func (tr *testRouter) signIn() {
	tr.auth.state = auth.StateAuthenticated
	tr.auth.user = &model.User{ID: "user-1", Email: "alice@example.com"}
}

func (tr *testRouter) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	tr.handler.ServeHTTP(w, req)
	return w
}

// withCSRF はダブルサブミット用のCookieとヘッダーを付与する。
func withCSRF(req *http.Request) *http.Request {
	req.AddCookie(&http.Cookie{Name: "planify_csrf", Value: "token-1"})
	req.Header.Set("X-CSRF-Token", "token-1")
	return req
}

func TestRouter_Health(t *testing.T) {
	tr := newTestRouter(t, &mockHealthChecker{})
	if w := tr.do(httptest.NewRequest(http.MethodGet, "/health", nil)); w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}

	tr = newTestRouter(t, &mockHealthChecker{err: errors.New("connection refused")})
	if w := tr.do(httptest.NewRequest(http.MethodGet, "/health", nil)); w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}

	tr = newTestRouter(t, nil)
	if w := tr.do(httptest.NewRequest(http.MethodGet, "/health", nil)); w.Code != http.StatusOK {
		t.Errorf("依存先なしは常に200: %d", w.Code)
	}
}

func TestRouter_Metrics(t *testing.T) {
	tr := newTestRouter(t, nil)
	w := tr.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "# metrics") {
		t.Errorf("status = %d, body = %q", w.Code, w.Body.String())
	}
}

func TestRouter_APIRequiresSession(t *testing.T) {
	tr := newTestRouter(t, nil)

	w := tr.do(httptest.NewRequest(http.MethodGet, "/api/tasks", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
	if body := parseAPIErrorResponse(t, w); body.Code != model.ErrCodeUnauthorized {
		t.Errorf("code = %s", body.Code)
	}

	tr.signIn()
	if w := tr.do(httptest.NewRequest(http.MethodGet, "/api/tasks", nil)); w.Code != http.StatusOK {
		t.Errorf("signed in: status = %d, want 200", w.Code)
	}
}

func TestRouter_RecoveryModeBlocksAPI(t *testing.T) {
	tr := newTestRouter(t, nil)
	tr.auth.state = auth.StatePasswordRecovery
	tr.auth.user = &model.User{ID: "user-1"}

	w := tr.do(httptest.NewRequest(http.MethodGet, "/api/dashboard", nil))
	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", w.Code)
	}
	if body := parseAPIErrorResponse(t, w); body.Code != model.ErrCodeRecoveryRequired {
		t.Errorf("code = %s", body.Code)
	}

	if w := tr.do(httptest.NewRequest(http.MethodGet, "/auth/state", nil)); w.Code != http.StatusOK {
		t.Errorf("認証ルートは再設定中も到達できる: %d", w.Code)
	}
}

func TestRouter_StateChangingRequestsNeedCSRF(t *testing.T) {
	tr := newTestRouter(t, nil)
	tr.signIn()

	w := tr.do(jsonRequest(t, http.MethodPost, "/api/tasks", model.Task{Title: "x"}))
	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", w.Code)
	}

	w = tr.do(withCSRF(jsonRequest(t, http.MethodPost, "/api/tasks", model.Task{Title: "x"})))
	if w.Code != http.StatusCreated {
		t.Errorf("status = %d, want 201", w.Code)
	}

	w = tr.do(jsonRequest(t, http.MethodPost, "/auth/signin", credentialsRequest{Email: "a@b.c", Password: "secret1"}))
	if w.Code != http.StatusForbidden {
		t.Errorf("auth: status = %d, want 403", w.Code)
	}
}

func TestRouter_DeleteConfirmation(t *testing.T) {
	tr := newTestRouter(t, nil)
	tr.signIn()
	var deleted []string
	tr.store.deleteTaskFn = func(_ context.Context, id string) error {
		deleted = append(deleted, id)
		return nil
	}

	if w := tr.do(withCSRF(httptest.NewRequest(http.MethodDelete, "/api/tasks/t1", nil))); w.Code != http.StatusPreconditionRequired {
		t.Errorf("status = %d, want 428", w.Code)
	}
	if w := tr.do(withCSRF(httptest.NewRequest(http.MethodDelete, "/api/tasks/t1?confirm=true", nil))); w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", w.Code)
	}
	if len(deleted) != 1 || deleted[0] != "t1" {
		t.Errorf("deleted = %v", deleted)
	}
}

func TestRouter_PlannerHasStricterLimit(t *testing.T) {
	tr := newTestRouter(t, nil)
	tr.signIn()

	if w := tr.do(httptest.NewRequest(http.MethodGet, "/api/planner/advice", nil)); w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if w := tr.do(httptest.NewRequest(http.MethodGet, "/api/planner/advice", nil)); w.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", w.Code)
	}
	if w := tr.do(httptest.NewRequest(http.MethodGet, "/api/dashboard", nil)); w.Code != http.StatusOK {
		t.Errorf("一般の制限とは独立: %d", w.Code)
	}
}

func TestRouter_LocalizesErrors(t *testing.T) {
	tr := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/tasks?lang=ru", nil)
	w := tr.do(req)
	if body := parseAPIErrorResponse(t, w); body.Message != model.NewUnauthorizedError(model.LanguageRu).Message {
		t.Errorf("message = %q", body.Message)
	}
	if got := w.Header().Get("Content-Language"); got != "ru" {
		t.Errorf("Content-Language = %q", got)
	}
}

func TestRouter_FinanceRoutes(t *testing.T) {
	tr := newTestRouter(t, nil)
	tr.signIn()
	tr.store.transactions = sampleTransactions(3)

	for _, path := range []string{
		"/api/finance/transactions",
		"/api/finance/goals",
		"/api/finance/debts",
		"/api/finance/summary",
		"/api/finance/export.csv",
		"/api/habits",
		"/api/habits/analytics",
		"/api/calendar",
		"/api/snapshot",
	} {
		if w := tr.do(httptest.NewRequest(http.MethodGet, path, nil)); w.Code != http.StatusOK {
			t.Errorf("GET %s: status = %d, want 200", path, w.Code)
		}
	}
}

func TestRouter_UnknownRoute_Returns404(t *testing.T) {
	tr := newTestRouter(t, nil)
	if w := tr.do(httptest.NewRequest(http.MethodGet, "/nonexistent", nil)); w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/planify/internal/model"
)

func newTestLimiter(t *testing.T, generalBurst, plannerBurst int) *RateLimiter {
	t.Helper()
	rl := NewRateLimiter(RateLimiterConfig{
		GeneralRate:     0.5,
		GeneralBurst:    generalBurst,
		PlannerRate:     0.1,
		PlannerBurst:    plannerBurst,
		CleanupInterval: time.Minute,
	})
	t.Cleanup(rl.Stop)
	return rl
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func requestAs(userID string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/tasks", nil)
	if userID != "" {
		req = req.WithContext(ContextWithUserID(req.Context(), userID))
	}
	return req
}

func TestRateLimiter_AllowsWithinBurstThen429(t *testing.T) {
	rl := newTestLimiter(t, 3, 1)
	handler := rl.GeneralMiddleware()(okHandler())

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, requestAs("user-1"))
		if w.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200", i, w.Code)
		}
	}

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, requestAs("user-1"))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}
	if got := w.Header().Get("Retry-After"); got != "2" {
		t.Errorf("Retry-After = %q, want 2", got)
	}
	if body := decodeError(t, w); body.Code != model.ErrCodeRateLimited {
		t.Errorf("code = %s", body.Code)
	}
}

func TestRateLimiter_PerClientIsolation(t *testing.T) {
	rl := newTestLimiter(t, 1, 1)
	handler := rl.GeneralMiddleware()(okHandler())

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, requestAs("user-1"))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, requestAs("user-2"))
	if w.Code != http.StatusOK {
		t.Errorf("別ユーザーは独立して制限される: %d", w.Code)
	}

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, requestAs(""))
	if w.Code != http.StatusOK {
		t.Errorf("未認証は接続元IPで制限される: %d", w.Code)
	}
	if rl.GeneralLimiterCount() != 3 {
		t.Errorf("limiters = %d, want 3", rl.GeneralLimiterCount())
	}
}

func TestRateLimiter_PlannerIndependentOfGeneral(t *testing.T) {
	rl := newTestLimiter(t, 10, 1)
	planner := rl.PlannerMiddleware()(okHandler())
	general := rl.GeneralMiddleware()(okHandler())

	w := httptest.NewRecorder()
	planner.ServeHTTP(w, requestAs("user-1"))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	w = httptest.NewRecorder()
	planner.ServeHTTP(w, requestAs("user-1"))
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("planner: status = %d, want 429", w.Code)
	}
	if got := w.Header().Get("Retry-After"); got != "10" {
		t.Errorf("Retry-After = %q, want 10", got)
	}

	w = httptest.NewRecorder()
	general.ServeHTTP(w, requestAs("user-1"))
	if w.Code != http.StatusOK {
		t.Errorf("general: status = %d, want 200", w.Code)
	}
}

func TestRateLimiter_CleanupRemovesStaleEntries(t *testing.T) {
	rl := newTestLimiter(t, 5, 5)
	rl.GeneralMiddleware()(okHandler()).ServeHTTP(httptest.NewRecorder(), requestAs("user-1"))
	rl.PlannerMiddleware()(okHandler()).ServeHTTP(httptest.NewRecorder(), requestAs("user-1"))

	rl.cleanup(time.Now())
	if rl.GeneralLimiterCount() != 1 {
		t.Errorf("新しいエントリは残る: %d", rl.GeneralLimiterCount())
	}

	rl.cleanup(time.Now().Add(3 * time.Minute))
	if rl.GeneralLimiterCount() != 0 || rl.PlannerLimiterCount() != 0 {
		t.Errorf("general = %d, planner = %d", rl.GeneralLimiterCount(), rl.PlannerLimiterCount())
	}
}

func TestRateLimiterConfigPerMinute(t *testing.T) {
	cfg := RateLimiterConfigPerMinute(120, 6)
	if cfg.GeneralRate != 2 || cfg.GeneralBurst != 120 || cfg.PlannerRate != 0.1 || cfg.PlannerBurst != 6 {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestRateLimiter_StopIsIdempotent(t *testing.T) {
	rl := NewRateLimiter(DefaultRateLimiterConfig())
	rl.Stop()
	rl.Stop()
}

package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/planify/internal/metrics"
	"github.com/hitoshi/planify/internal/middleware"
	"github.com/hitoshi/planify/internal/model"
)

// HealthChecker は /health で疎通を確認する依存先。*sql.DB が実装する。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// StoreService はストアが実装するハンドラー向けインターフェースの合成。
type StoreService interface {
	DashboardServiceInterface
	TaskServiceInterface
	HabitServiceInterface
	FinanceServiceInterface
	PlanTaskStore
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Session           middleware.SessionState
	CORSAllowedOrigin string
	CSRF              middleware.CSRFConfig
	RateLimiter       *middleware.RateLimiter
	DefaultLanguage   model.Language
	Logger            *slog.Logger
	Metrics           metrics.MetricsCollector

	// 認証
	AuthService AuthServiceInterface

	// アプリケーション状態
	Store StoreService

	// AIプランナー
	Planner PlannerServiceInterface

	// 運用
	HealthChecker  HealthChecker
	MetricsHandler http.Handler
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → SecurityHeaders → CORS → Language
//	  /auth/*: RateLimit(General) → CSRF
//	  /api/*:  Session → RateLimit(General) → CSRF（/api/planner/* はさらに RateLimit(Planner)）
//
// /health と /metrics は認証の外に置く。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger, deps.Metrics))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewLanguageMiddleware(deps.DefaultLanguage))

	authHandler := NewAuthHandler(deps.AuthService)
	dashboardHandler := NewDashboardHandler(deps.Store)
	taskHandler := NewTaskHandler(deps.Store)
	habitHandler := NewHabitHandler(deps.Store)
	financeHandler := NewFinanceHandler(deps.Store)
	plannerHandler := NewPlannerHandler(deps.Planner, deps.Store)

	// --- 認証不要のルート ---

	r.Get("/health", healthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	r.Route("/auth", func(r chi.Router) {
		r.Use(deps.RateLimiter.GeneralMiddleware())
		r.Method(http.MethodGet, "/csrf", middleware.NewCSRFTokenHandler(deps.CSRF))

		r.Group(func(r chi.Router) {
			r.Use(middleware.NewCSRFMiddleware(deps.CSRF))
			r.Get("/state", authHandler.State)
			r.Post("/signin", authHandler.SignIn)
			r.Post("/signup", authHandler.SignUp)
			r.Post("/forgot", authHandler.Forgot)
			r.Post("/reset", authHandler.Reset)
			r.Post("/signout", authHandler.SignOut)
			r.Post("/recovery", authHandler.Recovery)
		})
	})

	// --- 認証が必要なルート ---
	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.Session))
		r.Use(deps.RateLimiter.GeneralMiddleware())
		r.Use(middleware.NewCSRFMiddleware(deps.CSRF))

		r.Get("/dashboard", dashboardHandler.Dashboard)
		r.Get("/snapshot", dashboardHandler.Snapshot)
		r.Get("/calendar", taskHandler.Calendar)

		r.Route("/tasks", func(r chi.Router) {
			r.Get("/", taskHandler.ListTasks)
			r.Post("/", taskHandler.CreateTask)
			r.Route("/{id}", func(r chi.Router) {
				r.Patch("/", taskHandler.UpdateTask)
				r.Delete("/", taskHandler.DeleteTask)
				r.Post("/toggle", taskHandler.ToggleTask)
			})
		})

		r.Route("/habits", func(r chi.Router) {
			r.Get("/", habitHandler.ListHabits)
			r.Post("/", habitHandler.CreateHabit)
			r.Get("/analytics", habitHandler.Analytics)
			r.Route("/{id}", func(r chi.Router) {
				r.Patch("/", habitHandler.UpdateHabit)
				r.Delete("/", habitHandler.DeleteHabit)
				r.Post("/toggle", habitHandler.ToggleHabit)
			})
		})

		r.Route("/finance", func(r chi.Router) {
			r.Get("/summary", financeHandler.Summary)
			r.Get("/export.csv", financeHandler.Export)
			r.Post("/quick", financeHandler.QuickExpense)

			r.Route("/transactions", func(r chi.Router) {
				r.Get("/", financeHandler.ListTransactions)
				r.Post("/", financeHandler.CreateTransaction)
				r.Patch("/{id}", financeHandler.UpdateTransaction)
				r.Delete("/{id}", financeHandler.DeleteTransaction)
			})
			r.Route("/goals", func(r chi.Router) {
				r.Get("/", financeHandler.ListGoals)
				r.Post("/", financeHandler.CreateGoal)
				r.Patch("/{id}", financeHandler.UpdateGoal)
				r.Delete("/{id}", financeHandler.DeleteGoal)
				r.Post("/{id}/deposit", financeHandler.Deposit)
			})
			r.Route("/debts", func(r chi.Router) {
				r.Get("/", financeHandler.ListDebts)
				r.Post("/", financeHandler.CreateDebt)
				r.Patch("/{id}", financeHandler.UpdateDebt)
				r.Delete("/{id}", financeHandler.DeleteDebt)
				r.Post("/{id}/pay", financeHandler.PayDebt)
			})
		})

		// AIプランナー（専用レート制限を追加）
		r.Route("/planner", func(r chi.Router) {
			r.Use(deps.RateLimiter.PlannerMiddleware())
			r.Post("/parse", plannerHandler.Parse)
			r.Post("/confirm", plannerHandler.Confirm)
			r.Get("/advice", plannerHandler.Advice)
			r.Get("/briefing", plannerHandler.Briefing)
		})
	})

	return r
}

// healthHandler は疎通確認のハンドラーを返す。checker が nil の場合は常に200。
func healthHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if checker != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
			defer cancel()
			if err := checker.PingContext(ctx); err != nil {
				slog.Error("health check failed", slog.String("error", err.Error()))
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

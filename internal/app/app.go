package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/hitoshi/planify/internal/auth"
	"github.com/hitoshi/planify/internal/config"
	"github.com/hitoshi/planify/internal/database"
	"github.com/hitoshi/planify/internal/handler"
	"github.com/hitoshi/planify/internal/logger"
	"github.com/hitoshi/planify/internal/metrics"
	"github.com/hitoshi/planify/internal/middleware"
	"github.com/hitoshi/planify/internal/planner"
	"github.com/hitoshi/planify/internal/remote"
	"github.com/hitoshi/planify/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, slog.LevelInfo)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定されたレベルでログを再構成する
	logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel))

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// argsにはos.Args[1:]を渡す。サブコマンドが無い場合はserveとして起動する。
func Run(w io.Writer, args []string) error {
	root := NewRootCommand(w)
	root.SetArgs(args)
	return root.Execute()
}

// components はserveモードで組み立てた依存関係。
type components struct {
	router  http.Handler
	auth    *auth.Manager
	store   *store.Store
	limiter *middleware.RateLimiter
	db      *sql.DB
}

// Close は組み立てた依存関係を解放する。
func (c *components) Close() {
	c.limiter.Stop()
	c.auth.Close()
	c.store.Teardown()
	if c.db != nil {
		c.db.Close()
	}
}

// build は設定から全依存関係をワイヤリングする。
// Supabaseの資格情報が無い場合は、認証とデータの両方をNotConfiguredアダプタで動かす。
func build(ctx context.Context, cfg *config.Config) (*components, error) {
	log := slog.Default()

	// 1. メトリクス
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	mc := metrics.NewCollector(reg)

	// 2. リモートアダプタ
	var (
		provider remote.AuthProvider = remote.NotConfigured{}
		ds       remote.DataStore    = remote.NotConfigured{}
		health   handler.HealthChecker
		db       *sql.DB
	)
	if cfg.SupabaseConfigured() {
		gotrue := remote.NewGoTrueAuth(remote.GoTrueConfig{
			BaseURL:    cfg.SupabaseURL,
			AnonKey:    cfg.SupabaseAnonKey,
			HTTPClient: &http.Client{Timeout: cfg.RemoteTimeout},
			Logger:     log,
		})
		provider = gotrue

		switch cfg.DataBackend {
		case config.BackendPostgres:
			var err error
			db, err = database.Open(cfg.DatabaseURL)
			if err != nil {
				return nil, err
			}
			if err := database.Ping(ctx, db, cfg.RemoteTimeout); err != nil {
				db.Close()
				return nil, err
			}
			slog.Info("database connection established")
			ds = remote.NewPostgresStore(db)
			health = db
		default:
			client := remote.NewBearerClient(gotrue.TokenSource(cfg.RemoteTimeout), cfg.SupabaseAnonKey, cfg.RemoteTimeout)
			ds = remote.NewPostgRESTStore(cfg.SupabaseURL, client, log)
		}
	} else {
		slog.Warn("supabase credentials are not set; running without a backend")
	}

	// 3. ストアとセッション
	st := store.New(ds, store.Options{Metrics: mc, Auth: provider})
	manager := auth.NewManager(provider, st, auth.Options{
		BaseURL:     cfg.BaseURL,
		Cache:       auth.NewTokenCache(cfg.SessionDir),
		Metrics:     mc,
		InitTimeout: cfg.RemoteTimeout,
		Logger:      log,
	})
	if resumed, err := manager.Resume(ctx); err != nil {
		slog.Warn("failed to resume session", slog.String("error", err.Error()))
	} else if resumed {
		slog.Info("session resumed", slog.String("state", string(manager.State())))
	}

	// 4. AIプランナー
	parser, err := newParser(ctx, cfg, mc, log)
	if err != nil {
		manager.Close()
		if db != nil {
			db.Close()
		}
		return nil, err
	}

	// 5. ルーター
	limiter := middleware.NewRateLimiter(middleware.RateLimiterConfigPerMinute(cfg.RateLimitGeneral, cfg.RateLimitPlanner))
	deps := &handler.RouterDeps{
		Session:           manager,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		CSRF:              middleware.CSRFConfig{CookieSecure: strings.HasPrefix(cfg.BaseURL, "https://")},
		RateLimiter:       limiter,
		DefaultLanguage:   cfg.DefaultLanguage,
		Logger:            log,
		Metrics:           mc,
		AuthService:       manager,
		Store:             st,
		Planner:           parser,
		HealthChecker:     health,
		MetricsHandler:    metrics.Handler(reg),
	}

	return &components{
		router:  handler.NewRouter(deps),
		auth:    manager,
		store:   st,
		limiter: limiter,
		db:      db,
	}, nil
}

// newParser はGeminiのAPIキーがあればGeminiGeneratorでParserを組み立てる。
// キーが無い場合、タスク案の生成は常にサービス利用不可となる。
func newParser(ctx context.Context, cfg *config.Config, mc metrics.MetricsCollector, log *slog.Logger) (*planner.Parser, error) {
	opts := []planner.Option{
		planner.WithMetrics(mc),
		planner.WithTimeout(cfg.GeminiTimeout),
		planner.WithLogger(log),
	}
	if !cfg.PlannerConfigured() {
		slog.Warn("GEMINI_API_KEY is not set; AI planner is disabled")
		return planner.NewParser(nil, opts...), nil
	}

	gen, err := planner.NewGeminiGenerator(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return planner.NewParser(gen, opts...), nil
}

// runServe はAPIサーバーモードで起動する。
// 全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	c, err := build(context.Background(), cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      c.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.GeminiTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
			slog.String("base_url", cfg.BaseURL),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-stop:
	case err := <-errCh:
		return fmt.Errorf("server listen error: %w", err)
	}
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// steps が0の場合はすべての未適用マイグレーションを適用し、正の場合はその数だけ戻す。
func runMigrate(cfg *config.Config, steps int) error {
	if cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required for migrate")
	}

	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
		slog.Int("down", steps),
	)

	if steps > 0 {
		if err := database.RollbackMigrations(cfg.DatabaseURL, steps); err != nil {
			return fmt.Errorf("migration rollback failed: %w", err)
		}
		slog.Info("database migrations rolled back successfully")
		return nil
	}

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}

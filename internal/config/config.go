// Package config は起動時設定の読み込みを提供する。
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hitoshi/planify/internal/model"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// データバックエンドの種別
const (
	BackendPostgREST = "postgrest"
	BackendPostgres  = "postgres"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数（および任意の設定ファイル）から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Supabase
	SupabaseURL     string
	SupabaseAnonKey string

	// Data
	DataBackend   string
	DatabaseURL   string
	RemoteTimeout time.Duration

	// Gemini
	GeminiAPIKey  string
	GeminiModel   string
	GeminiTimeout time.Duration

	// Rate Limit（req/min）
	RateLimitGeneral int
	RateLimitPlanner int

	// Session
	SessionDir string

	// Server
	ServerPort string
	BaseURL    string

	// CORS
	CORSAllowedOrigin string

	// UI
	DefaultLanguage model.Language

	// Logging
	LogLevel string
}

// SupabaseConfigured は認証プロバイダーの資格情報が揃っているかどうかを返す。
func (c *Config) SupabaseConfigured() bool {
	return c.SupabaseURL != "" && c.SupabaseAnonKey != ""
}

// PlannerConfigured はGeminiのAPIキーが設定されているかどうかを返す。
func (c *Config) PlannerConfigured() bool {
	return c.GeminiAPIKey != ""
}

// Load は環境変数と設定ファイルからConfigを読み込む。
// 設定ファイルは PLANIFY_CONFIG_PATH、カレントディレクトリ、~/.planify の順で探す。
// 片方だけ設定された資格情報や、バックエンドに必要な値が欠けている場合はエラーを返す。
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.SupabaseURL = strings.TrimRight(v.GetString("SUPABASE_URL"), "/")
	cfg.SupabaseAnonKey = v.GetString("SUPABASE_ANON_KEY")
	if cfg.SupabaseURL != "" && cfg.SupabaseAnonKey == "" {
		missing = append(missing, "SUPABASE_ANON_KEY")
	}
	if cfg.SupabaseAnonKey != "" && cfg.SupabaseURL == "" {
		missing = append(missing, "SUPABASE_URL")
	}

	cfg.DataBackend = strings.ToLower(v.GetString("DATA_BACKEND"))
	cfg.DatabaseURL = v.GetString("DATABASE_URL")
	switch cfg.DataBackend {
	case BackendPostgREST:
	case BackendPostgres:
		if cfg.DatabaseURL == "" {
			missing = append(missing, "DATABASE_URL")
		}
	default:
		return nil, fmt.Errorf("unsupported DATA_BACKEND: %q", cfg.DataBackend)
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.RemoteTimeout = getDuration(v, "REMOTE_TIMEOUT", 15*time.Second)
	cfg.GeminiAPIKey = v.GetString("GEMINI_API_KEY")
	cfg.GeminiModel = v.GetString("GEMINI_MODEL")
	cfg.GeminiTimeout = getDuration(v, "GEMINI_TIMEOUT", 30*time.Second)
	cfg.RateLimitGeneral = getInt(v, "RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitPlanner = getInt(v, "RATE_LIMIT_PLANNER", 10)
	cfg.ServerPort = v.GetString("SERVER_PORT")
	cfg.BaseURL = strings.TrimRight(v.GetString("BASE_URL"), "/")
	cfg.CORSAllowedOrigin = v.GetString("CORS_ALLOWED_ORIGIN")
	cfg.DefaultLanguage = model.ParseLanguage(v.GetString("DEFAULT_LANGUAGE"), model.LanguageUz)
	cfg.LogLevel = v.GetString("LOG_LEVEL")

	sessionDir, err := homedir.Expand(v.GetString("SESSION_DIR"))
	if err != nil {
		return nil, fmt.Errorf("failed to expand SESSION_DIR: %w", err)
	}
	cfg.SessionDir = sessionDir

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("DATA_BACKEND", BackendPostgREST)
	v.SetDefault("GEMINI_MODEL", "gemini-3-flash-preview")
	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("BASE_URL", "http://localhost:8080")
	v.SetDefault("CORS_ALLOWED_ORIGIN", "http://localhost:3000")
	v.SetDefault("SESSION_DIR", "~/.planify/session")
	v.SetDefault("DEFAULT_LANGUAGE", string(model.LanguageUz))
	v.SetDefault("LOG_LEVEL", "info")
}

// readConfigFile は設定ファイルを読み込む。見つからない場合は環境変数のみで続行する。
func readConfigFile(v *viper.Viper) error {
	if path := os.Getenv("PLANIFY_CONFIG_PATH"); path != "" {
		expanded, err := homedir.Expand(path)
		if err != nil {
			return fmt.Errorf("failed to expand PLANIFY_CONFIG_PATH: %w", err)
		}
		v.SetConfigFile(expanded)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config file %s: %w", expanded, err)
		}
		return nil
	}

	v.SetConfigName("planify")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if home, err := homedir.Dir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".planify"))
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

func getInt(v *viper.Viper, key string, defaultVal int) int {
	if !v.IsSet(key) {
		return defaultVal
	}
	i := v.GetInt(key)
	if i <= 0 {
		return defaultVal
	}
	return i
}

func getDuration(v *viper.Viper, key string, defaultVal time.Duration) time.Duration {
	if !v.IsSet(key) {
		return defaultVal
	}
	d := v.GetDuration(key)
	if d <= 0 {
		return defaultVal
	}
	return d
}

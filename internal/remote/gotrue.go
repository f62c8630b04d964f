package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hitoshi/planify/internal/model"
)

// GoTrueConfig はGoTrue（Supabase Auth）クライアントの設定。
type GoTrueConfig struct {
	// BaseURL はプロジェクトURL（例: https://xxxx.supabase.co）。
	BaseURL string
	// AnonKey は公開APIキー。すべてのリクエストに apikey ヘッダーとして付与する。
	AnonKey    string
	HTTPClient *http.Client
	Logger     *slog.Logger
	// Now はトークン期限の判定に使う時計。nilの場合は time.Now。
	Now func() time.Time
}

// GoTrueAuth はGoTrue REST APIによる認証プロバイダー。
// 確立したセッションをメモリ上に保持し、認証イベントを購読者へ通知する。
type GoTrueAuth struct {
	endpoint   string // テスト用にエンドポイントを差し替え可能
	httpClient *http.Client
	logger     *slog.Logger
	now        func() time.Time

	events eventHub

	// refreshMu はトークン更新を1つに絞る。
	refreshMu sync.Mutex
	// transitionMu はセッションの差し替えとイベント通知の組を、サインアウトと直列化する。
	transitionMu sync.Mutex

	mu         sync.RWMutex
	session    *model.AuthSession
	generation uint64 // セッションを置き換えるたびに増える
}

// NewGoTrueAuth はGoTrueAuthを生成する。
func NewGoTrueAuth(cfg GoTrueConfig) *GoTrueAuth {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	httpClient = withAPIKey(httpClient, cfg.AnonKey)

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &GoTrueAuth{
		endpoint:   strings.TrimRight(cfg.BaseURL, "/") + "/auth/v1",
		httpClient: httpClient,
		logger:     logger,
		now:        now,
	}
}

// gotrueUser はGoTrueのユーザー表現。
type gotrueUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// gotrueSession はトークンエンドポイントのレスポンス。
type gotrueSession struct {
	AccessToken  string      `json:"access_token"`
	TokenType    string      `json:"token_type"`
	ExpiresIn    int64       `json:"expires_in"`
	ExpiresAt    int64       `json:"expires_at"`
	RefreshToken string      `json:"refresh_token"`
	User         *gotrueUser `json:"user"`
}

// gotrueError はGoTrueのエラーレスポンス。バージョンによりフィールド名が異なる。
type gotrueError struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
}

func (e gotrueError) text() string {
	for _, s := range []string{e.ErrorDescription, e.Msg, e.Message, e.Error} {
		if s != "" {
			return s
		}
	}
	return ""
}

// SignIn はパスワードグラントでサインインする。
func (a *GoTrueAuth) SignIn(ctx context.Context, email, password string) (*model.AuthSession, error) {
	var resp gotrueSession
	err := a.do(ctx, http.MethodPost, "/token", url.Values{"grant_type": {"password"}}, "",
		map[string]string{"email": email, "password": password}, &resp)
	if err != nil {
		return nil, err
	}
	session, err := a.toSession(resp)
	if err != nil {
		return nil, err
	}

	a.setSession(session)
	a.logger.Info("サインインしました", slog.String("user_id", session.User.ID))
	a.events.emit(model.SignedIn{Session: *session})
	return session, nil
}

// SignUp はアカウントを作成する。
// 自動確認が有効なプロジェクトではセッションが返るため、その場合はサインイン済みとして通知する。
func (a *GoTrueAuth) SignUp(ctx context.Context, email, password, redirectTo string) error {
	q := url.Values{}
	if redirectTo != "" {
		q.Set("redirect_to", redirectTo)
	}

	var resp gotrueSession
	err := a.do(ctx, http.MethodPost, "/signup", q, "",
		map[string]string{"email": email, "password": password}, &resp)
	if err != nil {
		return err
	}

	if resp.AccessToken != "" {
		session, err := a.toSession(resp)
		if err != nil {
			return err
		}
		a.setSession(session)
		a.events.emit(model.SignedIn{Session: *session})
	}
	return nil
}

// RequestPasswordReset は再設定メールの送信を依頼する。
func (a *GoTrueAuth) RequestPasswordReset(ctx context.Context, email, redirectTo string) error {
	q := url.Values{}
	if redirectTo != "" {
		q.Set("redirect_to", redirectTo)
	}
	return a.do(ctx, http.MethodPost, "/recover", q, "", map[string]string{"email": email}, nil)
}

// UpdatePassword は現在のセッションのパスワードを変更し、UserUpdated を通知する。
func (a *GoTrueAuth) UpdatePassword(ctx context.Context, newPassword string) (*model.User, error) {
	session := a.CurrentSession()
	if session == nil {
		return nil, authErr("no active session", nil)
	}

	var resp gotrueUser
	if err := a.do(ctx, http.MethodPut, "/user", nil, session.AccessToken,
		map[string]string{"password": newPassword}, &resp); err != nil {
		return nil, err
	}

	user := model.User{ID: resp.ID, Email: resp.Email}
	if user.ID == "" {
		user = session.User
	}
	a.mu.Lock()
	if a.session != nil {
		a.session.User = user
	}
	a.mu.Unlock()

	a.events.emit(model.UserUpdated{User: user})
	return &user, nil
}

// SignOut はローカルのセッションを破棄して SignedOut を通知する。
// サーバー側のログアウトに失敗してもローカルの状態は破棄する。
func (a *GoTrueAuth) SignOut(ctx context.Context) error {
	a.transitionMu.Lock()
	a.mu.Lock()
	session := a.session
	a.session = nil
	a.generation++
	a.mu.Unlock()
	a.transitionMu.Unlock()

	var err error
	if session != nil {
		err = a.do(ctx, http.MethodPost, "/logout", nil, session.AccessToken, nil, nil)
		if err != nil {
			a.logger.Warn("サーバー側のログアウトに失敗しました", slog.String("error", err.Error()))
		}
	}

	a.events.emit(model.SignedOut{})
	return err
}

// RecoverFromFragment はリダイレクトURLのフラグメント
// （access_token=...&refresh_token=...&type=recovery）からセッションを確立する。
// type=recovery の場合は PasswordRecovery、それ以外は SignedIn を通知する。
func (a *GoTrueAuth) RecoverFromFragment(ctx context.Context, fragment string) (*model.AuthSession, error) {
	values, err := url.ParseQuery(strings.TrimPrefix(fragment, "#"))
	if err != nil {
		return nil, authErr("invalid redirect fragment", err)
	}
	if desc := values.Get("error_description"); desc != "" {
		return nil, authErr(desc, nil)
	}

	access := values.Get("access_token")
	if access == "" {
		return nil, authErr("redirect fragment has no access token", nil)
	}

	var user gotrueUser
	if err := a.do(ctx, http.MethodGet, "/user", nil, access, nil, &user); err != nil {
		return nil, err
	}

	expiresIn, _ := strconv.ParseInt(values.Get("expires_in"), 10, 64)
	expiresAt, _ := strconv.ParseInt(values.Get("expires_at"), 10, 64)
	session, err := a.toSession(gotrueSession{
		AccessToken:  access,
		RefreshToken: values.Get("refresh_token"),
		ExpiresIn:    expiresIn,
		ExpiresAt:    expiresAt,
		User:         &user,
	})
	if err != nil {
		return nil, err
	}

	a.setSession(session)
	if values.Get("type") == "recovery" {
		a.logger.Info("パスワード再設定セッションを検出しました", slog.String("user_id", session.User.ID))
		a.events.emit(model.PasswordRecovery{Session: *session})
	} else {
		a.events.emit(model.SignedIn{Session: *session})
	}
	return session, nil
}

// Resume はリフレッシュトークンを交換してセッションを再開する。
func (a *GoTrueAuth) Resume(ctx context.Context, refreshToken string) (*model.AuthSession, error) {
	session, err := a.refresh(ctx, refreshToken)
	if err != nil {
		return nil, err
	}
	a.setSession(session)
	a.events.emit(model.SignedIn{Session: *session})
	return session, nil
}

// CurrentSession は現在のセッションのコピーを返す。
func (a *GoTrueAuth) CurrentSession() *model.AuthSession {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.session == nil {
		return nil
	}
	s := *a.session
	return &s
}

// OnAuthEvent は認証イベントの購読を登録する。
func (a *GoTrueAuth) OnAuthEvent(fn func(model.AuthEvent)) func() {
	return a.events.subscribe(fn)
}

func (a *GoTrueAuth) refresh(ctx context.Context, refreshToken string) (*model.AuthSession, error) {
	if refreshToken == "" {
		return nil, authErr("no refresh token", nil)
	}
	var resp gotrueSession
	err := a.do(ctx, http.MethodPost, "/token", url.Values{"grant_type": {"refresh_token"}}, "",
		map[string]string{"refresh_token": refreshToken}, &resp)
	if err != nil {
		return nil, err
	}
	return a.toSession(resp)
}

func (a *GoTrueAuth) setSession(s *model.AuthSession) {
	a.mu.Lock()
	c := *s
	a.session = &c
	a.generation++
	a.mu.Unlock()
}

// currentWithGeneration は現在のセッションのコピーと世代を返す。
func (a *GoTrueAuth) currentWithGeneration() (*model.AuthSession, uint64) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.session == nil {
		return nil, a.generation
	}
	s := *a.session
	return &s, a.generation
}

// swapSession はセッションが gen の時点から変わっていない場合に限り s に置き換える。
func (a *GoTrueAuth) swapSession(gen uint64, s *model.AuthSession) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.session == nil || a.generation != gen {
		return false
	}
	c := *s
	a.session = &c
	a.generation++
	return true
}

func (a *GoTrueAuth) toSession(resp gotrueSession) (*model.AuthSession, error) {
	if resp.AccessToken == "" {
		return nil, authErr("empty access token in response", nil)
	}
	if resp.User == nil || resp.User.ID == "" {
		return nil, authErr("empty user in response", nil)
	}

	var expiresAt time.Time
	switch {
	case resp.ExpiresAt > 0:
		expiresAt = time.Unix(resp.ExpiresAt, 0)
	case resp.ExpiresIn > 0:
		expiresAt = a.now().Add(time.Duration(resp.ExpiresIn) * time.Second)
	}

	return &model.AuthSession{
		User:         model.User{ID: resp.User.ID, Email: resp.User.Email},
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		ExpiresAt:    expiresAt,
	}, nil
}

// do はGoTrueにJSONリクエストを送信し、成功時に out へデコードする。
// bearer が空でない場合は Authorization ヘッダーを付与する。
func (a *GoTrueAuth) do(ctx context.Context, method, path string, query url.Values, bearer string, in, out any) error {
	reqURL := a.endpoint + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return authErr("failed to encode request", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return authErr("failed to create request", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		a.logger.Error("認証サービスの呼び出しに失敗しました",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return authErr("auth service unreachable", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return authErr("failed to read response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var e gotrueError
		_ = json.Unmarshal(respBody, &e)
		msg := e.text()
		if msg == "" {
			msg = fmt.Sprintf("auth service returned status %d", resp.StatusCode)
		}
		a.logger.Warn("認証サービスがエラーを返しました",
			slog.String("path", path),
			slog.Int("http_status", resp.StatusCode),
		)
		return authErr(msg, nil)
	}

	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return authErr("failed to parse response", err)
	}
	return nil
}

// compile-time interface check
var _ AuthProvider = (*GoTrueAuth)(nil)

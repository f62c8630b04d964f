package remote

import (
	"context"
	"net/http"
	"time"

	"github.com/hitoshi/planify/internal/model"
	"golang.org/x/oauth2"
)

// refreshLeeway は期限切れ前にトークンを更新する余裕。
const refreshLeeway = 30 * time.Second

// apiKeyTransport はすべてのリクエストに apikey ヘッダーを付与する。
type apiKeyTransport struct {
	key  string
	base http.RoundTripper
}

func (t *apiKeyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	if t.key != "" {
		r.Header.Set("apikey", t.key)
	}
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(r)
}

// withAPIKey は apikey ヘッダーを付与するクライアントを返す。
func withAPIKey(c *http.Client, key string) *http.Client {
	wrapped := *c
	wrapped.Transport = &apiKeyTransport{key: key, base: c.Transport}
	return &wrapped
}

// sessionTokenSource はGoTrueのセッションを oauth2.Token として払い出す。
// 期限が近い場合はリフレッシュトークンで更新する。
type sessionTokenSource struct {
	auth    *GoTrueAuth
	timeout time.Duration
}

// TokenSource は現在のセッションに追従する oauth2.TokenSource を返す。
// サインインし直した場合も新しいセッションのトークンを返す。
func (a *GoTrueAuth) TokenSource(timeout time.Duration) oauth2.TokenSource {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &sessionTokenSource{auth: a, timeout: timeout}
}

// Token は有効なアクセストークンを返す。
// 更新は同時に1つだけ行い、待っていた呼び出しは更新後のセッションを使う。
// 更新中にサインアウトやサインインし直しがあった場合、更新結果は破棄する。
func (s *sessionTokenSource) Token() (*oauth2.Token, error) {
	a := s.auth
	a.refreshMu.Lock()
	session, gen := a.currentWithGeneration()
	if session == nil {
		a.refreshMu.Unlock()
		return nil, authErr("no active session", nil)
	}
	if session.ExpiresAt.IsZero() || a.now().Add(refreshLeeway).Before(session.ExpiresAt) {
		a.refreshMu.Unlock()
		return toOAuth2Token(session), nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	refreshed, err := a.refresh(ctx, session.RefreshToken)
	if err != nil {
		a.refreshMu.Unlock()
		return nil, err
	}

	a.transitionMu.Lock()
	defer a.transitionMu.Unlock()
	swapped := a.swapSession(gen, refreshed)
	a.refreshMu.Unlock()
	if !swapped {
		a.logger.Info("終了したセッションのトークン更新結果を破棄しました")
		return nil, authErr("session ended during token refresh", nil)
	}
	// 更新後のリフレッシュトークンを永続化できるよう通知する
	a.events.emit(model.SignedIn{Session: *refreshed})
	return toOAuth2Token(refreshed), nil
}

func toOAuth2Token(session *model.AuthSession) *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  session.AccessToken,
		TokenType:    "Bearer",
		RefreshToken: session.RefreshToken,
		Expiry:       session.ExpiresAt,
	}
}

// NewBearerClient はセッションのアクセストークンと apikey を付与するHTTPクライアントを返す。
func NewBearerClient(ts oauth2.TokenSource, anonKey string, timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &oauth2.Transport{
			Source: ts,
			Base:   &apiKeyTransport{key: anonKey, base: http.DefaultTransport},
		},
	}
}

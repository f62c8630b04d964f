package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/planify/internal/auth"
	"github.com/hitoshi/planify/internal/middleware"
	"github.com/hitoshi/planify/internal/model"
)

// --- モック定義 ---

// mockAuthService はAuthServiceInterfaceのモック実装。
type mockAuthService struct {
	signInFn         func(ctx context.Context, email, password string) error
	signUpFn         func(ctx context.Context, email, password string) error
	resetFn          func(ctx context.Context, email string) error
	updatePasswordFn func(ctx context.Context, newPassword string) error
	signOutFn        func(ctx context.Context) error
	handleFragmentFn func(ctx context.Context, fragment string) (bool, error)

	state auth.State
	user  *model.User
}

func (m *mockAuthService) SignIn(ctx context.Context, email, password string) error {
	if m.signInFn != nil {
		return m.signInFn(ctx, email, password)
	}
	return nil
}

func (m *mockAuthService) SignUp(ctx context.Context, email, password string) error {
	if m.signUpFn != nil {
		return m.signUpFn(ctx, email, password)
	}
	return nil
}

func (m *mockAuthService) RequestPasswordReset(ctx context.Context, email string) error {
	if m.resetFn != nil {
		return m.resetFn(ctx, email)
	}
	return nil
}

func (m *mockAuthService) UpdatePassword(ctx context.Context, newPassword string) error {
	if m.updatePasswordFn != nil {
		return m.updatePasswordFn(ctx, newPassword)
	}
	return nil
}

func (m *mockAuthService) SignOut(ctx context.Context) error {
	if m.signOutFn != nil {
		return m.signOutFn(ctx)
	}
	return nil
}

func (m *mockAuthService) HandleFragment(ctx context.Context, fragment string) (bool, error) {
	if m.handleFragmentFn != nil {
		return m.handleFragmentFn(ctx, fragment)
	}
	return false, nil
}

func (m *mockAuthService) State() auth.State {
	if m.state == "" {
		return auth.StateUnauthenticated
	}
	return m.state
}

func (m *mockAuthService) User() *model.User { return m.user }

func (m *mockAuthService) View() string {
	switch m.State() {
	case auth.StateAuthenticated:
		return auth.ViewApp
	case auth.StatePasswordRecovery:
		return auth.ViewReset
	default:
		return auth.ViewAuth
	}
}

// --- テストヘルパー ---

// jsonRequest はJSONボディ付きのリクエストを生成する。
func jsonRequest(t *testing.T, method, target string, body any) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// withLanguage はテスト用にリクエストコンテキストへ表示言語を注入するヘルパー。
func withLanguage(r *http.Request, lang model.Language) *http.Request {
	return r.WithContext(middleware.ContextWithLanguage(r.Context(), lang))
}

// withChiURLParam はテスト用にchiのURLパラメータを注入するヘルパー。
func withChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	ctx := context.WithValue(r.Context(), chi.RouteCtxKey, rctx)
	return r.WithContext(ctx)
}

// parseAPIErrorResponse はレスポンスボディからAPIErrorレスポンスをパースするヘルパー。
func parseAPIErrorResponse(t *testing.T, w *httptest.ResponseRecorder) middleware.ErrorResponseBody {
	t.Helper()
	var result middleware.ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return result
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("failed to decode response: %v\nraw: %s", err, w.Body.String())
	}
	return v
}

// --- テスト ---

func TestAuthHandler_SignIn_Success_ReturnsState(t *testing.T) {
	svc := &mockAuthService{}
	svc.signInFn = func(ctx context.Context, email, password string) error {
		if email != "alice@example.com" || password != "secret1" {
			t.Errorf("SignIn(%q, %q)", email, password)
		}
		svc.state = auth.StateAuthenticated
		svc.user = &model.User{ID: "user-1", Email: email}
		return nil
	}
	h := NewAuthHandler(svc)

	w := httptest.NewRecorder()
	h.SignIn(w, jsonRequest(t, http.MethodPost, "/auth/signin", credentialsRequest{Email: "alice@example.com", Password: "secret1"}))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	resp := decodeBody[stateResponse](t, w)
	if resp.State != auth.StateAuthenticated || resp.View != auth.ViewApp || resp.User == nil || resp.User.ID != "user-1" {
		t.Errorf("resp = %+v", resp)
	}
}

func TestAuthHandler_SignIn_MissingFields_ReturnsBadRequest(t *testing.T) {
	called := false
	h := NewAuthHandler(&mockAuthService{signInFn: func(context.Context, string, string) error {
		called = true
		return nil
	}})

	w := httptest.NewRecorder()
	h.SignIn(w, jsonRequest(t, http.MethodPost, "/auth/signin", credentialsRequest{Email: "alice@example.com"}))

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
	if called {
		t.Error("入力不足の場合はサービスを呼ばない")
	}
}

func TestAuthHandler_SignIn_InvalidJSON_ReturnsBadRequest(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{})

	w := httptest.NewRecorder()
	h.SignIn(w, httptest.NewRequest(http.MethodPost, "/auth/signin", bytes.NewBufferString("{")))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if body := parseAPIErrorResponse(t, w); body.Code != model.ErrCodeInvalidRequest {
		t.Errorf("code = %s", body.Code)
	}
}

func TestAuthHandler_SignIn_Errors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantErr  string
	}{
		{"認証失敗", &model.AuthError{Message: "Invalid login credentials"}, http.StatusUnauthorized, model.ErrCodeAuthFailed},
		{"未設定", model.ErrNotConfigured, http.StatusServiceUnavailable, model.ErrCodeNotConfigured},
		{"サインイン中", auth.ErrSignInInProgress, http.StatusConflict, model.ErrCodeAuthFailed},
		{"通信失敗", &model.RemoteError{Message: "timeout"}, http.StatusBadGateway, model.ErrCodeRemoteFailed},
		{"その他", errors.New("boom"), http.StatusInternalServerError, model.ErrCodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewAuthHandler(&mockAuthService{signInFn: func(context.Context, string, string) error { return tt.err }})

			w := httptest.NewRecorder()
			h.SignIn(w, jsonRequest(t, http.MethodPost, "/auth/signin", credentialsRequest{Email: "a@b.c", Password: "secret1"}))

			if w.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantCode)
			}
			if body := parseAPIErrorResponse(t, w); body.Code != tt.wantErr {
				t.Errorf("code = %s, want %s", body.Code, tt.wantErr)
			}
		})
	}
}

func TestAuthHandler_SignIn_AuthErrorMessageIsShown(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{signInFn: func(context.Context, string, string) error {
		return &model.AuthError{Message: "Email not confirmed"}
	}})

	w := httptest.NewRecorder()
	h.SignIn(w, jsonRequest(t, http.MethodPost, "/auth/signin", credentialsRequest{Email: "a@b.c", Password: "secret1"}))

	if body := parseAPIErrorResponse(t, w); !bytes.Contains([]byte(body.Message), []byte("Email not confirmed")) {
		t.Errorf("プロバイダーのメッセージをそのまま表示するべき: %q", body.Message)
	}
}

func TestAuthHandler_SignUp(t *testing.T) {
	t.Run("成功は201", func(t *testing.T) {
		h := NewAuthHandler(&mockAuthService{})
		w := httptest.NewRecorder()
		h.SignUp(w, withLanguage(jsonRequest(t, http.MethodPost, "/auth/signup", credentialsRequest{Email: "a@b.c", Password: "secret1"}), model.LanguageRu))

		if w.Code != http.StatusCreated {
			t.Fatalf("status = %d, want 201", w.Code)
		}
		if resp := decodeBody[messageResponse](t, w); resp.Message != "Подтвердите email." {
			t.Errorf("message = %q", resp.Message)
		}
	})

	t.Run("弱いパスワードは400", func(t *testing.T) {
		h := NewAuthHandler(&mockAuthService{signUpFn: func(context.Context, string, string) error {
			return model.ErrWeakPassword
		}})
		w := httptest.NewRecorder()
		h.SignUp(w, jsonRequest(t, http.MethodPost, "/auth/signup", credentialsRequest{Email: "a@b.c", Password: "123"}))

		if w.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", w.Code)
		}
		if body := parseAPIErrorResponse(t, w); body.Code != model.ErrCodeWeakPassword {
			t.Errorf("code = %s", body.Code)
		}
	})
}

func TestAuthHandler_Forgot(t *testing.T) {
	var got string
	h := NewAuthHandler(&mockAuthService{resetFn: func(_ context.Context, email string) error {
		got = email
		return nil
	}})

	w := httptest.NewRecorder()
	h.Forgot(w, jsonRequest(t, http.MethodPost, "/auth/forgot", emailRequest{Email: "a@b.c"}))

	if w.Code != http.StatusAccepted {
		t.Errorf("status = %d, want 202", w.Code)
	}
	if got != "a@b.c" {
		t.Errorf("email = %q", got)
	}

	w = httptest.NewRecorder()
	h.Forgot(w, jsonRequest(t, http.MethodPost, "/auth/forgot", emailRequest{}))
	if w.Code != http.StatusBadRequest {
		t.Errorf("空のメールアドレス: status = %d, want 400", w.Code)
	}
}

func TestAuthHandler_Reset_LeavesRecovery(t *testing.T) {
	svc := &mockAuthService{state: auth.StatePasswordRecovery, user: &model.User{ID: "user-1"}}
	svc.updatePasswordFn = func(_ context.Context, pw string) error {
		if pw != "newpass" {
			t.Errorf("password = %q", pw)
		}
		svc.state = auth.StateAuthenticated
		return nil
	}
	h := NewAuthHandler(svc)

	w := httptest.NewRecorder()
	h.Reset(w, jsonRequest(t, http.MethodPost, "/auth/reset", passwordRequest{Password: "newpass"}))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if resp := decodeBody[stateResponse](t, w); resp.View != auth.ViewApp {
		t.Errorf("view = %s, want %s", resp.View, auth.ViewApp)
	}
}

func TestAuthHandler_Reset_NotAuthenticated(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{updatePasswordFn: func(context.Context, string) error {
		return auth.ErrNotAuthenticated
	}})

	w := httptest.NewRecorder()
	h.Reset(w, jsonRequest(t, http.MethodPost, "/auth/reset", passwordRequest{Password: "newpass"}))

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestAuthHandler_SignOut(t *testing.T) {
	svc := &mockAuthService{state: auth.StateAuthenticated}
	svc.signOutFn = func(context.Context) error {
		svc.state = auth.StateUnauthenticated
		return nil
	}
	h := NewAuthHandler(svc)

	w := httptest.NewRecorder()
	h.SignOut(w, httptest.NewRequest(http.MethodPost, "/auth/signout", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if resp := decodeBody[stateResponse](t, w); resp.View != auth.ViewAuth || resp.User != nil {
		t.Errorf("resp = %+v", resp)
	}
}

func TestAuthHandler_Recovery(t *testing.T) {
	svc := &mockAuthService{}
	svc.handleFragmentFn = func(_ context.Context, fragment string) (bool, error) {
		if fragment != "#access_token=t&type=recovery" {
			return false, nil
		}
		svc.state = auth.StatePasswordRecovery
		return true, nil
	}
	h := NewAuthHandler(svc)

	w := httptest.NewRecorder()
	h.Recovery(w, jsonRequest(t, http.MethodPost, "/auth/recovery", fragmentRequest{Fragment: "#access_token=t&type=recovery"}))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	resp := decodeBody[stateResponse](t, w)
	if resp.Recovery == nil || !*resp.Recovery || resp.View != auth.ViewReset {
		t.Errorf("resp = %+v", resp)
	}
}

func TestAuthHandler_State(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{state: auth.StatePasswordRecovery})

	w := httptest.NewRecorder()
	h.State(w, httptest.NewRequest(http.MethodGet, "/auth/state", nil))

	resp := decodeBody[stateResponse](t, w)
	if resp.State != auth.StatePasswordRecovery || resp.View != auth.ViewReset {
		t.Errorf("resp = %+v", resp)
	}
}

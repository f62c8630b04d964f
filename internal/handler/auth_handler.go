package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/planify/internal/auth"
	"github.com/hitoshi/planify/internal/model"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
// auth.Manager が実装する。
type AuthServiceInterface interface {
	SignIn(ctx context.Context, email, password string) error
	SignUp(ctx context.Context, email, password string) error
	RequestPasswordReset(ctx context.Context, email string) error
	UpdatePassword(ctx context.Context, newPassword string) error
	SignOut(ctx context.Context) error
	HandleFragment(ctx context.Context, fragment string) (bool, error)
	State() auth.State
	User() *model.User
	View() string
}

// AuthHandler は認証関連のHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface) *AuthHandler {
	return &AuthHandler{service: service}
}

// credentialsRequest はサインイン・サインアップのリクエストボディ。
type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type emailRequest struct {
	Email string `json:"email"`
}

type passwordRequest struct {
	Password string `json:"password"`
}

type fragmentRequest struct {
	Fragment string `json:"fragment"`
}

// stateResponse はセッション状態のAPIレスポンス。
type stateResponse struct {
	State    auth.State  `json:"state"`
	View     string      `json:"view"`
	User     *model.User `json:"user,omitempty"`
	Recovery *bool       `json:"recovery,omitempty"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func (h *AuthHandler) currentState() stateResponse {
	return stateResponse{
		State: h.service.State(),
		View:  h.service.View(),
		User:  h.service.User(),
	}
}

// State は現在のセッション状態と表示すべき画面を返す。
// GET /auth/state
func (h *AuthHandler) State(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.currentState())
}

// SignIn はメールアドレスとパスワードでサインインする。
// POST /auth/signin
func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Email == "" || req.Password == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError(langOf(r), "email"))
		return
	}

	if err := h.service.SignIn(r.Context(), req.Email, req.Password); err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.currentState())
}

// SignUp はアカウントを作成する。確認メールの送信で完了する。
// POST /auth/signup
func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Email == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError(langOf(r), "email"))
		return
	}

	if err := h.service.SignUp(r.Context(), req.Email, req.Password); err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, messageResponse{
		Message: langOf(r).Pick("Emailingizni tasdiqlang.", "Подтвердите email."),
	})
}

// Forgot はパスワード再設定メールを送る。
// POST /auth/forgot
func (h *AuthHandler) Forgot(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Email == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError(langOf(r), "email"))
		return
	}

	if err := h.service.RequestPasswordReset(r.Context(), req.Email); err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, messageResponse{
		Message: langOf(r).Pick("Tiklash havolasi yuborildi.", "Ссылка для восстановления отправлена."),
	})
}

// Reset は新しいパスワードを設定する。再設定モードの場合は完了後にアプリ画面へ戻る。
// POST /auth/reset
func (h *AuthHandler) Reset(w http.ResponseWriter, r *http.Request) {
	var req passwordRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.service.UpdatePassword(r.Context(), req.Password); err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.currentState())
}

// SignOut はサインアウトする。プロバイダーへの通知に失敗してもローカルの状態は破棄済み。
// POST /auth/signout
func (h *AuthHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	if err := h.service.SignOut(r.Context()); err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.currentState())
}

// Recovery はリダイレクトURLのフラグメントを受け取り、パスワード再設定モードを検出する。
// POST /auth/recovery
func (h *AuthHandler) Recovery(w http.ResponseWriter, r *http.Request) {
	var req fragmentRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	recovery, err := h.service.HandleFragment(r.Context(), req.Fragment)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	resp := h.currentState()
	resp.Recovery = &recovery
	writeJSON(w, http.StatusOK, resp)
}

// compile-time interface check
var _ AuthServiceInterface = (*auth.Manager)(nil)

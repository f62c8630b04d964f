// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"net/http"

	"github.com/hitoshi/planify/internal/auth"
	"github.com/hitoshi/planify/internal/model"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// userIDContextKey はリクエストコンテキストにユーザーIDを格納するためのキー。
var userIDContextKey = contextKey("user_id")

// userHolderKey はロギングミドルウェアへユーザーIDを受け渡す入れ物のキー。
var userHolderKey = contextKey("user_holder")

type userHolder struct {
	userID string
}

func withUserHolder(ctx context.Context, h *userHolder) context.Context {
	return context.WithValue(ctx, userHolderKey, h)
}

// SessionState はセッション状態の参照に必要なインターフェース。
// auth.Manager の部分集合として定義する。
type SessionState interface {
	State() auth.State
	User() *model.User
}

// NewSessionMiddleware はセッション状態を検証するミドルウェアを返す。
// 認証済みの場合はユーザーIDをリクエストコンテキストに注入する。
// 未認証には401、パスワード再設定中には403を返す。
func NewSessionMiddleware(session SessionState) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			lang := LanguageFromContext(r.Context())

			switch session.State() {
			case auth.StateAuthenticated:
			case auth.StatePasswordRecovery:
				WriteErrorResponse(w, http.StatusForbidden, model.NewRecoveryRequiredError(lang))
				return
			default:
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError(lang))
				return
			}

			user := session.User()
			if user == nil {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError(lang))
				return
			}

			if h, ok := r.Context().Value(userHolderKey).(*userHolder); ok {
				h.userID = user.ID
			}
			ctx := context.WithValue(r.Context(), userIDContextKey, user.ID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
// セッションミドルウェアを通過したリクエストでのみ有効。
func UserIDFromContext(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(userIDContextKey).(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}

// ContextWithUserID はコンテキストにユーザーIDを注入する。
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDContextKey, userID)
}

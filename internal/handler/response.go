// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/planify/internal/auth"
	"github.com/hitoshi/planify/internal/middleware"
	"github.com/hitoshi/planify/internal/model"
	"github.com/hitoshi/planify/internal/planner"
	"github.com/hitoshi/planify/internal/store"
)

// mutationResponse は変更系APIのレスポンス。
// 永続化に失敗した場合は Warning を付けて202で返し、UIに再試行を促す。
type mutationResponse struct {
	Data    any                           `json:"data"`
	Warning *middleware.ErrorResponseBody `json:"warning,omitempty"`
}

// langOf はリクエストの表示言語を返す。
func langOf(r *http.Request) model.Language {
	return middleware.LanguageFromContext(r.Context())
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	middleware.WriteErrorResponse(w, statusCode, apiErr)
}

// decodeJSON はリクエストボディを読み取る。失敗した場合は400を書き込みfalseを返す。
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError(langOf(r)))
		return false
	}
	return true
}

// confirmed は削除確認（?confirm=true）が付与されているかどうかを検査する。
// 付与されていない場合は428を書き込みfalseを返す。
func confirmed(w http.ResponseWriter, r *http.Request) bool {
	if r.URL.Query().Get("confirm") == "true" {
		return true
	}
	writeAPIErrorResponse(w, http.StatusPreconditionRequired, model.NewConfirmationRequiredError(langOf(r)))
	return false
}

// writeMutation は変更操作の結果を書き込む。
// 永続化のみ失敗した場合は202と警告を、それ以外のエラーは handleServiceError で返す。
func writeMutation(w http.ResponseWriter, r *http.Request, statusCode int, data any, err error) {
	if err == nil {
		writeJSON(w, statusCode, mutationResponse{Data: data})
		return
	}

	var pe *store.PersistError
	if errors.As(err, &pe) {
		slog.Warn("local change kept but not persisted",
			slog.String("kind", string(pe.Kind)),
			slog.String("id", pe.ID),
			slog.String("op", string(pe.Op)),
			slog.String("error", pe.Err.Error()),
		)
		apiErr := persistWarning(langOf(r), pe)
		writeJSON(w, http.StatusAccepted, mutationResponse{
			Data: data,
			Warning: &middleware.ErrorResponseBody{
				Code:     apiErr.Code,
				Message:  apiErr.Message,
				Category: apiErr.Category,
				Action:   apiErr.Action,
			},
		})
		return
	}

	handleServiceError(w, r, err)
}

// persistWarning は永続化失敗の原因に応じた警告を返す。
func persistWarning(lang model.Language, pe *store.PersistError) *model.APIError {
	if errors.Is(pe, model.ErrNotConfigured) {
		return model.NewNotConfiguredError()
	}
	return model.NewRemoteFailedError(lang)
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	lang := langOf(r)

	var (
		apiErr        *model.APIError
		validationErr *model.ValidationError
		notFoundErr   *model.NotFoundError
		authErr       *model.AuthError
		remoteErr     *model.RemoteError
	)
	switch {
	case errors.As(err, &apiErr):
		writeAPIErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
	case errors.Is(err, model.ErrNotConfigured):
		writeAPIErrorResponse(w, http.StatusServiceUnavailable, model.NewNotConfiguredError())
	case errors.Is(err, model.ErrWeakPassword):
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewWeakPasswordError(lang))
	case errors.Is(err, model.ErrNoAmount):
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewNoAmountError(lang))
	case errors.Is(err, planner.ErrServiceUnavailable), errors.Is(err, model.ErrParseService):
		writeAPIErrorResponse(w, http.StatusServiceUnavailable, model.NewPlannerUnavailableError(lang))
	case errors.Is(err, auth.ErrNotAuthenticated), errors.Is(err, store.ErrNotSignedIn):
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError(lang))
	case errors.Is(err, auth.ErrSignInInProgress):
		writeAPIErrorResponse(w, http.StatusConflict, model.NewAuthFailedError(lang, err.Error()))
	case errors.As(err, &validationErr):
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError(lang, validationErr.Field))
	case errors.As(err, &notFoundErr):
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewNotFoundError(lang, notFoundErr.Kind, notFoundErr.ID))
	case errors.As(err, &authErr):
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewAuthFailedError(lang, authErr.Message))
	case errors.As(err, &remoteErr):
		slog.Error("remote call failed", slog.String("error", err.Error()))
		writeAPIErrorResponse(w, http.StatusBadGateway, model.NewRemoteFailedError(lang))
	default:
		// 詳細はログのみに記録する
		slog.Error("internal server error", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w, lang)
	}
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeUnauthorized, model.ErrCodeAuthFailed:
		return http.StatusUnauthorized
	case model.ErrCodeRecoveryRequired, model.ErrCodeCSRFFailed:
		return http.StatusForbidden
	case model.ErrCodeWeakPassword, model.ErrCodeValidation, model.ErrCodeInvalidRequest, model.ErrCodeNoAmount:
		return http.StatusBadRequest
	case model.ErrCodeNotFound:
		return http.StatusNotFound
	case model.ErrCodeConfirmationRequired:
		return http.StatusPreconditionRequired
	case model.ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case model.ErrCodeNotConfigured, model.ErrCodePlannerUnavailable:
		return http.StatusServiceUnavailable
	case model.ErrCodeRemoteFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

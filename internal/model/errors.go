package model

import (
	"errors"
	"fmt"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, data, planner, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUnauthorized         = "UNAUTHORIZED"
	ErrCodeAuthFailed           = "AUTH_FAILED"
	ErrCodeWeakPassword         = "WEAK_PASSWORD"
	ErrCodeRecoveryRequired     = "RECOVERY_REQUIRED"
	ErrCodeNotConfigured        = "NOT_CONFIGURED"
	ErrCodeRemoteFailed         = "REMOTE_FAILED"
	ErrCodeNotFound             = "NOT_FOUND"
	ErrCodeValidation           = "VALIDATION_FAILED"
	ErrCodeInvalidRequest       = "INVALID_REQUEST"
	ErrCodeConfirmationRequired = "CONFIRMATION_REQUIRED"
	ErrCodePlannerUnavailable   = "PLANNER_UNAVAILABLE"
	ErrCodeNoAmount             = "NO_AMOUNT"
	ErrCodeCSRFFailed           = "CSRF_FAILED"
	ErrCodeRateLimited          = "RATE_LIMITED"
	ErrCodeInternal             = "INTERNAL_ERROR"
)

// NotConfiguredMessage はバックエンド未設定時の固定メッセージ。
const NotConfiguredMessage = "Supabase not configured."

// MinPasswordLength はパスワードの最小文字数。
const MinPasswordLength = 6

var (
	// ErrNotConfigured は認証・データバックエンドの資格情報が未設定であることを示す。
	ErrNotConfigured = errors.New(NotConfiguredMessage)
	// ErrParseService は生成AIサービスの呼び出しに失敗したことを示す。
	ErrParseService = errors.New("generative service unavailable")
	// ErrWeakPassword はパスワードが短すぎることを示す。
	ErrWeakPassword = errors.New("password too short")
	// ErrNoAmount はクイック入力から金額を読み取れなかったことを示す。
	ErrNoAmount = errors.New("no amount in input")
)

// ValidationError は入力値の不変条件違反。
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NotFoundError は指定IDのエンティティがローカルに存在しないことを示す。
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

// AuthError は認証プロバイダーによる拒否または到達不能を表す。
type AuthError struct {
	Message string
	Err     error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("auth: %s: %v", e.Message, e.Err)
	}
	return "auth: " + e.Message
}

func (e *AuthError) Unwrap() error { return e.Err }

// RemoteError はデータストアによるCRUD呼び出しの拒否を表す。
type RemoteError struct {
	Message string
	Err     error
}

func (e *RemoteError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("remote: %s: %v", e.Message, e.Err)
	}
	return "remote: " + e.Message
}

func (e *RemoteError) Unwrap() error { return e.Err }

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError(lang Language) *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  lang.Pick("Avval tizimga kiring.", "Сначала войдите в систему."),
		Category: "auth",
		Action:   lang.Pick("Email va parol bilan kiring.", "Войдите с email и паролем."),
	}
}

// NewAuthFailedError は認証失敗エラーを生成する。
func NewAuthFailedError(lang Language, reason string) *APIError {
	return &APIError{
		Code:     ErrCodeAuthFailed,
		Message:  reason,
		Category: "auth",
		Action:   lang.Pick("Ma'lumotlarni tekshirib, qayta urinib ko'ring.", "Проверьте данные и попробуйте снова."),
	}
}

// NewWeakPasswordError はパスワード長不足エラーを生成する。
func NewWeakPasswordError(lang Language) *APIError {
	return &APIError{
		Code:     ErrCodeWeakPassword,
		Message:  lang.Pick("Parol kamida 6 belgidan iborat bo'lishi kerak.", "Пароль должен содержать не менее 6 символов."),
		Category: "validation",
		Action:   lang.Pick("Uzunroq parol kiriting.", "Введите более длинный пароль."),
	}
}

// NewRecoveryRequiredError はパスワード再設定中に他画面へアクセスした場合のエラーを生成する。
func NewRecoveryRequiredError(lang Language) *APIError {
	return &APIError{
		Code:     ErrCodeRecoveryRequired,
		Message:  lang.Pick("Yangi parol o'rnating.", "Установите новый пароль."),
		Category: "auth",
		Action:   lang.Pick("Parolni yangilash sahifasiga o'ting.", "Перейдите на страницу смены пароля."),
	}
}

// NewNotConfiguredError はバックエンド未設定エラーを生成する。メッセージは言語によらず固定。
func NewNotConfiguredError() *APIError {
	return &APIError{
		Code:     ErrCodeNotConfigured,
		Message:  NotConfiguredMessage,
		Category: "system",
		Action:   "SUPABASE_URL / SUPABASE_ANON_KEY",
	}
}

// NewRemoteFailedError はデータストア呼び出し失敗エラーを生成する。
func NewRemoteFailedError(lang Language) *APIError {
	return &APIError{
		Code:     ErrCodeRemoteFailed,
		Message:  lang.Pick("Ulanishda xatolik.", "Ошибка сети."),
		Category: "data",
		Action:   lang.Pick("Qayta urinib ko'ring.", "Попробуйте ещё раз."),
	}
}

// NewNotFoundError はエンティティ未検出エラーを生成する。
func NewNotFoundError(lang Language, kind, id string) *APIError {
	return &APIError{
		Code:     ErrCodeNotFound,
		Message:  fmt.Sprintf(lang.Pick("Topilmadi: %s %s", "Не найдено: %s %s"), kind, id),
		Category: "data",
		Action:   lang.Pick("Ro'yxatni yangilang.", "Обновите список."),
	}
}

// NewValidationError は入力値エラーを生成する。
func NewValidationError(lang Language, field string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  fmt.Sprintf(lang.Pick("Noto'g'ri qiymat: %s", "Неверное значение: %s"), field),
		Category: "validation",
		Action:   lang.Pick("Maydonni to'g'rilang.", "Исправьте поле."),
	}
}

// NewInvalidRequestError はリクエストボディの解析失敗エラーを生成する。
func NewInvalidRequestError(lang Language) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  lang.Pick("So'rovni o'qib bo'lmadi.", "Не удалось разобрать запрос."),
		Category: "validation",
		Action:   lang.Pick("To'g'ri JSON yuboring.", "Отправьте корректный JSON."),
	}
}

// NewConfirmationRequiredError は削除確認が付与されていない場合のエラーを生成する。
func NewConfirmationRequiredError(lang Language) *APIError {
	return &APIError{
		Code:     ErrCodeConfirmationRequired,
		Message:  lang.Pick("O'chirishni tasdiqlang.", "Подтвердите удаление."),
		Category: "validation",
		Action:   "confirm=true",
	}
}

// NewPlannerUnavailableError はAIサービスに到達できない場合のエラーを生成する。
func NewPlannerUnavailableError(lang Language) *APIError {
	return &APIError{
		Code:     ErrCodePlannerUnavailable,
		Message:  lang.Pick("Ulanishda xatolik. Internetni tekshiring.", "Ошибка сети. Проверьте подключение."),
		Category: "planner",
		Action:   lang.Pick("Qayta urinib ko'ring.", "Попробуйте ещё раз."),
	}
}

// NewNoAmountError はクイック入力に金額がない場合のエラーを生成する。
func NewNoAmountError(lang Language) *APIError {
	return &APIError{
		Code:     ErrCodeNoAmount,
		Message:  lang.Pick("Summani kiriting.", "Укажите сумму."),
		Category: "validation",
		Action:   lang.Pick("Masalan: 45000 tushlik", "Например: 45000 обед"),
	}
}

// NewCSRFError はCSRFトークンの検証失敗エラーを生成する。
func NewCSRFError(lang Language) *APIError {
	return &APIError{
		Code:     ErrCodeCSRFFailed,
		Message:  lang.Pick("So'rov tasdiqlanmadi.", "Запрос не подтверждён."),
		Category: "auth",
		Action:   lang.Pick("Sahifani yangilab, qayta urinib ko'ring.", "Обновите страницу и повторите."),
	}
}

// NewRateLimitedError はレート制限超過エラーを生成する。
func NewRateLimitedError(lang Language) *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  lang.Pick("So'rovlar juda ko'p.", "Слишком много запросов."),
		Category: "system",
		Action:   lang.Pick("Biroz kuting va qayta urinib ko'ring.", "Подождите и повторите попытку."),
	}
}

// NewInternalError は内部エラーを生成する。
func NewInternalError(lang Language) *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  lang.Pick("Ichki xatolik yuz berdi.", "Произошла внутренняя ошибка."),
		Category: "system",
		Action:   lang.Pick("Birozdan so'ng qayta urinib ko'ring.", "Повторите попытку позже."),
	}
}

// EmptyPlanMessage はAIが入力を解釈できなかった場合にUIへ表示する文言。
func EmptyPlanMessage(lang Language) string {
	return lang.Pick("AI tushunmadi. Boshqacha yozib ko'ring.", "ИИ не понял. Попробуйте сформулировать иначе.")
}

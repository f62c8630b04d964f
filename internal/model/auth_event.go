package model

// AuthEvent は認証プロバイダーからの通知。
// SignedIn、SignedOut、UserUpdated、PasswordRecovery のいずれか。
type AuthEvent interface {
	// Name はログ・メトリクス用のイベント名を返す。
	Name() string
	authEvent()
}

// SignedIn はサインイン完了を表す。
type SignedIn struct {
	Session AuthSession
}

// SignedOut はサインアウトを表す。
type SignedOut struct{}

// UserUpdated はユーザー情報（パスワード含む）の更新完了を表す。
type UserUpdated struct {
	User User
}

// PasswordRecovery はパスワード再設定用セッションの検出を表す。
type PasswordRecovery struct {
	Session AuthSession
}

// Name はイベント名を返す。
func (SignedIn) Name() string { return "signed_in" }

// Name はイベント名を返す。
func (SignedOut) Name() string { return "signed_out" }

// Name はイベント名を返す。
func (UserUpdated) Name() string { return "user_updated" }

// Name はイベント名を返す。
func (PasswordRecovery) Name() string { return "password_recovery" }

func (SignedIn) authEvent()         {}
func (SignedOut) authEvent()        {}
func (UserUpdated) authEvent()      {}
func (PasswordRecovery) authEvent() {}

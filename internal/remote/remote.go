// Package remote は外部の認証・データベースサービスとの境界を提供する。
// 認証（サインイン・サインアップ・パスワード再設定）とユーザー単位のCRUDを扱う。
// 呼び出しはリトライしない。失敗は *model.AuthError または *model.RemoteError で返す。
package remote

import (
	"context"

	"github.com/hitoshi/planify/internal/model"
)

// AuthProvider は認証プロバイダーのインターフェース。
// テスト時にモックに差し替え可能。
type AuthProvider interface {
	// SignIn はメールアドレスとパスワードでサインインする。
	SignIn(ctx context.Context, email, password string) (*model.AuthSession, error)
	// SignUp はアカウントを作成する。確認メールの送信で完了し、セッションは返さない。
	SignUp(ctx context.Context, email, password, redirectTo string) error
	// RequestPasswordReset はパスワード再設定メールを送信する。
	RequestPasswordReset(ctx context.Context, email, redirectTo string) error
	// UpdatePassword は現在のセッションのパスワードを変更する。
	UpdatePassword(ctx context.Context, newPassword string) (*model.User, error)
	// SignOut はセッションを破棄する。
	SignOut(ctx context.Context) error
	// RecoverFromFragment はリダイレクトURLのフラグメントからセッションを確立する。
	RecoverFromFragment(ctx context.Context, fragment string) (*model.AuthSession, error)
	// Resume はリフレッシュトークンからセッションを再開する。
	Resume(ctx context.Context, refreshToken string) (*model.AuthSession, error)
	// CurrentSession は現在のセッションを返す。未サインインの場合はnil。
	CurrentSession() *model.AuthSession
	// OnAuthEvent は認証イベントの購読を登録し、解除関数を返す。
	OnAuthEvent(fn func(model.AuthEvent)) (unsubscribe func())
}

// Collection はユーザー単位のエンティティ集合に対するCRUD。
type Collection[T any] interface {
	List(ctx context.Context, userID string) ([]T, error)
	Insert(ctx context.Context, userID string, v T) error
	Update(ctx context.Context, userID string, v T) error
	Delete(ctx context.Context, userID, id string) error
}

// DataStore はデータバックエンドのインターフェース。
type DataStore interface {
	Tasks() Collection[model.Task]
	Habits() Collection[model.Habit]
	Transactions() Collection[model.Transaction]
	Goals() Collection[model.SavingGoal]
	Debts() Collection[model.Debt]
	// Profile はプロフィールを返す。未作成の場合は初期値を返す。
	Profile(ctx context.Context, userID string) (model.UserProfile, error)
}

// remoteErr は失敗を *model.RemoteError に包む。
func remoteErr(msg string, err error) error {
	return &model.RemoteError{Message: msg, Err: err}
}

// authErr は失敗を *model.AuthError に包む。
func authErr(msg string, err error) error {
	return &model.AuthError{Message: msg, Err: err}
}

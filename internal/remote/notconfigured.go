package remote

import (
	"context"

	"github.com/hitoshi/planify/internal/model"
)

// NotConfigured は資格情報が未設定の場合に使う認証・データバックエンド。
// すべての呼び出しは通信せずに model.ErrNotConfigured を返す。
type NotConfigured struct{}

func (NotConfigured) SignIn(context.Context, string, string) (*model.AuthSession, error) {
	return nil, model.ErrNotConfigured
}

func (NotConfigured) SignUp(context.Context, string, string, string) error {
	return model.ErrNotConfigured
}

func (NotConfigured) RequestPasswordReset(context.Context, string, string) error {
	return model.ErrNotConfigured
}

func (NotConfigured) UpdatePassword(context.Context, string) (*model.User, error) {
	return nil, model.ErrNotConfigured
}

func (NotConfigured) SignOut(context.Context) error {
	return model.ErrNotConfigured
}

func (NotConfigured) RecoverFromFragment(context.Context, string) (*model.AuthSession, error) {
	return nil, model.ErrNotConfigured
}

func (NotConfigured) Resume(context.Context, string) (*model.AuthSession, error) {
	return nil, model.ErrNotConfigured
}

func (NotConfigured) CurrentSession() *model.AuthSession { return nil }

func (NotConfigured) OnAuthEvent(func(model.AuthEvent)) func() { return func() {} }

func (NotConfigured) Tasks() Collection[model.Task] {
	return notConfiguredCollection[model.Task]{}
}

func (NotConfigured) Habits() Collection[model.Habit] {
	return notConfiguredCollection[model.Habit]{}
}

func (NotConfigured) Transactions() Collection[model.Transaction] {
	return notConfiguredCollection[model.Transaction]{}
}

func (NotConfigured) Goals() Collection[model.SavingGoal] {
	return notConfiguredCollection[model.SavingGoal]{}
}

func (NotConfigured) Debts() Collection[model.Debt] {
	return notConfiguredCollection[model.Debt]{}
}

func (NotConfigured) Profile(context.Context, string) (model.UserProfile, error) {
	return model.UserProfile{}, model.ErrNotConfigured
}

type notConfiguredCollection[T any] struct{}

func (notConfiguredCollection[T]) List(context.Context, string) ([]T, error) {
	return nil, model.ErrNotConfigured
}

func (notConfiguredCollection[T]) Insert(context.Context, string, T) error {
	return model.ErrNotConfigured
}

func (notConfiguredCollection[T]) Update(context.Context, string, T) error {
	return model.ErrNotConfigured
}

func (notConfiguredCollection[T]) Delete(context.Context, string, string) error {
	return model.ErrNotConfigured
}

// compile-time interface check
var (
	_ AuthProvider = NotConfigured{}
	_ DataStore    = NotConfigured{}
)

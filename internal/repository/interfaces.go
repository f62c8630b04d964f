// Package repository はPostgresバックエンドにおけるデータ永続化を提供する。
// すべての操作はユーザーIDでスコープされる。
package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/hitoshi/planify/internal/model"
)

// ErrRowNotFound は更新対象の行が存在しないことを示す。
var ErrRowNotFound = errors.New("row not found")

// EntityRepository はユーザー単位のエンティティ永続化インターフェース。
type EntityRepository[T any] interface {
	// ListByUserID はユーザーの全エンティティを返す。
	ListByUserID(ctx context.Context, userID string) ([]T, error)
	// Create はエンティティを作成する。同じIDが既にあれば内容を上書きする。
	Create(ctx context.Context, userID string, v T) error
	// Update はエンティティを更新する。対象がなければ ErrRowNotFound を返す。
	Update(ctx context.Context, userID string, v T) error
	// Delete はエンティティを削除する。存在しなくてもエラーにしない。
	Delete(ctx context.Context, userID, id string) error
}

// TaskRepository はタスクの永続化インターフェース。
type TaskRepository interface {
	EntityRepository[model.Task]
}

// HabitRepository は習慣の永続化インターフェース。
type HabitRepository interface {
	EntityRepository[model.Habit]
}

// TransactionRepository は取引の永続化インターフェース。
type TransactionRepository interface {
	EntityRepository[model.Transaction]
}

// GoalRepository は貯蓄目標の永続化インターフェース。
type GoalRepository interface {
	EntityRepository[model.SavingGoal]
}

// DebtRepository は借入の永続化インターフェース。
type DebtRepository interface {
	EntityRepository[model.Debt]
}

// ProfileRepository はプロフィールの永続化インターフェース。
type ProfileRepository interface {
	// FindByUserID はプロフィールを取得する。見つからない場合はnilを返す。
	FindByUserID(ctx context.Context, userID string) (*model.UserProfile, error)
	// EnsureDefault はプロフィールが無ければ初期値で作成する。
	EnsureDefault(ctx context.Context, userID string) error
}

// DBTX は *sql.DB と *sql.Tx の共通部分。
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// checkAffected は更新件数が0の場合に ErrRowNotFound を返す。
func checkAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrRowNotFound
	}
	return nil
}

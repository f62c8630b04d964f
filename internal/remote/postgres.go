package remote

import (
	"context"
	"errors"

	"github.com/hitoshi/planify/internal/model"
	"github.com/hitoshi/planify/internal/repository"
)

// PostgresStore はPostgreSQLへ直接接続するデータバックエンド。
// repository パッケージのリポジトリを Collection として公開する。
type PostgresStore struct {
	tasks        repository.TaskRepository
	habits       repository.HabitRepository
	transactions repository.TransactionRepository
	goals        repository.GoalRepository
	debts        repository.DebtRepository
	profiles     repository.ProfileRepository
}

// NewPostgresStore はPostgresStoreを生成する。
func NewPostgresStore(db repository.DBTX) *PostgresStore {
	return &PostgresStore{
		tasks:        repository.NewPostgresTaskRepo(db),
		habits:       repository.NewPostgresHabitRepo(db),
		transactions: repository.NewPostgresTransactionRepo(db),
		goals:        repository.NewPostgresGoalRepo(db),
		debts:        repository.NewPostgresDebtRepo(db),
		profiles:     repository.NewPostgresProfileRepo(db),
	}
}

// Tasks はタスクのCollectionを返す。
func (s *PostgresStore) Tasks() Collection[model.Task] {
	return repoCollection[model.Task]{repo: s.tasks}
}

// Habits は習慣のCollectionを返す。
func (s *PostgresStore) Habits() Collection[model.Habit] {
	return repoCollection[model.Habit]{repo: s.habits}
}

// Transactions は取引のCollectionを返す。
func (s *PostgresStore) Transactions() Collection[model.Transaction] {
	return repoCollection[model.Transaction]{repo: s.transactions}
}

// Goals は貯蓄目標のCollectionを返す。
func (s *PostgresStore) Goals() Collection[model.SavingGoal] {
	return repoCollection[model.SavingGoal]{repo: s.goals}
}

// Debts は借入のCollectionを返す。
func (s *PostgresStore) Debts() Collection[model.Debt] {
	return repoCollection[model.Debt]{repo: s.debts}
}

// Profile はプロフィールを返す。未作成の場合は初期値で作成する。
func (s *PostgresStore) Profile(ctx context.Context, userID string) (model.UserProfile, error) {
	p, err := s.profiles.FindByUserID(ctx, userID)
	if err != nil {
		return model.UserProfile{}, remoteErr("failed to load profile", err)
	}
	if p != nil {
		return *p, nil
	}
	if err := s.profiles.EnsureDefault(ctx, userID); err != nil {
		return model.UserProfile{}, remoteErr("failed to create profile", err)
	}
	return model.DefaultProfile(), nil
}

// repoCollection はリポジトリのエラーを RemoteError に変換する。
type repoCollection[T any] struct {
	repo repository.EntityRepository[T]
}

func (c repoCollection[T]) List(ctx context.Context, userID string) ([]T, error) {
	rows, err := c.repo.ListByUserID(ctx, userID)
	if err != nil {
		return nil, remoteErr("failed to list rows", err)
	}
	return rows, nil
}

func (c repoCollection[T]) Insert(ctx context.Context, userID string, v T) error {
	if err := c.repo.Create(ctx, userID, v); err != nil {
		return remoteErr("failed to insert row", err)
	}
	return nil
}

func (c repoCollection[T]) Update(ctx context.Context, userID string, v T) error {
	err := c.repo.Update(ctx, userID, v)
	if errors.Is(err, repository.ErrRowNotFound) {
		return remoteErr("row not found", err)
	}
	if err != nil {
		return remoteErr("failed to update row", err)
	}
	return nil
}

func (c repoCollection[T]) Delete(ctx context.Context, userID, id string) error {
	if err := c.repo.Delete(ctx, userID, id); err != nil {
		return remoteErr("failed to delete row", err)
	}
	return nil
}

// compile-time interface check
var _ DataStore = (*PostgresStore)(nil)

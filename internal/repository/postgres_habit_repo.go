package repository

import (
	"context"
	"fmt"

	"github.com/hitoshi/planify/internal/model"
	"github.com/lib/pq"
)

// PostgresHabitRepo はPostgreSQLを使用した習慣リポジトリ。
type PostgresHabitRepo struct {
	db DBTX
}

// NewPostgresHabitRepo はPostgresHabitRepoを生成する。
func NewPostgresHabitRepo(db DBTX) *PostgresHabitRepo {
	return &PostgresHabitRepo{db: db}
}

// ListByUserID はユーザーの習慣を作成順に返す。
func (r *PostgresHabitRepo) ListByUserID(ctx context.Context, userID string) ([]model.Habit, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, title, streak, completed_dates, color
		 FROM habits WHERE user_id = $1 ORDER BY created_at ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("習慣一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var habits []model.Habit
	for rows.Next() {
		var h model.Habit
		if err := rows.Scan(&h.ID, &h.Title, &h.Streak, pq.Array(&h.CompletedDates), &h.Color); err != nil {
			return nil, fmt.Errorf("習慣行の読み取りに失敗しました: %w", err)
		}
		habits = append(habits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("習慣一覧の走査に失敗しました: %w", err)
	}
	return habits, nil
}

// Create は習慣を作成する。
func (r *PostgresHabitRepo) Create(ctx context.Context, userID string, h model.Habit) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO habits (id, user_id, title, streak, completed_dates, color)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO UPDATE SET
		   title = EXCLUDED.title, streak = EXCLUDED.streak,
		   completed_dates = EXCLUDED.completed_dates, color = EXCLUDED.color, updated_at = now()
		 WHERE habits.user_id = EXCLUDED.user_id`,
		h.ID, userID, h.Title, h.Streak, pq.Array(nonNilStrings(h.CompletedDates)), h.Color,
	)
	if err != nil {
		return fmt.Errorf("習慣の作成に失敗しました: %w", err)
	}
	return nil
}

// Update は習慣を更新する。
func (r *PostgresHabitRepo) Update(ctx context.Context, userID string, h model.Habit) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE habits SET title = $3, streak = $4, completed_dates = $5, color = $6, updated_at = now()
		 WHERE id = $1 AND user_id = $2`,
		h.ID, userID, h.Title, h.Streak, pq.Array(nonNilStrings(h.CompletedDates)), h.Color,
	)
	if err != nil {
		return fmt.Errorf("習慣の更新に失敗しました: %w", err)
	}
	return checkAffected(res)
}

// Delete は習慣を削除する。
func (r *PostgresHabitRepo) Delete(ctx context.Context, userID, id string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM habits WHERE id = $1 AND user_id = $2`,
		id, userID,
	)
	if err != nil {
		return fmt.Errorf("習慣の削除に失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ HabitRepository = (*PostgresHabitRepo)(nil)

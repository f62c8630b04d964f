package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/hitoshi/planify/internal/model"
	"github.com/lib/pq"
)

// PostgresTaskRepo はPostgreSQLを使用したタスクリポジトリ。
type PostgresTaskRepo struct {
	db DBTX
}

// NewPostgresTaskRepo はPostgresTaskRepoを生成する。
func NewPostgresTaskRepo(db DBTX) *PostgresTaskRepo {
	return &PostgresTaskRepo{db: db}
}

// ListByUserID はユーザーのタスクを予定日の昇順で返す。
func (r *PostgresTaskRepo) ListByUserID(ctx context.Context, userID string) ([]model.Task, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, title, completed, priority, to_char(date, 'YYYY-MM-DD'), tags, subtasks, time_block
		 FROM tasks WHERE user_id = $1 ORDER BY date ASC, created_at ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("タスク一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var tasks []model.Task
	for rows.Next() {
		var (
			t         model.Task
			subtasks  []byte
			timeBlock sql.NullString
		)
		if err := rows.Scan(&t.ID, &t.Title, &t.Completed, &t.Priority, &t.Date,
			pq.Array(&t.Tags), &subtasks, &timeBlock); err != nil {
			return nil, fmt.Errorf("タスク行の読み取りに失敗しました: %w", err)
		}
		if len(subtasks) > 0 {
			if err := json.Unmarshal(subtasks, &t.Subtasks); err != nil {
				return nil, fmt.Errorf("サブタスクのデコードに失敗しました: %w", err)
			}
		}
		if timeBlock.Valid {
			tb := timeBlock.String
			t.TimeBlock = &tb
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("タスク一覧の走査に失敗しました: %w", err)
	}
	return tasks, nil
}

// Create はタスクを作成する。
func (r *PostgresTaskRepo) Create(ctx context.Context, userID string, t model.Task) error {
	subtasks, err := encodeSubtasks(t.Subtasks)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO tasks (id, user_id, title, completed, priority, date, tags, subtasks, time_block)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (id) DO UPDATE SET
		   title = EXCLUDED.title, completed = EXCLUDED.completed, priority = EXCLUDED.priority,
		   date = EXCLUDED.date, tags = EXCLUDED.tags, subtasks = EXCLUDED.subtasks,
		   time_block = EXCLUDED.time_block, updated_at = now()
		 WHERE tasks.user_id = EXCLUDED.user_id`,
		t.ID, userID, t.Title, t.Completed, t.Priority, t.Date,
		pq.Array(nonNilStrings(t.Tags)), subtasks, nullableString(t.TimeBlock),
	)
	if err != nil {
		return fmt.Errorf("タスクの作成に失敗しました: %w", err)
	}
	return nil
}

// Update はタスクを更新する。
func (r *PostgresTaskRepo) Update(ctx context.Context, userID string, t model.Task) error {
	subtasks, err := encodeSubtasks(t.Subtasks)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE tasks SET title = $3, completed = $4, priority = $5, date = $6,
		   tags = $7, subtasks = $8, time_block = $9, updated_at = now()
		 WHERE id = $1 AND user_id = $2`,
		t.ID, userID, t.Title, t.Completed, t.Priority, t.Date,
		pq.Array(nonNilStrings(t.Tags)), subtasks, nullableString(t.TimeBlock),
	)
	if err != nil {
		return fmt.Errorf("タスクの更新に失敗しました: %w", err)
	}
	return checkAffected(res)
}

// Delete はタスクを削除する。
func (r *PostgresTaskRepo) Delete(ctx context.Context, userID, id string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM tasks WHERE id = $1 AND user_id = $2`,
		id, userID,
	)
	if err != nil {
		return fmt.Errorf("タスクの削除に失敗しました: %w", err)
	}
	return nil
}

func encodeSubtasks(subtasks []model.Subtask) ([]byte, error) {
	if subtasks == nil {
		subtasks = []model.Subtask{}
	}
	b, err := json.Marshal(subtasks)
	if err != nil {
		return nil, fmt.Errorf("サブタスクのエンコードに失敗しました: %w", err)
	}
	return b, nil
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nullableString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// compile-time interface check
var _ TaskRepository = (*PostgresTaskRepo)(nil)

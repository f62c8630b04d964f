package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/planify/internal/model"
)

// PostgresTransactionRepo はPostgreSQLを使用した取引リポジトリ。
type PostgresTransactionRepo struct {
	db DBTX
}

// NewPostgresTransactionRepo はPostgresTransactionRepoを生成する。
func NewPostgresTransactionRepo(db DBTX) *PostgresTransactionRepo {
	return &PostgresTransactionRepo{db: db}
}

// ListByUserID はユーザーの取引を新しい順に返す。
func (r *PostgresTransactionRepo) ListByUserID(ctx context.Context, userID string) ([]model.Transaction, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, title, amount, type, category, to_char(date, 'YYYY-MM-DD')
		 FROM transactions WHERE user_id = $1 ORDER BY date DESC, created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("取引一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var txs []model.Transaction
	for rows.Next() {
		var t model.Transaction
		if err := rows.Scan(&t.ID, &t.Title, &t.Amount, &t.Type, &t.Category, &t.Date); err != nil {
			return nil, fmt.Errorf("取引行の読み取りに失敗しました: %w", err)
		}
		txs = append(txs, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("取引一覧の走査に失敗しました: %w", err)
	}
	return txs, nil
}

// Create は取引を作成する。
func (r *PostgresTransactionRepo) Create(ctx context.Context, userID string, t model.Transaction) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO transactions (id, user_id, title, amount, type, category, date)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (id) DO UPDATE SET
		   title = EXCLUDED.title, amount = EXCLUDED.amount, type = EXCLUDED.type,
		   category = EXCLUDED.category, date = EXCLUDED.date
		 WHERE transactions.user_id = EXCLUDED.user_id`,
		t.ID, userID, t.Title, t.Amount, t.Type, t.Category, t.Date,
	)
	if err != nil {
		return fmt.Errorf("取引の作成に失敗しました: %w", err)
	}
	return nil
}

// Update は取引を更新する。
func (r *PostgresTransactionRepo) Update(ctx context.Context, userID string, t model.Transaction) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE transactions SET title = $3, amount = $4, type = $5, category = $6, date = $7
		 WHERE id = $1 AND user_id = $2`,
		t.ID, userID, t.Title, t.Amount, t.Type, t.Category, t.Date,
	)
	if err != nil {
		return fmt.Errorf("取引の更新に失敗しました: %w", err)
	}
	return checkAffected(res)
}

// Delete は取引を削除する。
func (r *PostgresTransactionRepo) Delete(ctx context.Context, userID, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = $1 AND user_id = $2`, id, userID); err != nil {
		return fmt.Errorf("取引の削除に失敗しました: %w", err)
	}
	return nil
}

// PostgresGoalRepo はPostgreSQLを使用した貯蓄目標リポジトリ。
type PostgresGoalRepo struct {
	db DBTX
}

// NewPostgresGoalRepo はPostgresGoalRepoを生成する。
func NewPostgresGoalRepo(db DBTX) *PostgresGoalRepo {
	return &PostgresGoalRepo{db: db}
}

// ListByUserID はユーザーの貯蓄目標を返す。
func (r *PostgresGoalRepo) ListByUserID(ctx context.Context, userID string) ([]model.SavingGoal, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, title, target_amount, current_amount, to_char(deadline, 'YYYY-MM-DD'), color
		 FROM saving_goals WHERE user_id = $1 ORDER BY created_at ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("貯蓄目標一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var goals []model.SavingGoal
	for rows.Next() {
		var (
			g        model.SavingGoal
			deadline sql.NullString
		)
		if err := rows.Scan(&g.ID, &g.Title, &g.TargetAmount, &g.CurrentAmount, &deadline, &g.Color); err != nil {
			return nil, fmt.Errorf("貯蓄目標行の読み取りに失敗しました: %w", err)
		}
		if deadline.Valid {
			d := deadline.String
			g.Deadline = &d
		}
		goals = append(goals, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("貯蓄目標一覧の走査に失敗しました: %w", err)
	}
	return goals, nil
}

// Create は貯蓄目標を作成する。
func (r *PostgresGoalRepo) Create(ctx context.Context, userID string, g model.SavingGoal) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO saving_goals (id, user_id, title, target_amount, current_amount, deadline, color)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (id) DO UPDATE SET
		   title = EXCLUDED.title, target_amount = EXCLUDED.target_amount,
		   current_amount = EXCLUDED.current_amount, deadline = EXCLUDED.deadline, color = EXCLUDED.color
		 WHERE saving_goals.user_id = EXCLUDED.user_id`,
		g.ID, userID, g.Title, g.TargetAmount, g.CurrentAmount, nullableString(g.Deadline), g.Color,
	)
	if err != nil {
		return fmt.Errorf("貯蓄目標の作成に失敗しました: %w", err)
	}
	return nil
}

// Update は貯蓄目標を更新する。
func (r *PostgresGoalRepo) Update(ctx context.Context, userID string, g model.SavingGoal) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE saving_goals SET title = $3, target_amount = $4, current_amount = $5, deadline = $6, color = $7
		 WHERE id = $1 AND user_id = $2`,
		g.ID, userID, g.Title, g.TargetAmount, g.CurrentAmount, nullableString(g.Deadline), g.Color,
	)
	if err != nil {
		return fmt.Errorf("貯蓄目標の更新に失敗しました: %w", err)
	}
	return checkAffected(res)
}

// Delete は貯蓄目標を削除する。
func (r *PostgresGoalRepo) Delete(ctx context.Context, userID, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM saving_goals WHERE id = $1 AND user_id = $2`, id, userID); err != nil {
		return fmt.Errorf("貯蓄目標の削除に失敗しました: %w", err)
	}
	return nil
}

// PostgresDebtRepo はPostgreSQLを使用した借入リポジトリ。
type PostgresDebtRepo struct {
	db DBTX
}

// NewPostgresDebtRepo はPostgresDebtRepoを生成する。
func NewPostgresDebtRepo(db DBTX) *PostgresDebtRepo {
	return &PostgresDebtRepo{db: db}
}

// ListByUserID はユーザーの借入を返す。
func (r *PostgresDebtRepo) ListByUserID(ctx context.Context, userID string) ([]model.Debt, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, title, total_amount, paid_amount, interest_rate
		 FROM debts WHERE user_id = $1 ORDER BY created_at ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("借入一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var debts []model.Debt
	for rows.Next() {
		var d model.Debt
		if err := rows.Scan(&d.ID, &d.Title, &d.TotalAmount, &d.PaidAmount, &d.InterestRate); err != nil {
			return nil, fmt.Errorf("借入行の読み取りに失敗しました: %w", err)
		}
		debts = append(debts, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("借入一覧の走査に失敗しました: %w", err)
	}
	return debts, nil
}

// Create は借入を作成する。
func (r *PostgresDebtRepo) Create(ctx context.Context, userID string, d model.Debt) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO debts (id, user_id, title, total_amount, paid_amount, interest_rate)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO UPDATE SET
		   title = EXCLUDED.title, total_amount = EXCLUDED.total_amount,
		   paid_amount = EXCLUDED.paid_amount, interest_rate = EXCLUDED.interest_rate
		 WHERE debts.user_id = EXCLUDED.user_id`,
		d.ID, userID, d.Title, d.TotalAmount, d.PaidAmount, d.InterestRate,
	)
	if err != nil {
		return fmt.Errorf("借入の作成に失敗しました: %w", err)
	}
	return nil
}

// Update は借入を更新する。
func (r *PostgresDebtRepo) Update(ctx context.Context, userID string, d model.Debt) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE debts SET title = $3, total_amount = $4, paid_amount = $5, interest_rate = $6
		 WHERE id = $1 AND user_id = $2`,
		d.ID, userID, d.Title, d.TotalAmount, d.PaidAmount, d.InterestRate,
	)
	if err != nil {
		return fmt.Errorf("借入の更新に失敗しました: %w", err)
	}
	return checkAffected(res)
}

// Delete は借入を削除する。
func (r *PostgresDebtRepo) Delete(ctx context.Context, userID, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM debts WHERE id = $1 AND user_id = $2`, id, userID); err != nil {
		return fmt.Errorf("借入の削除に失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var (
	_ TransactionRepository = (*PostgresTransactionRepo)(nil)
	_ GoalRepository        = (*PostgresGoalRepo)(nil)
	_ DebtRepository        = (*PostgresDebtRepo)(nil)
)

package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/planify/internal/model"
)

// PostgresProfileRepo はPostgreSQLを使用したプロフィールリポジトリ。
type PostgresProfileRepo struct {
	db DBTX
}

// NewPostgresProfileRepo はPostgresProfileRepoを生成する。
func NewPostgresProfileRepo(db DBTX) *PostgresProfileRepo {
	return &PostgresProfileRepo{db: db}
}

// FindByUserID はプロフィールを取得する。見つからない場合はnilを返す。
func (r *PostgresProfileRepo) FindByUserID(ctx context.Context, userID string) (*model.UserProfile, error) {
	var (
		p       model.UserProfile
		expires sql.NullTime
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT level, xp, subscription_expires_at FROM profiles WHERE id = $1`,
		userID,
	).Scan(&p.Level, &p.XP, &expires)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("プロフィールの取得に失敗しました: %w", err)
	}

	if expires.Valid {
		t := expires.Time
		p.SubscriptionExpiresAt = &t
	}
	return &p, nil
}

// EnsureDefault はプロフィールが無ければ初期値で作成する。
func (r *PostgresProfileRepo) EnsureDefault(ctx context.Context, userID string) error {
	def := model.DefaultProfile()
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO profiles (id, level, xp) VALUES ($1, $2, $3) ON CONFLICT (id) DO NOTHING`,
		userID, def.Level, def.XP,
	)
	if err != nil {
		return fmt.Errorf("プロフィールの作成に失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ ProfileRepository = (*PostgresProfileRepo)(nil)

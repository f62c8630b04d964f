// Package model はドメインモデルを定義する。
package model

import (
	"math"
	"time"
)

// User は認証済みのユーザーを表す。
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// AuthSession は認証プロバイダーから払い出されたセッション。
type AuthSession struct {
	User         User      `json:"user"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Expired は now 時点でアクセストークンが失効しているかどうかを返す。
func (s *AuthSession) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// UserProfile はレベル・経験値と購読期限を保持する。
// SubscriptionExpiresAt が nil の場合は無期限。
type UserProfile struct {
	Level                 int        `json:"level"`
	XP                    int        `json:"xp"`
	SubscriptionExpiresAt *time.Time `json:"subscription_expires_at,omitempty"`
}

// DefaultProfile はプロフィール未作成時の初期値を返す。
func DefaultProfile() UserProfile {
	return UserProfile{Level: 1, XP: 0}
}

// IsUnlimited は購読が無期限かどうかを返す。
func (p *UserProfile) IsUnlimited() bool {
	return p.SubscriptionExpiresAt == nil
}

// IsExpired は now 時点で購読期限が切れているかどうかを返す。
func (p *UserProfile) IsExpired(now time.Time) bool {
	return p.SubscriptionExpiresAt != nil && p.SubscriptionExpiresAt.Before(now)
}

// DaysLeft は期限までの残り日数（切り上げ）を返す。無期限・期限切れの場合は0。
func (p *UserProfile) DaysLeft(now time.Time) int {
	if p.SubscriptionExpiresAt == nil || p.IsExpired(now) {
		return 0
	}
	return int(math.Ceil(p.SubscriptionExpiresAt.Sub(now).Hours() / 24))
}

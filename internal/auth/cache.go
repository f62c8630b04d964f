package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"

	"github.com/hitoshi/planify/internal/model"
	"github.com/peterbourgon/diskv/v3"
)

const sessionKey = "session"

// SessionCache はクライアント再起動時にセッションを再開するための保存先。
type SessionCache interface {
	Save(session model.AuthSession) error
	// RefreshToken は保存済みのリフレッシュトークンを返す。無い場合は空文字。
	RefreshToken() (string, error)
	Clear() error
}

// cachedSession はディスクに保存する内容。アクセストークンは保存しない。
type cachedSession struct {
	UserID       string `json:"user_id"`
	Email        string `json:"email"`
	RefreshToken string `json:"refresh_token"`
}

// TokenCache はdiskvによるSessionCache実装。
type TokenCache struct {
	d *diskv.Diskv
}

// NewTokenCache は dir 配下にセッションを保存するTokenCacheを生成する。
func NewTokenCache(dir string) *TokenCache {
	return &TokenCache{d: diskv.New(diskv.Options{
		BasePath:     dir,
		Transform:    func(string) []string { return []string{} },
		CacheSizeMax: 0,
		PathPerm:     0o700,
		FilePerm:     0o600,
	})}
}

// Save はセッションのリフレッシュトークンを保存する。
func (c *TokenCache) Save(session model.AuthSession) error {
	if session.RefreshToken == "" {
		return nil
	}
	b, err := json.Marshal(cachedSession{
		UserID:       session.User.ID,
		Email:        session.User.Email,
		RefreshToken: session.RefreshToken,
	})
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := c.d.Write(sessionKey, b); err != nil {
		return fmt.Errorf("failed to write session cache: %w", err)
	}
	return nil
}

// RefreshToken は保存済みのリフレッシュトークンを返す。
func (c *TokenCache) RefreshToken() (string, error) {
	if !c.d.Has(sessionKey) {
		return "", nil
	}
	b, err := c.d.Read(sessionKey)
	if err != nil {
		return "", fmt.Errorf("failed to read session cache: %w", err)
	}
	var s cachedSession
	if err := json.Unmarshal(b, &s); err != nil {
		return "", fmt.Errorf("failed to decode session cache: %w", err)
	}
	return s.RefreshToken, nil
}

// Clear は保存済みのセッションを削除する。
func (c *TokenCache) Clear() error {
	if err := c.d.Erase(sessionKey); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to clear session cache: %w", err)
	}
	return nil
}

// compile-time interface check
var _ SessionCache = (*TokenCache)(nil)

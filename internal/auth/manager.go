// Package auth はセッションのライフサイクル（サインイン・サインアウト・パスワード再設定）を管理する。
//
// 状態遷移:
//
//	Unauthenticated → Authenticating → Authenticated → Unauthenticated
//	Authenticated → PasswordRecovery → Authenticated
//
// 再設定モードはURLフラグメントと PasswordRecovery イベントのどちらからも入り、
// 同じ状態に収束する。再設定モード中の再検出は何もしない。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/hitoshi/planify/internal/metrics"
	"github.com/hitoshi/planify/internal/model"
	"github.com/hitoshi/planify/internal/remote"
)

// State はセッションの状態。
type State string

// 状態の定義
const (
	StateUnauthenticated  State = "unauthenticated"
	StateAuthenticating   State = "authenticating"
	StateAuthenticated    State = "authenticated"
	StatePasswordRecovery State = "password_recovery"
)

// 画面（UIが表示すべきビュー）
const (
	ViewAuth  = "auth"
	ViewApp   = "app"
	ViewReset = "reset"
)

var (
	// ErrNotAuthenticated はサインインが必要な操作を未認証で呼び出したことを示す。
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrSignInInProgress はサインイン処理中に別のサインインを開始したことを示す。
	ErrSignInInProgress = errors.New("sign-in already in progress")
)

// SessionHooks はセッションの開始・終了時に呼び出すデータ層のフック。
// *store.Store が実装する。
type SessionHooks interface {
	Init(ctx context.Context, user model.User) error
	Teardown()
}

// Options はManagerの生成オプション。
type Options struct {
	// BaseURL はサインアップ確認・パスワード再設定メールのリダイレクト先。
	BaseURL string
	// Cache はセッションの保存先。nilの場合は保存しない。
	Cache SessionCache
	// Metrics はメトリクスの記録先。
	Metrics metrics.MetricsCollector
	// InitTimeout はデータ読み込みのタイムアウト。
	InitTimeout time.Duration
	Logger      *slog.Logger
}

// Manager はセッション状態機械。
type Manager struct {
	provider    remote.AuthProvider
	hooks       SessionHooks
	cache       SessionCache
	metrics     metrics.MetricsCollector
	baseURL     string
	initTimeout time.Duration
	logger      *slog.Logger

	mu         sync.Mutex
	state      State
	user       *model.User
	activeUser string // データを読み込み済みのユーザーID

	listenMu  sync.Mutex
	nextID    int
	listeners map[int]func(State)

	unsubscribe func()
}

// NewManager はManagerを生成し、認証イベントの購読を開始する。
func NewManager(provider remote.AuthProvider, hooks SessionHooks, opts Options) *Manager {
	m := &Manager{
		provider:    provider,
		hooks:       hooks,
		cache:       opts.Cache,
		metrics:     opts.Metrics,
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		initTimeout: opts.InitTimeout,
		logger:      opts.Logger,
		state:       StateUnauthenticated,
		listeners:   make(map[int]func(State)),
	}
	if m.metrics == nil {
		m.metrics = metrics.Nop{}
	}
	if m.initTimeout <= 0 {
		m.initTimeout = 30 * time.Second
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	m.unsubscribe = provider.OnAuthEvent(m.handleEvent)
	return m
}

// Close は認証イベントの購読を解除する。
func (m *Manager) Close() {
	m.unsubscribe()
}

// State は現在の状態を返す。
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// User は現在のユーザーを返す。未認証の場合はnil。
func (m *Manager) User() *model.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.user == nil {
		return nil
	}
	u := *m.user
	return &u
}

// View は現在の状態でUIが表示すべき画面を返す。
func (m *Manager) View() string {
	switch m.State() {
	case StateAuthenticated:
		return ViewApp
	case StatePasswordRecovery:
		return ViewReset
	default:
		return ViewAuth
	}
}

// OnStateChange は状態遷移の通知を登録し、解除関数を返す。
func (m *Manager) OnStateChange(fn func(State)) func() {
	m.listenMu.Lock()
	defer m.listenMu.Unlock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			m.listenMu.Lock()
			delete(m.listeners, id)
			m.listenMu.Unlock()
		})
	}
}

func (m *Manager) notify(s State) {
	m.listenMu.Lock()
	fns := make([]func(State), 0, len(m.listeners))
	for _, fn := range m.listeners {
		fns = append(fns, fn)
	}
	m.listenMu.Unlock()
	for _, fn := range fns {
		fn(s)
	}
}

// transition はロック保持中に状態を変更する。変更があった場合はtrueを返す。
func (m *Manager) transitionLocked(to State) bool {
	if m.state == to {
		return false
	}
	m.logger.Info("auth state changed",
		slog.String("from", string(m.state)),
		slog.String("to", string(to)),
	)
	m.state = to
	return true
}

// SignIn はメールアドレスとパスワードでサインインする。
// 失敗した場合は Unauthenticated に戻る。
func (m *Manager) SignIn(ctx context.Context, email, password string) error {
	m.mu.Lock()
	switch m.state {
	case StateAuthenticating:
		m.mu.Unlock()
		return ErrSignInInProgress
	case StateAuthenticated, StatePasswordRecovery:
		email := ""
		if m.user != nil {
			email = m.user.Email
		}
		m.mu.Unlock()
		return fmt.Errorf("already signed in as %s", email)
	}
	m.transitionLocked(StateAuthenticating)
	m.mu.Unlock()
	m.notify(StateAuthenticating)

	session, err := m.provider.SignIn(ctx, strings.TrimSpace(email), password)
	if err != nil {
		m.fail()
		return err
	}

	// プロバイダーが SignedIn を通知しなかった場合はここで確定する
	if m.State() == StateAuthenticating {
		m.handleEvent(model.SignedIn{Session: *session})
	}
	return nil
}

// fail は Authenticating から Unauthenticated に戻す。
func (m *Manager) fail() {
	m.mu.Lock()
	changed := false
	if m.state == StateAuthenticating {
		changed = m.transitionLocked(StateUnauthenticated)
		m.user = nil
	}
	m.mu.Unlock()
	if changed {
		m.notify(StateUnauthenticated)
	}
}

// SignUp はアカウントを作成する。確認メールのリダイレクト先は BaseURL。
func (m *Manager) SignUp(ctx context.Context, email, password string) error {
	if err := checkPassword(password); err != nil {
		return err
	}
	return m.provider.SignUp(ctx, strings.TrimSpace(email), password, m.baseURL)
}

// RequestPasswordReset は再設定メールを送る。リダイレクト先は再設定フラグメント付きの BaseURL。
func (m *Manager) RequestPasswordReset(ctx context.Context, email string) error {
	return m.provider.RequestPasswordReset(ctx, strings.TrimSpace(email), m.RecoveryRedirectURL())
}

// RecoveryRedirectURL はパスワード再設定メールのリダイレクト先を返す。
func (m *Manager) RecoveryRedirectURL() string {
	return m.baseURL + "/#type=recovery"
}

// UpdatePassword はパスワードを変更する。再設定モードの場合は成功後に Authenticated へ戻る。
func (m *Manager) UpdatePassword(ctx context.Context, newPassword string) error {
	if err := checkPassword(newPassword); err != nil {
		return err
	}
	switch m.State() {
	case StateAuthenticated, StatePasswordRecovery:
	default:
		return ErrNotAuthenticated
	}

	user, err := m.provider.UpdatePassword(ctx, newPassword)
	if err != nil {
		return err
	}

	if m.State() == StatePasswordRecovery {
		m.handleEvent(model.UserUpdated{User: *user})
	}
	return nil
}

// SignOut はサインアウトする。プロバイダーの失敗にかかわらずローカルの状態は破棄する。
func (m *Manager) SignOut(ctx context.Context) error {
	err := m.provider.SignOut(ctx)
	if m.State() != StateUnauthenticated {
		m.handleEvent(model.SignedOut{})
	}
	return err
}

// DetectRecovery はリダイレクトURLのフラグメントがパスワード再設定を示すかどうかを返す。
func DetectRecovery(fragment string) bool {
	return strings.Contains(fragment, "type=recovery") || strings.Contains(fragment, "access_token")
}

// HandleFragment はリダイレクトURLのフラグメントを処理する。
// 再設定を示す場合はただちに PasswordRecovery に入り、フラグメントのトークンでセッションを確立する。
// すでに再設定モードの場合は何もしない。再設定を示さない場合は false を返す。
func (m *Manager) HandleFragment(ctx context.Context, fragment string) (bool, error) {
	if !DetectRecovery(fragment) {
		return false, nil
	}

	m.mu.Lock()
	if m.state == StatePasswordRecovery {
		m.mu.Unlock()
		return true, nil
	}
	prev := m.state
	m.transitionLocked(StatePasswordRecovery)
	m.mu.Unlock()
	m.notify(StatePasswordRecovery)

	session, err := m.provider.RecoverFromFragment(ctx, fragment)
	if err != nil {
		m.mu.Lock()
		changed := false
		if m.state == StatePasswordRecovery {
			if prev == StateAuthenticated {
				changed = m.transitionLocked(StateAuthenticated)
			} else {
				changed = m.transitionLocked(StateUnauthenticated)
				m.user = nil
			}
		}
		to := m.state
		m.mu.Unlock()
		if changed {
			m.notify(to)
		}
		return true, err
	}

	// 通知の有無にかかわらずセッションのユーザーを反映する（冪等）
	m.onRecovery(*session)
	return true, nil
}

// Resume は保存済みのリフレッシュトークンでセッションを再開する。
// 保存済みのセッションが無い場合は false を返す。
func (m *Manager) Resume(ctx context.Context) (bool, error) {
	if m.cache == nil {
		return false, nil
	}
	token, err := m.cache.RefreshToken()
	if err != nil {
		m.logger.Warn("failed to read session cache", slog.String("error", err.Error()))
		return false, nil
	}
	if token == "" {
		return false, nil
	}

	m.mu.Lock()
	if m.state != StateUnauthenticated {
		m.mu.Unlock()
		return false, nil
	}
	m.transitionLocked(StateAuthenticating)
	m.mu.Unlock()
	m.notify(StateAuthenticating)

	session, err := m.provider.Resume(ctx, token)
	if err != nil {
		m.fail()
		if clearErr := m.cache.Clear(); clearErr != nil {
			m.logger.Warn("failed to clear session cache", slog.String("error", clearErr.Error()))
		}
		return false, err
	}
	if m.State() == StateAuthenticating {
		m.handleEvent(model.SignedIn{Session: *session})
	}
	return true, nil
}

// handleEvent は認証イベントを状態遷移に反映する。
func (m *Manager) handleEvent(ev model.AuthEvent) {
	m.metrics.RecordAuthEvent(ev.Name())

	switch e := ev.(type) {
	case model.SignedIn:
		m.onSignedIn(e.Session)
	case model.PasswordRecovery:
		m.onRecovery(e.Session)
	case model.UserUpdated:
		m.onUserUpdated(e.User)
	case model.SignedOut:
		m.onSignedOut()
	}
}

func (m *Manager) onSignedIn(session model.AuthSession) {
	m.saveCache(session)

	m.mu.Lock()
	if m.state == StatePasswordRecovery {
		// 再設定モード中のトークン更新では画面を変えない
		u := session.User
		m.user = &u
		m.mu.Unlock()
		return
	}
	if m.state == StateAuthenticated && m.user != nil && m.user.ID == session.User.ID {
		m.mu.Unlock()
		return
	}
	u := session.User
	m.user = &u
	changed := m.transitionLocked(StateAuthenticated)
	m.mu.Unlock()

	m.activate(session.User)
	if changed {
		m.notify(StateAuthenticated)
	}
}

func (m *Manager) onRecovery(session model.AuthSession) {
	m.saveCache(session)

	m.mu.Lock()
	u := session.User
	m.user = &u
	changed := m.transitionLocked(StatePasswordRecovery)
	m.mu.Unlock()

	if changed {
		m.notify(StatePasswordRecovery)
	}
}

func (m *Manager) onUserUpdated(user model.User) {
	m.mu.Lock()
	if m.state != StatePasswordRecovery && m.state != StateAuthenticated {
		m.mu.Unlock()
		return
	}
	u := user
	m.user = &u
	changed := m.transitionLocked(StateAuthenticated)
	m.mu.Unlock()

	m.activate(user)
	if changed {
		m.notify(StateAuthenticated)
	}
}

func (m *Manager) onSignedOut() {
	m.mu.Lock()
	wasActive := m.activeUser != ""
	m.activeUser = ""
	m.user = nil
	changed := m.transitionLocked(StateUnauthenticated)
	m.mu.Unlock()

	if wasActive {
		m.hooks.Teardown()
	}
	if m.cache != nil {
		if err := m.cache.Clear(); err != nil {
			m.logger.Warn("failed to clear session cache", slog.String("error", err.Error()))
		}
	}
	if changed {
		m.notify(StateUnauthenticated)
	}
}

// activate はユーザーのデータを読み込む。読み込み済みのユーザーの場合は何もしない。
func (m *Manager) activate(user model.User) {
	m.mu.Lock()
	if m.activeUser == user.ID {
		m.mu.Unlock()
		return
	}
	switched := m.activeUser != ""
	m.activeUser = user.ID
	m.mu.Unlock()

	if switched {
		m.hooks.Teardown()
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.initTimeout)
	defer cancel()
	if err := m.hooks.Init(ctx, user); err != nil {
		m.logger.Warn("failed to load user data",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}
}

func (m *Manager) saveCache(session model.AuthSession) {
	if m.cache == nil {
		return
	}
	if err := m.cache.Save(session); err != nil {
		m.logger.Warn("failed to save session cache", slog.String("error", err.Error()))
	}
}

// checkPassword はパスワードの最小文字数を検証する。
func checkPassword(password string) error {
	if utf8.RuneCountInString(password) < model.MinPasswordLength {
		return model.ErrWeakPassword
	}
	return nil
}

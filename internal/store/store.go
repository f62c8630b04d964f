// Package store はサインイン中ユーザーのデータを保持するアプリケーション状態ストアを提供する。
// 変更はまずローカルに反映し、その後リモートへ永続化する（楽観的更新）。
// 永続化に失敗した場合もローカルの変更は保持し、*PersistError を返す。
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/planify/internal/metrics"
	"github.com/hitoshi/planify/internal/model"
	"github.com/hitoshi/planify/internal/remote"
)

// Kind は変更対象のエンティティ種別。
type Kind string

// エンティティ種別の定義
const (
	KindTask        Kind = "task"
	KindHabit       Kind = "habit"
	KindTransaction Kind = "transaction"
	KindGoal        Kind = "goal"
	KindDebt        Kind = "debt"
	KindSession     Kind = "session"
)

// Op は変更操作の種別。
type Op string

// 操作種別の定義
const (
	OpAdd    Op = "add"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
	OpToggle Op = "toggle"
	OpReset  Op = "reset"
)

// Change は購読者へ通知する変更内容。
type Change struct {
	Kind Kind   `json:"kind"`
	ID   string `json:"id,omitempty"`
	Op   Op     `json:"op"`
}

// ErrNotSignedIn はサインイン中のユーザーがいない状態で変更しようとしたことを示す。
var ErrNotSignedIn = errors.New("no signed-in user")

// PersistError はローカルには反映済みだがリモートへの永続化に失敗したことを表す。
type PersistError struct {
	Kind Kind
	ID   string
	Op   Op
	Err  error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("failed to persist %s %s (%s): %v", e.Kind, e.ID, e.Op, e.Err)
}

func (e *PersistError) Unwrap() error { return e.Err }

// Options はStoreの生成オプション。
type Options struct {
	// Now は日付判定に使う時計。nilの場合は time.Now。
	Now func() time.Time
	// NewID はエンティティIDの生成関数。nilの場合はUUIDv4。
	NewID func() string
	// Metrics はメトリクスの記録先。nilの場合は記録しない。
	Metrics metrics.MetricsCollector
	// Auth は SignOut で使う認証プロバイダー。nilの場合はローカルの破棄のみ行う。
	Auth remote.AuthProvider
}

// Store はアプリケーション状態ストア。
// 読み取りは並行に行える。ローカルの変更は呼び出し順に直列化し、
// 同一エンティティへの永続化はエンティティ単位のロックで直列化する。
type Store struct {
	remote  remote.DataStore
	auth    remote.AuthProvider
	now     func() time.Time
	newID   func() string
	metrics metrics.MetricsCollector

	mu           sync.RWMutex
	generation   uint64
	user         *model.User
	profile      model.UserProfile
	tasks        []model.Task
	habits       []model.Habit
	transactions []model.Transaction
	goals        []model.SavingGoal
	debts        []model.Debt

	locks keyedMutex

	subMu sync.Mutex
	subs  map[chan Change]struct{}
}

// New はStoreを生成する。
func New(ds remote.DataStore, opts Options) *Store {
	s := &Store{
		remote:  ds,
		auth:    opts.Auth,
		now:     opts.Now,
		newID:   opts.NewID,
		metrics: opts.Metrics,
		profile: model.DefaultProfile(),
		subs:    make(map[chan Change]struct{}),
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	if s.metrics == nil {
		s.metrics = metrics.Nop{}
	}
	return s
}

// Init はユーザーの全データとプロフィールを読み込む。
// 一部の読み込みに失敗しても読み込めた分は保持し、失敗をまとめて返す。
func (s *Store) Init(ctx context.Context, user model.User) error {
	s.mu.Lock()
	s.generation++
	gen := s.generation
	s.user = &user
	s.resetLocked()
	s.mu.Unlock()

	var errs []error
	tasks, err := s.remote.Tasks().List(ctx, user.ID)
	if err != nil {
		errs = append(errs, fmt.Errorf("failed to load tasks: %w", err))
	}
	habits, err := s.remote.Habits().List(ctx, user.ID)
	if err != nil {
		errs = append(errs, fmt.Errorf("failed to load habits: %w", err))
	}
	transactions, err := s.remote.Transactions().List(ctx, user.ID)
	if err != nil {
		errs = append(errs, fmt.Errorf("failed to load transactions: %w", err))
	}
	goals, err := s.remote.Goals().List(ctx, user.ID)
	if err != nil {
		errs = append(errs, fmt.Errorf("failed to load goals: %w", err))
	}
	debts, err := s.remote.Debts().List(ctx, user.ID)
	if err != nil {
		errs = append(errs, fmt.Errorf("failed to load debts: %w", err))
	}
	profile, err := s.remote.Profile(ctx, user.ID)
	if err != nil {
		errs = append(errs, fmt.Errorf("failed to load profile: %w", err))
		profile = model.DefaultProfile()
	}

	today := s.now()
	for i := range habits {
		habits[i].CompletedDates = model.NormalizeDates(habits[i].CompletedDates)
		habits[i].Streak = model.ComputeStreak(habits[i].CompletedDates, today)
	}
	for i := range debts {
		debts[i].ClampPaid()
	}

	s.mu.Lock()
	// 読み込み中にサインアウトされた場合は破棄する
	if s.generation == gen {
		s.tasks = tasks
		s.habits = habits
		s.transactions = transactions
		s.goals = goals
		s.debts = debts
		s.profile = profile
	}
	s.mu.Unlock()

	slog.Info("store initialized",
		slog.String("user_id", user.ID),
		slog.Int("tasks", len(tasks)),
		slog.Int("habits", len(habits)),
		slog.Int("transactions", len(transactions)),
	)
	s.notify(Change{Kind: KindSession, Op: OpReset})
	return errors.Join(errs...)
}

// Teardown はすべてのローカルデータを破棄する。実行中の永続化の結果は捨てる。
func (s *Store) Teardown() {
	s.mu.Lock()
	s.generation++
	s.user = nil
	s.resetLocked()
	s.mu.Unlock()
	s.notify(Change{Kind: KindSession, Op: OpReset})
}

// SignOut は認証プロバイダーからサインアウトし、ローカルデータを破棄する。
// プロバイダーの失敗にかかわらずローカルデータは破棄する。
func (s *Store) SignOut(ctx context.Context) error {
	var err error
	if s.auth != nil {
		err = s.auth.SignOut(ctx)
	}
	s.Teardown()
	return err
}

func (s *Store) resetLocked() {
	s.profile = model.DefaultProfile()
	s.tasks = nil
	s.habits = nil
	s.transactions = nil
	s.goals = nil
	s.debts = nil
}

// User はサインイン中のユーザーを返す。未サインインの場合はnil。
func (s *Store) User() *model.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

// Profile はプロフィールを返す。
func (s *Store) Profile() model.UserProfile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.profile
}

// Now はストアの時計で現在時刻を返す。
func (s *Store) Now() time.Time {
	return s.now()
}

// Snapshot はある時点の全データのコピー。
type Snapshot struct {
	User         *model.User         `json:"user"`
	Profile      model.UserProfile   `json:"profile"`
	Tasks        []model.Task        `json:"tasks"`
	Habits       []model.Habit       `json:"habits"`
	Transactions []model.Transaction `json:"transactions"`
	Goals        []model.SavingGoal  `json:"goals"`
	Debts        []model.Debt        `json:"debts"`
}

// Snapshot は全データのコピーを返す。
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{
		Profile:      s.profile,
		Tasks:        cloneTasks(s.tasks),
		Habits:       cloneHabits(s.habits),
		Transactions: append([]model.Transaction{}, s.transactions...),
		Goals:        cloneGoals(s.goals),
		Debts:        append([]model.Debt{}, s.debts...),
	}
	if s.user != nil {
		u := *s.user
		snap.User = &u
	}
	return snap
}

// Subscribe は変更通知を受け取るチャネルと解除関数を返す。
// 受信が追いつかない購読者への通知は破棄し、変更操作を待たせない。
func (s *Store) Subscribe() (<-chan Change, func()) {
	ch := make(chan Change, 16)
	s.subMu.Lock()
	s.subs[ch] = struct{}{}
	s.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subs, ch)
			s.subMu.Unlock()
			close(ch)
		})
	}
}

func (s *Store) notify(c Change) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for ch := range s.subs {
		select {
		case ch <- c:
		default:
		}
	}
}

// mutate はサインイン確認のうえ書き込みロック下で fn を実行する。
// 永続化に必要なユーザーIDと世代番号を返す。
func (s *Store) mutate(fn func() error) (string, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil {
		return "", 0, ErrNotSignedIn
	}
	if err := fn(); err != nil {
		return "", 0, err
	}
	return s.user.ID, s.generation, nil
}

// record は変更をメトリクスと購読者へ反映する。
func (s *Store) record(kind Kind, op Op, id string) {
	s.metrics.RecordMutation(string(kind), string(op))
	s.notify(Change{Kind: kind, ID: id, Op: op})
}

func (s *Store) current(gen uint64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation == gen
}

func (s *Store) today() string {
	return model.FormatDate(s.now())
}

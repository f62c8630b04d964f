package store

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// keyedMutex はキーごとの排他ロック。使われなくなったキーは解放する。
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

// lock はキーのロックを取得し、解放関数を返す。
func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*keyedLock)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

// persist はエンティティ単位のロックを取得してリモート呼び出しを行う。
// ロック取得までに破棄（サインアウト）された場合は何もしない。
func (s *Store) persist(ctx context.Context, kind Kind, op Op, id string, gen uint64, call func(ctx context.Context) error) error {
	unlock := s.locks.lock(string(kind) + ":" + id)
	defer unlock()

	if !s.current(gen) {
		return nil
	}

	start := time.Now()
	err := call(ctx)
	s.metrics.RecordPersistLatency(time.Since(start))
	if err != nil {
		s.metrics.RecordPersistFailure(string(kind), string(op))
		slog.Warn("failed to persist change",
			slog.String("kind", string(kind)),
			slog.String("id", id),
			slog.String("op", string(op)),
			slog.String("error", err.Error()),
		)
		return &PersistError{Kind: kind, ID: id, Op: op, Err: err}
	}
	return nil
}

// persistLatest はロック取得後のローカルの最新値を書き込む。
// 先行する変更の永続化が後から追い越しても、最終的にリモートは最新のローカル値になる。
// ロック取得時にローカルから消えていれば書き込まない。
func persistLatest[T any](
	s *Store,
	ctx context.Context,
	kind Kind,
	op Op,
	id string,
	userID string,
	gen uint64,
	lookup func(id string) (T, bool),
	write func(ctx context.Context, userID string, v T) error,
) error {
	return s.persist(ctx, kind, op, id, gen, func(ctx context.Context) error {
		v, ok := lookup(id)
		if !ok {
			return nil
		}
		return write(ctx, userID, v)
	})
}

// indexOf は id に一致する要素の位置を返す。見つからない場合は-1。
func indexOf[T any](items []T, id string, idOf func(T) string) int {
	for i, v := range items {
		if idOf(v) == id {
			return i
		}
	}
	return -1
}

// removeAt は i 番目の要素を取り除いた新しいスライスを返す。
func removeAt[T any](items []T, i int) []T {
	out := make([]T, 0, len(items)-1)
	out = append(out, items[:i]...)
	return append(out, items[i+1:]...)
}

package remote

import (
	"slices"
	"sync"

	"github.com/hitoshi/planify/internal/model"
)

// eventHub は認証イベントの購読者を管理する。
type eventHub struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]func(model.AuthEvent)
}

// subscribe は購読者を登録し、解除関数を返す。解除は何度呼んでもよい。
func (h *eventHub) subscribe(fn func(model.AuthEvent)) func() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs == nil {
		h.subs = make(map[int]func(model.AuthEvent))
	}
	id := h.nextID
	h.nextID++
	h.subs[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
		})
	}
}

// emit は登録順に購読者を呼び出す。コールバックはロック外で実行する。
func (h *eventHub) emit(ev model.AuthEvent) {
	h.mu.Lock()
	ids := make([]int, 0, len(h.subs))
	for id := range h.subs {
		ids = append(ids, id)
	}
	fns := make([]func(model.AuthEvent), 0, len(ids))
	slices.Sort(ids)
	for _, id := range ids {
		fns = append(fns, h.subs[id])
	}
	h.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

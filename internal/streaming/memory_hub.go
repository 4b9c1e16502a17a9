package streaming

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
)

// DefaultBuffer is the per-subscriber channel capacity.
const DefaultBuffer = 64

// Matches reports whether e passes the filter. Empty fields match everything.
func (f EventFilter) Matches(e SessionEvent) bool {
	if f.SessionID != "" && f.SessionID != e.SessionID {
		return false
	}
	return len(f.Types) == 0 || slices.Contains(f.Types, e.Type)
}

type subscription struct {
	ch     chan SessionEvent
	filter EventFilter
}

// MemoryHub fans events out to in-process subscribers. A subscriber that
// falls behind loses events instead of stalling the publisher.
type MemoryHub struct {
	buffer int

	mu     sync.RWMutex
	subs   map[uint64]*subscription
	nextID uint64

	dropped atomic.Uint64
}

// HubOption configures a MemoryHub.
type HubOption func(*MemoryHub)

// WithBuffer sets the per-subscriber channel capacity.
func WithBuffer(n int) HubOption {
	return func(h *MemoryHub) {
		if n > 0 {
			h.buffer = n
		}
	}
}

// NewMemoryHub creates an empty hub.
func NewMemoryHub(opts ...HubOption) *MemoryHub {
	h := &MemoryHub{buffer: DefaultBuffer, subs: make(map[uint64]*subscription)}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Publish delivers event to every matching subscriber without blocking.
func (h *MemoryHub) Publish(ctx context.Context, event SessionEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, s := range h.subs {
		if !s.filter.Matches(event) {
			continue
		}
		select {
		case s.ch <- event:
		default:
			h.dropped.Add(1)
		}
	}
	return nil
}

// Subscribe registers a filtered subscription. It ends, closing the channel,
// when cancel is called or ctx is done, whichever comes first.
func (h *MemoryHub) Subscribe(ctx context.Context, filter EventFilter) (<-chan SessionEvent, func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	s := &subscription{ch: make(chan SessionEvent, h.buffer), filter: filter}
	h.mu.Lock()
	h.nextID++
	id := h.nextID
	h.subs[id] = s
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(s.ch)
		})
	}
	stop := context.AfterFunc(ctx, cancel)
	return s.ch, func() { stop(); cancel() }, nil
}

// Subscribers returns the number of live subscriptions.
func (h *MemoryHub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Dropped returns how many deliveries were skipped because a subscriber was full.
func (h *MemoryHub) Dropped() uint64 { return h.dropped.Load() }

var _ EventHub = (*MemoryHub)(nil)

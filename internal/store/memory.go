package store

import (
	"context"
	"sync"
	"time"
)

// MemoryJournal keeps the journal in process memory. It is the default: nothing
// outlives the session.
type MemoryJournal struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	events   map[string][]*Event
	nextID   int64
}

// NewMemoryJournal creates an empty MemoryJournal.
func NewMemoryJournal() *MemoryJournal {
	return &MemoryJournal{
		sessions: make(map[string]*Session),
		events:   make(map[string][]*Event),
	}
}

func (j *MemoryJournal) OpenSession(_ context.Context, sess *Session) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	cp := *sess
	if cp.StartedAt.IsZero() {
		cp.StartedAt = time.Now().UTC()
	}
	j.sessions[sess.ID] = &cp
	return nil
}

func (j *MemoryJournal) AppendEvent(ctx context.Context, event *Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	j.mu.Lock()
	defer j.mu.Unlock()

	j.nextID++
	event.ID = j.nextID
	event.Sequence = int64(len(j.events[event.SessionID]) + 1)
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	cp := *event
	j.events[event.SessionID] = append(j.events[event.SessionID], &cp)
	return nil
}

func (j *MemoryJournal) Events(_ context.Context, sessionID string, since int64) ([]*Event, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	var out []*Event
	for _, e := range j.events[sessionID] {
		if e.Sequence > since {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (j *MemoryJournal) EventsByType(_ context.Context, sessionID, eventType string) ([]*Event, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	var out []*Event
	for _, e := range j.events[sessionID] {
		if e.Type == eventType {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (j *MemoryJournal) Close() error { return nil }

var _ Journal = (*MemoryJournal)(nil)

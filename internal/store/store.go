package store

import "context"

// EventAppender is the write side of the journal, used by components that emit events.
type EventAppender interface {
	AppendEvent(ctx context.Context, event *Event) error
}

// Journal is the append-only session log.
// All implementations must be safe for concurrent use.
type Journal interface {
	EventAppender

	OpenSession(ctx context.Context, sess *Session) error
	// Events returns the events of a session with sequence > since, ordered by sequence.
	Events(ctx context.Context, sessionID string, since int64) ([]*Event, error)
	// EventsByType returns every event of one type for a session, ordered by sequence.
	EventsByType(ctx context.Context, sessionID, eventType string) ([]*Event, error)

	Close() error
}

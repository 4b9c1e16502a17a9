package streaming

import "context"

// SessionEvent is a real-time event emitted while a session runs:
// toasts, modals, stage transitions and cutting state changes.
type SessionEvent struct {
	SessionID string `json:"session_id"`
	Type      string `json:"event_type"`
	Payload   any    `json:"payload,omitempty"`
}

// EventFilter specifies which events a subscriber wants to receive.
type EventFilter struct {
	SessionID string   `json:"session_id,omitempty"`
	Types     []string `json:"event_types,omitempty"`
}

// Publisher is the write side of an EventHub.
type Publisher interface {
	Publish(ctx context.Context, event SessionEvent) error
}

// EventHub provides pub/sub for real-time session events.
type EventHub interface {
	Publisher
	Subscribe(ctx context.Context, filter EventFilter) (<-chan SessionEvent, func(), error)
}

package store

import (
	"encoding/json"
	"time"
)

// Event is an immutable entry in the session journal.
type Event struct {
	ID        int64           `json:"id"`
	SessionID string          `json:"session_id"`
	Type      string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Sequence  int64           `json:"sequence"`
}

// Session is the journal header row of one controller session.
type Session struct {
	ID        string    `json:"id"`
	ServerURL string    `json:"server_url,omitempty"`
	StartedAt time.Time `json:"started_at"`
}

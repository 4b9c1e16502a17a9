package streaming

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/rendis/papercut/internal/logging"
	"github.com/rendis/papercut/internal/store"
)

// Emitter records one session event. Emit never fails the caller: journal and
// delivery errors are logged and swallowed.
type Emitter interface {
	Emit(ctx context.Context, eventType string, payload any)
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(ctx context.Context, eventType string, payload any)

// Emit calls f.
func (f EmitterFunc) Emit(ctx context.Context, eventType string, payload any) {
	f(ctx, eventType, payload)
}

// Nop discards every event.
var Nop Emitter = EmitterFunc(func(context.Context, string, any) {})

// Bus appends each event to the session journal and then publishes it to the hub.
type Bus struct {
	sessionID string
	journal   store.EventAppender
	hub       Publisher
	logger    *slog.Logger
}

// NewBus creates a Bus for one session. journal and hub may be nil.
func NewBus(sessionID string, journal store.EventAppender, hub Publisher, logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{sessionID: sessionID, journal: journal, hub: hub, logger: logger}
}

// Emit implements Emitter.
func (b *Bus) Emit(ctx context.Context, eventType string, payload any) {
	// Events outlive the operation that raised them: a cancelled request
	// still gets its failure journaled.
	ctx = context.WithoutCancel(ctx)
	log := logging.LogWith(ctx, b.logger)

	if b.journal != nil {
		var raw json.RawMessage
		if payload != nil {
			data, err := json.Marshal(payload)
			if err != nil {
				log.Error("marshal event payload", "event_type", eventType, "error", err)
			} else {
				raw = data
			}
		}
		ev := &store.Event{
			SessionID: b.sessionID,
			Type:      eventType,
			Payload:   raw,
			Timestamp: time.Now().UTC(),
		}
		if err := b.journal.AppendEvent(ctx, ev); err != nil {
			log.Error("append event", "event_type", eventType, "error", err)
		}
	}

	if b.hub != nil {
		err := b.hub.Publish(ctx, SessionEvent{SessionID: b.sessionID, Type: eventType, Payload: payload})
		if err != nil {
			log.Warn("publish event", "event_type", eventType, "error", err)
		}
	}
}

var _ Emitter = (*Bus)(nil)

package mcp

import (
	"context"
	"errors"
	"log/slog"

	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/papercut/internal/notify"
	"github.com/rendis/papercut/internal/streaming"
	"github.com/rendis/papercut/pkg/schema"
)

// ForwardedEvents are the session events pushed to MCP clients.
var ForwardedEvents = []string{
	schema.EventToastShown,
	schema.EventModalOpened,
	schema.EventCuttingState,
	schema.EventHeartbeatFailed,
}

// EventForwarder pushes session events to registered MCP clients as
// notifications/message logging notifications.
type EventForwarder struct {
	mcpServer *server.MCPServer
	clients   *ClientRegistry
	logger    *slog.Logger
}

// NewEventForwarder creates a forwarder.
func NewEventForwarder(mcpServer *server.MCPServer, clients *ClientRegistry, logger *slog.Logger) *EventForwarder {
	return &EventForwarder{mcpServer: mcpServer, clients: clients, logger: logger}
}

// Run forwards events until ctx ends or the channel closes.
func (f *EventForwarder) Run(ctx context.Context, events <-chan streaming.SessionEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			f.Forward(ev)
		}
	}
}

// Forward sends one event to every registered client. Best-effort: a client
// that went away is dropped from the registry.
func (f *EventForwarder) Forward(ev streaming.SessionEvent) {
	params := map[string]any{
		"level":  levelOf(ev),
		"logger": "papercut",
		"data": map[string]any{
			"session_id": ev.SessionID,
			"event_type": ev.Type,
			"payload":    ev.Payload,
		},
	}
	for _, id := range f.clients.Clients() {
		err := f.mcpServer.SendNotificationToSpecificClient(id, "notifications/message", params)
		if errors.Is(err, server.ErrSessionNotFound) {
			f.clients.Remove(id)
			continue
		}
		if err != nil {
			f.logger.Debug("forward event", "client", id, "event_type", ev.Type, "error", err)
		}
	}
}

// levelOf maps an event to an MCP logging level.
func levelOf(ev streaming.SessionEvent) string {
	switch ev.Type {
	case schema.EventModalOpened:
		if m, ok := ev.Payload.(notify.Modal); ok && m.Kind == notify.ModalConfirm {
			return "notice"
		}
		return "error"
	case schema.EventHeartbeatFailed:
		return "warning"
	case schema.EventToastShown:
		if t, ok := ev.Payload.(notify.Toast); ok {
			return severityLevel(t.Severity)
		}
	}
	return "info"
}

func severityLevel(s schema.Severity) string {
	switch s {
	case schema.SeverityDanger:
		return "error"
	case schema.SeverityWarning:
		return "warning"
	default:
		return "info"
	}
}

package logging

import (
	"context"
	"log/slog"
)

type ctxKey int

const (
	sessionIDKey ctxKey = iota
	requestIDKey
	stageKey
)

// correlationKeys maps each context key to the attribute it is logged under,
// in output order.
var correlationKeys = []struct {
	key  ctxKey
	attr string
}{
	{sessionIDKey, "session_id"},
	{requestIDKey, "request_id"},
	{stageKey, "stage"},
}

// WithSessionID tags ctx with the owning session.
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionIDKey, id)
}

// WithRequestID tags ctx with the id of one user-initiated operation.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// WithStage tags ctx with the pipeline stage (generate, analyze, upload, export, cutting).
func WithStage(ctx context.Context, stage string) context.Context {
	return context.WithValue(ctx, stageKey, stage)
}

func value(ctx context.Context, k ctxKey) string {
	v, _ := ctx.Value(k).(string)
	return v
}

// SessionID returns the session tag, or "".
func SessionID(ctx context.Context) string { return value(ctx, sessionIDKey) }

// RequestID returns the request tag, or "".
func RequestID(ctx context.Context) string { return value(ctx, requestIDKey) }

// Stage returns the stage tag, or "".
func Stage(ctx context.Context) string { return value(ctx, stageKey) }

// correlationAttrs collects the non-empty tags carried by ctx.
func correlationAttrs(ctx context.Context) []slog.Attr {
	var attrs []slog.Attr
	for _, c := range correlationKeys {
		if v := value(ctx, c.key); v != "" {
			attrs = append(attrs, slog.String(c.attr, v))
		}
	}
	return attrs
}

// LogWith binds the tags in ctx to logger. Use it with loggers that are not
// wrapped in a CorrelationHandler.
func LogWith(ctx context.Context, logger *slog.Logger) *slog.Logger {
	attrs := correlationAttrs(ctx)
	if len(attrs) == 0 {
		return logger
	}
	args := make([]any, len(attrs))
	for i, a := range attrs {
		args[i] = a
	}
	return logger.With(args...)
}

// CorrelationHandler adds the context tags to every record it handles.
type CorrelationHandler struct {
	inner slog.Handler
}

// NewCorrelationHandler wraps inner.
func NewCorrelationHandler(inner slog.Handler) *CorrelationHandler {
	return &CorrelationHandler{inner: inner}
}

func (h *CorrelationHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *CorrelationHandler) Handle(ctx context.Context, r slog.Record) error {
	r.AddAttrs(correlationAttrs(ctx)...)
	return h.inner.Handle(ctx, r)
}

func (h *CorrelationHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &CorrelationHandler{inner: h.inner.WithAttrs(attrs)}
}

func (h *CorrelationHandler) WithGroup(name string) slog.Handler {
	return &CorrelationHandler{inner: h.inner.WithGroup(name)}
}

// Package notify implements the two user-feedback channels: transient toasts
// that expire on their own and blocking modals that wait for the user.
package notify

import (
	"cmp"
	"context"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/rendis/papercut/internal/logging"
	"github.com/rendis/papercut/internal/streaming"
	"github.com/rendis/papercut/pkg/schema"
)

const (
	DefaultToastTTL     = 3000 * time.Millisecond
	DefaultDismissDelay = 300 * time.Millisecond

	defaultCleanupInterval = 100 * time.Millisecond
)

// Toast is a transient notification.
type Toast struct {
	ID        string          `json:"id"`
	Message   string          `json:"message"`
	Severity  schema.Severity `json:"severity"`
	CreatedAt time.Time       `json:"created_at"`

	seq uint64
}

// ModalKind distinguishes the two blocking dialogs.
type ModalKind string

const (
	ModalConfirm ModalKind = "confirm"
	ModalError   ModalKind = "error"
)

// Modal is a blocking dialog currently on screen.
type Modal struct {
	ID       string    `json:"id"`
	Kind     ModalKind `json:"kind"`
	Message  string    `json:"message"`
	Code     string    `json:"code,omitempty"`
	OpenedAt time.Time `json:"opened_at"`
}

// Decision is the outcome of a confirmation.
type Decision int

const (
	Rejected Decision = iota
	Accepted
)

func (d Decision) String() string {
	if d == Accepted {
		return "accepted"
	}
	return "rejected"
}

// Options configures a Notifier.
type Options struct {
	// ToastTTL is how long a toast stays visible. Defaults to DefaultToastTTL.
	ToastTTL time.Duration
	// DismissDelay is the pause after a modal closes before the caller resumes.
	// Negative disables it; zero means DefaultDismissDelay.
	DismissDelay time.Duration
	// CleanupInterval is how often expired toasts are swept.
	CleanupInterval time.Duration
	Dialog          Dialog
	Events          streaming.Emitter
	Logger          *slog.Logger
	// BaseContext carries correlation values for events raised by expiry.
	BaseContext context.Context
}

// Notifier is the notification subsystem. It never touches business state.
type Notifier struct {
	toasts       *cache.Cache
	ttl          time.Duration
	dismissDelay time.Duration
	dialog       Dialog
	events       streaming.Emitter
	logger       *slog.Logger
	baseCtx      context.Context

	seq    atomic.Uint64
	mu     sync.Mutex
	modals []*Modal
}

// New creates a Notifier.
func New(opts Options) *Notifier {
	if opts.ToastTTL <= 0 {
		opts.ToastTTL = DefaultToastTTL
	}
	switch {
	case opts.DismissDelay == 0:
		opts.DismissDelay = DefaultDismissDelay
	case opts.DismissDelay < 0:
		opts.DismissDelay = 0
	}
	if opts.CleanupInterval <= 0 {
		opts.CleanupInterval = defaultCleanupInterval
	}
	if opts.Dialog == nil {
		opts.Dialog = PresetDialog{}
	}
	if opts.Events == nil {
		opts.Events = streaming.Nop
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.BaseContext == nil {
		opts.BaseContext = context.Background()
	}

	n := &Notifier{
		toasts:       cache.New(opts.ToastTTL, opts.CleanupInterval),
		ttl:          opts.ToastTTL,
		dismissDelay: opts.DismissDelay,
		dialog:       opts.Dialog,
		events:       opts.Events,
		logger:       opts.Logger,
		baseCtx:      opts.BaseContext,
	}
	n.toasts.OnEvicted(func(id string, v any) {
		t, ok := v.(Toast)
		if !ok {
			return
		}
		n.events.Emit(n.baseCtx, schema.EventToastDismissed, map[string]any{
			"id":       id,
			"severity": t.Severity,
		})
	})
	return n
}

// Notify shows a toast. It never blocks.
func (n *Notifier) Notify(ctx context.Context, message string, severity schema.Severity) Toast {
	t := Toast{
		ID:        uuid.NewString(),
		Message:   message,
		Severity:  severity,
		CreatedAt: time.Now(),
		seq:       n.seq.Add(1),
	}
	n.toasts.Set(t.ID, t, n.ttl)
	logging.LogWith(ctx, n.logger).Debug("toast", "severity", severity, "message", message)
	n.events.Emit(ctx, schema.EventToastShown, t)
	return t
}

// Success shows a success toast.
func (n *Notifier) Success(ctx context.Context, message string) Toast {
	return n.Notify(ctx, message, schema.SeveritySuccess)
}

// Warn shows a warning toast.
func (n *Notifier) Warn(ctx context.Context, message string) Toast {
	return n.Notify(ctx, message, schema.SeverityWarning)
}

// Danger shows a danger toast.
func (n *Notifier) Danger(ctx context.Context, message string) Toast {
	return n.Notify(ctx, message, schema.SeverityDanger)
}

// Toasts returns the visible toasts, oldest first.
func (n *Notifier) Toasts() []Toast {
	items := n.toasts.Items()
	out := make([]Toast, 0, len(items))
	for _, it := range items {
		if t, ok := it.Object.(Toast); ok {
			out = append(out, t)
		}
	}
	slices.SortFunc(out, func(a, b Toast) int { return cmp.Compare(a.seq, b.seq) })
	return out
}

// DismissToast hides a toast before it expires.
func (n *Notifier) DismissToast(id string) {
	n.toasts.Delete(id)
}

// Confirm opens a confirmation modal and blocks until the user answers or ctx
// ends. No timeout applies. After the modal closes the dismiss delay elapses
// before the decision is returned.
func (n *Notifier) Confirm(ctx context.Context, message string) (Decision, error) {
	m := n.open(ctx, ModalConfirm, message, "")

	ok, err := n.dialog.Confirm(ctx, message)
	decision := Rejected
	if err == nil && ok {
		decision = Accepted
	}
	n.close(ctx, m, decision.String())
	if err != nil {
		return Rejected, err
	}

	if err := n.wait(ctx); err != nil {
		return Rejected, err
	}
	return decision, nil
}

// ConfirmThen runs exactly one of onAccept or onReject once the user has
// answered and the modal is gone. Either callback may be nil.
func (n *Notifier) ConfirmThen(ctx context.Context, message string, onAccept, onReject func(context.Context) error) error {
	d, err := n.Confirm(ctx, message)
	if err != nil {
		return err
	}
	if d == Accepted {
		if onAccept != nil {
			return onAccept(ctx)
		}
		return nil
	}
	if onReject != nil {
		return onReject(ctx)
	}
	return nil
}

// ReportError opens an error modal showing err. It stays open until DismissError.
func (n *Notifier) ReportError(ctx context.Context, err error) Modal {
	logging.LogWith(ctx, n.logger).Warn("error reported", "code", schema.CodeOf(err), "error", err)
	return *n.open(ctx, ModalError, schema.MessageOf(err), schema.CodeOf(err))
}

// DismissError closes the most recent error modal and waits the dismiss delay.
// It reports whether a modal was closed.
func (n *Notifier) DismissError(ctx context.Context) bool {
	n.mu.Lock()
	var m *Modal
	for i := len(n.modals) - 1; i >= 0; i-- {
		if n.modals[i].Kind == ModalError {
			m = n.modals[i]
			break
		}
	}
	n.mu.Unlock()
	if m == nil {
		return false
	}
	n.close(ctx, m, "dismissed")
	_ = n.wait(ctx)
	return true
}

// Modal returns the topmost open modal.
func (n *Notifier) Modal() (Modal, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.modals) == 0 {
		return Modal{}, false
	}
	return *n.modals[len(n.modals)-1], true
}

// Modals returns every open modal, bottom first.
func (n *Notifier) Modals() []Modal {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]Modal, len(n.modals))
	for i, m := range n.modals {
		out[i] = *m
	}
	return out
}

// Clear drops all toasts and modals without emitting dismissal events.
func (n *Notifier) Clear() {
	n.toasts.Flush()
	n.mu.Lock()
	n.modals = nil
	n.mu.Unlock()
}

func (n *Notifier) open(ctx context.Context, kind ModalKind, message, code string) *Modal {
	m := &Modal{
		ID:       uuid.NewString(),
		Kind:     kind,
		Message:  message,
		Code:     code,
		OpenedAt: time.Now(),
	}
	n.mu.Lock()
	n.modals = append(n.modals, m)
	n.mu.Unlock()
	n.events.Emit(ctx, schema.EventModalOpened, *m)
	return m
}

func (n *Notifier) close(ctx context.Context, m *Modal, outcome string) {
	n.mu.Lock()
	n.modals = slices.DeleteFunc(n.modals, func(x *Modal) bool { return x == m })
	n.mu.Unlock()
	n.events.Emit(ctx, schema.EventModalClosed, map[string]any{
		"id":      m.ID,
		"kind":    m.Kind,
		"outcome": outcome,
	})
}

func (n *Notifier) wait(ctx context.Context) error {
	if n.dismissDelay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(n.dismissDelay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Package session owns one controller session: the artifact store, the page,
// the view, the pipeline, the cutting controller, the exporter and the event
// bus that journals everything they do.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rendis/papercut/internal/artifacts"
	"github.com/rendis/papercut/internal/cutting"
	"github.com/rendis/papercut/internal/export"
	"github.com/rendis/papercut/internal/logging"
	"github.com/rendis/papercut/internal/monitor"
	"github.com/rendis/papercut/internal/notify"
	"github.com/rendis/papercut/internal/pipeline"
	"github.com/rendis/papercut/internal/remote"
	"github.com/rendis/papercut/internal/store"
	"github.com/rendis/papercut/internal/streaming"
	"github.com/rendis/papercut/internal/ui"
	"github.com/rendis/papercut/internal/view"
	"github.com/rendis/papercut/pkg/schema"
)

// MsgResetWhileCutting is returned when a reset is attempted during a cutting task.
const MsgResetWhileCutting = "stop cutting before resetting the page"

// Deps configures a Session. Remote is required; everything else has a default.
type Deps struct {
	Remote  remote.Service
	Journal store.Journal
	Hub     streaming.EventHub
	Dialog  notify.Dialog
	Sink    export.Sink
	Printer export.Printer

	// Heartbeat is a cron spec for the machine probe while cutting. Empty disables it.
	Heartbeat   string
	UploadRules []pipeline.Rule

	ToastTTL     time.Duration
	DismissDelay time.Duration
	ServerURL    string
	Logger       *slog.Logger
}

// Session is one workflow controller instance.
type Session struct {
	id      string
	journal store.Journal
	hub     streaming.EventHub
	bus     *streaming.Bus
	logger  *slog.Logger

	notifier  *notify.Notifier
	store     *artifacts.Store
	page      *ui.Page
	view      *view.Selector
	pipeline  *pipeline.Orchestrator
	cutting   *cutting.Controller
	exporter  *export.Exporter
	heartbeat *monitor.Heartbeat

	closeOnce sync.Once
	closeErr  error
}

// New builds a Session and opens its journal header.
func New(ctx context.Context, d Deps) (*Session, error) {
	if d.Remote == nil {
		return nil, schema.NewError(schema.ErrCodeInvalidInput, "session requires a remote service")
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Journal == nil {
		d.Journal = store.NewMemoryJournal()
	}
	if d.Hub == nil {
		d.Hub = streaming.NewMemoryHub()
	}

	id := uuid.NewString()
	logger := d.Logger.With("session_id", id)
	ctx = logging.WithSessionID(ctx, id)

	if err := d.Journal.OpenSession(ctx, &store.Session{ID: id, ServerURL: d.ServerURL, StartedAt: time.Now().UTC()}); err != nil {
		return nil, schema.NewError(schema.ErrCodeStore, "open session journal").WithCause(err)
	}
	bus := streaming.NewBus(id, d.Journal, d.Hub, logger)

	policy, err := pipeline.NewUploadPolicy(d.UploadRules...)
	if err != nil {
		return nil, err
	}

	s := &Session{
		id:      id,
		journal: d.Journal,
		hub:     d.Hub,
		bus:     bus,
		logger:  logger,
		store:   artifacts.New(),
		page:    ui.NewPage(),
	}
	s.notifier = notify.New(notify.Options{
		ToastTTL:     d.ToastTTL,
		DismissDelay: d.DismissDelay,
		Dialog:       d.Dialog,
		Events:       bus,
		Logger:       logger,
		BaseContext:  logging.WithSessionID(context.Background(), id),
	})
	s.view = view.NewSelector(s.store, s.page, s.notifier, bus)
	s.pipeline = pipeline.New(pipeline.Deps{
		Remote:   d.Remote,
		Store:    s.store,
		Page:     s.page,
		View:     s.view,
		Notifier: s.notifier,
		Policy:   policy,
		Events:   bus,
		Logger:   logger,
	})
	s.exporter = export.New(export.Deps{
		Store:    s.store,
		View:     s.view,
		Notifier: s.notifier,
		Sink:     d.Sink,
		Printer:  d.Printer,
		Events:   bus,
		Logger:   logger,
	})

	cd := cutting.Deps{
		Remote:   d.Remote,
		Store:    s.store,
		Page:     s.page,
		Notifier: s.notifier,
		Events:   bus,
		Logger:   logger,
	}
	if d.Heartbeat != "" {
		// The callbacks resolve s.cutting lazily: the controller needs the monitor first.
		hb, err := monitor.New(d.Heartbeat, d.Remote.CheckConnection,
			func(ctx context.Context, err error) { s.cutting.ConnectionLost(ctx, err) },
			logger,
			monitor.WithRecover(func(ctx context.Context) { s.cutting.ConnectionRestored(ctx) }),
		)
		if err != nil {
			return nil, schema.NewError(schema.ErrCodeInvalidInput, err.Error()).WithCause(err)
		}
		s.heartbeat = hb
		cd.Monitor = hb
	}
	s.cutting = cutting.NewController(cd)

	bus.Emit(ctx, schema.EventSessionStarted, map[string]any{"server_url": d.ServerURL})
	logger.Info("session started")
	return s, nil
}

// ID returns the session ID.
func (s *Session) ID() string { return s.id }

// Notifier exposes the notification subsystem.
func (s *Session) Notifier() *notify.Notifier { return s.notifier }

// Page exposes the page model.
func (s *Session) Page() *ui.Page { return s.page }

// Hub exposes the live event stream.
func (s *Session) Hub() streaming.EventHub { return s.hub }

func (s *Session) ctx(ctx context.Context) context.Context {
	if logging.RequestID(ctx) == "" {
		ctx = logging.WithRequestID(ctx, uuid.NewString())
	}
	return logging.WithSessionID(ctx, s.id)
}

// Generate runs prompt → pattern → analysis.
func (s *Session) Generate(ctx context.Context, prompt string) error {
	return s.pipeline.Generate(s.ctx(ctx), prompt)
}

// Upload feeds a user-provided image into analysis.
func (s *Session) Upload(ctx context.Context, up pipeline.Upload) error {
	return s.pipeline.HandleUpload(s.ctx(ctx), up)
}

// Retry re-runs analysis on the displayed pattern.
func (s *Session) Retry(ctx context.Context) error {
	return s.pipeline.RetryAnalysis(s.ctx(ctx))
}

// SwitchView shows the given surface.
func (s *Session) SwitchView(ctx context.Context, surface schema.Surface) error {
	return s.view.SwitchTo(s.ctx(ctx), surface)
}

// ToggleMode flips the render mode.
func (s *Session) ToggleMode(ctx context.Context) schema.RenderMode {
	return s.view.ToggleRenderMode(s.ctx(ctx))
}

// Download saves the visualization of the current mode.
func (s *Session) Download(ctx context.Context) (string, error) {
	return s.exporter.Download(s.ctx(ctx))
}

// Print prints the visualization of the current mode.
func (s *Session) Print(ctx context.Context) error {
	return s.exporter.Print(s.ctx(ctx))
}

// ExportSteps saves the step text.
func (s *Session) ExportSteps(ctx context.Context) (string, error) {
	return s.exporter.ExportSteps(s.ctx(ctx))
}

// StartCutting checks the machine and dispatches the steps after confirmation.
func (s *Session) StartCutting(ctx context.Context) error {
	return s.cutting.Start(s.ctx(ctx))
}

// PauseCutting toggles pause and resume.
func (s *Session) PauseCutting(ctx context.Context) error {
	return s.cutting.Pause(s.ctx(ctx))
}

// StopCutting ends the task after confirmation.
func (s *Session) StopCutting(ctx context.Context) error {
	return s.cutting.Stop(s.ctx(ctx))
}

// DismissError closes the topmost error modal.
func (s *Session) DismissError(ctx context.Context) bool {
	return s.notifier.DismissError(s.ctx(ctx))
}

// Reset clears all artifacts and returns the page to its initial state.
// It is refused while a cutting task is active.
func (s *Session) Reset(ctx context.Context) error {
	ctx = s.ctx(ctx)
	if err := s.cutting.Reset(); err != nil {
		s.notifier.Notify(ctx, MsgResetWhileCutting, schema.SeverityWarning)
		return schema.NewError(schema.ErrCodeInvalidTransition, MsgResetWhileCutting).WithCause(err)
	}
	s.store.Reset()
	s.page.Reset()
	s.view.Reset()
	s.notifier.Clear()
	s.bus.Emit(ctx, schema.EventSessionReset, nil)
	logging.LogWith(ctx, s.logger).Info("session reset")
	return nil
}

// Status is a point-in-time view of the whole session.
type Status struct {
	SessionID     string              `json:"session_id"`
	View          schema.ViewState    `json:"view"`
	Cutting       schema.CuttingState `json:"cutting"`
	HasPattern    bool                `json:"has_pattern"`
	Steps         []schema.Step       `json:"steps,omitempty"`
	HasRaster     bool                `json:"has_raster"`
	HasVector     bool                `json:"has_vector"`
	Toasts        []notify.Toast      `json:"toasts,omitempty"`
	Modals        []notify.Modal      `json:"modals,omitempty"`
	Page          ui.Snapshot         `json:"page"`
	HeartbeatLive bool                `json:"heartbeat_live"`
}

// Status returns the current session snapshot.
func (s *Session) Status() Status {
	snap := s.store.Snapshot()
	st := Status{
		SessionID:  s.id,
		View:       s.view.State(),
		Cutting:    s.cutting.State(),
		HasPattern: snap.HasPattern(),
		Steps:      snap.Steps.Steps,
		HasRaster:  snap.Visualization.Raster != "",
		HasVector:  snap.Visualization.Vector != "",
		Toasts:     s.notifier.Toasts(),
		Modals:     s.notifier.Modals(),
		Page:       s.page.Snapshot(),
	}
	if s.heartbeat != nil {
		st.HeartbeatLive = s.heartbeat.Running()
	}
	return st
}

// Journal returns the recorded events after sequence since.
func (s *Session) Journal(ctx context.Context, since int64) ([]*store.Event, error) {
	events, err := s.journal.Events(ctx, s.id, since)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeStore, "read session journal").WithCause(err)
	}
	return events, nil
}

// Subscribe streams live events of this session, optionally limited to types.
func (s *Session) Subscribe(ctx context.Context, types ...string) (<-chan streaming.SessionEvent, func(), error) {
	return s.hub.Subscribe(ctx, streaming.EventFilter{SessionID: s.id, Types: types})
}

// Close stops the heartbeat and closes the journal.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		if s.heartbeat != nil {
			s.heartbeat.Stop()
		}
		s.notifier.Clear()
		s.closeErr = s.journal.Close()
		s.logger.Info("session closed")
	})
	return s.closeErr
}

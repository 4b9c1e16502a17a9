package cutting

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/rendis/papercut/internal/artifacts"
	"github.com/rendis/papercut/internal/logging"
	"github.com/rendis/papercut/internal/notify"
	"github.com/rendis/papercut/internal/remote"
	"github.com/rendis/papercut/internal/streaming"
	"github.com/rendis/papercut/internal/ui"
	"github.com/rendis/papercut/pkg/schema"
)

// User-facing messages.
const (
	MsgConfirmStart   = "Start cutting?"
	MsgConfirmStop    = "Stop cutting?"
	MsgNoSteps        = "there are no cutting steps to execute"
	MsgAlreadyRunning = "a cutting task is already running"
	MsgNoActiveTask   = "no active cutting task"
	MsgDispatched     = "cutting instructions sent to the machine"
	MsgPaused         = "cutting paused"
	MsgResumed        = "cutting resumed"
	MsgStopped        = "cutting stopped"
	MsgConnectionLost = "machine connection lost"
	MsgBusy           = "a cutting request is already in progress"
)

// Notifier is the part of the notification subsystem the controller uses.
type Notifier interface {
	Notify(ctx context.Context, message string, severity schema.Severity) notify.Toast
	ReportError(ctx context.Context, err error) notify.Modal
	Confirm(ctx context.Context, message string) (notify.Decision, error)
}

// Monitor watches the machine while a task is active.
type Monitor interface {
	Start(ctx context.Context)
	Stop()
}

// Deps holds the collaborators of a Controller.
type Deps struct {
	Remote   remote.Service
	Store    *artifacts.Store
	Page     *ui.Page
	Notifier Notifier
	Monitor  Monitor
	Events   streaming.Emitter
	Logger   *slog.Logger
}

// Controller maps the start, pause and stop controls onto the FSM and the
// hardware endpoints.
type Controller struct {
	fsm       *FSM
	remote    remote.Service
	store     *artifacts.Store
	page      *ui.Page
	notifier  Notifier
	monitor   Monitor
	events    streaming.Emitter
	logger    *slog.Logger
	connected atomic.Bool
}

// NewController creates a Controller in the idle state.
func NewController(d Deps) *Controller {
	if d.Events == nil {
		d.Events = streaming.Nop
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	c := &Controller{
		fsm:      NewFSM(d.Events),
		remote:   d.Remote,
		store:    d.Store,
		page:     d.Page,
		notifier: d.Notifier,
		monitor:  d.Monitor,
		events:   d.Events,
		logger:   d.Logger,
	}
	c.wireHooks()
	return c
}

// wireHooks keeps the controls and the monitor in step with the state.
func (c *Controller) wireHooks() {
	entered := func(ctx context.Context, from, to schema.CuttingState) error {
		c.page.Disable(ui.ControlStart)
		c.page.Enable(ui.ControlPause)
		c.page.Enable(ui.ControlStop)
		if c.monitor != nil {
			c.monitor.Start(ctx)
		}
		return nil
	}
	left := func(_ context.Context, from, to schema.CuttingState) error {
		c.page.Enable(ui.ControlStart)
		c.page.Disable(ui.ControlPause)
		c.page.Disable(ui.ControlStop)
		c.page.SetLabel(ui.ControlPause, ui.LabelPause)
		if c.monitor != nil {
			c.monitor.Stop()
		}
		return nil
	}
	c.fsm.OnAfter(schema.CuttingIdle, schema.CuttingActive, entered)
	c.fsm.OnAfter(schema.CuttingActive, schema.CuttingIdle, left)
	c.fsm.OnAfter(schema.CuttingActive, schema.CuttingStopped, left)
	c.fsm.OnAfter(schema.CuttingPaused, schema.CuttingStopped, left)
	c.fsm.OnAfter(schema.CuttingActive, schema.CuttingPaused, func(_ context.Context, from, to schema.CuttingState) error {
		c.page.SetLabel(ui.ControlPause, ui.LabelResume)
		return nil
	})
	c.fsm.OnAfter(schema.CuttingPaused, schema.CuttingActive, func(_ context.Context, from, to schema.CuttingState) error {
		c.page.SetLabel(ui.ControlPause, ui.LabelPause)
		return nil
	})
}

// State returns the current cutting state.
func (c *Controller) State() schema.CuttingState {
	return c.fsm.State()
}

// Start checks the machine, asks for confirmation and dispatches the step list.
// A stopped task is re-armed only once the start is confirmed.
func (c *Controller) Start(ctx context.Context) error {
	ctx = logging.WithStage(ctx, "cutting")
	log := logging.LogWith(ctx, c.logger)

	state := c.fsm.State()
	if state.InProgress() {
		c.notifier.Notify(ctx, MsgAlreadyRunning, schema.SeverityWarning)
		return schema.NewError(schema.ErrCodeInvalidTransition, MsgAlreadyRunning)
	}

	steps := c.store.Steps()
	if steps.Empty() {
		c.notifier.Notify(ctx, MsgNoSteps, schema.SeverityWarning)
		return schema.NewError(schema.ErrCodeNoArtifact, MsgNoSteps)
	}

	if !c.page.TryDisable(ui.ControlStart) {
		c.notifier.Notify(ctx, MsgBusy, schema.SeverityWarning)
		return schema.NewError(schema.ErrCodeBusy, MsgBusy)
	}
	dispatching := false
	defer func() {
		if !dispatching {
			c.page.Enable(ui.ControlStart)
		}
	}()

	if err := c.remote.CheckConnection(ctx); err != nil {
		c.connected.Store(false)
		log.Warn("machine unreachable", "error", err)
		c.notifier.ReportError(ctx, err)
		return err
	}
	c.connected.Store(true)

	decision, err := c.notifier.Confirm(ctx, MsgConfirmStart)
	if err != nil {
		return err
	}
	if decision != notify.Accepted {
		log.Info("cutting start rejected")
		return nil
	}

	if state == schema.CuttingStopped {
		if _, err := c.fsm.Fire(ctx, EventRearm, Guard{}); err != nil {
			return err
		}
	}
	if _, err := c.fsm.Fire(ctx, EventStart, c.guard(steps)); err != nil {
		c.notifier.Notify(ctx, schema.MessageOf(err), schema.SeverityWarning)
		return err
	}
	dispatching = true

	if err := c.remote.SendSteps(ctx, steps); err != nil {
		log.Warn("dispatch failed", "error", err)
		c.notifier.ReportError(ctx, err)
		// Only a still-running task reverts; a concurrent stop already moved on.
		if c.fsm.State() == schema.CuttingActive {
			_, _ = c.fsm.Fire(ctx, EventDispatchFailed, Guard{})
		}
		return err
	}

	c.events.Emit(ctx, schema.EventCuttingDispatched, map[string]any{"steps": steps.Len()})
	c.notifier.Notify(ctx, MsgDispatched, schema.SeveritySuccess)
	return nil
}

// Pause toggles between cutting and paused. Outside those states it only warns.
func (c *Controller) Pause(ctx context.Context) error {
	ctx = logging.WithStage(ctx, "cutting")

	switch c.fsm.State() {
	case schema.CuttingActive:
		if _, err := c.fsm.Fire(ctx, EventPause, c.guard(c.store.Steps())); err != nil {
			c.notifier.Notify(ctx, schema.MessageOf(err), schema.SeverityWarning)
			return err
		}
		c.notifier.Notify(ctx, MsgPaused, schema.SeveritySuccess)
		return nil
	case schema.CuttingPaused:
		if _, err := c.fsm.Fire(ctx, EventResume, c.guard(c.store.Steps())); err != nil {
			c.notifier.Notify(ctx, schema.MessageOf(err), schema.SeverityWarning)
			return err
		}
		c.notifier.Notify(ctx, MsgResumed, schema.SeveritySuccess)
		return nil
	default:
		c.notifier.Notify(ctx, MsgNoActiveTask, schema.SeverityWarning)
		return schema.NewError(schema.ErrCodeInvalidTransition, MsgNoActiveTask)
	}
}

// Stop asks for confirmation and ends the active task.
func (c *Controller) Stop(ctx context.Context) error {
	ctx = logging.WithStage(ctx, "cutting")

	if !c.fsm.State().InProgress() {
		c.notifier.Notify(ctx, MsgNoActiveTask, schema.SeverityWarning)
		return schema.NewError(schema.ErrCodeInvalidTransition, MsgNoActiveTask)
	}

	decision, err := c.notifier.Confirm(ctx, MsgConfirmStop)
	if err != nil {
		return err
	}
	if decision != notify.Accepted {
		return nil
	}

	if _, err := c.fsm.Fire(ctx, EventStop, Guard{}); err != nil {
		// The task ended while the dialog was open.
		c.notifier.Notify(ctx, MsgNoActiveTask, schema.SeverityWarning)
		return err
	}
	c.notifier.Notify(ctx, MsgStopped, schema.SeveritySuccess)
	return nil
}

// ConnectionLost is the heartbeat failure callback. It warns and never
// changes the cutting state.
func (c *Controller) ConnectionLost(ctx context.Context, err error) {
	c.connected.Store(false)
	c.events.Emit(ctx, schema.EventHeartbeatFailed, map[string]any{"error": schema.MessageOf(err)})
	c.notifier.Notify(ctx, MsgConnectionLost, schema.SeverityWarning)
}

// ConnectionRestored is the heartbeat recovery callback.
func (c *Controller) ConnectionRestored(context.Context) {
	c.connected.Store(true)
}

// Reset returns to idle and restores the controls. Refused while a task runs.
func (c *Controller) Reset() error {
	if c.fsm.State().InProgress() {
		return schema.NewError(schema.ErrCodeInvalidTransition, MsgAlreadyRunning)
	}
	c.fsm.Reset()
	return nil
}

// guard builds the transition guard input. A lost heartbeat does not block
// pause or resume: connectivity was proven when the task started.
func (c *Controller) guard(steps schema.StepList) Guard {
	return Guard{Steps: steps.Len(), Connected: c.connected.Load() || c.fsm.State().InProgress()}
}

package cutting

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/papercut/internal/artifacts"
	"github.com/rendis/papercut/internal/logging"
	"github.com/rendis/papercut/internal/notify"
	"github.com/rendis/papercut/internal/ui"
	"github.com/rendis/papercut/pkg/schema"
)

// machine is a scriptable remote.Service for the hardware endpoints.
type machine struct {
	checkErr error
	sendErr  error
	onSend   func()

	checks atomic.Int32
	sends  atomic.Int32
}

func (m *machine) GeneratePattern(context.Context, string) (schema.Pattern, error) {
	return "", errors.New("not used")
}

func (m *machine) AnalyzeSteps(context.Context, schema.Pattern) (*schema.AnalysisResult, error) {
	return nil, errors.New("not used")
}

func (m *machine) CheckConnection(context.Context) error {
	m.checks.Add(1)
	return m.checkErr
}

func (m *machine) SendSteps(context.Context, schema.StepList) error {
	m.sends.Add(1)
	if m.onSend != nil {
		m.onSend()
	}
	return m.sendErr
}

// fakeMonitor counts Start and Stop calls.
type fakeMonitor struct {
	starts, stops atomic.Int32
	onStart       func()
}

func (f *fakeMonitor) Start(context.Context) {
	f.starts.Add(1)
	if f.onStart != nil {
		f.onStart()
	}
}

func (f *fakeMonitor) Stop() { f.stops.Add(1) }

type rig struct {
	ctl      *Controller
	hw       *machine
	store    *artifacts.Store
	page     *ui.Page
	notifier *notify.Notifier
	monitor  *fakeMonitor
	events   *recorder
}

func newRig(t *testing.T, accept bool, steps int) *rig {
	t.Helper()
	r := &rig{
		hw:      &machine{},
		store:   artifacts.New(),
		page:    ui.NewPage(),
		monitor: &fakeMonitor{},
		events:  &recorder{},
	}
	r.notifier = notify.New(notify.Options{
		Dialog:       notify.PresetDialog{Default: accept},
		DismissDelay: -1,
		Logger:       logging.Discard(),
	})
	if steps > 0 {
		list := make([]schema.Step, steps)
		for i := range list {
			list[i] = schema.Step{Index: i + 1, Description: "cut along the line"}
		}
		tok := r.store.BeginAnalysis()
		require.True(t, r.store.CommitAnalysis(tok, schema.AnalysisResult{Steps: schema.StepList{Steps: list}}))
	}
	r.ctl = NewController(Deps{
		Remote:   r.hw,
		Store:    r.store,
		Page:     r.page,
		Notifier: r.notifier,
		Monitor:  r.monitor,
		Events:   r.events,
		Logger:   logging.Discard(),
	})
	return r
}

func (r *rig) lastToast(t *testing.T) notify.Toast {
	t.Helper()
	toasts := r.notifier.Toasts()
	require.NotEmpty(t, toasts)
	return toasts[len(toasts)-1]
}

func (r *rig) assertIdleControls(t *testing.T) {
	t.Helper()
	assert.True(t, r.page.Control(ui.ControlStart).Enabled)
	assert.False(t, r.page.Control(ui.ControlPause).Enabled)
	assert.False(t, r.page.Control(ui.ControlStop).Enabled)
	assert.Equal(t, ui.LabelPause, r.page.Control(ui.ControlPause).Label)
}

func TestStart_Dispatches(t *testing.T) {
	r := newRig(t, true, 3)
	ctx := context.Background()

	require.NoError(t, r.ctl.Start(ctx))

	assert.Equal(t, schema.CuttingActive, r.ctl.State())
	assert.Equal(t, int32(1), r.hw.checks.Load())
	assert.Equal(t, int32(1), r.hw.sends.Load())
	assert.Equal(t, int32(1), r.monitor.starts.Load())
	assert.False(t, r.page.Control(ui.ControlStart).Enabled)
	assert.True(t, r.page.Control(ui.ControlPause).Enabled)
	assert.True(t, r.page.Control(ui.ControlStop).Enabled)
	assert.Equal(t, MsgDispatched, r.lastToast(t).Message)
	assert.Equal(t, 1, r.events.count(schema.EventCuttingDispatched))
}

func TestStart_EmptyStepsNeverDispatches(t *testing.T) {
	r := newRig(t, true, 0)

	err := r.ctl.Start(context.Background())
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeNoArtifact))
	assert.Equal(t, schema.CuttingIdle, r.ctl.State())
	assert.Zero(t, r.hw.checks.Load())
	assert.Zero(t, r.hw.sends.Load())

	toast := r.lastToast(t)
	assert.Equal(t, MsgNoSteps, toast.Message)
	assert.Equal(t, schema.SeverityWarning, toast.Severity)
	r.assertIdleControls(t)
}

func TestStart_ConnectivityFailureOpensModal(t *testing.T) {
	r := newRig(t, true, 2)
	r.hw.checkErr = schema.NewError(schema.ErrCodeConnectivity, "the cutting machine is not connected")

	err := r.ctl.Start(context.Background())
	require.Error(t, err)
	assert.Equal(t, schema.CuttingIdle, r.ctl.State())
	assert.Zero(t, r.hw.sends.Load())

	modal, ok := r.notifier.Modal()
	require.True(t, ok)
	assert.Equal(t, notify.ModalError, modal.Kind)
	assert.Equal(t, "the cutting machine is not connected", modal.Message)
	r.assertIdleControls(t)
}

func TestStart_RejectedConfirmationStaysIdle(t *testing.T) {
	r := newRig(t, false, 2)

	require.NoError(t, r.ctl.Start(context.Background()))
	assert.Equal(t, schema.CuttingIdle, r.ctl.State())
	assert.Equal(t, int32(1), r.hw.checks.Load())
	assert.Zero(t, r.hw.sends.Load())
	assert.Zero(t, r.monitor.starts.Load())
	r.assertIdleControls(t)
}

func TestStart_DispatchFailureReverts(t *testing.T) {
	r := newRig(t, true, 2)
	r.hw.sendErr = schema.NewError(schema.ErrCodeDispatchFailed, "sending to the cutting machine failed")

	err := r.ctl.Start(context.Background())
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeDispatchFailed))
	assert.Equal(t, schema.CuttingIdle, r.ctl.State())
	assert.Equal(t, int32(1), r.monitor.stops.Load())

	modal, ok := r.notifier.Modal()
	require.True(t, ok)
	assert.Equal(t, schema.ErrCodeDispatchFailed, modal.Code)
	r.assertIdleControls(t)
}

func TestStart_StopDuringDispatchSkipsRevert(t *testing.T) {
	r := newRig(t, true, 2)
	ctx := context.Background()
	r.hw.sendErr = errors.New("link reset")
	r.hw.onSend = func() {
		require.NoError(t, r.ctl.Stop(ctx))
	}

	require.Error(t, r.ctl.Start(ctx))
	assert.Equal(t, schema.CuttingStopped, r.ctl.State())
	r.assertIdleControls(t)
}

func TestStart_WhileRunningWarns(t *testing.T) {
	r := newRig(t, true, 2)
	ctx := context.Background()
	require.NoError(t, r.ctl.Start(ctx))

	err := r.ctl.Start(ctx)
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeInvalidTransition))
	assert.Equal(t, int32(1), r.hw.sends.Load())
	assert.Equal(t, MsgAlreadyRunning, r.lastToast(t).Message)
}

func TestPause_TwiceReturnsToCutting(t *testing.T) {
	r := newRig(t, true, 2)
	ctx := context.Background()
	require.NoError(t, r.ctl.Start(ctx))

	require.NoError(t, r.ctl.Pause(ctx))
	assert.Equal(t, schema.CuttingPaused, r.ctl.State())
	assert.Equal(t, ui.LabelResume, r.page.Control(ui.ControlPause).Label)
	assert.Equal(t, MsgPaused, r.lastToast(t).Message)

	require.NoError(t, r.ctl.Pause(ctx))
	assert.Equal(t, schema.CuttingActive, r.ctl.State())
	assert.Equal(t, ui.LabelPause, r.page.Control(ui.ControlPause).Label)
	assert.Equal(t, MsgResumed, r.lastToast(t).Message)
}

func TestPauseAndStop_FromIdleOnlyWarn(t *testing.T) {
	r := newRig(t, true, 2)
	ctx := context.Background()

	for _, op := range []func(context.Context) error{r.ctl.Pause, r.ctl.Stop} {
		err := op(ctx)
		require.Error(t, err)
		assert.True(t, schema.IsCode(err, schema.ErrCodeInvalidTransition))
		assert.Equal(t, schema.CuttingIdle, r.ctl.State())
		assert.Equal(t, MsgNoActiveTask, r.lastToast(t).Message)
	}
	assert.Zero(t, r.events.count(schema.EventCuttingState))
}

func TestStop_ConfirmedFromPaused(t *testing.T) {
	r := newRig(t, true, 2)
	ctx := context.Background()
	require.NoError(t, r.ctl.Start(ctx))
	require.NoError(t, r.ctl.Pause(ctx))

	require.NoError(t, r.ctl.Stop(ctx))
	assert.Equal(t, schema.CuttingStopped, r.ctl.State())
	assert.Equal(t, int32(1), r.monitor.stops.Load())
	assert.Equal(t, MsgStopped, r.lastToast(t).Message)
	r.assertIdleControls(t)
}

func TestStop_RejectedKeepsCutting(t *testing.T) {
	r := newRig(t, true, 2)
	require.NoError(t, r.ctl.Start(context.Background()))

	ctx := notify.WithAnswer(context.Background(), false)
	require.NoError(t, r.ctl.Stop(ctx))
	assert.Equal(t, schema.CuttingActive, r.ctl.State())
	assert.Zero(t, r.monitor.stops.Load())
}

func TestStart_RearmsAfterStop(t *testing.T) {
	r := newRig(t, true, 2)
	ctx := context.Background()
	require.NoError(t, r.ctl.Start(ctx))
	require.NoError(t, r.ctl.Stop(ctx))

	require.NoError(t, r.ctl.Start(ctx))
	assert.Equal(t, schema.CuttingActive, r.ctl.State())
	assert.Equal(t, int32(2), r.hw.sends.Load())
}

func TestStart_StoppedRearmsOnlyWhenConfirmed(t *testing.T) {
	r := newRig(t, true, 2)
	ctx := context.Background()
	require.NoError(t, r.ctl.Start(ctx))
	require.NoError(t, r.ctl.Stop(ctx))

	require.NoError(t, r.ctl.Start(notify.WithAnswer(ctx, false)))
	assert.Equal(t, schema.CuttingStopped, r.ctl.State())

	r.hw.checkErr = schema.NewError(schema.ErrCodeConnectivity, "the cutting machine is not connected")
	require.Error(t, r.ctl.Start(ctx))
	assert.Equal(t, schema.CuttingStopped, r.ctl.State())
	assert.Equal(t, int32(1), r.hw.sends.Load())
	r.assertIdleControls(t)
}

func TestStart_MonitorStartsWithTransition(t *testing.T) {
	r := newRig(t, true, 2)
	ctx := context.Background()
	var order []string
	r.monitor.onStart = func() {
		order = append(order, "start")
		if r.ctl.fsm.mu.TryLock() {
			r.ctl.fsm.mu.Unlock()
			t.Error("monitor started outside the transition")
		}
	}
	r.hw.onSend = func() {
		require.NoError(t, r.ctl.Stop(ctx))
		order = append(order, "stopped")
	}

	require.NoError(t, r.ctl.Start(ctx))
	assert.Equal(t, []string{"start", "stopped"}, order)
	assert.Equal(t, schema.CuttingStopped, r.ctl.State())
	assert.Equal(t, r.monitor.starts.Load(), r.monitor.stops.Load())
}

func TestConnectionLost_WarnsWithoutStateChange(t *testing.T) {
	r := newRig(t, true, 2)
	ctx := context.Background()
	require.NoError(t, r.ctl.Start(ctx))

	r.ctl.ConnectionLost(ctx, errors.New("timeout"))
	assert.Equal(t, schema.CuttingActive, r.ctl.State())
	assert.Equal(t, MsgConnectionLost, r.lastToast(t).Message)
	assert.Equal(t, 1, r.events.count(schema.EventHeartbeatFailed))

	// A lost heartbeat still allows pausing the running task.
	require.NoError(t, r.ctl.Pause(ctx))
	assert.Equal(t, schema.CuttingPaused, r.ctl.State())
}

func TestReset_RefusedWhileCutting(t *testing.T) {
	r := newRig(t, true, 2)
	ctx := context.Background()
	require.NoError(t, r.ctl.Start(ctx))

	err := r.ctl.Reset()
	require.Error(t, err)
	assert.Equal(t, schema.CuttingActive, r.ctl.State())

	require.NoError(t, r.ctl.Stop(ctx))
	require.NoError(t, r.ctl.Reset())
	assert.Equal(t, schema.CuttingIdle, r.ctl.State())
}

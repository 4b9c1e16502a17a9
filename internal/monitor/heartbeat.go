// Package monitor probes the cutting machine while a cutting task runs.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultSchedule probes every ten seconds.
const DefaultSchedule = "@every 10s"

// Probe checks the machine once.
type Probe func(ctx context.Context) error

// Heartbeat runs Probe on a cron schedule between Start and Stop. A probe
// failure is reported once per outage through onFailure; it never changes
// any workflow state.
type Heartbeat struct {
	schedule  cron.Schedule
	probe     Probe
	onFailure func(ctx context.Context, err error)
	onRecover func(ctx context.Context)
	logger    *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// Option configures a Heartbeat.
type Option func(*Heartbeat)

// WithRecover registers a callback for the first successful probe after a failure.
func WithRecover(fn func(ctx context.Context)) Option {
	return func(h *Heartbeat) { h.onRecover = fn }
}

// Parse validates a schedule expression: five-field cron, an optional leading
// seconds field, or a descriptor such as "@every 10s".
func Parse(spec string) (cron.Schedule, error) {
	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	sched, err := parser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("parse heartbeat schedule %q: %w", spec, err)
	}
	return sched, nil
}

// New creates a Heartbeat. An empty spec means DefaultSchedule.
func New(spec string, probe Probe, onFailure func(ctx context.Context, err error), logger *slog.Logger, opts ...Option) (*Heartbeat, error) {
	if spec == "" {
		spec = DefaultSchedule
	}
	sched, err := Parse(spec)
	if err != nil {
		return nil, err
	}
	return NewWithSchedule(sched, probe, onFailure, logger, opts...), nil
}

// NewWithSchedule creates a Heartbeat on an already parsed schedule.
func NewWithSchedule(sched cron.Schedule, probe Probe, onFailure func(ctx context.Context, err error), logger *slog.Logger, opts ...Option) *Heartbeat {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Heartbeat{
		schedule:  sched,
		probe:     probe,
		onFailure: onFailure,
		logger:    logger,
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Start launches the probe loop. Starting a running heartbeat is a no-op.
func (h *Heartbeat) Start(ctx context.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.done != nil {
		return
	}

	// The loop outlives the request that started cutting.
	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	h.cancel = cancel
	h.done = make(chan struct{})
	go h.loop(loopCtx, h.done)
	h.logger.Debug("heartbeat started")
}

// Stop ends the loop and waits for an in-flight probe to finish.
func (h *Heartbeat) Stop() {
	h.mu.Lock()
	cancel, done := h.cancel, h.done
	h.cancel, h.done = nil, nil
	h.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	h.logger.Debug("heartbeat stopped")
}

// Running reports whether the loop is active.
func (h *Heartbeat) Running() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.done != nil
}

func (h *Heartbeat) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	failing := false
	for {
		now := time.Now()
		timer := time.NewTimer(h.schedule.Next(now).Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		err := h.probe(ctx)
		if ctx.Err() != nil {
			return
		}
		switch {
		case err != nil && !failing:
			failing = true
			h.logger.Warn("heartbeat probe failed", slog.String("error", err.Error()))
			if h.onFailure != nil {
				h.onFailure(ctx, err)
			}
		case err != nil:
			h.logger.Debug("heartbeat probe still failing", slog.String("error", err.Error()))
		case failing:
			failing = false
			h.logger.Info("heartbeat recovered")
			if h.onRecover != nil {
				h.onRecover(ctx)
			}
		}
	}
}

// Package cutting drives the cutting machine through its task lifecycle.
package cutting

import (
	"context"
	"sync"

	"github.com/rendis/papercut/internal/expressions"
	"github.com/rendis/papercut/internal/streaming"
	"github.com/rendis/papercut/pkg/schema"
)

// Event is an input to the cutting state machine.
type Event string

const (
	EventStart          Event = "start"
	EventPause          Event = "pause"
	EventResume         Event = "resume"
	EventStop           Event = "stop"
	EventDispatchFailed Event = "dispatch_failed"
	EventRearm          Event = "rearm"
)

// GuardExpr must hold for every transition into cutting or paused.
const GuardExpr = "steps > 0 && connected"

type transitionKey struct {
	from  schema.CuttingState
	event Event
}

// Transitions is the cutting state table.
var Transitions = map[transitionKey]schema.CuttingState{
	{schema.CuttingIdle, EventStart}:            schema.CuttingActive,
	{schema.CuttingActive, EventDispatchFailed}: schema.CuttingIdle,
	{schema.CuttingActive, EventPause}:          schema.CuttingPaused,
	{schema.CuttingPaused, EventResume}:         schema.CuttingActive,
	{schema.CuttingActive, EventStop}:           schema.CuttingStopped,
	{schema.CuttingPaused, EventStop}:           schema.CuttingStopped,
	{schema.CuttingStopped, EventRearm}:         schema.CuttingIdle,
}

// Guard is the data the transition guard is evaluated against.
type Guard struct {
	Steps     int
	Connected bool
}

func (g Guard) env() map[string]any {
	return map[string]any{"steps": g.Steps, "connected": g.Connected}
}

// TransitionHook is called before or after a state transition.
type TransitionHook func(ctx context.Context, from, to schema.CuttingState) error

type hookKey struct {
	from, to schema.CuttingState
}

// FSM holds the cutting state and applies the transition table.
type FSM struct {
	mu     sync.Mutex
	state  schema.CuttingState
	guard  *expressions.ExprEngine
	events streaming.Emitter
	before map[hookKey][]TransitionHook
	after  map[hookKey][]TransitionHook
}

// NewFSM creates an FSM in the idle state that emits a cutting_state event per transition.
func NewFSM(events streaming.Emitter) *FSM {
	if events == nil {
		events = streaming.Nop
	}
	return &FSM{
		state:  schema.CuttingIdle,
		guard:  expressions.NewExprEngine(),
		events: events,
		before: make(map[hookKey][]TransitionHook),
		after:  make(map[hookKey][]TransitionHook),
	}
}

// OnBefore registers a hook called before a transition. A hook error aborts it.
// Hooks run with the FSM locked and must not call back into it.
func (f *FSM) OnBefore(from, to schema.CuttingState, hook TransitionHook) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := hookKey{from, to}
	f.before[key] = append(f.before[key], hook)
}

// OnAfter registers a hook called after a transition.
func (f *FSM) OnAfter(from, to schema.CuttingState, hook TransitionHook) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := hookKey{from, to}
	f.after[key] = append(f.after[key], hook)
}

// State returns the current state.
func (f *FSM) State() schema.CuttingState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Fire applies ev to the current state. It returns the new state, or an
// INVALID_TRANSITION error leaving the state unchanged.
func (f *FSM) Fire(ctx context.Context, ev Event, g Guard) (schema.CuttingState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	from := f.state
	to, ok := Transitions[transitionKey{from, ev}]
	if !ok {
		return from, schema.NewErrorf(schema.ErrCodeInvalidTransition,
			"invalid cutting transition: %s on %s", ev, from).
			WithDetails(map[string]any{"from": string(from), "event": string(ev)})
	}

	if to == schema.CuttingActive || to == schema.CuttingPaused {
		allowed, err := expressions.EvaluateBool(ctx, f.guard, GuardExpr, g.env())
		if err != nil {
			return from, err
		}
		if !allowed {
			return from, schema.NewErrorf(schema.ErrCodeInvalidTransition,
				"cutting transition %s -> %s refused: %s", from, to, GuardExpr).
				WithDetails(map[string]any{"from": string(from), "to": string(to), "steps": g.Steps, "connected": g.Connected})
		}
	}

	key := hookKey{from, to}
	for _, hook := range f.before[key] {
		if err := hook(ctx, from, to); err != nil {
			return from, err
		}
	}

	f.state = to
	f.events.Emit(ctx, schema.EventCuttingState, map[string]any{
		"from":  from,
		"to":    to,
		"event": ev,
	})

	for _, hook := range f.after[key] {
		if err := hook(ctx, from, to); err != nil {
			return to, err
		}
	}
	return to, nil
}

// Reset forces the idle state without emitting an event.
func (f *FSM) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = schema.CuttingIdle
}

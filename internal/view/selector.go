// Package view decides which artifact surface is displayed and how the step
// visualization is drawn.
package view

import (
	"context"
	"fmt"
	"sync"

	"github.com/rendis/papercut/internal/artifacts"
	"github.com/rendis/papercut/internal/notify"
	"github.com/rendis/papercut/internal/streaming"
	"github.com/rendis/papercut/internal/ui"
	"github.com/rendis/papercut/pkg/schema"
)

// Warning messages for switches whose prerequisites are missing.
const (
	MsgNoPattern = "generate the pattern first"
	MsgNoSteps   = "generate the steps first"
	MsgNoVector  = "generate the steps first to get the vector data"
)

const visualizationAlt = "Cutting steps visualization"

// Notifier is the part of the notification subsystem the selector uses.
type Notifier interface {
	Notify(ctx context.Context, message string, severity schema.Severity) notify.Toast
}

// Selector owns the ViewState.
type Selector struct {
	store    *artifacts.Store
	page     *ui.Page
	notifier Notifier
	events   streaming.Emitter

	mu    sync.Mutex
	state schema.ViewState
}

// NewSelector creates a Selector showing the pattern surface in raster mode.
func NewSelector(store *artifacts.Store, page *ui.Page, notifier Notifier, events streaming.Emitter) *Selector {
	if events == nil {
		events = streaming.Nop
	}
	return &Selector{
		store:    store,
		page:     page,
		notifier: notifier,
		events:   events,
		state:    initialState(),
	}
}

func initialState() schema.ViewState {
	return schema.ViewState{Active: schema.SurfacePattern, Mode: schema.RenderRaster}
}

// State returns the current ViewState.
func (s *Selector) State() schema.ViewState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Reset returns to the initial ViewState.
func (s *Selector) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = initialState()
}

// SwitchTo shows surface. Missing prerequisites produce a warning and a
// NO_ARTIFACT error; the state is then left untouched.
func (s *Selector) SwitchTo(ctx context.Context, surface schema.Surface) error {
	if surface != schema.SurfaceSteps && surface != schema.SurfacePattern {
		return schema.NewErrorf(schema.ErrCodeInvalidInput, "unknown surface %q", surface)
	}
	snap := s.store.Snapshot()

	var missing string
	switch {
	case !snap.HasPattern():
		missing = MsgNoPattern
	case surface == schema.SurfaceSteps && snap.Steps.Empty():
		missing = MsgNoSteps
	case surface == schema.SurfacePattern && snap.Visualization.Vector == "":
		missing = MsgNoVector
	}
	if missing != "" {
		s.notifier.Notify(ctx, missing, schema.SeverityWarning)
		return schema.NewError(schema.ErrCodeNoArtifact, missing).
			WithDetails(map[string]any{"surface": surface})
	}

	s.mu.Lock()
	s.state.Active = surface
	mode := s.state.Mode
	s.mu.Unlock()

	panel := ui.PanelFor(surface)
	s.page.ShowPanel(panel)
	if surface == schema.SurfacePattern {
		s.page.SetRegion(ui.RegionPatternContainer, snap.Visualization.Vector)
	} else {
		s.page.SetRegion(ui.RegionStepsList, Render(mode, snap.Visualization))
	}
	s.page.ScrollTo(panel)

	s.events.Emit(ctx, schema.EventViewSwitched, map[string]any{"surface": surface})
	return nil
}

// ToggleRenderMode flips raster and vector, re-renders the steps list and
// updates the indicator. It returns the new mode.
func (s *Selector) ToggleRenderMode(ctx context.Context) schema.RenderMode {
	s.mu.Lock()
	if s.state.Mode == schema.RenderVector {
		s.state.Mode = schema.RenderRaster
	} else {
		s.state.Mode = schema.RenderVector
	}
	mode := s.state.Mode
	s.mu.Unlock()

	s.page.SetIndicator(ui.IndicatorText(mode))
	s.page.SetRegion(ui.RegionStepsList, Render(mode, s.store.Visualization()))
	s.events.Emit(ctx, schema.EventRenderModeToggled, map[string]any{"mode": mode})
	return mode
}

// RenderSteps redraws the steps list in the current mode.
func (s *Selector) RenderSteps() {
	s.page.SetRegion(ui.RegionStepsList, Render(s.State().Mode, s.store.Visualization()))
}

// Render returns the steps list markup of vis in mode. It never fails: absent
// data renders the placeholder.
func Render(mode schema.RenderMode, vis schema.Visualization) string {
	switch {
	case mode == schema.RenderRaster && vis.Raster != "":
		return fmt.Sprintf(`<div class="visualization-container"><img src="%s" alt="%s" class="visualization-image"></div>`,
			ui.DataURL("image/png", vis.Raster), visualizationAlt)
	case mode == schema.RenderVector && vis.Vector != "":
		return `<div class="svg-container">` + vis.Vector + `</div>`
	default:
		return `<p class="text-center">` + ui.NoDataText + `</p>`
	}
}

// Package ui is the page model every workflow component renders into: content
// regions, action controls, the two display panels and the mode indicator.
package ui

import (
	"maps"
	"sync"

	"github.com/rendis/papercut/pkg/schema"
)

// Region is a content area whose markup is replaced wholesale.
type Region string

const (
	RegionPatternImage     Region = "pattern_image"
	RegionStepsList        Region = "steps_list"
	RegionPatternContainer Region = "pattern_container"
)

// Control is a user action trigger.
type Control string

const (
	ControlGenerate      Control = "generate"
	ControlRetry         Control = "retry"
	ControlUpload        Control = "upload"
	ControlSwitchSteps   Control = "switch_steps"
	ControlSwitchPattern Control = "switch_pattern"
	ControlToggleMode    Control = "toggle_mode"
	ControlStart         Control = "start"
	ControlPause         Control = "pause"
	ControlStop          Control = "stop"
)

// Panel is one of the two mutually exclusive display panels.
type Panel string

const (
	PanelPattern Panel = "pattern_view"
	PanelSteps   Panel = "steps_view"
)

// PanelFor maps a surface to its panel.
func PanelFor(s schema.Surface) Panel {
	if s == schema.SurfaceSteps {
		return PanelSteps
	}
	return PanelPattern
}

// Default control labels.
const (
	LabelGenerate   = "Generate"
	LabelGenerating = "Generating..."
	LabelPause      = "Pause"
	LabelResume     = "Resume"
)

// ControlState is the rendered state of one control.
type ControlState struct {
	Enabled bool   `json:"enabled"`
	Label   string `json:"label"`
	Active  bool   `json:"active,omitempty"`
}

// Snapshot is a copy of the page.
type Snapshot struct {
	Regions         map[Region]string        `json:"regions"`
	Controls        map[Control]ControlState `json:"controls"`
	VisiblePanel    Panel                    `json:"visible_panel"`
	ResultsVisible  bool                     `json:"results_visible"`
	ControlsVisible bool                     `json:"controls_visible"`
	Indicator       string                   `json:"indicator"`
	ScrollTarget    Panel                    `json:"scroll_target,omitempty"`
}

// Page is the page model. Safe for concurrent use.
type Page struct {
	mu              sync.Mutex
	regions         map[Region]string
	controls        map[Control]*ControlState
	visiblePanel    Panel
	resultsVisible  bool
	controlsVisible bool
	indicator       string
	scrollTarget    Panel
	patternImage    schema.Pattern
}

// NewPage returns a page in its initial state.
func NewPage() *Page {
	p := &Page{}
	p.reset()
	return p
}

func (p *Page) reset() {
	p.regions = map[Region]string{
		RegionPatternImage:     "",
		RegionStepsList:        "",
		RegionPatternContainer: "",
	}
	p.controls = map[Control]*ControlState{
		ControlGenerate:      {Enabled: true, Label: LabelGenerate},
		ControlRetry:         {Enabled: true, Label: "Retry analysis"},
		ControlUpload:        {Enabled: true, Label: "Upload image"},
		ControlSwitchSteps:   {Enabled: true, Label: "Steps view"},
		ControlSwitchPattern: {Enabled: true, Label: "Pattern view", Active: true},
		ControlToggleMode:    {Enabled: true, Label: "Toggle view"},
		ControlStart:         {Enabled: true, Label: "Start cutting"},
		ControlPause:         {Enabled: false, Label: LabelPause},
		ControlStop:          {Enabled: false, Label: "Stop cutting"},
	}
	p.visiblePanel = PanelPattern
	p.resultsVisible = false
	p.controlsVisible = false
	p.indicator = IndicatorText(schema.RenderRaster)
	p.scrollTarget = ""
	p.patternImage = ""
}

// Reset restores the initial state.
func (p *Page) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reset()
}

// SetRegion replaces the markup of r.
func (p *Page) SetRegion(r Region, markup string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.regions[r] = markup
}

// Region returns the markup of r.
func (p *Page) Region(r Region) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.regions[r]
}

// TryDisable claims c for an in-flight operation. It fails when c is already
// disabled, so at most one operation per control runs at a time.
func (p *Page) TryDisable(c Control) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	st := p.control(c)
	if !st.Enabled {
		return false
	}
	st.Enabled = false
	return true
}

// SetEnabled enables or disables c.
func (p *Page) SetEnabled(c Control, enabled bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.control(c).Enabled = enabled
}

// Enable enables c.
func (p *Page) Enable(c Control) { p.SetEnabled(c, true) }

// Disable disables c.
func (p *Page) Disable(c Control) { p.SetEnabled(c, false) }

// SetLabel changes the label of c.
func (p *Page) SetLabel(c Control, label string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.control(c).Label = label
}

// Control returns the state of c.
func (p *Page) Control(c Control) ControlState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return *p.control(c)
}

// ShowPanel makes panel the only visible panel and marks its switch button active.
func (p *Page) ShowPanel(panel Panel) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.visiblePanel = panel
	p.control(ControlSwitchSteps).Active = panel == PanelSteps
	p.control(ControlSwitchPattern).Active = panel == PanelPattern
}

// VisiblePanel returns the panel on screen.
func (p *Page) VisiblePanel() Panel {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.visiblePanel
}

// ShowResults reveals the result and control sections.
func (p *Page) ShowResults() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resultsVisible = true
	p.controlsVisible = true
}

// SetIndicator sets the render mode indicator text.
func (p *Page) SetIndicator(text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.indicator = text
}

// ScrollTo records the panel last scrolled into view.
func (p *Page) ScrollTo(panel Panel) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.scrollTarget = panel
}

// RenderPattern puts img markup for pattern into the pattern region and
// remembers the image as the one on screen.
func (p *Page) RenderPattern(mime string, pattern schema.Pattern, alt string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.regions[RegionPatternImage] = PatternImage(mime, pattern, alt)
	p.patternImage = pattern
}

// ClearPattern replaces the pattern region with markup that shows no image.
func (p *Page) ClearPattern(markup string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.regions[RegionPatternImage] = markup
	p.patternImage = ""
}

// RenderedPattern returns the image currently rendered in the pattern region.
func (p *Page) RenderedPattern() schema.Pattern {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.patternImage
}

// Snapshot returns a copy of the page.
func (p *Page) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	controls := make(map[Control]ControlState, len(p.controls))
	for k, v := range p.controls {
		controls[k] = *v
	}
	return Snapshot{
		Regions:         maps.Clone(p.regions),
		Controls:        controls,
		VisiblePanel:    p.visiblePanel,
		ResultsVisible:  p.resultsVisible,
		ControlsVisible: p.controlsVisible,
		Indicator:       p.indicator,
		ScrollTarget:    p.scrollTarget,
	}
}

// control returns the state of c, creating it for unknown controls. Caller holds mu.
func (p *Page) control(c Control) *ControlState {
	st, ok := p.controls[c]
	if !ok {
		st = &ControlState{Enabled: true, Label: string(c)}
		p.controls[c] = st
	}
	return st
}

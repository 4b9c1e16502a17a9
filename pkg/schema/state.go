package schema

// Severity classifies a transient notification.
type Severity string

const (
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityDanger  Severity = "danger"
)

// Surface is one of the two mutually exclusive display panels.
type Surface string

const (
	SurfacePattern Surface = "pattern"
	SurfaceSteps   Surface = "steps"
)

// RenderMode selects how the step visualization is drawn.
type RenderMode string

const (
	RenderRaster RenderMode = "raster"
	RenderVector RenderMode = "vector"
)

// Label returns the display name of the mode.
func (m RenderMode) Label() string {
	switch m {
	case RenderRaster:
		return "Raster view"
	case RenderVector:
		return "Vector view"
	default:
		return string(m)
	}
}

// ViewState is the pure UI state of the view selector.
type ViewState struct {
	Active Surface    `json:"active_surface"`
	Mode   RenderMode `json:"render_mode"`
}

// CuttingState is the hardware-control lifecycle state.
type CuttingState string

const (
	CuttingIdle    CuttingState = "idle"
	CuttingActive  CuttingState = "cutting"
	CuttingPaused  CuttingState = "paused"
	CuttingStopped CuttingState = "stopped"
)

// InProgress reports whether a cutting task is running or paused.
func (s CuttingState) InProgress() bool {
	return s == CuttingActive || s == CuttingPaused
}

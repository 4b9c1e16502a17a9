package schema

// Event type constants for the session journal and the live event stream.
const (
	EventSessionStarted = "session_started"
	EventSessionReset   = "session_reset"

	EventGenerationStarted   = "generation_started"
	EventGenerationSucceeded = "generation_succeeded"
	EventGenerationFailed    = "generation_failed"
	EventPatternUploaded     = "pattern_uploaded"

	EventAnalysisStarted   = "analysis_started"
	EventAnalysisSucceeded = "analysis_succeeded"
	EventAnalysisFailed    = "analysis_failed"
	EventResultDiscarded   = "result_discarded"

	EventViewSwitched      = "view_switched"
	EventRenderModeToggled = "render_mode_toggled"

	EventCuttingState      = "cutting_state"
	EventCuttingDispatched = "cutting_dispatched"
	EventHeartbeatFailed   = "heartbeat_failed"

	EventExported = "exported"
	EventPrinted  = "printed"

	EventToastShown     = "toast_shown"
	EventToastDismissed = "toast_dismissed"
	EventModalOpened    = "modal_opened"
	EventModalClosed    = "modal_closed"
)

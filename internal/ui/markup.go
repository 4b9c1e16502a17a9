package ui

import (
	"fmt"
	"html"
	"strings"

	"github.com/rendis/papercut/pkg/schema"
)

// Placeholder texts.
const (
	LoadingText      = "Loading, please wait..."
	ReanalyzingText  = "Re-analyzing steps..."
	NoDataText       = "No visualization data"
	PatternFailed    = "Pattern failed to load"
	StepsFailed      = "Steps failed to load."
	NoImageToAnalyze = "Cannot analyze steps: no image data."
)

// IndicatorText is the label of the render mode indicator.
func IndicatorText(mode schema.RenderMode) string {
	return "Current view: " + mode.Label()
}

// Loading is the busy placeholder shown while a remote call runs.
func Loading(text string) string {
	return `<div class="loading-placeholder"><div class="spinner-large"></div><p>` +
		html.EscapeString(text) + `</p></div>`
}

// PatternImage is the img markup of a base64 pattern of type mime.
func PatternImage(mime string, p schema.Pattern, alt string) string {
	return fmt.Sprintf(`<img src="%s" alt="%s">`, DataURL(mime, string(p)), html.EscapeString(alt))
}

// DataURL builds a base64 data URL.
func DataURL(mime, b64 string) string {
	return "data:" + mime + ";base64," + b64
}

// ErrorText is an inline failure message.
func ErrorText(msg string) string {
	return `<p class="text-center error-message">` + html.EscapeString(msg) + `</p>`
}

// UploadFallback is the pattern region content after a failed generation: the
// failure text plus a file picker limited to images.
func UploadFallback() string {
	var b strings.Builder
	b.WriteString(`<div class="error-container">`)
	b.WriteString(ErrorText(PatternFailed))
	b.WriteString(`<div class="file-upload"><input type="file" id="patternUpload" accept="image/*" class="file-input">`)
	b.WriteString(`<label for="patternUpload" class="file-label">Upload image</label></div>`)
	b.WriteString(`</div>`)
	return b.String()
}

// RetryAffordance is the steps region content after a failed analysis.
func RetryAffordance(msg string) string {
	return `<div class="error-container">` +
		ErrorText("Step analysis failed: "+msg) +
		`<button class="btn btn-primary" data-control="retry">Retry analysis</button></div>`
}

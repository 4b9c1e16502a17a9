package schema

import "encoding/json"

// Pattern is the base64-encoded raster image of the generated or uploaded artwork.
type Pattern string

// Step is one instruction unit in the cutting sequence.
type Step struct {
	Index       int    `json:"step"`
	Description string `json:"description"`
}

// StepList is the ordered cutting sequence produced by analysis.
// Raw holds the step array exactly as the analysis service returned it and is
// what gets dispatched to the hardware.
type StepList struct {
	Steps []Step          `json:"steps"`
	Raw   json.RawMessage `json:"-"`
}

// Len returns the number of steps.
func (l StepList) Len() int { return len(l.Steps) }

// Empty reports whether the list holds no steps.
func (l StepList) Empty() bool { return len(l.Steps) == 0 }

// Payload returns the body sent to the hardware endpoint.
func (l StepList) Payload() ([]byte, error) {
	if len(l.Raw) > 0 {
		return l.Raw, nil
	}
	return json.Marshal(l.Steps)
}

// Visualization holds the two alternate renderings of the step sequence.
// Raster is a base64 PNG, Vector is SVG markup. Either may be empty.
type Visualization struct {
	Raster string `json:"raster,omitempty"`
	Vector string `json:"vector,omitempty"`
}

// AnalysisResult is the decoded outcome of one successful analysis call.
type AnalysisResult struct {
	Steps  StepList
	Raster string
	Vector string
}

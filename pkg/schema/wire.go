package schema

import "encoding/json"

// GenerateRequest is the body of POST /generate_pattern.
type GenerateRequest struct {
	Prompt string `json:"prompt"`
}

// GenerateResponse is the success body of POST /generate_pattern.
type GenerateResponse struct {
	Image string `json:"image"`
}

// AnalyzeRequest is the body of POST /analyze_steps.
type AnalyzeRequest struct {
	Image string `json:"image"`
}

// AnalyzeResponse is the success body of POST /analyze_steps.
type AnalyzeResponse struct {
	Steps         json.RawMessage `json:"steps"`
	SVGData       *string         `json:"svg_data,omitempty"`
	Visualization *string         `json:"visualization,omitempty"`
}

// WireStep is a single element of AnalyzeResponse.Steps.
// Step is kept as a number so integral floats such as 1.0 decode.
type WireStep struct {
	Step        *json.Number `json:"step,omitempty"`
	Description string       `json:"description"`
}

// ErrorResponse is the failure body returned by every endpoint.
type ErrorResponse struct {
	Error string `json:"error"`
}

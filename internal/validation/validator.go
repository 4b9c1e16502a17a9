package validation

import "github.com/rendis/papercut/pkg/schema"

// Decoder turns raw remote-service bodies into typed values, failing fast with a
// typed DECODE_ERROR when the body does not match the endpoint's response schema.
type Decoder interface {
	DecodeGenerate(body []byte) (*schema.GenerateResponse, error)
	DecodeAnalyze(body []byte) (*schema.AnalysisResult, error)
	DecodeError(body []byte) (*schema.ErrorResponse, error)
}

package schema

import (
	"errors"
	"fmt"
)

// Error codes for structured error reporting.
const (
	ErrCodeInvalidInput      = "INVALID_INPUT"
	ErrCodeInvalidUpload     = "INVALID_UPLOAD"
	ErrCodeGenerationFailed  = "GENERATION_FAILED"
	ErrCodeAnalysisFailed    = "ANALYSIS_FAILED"
	ErrCodeNoArtifact        = "NO_ARTIFACT"
	ErrCodeMissingArtifact   = "MISSING_ARTIFACT"
	ErrCodeConnectivity      = "CONNECTIVITY_FAILED"
	ErrCodeDispatchFailed    = "DISPATCH_FAILED"
	ErrCodeGenericFailure    = "GENERIC_FAILURE"
	ErrCodeDecode            = "DECODE_ERROR"
	ErrCodeValidation        = "VALIDATION_ERROR"
	ErrCodeEvaluation        = "EVALUATION_ERROR"
	ErrCodeInvalidTransition = "INVALID_TRANSITION"
	ErrCodeBusy              = "BUSY"
	ErrCodeStore             = "STORE_ERROR"
)

// Error is the structured error type returned by every papercut operation.
type Error struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	Cause   error          `json:"-"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error.
func NewError(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// NewErrorf creates a new Error with a formatted message.
func NewErrorf(code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithCause attaches an underlying cause.
func (e *Error) WithCause(err error) *Error {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *Error) WithDetails(details map[string]any) *Error {
	e.Details = details
	return e
}

// CodeOf returns the code of the outermost *Error in err's chain, or "" if none.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code string) bool {
	return err != nil && CodeOf(err) == code
}

// MessageOf returns the human-facing message of err: the *Error message when
// present, otherwise err.Error().
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

// Package remote talks to the papercut generation, analysis and hardware service.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/rendis/papercut/internal/expressions"
	"github.com/rendis/papercut/internal/logging"
	"github.com/rendis/papercut/internal/validation"
	"github.com/rendis/papercut/pkg/schema"
)

// Endpoint paths on the remote service.
const (
	PathGenerate        = "/generate_pattern"
	PathAnalyze         = "/analyze_steps"
	PathCheckConnection = "/check_arduino_connection"
	PathSendSteps       = "/send_to_arduino"
)

const (
	defaultMaxResponseBody = 32 * 1024 * 1024 // 32MB, visualizations are inline base64
	defaultTimeout         = 30 * time.Second

	// errorQuery pulls the human-readable text out of a failure payload.
	errorQuery = `.error // .message // empty`
)

// Service is the remote surface the pipeline and cutting controller depend on.
type Service interface {
	GeneratePattern(ctx context.Context, prompt string) (schema.Pattern, error)
	AnalyzeSteps(ctx context.Context, image schema.Pattern) (*schema.AnalysisResult, error)
	CheckConnection(ctx context.Context) error
	SendSteps(ctx context.Context, steps schema.StepList) error
}

// Config configures the HTTP client.
type Config struct {
	BaseURL         string
	Timeout         time.Duration
	MaxResponseBody int64
	// HTTPClient overrides the default client, mostly for tests.
	HTTPClient *http.Client
}

// Client is the HTTP implementation of Service.
type Client struct {
	baseURL string
	maxBody int64
	http    *http.Client
	decoder validation.Decoder
	jq      *expressions.GoJQEngine
	logger  *slog.Logger
}

// New creates a Client. Failure bodies are read with jq, success bodies go through decoder.
func New(cfg Config, decoder validation.Decoder, logger *slog.Logger) *Client {
	if cfg.MaxResponseBody <= 0 {
		cfg.MaxResponseBody = defaultMaxResponseBody
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		maxBody: cfg.MaxResponseBody,
		http:    hc,
		decoder: decoder,
		jq:      expressions.NewGoJQEngine(),
		logger:  logger,
	}
}

// GeneratePattern asks the service to render prompt into a pattern image.
func (c *Client) GeneratePattern(ctx context.Context, prompt string) (schema.Pattern, error) {
	body, err := c.do(ctx, http.MethodPost, PathGenerate, schema.GenerateRequest{Prompt: prompt},
		schema.ErrCodeGenerationFailed, "generation failed")
	if err != nil {
		return "", err
	}
	resp, err := c.decoder.DecodeGenerate(body)
	if err != nil {
		return "", stageError(schema.ErrCodeGenerationFailed, err)
	}
	return schema.Pattern(resp.Image), nil
}

// AnalyzeSteps asks the service to derive the cutting steps and visualizations of image.
func (c *Client) AnalyzeSteps(ctx context.Context, image schema.Pattern) (*schema.AnalysisResult, error) {
	body, err := c.do(ctx, http.MethodPost, PathAnalyze, schema.AnalyzeRequest{Image: string(image)},
		schema.ErrCodeAnalysisFailed, "analysis failed")
	if err != nil {
		return nil, err
	}
	result, err := c.decoder.DecodeAnalyze(body)
	if err != nil {
		return nil, stageError(schema.ErrCodeAnalysisFailed, err)
	}
	return result, nil
}

// CheckConnection reports whether the cutting machine is reachable. Any 2xx is success.
func (c *Client) CheckConnection(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodGet, PathCheckConnection, nil,
		schema.ErrCodeConnectivity, "the cutting machine is not connected")
	return err
}

// SendSteps dispatches steps to the cutting machine, verbatim as returned by analysis.
func (c *Client) SendSteps(ctx context.Context, steps schema.StepList) error {
	payload, err := steps.Payload()
	if err != nil {
		return schema.NewError(schema.ErrCodeDispatchFailed, "encode cutting steps").WithCause(err)
	}
	_, err = c.do(ctx, http.MethodPost, PathSendSteps, json.RawMessage(payload),
		schema.ErrCodeDispatchFailed, "sending to the cutting machine failed")
	return err
}

// do performs one request. Transport errors and non-2xx statuses are returned as
// *schema.Error carrying code. The service's own message is preferred over fallback.
func (c *Client) do(ctx context.Context, method, path string, in any, code, fallback string) ([]byte, error) {
	var reader io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return nil, schema.NewErrorf(code, "%s: encode request", fallback).WithCause(err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, schema.NewErrorf(code, "%s: build request", fallback).WithCause(err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	log := logging.LogWith(ctx, c.logger)
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		log.Warn("remote request failed", "method", method, "path", path, "error", err)
		return nil, schema.NewError(code, fallback).
			WithCause(err).
			WithDetails(map[string]any{"path": path})
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody))
	if err != nil {
		return nil, schema.NewErrorf(code, "%s: read response", fallback).WithCause(err)
	}
	log.Debug("remote request", "method", method, "path", path,
		"status", resp.StatusCode, "duration_ms", time.Since(start).Milliseconds())

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := c.failureMessage(ctx, body, fallback)
		return nil, schema.NewError(code, msg).WithDetails(map[string]any{
			"path":        path,
			"status_code": resp.StatusCode,
		})
	}
	return body, nil
}

// failureMessage extracts `error` (or `message`) from a failure body. Bodies that
// are not JSON objects yield fallback.
func (c *Client) failureMessage(ctx context.Context, body []byte, fallback string) string {
	if len(bytes.TrimSpace(body)) == 0 {
		return fallback
	}
	out, err := c.jq.EvaluateJSON(ctx, errorQuery, body)
	if err != nil {
		return fallback
	}
	switch v := out.(type) {
	case string:
		if strings.TrimSpace(v) != "" {
			return v
		}
	case nil:
	default:
		return fmt.Sprint(v)
	}
	return fallback
}

// stageError re-codes a DECODE_ERROR with the stage's code, keeping its message.
func stageError(code string, err error) error {
	return schema.NewError(code, schema.MessageOf(err)).WithCause(err)
}

var _ Service = (*Client)(nil)

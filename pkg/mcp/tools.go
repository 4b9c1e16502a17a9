package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/papercut/internal/notify"
	"github.com/rendis/papercut/internal/pipeline"
	"github.com/rendis/papercut/pkg/schema"
)

// handleGenerate runs prompt → pattern → analysis.
func (s *PapercutServer) handleGenerate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	prompt, err := req.RequireString("prompt")
	if err != nil {
		return mcp.NewToolResultError("prompt is required"), nil
	}
	s.captureSession(ctx)

	return s.outcome(s.session.Generate(ctx, prompt), nil)
}

// handleUpload feeds a local file or inline base64 image into analysis.
func (s *PapercutServer) handleUpload(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.captureSession(ctx)

	up, err := readUpload(req.GetString("path", ""), req.GetString("data", ""), req.GetString("name", ""), req.GetString("content_type", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return s.outcome(s.session.Upload(ctx, up), map[string]any{
		"name":         up.Name,
		"content_type": up.ContentType,
		"size_bytes":   len(up.Data),
	})
}

// handleRetry re-runs analysis.
func (s *PapercutServer) handleRetry(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.captureSession(ctx)
	return s.outcome(s.session.Retry(ctx), nil)
}

// handleView switches the displayed surface.
func (s *PapercutServer) handleView(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	surface, err := req.RequireString("surface")
	if err != nil {
		return mcp.NewToolResultError("surface is required"), nil
	}
	s.captureSession(ctx)

	return s.outcome(s.session.SwitchView(ctx, schema.Surface(surface)), nil)
}

// handleToggleMode flips the render mode.
func (s *PapercutServer) handleToggleMode(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.captureSession(ctx)
	mode := s.session.ToggleMode(ctx)
	return s.outcome(nil, map[string]any{"render_mode": mode, "indicator": mode.Label()})
}

// handleDownload saves the current visualization.
func (s *PapercutServer) handleDownload(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.captureSession(ctx)
	loc, err := s.session.Download(ctx)
	return s.outcome(err, map[string]any{"location": loc})
}

// handlePrint prints the current visualization.
func (s *PapercutServer) handlePrint(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.captureSession(ctx)
	return s.outcome(s.session.Print(ctx), nil)
}

// handleExportSteps saves the step text.
func (s *PapercutServer) handleExportSteps(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.captureSession(ctx)
	loc, err := s.session.ExportSteps(ctx)
	return s.outcome(err, map[string]any{"location": loc})
}

// handleCutting presses one of the cutting controls. The confirm argument
// answers the dialog the control opens.
func (s *PapercutServer) handleCutting(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	action, err := req.RequireString("action")
	if err != nil {
		return mcp.NewToolResultError("action is required"), nil
	}
	accept, err := parseConfirm(req.GetString("confirm", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	s.captureSession(ctx)
	ctx = notify.WithAnswer(ctx, accept)

	switch action {
	case "start":
		err = s.session.StartCutting(ctx)
	case "pause":
		err = s.session.PauseCutting(ctx)
	case "stop":
		err = s.session.StopCutting(ctx)
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown cutting action: %s", action)), nil
	}
	return s.outcome(err, map[string]any{"action": action, "confirmed": accept})
}

// handleDismiss closes the topmost error modal.
func (s *PapercutServer) handleDismiss(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.captureSession(ctx)
	return s.outcome(nil, map[string]any{"dismissed": s.session.DismissError(ctx)})
}

// handleStatus returns the session snapshot and, on request, journal events.
func (s *PapercutServer) handleStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.captureSession(ctx)

	result := map[string]any{"status": s.session.Status()}
	if raw := req.GetString("journal_since", ""); raw != "" {
		since, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || since < 0 {
			return mcp.NewToolResultError("journal_since must be a non-negative integer"), nil
		}
		events, jErr := s.session.Journal(ctx, since)
		if jErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("journal query failed: %v", jErr)), nil
		}
		result["journal"] = events
	}
	return marshalResult(result)
}

// outcome turns an operation result into a tool result. Failures become tool
// errors carrying the code; successes report the status alongside extra.
func (s *PapercutServer) outcome(err error, extra map[string]any) (*mcp.CallToolResult, error) {
	if err != nil {
		return mcp.NewToolResultError(errorText(err)), nil
	}
	result := map[string]any{"ok": true, "status": s.session.Status()}
	for k, v := range extra {
		result[k] = v
	}
	return marshalResult(result)
}

func errorText(err error) string {
	if code := schema.CodeOf(err); code != "" {
		return fmt.Sprintf("%s: %s", code, schema.MessageOf(err))
	}
	return err.Error()
}

func parseConfirm(v string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "no", "n", "false":
		return false, nil
	case "yes", "y", "true":
		return true, nil
	default:
		return false, fmt.Errorf("confirm must be yes or no, got %q", v)
	}
}

// readUpload loads an upload from path, or from inline base64 data.
func readUpload(path, data, name, contentType string) (pipeline.Upload, error) {
	var up pipeline.Upload
	switch {
	case path != "":
		var err error
		if up, err = pipeline.ReadUpload(path); err != nil {
			return up, err
		}
	case data != "":
		content, err := base64.StdEncoding.DecodeString(data)
		if err != nil {
			return up, fmt.Errorf("data is not valid base64: %w", err)
		}
		up = pipeline.Upload{Name: name, Data: content}
	default:
		return up, fmt.Errorf("path or data is required")
	}
	if name != "" {
		up.Name = name
	}
	up.ContentType = contentType
	if up.ContentType == "" {
		up.ContentType = pipeline.DetectContentType(up.Name, up.Data)
	}
	return up, nil
}

func (s *PapercutServer) captureSession(ctx context.Context) {
	if session := server.ClientSessionFromContext(ctx); session != nil {
		s.clients.Register(session.SessionID())
	}
}

// marshalResult converts a value to a JSON text tool result.
func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}

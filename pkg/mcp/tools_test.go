package mcp

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/papercut/internal/export"
	"github.com/rendis/papercut/internal/logging"
	"github.com/rendis/papercut/internal/remote"
	"github.com/rendis/papercut/internal/session"
	"github.com/rendis/papercut/internal/validation"
	"github.com/rendis/papercut/pkg/schema"
)

// --- Fake remote service ---

type fakeService struct {
	analyses atomic.Int32
	sends    atomic.Int32
}

func (f *fakeService) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /generate_pattern", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"image":"AAA"}`)
	})
	mux.HandleFunc("POST /analyze_steps", func(w http.ResponseWriter, _ *http.Request) {
		f.analyses.Add(1)
		_, _ = io.WriteString(w, `{"steps":[{"step":1,"description":"fold"},{"step":2,"description":"cut"}],"visualization":"BBB","svg_data":"<svg></svg>"}`)
	})
	mux.HandleFunc("GET /check_arduino_connection", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"status":"connected"}`)
	})
	mux.HandleFunc("POST /send_to_arduino", func(w http.ResponseWriter, _ *http.Request) {
		f.sends.Add(1)
		_, _ = io.WriteString(w, `{"status":"ok"}`)
	})
	return mux
}

type fixture struct {
	srv  *PapercutServer
	svc  *fakeService
	sink *export.MemorySink
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	svc := &fakeService{}
	httpSrv := httptest.NewServer(svc.handler())
	t.Cleanup(httpSrv.Close)

	dec, err := validation.NewResponseValidator()
	require.NoError(t, err)
	sink := &export.MemorySink{}
	sess, err := session.New(context.Background(), session.Deps{
		Remote:       remote.New(remote.Config{BaseURL: httpSrv.URL, Timeout: 5 * time.Second}, dec, logging.Discard()),
		Sink:         sink,
		DismissDelay: -1,
		Logger:       logging.Discard(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = sess.Close() })

	return &fixture{
		srv:  NewPapercutServer(PapercutServerDeps{Session: sess, Logger: logging.Discard()}),
		svc:  svc,
		sink: sink,
	}
}

func buildRequest(toolName string, args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      toolName,
			Arguments: args,
		},
	}
}

// statusResult mirrors the JSON shape of a successful tool result.
type statusResult struct {
	OK     bool `json:"ok"`
	Status struct {
		Cutting    schema.CuttingState `json:"cutting"`
		HasPattern bool                `json:"has_pattern"`
		Steps      []schema.Step       `json:"steps"`
		View       schema.ViewState    `json:"view"`
		Modals     []json.RawMessage   `json:"modals"`
	} `json:"status"`
	Location   string            `json:"location"`
	RenderMode schema.RenderMode `json:"render_mode"`
	Dismissed  bool              `json:"dismissed"`
	Journal    []json.RawMessage `json:"journal"`
}

func (f *fixture) call(t *testing.T, handler func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error), tool string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	result, err := handler(context.Background(), buildRequest(tool, args))
	require.NoError(t, err)
	require.NotNil(t, result)
	return result
}

// --- Tests ---

func TestGenerateTool(t *testing.T) {
	f := newFixture(t)

	result := f.call(t, f.srv.handleGenerate, "papercut.generate", map[string]any{"prompt": "butterfly"})
	assert.False(t, result.IsError)

	var out statusResult
	unmarshalResult(t, result, &out)
	assert.True(t, out.OK)
	assert.True(t, out.Status.HasPattern)
	assert.Len(t, out.Status.Steps, 2)
}

func TestGenerateToolMissingPrompt(t *testing.T) {
	f := newFixture(t)

	result := f.call(t, f.srv.handleGenerate, "papercut.generate", map[string]any{})
	assert.True(t, result.IsError)
	assert.Contains(t, extractText(t, result), "prompt is required")
}

func TestGenerateToolBlankPrompt(t *testing.T) {
	f := newFixture(t)

	result := f.call(t, f.srv.handleGenerate, "papercut.generate", map[string]any{"prompt": "   "})
	assert.True(t, result.IsError)
	assert.Contains(t, extractText(t, result), schema.ErrCodeInvalidInput)
}

func TestUploadTool(t *testing.T) {
	f := newFixture(t)

	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	path := filepath.Join(t.TempDir(), "bird.png")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))

	result := f.call(t, f.srv.handleUpload, "papercut.upload", map[string]any{"path": path})
	assert.False(t, result.IsError, extractText(t, result))
	assert.Equal(t, int32(1), f.svc.analyses.Load())

	result = f.call(t, f.srv.handleUpload, "papercut.upload", map[string]any{
		"data": base64.StdEncoding.EncodeToString([]byte("plain text")),
		"name": "notes.txt",
	})
	assert.True(t, result.IsError)
	assert.Contains(t, extractText(t, result), schema.ErrCodeInvalidUpload)
	assert.Equal(t, int32(1), f.svc.analyses.Load())
}

func TestUploadToolMissingSource(t *testing.T) {
	f := newFixture(t)

	result := f.call(t, f.srv.handleUpload, "papercut.upload", map[string]any{})
	assert.True(t, result.IsError)
	assert.Contains(t, extractText(t, result), "path or data is required")
}

func TestViewAndToggleTools(t *testing.T) {
	f := newFixture(t)

	result := f.call(t, f.srv.handleView, "papercut.view", map[string]any{"surface": "steps"})
	assert.True(t, result.IsError)
	assert.Contains(t, extractText(t, result), schema.ErrCodeNoArtifact)

	f.call(t, f.srv.handleGenerate, "papercut.generate", map[string]any{"prompt": "butterfly"})
	result = f.call(t, f.srv.handleView, "papercut.view", map[string]any{"surface": "steps"})
	require.False(t, result.IsError)

	var out statusResult
	unmarshalResult(t, result, &out)
	assert.Equal(t, schema.SurfaceSteps, out.Status.View.Active)

	result = f.call(t, f.srv.handleToggleMode, "papercut.toggle_mode", nil)
	unmarshalResult(t, result, &out)
	assert.Equal(t, schema.RenderVector, out.RenderMode)
}

func TestExportTools(t *testing.T) {
	f := newFixture(t)
	f.call(t, f.srv.handleGenerate, "papercut.generate", map[string]any{"prompt": "butterfly"})

	result := f.call(t, f.srv.handleExportSteps, "papercut.export_steps", nil)
	require.False(t, result.IsError)
	var out statusResult
	unmarshalResult(t, result, &out)
	assert.Equal(t, "memory://"+export.StepsFile, out.Location)

	file, ok := f.sink.Last()
	require.True(t, ok)
	assert.Equal(t, "Step 1:\nfold\n\nStep 2:\ncut\n\n", string(file.Data))

	result = f.call(t, f.srv.handleToggleMode, "papercut.toggle_mode", nil)
	require.False(t, result.IsError)
	result = f.call(t, f.srv.handleDownload, "papercut.download", nil)
	require.False(t, result.IsError)
	file, _ = f.sink.Last()
	assert.Equal(t, export.VectorFile, file.Name)
}

func TestCuttingTool(t *testing.T) {
	f := newFixture(t)
	f.call(t, f.srv.handleGenerate, "papercut.generate", map[string]any{"prompt": "butterfly"})

	// Declining the confirmation keeps the machine idle.
	result := f.call(t, f.srv.handleCutting, "papercut.cutting", map[string]any{"action": "start"})
	require.False(t, result.IsError)
	var out statusResult
	unmarshalResult(t, result, &out)
	assert.Equal(t, schema.CuttingIdle, out.Status.Cutting)
	assert.Zero(t, f.svc.sends.Load())

	result = f.call(t, f.srv.handleCutting, "papercut.cutting", map[string]any{"action": "start", "confirm": "yes"})
	require.False(t, result.IsError)
	unmarshalResult(t, result, &out)
	assert.Equal(t, schema.CuttingActive, out.Status.Cutting)
	assert.Equal(t, int32(1), f.svc.sends.Load())

	result = f.call(t, f.srv.handleCutting, "papercut.cutting", map[string]any{"action": "pause"})
	unmarshalResult(t, result, &out)
	assert.Equal(t, schema.CuttingPaused, out.Status.Cutting)

	result = f.call(t, f.srv.handleCutting, "papercut.cutting", map[string]any{"action": "stop", "confirm": "yes"})
	unmarshalResult(t, result, &out)
	assert.Equal(t, schema.CuttingStopped, out.Status.Cutting)
}

func TestCuttingToolBadArgs(t *testing.T) {
	f := newFixture(t)

	result := f.call(t, f.srv.handleCutting, "papercut.cutting", map[string]any{})
	assert.True(t, result.IsError)

	result = f.call(t, f.srv.handleCutting, "papercut.cutting", map[string]any{"action": "start", "confirm": "maybe"})
	assert.True(t, result.IsError)

	result = f.call(t, f.srv.handleCutting, "papercut.cutting", map[string]any{"action": "launch"})
	assert.True(t, result.IsError)
	assert.Contains(t, extractText(t, result), "unknown cutting action")

	result = f.call(t, f.srv.handleCutting, "papercut.cutting", map[string]any{"action": "pause"})
	assert.True(t, result.IsError)
	assert.Contains(t, extractText(t, result), schema.ErrCodeInvalidTransition)
}

func TestDismissAndStatusTools(t *testing.T) {
	f := newFixture(t)

	result := f.call(t, f.srv.handleDismiss, "papercut.dismiss", nil)
	var out statusResult
	unmarshalResult(t, result, &out)
	assert.False(t, out.Dismissed)

	f.call(t, f.srv.handleGenerate, "papercut.generate", map[string]any{"prompt": "butterfly"})
	result = f.call(t, f.srv.handleStatus, "papercut.status", map[string]any{"journal_since": "0"})
	require.False(t, result.IsError)
	unmarshalResult(t, result, &out)
	assert.NotEmpty(t, out.Journal)

	result = f.call(t, f.srv.handleStatus, "papercut.status", map[string]any{"journal_since": "-1"})
	assert.True(t, result.IsError)
}

func TestReadUploadOverrides(t *testing.T) {
	up, err := readUpload("", base64.StdEncoding.EncodeToString([]byte("GIF89a")), "a.gif", "")
	require.NoError(t, err)
	assert.Equal(t, "image/gif", up.ContentType)

	up, err = readUpload("", base64.StdEncoding.EncodeToString([]byte("x")), "a.gif", "image/png")
	require.NoError(t, err)
	assert.Equal(t, "image/png", up.ContentType)

	_, err = readUpload("", "not base64!", "", "")
	assert.Error(t, err)
}

func extractText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content)
	return mcp.GetTextFromContent(result.Content[0])
}

func unmarshalResult(t *testing.T, result *mcp.CallToolResult, target any) {
	t.Helper()
	text := extractText(t, result)
	require.NoError(t, json.Unmarshal([]byte(text), target))
}

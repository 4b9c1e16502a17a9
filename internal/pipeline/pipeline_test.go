package pipeline

import (
	"bytes"
	"context"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rendis/papercut/internal/artifacts"
	"github.com/rendis/papercut/internal/logging"
	"github.com/rendis/papercut/internal/notify"
	"github.com/rendis/papercut/internal/remote"
	"github.com/rendis/papercut/internal/ui"
	"github.com/rendis/papercut/internal/validation"
	"github.com/rendis/papercut/internal/view"
	"github.com/rendis/papercut/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	timeout = time.Second
	tick    = 5 * time.Millisecond
)

// fakeRemote is a scriptable remote.Service.
type fakeRemote struct {
	generate func(ctx context.Context, prompt string) (schema.Pattern, error)
	analyze  func(ctx context.Context, image schema.Pattern) (*schema.AnalysisResult, error)

	generateCalls atomic.Int32
	analyzeCalls  atomic.Int32
}

func (f *fakeRemote) GeneratePattern(ctx context.Context, prompt string) (schema.Pattern, error) {
	f.generateCalls.Add(1)
	return f.generate(ctx, prompt)
}

func (f *fakeRemote) AnalyzeSteps(ctx context.Context, image schema.Pattern) (*schema.AnalysisResult, error) {
	f.analyzeCalls.Add(1)
	return f.analyze(ctx, image)
}

func (f *fakeRemote) CheckConnection(context.Context) error           { return nil }
func (f *fakeRemote) SendSteps(context.Context, schema.StepList) error { return nil }

func okRemote() *fakeRemote {
	return &fakeRemote{
		generate: func(context.Context, string) (schema.Pattern, error) { return "aW1n", nil },
		analyze: func(context.Context, schema.Pattern) (*schema.AnalysisResult, error) {
			return &schema.AnalysisResult{
				Steps:  schema.StepList{Steps: []schema.Step{{Index: 1, Description: "fold"}, {Index: 2, Description: "cut"}}},
				Raster: "cG5n",
				Vector: "<svg></svg>",
			}, nil
		},
	}
}

type harness struct {
	orch     *Orchestrator
	store    *artifacts.Store
	page     *ui.Page
	view     *view.Selector
	notifier *notify.Notifier
}

func newHarness(t *testing.T, svc remote.Service) *harness {
	t.Helper()
	policy, err := NewUploadPolicy()
	require.NoError(t, err)

	h := &harness{
		store:    artifacts.New(),
		page:     ui.NewPage(),
		notifier: notify.New(notify.Options{Logger: logging.Discard(), DismissDelay: -1}),
	}
	h.view = view.NewSelector(h.store, h.page, h.notifier, nil)
	h.orch = New(Deps{
		Remote:   svc,
		Store:    h.store,
		Page:     h.page,
		View:     h.view,
		Notifier: h.notifier,
		Policy:   policy,
		Logger:   logging.Discard(),
	})
	return h
}

func (h *harness) lastToast(t *testing.T) notify.Toast {
	t.Helper()
	toasts := h.notifier.Toasts()
	require.NotEmpty(t, toasts)
	return toasts[len(toasts)-1]
}

func pngOfSize(t *testing.T, size int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.Black)
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	out := buf.Bytes()
	if len(out) < size {
		out = append(out, make([]byte, size-len(out))...)
	}
	return out
}

func TestGenerate_SuccessPopulatesSteps(t *testing.T) {
	svc := okRemote()
	h := newHarness(t, svc)
	ctx := context.Background()

	require.NoError(t, h.orch.Generate(ctx, "  butterfly  "))

	snap := h.store.Snapshot()
	assert.Equal(t, schema.Pattern("aW1n"), snap.Pattern)
	assert.Equal(t, 2, snap.Steps.Len())
	assert.Equal(t, "<svg></svg>", snap.Visualization.Vector)

	page := h.page.Snapshot()
	assert.True(t, page.ResultsVisible)
	assert.Equal(t, `<img src="data:image/png;base64,aW1n" alt="Generated pattern">`, page.Regions[ui.RegionPatternImage])
	assert.Contains(t, page.Regions[ui.RegionStepsList], "visualization-image")
	assert.True(t, page.Controls[ui.ControlGenerate].Enabled)
	assert.Equal(t, ui.LabelGenerate, page.Controls[ui.ControlGenerate].Label)

	assert.Equal(t, MsgAnalysisDone, h.lastToast(t).Message)
	assert.NoError(t, h.view.SwitchTo(ctx, schema.SurfaceSteps))
}

func TestGenerate_EmptyPromptNoCall(t *testing.T) {
	svc := okRemote()
	h := newHarness(t, svc)

	err := h.orch.Generate(context.Background(), "   ")
	assert.True(t, schema.IsCode(err, schema.ErrCodeInvalidInput))
	assert.Equal(t, int32(0), svc.generateCalls.Load())
	assert.Equal(t, schema.SeverityDanger, h.lastToast(t).Severity)
}

func TestGenerate_FailureOffersUpload(t *testing.T) {
	svc := okRemote()
	svc.generate = func(context.Context, string) (schema.Pattern, error) {
		return "", schema.NewError(schema.ErrCodeGenerationFailed, "model overloaded")
	}
	h := newHarness(t, svc)

	err := h.orch.Generate(context.Background(), "butterfly")
	assert.True(t, schema.IsCode(err, schema.ErrCodeGenerationFailed))
	assert.Equal(t, int32(0), svc.analyzeCalls.Load())

	toast := h.lastToast(t)
	assert.Equal(t, "model overloaded", toast.Message)
	assert.Equal(t, schema.SeverityDanger, toast.Severity)

	page := h.page.Snapshot()
	assert.Contains(t, page.Regions[ui.RegionPatternImage], `type="file"`)
	assert.Contains(t, page.Regions[ui.RegionStepsList], ui.StepsFailed)
	assert.True(t, page.Controls[ui.ControlGenerate].Enabled)
	assert.Equal(t, ui.LabelGenerate, page.Controls[ui.ControlGenerate].Label)
	_, open := h.notifier.Modal()
	assert.False(t, open)
}

func TestGenerate_BusyWhileInFlight(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	svc := okRemote()
	svc.generate = func(context.Context, string) (schema.Pattern, error) {
		close(entered)
		<-release
		return "aW1n", nil
	}
	h := newHarness(t, svc)

	done := make(chan error, 1)
	go func() { done <- h.orch.Generate(context.Background(), "first") }()
	<-entered

	err := h.orch.Generate(context.Background(), "second")
	assert.True(t, schema.IsCode(err, schema.ErrCodeBusy))
	assert.Equal(t, ui.LabelGenerating, h.page.Control(ui.ControlGenerate).Label)

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, int32(1), svc.generateCalls.Load())
}

func TestAnalyze_EmptyStepsReachFailurePath(t *testing.T) {
	bodies := []string{
		`{"steps":[]}`,
		`{"svg_data":"<svg/>"}`,
		`{"steps":null}`,
	}
	for _, body := range bodies {
		t.Run(body, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = io.WriteString(w, body)
			}))
			defer srv.Close()
			dec, err := validation.NewResponseValidator()
			require.NoError(t, err)
			h := newHarness(t, remote.New(remote.Config{BaseURL: srv.URL}, dec, logging.Discard()))

			err = h.orch.Analyze(context.Background(), "aW1n")
			assert.True(t, schema.IsCode(err, schema.ErrCodeAnalysisFailed))
			assert.True(t, h.store.Steps().Empty())

			modal, open := h.notifier.Modal()
			require.True(t, open)
			assert.Equal(t, notify.ModalError, modal.Kind)
			assert.Contains(t, h.page.Region(ui.RegionStepsList), `data-control="retry"`)
		})
	}
}

func TestAnalyze_MissingImage(t *testing.T) {
	svc := okRemote()
	h := newHarness(t, svc)

	err := h.orch.Analyze(context.Background(), "")
	assert.True(t, schema.IsCode(err, schema.ErrCodeMissingArtifact))
	assert.Equal(t, int32(0), svc.analyzeCalls.Load())
	assert.Contains(t, h.page.Region(ui.RegionStepsList), ui.NoImageToAnalyze)
}

func TestAnalyze_StaleResultDiscarded(t *testing.T) {
	slowRelease := make(chan struct{})
	var mu sync.Mutex
	calls := 0
	svc := okRemote()
	svc.analyze = func(_ context.Context, image schema.Pattern) (*schema.AnalysisResult, error) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n == 1 {
			<-slowRelease
			return &schema.AnalysisResult{Steps: schema.StepList{Steps: []schema.Step{{Index: 1, Description: "stale"}}}}, nil
		}
		return &schema.AnalysisResult{Steps: schema.StepList{Steps: []schema.Step{{Index: 1, Description: "fresh"}}}}, nil
	}
	h := newHarness(t, svc)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() { done <- h.orch.Analyze(ctx, "b2xk") }()
	assert.Eventually(t, func() bool { return svc.analyzeCalls.Load() == 1 }, timeout, tick)

	require.NoError(t, h.orch.Analyze(ctx, "bmV3"))
	close(slowRelease)
	require.NoError(t, <-done)

	assert.Equal(t, "fresh", h.store.Steps().Steps[0].Description)
}

func TestAnalyze_StaleFailureDiscarded(t *testing.T) {
	slowRelease := make(chan struct{})
	svc := okRemote()
	fresh := svc.analyze
	svc.analyze = func(ctx context.Context, image schema.Pattern) (*schema.AnalysisResult, error) {
		if image == "b2xk" {
			<-slowRelease
			return nil, schema.NewError(schema.ErrCodeAnalysisFailed, "server timed out")
		}
		return fresh(ctx, image)
	}
	h := newHarness(t, svc)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() { done <- h.orch.Analyze(ctx, "b2xk") }()
	assert.Eventually(t, func() bool { return svc.analyzeCalls.Load() == 1 }, timeout, tick)

	require.NoError(t, h.orch.Analyze(ctx, "bmV3"))
	rendered := h.page.Region(ui.RegionStepsList)
	close(slowRelease)
	require.NoError(t, <-done)

	assert.Equal(t, 2, h.store.Steps().Len())
	assert.Equal(t, rendered, h.page.Region(ui.RegionStepsList))
	assert.NotContains(t, rendered, "server timed out")
	_, open := h.notifier.Modal()
	assert.False(t, open)
}

func TestGenerate_StaleFailureKeepsUpload(t *testing.T) {
	slowRelease := make(chan struct{})
	svc := okRemote()
	svc.generate = func(context.Context, string) (schema.Pattern, error) {
		<-slowRelease
		return "", schema.NewError(schema.ErrCodeGenerationFailed, "model overloaded")
	}
	h := newHarness(t, svc)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() { done <- h.orch.Generate(ctx, "butterfly") }()
	assert.Eventually(t, func() bool { return svc.generateCalls.Load() == 1 }, timeout, tick)

	data := pngOfSize(t, 1024)
	require.NoError(t, h.orch.HandleUpload(ctx, Upload{Name: "cat.png", ContentType: "image/png", Data: data}))
	uploaded := schema.Pattern(base64.StdEncoding.EncodeToString(data))
	close(slowRelease)
	require.NoError(t, <-done)

	assert.Equal(t, uploaded, h.store.Pattern())
	assert.Equal(t, uploaded, h.page.RenderedPattern())
	assert.NotContains(t, h.page.Region(ui.RegionPatternImage), `type="file"`)
	for _, toast := range h.notifier.Toasts() {
		assert.NotEqual(t, "model overloaded", toast.Message)
	}
	assert.NoError(t, h.orch.RetryAnalysis(ctx))
}

func TestRetryAnalysis(t *testing.T) {
	t.Run("nothing rendered", func(t *testing.T) {
		svc := okRemote()
		h := newHarness(t, svc)

		err := h.orch.RetryAnalysis(context.Background())
		assert.True(t, schema.IsCode(err, schema.ErrCodeNoArtifact))
		assert.Equal(t, schema.SeverityWarning, h.lastToast(t).Severity)
		assert.Equal(t, int32(0), svc.analyzeCalls.Load())
	})

	t.Run("reuses rendered pattern", func(t *testing.T) {
		svc := okRemote()
		var got schema.Pattern
		inner := svc.analyze
		svc.analyze = func(ctx context.Context, image schema.Pattern) (*schema.AnalysisResult, error) {
			got = image
			return inner(ctx, image)
		}
		h := newHarness(t, svc)
		h.page.RenderPattern("image/png", "cmVuZGVyZWQ=", "x")

		require.NoError(t, h.orch.RetryAnalysis(context.Background()))
		assert.Equal(t, schema.Pattern("cmVuZGVyZWQ="), got)
		assert.True(t, h.page.Control(ui.ControlRetry).Enabled)
	})
}

func TestHandleUpload_SizeLimits(t *testing.T) {
	t.Run("6 MiB png rejected", func(t *testing.T) {
		svc := okRemote()
		h := newHarness(t, svc)

		err := h.orch.HandleUpload(context.Background(), Upload{Name: "big.png", ContentType: "image/png", Data: pngOfSize(t, 6<<20)})
		assert.True(t, schema.IsCode(err, schema.ErrCodeInvalidUpload))
		assert.Equal(t, int32(0), svc.analyzeCalls.Load())
		assert.False(t, h.store.Snapshot().HasPattern())
		assert.Equal(t, "the image must not exceed 5MB", h.lastToast(t).Message)
	})

	t.Run("1 MiB png analyzed", func(t *testing.T) {
		svc := okRemote()
		h := newHarness(t, svc)
		data := pngOfSize(t, 1<<20)

		require.NoError(t, h.orch.HandleUpload(context.Background(), Upload{Name: "ok.png", ContentType: "image/png", Data: data}))
		assert.Equal(t, int32(1), svc.analyzeCalls.Load())
		assert.Equal(t, schema.Pattern(base64.StdEncoding.EncodeToString(data)), h.store.Pattern())
		assert.Contains(t, h.page.Region(ui.RegionPatternImage), "data:image/png;base64,")
		assert.Equal(t, 2, h.store.Steps().Len())
	})
}

func TestUploadPolicy_RulesInOrder(t *testing.T) {
	policy, err := NewUploadPolicy()
	require.NoError(t, err)
	pngData := pngOfSize(t, 0)

	tests := []struct {
		name string
		up   Upload
		want string
	}{
		{"not an image", Upload{ContentType: "text/plain", Data: []byte("hi")}, "please upload an image file"},
		{"not an image and big", Upload{ContentType: "application/pdf", Data: make([]byte, 6<<20)}, "please upload an image file"},
		{"bmp not allowed", Upload{ContentType: "image/bmp", Data: pngData}, "please upload a JPG, PNG or GIF image"},
		{"garbage bytes", Upload{ContentType: "image/png", Data: []byte("not really a png")}, "the file is not a readable JPG, PNG or GIF image"},
		{"empty file", Upload{ContentType: "image/gif"}, "the file is not a readable JPG, PNG or GIF image"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := policy.Check(context.Background(), tt.up)
			require.Error(t, err)
			assert.True(t, schema.IsCode(err, schema.ErrCodeInvalidUpload))
			assert.Equal(t, tt.want, schema.MessageOf(err))
		})
	}

	assert.NoError(t, policy.Check(context.Background(), Upload{ContentType: "image/png", Data: pngData}))
}

func TestNewUploadPolicy_BadRule(t *testing.T) {
	_, err := NewUploadPolicy(Rule{Name: "broken", Expr: "size_bytes >", Message: "x"})
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))
}

func TestDetectContentType(t *testing.T) {
	assert.Equal(t, "image/png", DetectContentType("a.PNG", nil))
	assert.Equal(t, "image/gif", DetectContentType("a.gif", nil))
	assert.Equal(t, "image/png", DetectContentType("", []byte("\x89PNG\r\n\x1a\n0000")))
}

func TestReadUpload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bird.png")
	require.NoError(t, os.WriteFile(path, pngOfSize(t, 0), 0644))

	up, err := ReadUpload(path)
	require.NoError(t, err)
	assert.Equal(t, "bird.png", up.Name)
	assert.Equal(t, "image/png", up.ContentType)
	assert.NotEmpty(t, up.Data)

	_, err = ReadUpload(filepath.Join(t.TempDir(), "missing.png"))
	assert.Error(t, err)
}

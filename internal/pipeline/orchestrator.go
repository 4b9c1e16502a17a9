// Package pipeline sequences the prompt → pattern → analysis workflow and the
// manual upload path into it.
package pipeline

import (
	"context"
	"encoding/base64"
	"log/slog"
	"strings"

	"github.com/rendis/papercut/internal/artifacts"
	"github.com/rendis/papercut/internal/logging"
	"github.com/rendis/papercut/internal/notify"
	"github.com/rendis/papercut/internal/remote"
	"github.com/rendis/papercut/internal/streaming"
	"github.com/rendis/papercut/internal/ui"
	"github.com/rendis/papercut/pkg/schema"
)

// User-facing messages.
const (
	MsgEmptyPrompt      = "please enter a description"
	MsgBusy             = "an operation is already in progress"
	MsgGenerationFailed = "pattern generation failed"
	MsgAnalysisFailed   = "step analysis failed"
	MsgNoImage          = "there is no image data to analyze"
	MsgNothingToRetry   = "there is no pattern to analyze"
	MsgAnalysisDone     = "cutting steps analyzed successfully"
)

const (
	altGenerated = "Generated pattern"
	altUploaded  = "Uploaded pattern"
)

// Notifier is the part of the notification subsystem the pipeline uses.
type Notifier interface {
	Notify(ctx context.Context, message string, severity schema.Severity) notify.Toast
	ReportError(ctx context.Context, err error) notify.Modal
}

// StepsRenderer redraws the steps list in the current render mode.
type StepsRenderer interface {
	RenderSteps()
}

// Deps holds the collaborators of an Orchestrator.
type Deps struct {
	Remote   remote.Service
	Store    *artifacts.Store
	Page     *ui.Page
	View     StepsRenderer
	Notifier Notifier
	Policy   *UploadPolicy
	Events   streaming.Emitter
	Logger   *slog.Logger
}

// Orchestrator runs the generation and analysis stages.
type Orchestrator struct {
	remote   remote.Service
	store    *artifacts.Store
	page     *ui.Page
	view     StepsRenderer
	notifier Notifier
	policy   *UploadPolicy
	events   streaming.Emitter
	logger   *slog.Logger
}

// New creates an Orchestrator.
func New(d Deps) *Orchestrator {
	if d.Events == nil {
		d.Events = streaming.Nop
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return &Orchestrator{
		remote:   d.Remote,
		store:    d.Store,
		page:     d.Page,
		view:     d.View,
		notifier: d.Notifier,
		policy:   d.Policy,
		events:   d.Events,
		logger:   d.Logger,
	}
}

// Generate turns prompt into a pattern and, on success, analyzes it.
// Every failure ends in a notification; the returned error mirrors it.
func (o *Orchestrator) Generate(ctx context.Context, prompt string) error {
	ctx = logging.WithStage(ctx, "generate")
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		o.notifier.Notify(ctx, MsgEmptyPrompt, schema.SeverityDanger)
		return schema.NewError(schema.ErrCodeInvalidInput, MsgEmptyPrompt)
	}

	if !o.page.TryDisable(ui.ControlGenerate) {
		o.notifier.Notify(ctx, MsgBusy, schema.SeverityWarning)
		return schema.NewError(schema.ErrCodeBusy, MsgBusy)
	}
	defer func() {
		o.page.SetLabel(ui.ControlGenerate, ui.LabelGenerate)
		o.page.Enable(ui.ControlGenerate)
	}()
	o.page.SetLabel(ui.ControlGenerate, ui.LabelGenerating)

	loading := ui.Loading(ui.LoadingText)
	o.page.SetRegion(ui.RegionPatternImage, loading)
	o.page.SetRegion(ui.RegionStepsList, loading)
	o.page.ShowResults()

	log := logging.LogWith(ctx, o.logger)
	tok := o.store.BeginPattern()
	o.events.Emit(ctx, schema.EventGenerationStarted, map[string]any{"prompt": prompt})

	pattern, err := o.remote.GeneratePattern(ctx, prompt)
	if err != nil && !o.store.PatternCurrent(tok) {
		log.Debug("stale generation failure discarded", "error", err)
		o.events.Emit(ctx, schema.EventResultDiscarded, map[string]any{"stage": "generate", "error": schema.MessageOf(err)})
		return nil
	}
	if err != nil {
		log.Warn("generation failed", "error", err)
		o.events.Emit(ctx, schema.EventGenerationFailed, map[string]any{"error": schema.MessageOf(err)})
		o.notifier.Notify(ctx, messageOr(err, MsgGenerationFailed), schema.SeverityDanger)
		o.page.ClearPattern(ui.UploadFallback())
		o.page.SetRegion(ui.RegionStepsList, ui.ErrorText(ui.StepsFailed))
		return err
	}

	if !o.store.CommitPattern(tok, pattern) {
		o.events.Emit(ctx, schema.EventResultDiscarded, map[string]any{"stage": "generate"})
		return nil
	}
	o.page.RenderPattern("image/png", pattern, altGenerated)
	o.events.Emit(ctx, schema.EventGenerationSucceeded, nil)

	return o.Analyze(ctx, pattern)
}

// Analyze derives the step list and visualizations of image.
func (o *Orchestrator) Analyze(ctx context.Context, image schema.Pattern) error {
	ctx = logging.WithStage(ctx, "analyze")
	if image == "" {
		o.notifier.Notify(ctx, MsgNoImage, schema.SeverityDanger)
		o.page.SetRegion(ui.RegionStepsList, ui.ErrorText(ui.NoImageToAnalyze))
		return schema.NewError(schema.ErrCodeMissingArtifact, MsgNoImage)
	}

	log := logging.LogWith(ctx, o.logger)
	tok := o.store.BeginAnalysis()
	o.events.Emit(ctx, schema.EventAnalysisStarted, nil)

	res, err := o.remote.AnalyzeSteps(ctx, image)
	if err != nil && !o.store.AnalysisCurrent(tok) {
		log.Debug("stale analysis failure discarded", "error", err)
		o.events.Emit(ctx, schema.EventResultDiscarded, map[string]any{"stage": "analyze", "error": schema.MessageOf(err)})
		return nil
	}
	if err != nil {
		log.Warn("analysis failed", "error", err)
		if !schema.IsCode(err, schema.ErrCodeAnalysisFailed) {
			err = schema.NewError(schema.ErrCodeAnalysisFailed, messageOr(err, MsgAnalysisFailed)).WithCause(err)
		}
		o.events.Emit(ctx, schema.EventAnalysisFailed, map[string]any{"error": schema.MessageOf(err)})
		o.notifier.ReportError(ctx, err)
		o.page.SetRegion(ui.RegionStepsList, ui.RetryAffordance(schema.MessageOf(err)))
		return err
	}

	if !o.store.CommitAnalysis(tok, *res) {
		log.Debug("stale analysis result discarded")
		o.events.Emit(ctx, schema.EventResultDiscarded, map[string]any{"stage": "analyze"})
		return nil
	}

	o.view.RenderSteps()
	o.events.Emit(ctx, schema.EventAnalysisSucceeded, map[string]any{
		"steps":  res.Steps.Len(),
		"raster": res.Raster != "",
		"vector": res.Vector != "",
	})
	o.notifier.Notify(ctx, MsgAnalysisDone, schema.SeveritySuccess)
	return nil
}

// RetryAnalysis re-runs analysis on the pattern currently on screen.
func (o *Orchestrator) RetryAnalysis(ctx context.Context) error {
	image := o.page.RenderedPattern()
	if image == "" {
		o.notifier.Notify(ctx, MsgNothingToRetry, schema.SeverityWarning)
		return schema.NewError(schema.ErrCodeNoArtifact, MsgNothingToRetry)
	}
	if !o.page.TryDisable(ui.ControlRetry) {
		o.notifier.Notify(ctx, MsgBusy, schema.SeverityWarning)
		return schema.NewError(schema.ErrCodeBusy, MsgBusy)
	}
	defer o.page.Enable(ui.ControlRetry)

	o.page.SetRegion(ui.RegionStepsList, ui.Loading(ui.ReanalyzingText))
	return o.Analyze(ctx, image)
}

// HandleUpload validates up and feeds it into analysis as the new pattern.
func (o *Orchestrator) HandleUpload(ctx context.Context, up Upload) error {
	ctx = logging.WithStage(ctx, "upload")
	if err := o.policy.Check(ctx, up); err != nil {
		logging.LogWith(ctx, o.logger).Info("upload rejected", "name", up.Name, "reason", schema.MessageOf(err))
		o.notifier.Notify(ctx, schema.MessageOf(err), schema.SeverityDanger)
		return err
	}
	if !o.page.TryDisable(ui.ControlUpload) {
		o.notifier.Notify(ctx, MsgBusy, schema.SeverityWarning)
		return schema.NewError(schema.ErrCodeBusy, MsgBusy)
	}
	defer o.page.Enable(ui.ControlUpload)

	pattern := schema.Pattern(base64.StdEncoding.EncodeToString(up.Data))
	if !o.store.CommitPattern(o.store.BeginPattern(), pattern) {
		return nil
	}
	o.page.ShowResults()
	o.page.RenderPattern(up.ContentType, pattern, altUploaded)
	o.page.SetRegion(ui.RegionStepsList, ui.Loading(ui.LoadingText))
	o.events.Emit(ctx, schema.EventPatternUploaded, map[string]any{
		"name":         up.Name,
		"content_type": up.ContentType,
		"size_bytes":   len(up.Data),
	})

	return o.Analyze(ctx, pattern)
}

func messageOr(err error, fallback string) string {
	if msg := schema.MessageOf(err); msg != "" {
		return msg
	}
	return fallback
}

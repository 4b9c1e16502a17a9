// Package export turns the current artifacts into files and printable documents.
package export

import (
	"context"
	"encoding/base64"
	"fmt"
	"html/template"
	"log/slog"
	"strings"

	"github.com/rendis/papercut/internal/artifacts"
	"github.com/rendis/papercut/internal/logging"
	"github.com/rendis/papercut/internal/notify"
	"github.com/rendis/papercut/internal/streaming"
	"github.com/rendis/papercut/internal/ui"
	"github.com/rendis/papercut/pkg/schema"
)

// Exported file names and content types.
const (
	RasterFile  = "steps-visualization.png"
	VectorFile  = "steps.svg"
	StepsFile   = "steps.txt"
	RasterType  = "image/png"
	VectorType  = "image/svg+xml;charset=utf-8"
	StepsType   = "text/plain;charset=utf-8"
	printAlt    = "Cutting steps visualization"
	rasterTitle = "Print cutting steps visualization"
	vectorTitle = "Print cutting steps SVG"
)

// User-facing messages.
const (
	MsgNothingToDownload = "no data to download"
	MsgDownloaded        = "download succeeded"
	MsgDownloadFailed    = "download failed"
	MsgNothingToPrint    = "no data to print"
	MsgPrintFailed       = "print failed"
	MsgNoSteps           = "no steps to download"
	MsgStepsExported     = "steps downloaded successfully"
	MsgStepsFailed       = "downloading the steps failed, please retry"
)

// Notifier is the part of the notification subsystem the exporter uses.
type Notifier interface {
	Notify(ctx context.Context, message string, severity schema.Severity) notify.Toast
	ReportError(ctx context.Context, err error) notify.Modal
}

// ModeSource reports the current render mode.
type ModeSource interface {
	State() schema.ViewState
}

// Deps holds the collaborators of an Exporter.
type Deps struct {
	Store    *artifacts.Store
	View     ModeSource
	Notifier Notifier
	Sink     Sink
	Printer  Printer
	Events   streaming.Emitter
	Logger   *slog.Logger
}

// Exporter serializes artifacts for the current render mode.
type Exporter struct {
	store    *artifacts.Store
	view     ModeSource
	notifier Notifier
	sink     Sink
	printer  Printer
	events   streaming.Emitter
	logger   *slog.Logger
}

// New creates an Exporter.
func New(d Deps) *Exporter {
	if d.Events == nil {
		d.Events = streaming.Nop
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Sink == nil {
		d.Sink = &MemorySink{}
	}
	if d.Printer == nil {
		d.Printer = CommandPrinter{Logger: d.Logger}
	}
	return &Exporter{
		store:    d.Store,
		view:     d.View,
		notifier: d.Notifier,
		sink:     d.Sink,
		printer:  d.Printer,
		events:   d.Events,
		logger:   d.Logger,
	}
}

// Download saves the visualization of the current render mode. It returns the
// saved location.
func (e *Exporter) Download(ctx context.Context) (string, error) {
	ctx = logging.WithStage(ctx, "export")
	mode := e.view.State().Mode
	vis := e.store.Visualization()

	var f File
	switch {
	case mode == schema.RenderRaster && vis.Raster != "":
		data, err := base64.StdEncoding.DecodeString(vis.Raster)
		if err != nil {
			return "", e.failToast(ctx, MsgDownloadFailed, fmt.Errorf("decode raster visualization: %w", err))
		}
		f = File{Name: RasterFile, ContentType: RasterType, Data: data}
	case mode == schema.RenderVector && vis.Vector != "":
		f = File{Name: VectorFile, ContentType: VectorType, Data: []byte(vis.Vector)}
	default:
		e.notifier.Notify(ctx, MsgNothingToDownload, schema.SeverityWarning)
		return "", schema.NewError(schema.ErrCodeMissingArtifact, MsgNothingToDownload).
			WithDetails(map[string]any{"mode": string(mode)})
	}

	loc, err := e.sink.Save(ctx, f)
	if err != nil {
		return "", e.failToast(ctx, MsgDownloadFailed, err)
	}
	e.saved(ctx, f, loc)
	e.notifier.Notify(ctx, MsgDownloaded, schema.SeveritySuccess)
	return loc, nil
}

// Print renders the visualization of the current render mode into a
// standalone document and prints it once loaded.
func (e *Exporter) Print(ctx context.Context) error {
	ctx = logging.WithStage(ctx, "export")
	mode := e.view.State().Mode
	vis := e.store.Visualization()

	var data printData
	switch {
	case mode == schema.RenderRaster && vis.Raster != "":
		data = printData{Title: rasterTitle, Alt: printAlt, Image: template.URL(ui.DataURL(RasterType, vis.Raster))}
	case mode == schema.RenderVector && vis.Vector != "":
		data = printData{Title: vectorTitle, SVG: template.HTML(vis.Vector)}
	default:
		e.notifier.Notify(ctx, MsgNothingToPrint, schema.SeverityWarning)
		return schema.NewError(schema.ErrCodeMissingArtifact, MsgNothingToPrint).
			WithDetails(map[string]any{"mode": string(mode)})
	}

	doc, err := renderDocument(data)
	if err != nil {
		return e.failToast(ctx, MsgPrintFailed, err)
	}
	pc, err := e.printer.Open(ctx, doc)
	if err != nil {
		return e.failToast(ctx, MsgPrintFailed, err)
	}
	defer func() {
		if cerr := pc.Close(); cerr != nil {
			logging.LogWith(ctx, e.logger).Warn("close print context", "error", cerr)
		}
	}()

	if err := pc.Load(ctx); err != nil {
		return e.failToast(ctx, MsgPrintFailed, err)
	}
	if err := pc.Print(ctx); err != nil {
		return e.failToast(ctx, MsgPrintFailed, err)
	}
	e.events.Emit(ctx, schema.EventPrinted, map[string]any{"mode": string(mode), "title": doc.Title})
	return nil
}

// ExportSteps saves the step list as plain text.
func (e *Exporter) ExportSteps(ctx context.Context) (string, error) {
	ctx = logging.WithStage(ctx, "export")
	steps := e.store.Steps()
	if steps.Empty() {
		e.notifier.Notify(ctx, MsgNoSteps, schema.SeverityWarning)
		return "", schema.NewError(schema.ErrCodeNoArtifact, MsgNoSteps)
	}

	f := File{Name: StepsFile, ContentType: StepsType, Data: []byte(StepsText(steps))}
	loc, err := e.sink.Save(ctx, f)
	if err != nil {
		failure := schema.NewError(schema.ErrCodeGenericFailure, MsgStepsFailed).WithCause(err)
		logging.LogWith(ctx, e.logger).Error("export steps failed", "error", err)
		e.notifier.ReportError(ctx, failure)
		return "", failure
	}
	e.saved(ctx, f, loc)
	e.notifier.Notify(ctx, MsgStepsExported, schema.SeveritySuccess)
	return loc, nil
}

// NoDescription stands in for a step whose description is empty.
const NoDescription = "No description"

// StepsText serializes steps as "Step {index}:\n{description}\n\n" in list order.
// A step without an index is numbered by its position.
func StepsText(steps schema.StepList) string {
	var b strings.Builder
	for i, s := range steps.Steps {
		index, desc := s.Index, s.Description
		if index == 0 {
			index = i + 1
		}
		if strings.TrimSpace(desc) == "" {
			desc = NoDescription
		}
		fmt.Fprintf(&b, "Step %d:\n%s\n\n", index, desc)
	}
	return b.String()
}

func (e *Exporter) saved(ctx context.Context, f File, loc string) {
	logging.LogWith(ctx, e.logger).Info("artifact exported", "name", f.Name, "bytes", len(f.Data), "location", loc)
	e.events.Emit(ctx, schema.EventExported, map[string]any{
		"name":         f.Name,
		"content_type": f.ContentType,
		"bytes":        len(f.Data),
		"location":     loc,
	})
}

func (e *Exporter) failToast(ctx context.Context, msg string, cause error) error {
	logging.LogWith(ctx, e.logger).Error(msg, "error", cause)
	e.notifier.Notify(ctx, msg, schema.SeverityDanger)
	return schema.NewError(schema.ErrCodeGenericFailure, msg).WithCause(cause)
}

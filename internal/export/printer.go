package export

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Document is a standalone printable page.
type Document struct {
	Title string
	HTML  []byte
}

// Printer opens rendering contexts for documents.
type Printer interface {
	Open(ctx context.Context, doc Document) (PrintContext, error)
}

// PrintContext is one opened document. Load must succeed before Print;
// Close releases it after printing.
type PrintContext interface {
	Load(ctx context.Context) error
	Print(ctx context.Context) error
	Close() error
}

var printTemplate = template.Must(template.New("print").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { text-align: center; margin: 0; padding: 20px; }
img, svg { max-width: 100%; height: auto; display: block; margin: 0 auto; }
@media print {
  body { padding: 0; }
  img, svg { max-width: 100%; }
}
</style>
</head>
<body>
{{if .Image}}<img src="{{.Image}}" alt="{{.Alt}}">{{else}}{{.SVG}}{{end}}
</body>
</html>
`))

type printData struct {
	Title string
	Alt   string
	Image template.URL
	SVG   template.HTML
}

func renderDocument(d printData) (Document, error) {
	var buf bytes.Buffer
	if err := printTemplate.Execute(&buf, d); err != nil {
		return Document{}, fmt.Errorf("render print document: %w", err)
	}
	return Document{Title: d.Title, HTML: buf.Bytes()}, nil
}

// CommandPrinter writes each document to a temporary file and optionally hands
// the path to an external command. The file is removed on Close.
type CommandPrinter struct {
	// Command is split on whitespace; the document path is appended as the last argument.
	Command string
	TempDir string
	Logger  *slog.Logger
}

// Open writes doc to a temporary .html file.
func (p CommandPrinter) Open(ctx context.Context, doc Document) (PrintContext, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.CreateTemp(p.TempDir, "papercut-print-*.html")
	if err != nil {
		return nil, fmt.Errorf("create print document: %w", err)
	}
	if _, err := f.Write(doc.HTML); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, fmt.Errorf("write print document: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return nil, fmt.Errorf("close print document: %w", err)
	}
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &commandContext{path: f.Name(), command: strings.Fields(p.Command), logger: logger}, nil
}

type commandContext struct {
	path    string
	command []string
	logger  *slog.Logger
	loaded  bool
}

func (c *commandContext) Load(context.Context) error {
	info, err := os.Stat(c.path)
	if err != nil {
		return fmt.Errorf("load print document: %w", err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("load print document: %s is empty", filepath.Base(c.path))
	}
	c.loaded = true
	return nil
}

func (c *commandContext) Print(ctx context.Context) error {
	if !c.loaded {
		return fmt.Errorf("print before load")
	}
	if len(c.command) == 0 {
		c.logger.Info("print document ready", "path", c.path)
		return nil
	}

	args := append(c.command[1:len(c.command):len(c.command)], c.path)
	cmd := exec.CommandContext(ctx, c.command[0], args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("print command %s: %w: %s", c.command[0], err, strings.TrimSpace(string(out)))
	}
	c.logger.Debug("print command finished", "command", c.command[0], "path", c.path)
	return nil
}

func (c *commandContext) Close() error {
	if err := os.Remove(c.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

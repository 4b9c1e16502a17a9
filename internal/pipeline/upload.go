package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"  // register GIF for DecodeConfig
	_ "image/jpeg" // register JPEG for DecodeConfig
	_ "image/png"  // register PNG for DecodeConfig
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/cel-go/cel"
	"github.com/rendis/papercut/internal/expressions"
	"github.com/rendis/papercut/pkg/schema"

	// Registered so mislabelled files are reported by their real format.
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// MaxUploadSize is the largest accepted upload, in bytes.
const MaxUploadSize = 5 * 1024 * 1024

// AllowedUploadTypes are the accepted upload MIME types.
var AllowedUploadTypes = []string{"image/jpeg", "image/png", "image/gif"}

// Upload is a user-supplied pattern image.
type Upload struct {
	Name        string
	ContentType string
	Data        []byte
}

// ReadUpload loads a local file as an Upload. Files over MaxUploadSize are
// still read whole so the size rule reports them.
func ReadUpload(path string) (Upload, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Upload{}, fmt.Errorf("read upload: %w", err)
	}
	name := filepath.Base(path)
	return Upload{Name: name, ContentType: DetectContentType(name, data), Data: data}, nil
}

// DetectContentType mirrors a browser file picker: extension first, then content.
func DetectContentType(name string, data []byte) string {
	if ext := filepath.Ext(name); ext != "" {
		if t := mime.TypeByExtension(strings.ToLower(ext)); t != "" {
			return t
		}
	}
	return http.DetectContentType(data)
}

// Rule is one upload policy predicate. Expr is CEL over the upload variables
// and must hold; otherwise Message is reported.
type Rule struct {
	Name    string
	Expr    string
	Message string
}

// DefaultRules are evaluated in order; the first violated rule wins.
var DefaultRules = []Rule{
	{Name: "image_type", Expr: `content_type.startsWith("image/")`, Message: "please upload an image file"},
	{Name: "max_size", Expr: `size_bytes <= max_size_bytes`, Message: "the image must not exceed 5MB"},
	{Name: "allowed_type", Expr: `content_type in allowed_types`, Message: "please upload a JPG, PNG or GIF image"},
	{Name: "readable", Expr: `format in ["jpeg", "png", "gif"] && width > 0 && height > 0`,
		Message: "the file is not a readable JPG, PNG or GIF image"},
}

// UploadPolicy validates uploads against a rule set.
type UploadPolicy struct {
	engine *expressions.CELEngine
	rules  []Rule
}

// NewUploadPolicy compiles rules. With no rules, DefaultRules apply.
func NewUploadPolicy(rules ...Rule) (*UploadPolicy, error) {
	if len(rules) == 0 {
		rules = DefaultRules
	}
	engine, err := expressions.NewCELEngine(
		expressions.Var{Name: "name", Type: cel.StringType, Default: ""},
		expressions.Var{Name: "content_type", Type: cel.StringType, Default: ""},
		expressions.Var{Name: "size_bytes", Type: cel.IntType, Default: int64(0)},
		expressions.Var{Name: "max_size_bytes", Type: cel.IntType, Default: int64(MaxUploadSize)},
		expressions.Var{Name: "allowed_types", Type: cel.ListType(cel.StringType), Default: AllowedUploadTypes},
		expressions.Var{Name: "format", Type: cel.StringType, Default: ""},
		expressions.Var{Name: "width", Type: cel.IntType, Default: int64(0)},
		expressions.Var{Name: "height", Type: cel.IntType, Default: int64(0)},
	)
	if err != nil {
		return nil, err
	}
	for _, r := range rules {
		if err := engine.Check(r.Expr); err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeValidation, "upload rule %q: %s", r.Name, schema.MessageOf(err)).WithCause(err)
		}
	}
	return &UploadPolicy{engine: engine, rules: rules}, nil
}

// Check returns an INVALID_UPLOAD error carrying the message of the first
// violated rule, or nil.
func (p *UploadPolicy) Check(ctx context.Context, up Upload) error {
	data := map[string]any{
		"name":         up.Name,
		"content_type": up.ContentType,
		"size_bytes":   int64(len(up.Data)),
	}
	// Header only: DecodeConfig never reads pixel data.
	if cfg, format, err := image.DecodeConfig(bytes.NewReader(up.Data)); err == nil {
		data["format"] = format
		data["width"] = int64(cfg.Width)
		data["height"] = int64(cfg.Height)
	}

	for _, r := range p.rules {
		ok, err := expressions.EvaluateBool(ctx, p.engine, r.Expr, data)
		if err != nil {
			return schema.NewErrorf(schema.ErrCodeInvalidUpload, "upload rule %q failed", r.Name).WithCause(err)
		}
		if !ok {
			return schema.NewError(schema.ErrCodeInvalidUpload, r.Message).
				WithDetails(map[string]any{"rule": r.Name, "name": up.Name})
		}
	}
	return nil
}

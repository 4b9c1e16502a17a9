package validation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/santhosh-tekuri/jsonschema/v6/kind"

	"github.com/rendis/papercut/pkg/schema"
)

// Kind names one response schema.
type Kind string

const (
	KindGenerate Kind = "generate_pattern"
	KindAnalyze  Kind = "analyze_steps"
	KindError    Kind = "error"
)

const generateSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["image"],
  "properties": {
    "image": {"type": "string", "minLength": 1}
  }
}`

const analyzeSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["steps"],
  "properties": {
    "steps": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["description"],
        "properties": {
          "step": {"type": "integer", "minimum": 1, "maximum": 2147483647},
          "description": {"type": "string"}
        }
      }
    },
    "svg_data": {"type": ["string", "null"]},
    "visualization": {"type": ["string", "null"]}
  }
}`

const errorSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "properties": {
    "error": {"type": "string"},
    "message": {"type": "string"}
  }
}`

var schemaSources = map[Kind]string{
	KindGenerate: generateSchemaJSON,
	KindAnalyze:  analyzeSchemaJSON,
	KindError:    errorSchemaJSON,
}

// hints map the instance location of the first violation to a user-facing summary.
var hints = map[Kind][]locationHint{
	KindGenerate: {
		{"/image", "the server returned no pattern image"},
		{"/", "the server returned an invalid pattern response"},
	},
	KindAnalyze: {
		{"/steps", "no valid cutting steps were produced"},
		{"/svg_data", "the server returned invalid vector data"},
		{"/visualization", "the server returned an invalid visualization"},
		{"/", "the server returned an invalid response format"},
	},
}

type locationHint struct {
	prefix  string
	summary string
}

// ResponseValidator validates remote-service responses against embedded JSON
// Schemas (Draft 2020-12). Schemas are compiled once; it is safe for concurrent use.
type ResponseValidator struct {
	schemas map[Kind]*jsonschema.Schema
}

// NewResponseValidator compiles every response schema.
func NewResponseValidator() (*ResponseValidator, error) {
	c := jsonschema.NewCompiler()
	c.AssertFormat()

	v := &ResponseValidator{schemas: make(map[Kind]*jsonschema.Schema, len(schemaSources))}
	for kind, src := range schemaSources {
		url := fmt.Sprintf("https://papercut.dev/schemas/%s.json", kind)
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(src))
		if err != nil {
			return nil, fmt.Errorf("unmarshal %s schema: %w", kind, err)
		}
		if err := c.AddResource(url, doc); err != nil {
			return nil, fmt.Errorf("add %s schema resource: %w", kind, err)
		}
		compiled, err := c.Compile(url)
		if err != nil {
			return nil, fmt.Errorf("compile %s schema: %w", kind, err)
		}
		v.schemas[kind] = compiled
	}
	return v, nil
}

// Validate checks body against the schema of kind.
func (v *ResponseValidator) Validate(kind Kind, body []byte) error {
	compiled, ok := v.schemas[kind]
	if !ok {
		return schema.NewErrorf(schema.ErrCodeValidation, "unknown response kind %q", kind)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return schema.NewError(schema.ErrCodeDecode, "empty response body").
			WithDetails(map[string]any{"kind": string(kind)})
	}

	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(body))
	if err != nil {
		return schema.NewError(schema.ErrCodeDecode, "response is not valid JSON").
			WithCause(err).
			WithDetails(map[string]any{"kind": string(kind)})
	}

	if err := compiled.Validate(doc); err != nil {
		return toDecodeError(kind, err)
	}
	return nil
}

// DecodeGenerate validates and decodes a /generate_pattern success body.
func (v *ResponseValidator) DecodeGenerate(body []byte) (*schema.GenerateResponse, error) {
	if err := v.Validate(KindGenerate, body); err != nil {
		return nil, err
	}
	var resp schema.GenerateResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, schema.NewError(schema.ErrCodeDecode, "decode pattern response").WithCause(err)
	}
	return &resp, nil
}

// DecodeAnalyze validates and decodes an /analyze_steps success body.
// Steps without an explicit index get their 1-based position.
func (v *ResponseValidator) DecodeAnalyze(body []byte) (*schema.AnalysisResult, error) {
	if err := v.Validate(KindAnalyze, body); err != nil {
		return nil, err
	}

	var resp schema.AnalyzeResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, schema.NewError(schema.ErrCodeDecode, "decode analysis response").WithCause(err)
	}
	var wire []schema.WireStep
	if err := json.Unmarshal(resp.Steps, &wire); err != nil {
		return nil, schema.NewError(schema.ErrCodeDecode, "decode analysis steps").WithCause(err)
	}

	steps := make([]schema.Step, len(wire))
	for i, ws := range wire {
		idx := i + 1
		if ws.Step != nil {
			// The schema already holds the value to a whole number in int32 range.
			f, err := ws.Step.Float64()
			if err != nil {
				return nil, schema.NewErrorf(schema.ErrCodeDecode, "decode step %d index", i+1).WithCause(err)
			}
			idx = int(f)
		}
		steps[i] = schema.Step{Index: idx, Description: ws.Description}
	}

	result := &schema.AnalysisResult{
		Steps: schema.StepList{Steps: steps, Raw: append(json.RawMessage(nil), resp.Steps...)},
	}
	if resp.Visualization != nil {
		result.Raster = *resp.Visualization
	}
	if resp.SVGData != nil {
		result.Vector = *resp.SVGData
	}
	return result, nil
}

// DecodeError decodes a failure body. Callers usually fall back to a default
// message when this fails.
func (v *ResponseValidator) DecodeError(body []byte) (*schema.ErrorResponse, error) {
	if err := v.Validate(KindError, body); err != nil {
		return nil, err
	}
	var resp struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, schema.NewError(schema.ErrCodeDecode, "decode error response").WithCause(err)
	}
	msg := resp.Error
	if msg == "" {
		msg = resp.Message
	}
	return &schema.ErrorResponse{Error: msg}, nil
}

// toDecodeError converts a jsonschema.ValidationError into a DECODE_ERROR with the
// violations attached and a summary chosen from the first violation's location.
func toDecodeError(kind Kind, err error) *schema.Error {
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return schema.NewError(schema.ErrCodeDecode, err.Error())
	}

	violations := collectViolations(verr)
	if len(violations) == 0 {
		return schema.NewError(schema.ErrCodeDecode, verr.Error())
	}

	summary := summarize(kind, violations[0])
	return schema.NewErrorf(schema.ErrCodeDecode, "%s (%s)", summary, violations[0].String()).
		WithDetails(map[string]any{
			"kind":       string(kind),
			"violations": violationStrings(violations),
		})
}

type violation struct {
	location string
	message  string
	missing  []string // required properties absent at location
}

func (v violation) String() string {
	return fmt.Sprintf("%s: %s", v.location, v.message)
}

// collectViolations walks a ValidationError tree and collects leaf errors
// with their instance locations.
func collectViolations(verr *jsonschema.ValidationError) []violation {
	if len(verr.Causes) == 0 {
		loc := "/"
		if len(verr.InstanceLocation) > 0 {
			loc = "/" + strings.Join(verr.InstanceLocation, "/")
		}
		v := violation{location: loc, message: verr.Error()}
		if req, ok := verr.ErrorKind.(*kind.Required); ok {
			v.missing = req.Missing
		}
		return []violation{v}
	}

	var out []violation
	for _, cause := range verr.Causes {
		out = append(out, collectViolations(cause)...)
	}
	return out
}

func summarize(kind Kind, v violation) string {
	fallback := fmt.Sprintf("invalid %s response", kind)
	for _, h := range hints[kind] {
		if h.prefix == "/" {
			fallback = h.summary
			continue
		}
		field := strings.TrimPrefix(h.prefix, "/")
		if strings.HasPrefix(v.location, h.prefix) ||
			(v.location == "/" && slices.Contains(v.missing, field)) {
			return h.summary
		}
	}
	return fallback
}

func violationStrings(vs []violation) []string {
	out := make([]string, len(vs))
	for i, v := range vs {
		out[i] = v.String()
	}
	return out
}

var _ Decoder = (*ResponseValidator)(nil)

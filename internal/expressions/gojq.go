package expressions

import (
	"context"
	"encoding/json"

	"github.com/itchyny/gojq"

	"github.com/rendis/papercut/pkg/schema"
)

// GoJQEngine pulls human-readable text out of failure payloads returned by the server.
type GoJQEngine struct {
	progs *programs[*gojq.Code]
}

// NewGoJQEngine creates a jq engine. Queries see an empty $ENV.
func NewGoJQEngine() *GoJQEngine {
	return &GoJQEngine{
		progs: newPrograms("jq", func(src string) (*gojq.Code, error) {
			q, err := gojq.Parse(src)
			if err != nil {
				return nil, err
			}
			return gojq.Compile(q, gojq.WithEnvironLoader(func() []string { return nil }))
		}),
	}
}

// Name returns the engine identifier.
func (e *GoJQEngine) Name() string { return "jq" }

// Evaluate runs expression with data as the input object.
func (e *GoJQEngine) Evaluate(ctx context.Context, expression string, data map[string]any) (any, error) {
	if data == nil {
		data = map[string]any{}
	}
	return e.run(ctx, expression, data)
}

// EvaluateJSON runs expression over raw, which may be any JSON value.
func (e *GoJQEngine) EvaluateJSON(ctx context.Context, expression string, raw []byte) (any, error) {
	var input any
	if err := json.Unmarshal(raw, &input); err != nil {
		return nil, schema.NewError(schema.ErrCodeDecode, "payload is not valid JSON").WithCause(err)
	}
	return e.run(ctx, expression, input)
}

// run collects the outputs: none yields nil, one is returned as is, more
// come back as []any.
func (e *GoJQEngine) run(ctx context.Context, expression string, input any) (any, error) {
	code, err := e.progs.get(expression)
	if err != nil {
		return nil, err
	}

	var results []any
	iter := code.RunWithContext(ctx, input)
	for v, ok := iter.Next(); ok; v, ok = iter.Next() {
		if err, isErr := v.(error); isErr {
			return nil, evalError("jq", expression, err)
		}
		results = append(results, v)
	}

	switch len(results) {
	case 0:
		return nil, nil
	case 1:
		return results[0], nil
	}
	return results, nil
}

var _ Engine = (*GoJQEngine)(nil)

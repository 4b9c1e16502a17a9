package expressions

import (
	"context"
	"sync"

	"github.com/rendis/papercut/pkg/schema"
)

// Engine evaluates expressions against a data map.
// Three implementations: CEL (upload policy), Expr (cutting guards), GoJQ (payload extraction).
type Engine interface {
	Name() string
	Evaluate(ctx context.Context, expression string, data map[string]any) (any, error)
}

// EvaluateBool evaluates expression and requires a boolean result.
func EvaluateBool(ctx context.Context, e Engine, expression string, data map[string]any) (bool, error) {
	out, err := e.Evaluate(ctx, expression, data)
	if err != nil {
		return false, err
	}
	b, ok := out.(bool)
	if !ok {
		return false, schema.NewErrorf(schema.ErrCodeEvaluation,
			"%s expression %q returned %T, want bool", e.Name(), expression, out).
			WithDetails(map[string]any{"expression": expression})
	}
	return b, nil
}

// programs memoizes compiled programs by source text. Compilation failures
// are not cached. Safe for concurrent use.
type programs[P any] struct {
	engine  string
	compile func(expression string) (P, error)

	mu    sync.Mutex
	bySrc map[string]P
}

func newPrograms[P any](engine string, compile func(string) (P, error)) *programs[P] {
	return &programs[P]{engine: engine, compile: compile, bySrc: make(map[string]P)}
}

func (c *programs[P]) get(expression string) (P, error) {
	var zero P
	if expression == "" {
		return zero, schema.NewErrorf(schema.ErrCodeValidation, "empty %s expression", c.engine)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.bySrc[expression]; ok {
		return p, nil
	}
	p, err := c.compile(expression)
	if err != nil {
		return zero, compileError(c.engine, expression, err)
	}
	c.bySrc[expression] = p
	return p, nil
}

func compileError(engine, expression string, err error) *schema.Error {
	return schema.NewErrorf(schema.ErrCodeValidation, "%s: cannot compile %q: %s", engine, expression, err.Error()).
		WithCause(err).
		WithDetails(map[string]any{"expression": expression})
}

func evalError(engine, expression string, err error) *schema.Error {
	return schema.NewErrorf(schema.ErrCodeEvaluation, "%s: evaluating %q: %s", engine, expression, err.Error()).
		WithCause(err).
		WithDetails(map[string]any{"expression": expression})
}

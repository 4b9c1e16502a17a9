package expressions

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"
)

// Var declares a top-level CEL variable and the value it takes when the
// evaluation data omits it.
type Var struct {
	Name    string
	Type    *cel.Type
	Default any
}

// CELEngine evaluates upload policy predicates over a fixed set of declared variables.
type CELEngine struct {
	vars  []Var
	progs *programs[cel.Program]
}

// NewCELEngine creates a CEL engine whose environment exposes exactly vars.
func NewCELEngine(vars ...Var) (*CELEngine, error) {
	opts := make([]cel.EnvOption, 0, len(vars))
	for _, v := range vars {
		opts = append(opts, cel.Variable(v.Name, v.Type))
	}
	env, err := cel.NewEnv(opts...)
	if err != nil {
		return nil, fmt.Errorf("create CEL environment: %w", err)
	}

	return &CELEngine{
		vars: vars,
		progs: newPrograms("cel", func(src string) (cel.Program, error) {
			ast, issues := env.Compile(src)
			if err := issues.Err(); err != nil {
				return nil, err
			}
			return env.Program(ast)
		}),
	}, nil
}

// Name returns the engine identifier.
func (e *CELEngine) Name() string { return "cel" }

// Evaluate runs expression against data. Declared variables missing from data
// take their default.
func (e *CELEngine) Evaluate(ctx context.Context, expression string, data map[string]any) (any, error) {
	prg, err := e.progs.get(expression)
	if err != nil {
		return nil, err
	}

	act := make(map[string]any, len(e.vars))
	for _, v := range e.vars {
		act[v.Name] = v.Default
		if val, ok := data[v.Name]; ok && val != nil {
			act[v.Name] = val
		}
	}

	out, _, err := prg.ContextEval(ctx, act)
	if err != nil {
		return nil, evalError("cel", expression, err)
	}
	return out.Value(), nil
}

// Check compiles expression without evaluating it, so rule sets fail at load time.
func (e *CELEngine) Check(expression string) error {
	_, err := e.progs.get(expression)
	return err
}

var _ Engine = (*CELEngine)(nil)

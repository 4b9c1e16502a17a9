package expressions

import (
	"context"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// ExprEngine evaluates the cutting transition guards with expr-lang/expr.
// The environment is untyped: variables absent from data are nil.
type ExprEngine struct {
	progs *programs[*vm.Program]
}

// NewExprEngine creates an Expr engine.
func NewExprEngine() *ExprEngine {
	return &ExprEngine{
		progs: newPrograms("expr", func(src string) (*vm.Program, error) {
			return expr.Compile(src, expr.AllowUndefinedVariables())
		}),
	}
}

// Name returns the engine identifier.
func (e *ExprEngine) Name() string { return "expr" }

// Evaluate runs expression with data as the environment.
func (e *ExprEngine) Evaluate(_ context.Context, expression string, data map[string]any) (any, error) {
	prg, err := e.progs.get(expression)
	if err != nil {
		return nil, err
	}
	if data == nil {
		data = map[string]any{}
	}
	out, err := vm.Run(prg, data)
	if err != nil {
		return nil, evalError("expr", expression, err)
	}
	return out, nil
}

var _ Engine = (*ExprEngine)(nil)

// Package expression evaluates the engine's expressions with expr-lang.
// Compiled programs are cached by content so guards re-evaluated on every
// token arrival do not recompile.
package expression

import (
	"fmt"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/project-flogo/core/data/coerce"

	"github.com/procflow/engine/service"
)

// Expression languages understood by the gateway
const (
	TypeExpr    = "expr"
	TypeLiteral = "literal"
)

// Gateway implements service.ExpressionGateway on top of expr-lang
type Gateway struct {
	mu    sync.RWMutex
	cache map[string]*vm.Program
}

// NewGateway creates an expression Gateway with an empty program cache
func NewGateway() *Gateway {
	return &Gateway{cache: make(map[string]*vm.Program)}
}

// Eval implements service.ExpressionGateway.Eval
func (g *Gateway) Eval(e *service.Expression, scope map[string]interface{}) (interface{}, error) {

	if e == nil {
		return nil, fmt.Errorf("no expression to evaluate")
	}

	var val interface{}

	switch e.Type {
	case TypeLiteral:
		val = e.Content
	case TypeExpr, "":
		program, err := g.compile(e.Content)
		if err != nil {
			return nil, fmt.Errorf("unable to compile expression '%s': %w", e.Content, err)
		}
		val, err = expr.Run(program, scope)
		if err != nil {
			return nil, fmt.Errorf("unable to evaluate expression '%s': %w", e.Content, err)
		}
	default:
		return nil, fmt.Errorf("unsupported expression type '%s'", e.Type)
	}

	return coerceReturn(val, e.ReturnType)
}

func (g *Gateway) compile(content string) (*vm.Program, error) {

	g.mu.RLock()
	program, ok := g.cache[content]
	g.mu.RUnlock()
	if ok {
		return program, nil
	}

	program, err := expr.Compile(content, expr.AllowUndefinedVariables())
	if err != nil {
		return nil, err
	}

	g.mu.Lock()
	g.cache[content] = program
	g.mu.Unlock()

	return program, nil
}

func coerceReturn(val interface{}, returnType string) (interface{}, error) {
	switch returnType {
	case service.ExprTypeBoolean:
		return coerce.ToBool(val)
	case service.ExprTypeInteger:
		return coerce.ToInt(val)
	case service.ExprTypeString:
		return coerce.ToString(val)
	default:
		return val, nil
	}
}

package expression

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/procflow/engine/service"
)

func TestEvalAgainstScope(t *testing.T) {

	gw := NewGateway()

	val, err := gw.Eval(&service.Expression{Content: "total * 2"}, map[string]interface{}{"total": 21})
	assert.Nil(t, err)
	assert.Equal(t, 42, val)
}

func TestEvalBooleanCoercion(t *testing.T) {

	gw := NewGateway()

	val, err := gw.Eval(&service.Expression{Content: "amount > 10", ReturnType: service.ExprTypeBoolean}, map[string]interface{}{"amount": 15})
	assert.Nil(t, err)
	assert.Equal(t, true, val)
}

func TestEvalUndefinedVariable(t *testing.T) {

	gw := NewGateway()

	// undefined names resolve to nil instead of failing compilation
	val, err := gw.Eval(&service.Expression{Content: "missing == nil"}, map[string]interface{}{})
	assert.Nil(t, err)
	assert.Equal(t, true, val)
}

func TestEvalLiteral(t *testing.T) {

	gw := NewGateway()

	val, err := gw.Eval(&service.Expression{Type: TypeLiteral, Content: "3", ReturnType: service.ExprTypeInteger}, nil)
	assert.Nil(t, err)
	assert.Equal(t, 3, val)
}

func TestEvalInvalidExpression(t *testing.T) {

	gw := NewGateway()

	_, err := gw.Eval(&service.Expression{Content: "total >"}, nil)
	assert.NotNil(t, err)
}

func TestProgramCacheReuse(t *testing.T) {

	gw := NewGateway()

	_, err := gw.Eval(&service.Expression{Content: "n + 1"}, map[string]interface{}{"n": 1})
	assert.Nil(t, err)
	assert.Equal(t, 1, len(gw.cache))

	val, err := gw.Eval(&service.Expression{Content: "n + 1"}, map[string]interface{}{"n": 5})
	assert.Nil(t, err)
	assert.Equal(t, 6, val)
	assert.Equal(t, 1, len(gw.cache))
}

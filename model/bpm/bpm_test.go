package bpm

import (
	"testing"

	"github.com/project-flogo/core/data/coerce"
	"github.com/project-flogo/core/support/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/procflow/engine/definition"
	"github.com/procflow/engine/expression"
	"github.com/procflow/engine/model"
	"github.com/procflow/engine/service"
)

// fakeNodeContext drives a behavior directly, without the executor
type fakeNodeContext struct {
	node   *definition.Node
	status model.NodeStatus
	vars   map[string]interface{}
	expr   service.ExpressionGateway

	arrived  int
	expected int
	upstream bool

	completedChildren int
	totalChildren     int
	spawned           int
	abortedRemaining  bool
	loopChild         bool

	childTerminal bool
	childAborted  bool

	aborting    bool
	enterHooks  int
	finishHooks int
}

func newFakeContext(node *definition.Node, vars map[string]interface{}) *fakeNodeContext {
	if vars == nil {
		vars = map[string]interface{}{}
	}
	return &fakeNodeContext{node: node, vars: vars, expr: expression.NewGateway()}
}

func (c *fakeNodeContext) Status() model.NodeStatus { return c.status }
func (c *fakeNodeContext) SetStatus(status model.NodeStatus) { c.status = status }
func (c *fakeNodeContext) Node() *definition.Node { return c.node }

func (c *fakeNodeContext) Tokens() (int, int) { return c.arrived, c.expected }
func (c *fakeNodeContext) SetExpectedTokens(expected int) { c.expected = expected }
func (c *fakeNodeContext) ArriveToken() int {
	c.arrived++
	return c.arrived
}

func (c *fakeNodeContext) HasActiveUpstream() (bool, error) { return c.upstream, nil }

func (c *fakeNodeContext) EvalExpr(expr *service.Expression, extra map[string]interface{}) (interface{}, error) {
	scope := make(map[string]interface{}, len(c.vars)+len(extra))
	for k, v := range c.vars {
		scope[k] = v
	}
	for k, v := range extra {
		scope[k] = v
	}
	return c.expr.Eval(expr, scope)
}

func (c *fakeNodeContext) EvalGuard(t *definition.Transition) (bool, error) {
	val, err := c.EvalExpr(t.Guard(), nil)
	if err != nil {
		return false, err
	}
	return coerce.ToBool(val)
}

func (c *fakeNodeContext) RunOnEnterHooks() error {
	c.enterHooks++
	return nil
}

func (c *fakeNodeContext) RunOnFinishHooks() error {
	c.finishHooks++
	return nil
}

func (c *fakeNodeContext) SpawnChildren(count int) error {
	c.spawned = count
	c.totalChildren = count
	return nil
}

func (c *fakeNodeContext) LoopCounts() (int, int) { return c.completedChildren, c.totalChildren }
func (c *fakeNodeContext) LoopChild() bool { return c.loopChild }

func (c *fakeNodeContext) AbortRemainingChildren() error {
	c.abortedRemaining = true
	return nil
}

func (c *fakeNodeContext) StartChildProcess(name string, version int) error { return nil }
func (c *fakeNodeContext) ChildOutcome() (bool, bool) { return c.childTerminal, c.childAborted }
func (c *fakeNodeContext) SubscribeEvent(spec *definition.EventSpec) error { return nil }
func (c *fakeNodeContext) Aborting() bool { return c.aborting }
func (c *fakeNodeContext) ProcessLogger() log.Logger { return log.RootLogger() }

func exprOf(content string) *service.Expression {
	return &service.Expression{Content: content}
}

func buildDef(t *testing.T, rep *definition.DefinitionRep) *definition.Definition {
	t.Helper()
	def, err := definition.New(rep)
	require.Nil(t, err)
	return def
}

func routingDef(t *testing.T) *definition.Definition {
	return buildDef(t, &definition.DefinitionRep{
		Name:    "routing",
		Version: 1,
		Nodes: []*definition.NodeRep{
			{ID: "decide", Type: definition.TypeGateway, Gateway: "exclusive"},
			{ID: "big"},
			{ID: "mid"},
			{ID: "small"},
		},
		Transitions: []*definition.TransitionRep{
			{ID: 1, From: "decide", To: "big", Guard: exprOf("amount > 100")},
			{ID: 2, From: "decide", To: "mid", Guard: exprOf("amount > 10")},
			{ID: 3, From: "decide", To: "small", Default: true},
		},
	})
}

func entryIDs(entries []*model.NodeEntry) []string {
	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		ids = append(ids, entry.Node.ID())
	}
	return ids
}

func TestExclusiveResolutionTakesFirstMatch(t *testing.T) {

	def := routingDef(t)
	ctx := newFakeContext(def.GetNode("decide"), map[string]interface{}{"amount": 50})

	entries, err := resolveExclusive(ctx)
	assert.Nil(t, err)
	assert.Equal(t, []string{"mid"}, entryIDs(entries))
}

func TestExclusiveResolutionFallsBackToDefault(t *testing.T) {

	def := routingDef(t)
	ctx := newFakeContext(def.GetNode("decide"), map[string]interface{}{"amount": 1})

	entries, err := resolveExclusive(ctx)
	assert.Nil(t, err)
	assert.Equal(t, []string{"small"}, entryIDs(entries))
}

func TestExclusiveResolutionWithoutMatchOrDefaultFails(t *testing.T) {

	def := buildDef(t, &definition.DefinitionRep{
		Name:    "strict",
		Version: 1,
		Nodes: []*definition.NodeRep{
			{ID: "decide", Type: definition.TypeGateway, Gateway: "exclusive"},
			{ID: "path"},
		},
		Transitions: []*definition.TransitionRep{
			{ID: 1, From: "decide", To: "path", Guard: exprOf("amount > 100")},
		},
	})
	ctx := newFakeContext(def.GetNode("decide"), map[string]interface{}{"amount": 1})

	_, err := resolveExclusive(ctx)
	var resErr *service.DefinitionResolutionError
	require.ErrorAs(t, err, &resErr)
	assert.Equal(t, "decide", resErr.NodeID())
}

func TestInclusiveResolutionTakesEveryMatch(t *testing.T) {

	def := buildDef(t, &definition.DefinitionRep{
		Name:    "multi-route",
		Version: 1,
		Nodes: []*definition.NodeRep{
			{ID: "route", Type: definition.TypeGateway, Gateway: "inclusive"},
			{ID: "email"},
			{ID: "sms"},
			{ID: "none"},
		},
		Transitions: []*definition.TransitionRep{
			{ID: 1, From: "route", To: "email", Guard: exprOf("email != nil")},
			{ID: 2, From: "route", To: "sms", Guard: exprOf("phone != nil")},
			{ID: 3, From: "route", To: "none", Default: true},
		},
	})

	ctx := newFakeContext(def.GetNode("route"), map[string]interface{}{"email": "a@b", "phone": "555"})
	entries, err := resolveInclusive(ctx)
	assert.Nil(t, err)
	assert.Equal(t, []string{"email", "sms"}, entryIDs(entries))

	// nothing matches: the declared default is taken instead
	ctx = newFakeContext(def.GetNode("route"), nil)
	entries, err = resolveInclusive(ctx)
	assert.Nil(t, err)
	assert.Equal(t, []string{"none"}, entryIDs(entries))
}

func joinDef(t *testing.T, kind string) *definition.Definition {
	return buildDef(t, &definition.DefinitionRep{
		Name:    "join",
		Version: 1,
		Nodes: []*definition.NodeRep{
			{ID: "a"},
			{ID: "b"},
			{ID: "join", Type: definition.TypeGateway, Gateway: kind},
		},
		Transitions: []*definition.TransitionRep{
			{ID: 1, From: "a", To: "join"},
			{ID: 2, From: "b", To: "join"},
		},
	})
}

func TestParallelJoinFiresOnLastToken(t *testing.T) {

	def := joinDef(t, "parallel")
	ctx := newFakeContext(def.GetNode("join"), nil)
	behavior := &GatewayBehavior{}

	assert.Equal(t, model.EnterNotReady, behavior.Enter(ctx))
	assert.Equal(t, model.EnterExec, behavior.Enter(ctx))

	result, err := behavior.Exec(ctx)
	assert.Nil(t, err)
	assert.Equal(t, model.ExecDone, result)

	// a late token after the join fired is absorbed
	ctx.status = model.NodeStatusCompleted
	assert.Equal(t, model.EnterNotReady, behavior.Enter(ctx))
}

func TestInclusiveJoinFiresWhenUpstreamDrained(t *testing.T) {

	def := joinDef(t, "inclusive")
	behavior := &GatewayBehavior{}

	// a live upstream branch holds the join open
	ctx := newFakeContext(def.GetNode("join"), nil)
	ctx.upstream = true
	assert.Equal(t, model.EnterNotReady, behavior.Enter(ctx))

	// no branch can still reach it: fire with the tokens at hand
	ctx = newFakeContext(def.GetNode("join"), nil)
	ctx.upstream = false
	assert.Equal(t, model.EnterExec, behavior.Enter(ctx))
}

func loopDef(t *testing.T, completion string) *definition.Definition {
	rep := &definition.DefinitionRep{
		Name:    "batch",
		Version: 1,
		Nodes: []*definition.NodeRep{
			{ID: "work", Loop: &definition.LoopRep{
				Cardinality: &service.Expression{Content: "count", ReturnType: "integer"},
			}},
		},
	}
	if completion != "" {
		rep.Nodes[0].Loop.CompletionCondition = exprOf(completion)
	}
	return buildDef(t, rep)
}

func TestMultiInstanceFansOutPerCardinality(t *testing.T) {

	def := loopDef(t, "")
	ctx := newFakeContext(def.GetNode("work"), map[string]interface{}{"count": 3})

	result, err := execMultiInstance(ctx)
	assert.Nil(t, err)
	assert.Equal(t, model.ExecWait, result)
	assert.Equal(t, 3, ctx.spawned)
	assert.Equal(t, 0, ctx.enterHooks, "the container must not run the node hooks")
}

func TestMultiInstanceZeroCardinalityIsImmediatelyDone(t *testing.T) {

	def := loopDef(t, "")
	ctx := newFakeContext(def.GetNode("work"), map[string]interface{}{"count": 0})

	result, err := execMultiInstance(ctx)
	assert.Nil(t, err)
	assert.Equal(t, model.ExecDone, result)
	assert.Equal(t, 0, ctx.spawned)
}

func TestMultiInstanceRejectsNegativeCardinality(t *testing.T) {

	def := loopDef(t, "")
	ctx := newFakeContext(def.GetNode("work"), map[string]interface{}{"count": -2})

	result, err := execMultiInstance(ctx)
	assert.NotNil(t, err)
	assert.Equal(t, model.ExecFail, result)
}

func TestMultiInstanceWaitsForAllChildren(t *testing.T) {

	def := loopDef(t, "")
	ctx := newFakeContext(def.GetNode("work"), nil)
	ctx.totalChildren = 3
	ctx.completedChildren = 2

	result, err := resumeMultiInstance(ctx)
	assert.Nil(t, err)
	assert.Equal(t, model.ExecWait, result)

	ctx.completedChildren = 3
	result, err = resumeMultiInstance(ctx)
	assert.Nil(t, err)
	assert.Equal(t, model.ExecDone, result)
	assert.False(t, ctx.abortedRemaining)
}

func TestMultiInstanceEarlyCompletionAbortsRemainingChildren(t *testing.T) {

	def := loopDef(t, "completedCount >= 1")
	ctx := newFakeContext(def.GetNode("work"), nil)
	ctx.totalChildren = 5
	ctx.completedChildren = 1

	result, err := resumeMultiInstance(ctx)
	assert.Nil(t, err)
	assert.Equal(t, model.ExecDone, result)
	assert.True(t, ctx.abortedRemaining)
}

func TestMultiInstanceCompletionConditionSeesLoopCounts(t *testing.T) {

	def := loopDef(t, "completedCount == instanceCount")
	ctx := newFakeContext(def.GetNode("work"), nil)
	ctx.totalChildren = 2
	ctx.completedChildren = 1

	result, err := resumeMultiInstance(ctx)
	assert.Nil(t, err)
	assert.Equal(t, model.ExecWait, result)
	assert.False(t, ctx.abortedRemaining)
}

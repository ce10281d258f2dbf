package instance

import (
	"context"

	"github.com/project-flogo/core/data/coerce"
	"github.com/project-flogo/core/support/log"

	"github.com/procflow/engine/definition"
	"github.com/procflow/engine/model"
	"github.com/procflow/engine/service"
)

// Action names the state-machine step a work item requests
type Action string

const (
	// ActionExec runs a ready node instance
	ActionExec Action = "exec"

	// ActionResume notifies a waiting node instance: an event matched, a
	// timer fired or a child execution completed
	ActionResume Action = "resume"

	// ActionChildDone notifies a call activity that its callee reached a
	// terminal state
	ActionChildDone Action = "child-done"

	// ActionCancel requests graceful termination of a process instance
	ActionCancel Action = "cancel"

	// ActionAbort requests forced termination of a process instance
	ActionAbort Action = "abort"

	// ActionEventSubprocess starts an event subprocess inside a running
	// process instance
	ActionEventSubprocess Action = "event-subprocess"
)

// DefinitionResolver resolves a deployed definition by name and version; a
// zero version selects the latest deployed one
type DefinitionResolver interface {
	Lookup(name string, version int) (*definition.Definition, error)
}

// EventSubscriber is the surface of the event correlation engine the
// executor consumes
type EventSubscriber interface {

	// Subscribe persists a waiting-event subscription for a catch node
	Subscribe(pi *ProcessInstance, ni *NodeInst, spec *definition.EventSpec) error

	// Unsubscribe removes the subscriptions targeting a node instance and
	// cancels any timer trigger it owns
	Unsubscribe(ni *NodeInst) error

	// SubscribeScope persists the event-subprocess subscriptions of a
	// freshly started process instance
	SubscribeScope(pi *ProcessInstance) error

	// UnsubscribeScope removes every remaining subscription of a process
	// instance, including its event-subprocess ones
	UnsubscribeScope(processID string) error
}

// WorkScheduler enqueues follow-up work items
type WorkScheduler interface {

	// ScheduleNode enqueues a node-level work item.  Non-control payload
	// entries are merged into the instance variables when the item runs.
	ScheduleNode(processID, nodeInstID string, action Action, payload map[string]interface{})

	// ScheduleProcess enqueues a process-level work item
	ScheduleProcess(processID string, action Action, payload map[string]interface{})
}

// processContext adapts a ProcessInstance to model.ProcessContext
type processContext struct {
	pi *ProcessInstance
}

func (c *processContext) Definition() *definition.Definition {
	return c.pi.def
}

func (c *processContext) NodeInstances() []model.NodeInstance {
	return c.pi.NodeInstances()
}

func (c *processContext) Status() model.ProcessStatus {
	return c.pi.Status
}

func (c *processContext) Logger() log.Logger {
	return c.pi.logger
}

// nodeContext adapts a NodeInst to model.NodeContext for one state-machine
// step
type nodeContext struct {
	goctx context.Context
	exec  *Executor
	pi    *ProcessInstance
	ni    *NodeInst
}

func (c *nodeContext) Status() model.NodeStatus {
	return c.ni.Status
}

func (c *nodeContext) SetStatus(status model.NodeStatus) {
	c.ni.Status = status
}

func (c *nodeContext) Node() *definition.Node {
	return c.ni.node
}

func (c *nodeContext) Tokens() (arrived, expected int) {
	return c.ni.TokensArrived, c.ni.TokensExpected
}

func (c *nodeContext) SetExpectedTokens(expected int) {
	c.ni.TokensExpected = expected
}

func (c *nodeContext) ArriveToken() int {
	c.ni.TokensArrived++
	return c.ni.TokensArrived
}

func (c *nodeContext) HasActiveUpstream() (bool, error) {
	return c.exec.hasActiveUpstream(c.pi, c.ni)
}

func (c *nodeContext) EvalExpr(expr *service.Expression, extra map[string]interface{}) (interface{}, error) {
	return c.exec.expr.Eval(expr, c.pi.Scope(extra))
}

func (c *nodeContext) EvalGuard(t *definition.Transition) (bool, error) {
	val, err := c.exec.expr.Eval(t.Guard(), c.pi.Scope(nil))
	if err != nil {
		return false, err
	}
	return coerce.ToBool(val)
}

func (c *nodeContext) RunOnEnterHooks() error {
	return c.exec.runHooks(c.goctx, c.pi, c.ni, c.ni.node.OnEnterHooks(), 0)
}

func (c *nodeContext) RunOnFinishHooks() error {
	return c.exec.runHooks(c.goctx, c.pi, c.ni, c.ni.node.OnFinishHooks(), len(c.ni.node.OnEnterHooks()))
}

func (c *nodeContext) SpawnChildren(count int) error {
	return c.exec.spawnLoopChildren(c.pi, c.ni, count)
}

func (c *nodeContext) LoopCounts() (completed, total int) {
	return c.ni.CompletedChildren, c.ni.LoopCardinality
}

func (c *nodeContext) LoopChild() bool {
	return c.ni.IsLoopChild()
}

func (c *nodeContext) AbortRemainingChildren() error {
	return c.exec.abortLoopChildren(c.pi, c.ni)
}

func (c *nodeContext) StartChildProcess(name string, version int) error {
	return c.exec.startCallee(c.pi, c.ni, name, version)
}

func (c *nodeContext) ChildOutcome() (terminal bool, aborted bool) {
	return c.ni.ChildTerminal, c.ni.ChildAborted
}

func (c *nodeContext) SubscribeEvent(spec *definition.EventSpec) error {
	return c.exec.events.Subscribe(c.pi, c.ni, spec)
}

func (c *nodeContext) Aborting() bool {
	return c.pi.Aborting
}

func (c *nodeContext) ProcessLogger() log.Logger {
	return c.pi.logger
}

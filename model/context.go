package model

import (
	"github.com/project-flogo/core/support/log"

	"github.com/procflow/engine/definition"
	"github.com/procflow/engine/service"
)

// ProcessContext is the execution context of a process instance when
// executing a ProcessBehavior function
type ProcessContext interface {

	// Definition returns the process definition associated with this context
	Definition() *definition.Definition

	// NodeInstances gets the live node instances of the process instance
	NodeInstances() []NodeInstance

	// Status gets the status of the process instance
	Status() ProcessStatus

	// Logger is the logger for the process instance
	Logger() log.Logger
}

// NodeContext is the execution context of a node instance when executing a
// NodeBehavior function
type NodeContext interface {

	// Status gets the status of the node instance
	Status() NodeStatus

	// SetStatus sets the status of the node instance
	SetStatus(status NodeStatus)

	// Node returns the definition node associated with this context
	Node() *definition.Node

	// Tokens returns the arrived and expected token counts of a join node
	Tokens() (arrived, expected int)

	// SetExpectedTokens fixes the number of tokens the node waits for
	SetExpectedTokens(expected int)

	// ArriveToken increments the arrived token count and returns it
	ArriveToken() int

	// HasActiveUpstream reports whether any live branch upstream of the
	// node can still reach it.  Used by the inclusive join predicate.
	HasActiveUpstream() (bool, error)

	// EvalExpr evaluates an expression against the instance variables,
	// extended with the specified extra values
	EvalExpr(expr *service.Expression, extra map[string]interface{}) (interface{}, error)

	// EvalGuard evaluates the guard of the specified transition
	EvalGuard(t *definition.Transition) (bool, error)

	// RunOnEnterHooks runs the node's on-enter connector hooks
	RunOnEnterHooks() error

	// RunOnFinishHooks runs the node's on-finish connector hooks
	RunOnFinishHooks() error

	// SpawnChildren creates count child executions of a multi-instance node
	SpawnChildren(count int) error

	// LoopCounts returns the completed child count and the loop cardinality
	// of a multi-instance node
	LoopCounts() (completed, total int)

	// LoopChild reports whether this instance is a child execution of a
	// multi-instance node rather than the fan-out container itself
	LoopChild() bool

	// AbortRemainingChildren aborts the non-terminal child executions of a
	// multi-instance node
	AbortRemainingChildren() error

	// StartChildProcess starts the callee of a call activity, parking the
	// caller until the callee reaches a terminal state
	StartChildProcess(name string, version int) error

	// ChildOutcome reports whether the callee reached a terminal state and
	// whether it was aborted or cancelled rather than completed
	ChildOutcome() (terminal bool, aborted bool)

	// SubscribeEvent persists a waiting-event subscription for the node
	SubscribeEvent(spec *definition.EventSpec) error

	// Aborting reports whether the enclosing process instance is being
	// aborted; behaviors must not produce further work when set
	Aborting() bool

	// ProcessLogger is the logger of the enclosing process instance
	ProcessLogger() log.Logger
}

// NodeInstance is the read-only view of a node instance exposed to process
// behaviors
type NodeInstance interface {

	// Node returns the definition node associated with this instance
	Node() *definition.Node

	// Status gets the status of the node instance
	Status() NodeStatus
}

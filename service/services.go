package service

import (
	"context"
)

// Expression return types.  The engine is type-agnostic over evaluated
// values; the declared return type only drives coercion at decision points.
const (
	ExprTypeBoolean = "boolean"
	ExprTypeInteger = "integer"
	ExprTypeString  = "string"
	ExprTypeAny     = "any"
)

// Expression is a typed expression to be evaluated by an ExpressionGateway.
// It is a tagged union of an expression language identifier, the expression
// content and its declared return type.
type Expression struct {
	Type       string `json:"type,omitempty"`
	Content    string `json:"content"`
	ReturnType string `json:"returnType,omitempty"`
}

// ExpressionGateway evaluates expressions against a variable scope.  Used for
// transition guards, multi-instance cardinality and completion conditions and
// call-activity target resolution.
type ExpressionGateway interface {

	// Eval evaluates the expression against the specified scope and returns
	// the resulting value
	Eval(expr *Expression, scope map[string]interface{}) (interface{}, error)
}

// HookSpec describes a connector hook attached to a node or process, run
// either on-enter or on-finish.
type HookSpec struct {
	ID      string                 `json:"id"`
	Ref     string                 `json:"ref"`
	OnEnter bool                   `json:"onEnter"`
	Config  map[string]interface{} `json:"config,omitempty"`
}

// ConnectorGateway executes connector hooks at node lifecycle points.  A
// returned error moves the owning node to the Failed status.
type ConnectorGateway interface {

	// Execute runs the specified hook against the scope, returning the hook
	// outputs
	Execute(ctx context.Context, hook *HookSpec, scope map[string]interface{}) (map[string]interface{}, error)
}

// TriggerSpec describes a timer trigger for a waiting catch event
type TriggerSpec struct {
	// At is an absolute fire time expressed as RFC3339, for one-shot timers
	At string `json:"at,omitempty"`

	// Cron is a cron expression, for repeating timers
	Cron string `json:"cron,omitempty"`
}

// JobHandle identifies a scheduled trigger so it can be cancelled when the
// waiting node is resumed or aborted
type JobHandle interface {
	Cancel()
}

// SchedulerGateway schedules timer triggers.  Firing calls back into the
// event correlation engine, it never blocks an engine worker.
type SchedulerGateway interface {

	// Schedule registers the trigger and invokes fire each time it elapses
	Schedule(spec *TriggerSpec, fire func()) (JobHandle, error)
}

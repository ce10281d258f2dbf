package service

import "fmt"

// NewDefinitionResolutionError creates a new DefinitionResolutionError
func NewDefinitionResolutionError(nodeID string, msg string) *DefinitionResolutionError {
	return &DefinitionResolutionError{nodeID: nodeID, msg: msg}
}

// DefinitionResolutionError indicates that the definition graph could not
// produce a successor for a node, e.g. no guard matched and no default
// transition was declared.  It is fatal to the branch that raised it.
type DefinitionResolutionError struct {
	nodeID string
	msg    string
}

func (e *DefinitionResolutionError) NodeID() string {
	return e.nodeID
}

func (e *DefinitionResolutionError) Error() string {
	return fmt.Sprintf("definition resolution failed at node '%s': %s", e.nodeID, e.msg)
}

// NewConnectorExecutionError creates a new ConnectorExecutionError
func NewConnectorExecutionError(hookID string, cause error) *ConnectorExecutionError {
	return &ConnectorExecutionError{hookID: hookID, cause: cause}
}

// ConnectorExecutionError indicates that a connector hook failed.  The owning
// node moves to Failed and stays there until an explicit replay.
type ConnectorExecutionError struct {
	hookID string
	cause  error
}

func (e *ConnectorExecutionError) HookID() string {
	return e.hookID
}

func (e *ConnectorExecutionError) Unwrap() error {
	return e.cause
}

func (e *ConnectorExecutionError) Error() string {
	return fmt.Sprintf("connector '%s' failed: %v", e.hookID, e.cause)
}

// NewConcurrencyConflictError creates a new ConcurrencyConflictError
func NewConcurrencyConflictError(kind string, id string) *ConcurrencyConflictError {
	return &ConcurrencyConflictError{kind: kind, id: id}
}

// ConcurrencyConflictError indicates an optimistic-revision conflict on a
// persistence write.  The dispatcher retries the work item; callers never see
// it directly.
type ConcurrencyConflictError struct {
	kind string
	id   string
}

func (e *ConcurrencyConflictError) Error() string {
	return fmt.Sprintf("revision conflict updating %s '%s'", e.kind, e.id)
}

// NewNotFoundError creates a new NotFoundError
func NewNotFoundError(kind string, id string) *NotFoundError {
	return &NotFoundError{kind: kind, id: id}
}

// NotFoundError indicates that a target definition or instance does not exist
type NotFoundError struct {
	kind string
	id   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s '%s' not found", e.kind, e.id)
}

// NewIllegalStateError creates a new IllegalStateError
func NewIllegalStateError(id string, msg string) *IllegalStateError {
	return &IllegalStateError{id: id, msg: msg}
}

// IllegalStateError indicates that an operation was delivered to a target in
// a state that cannot accept it, e.g. cancelling an already-terminal
// instance.  For cancel/abort double delivery it is swallowed as a no-op.
type IllegalStateError struct {
	id  string
	msg string
}

func (e *IllegalStateError) Error() string {
	return fmt.Sprintf("illegal state for '%s': %s", e.id, e.msg)
}

package instance

import (
	"github.com/procflow/engine/state"
)

// Store is the persistence gateway consumed by the executor.  Updates carry
// optimistic revisions: an implementation must reject a write whose record
// revision does not match the persisted one with a
// service.ConcurrencyConflictError, and bump the revision on success.
//
// The terminal-save operations pair the runtime write with its archive write
// in one transaction; partial application is never observable.
type Store interface {

	// CreateProcessInstance persists a new process instance record
	CreateProcessInstance(pi *ProcessInstance) error

	// UpdateProcessInstance persists changes to a process instance record
	UpdateProcessInstance(pi *ProcessInstance) error

	// GetProcessInstance returns the live process instance with the id
	GetProcessInstance(id string) (*ProcessInstance, error)

	// ListProcessInstances returns all live process instances
	ListProcessInstances() ([]*ProcessInstance, error)

	// SaveProcessTerminal atomically writes the archive copy of a terminal
	// process instance and removes its live records (instance, nodes,
	// waiting events)
	SaveProcessTerminal(pi *ProcessInstance, archived *state.ArchivedProcessInstance) error

	// CreateNodeInst persists a new node instance record
	CreateNodeInst(ni *NodeInst) error

	// UpdateNodeInst persists changes to a node instance record
	UpdateNodeInst(ni *NodeInst) error

	// GetNodeInst returns the node instance with the id
	GetNodeInst(id string) (*NodeInst, error)

	// NodesForProcess returns the live node instances of a process instance
	NodesForProcess(processID string) ([]*NodeInst, error)

	// NodesInProgress returns node instances left in a non-terminal
	// in-progress status, used by crash recovery
	NodesInProgress() ([]*NodeInst, error)

	// SaveNodeTerminal atomically updates a terminal node instance and
	// writes its archive copy
	SaveNodeTerminal(ni *NodeInst, archived *state.ArchivedNodeInstance) error

	// CreateWaitingEvent persists a waiting-event subscription
	CreateWaitingEvent(we *WaitingEvent) error

	// DeleteWaitingEvent removes a waiting-event subscription; removing an
	// absent subscription is not an error
	DeleteWaitingEvent(id string) error

	// MatchWaitingEvents returns the subscriptions exactly matching the
	// event type, name and correlation key, oldest first
	MatchWaitingEvents(eventType, name, correlationKey string) ([]*WaitingEvent, error)

	// WaitingEventsForProcess returns the subscriptions owned by a process
	// instance
	WaitingEventsForProcess(processID string) ([]*WaitingEvent, error)

	// WaitingEventsForNode returns the subscriptions targeting a node
	// instance
	WaitingEventsForNode(nodeInstID string) ([]*WaitingEvent, error)

	// GetArchivedProcessInstance returns the archived copy of a process
	// instance
	GetArchivedProcessInstance(id string) (*state.ArchivedProcessInstance, error)

	// ArchivedNodesForProcess returns the archived node instances of a
	// process instance
	ArchivedNodesForProcess(processID string) ([]*state.ArchivedNodeInstance, error)
}

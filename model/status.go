package model

type ProcessStatus int
type NodeStatus int

const (
	// ProcessStatusNotStarted indicates that the ProcessInstance has not started
	ProcessStatusNotStarted ProcessStatus = 0

	// ProcessStatusActive indicates that the ProcessInstance is active
	ProcessStatusActive ProcessStatus = 100

	// ProcessStatusCompleted indicates that the ProcessInstance has completed
	ProcessStatusCompleted ProcessStatus = 500

	// ProcessStatusCancelled indicates that the ProcessInstance was cancelled
	// by a caller
	ProcessStatusCancelled ProcessStatus = 600

	// ProcessStatusFailed indicates that the ProcessInstance has failed
	ProcessStatusFailed ProcessStatus = 700

	// ProcessStatusAborted indicates that the ProcessInstance was force
	// terminated, by an interrupting event or a cascading abort
	ProcessStatusAborted ProcessStatus = 800

	// NodeStatusNotStarted indicates that the node has not been started
	NodeStatusNotStarted NodeStatus = 0

	// NodeStatusCreated indicates that a transition has fired into the node
	NodeStatusCreated NodeStatus = 10

	// NodeStatusReady indicates that the node is ready to execute
	NodeStatusReady NodeStatus = 20

	// NodeStatusExecuting indicates that the node is executing
	NodeStatusExecuting NodeStatus = 30

	// NodeStatusWaiting indicates that the node is waiting on an external
	// event, timer or child completion
	NodeStatusWaiting NodeStatus = 40

	// NodeStatusCompleted indicates that the node completed normally
	NodeStatusCompleted NodeStatus = 100

	// NodeStatusSkipped indicates that the node was skipped
	NodeStatusSkipped NodeStatus = 110

	// NodeStatusCancelled indicates that the node was cancelled
	NodeStatusCancelled NodeStatus = 120

	// NodeStatusAborted indicates that the node was force terminated
	NodeStatusAborted NodeStatus = 130

	// NodeStatusFailed indicates that the node failed; terminal until an
	// explicit replay moves it back to executing
	NodeStatusFailed NodeStatus = 140
)

// IsTerminal indicates whether the status is terminal for a node
func (s NodeStatus) IsTerminal() bool {
	return s >= NodeStatusCompleted
}

// IsTerminal indicates whether the status is terminal for a process instance
func (s ProcessStatus) IsTerminal() bool {
	return s >= ProcessStatusCompleted
}

func (s ProcessStatus) String() string {
	switch s {
	case ProcessStatusNotStarted:
		return "not-started"
	case ProcessStatusActive:
		return "active"
	case ProcessStatusCompleted:
		return "completed"
	case ProcessStatusCancelled:
		return "cancelled"
	case ProcessStatusFailed:
		return "failed"
	case ProcessStatusAborted:
		return "aborted"
	}
	return "unknown"
}

func (s NodeStatus) String() string {
	switch s {
	case NodeStatusNotStarted:
		return "not-started"
	case NodeStatusCreated:
		return "created"
	case NodeStatusReady:
		return "ready"
	case NodeStatusExecuting:
		return "executing"
	case NodeStatusWaiting:
		return "waiting"
	case NodeStatusCompleted:
		return "completed"
	case NodeStatusSkipped:
		return "skipped"
	case NodeStatusCancelled:
		return "cancelled"
	case NodeStatusAborted:
		return "aborted"
	case NodeStatusFailed:
		return "failed"
	}
	return "unknown"
}

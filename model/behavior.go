package model

import (
	"github.com/procflow/engine/definition"
)

// NodeEntry is a struct used to specify what node to enter next
type NodeEntry struct {
	Node *definition.Node
}

type ExecResult int

const (
	ExecFail ExecResult = iota
	ExecDone
	ExecWait
	ExecSkip
)

type EnterResult int

const (
	EnterNotReady EnterResult = iota
	EnterExec
	EnterSkip
)

// ProcessBehavior is the execution behavior of a process instance.
type ProcessBehavior interface {

	// Start the process instance.  Returning true indicates that the
	// process can start and enter the specified nodes.
	Start(ctx ProcessContext) (started bool, entries []*NodeEntry)

	// NodeDone is called when a node with no outgoing transitions is done.
	// Returning true indicates that the whole process instance is done.
	NodeDone(ctx ProcessContext) (processDone bool)

	// Done is called when the process instance is done.
	Done(ctx ProcessContext)
}

// NodeBehavior is the per-node-type execution state machine.  It governs the
// legal transitions of a node instance and where its lifecycle hooks run.
type NodeBehavior interface {

	// Enter determines if a node instance is ready to be executed.  It is
	// invoked once per arriving token; join style nodes return
	// EnterNotReady until their fire condition holds.
	Enter(ctx NodeContext) (enterResult EnterResult)

	// Exec executes the node.  ExecDone indicates the node finished
	// synchronously; ExecWait parks the node until an external resume.  If
	// err is set the node moves to Failed.
	Exec(ctx NodeContext) (execResult ExecResult, err error)

	// Resume is called when a waiting node is notified: an event matched, a
	// timer fired, a child process or child execution reached a terminal
	// state.
	Resume(ctx NodeContext) (execResult ExecResult, err error)

	// Done is called when Exec or Resume return ExecDone.  It finalizes the
	// node and determines the next set of nodes to be entered.  Returning
	// notifyProcess indicates a terminal node, the process may be done.
	Done(ctx NodeContext) (notifyProcess bool, entries []*NodeEntry, err error)
}

package instance

import (
	"time"

	"github.com/procflow/engine/definition"
	"github.com/procflow/engine/model"
	"github.com/procflow/engine/state"
)

// NodeInst is one execution of a flow node inside a process instance
type NodeInst struct {
	ID        string `json:"id"`
	NodeID    string `json:"nodeId"`
	ProcessID string `json:"processId"`

	// ParentID is the node instance id of the multi-instance container that
	// spawned this instance, empty otherwise
	ParentID string `json:"parentId,omitempty"`

	Status model.NodeStatus `json:"status"`

	// TokensArrived / TokensExpected track incoming branches on join nodes;
	// the join fires exactly once, when its predicate over them holds
	TokensArrived  int `json:"tokensArrived,omitempty"`
	TokensExpected int `json:"tokensExpected,omitempty"`

	// LoopIndex is the child index within a multi-instance container
	LoopIndex int `json:"loopIndex,omitempty"`

	// LoopCardinality is the evaluated child count of a multi-instance node
	LoopCardinality int `json:"loopCardinality,omitempty"`

	// CompletedChildren counts terminal-completed children of a
	// multi-instance node
	CompletedChildren int `json:"completedChildren,omitempty"`

	Interrupting bool `json:"interrupting,omitempty"`

	// HookCursor counts connector hooks that already ran for this instance,
	// persisted after each hook so that recovery and replay never run a
	// hook's side effect twice
	HookCursor int `json:"hookCursor,omitempty"`

	// ChildProcessID is the process instance started by a call activity
	ChildProcessID string `json:"childProcessId,omitempty"`

	// ChildTerminal / ChildAborted record the callee outcome for a call
	// activity before the caller resumes
	ChildTerminal bool `json:"childTerminal,omitempty"`
	ChildAborted  bool `json:"childAborted,omitempty"`

	// Revision is the optimistic concurrency revision of the record
	Revision int `json:"revision"`

	node *definition.Node
}

// Node returns the definition node for this instance
func (ni *NodeInst) Node() *definition.Node {
	return ni.node
}

// nodeView is the read-only model.NodeInstance adapter over a NodeInst
type nodeView struct {
	ni *NodeInst
}

func (v *nodeView) Node() *definition.Node {
	return v.ni.node
}

func (v *nodeView) Status() model.NodeStatus {
	return v.ni.Status
}

// IsLoopChild indicates that this instance is a child execution spawned by a
// multi-instance container
func (ni *NodeInst) IsLoopChild() bool {
	return ni.ParentID != ""
}

// Archive builds the immutable historical copy of the node instance
func (ni *NodeInst) Archive() *state.ArchivedNodeInstance {
	return &state.ArchivedNodeInstance{
		ID:        ni.ID,
		NodeID:    ni.NodeID,
		ProcessID: ni.ProcessID,
		ParentID:  ni.ParentID,
		Status:    int(ni.Status),
		EndTime:   time.Now().UTC(),
	}
}

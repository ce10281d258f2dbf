package state

import (
	"time"
)

// ArchivedProcessInstance is the immutable historical copy of a process
// instance, written exactly once when the instance reaches a terminal state.
type ArchivedProcessInstance struct {
	ID         string                 `json:"id"`
	DefName    string                 `json:"defName"`
	DefVersion int                    `json:"defVersion"`
	Status     int                    `json:"status"`
	StartTime  time.Time              `json:"startTime"`
	EndTime    time.Time              `json:"endTime"`
	CallerID   string                 `json:"callerId,omitempty"`
	RootID     string                 `json:"rootId,omitempty"`
	Variables  map[string]interface{} `json:"variables,omitempty"`
}

// ArchivedNodeInstance is the immutable historical copy of a flow node
// instance, written when the node reaches a non-replayable terminal state.
type ArchivedNodeInstance struct {
	ID        string    `json:"id"`
	NodeID    string    `json:"nodeId"`
	ProcessID string    `json:"processId"`
	ParentID  string    `json:"parentId,omitempty"`
	Status    int       `json:"status"`
	EndTime   time.Time `json:"endTime"`
}

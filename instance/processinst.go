package instance

import (
	"time"

	"github.com/project-flogo/core/support/log"

	"github.com/procflow/engine/definition"
	"github.com/procflow/engine/model"
	"github.com/procflow/engine/state"
	"github.com/procflow/engine/util"
)

// ProcessInstance is one execution of a process definition.  It is owned
// exclusively by the engine and mutated only by the worker currently holding
// its dispatch lock.
type ProcessInstance struct {
	ID         string              `json:"id"`
	DefName    string              `json:"defName"`
	DefVersion int                 `json:"defVersion"`
	Status     model.ProcessStatus `json:"status"`
	Aborting   bool                `json:"aborting"`

	// CancelRequested distinguishes a graceful cancel from a forced abort
	// while Aborting is set, so a termination resumed after a restart still
	// ends in the requested terminal status
	CancelRequested bool `json:"cancelRequested,omitempty"`

	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime,omitempty"`

	// CallerID is the node instance id of the call activity that started
	// this instance, empty for instances started through the API
	CallerID string `json:"callerId,omitempty"`

	// RootID is the id of the top instance of the call-activity tree this
	// instance belongs to; back-references are lookups, never pointers
	RootID string `json:"rootId,omitempty"`

	Variables map[string]interface{} `json:"variables,omitempty"`

	// Revision is the optimistic concurrency revision of the record
	Revision int `json:"revision"`

	def    *definition.Definition
	nodes  []*NodeInst
	logger log.Logger
}

// Definition returns the process definition associated with this instance
func (pi *ProcessInstance) Definition() *definition.Definition {
	return pi.def
}

// NodeInstances implements model.ProcessContext.NodeInstances
func (pi *ProcessInstance) NodeInstances() []model.NodeInstance {
	insts := make([]model.NodeInstance, 0, len(pi.nodes))
	for _, ni := range pi.nodes {
		insts = append(insts, &nodeView{ni})
	}
	return insts
}

// Logger implements model.ProcessContext.Logger
func (pi *ProcessInstance) Logger() log.Logger {
	return pi.logger
}

// GetVar returns a process variable
func (pi *ProcessInstance) GetVar(name string) (interface{}, bool) {
	val, ok := pi.Variables[name]
	return val, ok
}

// SetVar sets a process variable
func (pi *ProcessInstance) SetVar(name string, value interface{}) {
	if pi.Variables == nil {
		pi.Variables = make(map[string]interface{})
	}
	pi.Variables[name] = value
}

// Scope returns a copy of the instance variables extended with the
// specified extra values, for expression evaluation
func (pi *ProcessInstance) Scope(extra map[string]interface{}) map[string]interface{} {
	scope := make(map[string]interface{}, len(pi.Variables)+len(extra))
	for name, value := range pi.Variables {
		scope[name] = value
	}
	for name, value := range extra {
		scope[name] = value
	}
	return scope
}

// Archive builds the immutable historical copy of the instance
func (pi *ProcessInstance) Archive() *state.ArchivedProcessInstance {
	return &state.ArchivedProcessInstance{
		ID:         pi.ID,
		DefName:    pi.DefName,
		DefVersion: pi.DefVersion,
		Status:     int(pi.Status),
		StartTime:  pi.StartTime,
		EndTime:    pi.EndTime,
		CallerID:   pi.CallerID,
		RootID:     pi.RootID,
		Variables:  util.DeepCopyMap(pi.Variables),
	}
}

package memory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/procflow/engine/instance"
	"github.com/procflow/engine/model"
	"github.com/procflow/engine/service"
)

func ts(sec int) time.Time {
	return time.Date(2024, 5, 1, 12, 0, sec, 0, time.UTC)
}

func TestProcessInstanceRoundTrip(t *testing.T) {

	s := NewStore()

	pi := &instance.ProcessInstance{ID: "p1", DefName: "order", DefVersion: 1, Status: model.ProcessStatusActive}
	assert.Nil(t, s.CreateProcessInstance(pi))
	assert.Equal(t, 1, pi.Revision)

	loaded, err := s.GetProcessInstance("p1")
	assert.Nil(t, err)
	assert.Equal(t, "order", loaded.DefName)

	// stored record is a copy
	loaded.DefName = "changed"
	again, err := s.GetProcessInstance("p1")
	assert.Nil(t, err)
	assert.Equal(t, "order", again.DefName)
}

func TestUpdateRevisionConflict(t *testing.T) {

	s := NewStore()

	pi := &instance.ProcessInstance{ID: "p1"}
	assert.Nil(t, s.CreateProcessInstance(pi))

	stale, err := s.GetProcessInstance("p1")
	assert.Nil(t, err)

	assert.Nil(t, s.UpdateProcessInstance(pi))
	assert.Equal(t, 2, pi.Revision)

	err = s.UpdateProcessInstance(stale)
	assert.NotNil(t, err)

	var conflict *service.ConcurrencyConflictError
	assert.ErrorAs(t, err, &conflict)
}

func TestSaveProcessTerminalRemovesLiveRecords(t *testing.T) {

	s := NewStore()

	pi := &instance.ProcessInstance{ID: "p1", Status: model.ProcessStatusActive}
	assert.Nil(t, s.CreateProcessInstance(pi))

	ni := &instance.NodeInst{ID: "n1", NodeID: "a", ProcessID: "p1", Status: model.NodeStatusWaiting}
	assert.Nil(t, s.CreateNodeInst(ni))
	assert.Nil(t, s.CreateWaitingEvent(&instance.WaitingEvent{ID: "w1", ProcessID: "p1", EventType: "message", Name: "go"}))

	pi.Status = model.ProcessStatusCompleted
	assert.Nil(t, s.SaveProcessTerminal(pi, pi.Archive()))

	_, err := s.GetProcessInstance("p1")
	var nf *service.NotFoundError
	assert.ErrorAs(t, err, &nf)

	nodes, err := s.NodesForProcess("p1")
	assert.Nil(t, err)
	assert.Equal(t, 0, len(nodes))

	events, err := s.WaitingEventsForProcess("p1")
	assert.Nil(t, err)
	assert.Equal(t, 0, len(events))

	archived, err := s.GetArchivedProcessInstance("p1")
	assert.Nil(t, err)
	assert.Equal(t, int(model.ProcessStatusCompleted), archived.Status)
}

func TestNodesInProgress(t *testing.T) {

	s := NewStore()

	assert.Nil(t, s.CreateNodeInst(&instance.NodeInst{ID: "n1", ProcessID: "p1", Status: model.NodeStatusReady}))
	assert.Nil(t, s.CreateNodeInst(&instance.NodeInst{ID: "n2", ProcessID: "p1", Status: model.NodeStatusExecuting}))
	assert.Nil(t, s.CreateNodeInst(&instance.NodeInst{ID: "n3", ProcessID: "p1", Status: model.NodeStatusWaiting}))
	assert.Nil(t, s.CreateNodeInst(&instance.NodeInst{ID: "n4", ProcessID: "p1", Status: model.NodeStatusCreated}))

	nodes, err := s.NodesInProgress()
	assert.Nil(t, err)
	assert.Equal(t, 2, len(nodes))
}

func TestMatchWaitingEventsOldestFirst(t *testing.T) {

	s := NewStore()

	first := &instance.WaitingEvent{ID: "w1", EventType: "message", Name: "go", CorrelationKey: "k", Created: ts(1)}
	second := &instance.WaitingEvent{ID: "w2", EventType: "message", Name: "go", CorrelationKey: "k", Created: ts(2)}
	other := &instance.WaitingEvent{ID: "w3", EventType: "message", Name: "go", CorrelationKey: "other", Created: ts(0)}

	assert.Nil(t, s.CreateWaitingEvent(second))
	assert.Nil(t, s.CreateWaitingEvent(first))
	assert.Nil(t, s.CreateWaitingEvent(other))

	matches, err := s.MatchWaitingEvents("message", "go", "k")
	assert.Nil(t, err)
	assert.Equal(t, 2, len(matches))
	assert.Equal(t, "w1", matches[0].ID)
	assert.Equal(t, "w2", matches[1].ID)
}

func TestWaitingEventRecordsAreIsolated(t *testing.T) {

	s := NewStore()

	we := &instance.WaitingEvent{ID: "w1", EventType: "message", Name: "go", CorrelationKey: "k", Created: ts(1)}
	assert.Nil(t, s.CreateWaitingEvent(we))

	// mutating the caller's record after the create must not leak in
	we.Name = "changed"

	matches, err := s.MatchWaitingEvents("message", "go", "k")
	assert.Nil(t, err)
	assert.Equal(t, 1, len(matches))
	assert.Equal(t, "go", matches[0].Name)

	// mutating a returned record must not leak back into the store
	matches[0].CorrelationKey = "other"

	matches, err = s.MatchWaitingEvents("message", "go", "k")
	assert.Nil(t, err)
	assert.Equal(t, 1, len(matches))
}

package bolt

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/procflow/engine/instance"
	"github.com/procflow/engine/model"
	"github.com/procflow/engine/service"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := Open(filepath.Join(t.TempDir(), "engine.db"))
	assert.Nil(t, err)
	t.Cleanup(func() {
		_ = s.Close()
	})
	return s
}

func TestProcessInstancePersistence(t *testing.T) {

	s := openTestStore(t)

	pi := &instance.ProcessInstance{
		ID:         "p1",
		DefName:    "order",
		DefVersion: 2,
		Status:     model.ProcessStatusActive,
		Variables:  map[string]interface{}{"total": 12.5},
	}
	assert.Nil(t, s.CreateProcessInstance(pi))

	loaded, err := s.GetProcessInstance("p1")
	assert.Nil(t, err)
	assert.Equal(t, "order", loaded.DefName)
	assert.Equal(t, 2, loaded.DefVersion)
	assert.Equal(t, 12.5, loaded.Variables["total"])
	assert.Equal(t, 1, loaded.Revision)
}

func TestRevisionConflictOnStaleUpdate(t *testing.T) {

	s := openTestStore(t)

	pi := &instance.ProcessInstance{ID: "p1"}
	assert.Nil(t, s.CreateProcessInstance(pi))

	stale, err := s.GetProcessInstance("p1")
	assert.Nil(t, err)

	assert.Nil(t, s.UpdateProcessInstance(pi))

	err = s.UpdateProcessInstance(stale)
	var conflict *service.ConcurrencyConflictError
	assert.ErrorAs(t, err, &conflict)
}

func TestSaveProcessTerminalIsAtomic(t *testing.T) {

	s := openTestStore(t)

	pi := &instance.ProcessInstance{ID: "p1", Status: model.ProcessStatusActive}
	assert.Nil(t, s.CreateProcessInstance(pi))
	assert.Nil(t, s.CreateNodeInst(&instance.NodeInst{ID: "n1", NodeID: "a", ProcessID: "p1"}))
	assert.Nil(t, s.CreateNodeInst(&instance.NodeInst{ID: "n2", NodeID: "b", ProcessID: "other"}))
	assert.Nil(t, s.CreateWaitingEvent(&instance.WaitingEvent{ID: "w1", ProcessID: "p1"}))

	pi.Status = model.ProcessStatusCancelled
	assert.Nil(t, s.SaveProcessTerminal(pi, pi.Archive()))

	_, err := s.GetProcessInstance("p1")
	var nf *service.NotFoundError
	assert.ErrorAs(t, err, &nf)

	// records of other instances are untouched
	remaining, err := s.NodesForProcess("other")
	assert.Nil(t, err)
	assert.Equal(t, 1, len(remaining))

	events, err := s.WaitingEventsForProcess("p1")
	assert.Nil(t, err)
	assert.Equal(t, 0, len(events))

	archived, err := s.GetArchivedProcessInstance("p1")
	assert.Nil(t, err)
	assert.Equal(t, int(model.ProcessStatusCancelled), archived.Status)
}

func TestNodeTerminalArchival(t *testing.T) {

	s := openTestStore(t)

	ni := &instance.NodeInst{ID: "n1", NodeID: "a", ProcessID: "p1", Status: model.NodeStatusCompleted}
	assert.Nil(t, s.CreateNodeInst(ni))
	assert.Nil(t, s.SaveNodeTerminal(ni, ni.Archive()))

	_, err := s.GetNodeInst("n1")
	assert.NotNil(t, err)

	archived, err := s.ArchivedNodesForProcess("p1")
	assert.Nil(t, err)
	assert.Equal(t, 1, len(archived))
	assert.Equal(t, "a", archived[0].NodeID)
}

func TestStateSurvivesReopen(t *testing.T) {

	path := filepath.Join(t.TempDir(), "engine.db")

	s, err := Open(path)
	assert.Nil(t, err)

	assert.Nil(t, s.CreateProcessInstance(&instance.ProcessInstance{ID: "p1", DefName: "order"}))
	assert.Nil(t, s.CreateNodeInst(&instance.NodeInst{ID: "n1", ProcessID: "p1", Status: model.NodeStatusExecuting}))
	assert.Nil(t, s.Close())

	s, err = Open(path)
	assert.Nil(t, err)
	defer s.Close()

	loaded, err := s.GetProcessInstance("p1")
	assert.Nil(t, err)
	assert.Equal(t, "order", loaded.DefName)

	inProgress, err := s.NodesInProgress()
	assert.Nil(t, err)
	assert.Equal(t, 1, len(inProgress))
}

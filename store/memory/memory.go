// Package memory provides the in-memory instance store, used by tests and
// by embedded engines that do not need durability.
package memory

import (
	"sort"
	"sync"

	"github.com/procflow/engine/instance"
	"github.com/procflow/engine/model"
	"github.com/procflow/engine/service"
	"github.com/procflow/engine/state"
	"github.com/procflow/engine/util"
)

// Store implements instance.Store with mutex-guarded maps.  Records are
// copied on the way in and out so callers never share memory with the
// store; revisions are checked on update like the durable store does.
type Store struct {
	mu sync.RWMutex

	processes map[string]*instance.ProcessInstance
	nodes     map[string]*instance.NodeInst
	events    map[string]*instance.WaitingEvent

	archivedProcesses map[string]*state.ArchivedProcessInstance
	archivedNodes     map[string][]*state.ArchivedNodeInstance
}

// NewStore creates an empty in-memory Store
func NewStore() *Store {
	return &Store{
		processes:         make(map[string]*instance.ProcessInstance),
		nodes:             make(map[string]*instance.NodeInst),
		events:            make(map[string]*instance.WaitingEvent),
		archivedProcesses: make(map[string]*state.ArchivedProcessInstance),
		archivedNodes:     make(map[string][]*state.ArchivedNodeInstance),
	}
}

// CreateProcessInstance implements instance.Store.CreateProcessInstance
func (s *Store) CreateProcessInstance(pi *instance.ProcessInstance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.processes[pi.ID]; exists {
		return service.NewConcurrencyConflictError("process instance", pi.ID)
	}
	pi.Revision = 1
	s.processes[pi.ID] = copyProcess(pi)
	return nil
}

// UpdateProcessInstance implements instance.Store.UpdateProcessInstance
func (s *Store) UpdateProcessInstance(pi *instance.ProcessInstance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.processes[pi.ID]
	if !ok {
		return service.NewNotFoundError("process instance", pi.ID)
	}
	if stored.Revision != pi.Revision {
		return service.NewConcurrencyConflictError("process instance", pi.ID)
	}
	pi.Revision++
	s.processes[pi.ID] = copyProcess(pi)
	return nil
}

// GetProcessInstance implements instance.Store.GetProcessInstance
func (s *Store) GetProcessInstance(id string) (*instance.ProcessInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pi, ok := s.processes[id]
	if !ok {
		return nil, service.NewNotFoundError("process instance", id)
	}
	return copyProcess(pi), nil
}

// ListProcessInstances implements instance.Store.ListProcessInstances
func (s *Store) ListProcessInstances() ([]*instance.ProcessInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	instances := make([]*instance.ProcessInstance, 0, len(s.processes))
	for _, pi := range s.processes {
		instances = append(instances, copyProcess(pi))
	}
	return instances, nil
}

// SaveProcessTerminal implements instance.Store.SaveProcessTerminal
func (s *Store) SaveProcessTerminal(pi *instance.ProcessInstance, archived *state.ArchivedProcessInstance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.archivedProcesses[archived.ID] = archived

	delete(s.processes, pi.ID)
	for id, ni := range s.nodes {
		if ni.ProcessID == pi.ID {
			delete(s.nodes, id)
		}
	}
	for id, we := range s.events {
		if we.ProcessID == pi.ID {
			delete(s.events, id)
		}
	}
	return nil
}

// CreateNodeInst implements instance.Store.CreateNodeInst
func (s *Store) CreateNodeInst(ni *instance.NodeInst) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.nodes[ni.ID]; exists {
		return service.NewConcurrencyConflictError("node instance", ni.ID)
	}
	ni.Revision = 1
	s.nodes[ni.ID] = copyNode(ni)
	return nil
}

// UpdateNodeInst implements instance.Store.UpdateNodeInst
func (s *Store) UpdateNodeInst(ni *instance.NodeInst) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.nodes[ni.ID]
	if !ok {
		return service.NewNotFoundError("node instance", ni.ID)
	}
	if stored.Revision != ni.Revision {
		return service.NewConcurrencyConflictError("node instance", ni.ID)
	}
	ni.Revision++
	s.nodes[ni.ID] = copyNode(ni)
	return nil
}

// GetNodeInst implements instance.Store.GetNodeInst
func (s *Store) GetNodeInst(id string) (*instance.NodeInst, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ni, ok := s.nodes[id]
	if !ok {
		return nil, service.NewNotFoundError("node instance", id)
	}
	return copyNode(ni), nil
}

// NodesForProcess implements instance.Store.NodesForProcess
func (s *Store) NodesForProcess(processID string) ([]*instance.NodeInst, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var nodes []*instance.NodeInst
	for _, ni := range s.nodes {
		if ni.ProcessID == processID {
			nodes = append(nodes, copyNode(ni))
		}
	}
	return nodes, nil
}

// NodesInProgress implements instance.Store.NodesInProgress
func (s *Store) NodesInProgress() ([]*instance.NodeInst, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var nodes []*instance.NodeInst
	for _, ni := range s.nodes {
		if ni.Status == model.NodeStatusReady || ni.Status == model.NodeStatusExecuting {
			nodes = append(nodes, copyNode(ni))
		}
	}
	return nodes, nil
}

// SaveNodeTerminal implements instance.Store.SaveNodeTerminal
func (s *Store) SaveNodeTerminal(ni *instance.NodeInst, archived *state.ArchivedNodeInstance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.archivedNodes[ni.ProcessID] = append(s.archivedNodes[ni.ProcessID], archived)
	delete(s.nodes, ni.ID)
	return nil
}

// CreateWaitingEvent implements instance.Store.CreateWaitingEvent
func (s *Store) CreateWaitingEvent(we *instance.WaitingEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events[we.ID] = copyEvent(we)
	return nil
}

// DeleteWaitingEvent implements instance.Store.DeleteWaitingEvent
func (s *Store) DeleteWaitingEvent(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.events, id)
	return nil
}

// MatchWaitingEvents implements instance.Store.MatchWaitingEvents
func (s *Store) MatchWaitingEvents(eventType, name, correlationKey string) ([]*instance.WaitingEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matches []*instance.WaitingEvent
	for _, we := range s.events {
		if we.EventType == eventType && we.Name == name && we.CorrelationKey == correlationKey {
			matches = append(matches, copyEvent(we))
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		return matches[i].Created.Before(matches[j].Created)
	})
	return matches, nil
}

// WaitingEventsForProcess implements instance.Store.WaitingEventsForProcess
func (s *Store) WaitingEventsForProcess(processID string) ([]*instance.WaitingEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var events []*instance.WaitingEvent
	for _, we := range s.events {
		if we.ProcessID == processID {
			events = append(events, copyEvent(we))
		}
	}
	return events, nil
}

// WaitingEventsForNode implements instance.Store.WaitingEventsForNode
func (s *Store) WaitingEventsForNode(nodeInstID string) ([]*instance.WaitingEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var events []*instance.WaitingEvent
	for _, we := range s.events {
		if we.TargetNodeInstID == nodeInstID {
			events = append(events, copyEvent(we))
		}
	}
	return events, nil
}

// GetArchivedProcessInstance implements instance.Store.GetArchivedProcessInstance
func (s *Store) GetArchivedProcessInstance(id string) (*state.ArchivedProcessInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	archived, ok := s.archivedProcesses[id]
	if !ok {
		return nil, service.NewNotFoundError("archived process instance", id)
	}
	return archived, nil
}

// ArchivedNodesForProcess implements instance.Store.ArchivedNodesForProcess
func (s *Store) ArchivedNodesForProcess(processID string) ([]*state.ArchivedNodeInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]*state.ArchivedNodeInstance(nil), s.archivedNodes[processID]...), nil
}

func copyProcess(pi *instance.ProcessInstance) *instance.ProcessInstance {
	cp := *pi
	cp.Variables = util.DeepCopyMap(pi.Variables)
	return &cp
}

func copyNode(ni *instance.NodeInst) *instance.NodeInst {
	cp := *ni
	return &cp
}

func copyEvent(we *instance.WaitingEvent) *instance.WaitingEvent {
	cp := *we
	return &cp
}

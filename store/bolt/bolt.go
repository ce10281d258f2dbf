// Package bolt provides the durable instance store on bbolt.  Live and
// archived records live in separate buckets; moving an instance to its
// terminal state writes the archive copy and removes the live records in a
// single transaction.
package bolt

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/procflow/engine/instance"
	"github.com/procflow/engine/model"
	"github.com/procflow/engine/service"
	"github.com/procflow/engine/state"
)

var (
	bucketProcesses     = []byte("processes")
	bucketNodes         = []byte("nodes")
	bucketEvents        = []byte("events")
	bucketArchProcesses = []byte("archive.processes")
	bucketArchNodes     = []byte("archive.nodes")
)

// Store implements instance.Store on a bbolt database file
type Store struct {
	db *bolt.DB
}

// Open opens or creates the database file and ensures the buckets exist
func Open(path string) (*Store, error) {

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("unable to open instance store '%s': %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketProcesses, bucketNodes, bucketEvents, bucketArchProcesses, bucketArchNodes} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateProcessInstance implements instance.Store.CreateProcessInstance
func (s *Store) CreateProcessInstance(pi *instance.ProcessInstance) error {
	pi.Revision = 1
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketProcesses)
		if b.Get([]byte(pi.ID)) != nil {
			return service.NewConcurrencyConflictError("process instance", pi.ID)
		}
		return putJSON(b, pi.ID, pi)
	})
}

// UpdateProcessInstance implements instance.Store.UpdateProcessInstance
func (s *Store) UpdateProcessInstance(pi *instance.ProcessInstance) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketProcesses)

		var stored instance.ProcessInstance
		if err := getJSON(b, pi.ID, &stored); err != nil {
			return service.NewNotFoundError("process instance", pi.ID)
		}
		if stored.Revision != pi.Revision {
			return service.NewConcurrencyConflictError("process instance", pi.ID)
		}

		pi.Revision++
		return putJSON(b, pi.ID, pi)
	})
}

// GetProcessInstance implements instance.Store.GetProcessInstance
func (s *Store) GetProcessInstance(id string) (*instance.ProcessInstance, error) {
	pi := &instance.ProcessInstance{}
	err := s.db.View(func(tx *bolt.Tx) error {
		if err := getJSON(tx.Bucket(bucketProcesses), id, pi); err != nil {
			return service.NewNotFoundError("process instance", id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return pi, nil
}

// ListProcessInstances implements instance.Store.ListProcessInstances
func (s *Store) ListProcessInstances() ([]*instance.ProcessInstance, error) {
	var instances []*instance.ProcessInstance
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketProcesses).ForEach(func(_, v []byte) error {
			pi := &instance.ProcessInstance{}
			if err := json.Unmarshal(v, pi); err != nil {
				return err
			}
			instances = append(instances, pi)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return instances, nil
}

// SaveProcessTerminal implements instance.Store.SaveProcessTerminal
func (s *Store) SaveProcessTerminal(pi *instance.ProcessInstance, archived *state.ArchivedProcessInstance) error {
	return s.db.Update(func(tx *bolt.Tx) error {

		if err := putJSON(tx.Bucket(bucketArchProcesses), archived.ID, archived); err != nil {
			return err
		}

		if err := tx.Bucket(bucketProcesses).Delete([]byte(pi.ID)); err != nil {
			return err
		}

		if err := deleteWhere(tx.Bucket(bucketNodes), func(v []byte) (bool, error) {
			var ni instance.NodeInst
			if err := json.Unmarshal(v, &ni); err != nil {
				return false, err
			}
			return ni.ProcessID == pi.ID, nil
		}); err != nil {
			return err
		}

		return deleteWhere(tx.Bucket(bucketEvents), func(v []byte) (bool, error) {
			var we instance.WaitingEvent
			if err := json.Unmarshal(v, &we); err != nil {
				return false, err
			}
			return we.ProcessID == pi.ID, nil
		})
	})
}

// CreateNodeInst implements instance.Store.CreateNodeInst
func (s *Store) CreateNodeInst(ni *instance.NodeInst) error {
	ni.Revision = 1
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketNodes)
		if b.Get([]byte(ni.ID)) != nil {
			return service.NewConcurrencyConflictError("node instance", ni.ID)
		}
		return putJSON(b, ni.ID, ni)
	})
}

// UpdateNodeInst implements instance.Store.UpdateNodeInst
func (s *Store) UpdateNodeInst(ni *instance.NodeInst) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketNodes)

		var stored instance.NodeInst
		if err := getJSON(b, ni.ID, &stored); err != nil {
			return service.NewNotFoundError("node instance", ni.ID)
		}
		if stored.Revision != ni.Revision {
			return service.NewConcurrencyConflictError("node instance", ni.ID)
		}

		ni.Revision++
		return putJSON(b, ni.ID, ni)
	})
}

// GetNodeInst implements instance.Store.GetNodeInst
func (s *Store) GetNodeInst(id string) (*instance.NodeInst, error) {
	ni := &instance.NodeInst{}
	err := s.db.View(func(tx *bolt.Tx) error {
		if err := getJSON(tx.Bucket(bucketNodes), id, ni); err != nil {
			return service.NewNotFoundError("node instance", id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ni, nil
}

// NodesForProcess implements instance.Store.NodesForProcess
func (s *Store) NodesForProcess(processID string) ([]*instance.NodeInst, error) {
	return s.selectNodes(func(ni *instance.NodeInst) bool {
		return ni.ProcessID == processID
	})
}

// NodesInProgress implements instance.Store.NodesInProgress
func (s *Store) NodesInProgress() ([]*instance.NodeInst, error) {
	return s.selectNodes(func(ni *instance.NodeInst) bool {
		return ni.Status == model.NodeStatusReady || ni.Status == model.NodeStatusExecuting
	})
}

func (s *Store) selectNodes(keep func(*instance.NodeInst) bool) ([]*instance.NodeInst, error) {
	var nodes []*instance.NodeInst
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketNodes).ForEach(func(_, v []byte) error {
			ni := &instance.NodeInst{}
			if err := json.Unmarshal(v, ni); err != nil {
				return err
			}
			if keep(ni) {
				nodes = append(nodes, ni)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return nodes, nil
}

// SaveNodeTerminal implements instance.Store.SaveNodeTerminal
func (s *Store) SaveNodeTerminal(ni *instance.NodeInst, archived *state.ArchivedNodeInstance) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := putJSON(tx.Bucket(bucketArchNodes), archived.ID, archived); err != nil {
			return err
		}
		return tx.Bucket(bucketNodes).Delete([]byte(ni.ID))
	})
}

// CreateWaitingEvent implements instance.Store.CreateWaitingEvent
func (s *Store) CreateWaitingEvent(we *instance.WaitingEvent) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return putJSON(tx.Bucket(bucketEvents), we.ID, we)
	})
}

// DeleteWaitingEvent implements instance.Store.DeleteWaitingEvent
func (s *Store) DeleteWaitingEvent(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketEvents).Delete([]byte(id))
	})
}

// MatchWaitingEvents implements instance.Store.MatchWaitingEvents
func (s *Store) MatchWaitingEvents(eventType, name, correlationKey string) ([]*instance.WaitingEvent, error) {
	matches, err := s.selectEvents(func(we *instance.WaitingEvent) bool {
		return we.EventType == eventType && we.Name == name && we.CorrelationKey == correlationKey
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(matches, func(i, j int) bool {
		return matches[i].Created.Before(matches[j].Created)
	})
	return matches, nil
}

// WaitingEventsForProcess implements instance.Store.WaitingEventsForProcess
func (s *Store) WaitingEventsForProcess(processID string) ([]*instance.WaitingEvent, error) {
	return s.selectEvents(func(we *instance.WaitingEvent) bool {
		return we.ProcessID == processID
	})
}

// WaitingEventsForNode implements instance.Store.WaitingEventsForNode
func (s *Store) WaitingEventsForNode(nodeInstID string) ([]*instance.WaitingEvent, error) {
	return s.selectEvents(func(we *instance.WaitingEvent) bool {
		return we.TargetNodeInstID == nodeInstID
	})
}

func (s *Store) selectEvents(keep func(*instance.WaitingEvent) bool) ([]*instance.WaitingEvent, error) {
	var events []*instance.WaitingEvent
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketEvents).ForEach(func(_, v []byte) error {
			we := &instance.WaitingEvent{}
			if err := json.Unmarshal(v, we); err != nil {
				return err
			}
			if keep(we) {
				events = append(events, we)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}

// GetArchivedProcessInstance implements instance.Store.GetArchivedProcessInstance
func (s *Store) GetArchivedProcessInstance(id string) (*state.ArchivedProcessInstance, error) {
	archived := &state.ArchivedProcessInstance{}
	err := s.db.View(func(tx *bolt.Tx) error {
		if err := getJSON(tx.Bucket(bucketArchProcesses), id, archived); err != nil {
			return service.NewNotFoundError("archived process instance", id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return archived, nil
}

// ArchivedNodesForProcess implements instance.Store.ArchivedNodesForProcess
func (s *Store) ArchivedNodesForProcess(processID string) ([]*state.ArchivedNodeInstance, error) {
	var nodes []*state.ArchivedNodeInstance
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketArchNodes).ForEach(func(_, v []byte) error {
			an := &state.ArchivedNodeInstance{}
			if err := json.Unmarshal(v, an); err != nil {
				return err
			}
			if an.ProcessID == processID {
				nodes = append(nodes, an)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return nodes, nil
}

func putJSON(b *bolt.Bucket, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.Put([]byte(key), data)
}

func getJSON(b *bolt.Bucket, key string, v interface{}) error {
	data := b.Get([]byte(key))
	if data == nil {
		return fmt.Errorf("key '%s' not found", key)
	}
	return json.Unmarshal(data, v)
}

func deleteWhere(b *bolt.Bucket, match func(v []byte) (bool, error)) error {
	var keys [][]byte
	err := b.ForEach(func(k, v []byte) error {
		ok, err := match(v)
		if err != nil {
			return err
		}
		if ok {
			keys = append(keys, append([]byte(nil), k...))
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, k := range keys {
		if err := b.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

// Package dispatch runs the engine's work queue.  Every state transition of
// a process or node instance is performed by a work item; items for the same
// process instance are serialized through a per-instance lock while distinct
// instances progress in parallel across the worker pool.
package dispatch

import (
	"context"
	"errors"
	"sync"

	"github.com/project-flogo/core/support/log"
	"golang.org/x/sync/errgroup"

	"github.com/procflow/engine/instance"
	"github.com/procflow/engine/service"
)

// Kind discriminates node-level from process-level work items
type Kind string

const (
	KindNode    Kind = "node"
	KindProcess Kind = "process"
)

// WorkItem is one unit of queued work
type WorkItem struct {
	Kind       Kind
	ProcessID  string
	NodeInstID string
	Action     instance.Action
	Payload    map[string]interface{}

	// Attempts counts deliveries, incremented on optimistic-concurrency
	// re-enqueue
	Attempts int
}

// Handler executes a work item.  The executor is the production handler.
type Handler interface {
	HandleNode(ctx context.Context, processID, nodeInstID string, action instance.Action, payload map[string]interface{}) error
	HandleProcess(ctx context.Context, processID string, action instance.Action, payload map[string]interface{}) error
}

const (
	defaultWorkers     = 8
	defaultQueueSize   = 256
	defaultMaxAttempts = 10
)

// Dispatcher owns the queue and the worker pool.  It implements
// instance.WorkScheduler so the executor can enqueue follow-up work.
type Dispatcher struct {
	handler     Handler
	logger      log.Logger
	workers     int
	maxAttempts int

	queue chan *WorkItem

	mu    sync.Mutex
	locks map[string]*sync.Mutex
	refs  map[string]int

	runCtx context.Context
	cancel context.CancelFunc
	group  *errgroup.Group
}

// Option configures a Dispatcher
type Option func(*Dispatcher)

// WithWorkers sets the worker pool size
func WithWorkers(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.workers = n
		}
	}
}

// WithQueueSize sets the work queue capacity
func WithQueueSize(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.queue = make(chan *WorkItem, n)
		}
	}
}

// WithMaxAttempts caps re-deliveries of a conflicted work item
func WithMaxAttempts(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.maxAttempts = n
		}
	}
}

// NewDispatcher creates a stopped Dispatcher for the specified handler
func NewDispatcher(handler Handler, logger log.Logger, opts ...Option) *Dispatcher {
	if logger == nil {
		logger = log.RootLogger()
	}

	d := &Dispatcher{
		handler:     handler,
		logger:      logger,
		workers:     defaultWorkers,
		maxAttempts: defaultMaxAttempts,
		queue:       make(chan *WorkItem, defaultQueueSize),
		locks:       make(map[string]*sync.Mutex),
		refs:        make(map[string]int),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Bind sets the handler executing work items.  The executor both handles
// items and enqueues follow-up ones, so it is bound after construction.
func (d *Dispatcher) Bind(handler Handler) {
	d.handler = handler
}

// Start launches the worker pool
func (d *Dispatcher) Start() {
	d.runCtx, d.cancel = context.WithCancel(context.Background())
	d.group, _ = errgroup.WithContext(d.runCtx)

	for i := 0; i < d.workers; i++ {
		d.group.Go(d.worker)
	}

	d.logger.Debugf("Dispatcher started with %d workers", d.workers)
}

// Stop drains the workers and waits for in-flight items to finish
func (d *Dispatcher) Stop() {
	if d.cancel == nil {
		return
	}
	d.cancel()
	_ = d.group.Wait()
}

// ScheduleNode implements instance.WorkScheduler.ScheduleNode
func (d *Dispatcher) ScheduleNode(processID, nodeInstID string, action instance.Action, payload map[string]interface{}) {
	d.enqueue(&WorkItem{
		Kind:       KindNode,
		ProcessID:  processID,
		NodeInstID: nodeInstID,
		Action:     action,
		Payload:    payload,
	})
}

// ScheduleProcess implements instance.WorkScheduler.ScheduleProcess
func (d *Dispatcher) ScheduleProcess(processID string, action instance.Action, payload map[string]interface{}) {
	d.enqueue(&WorkItem{
		Kind:      KindProcess,
		ProcessID: processID,
		Action:    action,
		Payload:   payload,
	})
}

// enqueue never blocks the caller: workers enqueue follow-up items while
// holding an instance lock, a blocking send on a full queue could deadlock
// the pool
func (d *Dispatcher) enqueue(item *WorkItem) {
	select {
	case d.queue <- item:
	default:
		go func() {
			select {
			case d.queue <- item:
			case <-d.runCtx.Done():
			}
		}()
	}
}

func (d *Dispatcher) worker() error {
	for {
		select {
		case <-d.runCtx.Done():
			return nil
		case item := <-d.queue:
			d.process(item)
		}
	}
}

func (d *Dispatcher) process(item *WorkItem) {

	lock := d.acquire(item.ProcessID)
	defer d.release(item.ProcessID, lock)

	var err error
	switch item.Kind {
	case KindNode:
		err = d.handler.HandleNode(d.runCtx, item.ProcessID, item.NodeInstID, item.Action, item.Payload)
	case KindProcess:
		err = d.handler.HandleProcess(d.runCtx, item.ProcessID, item.Action, item.Payload)
	}

	if err == nil {
		return
	}

	var conflict *service.ConcurrencyConflictError
	if errors.As(err, &conflict) {
		item.Attempts++
		if item.Attempts < d.maxAttempts {
			if d.logger.DebugEnabled() {
				d.logger.Debugf("Revision conflict on instance '%s', re-enqueueing %s item (attempt %d)", item.ProcessID, item.Kind, item.Attempts)
			}
			d.enqueue(item)
			return
		}
	}

	d.logger.Errorf("Work item %s/%s for instance '%s' failed: %v", item.Kind, item.Action, item.ProcessID, err)
}

// acquire returns the lock serializing work for the process instance,
// creating it on first use
func (d *Dispatcher) acquire(processID string) *sync.Mutex {
	d.mu.Lock()
	lock, ok := d.locks[processID]
	if !ok {
		lock = &sync.Mutex{}
		d.locks[processID] = lock
	}
	d.refs[processID]++
	d.mu.Unlock()

	lock.Lock()
	return lock
}

// release unlocks and prunes the lock entry once no item references it
func (d *Dispatcher) release(processID string, lock *sync.Mutex) {
	lock.Unlock()

	d.mu.Lock()
	d.refs[processID]--
	if d.refs[processID] <= 0 {
		delete(d.refs, processID)
		delete(d.locks, processID)
	}
	d.mu.Unlock()
}

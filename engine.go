// Package engine executes business process definitions.  A definition is a
// graph of activities, gateways, catching events and call activities; the
// engine runs instances of it through a persisted state machine, correlates
// published events to waiting instances and recovers in-flight work after a
// restart.
package engine

import (
	"context"
	"errors"
	"io"

	"github.com/project-flogo/core/support/log"
	"go.uber.org/multierr"

	"github.com/procflow/engine/connector"
	"github.com/procflow/engine/definition"
	"github.com/procflow/engine/dispatch"
	"github.com/procflow/engine/event"
	"github.com/procflow/engine/expression"
	"github.com/procflow/engine/instance"
	"github.com/procflow/engine/scheduler"
	"github.com/procflow/engine/service"
	"github.com/procflow/engine/state"
	"github.com/procflow/engine/store/memory"
	"github.com/procflow/engine/support"

	// register the default process model
	_ "github.com/procflow/engine/model/bpm"
)

// Engine is the process engine facade: it owns the store, the dispatcher,
// the gateways and the event correlation engine, and exposes the management
// operations.
type Engine struct {
	logger log.Logger

	store       instance.Store
	definitions *support.DefinitionManager
	expr        service.ExpressionGateway
	connectors  *connector.Gateway
	scheduler   *scheduler.Scheduler
	correlator  *event.Correlator
	dispatcher  *dispatch.Dispatcher
	executor    *instance.Executor
}

// New creates an Engine.  Without options it runs on the in-memory store
// with the default worker pool, suitable for tests and embedding.
func New(opts ...Option) (*Engine, error) {

	e := &Engine{
		logger: log.RootLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.store == nil {
		e.store = memory.NewStore()
	}
	if e.expr == nil {
		e.expr = expression.NewGateway()
	}
	if e.connectors == nil {
		e.connectors = connector.NewGateway(e.logger)
	}
	if e.scheduler == nil {
		e.scheduler = scheduler.NewScheduler(e.logger)
	}
	if e.definitions == nil {
		e.definitions = support.NewDefinitionManager(e.logger)
	}
	if e.dispatcher == nil {
		e.dispatcher = dispatch.NewDispatcher(nil, e.logger)
	}

	e.correlator = event.NewCorrelator(e.store, e.expr, e.scheduler, e.dispatcher, e.logger)

	e.executor = instance.NewExecutor(instance.Config{
		Store:       e.store,
		Expression:  e.expr,
		Connector:   e.connectors,
		Definitions: e.definitions,
		Events:      e.correlator,
		Work:        e.dispatcher,
		Logger:      e.logger,
	})
	e.dispatcher.Bind(e.executor)

	return e, nil
}

// Start launches the engine: the scheduler and the worker pool come up,
// then in-flight work left behind by a previous run is recovered.
func (e *Engine) Start() error {

	e.scheduler.Start()
	e.dispatcher.Start()

	if err := e.recover(); err != nil {
		return err
	}

	e.logger.Info("Process engine started")
	return nil
}

// Stop drains the worker pool and halts the scheduler.  The store is closed
// if it supports closing.
func (e *Engine) Stop() error {

	var err error

	e.dispatcher.Stop()
	e.scheduler.Stop()

	if closer, ok := e.store.(io.Closer); ok {
		err = multierr.Append(err, closer.Close())
	}

	e.logger.Info("Process engine stopped")
	return err
}

// Deploy registers a process definition
func (e *Engine) Deploy(def *definition.Definition) error {
	return e.definitions.Deploy(def)
}

// DeployJSON unmarshals and registers a JSON process definition
func (e *Engine) DeployJSON(data []byte) (*definition.Definition, error) {
	return e.definitions.DeployJSON(data)
}

// Definitions returns every deployed definition
func (e *Engine) Definitions() []*definition.Definition {
	return e.definitions.List()
}

// RegisterConnector adds a connector implementation under the specified ref
func (e *Engine) RegisterConnector(ref string, c connector.Connector) error {
	return e.connectors.Register(ref, c)
}

// StartProcess starts a new instance of the named definition; a zero
// version selects the latest deployed one
func (e *Engine) StartProcess(ctx context.Context, name string, version int, vars map[string]interface{}) (*instance.ProcessInstance, error) {
	return e.executor.StartProcess(ctx, name, version, vars, "", "")
}

// CancelProcess requests graceful termination of a live instance.
// Cancelling an instance that already reached a terminal state is a no-op.
func (e *Engine) CancelProcess(id string) error {
	return e.terminate(id, instance.ActionCancel)
}

// AbortProcess requests forced termination of a live instance
func (e *Engine) AbortProcess(id string) error {
	return e.terminate(id, instance.ActionAbort)
}

func (e *Engine) terminate(id string, action instance.Action) error {

	if _, err := e.store.GetProcessInstance(id); err != nil {
		var nf *service.NotFoundError
		if errors.As(err, &nf) {
			// already terminal: termination is idempotent
			if _, archErr := e.store.GetArchivedProcessInstance(id); archErr == nil {
				return nil
			}
		}
		return err
	}

	e.dispatcher.ScheduleProcess(id, action, nil)
	return nil
}

// ReplayFailedNode resets a failed node instance and schedules it for
// another execution
func (e *Engine) ReplayFailedNode(processID, nodeInstID string) error {
	return e.executor.ReplayFailedNode(processID, nodeInstID)
}

// PublishEvent delivers a named message or signal to the waiting
// subscriptions that match it and returns how many were delivered to
func (e *Engine) PublishEvent(eventType, name, correlationKey string, payload map[string]interface{}) (int, error) {
	return e.correlator.Publish(eventType, name, correlationKey, payload)
}

// GetProcessInstance returns a live process instance
func (e *Engine) GetProcessInstance(id string) (*instance.ProcessInstance, error) {
	return e.executor.LoadInstance(id)
}

// ListProcessInstances returns every live process instance
func (e *Engine) ListProcessInstances() ([]*instance.ProcessInstance, error) {
	return e.store.ListProcessInstances()
}

// NodesForProcess returns the live node instances of a process instance
func (e *Engine) NodesForProcess(processID string) ([]*instance.NodeInst, error) {
	return e.store.NodesForProcess(processID)
}

// GetArchivedProcessInstance returns the historical record of a finished
// instance
func (e *Engine) GetArchivedProcessInstance(id string) (*state.ArchivedProcessInstance, error) {
	return e.store.GetArchivedProcessInstance(id)
}

// ArchivedNodesForProcess returns the historical node records of a process
// instance
func (e *Engine) ArchivedNodesForProcess(processID string) ([]*state.ArchivedNodeInstance, error) {
	return e.store.ArchivedNodesForProcess(processID)
}

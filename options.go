package engine

import (
	"github.com/project-flogo/core/support/log"

	"github.com/procflow/engine/connector"
	"github.com/procflow/engine/dispatch"
	"github.com/procflow/engine/instance"
	"github.com/procflow/engine/service"
)

// Option configures an Engine
type Option func(*Engine)

// WithLogger sets the engine's root logger
func WithLogger(logger log.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithStore sets the instance store, replacing the in-memory default
func WithStore(store instance.Store) Option {
	return func(e *Engine) {
		e.store = store
	}
}

// WithExpressionGateway replaces the default expression gateway
func WithExpressionGateway(expr service.ExpressionGateway) Option {
	return func(e *Engine) {
		e.expr = expr
	}
}

// WithConnectorGateway replaces the default connector gateway
func WithConnectorGateway(gateway *connector.Gateway) Option {
	return func(e *Engine) {
		e.connectors = gateway
	}
}

// WithDispatcher replaces the default dispatcher, typically to tune the
// worker pool or queue size
func WithDispatcher(d *dispatch.Dispatcher) Option {
	return func(e *Engine) {
		e.dispatcher = d
	}
}

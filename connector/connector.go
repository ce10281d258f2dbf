// Package connector executes the hooks attached to process nodes.  Hook
// refs resolve against a registry of Connector implementations; calls to
// each ref run behind a circuit breaker so a failing external system trips
// fast instead of stalling workers.
package connector

import (
	"context"
	"fmt"
	"sync"

	"github.com/project-flogo/core/support/log"
	"github.com/sony/gobreaker/v2"

	"github.com/procflow/engine/service"
)

// Connector is one kind of external work a hook can perform.  Config is the
// hook's static configuration, scope the instance variables at execution
// time; returned values are merged back into the variables.
type Connector interface {
	Execute(ctx context.Context, config map[string]interface{}, scope map[string]interface{}) (map[string]interface{}, error)
}

// ConnectorFunc adapts a function to the Connector interface
type ConnectorFunc func(ctx context.Context, config map[string]interface{}, scope map[string]interface{}) (map[string]interface{}, error)

func (f ConnectorFunc) Execute(ctx context.Context, config map[string]interface{}, scope map[string]interface{}) (map[string]interface{}, error) {
	return f(ctx, config, scope)
}

// Gateway implements service.ConnectorGateway over a registry of named
// connectors
type Gateway struct {
	logger log.Logger

	mu         sync.RWMutex
	connectors map[string]Connector
	breakers   map[string]*gobreaker.CircuitBreaker[map[string]interface{}]
}

// NewGateway creates an empty connector Gateway
func NewGateway(logger log.Logger) *Gateway {
	if logger == nil {
		logger = log.RootLogger()
	}
	return &Gateway{
		logger:     logger,
		connectors: make(map[string]Connector),
		breakers:   make(map[string]*gobreaker.CircuitBreaker[map[string]interface{}]),
	}
}

// Register adds a connector under the specified ref, replacing any previous
// registration
func (g *Gateway) Register(ref string, c Connector) error {
	if ref == "" {
		return fmt.Errorf("connector ref is required")
	}
	if c == nil {
		return fmt.Errorf("connector '%s' is nil", ref)
	}

	g.mu.Lock()
	g.connectors[ref] = c
	g.mu.Unlock()
	return nil
}

// Execute implements service.ConnectorGateway.Execute
func (g *Gateway) Execute(ctx context.Context, hook *service.HookSpec, scope map[string]interface{}) (map[string]interface{}, error) {

	g.mu.RLock()
	conn, ok := g.connectors[hook.Ref]
	g.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no connector registered for ref '%s'", hook.Ref)
	}

	breaker := g.breakerFor(hook.Ref)

	if g.logger.DebugEnabled() {
		g.logger.Debugf("Executing hook '%s' via connector '%s'", hook.ID, hook.Ref)
	}

	return breaker.Execute(func() (map[string]interface{}, error) {
		return conn.Execute(ctx, hook.Config, scope)
	})
}

func (g *Gateway) breakerFor(ref string) *gobreaker.CircuitBreaker[map[string]interface{}] {

	g.mu.RLock()
	breaker, ok := g.breakers[ref]
	g.mu.RUnlock()
	if ok {
		return breaker
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if breaker, ok = g.breakers[ref]; ok {
		return breaker
	}

	breaker = gobreaker.NewCircuitBreaker[map[string]interface{}](gobreaker.Settings{
		Name: ref,
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			g.logger.Warnf("Connector '%s' circuit %s -> %s", name, from, to)
		},
	})
	g.breakers[ref] = breaker
	return breaker
}

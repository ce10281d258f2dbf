package bpm

import (
	"github.com/procflow/engine/definition"
	"github.com/procflow/engine/model"
)

// GatewayBehavior implements model.NodeBehavior for gateway nodes.  A
// gateway instance is created once; each arriving branch token raises its
// arrived count, and the join fires exactly once when its predicate holds.
// Tokens arriving after the join fired hit a no-op sink.
type GatewayBehavior struct {
}

// Enter implements model.NodeBehavior.Enter
func (gb *GatewayBehavior) Enter(ctx model.NodeContext) model.EnterResult {

	logger := ctx.ProcessLogger()
	node := ctx.Node()

	if ctx.Status().IsTerminal() || ctx.Status() == model.NodeStatusExecuting {
		// already fired, the token is absorbed
		if logger.DebugEnabled() {
			logger.Debugf("Gateway '%s' already fired, absorbing token", node.ID())
		}
		return model.EnterNotReady
	}

	ctx.SetStatus(model.NodeStatusCreated)

	if ctx.Aborting() {
		return model.EnterNotReady
	}

	if _, expected := ctx.Tokens(); expected == 0 {
		ctx.SetExpectedTokens(len(node.Incoming()))
	}

	arrived := ctx.ArriveToken()
	_, expected := ctx.Tokens()

	if logger.DebugEnabled() {
		logger.Debugf("Gateway '%s' token %d of %d arrived", node.ID(), arrived, expected)
	}

	switch node.GatewayKind() {
	case definition.GatewayExclusive:
		// an exclusive merge passes every token straight through
		ctx.SetStatus(model.NodeStatusReady)
		return model.EnterExec

	case definition.GatewayParallel:
		if arrived >= expected {
			ctx.SetStatus(model.NodeStatusReady)
			return model.EnterExec
		}
		return model.EnterNotReady

	case definition.GatewayInclusive:
		if arrived >= expected {
			ctx.SetStatus(model.NodeStatusReady)
			return model.EnterExec
		}

		active, err := ctx.HasActiveUpstream()
		if err != nil {
			logger.Errorf("Gateway '%s': upstream reachability check failed: %v", node.ID(), err)
			return model.EnterNotReady
		}
		if !active {
			// no live branch can still reach this join
			ctx.SetStatus(model.NodeStatusReady)
			return model.EnterExec
		}
		return model.EnterNotReady
	}

	return model.EnterNotReady
}

// Exec implements model.NodeBehavior.Exec
func (gb *GatewayBehavior) Exec(ctx model.NodeContext) (model.ExecResult, error) {

	ctx.SetStatus(model.NodeStatusExecuting)

	if err := ctx.RunOnEnterHooks(); err != nil {
		return model.ExecFail, err
	}
	if err := ctx.RunOnFinishHooks(); err != nil {
		return model.ExecFail, err
	}

	return model.ExecDone, nil
}

// Resume implements model.NodeBehavior.Resume
func (gb *GatewayBehavior) Resume(ctx model.NodeContext) (model.ExecResult, error) {
	return gb.Exec(ctx)
}

// Done implements model.NodeBehavior.Done
func (gb *GatewayBehavior) Done(ctx model.NodeContext) (notifyProcess bool, entries []*model.NodeEntry, err error) {

	ctx.SetStatus(model.NodeStatusCompleted)

	switch ctx.Node().GatewayKind() {
	case definition.GatewayParallel:
		entries = resolveAll(ctx)
	case definition.GatewayInclusive:
		entries, err = resolveInclusive(ctx)
	default:
		entries, err = resolveExclusive(ctx)
	}

	if err != nil {
		return false, nil, err
	}

	if len(entries) == 0 {
		return true, nil, nil
	}

	return false, entries, nil
}

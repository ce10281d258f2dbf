package bpm

import (
	"github.com/procflow/engine/model"
)

// CatchEventBehavior implements model.NodeBehavior for catching event nodes.
// Executing the node persists a waiting-event subscription and parks the
// branch; a matching publish or timer firing resumes it.
type CatchEventBehavior struct {
	ActivityBehavior
}

// Exec implements model.NodeBehavior.Exec
func (eb *CatchEventBehavior) Exec(ctx model.NodeContext) (model.ExecResult, error) {

	logger := ctx.ProcessLogger()
	node := ctx.Node()

	ctx.SetStatus(model.NodeStatusExecuting)

	if err := ctx.RunOnEnterHooks(); err != nil {
		return model.ExecFail, err
	}

	if logger.DebugEnabled() {
		logger.Debugf("Node '%s' subscribing for %s event '%s'", node.ID(), node.EventSpec().EventType, node.EventSpec().Name)
	}

	if err := ctx.SubscribeEvent(node.EventSpec()); err != nil {
		return model.ExecFail, err
	}

	return model.ExecWait, nil
}

// Resume implements model.NodeBehavior.Resume
func (eb *CatchEventBehavior) Resume(ctx model.NodeContext) (model.ExecResult, error) {

	logger := ctx.ProcessLogger()

	if logger.DebugEnabled() {
		logger.Debugf("Node '%s' resumed by event match", ctx.Node().ID())
	}

	if err := ctx.RunOnFinishHooks(); err != nil {
		return model.ExecFail, err
	}

	return model.ExecDone, nil
}

package bpm

import (
	"github.com/procflow/engine/model"
)

// ActivityBehavior implements model.NodeBehavior for plain activity nodes.
// The node's work is its connector hooks: on-enter hooks run when execution
// starts, on-finish hooks run before the node completes, and a hook failure
// moves the node to Failed.  Multi-instance activities fan out child
// executions instead and wait for them.
type ActivityBehavior struct {
}

// Enter implements model.NodeBehavior.Enter
func (ab *ActivityBehavior) Enter(ctx model.NodeContext) model.EnterResult {

	logger := ctx.ProcessLogger()

	if logger.DebugEnabled() {
		logger.Debugf("Enter Node '%s'", ctx.Node().ID())
	}

	if ctx.Status().IsTerminal() {
		// re-delivered token for a finished node
		return model.EnterNotReady
	}

	ctx.SetStatus(model.NodeStatusCreated)

	if ctx.Aborting() {
		return model.EnterNotReady
	}

	ctx.SetStatus(model.NodeStatusReady)
	return model.EnterExec
}

// Exec implements model.NodeBehavior.Exec
func (ab *ActivityBehavior) Exec(ctx model.NodeContext) (model.ExecResult, error) {

	logger := ctx.ProcessLogger()

	if logger.DebugEnabled() {
		logger.Debugf("Exec Node '%s'", ctx.Node().ID())
	}

	ctx.SetStatus(model.NodeStatusExecuting)

	// child executions run the node's hooks directly, only the container
	// fans out
	if ctx.Node().LoopSpec() != nil && !ctx.LoopChild() {
		return execMultiInstance(ctx)
	}

	if err := ctx.RunOnEnterHooks(); err != nil {
		return model.ExecFail, err
	}

	if err := ctx.RunOnFinishHooks(); err != nil {
		return model.ExecFail, err
	}

	return model.ExecDone, nil
}

// Resume implements model.NodeBehavior.Resume
func (ab *ActivityBehavior) Resume(ctx model.NodeContext) (model.ExecResult, error) {

	if ctx.Node().LoopSpec() != nil && !ctx.LoopChild() {
		return resumeMultiInstance(ctx)
	}

	// a replayed node re-runs its hooks from the stored hook cursor
	ctx.SetStatus(model.NodeStatusExecuting)

	if err := ctx.RunOnEnterHooks(); err != nil {
		return model.ExecFail, err
	}
	if err := ctx.RunOnFinishHooks(); err != nil {
		return model.ExecFail, err
	}

	return model.ExecDone, nil
}

// Done implements model.NodeBehavior.Done
func (ab *ActivityBehavior) Done(ctx model.NodeContext) (notifyProcess bool, entries []*model.NodeEntry, err error) {

	logger := ctx.ProcessLogger()

	ctx.SetStatus(model.NodeStatusCompleted)

	if logger.DebugEnabled() {
		logger.Debugf("Node '%s' is done", ctx.Node().ID())
	}

	entries, err = resolveExclusive(ctx)
	if err != nil {
		return false, nil, err
	}

	if len(entries) == 0 {
		// no outgoing transitions, notify the process
		return true, nil, nil
	}

	return false, entries, nil
}

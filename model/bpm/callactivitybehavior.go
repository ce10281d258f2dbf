package bpm

import (
	"fmt"

	"github.com/project-flogo/core/data/coerce"

	"github.com/procflow/engine/model"
)

// CallActivityBehavior implements model.NodeBehavior for call-activity
// nodes.  Executing the node starts a new process instance of the referenced
// definition and parks the caller until the callee reaches a terminal state.
type CallActivityBehavior struct {
	ActivityBehavior
}

// Exec implements model.NodeBehavior.Exec
func (cb *CallActivityBehavior) Exec(ctx model.NodeContext) (model.ExecResult, error) {

	logger := ctx.ProcessLogger()
	node := ctx.Node()
	call := node.CallActivitySpec()

	ctx.SetStatus(model.NodeStatusExecuting)

	if err := ctx.RunOnEnterHooks(); err != nil {
		return model.ExecFail, err
	}

	nameVal, err := ctx.EvalExpr(call.TargetName, nil)
	if err != nil {
		return model.ExecFail, err
	}
	name, err := coerce.ToString(nameVal)
	if err != nil || name == "" {
		return model.ExecFail, fmt.Errorf("node '%s': '%v' is not a valid call target", node.ID(), nameVal)
	}

	version := 0
	if call.TargetVersion != nil {
		versionVal, err := ctx.EvalExpr(call.TargetVersion, nil)
		if err != nil {
			return model.ExecFail, err
		}
		version, err = coerce.ToInt(versionVal)
		if err != nil || version < 0 {
			return model.ExecFail, fmt.Errorf("node '%s': '%v' is not a valid call target version", node.ID(), versionVal)
		}
	}

	if logger.DebugEnabled() {
		logger.Debugf("Node '%s' starting call activity '%s' version %d", node.ID(), name, version)
	}

	if err := ctx.StartChildProcess(name, version); err != nil {
		return model.ExecFail, err
	}

	return model.ExecWait, nil
}

// Resume implements model.NodeBehavior.Resume
func (cb *CallActivityBehavior) Resume(ctx model.NodeContext) (model.ExecResult, error) {

	terminal, aborted := ctx.ChildOutcome()

	if !terminal {
		return model.ExecWait, nil
	}
	if aborted {
		// the executor aborts the caller before Resume is reached; this is
		// a safety net for racing deliveries
		return model.ExecFail, fmt.Errorf("node '%s': callee was aborted", ctx.Node().ID())
	}

	if err := ctx.RunOnFinishHooks(); err != nil {
		return model.ExecFail, err
	}

	return model.ExecDone, nil
}

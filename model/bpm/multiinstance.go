package bpm

import (
	"fmt"

	"github.com/project-flogo/core/data/coerce"

	"github.com/procflow/engine/model"
)

// loop environment names visible to completion-condition expressions
const (
	loopCompletedCount = "completedCount"
	loopInstanceCount  = "instanceCount"
)

// execMultiInstance fans out the child executions of a multi-instance node.
// The node's hooks run once per child execution, never on the container.  A
// cardinality of zero completes the node immediately with zero children.
func execMultiInstance(ctx model.NodeContext) (model.ExecResult, error) {

	logger := ctx.ProcessLogger()
	loop := ctx.Node().LoopSpec()

	val, err := ctx.EvalExpr(loop.Cardinality, nil)
	if err != nil {
		return model.ExecFail, err
	}

	count, err := coerce.ToInt(val)
	if err != nil || count < 0 {
		return model.ExecFail, fmt.Errorf("node '%s': '%v' is not a valid loop cardinality", ctx.Node().ID(), val)
	}

	if logger.DebugEnabled() {
		logger.Debugf("Node '%s' fanning out %d child executions", ctx.Node().ID(), count)
	}

	if count == 0 {
		return model.ExecDone, nil
	}

	if err := ctx.SpawnChildren(count); err != nil {
		return model.ExecFail, err
	}

	return model.ExecWait, nil
}

// resumeMultiInstance is invoked after each child completion.  It re-checks
// the completion condition; once it holds the remaining children are aborted
// and the node completes without waiting for them.
func resumeMultiInstance(ctx model.NodeContext) (model.ExecResult, error) {

	logger := ctx.ProcessLogger()
	loop := ctx.Node().LoopSpec()

	completed, total := ctx.LoopCounts()

	if logger.DebugEnabled() {
		logger.Debugf("Node '%s' child done, %d of %d complete", ctx.Node().ID(), completed, total)
	}

	if loop.CompletionCondition != nil {
		val, err := ctx.EvalExpr(loop.CompletionCondition, map[string]interface{}{
			loopCompletedCount: completed,
			loopInstanceCount:  total,
		})
		if err != nil {
			return model.ExecFail, err
		}

		done, err := coerce.ToBool(val)
		if err != nil {
			return model.ExecFail, fmt.Errorf("node '%s': completion condition must yield a boolean", ctx.Node().ID())
		}

		if done {
			if logger.DebugEnabled() {
				logger.Debugf("Node '%s' completion condition holds, aborting remaining children", ctx.Node().ID())
			}
			if err := ctx.AbortRemainingChildren(); err != nil {
				return model.ExecFail, err
			}
			return model.ExecDone, nil
		}
	}

	if completed >= total {
		return model.ExecDone, nil
	}

	return model.ExecWait, nil
}

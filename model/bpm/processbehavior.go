package bpm

import (
	"github.com/procflow/engine/model"
)

// ProcessBehavior implements model.ProcessBehavior
type ProcessBehavior struct {
}

// Start implements model.ProcessBehavior.Start
func (pb *ProcessBehavior) Start(ctx model.ProcessContext) (started bool, entries []*model.NodeEntry) {

	starts := ctx.Definition().StartNodes()

	if len(starts) == 0 {
		ctx.Logger().Errorf("Process '%s' has no start nodes", ctx.Definition().Name())
		return false, nil
	}

	entries = make([]*model.NodeEntry, 0, len(starts))
	for _, node := range starts {
		entries = append(entries, &model.NodeEntry{Node: node})
	}

	return true, entries
}

// NodeDone implements model.ProcessBehavior.NodeDone
func (pb *ProcessBehavior) NodeDone(ctx model.ProcessContext) (processDone bool) {

	logger := ctx.Logger()

	logger.Debug("Checking if all node instances are terminal")

	for _, nodeInst := range ctx.NodeInstances() {
		// a failed node keeps the instance open until replayed
		if !nodeInst.Status().IsTerminal() || nodeInst.Status() == model.NodeStatusFailed {
			if logger.DebugEnabled() {
				logger.Debugf("Node '%s' not settled (%s)", nodeInst.Node().ID(), nodeInst.Status())
			}
			return false
		}
	}

	logger.Debug("All node instances terminal")

	return true
}

// Done implements model.ProcessBehavior.Done
func (pb *ProcessBehavior) Done(ctx model.ProcessContext) {
	ctx.Logger().Debug("Process Done")
}

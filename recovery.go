package engine

import (
	"errors"

	"github.com/procflow/engine/instance"
	"github.com/procflow/engine/model"
	"github.com/procflow/engine/service"
	"github.com/procflow/engine/util"
)

// recover resumes work interrupted by a crash or restart.  In-progress
// nodes are re-enqueued exactly once each; their persisted hook cursors
// guarantee already-performed hook side effects are not repeated.
// Half-terminated instances resume their abort, waiting nodes whose wakeup
// was lost in flight are re-driven, and persisted timer subscriptions are
// re-armed.
func (e *Engine) recover() error {

	nodes, err := e.store.NodesInProgress()
	if err != nil {
		return err
	}

	aborting := make(map[string]instance.Action)
	instances, err := e.store.ListProcessInstances()
	if err != nil {
		return err
	}
	for _, pi := range instances {
		if pi.Aborting {
			action := instance.ActionAbort
			if pi.CancelRequested {
				action = instance.ActionCancel
			}
			aborting[pi.ID] = action
		}
	}

	for _, ni := range nodes {
		if _, ok := aborting[ni.ProcessID]; ok {
			// the resumed abort below settles these nodes
			continue
		}
		if e.logger.DebugEnabled() {
			e.logger.Debugf("Recovering in-progress Node '%s' of instance '%s'", ni.NodeID, ni.ProcessID)
		}
		e.dispatcher.ScheduleNode(ni.ProcessID, ni.ID, instance.ActionExec, nil)
	}

	for _, pi := range instances {
		if err := e.recoverWaitingNodes(pi, aborting); err != nil {
			return err
		}
	}

	for id, action := range aborting {
		e.logger.Infof("Resuming interrupted termination of instance '%s'", id)
		e.dispatcher.ScheduleProcess(id, action, nil)
	}

	return e.correlator.RestoreTimers()
}

// recoverWaitingNodes re-drives the waiting nodes of an instance whose
// wakeup was consumed but not delivered before the crash: a caller whose
// callee already finished and was archived, a multi-instance container
// whose children all settled, and a catch node whose subscription is gone.
func (e *Engine) recoverWaitingNodes(pi *instance.ProcessInstance, aborting map[string]instance.Action) error {

	nis, err := e.store.NodesForProcess(pi.ID)
	if err != nil {
		return err
	}
	_, isAborting := aborting[pi.ID]

	for _, ni := range nis {
		if ni.Status != model.NodeStatusWaiting {
			continue
		}

		switch {
		case ni.ChildProcessID != "" && !ni.ChildTerminal:
			archived, err := e.store.GetArchivedProcessInstance(ni.ChildProcessID)
			if err != nil {
				var nf *service.NotFoundError
				if errors.As(err, &nf) {
					// callee still live, its own finalization notifies
					continue
				}
				return err
			}
			e.logger.Infof("Re-delivering finished callee '%s' to Node '%s' of instance '%s'",
				ni.ChildProcessID, ni.NodeID, ni.ProcessID)
			payload := map[string]interface{}{
				instance.PayloadAborted: archived.Status != int(model.ProcessStatusCompleted),
			}
			if archived.Status == int(model.ProcessStatusCompleted) {
				for name, value := range util.DeepCopyMap(archived.Variables) {
					payload[name] = value
				}
			}
			e.dispatcher.ScheduleNode(ni.ProcessID, ni.ID, instance.ActionChildDone, payload)

		case isAborting:
			// the resumed termination settles the rest

		case ni.LoopCardinality > 0:
			e.dispatcher.ScheduleNode(ni.ProcessID, ni.ID, instance.ActionResume, nil)

		default:
			events, err := e.store.WaitingEventsForNode(ni.ID)
			if err != nil {
				return err
			}
			if len(events) > 0 {
				continue
			}
			// the subscription was consumed but the resume never arrived;
			// fail the node so it can be replayed
			e.logger.Errorf("Node '%s' of instance '%s' waiting without a subscription, marking failed",
				ni.NodeID, ni.ProcessID)
			ni.Status = model.NodeStatusFailed
			if err := e.store.UpdateNodeInst(ni); err != nil {
				return err
			}
		}
	}

	return nil
}

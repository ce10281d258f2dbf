package instance

import (
	"context"
	"errors"
	"fmt"

	"github.com/procflow/engine/model"
	"github.com/procflow/engine/service"
)

// HandleProcess performs one process-level step: termination requests and
// event-subprocess starts.  Like HandleNode it is idempotent under
// re-delivery.
func (ex *Executor) HandleProcess(goctx context.Context, processID string, action Action, payload map[string]interface{}) error {

	pi, err := ex.LoadInstance(processID)
	if err != nil {
		var nf *service.NotFoundError
		if errors.As(err, &nf) {
			// already terminal and archived
			return nil
		}
		return err
	}

	switch action {
	case ActionCancel:
		return ex.TerminateProcess(goctx, pi, model.ProcessStatusCancelled)
	case ActionAbort:
		return ex.TerminateProcess(goctx, pi, model.ProcessStatusAborted)
	case ActionEventSubprocess:
		return ex.triggerEventSubprocess(goctx, pi, payload)
	default:
		return service.NewIllegalStateError(processID, fmt.Sprintf("unknown process action '%s'", action))
	}
}

// TerminateProcess moves a live instance to Cancelled or Aborted.  Callee
// instances of open call activities are terminated first; the instance is
// finalized only once every descendant is terminal.  Terminating an
// already-terminal or already-aborting instance is a no-op.
func (ex *Executor) TerminateProcess(goctx context.Context, pi *ProcessInstance, status model.ProcessStatus) error {

	if pi.Status.IsTerminal() {
		if pi.logger != nil && pi.logger.DebugEnabled() {
			pi.logger.Debugf("Terminate requested for instance '%s' already in status %s", pi.ID, pi.Status)
		}
		return nil
	}

	if !pi.Aborting {
		pi.Aborting = true
		pi.CancelRequested = status == model.ProcessStatusCancelled
		if err := ex.store.UpdateProcessInstance(pi); err != nil {
			return err
		}
		pi.logger.Infof("Terminating process instance '%s' (%s)", pi.ID, status)
	}

	// callees first: abort any open child instance and revisit once its
	// outcome comes back
	pending := false
	for _, ni := range pi.nodes {
		if ni.Status.IsTerminal() {
			continue
		}
		if ni.ChildProcessID != "" && !ni.ChildTerminal {
			ex.work.ScheduleProcess(ni.ChildProcessID, ActionAbort, nil)
			pending = true
			continue
		}
		if err := ex.abortNode(pi, ni); err != nil {
			return err
		}
	}

	if pending {
		// parked until a callee outcome arrives; the ChildDone step
		// schedules the revisit
		return ex.store.UpdateProcessInstance(pi)
	}

	if err := ex.events.UnsubscribeScope(pi.ID); err != nil {
		return err
	}

	return ex.finalizeProcess(goctx, pi, status)
}

// triggerEventSubprocess starts an event subprocess inside a running
// instance.  An interrupting subprocess aborts the main-scope nodes first;
// the instance itself stays active and completes through the subprocess
// branch.
func (ex *Executor) triggerEventSubprocess(goctx context.Context, pi *ProcessInstance, payload map[string]interface{}) error {

	if pi.Status.IsTerminal() || pi.Aborting {
		return nil
	}

	startNodeID, _ := payload[PayloadStartNode].(string)
	interrupting, _ := payload[PayloadInterrupting].(bool)

	startNode := pi.def.GetNode(startNodeID)
	if startNode == nil {
		return service.NewIllegalStateError(pi.ID, fmt.Sprintf("event subprocess start node '%s' not found", startNodeID))
	}

	if interrupting {
		for _, ni := range pi.nodes {
			if ni.Status.IsTerminal() {
				continue
			}
			if ni.ChildProcessID != "" && !ni.ChildTerminal {
				ex.work.ScheduleProcess(ni.ChildProcessID, ActionAbort, nil)
			}
			if err := ex.abortNode(pi, ni); err != nil {
				return err
			}
		}
	}

	ex.mergePayload(pi, payload)

	entries := []*model.NodeEntry{{Node: startNode}}
	if err := ex.enterNodes(goctx, pi, entries); err != nil {
		return err
	}

	return ex.store.UpdateProcessInstance(pi)
}

// ReplayFailedNode resets a failed node instance and schedules it for
// another execution.  Hook state is reset, the node re-runs its hooks from
// the start.
func (ex *Executor) ReplayFailedNode(processID, nodeInstID string) error {

	pi, err := ex.LoadInstance(processID)
	if err != nil {
		return err
	}
	if pi.Status.IsTerminal() || pi.Aborting {
		return service.NewIllegalStateError(processID, "process instance is not active")
	}

	ni := pi.findNodeInst(nodeInstID)
	if ni == nil {
		return service.NewNotFoundError("node instance", nodeInstID)
	}
	if ni.Status != model.NodeStatusFailed {
		return service.NewIllegalStateError(nodeInstID, fmt.Sprintf("node is %s, only failed nodes can be replayed", ni.Status))
	}

	ni.Status = model.NodeStatusReady
	ni.HookCursor = 0
	if err := ex.store.UpdateNodeInst(ni); err != nil {
		return err
	}

	pi.logger.Infof("Replaying failed Node '%s' in instance '%s'", ni.NodeID, pi.ID)
	ex.work.ScheduleNode(pi.ID, ni.ID, ActionExec, nil)

	return nil
}

package instance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/project-flogo/core/support/log"

	"github.com/procflow/engine/definition"
	"github.com/procflow/engine/model"
	"github.com/procflow/engine/service"
	"github.com/procflow/engine/util"
)

// Payload keys carried by work items.  Keys with a leading underscore are
// control values; everything else is merged into the instance variables.
const (
	PayloadAborted      = "_aborted"
	PayloadStartNode    = "_startNode"
	PayloadInterrupting = "_interrupting"
)

// Executor drives process instances node by node: it resolves successors
// once a node completes, fans multi-instance nodes out and in, starts and
// awaits call activities and propagates cancellation across instance trees.
// All its entry points run under the dispatcher's per-instance lock.
type Executor struct {
	store       Store
	expr        service.ExpressionGateway
	connector   service.ConnectorGateway
	definitions DefinitionResolver
	events      EventSubscriber
	work        WorkScheduler
	procModel   *model.ProcessModel
	logger      log.Logger
}

// Config carries the collaborators of an Executor
type Config struct {
	Store       Store
	Expression  service.ExpressionGateway
	Connector   service.ConnectorGateway
	Definitions DefinitionResolver
	Events      EventSubscriber
	Work        WorkScheduler
	Model       *model.ProcessModel
	Logger      log.Logger
}

// NewExecutor creates an Executor from the specified collaborators
func NewExecutor(config Config) *Executor {
	procModel := config.Model
	if procModel == nil {
		procModel = model.Default()
	}
	logger := config.Logger
	if logger == nil {
		logger = log.RootLogger()
	}

	return &Executor{
		store:       config.Store,
		expr:        config.Expression,
		connector:   config.Connector,
		definitions: config.Definitions,
		events:      config.Events,
		work:        config.Work,
		procModel:   procModel,
		logger:      logger,
	}
}

// StartProcess creates and starts a new instance of the definition resolved
// by name and version (zero selects the latest).  callerID is the node
// instance id of the starting call activity, empty for API starts.
func (ex *Executor) StartProcess(goctx context.Context, name string, version int, vars map[string]interface{}, callerID, rootID string) (*ProcessInstance, error) {

	def, err := ex.definitions.Lookup(name, version)
	if err != nil {
		return nil, err
	}

	pi := &ProcessInstance{
		ID:         uuid.NewString(),
		DefName:    def.Name(),
		DefVersion: def.Version(),
		Status:     model.ProcessStatusNotStarted,
		StartTime:  time.Now().UTC(),
		CallerID:   callerID,
		RootID:     rootID,
		Variables:  util.DeepCopyMap(def.DataDeclarations()),
	}
	if pi.RootID == "" {
		pi.RootID = pi.ID
	}
	for name, value := range vars {
		pi.SetVar(name, value)
	}

	pi.def = def
	pi.logger = log.ChildLoggerWithFields(ex.logger, log.FieldString("processId", pi.ID))

	if err := ex.store.CreateProcessInstance(pi); err != nil {
		return nil, err
	}

	if ex.logger.DebugEnabled() {
		ex.logger.Debugf("Starting instance of process '%s' version %d", def.Name(), def.Version())
	}

	for _, hook := range def.OnEnterHooks() {
		out, err := ex.connector.Execute(goctx, hook, pi.Scope(nil))
		if err != nil {
			pi.Status = model.ProcessStatusFailed
			pi.EndTime = time.Now().UTC()
			_ = ex.store.SaveProcessTerminal(pi, pi.Archive())
			return nil, service.NewConnectorExecutionError(hook.ID, err)
		}
		for name, value := range out {
			pi.SetVar(name, value)
		}
	}

	pi.Status = model.ProcessStatusActive
	if err := ex.store.UpdateProcessInstance(pi); err != nil {
		return nil, err
	}

	if err := ex.events.SubscribeScope(pi); err != nil {
		return nil, err
	}

	behavior := ex.procModel.GetProcessBehavior()
	started, entries := behavior.Start(&processContext{pi})
	if !started {
		return pi, fmt.Errorf("process '%s' could not be started", def.Name())
	}

	// no further instance-record writes from here: scheduled node steps may
	// already be running under the dispatcher lock with a newer revision
	if err := ex.enterNodes(goctx, pi, entries); err != nil {
		return pi, err
	}

	return pi, nil
}

// HandleNode performs one state-machine step for a node instance.  It is
// idempotent under re-delivery: a step for a terminal node or terminal
// process is a no-op.
func (ex *Executor) HandleNode(goctx context.Context, processID, nodeInstID string, action Action, payload map[string]interface{}) error {

	pi, err := ex.LoadInstance(processID)
	if err != nil {
		var nf *service.NotFoundError
		if errors.As(err, &nf) {
			// instance already finished and was archived
			return nil
		}
		return err
	}

	if pi.Status.IsTerminal() {
		return nil
	}

	ni := pi.findNodeInst(nodeInstID)
	if ni == nil {
		return nil
	}

	if pi.Aborting {
		// the abort path owns this instance; the only step still processed
		// is a callee outcome, which the pending termination revisit waits on
		if action == ActionChildDone {
			ni.ChildTerminal = true
			ni.ChildAborted = true
			if err := ex.abortNode(pi, ni); err != nil {
				return err
			}
			// the callee outcome unparks the pending termination
			revisit := ActionAbort
			if pi.CancelRequested {
				revisit = ActionCancel
			}
			ex.work.ScheduleProcess(pi.ID, revisit, nil)
			return ex.afterStep(pi)
		}
		return nil
	}

	if ni.Status.IsTerminal() {
		return nil
	}

	behavior := ex.behaviorFor(ni)
	nctx := &nodeContext{goctx: goctx, exec: ex, pi: pi, ni: ni}

	var result model.ExecResult

	switch action {
	case ActionExec:
		result, err = behavior.Exec(nctx)

	case ActionResume:
		ex.mergePayload(pi, payload)
		result, err = behavior.Resume(nctx)

	case ActionChildDone:
		ni.ChildTerminal = true
		if aborted, _ := payload[PayloadAborted].(bool); aborted {
			// the callee was aborted or cancelled out from under its
			// caller: the caller node dies and the abort cascades up
			if err := ex.abortNode(pi, ni); err != nil {
				return err
			}
			ex.work.ScheduleProcess(pi.ID, ActionAbort, nil)
			return ex.afterStep(pi)
		}
		ex.mergePayload(pi, payload)
		result, err = behavior.Resume(nctx)

	default:
		return service.NewIllegalStateError(nodeInstID, fmt.Sprintf("unknown node action '%s'", action))
	}

	if err != nil {
		ex.handleNodeError(pi, ni, err)
		return ex.afterStep(pi)
	}

	switch result {
	case model.ExecDone:
		if err := ex.handleNodeDone(goctx, pi, ni, behavior); err != nil {
			return err
		}
	case model.ExecWait:
		ni.Status = model.NodeStatusWaiting
		if err := ex.store.UpdateNodeInst(ni); err != nil {
			return err
		}
	case model.ExecSkip:
		ni.Status = model.NodeStatusSkipped
		if err := ex.store.SaveNodeTerminal(ni, ni.Archive()); err != nil {
			return err
		}
	case model.ExecFail:
		ex.handleNodeError(pi, ni, fmt.Errorf("node '%s' failed", ni.NodeID))
	}

	return ex.afterStep(pi)
}

// afterStep persists instance-level changes accumulated during a step
func (ex *Executor) afterStep(pi *ProcessInstance) error {
	if pi.Status.IsTerminal() {
		// terminal save already happened inside the step
		return nil
	}
	if !pi.Aborting {
		if err := ex.revisitJoins(pi); err != nil {
			return err
		}
	}
	return ex.store.UpdateProcessInstance(pi)
}

// revisitJoins re-evaluates parked inclusive joins after a step.  A join
// waiting on more tokens only re-checks its liveness predicate when a token
// arrives, so a branch that terminates without delivering one would
// otherwise leave the join parked forever.
func (ex *Executor) revisitJoins(pi *ProcessInstance) error {

	for _, ni := range pi.nodes {
		if ni.Status != model.NodeStatusCreated || ni.node == nil {
			continue
		}
		if ni.node.GatewayKind() != definition.GatewayInclusive {
			continue
		}
		active, err := ex.hasActiveUpstream(pi, ni)
		if err != nil {
			return err
		}
		if active {
			continue
		}
		if pi.logger.DebugEnabled() {
			pi.logger.Debugf("Gateway '%s' upstream drained, firing join", ni.NodeID)
		}
		ni.Status = model.NodeStatusReady
		if err := ex.store.UpdateNodeInst(ni); err != nil {
			return err
		}
		ex.work.ScheduleNode(pi.ID, ni.ID, ActionExec, nil)
	}

	return nil
}

func (ex *Executor) mergePayload(pi *ProcessInstance, payload map[string]interface{}) {
	for name, value := range payload {
		if len(name) > 0 && name[0] == '_' {
			continue
		}
		pi.SetVar(name, value)
	}
}

// enterNodes enters the specified definition nodes, scheduling execution
// for the ones that become ready
func (ex *Executor) enterNodes(goctx context.Context, pi *ProcessInstance, entries []*model.NodeEntry) error {

	for _, entry := range entries {
		ni, err := ex.findOrCreateNodeInst(pi, entry.Node)
		if err != nil {
			return err
		}

		behavior := ex.behaviorFor(ni)
		nctx := &nodeContext{goctx: goctx, exec: ex, pi: pi, ni: ni}

		enterResult := behavior.Enter(nctx)

		if err := ex.store.UpdateNodeInst(ni); err != nil {
			return err
		}

		switch enterResult {
		case model.EnterExec:
			ex.work.ScheduleNode(pi.ID, ni.ID, ActionExec, nil)
		case model.EnterSkip:
			ni.Status = model.NodeStatusSkipped
			if err := ex.store.SaveNodeTerminal(ni, ni.Archive()); err != nil {
				return err
			}
		}
	}

	return nil
}

// handleNodeDone finalizes a completed node and enters its successors
func (ex *Executor) handleNodeDone(goctx context.Context, pi *ProcessInstance, ni *NodeInst, behavior model.NodeBehavior) error {

	nctx := &nodeContext{goctx: goctx, exec: ex, pi: pi, ni: ni}

	if ni.IsLoopChild() {
		// child executions complete to their container, they have no
		// outgoing transitions of their own
		ni.Status = model.NodeStatusCompleted
		if err := ex.store.SaveNodeTerminal(ni, ni.Archive()); err != nil {
			return err
		}

		parent := pi.findNodeInst(ni.ParentID)
		if parent == nil || parent.Status.IsTerminal() {
			return nil
		}
		parent.CompletedChildren++
		if err := ex.store.UpdateNodeInst(parent); err != nil {
			return err
		}
		ex.work.ScheduleNode(pi.ID, parent.ID, ActionResume, nil)
		return nil
	}

	notify, entries, err := behavior.Done(nctx)
	if err != nil {
		ex.handleNodeError(pi, ni, err)
		return nil
	}

	if err := ex.store.SaveNodeTerminal(ni, ni.Archive()); err != nil {
		return err
	}

	if notify {
		pb := ex.procModel.GetProcessBehavior()
		if pb.NodeDone(&processContext{pi}) {
			pb.Done(&processContext{pi})
			return ex.finalizeProcess(goctx, pi, model.ProcessStatusCompleted)
		}
		return nil
	}

	return ex.enterNodes(goctx, pi, entries)
}

// handleNodeError moves a node to Failed.  Failed nodes are never retried by
// the engine; they wait for an explicit replay.  Sibling branches are not
// affected.
func (ex *Executor) handleNodeError(pi *ProcessInstance, ni *NodeInst, err error) {

	pi.logger.Errorf("Execution failed for Node '%s' in Process '%s' - %s", ni.NodeID, pi.DefName, err.Error())

	ni.Status = model.NodeStatusFailed
	if updErr := ex.store.UpdateNodeInst(ni); updErr != nil {
		pi.logger.Errorf("unable to persist failed node '%s': %v", ni.NodeID, updErr)
	}
}

// finalizeProcess moves a process instance to its terminal status, writing
// the archive copy and removing the live records in one transaction, then
// notifies the caller when the instance was started by a call activity
func (ex *Executor) finalizeProcess(goctx context.Context, pi *ProcessInstance, status model.ProcessStatus) error {

	if pi.Status.IsTerminal() {
		return nil
	}

	if status == model.ProcessStatusCompleted {
		for _, hook := range pi.def.OnFinishHooks() {
			out, err := ex.connector.Execute(goctx, hook, pi.Scope(nil))
			if err != nil {
				pi.logger.Errorf("on-finish connector '%s' failed: %v", hook.ID, err)
				status = model.ProcessStatusFailed
				break
			}
			for name, value := range out {
				pi.SetVar(name, value)
			}
		}
	}

	pi.Status = status
	pi.EndTime = time.Now().UTC()

	if err := ex.events.UnsubscribeScope(pi.ID); err != nil {
		return err
	}

	if err := ex.store.SaveProcessTerminal(pi, pi.Archive()); err != nil {
		return err
	}

	pi.logger.Infof("Process instance '%s' %s", pi.ID, status)

	if pi.CallerID != "" {
		caller, err := ex.store.GetNodeInst(pi.CallerID)
		if err != nil {
			var nf *service.NotFoundError
			if errors.As(err, &nf) {
				return nil
			}
			return err
		}
		payload := map[string]interface{}{
			PayloadAborted: status != model.ProcessStatusCompleted,
		}
		if status == model.ProcessStatusCompleted {
			for name, value := range util.DeepCopyMap(pi.Variables) {
				payload[name] = value
			}
		}
		ex.work.ScheduleNode(caller.ProcessID, caller.ID, ActionChildDone, payload)
	}

	return nil
}

// startCallee starts the target instance of a call activity, parking the
// caller node until the callee reaches a terminal state
func (ex *Executor) startCallee(pi *ProcessInstance, ni *NodeInst, name string, version int) error {

	child, err := ex.StartProcess(context.Background(), name, version, util.DeepCopyMap(pi.Variables), ni.ID, pi.RootID)
	if err != nil {
		return err
	}

	ni.ChildProcessID = child.ID
	ni.ChildTerminal = false
	ni.ChildAborted = false

	return ex.store.UpdateNodeInst(ni)
}

// spawnLoopChildren creates the child executions of a multi-instance node
func (ex *Executor) spawnLoopChildren(pi *ProcessInstance, ni *NodeInst, count int) error {

	ni.LoopCardinality = count
	ni.CompletedChildren = 0
	if err := ex.store.UpdateNodeInst(ni); err != nil {
		return err
	}

	for i := 0; i < count; i++ {
		child := &NodeInst{
			ID:        uuid.NewString(),
			NodeID:    ni.NodeID,
			ProcessID: pi.ID,
			ParentID:  ni.ID,
			Status:    model.NodeStatusCreated,
			LoopIndex: i,
		}
		child.node = ni.node

		if err := ex.store.CreateNodeInst(child); err != nil {
			return err
		}
		pi.nodes = append(pi.nodes, child)

		ex.work.ScheduleNode(pi.ID, child.ID, ActionExec, nil)
	}

	return nil
}

// abortLoopChildren aborts the non-terminal child executions of a
// multi-instance node
func (ex *Executor) abortLoopChildren(pi *ProcessInstance, ni *NodeInst) error {

	for _, child := range pi.nodes {
		if child.ParentID != ni.ID || child.Status.IsTerminal() {
			continue
		}
		if err := ex.abortNode(pi, child); err != nil {
			return err
		}
	}
	return nil
}

// abortNode transitions a node instance to Aborted and removes the waiting
// events it owns.  Aborting an already-terminal node is a no-op.
func (ex *Executor) abortNode(pi *ProcessInstance, ni *NodeInst) error {

	if ni.Status.IsTerminal() {
		return nil
	}

	if err := ex.events.Unsubscribe(ni); err != nil {
		return err
	}

	ni.Status = model.NodeStatusAborted
	return ex.store.SaveNodeTerminal(ni, ni.Archive())
}

// runHooks executes connector hooks from the node's persisted hook cursor.
// The cursor is saved after every hook so a recovered or replayed step never
// repeats a hook side effect.
func (ex *Executor) runHooks(goctx context.Context, pi *ProcessInstance, ni *NodeInst, hooks []*service.HookSpec, offset int) error {

	for i, hook := range hooks {
		idx := offset + i
		if ni.HookCursor > idx {
			continue
		}

		var extra map[string]interface{}
		if ni.IsLoopChild() {
			extra = map[string]interface{}{"loopIndex": ni.LoopIndex}
		}

		out, err := ex.connector.Execute(goctx, hook, pi.Scope(extra))
		if err != nil {
			return service.NewConnectorExecutionError(hook.ID, err)
		}

		for name, value := range out {
			pi.SetVar(name, value)
		}

		ni.HookCursor = idx + 1
		if err := ex.store.UpdateNodeInst(ni); err != nil {
			return err
		}
	}

	return nil
}

// hasActiveUpstream reports whether any live branch of the instance can
// still reach the join node.  Reachability is a static walk over the
// definition graph from each non-terminal node instance, never passing
// through the join itself.
func (ex *Executor) hasActiveUpstream(pi *ProcessInstance, join *NodeInst) (bool, error) {

	target := join.NodeID

	for _, other := range pi.nodes {
		if other.ID == join.ID {
			continue
		}
		// failed nodes count as live, a replay can still deliver a token
		if other.Status.IsTerminal() && other.Status != model.NodeStatusFailed {
			continue
		}
		if other.node == nil {
			continue
		}
		visited := make(map[string]bool)
		if canReach(other.node, target, visited) {
			return true, nil
		}
	}

	return false, nil
}

func canReach(from *definition.Node, targetID string, visited map[string]bool) bool {

	if from.ID() == targetID {
		return true
	}
	if visited[from.ID()] {
		return false
	}
	visited[from.ID()] = true

	for _, t := range from.Outgoing() {
		if canReach(t.ToNode(), targetID, visited) {
			return true
		}
	}
	return false
}

// findOrCreateNodeInst finds an existing live NodeInst for the definition
// node or creates one if not found
func (ex *Executor) findOrCreateNodeInst(pi *ProcessInstance, node *definition.Node) (*NodeInst, error) {

	for _, ni := range pi.nodes {
		if ni.NodeID == node.ID() && ni.ParentID == "" {
			return ni, nil
		}
	}

	ni := &NodeInst{
		ID:        uuid.NewString(),
		NodeID:    node.ID(),
		ProcessID: pi.ID,
		Status:    model.NodeStatusNotStarted,
	}
	ni.node = node

	if err := ex.store.CreateNodeInst(ni); err != nil {
		return nil, err
	}
	pi.nodes = append(pi.nodes, ni)

	return ni, nil
}

func (ex *Executor) behaviorFor(ni *NodeInst) model.NodeBehavior {
	behavior := ex.procModel.GetDefaultNodeBehavior()
	if typeID := ni.node.TypeID(); typeID != "" {
		behavior = ex.procModel.GetNodeBehavior(typeID)
	}
	return behavior
}

// LoadInstance loads a live process instance with its definition, node
// instances and logger attached
func (ex *Executor) LoadInstance(processID string) (*ProcessInstance, error) {

	pi, err := ex.store.GetProcessInstance(processID)
	if err != nil {
		return nil, err
	}

	def, err := ex.definitions.Lookup(pi.DefName, pi.DefVersion)
	if err != nil {
		return nil, err
	}
	pi.def = def
	pi.logger = log.ChildLoggerWithFields(ex.logger, log.FieldString("processId", pi.ID))

	nodes, err := ex.store.NodesForProcess(pi.ID)
	if err != nil {
		return nil, err
	}
	for _, ni := range nodes {
		ni.node = def.GetNode(ni.NodeID)
	}
	pi.nodes = nodes

	return pi, nil
}

func (pi *ProcessInstance) findNodeInst(nodeInstID string) *NodeInst {
	for _, ni := range pi.nodes {
		if ni.ID == nodeInstID {
			return ni
		}
	}
	return nil
}

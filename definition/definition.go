package definition

import (
	"github.com/procflow/engine/service"
)

// GatewayKind is the branching semantic of a gateway node
type GatewayKind string

const (
	GatewayExclusive GatewayKind = "exclusive"
	GatewayParallel  GatewayKind = "parallel"
	GatewayInclusive GatewayKind = "inclusive"
)

// Node type ids.  An empty type is a plain activity node.
const (
	TypeActivity     = ""
	TypeGateway      = "gateway"
	TypeCatchEvent   = "catchEvent"
	TypeCallActivity = "callActivity"
)

// Event type ids for catch events and event subprocess triggers
const (
	EventMessage = "message"
	EventSignal  = "signal"
	EventTimer   = "timer"
)

// Definition is the object that describes the definition of a deployed
// process.  It contains its data declarations and structure (nodes &
// transitions).  A Definition is immutable after it is deployed.
type Definition struct {
	name    string
	version int

	nodes       map[string]*Node
	transitions []*Transition

	data   map[string]interface{}
	actors []string

	eventSubprocesses []*EventSubprocess

	onEnterHooks  []*service.HookSpec
	onFinishHooks []*service.HookSpec
}

// Name returns the name of the definition
func (d *Definition) Name() string {
	return d.name
}

// Version returns the version of the definition.  A name and version pair is
// unique within a DefinitionManager.
func (d *Definition) Version() int {
	return d.version
}

// GetNode returns the node with the specified ID
func (d *Definition) GetNode(nodeID string) *Node {
	return d.nodes[nodeID]
}

// Nodes returns all the nodes of the definition
func (d *Definition) Nodes() []*Node {
	nodes := make([]*Node, 0, len(d.nodes))
	for _, node := range d.nodes {
		nodes = append(nodes, node)
	}
	return nodes
}

// Transitions returns the transitions of the definition in declaration order
func (d *Definition) Transitions() []*Transition {
	return d.transitions
}

// StartNodes returns the nodes with no incoming transitions, the entry
// points of the process
func (d *Definition) StartNodes() []*Node {
	var starts []*Node
	for _, node := range d.nodes {
		if len(node.incoming) == 0 && !d.isEventSubprocessRoot(node.id) {
			starts = append(starts, node)
		}
	}
	return starts
}

func (d *Definition) isEventSubprocessRoot(nodeID string) bool {
	for _, esp := range d.eventSubprocesses {
		if esp.StartNodeID == nodeID {
			return true
		}
	}
	return false
}

// EventSubprocesses returns the event subprocess declarations of the
// definition
func (d *Definition) EventSubprocesses() []*EventSubprocess {
	return d.eventSubprocesses
}

// DataDeclarations returns the declared process variables and their initial
// values
func (d *Definition) DataDeclarations() map[string]interface{} {
	return d.data
}

// Actors returns the declared actors of the process
func (d *Definition) Actors() []string {
	return d.actors
}

// OnEnterHooks returns the connector hooks run when an instance of this
// process starts
func (d *Definition) OnEnterHooks() []*service.HookSpec {
	return d.onEnterHooks
}

// OnFinishHooks returns the connector hooks run when an instance of this
// process completes
func (d *Definition) OnFinishHooks() []*service.HookSpec {
	return d.onFinishHooks
}

// LoopSpec describes the multi-instance configuration of a node
type LoopSpec struct {
	// Cardinality yields the number of child executions to instantiate
	Cardinality *service.Expression

	// CompletionCondition is re-evaluated after each child completion; when
	// it holds, remaining children are aborted and the node completes
	CompletionCondition *service.Expression
}

// CallActivitySpec describes the target process of a call activity
type CallActivitySpec struct {
	// TargetName yields the name of the definition to start
	TargetName *service.Expression

	// TargetVersion yields the version of the definition to start, nil or a
	// zero result selects the latest deployed version
	TargetVersion *service.Expression
}

// EventSpec describes the event a catching node or event subprocess waits on
type EventSpec struct {
	// EventType is one of EventMessage, EventSignal or EventTimer
	EventType string

	// Name is the event name matched on publish
	Name string

	// CorrelationKey yields the correlation key value at subscribe time
	CorrelationKey *service.Expression

	// Trigger is the timer trigger, only set for EventTimer
	Trigger *service.TriggerSpec
}

// EventSubprocess declares a subscription scoped to a process instance.  On
// match the subgraph rooted at StartNodeID is started; if Interrupting, all
// other work in the scope is aborted first.
type EventSubprocess struct {
	Event        *EventSpec
	StartNodeID  string
	Interrupting bool
}

// Node is the object that describes the definition of a single flow node.
// It carries the per-type specs (gateway kind, loop, call-activity, event)
// and its connector hooks.
type Node struct {
	definition *Definition
	id         string
	name       string
	typeID     string

	gatewayKind GatewayKind
	loop        *LoopSpec
	call        *CallActivitySpec
	event       *EventSpec

	onEnterHooks  []*service.HookSpec
	onFinishHooks []*service.HookSpec

	incoming []*Transition
	outgoing []*Transition
}

// ID returns the id of the node
func (n *Node) ID() string {
	return n.id
}

// Name returns the name of the node
func (n *Node) Name() string {
	if n.name == "" {
		return n.id
	}
	return n.name
}

// TypeID returns the type id of the node, an empty string for a plain
// activity
func (n *Node) TypeID() string {
	return n.typeID
}

// Definition returns the definition that owns this node
func (n *Node) Definition() *Definition {
	return n.definition
}

// GatewayKind returns the gateway kind of the node, empty when the node is
// not a gateway
func (n *Node) GatewayKind() GatewayKind {
	return n.gatewayKind
}

// LoopSpec returns the multi-instance configuration of the node, nil when
// the node is not multi-instance
func (n *Node) LoopSpec() *LoopSpec {
	return n.loop
}

// CallActivitySpec returns the call-activity configuration of the node, nil
// when the node is not a call activity
func (n *Node) CallActivitySpec() *CallActivitySpec {
	return n.call
}

// EventSpec returns the catch-event configuration of the node, nil when the
// node is not a catching event
func (n *Node) EventSpec() *EventSpec {
	return n.event
}

// OnEnterHooks returns the hooks run before the node's work starts
func (n *Node) OnEnterHooks() []*service.HookSpec {
	return n.onEnterHooks
}

// OnFinishHooks returns the hooks run before the node completes
func (n *Node) OnFinishHooks() []*service.HookSpec {
	return n.onFinishHooks
}

// Incoming returns the transitions that target this node, in declaration
// order
func (n *Node) Incoming() []*Transition {
	return n.incoming
}

// Outgoing returns the transitions that leave this node, in declaration
// order.  Guard evaluation order for exclusive resolution follows this
// order.
func (n *Node) Outgoing() []*Transition {
	return n.outgoing
}

// Transition is the object that describes a directed edge between two nodes.
// A transition may carry a guard expression; a transition flagged as default
// is taken when no guarded sibling matches.
type Transition struct {
	definition *Definition
	id         int
	from       *Node
	to         *Node
	guard      *service.Expression
	isDefault  bool
}

// ID returns the id of the transition
func (t *Transition) ID() int {
	return t.id
}

// FromNode returns the source node of the transition
func (t *Transition) FromNode() *Node {
	return t.from
}

// ToNode returns the target node of the transition
func (t *Transition) ToNode() *Node {
	return t.to
}

// Guard returns the guard expression of the transition, nil when unguarded
func (t *Transition) Guard() *service.Expression {
	return t.guard
}

// IsDefault indicates that this transition is the declared default of its
// source node
func (t *Transition) IsDefault() bool {
	return t.isDefault
}

package definition

import (
	"encoding/json"
	"fmt"

	"github.com/procflow/engine/service"
)

// DefinitionRep is a serializable representation of a process Definition
type DefinitionRep struct {
	Name    string `json:"name"`
	Version int    `json:"version"`

	Data   map[string]interface{} `json:"data,omitempty"`
	Actors []string               `json:"actors,omitempty"`

	Nodes       []*NodeRep       `json:"nodes"`
	Transitions []*TransitionRep `json:"transitions"`

	EventSubprocesses []*EventSubprocessRep `json:"eventSubprocesses,omitempty"`

	OnEnter  []*service.HookSpec `json:"onEnter,omitempty"`
	OnFinish []*service.HookSpec `json:"onFinish,omitempty"`
}

// NodeRep is a serializable representation of a flow node
type NodeRep struct {
	ID   string `json:"id"`
	Type string `json:"type,omitempty"`
	Name string `json:"name,omitempty"`

	Gateway string           `json:"gateway,omitempty"`
	Loop    *LoopRep         `json:"loop,omitempty"`
	Call    *CallActivityRep `json:"call,omitempty"`
	Event   *EventRep        `json:"event,omitempty"`

	OnEnter  []*service.HookSpec `json:"onEnter,omitempty"`
	OnFinish []*service.HookSpec `json:"onFinish,omitempty"`
}

// LoopRep is a serializable representation of a multi-instance configuration
type LoopRep struct {
	Cardinality         *service.Expression `json:"cardinality"`
	CompletionCondition *service.Expression `json:"completionCondition,omitempty"`
}

// CallActivityRep is a serializable representation of a call-activity target
type CallActivityRep struct {
	TargetName    *service.Expression `json:"targetName"`
	TargetVersion *service.Expression `json:"targetVersion,omitempty"`
}

// EventRep is a serializable representation of a catch-event configuration
type EventRep struct {
	Type           string               `json:"type"`
	Name           string               `json:"name,omitempty"`
	CorrelationKey *service.Expression  `json:"correlationKey,omitempty"`
	Trigger        *service.TriggerSpec `json:"trigger,omitempty"`
}

// TransitionRep is a serializable representation of a transition
type TransitionRep struct {
	ID      int                 `json:"id"`
	From    string              `json:"from"`
	To      string              `json:"to"`
	Guard   *service.Expression `json:"guard,omitempty"`
	Default bool                `json:"default,omitempty"`
}

// EventSubprocessRep is a serializable representation of an event subprocess
type EventSubprocessRep struct {
	Event        *EventRep `json:"event"`
	StartNode    string    `json:"startNode"`
	Interrupting bool      `json:"interrupting"`
}

// Unmarshal parses a JSON definition representation
func Unmarshal(data []byte) (*DefinitionRep, error) {
	rep := &DefinitionRep{}
	if err := json.Unmarshal(data, rep); err != nil {
		return nil, err
	}
	return rep, nil
}

// New creates a Definition from a serializable representation, validating
// its structure.  The resulting Definition is immutable.
func New(rep *DefinitionRep) (*Definition, error) {

	if rep.Name == "" {
		return nil, fmt.Errorf("definition name not specified")
	}
	if rep.Version < 1 {
		return nil, fmt.Errorf("definition '%s' has invalid version %d", rep.Name, rep.Version)
	}
	if len(rep.Nodes) == 0 {
		return nil, fmt.Errorf("definition '%s' has no nodes", rep.Name)
	}

	def := &Definition{
		name:          rep.Name,
		version:       rep.Version,
		nodes:         make(map[string]*Node, len(rep.Nodes)),
		data:          rep.Data,
		actors:        rep.Actors,
		onEnterHooks:  rep.OnEnter,
		onFinishHooks: rep.OnFinish,
	}

	for _, nodeRep := range rep.Nodes {
		node, err := createNode(def, nodeRep)
		if err != nil {
			return nil, err
		}
		if _, exists := def.nodes[node.id]; exists {
			return nil, fmt.Errorf("duplicate node id '%s'", node.id)
		}
		def.nodes[node.id] = node
	}

	for _, tRep := range rep.Transitions {
		transition, err := createTransition(def, tRep)
		if err != nil {
			return nil, err
		}
		def.transitions = append(def.transitions, transition)
		transition.from.outgoing = append(transition.from.outgoing, transition)
		transition.to.incoming = append(transition.to.incoming, transition)
	}

	for _, node := range def.nodes {
		if err := validateNode(node); err != nil {
			return nil, err
		}
	}

	for _, espRep := range rep.EventSubprocesses {
		esp, err := createEventSubprocess(def, espRep)
		if err != nil {
			return nil, err
		}
		def.eventSubprocesses = append(def.eventSubprocesses, esp)
	}

	return def, nil
}

func createNode(def *Definition, rep *NodeRep) (*Node, error) {

	if rep.ID == "" {
		return nil, fmt.Errorf("node id not specified")
	}

	node := &Node{
		definition:    def,
		id:            rep.ID,
		name:          rep.Name,
		typeID:        rep.Type,
		onEnterHooks:  rep.OnEnter,
		onFinishHooks: rep.OnFinish,
	}

	switch rep.Type {
	case TypeActivity:
		if rep.Loop != nil {
			if rep.Loop.Cardinality == nil {
				return nil, fmt.Errorf("node '%s': multi-instance loop requires a cardinality", rep.ID)
			}
			node.loop = &LoopSpec{
				Cardinality:         rep.Loop.Cardinality,
				CompletionCondition: rep.Loop.CompletionCondition,
			}
		}
	case TypeGateway:
		kind := GatewayKind(rep.Gateway)
		switch kind {
		case GatewayExclusive, GatewayParallel, GatewayInclusive:
			node.gatewayKind = kind
		default:
			return nil, fmt.Errorf("node '%s': unknown gateway kind '%s'", rep.ID, rep.Gateway)
		}
	case TypeCatchEvent:
		if rep.Event == nil {
			return nil, fmt.Errorf("node '%s': catch event requires an event spec", rep.ID)
		}
		event, err := createEvent(rep.ID, rep.Event)
		if err != nil {
			return nil, err
		}
		node.event = event
	case TypeCallActivity:
		if rep.Call == nil || rep.Call.TargetName == nil {
			return nil, fmt.Errorf("node '%s': call activity requires a target name", rep.ID)
		}
		node.call = &CallActivitySpec{
			TargetName:    rep.Call.TargetName,
			TargetVersion: rep.Call.TargetVersion,
		}
	default:
		return nil, fmt.Errorf("node '%s': unknown node type '%s'", rep.ID, rep.Type)
	}

	return node, nil
}

func createEvent(nodeID string, rep *EventRep) (*EventSpec, error) {
	switch rep.Type {
	case EventMessage, EventSignal:
		if rep.Name == "" {
			return nil, fmt.Errorf("node '%s': %s event requires a name", nodeID, rep.Type)
		}
	case EventTimer:
		if rep.Trigger == nil {
			return nil, fmt.Errorf("node '%s': timer event requires a trigger", nodeID)
		}
	default:
		return nil, fmt.Errorf("node '%s': unknown event type '%s'", nodeID, rep.Type)
	}

	return &EventSpec{
		EventType:      rep.Type,
		Name:           rep.Name,
		CorrelationKey: rep.CorrelationKey,
		Trigger:        rep.Trigger,
	}, nil
}

func createTransition(def *Definition, rep *TransitionRep) (*Transition, error) {

	from := def.nodes[rep.From]
	if from == nil {
		return nil, fmt.Errorf("transition %d: unknown source node '%s'", rep.ID, rep.From)
	}
	to := def.nodes[rep.To]
	if to == nil {
		return nil, fmt.Errorf("transition %d: unknown target node '%s'", rep.ID, rep.To)
	}
	if rep.Default && rep.Guard != nil {
		return nil, fmt.Errorf("transition %d: a default transition cannot carry a guard", rep.ID)
	}

	return &Transition{
		definition: def,
		id:         rep.ID,
		from:       from,
		to:         to,
		guard:      rep.Guard,
		isDefault:  rep.Default,
	}, nil
}

func validateNode(node *Node) error {

	if node.typeID == TypeGateway && node.gatewayKind == GatewayExclusive {
		defaults := 0
		for _, t := range node.outgoing {
			if t.IsDefault() {
				defaults++
			}
		}
		if defaults > 1 {
			return fmt.Errorf("node '%s': multiple default transitions", node.id)
		}
	}
	return nil
}

func createEventSubprocess(def *Definition, rep *EventSubprocessRep) (*EventSubprocess, error) {

	if rep.Event == nil {
		return nil, fmt.Errorf("event subprocess requires an event spec")
	}
	if def.nodes[rep.StartNode] == nil {
		return nil, fmt.Errorf("event subprocess: unknown start node '%s'", rep.StartNode)
	}
	event, err := createEvent(rep.StartNode, rep.Event)
	if err != nil {
		return nil, err
	}

	return &EventSubprocess{
		Event:        event,
		StartNodeID:  rep.StartNode,
		Interrupting: rep.Interrupting,
	}, nil
}

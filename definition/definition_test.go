package definition

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/procflow/engine/service"
)

func exprOf(content string) *service.Expression {
	return &service.Expression{Content: content}
}

const defJSON = `
{
  "name": "order-fulfillment",
  "version": 1,
  "data": { "total": 0 },
  "nodes": [
    { "id": "reserve", "onEnter": [ { "id": "h1", "ref": "inventory", "onEnter": true } ] },
    { "id": "decide", "type": "gateway", "gateway": "exclusive" },
    { "id": "ship" },
    { "id": "refund" },
    { "id": "onCancelled" }
  ],
  "transitions": [
    { "id": 1, "from": "reserve", "to": "decide" },
    { "id": 2, "from": "decide", "to": "ship", "guard": { "content": "total > 0" } },
    { "id": 3, "from": "decide", "to": "refund", "default": true }
  ],
  "eventSubprocesses": [
    { "event": { "type": "message", "name": "order-cancelled" }, "startNode": "onCancelled", "interrupting": true }
  ]
}
`

func TestDefinitionFromJSON(t *testing.T) {

	rep, err := Unmarshal([]byte(defJSON))
	assert.Nil(t, err)

	def, err := New(rep)
	assert.Nil(t, err)
	assert.Equal(t, "order-fulfillment", def.Name())
	assert.Equal(t, 1, def.Version())
	assert.Equal(t, 5, len(def.Nodes()))
	assert.Equal(t, 3, len(def.Transitions()))

	decide := def.GetNode("decide")
	assert.NotNil(t, decide)
	assert.Equal(t, TypeGateway, decide.TypeID())
	assert.Equal(t, GatewayExclusive, decide.GatewayKind())
	assert.Equal(t, 2, len(decide.Outgoing()))
	assert.Equal(t, 1, len(decide.Incoming()))

	reserve := def.GetNode("reserve")
	assert.Equal(t, 1, len(reserve.OnEnterHooks()))

	assert.Equal(t, 1, len(def.EventSubprocesses()))
}

func TestStartNodesExcludeSubprocessRoots(t *testing.T) {

	rep, err := Unmarshal([]byte(defJSON))
	assert.Nil(t, err)

	def, err := New(rep)
	assert.Nil(t, err)

	starts := def.StartNodes()
	assert.Equal(t, 1, len(starts))
	assert.Equal(t, "reserve", starts[0].ID())
}

func TestUnknownTransitionTarget(t *testing.T) {

	rep := &DefinitionRep{
		Name:    "bad",
		Version: 1,
		Nodes:   []*NodeRep{{ID: "a"}},
		Transitions: []*TransitionRep{
			{ID: 1, From: "a", To: "missing"},
		},
	}

	_, err := New(rep)
	assert.NotNil(t, err)
	assert.Contains(t, err.Error(), "unknown target node")
}

func TestDuplicateNodeID(t *testing.T) {

	rep := &DefinitionRep{
		Name:    "bad",
		Version: 1,
		Nodes:   []*NodeRep{{ID: "a"}, {ID: "a"}},
	}

	_, err := New(rep)
	assert.NotNil(t, err)
	assert.Contains(t, err.Error(), "duplicate node id")
}

func TestDefaultTransitionWithGuardRejected(t *testing.T) {

	rep := &DefinitionRep{
		Name:    "bad",
		Version: 1,
		Nodes:   []*NodeRep{{ID: "a"}, {ID: "b"}},
		Transitions: []*TransitionRep{
			{ID: 1, From: "a", To: "b", Default: true, Guard: exprOf("true")},
		},
	}

	_, err := New(rep)
	assert.NotNil(t, err)
}

func TestMultipleDefaultsRejected(t *testing.T) {

	rep := &DefinitionRep{
		Name:    "bad",
		Version: 1,
		Nodes: []*NodeRep{
			{ID: "gw", Type: TypeGateway, Gateway: "exclusive"},
			{ID: "b"},
			{ID: "c"},
		},
		Transitions: []*TransitionRep{
			{ID: 1, From: "gw", To: "b", Default: true},
			{ID: 2, From: "gw", To: "c", Default: true},
		},
	}

	_, err := New(rep)
	assert.NotNil(t, err)
	assert.Contains(t, err.Error(), "multiple default transitions")
}

func TestUnknownGatewayKindRejected(t *testing.T) {

	rep := &DefinitionRep{
		Name:    "bad",
		Version: 1,
		Nodes:   []*NodeRep{{ID: "gw", Type: TypeGateway, Gateway: "sideways"}},
	}

	_, err := New(rep)
	assert.NotNil(t, err)
}

func TestTimerEventRequiresTrigger(t *testing.T) {

	rep := &DefinitionRep{
		Name:    "bad",
		Version: 1,
		Nodes:   []*NodeRep{{ID: "wait", Type: TypeCatchEvent, Event: &EventRep{Type: EventTimer}}},
	}

	_, err := New(rep)
	assert.NotNil(t, err)
}

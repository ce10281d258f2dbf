package bpm

import (
	"github.com/procflow/engine/definition"
	"github.com/procflow/engine/model"
)

const (
	ModelName = "bpm"
)

func init() {
	model.RegisterDefault(New())
}

// New creates the standard process model: a default activity behavior plus
// behaviors for gateways, catching events and call activities
func New() *model.ProcessModel {
	m := model.New(ModelName)
	m.RegisterProcessBehavior(&ProcessBehavior{})
	m.RegisterDefaultNodeBehavior(definition.TypeActivity, &ActivityBehavior{})
	m.RegisterNodeBehavior(definition.TypeGateway, &GatewayBehavior{})
	m.RegisterNodeBehavior(definition.TypeCatchEvent, &CatchEventBehavior{})
	m.RegisterNodeBehavior(definition.TypeCallActivity, &CallActivityBehavior{})
	return m
}

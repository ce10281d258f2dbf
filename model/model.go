package model

// ProcessModel defines the execution model for a process.  It contains the
// execution behaviors for the process and its node types.
type ProcessModel struct {
	name                string
	processBehavior     ProcessBehavior
	defaultNodeBehavior NodeBehavior
	nodeBehaviors       map[string]NodeBehavior
}

// New creates a new ProcessModel with the specified name
func New(name string) *ProcessModel {

	var processModel ProcessModel
	processModel.name = name
	processModel.nodeBehaviors = make(map[string]NodeBehavior)

	return &processModel
}

// Name returns the name of the ProcessModel
func (pm *ProcessModel) Name() string {
	return pm.name
}

// RegisterProcessBehavior registers the specified ProcessBehavior with the model
func (pm *ProcessModel) RegisterProcessBehavior(processBehavior ProcessBehavior) {
	pm.processBehavior = processBehavior
}

// GetProcessBehavior returns the ProcessBehavior of the model
func (pm *ProcessModel) GetProcessBehavior() ProcessBehavior {
	return pm.processBehavior
}

// RegisterDefaultNodeBehavior registers the default NodeBehavior for the model
func (pm *ProcessModel) RegisterDefaultNodeBehavior(id string, nodeBehavior NodeBehavior) {
	pm.RegisterNodeBehavior(id, nodeBehavior)
	pm.defaultNodeBehavior = nodeBehavior
}

// GetDefaultNodeBehavior returns the default NodeBehavior of the model
func (pm *ProcessModel) GetDefaultNodeBehavior() NodeBehavior {
	return pm.defaultNodeBehavior
}

// RegisterNodeBehavior registers the specified NodeBehavior with the model
func (pm *ProcessModel) RegisterNodeBehavior(id string, nodeBehavior NodeBehavior) {
	pm.nodeBehaviors[id] = nodeBehavior
}

// IsValidNodeType indicates whether a behavior is registered for the node type
func (pm *ProcessModel) IsValidNodeType(nodeType string) bool {

	if nodeType == "" && pm.defaultNodeBehavior != nil {
		return true
	}

	_, exists := pm.nodeBehaviors[nodeType]
	return exists
}

// GetNodeBehavior returns the NodeBehavior for the specified node type
func (pm *ProcessModel) GetNodeBehavior(id string) NodeBehavior {

	if id == "" {
		return pm.defaultNodeBehavior
	}

	return pm.nodeBehaviors[id]
}

package support

import (
	"fmt"
	"sync"

	"github.com/project-flogo/core/support/log"

	"github.com/procflow/engine/definition"
	"github.com/procflow/engine/service"
)

// DefinitionManager holds the deployed process definitions, keyed by name
// and version.  Deployments are immutable: a (name, version) pair can only
// be deployed once, new revisions deploy under a new version while running
// instances keep executing against the version they started with.
type DefinitionManager struct {
	logger log.Logger

	mu     sync.RWMutex
	defs   map[string]map[int]*definition.Definition
	latest map[string]int
}

// NewDefinitionManager creates an empty DefinitionManager
func NewDefinitionManager(logger log.Logger) *DefinitionManager {
	if logger == nil {
		logger = log.RootLogger()
	}
	return &DefinitionManager{
		logger: logger,
		defs:   make(map[string]map[int]*definition.Definition),
		latest: make(map[string]int),
	}
}

// Deploy registers a definition
func (m *DefinitionManager) Deploy(def *definition.Definition) error {

	if def.Version() <= 0 {
		return fmt.Errorf("definition '%s' needs a positive version", def.Name())
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	versions, ok := m.defs[def.Name()]
	if !ok {
		versions = make(map[int]*definition.Definition)
		m.defs[def.Name()] = versions
	}

	if _, exists := versions[def.Version()]; exists {
		return fmt.Errorf("definition '%s' version %d is already deployed", def.Name(), def.Version())
	}

	versions[def.Version()] = def
	if def.Version() > m.latest[def.Name()] {
		m.latest[def.Name()] = def.Version()
	}

	m.logger.Infof("Deployed process definition '%s' version %d", def.Name(), def.Version())
	return nil
}

// DeployJSON unmarshals and registers a JSON definition
func (m *DefinitionManager) DeployJSON(data []byte) (*definition.Definition, error) {

	rep, err := definition.Unmarshal(data)
	if err != nil {
		return nil, err
	}
	def, err := definition.New(rep)
	if err != nil {
		return nil, err
	}
	if err := m.Deploy(def); err != nil {
		return nil, err
	}
	return def, nil
}

// Lookup resolves a deployed definition; a zero version selects the latest
// deployed one
func (m *DefinitionManager) Lookup(name string, version int) (*definition.Definition, error) {

	m.mu.RLock()
	defer m.mu.RUnlock()

	versions, ok := m.defs[name]
	if !ok {
		return nil, service.NewNotFoundError("definition", name)
	}

	if version == 0 {
		version = m.latest[name]
	}

	def, ok := versions[version]
	if !ok {
		return nil, service.NewNotFoundError("definition", fmt.Sprintf("%s/%d", name, version))
	}
	return def, nil
}

// List returns every deployed definition
func (m *DefinitionManager) List() []*definition.Definition {

	m.mu.RLock()
	defer m.mu.RUnlock()

	var defs []*definition.Definition
	for _, versions := range m.defs {
		for _, def := range versions {
			defs = append(defs, def)
		}
	}
	return defs
}

package model

import (
	"errors"
	"sync"
)

var (
	modelsMu     sync.RWMutex
	models       = make(map[string]*ProcessModel)
	defaultModel *ProcessModel
)

// Register registers the specified process model
func Register(processModel *ProcessModel) {
	modelsMu.Lock()
	defer modelsMu.Unlock()

	if processModel == nil {
		panic("model.Register: model cannot be nil")
	}

	id := processModel.Name()

	if _, dup := models[id]; dup {
		panic("model.Register: model " + id + " already registered")
	}

	models[id] = processModel
}

// Registered gets all the registered process models
func Registered() []*ProcessModel {

	modelsMu.RLock()
	defer modelsMu.RUnlock()

	list := make([]*ProcessModel, 0, len(models))

	for _, value := range models {
		list = append(list, value)
	}

	return list
}

// Get gets the specified ProcessModel
func Get(id string) (*ProcessModel, error) {
	modelsMu.RLock()
	defer modelsMu.RUnlock()

	if _, ok := models[id]; !ok {
		return nil, errors.New("model not found")
	}
	return models[id], nil
}

// RegisterDefault registers the specified process model as the default
func RegisterDefault(processModel *ProcessModel) {
	modelsMu.Lock()
	defer modelsMu.Unlock()

	if processModel == nil {
		panic("model.RegisterDefault: model cannot be nil")
	}

	id := processModel.Name()

	if _, dup := models[id]; !dup {
		models[id] = processModel
	}

	defaultModel = processModel
}

// Default returns the default ProcessModel
func Default() *ProcessModel {
	return defaultModel
}

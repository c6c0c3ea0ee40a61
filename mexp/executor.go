package mexp

import (
	"fmt"
	"slices"
	"sync"
)

// Executor computes the hash trace of an input. Implementations other than
// Reference are candidates whose traces are checked against the reference.
type Executor interface {
	Name() string
	Execute(*Input) (*Output, error)
}

// ExecutorFactory creates a ready-to-use executor
type ExecutorFactory func() Executor

var (
	registryMutex sync.RWMutex
	registry      = map[string]ExecutorFactory{}
)

func init() {
	RegisterExecutor(ReferenceName, func() Executor { return Reference{} })
	RegisterExecutor(ParallelName, func() Executor { return NewParallel() })
}

// RegisterExecutor makes an executor available under name. Registering an
// existing name replaces the previous factory.
func RegisterExecutor(name string, factory ExecutorFactory) {
	registryMutex.Lock()
	defer registryMutex.Unlock()
	registry[name] = factory
}

// LookupExecutor creates the executor registered under name
func LookupExecutor(name string) (Executor, error) {
	registryMutex.RLock()
	factory, ok := registry[name]
	registryMutex.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown executor %q (registered: %v)", name, ExecutorNames())
	}
	return factory(), nil
}

// ExecutorNames returns the registered executor names in sorted order
func ExecutorNames() []string {
	registryMutex.RLock()
	defer registryMutex.RUnlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

package backend

import (
	"fmt"
	"sort"
	"sync"

	"github.com/eburon/callerpro/pkg/callcenter/agent"
)

// Registry maps backend types to connectors.
type Registry struct {
	mu         sync.RWMutex
	connectors map[agent.BackendType]Connector
}

// NewRegistry creates a registry holding connectors.
func NewRegistry(connectors ...Connector) (*Registry, error) {
	r := &Registry{connectors: make(map[agent.BackendType]Connector)}
	for _, c := range connectors {
		if err := r.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register registers a connector
func (r *Registry) Register(c Connector) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t := c.Type()
	if _, exists := r.connectors[t]; exists {
		return fmt.Errorf("connector %s already registered", t)
	}

	r.connectors[t] = c
	return nil
}

// Get retrieves a connector by backend type
func (r *Registry) Get(t agent.BackendType) (Connector, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, exists := r.connectors[t]
	if !exists {
		return nil, fmt.Errorf("no connector for backend %s", t)
	}

	return c, nil
}

// List returns all registered backend types
func (r *Registry) List() []agent.BackendType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]agent.BackendType, 0, len(r.connectors))
	for t := range r.connectors {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

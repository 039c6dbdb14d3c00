package node

import (
	"fmt"
	"sort"
	"sync"

	"github.com/lyzr/flowengine/flow/payload"
)

// Factory instantiates a node from its static configuration
type Factory func(cfg payload.NodeConfig, svc *Services) (Node, error)

// Registry maps type identifiers to node factories
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// Register adds a factory under its identifier. Registering the same
// identifier twice is a programming error.
func (r *Registry) Register(identifier string, factory Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[identifier]; exists {
		return fmt.Errorf("node type %q already registered", identifier)
	}
	r.factories[identifier] = factory
	return nil
}

// MustRegister panics on registration failure; used by built-in node
// packages at startup
func (r *Registry) MustRegister(identifier string, factory Factory) {
	if err := r.Register(identifier, factory); err != nil {
		panic(err)
	}
}

// New instantiates a node from its configuration
func (r *Registry) New(cfg payload.NodeConfig, svc *Services) (Node, error) {
	r.mu.RLock()
	factory, exists := r.factories[cfg.Type]
	r.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("unknown node type %q for node %s", cfg.Type, cfg.ID)
	}
	n, err := factory(cfg, svc)
	if err != nil {
		return nil, fmt.Errorf("failed to instantiate node %s (%s): %w", cfg.ID, cfg.Type, err)
	}
	return n, nil
}

// Identifiers returns the registered type identifiers, sorted
func (r *Registry) Identifiers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.factories))
	for id := range r.factories {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

package main

import (
	"fmt"
	"sync"

	"github.com/lyzr/flowengine/common/bootstrap"
	"github.com/lyzr/flowengine/flow"
	"github.com/lyzr/flowengine/flow/builder"
	"github.com/lyzr/flowengine/flow/session"
)

// Manager holds the loaded workflow engines keyed by workflow id, plus
// the session store backing single-node dev runs.
type Manager struct {
	components *bootstrap.Components
	sessions   *session.Store

	mu      sync.Mutex
	engines map[string]*flow.Engine
}

// NewManager creates an empty engine manager backed by the shared components.
func NewManager(components *bootstrap.Components) *Manager {
	return &Manager{
		components: components,
		sessions:   session.NewStore(components.Config.Engine.SessionIdleTTL),
		engines:    make(map[string]*flow.Engine),
	}
}

// Load builds a workflow from its definition and registers it under id.
// Reloading an id that is currently running is rejected.
func (m *Manager) Load(id string, def *builder.WorkflowDefinition) (*flow.Engine, error) {
	cfg := m.components.Config

	engine := flow.New(flow.Options{
		WorkflowID:      id,
		Logger:          m.components.Logger,
		Registry:        m.components.Registry,
		Services:        m.components.Services,
		Cache:           m.components.Cache,
		SnapshotTTL:     cfg.Engine.StateTTL,
		ThreadPoolSize:  cfg.Executor.ThreadPoolSize,
		ProcessPoolSize: cfg.Executor.ProcessPoolSize,
		APITimeout:      cfg.Engine.APITimeout,
		FailureBackoff:  cfg.Engine.FailureBackoff,
	})
	if err := engine.Load(def); err != nil {
		return nil, err
	}
	m.components.Metrics.Attach(engine.Events(), engine.Tracker())

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.engines[id]; ok && existing.Running() {
		return nil, fmt.Errorf("workflow %s is running, stop it before reloading", id)
	}
	m.engines[id] = engine
	return engine, nil
}

// Get returns the engine for id.
func (m *Manager) Get(id string) (*flow.Engine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	engine, ok := m.engines[id]
	if !ok {
		return nil, fmt.Errorf("workflow %s is not loaded", id)
	}
	return engine, nil
}

// Remove shuts down and forgets the engine for id.
func (m *Manager) Remove(id string, force bool) error {
	m.mu.Lock()
	engine, ok := m.engines[id]
	delete(m.engines, id)
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("workflow %s is not loaded", id)
	}
	engine.Shutdown(force)
	engine.WaitProduction()
	return nil
}

// Shutdown stops every loaded engine.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	engines := make([]*flow.Engine, 0, len(m.engines))
	for _, engine := range m.engines {
		engines = append(engines, engine)
	}
	m.engines = make(map[string]*flow.Engine)
	m.mu.Unlock()

	for _, engine := range engines {
		engine.Shutdown(true)
		engine.WaitProduction()
	}
}

// Package events holds the engine's event bus, the live execution state
// tracker, and the cross-process snapshot writer.
package events

import (
	"sync"

	"github.com/lyzr/flowengine/common/logger"
)

// Event names on the per-engine bus
const (
	NodeStarted       = "node_started"
	NodeCompleted     = "node_completed"
	NodeFailed        = "node_failed"
	WorkflowCompleted = "workflow_completed"
	WorkflowFailed    = "workflow_failed"
)

// Payload is the event payload delivered to subscribers. The emitter
// prepends workflow_id to every payload.
type Payload map[string]any

// Handler receives event payloads
type Handler func(event string, payload Payload)

// Emitter is a thread-safe per-engine event bus. Emit invokes
// subscribers synchronously in registration order; subscriber panics
// are recovered and logged without affecting emission.
type Emitter struct {
	workflowID string
	logger     *logger.Logger

	mu       sync.RWMutex
	handlers map[string][]Handler
	all      []Handler
}

// NewEmitter creates an event bus scoped to one workflow
func NewEmitter(workflowID string, log *logger.Logger) *Emitter {
	return &Emitter{
		workflowID: workflowID,
		logger:     log,
		handlers:   make(map[string][]Handler),
	}
}

// On registers a handler for one event
func (e *Emitter) On(event string, h Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[event] = append(e.handlers[event], h)
}

// OnAny registers a handler for every event
func (e *Emitter) OnAny(h Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.all = append(e.all, h)
}

// Emit delivers the payload to subscribers inline, in registration order
func (e *Emitter) Emit(event string, payload Payload) {
	if payload == nil {
		payload = make(Payload)
	}
	payload["workflow_id"] = e.workflowID

	e.mu.RLock()
	handlers := append(append([]Handler(nil), e.handlers[event]...), e.all...)
	e.mu.RUnlock()

	for _, h := range handlers {
		e.invoke(event, h, payload)
	}
}

func (e *Emitter) invoke(event string, h Handler, payload Payload) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("event subscriber panicked",
				"event", event,
				"panic", r)
		}
	}()
	h(event, payload)
}

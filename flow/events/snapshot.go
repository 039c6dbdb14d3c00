package events

import (
	"context"
	"fmt"
	"time"

	"github.com/lyzr/flowengine/common/logger"
	"github.com/lyzr/flowengine/common/storage"
)

// DefaultSnapshotTTL matches the execution-state contract (1 h)
const DefaultSnapshotTTL = time.Hour

// SnapshotKey returns the cache key other processes read the execution
// state from
func SnapshotKey(workflowID string) string {
	return fmt.Sprintf("workflow_execution:%s", workflowID)
}

// SnapshotWriter projects the in-memory tracker into the cache on each
// state transition. The tracker stays authoritative; the cached copy is
// an eventually-consistent view for observers in other processes.
type SnapshotWriter struct {
	cache   *storage.CacheStore
	tracker *StateTracker
	ttl     time.Duration
	logger  *logger.Logger
}

// NewSnapshotWriter creates a snapshot writer. A zero ttl uses the
// default of one hour.
func NewSnapshotWriter(cache *storage.CacheStore, tracker *StateTracker, ttl time.Duration, log *logger.Logger) *SnapshotWriter {
	if ttl <= 0 {
		ttl = DefaultSnapshotTTL
	}
	return &SnapshotWriter{
		cache:   cache,
		tracker: tracker,
		ttl:     ttl,
		logger:  log,
	}
}

// Attach subscribes the writer to every event on the bus
func (w *SnapshotWriter) Attach(emitter *Emitter) {
	emitter.OnAny(func(event string, _ Payload) {
		w.Write(context.Background())
	})
}

// Write persists the current snapshot. Failures are logged, not
// surfaced; a missed projection only delays observers.
func (w *SnapshotWriter) Write(ctx context.Context) {
	state := w.tracker.FullState()
	if err := w.cache.Set(ctx, SnapshotKey(state.WorkflowID), state, w.ttl); err != nil {
		w.logger.Warn("failed to write execution state snapshot",
			"workflow_id", state.WorkflowID,
			"error", err)
	}
}

// ReadSnapshot loads another process's view of a workflow's state
func ReadSnapshot(ctx context.Context, cache *storage.CacheStore, workflowID string) (*FullState, bool, error) {
	var state FullState
	found, err := cache.Get(ctx, SnapshotKey(workflowID), &state)
	if err != nil || !found {
		return nil, found, err
	}
	return &state, true, nil
}

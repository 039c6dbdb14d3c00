package events

import (
	"sync"
	"time"
)

// Workflow status values
const (
	StatusIdle      = "idle"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// ExecutingNode is one currently running node in the snapshot
type ExecutingNode struct {
	NodeType        string    `json:"node_type"`
	StartedAt       time.Time `json:"started_at"`
	DurationSeconds float64   `json:"duration_seconds"`
}

// CompletedNode is one finished node in the snapshot
type CompletedNode struct {
	NodeID          string    `json:"node_id"`
	NodeType        string    `json:"node_type"`
	CompletedAt     time.Time `json:"completed_at"`
	DurationSeconds float64   `json:"duration_seconds"`
	Route           string    `json:"route,omitempty"`
}

// FullState is a deep snapshot of the live execution state
type FullState struct {
	WorkflowID           string                   `json:"workflow_id"`
	Status               string                   `json:"status"`
	StartedAt            *time.Time               `json:"started_at,omitempty"`
	CompletedAt          *time.Time               `json:"completed_at,omitempty"`
	TotalDurationSeconds *float64                 `json:"total_duration_seconds,omitempty"`
	TotalNodes           int                      `json:"total_nodes"`
	ExecutingNodes       map[string]ExecutingNode `json:"executing_nodes"`
	CompletedNodes       []CompletedNode          `json:"completed_nodes"`
	CompletedCount       int                      `json:"completed_count"`
	ActiveRunners        int                      `json:"active_runners"`
	Error                string                   `json:"error,omitempty"`
}

type executingEntry struct {
	nodeType  string
	startedAt time.Time
}

// StateTracker keeps the live execution state of one workflow. All
// mutations and reads are serialized under one mutex, so readers always
// observe a consistent snapshot.
type StateTracker struct {
	mu sync.Mutex

	workflowID  string
	status      string
	startedAt   *time.Time
	completedAt *time.Time
	totalNodes  int
	executing   map[string]executingEntry
	completed   []CompletedNode
	runners     int
	err         string
}

// NewStateTracker creates a tracker in the idle state
func NewStateTracker(workflowID string, totalNodes int) *StateTracker {
	return &StateTracker{
		workflowID: workflowID,
		status:     StatusIdle,
		totalNodes: totalNodes,
		executing:  make(map[string]executingEntry),
	}
}

// StartWorkflow flips to running and clears all per-run state
func (t *StateTracker) StartWorkflow() {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now().UTC()
	t.status = StatusRunning
	t.startedAt = &now
	t.completedAt = nil
	t.executing = make(map[string]executingEntry)
	t.completed = nil
	t.err = ""
}

// RegisterRunner increments the active runner count
func (t *StateTracker) RegisterRunner() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.runners++
}

// UnregisterRunner decrements the active runner count. When it reaches
// zero while the workflow is still running, the workflow completes.
func (t *StateTracker) UnregisterRunner() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.runners > 0 {
		t.runners--
	}
	if t.runners == 0 && t.status == StatusRunning {
		now := time.Now().UTC()
		t.status = StatusCompleted
		t.completedAt = &now
	}
}

// OnNodeStarted records a node entering execution
func (t *StateTracker) OnNodeStarted(nodeID, nodeType string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.executing[nodeID] = executingEntry{
		nodeType:  nodeType,
		startedAt: time.Now().UTC(),
	}
}

// OnNodeCompleted moves a node from executing to completed, computing
// its duration. Route carries the conditional branch taken, if any.
func (t *StateTracker) OnNodeCompleted(nodeID, nodeType, route string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now().UTC()
	duration := 0.0
	if entry, ok := t.executing[nodeID]; ok {
		duration = now.Sub(entry.startedAt).Seconds()
		delete(t.executing, nodeID)
	}
	t.completed = append(t.completed, CompletedNode{
		NodeID:          nodeID,
		NodeType:        nodeType,
		CompletedAt:     now,
		DurationSeconds: duration,
		Route:           route,
	})
}

// OnNodeFailed removes a node from executing and records the error
func (t *StateTracker) OnNodeFailed(nodeID string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.executing, nodeID)
	if err != nil {
		t.err = err.Error()
	}
}

// OnWorkflowFailed sets the failure status. Executing nodes are cleared
// so a terminal state never reports in-flight work.
func (t *StateTracker) OnWorkflowFailed(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now().UTC()
	t.status = StatusFailed
	t.completedAt = &now
	t.executing = make(map[string]executingEntry)
	if err != nil {
		t.err = err.Error()
	}
}

// FullState returns a deep snapshot with live durations computed on read
func (t *StateTracker) FullState() *FullState {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now().UTC()

	executing := make(map[string]ExecutingNode, len(t.executing))
	for id, entry := range t.executing {
		executing[id] = ExecutingNode{
			NodeType:        entry.nodeType,
			StartedAt:       entry.startedAt,
			DurationSeconds: now.Sub(entry.startedAt).Seconds(),
		}
	}

	completed := make([]CompletedNode, len(t.completed))
	copy(completed, t.completed)

	state := &FullState{
		WorkflowID:     t.workflowID,
		Status:         t.status,
		TotalNodes:     t.totalNodes,
		ExecutingNodes: executing,
		CompletedNodes: completed,
		CompletedCount: len(completed),
		ActiveRunners:  t.runners,
		Error:          t.err,
	}

	if t.startedAt != nil {
		started := *t.startedAt
		state.StartedAt = &started
	}
	if t.completedAt != nil {
		done := *t.completedAt
		state.CompletedAt = &done
		if t.startedAt != nil {
			total := done.Sub(*t.startedAt).Seconds()
			state.TotalDurationSeconds = &total
		}
	}
	return state
}

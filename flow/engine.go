// Package flow exposes the workflow execution engine: load a workflow
// definition into a validated graph, then drive it either as a
// long-running production pipeline or once per request as a synchronous
// API flow.
package flow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/lyzr/flowengine/common/logger"
	"github.com/lyzr/flowengine/common/storage"
	"github.com/lyzr/flowengine/flow/builder"
	"github.com/lyzr/flowengine/flow/events"
	"github.com/lyzr/flowengine/flow/executor"
	"github.com/lyzr/flowengine/flow/graph"
	"github.com/lyzr/flowengine/flow/node"
	"github.com/lyzr/flowengine/flow/payload"
	"github.com/lyzr/flowengine/flow/runner"
)

// DefaultAPITimeout bounds a synchronous API flow
const DefaultAPITimeout = 300 * time.Second

// Options configures an engine instance
type Options struct {
	WorkflowID string
	Logger     *logger.Logger
	Registry   *node.Registry
	Services   *node.Services

	// Cache enables the cross-process execution state snapshot
	Cache       *storage.CacheStore
	SnapshotTTL time.Duration

	ThreadPoolSize  int
	ProcessPoolSize int
	APITimeout      time.Duration
	FailureBackoff  time.Duration
}

// Engine holds one loaded workflow and its execution machinery
type Engine struct {
	workflowID string
	logger     *logger.Logger
	registry   *node.Registry
	services   *node.Services

	graph   *graph.FlowGraph
	emitter *events.Emitter
	tracker *events.StateTracker
	exec    *executor.PoolExecutor
	runtime map[string]any

	apiTimeout     time.Duration
	failureBackoff time.Duration
	cache          *storage.CacheStore
	snapshotTTL    time.Duration

	mu      sync.Mutex
	runners []*runner.Production
	wg      sync.WaitGroup
	started bool
}

// New creates an engine. Load must be called before execution.
func New(opts Options) *Engine {
	if opts.Logger == nil {
		opts.Logger = logger.NewNop()
	}
	if opts.APITimeout <= 0 {
		opts.APITimeout = DefaultAPITimeout
	}
	return &Engine{
		workflowID:     opts.WorkflowID,
		logger:         opts.Logger.WithWorkflowID(opts.WorkflowID),
		registry:       opts.Registry,
		services:       opts.Services,
		exec:           executor.New(opts.Logger, opts.ThreadPoolSize, opts.ProcessPoolSize),
		runtime:        make(map[string]any),
		apiTimeout:     opts.APITimeout,
		failureBackoff: opts.FailureBackoff,
		cache:          opts.Cache,
		snapshotTTL:    opts.SnapshotTTL,
	}
}

// Load builds, post-processes, and validates the workflow graph. Build
// and validation errors abort before any execution starts.
func (e *Engine) Load(def *builder.WorkflowDefinition) error {
	b := builder.New(e.registry, e.services, e.logger,
		builder.NewQueueMapper(e.logger),
		builder.NewNodeValidator(),
	)

	g, err := b.Build(def)
	if err != nil {
		return err
	}

	e.graph = g
	e.emitter = events.NewEmitter(e.workflowID, e.logger)
	e.tracker = events.NewStateTracker(e.workflowID, g.Len())
	e.wireTracker()

	if def.Env != nil {
		e.runtime[payload.MetaWorkflowEnv] = def.Env
	}

	if e.cache != nil {
		writer := events.NewSnapshotWriter(e.cache, e.tracker, e.snapshotTTL, e.logger)
		writer.Attach(e.emitter)
	}

	e.logger.Info("workflow loaded", "nodes", g.Len(), "producers", len(g.Producers()))
	return nil
}

// wireTracker subscribes the state tracker to the event bus
func (e *Engine) wireTracker() {
	e.emitter.On(events.NodeStarted, func(_ string, p events.Payload) {
		e.tracker.OnNodeStarted(str(p["node_id"]), str(p["node_type"]))
	})
	e.emitter.On(events.NodeCompleted, func(_ string, p events.Payload) {
		e.tracker.OnNodeCompleted(str(p["node_id"]), str(p["node_type"]), str(p["route"]))
	})
	e.emitter.On(events.NodeFailed, func(_ string, p events.Payload) {
		e.tracker.OnNodeFailed(str(p["node_id"]), errors.New(str(p["error"])))
	})
}

// Events exposes the event bus for subscribers
func (e *Engine) Events() *events.Emitter {
	return e.emitter
}

// FullState returns the live execution state snapshot
func (e *Engine) FullState() *events.FullState {
	return e.tracker.FullState()
}

// Tracker exposes the state tracker for external subscribers
func (e *Engine) Tracker() *events.StateTracker {
	return e.tracker
}

// Running reports whether an execution is currently in flight
func (e *Engine) Running() bool {
	return e.tracker.FullState().Status == events.StatusRunning
}

// Graph exposes the loaded flow graph
func (e *Engine) Graph() *graph.FlowGraph {
	return e.graph
}

// StartProduction spawns one runner per producer and returns. Runners
// keep looping until their producer emits the sentinel or Shutdown is
// called; when the last runner stops, the workflow completes.
func (e *Engine) StartProduction(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.graph == nil {
		return fmt.Errorf("no workflow loaded")
	}
	if e.started {
		return fmt.Errorf("workflow already started")
	}

	producers := e.graph.Producers()
	if len(producers) == 0 {
		return fmt.Errorf("workflow has no producer nodes")
	}

	if err := e.acquireRunLock(ctx); err != nil {
		return err
	}

	e.started = true
	e.tracker.StartWorkflow()

	for _, p := range producers {
		r := runner.NewProduction(p, e.exec, e.emitter, e.tracker, e.runtime, e.logger, e.failureBackoff)
		e.runners = append(e.runners, r)

		e.wg.Add(1)
		go func(r *runner.Production) {
			defer e.wg.Done()
			if err := r.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				e.logger.Error("production runner exited with error",
					"producer", r.Producer().ID,
					"error", err)
			}
		}(r)
	}

	// Completion watcher: when every runner has unregistered, surface
	// the terminal workflow event
	go func() {
		e.wg.Wait()
		e.releaseRunLock()
		state := e.tracker.FullState()
		switch state.Status {
		case events.StatusCompleted:
			p := events.Payload{"status": state.Status}
			if state.TotalDurationSeconds != nil {
				p["total_duration_seconds"] = *state.TotalDurationSeconds
			}
			e.emitter.Emit(events.WorkflowCompleted, p)
		case events.StatusFailed:
			e.emitter.Emit(events.WorkflowFailed, events.Payload{
				"status": state.Status,
				"error":  state.Error,
			})
		}
	}()

	e.logger.Info("production started", "runners", len(producers))
	return nil
}

// acquireRunLock claims the cross-process production lock for this
// workflow id. The lock expires with the snapshot so a crashed process
// cannot hold the workflow forever.
func (e *Engine) acquireRunLock(ctx context.Context) error {
	if e.cache == nil {
		return nil
	}
	ttl := e.snapshotTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	acquired, err := e.cache.SetIfAbsent(ctx, e.runLockKey(), time.Now().UTC().Format(time.RFC3339Nano), ttl)
	if err != nil {
		return fmt.Errorf("failed to acquire production lock: %w", err)
	}
	if !acquired {
		return fmt.Errorf("workflow %s is already running in another process", e.workflowID)
	}
	return nil
}

func (e *Engine) releaseRunLock() {
	if e.cache == nil {
		return
	}
	if err := e.cache.Delete(context.Background(), e.runLockKey()); err != nil {
		e.logger.Warn("failed to release production lock", "error", err)
	}
}

func (e *Engine) runLockKey() string {
	return "workflow_running:" + e.workflowID
}

// WaitProduction blocks until every runner has stopped
func (e *Engine) WaitProduction() {
	e.wg.Wait()
}

// Shutdown stops all runners and tears down the executor. With
// force=true in-flight tasks are cancelled instead of drained.
func (e *Engine) Shutdown(force bool) {
	e.mu.Lock()
	runners := append([]*runner.Production(nil), e.runners...)
	e.mu.Unlock()

	for _, r := range runners {
		r.Shutdown(force)
	}
	if !force {
		e.wg.Wait()
	}
	e.exec.Shutdown(!force)
	e.logger.Info("engine shut down", "force", force)
}

// ExecuteAPI runs the workflow once, synchronously, with the request
// payload as input. The run races the configured deadline; on expiry
// the runner's task is cancelled and the deadline error is returned.
func (e *Engine) ExecuteAPI(ctx context.Context, input *payload.NodeOutput, reqCtx *runner.RequestContext) (*payload.NodeOutput, error) {
	if e.graph == nil {
		return nil, fmt.Errorf("no workflow loaded")
	}

	start := e.graph.FirstNode()
	if start == nil {
		return nil, fmt.Errorf("workflow has no entry node")
	}

	r, err := runner.NewAPI(start, e.exec, e.emitter, e.tracker, e.runtime, e.logger)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, e.apiTimeout)
	defer cancel()

	e.tracker.StartWorkflow()

	out, err := r.Run(ctx, input, reqCtx)
	if err != nil {
		e.tracker.OnWorkflowFailed(err)
		e.emitter.Emit(events.WorkflowFailed, events.Payload{
			"status": events.StatusFailed,
			"error":  err.Error(),
		})
		return nil, err
	}

	state := e.tracker.FullState()
	p := events.Payload{"status": state.Status}
	if state.TotalDurationSeconds != nil {
		p["total_duration_seconds"] = *state.TotalDurationSeconds
	}
	e.emitter.Emit(events.WorkflowCompleted, p)
	return out, nil
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

package runner

import (
	"context"
	"fmt"

	"github.com/lyzr/flowengine/common/logger"
	"github.com/lyzr/flowengine/flow/events"
	"github.com/lyzr/flowengine/flow/executor"
	"github.com/lyzr/flowengine/flow/graph"
	"github.com/lyzr/flowengine/flow/node"
	"github.com/lyzr/flowengine/flow/payload"
)

// RequestContext carries the HTTP request details an API-mode webhook
// producer consumes instead of subscribing to its pub/sub channel
type RequestContext struct {
	Method  string            `json:"method"`
	Headers map[string]string `json:"headers,omitempty"`
	Query   map[string]string `json:"query,omitempty"`
}

// API is the single-pass synchronous runner for request/response flows.
// It runs the start node with the request input, walks downstream once
// (sequentially, with no non-blocking early-exit), and returns the last
// executed node's output. The caller encloses Run in a deadline.
type API struct {
	walker
	start   *graph.FlowNode
	tracker *events.StateTracker
}

// NewAPI creates an API runner for the given start node. The start node
// must support the api workflow type.
func NewAPI(start *graph.FlowNode, exec *executor.PoolExecutor, emitter *events.Emitter, tracker *events.StateTracker, runtime map[string]any, log *logger.Logger) (*API, error) {
	if !supportsWorkflowType(start.Node, node.WorkflowAPI) {
		return nil, fmt.Errorf("node %s (%s) does not support api workflows", start.ID, start.Node.Type())
	}
	return &API{
		walker: walker{
			exec:    exec,
			events:  emitter,
			logger:  log.WithNodeID(start.ID),
			runtime: runtime,
			apiMode: true,
		},
		start:   start,
		tracker: tracker,
	}, nil
}

// Run executes the flow once and returns the last node's output. Any
// node failure is emitted and re-raised to the caller.
func (r *API) Run(ctx context.Context, input *payload.NodeOutput, reqCtx *RequestContext) (*payload.NodeOutput, error) {
	r.tracker.RegisterRunner()
	defer r.tracker.UnregisterRunner()

	if err := r.initReachable(ctx, r.start); err != nil {
		return nil, err
	}

	if input == nil {
		input = payload.New()
	}
	input.Metadata[payload.MetaAPIMode] = true
	if reqCtx != nil {
		input.Metadata[payload.MetaRequestContext] = map[string]any{
			"method":  reqCtx.Method,
			"headers": reqCtx.Headers,
			"query":   reqCtx.Query,
		}
	}

	out, err := r.runNode(ctx, r.start, input)
	if err != nil {
		return nil, err
	}

	if out.IsExecutionCompleted() {
		if err := r.broadcastSentinel(ctx, r.start, out); err != nil {
			return nil, err
		}
		return r.last(), nil
	}

	if err := r.descend(ctx, r.start, out); err != nil {
		return nil, err
	}
	return r.last(), nil
}

func (r *API) last() *payload.NodeOutput {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastOutput
}

func supportsWorkflowType(n node.Node, wt node.WorkflowType) bool {
	for _, t := range n.SupportedWorkflowTypes() {
		if t == wt {
			return true
		}
	}
	return false
}

package runner

import (
	"context"
	"fmt"
	"sync"

	"github.com/lyzr/flowengine/common/logger"
	"github.com/lyzr/flowengine/flow/events"
	"github.com/lyzr/flowengine/flow/executor"
	"github.com/lyzr/flowengine/flow/graph"
	"github.com/lyzr/flowengine/flow/node"
	"github.com/lyzr/flowengine/flow/payload"
)

// walker is the downstream traversal shared by both runners. Production
// mode runs fork branches concurrently and stops recursion at
// non-blocking sinks; API mode walks sequentially, never early-exits,
// and tracks the last executed node's output.
type walker struct {
	exec    *executor.PoolExecutor
	events  *events.Emitter
	logger  *logger.Logger
	runtime map[string]any
	apiMode bool

	mu         sync.Mutex
	lastOutput *payload.NodeOutput
}

// runNode dispatches one node onto its pool, emitting the paired
// node_started / node_completed (or node_failed) events inline
func (w *walker) runNode(ctx context.Context, fn *graph.FlowNode, in *payload.NodeOutput) (*payload.NodeOutput, error) {
	w.events.Emit(events.NodeStarted, events.Payload{
		"node_id":   fn.ID,
		"node_type": fn.Node.Type(),
	})

	out, err := w.exec.Execute(ctx, fn.Node, in)
	if err != nil {
		w.events.Emit(events.NodeFailed, events.Payload{
			"node_id":   fn.ID,
			"node_type": fn.Node.Type(),
			"error":     err.Error(),
		})
		return nil, fmt.Errorf("node %s failed: %w", fn.ID, err)
	}
	if out == nil {
		out = payload.New()
	}

	completed := events.Payload{
		"node_id":     fn.ID,
		"node_type":   fn.Node.Type(),
		"output_data": out.Data,
	}
	if cond, ok := fn.Node.(node.Conditional); ok && fn.Node.Kind() == node.KindConditional {
		completed["route"] = cond.Route()
	}
	w.events.Emit(events.NodeCompleted, completed)

	w.recordLast(out)
	return out, nil
}

func (w *walker) recordLast(out *payload.NodeOutput) {
	if !w.apiMode {
		return
	}
	w.mu.Lock()
	w.lastOutput = out
	w.mu.Unlock()
}

// initReachable calls Init once on every node reachable from start. The
// visited set guards against overlap through joins.
func (w *walker) initReachable(ctx context.Context, start *graph.FlowNode) error {
	for _, fn := range reachableFrom(start) {
		if err := fn.Node.Init(ctx); err != nil {
			return fmt.Errorf("failed to init node %s: %w", fn.ID, err)
		}
	}
	return nil
}

func reachableFrom(start *graph.FlowNode) []*graph.FlowNode {
	seen := map[string]bool{start.ID: true}
	out := []*graph.FlowNode{start}
	queue := []*graph.FlowNode{start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, children := range cur.Next {
			for _, child := range children {
				if seen[child.ID] {
					continue
				}
				seen[child.ID] = true
				out = append(out, child)
				queue = append(queue, child)
			}
		}
	}
	return out
}

// descend walks downstream from a node that just produced out
func (w *walker) descend(ctx context.Context, fn *graph.FlowNode, out *payload.NodeOutput) error {
	if out.IsExecutionCompleted() {
		return w.broadcastSentinel(ctx, fn, out)
	}

	key := graph.BranchDefault
	if cond, ok := fn.Node.(node.Conditional); ok && fn.Node.Kind() == node.KindConditional {
		key = cond.Route()
	}

	children := fn.Children(key)
	switch len(children) {
	case 0:
		return nil
	case 1:
		return w.runChild(ctx, children[0], out)
	default:
		return w.forkJoin(ctx, children, out)
	}
}

// broadcastSentinel forwards the termination sentinel to every outgoing
// branch key; each receiving node runs Cleanup instead of Run. The seen
// set keeps Cleanup to one call per node when paths overlap at a join.
func (w *walker) broadcastSentinel(ctx context.Context, fn *graph.FlowNode, sentinel *payload.NodeOutput) error {
	return w.deliverSentinel(ctx, fn, sentinel, map[string]bool{fn.ID: true})
}

func (w *walker) deliverSentinel(ctx context.Context, fn *graph.FlowNode, sentinel *payload.NodeOutput, seen map[string]bool) error {
	for _, key := range fn.BranchKeys() {
		for _, child := range fn.Children(key) {
			if seen[child.ID] {
				continue
			}
			seen[child.ID] = true
			if err := child.Node.Cleanup(ctx, sentinel); err != nil {
				w.logger.Warn("node cleanup failed on sentinel",
					"node_id", child.ID,
					"error", err)
			}
			if err := w.deliverSentinel(ctx, child, sentinel, seen); err != nil {
				return err
			}
		}
	}
	return nil
}

// runChild executes one child and continues the walk past it
func (w *walker) runChild(ctx context.Context, child *graph.FlowNode, in *payload.NodeOutput) error {
	if child.Node.Kind() == node.KindLoop {
		return w.runLoop(ctx, child, in)
	}

	out, err := w.runNode(ctx, child, in)
	if err != nil {
		return err
	}

	// Non-blocking sinks end the path in production mode; the producer
	// does not wait on anything past them
	if !w.apiMode && child.Node.Kind() == node.KindNonBlocking {
		return nil
	}
	return w.descend(ctx, child, out)
}

// forkJoin runs parallel branches and, when they rejoin at a common
// descendant, feeds the join node a merged payload with
// collision-resolved keys
func (w *walker) forkJoin(ctx context.Context, children []*graph.FlowNode, prefork *payload.NodeOutput) error {
	join := findJoin(children)

	branchOuts := make([]*payload.NodeOutput, len(children))
	branchErrs := make([]error, len(children))

	runBranch := func(i int, child *graph.FlowNode) {
		branchOuts[i], branchErrs[i] = w.runPathUntil(ctx, child, prefork.Clone(), join)
	}

	if w.apiMode {
		// Sequential in API mode; ordering matches branch iteration order
		for i, child := range children {
			runBranch(i, child)
		}
	} else {
		var wg sync.WaitGroup
		for i, child := range children {
			wg.Add(1)
			go func(i int, child *graph.FlowNode) {
				defer wg.Done()
				runBranch(i, child)
			}(i, child)
		}
		wg.Wait()
	}

	for _, err := range branchErrs {
		if err != nil {
			return err
		}
	}

	if join == nil {
		return nil
	}

	merged := MergeBranchOutputs(prefork, branchOuts)
	return w.runChild(ctx, join, merged)
}

// runPathUntil walks a single branch, stopping just before the join
// node. Returns the branch's terminal output.
func (w *walker) runPathUntil(ctx context.Context, fn *graph.FlowNode, in *payload.NodeOutput, join *graph.FlowNode) (*payload.NodeOutput, error) {
	if join != nil && fn.ID == join.ID {
		return in, nil
	}

	if fn.Node.Kind() == node.KindLoop {
		return w.runLoopPath(ctx, fn, in, join)
	}

	out, err := w.runNode(ctx, fn, in)
	if err != nil {
		return nil, err
	}
	if out.IsExecutionCompleted() {
		return out, w.broadcastSentinel(ctx, fn, out)
	}
	if !w.apiMode && fn.Node.Kind() == node.KindNonBlocking {
		return out, nil
	}

	key := graph.BranchDefault
	if cond, ok := fn.Node.(node.Conditional); ok && fn.Node.Kind() == node.KindConditional {
		key = cond.Route()
	}

	children := fn.Children(key)
	switch len(children) {
	case 0:
		return out, nil
	case 1:
		return w.runPathUntil(ctx, children[0], out, join)
	default:
		// Nested fork inside a branch: resolve it fully, then the
		// branch terminates at the nested join's last output
		if err := w.forkJoin(ctx, children, out); err != nil {
			return nil, err
		}
		return out, nil
	}
}

// findJoin returns the first node reachable from every branch head, or
// nil when the branches never rejoin
func findJoin(children []*graph.FlowNode) *graph.FlowNode {
	if len(children) < 2 {
		return nil
	}

	counts := make(map[string]int)
	for _, child := range children {
		for _, fn := range reachableFrom(child) {
			counts[fn.ID]++
		}
	}

	// BFS order from the first branch picks the earliest common node
	for _, fn := range reachableFrom(children[0]) {
		if counts[fn.ID] == len(children) {
			return fn
		}
	}
	return nil
}

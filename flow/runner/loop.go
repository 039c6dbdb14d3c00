package runner

import (
	"context"
	"fmt"

	"github.com/lyzr/flowengine/flow/graph"
	"github.com/lyzr/flowengine/flow/payload"
)

// Metadata keys steering single-iteration ("iterate-and-stop") loop runs
const (
	MetaIterateMode  = "__iterate_mode__"
	MetaIterateIndex = "__iterate_index__"

	IterateModeSingle = "single"
)

// ForEachState is the per-iteration cursor exposed to sub-DAG nodes
type ForEachState struct {
	Index int `json:"index"`
	Item  any `json:"item"`
}

// runLoop executes a loop node: its Run resolves the iteration array
// under data.items, then the sub-DAG behind the "subdag" branch runs
// once per element as a single-pass mini-run. Collected results are
// attached as the forEachNode summary and execution continues through
// the "default" branch.
func (w *walker) runLoop(ctx context.Context, fn *graph.FlowNode, in *payload.NodeOutput) error {
	_, err := w.runLoopPath(ctx, fn, in, nil)
	return err
}

// runLoopPath is runLoop bounded by a join: the "default" continuation
// stops just before join, so a loop inside a fork branch still iterates
// and then merges like any other branch. Returns the continuation's
// terminal output.
func (w *walker) runLoopPath(ctx context.Context, fn *graph.FlowNode, in *payload.NodeOutput, join *graph.FlowNode) (*payload.NodeOutput, error) {
	out, err := w.runNode(ctx, fn, in)
	if err != nil {
		return nil, err
	}
	if out.IsExecutionCompleted() {
		return out, w.broadcastSentinel(ctx, fn, out)
	}

	items := extractItems(out)

	if mode, _ := in.Metadata[MetaIterateMode].(string); mode == IterateModeSingle {
		if err := w.runSingleIteration(ctx, fn, in, out, items); err != nil {
			return nil, err
		}
		return out, nil
	}

	results := make([]any, 0, len(items))
	for i, item := range items {
		result, err := w.runIteration(ctx, fn, out, items, results, i, item)
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}

	out.Data[payload.DataForEachNode] = forEachSummary(items, results, len(items)-1, nil)
	w.recordLast(out)

	terminal := out
	for _, child := range fn.Children(graph.BranchDefault) {
		last, err := w.runPathUntil(ctx, child, out, join)
		if err != nil {
			return nil, err
		}
		if last != nil {
			terminal = last
		}
	}
	return terminal, nil
}

// runSingleIteration runs exactly one iteration for a client-supplied
// index (or the next index after the persisted cursor) and stops; the
// caller persists the summary and calls again for the next element.
func (w *walker) runSingleIteration(ctx context.Context, fn *graph.FlowNode, in, out *payload.NodeOutput, items []any) error {
	index := nextIterationIndex(in)
	if index >= len(items) {
		out.Data[payload.DataForEachNode] = forEachSummary(items, nil, len(items)-1, nil)
		w.recordLast(out)
		return nil
	}

	result, err := w.runIteration(ctx, fn, out, items, nil, index, items[index])
	if err != nil {
		return err
	}

	out.Data[payload.DataForEachNode] = forEachSummary(items, []any{result}, index, items[index])
	w.recordLast(out)
	return nil
}

// runIteration walks the sub-DAG once for one element and returns the
// collected terminal value
func (w *walker) runIteration(ctx context.Context, fn *graph.FlowNode, out *payload.NodeOutput, items []any, collected []any, index int, item any) (any, error) {
	subdag := fn.Children(graph.BranchSubDAG)
	if len(subdag) == 0 {
		return nil, fmt.Errorf("loop node %s has no subdag branch", fn.ID)
	}

	iterIn := out.Clone()
	iterIn.Data[payload.DataForEachNode] = map[string]any{
		"input":   items,
		"results": append([]any(nil), collected...),
		"state":   map[string]any{"index": index, "item": item},
	}

	var terminal *payload.NodeOutput
	for _, entry := range subdag {
		last, err := w.runPathUntil(ctx, entry, iterIn, nil)
		if err != nil {
			return nil, fmt.Errorf("loop %s iteration %d: %w", fn.ID, index, err)
		}
		terminal = last
	}

	if terminal == nil {
		return nil, nil
	}
	return terminal.Data, nil
}

func forEachSummary(items, results []any, index int, item any) map[string]any {
	if results == nil {
		results = []any{}
	}
	state := map[string]any{"index": index}
	if item != nil {
		state["item"] = item
	}
	return map[string]any{
		"input":   items,
		"results": results,
		"state":   state,
	}
}

// extractItems reads the iteration array the loop node resolved
func extractItems(out *payload.NodeOutput) []any {
	switch v := out.Data["items"].(type) {
	case []any:
		return v
	case nil:
		return nil
	default:
		return []any{v}
	}
}

// nextIterationIndex picks the client-supplied index, or advances the
// persisted cursor from data.forEachNode.state.index
func nextIterationIndex(in *payload.NodeOutput) int {
	if raw, ok := in.Metadata[MetaIterateIndex]; ok {
		if i, ok := asInt(raw); ok {
			return i
		}
	}

	summary, ok := in.Data[payload.DataForEachNode].(map[string]any)
	if !ok {
		return 0
	}
	state, ok := summary["state"].(map[string]any)
	if !ok {
		return 0
	}
	if i, ok := asInt(state["index"]); ok {
		return i + 1
	}
	return 0
}

func asInt(v any) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case int64:
		return int(t), true
	case float64:
		return int(t), true
	}
	return 0, false
}

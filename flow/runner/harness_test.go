package runner

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lyzr/flowengine/common/logger"
	"github.com/lyzr/flowengine/flow/events"
	"github.com/lyzr/flowengine/flow/executor"
	"github.com/lyzr/flowengine/flow/graph"
	"github.com/lyzr/flowengine/flow/node"
	"github.com/lyzr/flowengine/flow/payload"
)

// harness records node activity across goroutines
type harness struct {
	mu       sync.Mutex
	ran      []string
	cleanups []string
}

func (h *harness) recordRun(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ran = append(h.ran, id)
}

func (h *harness) recordCleanup(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cleanups = append(h.cleanups, id)
}

func (h *harness) runs() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.ran...)
}

func (h *harness) cleaned() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.cleanups...)
}

type testNode struct {
	node.Base
	h     *harness
	runFn func(ctx context.Context, in *payload.NodeOutput) (*payload.NodeOutput, error)
	route string
	rmu   sync.Mutex
}

func (n *testNode) Run(ctx context.Context, in *payload.NodeOutput) (*payload.NodeOutput, error) {
	n.h.recordRun(n.ID())
	return n.runFn(ctx, in)
}

func (n *testNode) Cleanup(ctx context.Context, in *payload.NodeOutput) error {
	n.h.recordCleanup(n.ID())
	return nil
}

func (n *testNode) Route() string {
	n.rmu.Lock()
	defer n.rmu.Unlock()
	if n.route == "" {
		return graph.BranchNo
	}
	return n.route
}

func (n *testNode) setRoute(r string) {
	n.rmu.Lock()
	n.route = r
	n.rmu.Unlock()
}

func newTestNode(h *harness, id string, kind node.Kind, runFn func(ctx context.Context, in *payload.NodeOutput) (*payload.NodeOutput, error)) *testNode {
	cfg := payload.NodeConfig{ID: id, Type: "test-" + id}
	return &testNode{
		Base:  node.NewBase(cfg, kind, payload.PoolAsync),
		h:     h,
		runFn: runFn,
	}
}

// passNode forwards its input, tagging data with its own id
func passNode(h *harness, id string, kind node.Kind) *testNode {
	return newTestNode(h, id, kind, func(ctx context.Context, in *payload.NodeOutput) (*payload.NodeOutput, error) {
		in.SetData("seen_"+id, true)
		return in, nil
	})
}

// setNode stores key=value via collision-resolved SetData
func setNode(h *harness, id string, kind node.Kind, key string, value any) *testNode {
	return newTestNode(h, id, kind, func(ctx context.Context, in *payload.NodeOutput) (*payload.NodeOutput, error) {
		in.SetData(key, value)
		return in, nil
	})
}

// seqProducer emits the given payload factories one per iteration, then
// the termination sentinel
func seqProducer(h *harness, id string, count int) *testNode {
	iteration := 0
	var mu sync.Mutex
	n := newTestNode(h, id, node.KindProducer, nil)
	n.runFn = func(ctx context.Context, in *payload.NodeOutput) (*payload.NodeOutput, error) {
		mu.Lock()
		iteration++
		cur := iteration
		mu.Unlock()
		if cur > count {
			return payload.NewExecutionCompleted(), nil
		}
		out := payload.New()
		out.Metadata = in.Metadata
		out.Data["iteration"] = cur
		return out, nil
	}
	return n
}

type testGraph struct {
	g     *graph.FlowGraph
	nodes map[string]*graph.FlowNode
}

func newTestGraph(t *testing.T, ns ...node.Node) *testGraph {
	t.Helper()
	g := graph.New()
	tg := &testGraph{g: g, nodes: make(map[string]*graph.FlowNode)}
	for _, n := range ns {
		fn, err := g.AddNode(n)
		require.NoError(t, err)
		tg.nodes[n.ID()] = fn
	}
	return tg
}

func (tg *testGraph) connect(t *testing.T, from, to, key string) {
	t.Helper()
	require.NoError(t, tg.g.Connect(from, to, key))
}

func (tg *testGraph) fn(id string) *graph.FlowNode {
	return tg.nodes[id]
}

type fixture struct {
	exec    *executor.PoolExecutor
	emitter *events.Emitter
	tracker *events.StateTracker
	log     *logger.Logger
}

func newFixture(t *testing.T, totalNodes int) *fixture {
	t.Helper()
	f := &fixture{
		exec:    executor.New(logger.NewNop(), 2, 2),
		emitter: events.NewEmitter("wf-test", logger.NewNop()),
		tracker: events.NewStateTracker("wf-test", totalNodes),
		log:     logger.NewNop(),
	}
	t.Cleanup(func() { f.exec.Shutdown(false) })
	return f
}

func (f *fixture) apiRunner(t *testing.T, start *graph.FlowNode) *API {
	t.Helper()
	r, err := NewAPI(start, f.exec, f.emitter, f.tracker, map[string]any{}, f.log)
	require.NoError(t, err)
	return r
}

func (f *fixture) productionRunner(producer *graph.FlowNode, runtime map[string]any) *Production {
	if runtime == nil {
		runtime = map[string]any{}
	}
	return NewProduction(producer, f.exec, f.emitter, f.tracker, runtime, f.log, 10*time.Millisecond)
}

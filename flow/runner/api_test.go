package runner

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lyzr/flowengine/flow/events"
	"github.com/lyzr/flowengine/flow/graph"
	"github.com/lyzr/flowengine/flow/node"
	"github.com/lyzr/flowengine/flow/payload"
)

func TestAPI_LinearFlow(t *testing.T) {
	h := &harness{}
	start := passNode(h, "start", node.KindProducer)
	mid := passNode(h, "mid", node.KindBlocking)
	sink := passNode(h, "sink", node.KindNonBlocking)

	tg := newTestGraph(t, start, mid, sink)
	tg.connect(t, "start", "mid", graph.BranchDefault)
	tg.connect(t, "mid", "sink", graph.BranchDefault)

	f := newFixture(t, 3)
	r := f.apiRunner(t, tg.fn("start"))

	out, err := r.Run(context.Background(), payload.New(), nil)
	require.NoError(t, err)
	require.NotNil(t, out)

	// API mode walks past non-blocking sinks and returns the last output
	assert.Equal(t, []string{"start", "mid", "sink"}, h.runs())
	assert.Equal(t, true, out.Data["seen_sink"])
	assert.True(t, out.IsAPIMode())
}

func TestAPI_RequestContextInjected(t *testing.T) {
	h := &harness{}
	var gotMeta map[string]any
	start := newTestNode(h, "start", node.KindProducer, nil)
	start.runFn = func(ctx context.Context, in *payload.NodeOutput) (*payload.NodeOutput, error) {
		if rc, ok := in.Metadata[payload.MetaRequestContext].(map[string]any); ok {
			gotMeta = rc
		}
		return in, nil
	}

	tg := newTestGraph(t, start)
	f := newFixture(t, 1)
	r := f.apiRunner(t, tg.fn("start"))

	_, err := r.Run(context.Background(), nil, &RequestContext{
		Method: "POST",
		Query:  map[string]string{"q": "1"},
	})
	require.NoError(t, err)
	require.NotNil(t, gotMeta)
	assert.Equal(t, "POST", gotMeta["method"])
}

func TestAPI_ConditionalRouting(t *testing.T) {
	h := &harness{}
	start := passNode(h, "start", node.KindProducer)
	cond := passNode(h, "cond", node.KindConditional)
	yes := passNode(h, "yes-path", node.KindBlocking)
	no := passNode(h, "no-path", node.KindBlocking)

	tg := newTestGraph(t, start, cond, yes, no)
	tg.connect(t, "start", "cond", graph.BranchDefault)
	tg.connect(t, "cond", "yes-path", graph.BranchYes)
	tg.connect(t, "cond", "no-path", graph.BranchNo)

	f := newFixture(t, 4)
	cond.setRoute(graph.BranchYes)

	out, err := f.apiRunner(t, tg.fn("start")).Run(context.Background(), payload.New(), nil)
	require.NoError(t, err)
	assert.Equal(t, true, out.Data["seen_yes-path"])
	assert.NotContains(t, h.runs(), "no-path")
}

func TestAPI_ConditionalRouteEmitted(t *testing.T) {
	h := &harness{}
	cond := passNode(h, "cond", node.KindConditional)
	cond.setRoute(graph.BranchNo)
	tg := newTestGraph(t, cond)

	f := newFixture(t, 1)
	var routes []string
	f.emitter.On(events.NodeCompleted, func(event string, p events.Payload) {
		if r, ok := p["route"].(string); ok {
			routes = append(routes, r)
		}
	})

	_, err := f.apiRunner(t, tg.fn("cond")).Run(context.Background(), payload.New(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"no"}, routes)
}

func TestAPI_ForkJoinMerge(t *testing.T) {
	h := &harness{}
	start := setNode(h, "start", node.KindProducer, "seed", 1)
	left := setNode(h, "left", node.KindBlocking, "x", "lx")
	right := setNode(h, "right", node.KindBlocking, "y", "ry")
	join := passNode(h, "join", node.KindBlocking)

	tg := newTestGraph(t, start, left, right, join)
	tg.connect(t, "start", "left", graph.BranchDefault)
	tg.connect(t, "start", "right", graph.BranchDefault)
	tg.connect(t, "left", "join", graph.BranchDefault)
	tg.connect(t, "right", "join", graph.BranchDefault)

	f := newFixture(t, 4)
	out, err := f.apiRunner(t, tg.fn("start")).Run(context.Background(), payload.New(), nil)
	require.NoError(t, err)

	assert.Equal(t, 1, out.Data["seed"])
	assert.Equal(t, "lx", out.Data["x"])
	assert.Equal(t, "ry", out.Data["y"])
	assert.Equal(t, true, out.Data["seen_join"])

	// The join node ran exactly once
	joinRuns := 0
	for _, id := range h.runs() {
		if id == "join" {
			joinRuns++
		}
	}
	assert.Equal(t, 1, joinRuns)
}

func TestAPI_ForkJoinCollision(t *testing.T) {
	h := &harness{}
	start := passNode(h, "start", node.KindProducer)
	left := setNode(h, "left", node.KindBlocking, "result", "left")
	right := setNode(h, "right", node.KindBlocking, "result", "right")
	join := passNode(h, "join", node.KindBlocking)

	tg := newTestGraph(t, start, left, right, join)
	tg.connect(t, "start", "left", graph.BranchDefault)
	tg.connect(t, "start", "right", graph.BranchDefault)
	tg.connect(t, "left", "join", graph.BranchDefault)
	tg.connect(t, "right", "join", graph.BranchDefault)

	f := newFixture(t, 4)
	out, err := f.apiRunner(t, tg.fn("start")).Run(context.Background(), payload.New(), nil)
	require.NoError(t, err)

	assert.Equal(t, "left", out.Data["result"])
	assert.Equal(t, "right", out.Data["result_2"])
}

func TestAPI_ForkWithoutJoin(t *testing.T) {
	h := &harness{}
	start := passNode(h, "start", node.KindProducer)
	left := passNode(h, "left", node.KindBlocking)
	right := passNode(h, "right", node.KindBlocking)

	tg := newTestGraph(t, start, left, right)
	tg.connect(t, "start", "left", graph.BranchDefault)
	tg.connect(t, "start", "right", graph.BranchDefault)

	f := newFixture(t, 3)
	out, err := f.apiRunner(t, tg.fn("start")).Run(context.Background(), payload.New(), nil)
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.ElementsMatch(t, []string{"start", "left", "right"}, h.runs())
}

func TestAPI_SentinelStopsWalkAndCleansDownstream(t *testing.T) {
	h := &harness{}
	start := newTestNode(h, "start", node.KindProducer, nil)
	start.runFn = func(ctx context.Context, in *payload.NodeOutput) (*payload.NodeOutput, error) {
		return payload.NewExecutionCompleted(), nil
	}
	next := passNode(h, "next", node.KindBlocking)
	last := passNode(h, "last", node.KindBlocking)

	tg := newTestGraph(t, start, next, last)
	tg.connect(t, "start", "next", graph.BranchDefault)
	tg.connect(t, "next", "last", graph.BranchDefault)

	f := newFixture(t, 3)
	_, err := f.apiRunner(t, tg.fn("start")).Run(context.Background(), payload.New(), nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"start"}, h.runs())
	assert.Equal(t, []string{"next", "last"}, h.cleaned())
}

func TestAPI_SentinelCleansDiamondJoinOnce(t *testing.T) {
	h := &harness{}
	start := newTestNode(h, "start", node.KindProducer, nil)
	start.runFn = func(ctx context.Context, in *payload.NodeOutput) (*payload.NodeOutput, error) {
		return payload.NewExecutionCompleted(), nil
	}
	left := passNode(h, "left", node.KindBlocking)
	right := passNode(h, "right", node.KindBlocking)
	join := passNode(h, "join", node.KindBlocking)

	tg := newTestGraph(t, start, left, right, join)
	tg.connect(t, "start", "left", graph.BranchDefault)
	tg.connect(t, "start", "right", graph.BranchDefault)
	tg.connect(t, "left", "join", graph.BranchDefault)
	tg.connect(t, "right", "join", graph.BranchDefault)

	f := newFixture(t, 4)
	_, err := f.apiRunner(t, tg.fn("start")).Run(context.Background(), payload.New(), nil)
	require.NoError(t, err)

	// Join is reachable through both arms but cleans up once
	assert.Equal(t, []string{"start"}, h.runs())
	assert.ElementsMatch(t, []string{"left", "right", "join"}, h.cleaned())
}

func TestAPI_NodeFailureSurfaced(t *testing.T) {
	h := &harness{}
	start := passNode(h, "start", node.KindProducer)
	boom := newTestNode(h, "boom", node.KindBlocking, nil)
	boom.runFn = func(ctx context.Context, in *payload.NodeOutput) (*payload.NodeOutput, error) {
		return nil, errors.New("bad template")
	}

	tg := newTestGraph(t, start, boom)
	tg.connect(t, "start", "boom", graph.BranchDefault)

	f := newFixture(t, 2)
	var failed []string
	f.emitter.On(events.NodeFailed, func(event string, p events.Payload) {
		failed = append(failed, p["node_id"].(string))
	})

	_, err := f.apiRunner(t, tg.fn("start")).Run(context.Background(), payload.New(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "node boom failed")
	assert.Equal(t, []string{"boom"}, failed)
}

func TestNewAPI_RejectsProductionOnlyStart(t *testing.T) {
	h := &harness{}
	start := passNode(h, "start", node.KindProducer)
	start.SetSupportedWorkflowTypes(node.WorkflowProduction)

	tg := newTestGraph(t, start)
	f := newFixture(t, 1)

	_, err := NewAPI(tg.fn("start"), f.exec, f.emitter, f.tracker, map[string]any{}, f.log)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not support api workflows")
}

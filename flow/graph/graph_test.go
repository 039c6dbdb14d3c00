package graph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lyzr/flowengine/flow/node"
	"github.com/lyzr/flowengine/flow/payload"
)

type stubNode struct {
	node.Base
}

func (s *stubNode) Run(ctx context.Context, in *payload.NodeOutput) (*payload.NodeOutput, error) {
	return in, nil
}

func stub(id string, kind node.Kind) node.Node {
	cfg := payload.NodeConfig{ID: id, Type: "stub"}
	return &stubNode{Base: node.NewBase(cfg, kind, payload.PoolAsync)}
}

func buildGraph(t *testing.T, kinds map[string]node.Kind, order []string, edges [][3]string) *FlowGraph {
	t.Helper()
	g := New()
	for _, id := range order {
		_, err := g.AddNode(stub(id, kinds[id]))
		require.NoError(t, err)
	}
	for _, e := range edges {
		require.NoError(t, g.Connect(e[0], e[1], e[2]))
	}
	return g
}

func blocking(order ...string) map[string]node.Kind {
	kinds := make(map[string]node.Kind, len(order))
	for _, id := range order {
		kinds[id] = node.KindBlocking
	}
	return kinds
}

func TestAddNode_DuplicateRejected(t *testing.T) {
	g := New()
	_, err := g.AddNode(stub("a", node.KindBlocking))
	require.NoError(t, err)

	_, err = g.AddNode(stub("a", node.KindBlocking))
	assert.ErrorIs(t, err, ErrDuplicateNode)
}

func TestConnect_Errors(t *testing.T) {
	g := buildGraph(t, blocking("a", "b"), []string{"a", "b"}, nil)

	assert.ErrorIs(t, g.Connect("a", "a", BranchDefault), ErrSelfLoop)
	assert.ErrorIs(t, g.Connect("missing", "b", BranchDefault), ErrNodeNotFound)
	assert.ErrorIs(t, g.Connect("a", "missing", BranchDefault), ErrNodeNotFound)

	require.NoError(t, g.Connect("a", "b", BranchDefault))
	assert.ErrorIs(t, g.Connect("a", "b", BranchDefault), ErrDuplicateEdge)

	// Same pair under a different branch key is a distinct edge
	assert.NoError(t, g.Connect("a", "b", BranchYes))
}

func TestConnect_EmptyKeyDefaults(t *testing.T) {
	g := buildGraph(t, blocking("a", "b"), []string{"a", "b"}, nil)
	require.NoError(t, g.Connect("a", "b", ""))

	a, _ := g.Get("a")
	require.Len(t, a.Children(BranchDefault), 1)
	assert.Equal(t, "b", a.Children(BranchDefault)[0].ID)
}

func TestNodes_InsertionOrder(t *testing.T) {
	g := buildGraph(t, blocking("c", "a", "b"), []string{"c", "a", "b"}, nil)

	var ids []string
	for _, fn := range g.Nodes() {
		ids = append(ids, fn.ID)
	}
	assert.Equal(t, []string{"c", "a", "b"}, ids)
}

func TestProducersAndFirstNode(t *testing.T) {
	kinds := map[string]node.Kind{
		"p1": node.KindProducer,
		"b":  node.KindBlocking,
		"p2": node.KindProducer,
	}
	g := buildGraph(t, kinds, []string{"b", "p1", "p2"}, [][3]string{
		{"p1", "b", BranchDefault},
	})

	producers := g.Producers()
	require.Len(t, producers, 2)
	assert.Equal(t, "p1", producers[0].ID)
	assert.Equal(t, "p1", g.FirstNode().ID)
}

func TestFirstNode_NoProducer(t *testing.T) {
	g := buildGraph(t, blocking("a", "b"), []string{"b", "a"}, [][3]string{
		{"a", "b", BranchDefault},
	})
	// b has an incoming edge, a does not
	assert.Equal(t, "a", g.FirstNode().ID)
}

func TestUpstream(t *testing.T) {
	g := buildGraph(t, blocking("a", "b", "c", "d"), []string{"a", "b", "c", "d"}, [][3]string{
		{"a", "b", BranchDefault},
		{"b", "c", BranchDefault},
		{"a", "d", BranchDefault},
	})

	up := g.Upstream("c")
	assert.True(t, up["a"])
	assert.True(t, up["b"])
	assert.False(t, up["d"])
	assert.False(t, up["c"])
}

func TestReachable(t *testing.T) {
	g := buildGraph(t, blocking("a", "b", "c", "d"), []string{"a", "b", "c", "d"}, [][3]string{
		{"a", "b", BranchDefault},
		{"b", "c", BranchYes},
		{"d", "c", BranchDefault},
	})

	a, _ := g.Get("a")
	ids := make(map[string]bool)
	for _, fn := range g.Reachable(a) {
		ids[fn.ID] = true
	}
	assert.Equal(t, map[string]bool{"a": true, "b": true, "c": true}, ids)
}

func TestHasCycle(t *testing.T) {
	g := buildGraph(t, blocking("a", "b", "c"), []string{"a", "b", "c"}, [][3]string{
		{"a", "b", BranchDefault},
		{"b", "c", BranchDefault},
	})
	assert.False(t, g.HasCycle())

	require.NoError(t, g.Connect("c", "a", BranchDefault))
	assert.True(t, g.HasCycle())
}

func TestHasCycle_DiamondIsNotACycle(t *testing.T) {
	g := buildGraph(t, blocking("a", "b", "c", "d"), []string{"a", "b", "c", "d"}, [][3]string{
		{"a", "b", BranchDefault},
		{"a", "c", BranchDefault},
		{"b", "d", BranchDefault},
		{"c", "d", BranchDefault},
	})
	assert.False(t, g.HasCycle())
}

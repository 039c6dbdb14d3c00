// Package graph holds the in-memory workflow DAG: nodes keyed by id with
// a per-node branch map from branch key to child nodes.
package graph

import (
	"errors"
	"fmt"

	"github.com/lyzr/flowengine/flow/node"
)

// Branch keys on outgoing edges
const (
	BranchDefault = "default"
	BranchYes     = "yes"
	BranchNo      = "no"
	BranchSubDAG  = "subdag"
)

var (
	ErrNodeNotFound  = errors.New("node not found")
	ErrDuplicateNode = errors.New("duplicate node id")
	ErrDuplicateEdge = errors.New("duplicate edge")
	ErrSelfLoop      = errors.New("self-referential edge")
)

// FlowNode wraps a live node instance with its outgoing branch map
type FlowNode struct {
	ID   string
	Node node.Node
	Next map[string][]*FlowNode
}

// Children returns the child list for a branch key
func (f *FlowNode) Children(key string) []*FlowNode {
	return f.Next[key]
}

// BranchKeys returns every branch key with at least one child
func (f *FlowNode) BranchKeys() []string {
	keys := make([]string, 0, len(f.Next))
	for k := range f.Next {
		keys = append(keys, k)
	}
	return keys
}

// FlowGraph is a DAG of flow nodes. Built once, immutable during
// execution.
type FlowGraph struct {
	nodes map[string]*FlowNode
	order []string
}

// New creates an empty graph
func New() *FlowGraph {
	return &FlowGraph{
		nodes: make(map[string]*FlowNode),
	}
}

// AddNode wraps and inserts a node instance. Duplicate ids are rejected.
func (g *FlowGraph) AddNode(n node.Node) (*FlowNode, error) {
	if _, exists := g.nodes[n.ID()]; exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateNode, n.ID())
	}
	fn := &FlowNode{
		ID:   n.ID(),
		Node: n,
		Next: make(map[string][]*FlowNode),
	}
	g.nodes[n.ID()] = fn
	g.order = append(g.order, n.ID())
	return fn, nil
}

// Connect adds an edge under a branch key. Self-loops and duplicate
// (source, target, key) triples are rejected.
func (g *FlowGraph) Connect(from, to, key string) error {
	if from == to {
		return fmt.Errorf("%w: %s", ErrSelfLoop, from)
	}
	src, ok := g.nodes[from]
	if !ok {
		return fmt.Errorf("%w: source %s", ErrNodeNotFound, from)
	}
	dst, ok := g.nodes[to]
	if !ok {
		return fmt.Errorf("%w: target %s", ErrNodeNotFound, to)
	}
	if key == "" {
		key = BranchDefault
	}

	for _, existing := range src.Next[key] {
		if existing.ID == to {
			return fmt.Errorf("%w: %s -[%s]-> %s", ErrDuplicateEdge, from, key, to)
		}
	}

	src.Next[key] = append(src.Next[key], dst)
	return nil
}

// Get looks a node up by id
func (g *FlowGraph) Get(id string) (*FlowNode, bool) {
	fn, ok := g.nodes[id]
	return fn, ok
}

// Nodes returns every node in insertion order
func (g *FlowGraph) Nodes() []*FlowNode {
	out := make([]*FlowNode, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.nodes[id])
	}
	return out
}

// Len returns the node count
func (g *FlowGraph) Len() int {
	return len(g.nodes)
}

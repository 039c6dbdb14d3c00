package graph

import (
	"github.com/lyzr/flowengine/flow/node"
)

// Producers returns every producer node in insertion order
func (g *FlowGraph) Producers() []*FlowNode {
	var out []*FlowNode
	for _, fn := range g.Nodes() {
		if fn.Node.Kind() == node.KindProducer {
			out = append(out, fn)
		}
	}
	return out
}

// FirstNode returns the entry point for a single-pass run: the first
// producer, or failing that the first node with no incoming edges
func (g *FlowGraph) FirstNode() *FlowNode {
	if producers := g.Producers(); len(producers) > 0 {
		return producers[0]
	}

	incoming := g.incomingCounts()
	for _, fn := range g.Nodes() {
		if incoming[fn.ID] == 0 {
			return fn
		}
	}
	return nil
}

// Upstream returns the set of node ids with a path to the given node
func (g *FlowGraph) Upstream(id string) map[string]bool {
	parents := make(map[string][]string)
	for _, fn := range g.Nodes() {
		for _, children := range fn.Next {
			for _, child := range children {
				parents[child.ID] = append(parents[child.ID], fn.ID)
			}
		}
	}

	seen := make(map[string]bool)
	stack := append([]string(nil), parents[id]...)
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[cur] {
			continue
		}
		seen[cur] = true
		stack = append(stack, parents[cur]...)
	}
	return seen
}

// Reachable returns every node reachable from the given node across all
// branch keys, including the node itself, in BFS order
func (g *FlowGraph) Reachable(from *FlowNode) []*FlowNode {
	seen := map[string]bool{from.ID: true}
	out := []*FlowNode{from}
	queue := []*FlowNode{from}

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

// HasCycle reports whether the graph contains a directed cycle
func (g *FlowGraph) HasCycle() bool {
	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[string]int)

	var visit func(fn *FlowNode) bool
	visit = func(fn *FlowNode) bool {
		state[fn.ID] = visiting
		for _, children := range fn.Next {
			for _, child := range children {
				switch state[child.ID] {
				case visiting:
					return true
				case unvisited:
					if visit(child) {
						return true
					}
				}
			}
		}
		state[fn.ID] = done
		return false
	}

	for _, fn := range g.Nodes() {
		if state[fn.ID] == unvisited && visit(fn) {
			return true
		}
	}
	return false
}

func (g *FlowGraph) incomingCounts() map[string]int {
	counts := make(map[string]int)
	for _, fn := range g.Nodes() {
		for _, children := range fn.Next {
			for _, child := range children {
				counts[child.ID]++
			}
		}
	}
	return counts
}

package builder

import (
	"errors"
	"fmt"
	"strings"

	"github.com/lyzr/flowengine/flow/graph"
	"github.com/lyzr/flowengine/flow/node"
)

// ValidationError aggregates every node that failed IsReady
type ValidationError struct {
	Failures []*node.ReadinessError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		parts[i] = f.Error()
	}
	return fmt.Sprintf("workflow validation failed for %d node(s): %s",
		len(e.Failures), strings.Join(parts, "; "))
}

// NodeValidator calls IsReady on every node (or a scoped subset) and
// aggregates failures into a single error. Validated nodes are marked so
// their Init skips redundant validation. Nodes outside the scope stay
// unmarked and are never validated lazily.
type NodeValidator struct {
	// Scope restricts validation to these node ids; empty means all.
	// Used for sub-DAG single-iteration runs.
	Scope []string
}

// NewNodeValidator validates the whole graph
func NewNodeValidator() *NodeValidator {
	return &NodeValidator{}
}

// NewScopedNodeValidator validates only the given node ids
func NewScopedNodeValidator(scope []string) *NodeValidator {
	return &NodeValidator{Scope: scope}
}

// Process implements PostProcessor
func (v *NodeValidator) Process(g *graph.FlowGraph) error {
	var inScope map[string]bool
	if len(v.Scope) > 0 {
		inScope = make(map[string]bool, len(v.Scope))
		for _, id := range v.Scope {
			inScope[id] = true
		}
	}

	var failures []*node.ReadinessError
	var validated []node.Node

	for _, fn := range g.Nodes() {
		if inScope != nil && !inScope[fn.ID] {
			continue
		}

		if err := fn.Node.IsReady(); err != nil {
			var re *node.ReadinessError
			if !errors.As(err, &re) {
				re = &node.ReadinessError{
					NodeID:     fn.ID,
					NodeType:   fn.Node.Type(),
					FormErrors: []node.FormError{{Field: "", Message: err.Error()}},
				}
			}
			failures = append(failures, re)
			continue
		}
		validated = append(validated, fn.Node)
	}

	if len(failures) > 0 {
		return &ValidationError{Failures: failures}
	}

	for _, n := range validated {
		n.MarkValidated()
	}
	return nil
}

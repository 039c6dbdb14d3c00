package nodes

import (
	"context"
	"sync"

	"github.com/lyzr/flowengine/flow/graph"
	"github.com/lyzr/flowengine/flow/node"
	"github.com/lyzr/flowengine/flow/payload"
)

// IfCondition evaluates its configured expression against the incoming
// payload and routes to the "yes" or "no" branch
type IfCondition struct {
	node.Base
	expression string
	evaluator  *Evaluator

	mu    sync.Mutex
	route string
}

// NewIfCondition instantiates an if-condition from its config
func NewIfCondition(cfg payload.NodeConfig, svc *node.Services) (node.Node, error) {
	return &IfCondition{
		Base:       node.NewBase(cfg, node.KindConditional, payload.PoolAsync),
		expression: cfg.FormString("expression"),
		evaluator:  NewEvaluator(),
	}, nil
}

func (n *IfCondition) IsReady() error {
	if err := n.RequireFormFields("expression"); err != nil {
		return err
	}
	if err := n.evaluator.Compile(n.expression); err != nil {
		return &node.ReadinessError{
			NodeID:   n.ID(),
			NodeType: n.Type(),
			FormErrors: []node.FormError{
				{Field: "expression", Message: err.Error()},
			},
		}
	}
	return nil
}

func (n *IfCondition) Run(ctx context.Context, in *payload.NodeOutput) (*payload.NodeOutput, error) {
	result, err := n.evaluator.Evaluate(n.expression, in)
	if err != nil {
		return nil, err
	}

	route := graph.BranchNo
	if result {
		route = graph.BranchYes
	}

	n.mu.Lock()
	n.route = route
	n.mu.Unlock()

	return in, nil
}

// Route returns the branch key chosen by the last Run
func (n *IfCondition) Route() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.route == "" {
		return graph.BranchNo
	}
	return n.route
}

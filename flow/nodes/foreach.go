package nodes

import (
	"context"
	"strings"

	"github.com/lyzr/flowengine/flow/node"
	"github.com/lyzr/flowengine/flow/payload"
)

// ForEach resolves its iteration array and hands it to the runner as
// data.items; the runner then walks the "subdag" branch once per
// element and continues through "default" with the collected summary
type ForEach struct {
	node.Base
}

// NewForEach instantiates a for-each loop node from its config
func NewForEach(cfg payload.NodeConfig, svc *node.Services) (node.Node, error) {
	return &ForEach{
		Base: node.NewBase(cfg, node.KindLoop, payload.PoolAsync),
	}, nil
}

func (n *ForEach) IsReady() error {
	form := n.Config().Data.Form
	if _, ok := form["items"]; ok {
		return nil
	}
	if n.Config().FormString("items_path") != "" {
		return nil
	}
	return &node.ReadinessError{
		NodeID:   n.ID(),
		NodeType: n.Type(),
		FormErrors: []node.FormError{
			{Field: "items", Message: "items or items_path is required"},
		},
	}
}

func (n *ForEach) Run(ctx context.Context, in *payload.NodeOutput) (*payload.NodeOutput, error) {
	out := in.Clone()
	out.Data["items"] = n.resolveItems(in)
	out.Metadata[payload.MetaSourceNode] = n.ID()
	return out, nil
}

func (n *ForEach) resolveItems(in *payload.NodeOutput) []any {
	if items, ok := n.Config().Data.Form["items"].([]any); ok {
		return items
	}

	path := n.Config().FormString("items_path")
	if path == "" {
		return []any{}
	}

	// items_path is a dotted path into the incoming data map
	var current any = in.Data
	for _, part := range strings.Split(strings.TrimPrefix(path, "data."), ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return []any{}
		}
		current, ok = m[part]
		if !ok {
			return []any{}
		}
	}

	if items, ok := current.([]any); ok {
		return items
	}
	return []any{}
}

package nodes

import (
	"context"

	"github.com/lyzr/flowengine/common/logger"
	"github.com/lyzr/flowengine/flow/node"
	"github.com/lyzr/flowengine/flow/payload"
)

// DataTransformer renders its template map against the incoming payload
// and emits the rendered fields as its output data
type DataTransformer struct {
	node.Base
}

// NewDataTransformer instantiates a data-transformer from its config
func NewDataTransformer(cfg payload.NodeConfig, svc *node.Services) (node.Node, error) {
	return &DataTransformer{
		Base: node.NewBase(cfg, node.KindBlocking, payload.PoolProcess),
	}, nil
}

func (n *DataTransformer) IsReady() error {
	if _, ok := n.Config().Data.Form["template"].(map[string]any); !ok {
		return &node.ReadinessError{
			NodeID:   n.ID(),
			NodeType: n.Type(),
			FormErrors: []node.FormError{
				{Field: "template", Message: "required"},
			},
		}
	}
	return nil
}

func (n *DataTransformer) Run(ctx context.Context, in *payload.NodeOutput) (*payload.NodeOutput, error) {
	template, _ := n.Config().Data.Form["template"].(map[string]any)

	out := payload.New()
	out.Metadata = in.Clone().Metadata
	out.Metadata[payload.MetaSourceNode] = n.ID()
	for k, v := range node.RenderForm(template, in) {
		out.SetData(k, v)
	}
	return out, nil
}

// HTTPResponseNode shapes the reserved response the API runner hands
// back to the HTTP layer. The shape is honored only when this node is
// the last one executed.
type HTTPResponseNode struct {
	node.Base
}

// NewHTTPResponseNode instantiates an http-response node from its config
func NewHTTPResponseNode(cfg payload.NodeConfig, svc *node.Services) (node.Node, error) {
	n := &HTTPResponseNode{
		Base: node.NewBase(cfg, node.KindBlocking, payload.PoolAsync),
	}
	n.SetSupportedWorkflowTypes(node.WorkflowAPI)
	return n, nil
}

func (n *HTTPResponseNode) Run(ctx context.Context, in *payload.NodeOutput) (*payload.NodeOutput, error) {
	form := n.PopulateFormValues(in)

	status := 200
	if v, ok := asInt(form["status"]); ok {
		status = v
	}

	var body any = in.Data
	if b, ok := form["body"]; ok && b != nil {
		body = b
	}

	out := in.Clone()
	out.Data[payload.DataHTTPResponse] = true
	out.Data["status"] = status
	out.Data["body"] = body
	return out, nil
}

// LogSink is a non-blocking terminal sink that logs whatever reaches it
type LogSink struct {
	node.Base
	logger *logger.Logger
}

// NewLogSink instantiates a log-sink from its config
func NewLogSink(cfg payload.NodeConfig, svc *node.Services) (node.Node, error) {
	n := &LogSink{
		Base: node.NewBase(cfg, node.KindNonBlocking, payload.PoolThread),
	}
	if svc != nil {
		n.logger = svc.Logger
	}
	return n, nil
}

func (n *LogSink) Run(ctx context.Context, in *payload.NodeOutput) (*payload.NodeOutput, error) {
	if n.logger != nil {
		n.logger.Info("log sink", "node_id", n.ID(), "data", in.Data)
	}
	return in, nil
}

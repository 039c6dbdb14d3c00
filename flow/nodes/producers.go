package nodes

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/lyzr/flowengine/common/storage"
	"github.com/lyzr/flowengine/flow/node"
	"github.com/lyzr/flowengine/flow/payload"
)

// CounterProducer emits an incrementing counter until it overflows its
// bound, then returns the termination sentinel
type CounterProducer struct {
	node.Base
	limit    int
	interval time.Duration
	current  atomic.Int64
}

// NewCounterProducer instantiates a counter-producer from its config
func NewCounterProducer(cfg payload.NodeConfig, svc *node.Services) (node.Node, error) {
	n := &CounterProducer{
		Base: node.NewBase(cfg, node.KindProducer, payload.PoolAsync),
	}
	if v, ok := asInt(cfg.Data.Form["limit"]); ok {
		n.limit = v
	}
	if v, ok := asInt(cfg.Data.Form["interval_ms"]); ok {
		n.interval = time.Duration(v) * time.Millisecond
	}
	return n, nil
}

func (n *CounterProducer) IsReady() error {
	return n.RequireFormFields("limit")
}

func (n *CounterProducer) Run(ctx context.Context, in *payload.NodeOutput) (*payload.NodeOutput, error) {
	current := n.current.Add(1)
	if current > int64(n.limit) {
		return payload.NewExecutionCompleted(), nil
	}

	if n.interval > 0 {
		timer := time.NewTimer(n.interval)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	out := payload.New()
	out.Data["counter"] = map[string]any{"current": int(current)}
	out.Metadata[payload.MetaSourceNode] = n.ID()
	return out, nil
}

func (n *CounterProducer) Cleanup(ctx context.Context, in *payload.NodeOutput) error {
	n.current.Store(0)
	return nil
}

// WebhookProducer starts a flow from an external trigger. In production
// mode it blocks on its pub/sub channel until a message is published; in
// API mode the request body arrives as the input payload and is used
// directly.
type WebhookProducer struct {
	node.Base
	channel string
	webhook *storage.WebhookChannel
}

// NewWebhookProducer instantiates a webhook-producer from its config
func NewWebhookProducer(cfg payload.NodeConfig, svc *node.Services) (node.Node, error) {
	n := &WebhookProducer{
		Base:    node.NewBase(cfg, node.KindProducer, payload.PoolAsync),
		channel: cfg.FormString("channel"),
	}
	if svc != nil {
		n.webhook = svc.Webhook
	}
	if n.channel == "" {
		n.channel = cfg.ID
	}
	return n, nil
}

func (n *WebhookProducer) Run(ctx context.Context, in *payload.NodeOutput) (*payload.NodeOutput, error) {
	if in != nil && in.IsAPIMode() {
		// Request body is the payload; no subscription in API mode
		in.Metadata[payload.MetaSourceNode] = n.ID()
		return in, nil
	}

	var message map[string]any
	if err := n.webhook.Subscribe(ctx, n.channel, &message); err != nil {
		return nil, err
	}

	out := payload.New()
	for k, v := range message {
		out.Data[k] = v
	}
	out.Metadata[payload.MetaSourceNode] = n.ID()
	return out, nil
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

package nodes

import (
	"context"
	"time"

	"github.com/lyzr/flowengine/common/storage"
	"github.com/lyzr/flowengine/flow/node"
	"github.com/lyzr/flowengine/flow/payload"
)

// queueName resolves the queue a node uses: the user-supplied form value
// wins, otherwise the name the queue mapper assigned at build time
func queueName(n node.Node) string {
	if name := n.Config().FormString("queue_name"); name != "" {
		return name
	}
	return n.Config().ConfigString("queue_name")
}

// QueueWriter pushes every payload it receives onto its queue. It is a
// non-blocking sink: the producer loop does not wait for downstream
// consumers.
type QueueWriter struct {
	node.Base
	queue *storage.QueueStore
}

// NewQueueWriter instantiates a queue-writer from its config
func NewQueueWriter(cfg payload.NodeConfig, svc *node.Services) (node.Node, error) {
	n := &QueueWriter{
		Base: node.NewBase(cfg, node.KindNonBlocking, payload.PoolThread),
	}
	if svc != nil {
		n.queue = svc.Queue
	}
	return n, nil
}

// QueueRole implements node.QueueEndpoint
func (n *QueueWriter) QueueRole() string { return "writer" }

func (n *QueueWriter) Run(ctx context.Context, in *payload.NodeOutput) (*payload.NodeOutput, error) {
	if err := n.queue.Push(ctx, queueName(n), in.Data); err != nil {
		return nil, err
	}
	return in, nil
}

// QueueReader is a producer that blocks on its queue and starts a
// pipeline iteration for each message. One reader per queue is the
// supported topology.
type QueueReader struct {
	node.Base
	queue   *storage.QueueStore
	timeout time.Duration
}

// NewQueueReader instantiates a queue-reader from its config
func NewQueueReader(cfg payload.NodeConfig, svc *node.Services) (node.Node, error) {
	n := &QueueReader{
		Base:    node.NewBase(cfg, node.KindProducer, payload.PoolAsync),
		timeout: storage.BlockForever,
	}
	if svc != nil {
		n.queue = svc.Queue
	}
	if v, ok := asInt(cfg.Data.Form["timeout_seconds"]); ok {
		n.timeout = time.Duration(v) * time.Second
	}
	return n, nil
}

// QueueRole implements node.QueueEndpoint
func (n *QueueReader) QueueRole() string { return "reader" }

func (n *QueueReader) Run(ctx context.Context, in *payload.NodeOutput) (*payload.NodeOutput, error) {
	var data map[string]any
	found, err := n.queue.Pop(ctx, queueName(n), n.timeout, &data)
	if err != nil {
		return nil, err
	}

	out := payload.New()
	out.Metadata[payload.MetaSourceNode] = n.ID()
	if !found {
		// Timed out with nothing pending; the loop just comes around
		return out, nil
	}
	for k, v := range data {
		out.Data[k] = v
	}
	return out, nil
}

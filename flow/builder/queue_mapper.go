package builder

import (
	"fmt"

	"github.com/lyzr/flowengine/common/logger"
	"github.com/lyzr/flowengine/flow/graph"
	"github.com/lyzr/flowengine/flow/node"
)

// ConfigQueueName is the engine-assigned config key holding a node's
// queue name
const ConfigQueueName = "queue_name"

// QueueMapper auto-assigns deterministic queue names to writer/reader
// pairs so users don't have to coordinate them. For every default edge
// from a queue writer to a queue reader, both endpoints get
// queue_{writerId}_{readerId} unless either side already carries a
// user-supplied name. A writer feeding multiple readers gets one name
// per pair; only the single-reader case is supported at runtime.
type QueueMapper struct {
	logger *logger.Logger
}

// NewQueueMapper creates the queue-mapping post-processor
func NewQueueMapper(log *logger.Logger) *QueueMapper {
	return &QueueMapper{logger: log}
}

// Process implements PostProcessor. Running it on an already-mapped
// graph is a no-op.
func (m *QueueMapper) Process(g *graph.FlowGraph) error {
	for _, fn := range g.Nodes() {
		writer, ok := queueEndpoint(fn, "writer")
		if !ok {
			continue
		}

		for _, child := range fn.Children(graph.BranchDefault) {
			reader, ok := queueEndpoint(child, "reader")
			if !ok {
				continue
			}

			if hasUserQueueName(writer) || hasUserQueueName(reader) {
				continue
			}

			name := fmt.Sprintf("queue_%s_%s", fn.ID, child.ID)
			writer.Config().SetConfig(ConfigQueueName, name)
			reader.Config().SetConfig(ConfigQueueName, name)

			m.logger.Debug("assigned queue name",
				"writer", fn.ID,
				"reader", child.ID,
				"queue", name)
		}
	}
	return nil
}

func queueEndpoint(fn *graph.FlowNode, role string) (node.QueueEndpoint, bool) {
	ep, ok := fn.Node.(node.QueueEndpoint)
	if !ok || ep.QueueRole() != role {
		return nil, false
	}
	return ep, true
}

func hasUserQueueName(n node.Node) bool {
	return n.Config().FormString(ConfigQueueName) != ""
}

package nodes

import (
	"github.com/lyzr/flowengine/flow/node"
)

// Built-in node type identifiers
const (
	TypeCounterProducer = "counter-producer"
	TypeWebhookProducer = "webhook-producer"
	TypeIfCondition     = "if-condition"
	TypeDataTransformer = "data-transformer"
	TypeHTTPResponse    = "http-response"
	TypeLogSink         = "log-sink"
	TypeQueueWriter     = "queue-writer"
	TypeQueueReader     = "queue-reader"
	TypeForEach         = "for-each"
)

// Register adds every built-in node type to the registry
func Register(reg *node.Registry) {
	reg.MustRegister(TypeCounterProducer, NewCounterProducer)
	reg.MustRegister(TypeWebhookProducer, NewWebhookProducer)
	reg.MustRegister(TypeIfCondition, NewIfCondition)
	reg.MustRegister(TypeDataTransformer, NewDataTransformer)
	reg.MustRegister(TypeHTTPResponse, NewHTTPResponseNode)
	reg.MustRegister(TypeLogSink, NewLogSink)
	reg.MustRegister(TypeQueueWriter, NewQueueWriter)
	reg.MustRegister(TypeQueueReader, NewQueueReader)
	reg.MustRegister(TypeForEach, NewForEach)
}

// NewDefaultRegistry returns a registry pre-populated with the built-in
// node set
func NewDefaultRegistry() *node.Registry {
	reg := node.NewRegistry()
	Register(reg)
	return reg
}

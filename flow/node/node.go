// Package node defines the runtime contract every workflow node
// implements, the base node with form-template rendering, and the
// registry that maps type identifiers to node factories.
package node

import (
	"context"

	"github.com/lyzr/flowengine/flow/payload"
)

// Kind discriminates the five node variants the runners switch on
type Kind int

const (
	// KindProducer starts a production loop iteration; no input ports
	KindProducer Kind = iota
	// KindBlocking transforms its input; the producer waits for it
	KindBlocking
	// KindNonBlocking is a terminal sink; recursion stops at it and the
	// producer does not wait for it before the next iteration
	KindNonBlocking
	// KindConditional routes to its "yes" or "no" branch after running
	KindConditional
	// KindLoop iterates a sub-DAG over its items array
	KindLoop
)

func (k Kind) String() string {
	switch k {
	case KindProducer:
		return "producer"
	case KindBlocking:
		return "blocking"
	case KindNonBlocking:
		return "non_blocking"
	case KindConditional:
		return "conditional"
	case KindLoop:
		return "loop"
	default:
		return "unknown"
	}
}

// WorkflowType is an execution mode a node supports
type WorkflowType string

const (
	WorkflowProduction WorkflowType = "production"
	WorkflowAPI        WorkflowType = "api"
)

// Port describes one input or output port
type Port struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// Node is the runtime contract the engine requires of every node
type Node interface {
	// ID returns the graph-unique node id
	ID() string
	// Type returns the registry identifier (kebab-case)
	Type() string
	// Kind returns the variant discriminator
	Kind() Kind
	// ExecutionPool returns the pool this node prefers
	ExecutionPool() payload.ExecutionPool
	// InputPorts and OutputPorts describe the port topology
	InputPorts() []Port
	OutputPorts() []Port
	// SupportedWorkflowTypes is a subset of {production, api}
	SupportedWorkflowTypes() []WorkflowType
	// Init is called once before the first Run on each runner's
	// reachable set
	Init(ctx context.Context) error
	// Run receives the upstream payload and returns its successor.
	// It may return an ExecutionCompleted sentinel.
	Run(ctx context.Context, in *payload.NodeOutput) (*payload.NodeOutput, error)
	// Cleanup is called at runner shutdown and whenever the node
	// receives a sentinel
	Cleanup(ctx context.Context, in *payload.NodeOutput) error
	// IsReady validates the node's configuration; on failure the
	// returned error carries the node's form errors
	IsReady() error
	// Config exposes the node's static configuration
	Config() *payload.NodeConfig
	// Validated marks/reports that IsReady already passed so Init can
	// skip redundant validation
	MarkValidated()
	Validated() bool
}

// Conditional is implemented by nodes that pick a "yes"/"no" route
type Conditional interface {
	Node
	// Route returns the branch key chosen by the last Run
	Route() string
}

// QueueEndpoint is implemented by nodes that read from or write to a
// named queue. The queue mapper assigns pair-deterministic names to
// writer/reader edges.
type QueueEndpoint interface {
	Node
	// QueueRole returns "writer" or "reader"
	QueueRole() string
}

// Default port sets shared by most nodes
var (
	DefaultInputPorts  = []Port{{ID: "input", Label: "Input"}}
	DefaultOutputPorts = []Port{{ID: "default", Label: "Output"}}

	ConditionalOutputPorts = []Port{
		{ID: "yes", Label: "Yes"},
		{ID: "no", Label: "No"},
	}

	LoopOutputPorts = []Port{
		{ID: "default", Label: "Done"},
		{ID: "subdag", Label: "Each item"},
	}
)

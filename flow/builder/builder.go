// Package builder translates external workflow JSON into a flow graph
// using the node registry, then applies post-processing passes (queue
// name assignment, readiness validation).
package builder

import (
	"errors"
	"fmt"
	"strings"

	"github.com/lyzr/flowengine/common/logger"
	"github.com/lyzr/flowengine/flow/graph"
	"github.com/lyzr/flowengine/flow/node"
	"github.com/lyzr/flowengine/flow/payload"
)

// WorkflowDefinition is the external JSON shape consumed by the builder
type WorkflowDefinition struct {
	Nodes []payload.NodeConfig `json:"nodes"`
	Edges []Edge               `json:"edges"`
	Env   map[string]any       `json:"env,omitempty"`
}

// Edge references two nodes by id; SourceHandle is the branch-key label
// before normalization
type Edge struct {
	Source       string `json:"source"`
	Target       string `json:"target"`
	SourceHandle string `json:"sourceHandle,omitempty"`
}

// PostProcessor is a pluggable pass that runs after graph construction
type PostProcessor interface {
	Process(g *graph.FlowGraph) error
}

// Builder builds flow graphs from workflow definitions
type Builder struct {
	registry       *node.Registry
	services       *node.Services
	logger         *logger.Logger
	postProcessors []PostProcessor
}

// New creates a builder. Post-processors run in order after every build.
func New(registry *node.Registry, services *node.Services, log *logger.Logger, postProcessors ...PostProcessor) *Builder {
	return &Builder{
		registry:       registry,
		services:       services,
		logger:         log,
		postProcessors: postProcessors,
	}
}

// Build translates a definition into a validated flow graph.
// Connections that reference unknown ids are skipped with a warning;
// self-loops, duplicate edges, duplicate node ids, unknown node types
// and cycles abort the build.
func (b *Builder) Build(def *WorkflowDefinition) (*graph.FlowGraph, error) {
	g := graph.New()

	for _, cfg := range def.Nodes {
		n, err := b.registry.New(cfg, b.services)
		if err != nil {
			return nil, fmt.Errorf("build failed: %w", err)
		}
		if _, err := g.AddNode(n); err != nil {
			return nil, fmt.Errorf("build failed: %w", err)
		}
	}

	for _, edge := range def.Edges {
		key := NormalizeBranchKey(edge.SourceHandle)
		if err := g.Connect(edge.Source, edge.Target, key); err != nil {
			if errors.Is(err, graph.ErrNodeNotFound) {
				b.logger.Warn("skipping connection to unknown node",
					"source", edge.Source,
					"target", edge.Target,
					"key", key)
				continue
			}
			return nil, fmt.Errorf("build failed: %w", err)
		}
	}

	if g.HasCycle() {
		return nil, fmt.Errorf("build failed: workflow graph contains a cycle")
	}

	for _, pp := range b.postProcessors {
		if err := pp.Process(g); err != nil {
			return nil, err
		}
	}

	return g, nil
}

// NormalizeBranchKey lowercases an edge's source-handle label; empty
// labels become "default"
func NormalizeBranchKey(handle string) string {
	key := strings.ToLower(strings.TrimSpace(handle))
	if key == "" {
		return graph.BranchDefault
	}
	return key
}

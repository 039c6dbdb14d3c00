// Package nodes ships the engine's built-in node set: producers,
// transforms, conditionals, queue endpoints, loop and response nodes.
// Heavyweight integrations (browser automation, third-party APIs) live
// outside the engine and register through the same registry.
package nodes

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/lyzr/flowengine/flow/payload"
)

// Evaluator evaluates conditional expressions using CEL (Common
// Expression Language), caching compiled programs per expression
type Evaluator struct {
	mu    sync.RWMutex
	cache map[string]cel.Program
}

// NewEvaluator creates a condition evaluator with caching
func NewEvaluator() *Evaluator {
	return &Evaluator{
		cache: make(map[string]cel.Program),
	}
}

// Evaluate runs the expression against a payload. Expressions see two
// variables: data and metadata.
func (e *Evaluator) Evaluate(expr string, in *payload.NodeOutput) (bool, error) {
	e.mu.RLock()
	prg, exists := e.cache[expr]
	e.mu.RUnlock()

	if !exists {
		var err error
		prg, err = e.compile(expr)
		if err != nil {
			return false, err
		}

		e.mu.Lock()
		e.cache[expr] = prg
		e.mu.Unlock()
	}

	out, _, err := prg.Eval(map[string]any{
		"data":     in.Data,
		"metadata": in.Metadata,
	})
	if err != nil {
		return false, fmt.Errorf("CEL evaluation error: %w", err)
	}

	result, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("CEL expression did not return boolean, got %T", out.Value())
	}
	return result, nil
}

// Compile checks an expression without evaluating it
func (e *Evaluator) Compile(expr string) error {
	e.mu.RLock()
	_, exists := e.cache[expr]
	e.mu.RUnlock()
	if exists {
		return nil
	}

	prg, err := e.compile(expr)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.cache[expr] = prg
	e.mu.Unlock()
	return nil
}

func (e *Evaluator) compile(expr string) (cel.Program, error) {
	env, err := cel.NewEnv(
		cel.Variable("data", cel.DynType),
		cel.Variable("metadata", cel.DynType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL env: %w", err)
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("CEL compilation error: %w", issues.Err())
	}

	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL program: %w", err)
	}
	return prg, nil
}

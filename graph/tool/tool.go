// Package tool defines the contract between the execution engine and
// the processing steps it orchestrates, plus the registry that binds
// node names to implementations.
package tool

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrNotRegistered is returned by Registry.Get for unknown tool names.
var ErrNotRegistered = errors.New("tool not registered")

// Result is the output of one tool invocation.
//
// The default contract is additive: Update is a partial state update
// merged key-by-key into the run's state, and keys not mentioned are
// left untouched. A tool that genuinely needs to prune keys sets
// Replace, which swaps the entire state for Update instead of merging.
type Result struct {
	// Update is the partial state update (or, with Replace, the full
	// replacement state). A nil or empty Update means "no change".
	Update map[string]any

	// Replace switches the merge to a wholesale state replacement.
	Replace bool
}

// Update wraps a partial update in a Result. A nil map is a valid
// "no change" result.
func Update(m map[string]any) Result {
	return Result{Update: m}
}

// Replace wraps a full replacement state in a Result.
func Replace(m map[string]any) Result {
	return Result{Update: m, Replace: true}
}

// Tool is a single processing step. It receives the run's current state
// for reading and returns its changes as a Result.
//
// Implementations must not mutate the input state in place; the
// returned Result is the sole channel for state changes. Any error is
// fatal to the run that invoked the tool (the run ends with
// status=error), never to the engine or to other runs.
type Tool interface {
	// Call executes the tool against the current state.
	Call(ctx context.Context, state map[string]any) (Result, error)
}

// Func adapts a plain function to the Tool interface.
//
// Example:
//
//	reg.Register("mark_ready", tool.Func(func(_ context.Context, state map[string]any) (tool.Result, error) {
//	    return tool.Update(map[string]any{"ready": true}), nil
//	}))
type Func func(ctx context.Context, state map[string]any) (Result, error)

// Call implements the Tool interface for Func.
func (f Func) Call(ctx context.Context, state map[string]any) (Result, error) {
	return f(ctx, state)
}

// Registry maps node names to tool implementations.
//
// It is populated by the surrounding application before any run starts
// and is read-only from the engine's perspective afterwards. The guard
// exists so that concurrent runs can resolve tools while a test or a
// late registration writes.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register stores t under name, overwriting any previous registration.
func (r *Registry) Register(name string, t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tools[name] = t
}

// RegisterFunc registers a plain function as a tool.
func (r *Registry) RegisterFunc(name string, f Func) {
	r.Register(name, f)
}

// Get returns the tool registered under name. An unknown name returns
// an error wrapping ErrNotRegistered.
func (r *Registry) Get(name string) (Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("tool %q: %w", name, ErrNotRegistered)
	}
	return t, nil
}

// Names returns the registered tool names, in no particular order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	return names
}

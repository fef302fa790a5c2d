package graph

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/stepflow-ai/stepflow/graph/emit"
	"github.com/stepflow-ai/stepflow/graph/store"
	"github.com/stepflow-ai/stepflow/graph/tool"
)

// DefaultMaxSteps is the default hard cap on node executions per run.
const DefaultMaxSteps = 1000

// Engine orchestrates tool execution over shared mutable state,
// following statically defined graphs.
//
// The engine owns three components:
//   - the Tool Registry binding node names to implementations,
//     populated by the application before runs begin;
//   - the Graph Store holding immutable definitions;
//   - the Run Store holding run records, visible to inspection from the
//     moment a run starts.
//
// A run executes synchronously in the caller's goroutine. Distinct runs
// may execute in parallel: the stores are guarded, each run owns an
// independent copy of state, and a run record's mutable fields are
// written only by the goroutine driving it.
//
// Example:
//
//	reg := tool.NewRegistry()
//	reg.RegisterFunc("greet", greet)
//
//	engine := graph.New(reg)
//	graphID, _ := engine.CreateGraph(ctx, []string{"greet"}, "greet", nil)
//	run, _ := engine.RunGraph(ctx, graphID, graph.State{"name": "world"})
type Engine struct {
	tools   *tool.Registry
	graphs  store.Store[*Graph]
	runs    store.Store[*RunRecord]
	emitter emit.Emitter
	metrics *Metrics
	opts    Options
	newID   func() string
}

// New creates an Engine around the given tool registry.
func New(tools *tool.Registry, opts ...Option) *Engine {
	e := &Engine{
		tools:   tools,
		graphs:  store.NewMemory[*Graph](),
		runs:    store.NewMemory[*RunRecord](),
		emitter: emit.NewNullEmitter(),
		opts:    Options{MaxSteps: DefaultMaxSteps},
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CreateGraph validates and stores a graph definition, returning its
// generated identifier.
//
// The whole definition is validated up front: start_node membership,
// edge sources, dangling successors, and incomplete conditional rules
// are all creation-time ValidationErrors. Nothing is stored on
// rejection.
func (e *Engine) CreateGraph(ctx context.Context, nodes []string, startNode string, edges map[string]EdgeRule) (string, error) {
	if err := validateGraph(nodes, startNode, edges); err != nil {
		return "", err
	}

	g := &Graph{
		ID:        e.newID(),
		Nodes:     append([]string(nil), nodes...),
		StartNode: startNode,
		Edges:     make(map[string]EdgeRule, len(edges)),
	}
	for node, rule := range edges {
		g.Edges[node] = rule
	}

	if err := e.graphs.Put(ctx, g.ID, g); err != nil {
		return "", fmt.Errorf("store graph: %w", err)
	}

	e.metrics.GraphCreated()
	e.emitter.Emit(emit.Event{GraphID: g.ID, Msg: emit.MsgGraphCreated})
	return g.ID, nil
}

// GetGraph returns a stored graph definition.
func (e *Engine) GetGraph(ctx context.Context, graphID string) (*Graph, error) {
	g, err := e.graphs.Get(ctx, graphID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, &NotFoundError{Kind: "graph", ID: graphID}
		}
		return nil, err
	}
	return g, nil
}

// RunGraph executes a graph synchronously to completion or error and
// returns the final run record.
//
// An unknown graph id returns a NotFoundError and creates no run. Any
// failure during execution (unregistered tool, tool error or panic,
// malformed conditional rule, context cancellation) turns the run into
// status=error with everything accumulated before the failure preserved
// in state and log; there is no rollback. The engine itself never
// fails: the error is reported through the record, not the return
// value.
func (e *Engine) RunGraph(ctx context.Context, graphID string, initial State) (*RunRecord, error) {
	g, err := e.GetGraph(ctx, graphID)
	if err != nil {
		return nil, err
	}

	run := &RunRecord{
		RunID:       e.newID(),
		GraphID:     g.ID,
		Status:      StatusRunning,
		CurrentNode: g.StartNode,
		State:       initial.Clone(),
		Log:         []NodeLogEntry{},
	}
	// Register immediately so inspection sees the run while it executes.
	if err := e.runs.Put(ctx, run.RunID, run); err != nil {
		return nil, fmt.Errorf("store run: %w", err)
	}

	e.metrics.RunStarted()
	e.emitter.Emit(emit.Event{RunID: run.RunID, GraphID: g.ID, Msg: emit.MsgRunStart})

	if err := e.execute(ctx, g, run); err != nil {
		run.finish(StatusError, err.Error())
		e.emitter.Emit(emit.Event{
			RunID:   run.RunID,
			GraphID: g.ID,
			Msg:     emit.MsgRunError,
			Meta:    map[string]any{"error": err.Error(), "steps": run.Steps()},
		})
	} else {
		run.finish(StatusCompleted, "")
		e.emitter.Emit(emit.Event{
			RunID:   run.RunID,
			GraphID: g.ID,
			Msg:     emit.MsgRunComplete,
			Meta:    map[string]any{"steps": run.Steps()},
		})
	}
	e.metrics.RunFinished(run.Status, run.Steps())

	return run, nil
}

// GetRun returns a consistent snapshot of a run record. A run still in
// flight (started by a concurrent caller) is observed with
// status=running and whatever log it has accumulated.
func (e *Engine) GetRun(ctx context.Context, runID string) (*RunRecord, error) {
	run, err := e.runs.Get(ctx, runID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, &NotFoundError{Kind: "run", ID: runID}
		}
		return nil, err
	}
	return run.Snapshot(), nil
}

// execute drives the step loop for one run.
//
// Each iteration executes the current node's tool, merges its result,
// logs a post-merge snapshot, and resolves the successor from the
// node's edge rule against the post-merge state. The loop stops on an
// empty or "end" successor, or silently once MaxSteps node executions
// have happened; cap exhaustion is normal termination, not an error.
func (e *Engine) execute(ctx context.Context, g *Graph, run *RunRecord) error {
	current := g.StartNode
	for steps := 0; current != "" && steps < e.opts.MaxSteps; steps++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		run.setCurrentNode(current)

		impl, err := e.tools.Get(current)
		if err != nil {
			return fmt.Errorf("node %s: %w", current, err)
		}

		started := time.Now()
		result, err := callTool(ctx, impl, run.State)
		if err != nil {
			e.metrics.ObserveStep(current, time.Since(started), "error")
			return fmt.Errorf("node %s: %w", current, err)
		}
		e.metrics.ObserveStep(current, time.Since(started), "success")

		// Merge and log; edge resolution sees the post-merge state.
		postMerge := run.recordStep(current, result.Update, result.Replace)

		e.emitter.Emit(emit.Event{
			RunID:   run.RunID,
			GraphID: g.ID,
			Step:    steps + 1,
			NodeID:  current,
			Msg:     emit.MsgNodeDone,
			Meta:    map[string]any{"duration_ms": time.Since(started).Milliseconds()},
		})

		rule, ok := g.Edges[current]
		if !ok {
			// No outgoing rule: terminate after this node.
			return nil
		}
		next, err := rule.Resolve(postMerge)
		if err != nil {
			return fmt.Errorf("node %s: %w", current, err)
		}
		if next == "" || next == EndNode {
			return nil
		}
		current = next
	}
	return nil
}

// callTool invokes a tool and contains panics, so a misbehaving tool
// fails its run instead of crashing the engine.
func callTool(ctx context.Context, impl tool.Tool, state State) (result tool.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tool panic: %v", r)
		}
	}()
	return impl.Call(ctx, state)
}

// RunCount returns the number of run records held by the Run Store.
func (e *Engine) RunCount(ctx context.Context) (int, error) {
	return e.runs.Len(ctx)
}

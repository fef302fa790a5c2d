package graph

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stepflow-ai/stepflow/graph/emit"
	"github.com/stepflow-ai/stepflow/graph/tool"
)

// sequentialIDs returns a deterministic ID generator for tests.
func sequentialIDs(prefix string) func() string {
	var n int
	var mu sync.Mutex
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}

// setTool registers a tool that merges the given update.
func setTool(reg *tool.Registry, name string, update map[string]any) {
	reg.RegisterFunc(name, func(_ context.Context, _ map[string]any) (tool.Result, error) {
		return tool.Update(update), nil
	})
}

func TestCreateGraph(t *testing.T) {
	ctx := context.Background()

	t.Run("valid graph returns distinct ids", func(t *testing.T) {
		engine := New(tool.NewRegistry())

		seen := make(map[string]bool)
		for i := 0; i < 5; i++ {
			id, err := engine.CreateGraph(ctx, []string{"a", "b"}, "a", map[string]EdgeRule{
				"a": LinearRule{Next: "b"},
			})
			if err != nil {
				t.Fatalf("CreateGraph failed: %v", err)
			}
			if id == "" {
				t.Fatal("expected non-empty graph id")
			}
			if seen[id] {
				t.Fatalf("graph id %q issued twice", id)
			}
			seen[id] = true
		}
	})

	t.Run("start node not in nodes is a validation error", func(t *testing.T) {
		engine := New(tool.NewRegistry())

		_, err := engine.CreateGraph(ctx, []string{"a", "b"}, "c", nil)
		if err == nil {
			t.Fatal("expected error")
		}
		if !IsValidation(err) {
			t.Fatalf("expected ValidationError, got %T: %v", err, err)
		}
	})

	t.Run("nothing is stored on rejection", func(t *testing.T) {
		engine := New(tool.NewRegistry(), WithIDGenerator(sequentialIDs("g")))

		_, err := engine.CreateGraph(ctx, []string{"a"}, "missing", nil)
		if err == nil {
			t.Fatal("expected error")
		}

		// The id that would have been issued must not resolve.
		if _, err := engine.GetGraph(ctx, "g-1"); !IsNotFound(err) {
			t.Fatalf("expected NotFoundError, got %v", err)
		}
	})

	t.Run("edge to unknown node is rejected", func(t *testing.T) {
		engine := New(tool.NewRegistry())

		_, err := engine.CreateGraph(ctx, []string{"a"}, "a", map[string]EdgeRule{
			"a": LinearRule{Next: "ghost"},
		})
		if !IsValidation(err) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
	})

	t.Run("conditional rule missing a branch is rejected", func(t *testing.T) {
		engine := New(tool.NewRegistry())

		_, err := engine.CreateGraph(ctx, []string{"a"}, "a", map[string]EdgeRule{
			"a": ConditionalRule{ConditionKey: "ready", OnTrue: EndNode},
		})
		if !IsValidation(err) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
	})

	t.Run("edge source outside node set is rejected", func(t *testing.T) {
		engine := New(tool.NewRegistry())

		_, err := engine.CreateGraph(ctx, []string{"a"}, "a", map[string]EdgeRule{
			"b": LinearRule{},
		})
		if !IsValidation(err) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
	})

	t.Run("empty node set is rejected", func(t *testing.T) {
		engine := New(tool.NewRegistry())

		_, err := engine.CreateGraph(ctx, nil, "a", nil)
		if !IsValidation(err) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
	})
}

func TestRunGraph_SingleNode(t *testing.T) {
	ctx := context.Background()
	reg := tool.NewRegistry()
	setTool(reg, "X", map[string]any{"done": true})
	engine := New(reg)

	graphID, err := engine.CreateGraph(ctx, []string{"X"}, "X", nil)
	if err != nil {
		t.Fatalf("CreateGraph failed: %v", err)
	}

	run, err := engine.RunGraph(ctx, graphID, nil)
	if err != nil {
		t.Fatalf("RunGraph failed: %v", err)
	}

	if run.Status != StatusCompleted {
		t.Errorf("expected status completed, got %s (%s)", run.Status, run.ErrorMessage)
	}
	if run.CurrentNode != "" {
		t.Errorf("expected current node cleared, got %q", run.CurrentNode)
	}
	if len(run.Log) != 1 {
		t.Fatalf("expected exactly one log entry, got %d", len(run.Log))
	}
	if run.Log[0].Node != "X" {
		t.Errorf("expected log entry for X, got %q", run.Log[0].Node)
	}
	if run.State["done"] != true {
		t.Errorf("expected merged state, got %v", run.State)
	}
}

func TestRunGraph_AdditiveMerge(t *testing.T) {
	ctx := context.Background()
	reg := tool.NewRegistry()
	setTool(reg, "first", map[string]any{"a": 1})
	setTool(reg, "second", map[string]any{"b": 2})
	setTool(reg, "third", map[string]any{"a": 2})
	engine := New(reg)

	graphID, err := engine.CreateGraph(ctx, []string{"first", "second", "third"}, "first", map[string]EdgeRule{
		"first":  LinearRule{Next: "second"},
		"second": LinearRule{Next: "third"},
	})
	if err != nil {
		t.Fatalf("CreateGraph failed: %v", err)
	}

	run, err := engine.RunGraph(ctx, graphID, nil)
	if err != nil {
		t.Fatalf("RunGraph failed: %v", err)
	}

	if run.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s (%s)", run.Status, run.ErrorMessage)
	}
	if run.State["a"] != 2 {
		t.Errorf("expected a overwritten to 2, got %v", run.State["a"])
	}
	if run.State["b"] != 2 {
		t.Errorf("expected b preserved as 2, got %v", run.State["b"])
	}

	// Intermediate snapshots show the state as of each step.
	if run.Log[0].State["a"] != 1 {
		t.Errorf("first snapshot should hold a=1, got %v", run.Log[0].State["a"])
	}
	if _, ok := run.Log[0].State["b"]; ok {
		t.Error("first snapshot should not contain b yet")
	}
	if run.Log[2].State["a"] != 2 || run.Log[2].State["b"] != 2 {
		t.Errorf("final snapshot wrong: %v", run.Log[2].State)
	}
}

func TestRunGraph_ConditionalSeesPostMergeState(t *testing.T) {
	ctx := context.Background()
	reg := tool.NewRegistry()
	setTool(reg, "X", map[string]any{"ready": true})
	engine := New(reg)

	graphID, err := engine.CreateGraph(ctx, []string{"X"}, "X", map[string]EdgeRule{
		"X": ConditionalRule{ConditionKey: "ready", OnTrue: EndNode, OnFalse: "X"},
	})
	if err != nil {
		t.Fatalf("CreateGraph failed: %v", err)
	}

	// ready is absent from the initial state; the branch must see the
	// value produced on this very step.
	run, err := engine.RunGraph(ctx, graphID, nil)
	if err != nil {
		t.Fatalf("RunGraph failed: %v", err)
	}

	if run.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s (%s)", run.Status, run.ErrorMessage)
	}
	if len(run.Log) != 1 {
		t.Errorf("expected run to terminate on the first step, got %d steps", len(run.Log))
	}
}

func TestRunGraph_StepCap(t *testing.T) {
	ctx := context.Background()
	reg := tool.NewRegistry()
	// The exit condition is never satisfiable.
	setTool(reg, "loop", map[string]any{"ready": false})
	engine := New(reg)

	graphID, err := engine.CreateGraph(ctx, []string{"loop"}, "loop", map[string]EdgeRule{
		"loop": ConditionalRule{ConditionKey: "ready", OnTrue: EndNode, OnFalse: "loop"},
	})
	if err != nil {
		t.Fatalf("CreateGraph failed: %v", err)
	}

	run, err := engine.RunGraph(ctx, graphID, nil)
	if err != nil {
		t.Fatalf("RunGraph failed: %v", err)
	}

	// Cap exhaustion is normal termination, not an error.
	if run.Status != StatusCompleted {
		t.Errorf("expected completed at the step cap, got %s (%s)", run.Status, run.ErrorMessage)
	}
	if len(run.Log) != DefaultMaxSteps {
		t.Errorf("expected exactly %d log entries, got %d", DefaultMaxSteps, len(run.Log))
	}
}

func TestRunGraph_CustomStepCap(t *testing.T) {
	ctx := context.Background()
	reg := tool.NewRegistry()
	setTool(reg, "loop", nil)
	engine := New(reg, WithMaxSteps(7))

	graphID, err := engine.CreateGraph(ctx, []string{"loop"}, "loop", map[string]EdgeRule{
		"loop": LinearRule{Next: "loop"},
	})
	if err != nil {
		t.Fatalf("CreateGraph failed: %v", err)
	}

	run, err := engine.RunGraph(ctx, graphID, nil)
	if err != nil {
		t.Fatalf("RunGraph failed: %v", err)
	}
	if len(run.Log) != 7 {
		t.Errorf("expected 7 log entries, got %d", len(run.Log))
	}
	if run.Status != StatusCompleted {
		t.Errorf("expected completed, got %s", run.Status)
	}
}

func TestRunGraph_UnknownGraph(t *testing.T) {
	ctx := context.Background()
	engine := New(tool.NewRegistry())

	before, err := engine.RunCount(ctx)
	if err != nil {
		t.Fatalf("RunCount failed: %v", err)
	}

	_, err = engine.RunGraph(ctx, "no-such-graph", nil)
	if !IsNotFound(err) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}

	after, err := engine.RunCount(ctx)
	if err != nil {
		t.Fatalf("RunCount failed: %v", err)
	}
	if after != before {
		t.Errorf("run store size changed from %d to %d; no record should be created", before, after)
	}
}

func TestRunGraph_UnregisteredTool(t *testing.T) {
	ctx := context.Background()
	reg := tool.NewRegistry()
	setTool(reg, "known", map[string]any{"step": "known"})
	engine := New(reg)

	graphID, err := engine.CreateGraph(ctx, []string{"known", "missing"}, "known", map[string]EdgeRule{
		"known": LinearRule{Next: "missing"},
	})
	if err != nil {
		t.Fatalf("CreateGraph failed: %v", err)
	}

	run, err := engine.RunGraph(ctx, graphID, nil)
	if err != nil {
		t.Fatalf("RunGraph should report tool failures via the record, got %v", err)
	}

	if run.Status != StatusError {
		t.Fatalf("expected status error, got %s", run.Status)
	}
	if !strings.Contains(run.ErrorMessage, "missing") {
		t.Errorf("error message should name the failing node: %q", run.ErrorMessage)
	}
	// Progress before the failure is preserved, no rollback.
	if len(run.Log) != 1 || run.Log[0].Node != "known" {
		t.Errorf("expected the completed step to survive, got %+v", run.Log)
	}
	if run.State["step"] != "known" {
		t.Errorf("expected accumulated state to survive, got %v", run.State)
	}
	if run.CurrentNode != "" {
		t.Errorf("expected current node cleared on terminal status, got %q", run.CurrentNode)
	}
}

func TestRunGraph_ToolError(t *testing.T) {
	ctx := context.Background()
	reg := tool.NewRegistry()
	setTool(reg, "ok", map[string]any{"progress": 1})
	reg.RegisterFunc("boom", func(context.Context, map[string]any) (tool.Result, error) {
		return tool.Result{}, errors.New("kaput")
	})
	engine := New(reg)

	graphID, err := engine.CreateGraph(ctx, []string{"ok", "boom"}, "ok", map[string]EdgeRule{
		"ok": LinearRule{Next: "boom"},
	})
	if err != nil {
		t.Fatalf("CreateGraph failed: %v", err)
	}

	run, err := engine.RunGraph(ctx, graphID, nil)
	if err != nil {
		t.Fatalf("RunGraph failed: %v", err)
	}

	if run.Status != StatusError {
		t.Fatalf("expected status error, got %s", run.Status)
	}
	if !strings.Contains(run.ErrorMessage, "node boom") || !strings.Contains(run.ErrorMessage, "kaput") {
		t.Errorf("unexpected error message: %q", run.ErrorMessage)
	}
	if run.State["progress"] != 1 {
		t.Errorf("state accumulated before the failure must survive, got %v", run.State)
	}
}

func TestRunGraph_ToolPanicIsContained(t *testing.T) {
	ctx := context.Background()
	reg := tool.NewRegistry()
	reg.RegisterFunc("panics", func(context.Context, map[string]any) (tool.Result, error) {
		panic("tool went sideways")
	})
	engine := New(reg)

	graphID, err := engine.CreateGraph(ctx, []string{"panics"}, "panics", nil)
	if err != nil {
		t.Fatalf("CreateGraph failed: %v", err)
	}

	run, err := engine.RunGraph(ctx, graphID, nil)
	if err != nil {
		t.Fatalf("RunGraph failed: %v", err)
	}
	if run.Status != StatusError {
		t.Fatalf("expected status error, got %s", run.Status)
	}
	if !strings.Contains(run.ErrorMessage, "tool went sideways") {
		t.Errorf("expected panic message in error, got %q", run.ErrorMessage)
	}
}

func TestRunGraph_ReplaceVariant(t *testing.T) {
	ctx := context.Background()
	reg := tool.NewRegistry()
	setTool(reg, "fill", map[string]any{"keep": 1, "drop": 2})
	reg.RegisterFunc("prune", func(_ context.Context, state map[string]any) (tool.Result, error) {
		return tool.Replace(map[string]any{"keep": state["keep"]}), nil
	})
	engine := New(reg)

	graphID, err := engine.CreateGraph(ctx, []string{"fill", "prune"}, "fill", map[string]EdgeRule{
		"fill": LinearRule{Next: "prune"},
	})
	if err != nil {
		t.Fatalf("CreateGraph failed: %v", err)
	}

	run, err := engine.RunGraph(ctx, graphID, State{"seed": true})
	if err != nil {
		t.Fatalf("RunGraph failed: %v", err)
	}

	if run.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s (%s)", run.Status, run.ErrorMessage)
	}
	if len(run.State) != 1 || run.State["keep"] != 1 {
		t.Errorf("replace should prune all unmentioned keys, got %v", run.State)
	}
	// The pre-replace snapshot still holds the full state.
	if run.Log[0].State["drop"] != 2 || run.Log[0].State["seed"] != true {
		t.Errorf("earlier snapshot must be unaffected by replace, got %v", run.Log[0].State)
	}
}

func TestRunGraph_InitialStateIsNotAliased(t *testing.T) {
	ctx := context.Background()
	reg := tool.NewRegistry()
	setTool(reg, "X", map[string]any{"added": true})
	engine := New(reg)

	graphID, err := engine.CreateGraph(ctx, []string{"X"}, "X", nil)
	if err != nil {
		t.Fatalf("CreateGraph failed: %v", err)
	}

	initial := State{"seed": 1}
	run, err := engine.RunGraph(ctx, graphID, initial)
	if err != nil {
		t.Fatalf("RunGraph failed: %v", err)
	}

	if _, ok := initial["added"]; ok {
		t.Error("the caller's initial state must not be mutated by the run")
	}
	if run.State["seed"] != 1 {
		t.Errorf("initial state should seed the run, got %v", run.State)
	}
}

func TestRunGraph_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	reg := tool.NewRegistry()
	setTool(reg, "loop", nil)
	engine := New(reg)

	graphID, err := engine.CreateGraph(ctx, []string{"loop"}, "loop", map[string]EdgeRule{
		"loop": LinearRule{Next: "loop"},
	})
	if err != nil {
		t.Fatalf("CreateGraph failed: %v", err)
	}

	cancel()
	run, err := engine.RunGraph(context.Background(), graphID, nil)
	if err != nil {
		t.Fatalf("RunGraph failed: %v", err)
	}
	if run.Status != StatusCompleted {
		t.Fatalf("sanity: uncancelled run should hit the cap, got %s", run.Status)
	}

	run, err = engine.RunGraph(ctx, graphID, nil)
	if err != nil {
		t.Fatalf("RunGraph failed: %v", err)
	}
	if run.Status != StatusError {
		t.Errorf("expected cancelled run to end in status error, got %s", run.Status)
	}
}

func TestRunGraph_MalformedConditionalAtRuntime(t *testing.T) {
	// Graphs assembled directly in Go bypass CreateGraph validation;
	// the resolver guard must still fail the step cleanly.
	rule := ConditionalRule{ConditionKey: "flag", OnTrue: EndNode}
	if _, err := rule.Resolve(State{"flag": true}); err == nil {
		t.Fatal("expected error for rule missing a branch")
	}
}

func TestGetRun(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown run id", func(t *testing.T) {
		engine := New(tool.NewRegistry())

		_, err := engine.GetRun(ctx, "no-such-run")
		if !IsNotFound(err) {
			t.Fatalf("expected NotFoundError, got %v", err)
		}
	})

	t.Run("returns an isolated snapshot", func(t *testing.T) {
		reg := tool.NewRegistry()
		setTool(reg, "X", map[string]any{"value": 1})
		engine := New(reg)

		graphID, err := engine.CreateGraph(ctx, []string{"X"}, "X", nil)
		if err != nil {
			t.Fatalf("CreateGraph failed: %v", err)
		}
		run, err := engine.RunGraph(ctx, graphID, nil)
		if err != nil {
			t.Fatalf("RunGraph failed: %v", err)
		}

		snap, err := engine.GetRun(ctx, run.RunID)
		if err != nil {
			t.Fatalf("GetRun failed: %v", err)
		}
		if snap.Status != StatusCompleted || snap.State["value"] != 1 {
			t.Fatalf("unexpected snapshot: %+v", snap)
		}

		// Mutating the snapshot must not leak into the stored record.
		snap.State["value"] = 99
		again, err := engine.GetRun(ctx, run.RunID)
		if err != nil {
			t.Fatalf("GetRun failed: %v", err)
		}
		if again.State["value"] != 1 {
			t.Errorf("stored record was mutated through a snapshot: %v", again.State)
		}
	})
}

func TestRunGraph_EmitsEvents(t *testing.T) {
	ctx := context.Background()
	reg := tool.NewRegistry()
	setTool(reg, "a", nil)
	setTool(reg, "b", nil)
	buffer := emit.NewBufferedEmitter()
	engine := New(reg, WithEmitter(buffer))

	graphID, err := engine.CreateGraph(ctx, []string{"a", "b"}, "a", map[string]EdgeRule{
		"a": LinearRule{Next: "b"},
	})
	if err != nil {
		t.Fatalf("CreateGraph failed: %v", err)
	}

	run, err := engine.RunGraph(ctx, graphID, nil)
	if err != nil {
		t.Fatalf("RunGraph failed: %v", err)
	}

	history := buffer.History(run.RunID)
	if len(history) != 4 {
		t.Fatalf("expected start + 2 nodes + complete, got %d events: %+v", len(history), history)
	}
	if history[0].Msg != emit.MsgRunStart {
		t.Errorf("expected run_start first, got %q", history[0].Msg)
	}
	if history[1].Msg != emit.MsgNodeDone || history[1].NodeID != "a" || history[1].Step != 1 {
		t.Errorf("unexpected first node event: %+v", history[1])
	}
	if history[2].NodeID != "b" || history[2].Step != 2 {
		t.Errorf("unexpected second node event: %+v", history[2])
	}
	if history[3].Msg != emit.MsgRunComplete {
		t.Errorf("expected run_completed last, got %q", history[3].Msg)
	}
	if history[3].Meta["steps"] != 2 {
		t.Errorf("completion event should carry the step count, got %v", history[3].Meta)
	}
}

func TestRunGraph_EmitsErrorEvent(t *testing.T) {
	ctx := context.Background()
	reg := tool.NewRegistry()
	reg.RegisterFunc("boom", func(context.Context, map[string]any) (tool.Result, error) {
		return tool.Result{}, errors.New("kaput")
	})
	buffer := emit.NewBufferedEmitter()
	engine := New(reg, WithEmitter(buffer))

	graphID, err := engine.CreateGraph(ctx, []string{"boom"}, "boom", nil)
	if err != nil {
		t.Fatalf("CreateGraph failed: %v", err)
	}

	run, err := engine.RunGraph(ctx, graphID, nil)
	if err != nil {
		t.Fatalf("RunGraph failed: %v", err)
	}

	failures := buffer.HistoryByMsg(run.RunID, emit.MsgRunError)
	if len(failures) != 1 {
		t.Fatalf("expected one run_error event, got %d", len(failures))
	}
	msg, _ := failures[0].Meta["error"].(string)
	if !strings.Contains(msg, "kaput") {
		t.Errorf("error event should carry the failure, got %v", failures[0].Meta)
	}
}

func TestRunGraph_ConcurrentRuns(t *testing.T) {
	ctx := context.Background()
	reg := tool.NewRegistry()
	reg.RegisterFunc("work", func(_ context.Context, state map[string]any) (tool.Result, error) {
		id, _ := state["id"].(int)
		return tool.Update(map[string]any{"result": id * 2}), nil
	})
	engine := New(reg)

	graphID, err := engine.CreateGraph(ctx, []string{"work"}, "work", nil)
	if err != nil {
		t.Fatalf("CreateGraph failed: %v", err)
	}

	const n = 16
	var wg sync.WaitGroup
	results := make([]*RunRecord, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			run, err := engine.RunGraph(ctx, graphID, State{"id": i})
			if err != nil {
				t.Errorf("run %d failed: %v", i, err)
				return
			}
			results[i] = run
		}(i)
	}
	wg.Wait()

	for i, run := range results {
		if run == nil {
			continue
		}
		if run.Status != StatusCompleted {
			t.Errorf("run %d: expected completed, got %s", i, run.Status)
		}
		if run.State["result"] != i*2 {
			t.Errorf("run %d: state leaked between runs: %v", i, run.State)
		}
	}

	count, err := engine.RunCount(ctx)
	if err != nil {
		t.Fatalf("RunCount failed: %v", err)
	}
	if count != n {
		t.Errorf("expected %d run records, got %d", n, count)
	}
}

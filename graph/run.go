package graph

import "sync"

// Status is the lifecycle state of a run. Once a run reaches a terminal
// status (completed or error) it never changes again.
type Status string

// Run statuses.
const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

// Terminal reports whether the status is completed or error.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// NodeLogEntry records one executed node together with a snapshot of
// the state as it existed immediately after that node's result was
// merged in. Snapshots are independent copies; later mutation of the
// run's state never retroactively alters earlier entries.
type NodeLogEntry struct {
	Node  string `json:"node"`
	State State  `json:"state"`
}

// RunRecord is one mutable execution instance of a Graph.
//
// A record is mutated only by the single goroutine driving its run.
// All mutation goes through the record's mutex so that Snapshot can be
// called safely from other goroutines (e.g. an inspection request
// arriving while the run is still in flight).
type RunRecord struct {
	mu sync.Mutex

	// RunID is the unique identifier assigned when the run starts.
	RunID string `json:"run_id"`

	// GraphID references the graph being executed. The record does not
	// own the graph.
	GraphID string `json:"graph_id"`

	// Status is running until the run terminates.
	Status Status `json:"status"`

	// CurrentNode is the node being executed. It is cleared when the
	// run reaches a terminal status; the failing node of an errored run
	// is preserved in the ErrorMessage prefix.
	CurrentNode string `json:"current_node,omitempty"`

	// State is the shared key-value mapping threaded through the run.
	State State `json:"state"`

	// Log is the append-only sequence of per-node snapshots.
	Log []NodeLogEntry `json:"log"`

	// ErrorMessage describes the failure. Set only on status=error.
	ErrorMessage string `json:"error_message,omitempty"`
}

// Snapshot returns a consistent copy of the record, safe to read and
// serialize while the run is still being driven. Log entry states are
// shared with the original; they are never mutated after being
// appended.
func (r *RunRecord) Snapshot() *RunRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := &RunRecord{
		RunID:        r.RunID,
		GraphID:      r.GraphID,
		Status:       r.Status,
		CurrentNode:  r.CurrentNode,
		State:        r.State.Clone(),
		Log:          make([]NodeLogEntry, len(r.Log)),
		ErrorMessage: r.ErrorMessage,
	}
	copy(cp.Log, r.Log)
	return cp
}

// setCurrentNode marks the node about to execute.
func (r *RunRecord) setCurrentNode(node string) {
	r.mu.Lock()
	r.CurrentNode = node
	r.mu.Unlock()
}

// recordStep merges a tool result into the state (or replaces the state
// wholesale) and appends the post-merge snapshot to the log. It returns
// the snapshot, which is also the state edge resolution must see.
func (r *RunRecord) recordStep(node string, update map[string]any, replace bool) State {
	r.mu.Lock()
	defer r.mu.Unlock()

	if replace {
		r.State = State(update).Clone()
	} else {
		r.State.Merge(update)
	}
	snapshot := r.State.Clone()
	r.Log = append(r.Log, NodeLogEntry{Node: node, State: snapshot})
	return snapshot
}

// finish transitions the record to a terminal status. Calling finish on
// an already-terminal record is a no-op, preserving the invariant that
// terminal statuses never change.
func (r *RunRecord) finish(status Status, errMsg string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.Status.Terminal() {
		return
	}
	r.Status = status
	r.CurrentNode = ""
	r.ErrorMessage = errMsg
}

// Steps returns the number of executed steps (log length).
func (r *RunRecord) Steps() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Log)
}

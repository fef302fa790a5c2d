// Package emit provides observability events and pluggable emitters for
// graph execution.
package emit

// Event messages produced by the engine.
const (
	MsgGraphCreated = "graph_created"
	MsgRunStart     = "run_start"
	MsgNodeDone     = "node_completed"
	MsgRunComplete  = "run_completed"
	MsgRunError     = "run_error"
)

// Event is one observability record emitted during graph creation or
// run execution.
//
// Events are delivered to an Emitter, which may log them, turn them
// into spans, buffer them for inspection, or drop them.
type Event struct {
	// RunID identifies the run that emitted this event. Empty for
	// graph-level events.
	RunID string `json:"run_id,omitempty"`

	// GraphID identifies the graph involved.
	GraphID string `json:"graph_id,omitempty"`

	// Step is the 1-indexed step number within the run. Zero for
	// run-level and graph-level events.
	Step int `json:"step,omitempty"`

	// NodeID identifies the node involved, when the event concerns a
	// single node.
	NodeID string `json:"node_id,omitempty"`

	// Msg is the event name, one of the Msg* constants.
	Msg string `json:"msg"`

	// Meta carries additional structured data. Common keys:
	//   - "duration_ms": step execution duration
	//   - "error": failure description
	//   - "steps": total steps of a finished run
	Meta map[string]any `json:"meta,omitempty"`
}

package httpapi

import "github.com/stepflow-ai/stepflow/graph"

// GraphCreateRequest is the body of POST /graph/create.
type GraphCreateRequest struct {
	Nodes     []string                  `json:"nodes"`
	StartNode string                    `json:"start_node"`
	Edges     map[string]graph.RuleSpec `json:"edges"`
}

// GraphCreateResponse is the reply to a successful graph creation.
type GraphCreateResponse struct {
	GraphID string `json:"graph_id"`
}

// GraphRunRequest is the body of POST /graph/run.
type GraphRunRequest struct {
	GraphID      string      `json:"graph_id"`
	InitialState graph.State `json:"initial_state"`
}

// GraphRunResponse is the reply to a finished run. The run may have
// terminated in either terminal status; Status and ErrorMessage say
// which.
type GraphRunResponse struct {
	RunID        string               `json:"run_id"`
	Status       graph.Status         `json:"status"`
	FinalState   graph.State          `json:"final_state"`
	Log          []graph.NodeLogEntry `json:"log"`
	ErrorMessage string               `json:"error_message,omitempty"`
}

// RunStateResponse is the reply of GET /graph/state/{runID}.
type RunStateResponse struct {
	RunID        string               `json:"run_id"`
	Status       graph.Status         `json:"status"`
	CurrentNode  string               `json:"current_node,omitempty"`
	State        graph.State          `json:"state"`
	Log          []graph.NodeLogEntry `json:"log"`
	ErrorMessage string               `json:"error_message,omitempty"`
}

// errorResponse is the JSON error body, {"detail": ...}.
type errorResponse struct {
	Detail string `json:"detail"`
}

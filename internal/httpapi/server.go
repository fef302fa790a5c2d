// Package httpapi exposes the engine's create/run/inspect operations as
// a JSON API over HTTP.
package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/stepflow-ai/stepflow/graph"
)

// Server holds the handler dependencies.
type Server struct {
	engine *graph.Engine
	log    *slog.Logger
}

// NewHandler builds the HTTP handler for the engine.
//
// Routes:
//
//	POST /graph/create       create a graph definition
//	POST /graph/run          run a graph to completion
//	GET  /graph/state/{runID} inspect a run
//	GET  /                   health message
func NewHandler(engine *graph.Engine, log *slog.Logger) http.Handler {
	s := &Server{engine: engine, log: log}

	r := chi.NewRouter()
	r.Post("/graph/create", s.createGraph)
	r.Post("/graph/run", s.runGraph)
	r.Get("/graph/state/{runID}", s.getRunState)
	r.Get("/", s.root)
	return r
}

func (s *Server) createGraph(w http.ResponseWriter, r *http.Request) {
	var req GraphCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	edges, err := graph.RulesFromSpecs(req.Edges)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	graphID, err := s.engine.CreateGraph(r.Context(), req.Nodes, req.StartNode, edges)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	s.log.Info("graph created", "graph_id", graphID, "nodes", len(req.Nodes))
	s.writeJSON(w, http.StatusOK, GraphCreateResponse{GraphID: graphID})
}

func (s *Server) runGraph(w http.ResponseWriter, r *http.Request) {
	var req GraphRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	run, err := s.engine.RunGraph(r.Context(), req.GraphID, req.InitialState)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	s.log.Info("run finished",
		"run_id", run.RunID, "graph_id", run.GraphID,
		"status", run.Status, "steps", len(run.Log))
	s.writeJSON(w, http.StatusOK, GraphRunResponse{
		RunID:        run.RunID,
		Status:       run.Status,
		FinalState:   run.State,
		Log:          run.Log,
		ErrorMessage: run.ErrorMessage,
	})
}

func (s *Server) getRunState(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")

	run, err := s.engine.GetRun(r.Context(), runID)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, RunStateResponse{
		RunID:        run.RunID,
		Status:       run.Status,
		CurrentNode:  run.CurrentNode,
		State:        run.State,
		Log:          run.Log,
		ErrorMessage: run.ErrorMessage,
	})
}

func (s *Server) root(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{"message": "stepflow engine is running"})
}

// writeEngineError maps engine error taxonomy to HTTP statuses:
// ValidationError → 400, NotFoundError → 404, anything else → 500.
func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case graph.IsValidation(err):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case graph.IsNotFound(err):
		s.writeError(w, http.StatusNotFound, err.Error())
	default:
		s.log.Error("internal error", "err", err)
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, detail string) {
	s.writeJSON(w, status, errorResponse{Detail: detail})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Error("encode response", "err", err)
	}
}

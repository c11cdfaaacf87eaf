// Package handler contains HTTP request handlers for the shellbox API.
//
// WHAT IS A HANDLER?
// In Go, an HTTP handler is anything that implements the http.Handler interface:
//
//	type Handler interface {
//	    ServeHTTP(ResponseWriter, *Request)
//	}
//
// Or more commonly, we use http.HandlerFunc — a function with the right signature
// that automatically satisfies the Handler interface. Chi's router accepts these directly.
//
// HANDLER RESPONSIBILITIES:
// 1. Parse the incoming HTTP request (query params, body, headers)
// 2. Call business logic (the service layer)
// 3. Write the HTTP response (status code, headers, body)
//
// Handlers should NOT contain business logic — they are the "glue" between HTTP and your app.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"shellbox/internal/executor"
	"shellbox/internal/model"
)

// RunService is the service surface the run endpoints need.
// *service.RunService satisfies it; tests pass a mock.
type RunService interface {
	Execute(ctx context.Context, blocks []executor.CodeBlock) (*model.Run, error)
	GetRun(ctx context.Context, id string) (*model.Run, error)
	ListRuns(ctx context.Context, limit, offset int) ([]model.Run, error)
	DeleteRun(ctx context.Context, id string) error
}

// ExecuteRequest is the body of POST /api/runs.
type ExecuteRequest struct {
	Blocks []executor.CodeBlock `json:"blocks"`
}

// RunHandler serves batch execution and run history.
type RunHandler struct {
	runs   RunService
	logger *slog.Logger
}

// NewRunHandler creates a new RunHandler.
func NewRunHandler(runs RunService, logger *slog.Logger) *RunHandler {
	return &RunHandler{
		runs:   runs,
		logger: logger,
	}
}

// HandleExecute runs a batch of code blocks against the environment.
//
// HTTP: POST /api/runs
// REQUEST BODY: {"blocks":[{"language":"python","code":"print('hi')"}]}
//
// The response is the completed run, including blocks that failed: a
// non-zero exit code is a result, not an HTTP error. HTTP errors are
// reserved for requests that never reached the environment (bad JSON,
// empty batch, environment down).
func (h *RunHandler) HandleExecute(w http.ResponseWriter, r *http.Request) {
	var req ExecuteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("invalid execution request body", slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_json",
			Message: "request body must be valid JSON",
		})
		return
	}

	run, err := h.runs.Execute(r.Context(), req.Blocks)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, run)
}

// HandleGet returns a single recorded run.
//
// HTTP: GET /api/runs/{id}
func (h *RunHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	run, err := h.runs.GetRun(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, run)
}

// HandleList returns run history, newest first.
//
// HTTP: GET /api/runs?limit=20&offset=0
//
// Unparseable limit/offset values fall back to the defaults rather than
// erroring; the service clamps out-of-range values.
func (h *RunHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	runs, err := h.runs.ListRuns(r.Context(), limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, runs)
}

// HandleDelete removes a run from history.
//
// HTTP: DELETE /api/runs/{id}
func (h *RunHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.runs.DeleteRun(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent) // 204 — successful deletion, no body
}

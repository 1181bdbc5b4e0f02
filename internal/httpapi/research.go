// Package httpapi exposes the orchestrator's HTTP surface: run submission,
// prompt editing, progress streaming, and the bundled frontend.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"github.com/deepquery/orchestrator/internal/workflows"
)

// RunStarter abstracts the workflow engine for run submission so handlers can
// be tested without a Temporal server.
type RunStarter interface {
	StartRun(ctx context.Context, in workflows.TaskInput) (workflowID string, err error)
	RunResult(ctx context.Context, workflowID string) (workflows.TaskResult, error)
}

// TemporalStarter is the production RunStarter backed by a Temporal client.
type TemporalStarter struct {
	Client    client.Client
	TaskQueue string
}

func (s *TemporalStarter) StartRun(ctx context.Context, in workflows.TaskInput) (string, error) {
	wr, err := s.Client.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        "research-" + in.RunID,
		TaskQueue: s.TaskQueue,
	}, workflows.ResearchWorkflow, in)
	if err != nil {
		return "", err
	}
	return wr.GetID(), nil
}

func (s *TemporalStarter) RunResult(ctx context.Context, workflowID string) (workflows.TaskResult, error) {
	var res workflows.TaskResult
	err := s.Client.GetWorkflow(ctx, workflowID, "").Get(ctx, &res)
	return res, err
}

// ResearchHandler serves run submission and result retrieval.
type ResearchHandler struct {
	starter RunStarter
	logger  *zap.Logger
}

func NewResearchHandler(starter RunStarter, logger *zap.Logger) *ResearchHandler {
	return &ResearchHandler{starter: starter, logger: logger}
}

// RegisterRoutes registers the research routes on the provided mux.
func (h *ResearchHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/research", h.handleSubmit)
	mux.HandleFunc("/api/research/", h.handleResult)
}

type submitRequest struct {
	Query             string `json:"query"`
	Profile           string `json:"profile,omitempty"`
	InitialQueryCount *int   `json:"initial_query_count,omitempty"`
}

type submitResponse struct {
	RunID      string `json:"run_id"`
	WorkflowID string `json:"workflow_id"`
}

// handleSubmit starts a research run.
// POST /api/research
func (h *ResearchHandler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, `{"error":"method not allowed"}`, http.StatusMethodNotAllowed)
		return
	}
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON body"}`, http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		http.Error(w, `{"error":"query is required"}`, http.StatusBadRequest)
		return
	}
	if req.InitialQueryCount != nil && *req.InitialQueryCount < 0 {
		http.Error(w, `{"error":"initial_query_count must be >= 0"}`, http.StatusBadRequest)
		return
	}

	runID := uuid.NewString()
	workflowID, err := h.starter.StartRun(r.Context(), workflows.TaskInput{
		Query:             req.Query,
		Profile:           req.Profile,
		RunID:             runID,
		InitialQueryCount: req.InitialQueryCount,
		EmitEvents:        true,
	})
	if err != nil {
		h.logger.Error("Failed to start research run", zap.Error(err))
		http.Error(w, `{"error":"failed to start run"}`, http.StatusInternalServerError)
		return
	}

	h.logger.Info("Research run submitted",
		zap.String("run_id", runID),
		zap.String("workflow_id", workflowID),
		zap.String("profile", req.Profile),
	)
	writeJSON(w, http.StatusAccepted, submitResponse{RunID: runID, WorkflowID: workflowID})
}

// handleResult blocks until the run finishes and returns its result.
// GET /api/research/{workflow_id}
func (h *ResearchHandler) handleResult(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, `{"error":"method not allowed"}`, http.StatusMethodNotAllowed)
		return
	}
	workflowID := strings.TrimPrefix(r.URL.Path, "/api/research/")
	if workflowID == "" || strings.Contains(workflowID, "/") {
		http.Error(w, `{"error":"workflow id required"}`, http.StatusBadRequest)
		return
	}

	res, err := h.starter.RunResult(r.Context(), workflowID)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return
		}
		h.logger.Warn("Run result retrieval failed",
			zap.String("workflow_id", workflowID), zap.Error(err))
		writeJSON(w, http.StatusOK, workflows.TaskResult{
			Success:      false,
			ErrorMessage: err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		fmt.Fprintf(w, `{"error":"encode failure"}`)
	}
}

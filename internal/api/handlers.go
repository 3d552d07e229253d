package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/veldt/flowline/internal/engine"
	"github.com/veldt/flowline/internal/store"
)

// handleStartRun executes a workflow synchronously and returns the full
// run summary. A client disconnect does not abort the run.
func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	workflowID := r.PathValue("id")

	doc, err := s.store.GetWorkflowDocument(r.Context(), workflowID)
	if err != nil {
		s.logger.Errorw("Failed to load workflow", "workflow_id", workflowID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load workflow")
		return
	}
	if doc == nil {
		writeError(w, http.StatusNotFound, "workflow not found")
		return
	}

	res, err := s.runner.ExecuteWithNotify(context.WithoutCancel(r.Context()), workflowID, doc, nil)
	if err != nil {
		if errors.Is(err, engine.ErrRunInProgress) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		s.logger.Errorw("Run failed to start", "workflow_id", workflowID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to start run")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	workflowID := r.PathValue("id")
	page := queryInt(r, "page", 1)
	pageSize := queryInt(r, "page_size", 20)
	if pageSize > 100 {
		pageSize = 100
	}

	runs, total, err := s.store.ListRuns(r.Context(), workflowID, page, pageSize)
	if err != nil {
		s.logger.Errorw("Failed to list runs", "workflow_id", workflowID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	if runs == nil {
		runs = []*store.Run{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"runs":      runs,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("id")

	run, err := s.store.GetRun(r.Context(), runID)
	if err != nil {
		s.logger.Errorw("Failed to load run", "run_id", runID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load run")
		return
	}
	if run == nil {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}

	events, err := s.store.GetRunEvents(r.Context(), runID)
	if err != nil {
		s.logger.Errorw("Failed to load run events", "run_id", runID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load run events")
		return
	}
	if events == nil {
		events = []*store.RunEvent{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"run":    run,
		"events": events,
	})
}

func (s *Server) handleCancelRun(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("id")
	if err := s.runner.Cancel(runID); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"run_id": runID,
		"status": "cancelling",
	})
}

// handleRunAnalysis summarizes a finished run's event log through the
// text-generation capability.
func (s *Server) handleRunAnalysis(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("id")

	run, err := s.store.GetRun(r.Context(), runID)
	if err != nil {
		s.logger.Errorw("Failed to load run", "run_id", runID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load run")
		return
	}
	if run == nil {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}

	events, err := s.store.GetRunEvents(r.Context(), runID)
	if err != nil {
		s.logger.Errorw("Failed to load run events", "run_id", runID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load run events")
		return
	}

	analysis, err := s.generator.Generate(r.Context(), analysisPrompt(run, events))
	if err != nil {
		s.logger.Errorw("Run analysis failed", "run_id", runID, "error", err)
		writeError(w, http.StatusBadGateway, "analysis generation failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"run_id":   runID,
		"status":   run.Status,
		"analysis": analysis,
	})
}

func analysisPrompt(run *store.Run, events []*store.RunEvent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Workflow run %s finished with status %q.\n\nEvent log:\n", run.ID, run.Status)
	for _, e := range events {
		fmt.Fprintf(&b, "%d. %s", e.StepNumber, e.Type)
		if e.NodeID != nil {
			fmt.Fprintf(&b, " node=%s", *e.NodeID)
		}
		if len(e.Payload) > 0 {
			if data, err := json.Marshal(e.Payload); err == nil {
				fmt.Fprintf(&b, " %s", data)
			}
		}
		b.WriteString("\n")
	}
	b.WriteString("\nSummarize what this run did, which nodes failed and why, and what the operator should check first.")
	return b.String()
}

type nodePatchRequest struct {
	Label       *string        `json:"label"`
	Params      map[string]any `json:"params"`
	Instruction *string        `json:"instruction"`
}

// handlePatchNode applies a partial config update to one node. Updates are
// independent of any running execution, which keeps its own snapshot.
func (s *Server) handlePatchNode(w http.ResponseWriter, r *http.Request) {
	workflowID := r.PathValue("id")
	nodeID := r.PathValue("nodeID")

	var req nodePatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Label == nil && req.Params == nil && req.Instruction == nil {
		writeError(w, http.StatusBadRequest, "nothing to update")
		return
	}

	doc, err := s.store.UpdateNodeConfig(r.Context(), workflowID, nodeID, store.NodePatch{
		Label:       req.Label,
		Params:      req.Params,
		Instruction: req.Instruction,
	})
	if err != nil {
		s.logger.Errorw("Failed to update node config",
			"workflow_id", workflowID,
			"node_id", nodeID,
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, "failed to update node")
		return
	}
	if doc == nil {
		writeError(w, http.StatusNotFound, "workflow or node not found")
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return def
	}
	return n
}

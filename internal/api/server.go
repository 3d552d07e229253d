package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/veldt/flowline/internal/capability"
	"github.com/veldt/flowline/internal/engine"
	"github.com/veldt/flowline/internal/event"
	"github.com/veldt/flowline/internal/store"
	"github.com/veldt/flowline/internal/workflow"
)

// Store is the persistence surface the API reads and writes.
// *store.Client satisfies it; tests use fakes.
type Store interface {
	GetWorkflowDocument(ctx context.Context, workflowID string) (*workflow.Document, error)
	UpdateNodeConfig(ctx context.Context, workflowID, nodeID string, patch store.NodePatch) (*workflow.Document, error)
	GetRun(ctx context.Context, id string) (*store.Run, error)
	ListRuns(ctx context.Context, workflowID string, page, pageSize int) ([]*store.Run, int, error)
	GetRunEvents(ctx context.Context, runID string) ([]*store.RunEvent, error)
}

// WorkflowRunner executes workflow documents. *engine.Runner satisfies it.
type WorkflowRunner interface {
	ExecuteWithNotify(ctx context.Context, workflowID string, doc *workflow.Document, started func(runID string)) (*engine.RunResult, error)
	Cancel(runID string) error
}

// Server exposes the workflow engine over HTTP and WebSocket.
type Server struct {
	store     Store
	runner    WorkflowRunner
	bus       *event.Bus
	generator capability.TextGenerator
	keepalive time.Duration
	logger    *zap.SugaredLogger
}

// NewServer wires the API over the given dependencies.
func NewServer(st Store, runner WorkflowRunner, bus *event.Bus, generator capability.TextGenerator, keepalive time.Duration, logger *zap.SugaredLogger) *Server {
	if keepalive <= 0 {
		keepalive = 15 * time.Second
	}
	return &Server{
		store:     st,
		runner:    runner,
		bus:       bus,
		generator: generator,
		keepalive: keepalive,
		logger:    logger,
	}
}

// Routes builds the request mux.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("POST /api/workflows/{id}/runs", s.handleStartRun)
	mux.HandleFunc("GET /api/workflows/{id}/runs", s.handleListRuns)
	mux.HandleFunc("GET /api/runs/{id}", s.handleGetRun)
	mux.HandleFunc("POST /api/runs/{id}/cancel", s.handleCancelRun)
	mux.HandleFunc("POST /api/runs/{id}/analysis", s.handleRunAnalysis)
	mux.HandleFunc("PATCH /api/workflows/{id}/nodes/{nodeID}", s.handlePatchNode)
	mux.HandleFunc("GET /ws/workflows/{id}/run", s.handleRunStream)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"service":   "flowline",
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}

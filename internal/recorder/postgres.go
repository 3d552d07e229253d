package recorder

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/veldt/flowline/internal/event"
	"github.com/veldt/flowline/internal/store"
)

// Postgres records run logs through the database client.
type Postgres struct {
	client *store.Client
	logger *zap.SugaredLogger
}

// NewPostgres creates a database-backed recorder.
func NewPostgres(client *store.Client, logger *zap.SugaredLogger) *Postgres {
	return &Postgres{client: client, logger: logger}
}

func (p *Postgres) Open(ctx context.Context, workflowRef string) (string, error) {
	run := &store.Run{
		ID:         uuid.New().String(),
		WorkflowID: workflowRef,
		Status:     store.RunStatusPending,
		StartedAt:  time.Now(),
	}
	if err := p.client.CreateRun(ctx, run); err != nil {
		return "", fmt.Errorf("open run: %w", err)
	}
	p.logger.Infow("Run opened", "runId", run.ID, "workflowId", workflowRef)
	return run.ID, nil
}

func (p *Postgres) Start(ctx context.Context, runID string) error {
	if err := p.client.UpdateRunStatus(ctx, runID, store.RunStatusRunning); err != nil {
		return fmt.Errorf("start run: %w", err)
	}
	return nil
}

func (p *Postgres) Append(ctx context.Context, e *event.Event) error {
	var nodeID *string
	if e.NodeID != "" {
		nodeID = &e.NodeID
	}
	rec := &store.RunEvent{
		ID:         e.ID,
		RunID:      e.RunID,
		Type:       string(e.Type),
		NodeID:     nodeID,
		Payload:    e.Payload,
		StepNumber: e.StepNumber,
		CreatedAt:  e.Timestamp,
	}
	if err := p.client.InsertRunEvent(ctx, rec); err != nil {
		return fmt.Errorf("append run event: %w", err)
	}
	return nil
}

func (p *Postgres) Close(ctx context.Context, runID, finalStatus string) error {
	if err := p.client.UpdateRunStatus(ctx, runID, finalStatus); err != nil {
		return fmt.Errorf("close run: %w", err)
	}
	p.logger.Infow("Run closed", "runId", runID, "status", finalStatus)
	return nil
}

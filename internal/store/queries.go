package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/veldt/flowline/internal/workflow"
)

// ─── Workflow Queries ───

// GetWorkflowDocument retrieves the stored node/edge document for a workflow.
// Returns nil, nil when the workflow does not exist.
func (c *Client) GetWorkflowDocument(ctx context.Context, workflowID string) (*workflow.Document, error) {
	row := c.pool.QueryRow(ctx, `
		SELECT nodes, edges, version
		FROM workflows WHERE id = $1
	`, workflowID)

	var nodesJSON, edgesJSON []byte
	var doc workflow.Document
	err := row.Scan(&nodesJSON, &edgesJSON, &doc.Version)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get workflow document: %w", err)
	}

	if err := json.Unmarshal(nodesJSON, &doc.Nodes); err != nil {
		return nil, fmt.Errorf("decode workflow nodes: %w", err)
	}
	if err := json.Unmarshal(edgesJSON, &doc.Edges); err != nil {
		return nil, fmt.Errorf("decode workflow edges: %w", err)
	}
	return &doc, nil
}

// UpdateNodeConfig applies a partial config update to a single node of a
// workflow document and bumps the document version. Returns the updated
// document, or nil, nil when the workflow or node does not exist.
func (c *Client) UpdateNodeConfig(ctx context.Context, workflowID, nodeID string, patch NodePatch) (*workflow.Document, error) {
	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin update node config: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		SELECT nodes, version
		FROM workflows WHERE id = $1
		FOR UPDATE
	`, workflowID)

	var nodesJSON []byte
	var version int
	if err := row.Scan(&nodesJSON, &version); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("lock workflow for node update: %w", err)
	}

	var nodes []workflow.Node
	if err := json.Unmarshal(nodesJSON, &nodes); err != nil {
		return nil, fmt.Errorf("decode workflow nodes: %w", err)
	}

	found := false
	for i := range nodes {
		if nodes[i].ID != nodeID {
			continue
		}
		found = true
		if patch.Label != nil {
			nodes[i].Label = *patch.Label
		}
		if patch.Params != nil {
			if nodes[i].Config.Params == nil {
				nodes[i].Config.Params = make(map[string]any, len(patch.Params))
			}
			for k, v := range patch.Params {
				nodes[i].Config.Params[k] = v
			}
		}
		if patch.Instruction != nil {
			nodes[i].Config.Instruction = *patch.Instruction
		}
		break
	}
	if !found {
		return nil, nil
	}

	updated, err := json.Marshal(nodes)
	if err != nil {
		return nil, fmt.Errorf("encode workflow nodes: %w", err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE workflows
		SET nodes = $2, version = version + 1, updated_at = $3
		WHERE id = $1
	`, workflowID, updated, time.Now())
	if err != nil {
		return nil, fmt.Errorf("update node config: %w", err)
	}

	row = tx.QueryRow(ctx, `
		SELECT nodes, edges, version
		FROM workflows WHERE id = $1
	`, workflowID)

	var edgesJSON []byte
	var doc workflow.Document
	if err := row.Scan(&nodesJSON, &edgesJSON, &doc.Version); err != nil {
		return nil, fmt.Errorf("reload workflow document: %w", err)
	}
	if err := json.Unmarshal(nodesJSON, &doc.Nodes); err != nil {
		return nil, fmt.Errorf("decode workflow nodes: %w", err)
	}
	if err := json.Unmarshal(edgesJSON, &doc.Edges); err != nil {
		return nil, fmt.Errorf("decode workflow edges: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit node config update: %w", err)
	}
	return &doc, nil
}

// ─── Run Queries ───

// CreateRun inserts a new run row.
func (c *Client) CreateRun(ctx context.Context, r *Run) error {
	_, err := c.pool.Exec(ctx, `
		INSERT INTO runs (id, workflow_id, status, started_at)
		VALUES ($1, $2, $3, $4)
	`, r.ID, r.WorkflowID, r.Status, r.StartedAt)
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

// UpdateRunStatus updates a run's status, stamping completed_at when the
// status is terminal.
func (c *Client) UpdateRunStatus(ctx context.Context, id, status string) error {
	var completedAt *time.Time
	switch status {
	case RunStatusCompleted, RunStatusFailed, RunStatusPartialFailure:
		now := time.Now()
		completedAt = &now
	}

	_, err := c.pool.Exec(ctx, `
		UPDATE runs
		SET status = $2,
		    completed_at = COALESCE($3, completed_at)
		WHERE id = $1
	`, id, status, completedAt)
	if err != nil {
		return fmt.Errorf("update run status: %w", err)
	}
	return nil
}

// GetRun retrieves a run by ID. Returns nil, nil when not found.
func (c *Client) GetRun(ctx context.Context, id string) (*Run, error) {
	row := c.pool.QueryRow(ctx, `
		SELECT id, workflow_id, status, started_at, completed_at
		FROM runs WHERE id = $1
	`, id)

	var r Run
	err := row.Scan(&r.ID, &r.WorkflowID, &r.Status, &r.StartedAt, &r.CompletedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get run: %w", err)
	}
	return &r, nil
}

// ListRuns returns one page of runs for a workflow, newest first, plus the
// total run count for the workflow.
func (c *Client) ListRuns(ctx context.Context, workflowID string, page, pageSize int) ([]*Run, int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	var total int
	err := c.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM runs WHERE workflow_id = $1
	`, workflowID).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count runs: %w", err)
	}

	rows, err := c.pool.Query(ctx, `
		SELECT id, workflow_id, status, started_at, completed_at
		FROM runs
		WHERE workflow_id = $1
		ORDER BY started_at DESC
		LIMIT $2 OFFSET $3
	`, workflowID, pageSize, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.WorkflowID, &r.Status, &r.StartedAt, &r.CompletedAt); err != nil {
			return nil, 0, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list runs: %w", err)
	}
	return runs, total, nil
}

// ─── RunEvent Queries ───

// InsertRunEvent appends one event to a run's event log.
func (c *Client) InsertRunEvent(ctx context.Context, e *RunEvent) error {
	var payloadJSON []byte
	if e.Payload != nil {
		b, err := json.Marshal(e.Payload)
		if err != nil {
			return fmt.Errorf("encode event payload: %w", err)
		}
		payloadJSON = b
	}

	_, err := c.pool.Exec(ctx, `
		INSERT INTO run_events (id, run_id, type, node_id, payload, step_number, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, e.ID, e.RunID, e.Type, e.NodeID, payloadJSON, e.StepNumber, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert run event: %w", err)
	}
	return nil
}

// GetRunEvents returns all events of a run ordered by step number.
func (c *Client) GetRunEvents(ctx context.Context, runID string) ([]*RunEvent, error) {
	rows, err := c.pool.Query(ctx, `
		SELECT id, run_id, type, node_id, payload, step_number, created_at
		FROM run_events
		WHERE run_id = $1
		ORDER BY step_number ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("get run events: %w", err)
	}
	defer rows.Close()

	var events []*RunEvent
	for rows.Next() {
		var e RunEvent
		var payloadJSON []byte
		if err := rows.Scan(&e.ID, &e.RunID, &e.Type, &e.NodeID, &payloadJSON, &e.StepNumber, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan run event: %w", err)
		}
		if len(payloadJSON) > 0 {
			if err := json.Unmarshal(payloadJSON, &e.Payload); err != nil {
				return nil, fmt.Errorf("decode event payload: %w", err)
			}
		}
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get run events: %w", err)
	}
	return events, nil
}

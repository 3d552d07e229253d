package store

import "time"

// Run statuses. Transitions only move forward; a terminal run is immutable.
const (
	RunStatusPending        = "pending"
	RunStatusRunning        = "running"
	RunStatusCompleted      = "completed"
	RunStatusFailed         = "failed"
	RunStatusPartialFailure = "partial_failure"
)

// Run is one execution attempt of a workflow snapshot.
type Run struct {
	ID          string     `json:"id"`
	WorkflowID  string     `json:"workflow_id"`
	Status      string     `json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// RunEvent is one persisted event of a run. Append-only; step_number is the
// strictly increasing ordering within the run.
type RunEvent struct {
	ID         string         `json:"id"`
	RunID      string         `json:"run_id"`
	Type       string         `json:"type"`
	NodeID     *string        `json:"node_id,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`
	StepNumber int            `json:"step_number"`
	CreatedAt  time.Time      `json:"timestamp"`
}

// NodePatch is a partial update of one node's configuration on the
// persisted workflow document. Nil fields are left untouched.
type NodePatch struct {
	Label       *string        `json:"label,omitempty"`
	Params      map[string]any `json:"params,omitempty"`
	Instruction *string        `json:"instruction,omitempty"`
}

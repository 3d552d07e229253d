package event

import "time"

// Type identifies one kind of run event.
type Type string

const (
	TypeNodeStart        Type = "node_start"
	TypeNodeStatusChange Type = "node_status_change"
	TypeAction           Type = "action"
	TypeReasoning        Type = "reasoning"
	TypeNodeComplete     Type = "node_complete"
	TypeDone             Type = "done"
	TypeError            Type = "error"
)

// Event is one unit of the live and durable record of a run. StepNumber is
// assigned by the orchestrator strictly in emission order; observers can use
// it to detect gaps without re-ordering.
type Event struct {
	ID         string         `json:"id"`
	RunID      string         `json:"run_id"`
	Type       Type           `json:"type"`
	NodeID     string         `json:"node_id,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`
	StepNumber int            `json:"step_number"`
	Timestamp  time.Time      `json:"timestamp"`
}

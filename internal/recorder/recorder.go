package recorder

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/veldt/flowline/internal/event"
)

// Recorder durably records a run and every one of its events. The
// orchestrator drives the recorder and the live publisher from the same
// emission call site, so the persisted log and the live stream can never
// diverge in content.
type Recorder interface {
	// Open creates a pending run for the given workflow and returns its id.
	Open(ctx context.Context, workflowRef string) (string, error)
	// Start marks the run running once its graph is validated and node
	// execution begins. Runs rejected before that go straight from
	// pending to a terminal status.
	Start(ctx context.Context, runID string) error
	// Append adds one event to the run's ordered log.
	Append(ctx context.Context, evt *event.Event) error
	// Close marks the run terminal with its final status.
	Close(ctx context.Context, runID, finalStatus string) error
}

// RunLog is one recorded run held by the in-memory recorder.
type RunLog struct {
	ID          string
	WorkflowRef string
	Status      string
	StartedAt   time.Time
	CompletedAt *time.Time
	Events      []event.Event
}

// Memory is an in-memory Recorder for tests and database-less deployments.
type Memory struct {
	mu   sync.RWMutex
	runs map[string]*RunLog
}

// NewMemory creates an empty in-memory recorder.
func NewMemory() *Memory {
	return &Memory{runs: make(map[string]*RunLog)}
}

func (m *Memory) Open(ctx context.Context, workflowRef string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := uuid.New().String()
	m.runs[id] = &RunLog{
		ID:          id,
		WorkflowRef: workflowRef,
		Status:      "pending",
		StartedAt:   time.Now(),
	}
	return id, nil
}

func (m *Memory) Start(ctx context.Context, runID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	run, ok := m.runs[runID]
	if !ok {
		return fmt.Errorf("start unknown run: %s", runID)
	}
	run.Status = "running"
	return nil
}

func (m *Memory) Append(ctx context.Context, evt *event.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	run, ok := m.runs[evt.RunID]
	if !ok {
		return fmt.Errorf("append to unknown run: %s", evt.RunID)
	}
	run.Events = append(run.Events, *evt)
	return nil
}

func (m *Memory) Close(ctx context.Context, runID, finalStatus string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	run, ok := m.runs[runID]
	if !ok {
		return fmt.Errorf("close unknown run: %s", runID)
	}
	now := time.Now()
	run.Status = finalStatus
	run.CompletedAt = &now
	return nil
}

// Run returns a copy of the recorded run, if present.
func (m *Memory) Run(runID string) (*RunLog, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	run, ok := m.runs[runID]
	if !ok {
		return nil, false
	}
	cp := *run
	cp.Events = append([]event.Event(nil), run.Events...)
	return &cp, true
}

// Runs returns copies of all recorded runs for a workflow, newest first.
func (m *Memory) Runs(workflowRef string) []*RunLog {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*RunLog
	for _, run := range m.runs {
		if run.WorkflowRef == workflowRef {
			cp := *run
			cp.Events = append([]event.Event(nil), run.Events...)
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	return out
}

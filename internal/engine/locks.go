package engine

import (
	"errors"
	"sync"
)

// ErrRunInProgress is returned when a workflow already has a running
// execution. One run at a time per workflow.
var ErrRunInProgress = errors.New("workflow already has a run in progress")

// runLocks enforces single-flight execution per workflow. The run id acts
// as the ownership token: acquired at run start, released only by the same
// run at terminal status.
type runLocks struct {
	mu   sync.Mutex
	held map[string]string // workflow id → owning run id
}

func newRunLocks() *runLocks {
	return &runLocks{held: make(map[string]string)}
}

func (l *runLocks) acquire(workflowID, runID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[workflowID]; ok {
		return ErrRunInProgress
	}
	l.held[workflowID] = runID
	return nil
}

func (l *runLocks) release(workflowID, runID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[workflowID] == runID {
		delete(l.held, workflowID)
	}
}

package engine

import (
	"fmt"
	"sync"
)

// NodeState is the finite-state view of one node within the current run.
type NodeState string

const (
	NodeIdle      NodeState = "idle"
	NodeExecuting NodeState = "executing"
	NodeSuccess   NodeState = "success"
	NodeFailed    NodeState = "failed"
)

// StatusTracker holds the state of every node in the current run. States
// only move forward: idle → executing → success/failed. A terminal node
// never re-enters executing within the same run.
type StatusTracker struct {
	mu     sync.RWMutex
	states map[string]NodeState
}

// NewStatusTracker starts every node at idle.
func NewStatusTracker(nodeIDs []string) *StatusTracker {
	states := make(map[string]NodeState, len(nodeIDs))
	for _, id := range nodeIDs {
		states[id] = NodeIdle
	}
	return &StatusTracker{states: states}
}

// State returns a node's current state.
func (t *StatusTracker) State(nodeID string) NodeState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.states[nodeID]
}

// Transition moves a node to the given state, rejecting anything that is
// not a legal forward transition.
func (t *StatusTracker) Transition(nodeID string, to NodeState) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	from, ok := t.states[nodeID]
	if !ok {
		return fmt.Errorf("unknown node: %s", nodeID)
	}
	if !legalTransition(from, to) {
		return fmt.Errorf("illegal node state transition %s → %s for node %s", from, to, nodeID)
	}
	t.states[nodeID] = to
	return nil
}

func legalTransition(from, to NodeState) bool {
	switch from {
	case NodeIdle:
		// Failed directly from idle covers dependency-failure skips.
		return to == NodeExecuting || to == NodeFailed
	case NodeExecuting:
		return to == NodeSuccess || to == NodeFailed
	default:
		return false
	}
}

// Snapshot returns a copy of all node states.
func (t *StatusTracker) Snapshot() map[string]NodeState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]NodeState, len(t.states))
	for id, st := range t.states {
		out[id] = st
	}
	return out
}

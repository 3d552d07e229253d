package engine

import (
	"sync"

	"github.com/veldt/flowline/internal/workflow"
)

// ContextStore is the run-scoped mapping from node id to produced output.
// It exists only for the lifetime of a run; final results are persisted in
// the run's event log.
type ContextStore struct {
	mu      sync.RWMutex
	plan    *workflow.Plan
	outputs map[string]any
}

// NewContextStore creates an empty store for one run of the given plan.
func NewContextStore(plan *workflow.Plan) *ContextStore {
	return &ContextStore{
		plan:    plan,
		outputs: make(map[string]any),
	}
}

// Get returns the output a node produced, if any.
func (s *ContextStore) Get(nodeID string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out, ok := s.outputs[nodeID]
	return out, ok
}

// Set records a node's output. Written exactly once per node, immediately
// after its executor returns.
func (s *ContextStore) Set(nodeID string, output any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outputs[nodeID] = output
}

// ContextFor merges the outputs of every direct predecessor into the input
// context for a node. Each output is stored under the predecessor's node id;
// map-valued outputs are additionally flattened into the top level, with the
// predecessor later in execution order winning on key collision.
func (s *ContextStore) ContextFor(nodeID string) map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	merged := make(map[string]any)
	for _, depID := range s.plan.DependenciesOf(nodeID) {
		out, ok := s.outputs[depID]
		if !ok {
			continue
		}
		merged[depID] = out
		if m, ok := out.(map[string]any); ok {
			for k, v := range m {
				merged[k] = v
			}
		}
	}
	return merged
}

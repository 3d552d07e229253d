package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/veldt/flowline/internal/event"
	"github.com/veldt/flowline/internal/executor"
	"github.com/veldt/flowline/internal/recorder"
	"github.com/veldt/flowline/internal/store"
	"github.com/veldt/flowline/internal/workflow"
)

// RunResult is the terminal summary of one workflow run.
type RunResult struct {
	RunID          string            `json:"run_id"`
	Status         string            `json:"status"`
	Error          string            `json:"error,omitempty"`
	ExecutionOrder []string          `json:"execution_order"`
	Results        []executor.Result `json:"results"`
	StartedAt      time.Time         `json:"started_at"`
	CompletedAt    time.Time         `json:"completed_at"`
}

// Runner executes workflow documents. It validates the graph, schedules
// dependency levels, assigns step numbers, and feeds every event to both
// the live bus and the durable recorder from a single emission point.
type Runner struct {
	executors *executor.Set
	bus       *event.Bus
	rec       recorder.Recorder
	locks     *runLocks
	logger    *zap.SugaredLogger

	mu     sync.Mutex
	active map[string]*runState // run id → in-flight run
}

type runState struct {
	cancel    context.CancelFunc
	cancelled bool
}

// NewRunner creates a runner over the given executor set, bus, and recorder.
func NewRunner(executors *executor.Set, bus *event.Bus, rec recorder.Recorder, logger *zap.SugaredLogger) *Runner {
	return &Runner{
		executors: executors,
		bus:       bus,
		rec:       rec,
		locks:     newRunLocks(),
		logger:    logger,
		active:    make(map[string]*runState),
	}
}

// Cancel requests cancellation of an in-flight run. Levels already running
// finish their nodes; no further levels are scheduled and unstarted nodes
// produce no events.
func (r *Runner) Cancel(runID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.active[runID]
	if !ok {
		return fmt.Errorf("no active run: %s", runID)
	}
	st.cancelled = true
	st.cancel()
	return nil
}

// Execute runs one workflow document to completion and returns its summary.
// A non-nil error means the run could not be started at all; execution
// failures inside the graph are reported through the result status instead.
func (r *Runner) Execute(ctx context.Context, workflowID string, doc *workflow.Document) (*RunResult, error) {
	return r.ExecuteWithNotify(ctx, workflowID, doc, nil)
}

// ExecuteWithNotify is Execute with a hook invoked once the run id is
// assigned, before any event is emitted. Stream transports use it to
// subscribe to the run channel without missing the first event.
func (r *Runner) ExecuteWithNotify(ctx context.Context, workflowID string, doc *workflow.Document, started func(runID string)) (*RunResult, error) {
	startedAt := time.Now()

	runID, err := r.rec.Open(ctx, workflowID)
	if err != nil {
		return nil, fmt.Errorf("open run record: %w", err)
	}
	if started != nil {
		started(runID)
	}

	// Events must outlive a mid-run cancellation so the log stays complete.
	persistCtx := context.WithoutCancel(ctx)
	em := &emitter{
		runID:  runID,
		bus:    r.bus,
		rec:    r.rec,
		ctx:    persistCtx,
		logger: r.logger,
	}

	if err := r.locks.acquire(workflowID, runID); err != nil {
		em.emit(event.TypeError, "", map[string]any{
			"error": "workflow already has a run in progress",
		})
		r.closeRun(persistCtx, runID, store.RunStatusFailed)
		return nil, err
	}
	defer r.locks.release(workflowID, runID)

	plan, err := workflow.Validate(doc)
	if err != nil {
		var gerr *workflow.GraphError
		payload := map[string]any{"error": err.Error()}
		if errors.As(err, &gerr) {
			payload["error_kind"] = gerr.Code
		}
		em.emit(event.TypeError, "", payload)
		r.closeRun(persistCtx, runID, store.RunStatusFailed)
		return &RunResult{
			RunID:       runID,
			Status:      store.RunStatusFailed,
			Error:       err.Error(),
			StartedAt:   startedAt,
			CompletedAt: time.Now(),
		}, nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	st := &runState{cancel: cancel}
	r.mu.Lock()
	r.active[runID] = st
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		delete(r.active, runID)
		r.mu.Unlock()
	}()

	if err := r.rec.Start(persistCtx, runID); err != nil {
		r.logger.Warnw("Failed to mark run running", "run_id", runID, "error", err)
	}
	r.logger.Infow("Run started",
		"run_id", runID,
		"workflow_id", workflowID,
		"nodes", plan.Len(),
	)

	tracker := NewStatusTracker(plan.Order())
	ctxStore := NewContextStore(plan)
	results := newResultSet()

	for _, level := range plan.Levels() {
		if runCtx.Err() != nil {
			break
		}
		var wg sync.WaitGroup
		for _, nodeID := range level {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				r.runNode(runCtx, em, plan, tracker, ctxStore, results, id)
			}(nodeID)
		}
		wg.Wait()
	}

	r.mu.Lock()
	cancelled := st.cancelled
	r.mu.Unlock()

	res := r.finish(persistCtx, em, plan, results, runID, startedAt, cancelled)
	return res, nil
}

// finish derives the run's terminal status, emits done, and closes the record.
func (r *Runner) finish(ctx context.Context, em *emitter, plan *workflow.Plan, results *resultSet, runID string, startedAt time.Time, cancelled bool) *RunResult {
	ordered := results.inOrder(plan.Order())

	succeeded, failedCount := 0, 0
	for _, res := range ordered {
		if res.Status == executor.StatusSuccess {
			succeeded++
		} else {
			failedCount++
		}
	}

	var status string
	switch {
	case cancelled:
		status = store.RunStatusFailed
	case failedCount == 0:
		status = store.RunStatusCompleted
	case succeeded == 0:
		status = store.RunStatusFailed
	default:
		status = store.RunStatusPartialFailure
	}

	summary := make([]map[string]any, 0, len(ordered))
	for _, res := range ordered {
		entry := map[string]any{
			"node_id": res.NodeID,
			"status":  string(res.Status),
		}
		if res.Error != "" {
			entry["error"] = res.Error
			entry["error_kind"] = res.ErrorKind
		}
		summary = append(summary, entry)
	}

	payload := map[string]any{
		"status":          status,
		"results":         summary,
		"execution_order": plan.Order(),
	}
	if cancelled {
		payload["cancelled"] = true
	}
	em.emit(event.TypeDone, "", payload)

	r.closeRun(ctx, runID, status)
	r.logger.Infow("Run finished",
		"run_id", runID,
		"status", status,
		"succeeded", succeeded,
		"failed", failedCount,
	)

	result := &RunResult{
		RunID:          runID,
		Status:         status,
		ExecutionOrder: plan.Order(),
		Results:        ordered,
		StartedAt:      startedAt,
		CompletedAt:    time.Now(),
	}
	if cancelled {
		result.Error = "run cancelled"
	}
	return result
}

// runNode executes one node, or records a dependency skip when any direct
// predecessor failed. Exactly one node_start and one node_complete per node.
func (r *Runner) runNode(ctx context.Context, em *emitter, plan *workflow.Plan, tracker *StatusTracker, ctxStore *ContextStore, results *resultSet, nodeID string) {
	node := plan.Node(nodeID)

	for _, depID := range plan.DependenciesOf(nodeID) {
		if tracker.State(depID) != NodeFailed {
			continue
		}
		if err := tracker.Transition(nodeID, NodeFailed); err != nil {
			r.logger.Errorw("Node state transition failed", "node_id", nodeID, "error", err)
		}
		res := executor.Result{
			NodeID:    nodeID,
			Status:    executor.StatusFailed,
			Error:     fmt.Sprintf("dependency %s failed", depID),
			ErrorKind: executor.ErrKindDependency,
		}
		results.set(res)
		em.emit(event.TypeNodeStart, nodeID, map[string]any{
			"kind":  string(node.Kind),
			"label": node.Label,
		})
		em.emit(event.TypeNodeComplete, nodeID, map[string]any{
			"status":     string(res.Status),
			"error":      res.Error,
			"error_kind": res.ErrorKind,
		})
		em.emit(event.TypeNodeStatusChange, nodeID, map[string]any{
			"status": string(NodeFailed),
		})
		return
	}

	if err := tracker.Transition(nodeID, NodeExecuting); err != nil {
		r.logger.Errorw("Node state transition failed", "node_id", nodeID, "error", err)
	}
	em.emit(event.TypeNodeStart, nodeID, map[string]any{
		"kind":  string(node.Kind),
		"label": node.Label,
	})
	em.emit(event.TypeNodeStatusChange, nodeID, map[string]any{
		"status": string(NodeExecuting),
	})

	input := ctxStore.ContextFor(nodeID)
	obs := &eventObserver{em: em, nodeID: nodeID}
	res := r.executors.Execute(ctx, node, input, obs)
	// A timed-out executor goroutine may still hold the observer; sever it
	// before node_complete so stale observations can never trail the node.
	obs.close()
	results.set(res)

	state := NodeFailed
	if res.Status == executor.StatusSuccess {
		state = NodeSuccess
		ctxStore.Set(nodeID, res.Output)
	}
	if err := tracker.Transition(nodeID, state); err != nil {
		r.logger.Errorw("Node state transition failed", "node_id", nodeID, "error", err)
	}

	complete := map[string]any{
		"status":      string(res.Status),
		"duration_ms": res.Duration.Milliseconds(),
	}
	if res.Status == executor.StatusSuccess {
		complete["output"] = res.Output
	} else {
		complete["error"] = res.Error
		complete["error_kind"] = res.ErrorKind
	}
	em.emit(event.TypeNodeComplete, nodeID, complete)
	em.emit(event.TypeNodeStatusChange, nodeID, map[string]any{
		"status": string(state),
	})
}

func (r *Runner) closeRun(ctx context.Context, runID, status string) {
	if err := r.rec.Close(ctx, runID, status); err != nil {
		r.logger.Errorw("Failed to close run record", "run_id", runID, "error", err)
	}
}

// emitter is the single emission point of a run. It assigns strictly
// increasing step numbers and delivers each event to the recorder and the
// bus under one lock, so no observer can ever see them out of order.
type emitter struct {
	mu     sync.Mutex
	step   int
	runID  string
	bus    *event.Bus
	rec    recorder.Recorder
	ctx    context.Context
	logger *zap.SugaredLogger
}

func (e *emitter) emit(typ event.Type, nodeID string, payload map[string]any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.emitLocked(typ, nodeID, payload)
}

func (e *emitter) emitLocked(typ event.Type, nodeID string, payload map[string]any) {
	e.step++
	evt := &event.Event{
		ID:         uuid.New().String(),
		RunID:      e.runID,
		Type:       typ,
		NodeID:     nodeID,
		Payload:    payload,
		StepNumber: e.step,
		Timestamp:  time.Now(),
	}
	if err := e.rec.Append(e.ctx, evt); err != nil {
		e.logger.Warnw("Failed to record event",
			"run_id", e.runID,
			"type", typ,
			"step_number", e.step,
			"error", err,
		)
	}
	e.bus.Publish(evt)
}

// eventObserver bridges agent observations into run events. It is closed
// once the node's result is in; observations arriving after that come from
// an abandoned executor goroutine and are dropped, keeping every action and
// reasoning event strictly between its node_start and node_complete. The
// closed flag shares the emitter's lock so a close can never interleave
// with an in-flight observation.
type eventObserver struct {
	em     *emitter
	nodeID string
	closed bool
}

func (o *eventObserver) close() {
	o.em.mu.Lock()
	o.closed = true
	o.em.mu.Unlock()
}

func (o *eventObserver) Action(tool string, params map[string]any) {
	o.observe(event.TypeAction, map[string]any{
		"tool":   tool,
		"params": params,
	})
}

func (o *eventObserver) Reasoning(content string) {
	o.observe(event.TypeReasoning, map[string]any{
		"content": content,
	})
}

func (o *eventObserver) observe(typ event.Type, payload map[string]any) {
	o.em.mu.Lock()
	defer o.em.mu.Unlock()
	if o.closed {
		o.em.logger.Warnw("Dropping observation from abandoned executor",
			"node_id", o.nodeID,
			"type", typ,
		)
		return
	}
	o.em.emitLocked(typ, o.nodeID, payload)
}

// resultSet collects node results across concurrently running goroutines.
type resultSet struct {
	mu   sync.Mutex
	byID map[string]executor.Result
}

func newResultSet() *resultSet {
	return &resultSet{byID: make(map[string]executor.Result)}
}

func (s *resultSet) set(res executor.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[res.NodeID] = res
}

// inOrder returns results for executed nodes in execution order; nodes that
// never started (cancelled runs) are absent.
func (s *resultSet) inOrder(order []string) []executor.Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]executor.Result, 0, len(s.byID))
	for _, id := range order {
		if res, ok := s.byID[id]; ok {
			out = append(out, res)
		}
	}
	return out
}

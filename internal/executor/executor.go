package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/veldt/flowline/internal/capability"
	"github.com/veldt/flowline/internal/workflow"
)

// Status is the outcome of one node execution.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Error kinds carried on failed results. All are node-local; only graph
// validation failures abort a run.
const (
	ErrKindValidation = "validation_error"
	ErrKindCapability = "capability_error"
	ErrKindTimeout    = "timeout_error"
	ErrKindGeneration = "generation_error"
	ErrKindDependency = "dependency_error"
	ErrKindCancelled  = "cancelled"
)

// Result is the outcome an executor produces for one node.
type Result struct {
	NodeID    string        `json:"node_id"`
	Status    Status        `json:"status"`
	Output    any           `json:"output,omitempty"`
	Error     string        `json:"error,omitempty"`
	ErrorKind string        `json:"error_kind,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// Executor converts (node config, merged upstream context) into a result.
// One implementation exists per node kind.
type Executor interface {
	Kind() workflow.NodeKind
	Execute(ctx context.Context, node *workflow.Node, input map[string]any, obs capability.AgentObserver) Result
}

// Set dispatches nodes to the executor matching their kind and enforces the
// per-kind timeout so a stuck capability can never block the orchestrator.
type Set struct {
	byKind   map[workflow.NodeKind]Executor
	timeouts map[workflow.NodeKind]time.Duration
	logger   *zap.SugaredLogger
}

const defaultTimeout = 2 * time.Minute

// NewSet builds a dispatch set from the given executors.
func NewSet(logger *zap.SugaredLogger, timeouts map[workflow.NodeKind]time.Duration, executors ...Executor) *Set {
	s := &Set{
		byKind:   make(map[workflow.NodeKind]Executor, len(executors)),
		timeouts: timeouts,
		logger:   logger,
	}
	for _, e := range executors {
		s.byKind[e.Kind()] = e
	}
	return s
}

// Timeout returns the configured timeout for a node kind.
func (s *Set) Timeout(kind workflow.NodeKind) time.Duration {
	if d, ok := s.timeouts[kind]; ok && d > 0 {
		return d
	}
	return defaultTimeout
}

// Execute runs the node under its kind's timeout. The executor runs in its
// own goroutine; if it overruns the budget the caller gets a failed result
// immediately and the goroutine is abandoned to its cancelled context.
func (s *Set) Execute(ctx context.Context, node *workflow.Node, input map[string]any, obs capability.AgentObserver) Result {
	exec, ok := s.byKind[node.Kind]
	if !ok {
		return failed(node, ErrKindValidation, fmt.Sprintf("no executor for node kind %q", node.Kind))
	}

	start := time.Now()
	execCtx, cancel := context.WithTimeout(ctx, s.Timeout(node.Kind))
	defer cancel()

	done := make(chan Result, 1)
	go func() {
		done <- exec.Execute(execCtx, node, input, obs)
	}()

	select {
	case res := <-done:
		res.NodeID = node.ID
		res.Duration = time.Since(start)
		return res
	case <-execCtx.Done():
		res := timeoutResult(node, execCtx.Err())
		res.Duration = time.Since(start)
		s.logger.Warnw("Node execution cut off",
			"node_id", node.ID,
			"kind", node.Kind,
			"error_kind", res.ErrorKind,
		)
		return res
	}
}

func timeoutResult(node *workflow.Node, err error) Result {
	if errors.Is(err, context.DeadlineExceeded) {
		return failed(node, ErrKindTimeout, fmt.Sprintf("node exceeded its %s timeout", node.Kind))
	}
	return failed(node, ErrKindCancelled, "execution cancelled")
}

func failed(node *workflow.Node, kind, msg string) Result {
	return Result{NodeID: node.ID, Status: StatusFailed, Error: msg, ErrorKind: kind}
}

// failure maps an error from a capability into a failed result, classifying
// it by the taxonomy.
func failure(node *workflow.Node, err error) Result {
	kind := ErrKindCapability
	var verr *capability.ValidationError
	var gerr *capability.GenerationError
	switch {
	case errors.As(err, &verr):
		kind = ErrKindValidation
	case errors.As(err, &gerr):
		kind = ErrKindGeneration
	case errors.Is(err, context.DeadlineExceeded):
		kind = ErrKindTimeout
	case errors.Is(err, context.Canceled):
		kind = ErrKindCancelled
	}
	return failed(node, kind, err.Error())
}

func success(node *workflow.Node, output any) Result {
	return Result{NodeID: node.ID, Status: StatusSuccess, Output: output}
}

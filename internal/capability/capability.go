package capability

import (
	"context"
	"fmt"
)

// TextGenerator is an external text-generation capability used by
// ai_transform nodes and post-hoc run analysis.
type TextGenerator interface {
	Name() string
	Generate(ctx context.Context, prompt string) (string, error)
}

// AgentObserver receives intermediate sub-actions from an autonomous agent
// while it works. Observations are surfaced as live events; they are not
// part of the agent's synchronous return value.
type AgentObserver interface {
	Action(tool string, params map[string]any)
	Reasoning(content string)
}

// Agent is an external autonomous action-taking capability. It may perform
// a bounded sequence of sub-actions (navigate, extract, click) before
// returning a final summarized result.
type Agent interface {
	Name() string
	Run(ctx context.Context, instruction string, input map[string]any, obs AgentObserver) (string, error)
}

// ValidationError reports a node configuration that fails a tool's declared
// input schema. Node-local, non-fatal to the run.
type ValidationError struct {
	Tool    string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Tool == "" {
		return "validation error: " + e.Message
	}
	return fmt.Sprintf("tool %s: %s", e.Tool, e.Message)
}

// CapabilityError wraps a failure of the external capability itself.
type CapabilityError struct {
	Capability string
	Err        error
}

func (e *CapabilityError) Error() string {
	return fmt.Sprintf("capability %s: %v", e.Capability, e.Err)
}

func (e *CapabilityError) Unwrap() error {
	return e.Err
}

// GenerationError reports an empty or refused text-generation response.
type GenerationError struct {
	Generator string
	Reason    string
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generator %s: %s", e.Generator, e.Reason)
}

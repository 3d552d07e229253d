package capability

import (
	"context"
	"fmt"
)

// MockGenerator returns deterministic responses for development and tests.
type MockGenerator struct {
	// Respond overrides the default response when set.
	Respond func(prompt string) (string, error)
}

func (m *MockGenerator) Name() string {
	return "mock"
}

func (m *MockGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if m.Respond != nil {
		return m.Respond(prompt)
	}
	return fmt.Sprintf("[Mock] Generated response for prompt of %d characters.", len(prompt)), nil
}

// MockAgent simulates a bounded autonomous run: a couple of reasoning and
// action observations followed by a summary.
type MockAgent struct {
	// Fail makes every run return a capability error.
	Fail bool
}

func (m *MockAgent) Name() string {
	return "mock"
}

func (m *MockAgent) Run(ctx context.Context, instruction string, input map[string]any, obs AgentObserver) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if m.Fail {
		return "", &CapabilityError{Capability: "mock", Err: fmt.Errorf("simulated agent failure")}
	}

	obs.Reasoning("Breaking the instruction into browsing steps.")
	obs.Action("navigate", map[string]any{"url": "https://example.com"})
	obs.Action("extract", map[string]any{"target": "main content"})
	obs.Reasoning("Gathered enough information to summarize.")

	return fmt.Sprintf("[Mock] Completed instruction: %s", truncate(instruction, 120)), nil
}

// StaticTool is a test helper tool with a fixed spec and invoke function.
type StaticTool struct {
	ToolSpec ToolSpec
	Fn       func(ctx context.Context, params map[string]any) (any, error)
}

func (t *StaticTool) Spec() ToolSpec {
	return t.ToolSpec
}

func (t *StaticTool) Invoke(ctx context.Context, params map[string]any) (any, error) {
	return t.Fn(ctx, params)
}

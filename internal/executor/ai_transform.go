package executor

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/veldt/flowline/internal/capability"
	"github.com/veldt/flowline/internal/workflow"
)

// AITransform executes ai_transform nodes: the instruction plus the merged
// upstream context go to the text-generation capability, and any non-empty
// response is the node output.
type AITransform struct {
	generator capability.TextGenerator
	logger    *zap.SugaredLogger
}

// NewAITransform creates the ai_transform executor.
func NewAITransform(generator capability.TextGenerator, logger *zap.SugaredLogger) *AITransform {
	return &AITransform{generator: generator, logger: logger}
}

func (e *AITransform) Kind() workflow.NodeKind {
	return workflow.KindAITransform
}

func (e *AITransform) Execute(ctx context.Context, node *workflow.Node, input map[string]any, _ capability.AgentObserver) Result {
	if node.Config.Instruction == "" {
		return failed(node, ErrKindValidation, "ai_transform node has no instruction")
	}

	instruction, err := renderTemplate(node.Config.Instruction, input)
	if err != nil {
		e.logger.Warnw("Failed to render instruction", "node_id", node.ID, "error", err)
		instruction = node.Config.Instruction
	}

	e.logger.Infow("Running transform",
		"node_id", node.ID,
		"generator", e.generator.Name(),
	)

	text, err := e.generator.Generate(ctx, transformPrompt(input, instruction))
	if err != nil {
		return failure(node, err)
	}
	if strings.TrimSpace(text) == "" {
		return failure(node, &capability.GenerationError{
			Generator: e.generator.Name(),
			Reason:    "empty response",
		})
	}
	return success(node, text)
}

// transformPrompt lays out the upstream context ahead of the instruction.
// Context keys are sorted so the prompt is stable across runs.
func transformPrompt(input map[string]any, instruction string) string {
	keys := make([]string, 0, len(input))
	for k := range input {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteString("Context:\n")
	for _, k := range keys {
		fmt.Fprintf(&sb, "%s: %v\n", k, input[k])
	}
	sb.WriteString("\nTransform/Process according to: ")
	sb.WriteString(instruction)
	return sb.String()
}

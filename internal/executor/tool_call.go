package executor

import (
	"context"

	"go.uber.org/zap"

	"github.com/veldt/flowline/internal/capability"
	"github.com/veldt/flowline/internal/workflow"
)

// ToolCall executes tool_call nodes: looks the named tool up in the
// registry, validates params against the tool's declared schema, and wraps
// the raw tool output as the node result.
type ToolCall struct {
	registry *capability.ToolRegistry
	logger   *zap.SugaredLogger
}

// NewToolCall creates the tool_call executor.
func NewToolCall(registry *capability.ToolRegistry, logger *zap.SugaredLogger) *ToolCall {
	return &ToolCall{registry: registry, logger: logger}
}

func (e *ToolCall) Kind() workflow.NodeKind {
	return workflow.KindToolCall
}

func (e *ToolCall) Execute(ctx context.Context, node *workflow.Node, input map[string]any, _ capability.AgentObserver) Result {
	if node.Config.Tool == "" {
		return failed(node, ErrKindValidation, "tool_call node has no tool name")
	}

	tool, err := e.registry.Get(node.Config.Tool)
	if err != nil {
		return failure(node, err)
	}

	params := e.resolveParams(node, input)
	if err := tool.Spec().ValidateParams(params); err != nil {
		return failure(node, err)
	}

	e.logger.Infow("Invoking tool",
		"node_id", node.ID,
		"tool", node.Config.Tool,
	)

	output, err := tool.Invoke(ctx, params)
	if err != nil {
		return failure(node, err)
	}
	return success(node, output)
}

// resolveParams renders template references inside string params against the
// upstream context. Non-string values pass through untouched.
func (e *ToolCall) resolveParams(node *workflow.Node, input map[string]any) map[string]any {
	resolved := make(map[string]any, len(node.Config.Params))
	for key, val := range node.Config.Params {
		if s, ok := val.(string); ok {
			rendered, err := renderTemplate(s, input)
			if err != nil {
				e.logger.Warnw("Failed to render tool param", "node_id", node.ID, "param", key, "error", err)
				rendered = s
			}
			resolved[key] = rendered
			continue
		}
		resolved[key] = val
	}
	return resolved
}

package executor

import (
	"context"

	"go.uber.org/zap"

	"github.com/veldt/flowline/internal/capability"
	"github.com/veldt/flowline/internal/workflow"
)

// AutonomousAgent executes autonomous_agent nodes. The agent capability may
// perform a bounded sequence of sub-actions before returning; those surface
// through the observer as action/reasoning events while the node is still
// executing. This is the only executor allowed to emit sub-events.
type AutonomousAgent struct {
	agent  capability.Agent
	logger *zap.SugaredLogger
}

// NewAutonomousAgent creates the autonomous_agent executor.
func NewAutonomousAgent(agent capability.Agent, logger *zap.SugaredLogger) *AutonomousAgent {
	return &AutonomousAgent{agent: agent, logger: logger}
}

func (e *AutonomousAgent) Kind() workflow.NodeKind {
	return workflow.KindAutonomousAgent
}

func (e *AutonomousAgent) Execute(ctx context.Context, node *workflow.Node, input map[string]any, obs capability.AgentObserver) Result {
	if node.Config.Instruction == "" {
		return failed(node, ErrKindValidation, "autonomous_agent node has no instruction")
	}
	if obs == nil {
		obs = noopObserver{}
	}

	instruction, err := renderTemplate(node.Config.Instruction, input)
	if err != nil {
		e.logger.Warnw("Failed to render instruction", "node_id", node.ID, "error", err)
		instruction = node.Config.Instruction
	}

	e.logger.Infow("Dispatching autonomous agent",
		"node_id", node.ID,
		"agent", e.agent.Name(),
	)

	summary, err := e.agent.Run(ctx, instruction, input, obs)
	if err != nil {
		return failure(node, err)
	}
	return success(node, summary)
}

type noopObserver struct{}

func (noopObserver) Action(string, map[string]any) {}
func (noopObserver) Reasoning(string)              {}

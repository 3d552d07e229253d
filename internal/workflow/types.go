package workflow

import "fmt"

// NodeKind discriminates which executor handles a node.
type NodeKind string

const (
	KindToolCall        NodeKind = "tool_call"
	KindAITransform     NodeKind = "ai_transform"
	KindAutonomousAgent NodeKind = "autonomous_agent"
)

// Valid reports whether the kind is one of the known node kinds.
func (k NodeKind) Valid() bool {
	switch k {
	case KindToolCall, KindAITransform, KindAutonomousAgent:
		return true
	default:
		return false
	}
}

// NodeConfig carries the kind-specific configuration of a node.
// Tool/Params apply to tool_call nodes; Instruction applies to
// ai_transform and autonomous_agent nodes.
type NodeConfig struct {
	Tool        string         `json:"tool,omitempty"`
	Params      map[string]any `json:"params,omitempty"`
	Instruction string         `json:"instruction,omitempty"`
}

// Node is one step of a workflow.
type Node struct {
	ID     string     `json:"id"`
	Kind   NodeKind   `json:"kind"`
	Label  string     `json:"label,omitempty"`
	Config NodeConfig `json:"config"`
}

// Edge is a directed dependency: the output of Source feeds into Target.
type Edge struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Target string `json:"target"`
}

// Document is a persisted workflow definition. The orchestrator snapshots
// a document at run start and executes against that snapshot; concurrent
// edits to the persisted copy do not affect a running execution.
type Document struct {
	Nodes   []Node `json:"nodes"`
	Edges   []Edge `json:"edges"`
	Version int    `json:"version"`
}

// GraphError codes, fatal before any node executes.
const (
	CodeCyclicGraph   = "cyclic_graph"
	CodeUnknownNode   = "unknown_node"
	CodeDuplicateNode = "duplicate_node"
	CodeUnknownKind   = "unknown_kind"
	CodeEmptyWorkflow = "empty_workflow"
)

// GraphError reports a structurally invalid workflow document.
type GraphError struct {
	Code    string
	Message string
}

func (e *GraphError) Error() string {
	return fmt.Sprintf("invalid workflow graph (%s): %s", e.Code, e.Message)
}

func graphErrorf(code, format string, args ...any) *GraphError {
	return &GraphError{Code: code, Message: fmt.Sprintf(format, args...)}
}

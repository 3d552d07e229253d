package engine

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/veldt/flowline/internal/workflow"
)

func planFor(t *testing.T, doc *workflow.Document) *workflow.Plan {
	t.Helper()
	plan, err := workflow.Validate(doc)
	require.NoError(t, err)
	return plan
}

func TestContextForMergesPredecessors(t *testing.T) {
	plan := planFor(t, &workflow.Document{
		Nodes: []workflow.Node{
			{ID: "a", Kind: workflow.KindToolCall},
			{ID: "b", Kind: workflow.KindToolCall},
			{ID: "c", Kind: workflow.KindToolCall},
		},
		Edges: []workflow.Edge{
			{Source: "a", Target: "c"},
			{Source: "b", Target: "c"},
		},
	})

	store := NewContextStore(plan)
	store.Set("a", map[string]any{"greeting": "hello", "shared": "from-a"})
	store.Set("b", map[string]any{"shared": "from-b"})

	merged := store.ContextFor("c")

	require.Equal(t, map[string]any{"greeting": "hello", "shared": "from-a"}, merged["a"])
	require.Equal(t, map[string]any{"shared": "from-b"}, merged["b"])
	require.Equal(t, "hello", merged["greeting"])
	// b comes later in execution order, so its flattened key wins.
	require.Equal(t, "from-b", merged["shared"])
}

func TestContextForScalarOutput(t *testing.T) {
	plan := planFor(t, &workflow.Document{
		Nodes: []workflow.Node{
			{ID: "a", Kind: workflow.KindAITransform},
			{ID: "b", Kind: workflow.KindAITransform},
		},
		Edges: []workflow.Edge{{Source: "a", Target: "b"}},
	})

	store := NewContextStore(plan)
	store.Set("a", "plain text output")

	merged := store.ContextFor("b")
	require.Equal(t, map[string]any{"a": "plain text output"}, merged)
}

func TestContextForSkipsMissingOutputs(t *testing.T) {
	plan := planFor(t, &workflow.Document{
		Nodes: []workflow.Node{
			{ID: "a", Kind: workflow.KindToolCall},
			{ID: "b", Kind: workflow.KindToolCall},
		},
		Edges: []workflow.Edge{{Source: "a", Target: "b"}},
	})

	store := NewContextStore(plan)
	require.Empty(t, store.ContextFor("b"))
}

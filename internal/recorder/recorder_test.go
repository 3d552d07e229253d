package recorder

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/veldt/flowline/internal/event"
)

func TestMemoryOpenAppendClose(t *testing.T) {
	ctx := context.Background()
	rec := NewMemory()

	runID, err := rec.Open(ctx, "wf-1")
	require.NoError(t, err)
	require.NotEmpty(t, runID)

	run, ok := rec.Run(runID)
	require.True(t, ok)
	require.Equal(t, "pending", run.Status)
	require.Nil(t, run.CompletedAt)

	require.NoError(t, rec.Start(ctx, runID))
	run, ok = rec.Run(runID)
	require.True(t, ok)
	require.Equal(t, "running", run.Status)

	err = rec.Append(ctx, &event.Event{
		ID:         "e1",
		RunID:      runID,
		Type:       event.TypeNodeStart,
		NodeID:     "a",
		StepNumber: 1,
		Timestamp:  time.Now(),
	})
	require.NoError(t, err)

	err = rec.Append(ctx, &event.Event{
		ID:         "e2",
		RunID:      runID,
		Type:       event.TypeDone,
		StepNumber: 2,
		Timestamp:  time.Now(),
	})
	require.NoError(t, err)

	require.NoError(t, rec.Close(ctx, runID, "completed"))

	run, ok = rec.Run(runID)
	require.True(t, ok)
	require.Equal(t, "completed", run.Status)
	require.NotNil(t, run.CompletedAt)
	require.Len(t, run.Events, 2)
	require.Equal(t, event.TypeNodeStart, run.Events[0].Type)
	require.Equal(t, 2, run.Events[1].StepNumber)
}

func TestMemoryAppendUnknownRun(t *testing.T) {
	rec := NewMemory()
	err := rec.Append(context.Background(), &event.Event{RunID: "missing"})
	require.Error(t, err)
	require.Error(t, rec.Start(context.Background(), "missing"))
}

func TestMemoryRunsNewestFirst(t *testing.T) {
	ctx := context.Background()
	rec := NewMemory()

	first, err := rec.Open(ctx, "wf-1")
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	second, err := rec.Open(ctx, "wf-1")
	require.NoError(t, err)

	_, err = rec.Open(ctx, "wf-2")
	require.NoError(t, err)

	runs := rec.Runs("wf-1")
	require.Len(t, runs, 2)
	require.Equal(t, second, runs[0].ID)
	require.Equal(t, first, runs[1].ID)
}

func TestMemoryRunCopyIsolation(t *testing.T) {
	ctx := context.Background()
	rec := NewMemory()

	runID, err := rec.Open(ctx, "wf-1")
	require.NoError(t, err)
	require.NoError(t, rec.Append(ctx, &event.Event{ID: "e1", RunID: runID, Type: event.TypeNodeStart}))

	run, ok := rec.Run(runID)
	require.True(t, ok)
	run.Events[0].ID = "mutated"

	again, ok := rec.Run(runID)
	require.True(t, ok)
	require.Equal(t, "e1", again.Events[0].ID)
}

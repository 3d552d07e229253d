package api

import (
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/veldt/flowline/internal/event"
	"github.com/veldt/flowline/internal/workflow"
)

func dialStream(t *testing.T, httpURL, workflowID string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(httpURL, "http") + "/ws/workflows/" + workflowID + "/run"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readStream collects frames until the done event or the deadline.
func readStream(t *testing.T, conn *websocket.Conn) []event.Event {
	t.Helper()
	var events []event.Event
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return events
		}
		var frame struct {
			Type string `json:"type"`
		}
		require.NoError(t, json.Unmarshal(data, &frame))
		if frame.Type == "keepalive" {
			continue
		}
		var evt event.Event
		require.NoError(t, json.Unmarshal(data, &evt))
		events = append(events, evt)
		if evt.Type == event.TypeDone {
			return events
		}
	}
}

func TestStreamRunEvents(t *testing.T) {
	f := newServerFixture(t)
	f.store.docs["wf-1"] = echoDocument()

	conn := dialStream(t, f.server.URL, "wf-1")
	events := readStream(t, conn)

	require.NotEmpty(t, events)
	require.Equal(t, event.TypeNodeStart, events[0].Type)
	require.Equal(t, "a", events[0].NodeID)
	require.Equal(t, event.TypeDone, events[len(events)-1].Type)
	require.Equal(t, "completed", events[len(events)-1].Payload["status"])

	for i, evt := range events {
		require.Equal(t, i+1, evt.StepNumber)
	}
}

func TestStreamInvalidGraph(t *testing.T) {
	f := newServerFixture(t)
	doc := echoDocument()
	doc.Nodes = append(doc.Nodes, doc.Nodes[0]) // duplicate node id
	f.store.docs["wf-bad"] = doc

	conn := dialStream(t, f.server.URL, "wf-bad")

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var evt event.Event
	require.NoError(t, json.Unmarshal(data, &evt))
	require.Equal(t, event.TypeError, evt.Type)
	require.NotEmpty(t, evt.Payload["error"])
}

func TestStreamUnknownWorkflow(t *testing.T) {
	f := newServerFixture(t)

	wsURL := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws/workflows/missing/run"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	require.Equal(t, 404, resp.StatusCode)
}

func TestStreamSubscriptionDetachBeforeAttach(t *testing.T) {
	logger := zap.NewNop().Sugar()
	bus := event.NewBus(logger)

	var got int
	sub := &streamSubscription{
		bus:     bus,
		deliver: func(*event.Event) { got++ },
	}

	// Client gone before the runner ever reported the run id.
	sub.detach()
	sub.attach("run-1")

	bus.Publish(&event.Event{RunID: "run-1", Type: event.TypeNodeStart})
	require.Zero(t, got)
}

func TestStreamSubscriptionAttachThenDetach(t *testing.T) {
	logger := zap.NewNop().Sugar()
	bus := event.NewBus(logger)

	var got int
	sub := &streamSubscription{
		bus:     bus,
		deliver: func(*event.Event) { got++ },
	}

	sub.attach("run-1")
	bus.Publish(&event.Event{RunID: "run-1", Type: event.TypeNodeStart})
	require.Equal(t, 1, got)

	sub.detach()
	bus.Publish(&event.Event{RunID: "run-1", Type: event.TypeNodeComplete})
	require.Equal(t, 1, got)
}

func TestStreamEarlyDisconnectDoesNotStopRun(t *testing.T) {
	f := newServerFixture(t)
	f.store.docs["wf-slow"] = &workflow.Document{
		Nodes: []workflow.Node{{
			ID:     "s",
			Kind:   workflow.KindToolCall,
			Config: workflow.NodeConfig{Tool: "sleep"},
		}},
	}

	var mu sync.Mutex
	var done bool
	f.bus.Subscribe("*", func(evt *event.Event) {
		mu.Lock()
		defer mu.Unlock()
		if evt.Type == event.TypeDone {
			done = true
		}
	})

	conn := dialStream(t, f.server.URL, "wf-slow")
	conn.Close()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return done
	}, 5*time.Second, 20*time.Millisecond)
}

func TestStreamKeepaliveDuringSlowNode(t *testing.T) {
	f := newServerFixture(t)

	// The sleep tool outlasts the fixture's 50ms keepalive period, so the
	// stream must carry at least one keepalive frame before done.
	f.store.docs["wf-slow"] = &workflow.Document{
		Nodes: []workflow.Node{{
			ID:     "s",
			Kind:   workflow.KindToolCall,
			Config: workflow.NodeConfig{Tool: "sleep"},
		}},
	}

	conn := dialStream(t, f.server.URL, "wf-slow")

	sawKeepalive := false
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		var frame struct {
			Type string `json:"type"`
		}
		require.NoError(t, json.Unmarshal(data, &frame))
		if frame.Type == "keepalive" {
			sawKeepalive = true
		}
		if frame.Type == string(event.TypeDone) {
			break
		}
	}
	require.True(t, sawKeepalive)
}

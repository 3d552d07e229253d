package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/veldt/flowline/internal/event"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait).
	pingPeriod = 54 * time.Second

	// Per-connection event buffer; a stalled reader drops events rather
	// than blocking the orchestrator.
	streamBuffer = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// handleRunStream upgrades the connection, starts a run of the workflow,
// and streams its events as JSON text frames. Closing the socket does not
// stop the run; the durable record stays complete either way.
func (s *Server) handleRunStream(w http.ResponseWriter, r *http.Request) {
	workflowID := r.PathValue("id")

	doc, err := s.store.GetWorkflowDocument(r.Context(), workflowID)
	if err != nil {
		s.logger.Errorw("Failed to load workflow", "workflow_id", workflowID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load workflow")
		return
	}
	if doc == nil {
		writeError(w, http.StatusNotFound, "workflow not found")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warnw("WebSocket upgrade failed", "workflow_id", workflowID, "error", err)
		return
	}
	defer conn.Close()

	events := make(chan *event.Event, streamBuffer)
	sub := &streamSubscription{
		bus: s.bus,
		deliver: func(evt *event.Event) {
			select {
			case events <- evt:
			default:
				s.logger.Warnw("Dropping event for slow stream client",
					"run_id", evt.RunID,
					"step_number", evt.StepNumber,
				)
			}
		},
	}
	defer sub.detach()

	// The run outlives this connection on purpose.
	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		if _, err := s.runner.ExecuteWithNotify(context.WithoutCancel(r.Context()), workflowID, doc, sub.attach); err != nil {
			s.logger.Warnw("Streamed run failed to start", "workflow_id", workflowID, "error", err)
		}
	}()

	// Reader drains control frames and detects the client going away.
	readerGone := make(chan struct{})
	go func() {
		defer close(readerGone)
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(pongWait))
			return nil
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	keepalive := time.NewTicker(s.keepalive)
	defer keepalive.Stop()
	pings := time.NewTicker(pingPeriod)
	defer pings.Stop()

	for {
		select {
		case evt := <-events:
			if err := writeEventFrame(conn, evt); err != nil {
				return
			}
			if terminalEvent(evt) {
				writeCloseFrame(conn)
				return
			}

		case <-runDone:
			// Flush whatever is buffered, then close.
			for {
				select {
				case evt := <-events:
					if err := writeEventFrame(conn, evt); err != nil {
						return
					}
				default:
					writeCloseFrame(conn)
					return
				}
			}

		case <-keepalive.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"keepalive"}`)); err != nil {
				return
			}

		case <-pings.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-readerGone:
			return
		}
	}
}

// streamSubscription ties one connection to one run channel. The run id
// arrives on the runner's goroutine while the handler may already be
// tearing down, so attach and detach synchronize: a detach before attach
// turns the attach into a no-op instead of leaking a subscription.
type streamSubscription struct {
	bus     *event.Bus
	deliver func(*event.Event)

	mu       sync.Mutex
	channel  string
	detached bool
}

func (s *streamSubscription) attach(runID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.detached {
		return
	}
	s.channel = event.RunChannel(runID)
	s.bus.Subscribe(s.channel, s.deliver)
}

func (s *streamSubscription) detach() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.detached = true
	if s.channel != "" {
		s.bus.Unsubscribe(s.channel)
		s.channel = ""
	}
}

// terminalEvent reports whether the stream is complete after this event.
// done always ends a run; a run-level error means execution never started.
func terminalEvent(evt *event.Event) bool {
	if evt.Type == event.TypeDone {
		return true
	}
	return evt.Type == event.TypeError && evt.NodeID == ""
}

func writeEventFrame(conn *websocket.Conn, evt *event.Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, data)
}

func writeCloseFrame(conn *websocket.Conn) {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

package event

import (
	"sync"

	"go.uber.org/zap"
)

// Subscriber is a function that receives events.
type Subscriber func(evt *Event)

// Bus is an in-memory publish channel for run events. The orchestrator is
// the only publisher; transport adapters (websocket stream) subscribe.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string][]Subscriber // channel → subscribers
	logger      *zap.SugaredLogger
}

// NewBus creates a new event bus.
func NewBus(logger *zap.SugaredLogger) *Bus {
	return &Bus{
		subscribers: make(map[string][]Subscriber),
		logger:      logger,
	}
}

// Subscribe registers a subscriber for a channel.
// channel can be "*" for all events, or "run:{id}" for a specific run.
func (b *Bus) Subscribe(channel string, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[channel] = append(b.subscribers[channel], sub)
}

// Unsubscribe removes all subscribers for a channel.
func (b *Bus) Unsubscribe(channel string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subscribers, channel)
}

// RunChannel returns the per-run subscription channel name.
func RunChannel(runID string) string {
	return "run:" + runID
}

// Publish delivers an event to all matching subscribers. Fire-and-forget:
// delivery to a slow observer must never block the orchestrator, so
// subscribers are expected to buffer and drop internally.
func (b *Bus) Publish(evt *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	b.logger.Debugw("Publishing event",
		"type", evt.Type,
		"run_id", evt.RunID,
		"node_id", evt.NodeID,
		"step_number", evt.StepNumber,
	)

	for _, sub := range b.subscribers["*"] {
		sub(evt)
	}

	if evt.RunID != "" {
		for _, sub := range b.subscribers[RunChannel(evt.RunID)] {
			sub(evt)
		}
	}
}

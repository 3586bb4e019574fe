// Package bus provides event bus abstractions used to publish
// registry-change and thread lifecycle events for external observers.
// These events are a convenience layer on top of the Tool Surface, not
// part of its authoritative contract.
package bus

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event types published by the Hub. Subjects double as event types for
// the in-memory bus and as NATS subjects for the real one.
const (
	EventAgentRegistered = "agent.registered"
	EventAgentDisplaced  = "agent.displaced"
	EventAgentEvicted    = "agent.evicted"
	EventThreadCreated   = "thread.created"
	EventThreadClosed    = "thread.closed"
)

// Event represents a message on the event bus.
type Event struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	Source    string                 `json:"source"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// NewEvent creates a new event with a fresh id and the current timestamp.
func NewEvent(eventType, source string, data map[string]interface{}) *Event {
	return &Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Source:    source,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

// Handler processes a received event.
type Handler func(ctx context.Context, event *Event) error

// Subscription represents an active subscription.
type Subscription interface {
	Unsubscribe() error
}

// EventBus is the interface the Hub publishes registry-change and thread
// lifecycle events through. Implementations: NATSEventBus (real) and
// MemoryEventBus (fallback when no broker URL is configured).
type EventBus interface {
	Publish(ctx context.Context, subject string, event *Event) error
	Subscribe(subject string, handler Handler) (Subscription, error)
	Close()
	IsConnected() bool
}

package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event is implemented by every domain event dispatched on the bus.
type Event interface {
	EventID() uuid.UUID
	EventType() string
	OccurredAt() time.Time
	AggregateID() uuid.UUID
}

// BaseEvent carries the common event fields. Embed it in concrete events.
type BaseEvent struct {
	ID        uuid.UUID `json:"id"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Aggregate uuid.UUID `json:"aggregate_id"`
}

func (e BaseEvent) EventID() uuid.UUID     { return e.ID }
func (e BaseEvent) EventType() string      { return e.Type }
func (e BaseEvent) OccurredAt() time.Time  { return e.Timestamp }
func (e BaseEvent) AggregateID() uuid.UUID { return e.Aggregate }

// NewBaseEvent creates a BaseEvent stamped at the given time.
func NewBaseEvent(eventType string, aggregateID uuid.UUID, at time.Time) BaseEvent {
	return BaseEvent{
		ID:        uuid.New(),
		Type:      eventType,
		Timestamp: at,
		Aggregate: aggregateID,
	}
}

// Handler processes events of the types it declares.
// Handlers must tolerate seeing the same event twice.
type Handler interface {
	Handles() []string
	Handle(ctx context.Context, event Event) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc struct {
	eventTypes []string
	fn         func(context.Context, Event) error
}

// NewHandlerFunc creates a HandlerFunc for the given event types.
func NewHandlerFunc(eventTypes []string, fn func(context.Context, Event) error) *HandlerFunc {
	return &HandlerFunc{eventTypes: eventTypes, fn: fn}
}

// Handles returns the event types this handler accepts.
func (h *HandlerFunc) Handles() []string {
	return h.eventTypes
}

// Handle invokes the wrapped function.
func (h *HandlerFunc) Handle(ctx context.Context, event Event) error {
	return h.fn(ctx, event)
}

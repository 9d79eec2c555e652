package events

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Bus is a synchronous in-process event bus.
// Handler failures are logged and never returned to the publisher.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	logger   *zap.Logger
}

// NewBus creates a new event bus.
func NewBus(logger *zap.Logger) *Bus {
	return &Bus{
		handlers: make(map[string][]Handler),
		logger:   logger,
	}
}

// Register registers a handler for the events it handles.
func (b *Bus) Register(handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, eventType := range handler.Handles() {
		b.handlers[eventType] = append(b.handlers[eventType], handler)
		b.logger.Debug("registered event handler", zap.String("event_type", eventType))
	}
}

// Publish dispatches a domain event to its handlers in registration order.
// It satisfies outbound.EventPublisherPort.
func (b *Bus) Publish(ctx context.Context, event interface{}) error {
	ev, ok := event.(Event)
	if !ok {
		return fmt.Errorf("publish: unsupported event type %T", event)
	}

	b.mu.RLock()
	handlers := b.handlers[ev.EventType()]
	b.mu.RUnlock()

	if len(handlers) == 0 {
		b.logger.Debug("no handlers registered for event",
			zap.String("event_type", ev.EventType()),
			zap.String("event_id", ev.EventID().String()),
		)
		return nil
	}

	for _, handler := range handlers {
		if err := b.dispatch(ctx, handler, ev); err != nil {
			b.logger.Error("event handler failed",
				zap.String("event_type", ev.EventType()),
				zap.String("event_id", ev.EventID().String()),
				zap.String("aggregate_id", ev.AggregateID().String()),
				zap.Error(err),
			)
		}
	}
	return nil
}

// dispatch isolates a panicking handler from the publisher.
func (b *Bus) dispatch(ctx context.Context, handler Handler, ev Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return handler.Handle(ctx, ev)
}

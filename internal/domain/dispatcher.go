package domain

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"oauthbridge.io/bridge/internal/pkg/logger"
)

// EventHandler processes a domain event.
type EventHandler func(ctx context.Context, event *DomainEvent) error

// EventDispatcher routes login events to registered handlers.
// A nil *EventDispatcher drops every event.
type EventDispatcher struct {
	handlers map[EventType][]EventHandler
	mu       sync.RWMutex
}

// NewEventDispatcher creates a new EventDispatcher.
func NewEventDispatcher() *EventDispatcher {
	return &EventDispatcher{
		handlers: make(map[EventType][]EventHandler),
	}
}

// Register registers a handler for a specific event type.
func (d *EventDispatcher) Register(eventType EventType, handler EventHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[eventType] = append(d.handlers[eventType], handler)
}

// NewEvent builds an event about a user, encoding payload as JSON.
func NewEvent(eventType EventType, userID, actor string, payload interface{ ToJSON() ([]byte, error) }) (*DomainEvent, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate event id: %w", err)
	}
	data, err := payload.ToJSON()
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", eventType, err)
	}
	return &DomainEvent{
		EventID:       id.String(),
		EventType:     eventType,
		AggregateType: "user",
		AggregateID:   userID,
		Payload:       data,
		CreatedBy:     actor,
		CreatedAt:     time.Now().UTC(),
	}, nil
}

// Dispatch calls every handler for the event in registration order.
// A failing handler does not stop the others; all errors are joined.
func (d *EventDispatcher) Dispatch(ctx context.Context, event *DomainEvent) error {
	if d == nil || event == nil {
		return nil
	}

	d.mu.RLock()
	handlers := d.handlers[event.EventType]
	d.mu.RUnlock()

	if len(handlers) == 0 {
		logger.Debug("No handlers registered for event type",
			zap.String("event_type", string(event.EventType)),
		)
		return nil
	}

	var errs []error
	for _, handler := range handlers {
		if err := handler(ctx, event); err != nil {
			logger.Warn("Event handler failed",
				zap.String("event_type", string(event.EventType)),
				zap.String("event_id", event.EventID),
				zap.Error(err),
			)
			errs = append(errs, fmt.Errorf("handler for %s: %w", event.EventType, err))
		}
	}
	return errors.Join(errs...)
}

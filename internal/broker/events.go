package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"canteen-service/internal/models"
	"canteen-service/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// ErrMalformedEvent marks a message that can never be handled
var ErrMalformedEvent = errors.New("malformed event")

// EventHandler routes incoming events to the registered handlers
type EventHandler struct {
	onOrderPlaced      func(context.Context, *models.OrderPlacedEvent) error
	onOrderCancelled   func(context.Context, *models.OrderCancelledEvent) error
	onAccountRecharged func(context.Context, *models.AccountRechargedEvent) error
	logger             *zap.Logger
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{logger: util.GetLogger()}
}

// OnOrderPlaced registers a handler for OrderPlaced events
func (eh *EventHandler) OnOrderPlaced(handler func(context.Context, *models.OrderPlacedEvent) error) {
	eh.onOrderPlaced = handler
}

// OnOrderCancelled registers a handler for OrderCancelled events
func (eh *EventHandler) OnOrderCancelled(handler func(context.Context, *models.OrderCancelledEvent) error) {
	eh.onOrderCancelled = handler
}

// OnAccountRecharged registers a handler for AccountRecharged events
func (eh *EventHandler) OnAccountRecharged(handler func(context.Context, *models.AccountRechargedEvent) error) {
	eh.onAccountRecharged = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %v: %w", err, ErrMalformedEvent)
	}
	if baseEvent.EventID == "" {
		return fmt.Errorf("event %s has no id: %w", baseEvent.EventType, ErrMalformedEvent)
	}

	eh.logger.Debug("Handling event",
		zap.String("event_type", baseEvent.EventType),
		zap.String("event_id", baseEvent.EventID))

	switch baseEvent.EventType {
	case models.EventTypeOrderPlaced:
		if eh.onOrderPlaced != nil {
			var event models.OrderPlacedEvent
			if err := decode(msg.Value, &event); err != nil {
				return err
			}
			return eh.onOrderPlaced(ctx, &event)
		}

	case models.EventTypeOrderCancelled:
		if eh.onOrderCancelled != nil {
			var event models.OrderCancelledEvent
			if err := decode(msg.Value, &event); err != nil {
				return err
			}
			return eh.onOrderCancelled(ctx, &event)
		}

	case models.EventTypeAccountRecharged:
		if eh.onAccountRecharged != nil {
			var event models.AccountRechargedEvent
			if err := decode(msg.Value, &event); err != nil {
				return err
			}
			return eh.onAccountRecharged(ctx, &event)
		}

	default:
		eh.logger.Debug("Unhandled event type", zap.String("event_type", baseEvent.EventType))
	}

	return nil
}

func decode(raw []byte, event interface{}) error {
	if err := json.Unmarshal(raw, event); err != nil {
		return fmt.Errorf("failed to unmarshal %T: %v: %w", event, err, ErrMalformedEvent)
	}
	return nil
}

// LocalPublisher hands outbox events straight to an EventHandler in process.
// It stands in for Kafka when no broker is configured.
type LocalPublisher struct {
	handler *EventHandler
}

// NewLocalPublisher creates a publisher that dispatches to handler
func NewLocalPublisher(handler *EventHandler) *LocalPublisher {
	return &LocalPublisher{handler: handler}
}

// PublishOutbox dispatches events in order and stops at the first failure
func (lp *LocalPublisher) PublishOutbox(ctx context.Context, events []models.OutboxEvent) error {
	for _, e := range events {
		err := lp.handler.HandleMessage(ctx, outboxMessage(e))
		if err != nil && !errors.Is(err, ErrMalformedEvent) {
			return fmt.Errorf("failed to dispatch event %s: %w", e.ID, err)
		}
	}
	return nil
}

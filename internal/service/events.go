package service

import (
	"encoding/json"
	"fmt"
	"time"

	"canteen-service/internal/models"

	"github.com/google/uuid"
)

func newBaseEvent(eventType string, at time.Time) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: at,
	}
}

// outboxEvent serializes evt into an outbox record keyed for partitioning
func outboxEvent(base models.BaseEvent, key string, evt interface{}) (*models.OutboxEvent, error) {
	payload, err := json.Marshal(evt)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s event: %w", base.EventType, err)
	}
	return &models.OutboxEvent{
		ID:        base.EventID,
		EventType: base.EventType,
		Key:       key,
		Payload:   payload,
		CreatedAt: base.Timestamp,
	}, nil
}

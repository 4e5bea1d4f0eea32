package service

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sipadmin/funds-engine/internal/model"
	"github.com/sipadmin/funds-engine/internal/repo"
)

// notify queues a notification in the outbox inside tx. The poller ships it
// to Kafka after commit; nothing here waits for delivery.
func notify(ctx context.Context, r repo.OutboxRepository, tx *gorm.DB, aggregate string, aggregateID uint64, eventType string, payload map[string]interface{}) error {
	payload["event_id"] = uuid.NewString()
	payload["event_type"] = eventType
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return r.CreateOutboxEvent(ctx, tx, &model.OutboxEvent{
		Aggregate:   aggregate,
		AggregateID: aggregateID,
		EventType:   eventType,
		Payload:     string(body),
	})
}

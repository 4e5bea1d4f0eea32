// Package outbox ships committed outbox events to Kafka.
package outbox

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sipadmin/funds-engine/internal/metrics"
	"github.com/sipadmin/funds-engine/internal/model"
)

// Store is the slice of the repository the dispatcher uses.
type Store interface {
	PollOutbox(ctx context.Context, limit int) ([]model.OutboxEvent, error)
	MarkOutboxProcessed(ctx context.Context, id uint64) error
	PublishEvent(ctx context.Context, evt model.OutboxEvent) error
}

// Dispatcher publishes unprocessed events in id order. Delivery is at least
// once: an event published but not marked is sent again on the next tick.
type Dispatcher struct {
	store Store
	batch int
	log   *zap.SugaredLogger
}

func NewDispatcher(s Store, batch int, logger *zap.SugaredLogger) *Dispatcher {
	if batch <= 0 {
		batch = 100
	}
	return &Dispatcher{store: s, batch: batch, log: logger}
}

// RunOnce publishes one batch and returns how many events were marked
// processed. It stops at the first failure; the failed event and everything
// after it are retried on the next call.
func (d *Dispatcher) RunOnce(ctx context.Context) (int, error) {
	events, err := d.store.PollOutbox(ctx, d.batch)
	if err != nil {
		return 0, err
	}
	sent := 0
	for _, evt := range events {
		if err := d.store.PublishEvent(ctx, evt); err != nil {
			metrics.OutboxPublished.WithLabelValues("error").Inc()
			return sent, fmt.Errorf("publish outbox event %d: %w", evt.ID, err)
		}
		if err := d.store.MarkOutboxProcessed(ctx, evt.ID); err != nil {
			return sent, fmt.Errorf("mark outbox event %d processed: %w", evt.ID, err)
		}
		metrics.OutboxPublished.WithLabelValues("ok").Inc()
		sent++
	}
	return sent, nil
}

// Run ticks until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	d.log.Infow("outbox dispatcher started", "interval", interval.String(), "batch", d.batch)
	for {
		select {
		case <-ctx.Done():
			d.log.Info("outbox dispatcher stopped")
			return
		case <-ticker.C:
			n, err := d.RunOnce(ctx)
			if err != nil {
				d.log.Errorw("dispatch outbox", "sent", n, "error", err)
				continue
			}
			if n > 0 {
				d.log.Debugw("outbox events sent", "count", n)
			}
		}
	}
}

package worker

import (
	"context"
	"time"

	"canteen-service/internal/broker"
	"canteen-service/internal/models"
	"canteen-service/internal/service"
	"canteen-service/internal/util"

	"go.uber.org/zap"
)

// OutboxStore is the part of the repository the relay needs
type OutboxStore interface {
	FetchUnpublishedEvents(ctx context.Context, limit int) ([]models.OutboxEvent, error)
	MarkEventsPublished(ctx context.Context, ids []string) error
}

// Publisher delivers outbox events downstream
type Publisher interface {
	PublishOutbox(ctx context.Context, events []models.OutboxEvent) error
}

// OutboxRelay moves committed outbox events to the broker. Delivery is at least
// once: an event is marked published only after the publisher accepted it.
type OutboxRelay struct {
	store     OutboxStore
	publisher Publisher
	interval  time.Duration
	batchSize int
	logger    *zap.Logger
}

// NewOutboxRelay creates a new outbox relay
func NewOutboxRelay(store OutboxStore, publisher Publisher, interval time.Duration, batchSize int) *OutboxRelay {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &OutboxRelay{
		store:     store,
		publisher: publisher,
		interval:  interval,
		batchSize: batchSize,
		logger:    util.GetLogger(),
	}
}

// Start polls the outbox until ctx is done
func (r *OutboxRelay) Start(ctx context.Context) error {
	r.logger.Info("Starting outbox relay", zap.Duration("interval", r.interval))

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Stopping outbox relay")
			return ctx.Err()
		case <-ticker.C:
			if _, err := r.Drain(ctx); err != nil && ctx.Err() == nil {
				r.logger.Error("Outbox relay failed", zap.Error(err))
			}
		}
	}
}

// Drain relays batches until the outbox is empty and returns how many events went out
func (r *OutboxRelay) Drain(ctx context.Context) (int, error) {
	total := 0
	for {
		n, err := r.RelayOnce(ctx)
		total += n
		if err != nil || n < r.batchSize {
			return total, err
		}
	}
}

// RelayOnce relays at most one batch
func (r *OutboxRelay) RelayOnce(ctx context.Context) (int, error) {
	events, err := r.store.FetchUnpublishedEvents(ctx, r.batchSize)
	if err != nil {
		return 0, err
	}
	if len(events) == 0 {
		return 0, nil
	}

	if err := r.publisher.PublishOutbox(ctx, events); err != nil {
		util.OutboxPublishFailures.Inc()
		return 0, err
	}

	ids := make([]string, len(events))
	for i, e := range events {
		ids[i] = e.ID
	}
	if err := r.store.MarkEventsPublished(ctx, ids); err != nil {
		// The batch is sent again on the next tick; consumers drop duplicates by event id.
		return 0, err
	}

	util.OutboxPublishedTotal.Add(float64(len(events)))
	r.logger.Debug("Outbox events relayed", zap.Int("count", len(events)))
	return len(events), nil
}

// MessageSource is a stream of broker messages
type MessageSource interface {
	StartConsuming(ctx context.Context, handler broker.MessageHandler) error
	Close() error
}

// StatsWorker folds order and recharge events into the global stats
type StatsWorker struct {
	source       MessageSource
	eventHandler *broker.EventHandler
	logger       *zap.Logger
}

// NewStatsHandler routes stats-relevant events to statsService
func NewStatsHandler(statsService *service.StatsService) *broker.EventHandler {
	eventHandler := broker.NewEventHandler()

	eventHandler.OnOrderPlaced(statsService.HandleOrderPlaced)
	eventHandler.OnOrderCancelled(statsService.HandleOrderCancelled)
	eventHandler.OnAccountRecharged(statsService.HandleRecharged)

	return eventHandler
}

// NewStatsWorker creates a new stats worker
func NewStatsWorker(source MessageSource, statsService *service.StatsService) *StatsWorker {
	return &StatsWorker{
		source:       source,
		eventHandler: NewStatsHandler(statsService),
		logger:       util.GetLogger(),
	}
}

// Start starts the worker
func (w *StatsWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting stats worker")
	return w.source.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *StatsWorker) Stop() error {
	w.logger.Info("Stopping stats worker")
	return w.source.Close()
}

package service

import (
	"context"
	"fmt"

	"canteen-service/internal/models"
	"canteen-service/internal/store"
	"canteen-service/internal/util"

	"go.uber.org/zap"
)

// StatsService folds committed order and recharge events into the global aggregate
type StatsService struct {
	store  store.Repository
	logger *zap.Logger
}

// NewStatsService creates a new stats service
func NewStatsService(repo store.Repository) *StatsService {
	return &StatsService{
		store:  repo,
		logger: util.GetLogger(),
	}
}

// HandleOrderPlaced adds a placed order to the aggregate
func (ss *StatsService) HandleOrderPlaced(ctx context.Context, event *models.OrderPlacedEvent) error {
	ctx, span := util.StartSpan(ctx, "StatsService.HandleOrderPlaced")
	defer span.End()

	return ss.apply(ctx, event.BaseEvent, models.StatDelta{
		MoneySpent:  event.Price,
		OrdersCount: 1,
		Quantities:  event.Quantities,
	})
}

// HandleOrderCancelled removes a refunded order from the aggregate
func (ss *StatsService) HandleOrderCancelled(ctx context.Context, event *models.OrderCancelledEvent) error {
	ctx, span := util.StartSpan(ctx, "StatsService.HandleOrderCancelled")
	defer span.End()

	return ss.apply(ctx, event.BaseEvent, models.StatDelta{
		MoneySpent:  -event.Refunded,
		OrdersCount: -1,
		Quantities:  event.Quantities.Negate(),
	})
}

// HandleRecharged adds a recharge to the aggregate
func (ss *StatsService) HandleRecharged(ctx context.Context, event *models.AccountRechargedEvent) error {
	ctx, span := util.StartSpan(ctx, "StatsService.HandleRecharged")
	defer span.End()

	return ss.apply(ctx, event.BaseEvent, models.StatDelta{RechargedTotal: event.Amount})
}

func (ss *StatsService) apply(ctx context.Context, base models.BaseEvent, delta models.StatDelta) error {
	if base.EventID == "" {
		return fmt.Errorf("event %s has no id", base.EventType)
	}

	applied, err := ss.store.ApplyStatDelta(ctx, base.EventID, base.EventType, delta)
	if err != nil {
		return fmt.Errorf("failed to apply %s to stats: %w", base.EventType, err)
	}
	if !applied {
		ss.logger.Info("Event already processed", zap.String("event_id", base.EventID))
		return nil
	}

	util.StatsEventsAppliedTotal.WithLabelValues(base.EventType).Inc()
	ss.logger.Debug("Stats updated",
		zap.String("event_id", base.EventID),
		zap.String("event_type", base.EventType))
	return nil
}

// GetStats returns the materialized aggregate. It trails the ledger by the relay delay.
func (ss *StatsService) GetStats(ctx context.Context, actorID string) (*models.Stat, error) {
	ctx, span := util.StartSpan(ctx, "StatsService.GetStats")
	defer span.End()

	if _, err := requireStaff(ctx, ss.store, actorID); err != nil {
		return nil, err
	}
	stat, err := ss.store.GetStat(ctx)
	if err != nil {
		return nil, fromStore(err, "stats")
	}
	return stat, nil
}

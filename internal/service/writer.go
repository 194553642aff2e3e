package service

import (
	"context"
	"sort"

	"canteen-service/internal/models"
	"canteen-service/internal/store"
)

// writeOrder applies every write of a placed order inside tx. Any failure aborts the
// whole unit; a conflict is returned as is so the caller can retry.
func writeOrder(ctx context.Context, tx store.Tx, order *models.Order, products map[string]*models.Product) error {
	if err := tx.InsertTransaction(ctx, order); err != nil {
		return writeFailure(err, "failed to record order")
	}

	usage := order.StockUsage()
	ids := make([]string, 0, len(usage))
	for id := range usage {
		if products[id].IsLimited() {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	for _, id := range ids {
		if err := tx.AdjustStock(ctx, id, -usage[id]); err != nil {
			return writeFailure(err, "failed to decrement stock of product %s", id)
		}
	}

	stats := models.AccountStats{MoneySpent: order.Price, CategoryQuantities: order.Quantities}
	if err := tx.AdjustAccount(ctx, order.CustomerID, -order.Price, stats); err != nil {
		return writeFailure(err, "failed to debit account %s", order.CustomerID)
	}

	evt := &models.OrderPlacedEvent{
		BaseEvent:     newBaseEvent(models.EventTypeOrderPlaced, order.CreatedAt),
		TransactionID: order.ID,
		CustomerID:    order.CustomerID,
		StaffID:       order.StaffID,
		Price:         order.Price,
		Quantities:    order.Quantities,
	}
	return appendEvent(ctx, tx, evt.BaseEvent, order.CustomerID, evt)
}

// refundOrder reverses the balance, account stats and limited stock of a cancelled order
func refundOrder(ctx context.Context, tx store.Tx, order *models.Order) error {
	stats := models.AccountStats{MoneySpent: -order.Price, CategoryQuantities: order.Quantities.Negate()}
	if err := tx.AdjustAccount(ctx, order.CustomerID, order.Price, stats); err != nil {
		return writeFailure(err, "failed to refund account %s", order.CustomerID)
	}

	usage := order.StockUsage()
	ids := make([]string, 0, len(usage))
	for id := range usage {
		ids = append(ids, id)
	}
	products, err := tx.LockProducts(ctx, ids)
	if err != nil {
		return fromStore(err, "products")
	}
	sort.Strings(ids)
	for _, id := range ids {
		p, ok := products[id]
		if !ok || !p.IsLimited() {
			continue
		}
		if err := tx.AdjustStock(ctx, id, usage[id]); err != nil {
			return writeFailure(err, "failed to restore stock of product %s", id)
		}
	}

	evt := &models.OrderCancelledEvent{
		BaseEvent:     newBaseEvent(models.EventTypeOrderCancelled, order.UpdatedAt),
		TransactionID: order.ID,
		CustomerID:    order.CustomerID,
		Refunded:      order.Price,
		Quantities:    order.Quantities,
	}
	return appendEvent(ctx, tx, evt.BaseEvent, order.CustomerID, evt)
}

func appendEvent(ctx context.Context, tx store.Tx, base models.BaseEvent, key string, evt interface{}) error {
	rec, err := outboxEvent(base, key, evt)
	if err != nil {
		return wrapError(KindInternal, err, "failed to encode %s event", base.EventType)
	}
	if err := tx.AppendEvent(ctx, rec); err != nil {
		return writeFailure(err, "failed to record %s event", base.EventType)
	}
	return nil
}

// writeFailure reports a failed write as Internal. Conflicts keep their identity
// through Unwrap so the retry loop still recognizes them.
func writeFailure(err error, format string, args ...interface{}) error {
	return wrapError(KindInternal, err, format, args...)
}

package store

import (
	"context"
	"fmt"
	"time"

	"canteen-service/internal/models"

	"github.com/jmoiron/sqlx"
)

type outboxRow struct {
	ID          string     `db:"id"`
	EventType   string     `db:"event_type"`
	Key         string     `db:"key"`
	Payload     []byte     `db:"payload"`
	CreatedAt   time.Time  `db:"created_at"`
	PublishedAt *time.Time `db:"published_at"`
}

type statRow struct {
	ID             int       `db:"id"`
	MoneySpent     int64     `db:"money_spent"`
	OrdersCount    int64     `db:"orders_count"`
	RechargedTotal int64     `db:"recharged_total"`
	Servings       int64     `db:"servings"`
	Drinks         int64     `db:"drinks"`
	Snacks         int64     `db:"snacks"`
	UpdatedAt      time.Time `db:"updated_at"`
}

// FetchUnpublishedEvents retrieves outbox events not yet handed to the broker, oldest first
func (s *Store) FetchUnpublishedEvents(ctx context.Context, limit int) ([]models.OutboxEvent, error) {
	var rows []outboxRow
	err := s.db.SelectContext(ctx, &rows,
		"SELECT * FROM outbox_events WHERE published_at IS NULL ORDER BY created_at, id LIMIT $1",
		limit)
	if err != nil {
		return nil, err
	}

	events := make([]models.OutboxEvent, 0, len(rows))
	for _, r := range rows {
		events = append(events, models.OutboxEvent{
			ID:          r.ID,
			EventType:   r.EventType,
			Key:         r.Key,
			Payload:     r.Payload,
			CreatedAt:   r.CreatedAt,
			PublishedAt: r.PublishedAt,
		})
	}
	return events, nil
}

// MarkEventsPublished flags outbox events as delivered to the broker
func (s *Store) MarkEventsPublished(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	query, args, err := sqlx.In("UPDATE outbox_events SET published_at = NOW() WHERE id IN (?)", ids)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, s.db.Rebind(query), args...)
	return err
}

// GetStat retrieves the global aggregate
func (s *Store) GetStat(ctx context.Context) (*models.Stat, error) {
	var row statRow
	if err := s.db.GetContext(ctx, &row, "SELECT * FROM stats WHERE id = 1"); err != nil {
		return nil, notFound(err, "stat", "1")
	}
	return &models.Stat{
		MoneySpent:     row.MoneySpent,
		OrdersCount:    row.OrdersCount,
		RechargedTotal: row.RechargedTotal,
		CategoryQuantities: models.CategoryQuantities{
			Servings: row.Servings,
			Drinks:   row.Drinks,
			Snacks:   row.Snacks,
		},
		UpdatedAt: row.UpdatedAt,
	}, nil
}

// ApplyStatDelta adds delta to the global aggregate once per event ID.
// It reports false when the event was already applied.
func (s *Store) ApplyStatDelta(ctx context.Context, eventID, eventType string, delta models.StatDelta) (bool, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		"INSERT INTO processed_events (event_id, event_type) VALUES ($1, $2) ON CONFLICT (event_id) DO NOTHING",
		eventID, eventType)
	if err != nil {
		return false, fmt.Errorf("failed to mark event processed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE stats SET
			money_spent = money_spent + $1,
			orders_count = orders_count + $2,
			recharged_total = recharged_total + $3,
			servings = servings + $4,
			drinks = drinks + $5,
			snacks = snacks + $6,
			updated_at = NOW()
		WHERE id = 1`,
		delta.MoneySpent, delta.OrdersCount, delta.RechargedTotal,
		delta.Quantities.Servings, delta.Quantities.Drinks, delta.Quantities.Snacks)
	if err != nil {
		return false, fmt.Errorf("failed to update stats: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, classify(err)
	}
	return true, nil
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"canteen-service/internal/models"

	"github.com/jmoiron/sqlx"
)

// pgTx implements Tx on top of a sqlx transaction
type pgTx struct {
	tx *sqlx.Tx
}

// LockAccount reads an account and locks its row until the transaction ends
func (t *pgTx) LockAccount(ctx context.Context, id string) (*models.Account, error) {
	var row accountRow
	err := t.tx.GetContext(ctx, &row, "SELECT * FROM accounts WHERE id = $1 FOR UPDATE", id)
	if err != nil {
		return nil, notFound(err, "account", id)
	}
	return row.toModel(), nil
}

// LockProducts reads products and locks their rows. Unknown IDs are absent from the result.
func (t *pgTx) LockProducts(ctx context.Context, ids []string) (map[string]*models.Product, error) {
	products := make(map[string]*models.Product, len(ids))
	if len(ids) == 0 {
		return products, nil
	}

	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)

	query, args, err := sqlx.In("SELECT * FROM products WHERE id IN (?) ORDER BY id FOR UPDATE", sorted)
	if err != nil {
		return nil, err
	}
	query = t.tx.Rebind(query)

	var rows []productRow
	if err := t.tx.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to lock products: %w", err)
	}

	for i := range rows {
		p, err := rows[i].toModel()
		if err != nil {
			return nil, err
		}
		products[p.ID] = p
	}
	return products, nil
}

// LockOrder reads an order transaction and locks its row
func (t *pgTx) LockOrder(ctx context.Context, id string) (*models.Order, error) {
	var row transactionRow
	err := t.tx.GetContext(ctx, &row,
		"SELECT * FROM transactions WHERE id = $1 AND kind = 'order' FOR UPDATE", id)
	if err != nil {
		return nil, notFound(err, "order", id)
	}
	return decodeOrder(&row)
}

// FindOrderByIdempotencyKey returns the order created with key, or nil if there is none
func (t *pgTx) FindOrderByIdempotencyKey(ctx context.Context, key string) (*models.Order, error) {
	var row transactionRow
	err := t.tx.GetContext(ctx, &row,
		"SELECT * FROM transactions WHERE idempotency_key = $1 AND kind = 'order'", key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeOrder(&row)
}

// InsertTransaction appends a transaction to the ledger
func (t *pgTx) InsertTransaction(ctx context.Context, txn models.Transaction) error {
	row, err := encodeTransaction(txn)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO transactions (id, kind, customer_id, staff_id, amount, lines, quantities, state,
			needs_preparation, cashed_in, cashed_in_at, idempotency_key, created_at, updated_at)
		VALUES (:id, :kind, :customer_id, :staff_id, :amount, :lines, :quantities, :state,
			:needs_preparation, :cashed_in, :cashed_in_at, :idempotency_key, :created_at, :updated_at)`

	if _, err := t.tx.NamedExecContext(ctx, query, row); err != nil {
		return classify(fmt.Errorf("failed to insert transaction: %w", err))
	}
	return nil
}

// UpdateOrder persists the mutable fields of an order
func (t *pgTx) UpdateOrder(ctx context.Context, o *models.Order) error {
	var cashedInAt sql.NullTime
	if o.CashedInAt != nil {
		cashedInAt = sql.NullTime{Time: *o.CashedInAt, Valid: true}
	}
	res, err := t.tx.ExecContext(ctx,
		"UPDATE transactions SET state = $1, cashed_in = $2, cashed_in_at = $3, updated_at = $4 WHERE id = $5 AND kind = 'order'",
		o.State, o.CashedIn, cashedInAt, o.UpdatedAt, o.ID)
	return affected(res, err, "order", o.ID)
}

// AdjustStock adds delta to a limited product's stock; it never lets stock go negative
func (t *pgTx) AdjustStock(ctx context.Context, productID string, delta int64) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE products SET stock = stock + $1, updated_at = NOW()
		WHERE id = $2 AND stock IS NOT NULL AND stock + $1 >= 0`,
		delta, productID)
	if err != nil {
		return fmt.Errorf("failed to adjust stock: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("product %s: %w", productID, ErrInsufficientStock)
	}
	return nil
}

// AdjustAccount adds balanceDelta to the balance and stats to the cumulative stats.
// The balance never goes negative.
func (t *pgTx) AdjustAccount(ctx context.Context, accountID string, balanceDelta int64, stats models.AccountStats) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE accounts SET
			balance = balance + $1,
			money_spent = money_spent + $2,
			servings = servings + $3,
			drinks = drinks + $4,
			snacks = snacks + $5,
			updated_at = NOW()
		WHERE id = $6 AND balance + $1 >= 0`,
		balanceDelta, stats.MoneySpent, stats.Servings, stats.Drinks, stats.Snacks, accountID)
	if err != nil {
		return fmt.Errorf("failed to adjust account: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("account %s: %w", accountID, ErrInsufficientBalance)
	}
	return nil
}

// AppendEvent records an outbox event in the current transaction
func (t *pgTx) AppendEvent(ctx context.Context, evt *models.OutboxEvent) error {
	_, err := t.tx.ExecContext(ctx,
		"INSERT INTO outbox_events (id, event_type, key, payload, created_at) VALUES ($1, $2, $3, $4, $5)",
		evt.ID, evt.EventType, evt.Key, evt.Payload, evt.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

// GetTransaction retrieves a ledger entry by ID
func (s *Store) GetTransaction(ctx context.Context, id string) (models.Transaction, error) {
	var row transactionRow
	if err := s.db.GetContext(ctx, &row, "SELECT * FROM transactions WHERE id = $1", id); err != nil {
		return nil, notFound(err, "transaction", id)
	}
	return row.toModel()
}

// ListTransactionsByAccount retrieves the latest ledger entries of an account
func (s *Store) ListTransactionsByAccount(ctx context.Context, accountID string, limit int) ([]models.Transaction, error) {
	var rows []transactionRow
	err := s.db.SelectContext(ctx, &rows,
		"SELECT * FROM transactions WHERE customer_id = $1 ORDER BY created_at DESC LIMIT $2",
		accountID, limit)
	if err != nil {
		return nil, err
	}

	out := make([]models.Transaction, 0, len(rows))
	for i := range rows {
		t, err := rows[i].toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// ListOrdersByState retrieves orders in the given state, oldest first
func (s *Store) ListOrdersByState(ctx context.Context, state models.OrderState) ([]*models.Order, error) {
	var rows []transactionRow
	err := s.db.SelectContext(ctx, &rows,
		"SELECT * FROM transactions WHERE kind = 'order' AND state = $1 ORDER BY created_at",
		state)
	if err != nil {
		return nil, err
	}

	out := make([]*models.Order, 0, len(rows))
	for i := range rows {
		o, err := decodeOrder(&rows[i])
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, nil
}

func decodeOrder(row *transactionRow) (*models.Order, error) {
	t, err := row.toModel()
	if err != nil {
		return nil, err
	}
	o, ok := t.(*models.Order)
	if !ok {
		return nil, fmt.Errorf("transaction %s: %w", row.ID, ErrNotFound)
	}
	return o, nil
}

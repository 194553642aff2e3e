package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"canteen-service/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrConflict            = errors.New("concurrent update conflict")
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrInsufficientBalance = errors.New("insufficient balance")
)

// Tx is the set of reads and writes available inside one atomic unit.
// Lock* reads hold their rows until the unit commits or rolls back.
type Tx interface {
	LockAccount(ctx context.Context, id string) (*models.Account, error)
	LockProducts(ctx context.Context, ids []string) (map[string]*models.Product, error)
	LockOrder(ctx context.Context, id string) (*models.Order, error)
	FindOrderByIdempotencyKey(ctx context.Context, key string) (*models.Order, error)

	InsertTransaction(ctx context.Context, t models.Transaction) error
	UpdateOrder(ctx context.Context, o *models.Order) error
	AdjustStock(ctx context.Context, productID string, delta int64) error
	AdjustAccount(ctx context.Context, accountID string, balanceDelta int64, stats models.AccountStats) error
	AppendEvent(ctx context.Context, evt *models.OutboxEvent) error
}

// TxFunc is the body of an atomic unit. Returning an error rolls everything back.
type TxFunc func(ctx context.Context, tx Tx) error

// Repository is the persistence surface used by the services
type Repository interface {
	RunInTx(ctx context.Context, fn TxFunc) error

	GetProduct(ctx context.Context, id string) (*models.Product, error)
	ListProducts(ctx context.Context) ([]models.Product, error)
	CreateProduct(ctx context.Context, p *models.Product) error
	SetProductAvailability(ctx context.Context, id string, available bool) error
	SetProductStock(ctx context.Context, id string, stock *int64) error
	SetProductPrices(ctx context.Context, id string, prices map[string]int64) error

	CreateIngredient(ctx context.Context, ing *models.Ingredient) error
	GetIngredientsByIDs(ctx context.Context, ids []string) ([]models.Ingredient, error)
	ListIngredients(ctx context.Context) ([]models.Ingredient, error)

	CreateAccount(ctx context.Context, a *models.Account) error
	GetAccount(ctx context.Context, id string) (*models.Account, error)
	UpdateAccountRoles(ctx context.Context, id string, isStaff, isAdmin, isAvailable bool) error

	GetTransaction(ctx context.Context, id string) (models.Transaction, error)
	ListTransactionsByAccount(ctx context.Context, accountID string, limit int) ([]models.Transaction, error)
	ListOrdersByState(ctx context.Context, state models.OrderState) ([]*models.Order, error)

	GetStat(ctx context.Context) (*models.Stat, error)
	ApplyStatDelta(ctx context.Context, eventID, eventType string, delta models.StatDelta) (bool, error)

	FetchUnpublishedEvents(ctx context.Context, limit int) ([]models.OutboxEvent, error)
	MarkEventsPublished(ctx context.Context, ids []string) error

	Close() error
}

// Store is the PostgreSQL implementation of Repository
type Store struct {
	db *sqlx.DB
}

var _ Repository = (*Store)(nil)

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// GetDB returns the underlying database connection
func (s *Store) GetDB() *sqlx.DB {
	return s.db
}

// RunInTx runs fn inside one database transaction.
// The transaction commits only if fn returns nil.
func (s *Store) RunInTx(ctx context.Context, fn TxFunc) error {
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return classify(fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer tx.Rollback()

	if err := fn(ctx, &pgTx{tx: tx}); err != nil {
		return classify(err)
	}

	if err := tx.Commit(); err != nil {
		return classify(fmt.Errorf("failed to commit transaction: %w", err))
	}
	return nil
}

// classify maps retryable PostgreSQL failures onto ErrConflict
func classify(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}
	switch pqErr.Code {
	case "40001", "40P01", "23505":
		return fmt.Errorf("%w: %s", ErrConflict, err.Error())
	}
	return err
}

func notFound(err error, what, id string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", what, id, ErrNotFound)
	}
	return err
}

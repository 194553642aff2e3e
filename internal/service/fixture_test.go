package service

import (
	"context"
	"time"

	"canteen-service/internal/models"
	"canteen-service/internal/store"

	"github.com/stretchr/testify/require"
)

const (
	staffID = "staff-1"
	adminID = "admin-1"
)

// testingT is satisfied by both *testing.T and *rapid.T
type testingT interface {
	require.TestingT
	Helper()
}

type fixture struct {
	t        testingT
	repo     *store.Memory
	orders   *OrderService
	accounts *AccountService
	catalog  *CatalogService
	stats    *StatsService
}

func newFixture(t testingT) *fixture {
	t.Helper()
	repo := store.NewMemory()
	retry := RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond}

	f := &fixture{
		t:        t,
		repo:     repo,
		orders:   NewOrderService(repo, nil, OrderOptions{Retry: retry, Timeout: 5 * time.Second}),
		accounts: NewAccountService(repo, retry, 10000),
		catalog:  NewCatalogService(repo, nil, time.Minute),
		stats:    NewStatsService(repo),
	}
	f.account(&models.Account{ID: staffID, Name: "Staff", IsStaff: true, IsAvailable: true})
	f.account(&models.Account{ID: adminID, Name: "Admin", IsStaff: true, IsAdmin: true, IsAvailable: true})
	return f
}

func (f *fixture) account(a *models.Account) *models.Account {
	f.t.Helper()
	require.NoError(f.t, f.repo.CreateAccount(context.Background(), a))
	return a
}

func (f *fixture) customer(id string, balance int64) string {
	f.account(&models.Account{ID: id, Name: id, Balance: balance, IsAvailable: true})
	return id
}

func (f *fixture) product(p *models.Product) string {
	f.t.Helper()
	require.NoError(f.t, f.repo.CreateProduct(context.Background(), p))
	return p.ID
}

func (f *fixture) limited(id string, price, stock int64) string {
	return f.product(&models.Product{
		ID:             id,
		Name:           id,
		Type:           models.ProductTypeSnack,
		SizeWithPrices: map[string]int64{"M": price},
		IsAvailable:    true,
		Stock:          &stock,
	})
}

func (f *fixture) balance(id string) int64 {
	f.t.Helper()
	a, err := f.repo.GetAccount(context.Background(), id)
	require.NoError(f.t, err)
	return a.Balance
}

func (f *fixture) stock(id string) int64 {
	f.t.Helper()
	p, err := f.repo.GetProduct(context.Background(), id)
	require.NoError(f.t, err)
	require.NotNil(f.t, p.Stock)
	return *p.Stock
}

func (f *fixture) ledger(accountID string) []models.Transaction {
	f.t.Helper()
	txs, err := f.repo.ListTransactionsByAccount(context.Background(), accountID, 1000)
	require.NoError(f.t, err)
	return txs
}

func (f *fixture) order(accountID, productID, size string, qty int64) OrderResult {
	return f.orders.MakeOrder(context.Background(), staffID, &MakeOrderRequest{
		AccountID: accountID,
		Lines:     []models.LineRequest{{ProductID: productID, SizeWithQuantities: map[string]int64{size: qty}}},
	})
}

func (f *fixture) pendingEvents() []models.OutboxEvent {
	f.t.Helper()
	events, err := f.repo.FetchUnpublishedEvents(context.Background(), 1000)
	require.NoError(f.t, err)
	return events
}

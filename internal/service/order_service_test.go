package service

import (
	"context"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"canteen-service/internal/models"
	"canteen-service/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestMakeOrderSucceeds(t *testing.T) {
	f := newFixture(t)
	alice := f.customer("alice", 500)
	sandwich := f.limited("sandwich", 300, 2)

	res := f.order(alice, sandwich, "M", 1)

	require.True(t, res.Success, res.Message)
	assert.NotEmpty(t, res.TransactionID)
	assert.Equal(t, int64(200), f.balance(alice))
	assert.Equal(t, int64(1), f.stock(sandwich))

	txn, err := f.repo.GetTransaction(context.Background(), res.TransactionID)
	require.NoError(t, err)
	order, ok := txn.(*models.Order)
	require.True(t, ok)
	assert.Equal(t, int64(300), order.Price)
	assert.Equal(t, models.OrderStatePreparing, order.State)
	assert.Equal(t, staffID, order.StaffID)
	assert.Equal(t, alice, order.CustomerID)
	assert.Equal(t, int64(1), order.Quantities.Snacks)

	a, err := f.repo.GetAccount(context.Background(), alice)
	require.NoError(t, err)
	assert.Equal(t, int64(300), a.Stats.MoneySpent)
	assert.Equal(t, int64(1), a.Stats.Snacks)

	events := f.pendingEvents()
	require.Len(t, events, 1)
	assert.Equal(t, models.EventTypeOrderPlaced, events[0].EventType)
	assert.Equal(t, alice, events[0].Key)
}

func TestMakeOrderInsufficientBalance(t *testing.T) {
	f := newFixture(t)
	alice := f.customer("alice", 200)
	sandwich := f.limited("sandwich", 300, 2)

	res := f.order(alice, sandwich, "M", 1)

	assert.False(t, res.Success)
	assert.Equal(t, KindPermissionDenied, res.ErrorKind)
	assert.Equal(t, "insufficient balance", res.Message)
	assert.Equal(t, int64(200), f.balance(alice))
	assert.Equal(t, int64(2), f.stock(sandwich))
	assert.Empty(t, f.ledger(alice))
	assert.Empty(t, f.pendingEvents())
}

func TestMakeOrderUnavailableProduct(t *testing.T) {
	f := newFixture(t)
	alice := f.customer("alice", 500)
	sandwich := f.limited("sandwich", 300, 2)
	require.NoError(t, f.repo.SetProductAvailability(context.Background(), sandwich, false))

	res := f.order(alice, sandwich, "M", 1)

	assert.False(t, res.Success)
	assert.Equal(t, KindUnavailable, res.ErrorKind)
	assert.Equal(t, int64(500), f.balance(alice))
	assert.Equal(t, int64(2), f.stock(sandwich))
	assert.Empty(t, f.ledger(alice))
}

func TestMakeOrderLastUnitRace(t *testing.T) {
	f := newFixture(t)
	sandwich := f.limited("sandwich", 300, 1)
	buyers := []string{f.customer("alice", 500), f.customer("bob", 500)}

	results := make([]OrderResult, len(buyers))
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i, buyer := range buyers {
		wg.Add(1)
		go func(i int, buyer string) {
			defer wg.Done()
			<-start
			results[i] = f.order(buyer, sandwich, "M", 1)
		}(i, buyer)
	}
	close(start)
	wg.Wait()

	succeeded, exhausted := 0, 0
	for _, res := range results {
		if res.Success {
			succeeded++
		} else if res.ErrorKind == KindResourceExhausted {
			exhausted++
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, exhausted)
	assert.Equal(t, int64(0), f.stock(sandwich))
	assert.Equal(t, int64(700), f.balance(buyers[0])+f.balance(buyers[1]))
}

func TestMakeOrderUnknownSize(t *testing.T) {
	f := newFixture(t)
	alice := f.customer("alice", 500)
	sandwich := f.limited("sandwich", 300, 2)

	res := f.order(alice, sandwich, "XL", 1)

	assert.False(t, res.Success)
	assert.Equal(t, KindInvalidArgument, res.ErrorKind)
	assert.Contains(t, res.Message, "size")
	assert.Equal(t, int64(500), f.balance(alice))
	assert.Equal(t, int64(2), f.stock(sandwich))
	assert.Empty(t, f.ledger(alice))
}

func TestMakeOrderRejectsOverflowingSurcharge(t *testing.T) {
	f := newFixture(t)
	alice := f.customer("alice", 100)
	f.product(&models.Product{
		ID:             "gilded",
		Name:           "Gilded plate",
		Type:           models.ProductTypeServing,
		SizeWithPrices: map[string]int64{"normal": 0},
		IsAvailable:    true,
		Ingredients: []models.Ingredient{
			{ID: "saffron", Price: math.MaxInt64},
			{ID: "truffle", Price: math.MaxInt64},
		},
	})

	var res OrderResult
	require.NotPanics(t, func() { res = f.order(alice, "gilded", "normal", 1) })
	assert.False(t, res.Success)
	assert.Equal(t, KindInvalidArgument, res.ErrorKind)
	assert.Empty(t, res.Cause)
	assert.Equal(t, int64(100), f.balance(alice))
	assert.Empty(t, f.ledger(alice))
	assert.Empty(t, f.pendingEvents())
}

func TestMakeOrderRejections(t *testing.T) {
	tests := []struct {
		name  string
		actor string
		req   func(alice, sandwich string) *MakeOrderRequest
		kind  ErrorKind
	}{
		{
			name:  "no caller",
			actor: "",
			req: func(alice, sandwich string) *MakeOrderRequest {
				return &MakeOrderRequest{AccountID: alice, Lines: []models.LineRequest{{ProductID: sandwich, SizeWithQuantities: map[string]int64{"M": 1}}}}
			},
			kind: KindUnauthenticated,
		},
		{
			name:  "customer cannot order",
			actor: "alice",
			req: func(alice, sandwich string) *MakeOrderRequest {
				return &MakeOrderRequest{AccountID: alice, Lines: []models.LineRequest{{ProductID: sandwich, SizeWithQuantities: map[string]int64{"M": 1}}}}
			},
			kind: KindPermissionDenied,
		},
		{
			name:  "unknown account",
			actor: staffID,
			req: func(alice, sandwich string) *MakeOrderRequest {
				return &MakeOrderRequest{AccountID: "nobody", Lines: []models.LineRequest{{ProductID: sandwich, SizeWithQuantities: map[string]int64{"M": 1}}}}
			},
			kind: KindNotFound,
		},
		{
			name:  "unknown product",
			actor: staffID,
			req: func(alice, sandwich string) *MakeOrderRequest {
				return &MakeOrderRequest{AccountID: alice, Lines: []models.LineRequest{{ProductID: "ghost", SizeWithQuantities: map[string]int64{"M": 1}}}}
			},
			kind: KindNotFound,
		},
		{
			name:  "negative quantity",
			actor: staffID,
			req: func(alice, sandwich string) *MakeOrderRequest {
				return &MakeOrderRequest{AccountID: alice, Lines: []models.LineRequest{{ProductID: sandwich, SizeWithQuantities: map[string]int64{"M": -1}}}}
			},
			kind: KindInvalidArgument,
		},
		{
			name:  "more than stock",
			actor: staffID,
			req: func(alice, sandwich string) *MakeOrderRequest {
				return &MakeOrderRequest{AccountID: alice, Lines: []models.LineRequest{{ProductID: sandwich, SizeWithQuantities: map[string]int64{"M": 3}}}}
			},
			kind: KindResourceExhausted,
		},
		{
			name:  "stock shared across lines",
			actor: staffID,
			req: func(alice, sandwich string) *MakeOrderRequest {
				return &MakeOrderRequest{AccountID: alice, Lines: []models.LineRequest{
					{ProductID: sandwich, SizeWithQuantities: map[string]int64{"M": 1}},
					{ProductID: sandwich, SizeWithQuantities: map[string]int64{"M": 2}},
				}}
			},
			kind: KindResourceExhausted,
		},
		{
			name:  "no lines",
			actor: staffID,
			req: func(alice, sandwich string) *MakeOrderRequest {
				return &MakeOrderRequest{AccountID: alice}
			},
			kind: KindInvalidArgument,
		},
		{
			name:  "only zero quantities",
			actor: staffID,
			req: func(alice, sandwich string) *MakeOrderRequest {
				return &MakeOrderRequest{AccountID: alice, Lines: []models.LineRequest{{ProductID: sandwich, SizeWithQuantities: map[string]int64{"M": 0}}}}
			},
			kind: KindInvalidArgument,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			alice := f.customer("alice", 5000)
			sandwich := f.limited("sandwich", 300, 2)

			res := f.orders.MakeOrder(context.Background(), tt.actor, tt.req(alice, sandwich))

			assert.False(t, res.Success)
			assert.Equal(t, tt.kind, res.ErrorKind, res.Message)
			assert.Equal(t, int64(5000), f.balance(alice))
			assert.Equal(t, int64(2), f.stock(sandwich))
			assert.Empty(t, f.pendingEvents())
		})
	}
}

func TestMakeOrderDisabledAccount(t *testing.T) {
	f := newFixture(t)
	f.account(&models.Account{ID: "frozen", Name: "Frozen", Balance: 1000, IsAvailable: false})
	sandwich := f.limited("sandwich", 300, 2)

	res := f.order("frozen", sandwich, "M", 1)

	assert.False(t, res.Success)
	assert.Equal(t, KindPermissionDenied, res.ErrorKind)
	assert.Equal(t, int64(1000), f.balance("frozen"))
}

func TestMakeOrderPricesFromCatalog(t *testing.T) {
	f := newFixture(t)
	alice := f.customer("alice", 10000)
	burger := f.product(&models.Product{
		ID:             "burger",
		Name:           "Burger",
		Type:           models.ProductTypeServing,
		SizeWithPrices: map[string]int64{"normal": 400, "big": 550},
		IsAvailable:    true,
		Ingredients: []models.Ingredient{
			{ID: "cheese", Name: "Cheese", Price: 50},
			{ID: "bacon", Name: "Bacon", Price: 80},
		},
	})
	cola := f.product(&models.Product{
		ID:             "cola",
		Name:           "Cola",
		Type:           models.ProductTypeDrink,
		SizeWithPrices: map[string]int64{"can": 150},
		IsAvailable:    true,
		Ingredients:    []models.Ingredient{{ID: "ice", Name: "Ice", Price: 999}},
	})

	res := f.orders.MakeOrder(context.Background(), staffID, &MakeOrderRequest{
		AccountID: alice,
		Lines: []models.LineRequest{
			{ProductID: burger, SizeWithQuantities: map[string]int64{"normal": 2, "big": 1, "xl-unused": 0}},
			{ProductID: cola, SizeWithQuantities: map[string]int64{"can": 3}},
		},
		NeedsPreparation: true,
	})
	// xl-unused is not a size of the burger, so the whole order is refused
	require.False(t, res.Success)
	assert.Equal(t, KindInvalidArgument, res.ErrorKind)

	res = f.orders.MakeOrder(context.Background(), staffID, &MakeOrderRequest{
		AccountID: alice,
		Lines: []models.LineRequest{
			{ProductID: burger, SizeWithQuantities: map[string]int64{"normal": 2, "big": 1}},
			{ProductID: cola, SizeWithQuantities: map[string]int64{"can": 3}},
		},
		NeedsPreparation: true,
	})
	require.True(t, res.Success, res.Message)

	// burger: (400+130)*2 + (550+130)*1 = 1740; cola is not customizable: 150*3 = 450
	assert.Equal(t, int64(2190), res.Price)
	assert.Equal(t, int64(10000-2190), f.balance(alice))

	txn, err := f.repo.GetTransaction(context.Background(), res.TransactionID)
	require.NoError(t, err)
	order := txn.(*models.Order)
	assert.Equal(t, models.CategoryQuantities{Servings: 3, Drinks: 3}, order.Quantities)
	assert.True(t, order.NeedsPreparation)
	require.Len(t, order.Lines, 2)
	assert.Equal(t, int64(130), order.Lines[0].UnitSurcharge)
	assert.Len(t, order.Lines[0].Ingredients, 2)
	assert.Zero(t, order.Lines[1].UnitSurcharge)
	assert.Empty(t, order.Lines[1].Ingredients)
}

func TestMakeOrderIdempotentReplay(t *testing.T) {
	f := newFixture(t)
	alice := f.customer("alice", 1000)
	sandwich := f.limited("sandwich", 300, 5)

	req := &MakeOrderRequest{
		AccountID:      alice,
		Lines:          []models.LineRequest{{ProductID: sandwich, SizeWithQuantities: map[string]int64{"M": 1}}},
		IdempotencyKey: "tablet-7-0001",
	}

	first := f.orders.MakeOrder(context.Background(), staffID, req)
	require.True(t, first.Success, first.Message)
	assert.False(t, first.Replayed)

	second := f.orders.MakeOrder(context.Background(), staffID, req)
	require.True(t, second.Success, second.Message)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.TransactionID, second.TransactionID)

	assert.Equal(t, int64(700), f.balance(alice))
	assert.Equal(t, int64(4), f.stock(sandwich))
	assert.Len(t, f.ledger(alice), 1)

	bob := f.customer("bob", 1000)
	req.AccountID = bob
	third := f.orders.MakeOrder(context.Background(), staffID, req)
	assert.False(t, third.Success)
	assert.Equal(t, KindInvalidArgument, third.ErrorKind)
}

type stubGuard struct {
	acquired bool
	err      error
	released int
	keys     []string
}

func (g *stubGuard) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	g.keys = append(g.keys, key)
	if g.err != nil || !g.acquired {
		return nil, false, g.err
	}
	return func() { g.released++ }, true, nil
}

func TestMakeOrderInflightGuard(t *testing.T) {
	f := newFixture(t)
	alice := f.customer("alice", 1000)
	sandwich := f.limited("sandwich", 300, 5)
	req := &MakeOrderRequest{
		AccountID:      alice,
		Lines:          []models.LineRequest{{ProductID: sandwich, SizeWithQuantities: map[string]int64{"M": 1}}},
		IdempotencyKey: "k1",
	}

	busy := &stubGuard{acquired: false}
	svc := NewOrderService(f.repo, busy, OrderOptions{})
	res := svc.MakeOrder(context.Background(), staffID, req)
	assert.False(t, res.Success)
	assert.Equal(t, KindAborted, res.ErrorKind)
	assert.Equal(t, []string{"order:k1"}, busy.keys)
	assert.Equal(t, int64(1000), f.balance(alice))

	free := &stubGuard{acquired: true}
	svc = NewOrderService(f.repo, free, OrderOptions{})
	res = svc.MakeOrder(context.Background(), staffID, req)
	require.True(t, res.Success, res.Message)
	assert.Equal(t, 1, free.released)

	down := &stubGuard{err: fmt.Errorf("connection refused")}
	svc = NewOrderService(f.repo, down, OrderOptions{})
	res = svc.MakeOrder(context.Background(), staffID, req)
	require.True(t, res.Success, res.Message)
	assert.True(t, res.Replayed)
}

func TestMakeOrderRetriesConflicts(t *testing.T) {
	f := newFixture(t)
	alice := f.customer("alice", 1000)
	sandwich := f.limited("sandwich", 300, 5)

	f.repo.FailOn(store.OpCommit, store.ErrConflict)
	f.repo.FailOn(store.OpCommit, store.ErrConflict)

	res := f.order(alice, sandwich, "M", 1)
	require.True(t, res.Success, res.Message)
	assert.Equal(t, int64(700), f.balance(alice))
	assert.Len(t, f.ledger(alice), 1)
}

func TestMakeOrderGivesUpAfterMaxAttempts(t *testing.T) {
	f := newFixture(t)
	alice := f.customer("alice", 1000)
	sandwich := f.limited("sandwich", 300, 5)

	for i := 0; i < 3; i++ {
		f.repo.FailOn(store.OpCommit, store.ErrConflict)
	}

	res := f.order(alice, sandwich, "M", 1)
	assert.False(t, res.Success)
	assert.Equal(t, KindAborted, res.ErrorKind)
	assert.Equal(t, int64(1000), f.balance(alice))
	assert.Equal(t, int64(5), f.stock(sandwich))
}

func TestMakeOrderAtomicUnderWriteFailure(t *testing.T) {
	ops := []string{
		store.OpInsertTransaction,
		store.OpAdjustStock,
		store.OpAdjustAccount,
		store.OpAppendEvent,
		store.OpCommit,
	}

	for _, op := range ops {
		t.Run(op, func(t *testing.T) {
			f := newFixture(t)
			alice := f.customer("alice", 1000)
			sandwich := f.limited("sandwich", 300, 5)

			f.repo.FailOn(op, fmt.Errorf("injected %s failure", op))
			res := f.order(alice, sandwich, "M", 2)

			assert.False(t, res.Success)
			assert.Equal(t, KindInternal, res.ErrorKind)
			assert.Contains(t, res.Cause, fmt.Sprintf("injected %s failure", op))
			assert.Equal(t, int64(1000), f.balance(alice))
			assert.Equal(t, int64(5), f.stock(sandwich))
			assert.Empty(t, f.ledger(alice))
			assert.Empty(t, f.pendingEvents())
		})
	}
}

func TestMakeOrderCancelledContext(t *testing.T) {
	f := newFixture(t)
	alice := f.customer("alice", 1000)
	sandwich := f.limited("sandwich", 300, 5)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := f.orders.MakeOrder(ctx, staffID, &MakeOrderRequest{
		AccountID: alice,
		Lines:     []models.LineRequest{{ProductID: sandwich, SizeWithQuantities: map[string]int64{"M": 1}}},
	})

	assert.False(t, res.Success)
	assert.Equal(t, int64(1000), f.balance(alice))
	assert.Equal(t, int64(5), f.stock(sandwich))
}

func TestOrderLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.customer("alice", 1000)
	sandwich := f.limited("sandwich", 300, 5)

	res := f.order(alice, sandwich, "M", 1)
	require.True(t, res.Success)

	o, err := f.orders.UpdateOrderState(ctx, staffID, res.TransactionID, models.OrderStateReady)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStateReady, o.State)
	assert.False(t, o.CashedIn)

	ready, err := f.orders.ListOrders(ctx, staffID, models.OrderStateReady)
	require.NoError(t, err)
	require.Len(t, ready, 1)

	o, err = f.orders.UpdateOrderState(ctx, staffID, res.TransactionID, models.OrderStateServed)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStateServed, o.State)
	assert.True(t, o.CashedIn)
	assert.NotNil(t, o.CashedInAt)

	for _, next := range []models.OrderState{models.OrderStatePreparing, models.OrderStateReady, models.OrderStateCancelled, models.OrderStateServed} {
		_, err := f.orders.UpdateOrderState(ctx, staffID, res.TransactionID, next)
		assert.Equal(t, KindInvalidArgument, KindOf(err), "served -> %s", next)
	}

	var changes int
	for _, e := range f.pendingEvents() {
		if e.EventType == models.EventTypeOrderStateChanged {
			changes++
		}
	}
	assert.Equal(t, 2, changes)
}

func TestUpdateOrderStateTransitionTable(t *testing.T) {
	states := []models.OrderState{
		models.OrderStatePreparing,
		models.OrderStateReady,
		models.OrderStateServed,
		models.OrderStateCancelled,
	}
	allowed := map[[2]models.OrderState]bool{
		{models.OrderStatePreparing, models.OrderStateReady}:     true,
		{models.OrderStatePreparing, models.OrderStateCancelled}: true,
		{models.OrderStateReady, models.OrderStateServed}:        true,
		{models.OrderStateReady, models.OrderStateCancelled}:     true,
	}
	// how to walk a fresh order into each state
	paths := map[models.OrderState][]models.OrderState{
		models.OrderStatePreparing: nil,
		models.OrderStateReady:     {models.OrderStateReady},
		models.OrderStateServed:    {models.OrderStateReady, models.OrderStateServed},
		models.OrderStateCancelled: {models.OrderStateCancelled},
	}

	for _, from := range states {
		for _, to := range states {
			t.Run(fmt.Sprintf("%s->%s", from, to), func(t *testing.T) {
				f := newFixture(t)
				ctx := context.Background()
				alice := f.customer("alice", 1000)
				sandwich := f.limited("sandwich", 300, 5)

				res := f.order(alice, sandwich, "M", 1)
				require.True(t, res.Success)
				for _, step := range paths[from] {
					_, err := f.orders.UpdateOrderState(ctx, staffID, res.TransactionID, step)
					require.NoError(t, err)
				}

				_, err := f.orders.UpdateOrderState(ctx, staffID, res.TransactionID, to)
				if allowed[[2]models.OrderState{from, to}] {
					assert.NoError(t, err)
				} else {
					assert.Equal(t, KindInvalidArgument, KindOf(err))
				}
			})
		}
	}
}

func TestCancelRefunds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.customer("alice", 1000)
	sandwich := f.limited("sandwich", 300, 5)

	res := f.order(alice, sandwich, "M", 2)
	require.True(t, res.Success)
	require.Equal(t, int64(400), f.balance(alice))
	require.Equal(t, int64(3), f.stock(sandwich))

	o, err := f.orders.UpdateOrderState(ctx, staffID, res.TransactionID, models.OrderStateCancelled)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStateCancelled, o.State)

	assert.Equal(t, int64(1000), f.balance(alice))
	assert.Equal(t, int64(5), f.stock(sandwich))

	a, err := f.repo.GetAccount(ctx, alice)
	require.NoError(t, err)
	assert.Zero(t, a.Stats.MoneySpent)
	assert.Zero(t, a.Stats.Snacks)

	var types []string
	for _, e := range f.pendingEvents() {
		types = append(types, e.EventType)
	}
	assert.Equal(t, []string{
		models.EventTypeOrderPlaced,
		models.EventTypeOrderCancelled,
		models.EventTypeOrderStateChanged,
	}, types)
}

func TestCancelSkipsProductsThatBecameUnlimited(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.customer("alice", 1000)
	sandwich := f.limited("sandwich", 300, 5)

	res := f.order(alice, sandwich, "M", 1)
	require.True(t, res.Success)
	require.NoError(t, f.repo.SetProductStock(ctx, sandwich, nil))

	_, err := f.orders.UpdateOrderState(ctx, staffID, res.TransactionID, models.OrderStateCancelled)
	require.NoError(t, err)

	p, err := f.repo.GetProduct(ctx, sandwich)
	require.NoError(t, err)
	assert.Nil(t, p.Stock)
	assert.Equal(t, int64(1000), f.balance(alice))
}

func TestCashIn(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.customer("alice", 1000)
	sandwich := f.limited("sandwich", 300, 5)

	res := f.order(alice, sandwich, "M", 1)
	require.True(t, res.Success)

	o, err := f.orders.CashIn(ctx, staffID, res.TransactionID)
	require.NoError(t, err)
	assert.True(t, o.CashedIn)
	assert.Equal(t, models.OrderStatePreparing, o.State)

	_, err = f.orders.CashIn(ctx, staffID, res.TransactionID)
	assert.Equal(t, KindInvalidArgument, KindOf(err))

	// serving an already cashed-in order keeps the original cash-in time
	_, err = f.orders.UpdateOrderState(ctx, staffID, res.TransactionID, models.OrderStateReady)
	require.NoError(t, err)
	served, err := f.orders.UpdateOrderState(ctx, staffID, res.TransactionID, models.OrderStateServed)
	require.NoError(t, err)
	assert.Equal(t, o.CashedInAt.UnixNano(), served.CashedInAt.UnixNano())

	res = f.order(alice, sandwich, "M", 1)
	require.True(t, res.Success)
	_, err = f.orders.UpdateOrderState(ctx, staffID, res.TransactionID, models.OrderStateCancelled)
	require.NoError(t, err)
	_, err = f.orders.CashIn(ctx, staffID, res.TransactionID)
	assert.Equal(t, KindInvalidArgument, KindOf(err))

	_, err = f.orders.CashIn(ctx, staffID, "missing")
	assert.Equal(t, KindNotFound, KindOf(err))

	_, err = f.orders.CashIn(ctx, alice, res.TransactionID)
	assert.Equal(t, KindPermissionDenied, KindOf(err))
}

func TestGetTransactionVisibility(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.customer("alice", 1000)
	bob := f.customer("bob", 1000)
	sandwich := f.limited("sandwich", 300, 5)

	res := f.order(alice, sandwich, "M", 1)
	require.True(t, res.Success)

	txn, err := f.orders.GetTransaction(ctx, alice, res.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, models.TransactionKindOrder, txn.Kind())

	_, err = f.orders.GetTransaction(ctx, staffID, res.TransactionID)
	require.NoError(t, err)

	_, err = f.orders.GetTransaction(ctx, bob, res.TransactionID)
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestErrorCarriesGRPCCode(t *testing.T) {
	f := newFixture(t)
	_, err := f.orders.CashIn(context.Background(), staffID, "missing")
	require.Error(t, err)

	assert.Equal(t, codes.NotFound, status.Code(err))
	st, ok := status.FromError(err)
	require.True(t, ok)
	assert.Equal(t, "order not found", st.Message())
}

package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"canteen-service/internal/models"
)

// Operations of Tx that can be made to fail with Memory.FailOn
const (
	OpInsertTransaction = "InsertTransaction"
	OpUpdateOrder       = "UpdateOrder"
	OpAdjustStock       = "AdjustStock"
	OpAdjustAccount     = "AdjustAccount"
	OpAppendEvent       = "AppendEvent"
	OpCommit            = "Commit"
)

// Memory is an in-process Repository. Units of work run one at a time against a
// private copy of the state, which replaces the live state only on commit.
// Stored objects are never mutated in place: reads hand out copies and writes
// store fresh ones, so copying the state only copies the indexes.
type Memory struct {
	mu     sync.Mutex
	state  *memState
	faults map[string][]error
	now    func() time.Time
}

type memState struct {
	accounts     map[string]*models.Account
	products     map[string]*models.Product
	ingredients  map[string]models.Ingredient
	transactions map[string]models.Transaction
	ledger       []string
	idempotency  map[string]string
	outbox       []models.OutboxEvent
	processed    map[string]models.ProcessedEvent
	stat         models.Stat
}

var _ Repository = (*Memory)(nil)

// NewMemory creates an empty in-memory repository
func NewMemory() *Memory {
	return &Memory{
		state: &memState{
			accounts:     make(map[string]*models.Account),
			products:     make(map[string]*models.Product),
			ingredients:  make(map[string]models.Ingredient),
			transactions: make(map[string]models.Transaction),
			idempotency:  make(map[string]string),
			processed:    make(map[string]models.ProcessedEvent),
		},
		faults: make(map[string][]error),
		now:    time.Now,
	}
}

// FailOn queues err to be returned by the next call of op inside a unit of work
func (m *Memory) FailOn(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.faults[op] = append(m.faults[op], err)
}

// takeFault pops the next queued failure for op. Callers hold m.mu.
func (m *Memory) takeFault(op string) error {
	queue := m.faults[op]
	if len(queue) == 0 {
		return nil
	}
	m.faults[op] = queue[1:]
	return queue[0]
}

// Close is a no-op
func (m *Memory) Close() error {
	return nil
}

// RunInTx runs fn against a copy of the state and publishes the copy if fn succeeds.
// fn must only use the Tx it is given.
func (m *Memory) RunInTx(ctx context.Context, fn TxFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	work := m.state.clone()
	if err := fn(ctx, &memTx{m: m, s: work}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := m.takeFault(OpCommit); err != nil {
		return err
	}
	m.state = work
	return nil
}

func (s *memState) clone() *memState {
	c := &memState{
		accounts:     make(map[string]*models.Account, len(s.accounts)),
		products:     make(map[string]*models.Product, len(s.products)),
		ingredients:  make(map[string]models.Ingredient, len(s.ingredients)),
		transactions: make(map[string]models.Transaction, len(s.transactions)),
		ledger:       append([]string(nil), s.ledger...),
		idempotency:  make(map[string]string, len(s.idempotency)),
		outbox:       append([]models.OutboxEvent(nil), s.outbox...),
		processed:    make(map[string]models.ProcessedEvent, len(s.processed)),
		stat:         s.stat,
	}
	for k, v := range s.accounts {
		c.accounts[k] = v
	}
	for k, v := range s.products {
		c.products[k] = v
	}
	for k, v := range s.ingredients {
		c.ingredients[k] = v
	}
	for k, v := range s.transactions {
		c.transactions[k] = v
	}
	for k, v := range s.idempotency {
		c.idempotency[k] = v
	}
	for k, v := range s.processed {
		c.processed[k] = v
	}
	return c
}

// memTx implements Tx against a working copy of the state
type memTx struct {
	m *Memory
	s *memState
}

func (t *memTx) LockAccount(ctx context.Context, id string) (*models.Account, error) {
	a, ok := t.s.accounts[id]
	if !ok {
		return nil, fmt.Errorf("account %s: %w", id, ErrNotFound)
	}
	cp := *a
	return &cp, nil
}

func (t *memTx) LockProducts(ctx context.Context, ids []string) (map[string]*models.Product, error) {
	out := make(map[string]*models.Product, len(ids))
	for _, id := range ids {
		if p, ok := t.s.products[id]; ok {
			out[id] = copyProduct(p)
		}
	}
	return out, nil
}

func (t *memTx) LockOrder(ctx context.Context, id string) (*models.Order, error) {
	o, ok := t.s.transactions[id].(*models.Order)
	if !ok {
		return nil, fmt.Errorf("order %s: %w", id, ErrNotFound)
	}
	return copyOrder(o), nil
}

func (t *memTx) FindOrderByIdempotencyKey(ctx context.Context, key string) (*models.Order, error) {
	id, ok := t.s.idempotency[key]
	if !ok {
		return nil, nil
	}
	return t.LockOrder(ctx, id)
}

func (t *memTx) InsertTransaction(ctx context.Context, txn models.Transaction) error {
	if err := t.m.takeFault(OpInsertTransaction); err != nil {
		return err
	}
	h := txn.Header()
	if _, exists := t.s.transactions[h.ID]; exists {
		return fmt.Errorf("transaction %s: %w", h.ID, ErrConflict)
	}
	if _, ok := t.s.accounts[h.CustomerID]; !ok {
		return fmt.Errorf("account %s: %w", h.CustomerID, ErrNotFound)
	}
	if o, ok := txn.(*models.Order); ok && o.IdempotencyKey != "" {
		if _, dup := t.s.idempotency[o.IdempotencyKey]; dup {
			return fmt.Errorf("idempotency key %s: %w", o.IdempotencyKey, ErrConflict)
		}
		t.s.idempotency[o.IdempotencyKey] = h.ID
	}
	t.s.transactions[h.ID] = copyTransaction(txn)
	t.s.ledger = append(t.s.ledger, h.ID)
	return nil
}

func (t *memTx) UpdateOrder(ctx context.Context, o *models.Order) error {
	if err := t.m.takeFault(OpUpdateOrder); err != nil {
		return err
	}
	if _, ok := t.s.transactions[o.ID].(*models.Order); !ok {
		return fmt.Errorf("order %s: %w", o.ID, ErrNotFound)
	}
	t.s.transactions[o.ID] = copyOrder(o)
	return nil
}

func (t *memTx) AdjustStock(ctx context.Context, productID string, delta int64) error {
	if err := t.m.takeFault(OpAdjustStock); err != nil {
		return err
	}
	p, ok := t.s.products[productID]
	if !ok || p.Stock == nil || *p.Stock+delta < 0 {
		return fmt.Errorf("product %s: %w", productID, ErrInsufficientStock)
	}
	cp := copyProduct(p)
	stock := *p.Stock + delta
	cp.Stock = &stock
	cp.UpdatedAt = t.m.now()
	t.s.products[productID] = cp
	return nil
}

func (t *memTx) AdjustAccount(ctx context.Context, accountID string, balanceDelta int64, stats models.AccountStats) error {
	if err := t.m.takeFault(OpAdjustAccount); err != nil {
		return err
	}
	a, ok := t.s.accounts[accountID]
	if !ok || a.Balance+balanceDelta < 0 {
		return fmt.Errorf("account %s: %w", accountID, ErrInsufficientBalance)
	}
	cp := *a
	cp.Balance += balanceDelta
	cp.Stats.MoneySpent += stats.MoneySpent
	cp.Stats.CategoryQuantities = cp.Stats.CategoryQuantities.Plus(stats.CategoryQuantities)
	cp.UpdatedAt = t.m.now()
	t.s.accounts[accountID] = &cp
	return nil
}

func (t *memTx) AppendEvent(ctx context.Context, evt *models.OutboxEvent) error {
	if err := t.m.takeFault(OpAppendEvent); err != nil {
		return err
	}
	cp := *evt
	cp.Payload = append([]byte(nil), evt.Payload...)
	t.s.outbox = append(t.s.outbox, cp)
	return nil
}

func (m *Memory) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.state.products[id]
	if !ok {
		return nil, fmt.Errorf("product %s: %w", id, ErrNotFound)
	}
	return copyProduct(p), nil
}

func (m *Memory) ListProducts(ctx context.Context) ([]models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Product, 0, len(m.state.products))
	for _, p := range m.state.products {
		out = append(out, *copyProduct(p))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Type != out[j].Type {
			return out[i].Type < out[j].Type
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (m *Memory) CreateProduct(ctx context.Context, p *models.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.state.products[p.ID]; exists {
		return fmt.Errorf("product %s: %w", p.ID, ErrConflict)
	}
	now := m.now()
	p.CreatedAt, p.UpdatedAt = now, now
	m.state.products[p.ID] = copyProduct(p)
	return nil
}

func (m *Memory) updateProduct(id string, mutate func(p *models.Product)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.state.products[id]
	if !ok {
		return fmt.Errorf("product %s: %w", id, ErrNotFound)
	}
	cp := copyProduct(p)
	mutate(cp)
	cp.UpdatedAt = m.now()
	m.state.products[id] = cp
	return nil
}

func (m *Memory) SetProductAvailability(ctx context.Context, id string, available bool) error {
	return m.updateProduct(id, func(p *models.Product) { p.IsAvailable = available })
}

func (m *Memory) SetProductStock(ctx context.Context, id string, stock *int64) error {
	return m.updateProduct(id, func(p *models.Product) {
		p.Stock = nil
		if stock != nil {
			v := *stock
			p.Stock = &v
		}
	})
}

func (m *Memory) SetProductPrices(ctx context.Context, id string, prices map[string]int64) error {
	return m.updateProduct(id, func(p *models.Product) { p.SizeWithPrices = copyIntMap(prices) })
}

func (m *Memory) CreateIngredient(ctx context.Context, ing *models.Ingredient) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.state.ingredients[ing.ID]; exists {
		return fmt.Errorf("ingredient %s: %w", ing.ID, ErrConflict)
	}
	m.state.ingredients[ing.ID] = *ing
	return nil
}

func (m *Memory) GetIngredientsByIDs(ctx context.Context, ids []string) ([]models.Ingredient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Ingredient, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if ing, ok := m.state.ingredients[id]; ok && !seen[id] {
			seen[id] = true
			out = append(out, ing)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *Memory) ListIngredients(ctx context.Context) ([]models.Ingredient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Ingredient, 0, len(m.state.ingredients))
	for _, ing := range m.state.ingredients {
		out = append(out, ing)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (m *Memory) CreateAccount(ctx context.Context, a *models.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.state.accounts[a.ID]; exists {
		return fmt.Errorf("account %s: %w", a.ID, ErrConflict)
	}
	now := m.now()
	a.CreatedAt, a.UpdatedAt = now, now
	cp := *a
	m.state.accounts[a.ID] = &cp
	return nil
}

func (m *Memory) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.state.accounts[id]
	if !ok {
		return nil, fmt.Errorf("account %s: %w", id, ErrNotFound)
	}
	cp := *a
	return &cp, nil
}

func (m *Memory) UpdateAccountRoles(ctx context.Context, id string, isStaff, isAdmin, isAvailable bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.state.accounts[id]
	if !ok {
		return fmt.Errorf("account %s: %w", id, ErrNotFound)
	}
	cp := *a
	cp.IsStaff, cp.IsAdmin, cp.IsAvailable = isStaff, isAdmin, isAvailable
	cp.UpdatedAt = m.now()
	m.state.accounts[id] = &cp
	return nil
}

func (m *Memory) GetTransaction(ctx context.Context, id string) (models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.state.transactions[id]
	if !ok {
		return nil, fmt.Errorf("transaction %s: %w", id, ErrNotFound)
	}
	return copyTransaction(t), nil
}

func (m *Memory) ListTransactionsByAccount(ctx context.Context, accountID string, limit int) ([]models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Transaction
	for i := len(m.state.ledger) - 1; i >= 0 && len(out) < limit; i-- {
		t := m.state.transactions[m.state.ledger[i]]
		if t.Header().CustomerID == accountID {
			out = append(out, copyTransaction(t))
		}
	}
	return out, nil
}

func (m *Memory) ListOrdersByState(ctx context.Context, state models.OrderState) ([]*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Order
	for _, id := range m.state.ledger {
		if o, ok := m.state.transactions[id].(*models.Order); ok && o.State == state {
			out = append(out, copyOrder(o))
		}
	}
	return out, nil
}

func (m *Memory) GetStat(ctx context.Context) (*models.Stat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.state.stat
	return &st, nil
}

func (m *Memory) ApplyStatDelta(ctx context.Context, eventID, eventType string, delta models.StatDelta) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, done := m.state.processed[eventID]; done {
		return false, nil
	}
	now := m.now()
	m.state.processed[eventID] = models.ProcessedEvent{EventID: eventID, EventType: eventType, ProcessedAt: now}

	st := &m.state.stat
	st.MoneySpent += delta.MoneySpent
	st.OrdersCount += delta.OrdersCount
	st.RechargedTotal += delta.RechargedTotal
	st.CategoryQuantities = st.CategoryQuantities.Plus(delta.Quantities)
	st.UpdatedAt = now
	return true, nil
}

func (m *Memory) FetchUnpublishedEvents(ctx context.Context, limit int) ([]models.OutboxEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.OutboxEvent
	for _, e := range m.state.outbox {
		if len(out) == limit {
			break
		}
		if e.PublishedAt == nil {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *Memory) MarkEventsPublished(ctx context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	mark := make(map[string]bool, len(ids))
	for _, id := range ids {
		mark[id] = true
	}
	now := m.now()
	for i := range m.state.outbox {
		if mark[m.state.outbox[i].ID] && m.state.outbox[i].PublishedAt == nil {
			at := now
			m.state.outbox[i].PublishedAt = &at
		}
	}
	return nil
}

func copyIntMap(in map[string]int64) map[string]int64 {
	if in == nil {
		return nil
	}
	out := make(map[string]int64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func copyProduct(p *models.Product) *models.Product {
	cp := *p
	cp.SizeWithPrices = copyIntMap(p.SizeWithPrices)
	cp.Ingredients = append([]models.Ingredient(nil), p.Ingredients...)
	if p.Stock != nil {
		stock := *p.Stock
		cp.Stock = &stock
	}
	return &cp
}

func copyOrder(o *models.Order) *models.Order {
	cp := *o
	cp.Lines = make([]models.OrderLine, len(o.Lines))
	for i, l := range o.Lines {
		l.SizeWithQuantities = copyIntMap(l.SizeWithQuantities)
		l.UnitPrices = copyIntMap(l.UnitPrices)
		l.Ingredients = append([]models.Ingredient(nil), l.Ingredients...)
		cp.Lines[i] = l
	}
	if o.CashedInAt != nil {
		at := *o.CashedInAt
		cp.CashedInAt = &at
	}
	return &cp
}

// transactionCopier deep-copies any transaction kind
type transactionCopier struct {
	out models.Transaction
}

func (c *transactionCopier) VisitRecharge(r *models.Recharge) error {
	cp := *r
	c.out = &cp
	return nil
}

func (c *transactionCopier) VisitOrder(o *models.Order) error {
	c.out = copyOrder(o)
	return nil
}

func copyTransaction(t models.Transaction) models.Transaction {
	c := &transactionCopier{}
	_ = t.Accept(c)
	return c.out
}

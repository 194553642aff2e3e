package models

import "time"

// TransactionKind discriminates the Transaction sum type
type TransactionKind string

const (
	TransactionKindRecharge TransactionKind = "recharge"
	TransactionKindOrder    TransactionKind = "order"
)

// Transaction is an immutable ledger entry that changed an account balance.
// The only implementations are *Recharge and *Order.
type Transaction interface {
	Header() *TransactionHeader
	Kind() TransactionKind
	Accept(v TransactionVisitor) error
	sealed()
}

// TransactionVisitor handles every transaction kind.
// Adding a kind adds a method here, so each visitor must handle it.
type TransactionVisitor interface {
	VisitRecharge(r *Recharge) error
	VisitOrder(o *Order) error
}

// TransactionHeader carries the fields shared by all transaction kinds
type TransactionHeader struct {
	ID         string    `json:"id"`
	CustomerID string    `json:"customer_id"`
	StaffID    string    `json:"staff_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Recharge adds money to a customer balance
type Recharge struct {
	TransactionHeader
	Amount int64 `json:"amount"`
}

func (r *Recharge) Header() *TransactionHeader { return &r.TransactionHeader }
func (r *Recharge) Kind() TransactionKind { return TransactionKindRecharge }
func (r *Recharge) Accept(v TransactionVisitor) error { return v.VisitRecharge(r) }
func (r *Recharge) sealed() {}

// Order is a paid purchase of one or more products
type Order struct {
	TransactionHeader
	Lines            []OrderLine        `json:"lines"`
	Price            int64              `json:"price"`
	Quantities       CategoryQuantities `json:"quantities"`
	State            OrderState         `json:"state"`
	NeedsPreparation bool               `json:"needs_preparation"`
	CashedIn         bool               `json:"cashed_in"`
	CashedInAt       *time.Time         `json:"cashed_in_at,omitempty"`
	IdempotencyKey   string             `json:"idempotency_key,omitempty"`
	UpdatedAt        time.Time          `json:"updated_at"`
}

func (o *Order) Header() *TransactionHeader { return &o.TransactionHeader }
func (o *Order) Kind() TransactionKind { return TransactionKindOrder }
func (o *Order) Accept(v TransactionVisitor) error { return v.VisitOrder(o) }
func (o *Order) sealed() {}

// StockUsage returns the units ordered per product id
func (o *Order) StockUsage() map[string]int64 {
	usage := make(map[string]int64, len(o.Lines))
	for _, l := range o.Lines {
		usage[l.ProductID] += l.Quantity()
	}
	return usage
}

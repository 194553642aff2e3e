package models

import "time"

// Event types
const (
	EventTypeOrderPlaced       = "ORDER_PLACED"
	EventTypeOrderCancelled    = "ORDER_CANCELLED"
	EventTypeOrderStateChanged = "ORDER_STATE_CHANGED"
	EventTypeAccountRecharged  = "ACCOUNT_RECHARGED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderPlacedEvent is recorded when an order commits
type OrderPlacedEvent struct {
	BaseEvent
	TransactionID string             `json:"transaction_id"`
	CustomerID    string             `json:"customer_id"`
	StaffID       string             `json:"staff_id,omitempty"`
	Price         int64              `json:"price"`
	Quantities    CategoryQuantities `json:"quantities"`
}

// OrderCancelledEvent is recorded when an order is cancelled and refunded
type OrderCancelledEvent struct {
	BaseEvent
	TransactionID string             `json:"transaction_id"`
	CustomerID    string             `json:"customer_id"`
	Refunded      int64              `json:"refunded"`
	Quantities    CategoryQuantities `json:"quantities"`
}

// OrderStateChangedEvent is recorded on every order state transition
type OrderStateChangedEvent struct {
	BaseEvent
	TransactionID string     `json:"transaction_id"`
	From          OrderState `json:"from"`
	To            OrderState `json:"to"`
	ChangedBy     string     `json:"changed_by"`
}

// AccountRechargedEvent is recorded when a recharge commits
type AccountRechargedEvent struct {
	BaseEvent
	TransactionID string `json:"transaction_id"`
	CustomerID    string `json:"customer_id"`
	Amount        int64  `json:"amount"`
}

// ProcessedEvent for idempotency
type ProcessedEvent struct {
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	ProcessedAt time.Time `db:"processed_at"`
}

package models

import "fmt"

// OrderState is the fulfillment state of an order
type OrderState string

const (
	OrderStatePreparing OrderState = "preparing"
	OrderStateReady     OrderState = "ready"
	OrderStateServed    OrderState = "served"
	OrderStateCancelled OrderState = "cancelled"
)

var orderTransitions = map[OrderState][]OrderState{
	OrderStatePreparing: {OrderStateReady, OrderStateCancelled},
	OrderStateReady:     {OrderStateServed, OrderStateCancelled},
}

// Valid reports whether s is a known state
func (s OrderState) Valid() bool {
	switch s {
	case OrderStatePreparing, OrderStateReady, OrderStateServed, OrderStateCancelled:
		return true
	}
	return false
}

// Terminal reports whether no transition leaves s
func (s OrderState) Terminal() bool {
	return len(orderTransitions[s]) == 0
}

// CanTransition reports whether an order may move from s to next
func (s OrderState) CanTransition(next OrderState) bool {
	if s.Terminal() {
		return false
	}
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ParseOrderState converts a raw value into an OrderState
func ParseOrderState(raw string) (OrderState, error) {
	s := OrderState(raw)
	if !s.Valid() {
		return "", fmt.Errorf("unknown order state %q", raw)
	}
	return s, nil
}

package service

import "errors"

// OrderResult is the outcome of MakeOrder. A failed order has no side effects.
// Internal failures carry the underlying cause.
type OrderResult struct {
	Success       bool      `json:"success"`
	TransactionID string    `json:"transaction_id,omitempty"`
	Price         int64     `json:"price,omitempty"`
	Replayed      bool      `json:"replayed,omitempty"`
	ErrorKind     ErrorKind `json:"error_kind,omitempty"`
	Message       string    `json:"message,omitempty"`
	Cause         string    `json:"cause,omitempty"`
}

func successResult(txID string, price int64, replayed bool) OrderResult {
	return OrderResult{Success: true, TransactionID: txID, Price: price, Replayed: replayed}
}

func failureResult(err error) OrderResult {
	res := OrderResult{ErrorKind: KindOf(err), Message: err.Error()}
	var e *Error
	if errors.As(err, &e) {
		res.Message = e.Message
		if res.ErrorKind == KindInternal && e.Cause != nil {
			res.Cause = e.Cause.Error()
		}
	} else {
		res.Message = "internal error"
		res.Cause = err.Error()
	}
	return res
}

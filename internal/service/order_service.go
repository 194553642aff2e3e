package service

import (
	"context"
	"errors"
	"time"

	"canteen-service/internal/models"
	"canteen-service/internal/store"
	"canteen-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// InflightGuard rejects a request while an identical one is still running
type InflightGuard interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), acquired bool, err error)
}

// OrderOptions tunes the order path
type OrderOptions struct {
	Retry   RetryPolicy
	Timeout time.Duration
}

// OrderService places orders and moves them through their lifecycle
type OrderService struct {
	store  store.Repository
	guard  InflightGuard
	opts   OrderOptions
	logger *zap.Logger
}

// NewOrderService creates a new order service. guard may be nil.
func NewOrderService(repo store.Repository, guard InflightGuard, opts OrderOptions) *OrderService {
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = DefaultRetryPolicy
	}
	return &OrderService{
		store:  repo,
		guard:  guard,
		opts:   opts,
		logger: util.GetLogger(),
	}
}

// MakeOrderRequest is an order placed by staff on behalf of a customer
type MakeOrderRequest struct {
	AccountID        string               `json:"account_id"`
	Lines            []models.LineRequest `json:"lines"`
	NeedsPreparation bool                 `json:"needs_preparation"`
	IdempotencyKey   string               `json:"idempotency_key,omitempty"`
}

// MakeOrder validates, prices and commits an order in one atomic unit
func (s *OrderService) MakeOrder(ctx context.Context, actorID string, req *MakeOrderRequest) OrderResult {
	ctx, span := util.StartSpan(ctx, "OrderService.MakeOrder")
	defer span.End()
	logger := util.WithTrace(ctx, s.logger)

	start := time.Now()
	defer func() {
		util.OrderLatency.Observe(time.Since(start).Seconds())
	}()

	order, replayed, err := s.makeOrder(ctx, actorID, req)
	if err != nil {
		kind := KindOf(err)
		util.OrdersFailedTotal.WithLabelValues(string(kind)).Inc()
		span.RecordError(err)
		if IsRejection(err) {
			logger.Info("Order rejected",
				zap.String("actor_id", actorID),
				zap.String("kind", string(kind)),
				zap.Stringer("grpc_code", kind.Code()),
				zap.Error(err))
		} else {
			logger.Error("Order failed",
				zap.String("actor_id", actorID),
				zap.Stringer("grpc_code", kind.Code()),
				zap.Error(err))
		}
		return failureResult(err)
	}

	if replayed {
		util.OrdersReplayedTotal.Inc()
		logger.Info("Duplicate order request detected",
			zap.String("idempotency_key", order.IdempotencyKey),
			zap.String("transaction_id", order.ID))
	} else {
		util.OrdersPlacedTotal.Inc()
		util.OrderRevenueTotal.Add(float64(order.Price))
		logger.Info("Order placed",
			zap.String("transaction_id", order.ID),
			zap.String("customer_id", order.CustomerID),
			zap.String("staff_id", order.StaffID),
			zap.Int64("price", order.Price))
	}
	return successResult(order.ID, order.Price, replayed)
}

func (s *OrderService) makeOrder(ctx context.Context, actorID string, req *MakeOrderRequest) (*models.Order, bool, error) {
	staff, err := requireStaff(ctx, s.store, actorID)
	if err != nil {
		return nil, false, err
	}
	if err := validateRequest(req); err != nil {
		return nil, false, err
	}

	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}

	if req.IdempotencyKey != "" && s.guard != nil {
		release, acquired, err := s.guard.Acquire(ctx, "order:"+req.IdempotencyKey, s.guardTTL())
		switch {
		case err != nil:
			s.logger.Warn("In-flight guard unavailable, relying on the idempotency key alone", zap.Error(err))
		case !acquired:
			return nil, false, newError(KindAborted, "an identical order request is already in progress")
		default:
			defer release()
		}
	}

	var (
		placed   *models.Order
		replayed bool
	)
	err = runAtomic(ctx, s.store, s.opts.Retry, s.logger, "make_order", func(ctx context.Context, tx store.Tx) error {
		placed, replayed = nil, false

		if req.IdempotencyKey != "" {
			existing, err := tx.FindOrderByIdempotencyKey(ctx, req.IdempotencyKey)
			if err != nil {
				return fromStore(err, "order")
			}
			if existing != nil {
				if existing.CustomerID != req.AccountID {
					return newError(KindInvalidArgument, "idempotency key already used for another account")
				}
				placed, replayed = existing, true
				return nil
			}
		}

		account, err := tx.LockAccount(ctx, req.AccountID)
		if err != nil {
			return fromStore(err, "account")
		}

		products, err := readCatalog(ctx, tx, req.Lines)
		if err != nil {
			return err
		}

		lines, err := validateLines(req.Lines, products)
		if err != nil {
			return err
		}

		priced, err := priceOrder(lines)
		if err != nil {
			return err
		}

		if err := checkBalance(account, priced.total); err != nil {
			return err
		}

		now := time.Now().UTC()
		order := &models.Order{
			TransactionHeader: models.TransactionHeader{
				ID:         uuid.New().String(),
				CustomerID: account.ID,
				StaffID:    staff.ID,
				CreatedAt:  now,
			},
			Lines:            priced.lines,
			Price:            priced.total,
			Quantities:       priced.quantities,
			State:            models.OrderStatePreparing,
			NeedsPreparation: req.NeedsPreparation,
			IdempotencyKey:   req.IdempotencyKey,
			UpdatedAt:        now,
		}

		if err := writeOrder(ctx, tx, order, products); err != nil {
			return err
		}
		placed = order
		return nil
	})
	if err != nil {
		return nil, false, fromStore(err, "order")
	}
	return placed, replayed, nil
}

func (s *OrderService) guardTTL() time.Duration {
	if s.opts.Timeout > 0 {
		return s.opts.Timeout
	}
	return 30 * time.Second
}

// UpdateOrderState moves an order along its lifecycle. Cancelling refunds the
// customer; serving cashes the order in.
func (s *OrderService) UpdateOrderState(ctx context.Context, actorID, txID string, next models.OrderState) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.UpdateOrderState")
	defer span.End()

	staff, err := requireStaff(ctx, s.store, actorID)
	if err != nil {
		return nil, err
	}
	if !next.Valid() {
		return nil, newError(KindInvalidArgument, "unknown order state %q", next)
	}

	var (
		updated  *models.Order
		from     models.OrderState
		cashedIn bool
	)
	err = runAtomic(ctx, s.store, s.opts.Retry, s.logger, "update_order_state", func(ctx context.Context, tx store.Tx) error {
		o, err := tx.LockOrder(ctx, txID)
		if err != nil {
			return fromStore(err, "order")
		}
		if !o.State.CanTransition(next) {
			return newError(KindInvalidArgument, "cannot move order from %s to %s", o.State, next)
		}

		from, cashedIn = o.State, false
		now := time.Now().UTC()
		o.State = next
		o.UpdatedAt = now

		switch next {
		case models.OrderStateServed:
			if !o.CashedIn {
				o.CashedIn = true
				o.CashedInAt = &now
				cashedIn = true
			}
		case models.OrderStateCancelled:
			if err := refundOrder(ctx, tx, o); err != nil {
				return err
			}
		}

		if err := tx.UpdateOrder(ctx, o); err != nil {
			return writeFailure(err, "failed to update order %s", o.ID)
		}

		evt := &models.OrderStateChangedEvent{
			BaseEvent:     newBaseEvent(models.EventTypeOrderStateChanged, now),
			TransactionID: o.ID,
			From:          from,
			To:            next,
			ChangedBy:     staff.ID,
		}
		if err := appendEvent(ctx, tx, evt.BaseEvent, o.CustomerID, evt); err != nil {
			return err
		}

		updated = o
		return nil
	})
	if err != nil {
		return nil, fromStore(err, "order")
	}

	util.OrderStateTransitionsTotal.WithLabelValues(string(next)).Inc()
	if cashedIn {
		util.OrdersCashedInTotal.Inc()
	}
	s.logger.Info("Order state updated",
		zap.String("transaction_id", txID),
		zap.String("from", string(from)),
		zap.String("to", string(next)),
		zap.String("staff_id", staff.ID))
	return updated, nil
}

// CashIn records that payment for an order was collected at the counter
func (s *OrderService) CashIn(ctx context.Context, actorID, txID string) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CashIn")
	defer span.End()

	if _, err := requireStaff(ctx, s.store, actorID); err != nil {
		return nil, err
	}

	var updated *models.Order
	err := runAtomic(ctx, s.store, s.opts.Retry, s.logger, "cash_in", func(ctx context.Context, tx store.Tx) error {
		o, err := tx.LockOrder(ctx, txID)
		if err != nil {
			return fromStore(err, "order")
		}
		if o.State == models.OrderStateCancelled {
			return newError(KindInvalidArgument, "cancelled order cannot be cashed in")
		}
		if o.CashedIn {
			return newError(KindInvalidArgument, "order is already cashed in")
		}

		now := time.Now().UTC()
		o.CashedIn = true
		o.CashedInAt = &now
		o.UpdatedAt = now
		if err := tx.UpdateOrder(ctx, o); err != nil {
			return writeFailure(err, "failed to cash in order %s", o.ID)
		}
		updated = o
		return nil
	})
	if err != nil {
		return nil, fromStore(err, "order")
	}

	util.OrdersCashedInTotal.Inc()
	s.logger.Info("Order cashed in", zap.String("transaction_id", txID))
	return updated, nil
}

// GetTransaction retrieves a ledger entry. Customers may only read their own.
func (s *OrderService) GetTransaction(ctx context.Context, actorID, txID string) (models.Transaction, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.GetTransaction")
	defer span.End()

	actor, err := loadActor(ctx, s.store, actorID)
	if err != nil {
		return nil, err
	}

	t, err := s.store.GetTransaction(ctx, txID)
	if err != nil {
		return nil, fromStore(err, "transaction")
	}
	if !actor.IsStaff && !actor.IsAdmin && t.Header().CustomerID != actor.ID {
		// Hide the existence of other customers' transactions.
		return nil, newError(KindNotFound, "transaction not found")
	}
	return t, nil
}

// ListOrders returns the orders currently in state, oldest first
func (s *OrderService) ListOrders(ctx context.Context, actorID string, state models.OrderState) ([]*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.ListOrders")
	defer span.End()

	if _, err := requireStaff(ctx, s.store, actorID); err != nil {
		return nil, err
	}
	if !state.Valid() {
		return nil, newError(KindInvalidArgument, "unknown order state %q", state)
	}

	orders, err := s.store.ListOrdersByState(ctx, state)
	if err != nil {
		return nil, fromStore(err, "orders")
	}
	return orders, nil
}

// IsRejection reports whether err is a business rejection rather than a failure
func IsRejection(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind != KindInternal && e.Kind != KindAborted
}

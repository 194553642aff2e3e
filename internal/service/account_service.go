package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"canteen-service/internal/models"
	"canteen-service/internal/store"
	"canteen-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const defaultTransactionsLimit = 50

// AccountService manages customer accounts and their balance top-ups
type AccountService struct {
	store      store.Repository
	retry      RetryPolicy
	maxDeposit int64
	logger     *zap.Logger
}

// NewAccountService creates a new account service
func NewAccountService(repo store.Repository, retry RetryPolicy, maxDeposit int64) *AccountService {
	if retry.MaxAttempts == 0 {
		retry = DefaultRetryPolicy
	}
	return &AccountService{
		store:      repo,
		retry:      retry,
		maxDeposit: maxDeposit,
		logger:     util.GetLogger(),
	}
}

// CreateAccountRequest describes a new account
type CreateAccountRequest struct {
	ID      string `json:"id,omitempty"`
	Name    string `json:"name" binding:"required"`
	Email   string `json:"email" binding:"required"`
	School  string `json:"school"`
	IsStaff bool   `json:"is_staff"`
	IsAdmin bool   `json:"is_admin"`
}

// RolesUpdate sets the role and availability flags of an account
type RolesUpdate struct {
	IsStaff     bool `json:"is_staff"`
	IsAdmin     bool `json:"is_admin"`
	IsAvailable bool `json:"is_available"`
}

// CreateAccount registers a new account with a zero balance
func (as *AccountService) CreateAccount(ctx context.Context, actorID string, req *CreateAccountRequest) (*models.Account, error) {
	ctx, span := util.StartSpan(ctx, "AccountService.CreateAccount")
	defer span.End()

	if _, err := requireAdmin(ctx, as.store, actorID); err != nil {
		return nil, err
	}
	return as.createAccount(ctx, req)
}

// EnsureAdmin creates the bootstrap administrator if it does not exist yet
func (as *AccountService) EnsureAdmin(ctx context.Context, id, name, email string) error {
	_, err := as.store.GetAccount(ctx, id)
	if err == nil {
		return nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return fromStore(err, "account")
	}
	_, err = as.createAccount(ctx, &CreateAccountRequest{ID: id, Name: name, Email: email, IsStaff: true, IsAdmin: true})
	return err
}

func (as *AccountService) createAccount(ctx context.Context, req *CreateAccountRequest) (*models.Account, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, newError(KindInvalidArgument, "account name is required")
	}
	if !strings.Contains(req.Email, "@") {
		return nil, newError(KindInvalidArgument, "a valid email is required")
	}

	a := &models.Account{
		ID:          req.ID,
		Name:        strings.TrimSpace(req.Name),
		Email:       strings.ToLower(strings.TrimSpace(req.Email)),
		School:      req.School,
		IsStaff:     req.IsStaff || req.IsAdmin,
		IsAdmin:     req.IsAdmin,
		IsAvailable: true,
	}
	if a.ID == "" {
		a.ID = uuid.New().String()
	}

	if err := as.store.CreateAccount(ctx, a); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, wrapError(KindInvalidArgument, err, "account %s already exists", a.ID)
		}
		return nil, fromStore(err, "account")
	}

	as.logger.Info("Account created",
		zap.String("account_id", a.ID),
		zap.Bool("is_staff", a.IsStaff),
		zap.Bool("is_admin", a.IsAdmin))
	return a, nil
}

// GetAccount retrieves an account. Customers may only read their own.
func (as *AccountService) GetAccount(ctx context.Context, actorID, accountID string) (*models.Account, error) {
	ctx, span := util.StartSpan(ctx, "AccountService.GetAccount")
	defer span.End()

	if _, err := requireStaffOrOwner(ctx, as.store, actorID, accountID); err != nil {
		return nil, err
	}
	a, err := as.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, fromStore(err, "account")
	}
	return a, nil
}

// UpdateRoles changes the role flags and availability of an account
func (as *AccountService) UpdateRoles(ctx context.Context, actorID, accountID string, roles RolesUpdate) (*models.Account, error) {
	ctx, span := util.StartSpan(ctx, "AccountService.UpdateRoles")
	defer span.End()

	admin, err := requireAdmin(ctx, as.store, actorID)
	if err != nil {
		return nil, err
	}
	if admin.ID == accountID && (!roles.IsAdmin || !roles.IsAvailable) {
		return nil, newError(KindInvalidArgument, "administrators cannot demote or disable themselves")
	}

	isStaff := roles.IsStaff || roles.IsAdmin
	if err := as.store.UpdateAccountRoles(ctx, accountID, isStaff, roles.IsAdmin, roles.IsAvailable); err != nil {
		return nil, fromStore(err, "account")
	}

	as.logger.Info("Account roles updated",
		zap.String("account_id", accountID),
		zap.String("admin_id", admin.ID),
		zap.Bool("is_staff", isStaff),
		zap.Bool("is_admin", roles.IsAdmin),
		zap.Bool("is_available", roles.IsAvailable))

	a, err := as.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, fromStore(err, "account")
	}
	return a, nil
}

// ListTransactions returns the latest ledger entries of an account, newest first
func (as *AccountService) ListTransactions(ctx context.Context, actorID, accountID string, limit int) ([]models.Transaction, error) {
	ctx, span := util.StartSpan(ctx, "AccountService.ListTransactions")
	defer span.End()

	if _, err := requireStaffOrOwner(ctx, as.store, actorID, accountID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 500 {
		limit = defaultTransactionsLimit
	}
	if _, err := as.store.GetAccount(ctx, accountID); err != nil {
		return nil, fromStore(err, "account")
	}

	txs, err := as.store.ListTransactionsByAccount(ctx, accountID, limit)
	if err != nil {
		return nil, fromStore(err, "transactions")
	}
	return txs, nil
}

// Recharge adds amount to a customer balance and records it in the ledger
func (as *AccountService) Recharge(ctx context.Context, actorID, accountID string, amount int64) (*models.Recharge, error) {
	ctx, span := util.StartSpan(ctx, "AccountService.Recharge")
	defer span.End()

	staff, err := requireStaff(ctx, as.store, actorID)
	if err != nil {
		return nil, err
	}
	if amount <= 0 {
		return nil, newError(KindInvalidArgument, "recharge amount must be positive")
	}
	if as.maxDeposit > 0 && amount > as.maxDeposit {
		return nil, newError(KindInvalidArgument, "recharge amount exceeds the maximum deposit of %d", as.maxDeposit)
	}

	var recharge *models.Recharge
	err = runAtomic(ctx, as.store, as.retry, as.logger, "recharge", func(ctx context.Context, tx store.Tx) error {
		account, err := tx.LockAccount(ctx, accountID)
		if err != nil {
			return fromStore(err, "account")
		}
		if !account.IsAvailable {
			return newError(KindPermissionDenied, "account %s is disabled", account.ID)
		}
		if _, ok := addInt64(account.Balance, amount); !ok {
			return newError(KindInvalidArgument, "balance would overflow")
		}

		now := time.Now().UTC()
		r := &models.Recharge{
			TransactionHeader: models.TransactionHeader{
				ID:         uuid.New().String(),
				CustomerID: account.ID,
				StaffID:    staff.ID,
				CreatedAt:  now,
			},
			Amount: amount,
		}
		if err := tx.InsertTransaction(ctx, r); err != nil {
			return writeFailure(err, "failed to record recharge")
		}
		if err := tx.AdjustAccount(ctx, account.ID, amount, models.AccountStats{}); err != nil {
			return writeFailure(err, "failed to credit account %s", account.ID)
		}

		evt := &models.AccountRechargedEvent{
			BaseEvent:     newBaseEvent(models.EventTypeAccountRecharged, now),
			TransactionID: r.ID,
			CustomerID:    account.ID,
			Amount:        amount,
		}
		if err := appendEvent(ctx, tx, evt.BaseEvent, account.ID, evt); err != nil {
			return err
		}
		recharge = r
		return nil
	})
	if err != nil {
		return nil, fromStore(err, "account")
	}

	util.RechargesTotal.Inc()
	util.RechargedAmountTotal.Add(float64(amount))
	as.logger.Info("Account recharged",
		zap.String("transaction_id", recharge.ID),
		zap.String("account_id", accountID),
		zap.String("staff_id", staff.ID),
		zap.Int64("amount", amount))
	return recharge, nil
}

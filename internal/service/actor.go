package service

import (
	"context"
	"errors"

	"canteen-service/internal/models"
	"canteen-service/internal/store"
)

// loadActor resolves the calling account. Roles always come from storage.
func loadActor(ctx context.Context, repo store.Repository, actorID string) (*models.Account, error) {
	if actorID == "" {
		return nil, newError(KindUnauthenticated, "caller identity is required")
	}
	actor, err := repo.GetAccount(ctx, actorID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, newError(KindUnauthenticated, "unknown caller %s", actorID)
	}
	if err != nil {
		return nil, fromStore(err, "caller")
	}
	if !actor.IsAvailable {
		return nil, newError(KindPermissionDenied, "caller account is disabled")
	}
	return actor, nil
}

func requireStaff(ctx context.Context, repo store.Repository, actorID string) (*models.Account, error) {
	actor, err := loadActor(ctx, repo, actorID)
	if err != nil {
		return nil, err
	}
	if !actor.IsStaff && !actor.IsAdmin {
		return nil, newError(KindPermissionDenied, "staff privilege required")
	}
	return actor, nil
}

func requireAdmin(ctx context.Context, repo store.Repository, actorID string) (*models.Account, error) {
	actor, err := loadActor(ctx, repo, actorID)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin {
		return nil, newError(KindPermissionDenied, "admin privilege required")
	}
	return actor, nil
}

// requireStaffOrOwner lets staff act on any account and customers on their own
func requireStaffOrOwner(ctx context.Context, repo store.Repository, actorID, accountID string) (*models.Account, error) {
	actor, err := loadActor(ctx, repo, actorID)
	if err != nil {
		return nil, err
	}
	if actor.ID != accountID && !actor.IsStaff && !actor.IsAdmin {
		return nil, newError(KindPermissionDenied, "not allowed to access account %s", accountID)
	}
	return actor, nil
}

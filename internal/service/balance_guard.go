package service

import "canteen-service/internal/models"

// checkBalance rejects an order the account cannot pay for. The account must have
// been read with a lock in the same unit that debits it.
func checkBalance(account *models.Account, total int64) error {
	if !account.IsAvailable {
		return newError(KindPermissionDenied, "account %s is disabled", account.ID)
	}
	if total > account.Balance {
		return newError(KindPermissionDenied, "insufficient balance")
	}
	return nil
}

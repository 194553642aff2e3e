package service

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"canteen-service/internal/store"
	"canteen-service/internal/util"

	"go.uber.org/zap"
)

// RetryPolicy bounds how often a unit of work is re-run after a concurrent update conflict
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// DefaultRetryPolicy is used when a service is built without an explicit policy
var DefaultRetryPolicy = RetryPolicy{MaxAttempts: 5, BaseDelay: 10 * time.Millisecond}

func (p RetryPolicy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// backoff returns an exponential delay with up to one base delay of jitter
func (p RetryPolicy) backoff(attempt int) time.Duration {
	if p.BaseDelay <= 0 {
		return 0
	}
	d := p.BaseDelay << uint(attempt-1)
	return d + time.Duration(rand.Int63n(int64(p.BaseDelay)))
}

// runAtomic runs fn as one unit of work and re-runs it with fresh reads while the
// store reports a conflict. Once the attempts are used up the caller gets Aborted.
func runAtomic(ctx context.Context, repo store.Repository, policy RetryPolicy, logger *zap.Logger, op string, fn store.TxFunc) error {
	attempts := policy.attempts()

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = repo.RunInTx(ctx, fn)
		if err == nil || !errors.Is(err, store.ErrConflict) {
			return err
		}

		util.TxConflictsTotal.WithLabelValues(op).Inc()
		logger.Warn("Unit of work conflicted, retrying",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Error(err))

		if attempt == attempts {
			break
		}

		select {
		case <-ctx.Done():
			return wrapError(KindAborted, ctx.Err(), "%s cancelled while retrying", op)
		case <-time.After(policy.backoff(attempt)):
		}
	}

	return wrapError(KindAborted, err, "%s gave up after %d conflicting attempts", op, attempts)
}

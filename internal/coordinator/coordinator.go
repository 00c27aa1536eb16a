package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"chargeledger/internal/metrics"
	"chargeledger/internal/repository"

	"github.com/sethvargo/go-retry"
)

const (
	StrategyLock       = "lock"
	StrategyOptimistic = "optimistic"
)

// maxBackoff caps the wait between conditional write attempts.
const maxBackoff = 100 * time.Millisecond

var ErrContention = errors.New("balance kept changing, gave up retrying")

// Coordinator applies a read-decide-write cycle to one account's balance as
// if no other cycle on that account ran concurrently. Cycles on different
// accounts are not ordered against each other.
type Coordinator interface {
	Apply(ctx context.Context, account string, decide repository.DecideFunc) error
	Close() error
}

// Locking serializes cycles through a per-account lock around plain
// get and set calls.
type Locking struct {
	locks *LockTable
	store repository.BalanceStore
}

func NewLocking(locks *LockTable, store repository.BalanceStore) *Locking {
	return &Locking{locks: locks, store: store}
}

func (c *Locking) Apply(ctx context.Context, account string, decide repository.DecideFunc) error {
	start := time.Now()
	defer func() {
		metrics.CoordinatorDuration.WithLabelValues(StrategyLock).Observe(time.Since(start).Seconds())
	}()

	return c.locks.RunExclusive(ctx, account, func(ctx context.Context) error {
		balance, err := c.store.Get(ctx, account)
		if err != nil {
			return err
		}
		next, write := decide(balance)
		if !write {
			return nil
		}
		return c.store.Set(ctx, account, next)
	})
}

func (c *Locking) Close() error {
	c.locks.Close()
	return nil
}

// Optimistic retries conditional writes until one lands. It needs no lock
// table and stays correct across processes sharing the store.
type Optimistic struct {
	store      repository.ConditionalStore
	maxRetries uint64
	baseDelay  time.Duration
	closed     atomic.Bool
}

func NewOptimistic(store repository.ConditionalStore, maxRetries uint64, baseDelay time.Duration) *Optimistic {
	return &Optimistic{
		store:      store,
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
	}
}

func (c *Optimistic) Apply(ctx context.Context, account string, decide repository.DecideFunc) error {
	if c.closed.Load() {
		return ErrClosed
	}

	start := time.Now()
	defer func() {
		metrics.CoordinatorDuration.WithLabelValues(StrategyOptimistic).Observe(time.Since(start).Seconds())
	}()

	backoff := retry.NewExponential(c.baseDelay)
	backoff = retry.WithCappedDuration(maxBackoff, backoff)
	backoff = retry.WithJitterPercent(25, backoff)
	backoff = retry.WithMaxRetries(c.maxRetries, backoff)

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := c.store.Update(ctx, account, decide)
		if errors.Is(err, repository.ErrConflict) {
			metrics.WriteConflicts.Inc()
			return retry.RetryableError(err)
		}
		return err
	})
	if errors.Is(err, repository.ErrConflict) {
		return fmt.Errorf("%w: account %q after %d retries", ErrContention, account, c.maxRetries)
	}
	return err
}

func (c *Optimistic) Close() error {
	c.closed.Store(true)
	return nil
}

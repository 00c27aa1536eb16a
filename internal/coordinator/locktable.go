package coordinator

import (
	"context"
	"errors"
	"sync"

	"chargeledger/internal/metrics"

	"golang.org/x/sync/semaphore"
)

var ErrClosed = errors.New("coordinator closed")

type lockEntry struct {
	sem  *semaphore.Weighted
	refs int
}

// LockTable hands out one exclusive lock per account. An entry is created on
// first use and removed once no caller holds or waits for it, so the table
// only ever holds accounts with operations in flight.
//
// This is the one piece of process-wide mutable state in the ledger. It does
// not exclude other processes sharing the same store.
type LockTable struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
	closed  bool
}

func NewLockTable() *LockTable {
	return &LockTable{entries: make(map[string]*lockEntry)}
}

// RunExclusive runs fn while holding the lock for account. Waiting is
// abandoned when ctx is done, in which case fn never runs. The lock is
// released on every exit path, panics included.
func (t *LockTable) RunExclusive(ctx context.Context, account string, fn func(ctx context.Context) error) error {
	entry, err := t.ref(account)
	if err != nil {
		return err
	}
	defer t.unref(account, entry)

	if err := entry.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer entry.sem.Release(1)

	// Acquire may succeed on an already cancelled context.
	if err := ctx.Err(); err != nil {
		return err
	}

	return fn(ctx)
}

// Len reports the number of accounts currently tracked.
func (t *LockTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Close rejects new acquisitions with ErrClosed. Holders and waiters already
// inside RunExclusive are unaffected.
func (t *LockTable) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
}

func (t *LockTable) ref(account string) (*lockEntry, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, ErrClosed
	}

	entry, ok := t.entries[account]
	if !ok {
		entry = &lockEntry{sem: semaphore.NewWeighted(1)}
		t.entries[account] = entry
		metrics.LockTableEntries.Inc()
	}
	entry.refs++
	return entry, nil
}

func (t *LockTable) unref(account string, entry *lockEntry) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry.refs--
	if entry.refs == 0 {
		delete(t.entries, account)
		metrics.LockTableEntries.Dec()
	}
}

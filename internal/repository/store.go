package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"
)

var (
	ErrStoreUnavailable = errors.New("balance store unavailable")
	ErrConflict         = errors.New("balance modified concurrently")
	ErrNegativeBalance  = errors.New("balance must not be negative")
)

// BalanceStore reads and writes one integer balance per account. It holds no
// concurrency logic of its own.
type BalanceStore interface {
	// Get returns the stored balance, or 0 when the key is absent or malformed.
	Get(ctx context.Context, account string) (int64, error)
	Set(ctx context.Context, account string, value int64) error
	Ping(ctx context.Context) error
}

// DecideFunc maps the current balance to the next one. write reports whether
// next should be stored at all.
type DecideFunc func(balance int64) (next int64, write bool)

// ConditionalStore is a BalanceStore that can apply a read-decide-write cycle
// as a single conditional write.
type ConditionalStore interface {
	BalanceStore
	// Update returns ErrConflict if the key changed between the read and the write.
	Update(ctx context.Context, account string, decide DecideFunc) error
}

// BalanceKey returns the store key holding the account's balance.
func BalanceKey(account string) string {
	return account + "/balance"
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}

func checkBalance(value int64) error {
	if value < 0 {
		return fmt.Errorf("%w: %d", ErrNegativeBalance, value)
	}
	return nil
}

// decodeBalance parses a raw stored value. Anything that is not a
// non-negative base-10 integer reads as 0.
func decodeBalance(logger *slog.Logger, key, raw string) int64 {
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		logger.Warn("malformed balance value, treating as zero", "key", key, "value", raw)
		return 0
	}
	return v
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func formatBalance(value int64) string {
	return strconv.FormatInt(value, 10)
}

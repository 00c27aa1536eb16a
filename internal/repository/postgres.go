package repository

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore uses the balances table as a key-value store. The version
// column backs the conditional write in Update.
type PostgresStore struct {
	dbPool  *pgxpool.Pool
	timeout time.Duration
	logger  *slog.Logger
}

func NewPostgresStore(db *pgxpool.Pool, timeout time.Duration, logger *slog.Logger) *PostgresStore {
	return &PostgresStore{
		dbPool:  db,
		timeout: timeout,
		logger:  logger,
	}
}

func (s *PostgresStore) Get(ctx context.Context, account string) (int64, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	balance, _, err := s.read(ctx, s.dbPool, account)
	if err != nil {
		return 0, unavailable("postgres get", err)
	}
	return balance, nil
}

func (s *PostgresStore) Set(ctx context.Context, account string, value int64) error {
	if err := checkBalance(value); err != nil {
		return err
	}

	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	query := `
		INSERT INTO balances (key, value, version, updated_at)
		VALUES ($1, $2, 1, now())
		ON CONFLICT (key) DO UPDATE
		SET value = EXCLUDED.value, version = balances.version + 1, updated_at = now()`

	if _, err := s.dbPool.Exec(ctx, query, BalanceKey(account), formatBalance(value)); err != nil {
		return unavailable("postgres set", err)
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, account string, decide DecideFunc) error {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	balance, version, err := s.read(ctx, s.dbPool, account)
	if err != nil {
		return unavailable("postgres update", err)
	}

	next, write := decide(balance)
	if !write {
		return nil
	}
	if err := checkBalance(next); err != nil {
		return err
	}

	key := BalanceKey(account)
	var query string
	args := []any{key, formatBalance(next)}
	if version == 0 {
		// Key did not exist: whoever inserts first wins.
		query = `
			INSERT INTO balances (key, value, version, updated_at)
			VALUES ($1, $2, 1, now())
			ON CONFLICT (key) DO NOTHING`
	} else {
		query = `
			UPDATE balances SET value = $2, version = version + 1, updated_at = now()
			WHERE key = $1 AND version = $3`
		args = append(args, version)
	}

	tag, err := s.dbPool.Exec(ctx, query, args...)
	if err != nil {
		return unavailable("postgres update", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.dbPool.Ping(ctx); err != nil {
		return unavailable("postgres ping", err)
	}
	return nil
}

type queryRower interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (s *PostgresStore) read(ctx context.Context, q queryRower, account string) (int64, int64, error) {
	key := BalanceKey(account)

	var raw string
	var version int64
	err := q.QueryRow(ctx, `SELECT value, version FROM balances WHERE key = $1`, key).Scan(&raw, &version)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, 0, nil
	}
	if err != nil {
		return 0, 0, err
	}
	return decodeBalance(s.logger, key, raw), version, nil
}

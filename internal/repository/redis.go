package repository

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps balances as plain string values under "{account}/balance".
type RedisStore struct {
	redisClient *redis.Client
	timeout     time.Duration
	logger      *slog.Logger
}

func NewRedisStore(rdb *redis.Client, timeout time.Duration, logger *slog.Logger) *RedisStore {
	return &RedisStore{
		redisClient: rdb,
		timeout:     timeout,
		logger:      logger,
	}
}

func (s *RedisStore) Get(ctx context.Context, account string) (int64, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	key := BalanceKey(account)
	raw, err := s.redisClient.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, unavailable("redis get", err)
	}
	return decodeBalance(s.logger, key, raw), nil
}

func (s *RedisStore) Set(ctx context.Context, account string, value int64) error {
	if err := checkBalance(value); err != nil {
		return err
	}

	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	// No TTL: the balance lives until it is overwritten.
	if err := s.redisClient.Set(ctx, BalanceKey(account), value, 0).Err(); err != nil {
		return unavailable("redis set", err)
	}
	return nil
}

// Update watches the balance key, so the MULTI/EXEC write is discarded if any
// other client touched the key after the read.
func (s *RedisStore) Update(ctx context.Context, account string, decide DecideFunc) error {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	key := BalanceKey(account)
	var invalid error
	err := s.redisClient.Watch(ctx, func(tx *redis.Tx) error {
		var balance int64
		raw, err := tx.Get(ctx, key).Result()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return err
		default:
			balance = decodeBalance(s.logger, key, raw)
		}

		next, write := decide(balance)
		if !write {
			return nil
		}
		if invalid = checkBalance(next); invalid != nil {
			return invalid
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, next, 0)
			return nil
		})
		return err
	}, key)

	switch {
	case err == nil:
		return nil
	case invalid != nil:
		return invalid
	case errors.Is(err, redis.TxFailedErr):
		return ErrConflict
	default:
		return unavailable("redis update", err)
	}
}

func (s *RedisStore) Ping(ctx context.Context) error {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.redisClient.Ping(ctx).Err(); err != nil {
		return unavailable("redis ping", err)
	}
	return nil
}

package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"chargeledger/internal/coordinator"
	"chargeledger/internal/metrics"
	"chargeledger/internal/model"
	"chargeledger/internal/repository"

	"github.com/google/uuid"
)

const (
	DefaultBalance int64 = 100

	publishTimeout = 2 * time.Second
)

var (
	ErrInvalidAmount  = errors.New("charge amount must not be negative")
	ErrInvalidAccount = errors.New("account must not be empty")
)

// LedgerService defines the business operations for the ledger.
// All transport layers depend on this interface, not on the concrete Ledger.
type LedgerService interface {
	Reset(ctx context.Context, account string) error
	Charge(ctx context.Context, req model.ChargeRequest) (*model.ChargeResult, error)
	GetBalance(ctx context.Context, account string) (int64, error)
	Ping(ctx context.Context) error
}

type Ledger struct {
	store          repository.BalanceStore
	coord          coordinator.Coordinator
	bus            repository.MessageBus
	defaultBalance int64
	logger         *slog.Logger
}

func NewLedger(
	store repository.BalanceStore,
	coord coordinator.Coordinator,
	bus repository.MessageBus,
	defaultBalance int64,
	logger *slog.Logger,
) *Ledger {
	if bus == nil {
		bus = repository.NopBus{}
	}
	return &Ledger{
		store:          store,
		coord:          coord,
		bus:            bus,
		defaultBalance: defaultBalance,
		logger:         logger,
	}
}

// Reset sets the balance to the default. It goes through the coordinator so a
// reset never interleaves with a charge on the same account.
func (l *Ledger) Reset(ctx context.Context, account string) error {
	if account == "" {
		return ErrInvalidAccount
	}

	err := l.coord.Apply(ctx, account, func(int64) (int64, bool) {
		return l.defaultBalance, true
	})
	if err != nil {
		l.logger.Error("reset failed", "account", account, "error", err)
		return fmt.Errorf("reset %q: %w", account, err)
	}

	metrics.ResetsTotal.Inc()
	l.logger.Info("account reset", "account", account, "balance", l.defaultBalance)
	return nil
}

// Charge debits req.Amount if the balance covers it. Insufficient funds is a
// regular unauthorized result, not an error.
func (l *Ledger) Charge(ctx context.Context, req model.ChargeRequest) (*model.ChargeResult, error) {
	if req.Account == "" {
		return nil, ErrInvalidAccount
	}
	if req.Amount < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidAmount, req.Amount)
	}

	var result model.ChargeResult
	err := l.coord.Apply(ctx, req.Account, func(balance int64) (int64, bool) {
		if balance >= req.Amount {
			result = model.ChargeResult{
				Authorized:       true,
				RemainingBalance: balance - req.Amount,
				Charged:          req.Amount,
			}
			return result.RemainingBalance, true
		}
		result = model.ChargeResult{RemainingBalance: balance}
		return balance, false
	})
	if err != nil {
		metrics.ChargesTotal.WithLabelValues("failed").Inc()
		l.logger.Error("charge failed", "account", req.Account, "amount", req.Amount, "error", err)
		return nil, fmt.Errorf("charge %q: %w", req.Account, err)
	}

	if !result.Authorized {
		metrics.ChargesTotal.WithLabelValues("denied").Inc()
		l.logger.Info("charge denied",
			"account", req.Account,
			"amount", req.Amount,
			"balance", result.RemainingBalance,
		)
		return &result, nil
	}

	metrics.ChargesTotal.WithLabelValues("authorized").Inc()
	l.logger.Info("charge authorized",
		"account", req.Account,
		"amount", req.Amount,
		"remaining", result.RemainingBalance,
	)
	l.publish(ctx, req, result)
	return &result, nil
}

// GetBalance is a plain read and may observe a value that a concurrent
// charge is about to replace.
func (l *Ledger) GetBalance(ctx context.Context, account string) (int64, error) {
	if account == "" {
		return 0, ErrInvalidAccount
	}

	balance, err := l.store.Get(ctx, account)
	if err != nil {
		return 0, fmt.Errorf("balance %q: %w", account, err)
	}
	return balance, nil
}

func (l *Ledger) Ping(ctx context.Context) error {
	return l.store.Ping(ctx)
}

// publish is best effort; the charge is already committed.
func (l *Ledger) publish(ctx context.Context, req model.ChargeRequest, result model.ChargeResult) {
	event := model.ChargeEvent{
		ID:               uuid.NewString(),
		Account:          req.Account,
		Amount:           req.Amount,
		RemainingBalance: result.RemainingBalance,
		CreatedAt:        time.Now().UTC(),
	}
	data, err := json.Marshal(event)
	if err != nil {
		l.logger.Error("failed to marshal charge event", "error", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := l.bus.Publish(ctx, repository.TopicCharges, data); err != nil {
		l.logger.Warn("failed to publish charge event", "account", req.Account, "event_id", event.ID, "error", err)
	}
}

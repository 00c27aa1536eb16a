package nats

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"chargeledger/internal/model"
	"chargeledger/internal/service"

	"github.com/nats-io/nats.go"
)

const (
	SubjectCharge  = "ledger.commands.charge"
	SubjectReset   = "ledger.commands.reset"
	SubjectBalance = "ledger.commands.balance"

	queueGroup = "ledger_group"

	drainPollInterval = 10 * time.Millisecond
)

// Reply is the response body for every command subject.
type Reply struct {
	Result  *model.ChargeResult `json:"result,omitempty"`
	Balance *int64              `json:"balance,omitempty"`
	Error   string              `json:"error,omitempty"`
}

type command struct {
	Account string `json:"account"`
	Charges *int64 `json:"charges"`
}

type commandFunc func(context.Context, command) Reply

// Handler serves ledger commands over NATS request/reply and delegates to the
// ledger service.
type Handler struct {
	svc    service.LedgerService
	nc     *nats.Conn
	logger *slog.Logger

	mu   sync.Mutex
	subs []*nats.Subscription
}

func NewHandler(svc service.LedgerService, nc *nats.Conn, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, nc: nc, logger: logger}
}

// Start subscribes to command subjects and blocks until ctx is cancelled.
// Subscriptions are drained by Stop.
func (h *Handler) Start(ctx context.Context) error {
	handlers := map[string]commandFunc{
		SubjectCharge:  h.charge,
		SubjectReset:   h.reset,
		SubjectBalance: h.balance,
	}

	for subject, fn := range handlers {
		sub, err := h.nc.QueueSubscribe(subject, queueGroup, func(m *nats.Msg) {
			h.respond(m, h.process(ctx, m.Subject, fn, m.Data))
		})
		if err != nil {
			return err
		}
		h.mu.Lock()
		h.subs = append(h.subs, sub)
		h.mu.Unlock()
	}

	h.logger.Info("NATS command handler is running")
	<-ctx.Done()
	return nil
}

// Stop drains every subscription so commands already received still get a
// reply, waiting at most until ctx is done.
func (h *Handler) Stop(ctx context.Context) error {
	h.mu.Lock()
	subs := h.subs
	h.subs = nil
	h.mu.Unlock()

	h.logger.Info("NATS command handler shutting down, draining subscriptions...")

	var errs []error
	for _, s := range subs {
		if err := s.Drain(); err != nil {
			errs = append(errs, err)
		}
	}

	ticker := time.NewTicker(drainPollInterval)
	defer ticker.Stop()
	for _, s := range subs {
		for s.IsValid() {
			select {
			case <-ctx.Done():
				return errors.Join(append(errs, ctx.Err())...)
			case <-ticker.C:
			}
		}
	}
	return errors.Join(errs...)
}

// process decodes one command and runs it. Commands run detached from the
// server context so a shutdown does not abort a command mid-flight.
func (h *Handler) process(ctx context.Context, subject string, fn commandFunc, data []byte) Reply {
	cmd, err := decode(data)
	if err != nil {
		h.logger.Warn("nats: malformed command", "subject", subject, "error", err)
		return Reply{Error: "invalid_json"}
	}
	return fn(context.WithoutCancel(ctx), cmd)
}

func (h *Handler) charge(ctx context.Context, cmd command) Reply {
	req := model.ChargeRequest{Account: cmd.Account, Amount: model.DefaultCharge}
	if cmd.Charges != nil {
		req.Amount = *cmd.Charges
	}
	res, err := h.svc.Charge(ctx, req)
	if err != nil {
		return Reply{Error: err.Error()}
	}
	return Reply{Result: res}
}

func (h *Handler) reset(ctx context.Context, cmd command) Reply {
	if err := h.svc.Reset(ctx, cmd.Account); err != nil {
		return Reply{Error: err.Error()}
	}
	return Reply{}
}

func (h *Handler) balance(ctx context.Context, cmd command) Reply {
	bal, err := h.svc.GetBalance(ctx, cmd.Account)
	if err != nil {
		return Reply{Error: err.Error()}
	}
	return Reply{Balance: &bal}
}

// decode applies the same defaults as the HTTP API. An empty payload is
// allowed.
func decode(data []byte) (command, error) {
	var cmd command
	if len(data) > 0 {
		if err := json.Unmarshal(data, &cmd); err != nil {
			return command{}, err
		}
	}
	if cmd.Account == "" {
		cmd.Account = model.DefaultAccount
	}
	return cmd, nil
}

func (h *Handler) respond(m *nats.Msg, reply Reply) {
	if m.Reply == "" {
		return
	}
	data, err := json.Marshal(reply)
	if err != nil {
		h.logger.Error("nats: failed to marshal reply", "error", err)
		return
	}
	if err := m.Respond(data); err != nil {
		h.logger.Error("nats: failed to respond", "subject", m.Subject, "error", err)
	}
}

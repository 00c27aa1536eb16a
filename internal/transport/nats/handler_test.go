package nats

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"chargeledger/internal/coordinator"
	"chargeledger/internal/model"
	"chargeledger/internal/repository"
	"chargeledger/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHandler() *Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := repository.NewMemoryStore(logger)
	svc := service.NewLedger(store, coordinator.NewLocking(coordinator.NewLockTable(), store), nil, service.DefaultBalance, logger)
	return NewHandler(svc, nil, logger)
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		account string
		charges *int64
		wantErr bool
	}{
		{name: "empty payload", data: "", account: model.DefaultAccount},
		{name: "empty object", data: "{}", account: model.DefaultAccount},
		{name: "empty account", data: `{"account":""}`, account: model.DefaultAccount},
		{name: "explicit", data: `{"account":"a","charges":7}`, account: "a", charges: ptr(int64(7))},
		{name: "malformed", data: `{"account":`, wantErr: true},
		{name: "fractional charges", data: `{"charges":1.5}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, err := decode([]byte(tt.data))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.account, cmd.Account)
			assert.Equal(t, tt.charges, cmd.Charges)
		})
	}
}

func TestHandler_Commands(t *testing.T) {
	h := newTestHandler()
	ctx := context.Background()

	reply := h.reset(ctx, command{Account: "acc"})
	assert.Empty(t, reply.Error)

	reply = h.charge(ctx, command{Account: "acc"})
	require.Empty(t, reply.Error)
	require.NotNil(t, reply.Result)
	assert.True(t, reply.Result.Authorized)
	assert.Equal(t, model.DefaultCharge, reply.Result.Charged)
	assert.Equal(t, int64(90), reply.Result.RemainingBalance)

	reply = h.charge(ctx, command{Account: "acc", Charges: ptr(int64(500))})
	require.NotNil(t, reply.Result)
	assert.False(t, reply.Result.Authorized)

	reply = h.balance(ctx, command{Account: "acc"})
	require.NotNil(t, reply.Balance)
	assert.Equal(t, int64(90), *reply.Balance)
}

func TestHandler_ChargeRejectsNegative(t *testing.T) {
	h := newTestHandler()

	reply := h.charge(context.Background(), command{Account: "acc", Charges: ptr(int64(-1))})
	assert.Nil(t, reply.Result)
	assert.Contains(t, reply.Error, service.ErrInvalidAmount.Error())
}

func ptr[T any](v T) *T { return &v }

func TestHandler_ProcessOutlivesServerContext(t *testing.T) {
	h := newTestHandler()
	require.Empty(t, h.reset(context.Background(), command{Account: "acc"}).Error)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	reply := h.process(ctx, SubjectCharge, h.charge, []byte(`{"account":"acc","charges":25}`))
	require.Empty(t, reply.Error)
	require.NotNil(t, reply.Result)
	assert.True(t, reply.Result.Authorized)
	assert.Equal(t, int64(75), reply.Result.RemainingBalance)
}

func TestHandler_ProcessMalformed(t *testing.T) {
	h := newTestHandler()

	reply := h.process(context.Background(), SubjectCharge, h.charge, []byte(`{"charges":`))
	assert.Equal(t, "invalid_json", reply.Error)
	assert.Nil(t, reply.Result)

	bal := h.balance(context.Background(), command{Account: model.DefaultAccount})
	require.NotNil(t, bal.Balance)
	assert.Equal(t, int64(0), *bal.Balance)
}

func TestHandler_StopWithoutSubscriptions(t *testing.T) {
	h := newTestHandler()
	assert.NoError(t, h.Stop(context.Background()))
}

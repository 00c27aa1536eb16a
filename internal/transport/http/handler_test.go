package http

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"chargeledger/internal/coordinator"
	"chargeledger/internal/model"
	"chargeledger/internal/repository"
	"chargeledger/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// failingService reports every operation as a store outage.
type failingService struct{}

func (failingService) Reset(context.Context, string) error {
	return fmt.Errorf("reset: %w", repository.ErrStoreUnavailable)
}
func (failingService) Charge(context.Context, model.ChargeRequest) (*model.ChargeResult, error) {
	return nil, fmt.Errorf("charge: %w", repository.ErrStoreUnavailable)
}
func (failingService) GetBalance(context.Context, string) (int64, error) {
	return 0, fmt.Errorf("balance: %w", repository.ErrStoreUnavailable)
}
func (failingService) Ping(context.Context) error { return repository.ErrStoreUnavailable }

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := repository.NewMemoryStore(logger)
	coord := coordinator.NewLocking(coordinator.NewLockTable(), store)
	svc := service.NewLedger(store, coord, nil, service.DefaultBalance, logger)

	ts := httptest.NewServer(NewRouter(svc, logger))
	t.Cleanup(ts.Close)
	return ts
}

func post(t *testing.T, ts *httptest.Server, path, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(ts.URL+path, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func balanceOf(t *testing.T, ts *httptest.Server, account string) int64 {
	t.Helper()
	resp, err := http.Get(ts.URL + "/balance/" + account)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	return decodeBody[map[string]int64](t, resp)["balance"]
}

func TestHandler_ResetAndBalance(t *testing.T) {
	ts := newTestServer(t)

	resp := post(t, ts, "/reset", `{"account":"test"}`)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	assert.Equal(t, int64(100), balanceOf(t, ts, "test"))
	assert.Equal(t, int64(0), balanceOf(t, ts, "unknown"))
}

func TestHandler_ChargeDefaults(t *testing.T) {
	ts := newTestServer(t)

	resp := post(t, ts, "/reset", "")
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = post(t, ts, "/charge", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	body := decodeBody[map[string]any](t, resp)
	assert.Equal(t, map[string]any{
		"isAuthorized":     true,
		"remainingBalance": float64(90),
		"charges":          float64(10),
	}, body)

	resp = post(t, ts, "/charge", `{}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int64(80), balanceOf(t, ts, model.DefaultAccount))
}

func TestHandler_ChargeDenied(t *testing.T) {
	ts := newTestServer(t)
	post(t, ts, "/reset", `{"account":"acc"}`)

	resp := post(t, ts, "/charge", `{"account":"acc","charges":150}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	res := decodeBody[model.ChargeResult](t, resp)
	assert.False(t, res.Authorized)
	assert.Equal(t, int64(0), res.Charged)
	assert.Equal(t, int64(100), res.RemainingBalance)
}

func TestHandler_BadRequests(t *testing.T) {
	ts := newTestServer(t)
	post(t, ts, "/reset", `{"account":"acc"}`)

	tests := []struct {
		name string
		path string
		body string
		code string
	}{
		{"negative charge", "/charge", `{"account":"acc","charges":-5}`, "invalid_amount"},
		{"fractional charge", "/charge", `{"account":"acc","charges":2.5}`, "invalid_json"},
		{"string charge", "/charge", `{"account":"acc","charges":"ten"}`, "invalid_json"},
		{"malformed charge body", "/charge", `{"account":`, "invalid_json"},
		{"malformed reset body", "/reset", `not json`, "invalid_json"},
		{"trailing garbage on charge", "/charge", `{"account":"acc"}xyz`, "invalid_json"},
		{"two objects on charge", "/charge", `{"account":"acc"}{"charges":1}`, "invalid_json"},
		{"trailing garbage on reset", "/reset", `{}xyz`, "invalid_json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := post(t, ts, tt.path, tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, tt.code, decodeBody[map[string]string](t, resp)["error"])
		})
	}

	assert.Equal(t, int64(100), balanceOf(t, ts, "acc"))
}

func TestHandler_MethodNotAllowed(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/charge")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestHandler_ConcurrentCharges(t *testing.T) {
	ts := newTestServer(t)
	post(t, ts, "/reset", `{"account":"test"}`)

	amounts := []int64{30, 40, 50}
	results := make([]model.ChargeResult, len(amounts))

	var wg sync.WaitGroup
	for i, amount := range amounts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			body := fmt.Sprintf(`{"account":"test","charges":%d}`, amount)
			resp, err := http.Post(ts.URL+"/charge", "application/json", strings.NewReader(body))
			if !assert.NoError(t, err) {
				return
			}
			defer resp.Body.Close()
			assert.NoError(t, json.NewDecoder(resp.Body).Decode(&results[i]))
		}()
	}
	wg.Wait()

	var authorized int
	var charged int64
	for _, res := range results {
		if res.Authorized {
			authorized++
			charged += res.Charged
		}
	}
	assert.Equal(t, 2, authorized)
	assert.Equal(t, 100-charged, balanceOf(t, ts, "test"))
}

func TestHandler_StoreUnavailable(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ts := httptest.NewServer(NewRouter(failingService{}, logger))
	defer ts.Close()

	for _, path := range []string{"/reset", "/charge"} {
		resp := post(t, ts, path, "")
		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode, path)
		assert.Equal(t, "store_unavailable", decodeBody[map[string]string](t, resp)["error"])
	}

	resp, err := http.Get(ts.URL + "/balance/acc")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	health, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer health.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, health.StatusCode)
}

func TestHandler_Health(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("x: %w", service.ErrInvalidAmount), http.StatusBadRequest, "invalid_amount"},
		{service.ErrInvalidAccount, http.StatusBadRequest, "invalid_account"},
		{fmt.Errorf("get: %w: %w", repository.ErrStoreUnavailable, context.DeadlineExceeded), http.StatusInternalServerError, "store_unavailable"},
		{coordinator.ErrClosed, http.StatusServiceUnavailable, "shutting_down"},
		{coordinator.ErrContention, http.StatusServiceUnavailable, "contention"},
		{context.Canceled, http.StatusServiceUnavailable, "timeout"},
		{fmt.Errorf("boom"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			status, code := classify(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, code)
		})
	}
}

func TestDecodeOptional(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{"empty", "", false},
		{"whitespace only", "  \n", false},
		{"object", `{"charges":5}`, false},
		{"object with trailing newline", "{\"charges\":5}\n", false},
		{"trailing garbage", `{}xyz`, true},
		{"second value", `{} {}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req chargeRequest
			err := decodeOptional(strings.NewReader(tt.body), &req)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"chargeledger/internal/coordinator"
	"chargeledger/internal/model"
	"chargeledger/internal/repository"
	"chargeledger/internal/service"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Handler struct {
	svc    service.LedgerService
	logger *slog.Logger
}

func NewHandler(svc service.LedgerService, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.Health)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("POST /reset", h.Reset)
	mux.HandleFunc("POST /charge", h.Charge)
	mux.HandleFunc("GET /balance/{account}", h.GetBalance)
}

// Both bodies are optional; absent fields fall back to the defaults.
type resetRequest struct {
	Account *string `json:"account"`
}

type chargeRequest struct {
	Account *string `json:"account"`
	Charges *int64  `json:"charges"`
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Ping(r.Context()); err != nil {
		h.respondError(w, http.StatusServiceUnavailable, "store_unavailable")
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if err := decodeOptional(r.Body, &req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid_json")
		return
	}

	account := accountOrDefault(req.Account)
	if err := h.svc.Reset(r.Context(), account); err != nil {
		h.respondServiceError(w, "reset", account, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Charge(w http.ResponseWriter, r *http.Request) {
	var req chargeRequest
	if err := decodeOptional(r.Body, &req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid_json")
		return
	}

	charge := model.ChargeRequest{
		Account: accountOrDefault(req.Account),
		Amount:  model.DefaultCharge,
	}
	if req.Charges != nil {
		charge.Amount = *req.Charges
	}

	res, err := h.svc.Charge(r.Context(), charge)
	if err != nil {
		h.respondServiceError(w, "charge", charge.Account, err)
		return
	}
	h.respondJSON(w, http.StatusOK, res)
}

func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	account := r.PathValue("account")
	bal, err := h.svc.GetBalance(r.Context(), account)
	if err != nil {
		h.respondServiceError(w, "balance", account, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]int64{"balance": bal})
}

func (h *Handler) respondServiceError(w http.ResponseWriter, op, account string, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", "op", op, "account", account, "error", err)
	}
	h.respondError(w, status, code)
}

// classify maps service errors onto a status and a stable error code. Store
// failures are checked first because they also wrap context errors.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrInvalidAmount):
		return http.StatusBadRequest, "invalid_amount"
	case errors.Is(err, service.ErrInvalidAccount):
		return http.StatusBadRequest, "invalid_account"
	case errors.Is(err, repository.ErrStoreUnavailable):
		return http.StatusInternalServerError, "store_unavailable"
	case errors.Is(err, coordinator.ErrClosed):
		return http.StatusServiceUnavailable, "shutting_down"
	case errors.Is(err, coordinator.ErrContention):
		return http.StatusServiceUnavailable, "contention"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "timeout"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func accountOrDefault(account *string) string {
	if account == nil || *account == "" {
		return model.DefaultAccount
	}
	return *account
}

var errTrailingData = errors.New("unexpected data after JSON body")

// decodeOptional decodes a single JSON value, treating an empty body as "{}".
func decodeOptional(body io.Reader, v any) error {
	dec := json.NewDecoder(body)
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errTrailingData
	}
	return nil
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

func (h *Handler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}

package model

import "time"

const (
	DefaultAccount       = "account"
	DefaultCharge  int64 = 10
)

type ChargeRequest struct {
	Account string `json:"account"`
	Amount  int64  `json:"charges"`
}

// ChargeResult is the outcome of a single charge attempt. Charged equals the
// requested amount when authorized and 0 otherwise.
type ChargeResult struct {
	Authorized       bool  `json:"isAuthorized"`
	RemainingBalance int64 `json:"remainingBalance"`
	Charged          int64 `json:"charges"`
}

type ChargeEvent struct {
	ID               string    `json:"id"`
	Account          string    `json:"account"`
	Amount           int64     `json:"amount"`
	RemainingBalance int64     `json:"remaining_balance"`
	CreatedAt        time.Time `json:"created_at"`
}

package models

import "time"

// Counterparty identifies who was on the other side of a movement. Deposits get
// a synthetic "Cash" counterparty with no account behind it.
type Counterparty struct {
	Alias         *string `json:"alias"`
	Email         *string `json:"email"`
	AccountNumber *string `json:"account_number"`
}

// Movement is one line of the human-facing feed derived from a ledger entry.
type Movement struct {
	ID           string       `json:"id"`
	Kind         EntryKind    `json:"kind"`
	Memo         string       `json:"memo"`
	Direction    string       `json:"direction"` // IN or OUT
	Amount       int64        `json:"amount"`
	SignedAmount int64        `json:"signed_amount"`
	Counterparty Counterparty `json:"counterparty"`
	CreatedAt    time.Time    `json:"created_at"`
}

type MovementPage struct {
	Page       int        `json:"page"`
	Limit      int        `json:"limit"`
	Total      int        `json:"total"`
	TotalPages int        `json:"totalPages"`
	Movements  []Movement `json:"movements"`
}

package models

import (
	"time"
)

// EntryKind is the closed set of ledger entry types. Every movement of money
// is recorded as one of these; nothing else ever appears in ledger_entries.
type EntryKind string

const (
	EntryDeposit     EntryKind = "DEPOSIT"
	EntryTransferOut EntryKind = "TRANSFER_OUT"
	EntryTransferIn  EntryKind = "TRANSFER_IN"
)

// LedgerEntry is immutable once written. Amounts are integer minor units.
type LedgerEntry struct {
	ID              string    `json:"id" db:"id"`
	Kind            EntryKind `json:"kind" db:"kind"`
	Amount          int64     `json:"amount" db:"amount"`
	SourceAccountID *string   `json:"source_account_id" db:"source_account_id"`
	DestAccountID   *string   `json:"dest_account_id" db:"dest_account_id"`
	Memo            *string   `json:"memo" db:"memo"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
}

// Account holds the materialized balance projection for one user. The balance
// is maintained eagerly alongside ledger entries, never recomputed from history.
type Account struct {
	ID        string    `json:"id" db:"id"`
	UserID    string    `json:"user_id" db:"user_id"`
	Balance   int64     `json:"balance" db:"balance"` // in minor units
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

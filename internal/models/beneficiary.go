package models

import "time"

// Beneficiary is a saved alias one user keeps for another user's account.
// Rows are never updated in place; at most one exists per (owner, target) pair.
type Beneficiary struct {
	ID            string    `json:"id" db:"id"`
	OwnerUserID   string    `json:"owner_user_id" db:"owner_user_id"`
	TargetUserID  string    `json:"target_user_id" db:"target_user_id"`
	Alias         string    `json:"alias" db:"alias"`
	Email         string    `json:"email,omitempty"`
	AccountNumber string    `json:"account_number,omitempty"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

package models

import "time"

type User struct {
	ID            string    `json:"id"`                                    // User ID
	Email         string    `json:"email" example:"user@example.com"`      // User email
	FullName      string    `json:"full_name" example:"Ash Ketchum"`       // User display name
	AccountNumber string    `json:"account_number" example:"PK-1234567890"` // Public account number
	CreatedAt     time.Time `json:"created_at"`
}

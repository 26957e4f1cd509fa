package audit

import (
	"encoding/json"
	"log"
	"time"
)

type AuditEvent struct {
	Timestamp time.Time `json:"timestamp"`
	EventType string    `json:"event_type"`
	EntryID   string    `json:"entry_id,omitempty"`
	AccountID string    `json:"account_id"`
	Amount    int64     `json:"amount"`
	Status    string    `json:"status"`
	Details   any       `json:"details"`
}

type AuditLogger struct{}

func NewAuditLogger() *AuditLogger {
	return &AuditLogger{}
}

func (a *AuditLogger) LogTransfer(sourceAccount, destAccount string, amount int64, status string) {
	event := AuditEvent{
		Timestamp: time.Now(),
		EventType: "TRANSFER",
		AccountID: sourceAccount,
		Amount:    amount,
		Status:    status,
		Details: map[string]string{
			"source_account": sourceAccount,
			"dest_account":   destAccount,
		},
	}
	a.log(event)
}

func (a *AuditLogger) LogDeposit(accountID string, requested, applied int64, status string) {
	event := AuditEvent{
		Timestamp: time.Now(),
		EventType: "DEPOSIT",
		AccountID: accountID,
		Amount:    applied,
		Status:    status,
		Details: map[string]int64{
			"requested": requested,
			"applied":   applied,
		},
	}
	a.log(event)
}

func (a *AuditLogger) LogError(accountID string, err error) {
	event := AuditEvent{
		Timestamp: time.Now(),
		EventType: "ERROR",
		AccountID: accountID,
		Status:    "FAILED",
		Details:   map[string]string{"error": err.Error()},
	}
	a.log(event)
}

func (a *AuditLogger) log(event AuditEvent) {
	data, _ := json.Marshal(event)
	log.Printf("AUDIT: %s", string(data))
}

package services

import (
	"database/sql"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/pokebank/backend/internal/config"
	"github.com/pokebank/backend/internal/models"
)

// LedgerService is the durable ledger store: account lookups, balance deltas
// and append-only entries. Every mutation runs inside a caller-provided
// transaction scope so a delta is never persisted without its entries.
type LedgerService struct {
	db  *sql.DB
	cfg *config.Config
}

// AccountInfo is an account joined with its owner's public identifiers.
type AccountInfo struct {
	models.Account
	AccountNumber string
	Email         string
}

func NewLedgerService(db *sql.DB, cfg *config.Config) *LedgerService {
	return &LedgerService{db: db, cfg: cfg}
}

// DepositResult reports both the requested and applied amounts so a clamped
// cash-in is visible to the user.
type DepositResult struct {
	RequestedAmount int64 `json:"requestedAmount"`
	AppliedAmount   int64 `json:"appliedAmount"`
	NewBalance      int64 `json:"newBalance"`
	Ceiling         int64 `json:"ceiling"`
}

// GetAccountByUserID resolves the single account owned by userID.
func (s *LedgerService) GetAccountByUserID(userID string) (*AccountInfo, error) {
	var info AccountInfo
	err := s.db.QueryRow(`
		SELECT a.id, a.user_id, a.balance, a.updated_at, u.account_number, u.email
		FROM accounts a
		JOIN users u ON u.id = a.user_id
		WHERE a.user_id = $1
		LIMIT 1`, userID).Scan(
		&info.ID, &info.UserID, &info.Balance, &info.UpdatedAt, &info.AccountNumber, &info.Email)
	if err != nil {
		return nil, err
	}
	return &info, nil
}

// GetAccountByNumber resolves an account from its owner's public account number.
func (s *LedgerService) GetAccountByNumber(accountNumber string) (*AccountInfo, error) {
	var info AccountInfo
	err := s.db.QueryRow(`
		SELECT a.id, a.user_id, a.balance, a.updated_at, u.account_number, u.email
		FROM users u
		JOIN accounts a ON a.user_id = u.id
		WHERE u.account_number = $1
		LIMIT 1`, accountNumber).Scan(
		&info.ID, &info.UserID, &info.Balance, &info.UpdatedAt, &info.AccountNumber, &info.Email)
	if err != nil {
		return nil, err
	}
	return &info, nil
}

// Deposit applies a policy-clamped cash-in to the caller's account. The clamp
// is computed against the locked balance so concurrent deposits cannot push
// past the ceiling.
func (s *LedgerService) Deposit(userID string, requestedAmount int64) (*DepositResult, error) {
	if requestedAmount <= 0 {
		return nil, ledgerErr(CodeInvalidAmount, "amount must be greater than zero")
	}

	account, err := s.GetAccountByUserID(userID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ledgerErr(CodeAccountNotFound, "account not found")
		}
		return nil, storageErr(err)
	}

	var result *DepositResult
	err = s.runInTx(func(tx *sql.Tx) error {
		locked, err := s.lockAccount(tx, account.ID)
		if err != nil {
			return storageErr(err)
		}

		applied, err := AdmitDeposit(locked.Balance, requestedAmount, s.cfg.BalanceCeiling)
		if err != nil {
			return err
		}

		newBalance, err := s.applyDelta(tx, locked.ID, applied)
		if err != nil {
			return storageErr(err)
		}

		destID := locked.ID
		entry := models.LedgerEntry{
			ID:            uuid.NewString(),
			Kind:          models.EntryDeposit,
			Amount:        applied,
			DestAccountID: &destID,
			CreatedAt:     time.Now(),
		}
		if err := s.appendEntries(tx, []models.LedgerEntry{entry}); err != nil {
			return storageErr(err)
		}

		result = &DepositResult{
			RequestedAmount: requestedAmount,
			AppliedAmount:   applied,
			NewBalance:      newBalance,
			Ceiling:         s.cfg.BalanceCeiling,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[LEDGER] Deposit applied for account %s: requested=%d applied=%d balance=%d",
		account.ID, requestedAmount, result.AppliedAmount, result.NewBalance)
	return result, nil
}

// runInTx runs fn inside a transaction that commits only when fn returns nil.
// Every other exit path, including panics, rolls back.
func (s *LedgerService) runInTx(fn func(tx *sql.Tx) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return storageErr(err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return storageErr(err)
	}
	return nil
}

// lockAccount reads an account row under FOR UPDATE within tx. Callers that
// lock more than one account must lock in ascending id order.
func (s *LedgerService) lockAccount(tx *sql.Tx, accountID string) (*models.Account, error) {
	var account models.Account
	err := tx.QueryRow(`
		SELECT id, user_id, balance, updated_at
		FROM accounts
		WHERE id = $1
		FOR UPDATE`, accountID).Scan(&account.ID, &account.UserID, &account.Balance, &account.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// applyDelta adjusts the materialized balance and returns the new value. Must
// run inside the caller's transaction scope, after the row is locked.
func (s *LedgerService) applyDelta(tx *sql.Tx, accountID string, delta int64) (int64, error) {
	var newBalance int64
	err := tx.QueryRow(`
		UPDATE accounts
		SET balance = balance + $1, updated_at = $2
		WHERE id = $3
		RETURNING balance`,
		delta, time.Now(), accountID).Scan(&newBalance)
	return newBalance, err
}

// appendEntries writes a batch of ledger entries in the same transaction scope
// as the balance deltas they describe.
func (s *LedgerService) appendEntries(tx *sql.Tx, entries []models.LedgerEntry) error {
	for _, e := range entries {
		_, err := tx.Exec(`
			INSERT INTO ledger_entries (id, kind, amount, source_account_id, dest_account_id, memo, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			e.ID, string(e.Kind), e.Amount, e.SourceAccountID, e.DestAccountID, e.Memo, e.CreatedAt)
		if err != nil {
			return err
		}
	}
	return nil
}

// feedFilter selects the entries that belong to one account's feed: the OUT
// leg for the source, the IN and DEPOSIT legs for the destination.
const feedFilter = `(kind = 'TRANSFER_OUT' AND source_account_id = $1)
		   OR (kind IN ('TRANSFER_IN', 'DEPOSIT') AND dest_account_id = $1)`

// listEntriesForAccount returns one page of an account's ledger entries,
// newest first with ids breaking timestamp ties, plus the total count.
func (s *LedgerService) listEntriesForAccount(accountID string, limit, offset int) ([]models.LedgerEntry, int, error) {
	var total int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM ledger_entries
		WHERE `+feedFilter, accountID).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := s.db.Query(`
		SELECT id, kind, amount, source_account_id, dest_account_id, memo, created_at
		FROM ledger_entries
		WHERE `+feedFilter+`
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`, accountID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	entries := []models.LedgerEntry{}
	for rows.Next() {
		var e models.LedgerEntry
		var kind string
		if err := rows.Scan(&e.ID, &kind, &e.Amount, &e.SourceAccountID, &e.DestAccountID, &e.Memo, &e.CreatedAt); err != nil {
			return nil, 0, err
		}
		e.Kind = models.EntryKind(kind)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	return entries, total, nil
}

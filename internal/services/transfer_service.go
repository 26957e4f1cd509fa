package services

import (
	"database/sql"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pokebank/backend/internal/audit"
	"github.com/pokebank/backend/internal/config"
	"github.com/pokebank/backend/internal/models"
)

// TransferService orchestrates atomic peer-to-peer transfers: debit, credit,
// the two ledger legs and the optional beneficiary save commit or roll back as
// one unit.
type TransferService struct {
	cfg       *config.Config
	ledger    *LedgerService
	audit     *audit.AuditLogger
	validator *ValidationHelper
}

type TransferRequest struct {
	DestinationAccountNumber string `json:"destinationAccountNumber" validate:"required"`
	Amount                   int64  `json:"amount"`
	Memo                     string `json:"memo" validate:"max=120"`
	SaveBeneficiary          bool   `json:"saveBeneficiary"`
	Alias                    string `json:"alias" validate:"max=60"`
}

// TransferResult reports the committed transfer using public identifiers only.
type TransferResult struct {
	SourceAccountNumber      string  `json:"sourceAccountNumber"`
	DestinationAccountNumber string  `json:"destinationAccountNumber"`
	Amount                   int64   `json:"amount"`
	Memo                     *string `json:"memo"`
	BeneficiarySaved         bool    `json:"beneficiarySaved"`
}

func NewTransferService(cfg *config.Config, ledger *LedgerService) *TransferService {
	return &TransferService{
		cfg:       cfg,
		ledger:    ledger,
		audit:     audit.NewAuditLogger(),
		validator: NewValidationHelper(),
	}
}

// Execute moves amount from the requesting user's account to the account
// behind destNumber. The source is always resolved from the authenticated
// user, never from client input.
func (ts *TransferService) Execute(userID, destNumber string, amount int64, memo string, saveBeneficiary bool, alias string) (*TransferResult, error) {
	source, err := ts.ledger.GetAccountByUserID(userID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ledgerErr(CodeAccountNotFound, "source account not found")
		}
		return nil, storageErr(err)
	}

	dest, err := ts.ledger.GetAccountByNumber(destNumber)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ledgerErr(CodeDestinationNotFound, "destination account does not exist")
		}
		return nil, storageErr(err)
	}

	if source.ID == dest.ID {
		return nil, ledgerErr(CodeSelfTransfer, "cannot transfer to your own account")
	}

	// Fast admission against the unlocked balance; the authoritative check
	// runs again once the row is locked.
	if err := AdmitTransfer(source.Balance, amount, ts.cfg.MaxTransferAmount); err != nil {
		return nil, err
	}

	var memoPtr *string
	if trimmed := strings.TrimSpace(memo); trimmed != "" {
		// Cut on rune boundaries so multi-byte memos stay valid UTF-8.
		if r := []rune(trimmed); len(r) > 120 {
			trimmed = string(r[:120])
		}
		memoPtr = &trimmed
	}

	alias = strings.TrimSpace(alias)

	beneficiarySaved := false
	err = ts.ledger.runInTx(func(tx *sql.Tx) error {
		// Lock accounts in consistent order to prevent deadlocks
		firstLock, secondLock := source.ID, dest.ID
		if source.ID > dest.ID {
			firstLock, secondLock = dest.ID, source.ID
		}

		first, err := ts.ledger.lockAccount(tx, firstLock)
		if err != nil {
			return storageErr(err)
		}
		second, err := ts.ledger.lockAccount(tx, secondLock)
		if err != nil {
			return storageErr(err)
		}

		lockedSource, lockedDest := first, second
		if firstLock != source.ID {
			lockedSource, lockedDest = second, first
		}

		if err := AdmitTransfer(lockedSource.Balance, amount, ts.cfg.MaxTransferAmount); err != nil {
			return err
		}

		if _, err := ts.ledger.applyDelta(tx, lockedSource.ID, -amount); err != nil {
			return storageErr(err)
		}
		if _, err := ts.ledger.applyDelta(tx, lockedDest.ID, amount); err != nil {
			return storageErr(err)
		}

		now := time.Now()
		sourceID, destID := lockedSource.ID, lockedDest.ID
		entries := []models.LedgerEntry{
			{
				ID:              uuid.NewString(),
				Kind:            models.EntryTransferOut,
				Amount:          amount,
				SourceAccountID: &sourceID,
				DestAccountID:   &destID,
				Memo:            memoPtr,
				CreatedAt:       now,
			},
			{
				ID:              uuid.NewString(),
				Kind:            models.EntryTransferIn,
				Amount:          amount,
				SourceAccountID: &sourceID,
				DestAccountID:   &destID,
				Memo:            memoPtr,
				CreatedAt:       now,
			},
		}
		if err := ts.ledger.appendEntries(tx, entries); err != nil {
			return storageErr(err)
		}

		if saveBeneficiary {
			// A beneficiary save rides in the same atomic scope: a missing
			// alias rolls back the money movement too.
			if alias == "" {
				return ledgerErr(CodeMissingAlias, "alias is required to save as beneficiary")
			}

			var existingID string
			err := tx.QueryRow(`
				SELECT id FROM beneficiaries
				WHERE owner_user_id = $1 AND target_user_id = $2
				LIMIT 1`, userID, dest.UserID).Scan(&existingID)
			switch err {
			case nil:
				// Already saved; never overwrite the stored alias.
			case sql.ErrNoRows:
				_, err := tx.Exec(`
					INSERT INTO beneficiaries (id, owner_user_id, target_user_id, alias, created_at)
					VALUES ($1, $2, $3, $4, $5)`,
					uuid.NewString(), userID, dest.UserID, alias, now)
				if err != nil {
					return storageErr(err)
				}
				beneficiarySaved = true
			default:
				return storageErr(err)
			}
		}

		return nil
	})
	if err != nil {
		ts.audit.LogError(source.ID, err)
		return nil, err
	}

	ts.audit.LogTransfer(source.ID, dest.ID, amount, "SUCCESS")
	log.Printf("[TRANSFER] %s -> %s amount=%d beneficiarySaved=%t",
		source.AccountNumber, dest.AccountNumber, amount, beneficiarySaved)

	return &TransferResult{
		SourceAccountNumber:      source.AccountNumber,
		DestinationAccountNumber: dest.AccountNumber,
		Amount:                   amount,
		Memo:                     memoPtr,
		BeneficiarySaved:         beneficiarySaved,
	}, nil
}

// CreateTransfer handles the transfer endpoint
// @Summary Transfer money to another account
// @Description Execute an atomic transfer to the account behind a public account number
// @Tags transfers
// @Accept json
// @Produce json
// @Param transfer body TransferRequest true "Transfer details"
// @Success 201 {object} TransferResult
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /transfers [post]
func (ts *TransferService) CreateTransfer(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req TransferRequest
	if err := dec.Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := ts.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	result, err := ts.Execute(userID, strings.TrimSpace(req.DestinationAccountNumber),
		req.Amount, req.Memo, req.SaveBeneficiary, req.Alias)
	if err != nil {
		log.Printf("[TRANSFER] Transfer failed for user %s: %v", userID, err)
		SendLedgerError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(result)
}

package services

import (
	"database/sql"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/pokebank/backend/internal/audit"
	"github.com/pokebank/backend/internal/config"
)

// AccountService exposes the account-facing endpoints: profile, balance,
// cash-in and the movement feed.
type AccountService struct {
	db        *sql.DB
	cfg       *config.Config
	ledger    *LedgerService
	movements *MovementService
	audit     *audit.AuditLogger
}

// DepositRequest carries the cash-in amount; the engine classifies zero and
// negative values, so there is nothing to validate up front.
type DepositRequest struct {
	Amount int64 `json:"amount"`
}

func NewAccountService(db *sql.DB, cfg *config.Config, ledger *LedgerService, movements *MovementService) *AccountService {
	return &AccountService{
		db:        db,
		cfg:       cfg,
		ledger:    ledger,
		movements: movements,
		audit:     audit.NewAuditLogger(),
	}
}

// GetMe returns the caller's profile and account
// @Summary Get current user and account
// @Tags account
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} ErrorResponse
// @Router /account/me [get]
func (as *AccountService) GetMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	account, err := as.ledger.GetAccountByUserID(userID)
	if err != nil {
		if err == sql.ErrNoRows {
			SendLedgerError(w, ledgerErr(CodeAccountNotFound, "account not found"))
			return
		}
		SendLedgerError(w, storageErr(err))
		return
	}

	var fullName string
	if err := as.db.QueryRow(`SELECT full_name FROM users WHERE id = $1`, userID).Scan(&fullName); err != nil {
		SendLedgerError(w, storageErr(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"user": map[string]any{
			"id":             account.UserID,
			"email":          account.Email,
			"account_number": account.AccountNumber,
			"full_name":      fullName,
		},
		"account": map[string]any{
			"id":      account.ID,
			"balance": account.Balance,
		},
	})
}

// GetBalance returns the caller's current balance
// @Summary Get account balance
// @Tags account
// @Produce json
// @Success 200 {object} map[string]int64
// @Failure 404 {object} ErrorResponse
// @Router /account/balance [get]
func (as *AccountService) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	account, err := as.ledger.GetAccountByUserID(userID)
	if err != nil {
		if err == sql.ErrNoRows {
			SendLedgerError(w, ledgerErr(CodeAccountNotFound, "account not found"))
			return
		}
		SendLedgerError(w, storageErr(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]int64{"balance": account.Balance})
}

// Deposit applies a cash-in to the caller's account
// @Summary Add money to the account
// @Description Cash-in is clamped so the balance never exceeds the ceiling
// @Tags account
// @Accept json
// @Produce json
// @Param deposit body DepositRequest true "Deposit amount in minor units"
// @Success 200 {object} DepositResult
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /account/deposit [post]
func (as *AccountService) Deposit(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req DepositRequest
	if err := dec.Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	result, err := as.ledger.Deposit(userID, req.Amount)
	if err != nil {
		log.Printf("[ACCOUNT] Deposit failed for user %s: %v", userID, err)
		as.audit.LogError(userID, err)
		SendLedgerError(w, err)
		return
	}

	as.audit.LogDeposit(userID, result.RequestedAmount, result.AppliedAmount, "SUCCESS")

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// ListMovements returns a page of the caller's movement feed
// @Summary List account movements
// @Tags account
// @Produce json
// @Param page query int false "Page number (default: 1)"
// @Param limit query int false "Page size (default: 10, max: 50)"
// @Success 200 {object} models.MovementPage
// @Failure 404 {object} ErrorResponse
// @Router /account/movements [get]
func (as *AccountService) ListMovements(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	page := 1
	if v := r.URL.Query().Get("page"); v != "" {
		if p, err := strconv.Atoi(v); err == nil && p > 1 {
			page = p
		}
	}

	limit := as.cfg.DefaultPageSize
	if v := r.URL.Query().Get("limit"); v != "" {
		if l, err := strconv.Atoi(v); err == nil {
			limit = l
		}
	}
	if limit < 1 {
		limit = 1
	}
	if limit > as.cfg.MaxPageSize {
		limit = as.cfg.MaxPageSize
	}

	account, err := as.ledger.GetAccountByUserID(userID)
	if err != nil {
		if err == sql.ErrNoRows {
			SendLedgerError(w, ledgerErr(CodeAccountNotFound, "account not found"))
			return
		}
		SendLedgerError(w, storageErr(err))
		return
	}

	feed, err := as.movements.BuildPage(account, page, limit)
	if err != nil {
		log.Printf("[ACCOUNT] Failed to build movement feed for user %s: %v", userID, err)
		SendLedgerError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(feed)
}

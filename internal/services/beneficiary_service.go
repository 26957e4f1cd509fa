package services

import (
	"database/sql"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/pokebank/backend/internal/models"
)

// BeneficiaryService manages saved transfer aliases. Rows are created and
// deleted, never updated in place.
type BeneficiaryService struct {
	db        *sql.DB
	validator *ValidationHelper
}

type CreateBeneficiaryRequest struct {
	Alias         string `json:"alias" validate:"required,max=60"`
	AccountNumber string `json:"accountNumber" validate:"required"`
}

func NewBeneficiaryService(db *sql.DB) *BeneficiaryService {
	return &BeneficiaryService{
		db:        db,
		validator: NewValidationHelper(),
	}
}

// List returns the caller's beneficiaries, newest first
// @Summary List beneficiaries
// @Tags beneficiaries
// @Produce json
// @Success 200 {object} map[string][]models.Beneficiary
// @Router /beneficiaries [get]
func (bs *BeneficiaryService) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	rows, err := bs.db.Query(`
		SELECT b.id, b.alias, u.email, u.account_number, b.created_at
		FROM beneficiaries b
		JOIN users u ON u.id = b.target_user_id
		WHERE b.owner_user_id = $1
		ORDER BY b.created_at DESC`, userID)
	if err != nil {
		SendLedgerError(w, storageErr(err))
		return
	}
	defer rows.Close()

	beneficiaries := []models.Beneficiary{}
	for rows.Next() {
		var b models.Beneficiary
		if err := rows.Scan(&b.ID, &b.Alias, &b.Email, &b.AccountNumber, &b.CreatedAt); err != nil {
			SendLedgerError(w, storageErr(err))
			return
		}
		beneficiaries = append(beneficiaries, b)
	}
	if err := rows.Err(); err != nil {
		SendLedgerError(w, storageErr(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string][]models.Beneficiary{"beneficiaries": beneficiaries})
}

// Create saves a beneficiary alias for another user's account
// @Summary Create a beneficiary
// @Tags beneficiaries
// @Accept json
// @Produce json
// @Param beneficiary body CreateBeneficiaryRequest true "Alias and target account number"
// @Success 200 {object} models.Beneficiary
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /beneficiaries [post]
func (bs *BeneficiaryService) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req CreateBeneficiaryRequest
	if err := dec.Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := bs.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	alias := strings.TrimSpace(req.Alias)
	accountNumber := strings.TrimSpace(req.AccountNumber)
	if alias == "" {
		SendLedgerError(w, ledgerErr(CodeMissingAlias, "alias is required"))
		return
	}

	var target models.User
	err := bs.db.QueryRow(`
		SELECT id, email, account_number
		FROM users
		WHERE account_number = $1
		LIMIT 1`, accountNumber).Scan(&target.ID, &target.Email, &target.AccountNumber)
	if err != nil {
		if err == sql.ErrNoRows {
			SendLedgerError(w, ledgerErr(CodeDestinationNotFound, "destination account does not exist"))
			return
		}
		SendLedgerError(w, storageErr(err))
		return
	}

	if target.ID == userID {
		SendErrorResponse(w, "Cannot save yourself as a beneficiary", http.StatusBadRequest, nil)
		return
	}

	// Idempotent on the (owner, target) pair: an existing row wins and its
	// alias is never overwritten.
	var existing models.Beneficiary
	err = bs.db.QueryRow(`
		SELECT id, alias FROM beneficiaries
		WHERE owner_user_id = $1 AND target_user_id = $2
		LIMIT 1`, userID, target.ID).Scan(&existing.ID, &existing.Alias)
	if err == nil {
		existing.Email = target.Email
		existing.AccountNumber = target.AccountNumber
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(existing)
		return
	}
	if err != sql.ErrNoRows {
		SendLedgerError(w, storageErr(err))
		return
	}

	b := models.Beneficiary{
		ID:            uuid.NewString(),
		OwnerUserID:   userID,
		TargetUserID:  target.ID,
		Alias:         alias,
		Email:         target.Email,
		AccountNumber: target.AccountNumber,
		CreatedAt:     time.Now(),
	}
	_, err = bs.db.Exec(`
		INSERT INTO beneficiaries (id, owner_user_id, target_user_id, alias, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		b.ID, b.OwnerUserID, b.TargetUserID, b.Alias, b.CreatedAt)
	if err != nil {
		SendLedgerError(w, storageErr(err))
		return
	}

	log.Printf("[BENEFICIARY] User %s saved beneficiary %s (%s)", userID, alias, target.AccountNumber)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(b)
}

// Delete removes one of the caller's beneficiaries
// @Summary Delete a beneficiary
// @Tags beneficiaries
// @Produce json
// @Param id path string true "Beneficiary ID"
// @Success 200 {object} map[string]string
// @Failure 404 {object} ErrorResponse
// @Router /beneficiaries/{id} [delete]
func (bs *BeneficiaryService) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		SendErrorResponse(w, "Missing beneficiary id", http.StatusBadRequest, nil)
		return
	}

	result, err := bs.db.Exec(`
		DELETE FROM beneficiaries
		WHERE id = $1 AND owner_user_id = $2`, id, userID)
	if err != nil {
		SendLedgerError(w, storageErr(err))
		return
	}

	affected, err := result.RowsAffected()
	if err != nil {
		SendLedgerError(w, storageErr(err))
		return
	}
	if affected == 0 {
		SendErrorResponse(w, "Beneficiary not found", http.StatusNotFound, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"id": id})
}

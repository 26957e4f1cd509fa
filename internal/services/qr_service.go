package services

import (
	"database/sql"
	"log"
	"net/http"

	qrcode "github.com/skip2/go-qrcode"
)

// QRService renders a scannable receive code for the caller's account number,
// so another user can point a transfer at it without typing.
type QRService struct {
	ledger *LedgerService
}

func NewQRService(ledger *LedgerService) *QRService {
	return &QRService{ledger: ledger}
}

// ReceiveCode returns a PNG QR of the caller's account number
// @Summary Get a receive QR code
// @Tags account
// @Produce png
// @Success 200 {file} binary
// @Failure 404 {object} ErrorResponse
// @Router /account/receive-code [get]
func (qs *QRService) ReceiveCode(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	account, err := qs.ledger.GetAccountByUserID(userID)
	if err != nil {
		if err == sql.ErrNoRows {
			SendLedgerError(w, ledgerErr(CodeAccountNotFound, "account not found"))
			return
		}
		SendLedgerError(w, storageErr(err))
		return
	}

	png, err := qrcode.Encode(account.AccountNumber, qrcode.Medium, 256)
	if err != nil {
		log.Printf("[ACCOUNT] Failed to encode receive code for user %s: %v", userID, err)
		SendErrorResponse(w, "Failed to generate receive code", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(png)
}

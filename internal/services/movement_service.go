package services

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/pokebank/backend/internal/models"
)

// MovementService reconstructs the human-facing movement feed from the ledger:
// signed amounts, resolved counterparties and display memos, paginated.
type MovementService struct {
	db     *sql.DB
	ledger *LedgerService
}

func NewMovementService(db *sql.DB, ledger *LedgerService) *MovementService {
	return &MovementService{db: db, ledger: ledger}
}

// BuildPage builds one page of the feed for account, resolving counterparties
// against ownerUserID's saved beneficiaries. page and limit must already be
// normalized by the caller. Out-of-range pages yield an empty list, not an
// error.
func (ms *MovementService) BuildPage(account *AccountInfo, page, limit int) (*models.MovementPage, error) {
	offset := (page - 1) * limit

	entries, total, err := ms.ledger.listEntriesForAccount(account.ID, limit, offset)
	if err != nil {
		return nil, storageErr(err)
	}

	totalPages := (total + limit - 1) / limit
	if totalPages < 1 {
		totalPages = 1
	}

	cashAlias := "Cash"
	resolved := map[string]models.Counterparty{}

	movements := []models.Movement{}
	for _, e := range entries {
		m := models.Movement{
			ID:        e.ID,
			Kind:      e.Kind,
			Amount:    e.Amount,
			Memo:      displayMemo(e),
			CreatedAt: e.CreatedAt,
		}

		var counterpartyAccountID *string
		switch e.Kind {
		case models.EntryDeposit:
			m.Direction = "IN"
			m.SignedAmount = e.Amount
			m.Counterparty = models.Counterparty{Alias: &cashAlias}
		case models.EntryTransferIn:
			m.Direction = "IN"
			m.SignedAmount = e.Amount
			counterpartyAccountID = e.SourceAccountID
		case models.EntryTransferOut:
			m.Direction = "OUT"
			m.SignedAmount = -e.Amount
			counterpartyAccountID = e.DestAccountID
		default:
			return nil, storageErr(fmt.Errorf("unknown ledger entry kind %q", e.Kind))
		}

		if counterpartyAccountID != nil {
			cp, ok := resolved[*counterpartyAccountID]
			if !ok {
				cp, err = ms.resolveCounterparty(*counterpartyAccountID, account.UserID)
				if err != nil {
					return nil, storageErr(err)
				}
				resolved[*counterpartyAccountID] = cp
			}
			m.Counterparty = cp
		}

		movements = append(movements, m)
	}

	return &models.MovementPage{
		Page:       page,
		Limit:      limit,
		Total:      total,
		TotalPages: totalPages,
		Movements:  movements,
	}, nil
}

// resolveCounterparty joins the account on the other side of an entry with its
// owner's public identifiers and, if the viewer saved one, a beneficiary alias.
func (ms *MovementService) resolveCounterparty(accountID, viewerUserID string) (models.Counterparty, error) {
	var cp models.Counterparty
	err := ms.db.QueryRow(`
		SELECT u.email, u.account_number, b.alias
		FROM accounts a
		JOIN users u ON u.id = a.user_id
		LEFT JOIN beneficiaries b ON b.owner_user_id = $2 AND b.target_user_id = u.id
		WHERE a.id = $1
		LIMIT 1`, accountID, viewerUserID).Scan(&cp.Email, &cp.AccountNumber, &cp.Alias)
	if err == sql.ErrNoRows {
		// Counterparty account no longer resolvable; leave every field null.
		return models.Counterparty{}, nil
	}
	if err != nil {
		return models.Counterparty{}, err
	}
	return cp, nil
}

// displayMemo returns the stored memo when present, else a fixed default per
// entry kind.
func displayMemo(e models.LedgerEntry) string {
	if e.Memo != nil {
		if memo := strings.TrimSpace(*e.Memo); memo != "" {
			return memo
		}
	}
	switch e.Kind {
	case models.EntryDeposit:
		return "Deposit"
	case models.EntryTransferOut:
		return "Transfer sent"
	case models.EntryTransferIn:
		return "Transfer received"
	default:
		return "Movement"
	}
}

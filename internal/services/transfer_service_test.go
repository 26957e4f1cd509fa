package services

import (
	"database/sql/driver"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
)

const (
	sourceInfoQuery = "SELECT a.id, a.user_id, a.balance, a.updated_at, u.account_number, u.email FROM accounts a JOIN users u"
	destInfoQuery   = "SELECT a.id, a.user_id, a.balance, a.updated_at, u.account_number, u.email FROM users u JOIN accounts a"
	lockQuery       = "SELECT id, user_id, balance, updated_at FROM accounts WHERE id = \\$1 FOR UPDATE"
	deltaQuery      = "UPDATE accounts SET balance = balance \\+ \\$1, updated_at = \\$2 WHERE id = \\$3 RETURNING balance"
	entryInsert     = "INSERT INTO ledger_entries"
)

func newTransferFixture(t *testing.T) (*TransferService, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)

	ledger := NewLedgerService(db, testConfig())
	service := NewTransferService(testConfig(), ledger)
	return service, mock, func() { db.Close() }
}

func TestTransferService_Execute(t *testing.T) {
	t.Run("successful transfer", func(t *testing.T) {
		service, mock, done := newTransferFixture(t)
		defer done()

		mock.ExpectQuery(sourceInfoQuery).
			WithArgs("user-1").
			WillReturnRows(accountInfoRows("acc-1", "user-1", 10000, "PK-1111111111", "ash@example.com"))

		mock.ExpectQuery(destInfoQuery).
			WithArgs("PK-2222222222").
			WillReturnRows(accountInfoRows("acc-2", "user-2", 500, "PK-2222222222", "misty@example.com"))

		mock.ExpectBegin()

		// acc-1 < acc-2, so the source is locked first
		mock.ExpectQuery(lockQuery).
			WithArgs("acc-1").
			WillReturnRows(lockedAccountRows("acc-1", "user-1", 10000))
		mock.ExpectQuery(lockQuery).
			WithArgs("acc-2").
			WillReturnRows(lockedAccountRows("acc-2", "user-2", 500))

		mock.ExpectQuery(deltaQuery).
			WithArgs(int64(-3000), sqlmock.AnyArg(), "acc-1").
			WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(7000))
		mock.ExpectQuery(deltaQuery).
			WithArgs(int64(3000), sqlmock.AnyArg(), "acc-2").
			WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(3500))

		mock.ExpectExec(entryInsert).
			WithArgs(sqlmock.AnyArg(), "TRANSFER_OUT", int64(3000), "acc-1", "acc-2", "lunch", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec(entryInsert).
			WithArgs(sqlmock.AnyArg(), "TRANSFER_IN", int64(3000), "acc-1", "acc-2", "lunch", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))

		mock.ExpectCommit()

		result, err := service.Execute("user-1", "PK-2222222222", 3000, "lunch", false, "")
		assert.NoError(t, err)
		assert.Equal(t, "PK-1111111111", result.SourceAccountNumber)
		assert.Equal(t, "PK-2222222222", result.DestinationAccountNumber)
		assert.Equal(t, int64(3000), result.Amount)
		assert.Equal(t, "lunch", *result.Memo)
		assert.False(t, result.BeneficiarySaved)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("locks in ascending id order when destination id is lower", func(t *testing.T) {
		service, mock, done := newTransferFixture(t)
		defer done()

		mock.ExpectQuery(sourceInfoQuery).
			WithArgs("user-2").
			WillReturnRows(accountInfoRows("acc-2", "user-2", 10000, "PK-2222222222", "misty@example.com"))

		mock.ExpectQuery(destInfoQuery).
			WithArgs("PK-1111111111").
			WillReturnRows(accountInfoRows("acc-1", "user-1", 500, "PK-1111111111", "ash@example.com"))

		mock.ExpectBegin()

		// Destination acc-1 sorts first even though it is being credited
		mock.ExpectQuery(lockQuery).
			WithArgs("acc-1").
			WillReturnRows(lockedAccountRows("acc-1", "user-1", 500))
		mock.ExpectQuery(lockQuery).
			WithArgs("acc-2").
			WillReturnRows(lockedAccountRows("acc-2", "user-2", 10000))

		mock.ExpectQuery(deltaQuery).
			WithArgs(int64(-100), sqlmock.AnyArg(), "acc-2").
			WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(9900))
		mock.ExpectQuery(deltaQuery).
			WithArgs(int64(100), sqlmock.AnyArg(), "acc-1").
			WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(600))

		mock.ExpectExec(entryInsert).
			WithArgs(sqlmock.AnyArg(), "TRANSFER_OUT", int64(100), "acc-2", "acc-1", nil, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec(entryInsert).
			WithArgs(sqlmock.AnyArg(), "TRANSFER_IN", int64(100), "acc-2", "acc-1", nil, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))

		mock.ExpectCommit()

		_, err := service.Execute("user-2", "PK-1111111111", 100, "", false, "")
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("multi-byte memo is truncated on rune boundaries", func(t *testing.T) {
		service, mock, done := newTransferFixture(t)
		defer done()

		memo := "a" + strings.Repeat("é", 130)
		wantMemo := "a" + strings.Repeat("é", 119)

		mock.ExpectQuery(sourceInfoQuery).
			WithArgs("user-1").
			WillReturnRows(accountInfoRows("acc-1", "user-1", 10000, "PK-1111111111", "ash@example.com"))

		mock.ExpectQuery(destInfoQuery).
			WithArgs("PK-2222222222").
			WillReturnRows(accountInfoRows("acc-2", "user-2", 500, "PK-2222222222", "misty@example.com"))

		mock.ExpectBegin()
		mock.ExpectQuery(lockQuery).
			WithArgs("acc-1").
			WillReturnRows(lockedAccountRows("acc-1", "user-1", 10000))
		mock.ExpectQuery(lockQuery).
			WithArgs("acc-2").
			WillReturnRows(lockedAccountRows("acc-2", "user-2", 500))
		mock.ExpectQuery(deltaQuery).
			WithArgs(int64(-100), sqlmock.AnyArg(), "acc-1").
			WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(9900))
		mock.ExpectQuery(deltaQuery).
			WithArgs(int64(100), sqlmock.AnyArg(), "acc-2").
			WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(600))

		mock.ExpectExec(entryInsert).
			WithArgs(sqlmock.AnyArg(), "TRANSFER_OUT", int64(100), "acc-1", "acc-2", wantMemo, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec(entryInsert).
			WithArgs(sqlmock.AnyArg(), "TRANSFER_IN", int64(100), "acc-1", "acc-2", wantMemo, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		result, err := service.Execute("user-1", "PK-2222222222", 100, memo, false, "")
		assert.NoError(t, err)
		assert.Equal(t, wantMemo, *result.Memo)
		assert.True(t, utf8.ValidString(*result.Memo))
		assert.Equal(t, 120, utf8.RuneCountInString(*result.Memo))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("insufficient funds found under lock rolls back", func(t *testing.T) {
		service, mock, done := newTransferFixture(t)
		defer done()

		// The unlocked read shows enough balance; a concurrent transfer
		// drained it before the lock was acquired.
		mock.ExpectQuery(sourceInfoQuery).
			WithArgs("user-1").
			WillReturnRows(accountInfoRows("acc-1", "user-1", 5000, "PK-1111111111", "ash@example.com"))

		mock.ExpectQuery(destInfoQuery).
			WithArgs("PK-2222222222").
			WillReturnRows(accountInfoRows("acc-2", "user-2", 0, "PK-2222222222", "misty@example.com"))

		mock.ExpectBegin()

		mock.ExpectQuery(lockQuery).
			WithArgs("acc-1").
			WillReturnRows(lockedAccountRows("acc-1", "user-1", 1000))
		mock.ExpectQuery(lockQuery).
			WithArgs("acc-2").
			WillReturnRows(lockedAccountRows("acc-2", "user-2", 0))

		mock.ExpectRollback()

		_, err := service.Execute("user-1", "PK-2222222222", 5000, "", false, "")
		assert.Error(t, err)
		assert.Equal(t, CodeInsufficientFunds, CodeOf(err))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("insufficient funds rejected before opening a transaction", func(t *testing.T) {
		service, mock, done := newTransferFixture(t)
		defer done()

		mock.ExpectQuery(sourceInfoQuery).
			WithArgs("user-1").
			WillReturnRows(accountInfoRows("acc-1", "user-1", 100, "PK-1111111111", "ash@example.com"))

		mock.ExpectQuery(destInfoQuery).
			WithArgs("PK-2222222222").
			WillReturnRows(accountInfoRows("acc-2", "user-2", 0, "PK-2222222222", "misty@example.com"))

		_, err := service.Execute("user-1", "PK-2222222222", 5000, "", false, "")
		assert.Error(t, err)
		assert.Equal(t, CodeInsufficientFunds, CodeOf(err))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("self transfer rejected", func(t *testing.T) {
		service, mock, done := newTransferFixture(t)
		defer done()

		mock.ExpectQuery(sourceInfoQuery).
			WithArgs("user-1").
			WillReturnRows(accountInfoRows("acc-1", "user-1", 5000, "PK-1111111111", "ash@example.com"))

		mock.ExpectQuery(destInfoQuery).
			WithArgs("PK-1111111111").
			WillReturnRows(accountInfoRows("acc-1", "user-1", 5000, "PK-1111111111", "ash@example.com"))

		_, err := service.Execute("user-1", "PK-1111111111", 1, "", false, "")
		assert.Error(t, err)
		assert.Equal(t, CodeSelfTransfer, CodeOf(err))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("amount above the per-transfer cap", func(t *testing.T) {
		service, mock, done := newTransferFixture(t)
		defer done()

		mock.ExpectQuery(sourceInfoQuery).
			WithArgs("user-1").
			WillReturnRows(accountInfoRows("acc-1", "user-1", 100000, "PK-1111111111", "ash@example.com"))

		mock.ExpectQuery(destInfoQuery).
			WithArgs("PK-2222222222").
			WillReturnRows(accountInfoRows("acc-2", "user-2", 0, "PK-2222222222", "misty@example.com"))

		_, err := service.Execute("user-1", "PK-2222222222", 50001, "", false, "")
		assert.Error(t, err)
		assert.Equal(t, CodeLimitExceeded, CodeOf(err))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("destination not found", func(t *testing.T) {
		service, mock, done := newTransferFixture(t)
		defer done()

		mock.ExpectQuery(sourceInfoQuery).
			WithArgs("user-1").
			WillReturnRows(accountInfoRows("acc-1", "user-1", 5000, "PK-1111111111", "ash@example.com"))

		mock.ExpectQuery(destInfoQuery).
			WithArgs("PK-9999999999").
			WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "balance", "updated_at", "account_number", "email"}))

		_, err := service.Execute("user-1", "PK-9999999999", 100, "", false, "")
		assert.Error(t, err)
		assert.Equal(t, CodeDestinationNotFound, CodeOf(err))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestTransferService_Execute_Beneficiary(t *testing.T) {
	expectMoneyMovement := func(mock sqlmock.Sqlmock, amount int64) {
		mock.ExpectQuery(sourceInfoQuery).
			WithArgs("user-1").
			WillReturnRows(accountInfoRows("acc-1", "user-1", 10000, "PK-1111111111", "ash@example.com"))
		mock.ExpectQuery(destInfoQuery).
			WithArgs("PK-2222222222").
			WillReturnRows(accountInfoRows("acc-2", "user-2", 500, "PK-2222222222", "misty@example.com"))
		mock.ExpectBegin()
		mock.ExpectQuery(lockQuery).
			WithArgs("acc-1").
			WillReturnRows(lockedAccountRows("acc-1", "user-1", 10000))
		mock.ExpectQuery(lockQuery).
			WithArgs("acc-2").
			WillReturnRows(lockedAccountRows("acc-2", "user-2", 500))
		mock.ExpectQuery(deltaQuery).
			WithArgs(-amount, sqlmock.AnyArg(), "acc-1").
			WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(10000 - amount))
		mock.ExpectQuery(deltaQuery).
			WithArgs(amount, sqlmock.AnyArg(), "acc-2").
			WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(500 + amount))
		mock.ExpectExec(entryInsert).
			WithArgs(sqlmock.AnyArg(), "TRANSFER_OUT", amount, "acc-1", "acc-2", nil, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec(entryInsert).
			WithArgs(sqlmock.AnyArg(), "TRANSFER_IN", amount, "acc-1", "acc-2", nil, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))
	}

	t.Run("saves a new beneficiary in the same transaction", func(t *testing.T) {
		service, mock, done := newTransferFixture(t)
		defer done()

		expectMoneyMovement(mock, 1000)

		mock.ExpectQuery("SELECT id FROM beneficiaries WHERE owner_user_id = \\$1 AND target_user_id = \\$2").
			WithArgs("user-1", "user-2").
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		mock.ExpectExec("INSERT INTO beneficiaries").
			WithArgs(sqlmock.AnyArg(), "user-1", "user-2", "Misty", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))

		mock.ExpectCommit()

		result, err := service.Execute("user-1", "PK-2222222222", 1000, "", true, "Misty")
		assert.NoError(t, err)
		assert.True(t, result.BeneficiarySaved)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("existing beneficiary is kept, not overwritten", func(t *testing.T) {
		service, mock, done := newTransferFixture(t)
		defer done()

		expectMoneyMovement(mock, 1000)

		mock.ExpectQuery("SELECT id FROM beneficiaries WHERE owner_user_id = \\$1 AND target_user_id = \\$2").
			WithArgs("user-1", "user-2").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("ben-1"))

		mock.ExpectCommit()

		result, err := service.Execute("user-1", "PK-2222222222", 1000, "", true, "Misty Again")
		assert.NoError(t, err)
		assert.False(t, result.BeneficiarySaved)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing alias rolls back the whole transfer", func(t *testing.T) {
		service, mock, done := newTransferFixture(t)
		defer done()

		expectMoneyMovement(mock, 1000)

		// No beneficiary queries: the alias check fails first and the
		// debit, credit and both entries are rolled back with it.
		mock.ExpectRollback()

		_, err := service.Execute("user-1", "PK-2222222222", 1000, "", true, "   ")
		assert.Error(t, err)
		assert.Equal(t, CodeMissingAlias, CodeOf(err))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestTransferService_entriesShareTimestamp(t *testing.T) {
	service, mock, done := newTransferFixture(t)
	defer done()

	mock.ExpectQuery(sourceInfoQuery).
		WithArgs("user-1").
		WillReturnRows(accountInfoRows("acc-1", "user-1", 10000, "PK-1111111111", "ash@example.com"))
	mock.ExpectQuery(destInfoQuery).
		WithArgs("PK-2222222222").
		WillReturnRows(accountInfoRows("acc-2", "user-2", 500, "PK-2222222222", "misty@example.com"))
	mock.ExpectBegin()
	mock.ExpectQuery(lockQuery).
		WithArgs("acc-1").
		WillReturnRows(lockedAccountRows("acc-1", "user-1", 10000))
	mock.ExpectQuery(lockQuery).
		WithArgs("acc-2").
		WillReturnRows(lockedAccountRows("acc-2", "user-2", 500))
	mock.ExpectQuery(deltaQuery).
		WithArgs(int64(-100), sqlmock.AnyArg(), "acc-1").
		WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(9900))
	mock.ExpectQuery(deltaQuery).
		WithArgs(int64(100), sqlmock.AnyArg(), "acc-2").
		WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(600))

	var outAt, inAt time.Time
	mock.ExpectExec(entryInsert).
		WithArgs(sqlmock.AnyArg(), "TRANSFER_OUT", int64(100), "acc-1", "acc-2", nil, newTimestampCapture(&outAt)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(entryInsert).
		WithArgs(sqlmock.AnyArg(), "TRANSFER_IN", int64(100), "acc-1", "acc-2", nil, newTimestampCapture(&inAt)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	_, err := service.Execute("user-1", "PK-2222222222", 100, "", false, "")
	assert.NoError(t, err)
	assert.Equal(t, outAt, inAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransferService_CreateTransfer_ZeroAmount(t *testing.T) {
	service, mock, done := newTransferFixture(t)
	defer done()

	mock.ExpectQuery(sourceInfoQuery).
		WithArgs("user-1").
		WillReturnRows(accountInfoRows("acc-1", "user-1", 10000, "PK-1111111111", "ash@example.com"))

	mock.ExpectQuery(destInfoQuery).
		WithArgs("PK-2222222222").
		WillReturnRows(accountInfoRows("acc-2", "user-2", 500, "PK-2222222222", "misty@example.com"))

	rec := httptest.NewRecorder()
	service.CreateTransfer(rec, authedRequest(http.MethodPost, "/api/v1/transfers",
		`{"destinationAccountNumber": "PK-2222222222", "amount": 0}`))

	// The engine classifies the zero amount; no generic validation envelope.
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "INVALID_AMOUNT")
	assert.NoError(t, mock.ExpectationsWereMet())
}

// timeArg matches any time.Time argument and records it.
type timeArg struct {
	dst *time.Time
}

func (a *timeArg) Match(v driver.Value) bool {
	ts, ok := v.(time.Time)
	if !ok {
		return false
	}
	*a.dst = ts
	return true
}

func newTimestampCapture(dst *time.Time) *timeArg { return &timeArg{dst: dst} }

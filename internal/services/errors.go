package services

import (
	"errors"
	"net/http"
)

// ErrorCode tags every failure the ledger engine can report. Callers branch on
// the code, never on message text.
type ErrorCode string

const (
	CodeInvalidAmount       ErrorCode = "INVALID_AMOUNT"
	CodeCeilingReached      ErrorCode = "CEILING_REACHED"
	CodeLimitExceeded       ErrorCode = "LIMIT_EXCEEDED"
	CodeInsufficientFunds   ErrorCode = "INSUFFICIENT_FUNDS"
	CodeSelfTransfer        ErrorCode = "SELF_TRANSFER"
	CodeAccountNotFound     ErrorCode = "ACCOUNT_NOT_FOUND"
	CodeDestinationNotFound ErrorCode = "DESTINATION_NOT_FOUND"
	CodeMissingAlias        ErrorCode = "MISSING_ALIAS"
	CodeStorageFailure      ErrorCode = "STORAGE_FAILURE"
)

// LedgerError is the structured error surfaced by the account engine.
type LedgerError struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *LedgerError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *LedgerError) Unwrap() error { return e.Err }

func ledgerErr(code ErrorCode, message string) *LedgerError {
	return &LedgerError{Code: code, Message: message}
}

// storageErr wraps an infrastructure fault (begin/commit/query failure). The
// scope that produced it has already been rolled back.
func storageErr(err error) *LedgerError {
	return &LedgerError{Code: CodeStorageFailure, Message: "storage failure", Err: err}
}

// CodeOf extracts the taxonomy code from err, or CodeStorageFailure when err
// is not a LedgerError.
func CodeOf(err error) ErrorCode {
	var le *LedgerError
	if errors.As(err, &le) {
		return le.Code
	}
	return CodeStorageFailure
}

// httpStatus maps taxonomy codes onto transport status codes.
func httpStatus(code ErrorCode) int {
	switch code {
	case CodeInvalidAmount, CodeCeilingReached, CodeLimitExceeded,
		CodeInsufficientFunds, CodeSelfTransfer, CodeMissingAlias:
		return http.StatusBadRequest
	case CodeAccountNotFound, CodeDestinationNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

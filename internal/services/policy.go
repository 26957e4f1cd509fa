package services

// Balance policy: pure rules, no I/O. The store never clamps on its own, so
// every mutation must pass through here first.

// AdmitDeposit decides how much of a requested cash-in may be applied given
// the account ceiling. Requests above the remaining room are clamped, not
// rejected; only a full account rejects the deposit outright.
func AdmitDeposit(currentBalance, requestedAmount, ceiling int64) (int64, error) {
	if requestedAmount <= 0 {
		return 0, ledgerErr(CodeInvalidAmount, "amount must be greater than zero")
	}

	room := ceiling - currentBalance
	if room < 0 {
		room = 0
	}
	if room == 0 {
		return 0, ledgerErr(CodeCeilingReached, "balance ceiling already reached")
	}

	if requestedAmount < room {
		return requestedAmount, nil
	}
	return room, nil
}

// AdmitTransfer decides whether a transfer of amount may leave an account with
// sourceBalance. Transfers are all-or-nothing; there is no clamping here.
func AdmitTransfer(sourceBalance, amount, perTransferCap int64) error {
	if amount <= 0 {
		return ledgerErr(CodeInvalidAmount, "amount must be greater than zero")
	}
	if amount > perTransferCap {
		return ledgerErr(CodeLimitExceeded, "amount exceeds the per-transfer limit")
	}
	if sourceBalance < amount {
		return ledgerErr(CodeInsufficientFunds, "insufficient balance")
	}
	return nil
}

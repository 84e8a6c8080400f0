package repo

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	// ErrAccountNotFound is returned when no balance row exists for an account.
	ErrAccountNotFound = errors.New("account not found")
	// ErrTransactionNotFound is returned by transaction lookups by id.
	ErrTransactionNotFound = errors.New("transaction not found")
	// ErrVersionConflict means the row changed between read and conditional write.
	ErrVersionConflict = errors.New("optimistic lock conflict")
	// ErrNegativeBalance rejects writes that would store a balance below zero.
	ErrNegativeBalance = errors.New("balance cannot be negative")
	// ErrNonPositiveAmount rejects transfers and ledger entries with amount <= 0.
	ErrNonPositiveAmount = errors.New("amount must be positive")
	// ErrSameAccount rejects transfers whose source and destination coincide.
	ErrSameAccount = errors.New("source and destination account are the same")
	// ErrCacheDisabled is returned by cache calls when no redis client is configured.
	ErrCacheDisabled = errors.New("balance cache disabled")
)

// MissingAccountError names the account a locked read could not find.
type MissingAccountError struct {
	AccountID uuid.UUID
}

func (e *MissingAccountError) Error() string {
	return fmt.Sprintf("account %s not found", e.AccountID)
}

func (e *MissingAccountError) Is(target error) bool { return target == ErrAccountNotFound }

// InsufficientFundsError reports a transfer refused because a resulting
// balance would be negative. NewFrom and NewTo are the balances the transfer
// would have produced.
type InsufficientFundsError struct {
	AccountID uuid.UUID
	Requested decimal.Decimal
	Available decimal.Decimal
	NewFrom   decimal.Decimal
	NewTo     decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds in account %s: requested %s, available %s",
		e.AccountID, e.Requested, e.Available)
}

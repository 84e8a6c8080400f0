package service

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Kind classifies service errors for the transport layer.
type Kind string

const (
	KindValidation        Kind = "validation"
	KindNotFound          Kind = "not_found"
	KindInsufficientFunds Kind = "insufficient_funds"
	KindStoreFailure      Kind = "store_failure"
)

// ValidationError is bad caller input. Never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string { return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason) }

// NotFoundError reports an unknown account or transaction. Role is "from" or
// "to" when the lookup was one side of a transfer.
type NotFoundError struct {
	Resource string
	ID       string
	Role     string
}

func (e *NotFoundError) Error() string {
	if e.Role != "" {
		return fmt.Sprintf("%s %s (%s) not found", e.Resource, e.ID, e.Role)
	}
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

// InsufficientFundsError is a business-rule rejection. NewFromBalance and
// NewToBalance are the balances the transfer would have produced.
type InsufficientFundsError struct {
	AccountID      uuid.UUID
	Requested      decimal.Decimal
	Available      decimal.Decimal
	NewFromBalance decimal.Decimal
	NewToBalance   decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds in account %s: requested %s, available %s (from would be %s, to would be %s)",
		e.AccountID, e.Requested, e.Available, e.NewFromBalance, e.NewToBalance)
}

// StoreFailure wraps an I/O, connection or lock-timeout error. Nothing was
// committed, so the caller may resubmit.
type StoreFailure struct {
	Op  string
	Err error
}

func (e *StoreFailure) Error() string { return e.Op + ": " + e.Err.Error() }

func (e *StoreFailure) Unwrap() error { return e.Err }

func storeFailure(op string, err error) error { return &StoreFailure{Op: op, Err: err} }

// KindOf maps err to its Kind. Unclassified errors count as store failures.
func KindOf(err error) Kind {
	var (
		validation   *ValidationError
		notFound     *NotFoundError
		insufficient *InsufficientFundsError
	)
	switch {
	case errors.As(err, &validation):
		return KindValidation
	case errors.As(err, &notFound):
		return KindNotFound
	case errors.As(err, &insufficient):
		return KindInsufficientFunds
	default:
		return KindStoreFailure
	}
}

package repo

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/richardliu001/ledger-service/internal/model"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// BalanceChange is one side of an applied transfer. Version is the row
// version After was written at.
type BalanceChange struct {
	AccountID uuid.UUID
	Before    decimal.Decimal
	After     decimal.Decimal
	Version   uint64
}

// TransferResult describes a transfer that has been written but not yet committed
// while hooks run, and a committed one once TransferAtomic returns.
type TransferResult struct {
	From   BalanceChange
	To     BalanceChange
	Amount decimal.Decimal
}

// TransferHook runs inside the transfer's database transaction after both
// balances are written. A non-nil error rolls the whole transfer back.
type TransferHook func(ctx context.Context, tx *gorm.DB, res *TransferResult) error

// CreateAccount inserts a zero balance row for a newly provisioned account.
func (r *Repository) CreateAccount(ctx context.Context, accountID uuid.UUID) (*model.AccountBalance, error) {
	acc := &model.AccountBalance{AccountID: accountID, Balance: decimal.Zero}
	if err := r.db.WithContext(ctx).Create(acc).Error; err != nil {
		return nil, err
	}
	return acc, nil
}

// AccountExists reports whether a balance row exists.
func (r *Repository) AccountExists(ctx context.Context, accountID uuid.UUID) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.AccountBalance{}).
		Where("account_id = ?", accountID).Count(&n).Error
	return n > 0, err
}

// GetBalance reads the committed balance row.
func (r *Repository) GetBalance(ctx context.Context, accountID uuid.UUID) (*model.AccountBalance, error) {
	var acc model.AccountBalance
	err := r.db.WithContext(ctx).Where("account_id = ?", accountID).First(&acc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &MissingAccountError{AccountID: accountID}
	}
	if err != nil {
		return nil, err
	}
	return &acc, nil
}

// SetBalance overwrites the balance unconditionally.
func (r *Repository) SetBalance(ctx context.Context, accountID uuid.UUID, balance decimal.Decimal) (*model.AccountBalance, error) {
	if balance.IsNegative() {
		return nil, ErrNegativeBalance
	}
	var out *model.AccountBalance
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		acc, err := r.getAccountForUpdate(ctx, tx, accountID)
		if err != nil {
			return err
		}
		if err := r.compareAndSet(ctx, tx, accountID, balance, acc.Version); err != nil {
			return err
		}
		acc.Balance = balance
		acc.Version++
		out = acc
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CompareAndSet writes balance only if the row still carries expectedVersion.
func (r *Repository) CompareAndSet(ctx context.Context, accountID uuid.UUID, balance decimal.Decimal, expectedVersion uint64) error {
	return r.compareAndSet(ctx, nil, accountID, balance, expectedVersion)
}

func (r *Repository) compareAndSet(ctx context.Context, tx *gorm.DB, accountID uuid.UUID, balance decimal.Decimal, expectedVersion uint64) error {
	if balance.IsNegative() {
		return ErrNegativeBalance
	}
	res := r.conn(ctx, tx).
		Model(&model.AccountBalance{}).
		Where("account_id = ? AND version = ?", accountID, expectedVersion).
		Updates(map[string]interface{}{
			"balance":    balance,
			"version":    expectedVersion + 1,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrVersionConflict
	}
	return nil
}

// getAccountForUpdate locks the balance row.
func (r *Repository) getAccountForUpdate(ctx context.Context, tx *gorm.DB, accountID uuid.UUID) (*model.AccountBalance, error) {
	var acc model.AccountBalance
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("account_id = ?", accountID).First(&acc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &MissingAccountError{AccountID: accountID}
	}
	if err != nil {
		return nil, err
	}
	return &acc, nil
}

// TransferAtomic moves amount from fromID to toID in one database transaction.
// Rows are locked in ascending id order so opposite transfers cannot deadlock,
// and each write is conditional on the version read under the lock.
// A resulting balance of exactly zero is accepted.
func (r *Repository) TransferAtomic(ctx context.Context, fromID, toID uuid.UUID, amount decimal.Decimal, hooks ...TransferHook) (*TransferResult, error) {
	if !amount.IsPositive() {
		return nil, ErrNonPositiveAmount
	}
	if fromID == toID {
		return nil, ErrSameAccount
	}

	ctx, span := r.tracer.Start(ctx, "repo.TransferAtomic")
	defer span.End()
	span.SetAttributes(
		attribute.String("ledger.from_account", fromID.String()),
		attribute.String("ledger.to_account", toID.String()),
	)

	var res *TransferResult
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := r.applyLockTimeout(tx); err != nil {
			return err
		}

		firstID, secondID := fromID, toID
		if bytes.Compare(secondID[:], firstID[:]) < 0 {
			firstID, secondID = secondID, firstID
		}
		first, err := r.getAccountForUpdate(ctx, tx, firstID)
		if err != nil {
			return err
		}
		second, err := r.getAccountForUpdate(ctx, tx, secondID)
		if err != nil {
			return err
		}
		from, to := first, second
		if firstID != fromID {
			from, to = second, first
		}

		newFrom := from.Balance.Sub(amount)
		newTo := to.Balance.Add(amount)
		if newFrom.IsNegative() || newTo.IsNegative() {
			short := from
			if !newFrom.IsNegative() {
				short = to
			}
			return &InsufficientFundsError{
				AccountID: short.AccountID,
				Requested: amount,
				Available: from.Balance,
				NewFrom:   newFrom,
				NewTo:     newTo,
			}
		}

		if err := r.compareAndSet(ctx, tx, fromID, newFrom, from.Version); err != nil {
			return err
		}
		if err := r.compareAndSet(ctx, tx, toID, newTo, to.Version); err != nil {
			return err
		}

		res = &TransferResult{
			From:   BalanceChange{AccountID: fromID, Before: from.Balance, After: newFrom, Version: from.Version + 1},
			To:     BalanceChange{AccountID: toID, Before: to.Balance, After: newTo, Version: to.Version + 1},
			Amount: amount,
		}
		for _, hook := range hooks {
			if err := hook(ctx, tx, res); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		r.log.Debugw("transfer rolled back", "from", fromID, "to", toID, "error", err)
		return nil, err
	}
	return res, nil
}

// applyLockTimeout bounds lock waits for the current transaction on postgres.
// Other dialects rely on the request context deadline.
func (r *Repository) applyLockTimeout(tx *gorm.DB) error {
	if r.lockTimeout <= 0 || tx.Dialector.Name() != "postgres" {
		return nil
	}
	stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", r.lockTimeout.Milliseconds())
	if err := tx.Exec(stmt).Error; err != nil {
		return fmt.Errorf("set lock timeout: %w", err)
	}
	return nil
}

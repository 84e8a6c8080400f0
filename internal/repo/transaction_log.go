package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/richardliu001/ledger-service/internal/model"
	"gorm.io/gorm"
)

// TxFilter narrows transaction listings. Zero values mean no restriction.
type TxFilter struct {
	Limit  int
	Since  time.Time
	Status model.TransactionStatus
}

func (f TxFilter) apply(q *gorm.DB) *gorm.DB {
	if !f.Since.IsZero() {
		q = q.Where("created_at >= ?", f.Since)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	return q.Order("created_at asc").Order("id asc")
}

// AppendTransaction inserts an immutable ledger entry. Pass the transfer's tx
// to make the entry commit or roll back with the balance writes.
func (r *Repository) AppendTransaction(ctx context.Context, tx *gorm.DB, t *model.Transaction) error {
	if !t.Amount.IsPositive() {
		return ErrNonPositiveAmount
	}
	return r.conn(ctx, tx).Create(t).Error
}

// GetTransaction loads one entry by id.
func (r *Repository) GetTransaction(ctx context.Context, id uuid.UUID) (*model.Transaction, error) {
	var t model.Transaction
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTransactionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ListTransactions returns entries in insertion order.
func (r *Repository) ListTransactions(ctx context.Context, f TxFilter) ([]model.Transaction, error) {
	var txs []model.Transaction
	err := f.apply(r.db.WithContext(ctx).Model(&model.Transaction{})).Find(&txs).Error
	return txs, err
}

// AccountTransactions returns entries where the account is sender or receiver.
func (r *Repository) AccountTransactions(ctx context.Context, accountID uuid.UUID, f TxFilter) ([]model.Transaction, error) {
	var txs []model.Transaction
	q := r.db.WithContext(ctx).Model(&model.Transaction{}).
		Where("(from_account_id = ? OR to_account_id = ?)", accountID, accountID)
	err := f.apply(q).Find(&txs).Error
	return txs, err
}

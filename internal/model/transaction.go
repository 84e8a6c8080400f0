package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type TransactionStatus string

const (
	StatusApplied  TransactionStatus = "applied"
	StatusRejected TransactionStatus = "rejected"
)

// Transaction is an immutable ledger entry. Only applied records moved money.
type Transaction struct {
	ID            uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	FromAccountID uuid.UUID         `gorm:"type:uuid;not null;index" json:"from_account_id"`
	ToAccountID   uuid.UUID         `gorm:"type:uuid;not null;index" json:"to_account_id"`
	Amount        decimal.Decimal   `gorm:"type:numeric(20,8);not null" json:"amount"`
	Status        TransactionStatus `gorm:"size:16;not null;index" json:"status"`
	Reason        string            `gorm:"size:255" json:"reason,omitempty"`
	CreatedAt     time.Time         `gorm:"autoCreateTime;index" json:"created_at"`
}

func (Transaction) TableName() string { return "transactions" }

// BeforeCreate assigns a time-ordered id so insertion order survives equal timestamps.
func (t *Transaction) BeforeCreate(*gorm.DB) error {
	if t.ID != uuid.Nil {
		return nil
	}
	id, err := uuid.NewV7()
	if err != nil {
		return err
	}
	t.ID = id
	return nil
}

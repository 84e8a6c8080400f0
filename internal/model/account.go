package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AccountBalance is the current balance of one account. Version is bumped on
// every write and doubles as the compare-and-swap token.
type AccountBalance struct {
	AccountID uuid.UUID       `gorm:"type:uuid;primaryKey;column:account_id" json:"account_id"`
	Balance   decimal.Decimal `gorm:"type:numeric(20,8);not null;default:'0'" json:"balance"`
	Version   uint64          `gorm:"not null;default:0" json:"-"`
	CreatedAt time.Time       `gorm:"autoCreateTime" json:"-"`
	UpdatedAt time.Time       `gorm:"autoUpdateTime" json:"-"`
}

func (AccountBalance) TableName() string { return "account_balances" }

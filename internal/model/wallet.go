package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Wallet is the single balance a user holds. Only the ledger writer mutates it.
type Wallet struct {
	ID        uint64          `gorm:"primaryKey;column:id"`
	UserID    uint64          `gorm:"not null;uniqueIndex"`
	Balance   decimal.Decimal `gorm:"type:numeric(20,8);not null;default:'0'"`
	Version   uint64          `gorm:"not null;default:0"`
	CreatedAt time.Time       `gorm:"autoCreateTime"`
	UpdatedAt time.Time       `gorm:"autoUpdateTime"`
}

func (Wallet) TableName() string { return "wallet" }

package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type BonusType string

const (
	BonusLuckyDraw   BonusType = "lucky_draw"
	BonusProfitShare BonusType = "profit_share"
)

// BonusTransaction records a bonus credit and the ledger entry it produced.
// PaymentID links bonuses earned through a payment so a refund can reverse them.
type BonusTransaction struct {
	ID                    uint64          `gorm:"primaryKey" json:"id"`
	UserID                uint64          `gorm:"not null;index" json:"user_id"`
	Type                  BonusType       `gorm:"size:32;not null" json:"type"`
	Amount                decimal.Decimal `gorm:"type:numeric(20,8);not null" json:"amount"`
	Multiplier            decimal.Decimal `gorm:"type:numeric(10,4);not null;default:'1'" json:"multiplier"`
	Description           string          `gorm:"size:255" json:"description"`
	PaymentID             *uint64         `gorm:"index" json:"payment_id,omitempty"`
	TransactionID         *uint64         `gorm:"uniqueIndex" json:"transaction_id,omitempty"`
	ReversalTransactionID *uint64         `json:"reversal_transaction_id,omitempty"`
	ReversedAt            *time.Time      `json:"reversed_at,omitempty"`
	CreatedAt             time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt             time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (BonusTransaction) TableName() string { return "bonus_transaction" }

package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type ProfitShareStatus string

const (
	ProfitPending     ProfitShareStatus = "pending"
	ProfitCalculated  ProfitShareStatus = "calculated"
	ProfitDistributed ProfitShareStatus = "distributed"
)

// ProfitShare is a period whose TotalPool is split among active subscribers.
type ProfitShare struct {
	ID            uint64            `gorm:"primaryKey" json:"id"`
	Name          string            `gorm:"size:128;not null" json:"name"`
	StartDate     time.Time         `gorm:"not null" json:"start_date"`
	EndDate       time.Time         `gorm:"not null" json:"end_date"`
	NetProfit     decimal.Decimal   `gorm:"type:numeric(20,8);not null" json:"net_profit"`
	TotalPool     decimal.Decimal   `gorm:"type:numeric(20,8);not null" json:"total_pool"`
	Status        ProfitShareStatus `gorm:"size:16;not null;index" json:"status"`
	CalculatedAt  *time.Time        `json:"calculated_at,omitempty"`
	DistributedAt *time.Time        `json:"distributed_at,omitempty"`
	CreatedAt     time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}

func (ProfitShare) TableName() string { return "profit_share" }

// UserProfitShare is one computed distribution row of a period.
type UserProfitShare struct {
	ID                 uint64          `gorm:"primaryKey" json:"id"`
	ProfitShareID      uint64          `gorm:"not null;index" json:"profit_share_id"`
	UserID             uint64          `gorm:"not null;index" json:"user_id"`
	SubscriptionID     uint64          `gorm:"not null" json:"subscription_id"`
	Amount             decimal.Decimal `gorm:"type:numeric(20,8);not null" json:"amount"`
	BonusTransactionID *uint64         `json:"bonus_transaction_id,omitempty"`
	CreatedAt          time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (UserProfitShare) TableName() string { return "user_profit_share" }

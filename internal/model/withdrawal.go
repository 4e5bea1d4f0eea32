package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type WithdrawalStatus string

const (
	WithdrawalPending   WithdrawalStatus = "pending"
	WithdrawalApproved  WithdrawalStatus = "approved"
	WithdrawalRejected  WithdrawalStatus = "rejected"
	WithdrawalCompleted WithdrawalStatus = "completed"
	WithdrawalFailed    WithdrawalStatus = "failed"
)

type Withdrawal struct {
	ID          uint64           `gorm:"primaryKey" json:"id"`
	UserID      uint64           `gorm:"not null;index" json:"user_id"`
	Amount      decimal.Decimal  `gorm:"type:numeric(20,8);not null" json:"amount"`
	Status      WithdrawalStatus `gorm:"size:16;not null;index" json:"status"`
	AdminNote   string           `gorm:"size:255" json:"admin_note,omitempty"`
	ProcessedBy *uint64          `json:"processed_by,omitempty"`
	ProcessedAt *time.Time       `json:"processed_at,omitempty"`
	CreatedAt   time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Withdrawal) TableName() string { return "withdrawal" }

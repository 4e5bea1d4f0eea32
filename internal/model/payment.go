package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

// Payment is a subscription instalment collected by an external gateway.
type Payment struct {
	ID             uint64          `gorm:"primaryKey" json:"id"`
	UserID         uint64          `gorm:"not null;index" json:"user_id"`
	SubscriptionID *uint64         `json:"subscription_id,omitempty"`
	Amount         decimal.Decimal `gorm:"type:numeric(20,8);not null" json:"amount"`
	Status         PaymentStatus   `gorm:"size:16;not null;index" json:"status"`
	RefundedAt     *time.Time      `json:"refunded_at,omitempty"`
	RefundedBy     *uint64         `json:"refunded_by,omitempty"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Payment) TableName() string { return "payment" }

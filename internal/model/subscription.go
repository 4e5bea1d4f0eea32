package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Plan is read-only here. ProfitSharePercent is in percent (5 = 5%).
type Plan struct {
	ID                 uint64              `gorm:"primaryKey"`
	Name               string              `gorm:"size:128;not null"`
	Amount             decimal.Decimal     `gorm:"type:numeric(20,8);not null"`
	ProfitSharePercent decimal.NullDecimal `gorm:"type:numeric(7,4)"`
}

func (Plan) TableName() string { return "plan" }

type SubscriptionStatus string

const (
	SubscriptionActive    SubscriptionStatus = "active"
	SubscriptionPaused    SubscriptionStatus = "paused"
	SubscriptionCancelled SubscriptionStatus = "cancelled"
)

type Subscription struct {
	ID        uint64             `gorm:"primaryKey"`
	UserID    uint64             `gorm:"not null;index"`
	PlanID    uint64             `gorm:"not null"`
	Plan      Plan               `gorm:"foreignKey:PlanID"`
	Status    SubscriptionStatus `gorm:"size:16;not null;index"`
	StartDate time.Time          `gorm:"not null"`
	CreatedAt time.Time          `gorm:"autoCreateTime"`
}

func (Subscription) TableName() string { return "subscription" }

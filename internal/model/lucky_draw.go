package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type DrawStatus string

const (
	DrawOpen      DrawStatus = "open"
	DrawCompleted DrawStatus = "completed"
)

// PrizeTier is one rank of a prize structure: Count winners receive Amount each.
type PrizeTier struct {
	Rank   int             `json:"rank" validate:"gt=0"`
	Count  int             `json:"count" validate:"gt=0"`
	Amount decimal.Decimal `json:"amount"`
}

// PrizeStructure is processed in slice order.
type PrizeStructure []PrizeTier

// Winners is the number of prizes the structure hands out.
func (p PrizeStructure) Winners() int {
	n := 0
	for _, t := range p {
		n += t.Count
	}
	return n
}

// Total is the sum of every prize in the structure.
func (p PrizeStructure) Total() decimal.Decimal {
	total := decimal.Zero
	for _, t := range p {
		total = total.Add(t.Amount.Mul(decimal.NewFromInt(int64(t.Count))))
	}
	return total
}

type LuckyDraw struct {
	ID             uint64         `gorm:"primaryKey" json:"id"`
	Name           string         `gorm:"size:128;not null" json:"name"`
	DrawDate       time.Time      `gorm:"not null;index" json:"draw_date"`
	Status         DrawStatus     `gorm:"size:16;not null;index" json:"status"`
	PrizeStructure PrizeStructure `gorm:"type:text;serializer:json;not null" json:"prize_structure"`
	CompletedAt    *time.Time     `json:"completed_at,omitempty"`
	CreatedAt      time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

func (LuckyDraw) TableName() string { return "lucky_draw" }

// LuckyDrawEntry is one (user, qualifying payment) ticket in a draw.
type LuckyDrawEntry struct {
	ID          uint64          `gorm:"primaryKey" json:"id"`
	LuckyDrawID uint64          `gorm:"not null;uniqueIndex:idx_draw_payment" json:"lucky_draw_id"`
	UserID      uint64          `gorm:"not null;index" json:"user_id"`
	PaymentID   uint64          `gorm:"not null;uniqueIndex:idx_draw_payment" json:"payment_id"`
	IsWinner    bool            `gorm:"not null;default:false" json:"is_winner"`
	PrizeRank   *int            `json:"prize_rank,omitempty"`
	PrizeAmount decimal.Decimal `gorm:"type:numeric(20,8);not null;default:'0'" json:"prize_amount"`
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (LuckyDrawEntry) TableName() string { return "lucky_draw_entry" }

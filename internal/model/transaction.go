package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TxCredit          TransactionType = "credit"
	TxDebit           TransactionType = "debit"
	TxAdminAdjustment TransactionType = "admin_adjustment"
	TxBonusCredit     TransactionType = "bonus_credit"
	TxRefund          TransactionType = "refund"
	TxReversal        TransactionType = "reversal"
)

// Valid reports whether t is one of the known transaction types.
func (t TransactionType) Valid() bool {
	switch t {
	case TxCredit, TxDebit, TxAdminAdjustment, TxBonusCredit, TxRefund, TxReversal:
		return true
	}
	return false
}

// Transaction is an append-only ledger entry. Amount is signed.
type Transaction struct {
	ID             uint64          `gorm:"primaryKey" json:"id"`
	UserID         uint64          `gorm:"not null;index;uniqueIndex:idx_transaction_idempotency,priority:1" json:"user_id"`
	WalletID       uint64          `gorm:"not null;index" json:"wallet_id"`
	Type           TransactionType `gorm:"size:32;not null;uniqueIndex:idx_transaction_idempotency,priority:2" json:"type"`
	Amount         decimal.Decimal `gorm:"type:numeric(20,8);not null" json:"amount"`
	BalanceBefore  decimal.Decimal `gorm:"type:numeric(20,8);not null" json:"balance_before"`
	BalanceAfter   decimal.Decimal `gorm:"type:numeric(20,8);not null" json:"balance_after"`
	Description    string          `gorm:"size:255" json:"description"`
	Reference      Reference       `gorm:"embedded;embeddedPrefix:reference_" json:"reference"`
	IdempotencyKey *string         `gorm:"size:64;uniqueIndex:idx_transaction_idempotency,priority:3" json:"idempotency_key,omitempty"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
	// Replayed marks a row returned for a repeated idempotency key.
	Replayed       bool            `gorm:"-" json:"-"`
}

func (Transaction) TableName() string { return "transaction" }

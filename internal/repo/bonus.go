package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/sipadmin/funds-engine/internal/model"
)

// BonusRepository persists bonus credits and their reversals.
type BonusRepository interface {
	CreateBonus(ctx context.Context, tx *gorm.DB, b *model.BonusTransaction) error
	LinkBonusTransaction(ctx context.Context, tx *gorm.DB, bonusID, transactionID uint64) error
	ListReversibleBonuses(ctx context.Context, tx *gorm.DB, paymentID uint64) ([]model.BonusTransaction, error)
	MarkBonusReversed(ctx context.Context, tx *gorm.DB, bonusID, reversalTxID uint64, at time.Time) error
}

func (r *Repository) CreateBonus(ctx context.Context, tx *gorm.DB, b *model.BonusTransaction) error {
	return tx.WithContext(ctx).Create(b).Error
}

func (r *Repository) LinkBonusTransaction(ctx context.Context, tx *gorm.DB, bonusID, transactionID uint64) error {
	return tx.WithContext(ctx).Model(&model.BonusTransaction{}).
		Where("id = ?", bonusID).Update("transaction_id", transactionID).Error
}

// ListReversibleBonuses locks the credited, not yet reversed bonuses of a payment.
func (r *Repository) ListReversibleBonuses(ctx context.Context, tx *gorm.DB, paymentID uint64) ([]model.BonusTransaction, error) {
	var bs []model.BonusTransaction
	err := forUpdate(tx.WithContext(ctx)).
		Where("payment_id = ? AND reversed_at IS NULL AND transaction_id IS NOT NULL", paymentID).
		Order("id").Find(&bs).Error
	return bs, err
}

func (r *Repository) MarkBonusReversed(ctx context.Context, tx *gorm.DB, bonusID, reversalTxID uint64, at time.Time) error {
	return tx.WithContext(ctx).Model(&model.BonusTransaction{}).
		Where("id = ?", bonusID).
		Updates(map[string]interface{}{"reversal_transaction_id": reversalTxID, "reversed_at": at}).Error
}

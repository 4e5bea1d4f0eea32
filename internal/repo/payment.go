package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/sipadmin/funds-engine/internal/model"
)

// PaymentRepository covers the payment refund and withdrawal state machines.
type PaymentRepository interface {
	GetPaymentForUpdate(ctx context.Context, tx *gorm.DB, id uint64) (*model.Payment, error)
	SavePayment(ctx context.Context, tx *gorm.DB, p *model.Payment) error
	GetWithdrawalForUpdate(ctx context.Context, tx *gorm.DB, id uint64) (*model.Withdrawal, error)
	SaveWithdrawal(ctx context.Context, tx *gorm.DB, w *model.Withdrawal) error
}

func (r *Repository) GetPaymentForUpdate(ctx context.Context, tx *gorm.DB, id uint64) (*model.Payment, error) {
	var p model.Payment
	if err := forUpdate(tx.WithContext(ctx)).Where("id = ?", id).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *Repository) SavePayment(ctx context.Context, tx *gorm.DB, p *model.Payment) error {
	return tx.WithContext(ctx).Save(p).Error
}

func (r *Repository) GetWithdrawalForUpdate(ctx context.Context, tx *gorm.DB, id uint64) (*model.Withdrawal, error) {
	var w model.Withdrawal
	if err := forUpdate(tx.WithContext(ctx)).Where("id = ?", id).First(&w).Error; err != nil {
		return nil, err
	}
	return &w, nil
}

func (r *Repository) SaveWithdrawal(ctx context.Context, tx *gorm.DB, w *model.Withdrawal) error {
	return tx.WithContext(ctx).Save(w).Error
}

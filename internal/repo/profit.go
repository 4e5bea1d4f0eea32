package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/sipadmin/funds-engine/internal/model"
)

// ProfitRepository persists profit-share periods, their rows and the
// subscriptions they are computed from.
type ProfitRepository interface {
	CreateProfitShare(ctx context.Context, tx *gorm.DB, p *model.ProfitShare) error
	GetProfitShare(ctx context.Context, tx *gorm.DB, id uint64) (*model.ProfitShare, error)
	GetProfitShareForUpdate(ctx context.Context, tx *gorm.DB, id uint64) (*model.ProfitShare, error)
	SetProfitShareStatus(ctx context.Context, tx *gorm.DB, id uint64, from, to model.ProfitShareStatus, at time.Time) error
	ListEligibleSubscriptions(ctx context.Context, tx *gorm.DB, until time.Time) ([]model.Subscription, error)
	DeleteDistributions(ctx context.Context, tx *gorm.DB, profitShareID uint64) error
	CreateDistributions(ctx context.Context, tx *gorm.DB, rows []model.UserProfitShare) error
	ListDistributions(ctx context.Context, tx *gorm.DB, profitShareID uint64) ([]model.UserProfitShare, error)
	LinkDistributionBonus(ctx context.Context, tx *gorm.DB, rowID, bonusID uint64) error
}

func (r *Repository) CreateProfitShare(ctx context.Context, tx *gorm.DB, p *model.ProfitShare) error {
	return tx.WithContext(ctx).Create(p).Error
}

func (r *Repository) GetProfitShare(ctx context.Context, tx *gorm.DB, id uint64) (*model.ProfitShare, error) {
	var p model.ProfitShare
	if err := tx.WithContext(ctx).Where("id = ?", id).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *Repository) GetProfitShareForUpdate(ctx context.Context, tx *gorm.DB, id uint64) (*model.ProfitShare, error) {
	var p model.ProfitShare
	if err := forUpdate(tx.WithContext(ctx)).Where("id = ?", id).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// SetProfitShareStatus moves a period from one status to another and stamps
// the matching timestamp column.
func (r *Repository) SetProfitShareStatus(ctx context.Context, tx *gorm.DB, id uint64, from, to model.ProfitShareStatus, at time.Time) error {
	updates := map[string]interface{}{"status": to}
	switch to {
	case model.ProfitCalculated:
		updates["calculated_at"] = at
	case model.ProfitDistributed:
		updates["distributed_at"] = at
	case model.ProfitPending:
		updates["calculated_at"] = nil
	}
	res := tx.WithContext(ctx).Model(&model.ProfitShare{}).
		Where("id = ? AND status = ?", id, from).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrOptimisticLock
	}
	return nil
}

// ListEligibleSubscriptions returns active subscriptions started on or before until.
func (r *Repository) ListEligibleSubscriptions(ctx context.Context, tx *gorm.DB, until time.Time) ([]model.Subscription, error) {
	var subs []model.Subscription
	err := tx.WithContext(ctx).Preload("Plan").
		Where("status = ? AND start_date <= ?", model.SubscriptionActive, until).
		Order("id").Find(&subs).Error
	return subs, err
}

func (r *Repository) DeleteDistributions(ctx context.Context, tx *gorm.DB, profitShareID uint64) error {
	return tx.WithContext(ctx).Where("profit_share_id = ?", profitShareID).Delete(&model.UserProfitShare{}).Error
}

func (r *Repository) CreateDistributions(ctx context.Context, tx *gorm.DB, rows []model.UserProfitShare) error {
	if len(rows) == 0 {
		return nil
	}
	return tx.WithContext(ctx).CreateInBatches(rows, 500).Error
}

func (r *Repository) ListDistributions(ctx context.Context, tx *gorm.DB, profitShareID uint64) ([]model.UserProfitShare, error) {
	var rows []model.UserProfitShare
	err := tx.WithContext(ctx).Where("profit_share_id = ?", profitShareID).Order("id").Find(&rows).Error
	return rows, err
}

func (r *Repository) LinkDistributionBonus(ctx context.Context, tx *gorm.DB, rowID, bonusID uint64) error {
	return tx.WithContext(ctx).Model(&model.UserProfitShare{}).
		Where("id = ?", rowID).Update("bonus_transaction_id", bonusID).Error
}

package repo

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/sipadmin/funds-engine/internal/model"
)

// DrawRepository persists lucky draws and their entries.
type DrawRepository interface {
	CreateDraw(ctx context.Context, tx *gorm.DB, d *model.LuckyDraw) error
	GetDraw(ctx context.Context, tx *gorm.DB, id uint64) (*model.LuckyDraw, error)
	GetDrawForUpdate(ctx context.Context, tx *gorm.DB, id uint64) (*model.LuckyDraw, error)
	CompleteDraw(ctx context.Context, tx *gorm.DB, id uint64, at time.Time) error
	ListDueDraws(ctx context.Context, now time.Time) ([]model.LuckyDraw, error)
	CreateEntry(ctx context.Context, tx *gorm.DB, e *model.LuckyDrawEntry) error
	ListNonWinningEntries(ctx context.Context, tx *gorm.DB, drawID uint64) ([]model.LuckyDrawEntry, error)
	MarkEntryWinner(ctx context.Context, tx *gorm.DB, entryID uint64, rank int, amount decimal.Decimal) error
	ListWinners(ctx context.Context, tx *gorm.DB, drawID uint64) ([]model.LuckyDrawEntry, error)
}

func (r *Repository) CreateDraw(ctx context.Context, tx *gorm.DB, d *model.LuckyDraw) error {
	return tx.WithContext(ctx).Create(d).Error
}

func (r *Repository) GetDraw(ctx context.Context, tx *gorm.DB, id uint64) (*model.LuckyDraw, error) {
	var d model.LuckyDraw
	if err := tx.WithContext(ctx).Where("id = ?", id).First(&d).Error; err != nil {
		return nil, err
	}
	return &d, nil
}

// GetDrawForUpdate locks the draw row so status check and transition serialize.
func (r *Repository) GetDrawForUpdate(ctx context.Context, tx *gorm.DB, id uint64) (*model.LuckyDraw, error) {
	var d model.LuckyDraw
	if err := forUpdate(tx.WithContext(ctx)).Where("id = ?", id).First(&d).Error; err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *Repository) CompleteDraw(ctx context.Context, tx *gorm.DB, id uint64, at time.Time) error {
	return tx.WithContext(ctx).Model(&model.LuckyDraw{}).
		Where("id = ? AND status = ?", id, model.DrawOpen).
		Updates(map[string]interface{}{"status": model.DrawCompleted, "completed_at": at}).Error
}

// ListDueDraws returns open draws whose draw date has passed.
func (r *Repository) ListDueDraws(ctx context.Context, now time.Time) ([]model.LuckyDraw, error) {
	var ds []model.LuckyDraw
	err := r.db.WithContext(ctx).
		Where("status = ? AND draw_date <= ?", model.DrawOpen, now).
		Order("draw_date, id").Find(&ds).Error
	return ds, err
}

func (r *Repository) CreateEntry(ctx context.Context, tx *gorm.DB, e *model.LuckyDrawEntry) error {
	return tx.WithContext(ctx).Create(e).Error
}

func (r *Repository) ListNonWinningEntries(ctx context.Context, tx *gorm.DB, drawID uint64) ([]model.LuckyDrawEntry, error) {
	var es []model.LuckyDrawEntry
	err := tx.WithContext(ctx).
		Where("lucky_draw_id = ? AND is_winner = ?", drawID, false).
		Order("id").Find(&es).Error
	return es, err
}

func (r *Repository) MarkEntryWinner(ctx context.Context, tx *gorm.DB, entryID uint64, rank int, amount decimal.Decimal) error {
	return tx.WithContext(ctx).Model(&model.LuckyDrawEntry{}).
		Where("id = ?", entryID).
		Updates(map[string]interface{}{"is_winner": true, "prize_rank": rank, "prize_amount": amount}).Error
}

func (r *Repository) ListWinners(ctx context.Context, tx *gorm.DB, drawID uint64) ([]model.LuckyDrawEntry, error) {
	var es []model.LuckyDrawEntry
	err := tx.WithContext(ctx).
		Where("lucky_draw_id = ? AND is_winner = ?", drawID, true).
		Order("prize_rank, id").Find(&es).Error
	return es, err
}

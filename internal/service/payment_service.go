package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/sipadmin/funds-engine/internal/ledger"
	"github.com/sipadmin/funds-engine/internal/metrics"
	"github.com/sipadmin/funds-engine/internal/model"
	"github.com/sipadmin/funds-engine/internal/repo"
)

// PaymentStore is what payment and withdrawal processing need from persistence.
type PaymentStore interface {
	DB(ctx context.Context) *gorm.DB
	repo.PaymentRepository
	repo.BonusRepository
	repo.OutboxRepository
	repo.BalanceCache
}

// PaymentService refunds payments and claws back the bonuses they earned.
type PaymentService struct {
	repo   PaymentStore
	ledger ledger.Applier
	log    *zap.SugaredLogger
	now    func() time.Time
}

// NewPaymentService returns PaymentService.
func NewPaymentService(r PaymentStore, l ledger.Applier, logger *zap.SugaredLogger) *PaymentService {
	return &PaymentService{repo: r, ledger: l, log: logger, now: time.Now}
}

// RefundResult describes a refunded payment.
type RefundResult struct {
	Payment         *model.Payment  `json:"payment"`
	BonusesReversed int             `json:"bonuses_reversed"`
	AmountReversed  decimal.Decimal `json:"amount_reversed"`
}

// Refund moves a paid payment to refunded and reverses every bonus credited
// because of it. Reversals may take the wallet below zero.
func (s *PaymentService) Refund(ctx context.Context, paymentID, adminID uint64) (*RefundResult, error) {
	res := &RefundResult{}
	err := s.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		res.BonusesReversed, res.AmountReversed = 0, decimal.Zero
		p, err := s.repo.GetPaymentForUpdate(ctx, tx, paymentID)
		if err != nil {
			return err
		}
		if p.Status != model.PaymentPaid {
			return fmt.Errorf("payment %d is %s: %w", paymentID, p.Status, ErrInvalidState)
		}
		bonuses, err := s.repo.ListReversibleBonuses(ctx, tx, p.ID)
		if err != nil {
			return err
		}
		now := s.now()
		for _, b := range bonuses {
			t, err := s.ledger.Apply(ctx, tx, ledger.Entry{
				UserID:        b.UserID,
				Amount:        b.Amount.Neg(),
				Type:          model.TxReversal,
				Description:   fmt.Sprintf("Reversal of %s bonus for refunded payment #%d", b.Type, p.ID),
				Reference:     model.BonusRef(b.ID),
				AllowNegative: true,
			})
			if err != nil {
				return fmt.Errorf("reverse bonus %d: %w", b.ID, err)
			}
			if err := s.repo.MarkBonusReversed(ctx, tx, b.ID, t.ID, now); err != nil {
				return err
			}
			res.BonusesReversed++
			res.AmountReversed = res.AmountReversed.Add(b.Amount)
		}
		p.Status = model.PaymentRefunded
		p.RefundedAt = &now
		p.RefundedBy = &adminID
		if err := s.repo.SavePayment(ctx, tx, p); err != nil {
			return err
		}
		res.Payment = p
		return notify(ctx, s.repo, tx, "Payment", p.ID, "PaymentRefunded", map[string]interface{}{
			"payment_id":       p.ID,
			"user_id":          p.UserID,
			"amount":           p.Amount,
			"bonuses_reversed": res.BonusesReversed,
			"amount_reversed":  res.AmountReversed,
		})
	})
	if err != nil {
		err = classify("refund payment", paymentID, err)
		if errors.Is(err, ErrExecutionFailed) {
			s.log.Errorw("payment refund failed", "payment_id", paymentID, "error", err)
		}
		return nil, err
	}
	if err := s.repo.InvalidateBalance(ctx, res.Payment.UserID); err != nil {
		s.log.Warnw("invalidate balance", "user_id", res.Payment.UserID, "error", err)
	}
	if res.BonusesReversed > 0 {
		metrics.LedgerEntries.WithLabelValues(string(model.TxReversal)).Add(float64(res.BonusesReversed))
	}
	s.log.Infow("payment refunded", "payment_id", paymentID, "admin_id", adminID,
		"bonuses_reversed", res.BonusesReversed, "amount_reversed", res.AmountReversed.String())
	return res, nil
}

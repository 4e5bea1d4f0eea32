package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/sipadmin/funds-engine/internal/ledger"
	"github.com/sipadmin/funds-engine/internal/metrics"
	"github.com/sipadmin/funds-engine/internal/model"
)

// WithdrawalService drives the withdrawal state machine:
//
//	pending -> approved -> completed
//	pending -> rejected
//	approved -> failed
//
// Approve debits the wallet; fail credits it back.
type WithdrawalService struct {
	repo   PaymentStore
	ledger ledger.Applier
	log    *zap.SugaredLogger
	now    func() time.Time
}

// NewWithdrawalService returns WithdrawalService.
func NewWithdrawalService(r PaymentStore, l ledger.Applier, logger *zap.SugaredLogger) *WithdrawalService {
	return &WithdrawalService{repo: r, ledger: l, log: logger, now: time.Now}
}

type withdrawalStep struct {
	action string
	from   model.WithdrawalStatus
	to     model.WithdrawalStatus
	event  string
	// entry builds the ledger movement of the step, if any.
	entry func(w *model.Withdrawal) *ledger.Entry
}

var (
	stepApprove = withdrawalStep{
		action: "approve", from: model.WithdrawalPending, to: model.WithdrawalApproved, event: "WithdrawalApproved",
		entry: func(w *model.Withdrawal) *ledger.Entry {
			return &ledger.Entry{
				UserID:      w.UserID,
				Amount:      w.Amount.Neg(),
				Type:        model.TxDebit,
				Description: fmt.Sprintf("Withdrawal #%d", w.ID),
				Reference:   model.WithdrawalRef(w.ID),
			}
		},
	}
	stepReject   = withdrawalStep{action: "reject", from: model.WithdrawalPending, to: model.WithdrawalRejected, event: "WithdrawalRejected"}
	stepComplete = withdrawalStep{action: "complete", from: model.WithdrawalApproved, to: model.WithdrawalCompleted, event: "WithdrawalCompleted"}
	stepFail     = withdrawalStep{
		action: "fail", from: model.WithdrawalApproved, to: model.WithdrawalFailed, event: "WithdrawalFailed",
		entry: func(w *model.Withdrawal) *ledger.Entry {
			return &ledger.Entry{
				UserID:      w.UserID,
				Amount:      w.Amount,
				Type:        model.TxRefund,
				Description: fmt.Sprintf("Refund of failed withdrawal #%d", w.ID),
				Reference:   model.WithdrawalRef(w.ID),
			}
		},
	}
)

func (s *WithdrawalService) Approve(ctx context.Context, id, adminID uint64, note string) (*model.Withdrawal, error) {
	return s.transition(ctx, stepApprove, id, adminID, note)
}

func (s *WithdrawalService) Reject(ctx context.Context, id, adminID uint64, note string) (*model.Withdrawal, error) {
	return s.transition(ctx, stepReject, id, adminID, note)
}

func (s *WithdrawalService) Complete(ctx context.Context, id, adminID uint64, note string) (*model.Withdrawal, error) {
	return s.transition(ctx, stepComplete, id, adminID, note)
}

func (s *WithdrawalService) Fail(ctx context.Context, id, adminID uint64, note string) (*model.Withdrawal, error) {
	return s.transition(ctx, stepFail, id, adminID, note)
}

func (s *WithdrawalService) transition(ctx context.Context, step withdrawalStep, id, adminID uint64, note string) (*model.Withdrawal, error) {
	var (
		out   *model.Withdrawal
		moved bool
	)
	err := s.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		w, err := s.repo.GetWithdrawalForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if w.Status != step.from {
			return fmt.Errorf("withdrawal %d is %s, cannot %s: %w", id, w.Status, step.action, ErrInvalidState)
		}
		if !w.Amount.IsPositive() {
			return fmt.Errorf("withdrawal %d: %w", id, ErrInvalidAmount)
		}
		if step.entry != nil {
			if _, err := s.ledger.Apply(ctx, tx, *step.entry(w)); err != nil {
				return err
			}
			moved = true
		}
		now := s.now()
		w.Status = step.to
		w.ProcessedBy = &adminID
		w.ProcessedAt = &now
		if note != "" {
			w.AdminNote = note
		}
		if err := s.repo.SaveWithdrawal(ctx, tx, w); err != nil {
			return err
		}
		out = w
		return notify(ctx, s.repo, tx, "Withdrawal", w.ID, step.event, map[string]interface{}{
			"withdrawal_id": w.ID,
			"user_id":       w.UserID,
			"amount":        w.Amount,
			"status":        w.Status,
		})
	})
	if err != nil {
		err = classify(step.action+" withdrawal", id, err)
		if errors.Is(err, ErrExecutionFailed) {
			s.log.Errorw("withdrawal transition failed", "withdrawal_id", id, "action", step.action, "error", err)
		}
		return nil, err
	}
	if moved {
		if err := s.repo.InvalidateBalance(ctx, out.UserID); err != nil {
			s.log.Warnw("invalidate balance", "user_id", out.UserID, "error", err)
		}
		metrics.LedgerEntries.WithLabelValues(string(step.entry(out).Type)).Inc()
	}
	s.log.Infow("withdrawal "+step.action, "withdrawal_id", id, "admin_id", adminID, "status", out.Status)
	return out, nil
}

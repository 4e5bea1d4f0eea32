package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/sipadmin/funds-engine/internal/ledger"
	"github.com/sipadmin/funds-engine/internal/metrics"
	"github.com/sipadmin/funds-engine/internal/model"
	"github.com/sipadmin/funds-engine/internal/repo"
)

// WalletStore is what the wallet service needs from persistence.
type WalletStore interface {
	repo.WalletRepository
	repo.OutboxRepository
	repo.BalanceCache
}

// WalletService handles admin adjustments and balance reads.
type WalletService struct {
	repo   WalletStore
	ledger ledger.Applier
	log    *zap.SugaredLogger
}

// NewWalletService returns WalletService.
func NewWalletService(r WalletStore, l ledger.Applier, logger *zap.SugaredLogger) *WalletService {
	return &WalletService{repo: r, ledger: l, log: logger}
}

// Adjustment is an admin credit (positive) or debit (negative).
type Adjustment struct {
	UserID         uint64
	Amount         decimal.Decimal
	Reason         string
	AdminID        uint64
	IdempotencyKey string
}

// Adjust applies an admin adjustment. Replaying an idempotency key returns
// the original ledger row and changes nothing.
func (s *WalletService) Adjust(ctx context.Context, a Adjustment) (*model.Transaction, error) {
	if a.UserID == 0 || a.AdminID == 0 {
		return nil, fmt.Errorf("%w: user and admin are required", ErrInvalidRequest)
	}
	if a.Amount.IsZero() {
		return nil, ErrInvalidAmount
	}
	var out *model.Transaction
	err := s.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		t, err := s.ledger.Apply(ctx, tx, ledger.Entry{
			UserID:         a.UserID,
			Amount:         a.Amount,
			Type:           model.TxAdminAdjustment,
			Description:    a.Reason,
			Reference:      model.AdminRef(a.AdminID),
			IdempotencyKey: a.IdempotencyKey,
		})
		if err != nil {
			return err
		}
		out = t
		if t.Replayed {
			return nil
		}
		return notify(ctx, s.repo, tx, "Wallet", a.UserID, "WalletAdjusted", map[string]interface{}{
			"user_id":       a.UserID,
			"admin_id":      a.AdminID,
			"amount":        a.Amount,
			"balance_after": t.BalanceAfter,
			"reason":        a.Reason,
		})
	})
	if err != nil {
		err = classify("adjust wallet", a.UserID, err)
		if errors.Is(err, ErrExecutionFailed) {
			s.log.Errorw("wallet adjustment failed", "user_id", a.UserID, "error", err)
		}
		return nil, err
	}
	if out.Replayed {
		s.log.Infow("wallet adjustment replayed", "user_id", a.UserID, "idempotency_key", a.IdempotencyKey)
		return out, nil
	}
	if err := s.repo.InvalidateBalance(ctx, a.UserID); err != nil {
		s.log.Warnw("invalidate balance", "user_id", a.UserID, "error", err)
	}
	metrics.LedgerEntries.WithLabelValues(string(model.TxAdminAdjustment)).Inc()
	s.log.Infow("wallet adjusted", "user_id", a.UserID, "admin_id", a.AdminID,
		"amount", a.Amount.String(), "balance_after", out.BalanceAfter.String())
	return out, nil
}

// GetBalance returns the wallet balance, served from Redis when cached.
func (s *WalletService) GetBalance(ctx context.Context, userID uint64) (decimal.Decimal, error) {
	bal, err := s.repo.GetCachedBalance(ctx, userID)
	if err == nil {
		return bal, nil
	}
	if !errors.Is(err, redis.Nil) {
		s.log.Warnw("balance cache read", "user_id", userID, "error", err)
	}
	w, err := s.repo.GetWallet(ctx, userID)
	if err != nil {
		return decimal.Zero, classify("get balance", userID, err)
	}
	if err := s.repo.CacheBalance(ctx, userID, w.Balance); err != nil {
		s.log.Warnw("balance cache write", "user_id", userID, "error", err)
	}
	return w.Balance, nil
}

// GetHistory fetches the ledger of a user, oldest first.
func (s *WalletService) GetHistory(ctx context.Context, userID uint64, limit int, since time.Time) ([]model.Transaction, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	txs, err := s.repo.ListTransactions(ctx, userID, limit, since)
	if err != nil {
		return nil, classify("get history", userID, err)
	}
	return txs, nil
}

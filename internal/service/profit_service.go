package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/sipadmin/funds-engine/internal/config"
	"github.com/sipadmin/funds-engine/internal/ledger"
	"github.com/sipadmin/funds-engine/internal/metrics"
	"github.com/sipadmin/funds-engine/internal/model"
	"github.com/sipadmin/funds-engine/internal/repo"
)

// amountScale matches the numeric(20,8) money columns. Shares are rounded to
// it once, right before they are stored.
const amountScale = 8

var hundred = decimal.NewFromInt(100)

// ProfitStore is what the profit service needs from persistence.
type ProfitStore interface {
	DB(ctx context.Context) *gorm.DB
	repo.ProfitRepository
	repo.BonusRepository
	repo.OutboxRepository
	repo.BalanceCache
}

// ProfitService splits a period's pool among active subscribers and pays it
// out in a separate step.
type ProfitService struct {
	repo           ProfitStore
	ledger         ledger.Applier
	log            *zap.SugaredLogger
	defaultPercent decimal.Decimal
	periodFactor   decimal.Decimal
	now            func() time.Time
}

// NewProfitService returns ProfitService.
func NewProfitService(r ProfitStore, l ledger.Applier, cfg config.ProfitConfig, logger *zap.SugaredLogger) *ProfitService {
	return &ProfitService{
		repo:           r,
		ledger:         l,
		log:            logger,
		defaultPercent: cfg.DefaultSharePercent,
		periodFactor:   decimal.NewFromInt(cfg.InvestmentPeriodFactor),
		now:            time.Now,
	}
}

// PeriodDetails is a period with its distribution rows.
type PeriodDetails struct {
	Period *model.ProfitShare      `json:"period"`
	Total  decimal.Decimal         `json:"total"`
	Rows   []model.UserProfitShare `json:"rows"`
}

// DistributionResult summarises a payout.
type DistributionResult struct {
	PeriodID  uint64          `json:"period_id"`
	UsersPaid int             `json:"users_paid"`
	Total     decimal.Decimal `json:"total"`
}

// CreatePeriod stores a pending period.
func (s *ProfitService) CreatePeriod(ctx context.Context, name string, start, end time.Time, netProfit, pool decimal.Decimal) (*model.ProfitShare, error) {
	switch {
	case name == "":
		return nil, fmt.Errorf("%w: name is required", ErrInvalidPeriod)
	case end.Before(start):
		return nil, fmt.Errorf("%w: end date before start date", ErrInvalidPeriod)
	case !pool.IsPositive():
		return nil, fmt.Errorf("%w: pool must be positive", ErrInvalidPeriod)
	case pool.GreaterThan(netProfit):
		return nil, fmt.Errorf("%w: pool %s, net profit %s", ErrPoolExceedsProfit, pool, netProfit)
	}
	p := &model.ProfitShare{
		Name:      name,
		StartDate: start,
		EndDate:   end,
		NetProfit: netProfit,
		TotalPool: pool,
		Status:    model.ProfitPending,
	}
	if err := s.repo.CreateProfitShare(ctx, s.repo.DB(ctx), p); err != nil {
		return nil, classify("create profit share", 0, err)
	}
	return p, nil
}

// Calculate computes every eligible subscription's share of a pending
// period, replacing rows from any earlier calculation, and marks the period
// calculated.
func (s *ProfitService) Calculate(ctx context.Context, periodID uint64) (*PeriodDetails, error) {
	var out *PeriodDetails
	err := s.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		p, err := s.repo.GetProfitShareForUpdate(ctx, tx, periodID)
		if err != nil {
			return err
		}
		if p.Status != model.ProfitPending {
			return fmt.Errorf("profit share %d is %s: %w", periodID, p.Status, ErrInvalidState)
		}
		subs, err := s.repo.ListEligibleSubscriptions(ctx, tx, p.EndDate)
		if err != nil {
			return err
		}
		rows, total, err := s.shares(p, subs)
		if err != nil {
			return err
		}
		if err := s.repo.DeleteDistributions(ctx, tx, p.ID); err != nil {
			return err
		}
		if err := s.repo.CreateDistributions(ctx, tx, rows); err != nil {
			return err
		}
		now := s.now()
		if err := s.repo.SetProfitShareStatus(ctx, tx, p.ID, model.ProfitPending, model.ProfitCalculated, now); err != nil {
			return err
		}
		p.Status = model.ProfitCalculated
		p.CalculatedAt = &now
		out = &PeriodDetails{Period: p, Total: total, Rows: rows}
		return nil
	})
	if err != nil {
		return nil, s.fail("calculate", periodID, err)
	}
	metrics.ProfitShareOps.WithLabelValues("calculate", "ok").Inc()
	s.log.Infow("profit share calculated", "period_id", periodID, "rows", len(out.Rows), "total", out.Total.String())
	return out, nil
}

// shares applies share = pool * investment / totalInvestment * percent.
// The single division happens last so equal inputs give exact results.
func (s *ProfitService) shares(p *model.ProfitShare, subs []model.Subscription) ([]model.UserProfitShare, decimal.Decimal, error) {
	type basis struct {
		sub        model.Subscription
		investment decimal.Decimal
		percent    decimal.Decimal
	}
	bases := make([]basis, 0, len(subs))
	totalInvestment := decimal.Zero
	for _, sub := range subs {
		inv := sub.Plan.Amount.Mul(s.periodFactor)
		pct := s.defaultPercent
		if sub.Plan.ProfitSharePercent.Valid {
			pct = sub.Plan.ProfitSharePercent.Decimal
		}
		bases = append(bases, basis{sub: sub, investment: inv, percent: pct.Div(hundred)})
		totalInvestment = totalInvestment.Add(inv)
	}
	if !totalInvestment.IsPositive() {
		return nil, decimal.Zero, fmt.Errorf("profit share %d: %w", p.ID, ErrNoEligibleInvestment)
	}

	rows := make([]model.UserProfitShare, 0, len(bases))
	total := decimal.Zero
	for _, b := range bases {
		share := p.TotalPool.Mul(b.investment).Mul(b.percent).Div(totalInvestment).Round(amountScale)
		if !share.IsPositive() {
			continue
		}
		rows = append(rows, model.UserProfitShare{
			ProfitShareID:  p.ID,
			UserID:         b.sub.UserID,
			SubscriptionID: b.sub.ID,
			Amount:         share,
		})
		total = total.Add(share)
	}
	return rows, total, nil
}

// Distribute credits every calculated row of a period and marks it
// distributed. Either every row is paid or none is.
func (s *ProfitService) Distribute(ctx context.Context, periodID uint64) (*DistributionResult, error) {
	res := &DistributionResult{PeriodID: periodID}
	var users []uint64
	err := s.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		res.UsersPaid, res.Total, users = 0, decimal.Zero, users[:0]
		p, err := s.repo.GetProfitShareForUpdate(ctx, tx, periodID)
		if err != nil {
			return err
		}
		if p.Status != model.ProfitCalculated {
			return fmt.Errorf("profit share %d is %s: %w", periodID, p.Status, ErrInvalidState)
		}
		rows, err := s.repo.ListDistributions(ctx, tx, p.ID)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return fmt.Errorf("profit share %d: %w", periodID, ErrNoDistributions)
		}
		for _, row := range rows {
			if err := s.pay(ctx, tx, p, row); err != nil {
				return fmt.Errorf("pay row %d: %w", row.ID, err)
			}
			res.UsersPaid++
			res.Total = res.Total.Add(row.Amount)
			users = append(users, row.UserID)
		}
		return s.repo.SetProfitShareStatus(ctx, tx, p.ID, model.ProfitCalculated, model.ProfitDistributed, s.now())
	})
	if err != nil {
		return nil, s.fail("distribute", periodID, err)
	}
	if err := s.repo.InvalidateBalance(ctx, users...); err != nil {
		s.log.Warnw("invalidate balances", "period_id", periodID, "error", err)
	}
	metrics.ProfitShareOps.WithLabelValues("distribute", "ok").Inc()
	metrics.ProfitDistributed.Add(res.Total.InexactFloat64())
	metrics.LedgerEntries.WithLabelValues(string(model.TxBonusCredit)).Add(float64(res.UsersPaid))
	s.log.Infow("profit share distributed", "period_id", periodID, "users", res.UsersPaid, "total", res.Total.String())
	return res, nil
}

func (s *ProfitService) pay(ctx context.Context, tx *gorm.DB, p *model.ProfitShare, row model.UserProfitShare) error {
	bonus := &model.BonusTransaction{
		UserID:      row.UserID,
		Type:        model.BonusProfitShare,
		Amount:      row.Amount,
		Multiplier:  decimal.NewFromInt(1),
		Description: fmt.Sprintf("Profit share for %s", p.Name),
	}
	if err := s.repo.CreateBonus(ctx, tx, bonus); err != nil {
		return err
	}
	t, err := s.ledger.Apply(ctx, tx, ledger.Entry{
		UserID:      row.UserID,
		Amount:      row.Amount,
		Type:        model.TxBonusCredit,
		Description: bonus.Description,
		Reference:   model.BonusRef(bonus.ID),
	})
	if err != nil {
		return err
	}
	if err := s.repo.LinkBonusTransaction(ctx, tx, bonus.ID, t.ID); err != nil {
		return err
	}
	if err := s.repo.LinkDistributionBonus(ctx, tx, row.ID, bonus.ID); err != nil {
		return err
	}
	return notify(ctx, s.repo, tx, "ProfitShare", p.ID, "ProfitShareCredited", map[string]interface{}{
		"period_id": p.ID,
		"period":    p.Name,
		"user_id":   row.UserID,
		"amount":    row.Amount,
	})
}

// Reopen sends a calculated period back to pending so it can be recalculated.
func (s *ProfitService) Reopen(ctx context.Context, periodID uint64) (*model.ProfitShare, error) {
	var out *model.ProfitShare
	err := s.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		p, err := s.repo.GetProfitShareForUpdate(ctx, tx, periodID)
		if err != nil {
			return err
		}
		if p.Status != model.ProfitCalculated {
			return fmt.Errorf("profit share %d is %s: %w", periodID, p.Status, ErrInvalidState)
		}
		if err := s.repo.SetProfitShareStatus(ctx, tx, p.ID, model.ProfitCalculated, model.ProfitPending, s.now()); err != nil {
			return err
		}
		p.Status = model.ProfitPending
		p.CalculatedAt = nil
		out = p
		return nil
	})
	if err != nil {
		return nil, s.fail("reopen", periodID, err)
	}
	metrics.ProfitShareOps.WithLabelValues("reopen", "ok").Inc()
	return out, nil
}

// GetPeriod returns a period and its current rows.
func (s *ProfitService) GetPeriod(ctx context.Context, periodID uint64) (*PeriodDetails, error) {
	db := s.repo.DB(ctx)
	p, err := s.repo.GetProfitShare(ctx, db, periodID)
	if err != nil {
		return nil, classify("get profit share", periodID, err)
	}
	rows, err := s.repo.ListDistributions(ctx, db, periodID)
	if err != nil {
		return nil, classify("get profit share", periodID, err)
	}
	total := decimal.Zero
	for _, r := range rows {
		total = total.Add(r.Amount)
	}
	return &PeriodDetails{Period: p, Total: total, Rows: rows}, nil
}

func (s *ProfitService) fail(phase string, periodID uint64, err error) error {
	err = classify(phase+" profit share", periodID, err)
	if errors.Is(err, ErrExecutionFailed) {
		metrics.ProfitShareOps.WithLabelValues(phase, "failed").Inc()
		s.log.Errorw("profit share operation failed", "phase", phase, "period_id", periodID, "error", err)
	} else {
		metrics.ProfitShareOps.WithLabelValues(phase, "rejected").Inc()
		s.log.Infow("profit share operation rejected", "phase", phase, "period_id", periodID, "reason", err.Error())
	}
	return err
}

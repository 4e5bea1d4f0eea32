package service

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sipadmin/funds-engine/internal/config"
	"github.com/sipadmin/funds-engine/internal/model"
)

var (
	periodStart = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	periodEnd   = time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC)
)

func newProfitService(f *fixture) *ProfitService {
	return NewProfitService(f.repo, f.ledger, config.Default().Profit, f.log)
}

func seedPlan(t *testing.T, f *fixture, amount int64, percent *int64) model.Plan {
	t.Helper()
	p := model.Plan{Name: "SIP", Amount: dec(amount)}
	if percent != nil {
		p.ProfitSharePercent = decimal.NewNullDecimal(dec(*percent))
	}
	require.NoError(t, f.db.Create(&p).Error)
	return p
}

func seedSubscription(t *testing.T, f *fixture, userID uint64, plan model.Plan, status model.SubscriptionStatus, start time.Time) {
	t.Helper()
	require.NoError(t, f.db.Create(&model.Subscription{
		UserID: userID, PlanID: plan.ID, Status: status, StartDate: start,
	}).Error)
}

func seedPeriod(t *testing.T, svc *ProfitService, f *fixture) *model.ProfitShare {
	t.Helper()
	p, err := svc.CreatePeriod(f.ctx, "Q1 2026", periodStart, periodEnd, dec(20000), dec(10000))
	require.NoError(t, err)
	return p
}

func pct(v int64) *int64 { return &v }

func TestProfitService_Scenario(t *testing.T) {
	f := newFixture(t)
	svc := newProfitService(f)
	plan := seedPlan(t, f, 1000, pct(5))
	seedSubscription(t, f, 1, plan, model.SubscriptionActive, periodStart)
	seedSubscription(t, f, 2, plan, model.SubscriptionActive, periodStart)
	p := seedPeriod(t, svc, f)

	calc, err := svc.Calculate(f.ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, calc.Rows, 2)
	for _, r := range calc.Rows {
		assert.True(t, r.Amount.Equal(dec(250)), "row %d: %s", r.UserID, r.Amount)
	}
	assert.True(t, calc.Total.Equal(dec(500)))
	assert.Equal(t, model.ProfitCalculated, calc.Period.Status)

	res, err := svc.Distribute(f.ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, res.UsersPaid)
	assert.True(t, res.Total.Equal(dec(500)))

	assert.True(t, balanceOf(t, f.db, 1).Equal(dec(250)))
	assert.True(t, balanceOf(t, f.db, 2).Equal(dec(250)))
	assert.EqualValues(t, 2, count(t, f.db, &model.BonusTransaction{}, "type = ?", model.BonusProfitShare))
	assert.EqualValues(t, 2, count(t, f.db, &model.OutboxEvent{}, "event_type = ?", "ProfitShareCredited"))

	got, err := svc.GetPeriod(f.ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ProfitDistributed, got.Period.Status)
	assert.NotNil(t, got.Period.DistributedAt)
	for _, r := range got.Rows {
		assert.NotNil(t, r.BonusTransactionID)
	}
}

func TestProfitService_DefaultPercent(t *testing.T) {
	f := newFixture(t)
	svc := newProfitService(f)
	custom := seedPlan(t, f, 1000, pct(10))
	fallback := seedPlan(t, f, 1000, nil)
	seedSubscription(t, f, 1, custom, model.SubscriptionActive, periodStart)
	seedSubscription(t, f, 2, fallback, model.SubscriptionActive, periodStart)
	p := seedPeriod(t, svc, f)

	calc, err := svc.Calculate(f.ctx, p.ID)
	require.NoError(t, err)
	byUser := map[uint64]decimal.Decimal{}
	for _, r := range calc.Rows {
		byUser[r.UserID] = r.Amount
	}
	assert.True(t, byUser[1].Equal(dec(500)), byUser[1].String())
	assert.True(t, byUser[2].Equal(dec(250)), byUser[2].String())
}

func TestProfitService_EligibilityFilter(t *testing.T) {
	f := newFixture(t)
	svc := newProfitService(f)
	plan := seedPlan(t, f, 1000, pct(5))
	seedSubscription(t, f, 1, plan, model.SubscriptionActive, periodStart)
	seedSubscription(t, f, 2, plan, model.SubscriptionPaused, periodStart)
	seedSubscription(t, f, 3, plan, model.SubscriptionCancelled, periodStart)
	seedSubscription(t, f, 4, plan, model.SubscriptionActive, periodEnd.Add(48*time.Hour))
	p := seedPeriod(t, svc, f)

	calc, err := svc.Calculate(f.ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, calc.Rows, 1)
	assert.EqualValues(t, 1, calc.Rows[0].UserID)
	// sole subscriber: 10000 * 1 * 5%
	assert.True(t, calc.Rows[0].Amount.Equal(dec(500)))
}

func TestProfitService_RecalculateReplacesRows(t *testing.T) {
	f := newFixture(t)
	svc := newProfitService(f)
	plan := seedPlan(t, f, 1000, pct(5))
	seedSubscription(t, f, 1, plan, model.SubscriptionActive, periodStart)
	seedSubscription(t, f, 2, plan, model.SubscriptionActive, periodStart)
	p := seedPeriod(t, svc, f)

	// leftovers of an interrupted earlier run
	require.NoError(t, f.db.Create(&model.UserProfitShare{
		ProfitShareID: p.ID, UserID: 9, SubscriptionID: 99, Amount: dec(1),
	}).Error)

	first, err := svc.Calculate(f.ctx, p.ID)
	require.NoError(t, err)

	_, err = svc.Calculate(f.ctx, p.ID)
	assert.ErrorIs(t, err, ErrInvalidState)

	reopened, err := svc.Reopen(f.ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ProfitPending, reopened.Status)
	assert.Nil(t, reopened.CalculatedAt)

	second, err := svc.Calculate(f.ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, first.Total.Equal(second.Total))
	assert.Len(t, second.Rows, 2)
	assert.EqualValues(t, 2, count(t, f.db, &model.UserProfitShare{}, "profit_share_id = ?", p.ID))
	assert.EqualValues(t, 0, count(t, f.db, &model.UserProfitShare{}, "user_id = ?", 9))

	// a new subscriber shows up on the next recalculation
	bigger := seedPlan(t, f, 2000, pct(5))
	seedSubscription(t, f, 3, bigger, model.SubscriptionActive, periodStart)
	_, err = svc.Reopen(f.ctx, p.ID)
	require.NoError(t, err)
	third, err := svc.Calculate(f.ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, third.Rows, 3)
	byUser := map[uint64]decimal.Decimal{}
	for _, r := range third.Rows {
		byUser[r.UserID] = r.Amount
	}
	assert.True(t, byUser[1].Equal(dec(125)))
	assert.True(t, byUser[2].Equal(dec(125)))
	assert.True(t, byUser[3].Equal(dec(250)))
	assert.EqualValues(t, 3, count(t, f.db, &model.UserProfitShare{}, "profit_share_id = ?", p.ID))
}

func TestProfitService_NoEligibleInvestment(t *testing.T) {
	f := newFixture(t)
	svc := newProfitService(f)
	p := seedPeriod(t, svc, f)

	_, err := svc.Calculate(f.ctx, p.ID)
	assert.ErrorIs(t, err, ErrNoEligibleInvestment)

	got, err := svc.GetPeriod(f.ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ProfitPending, got.Period.Status)
	assert.Empty(t, got.Rows)
}

func TestProfitService_NoDistributions(t *testing.T) {
	f := newFixture(t)
	svc := newProfitService(f)
	// investment exists but every share rounds to nothing
	plan := seedPlan(t, f, 1000, pct(0))
	seedSubscription(t, f, 1, plan, model.SubscriptionActive, periodStart)
	p := seedPeriod(t, svc, f)

	calc, err := svc.Calculate(f.ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, calc.Rows)

	_, err = svc.Distribute(f.ctx, p.ID)
	assert.ErrorIs(t, err, ErrNoDistributions)
}

func TestProfitService_DistributeOnce(t *testing.T) {
	f := newFixture(t)
	svc := newProfitService(f)
	plan := seedPlan(t, f, 1000, pct(5))
	seedSubscription(t, f, 1, plan, model.SubscriptionActive, periodStart)
	p := seedPeriod(t, svc, f)

	_, err := svc.Distribute(f.ctx, p.ID)
	assert.ErrorIs(t, err, ErrInvalidState, "pending period cannot be distributed")

	_, err = svc.Calculate(f.ctx, p.ID)
	require.NoError(t, err)
	_, err = svc.Distribute(f.ctx, p.ID)
	require.NoError(t, err)

	_, err = svc.Distribute(f.ctx, p.ID)
	assert.ErrorIs(t, err, ErrInvalidState)
	_, err = svc.Reopen(f.ctx, p.ID)
	assert.ErrorIs(t, err, ErrInvalidState)
	_, err = svc.Calculate(f.ctx, p.ID)
	assert.ErrorIs(t, err, ErrInvalidState)

	assert.EqualValues(t, 1, count(t, f.db, &model.Transaction{}))
	assert.True(t, balanceOf(t, f.db, 1).Equal(dec(500)))
}

func TestProfitService_DistributeRollback(t *testing.T) {
	f := newFixture(t)
	svc := NewProfitService(f.repo, &failingApplier{next: f.ledger, after: 1}, config.Default().Profit, f.log)
	plan := seedPlan(t, f, 1000, pct(5))
	seedSubscription(t, f, 1, plan, model.SubscriptionActive, periodStart)
	seedSubscription(t, f, 2, plan, model.SubscriptionActive, periodStart)
	p := seedPeriod(t, svc, f)
	_, err := svc.Calculate(f.ctx, p.ID)
	require.NoError(t, err)

	_, err = svc.Distribute(f.ctx, p.ID)
	assert.ErrorIs(t, err, ErrExecutionFailed)

	got, err := svc.GetPeriod(f.ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ProfitCalculated, got.Period.Status)
	for _, r := range got.Rows {
		assert.Nil(t, r.BonusTransactionID)
	}
	assert.EqualValues(t, 0, count(t, f.db, &model.Transaction{}))
	assert.EqualValues(t, 0, count(t, f.db, &model.BonusTransaction{}))
	assert.EqualValues(t, 0, count(t, f.db, &model.Wallet{}))
}

func TestProfitService_CreatePeriodValidation(t *testing.T) {
	f := newFixture(t)
	svc := newProfitService(f)

	_, err := svc.CreatePeriod(f.ctx, "Q1", periodStart, periodEnd, dec(100), dec(200))
	assert.ErrorIs(t, err, ErrPoolExceedsProfit)

	_, err = svc.CreatePeriod(f.ctx, "Q1", periodEnd, periodStart, dec(100), dec(50))
	assert.ErrorIs(t, err, ErrInvalidPeriod)

	_, err = svc.CreatePeriod(f.ctx, "Q1", periodStart, periodEnd, dec(100), dec(0))
	assert.ErrorIs(t, err, ErrInvalidPeriod)

	_, err = svc.CreatePeriod(f.ctx, "", periodStart, periodEnd, dec(100), dec(50))
	assert.ErrorIs(t, err, ErrInvalidPeriod)

	_, err = svc.GetPeriod(f.ctx, 404)
	assert.ErrorIs(t, err, ErrNotFound)
}

package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sipadmin/funds-engine/internal/model"
)

func seedPayment(t *testing.T, f *fixture, userID uint64, status model.PaymentStatus) *model.Payment {
	t.Helper()
	p := &model.Payment{UserID: userID, Amount: dec(1000), Status: status}
	require.NoError(t, f.db.Create(p).Error)
	return p
}

func TestPaymentService_RefundReversesPrize(t *testing.T) {
	f := newFixture(t)
	pay := seedPayment(t, f, 1, model.PaymentPaid)

	draws := NewDrawService(f.repo, f.ledger, f.log)
	d, err := draws.CreateDraw(f.ctx, "draw", time.Now(), model.PrizeStructure{{Rank: 1, Count: 1, Amount: dec(1000)}})
	require.NoError(t, err)
	_, err = draws.AddEntry(f.ctx, d.ID, 1, pay.ID)
	require.NoError(t, err)
	winners, err := draws.ExecuteDraw(f.ctx, d.ID)
	require.NoError(t, err)
	require.Len(t, winners, 1)

	// the user spends most of the prize before the refund
	_, err = NewWalletService(f.repo, f.ledger, f.log).Adjust(f.ctx, Adjustment{UserID: 1, Amount: dec(-800), Reason: "spent", AdminID: 9})
	require.NoError(t, err)

	svc := NewPaymentService(f.repo, f.ledger, f.log)
	res, err := svc.Refund(f.ctx, pay.ID, 9)
	require.NoError(t, err)
	assert.Equal(t, 1, res.BonusesReversed)
	assert.True(t, res.AmountReversed.Equal(dec(1000)))
	assert.Equal(t, model.PaymentRefunded, res.Payment.Status)

	assert.True(t, balanceOf(t, f.db, 1).Equal(dec(-800)))

	var b model.BonusTransaction
	require.NoError(t, f.db.First(&b, winners[0].BonusID).Error)
	require.NotNil(t, b.ReversedAt)
	require.NotNil(t, b.ReversalTransactionID)

	var rev model.Transaction
	require.NoError(t, f.db.First(&rev, *b.ReversalTransactionID).Error)
	assert.Equal(t, model.TxReversal, rev.Type)
	assert.True(t, rev.Amount.Equal(dec(-1000)))
	assert.Equal(t, model.BonusRef(b.ID), rev.Reference)

	var stored model.Payment
	require.NoError(t, f.db.First(&stored, pay.ID).Error)
	assert.Equal(t, model.PaymentRefunded, stored.Status)
	require.NotNil(t, stored.RefundedBy)
	assert.EqualValues(t, 9, *stored.RefundedBy)

	_, err = svc.Refund(f.ctx, pay.ID, 9)
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.EqualValues(t, 1, count(t, f.db, &model.Transaction{}, "type = ?", model.TxReversal))
}

func TestPaymentService_RefundWithoutBonuses(t *testing.T) {
	f := newFixture(t)
	pay := seedPayment(t, f, 1, model.PaymentPaid)
	svc := NewPaymentService(f.repo, f.ledger, f.log)

	res, err := svc.Refund(f.ctx, pay.ID, 9)
	require.NoError(t, err)
	assert.Zero(t, res.BonusesReversed)
	assert.EqualValues(t, 1, count(t, f.db, &model.OutboxEvent{}, "event_type = ?", "PaymentRefunded"))
}

func TestPaymentService_RefundRequiresPaid(t *testing.T) {
	f := newFixture(t)
	svc := NewPaymentService(f.repo, f.ledger, f.log)

	for _, st := range []model.PaymentStatus{model.PaymentPending, model.PaymentFailed, model.PaymentRefunded} {
		pay := seedPayment(t, f, 1, st)
		_, err := svc.Refund(f.ctx, pay.ID, 9)
		assert.ErrorIs(t, err, ErrInvalidState, string(st))
	}

	_, err := svc.Refund(f.ctx, 999, 9)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPaymentService_RefundRollback(t *testing.T) {
	f := newFixture(t)
	pay := seedPayment(t, f, 1, model.PaymentPaid)
	draws := NewDrawService(f.repo, f.ledger, f.log)
	d, err := draws.CreateDraw(f.ctx, "draw", time.Now(), model.PrizeStructure{{Rank: 1, Count: 1, Amount: dec(300)}})
	require.NoError(t, err)
	_, err = draws.AddEntry(f.ctx, d.ID, 1, pay.ID)
	require.NoError(t, err)
	_, err = draws.ExecuteDraw(f.ctx, d.ID)
	require.NoError(t, err)

	svc := NewPaymentService(f.repo, &failingApplier{next: f.ledger}, f.log)
	_, err = svc.Refund(f.ctx, pay.ID, 9)
	assert.ErrorIs(t, err, ErrExecutionFailed)

	var stored model.Payment
	require.NoError(t, f.db.First(&stored, pay.ID).Error)
	assert.Equal(t, model.PaymentPaid, stored.Status)
	assert.True(t, balanceOf(t, f.db, 1).Equal(dec(300)))
	assert.EqualValues(t, 0, count(t, f.db, &model.BonusTransaction{}, "reversed_at IS NOT NULL"))
}

package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sipadmin/funds-engine/internal/model"
	"github.com/sipadmin/funds-engine/internal/repo"
)

func seedWithdrawal(t *testing.T, f *fixture, userID uint64, amount int64) *model.Withdrawal {
	t.Helper()
	w := &model.Withdrawal{UserID: userID, Amount: dec(amount), Status: model.WithdrawalPending}
	require.NoError(t, f.db.Create(w).Error)
	return w
}

func TestWithdrawalService_ApproveComplete(t *testing.T) {
	f := newFixture(t)
	svc := NewWithdrawalService(f.repo, f.ledger, f.log)
	f.credit(t, 1, 500)
	w := seedWithdrawal(t, f, 1, 200)

	got, err := svc.Approve(f.ctx, w.ID, 9, "kyc ok")
	require.NoError(t, err)
	assert.Equal(t, model.WithdrawalApproved, got.Status)
	assert.Equal(t, "kyc ok", got.AdminNote)
	require.NotNil(t, got.ProcessedBy)
	assert.EqualValues(t, 9, *got.ProcessedBy)
	assert.True(t, balanceOf(t, f.db, 1).Equal(dec(300)))

	var debit model.Transaction
	require.NoError(t, f.db.Where("type = ?", model.TxDebit).First(&debit).Error)
	assert.True(t, debit.Amount.Equal(dec(-200)))
	assert.Equal(t, model.WithdrawalRef(w.ID), debit.Reference)

	got, err = svc.Complete(f.ctx, w.ID, 9, "")
	require.NoError(t, err)
	assert.Equal(t, model.WithdrawalCompleted, got.Status)
	assert.Equal(t, "kyc ok", got.AdminNote)
	assert.True(t, balanceOf(t, f.db, 1).Equal(dec(300)))

	_, err = svc.Fail(f.ctx, w.ID, 9, "")
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.EqualValues(t, 2, count(t, f.db, &model.OutboxEvent{}))
}

func TestWithdrawalService_FailCreditsBack(t *testing.T) {
	f := newFixture(t)
	svc := NewWithdrawalService(f.repo, f.ledger, f.log)
	f.credit(t, 1, 500)
	w := seedWithdrawal(t, f, 1, 200)

	_, err := svc.Approve(f.ctx, w.ID, 9, "")
	require.NoError(t, err)
	got, err := svc.Fail(f.ctx, w.ID, 9, "bank bounced")
	require.NoError(t, err)
	assert.Equal(t, model.WithdrawalFailed, got.Status)
	assert.True(t, balanceOf(t, f.db, 1).Equal(dec(500)))
	assert.EqualValues(t, 1, count(t, f.db, &model.Transaction{}, "type = ?", model.TxRefund))

	_, err = svc.Complete(f.ctx, w.ID, 9, "")
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestWithdrawalService_Reject(t *testing.T) {
	f := newFixture(t)
	svc := NewWithdrawalService(f.repo, f.ledger, f.log)
	w := seedWithdrawal(t, f, 1, 200)

	got, err := svc.Reject(f.ctx, w.ID, 9, "documents missing")
	require.NoError(t, err)
	assert.Equal(t, model.WithdrawalRejected, got.Status)
	assert.EqualValues(t, 0, count(t, f.db, &model.Transaction{}))

	_, err = svc.Approve(f.ctx, w.ID, 9, "")
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestWithdrawalService_ApproveInsufficientFunds(t *testing.T) {
	f := newFixture(t)
	svc := NewWithdrawalService(f.repo, f.ledger, f.log)
	f.credit(t, 1, 100)
	w := seedWithdrawal(t, f, 1, 200)

	_, err := svc.Approve(f.ctx, w.ID, 9, "")
	assert.ErrorIs(t, err, repo.ErrInsufficientFunds)

	var stored model.Withdrawal
	require.NoError(t, f.db.First(&stored, w.ID).Error)
	assert.Equal(t, model.WithdrawalPending, stored.Status)
	assert.True(t, balanceOf(t, f.db, 1).Equal(dec(100)))

	_, err = svc.Complete(f.ctx, w.ID, 9, "")
	assert.ErrorIs(t, err, ErrInvalidState)
	_, err = svc.Approve(f.ctx, 404, 9, "")
	assert.ErrorIs(t, err, ErrNotFound)
}

package service

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/sipadmin/funds-engine/internal/ledger"
	"github.com/sipadmin/funds-engine/internal/model"
	"github.com/sipadmin/funds-engine/internal/repo"
	"github.com/sipadmin/funds-engine/internal/testutil"
)

var errInjected = errors.New("injected ledger fault")

type fixture struct {
	ctx    context.Context
	db     *gorm.DB
	repo   *repo.Repository
	ledger *ledger.Writer
	log    *zap.SugaredLogger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewDB(t)
	log := zap.NewNop().Sugar()
	r := repo.NewRepository(db, nil, nil, log)
	return &fixture{
		ctx:    context.Background(),
		db:     db,
		repo:   r,
		ledger: ledger.NewWriter(r, log),
		log:    log,
	}
}

// failingApplier lets the first `after` entries through and fails the rest.
type failingApplier struct {
	next  ledger.Applier
	after int
	calls int
}

func (f *failingApplier) Apply(ctx context.Context, tx *gorm.DB, e ledger.Entry) (*model.Transaction, error) {
	f.calls++
	if f.calls > f.after {
		return nil, errInjected
	}
	return f.next.Apply(ctx, tx, e)
}

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func balanceOf(t *testing.T, db *gorm.DB, userID uint64) decimal.Decimal {
	t.Helper()
	var w model.Wallet
	err := db.Where("user_id = ?", userID).First(&w).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return decimal.Zero
	}
	require.NoError(t, err)
	return w.Balance
}

func count(t *testing.T, db *gorm.DB, m interface{}, where ...interface{}) int64 {
	t.Helper()
	q := db.Model(m)
	if len(where) > 0 {
		q = q.Where(where[0], where[1:]...)
	}
	var n int64
	require.NoError(t, q.Count(&n).Error)
	return n
}

// credit seeds a balance through the ledger.
func (f *fixture) credit(t *testing.T, userID uint64, amount int64) {
	t.Helper()
	_, err := f.ledger.ApplyEntry(f.ctx, ledger.Entry{
		UserID:    userID,
		Amount:    dec(amount),
		Type:      model.TxAdminAdjustment,
		Reference: model.AdminRef(1),
	})
	require.NoError(t, err)
}

func identityShuffle([]uint64) error { return nil }

// Package ledger is the only place wallet balances change. Every change locks
// the wallet row, moves the balance and appends a Transaction row inside the
// caller's database transaction, so the pair commits or rolls back together.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/sipadmin/funds-engine/internal/model"
	"github.com/sipadmin/funds-engine/internal/repo"
)

// ErrInvalidEntry means the entry itself is malformed.
var ErrInvalidEntry = errors.New("invalid ledger entry")

// Entry describes one balance change. Amount is signed: positive credits,
// negative debits.
type Entry struct {
	UserID      uint64
	Amount      decimal.Decimal
	Type        model.TransactionType
	Description string
	Reference   model.Reference
	// AllowNegative lets a debit take the balance below zero. Only bonus
	// reversals set it.
	AllowNegative bool
	// IdempotencyKey, when set, makes a repeated entry return the first result
	// with Replayed set.
	IdempotencyKey string
}

// Applier applies an entry inside an open transaction.
type Applier interface {
	Apply(ctx context.Context, tx *gorm.DB, e Entry) (*model.Transaction, error)
}

// Writer implements Applier on top of the wallet repository.
type Writer struct {
	repo repo.WalletRepository
	log  *zap.SugaredLogger
}

// NewWriter returns Writer.
func NewWriter(r repo.WalletRepository, logger *zap.SugaredLogger) *Writer {
	return &Writer{repo: r, log: logger}
}

// Apply locks the user's wallet, checks a debit against the locked balance,
// writes the new balance and appends the ledger row. It must run inside tx;
// the caller owns commit and rollback.
func (w *Writer) Apply(ctx context.Context, tx *gorm.DB, e Entry) (*model.Transaction, error) {
	if err := validate(e); err != nil {
		return nil, err
	}

	if e.Amount.IsPositive() {
		if err := w.repo.EnsureWallet(ctx, tx, e.UserID); err != nil {
			return nil, fmt.Errorf("ensure wallet %d: %w", e.UserID, err)
		}
	}
	wallet, err := w.repo.GetWalletForUpdate(ctx, tx, e.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repo.ErrInsufficientFunds
		}
		return nil, fmt.Errorf("lock wallet %d: %w", e.UserID, err)
	}

	// The key is checked under the wallet lock so a concurrent entry with the
	// same key is either visible here or still waiting for the lock.
	var key *string
	if e.IdempotencyKey != "" {
		existed, prev, err := w.repo.TxExists(ctx, tx, e.UserID, e.IdempotencyKey, e.Type)
		if err != nil {
			return nil, err
		}
		if existed {
			prev.Replayed = true
			return prev, nil
		}
		k := e.IdempotencyKey
		key = &k
	}

	newBal := wallet.Balance.Add(e.Amount)
	if newBal.IsNegative() && e.Amount.IsNegative() && !e.AllowNegative {
		return nil, repo.ErrInsufficientFunds
	}
	if err := w.repo.UpdateWallet(ctx, tx, wallet.ID, newBal, wallet.Version); err != nil {
		return nil, fmt.Errorf("update wallet %d: %w", wallet.ID, err)
	}

	t := &model.Transaction{
		UserID:         e.UserID,
		WalletID:       wallet.ID,
		Type:           e.Type,
		Amount:         e.Amount,
		BalanceBefore:  wallet.Balance,
		BalanceAfter:   newBal,
		Description:    e.Description,
		Reference:      e.Reference,
		IdempotencyKey: key,
	}
	if err := w.repo.CreateTransaction(ctx, tx, t); err != nil {
		return nil, fmt.Errorf("insert transaction: %w", err)
	}
	w.log.Debugw("ledger entry applied",
		"user_id", e.UserID, "type", e.Type, "amount", e.Amount.String(),
		"balance_after", newBal.String(), "reference", e.Reference.String())
	return t, nil
}

// ApplyEntry runs Apply in its own transaction.
func (w *Writer) ApplyEntry(ctx context.Context, e Entry) (*model.Transaction, error) {
	var out *model.Transaction
	err := w.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		t, err := w.Apply(ctx, tx, e)
		if err != nil {
			return err
		}
		out = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func validate(e Entry) error {
	if e.UserID == 0 {
		return fmt.Errorf("%w: missing user", ErrInvalidEntry)
	}
	if e.Amount.IsZero() {
		return fmt.Errorf("%w: zero amount", ErrInvalidEntry)
	}
	if !e.Type.Valid() {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidEntry, e.Type)
	}
	if err := e.Reference.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}
	return nil
}

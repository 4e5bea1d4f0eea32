package service

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/sipadmin/funds-engine/internal/ledger"
	"github.com/sipadmin/funds-engine/internal/repo"
)

// Validation errors. They are safe to show to an admin as-is.
var (
	ErrInvalidState            = errors.New("operation not allowed in current status")
	ErrInsufficientEntries     = errors.New("not enough entries to fulfill the prize structure")
	ErrInsufficientUniqueUsers = errors.New("not enough unique users to fulfill the prize structure")
	ErrNoEligibleInvestment    = errors.New("no eligible investment to distribute profit against")
	ErrNoDistributions         = errors.New("no calculated distributions to pay out")
	ErrNotFound                = errors.New("not found")
	ErrInvalidAmount           = errors.New("amount must be non-zero")
	ErrInvalidPrizeStructure   = errors.New("invalid prize structure")
	ErrInvalidPeriod           = errors.New("invalid profit share period")
	ErrPoolExceedsProfit       = errors.New("distributable pool exceeds net profit")
	ErrDuplicateEntry          = errors.New("payment already entered in this draw")
	ErrInvalidRequest          = errors.New("invalid request")
)

// ErrExecutionFailed matches every *ExecutionError via errors.Is.
var ErrExecutionFailed = errors.New("execution failed")

// ExecutionError is an unexpected failure inside an atomic operation. The
// whole operation was rolled back.
type ExecutionError struct {
	Op  string
	ID  uint64
	Err error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s %d: %s: %v", e.Op, e.ID, ErrExecutionFailed, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

func (e *ExecutionError) Is(target error) bool { return target == ErrExecutionFailed }

// IsValidation reports whether err is a "nothing to do" condition rather
// than an internal failure.
func IsValidation(err error) bool {
	for _, v := range []error{
		ErrInvalidState, ErrInsufficientEntries, ErrInsufficientUniqueUsers,
		ErrNoEligibleInvestment, ErrNoDistributions, ErrNotFound, ErrInvalidAmount,
		ErrInvalidPrizeStructure, ErrInvalidPeriod, ErrPoolExceedsProfit, ErrDuplicateEntry,
		ErrInvalidRequest, repo.ErrInsufficientFunds, ledger.ErrInvalidEntry,
	} {
		if errors.Is(err, v) {
			return true
		}
	}
	return false
}

// classify turns the error returned by a transaction into what callers see:
// validation errors pass through, record-not-found becomes ErrNotFound and
// anything else is wrapped in ExecutionError.
func classify(op string, id uint64, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s %d: %w", op, id, ErrNotFound)
	}
	if IsValidation(err) {
		return err
	}
	return &ExecutionError{Op: op, ID: id, Err: err}
}

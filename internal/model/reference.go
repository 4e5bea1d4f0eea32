package model

import "fmt"

// ReferenceKind enumerates the entities a ledger entry can point at.
type ReferenceKind string

const (
	RefBonusTransaction ReferenceKind = "bonus_transaction"
	RefPayment          ReferenceKind = "payment"
	RefAdmin            ReferenceKind = "admin"
	RefWithdrawal       ReferenceKind = "withdrawal"
)

// Reference is the cause of a ledger entry. Build it with one of the
// constructors below; the zero value is invalid.
type Reference struct {
	Kind ReferenceKind `gorm:"size:32;not null" json:"kind"`
	ID   uint64        `gorm:"not null" json:"id"`
}

func BonusRef(bonusID uint64) Reference {
	return Reference{Kind: RefBonusTransaction, ID: bonusID}
}

func PaymentRef(paymentID uint64) Reference {
	return Reference{Kind: RefPayment, ID: paymentID}
}

func AdminRef(adminID uint64) Reference {
	return Reference{Kind: RefAdmin, ID: adminID}
}

func WithdrawalRef(withdrawalID uint64) Reference {
	return Reference{Kind: RefWithdrawal, ID: withdrawalID}
}

// Validate rejects unknown kinds and missing ids.
func (r Reference) Validate() error {
	switch r.Kind {
	case RefBonusTransaction, RefPayment, RefAdmin, RefWithdrawal:
	default:
		return fmt.Errorf("unknown reference kind %q", r.Kind)
	}
	if r.ID == 0 {
		return fmt.Errorf("reference %s has no id", r.Kind)
	}
	return nil
}

func (r Reference) String() string { return fmt.Sprintf("%s:%d", r.Kind, r.ID) }

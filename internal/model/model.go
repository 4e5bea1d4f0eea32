// Package model holds the gorm models of the funds engine.
package model

// All lists every model for AutoMigrate.
func All() []interface{} {
	return []interface{}{
		&Wallet{}, &Transaction{}, &OutboxEvent{},
		&LuckyDraw{}, &LuckyDrawEntry{}, &BonusTransaction{},
		&ProfitShare{}, &UserProfitShare{},
		&Plan{}, &Subscription{}, &Payment{}, &Withdrawal{},
	}
}

// Package wallet holds rider balances. Every balance mutation is written in
// the same transaction as a ledger row, so the ledger is a complete audit
// trail and doubles as the idempotency record for ride and incident charges.
package wallet

import (
	"time"

	"github.com/google/uuid"
)

type Wallet struct {
	UserID uuid.UUID `db:"user_id"`
	// Balance is the pay-per-use balance in minor currency units. It may go
	// negative after ride settlement, but never below -Deposit.
	Balance int64
	// Deposit is a held amount required before using a bike, separate from
	// the pay-per-use balance.
	Deposit   int64
	Currency  string
	CreatedAt time.Time `db:"created_at"`
}

type EntryType string

const (
	EntryTopup              EntryType = "topup"
	EntryDepositRecharge    EntryType = "deposit_recharge"
	EntryRideCharge         EntryType = "ride_charge"
	EntrySubscriptionCharge EntryType = "subscription_charge"
	EntryIncidentRefund     EntryType = "incident_refund"
	EntryAdjustment         EntryType = "adjustment"
)

type LedgerEntry struct {
	ID     uuid.UUID `db:"id"`
	UserID uuid.UUID `db:"user_id"`
	Type   EntryType `db:"entry_type"`
	// Amount is signed: credits positive, debits negative.
	Amount       int64
	BalanceAfter int64 `db:"balance_after"`
	// RefID points at the ride, subscription or incident that caused the
	// entry. Unique per (entry_type, ref_id), which is what makes charges
	// replay-safe.
	RefID     *uuid.UUID `db:"ref_id"`
	CreatedAt time.Time  `db:"created_at"`
}

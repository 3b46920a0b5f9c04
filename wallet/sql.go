package wallet

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

var (
	ErrNotFound          = errors.New("wallet not found")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidAmount     = errors.New("amount must be positive")
)

type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// GetByUser fetches the user's wallet, creating an empty one on first use.
func (r *Repository) GetByUser(ctx context.Context, userID uuid.UUID) (Wallet, error) {
	var w Wallet
	err := r.db.GetContext(ctx, &w, getByUserQuery, userID)
	if errors.Is(err, sql.ErrNoRows) {
		err = r.db.GetContext(ctx, &w, createWalletQuery, userID)
	}
	return w, err
}

const getByUserQuery = `SELECT * FROM wallets WHERE user_id = $1`

const createWalletQuery = `
INSERT INTO wallets (user_id, balance, deposit, currency, created_at)
VALUES ($1, 0, 0, 'XOF', now())
ON CONFLICT (user_id) DO UPDATE SET user_id = EXCLUDED.user_id
RETURNING *
`

// Credit adds funds to the pay-per-use balance.
func (r *Repository) Credit(ctx context.Context, userID uuid.UUID, amount int64, entry EntryType, refID *uuid.UUID) (Wallet, error) {
	if amount <= 0 {
		return Wallet{}, ErrInvalidAmount
	}
	return r.apply(ctx, userID, amount, entry, refID, false)
}

// RechargeDeposit adds funds to the held deposit.
func (r *Repository) RechargeDeposit(ctx context.Context, userID uuid.UUID, amount int64) (Wallet, error) {
	if amount <= 0 {
		return Wallet{}, ErrInvalidAmount
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return Wallet{}, err
	}
	defer tx.Rollback()

	var w Wallet
	err = tx.GetContext(ctx, &w, rechargeDepositQuery, amount, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return Wallet{}, ErrNotFound
	}
	if err != nil {
		return Wallet{}, err
	}

	_, err = tx.ExecContext(ctx, insertLedgerQuery, uuid.New(), userID, EntryDepositRecharge, amount, w.Balance, nil)
	if err != nil {
		return Wallet{}, err
	}

	return w, tx.Commit()
}

const rechargeDepositQuery = `UPDATE wallets SET deposit = deposit + $1 WHERE user_id = $2 RETURNING *`

// DebitForRide settles a ride charge. It is idempotent on the ride ID and
// lets the balance go negative down to the held deposit: the ride has
// already happened, so the debt is recorded rather than refused.
func (r *Repository) DebitForRide(ctx context.Context, userID uuid.UUID, rideID uuid.UUID, amount int64) (Wallet, error) {
	if amount < 0 {
		return Wallet{}, ErrInvalidAmount
	}
	if amount == 0 {
		return r.GetByUser(ctx, userID)
	}
	return r.apply(ctx, userID, -amount, EntryRideCharge, &rideID, true)
}

// apply performs a balance mutation plus ledger insert in one transaction.
// With allowDebt the floor is -deposit instead of zero.
func (r *Repository) apply(ctx context.Context, userID uuid.UUID, amount int64, entry EntryType, refID *uuid.UUID, allowDebt bool) (Wallet, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return Wallet{}, err
	}
	defer tx.Rollback()

	var w Wallet
	err = tx.GetContext(ctx, &w, lockWalletQuery, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return Wallet{}, ErrNotFound
	}
	if err != nil {
		return Wallet{}, err
	}

	if refID != nil {
		// A ledger row for this reference means the charge already went
		// through; return the current state untouched.
		var existing int
		err = tx.GetContext(ctx, &existing, countLedgerRefQuery, entry, *refID)
		if err != nil {
			return Wallet{}, err
		}
		if existing > 0 {
			return w, tx.Commit()
		}
	}

	floor := int64(0)
	if allowDebt {
		floor = -w.Deposit
	}
	if w.Balance+amount < floor {
		return Wallet{}, ErrInsufficientFunds
	}

	err = tx.GetContext(ctx, &w, updateBalanceQuery, amount, userID)
	if err != nil {
		return Wallet{}, err
	}

	_, err = tx.ExecContext(ctx, insertLedgerQuery, uuid.New(), userID, entry, amount, w.Balance, refID)
	if err != nil {
		return Wallet{}, err
	}

	return w, tx.Commit()
}

const lockWalletQuery = `SELECT * FROM wallets WHERE user_id = $1 FOR UPDATE`
const countLedgerRefQuery = `SELECT count(*) FROM wallet_ledger WHERE entry_type = $1 AND ref_id = $2`
const updateBalanceQuery = `UPDATE wallets SET balance = balance + $1 WHERE user_id = $2 RETURNING *`
const insertLedgerQuery = `
INSERT INTO wallet_ledger (id, user_id, entry_type, amount, balance_after, ref_id, created_at)
VALUES ($1, $2, $3, $4, $5, $6, now())
`

// Ledger returns the user's ledger entries, newest first.
func (r *Repository) Ledger(ctx context.Context, userID uuid.UUID, limit int) ([]LedgerEntry, error) {
	var entries []LedgerEntry
	err := r.db.SelectContext(ctx, &entries, ledgerQuery, userID, limit)
	return entries, err
}

const ledgerQuery = `SELECT * FROM wallet_ledger WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`

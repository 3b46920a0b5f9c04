package subscription

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/freebike/rental-backend/wallet"
)

var (
	ErrNotFound    = errors.New("plan not found")
	ErrPlanRetired = errors.New("plan is no longer available")
)

type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// GetAvailablePlans lists active plans, cheapest first.
func (r *Repository) GetAvailablePlans(ctx context.Context) ([]Plan, error) {
	var plans []Plan
	err := r.db.SelectContext(ctx, &plans, getAvailablePlansQuery)
	return plans, err
}

const getAvailablePlansQuery = `SELECT * FROM plans WHERE active ORDER BY base_price ASC`

func (r *Repository) GetPlan(ctx context.Context, id uuid.UUID) (Plan, error) {
	var plan Plan
	err := r.db.GetContext(ctx, &plan, getPlanQuery, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Plan{}, ErrNotFound
	}
	return plan, err
}

const getPlanQuery = `SELECT * FROM plans WHERE id = $1`

// GetActiveByUser returns the user's current subscription, if any.
func (r *Repository) GetActiveByUser(ctx context.Context, userID uuid.UUID) (*Subscription, error) {
	var sub Subscription
	err := r.db.GetContext(ctx, &sub, getActiveByUserQuery, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

const getActiveByUserQuery = `
SELECT * FROM subscriptions
WHERE user_id = $1 AND starts_at <= now() AND expires_at > now()
ORDER BY expires_at DESC
LIMIT 1
`

// Purchase re-quotes the plan server-side, debits the wallet and inserts the
// subscription in a single transaction. Either everything happens or nothing
// does; there is no partially purchased state. A non-zero promoPercent stacks
// a promotion discount on the quoted price; the caller validates the code.
func (r *Repository) Purchase(ctx context.Context, userID, planID uuid.UUID, promoPercent int64) (Subscription, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return Subscription{}, err
	}
	defer tx.Rollback()

	var plan Plan
	err = tx.GetContext(ctx, &plan, getPlanQuery, planID)
	if errors.Is(err, sql.ErrNoRows) {
		return Subscription{}, ErrNotFound
	}
	if err != nil {
		return Subscription{}, err
	}
	if !plan.Active {
		return Subscription{}, ErrPlanRetired
	}

	quote := QuoteFor(plan)
	if promoPercent > 0 {
		quote = quote.ApplyPromotion(promoPercent)
	}

	var w wallet.Wallet
	err = tx.GetContext(ctx, &w, purchase_lockWallet, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return Subscription{}, wallet.ErrNotFound
	}
	if err != nil {
		return Subscription{}, err
	}
	if w.Balance < quote.FinalPrice {
		return Subscription{}, wallet.ErrInsufficientFunds
	}

	var sub Subscription
	err = tx.GetContext(ctx, &sub, purchase_insert,
		uuid.New(), userID, planID, plan.PackageType, quote.FinalPrice, plan.PackageType.Duration().Seconds())
	if err != nil {
		return Subscription{}, err
	}

	err = tx.GetContext(ctx, &w, purchase_debit, quote.FinalPrice, userID)
	if err != nil {
		return Subscription{}, err
	}

	_, err = tx.ExecContext(ctx, purchase_ledger,
		uuid.New(), userID, wallet.EntrySubscriptionCharge, -quote.FinalPrice, w.Balance, sub.ID)
	if err != nil {
		return Subscription{}, err
	}

	return sub, tx.Commit()
}

const purchase_lockWallet = `SELECT * FROM wallets WHERE user_id = $1 FOR UPDATE`

const purchase_insert = `
INSERT INTO subscriptions (id, user_id, plan_id, package_type, price_paid, starts_at, expires_at, created_at)
VALUES ($1, $2, $3, $4, $5, now(), now() + make_interval(secs => $6), now())
RETURNING *
`

const purchase_debit = `UPDATE wallets SET balance = balance - $1 WHERE user_id = $2 RETURNING *`

const purchase_ledger = `
INSERT INTO wallet_ledger (id, user_id, entry_type, amount, balance_after, ref_id, created_at)
VALUES ($1, $2, $3, $4, $5, $6, now())
`

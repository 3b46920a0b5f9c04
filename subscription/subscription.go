package subscription

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

type PackageType string

const (
	PackageHourly  PackageType = "hourly"
	PackageDaily   PackageType = "daily"
	PackageWeekly  PackageType = "weekly"
	PackageMonthly PackageType = "monthly"
)

func (p PackageType) Valid() bool {
	switch p {
	case PackageHourly, PackageDaily, PackageWeekly, PackageMonthly:
		return true
	}
	return false
}

// Duration is the validity period a package type buys.
func (p PackageType) Duration() time.Duration {
	switch p {
	case PackageHourly:
		return time.Hour
	case PackageDaily:
		return 24 * time.Hour
	case PackageWeekly:
		return 7 * 24 * time.Hour
	case PackageMonthly:
		return 30 * 24 * time.Hour
	}
	return 0
}

// Plan is a purchasable subscription plan. Prices are per package type and
// stored in minor currency units.
type Plan struct {
	ID              uuid.UUID
	Name            string
	Description     sql.NullString
	PackageType     PackageType `db:"package_type"`
	BasePrice       int64       `db:"base_price"`
	DiscountPercent int64       `db:"discount_percent"`
	Active          bool
	CreatedAt       time.Time `db:"created_at"`
}

// Quote is the priced breakdown for a plan shown before purchase. The server
// recomputes it at purchase time; the client copy is display-only.
type Quote struct {
	PlanID          uuid.UUID   `json:"planId"`
	PackageType     PackageType `json:"packageType"`
	BasePrice       int64       `json:"basePrice"`
	DiscountPercent int64       `json:"discount"`
	DiscountAmount  int64       `json:"discountAmount"`
	FinalPrice      int64       `json:"finalPrice"`
	Savings         int64       `json:"savings"`
}

// QuoteFor prices a plan: finalPrice = basePrice - round(basePrice*discount/100),
// rounding the discount half-up in minor units.
func QuoteFor(plan Plan) Quote {
	discount := (plan.BasePrice*plan.DiscountPercent + 50) / 100
	return Quote{
		PlanID:          plan.ID,
		PackageType:     plan.PackageType,
		BasePrice:       plan.BasePrice,
		DiscountPercent: plan.DiscountPercent,
		DiscountAmount:  discount,
		FinalPrice:      plan.BasePrice - discount,
		Savings:         discount,
	}
}

// ApplyPromotion stacks a promotion's percentage discount on the quoted
// final price, with the same half-up rounding as the plan discount.
func (q Quote) ApplyPromotion(discountPercent int64) Quote {
	d := (q.FinalPrice*discountPercent + 50) / 100
	q.DiscountAmount += d
	q.FinalPrice -= d
	q.Savings += d
	return q
}

type Subscription struct {
	ID          uuid.UUID
	UserID      uuid.UUID   `db:"user_id"`
	PlanID      uuid.UUID   `db:"plan_id"`
	PackageType PackageType `db:"package_type"`
	PricePaid   int64       `db:"price_paid"`
	StartsAt    time.Time   `db:"starts_at"`
	ExpiresAt   time.Time   `db:"expires_at"`
	CreatedAt   time.Time   `db:"created_at"`
}

// ActiveAt reports whether the subscription covers the given time.
func (s Subscription) ActiveAt(now time.Time) bool {
	return !s.StartsAt.After(now) && s.ExpiresAt.After(now)
}

package subscription

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestQuoteFor(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name      string
		base      int64
		discount  int64
		wantFinal int64
		wantSave  int64
	}{
		{name: "15 percent off 10000", base: 10000, discount: 15, wantFinal: 8500, wantSave: 1500},
		{name: "no discount", base: 5000, discount: 0, wantFinal: 5000, wantSave: 0},
		{name: "full discount", base: 5000, discount: 100, wantFinal: 0, wantSave: 5000},
		{name: "rounds half up", base: 333, discount: 10, wantFinal: 300, wantSave: 33},
		{name: "exact half rounds up", base: 25, discount: 10, wantFinal: 22, wantSave: 3},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			plan := Plan{ID: uuid.New(), PackageType: PackageMonthly, BasePrice: tc.base, DiscountPercent: tc.discount}
			q := QuoteFor(plan)

			if q.FinalPrice != tc.wantFinal {
				t.Errorf("FinalPrice = %d, want %d", q.FinalPrice, tc.wantFinal)
			}
			if q.Savings != tc.wantSave {
				t.Errorf("Savings = %d, want %d", q.Savings, tc.wantSave)
			}
			if q.BasePrice-q.DiscountAmount != q.FinalPrice {
				t.Errorf("quote does not balance: %d - %d != %d", q.BasePrice, q.DiscountAmount, q.FinalPrice)
			}
		})
	}
}

func TestApplyPromotion(t *testing.T) {
	t.Parallel()

	plan := Plan{ID: uuid.New(), PackageType: PackageMonthly, BasePrice: 10000, DiscountPercent: 15}
	q := QuoteFor(plan).ApplyPromotion(10)

	// 10000 - 1500 plan discount = 8500, then 10% promo = 850 more off.
	if q.FinalPrice != 7650 {
		t.Errorf("FinalPrice = %d, want 7650", q.FinalPrice)
	}
	if q.Savings != 2350 {
		t.Errorf("Savings = %d, want 2350", q.Savings)
	}
	if q.BasePrice-q.DiscountAmount != q.FinalPrice {
		t.Errorf("quote does not balance: %d - %d != %d", q.BasePrice, q.DiscountAmount, q.FinalPrice)
	}
}

func TestPackageTypeDuration(t *testing.T) {
	t.Parallel()

	if PackageHourly.Duration() != time.Hour {
		t.Errorf("hourly duration = %v", PackageHourly.Duration())
	}
	if PackageMonthly.Duration() != 30*24*time.Hour {
		t.Errorf("monthly duration = %v", PackageMonthly.Duration())
	}
	if PackageType("yearly").Valid() {
		t.Error("unknown package type should not be valid")
	}
}

func TestSubscriptionActiveAt(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	sub := Subscription{StartsAt: now.Add(-time.Hour), ExpiresAt: now.Add(time.Hour)}

	if !sub.ActiveAt(now) {
		t.Error("expected active inside window")
	}
	if sub.ActiveAt(sub.ExpiresAt) {
		t.Error("expected inactive at expiry instant")
	}
	if !sub.ActiveAt(sub.StartsAt) {
		t.Error("expected active at start instant")
	}
}

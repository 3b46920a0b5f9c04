package acceptance

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"
)

func TestPurchaseSubscription_DebitsWallet(t *testing.T) {
	ts := NewTestServer(t)
	defer ts.Close()

	userID := ts.CreateTestCustomer(t, "user-1")
	ts.FundWallet(t, userID, 10000, 0)
	planID := ts.CreateTestPlan(t, "Weekly", "weekly", 10000, 15)

	w := ts.POST("/subscriptions", map[string]string{"planId": planID.String()}, asUser("user-1"))
	if w.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", w.Code, w.Body.String())
	}

	// 10000 at 15% off is 8500.
	if got := ts.WalletBalance(t, userID); got != 1500 {
		t.Errorf("wallet balance = %d, want 1500", got)
	}

	var ledgerRows int
	if err := ts.DB.Get(&ledgerRows, `SELECT count(*) FROM wallet_ledger WHERE entry_type = 'subscription_charge' AND user_id = $1`, userID); err != nil {
		t.Fatalf("failed to count ledger rows: %v", err)
	}
	if ledgerRows != 1 {
		t.Errorf("subscription charge ledger rows = %d, want 1", ledgerRows)
	}
}

func TestPurchaseSubscription_InsufficientBalance(t *testing.T) {
	ts := NewTestServer(t)
	defer ts.Close()

	userID := ts.CreateTestCustomer(t, "user-1")
	ts.FundWallet(t, userID, 8499, 0)
	planID := ts.CreateTestPlan(t, "Weekly", "weekly", 10000, 15)

	w := ts.POST("/subscriptions", map[string]string{"planId": planID.String()}, asUser("user-1"))
	if w.Code != http.StatusPaymentRequired {
		t.Fatalf("expected status 402, got %d: %s", w.Code, w.Body.String())
	}

	var resp map[string]string
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["code"] != "TOP_UP_REQUIRED" {
		t.Errorf("expected code TOP_UP_REQUIRED, got %s", resp["code"])
	}

	if got := ts.WalletBalance(t, userID); got != 8499 {
		t.Errorf("failed purchase changed balance: %d", got)
	}
}

func TestPurchaseSubscription_PromoCodeStacksDiscount(t *testing.T) {
	ts := NewTestServer(t)
	defer ts.Close()

	userID := ts.CreateTestCustomer(t, "user-1")
	ts.CreateTestCustomer(t, "admin-1")
	ts.FundWallet(t, userID, 10000, 0)
	planID := ts.CreateTestPlan(t, "Weekly", "weekly", 10000, 15)

	w := ts.POST("/admin/promotions", map[string]interface{}{
		"code":            "LAUNCH10",
		"discountPercent": 10,
		"startsAt":        time.Now().Add(-time.Hour).Format(time.RFC3339),
		"endsAt":          time.Now().Add(24 * time.Hour).Format(time.RFC3339),
		"active":          true,
	}, asAdmin("admin-1"))
	if w.Code != http.StatusCreated {
		t.Fatalf("failed to create promotion: %d %s", w.Code, w.Body.String())
	}

	// An unknown code is refused outright.
	w = ts.POST("/subscriptions", map[string]string{"planId": planID.String(), "promoCode": "NOPE"}, asUser("user-1"))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("unknown promo: expected 400, got %d: %s", w.Code, w.Body.String())
	}

	w = ts.POST("/subscriptions", map[string]string{"planId": planID.String(), "promoCode": "LAUNCH10"}, asUser("user-1"))
	if w.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", w.Code, w.Body.String())
	}

	// 10000 at 15% off is 8500, minus the 10% promo is 7650.
	if got := ts.WalletBalance(t, userID); got != 2350 {
		t.Errorf("wallet balance = %d, want 2350", got)
	}
}

func TestQuote_MatchesPurchasePrice(t *testing.T) {
	ts := NewTestServer(t)
	defer ts.Close()

	userID := ts.CreateTestCustomer(t, "user-1")
	ts.FundWallet(t, userID, 10000, 0)
	planID := ts.CreateTestPlan(t, "Monthly", "monthly", 3333, 10)

	w := ts.GET("/subscriptions/price?planId="+planID.String(), asUser("user-1"))
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var quote struct {
		FinalPrice int64 `json:"finalPrice"`
	}
	json.Unmarshal(w.Body.Bytes(), &quote)

	w = ts.POST("/subscriptions", map[string]string{"planId": planID.String()}, asUser("user-1"))
	if w.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", w.Code, w.Body.String())
	}

	var sub struct {
		PricePaid int64 `json:"PricePaid"`
	}
	json.Unmarshal(w.Body.Bytes(), &sub)

	if quote.FinalPrice != sub.PricePaid {
		t.Errorf("quote %d != price paid %d", quote.FinalPrice, sub.PricePaid)
	}

	if got := ts.WalletBalance(t, userID); got != 10000-quote.FinalPrice {
		t.Errorf("wallet balance = %d, want %d", got, 10000-quote.FinalPrice)
	}
}

func TestCurrentSubscription_ActiveAfterPurchase(t *testing.T) {
	ts := NewTestServer(t)
	defer ts.Close()

	userID := ts.CreateTestCustomer(t, "user-1")
	ts.FundWallet(t, userID, 10000, 0)
	planID := ts.CreateTestPlan(t, "Daily", "daily", 1000, 0)

	w := ts.GET("/subscriptions/current", asUser("user-1"))
	var resp struct {
		Active bool `json:"active"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Active {
		t.Error("expected no active subscription before purchase")
	}

	w = ts.POST("/subscriptions", map[string]string{"planId": planID.String()}, asUser("user-1"))
	if w.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", w.Code, w.Body.String())
	}

	w = ts.GET("/subscriptions/current", asUser("user-1"))
	json.Unmarshal(w.Body.Bytes(), &resp)
	if !resp.Active {
		t.Error("expected active subscription after purchase")
	}
}

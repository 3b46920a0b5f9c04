package acceptance

import (
	"encoding/json"
	"net/http"
	"sort"
	"testing"
	"time"
)

func TestCreateReservation_ConcurrentCreatesOnFreeWindowSerialise(t *testing.T) {
	ts := NewTestServer(t)
	defer ts.Close()

	ts.CreateTestCustomer(t, "user-1")
	ts.CreateTestCustomer(t, "user-2")
	bikeID := ts.CreateTestBike(t, "FB-0001", 200)

	// No existing reservation on the bike, so there is nothing for the
	// overlap check to lock; serialisation has to come from the bike row.
	body := map[string]string{
		"bikeCode":    "FB-0001",
		"startTime":   time.Now().Add(2 * time.Hour).UTC().Format(time.RFC3339),
		"packageType": "hourly",
	}

	codes := make(chan int, 2)
	for _, user := range []string{"user-1", "user-2"} {
		go func(u string) {
			codes <- ts.POST("/reservations", body, asUser(u)).Code
		}(user)
	}

	got := []int{<-codes, <-codes}
	sort.Ints(got)
	if got[0] != http.StatusCreated || got[1] != http.StatusConflict {
		t.Fatalf("concurrent creates returned %v, want [201 409]", got)
	}

	var rows int
	if err := ts.DB.Get(&rows, `SELECT count(*) FROM reservations WHERE bike_id = $1 AND cancelled_at IS NULL`, bikeID); err != nil {
		t.Fatalf("failed to count reservations: %v", err)
	}
	if rows != 1 {
		t.Errorf("reservations = %d, want 1", rows)
	}
}

func TestCreateReservation_RejectsOverlap(t *testing.T) {
	ts := NewTestServer(t)
	defer ts.Close()

	user1 := ts.CreateTestCustomer(t, "user-1")
	ts.CreateTestCustomer(t, "user-2")
	bikeID := ts.CreateTestBike(t, "FB-0001", 200)

	start := time.Now().Add(2 * time.Hour).Truncate(time.Second)
	ts.CreateTestReservation(t, bikeID, user1,
		start.Format(time.RFC3339), start.Add(time.Hour).Format(time.RFC3339))

	// user-2 wants a window starting halfway through user-1's hour.
	body := map[string]string{
		"bikeCode":    "FB-0001",
		"startTime":   start.Add(30 * time.Minute).Format(time.RFC3339),
		"packageType": "hourly",
	}
	w := ts.POST("/reservations", body, asUser("user-2"))

	if w.Code != http.StatusConflict {
		t.Errorf("expected status %d, got %d: %s", http.StatusConflict, w.Code, w.Body.String())
	}

	var resp map[string]string
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["code"] != "RESERVATION_CONFLICT" {
		t.Errorf("expected code RESERVATION_CONFLICT, got %s", resp["code"])
	}
}

func TestCreateReservation_TouchingWindowsDoNotConflict(t *testing.T) {
	ts := NewTestServer(t)
	defer ts.Close()

	user1 := ts.CreateTestCustomer(t, "user-1")
	ts.CreateTestCustomer(t, "user-2")
	bikeID := ts.CreateTestBike(t, "FB-0001", 200)

	start := time.Now().Add(2 * time.Hour).Truncate(time.Second)
	ts.CreateTestReservation(t, bikeID, user1,
		start.Format(time.RFC3339), start.Add(time.Hour).Format(time.RFC3339))

	// user-2's window starts exactly where user-1's ends.
	body := map[string]string{
		"bikeCode":    "FB-0001",
		"startTime":   start.Add(time.Hour).Format(time.RFC3339),
		"packageType": "hourly",
	}
	w := ts.POST("/reservations", body, asUser("user-2"))

	if w.Code != http.StatusCreated {
		t.Errorf("expected status %d, got %d: %s", http.StatusCreated, w.Code, w.Body.String())
	}
}

func TestCreateReservation_IgnoresCancelled(t *testing.T) {
	ts := NewTestServer(t)
	defer ts.Close()

	user1 := ts.CreateTestCustomer(t, "user-1")
	ts.CreateTestCustomer(t, "user-2")
	bikeID := ts.CreateTestBike(t, "FB-0001", 200)

	start := time.Now().Add(2 * time.Hour).Truncate(time.Second)
	resID := ts.CreateTestReservation(t, bikeID, user1,
		start.Format(time.RFC3339), start.Add(time.Hour).Format(time.RFC3339))
	if _, err := ts.DB.Exec(`UPDATE reservations SET cancelled_at = now() WHERE id = $1`, resID); err != nil {
		t.Fatalf("failed to cancel reservation: %v", err)
	}

	body := map[string]string{
		"bikeCode":    "FB-0001",
		"startTime":   start.Format(time.RFC3339),
		"packageType": "hourly",
	}
	w := ts.POST("/reservations", body, asUser("user-2"))

	if w.Code != http.StatusCreated {
		t.Errorf("expected status %d, got %d: %s", http.StatusCreated, w.Code, w.Body.String())
	}
}

func TestCheckAvailability_ReflectsExistingWindow(t *testing.T) {
	ts := NewTestServer(t)
	defer ts.Close()

	user1 := ts.CreateTestCustomer(t, "user-1")
	ts.CreateTestCustomer(t, "user-2")
	bikeID := ts.CreateTestBike(t, "FB-0001", 200)

	start := time.Now().Add(2 * time.Hour).Truncate(time.Second)
	ts.CreateTestReservation(t, bikeID, user1,
		start.Format(time.RFC3339), start.Add(time.Hour).Format(time.RFC3339))

	w := ts.GET("/reservations/availability?bikeCode=FB-0001&startTime="+
		start.Format(time.RFC3339)+"&packageType=hourly", asUser("user-2"))
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Available bool `json:"available"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Available {
		t.Error("window overlapping an existing reservation reported available")
	}

	// The free hour right after is available.
	w = ts.GET("/reservations/availability?bikeCode=FB-0001&startTime="+
		start.Add(time.Hour).Format(time.RFC3339)+"&packageType=hourly", asUser("user-2"))
	json.Unmarshal(w.Body.Bytes(), &resp)
	if !resp.Available {
		t.Error("free window reported unavailable")
	}
}

func TestCancelReservation_RefusedAfterStart(t *testing.T) {
	ts := NewTestServer(t)
	defer ts.Close()

	user1 := ts.CreateTestCustomer(t, "user-1")
	bikeID := ts.CreateTestBike(t, "FB-0001", 200)

	// A reservation already underway.
	start := time.Now().Add(-10 * time.Minute)
	resID := ts.CreateTestReservation(t, bikeID, user1,
		start.Format(time.RFC3339), start.Add(time.Hour).Format(time.RFC3339))

	w := ts.POST("/reservations/"+resID.String()+"/cancel", nil, asUser("user-1"))
	if w.Code != http.StatusConflict {
		t.Errorf("expected status %d, got %d: %s", http.StatusConflict, w.Code, w.Body.String())
	}
}

func TestCancelReservation_OnlyOwner(t *testing.T) {
	ts := NewTestServer(t)
	defer ts.Close()

	user1 := ts.CreateTestCustomer(t, "user-1")
	ts.CreateTestCustomer(t, "user-2")
	bikeID := ts.CreateTestBike(t, "FB-0001", 200)

	start := time.Now().Add(2 * time.Hour)
	resID := ts.CreateTestReservation(t, bikeID, user1,
		start.Format(time.RFC3339), start.Add(time.Hour).Format(time.RFC3339))

	w := ts.POST("/reservations/"+resID.String()+"/cancel", nil, asUser("user-2"))
	if w.Code != http.StatusForbidden {
		t.Errorf("expected status %d, got %d: %s", http.StatusForbidden, w.Code, w.Body.String())
	}
}

func TestStartRide_ConsumesCoveringReservation(t *testing.T) {
	ts := NewTestServer(t)
	defer ts.Close()

	user1 := ts.CreateTestCustomer(t, "user-1")
	bikeID := ts.CreateTestBike(t, "FB-0001", 200)
	ts.FundWallet(t, user1, 1000, 0)

	start := time.Now().Add(-5 * time.Minute)
	resID := ts.CreateTestReservation(t, bikeID, user1,
		start.Format(time.RFC3339), start.Add(time.Hour).Format(time.RFC3339))

	w := ts.POST("/rides/start", startRideBody("FB-0001"), asUser("user-1"))
	if w.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", w.Code, w.Body.String())
	}

	var usedAt *time.Time
	if err := ts.DB.Get(&usedAt, `SELECT used_at FROM reservations WHERE id = $1`, resID); err != nil {
		t.Fatalf("failed to read reservation: %v", err)
	}
	if usedAt == nil {
		t.Error("covering reservation was not marked used")
	}
}

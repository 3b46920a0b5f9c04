package acceptance

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"
)

func TestNotifications_PollReturnsRideEvents(t *testing.T) {
	ts := NewTestServer(t)
	defer ts.Close()

	userID := ts.CreateTestCustomer(t, "user-1")
	ts.CreateTestBike(t, "FB-0001", 200)
	ts.FundWallet(t, userID, 1000, 0)

	before := time.Now()

	w := ts.POST("/rides/start", startRideBody("FB-0001"), asUser("user-1"))
	if w.Code != http.StatusCreated {
		t.Fatalf("failed to start ride: %d %s", w.Code, w.Body.String())
	}

	w = ts.GET("/notifications", asUser("user-1"))
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var evs []struct {
		Type      string    `json:"type"`
		CreatedAt time.Time `json:"createdAt"`
	}
	json.Unmarshal(w.Body.Bytes(), &evs)
	if len(evs) != 1 {
		t.Fatalf("got %d events, want 1: %s", len(evs), w.Body.String())
	}
	if evs[0].Type != "ride.started" {
		t.Errorf("event type = %s, want ride.started", evs[0].Type)
	}
	if evs[0].CreatedAt.Before(before.Add(-time.Second)) {
		t.Errorf("event timestamp %v predates the ride", evs[0].CreatedAt)
	}

	// A cursor after the event filters it out.
	w = ts.GET("/notifications?since="+time.Now().Add(time.Minute).UTC().Format(time.RFC3339Nano), asUser("user-1"))
	json.Unmarshal(w.Body.Bytes(), &evs)
	if len(evs) != 0 {
		t.Errorf("got %d events after future cursor, want 0", len(evs))
	}

	// Other users see nothing.
	ts.CreateTestCustomer(t, "user-2")
	w = ts.GET("/notifications", asUser("user-2"))
	var other []json.RawMessage
	json.Unmarshal(w.Body.Bytes(), &other)
	if len(other) != 0 {
		t.Errorf("got %d events for another user, want 0", len(other))
	}
}

func TestIdempotencyKey_ScopedPerUser(t *testing.T) {
	ts := NewTestServer(t)
	defer ts.Close()

	user1 := ts.CreateTestCustomer(t, "user-1")
	user2 := ts.CreateTestCustomer(t, "user-2")
	ts.CreateTestBike(t, "FB-0001", 200)
	ts.CreateTestBike(t, "FB-0002", 200)
	ts.FundWallet(t, user1, 1000, 0)
	ts.FundWallet(t, user2, 1000, 0)

	h1 := asUser("user-1")
	h1["Idempotency-Key"] = "shared-key"
	h2 := asUser("user-2")
	h2["Idempotency-Key"] = "shared-key"

	w := ts.POST("/rides/start", startRideBody("FB-0001"), h1)
	if w.Code != http.StatusCreated {
		t.Fatalf("first user: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var first rideResponse
	json.Unmarshal(w.Body.Bytes(), &first)

	// The same key from another user must execute their request, not replay
	// the first user's cached response.
	w = ts.POST("/rides/start", startRideBody("FB-0002"), h2)
	if w.Code != http.StatusCreated {
		t.Fatalf("second user: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var second rideResponse
	json.Unmarshal(w.Body.Bytes(), &second)

	if first.ID == second.ID {
		t.Errorf("second user was served the first user's ride %s", first.ID)
	}
	if first.BikeID == second.BikeID {
		t.Errorf("second user was served the first user's bike %s", first.BikeID)
	}
}

func TestEndRideWithIdempotencyKey_ReplaysCachedResponse(t *testing.T) {
	ts := NewTestServer(t)
	defer ts.Close()

	userID := ts.CreateTestCustomer(t, "user-1")
	ts.CreateTestBike(t, "FB-0001", 200)
	ts.FundWallet(t, userID, 1000, 0)

	w := ts.POST("/rides/start", startRideBody("FB-0001"), asUser("user-1"))
	if w.Code != http.StatusCreated {
		t.Fatalf("failed to start ride: %d %s", w.Code, w.Body.String())
	}
	var r rideResponse
	json.Unmarshal(w.Body.Bytes(), &r)

	headers := asUser("user-1")
	headers["Idempotency-Key"] = "end-" + r.ID

	end := map[string]float64{"lat": 6.14, "lng": 1.23}
	first := ts.POST("/rides/"+r.ID+"/end", end, headers)
	if first.Code != http.StatusOK {
		t.Fatalf("first end: expected 200, got %d: %s", first.Code, first.Body.String())
	}

	second := ts.POST("/rides/"+r.ID+"/end", end, headers)
	if second.Code != http.StatusOK {
		t.Fatalf("replay: expected 200, got %d: %s", second.Code, second.Body.String())
	}

	if first.Body.String() != second.Body.String() {
		t.Errorf("replay body differs:\nfirst:  %s\nsecond: %s", first.Body.String(), second.Body.String())
	}
}

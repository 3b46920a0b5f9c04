package ride

import (
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestEstimateCost(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name       string
		seconds    int64
		hourlyRate int64
		want       int64
	}{
		{name: "zero elapsed", seconds: 0, hourlyRate: 200, want: 0},
		{name: "negative elapsed clamps to zero", seconds: -5, hourlyRate: 200, want: 0},
		{name: "125s at rate 200", seconds: 125, hourlyRate: 200, want: 7},
		{name: "exactly one hour", seconds: 3600, hourlyRate: 200, want: 200},
		{name: "one second over the hour rounds up", seconds: 3601, hourlyRate: 200, want: 201},
		{name: "one second costs at least one unit", seconds: 1, hourlyRate: 200, want: 1},
		{name: "zero rate", seconds: 500, hourlyRate: 0, want: 0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := EstimateCost(tc.seconds, tc.hourlyRate)
			if got != tc.want {
				t.Errorf("EstimateCost(%d, %d) = %d, want %d", tc.seconds, tc.hourlyRate, got, tc.want)
			}
		})
	}
}

func TestEstimateMonotoneWhileRunning(t *testing.T) {
	t.Parallel()

	start := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	r := Ride{StartedAt: start, HourlyRate: 200}

	prev := int64(-1)
	for s := 0; s <= 7200; s += 7 {
		now := start.Add(time.Duration(s) * time.Second)
		est := r.EstimateAt(now)
		if est < prev {
			t.Fatalf("estimate decreased at t+%ds: %d -> %d", s, prev, est)
		}
		prev = est
	}
}

func TestEstimateFrozenWhilePaused(t *testing.T) {
	t.Parallel()

	start := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	pausedAt := start.Add(10 * time.Minute)
	r := Ride{
		StartedAt:  start,
		HourlyRate: 200,
		PausedAt:   sql.NullTime{Time: pausedAt, Valid: true},
	}

	atPause := r.EstimateAt(pausedAt)
	for _, later := range []time.Duration{time.Second, time.Minute, time.Hour} {
		if got := r.EstimateAt(pausedAt.Add(later)); got != atPause {
			t.Errorf("estimate moved while paused: at pause %d, %v later %d", atPause, later, got)
		}
	}
}

func TestBillableExcludesClosedPauses(t *testing.T) {
	t.Parallel()

	start := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	r := Ride{
		StartedAt:     start,
		HourlyRate:    200,
		PausedSeconds: 300,
	}

	now := start.Add(20 * time.Minute)
	if got, want := r.BillableAt(now), int64(15*60); got != want {
		t.Errorf("BillableAt = %d, want %d", got, want)
	}
}

func TestSettledRideReportsCost(t *testing.T) {
	t.Parallel()

	start := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	r := Ride{
		StartedAt:  start,
		EndedAt:    sql.NullTime{Time: start.Add(125 * time.Second), Valid: true},
		HourlyRate: 200,
		Cost:       sql.NullInt64{Int64: 7, Valid: true},
	}

	// The settled cost wins over any recomputation.
	if got := r.EstimateAt(start.Add(24 * time.Hour)); got != 7 {
		t.Errorf("EstimateAt after settlement = %d, want 7", got)
	}
	if got := r.StatusAt(start.Add(time.Hour)); got != Completed {
		t.Errorf("StatusAt = %v, want Completed", got)
	}
}

func TestStatusDerivation(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	start := now.Add(-time.Hour)

	testCases := []struct {
		name string
		ride Ride
		want Status
	}{
		{name: "running", ride: Ride{StartedAt: start}, want: InProgress},
		{
			name: "paused",
			ride: Ride{StartedAt: start, PausedAt: sql.NullTime{Time: now.Add(-time.Minute), Valid: true}},
			want: Paused,
		},
		{
			name: "ended",
			ride: Ride{StartedAt: start, EndedAt: sql.NullTime{Time: now, Valid: true}},
			want: Completed,
		},
		{
			name: "cancelled wins over ended",
			ride: Ride{
				StartedAt:   start,
				EndedAt:     sql.NullTime{Time: now, Valid: true},
				CancelledAt: sql.NullTime{Time: now, Valid: true},
			},
			want: Cancelled,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.ride.StatusAt(now); got != tc.want {
				t.Errorf("StatusAt = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestRiderFromRideInProgressError(t *testing.T) {
	t.Parallel()

	riderID := uuid.New()
	err := &rideInProgressError{riderID: riderID, rideID: uuid.New()}

	got, ok := RiderFromRideInProgressError(err)
	if !ok || got != riderID {
		t.Errorf("RiderFromRideInProgressError = %v, %v; want %v, true", got, ok, riderID)
	}

	if _, ok := RiderFromRideInProgressError(ErrNotFound); ok {
		t.Error("expected false for unrelated error")
	}
}

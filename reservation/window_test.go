package reservation

import (
	"database/sql"
	"testing"
	"time"
)

func ts(hour, min int) time.Time {
	return time.Date(2024, 1, 1, hour, min, 0, 0, time.UTC)
}

func TestOverlaps(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name         string
		aStart, aEnd time.Time
		bStart, bEnd time.Time
		want         bool
	}{
		{name: "request inside existing window", aStart: ts(10, 0), aEnd: ts(10, 30), bStart: ts(9, 0), bEnd: ts(11, 0), want: true},
		{name: "request covers existing window", aStart: ts(8, 0), aEnd: ts(12, 0), bStart: ts(9, 0), bEnd: ts(11, 0), want: true},
		{name: "partial overlap at start", aStart: ts(8, 0), aEnd: ts(9, 30), bStart: ts(9, 0), bEnd: ts(11, 0), want: true},
		{name: "partial overlap at end", aStart: ts(10, 30), aEnd: ts(12, 0), bStart: ts(9, 0), bEnd: ts(11, 0), want: true},
		{name: "touching at existing end does not conflict", aStart: ts(11, 0), aEnd: ts(12, 0), bStart: ts(9, 0), bEnd: ts(11, 0), want: false},
		{name: "touching at existing start does not conflict", aStart: ts(8, 0), aEnd: ts(9, 0), bStart: ts(9, 0), bEnd: ts(11, 0), want: false},
		{name: "disjoint before", aStart: ts(6, 0), aEnd: ts(7, 0), bStart: ts(9, 0), bEnd: ts(11, 0), want: false},
		{name: "disjoint after", aStart: ts(12, 0), aEnd: ts(13, 0), bStart: ts(9, 0), bEnd: ts(11, 0), want: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := overlaps(tc.aStart, tc.aEnd, tc.bStart, tc.bEnd)
			if got != tc.want {
				t.Errorf("overlaps(%v, %v, %v, %v) = %v, want %v", tc.aStart, tc.aEnd, tc.bStart, tc.bEnd, got, tc.want)
			}
			// Overlap is symmetric.
			if overlaps(tc.bStart, tc.bEnd, tc.aStart, tc.aEnd) != got {
				t.Error("overlaps is not symmetric")
			}
		})
	}
}

func TestStatusAt(t *testing.T) {
	t.Parallel()

	now := ts(12, 0)
	base := Reservation{StartTime: ts(11, 0), EndTime: ts(13, 0)}

	cancelled := base
	cancelled.CancelledAt = sql.NullTime{Time: ts(10, 0), Valid: true}

	used := base
	used.UsedAt = sql.NullTime{Time: ts(11, 30), Valid: true}

	expired := Reservation{StartTime: ts(8, 0), EndTime: ts(9, 0)}

	endsNow := Reservation{StartTime: ts(10, 0), EndTime: now}

	testCases := []struct {
		name string
		res  Reservation
		want Status
	}{
		{name: "active", res: base, want: StatusActive},
		{name: "cancelled", res: cancelled, want: StatusCancelled},
		{name: "used", res: used, want: StatusUsed},
		{name: "expired", res: expired, want: StatusExpired},
		{name: "ending right now is expired", res: endsNow, want: StatusExpired},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.res.StatusAt(now); got != tc.want {
				t.Errorf("StatusAt = %v, want %v", got, tc.want)
			}
		})
	}
}

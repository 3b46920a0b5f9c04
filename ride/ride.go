// Package ride owns the ride lifecycle. The server is the single source of
// truth for start/end times, pauses and cost; clients only ever display what
// these functions compute.
package ride

import (
	"database/sql"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

type Status int

const (
	InProgress Status = iota
	Paused
	Completed
	Cancelled
)

func (s Status) String() string {
	return [...]string{"in_progress", "paused", "completed", "cancelled"}[s]
}

func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

type Ride struct {
	ID      uuid.UUID
	BikeID  uuid.UUID `db:"bike_id"`
	RiderID uuid.UUID `db:"rider_id"`

	StartedAt   time.Time    `db:"started_at"`
	EndedAt     sql.NullTime `db:"ended_at"`
	CancelledAt sql.NullTime `db:"cancelled_at"`

	StartLat float64         `db:"start_lat"`
	StartLng float64         `db:"start_lng"`
	EndLat   sql.NullFloat64 `db:"end_lat"`
	EndLng   sql.NullFloat64 `db:"end_lng"`

	DistanceMeters float64 `db:"distance_meters"`

	// PausedSeconds accumulates closed pause intervals. PausedAt marks an
	// open pause; nobody is billed while it is set.
	PausedSeconds int64        `db:"paused_seconds"`
	PausedAt      sql.NullTime `db:"paused_at"`

	// HourlyRate is captured from the bike at unlock so later rate changes
	// never affect an in-flight ride.
	HourlyRate int64 `db:"hourly_rate"`

	// Cost is the settled amount, set exactly once when the ride ends.
	Cost            sql.NullInt64 `db:"cost"`
	ChargeCreatedAt sql.NullTime  `db:"charge_created_at"`
}

// Status derives the ride status from the ride's data.
func (r Ride) Status() Status {
	return r.StatusAt(time.Now())
}

// StatusAt derives the ride status at a given time.
func (r Ride) StatusAt(now time.Time) Status {
	if r.CancelledAt.Valid {
		return Cancelled
	}
	if r.EndedAt.Valid {
		return Completed
	}
	if r.PausedAt.Valid {
		return Paused
	}
	return InProgress
}

// ElapsedAt is the wall-clock ride duration at now, paused time included.
func (r Ride) ElapsedAt(now time.Time) time.Duration {
	end := now
	if r.EndedAt.Valid {
		end = r.EndedAt.Time
	}
	if end.Before(r.StartedAt) {
		return 0
	}
	return end.Sub(r.StartedAt)
}

// BillableAt is the number of seconds the rider is charged for at now:
// elapsed time minus paused time. While a pause is open the value is frozen.
func (r Ride) BillableAt(now time.Time) int64 {
	paused := r.PausedSeconds
	if r.PausedAt.Valid {
		open := now.Sub(r.PausedAt.Time)
		if open > 0 {
			paused += int64(open.Seconds())
		}
	}
	billable := int64(r.ElapsedAt(now).Seconds()) - paused
	if billable < 0 {
		return 0
	}
	return billable
}

// EstimateCost computes the live cost estimate for a ride:
// ceil(billableSeconds/3600 * hourlyRate). Because the server also excludes
// paused time at settlement, the estimate and the final cost agree.
func EstimateCost(billableSeconds, hourlyRate int64) int64 {
	if billableSeconds <= 0 || hourlyRate <= 0 {
		return 0
	}
	return (billableSeconds*hourlyRate + 3599) / 3600
}

// EstimateAt is the cost estimate for this ride at now.
func (r Ride) EstimateAt(now time.Time) int64 {
	if r.Cost.Valid {
		return r.Cost.Int64
	}
	return EstimateCost(r.BillableAt(now), r.HourlyRate)
}

package reservation

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusActive    Status = "active"
	StatusExpired   Status = "expired"
	StatusUsed      Status = "used"
	StatusCancelled Status = "cancelled"
)

type Reservation struct {
	ID          uuid.UUID      `db:"id"`
	BikeID      uuid.UUID      `db:"bike_id"`
	BikeCode    string         `db:"bike_code"`
	BikeName    sql.NullString `db:"bike_name"`
	UserID      uuid.UUID      `db:"user_id"`
	PackageType string         `db:"package_type"`
	StartTime   time.Time      `db:"start_time"`
	EndTime     time.Time      `db:"end_time"`
	CancelledAt sql.NullTime   `db:"cancelled_at"`
	UsedAt      sql.NullTime   `db:"used_at"`
	CreatedAt   time.Time      `db:"created_at"`
}

// Status derives the reservation status from the reservation's immutable data.
func (r Reservation) Status() Status {
	return r.StatusAt(time.Now())
}

// StatusAt derives the reservation status at a given time.
func (r Reservation) StatusAt(now time.Time) Status {
	if r.CancelledAt.Valid {
		return StatusCancelled
	}
	if r.UsedAt.Valid {
		return StatusUsed
	}
	if !r.EndTime.After(now) {
		return StatusExpired
	}
	return StatusActive
}

// overlaps reports whether two half-open windows [aStart,aEnd) and
// [bStart,bEnd) intersect. Touching endpoints do not conflict. This is the
// convention the SQL overlap predicates implement; the tests hold both to it.
func overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

// TimeSlot represents a reserved window for availability queries.
type TimeSlot struct {
	StartTime time.Time `db:"start_time"`
	EndTime   time.Time `db:"end_time"`
	UserID    uuid.UUID `db:"user_id"`
}

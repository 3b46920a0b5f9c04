package reservation

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

var (
	ErrNotFound        = errors.New("reservation not found")
	ErrOverlap         = errors.New("reservation overlaps with existing reservation")
	ErrInvalidDuration = errors.New("invalid reservation duration")
	ErrCannotCancel    = errors.New("cannot cancel reservation that has already started")
	ErrNotAuthorized   = errors.New("not authorized to modify this reservation")
)

type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// GetByID fetches a single reservation by its ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (Reservation, error) {
	var res Reservation
	err := r.db.GetContext(ctx, &res, getByIDQuery, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Reservation{}, ErrNotFound
	}
	return res, err
}

const getByIDQuery = `SELECT * FROM reservations WHERE id = $1`

// GetByUserID fetches all reservations for a user, optionally filtered by
// derived status. Results are sorted by start_time ASC.
func (r *Repository) GetByUserID(ctx context.Context, userID uuid.UUID, status *Status) ([]Reservation, error) {
	var reservations []Reservation
	err := r.db.SelectContext(ctx, &reservations, getByUserIDQuery, userID)
	if err != nil {
		return nil, err
	}

	if status == nil {
		return reservations, nil
	}

	// Filter by derived status in Go
	filtered := make([]Reservation, 0, len(reservations))
	now := time.Now()
	for _, res := range reservations {
		if res.StatusAt(now) == *status {
			filtered = append(filtered, res)
		}
	}
	return filtered, nil
}

const getByUserIDQuery = `
SELECT rs.*, bikes.code as bike_code, bikes.display_name as bike_name FROM reservations rs
JOIN bikes ON rs.bike_id = bikes.id
WHERE user_id = $1 ORDER BY start_time ASC`

// CheckAvailability reports whether the window [start,end) is free of active
// reservations for the bike. This is advisory only: two clients can both see
// true and race to Create; the transaction in Create is what actually decides.
func (r *Repository) CheckAvailability(ctx context.Context, bikeID uuid.UUID, start, end time.Time) (bool, error) {
	var count int
	err := r.db.GetContext(ctx, &count, checkAvailabilityQuery, bikeID, start, end)
	if err != nil {
		return false, err
	}
	return count == 0, nil
}

const checkAvailabilityQuery = `
SELECT count(*) FROM reservations
WHERE bike_id = $1
  AND cancelled_at IS NULL
  AND start_time < $3
  AND end_time > $2
`

// Create inserts a new reservation after re-checking for overlaps inside a
// transaction. This is the authoritative conflict check.
func (r *Repository) Create(ctx context.Context, res *Reservation) error {
	if !res.EndTime.After(res.StartTime) {
		return ErrInvalidDuration
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// Lock the bike row first. Locking only the overlapping reservations is
	// not enough: two creates for windows that clash with each other but with
	// no existing row would both see an empty set and both insert.
	var bikeID uuid.UUID
	err = tx.GetContext(ctx, &bikeID, lockBikeForReservationQuery, res.BikeID)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	var overlappingIDs []uuid.UUID
	err = tx.SelectContext(ctx, &overlappingIDs, checkOverlapQuery, res.BikeID, res.StartTime, res.EndTime)
	if err != nil {
		return err
	}
	if len(overlappingIDs) > 0 {
		return ErrOverlap
	}

	err = tx.GetContext(ctx, res, createReservationQuery,
		res.ID, res.BikeID, res.UserID, res.PackageType, res.StartTime, res.EndTime)
	if err != nil {
		return err
	}

	return tx.Commit()
}

const lockBikeForReservationQuery = `SELECT id FROM bikes WHERE id = $1 FOR UPDATE`

const checkOverlapQuery = `
SELECT id FROM reservations
WHERE bike_id = $1
  AND cancelled_at IS NULL
  AND start_time < $3
  AND end_time > $2
`

const createReservationQuery = `
INSERT INTO reservations (id, bike_id, user_id, package_type, start_time, end_time, created_at)
VALUES ($1, $2, $3, $4, $5, $6, now())
RETURNING *
`

// Cancel sets cancelled_at after verifying ownership and that the
// reservation hasn't started.
func (r *Repository) Cancel(ctx context.Context, id, userID uuid.UUID) (Reservation, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return Reservation{}, err
	}
	defer tx.Rollback()

	var res Reservation
	err = tx.GetContext(ctx, &res, getForUpdateQuery, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Reservation{}, ErrNotFound
	}
	if err != nil {
		return Reservation{}, err
	}

	if res.UserID != userID {
		return Reservation{}, ErrNotAuthorized
	}
	if res.CancelledAt.Valid || res.UsedAt.Valid {
		return Reservation{}, ErrCannotCancel
	}
	if !res.StartTime.After(time.Now()) {
		return Reservation{}, ErrCannotCancel
	}

	err = tx.GetContext(ctx, &res, cancelQuery, id)
	if err != nil {
		return Reservation{}, err
	}

	return res, tx.Commit()
}

const getForUpdateQuery = `SELECT * FROM reservations WHERE id = $1 FOR UPDATE`

const cancelQuery = `UPDATE reservations SET cancelled_at = now() WHERE id = $1 RETURNING *`

// MarkUsed consumes the rider's reservation covering now when they unlock the
// reserved bike. Missing rows are fine: unlocking without a reservation is
// allowed.
func (r *Repository) MarkUsed(ctx context.Context, bikeID, userID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, markUsedQuery, bikeID, userID)
	return err
}

const markUsedQuery = `
UPDATE reservations SET used_at = now()
WHERE bike_id = $1 AND user_id = $2
  AND cancelled_at IS NULL AND used_at IS NULL
  AND start_time <= now() AND end_time > now()
`

// GetSlotsForBike fetches non-cancelled reserved time slots for a bike within
// an optional date range.
func (r *Repository) GetSlotsForBike(ctx context.Context, bikeID uuid.UUID, startDate, endDate *time.Time) ([]TimeSlot, error) {
	var slots []TimeSlot

	if startDate != nil && endDate != nil {
		err := r.db.SelectContext(ctx, &slots, getSlotsWithRangeQuery, bikeID, *startDate, *endDate)
		return slots, err
	}

	if startDate != nil {
		err := r.db.SelectContext(ctx, &slots, getSlotsFromStartQuery, bikeID, *startDate)
		return slots, err
	}

	if endDate != nil {
		err := r.db.SelectContext(ctx, &slots, getSlotsToEndQuery, bikeID, *endDate)
		return slots, err
	}

	err := r.db.SelectContext(ctx, &slots, getSlotsQuery, bikeID)
	return slots, err
}

const getSlotsQuery = `
SELECT start_time, end_time, user_id FROM reservations
WHERE bike_id = $1 AND cancelled_at IS NULL
ORDER BY start_time ASC
`

const getSlotsWithRangeQuery = `
SELECT start_time, end_time, user_id FROM reservations
WHERE bike_id = $1
  AND cancelled_at IS NULL
  AND start_time < $3
  AND end_time > $2
ORDER BY start_time ASC
`

const getSlotsFromStartQuery = `
SELECT start_time, end_time, user_id FROM reservations
WHERE bike_id = $1
  AND cancelled_at IS NULL
  AND end_time > $2
ORDER BY start_time ASC
`

const getSlotsToEndQuery = `
SELECT start_time, end_time, user_id FROM reservations
WHERE bike_id = $1
  AND cancelled_at IS NULL
  AND start_time < $2
ORDER BY start_time ASC
`

// GetNextByOtherUser finds the next non-cancelled reservation for a bike by a
// different user after the specified time. Returns nil if none exists.
func (r *Repository) GetNextByOtherUser(ctx context.Context, bikeID, userID uuid.UUID, after time.Time) (*Reservation, error) {
	var res Reservation
	err := r.db.GetContext(ctx, &res, getNextByOtherUserQuery, bikeID, userID, after)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &res, nil
}

const getNextByOtherUserQuery = `
SELECT * FROM reservations
WHERE bike_id = $1
  AND user_id != $2
  AND cancelled_at IS NULL
  AND start_time > $3
ORDER BY start_time ASC
LIMIT 1
`

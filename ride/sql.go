package ride

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
)

type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{
		db: db,
	}
}

var (
	ErrNotFound         = errors.New("ride not found")
	ErrBikeNotAvailable = errors.New("bike not available")
	ErrNotPaused        = errors.New("ride is not paused")
	ErrAlreadyPaused    = errors.New("ride is already paused")
	ErrRideEnded        = errors.New("ride has already ended")
)

var ErrRideInProgress = errors.New("ride in progress")

// StartRide creates a ride and flips the bike to in_use in one transaction.
// A rider may have at most one ride that is not ended or cancelled.
func (r *Repository) StartRide(ctx context.Context, bikeID, riderID uuid.UUID, lat, lng float64) (Ride, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return Ride{}, err
	}
	defer tx.Rollback()

	var active uuid.UUID
	err = tx.GetContext(ctx, &active, verifyNoActiveRide, riderID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return Ride{}, err
	}
	if active != uuid.Nil {
		return Ride{}, &rideInProgressError{riderID: riderID, rideID: active}
	}

	var status string
	err = tx.GetContext(ctx, &status, startRide_lockBike, bikeID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Ride{}, ErrNotFound
		}
		return Ride{}, err
	}
	if status != "available" {
		return Ride{}, ErrBikeNotAvailable
	}

	_, err = tx.ExecContext(ctx, startRide_takeBike, bikeID)
	if err != nil {
		return Ride{}, err
	}

	var ride Ride
	err = tx.GetContext(ctx, &ride, startRideQuery, uuid.New(), bikeID, riderID, lat, lng)
	if err != nil {
		// The partial unique index on (rider_id) catches the race where two
		// starts from the same rider on different bikes both pass the SELECT:
		// different bike row locks, so neither transaction blocks the other.
		if isUniqueViolation(err, "rides_rider_active_key") {
			return Ride{}, &rideInProgressError{riderID: riderID}
		}
		return Ride{}, err
	}

	err = tx.Commit()
	return ride, err
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == constraint
}

const verifyNoActiveRide = `
SELECT id FROM rides WHERE rider_id = $1 AND ended_at IS NULL AND cancelled_at IS NULL`

const startRide_lockBike = `SELECT status FROM bikes WHERE id = $1 FOR UPDATE`
const startRide_takeBike = `UPDATE bikes SET status = 'in_use' WHERE id = $1`

const startRideQuery = `
INSERT INTO rides (id, bike_id, rider_id, started_at, start_lat, start_lng, hourly_rate)
VALUES ($1, $2, $3, now(), $4, $5, (SELECT hourly_rate FROM bikes WHERE id = $2))
RETURNING *
`

// GetActiveByRider returns the rider's in-flight ride, paused or not.
func (r *Repository) GetActiveByRider(ctx context.Context, riderID uuid.UUID) (Ride, error) {
	var ride Ride
	err := r.db.GetContext(ctx, &ride, getActiveByRiderQuery, riderID)
	if errors.Is(err, sql.ErrNoRows) {
		return Ride{}, ErrNotFound
	}
	return ride, err
}

const getActiveByRiderQuery = `
SELECT * FROM rides WHERE rider_id = $1 AND ended_at IS NULL AND cancelled_at IS NULL`

// GetByID fetches a ride owned by the rider.
func (r *Repository) GetByID(ctx context.Context, id, riderID uuid.UUID) (Ride, error) {
	var ride Ride
	err := r.db.GetContext(ctx, &ride, getByIDQuery, id, riderID)
	if errors.Is(err, sql.ErrNoRows) {
		return Ride{}, ErrNotFound
	}
	return ride, err
}

const getByIDQuery = `SELECT * FROM rides WHERE id = $1 AND rider_id = $2`

// ListByRider returns the rider's ride history, newest first.
func (r *Repository) ListByRider(ctx context.Context, riderID uuid.UUID) ([]Ride, error) {
	var rides []Ride
	err := r.db.SelectContext(ctx, &rides, listByRiderQuery, riderID)
	return rides, err
}

const listByRiderQuery = `SELECT * FROM rides WHERE rider_id = $1 ORDER BY started_at DESC`

// Pause opens a pause interval. Billing stops until Resume or EndRide.
func (r *Repository) Pause(ctx context.Context, id, riderID uuid.UUID) (Ride, error) {
	var ride Ride
	err := r.db.GetContext(ctx, &ride, pauseQuery, id, riderID)
	if errors.Is(err, sql.ErrNoRows) {
		return Ride{}, r.explainPauseFailure(ctx, id, riderID, ErrAlreadyPaused)
	}
	return ride, err
}

const pauseQuery = `
UPDATE rides SET paused_at = now()
WHERE id = $1 AND rider_id = $2 AND ended_at IS NULL AND cancelled_at IS NULL AND paused_at IS NULL
RETURNING *
`

// Resume closes the open pause interval and folds it into paused_seconds.
func (r *Repository) Resume(ctx context.Context, id, riderID uuid.UUID) (Ride, error) {
	var ride Ride
	err := r.db.GetContext(ctx, &ride, resumeQuery, id, riderID)
	if errors.Is(err, sql.ErrNoRows) {
		return Ride{}, r.explainPauseFailure(ctx, id, riderID, ErrNotPaused)
	}
	return ride, err
}

const resumeQuery = `
UPDATE rides SET
  paused_seconds = paused_seconds + ceil(extract(epoch FROM (now() - paused_at)))::bigint,
  paused_at = NULL
WHERE id = $1 AND rider_id = $2 AND ended_at IS NULL AND cancelled_at IS NULL AND paused_at IS NOT NULL
RETURNING *
`

// explainPauseFailure turns a zero-row pause/resume update into the most
// specific error the row's state allows.
func (r *Repository) explainPauseFailure(ctx context.Context, id, riderID uuid.UUID, stateErr error) error {
	ride, err := r.GetByID(ctx, id, riderID)
	if err != nil {
		return err
	}
	if ride.EndedAt.Valid || ride.CancelledAt.Valid {
		return ErrRideEnded
	}
	return stateErr
}

// EndRide settles a ride. The guarded UPDATE makes it idempotent: replaying
// an end request for an already settled ride returns the settled ride
// unchanged, so a retry after a network timeout cannot double-bill.
func (r *Repository) EndRide(ctx context.Context, id, riderID uuid.UUID, lat, lng float64) (Ride, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return Ride{}, err
	}
	defer tx.Rollback()

	var ride Ride
	err = tx.GetContext(ctx, &ride, endRide_lock, id, riderID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Ride{}, ErrNotFound
		}
		return Ride{}, err
	}

	if ride.EndedAt.Valid || ride.CancelledAt.Valid {
		return ride, tx.Commit()
	}

	err = tx.GetContext(ctx, &ride, endRideQuery, id, lat, lng)
	if err != nil {
		return Ride{}, err
	}

	_, err = tx.ExecContext(ctx, endRide_releaseBike, ride.BikeID)
	if err != nil {
		return Ride{}, err
	}

	err = tx.Commit()
	return ride, err
}

const endRide_lock = `SELECT * FROM rides WHERE id = $1 AND rider_id = $2 FOR UPDATE`

// All SET expressions see the pre-update row, so cost is computed over the
// same pause state that is being folded in.
const endRideQuery = `
UPDATE rides SET
  ended_at = now(),
  end_lat = $2,
  end_lng = $3,
  paused_seconds = paused_seconds
    + CASE WHEN paused_at IS NOT NULL THEN ceil(extract(epoch FROM (now() - paused_at)))::bigint ELSE 0 END,
  paused_at = NULL,
  cost = ceil(GREATEST(
      extract(epoch FROM (now() - started_at))
      - paused_seconds
      - CASE WHEN paused_at IS NOT NULL THEN extract(epoch FROM (now() - paused_at)) ELSE 0 END,
    0) * hourly_rate / 3600.0)::bigint
WHERE id = $1 AND ended_at IS NULL
RETURNING *
`

const endRide_releaseBike = `UPDATE bikes SET status = 'available' WHERE id = $1 AND status = 'in_use'`

// MarkCharged records that a settlement charge was created for the ride.
func (r *Repository) MarkCharged(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, markChargedQuery, id)
	return err
}

const markChargedQuery = `UPDATE rides SET charge_created_at = now() WHERE id = $1 AND charge_created_at IS NULL`

// AddDistance accumulates GPS distance reported by the lock during a ride.
func (r *Repository) AddDistance(ctx context.Context, id uuid.UUID, meters float64) error {
	_, err := r.db.ExecContext(ctx, addDistanceQuery, meters, id)
	return err
}

const addDistanceQuery = `UPDATE rides SET distance_meters = distance_meters + $1 WHERE id = $2 AND ended_at IS NULL`

type rideInProgressError struct {
	riderID uuid.UUID
	rideID  uuid.UUID
}

func (e *rideInProgressError) Error() string {
	return "ride in progress for rider " + e.riderID.String()
}

func (e *rideInProgressError) Is(target error) bool {
	return target == ErrRideInProgress
}

// RiderFromRideInProgressError reports which rider an ErrRideInProgress
// belongs to, so handlers can treat the rider's own active ride as success.
func RiderFromRideInProgressError(err error) (uuid.UUID, bool) {
	var riperr *rideInProgressError
	if errors.As(err, &riperr) {
		return riperr.riderID, true
	}
	return uuid.UUID{}, false
}

package incident

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

var (
	ErrNotFound          = errors.New("incident not found")
	ErrInvalidType       = errors.New("invalid incident type")
	ErrInvalidTransition = errors.New("invalid status transition")
)

type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// Create inserts an incident. A critical type pushes the bike into
// maintenance in the same transaction, so the report and the bike state never
// disagree.
func (r *Repository) Create(ctx context.Context, inc *Incident) error {
	if !inc.Type.Valid() {
		return ErrInvalidType
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	err = tx.GetContext(ctx, inc, createQuery,
		inc.ID, inc.BikeID, inc.RideID, inc.ReporterID, inc.Type, inc.Severity, inc.Description)
	if err != nil {
		return err
	}

	if inc.Type.Critical() {
		_, err = tx.ExecContext(ctx, create_maintenance, inc.BikeID)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

const createQuery = `
INSERT INTO incidents (id, bike_id, ride_id, reporter_id, type, severity, status, description, created_at)
VALUES ($1, $2, $3, $4, $5, $6, 'reported', $7, now())
RETURNING *
`

const create_maintenance = `UPDATE bikes SET status = 'maintenance' WHERE id = $1`

func (r *Repository) Get(ctx context.Context, id uuid.UUID) (Incident, error) {
	var inc Incident
	err := r.db.GetContext(ctx, &inc, getQuery, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Incident{}, ErrNotFound
	}
	return inc, err
}

const getQuery = `SELECT * FROM incidents WHERE id = $1`

// ListByBike returns incidents for a bike, newest first.
func (r *Repository) ListByBike(ctx context.Context, bikeID uuid.UUID) ([]Incident, error) {
	var incidents []Incident
	err := r.db.SelectContext(ctx, &incidents, listByBikeQuery, bikeID)
	return incidents, err
}

const listByBikeQuery = `SELECT * FROM incidents WHERE bike_id = $1 ORDER BY created_at DESC`

// ListByReporter returns incidents reported by a user, newest first.
func (r *Repository) ListByReporter(ctx context.Context, reporterID uuid.UUID) ([]Incident, error) {
	var incidents []Incident
	err := r.db.SelectContext(ctx, &incidents, listByReporterQuery, reporterID)
	return incidents, err
}

const listByReporterQuery = `SELECT * FROM incidents WHERE reporter_id = $1 ORDER BY created_at DESC`

// UpdateStatus moves an incident along reported -> investigating -> resolved
// -> closed. Moving backwards is refused. A refund amount may be attached when
// resolving.
func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, status Status, refundAmount *int64) (Incident, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return Incident{}, err
	}
	defer tx.Rollback()

	var inc Incident
	err = tx.GetContext(ctx, &inc, updateStatus_lock, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Incident{}, ErrNotFound
	}
	if err != nil {
		return Incident{}, err
	}

	if status < inc.Status {
		return Incident{}, ErrInvalidTransition
	}

	err = tx.GetContext(ctx, &inc, updateStatusQuery, status.String(), refundAmount, status == Resolved, id)
	if err != nil {
		return Incident{}, err
	}

	return inc, tx.Commit()
}

const updateStatus_lock = `SELECT * FROM incidents WHERE id = $1 FOR UPDATE`

const updateStatusQuery = `
UPDATE incidents SET
  status = $1,
  refund_amount = COALESCE($2, refund_amount),
  resolved_at = CASE WHEN $3 AND resolved_at IS NULL THEN now() ELSE resolved_at END
WHERE id = $4
RETURNING *
`

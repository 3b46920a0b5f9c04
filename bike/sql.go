package bike

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
)

var ErrNotFound = errors.New("not found")

type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) GetBikes(ctx context.Context) ([]Bike, error) {
	var bikes []Bike
	err := r.db.SelectContext(ctx, &bikes, getBikes)
	return bikes, err
}

const getBikes = `SELECT * FROM bikes`

func (r *Repository) GetBike(ctx context.Context, code string) (Bike, error) {
	var bike Bike

	err := r.db.GetContext(ctx, &bike, getBike, code)
	if errors.Is(err, sql.ErrNoRows) {
		return bike, ErrNotFound
	}

	return bike, err
}

const getBike = `SELECT * FROM bikes WHERE code = $1`

// GetAvailableBikes fetches bikes a rider can unlock right now.
func (r *Repository) GetAvailableBikes(ctx context.Context) ([]Bike, error) {
	var bikes []Bike
	err := r.db.SelectContext(ctx, &bikes, getAvailableBikes)
	return bikes, err
}

const getAvailableBikes = `SELECT * FROM bikes WHERE status = 'available'`

// SetStatus is an administrative override of a bike's status.
func (r *Repository) SetStatus(ctx context.Context, code string, status Status) (Bike, error) {
	var bike Bike
	err := r.db.GetContext(ctx, &bike, setStatusQuery, status.String(), code)
	if errors.Is(err, sql.ErrNoRows) {
		return bike, ErrNotFound
	}
	return bike, err
}

const setStatusQuery = `UPDATE bikes SET status = $1 WHERE code = $2 RETURNING *`

// UpdateBattery records the battery level reported by the lock.
func (r *Repository) UpdateBattery(ctx context.Context, imei string, level int) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var status Status
	err = tx.GetContext(ctx, &status, updateBattery_getStatus, imei)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}

	_, err = tx.Exec(updateBattery, level, imei)
	if err != nil {
		return err
	}

	// A bike that reports critically low battery while idle is pulled out of
	// circulation until it is recharged.
	if level < 10 && status == Available {
		_, err = tx.Exec(updateBattery_unavailable, imei)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

const updateBattery_getStatus = `SELECT status FROM bikes WHERE imei = $1 FOR UPDATE`
const updateBattery = `UPDATE bikes SET battery_level = $1 WHERE imei = $2`
const updateBattery_unavailable = `UPDATE bikes SET status = 'unavailable' WHERE imei = $1`

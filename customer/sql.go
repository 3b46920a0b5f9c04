package customer

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
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

var ErrNotFound = errors.New("customer not found")

func (r *Repository) GetByAuth0ID(ctx context.Context, auth0ID string) (*Customer, error) {
	var customer Customer
	err := r.db.GetContext(ctx, &customer, getByAuth0IDQuery, auth0ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}

		return nil, err
	}
	return &customer, nil
}

const getByAuth0IDQuery = "SELECT * FROM customers WHERE auth0_id = $1"

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*Customer, error) {
	var customer Customer
	err := r.db.GetContext(ctx, &customer, getByIDQuery, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}

		return nil, err
	}
	return &customer, nil
}

const getByIDQuery = "SELECT * FROM customers WHERE id = $1"

func (r *Repository) Create(ctx context.Context, auth0ID string) (*Customer, error) {
	var customer Customer
	err := r.db.GetContext(ctx, &customer, createQuery, uuid.New(), auth0ID)
	return &customer, err
}

const createQuery = "INSERT INTO customers (id, auth0_id) VALUES ($1, $2) RETURNING *"

// GetOrCreate resolves the customer for a token subject, creating the row on
// first sight.
func (r *Repository) GetOrCreate(ctx context.Context, auth0ID string) (*Customer, error) {
	cust, err := r.GetByAuth0ID(ctx, auth0ID)
	if errors.Is(err, ErrNotFound) {
		return r.Create(ctx, auth0ID)
	}
	return cust, err
}

func (r *Repository) AddStripeID(ctx context.Context, auth0ID, stripeID string) error {
	_, err := r.db.ExecContext(ctx, addStripeIDQuery, stripeID, auth0ID)
	return err
}

const addStripeIDQuery = "UPDATE customers SET stripe_id = $1 WHERE auth0_id = $2"

func (r *Repository) UpdateProfile(ctx context.Context, auth0ID, email, name string) error {
	_, err := r.db.ExecContext(ctx, updateProfileQuery, email, name, auth0ID)
	return err
}

const updateProfileQuery = `UPDATE customers SET email = NULLIF($1, ''), name = NULLIF($2, '') WHERE auth0_id = $3`

package catalog

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

var ErrNotFound = errors.New("not found")

type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{
		db: db,
	}
}

func (r *Repository) GetPackages(ctx context.Context) ([]Package, error) {
	var packages []Package
	err := r.db.SelectContext(ctx, &packages, getPackages)
	return packages, err
}

const getPackages = `SELECT * FROM packages ORDER BY created_at ASC`

func (r *Repository) GetPackage(ctx context.Context, id uuid.UUID) (Package, error) {
	var pkg Package
	err := r.db.GetContext(ctx, &pkg, getPackage, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Package{}, ErrNotFound
	}
	return pkg, err
}

const getPackage = `SELECT * FROM packages WHERE id = $1`

func (r *Repository) CreatePackage(ctx context.Context, pkg *Package) error {
	return r.db.GetContext(ctx, pkg, createPackage, pkg.ID, pkg.Name, pkg.Description, pkg.Active)
}

const createPackage = `
INSERT INTO packages (id, name, description, active, created_at)
VALUES ($1, $2, $3, $4, now())
RETURNING *
`

func (r *Repository) UpdatePackage(ctx context.Context, pkg *Package) error {
	err := r.db.GetContext(ctx, pkg, updatePackage, pkg.Name, pkg.Description, pkg.Active, pkg.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

const updatePackage = `
UPDATE packages SET name = $1, description = $2, active = $3 WHERE id = $4 RETURNING *`

func (r *Repository) DeletePackage(ctx context.Context, id uuid.UUID) error {
	return r.deleteRow(ctx, deletePackage, id)
}

const deletePackage = `DELETE FROM packages WHERE id = $1`

func (r *Repository) GetFormulas(ctx context.Context, packageID *uuid.UUID) ([]Formula, error) {
	var formulas []Formula
	if packageID != nil {
		err := r.db.SelectContext(ctx, &formulas, getFormulasByPackage, *packageID)
		return formulas, err
	}
	err := r.db.SelectContext(ctx, &formulas, getFormulas)
	return formulas, err
}

const getFormulas = `SELECT * FROM formulas ORDER BY created_at ASC`
const getFormulasByPackage = `SELECT * FROM formulas WHERE package_id = $1 ORDER BY created_at ASC`

func (r *Repository) CreateFormula(ctx context.Context, f *Formula) error {
	return r.db.GetContext(ctx, f, createFormula, f.ID, f.PackageID, f.Name, f.HourlyRate, f.DailyCap, f.UnlockFee)
}

const createFormula = `
INSERT INTO formulas (id, package_id, name, hourly_rate, daily_cap, unlock_fee, created_at)
VALUES ($1, $2, $3, $4, $5, $6, now())
RETURNING *
`

func (r *Repository) UpdateFormula(ctx context.Context, f *Formula) error {
	err := r.db.GetContext(ctx, f, updateFormula, f.Name, f.HourlyRate, f.DailyCap, f.UnlockFee, f.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

const updateFormula = `
UPDATE formulas SET name = $1, hourly_rate = $2, daily_cap = $3, unlock_fee = $4 WHERE id = $5 RETURNING *`

func (r *Repository) DeleteFormula(ctx context.Context, id uuid.UUID) error {
	return r.deleteRow(ctx, deleteFormula, id)
}

const deleteFormula = `DELETE FROM formulas WHERE id = $1`

func (r *Repository) GetPromotions(ctx context.Context) ([]Promotion, error) {
	var promotions []Promotion
	err := r.db.SelectContext(ctx, &promotions, getPromotions)
	return promotions, err
}

const getPromotions = `SELECT * FROM promotions ORDER BY starts_at DESC`

func (r *Repository) GetPromotionByCode(ctx context.Context, code string) (Promotion, error) {
	var promo Promotion
	err := r.db.GetContext(ctx, &promo, getPromotionByCode, code)
	if errors.Is(err, sql.ErrNoRows) {
		return Promotion{}, ErrNotFound
	}
	return promo, err
}

const getPromotionByCode = `SELECT * FROM promotions WHERE code = $1`

func (r *Repository) CreatePromotion(ctx context.Context, p *Promotion) error {
	return r.db.GetContext(ctx, p, createPromotion, p.ID, p.Code, p.DiscountPercent, p.StartsAt, p.EndsAt, p.Active)
}

const createPromotion = `
INSERT INTO promotions (id, code, discount_percent, starts_at, ends_at, active, created_at)
VALUES ($1, $2, $3, $4, $5, $6, now())
RETURNING *
`

func (r *Repository) UpdatePromotion(ctx context.Context, p *Promotion) error {
	err := r.db.GetContext(ctx, p, updatePromotion, p.Code, p.DiscountPercent, p.StartsAt, p.EndsAt, p.Active, p.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

const updatePromotion = `
UPDATE promotions SET code = $1, discount_percent = $2, starts_at = $3, ends_at = $4, active = $5
WHERE id = $6 RETURNING *`

func (r *Repository) DeletePromotion(ctx context.Context, id uuid.UUID) error {
	return r.deleteRow(ctx, deletePromotion, id)
}

const deletePromotion = `DELETE FROM promotions WHERE id = $1`

func (r *Repository) deleteRow(ctx context.Context, query string, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

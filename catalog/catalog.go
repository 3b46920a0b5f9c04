// Package catalog holds the admin-managed commercial catalog: rental
// packages, their pricing formulas, and promotion codes.
package catalog

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

type Package struct {
	ID          uuid.UUID
	Name        string
	Description sql.NullString
	Active      bool
	CreatedAt   time.Time `db:"created_at"`
}

// Formula binds a package to concrete rate parameters.
type Formula struct {
	ID        uuid.UUID
	PackageID uuid.UUID `db:"package_id"`
	Name      string
	// HourlyRate and DailyCap are in minor currency units.
	HourlyRate int64         `db:"hourly_rate"`
	DailyCap   sql.NullInt64 `db:"daily_cap"`
	// UnlockFee is charged once per ride on top of the metered rate.
	UnlockFee int64     `db:"unlock_fee"`
	CreatedAt time.Time `db:"created_at"`
}

type Promotion struct {
	ID              uuid.UUID
	Code            string
	DiscountPercent int64     `db:"discount_percent"`
	StartsAt        time.Time `db:"starts_at"`
	EndsAt          time.Time `db:"ends_at"`
	Active          bool
	CreatedAt       time.Time `db:"created_at"`
}

// ValidAt reports whether the promotion can be applied at the given time.
func (p Promotion) ValidAt(now time.Time) bool {
	return p.Active && !p.StartsAt.After(now) && p.EndsAt.After(now)
}

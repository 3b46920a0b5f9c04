// Package bike
package bike

import (
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

type Status int

const (
	Available Status = iota
	InUse
	Maintenance
	Unavailable
)

func (s Status) String() string {
	return [...]string{"available", "in_use", "maintenance", "unavailable"}[s]
}

func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Status) Scan(i any) error {
	switch v := i.(type) {
	case string:
		switch v {
		case "available":
			*s = Available
			return nil
		case "in_use":
			*s = InUse
			return nil
		case "maintenance":
			*s = Maintenance
			return nil
		case "unavailable":
			*s = Unavailable
			return nil
		}
	}
	panic("invalid scan type")
}

// Bike represents a rentable bike or e-scooter in the fleet.
type Bike struct {
	// ID is an internal identifier for a bike
	ID uuid.UUID
	// Code is a physical label which is on the bike. It should be scannable
	// (e.g. "FB-0123") in QR Code or Code-128 format.
	Code string
	// IMEI is the identifier of the SIM card used in the bike's lock
	IMEI string

	Location pgtype.Point

	BatteryLevel int `db:"battery_level"`

	Status Status

	// HourlyRate is the pay-per-use rate in minor currency units per hour
	HourlyRate int64 `db:"hourly_rate"`
	// PerMinuteRate is an optional fallback rate used by short formulas
	PerMinuteRate *int64 `db:"per_minute_rate"`

	// DisplayName is a user-friendly name for the bike type (e.g. "City Cruiser 2")
	DisplayName *string `db:"display_name"`
	// ImageURL is a URL to an image of the bike
	ImageURL *string `db:"image_url"`
}

// MinUnlockBalance is the wallet balance required before a bike can be
// unlocked: enough to cover 30 minutes at the hourly rate. A balance exactly
// at the minimum unlocks.
func MinUnlockBalance(hourlyRate int64) int64 {
	return (hourlyRate + 1) / 2
}

package incident

import (
	"database/sql"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

type Type string

const (
	TypeBrakes         Type = "brakes"
	TypeTheft          Type = "theft"
	TypePhysicalDamage Type = "physical_damage"
	TypeFlatTire       Type = "flat_tire"
	TypeBattery        Type = "battery"
	TypeLock           Type = "lock"
	TypeOther          Type = "other"
)

// Critical reports whether an incident type forces the bike into
// maintenance pending review.
func (t Type) Critical() bool {
	switch t {
	case TypeBrakes, TypeTheft, TypePhysicalDamage:
		return true
	}
	return false
}

func (t Type) Valid() bool {
	switch t {
	case TypeBrakes, TypeTheft, TypePhysicalDamage, TypeFlatTire, TypeBattery, TypeLock, TypeOther:
		return true
	}
	return false
}

type Status int

const (
	Reported Status = iota
	Investigating
	Resolved
	Closed
)

func (s Status) String() string {
	return [...]string{"reported", "investigating", "resolved", "closed"}[s]
}

func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Status) Scan(i any) error {
	switch v := i.(type) {
	case string:
		switch v {
		case "reported":
			*s = Reported
			return nil
		case "investigating":
			*s = Investigating
			return nil
		case "resolved":
			*s = Resolved
			return nil
		case "closed":
			*s = Closed
			return nil
		}
	}
	panic("invalid scan type")
}

// ParseStatus maps a wire status string to a Status.
func ParseStatus(s string) (Status, bool) {
	switch s {
	case "reported":
		return Reported, true
	case "investigating":
		return Investigating, true
	case "resolved":
		return Resolved, true
	case "closed":
		return Closed, true
	}
	return Reported, false
}

type Incident struct {
	ID         uuid.UUID
	BikeID     uuid.UUID     `db:"bike_id"`
	RideID     uuid.NullUUID `db:"ride_id"`
	ReporterID uuid.UUID     `db:"reporter_id"`
	Type       Type
	Severity   int
	Status     Status
	// RefundAmount is credited to the reporter's wallet when the incident is
	// resolved with a refund.
	RefundAmount sql.NullInt64 `db:"refund_amount"`
	Description  sql.NullString
	CreatedAt    time.Time    `db:"created_at"`
	ResolvedAt   sql.NullTime `db:"resolved_at"`
}

// Package events carries the best-effort realtime stream: ride, wallet and
// incident notifications pushed to connected clients over SSE, with a polling
// fallback for clients that cannot hold a stream open.
package events

import (
	"time"

	"github.com/goccy/go-json"
)

type Type string

const (
	RideStarted     Type = "ride.started"
	RidePaused      Type = "ride.paused"
	RideResumed     Type = "ride.resumed"
	RideEnded       Type = "ride.ended"
	WalletUpdated   Type = "wallet.updated"
	IncidentUpdated Type = "incident.updated"
)

type Event struct {
	Type      Type            `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

// New builds an event, marshalling the payload. Marshal failures produce an
// event with an empty payload rather than dropping the notification.
func New(t Type, payload any) Event {
	ev := Event{Type: t, CreatedAt: time.Now()}
	if payload != nil {
		if data, err := json.Marshal(payload); err == nil {
			ev.Payload = data
		}
	}
	return ev
}

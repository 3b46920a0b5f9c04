package events

import (
	"sync"
	"time"
)

const subscriberBuffer = 16

// Hub fans events out to per-user subscriber channels. Delivery is
// best-effort: a subscriber that falls behind loses events rather than
// blocking the publisher.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[chan Event]struct{}

	// recent holds the last few events per user so polling clients can catch
	// up after the stream drops.
	recent map[string][]Event
}

const recentLimit = 50

func NewHub() *Hub {
	return &Hub{
		subs:   make(map[string]map[chan Event]struct{}),
		recent: make(map[string][]Event),
	}
}

// Subscribe registers a channel for a user's events. The returned cancel
// function must be called when the subscriber goes away.
func (h *Hub) Subscribe(userID string) (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	h.mu.Lock()
	if h.subs[userID] == nil {
		h.subs[userID] = make(map[chan Event]struct{})
	}
	h.subs[userID][ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if set, ok := h.subs[userID]; ok {
			delete(set, ch)
			if len(set) == 0 {
				delete(h.subs, userID)
			}
		}
		h.mu.Unlock()
	}

	return ch, cancel
}

// Publish delivers an event to all of a user's subscribers and records it
// for polling catch-up.
func (h *Hub) Publish(userID string, ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	buf := append(h.recent[userID], ev)
	if len(buf) > recentLimit {
		buf = buf[len(buf)-recentLimit:]
	}
	h.recent[userID] = buf

	for ch := range h.subs[userID] {
		select {
		case ch <- ev:
		default:
			// Subscriber is not draining; drop.
		}
	}
}

// Recent returns the events published for a user after the given time.
func (h *Hub) Recent(userID string, since time.Time) []Event {
	h.mu.RLock()
	defer h.mu.RUnlock()

	buf := h.recent[userID]
	out := make([]Event, 0, len(buf))
	for _, ev := range buf {
		if ev.CreatedAt.After(since) {
			out = append(out, ev)
		}
	}
	return out
}

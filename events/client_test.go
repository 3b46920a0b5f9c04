package events

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// failThenPollServer refuses the SSE stream and records poll requests.
type failThenPollServer struct {
	mu         sync.Mutex
	streamHits int
	pollHits   int
}

func (s *failThenPollServer) handler(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch r.URL.Path {
	case "/events":
		s.streamHits++
		w.WriteHeader(http.StatusInternalServerError)
	case "/notifications":
		s.pollHits++
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[]`))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func TestClientFallsBackToPollingAfterFiveReconnects(t *testing.T) {
	t.Parallel()

	srv := &failThenPollServer{}
	ts := httptest.NewServer(http.HandlerFunc(srv.handler))
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var sleeps []time.Duration
	c := NewClient(ts.URL, "test-token", discardLogger())
	c.sleep = func(ctx context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		// Stop once we have seen the reconnect backoffs plus the first poll
		// interval.
		if len(sleeps) >= 6 {
			cancel()
			return ctx.Err()
		}
		return nil
	}

	err := c.Run(ctx, func(Event) {})
	if err != context.Canceled {
		t.Fatalf("Run returned %v, want context.Canceled", err)
	}

	wantBackoffs := []time.Duration{
		3 * time.Second, 6 * time.Second, 9 * time.Second, 12 * time.Second, 15 * time.Second,
	}
	if len(sleeps) != 6 {
		t.Fatalf("got %d sleeps (%v), want 6", len(sleeps), sleeps)
	}
	for i, want := range wantBackoffs {
		if sleeps[i] != want {
			t.Errorf("reconnect delay %d = %v, want %v", i+1, sleeps[i], want)
		}
	}
	if sleeps[5] != 60*time.Second {
		t.Errorf("poll interval = %v, want 60s", sleeps[5])
	}

	srv.mu.Lock()
	defer srv.mu.Unlock()
	if srv.streamHits != 6 {
		t.Errorf("stream attempts = %d, want 6 (initial + 5 reconnects)", srv.streamHits)
	}
	if srv.pollHits != 1 {
		t.Errorf("poll requests = %d, want 1 before cancellation", srv.pollHits)
	}
}

func TestClientDeliversStreamedEvents(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/events" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, ": connected\n\n")
		io.WriteString(w, `data: {"type":"ride.started","createdAt":"2024-01-01T10:00:00Z"}`+"\n\n")
		io.WriteString(w, `data: {"type":"ride.ended","createdAt":"2024-01-01T10:05:00Z"}`+"\n\n")
	}))
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var got []Event
	c := NewClient(ts.URL, "test-token", discardLogger())
	c.sleep = func(ctx context.Context, d time.Duration) error {
		// The stream closes after two events; stop instead of reconnecting.
		cancel()
		return ctx.Err()
	}

	c.Run(ctx, func(ev Event) { got = append(got, ev) })

	if len(got) != 2 {
		t.Fatalf("got %d events, want 2", len(got))
	}
	if got[0].Type != RideStarted || got[1].Type != RideEnded {
		t.Errorf("event types = %s, %s", got[0].Type, got[1].Type)
	}
}

func TestHubPublishAndRecent(t *testing.T) {
	t.Parallel()

	h := NewHub()
	ch, cancel := h.Subscribe("user-1")
	defer cancel()

	ev := New(WalletUpdated, map[string]int64{"balance": 500})
	h.Publish("user-1", ev)
	h.Publish("user-2", New(RideStarted, nil))

	select {
	case got := <-ch:
		if got.Type != WalletUpdated {
			t.Errorf("got type %s, want %s", got.Type, WalletUpdated)
		}
	default:
		t.Fatal("expected an event on the subscriber channel")
	}

	recent := h.Recent("user-1", time.Time{})
	if len(recent) != 1 {
		t.Fatalf("Recent = %d events, want 1", len(recent))
	}
	if len(h.Recent("user-1", time.Now().Add(time.Hour))) != 0 {
		t.Error("Recent with future cutoff should be empty")
	}
}

func TestHubDropsWhenSubscriberFull(t *testing.T) {
	t.Parallel()

	h := NewHub()
	_, cancel := h.Subscribe("user-1")
	defer cancel()

	// Publishing far more than the buffer must not block.
	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer*4; i++ {
			h.Publish("user-1", New(RideResumed, nil))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full subscriber")
	}
}

package events

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

const (
	maxReconnectAttempts = 5
	reconnectBaseDelay   = 3 * time.Second
	pollInterval         = 60 * time.Second
)

var errStreamClosed = errors.New("event stream closed")

// Client consumes a user's event stream. It reconnects up to five times with
// a growing delay (3s, 6s, ... 15s); after that it stops trying to hold a
// stream open and falls back to polling the catch-up endpoint every minute.
// A successful stream connection resets the attempt counter.
type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
	Logger     *slog.Logger

	// sleep is swapped out in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

func NewClient(baseURL, token string, logger *slog.Logger) *Client {
	return &Client{
		BaseURL: baseURL,
		Token:   token,
		HTTPClient: &http.Client{
			// No overall timeout: the stream is long-lived. Dial/TLS limits
			// come from the default transport.
		},
		Logger: logger,
		sleep:  sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Run blocks, delivering events to onEvent until ctx is cancelled.
func (c *Client) Run(ctx context.Context, onEvent func(Event)) error {
	attempt := 0
	lastSeen := time.Time{}

	for {
		connected, err := c.stream(ctx, onEvent, &lastSeen)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if connected {
			attempt = 0
		}
		attempt++
		if attempt > maxReconnectAttempts {
			c.Logger.Warn("event stream unavailable, falling back to polling", "error", err)
			break
		}

		delay := reconnectBaseDelay * time.Duration(attempt)
		c.Logger.Info("event stream dropped, reconnecting",
			"attempt", attempt, "delay", delay, "error", err)
		if err := c.sleep(ctx, delay); err != nil {
			return err
		}
	}

	for {
		if err := c.pollOnce(ctx, onEvent, &lastSeen); err != nil {
			c.Logger.Warn("event poll failed", "error", err)
		}
		if err := c.sleep(ctx, pollInterval); err != nil {
			return err
		}
	}
}

// stream opens the SSE connection and delivers events until it drops.
// connected reports whether the server accepted the stream at all.
func (c *Client) stream(ctx context.Context, onEvent func(Event), lastSeen *time.Time) (connected bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/events", nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Authorization", "Bearer "+c.Token)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("event stream: status %d", resp.StatusCode)
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		connected = true

		data, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			// Comment/heartbeat or blank separator line.
			continue
		}

		var ev Event
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			c.Logger.Warn("bad event payload", "error", err)
			continue
		}
		if ev.CreatedAt.After(*lastSeen) {
			*lastSeen = ev.CreatedAt
		}
		onEvent(ev)
	}

	if err := scanner.Err(); err != nil {
		return connected, err
	}
	return connected, errStreamClosed
}

// pollOnce fetches the catch-up endpoint and delivers anything new.
func (c *Client) pollOnce(ctx context.Context, onEvent func(Event), lastSeen *time.Time) error {
	url := c.BaseURL + "/notifications"
	if !lastSeen.IsZero() {
		url += "?since=" + lastSeen.UTC().Format(time.RFC3339Nano)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.Token)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("event poll: status %d", resp.StatusCode)
	}

	var evs []Event
	if err := json.NewDecoder(resp.Body).Decode(&evs); err != nil {
		return err
	}

	for _, ev := range evs {
		if ev.CreatedAt.After(*lastSeen) {
			*lastSeen = ev.CreatedAt
		}
		onEvent(ev)
	}
	return nil
}

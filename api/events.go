package api

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"

	"github.com/freebike/rental-backend/events"
	"github.com/freebike/rental-backend/internal/middleware"
)

const heartbeatInterval = 15 * time.Second

// eventsHandler holds an SSE stream open, pushing the caller's notifications
// as they happen. Heartbeat comments keep intermediaries from timing the
// stream out.
func (a *API) eventsHandler(c *gin.Context) {
	cust, ok := a.currentCustomer(c)
	if !ok {
		return
	}

	ch, cancel := a.hub.Subscribe(cust.Auth0ID)
	defer cancel()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)
	c.Writer.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case <-heartbeat.C:
			io.WriteString(w, ": ping\n\n")
			return true
		case ev, open := <-ch:
			if !open {
				return false
			}
			data, err := json.Marshal(ev)
			if err != nil {
				middleware.GetLogger(c).Warn("Failed to marshal event", "error", err)
				return true
			}
			io.WriteString(w, "data: ")
			w.Write(data)
			io.WriteString(w, "\n\n")
			return true
		}
	})
}

// notificationsHandler is the polling fallback: recent events for the caller,
// optionally only those after ?since.
func (a *API) notificationsHandler(c *gin.Context) {
	cust, ok := a.currentCustomer(c)
	if !ok {
		return
	}

	since := time.Time{}
	if s := c.Query("since"); s != "" {
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid since timestamp"})
			return
		}
		since = t
	}

	recent := a.hub.Recent(cust.Auth0ID, since)
	if recent == nil {
		recent = []events.Event{}
	}
	c.JSON(http.StatusOK, recent)
}

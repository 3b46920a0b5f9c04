package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/freebike/rental-backend/bike"
	"github.com/freebike/rental-backend/events"
	"github.com/freebike/rental-backend/incident"
	"github.com/freebike/rental-backend/internal/middleware"
	"github.com/freebike/rental-backend/internal/redisstore"
	"github.com/freebike/rental-backend/wallet"
)

type createIncidentRequest struct {
	BikeCode    string     `json:"bikeCode" binding:"required"`
	RideID      *uuid.UUID `json:"rideId"`
	Type        string     `json:"type" binding:"required"`
	Severity    int        `json:"severity"`
	Description string     `json:"description"`
}

func (a *API) createIncidentHandler(c *gin.Context) {
	logger := middleware.GetLogger(c)

	var req createIncidentRequest
	if err := c.Bind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cust, ok := a.currentCustomer(c)
	if !ok {
		return
	}

	bk, err := a.repos.Bikes.GetBike(c, req.BikeCode)
	if err != nil {
		if errors.Is(err, bike.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"code": "BIKE_NOT_FOUND", "message": "Unknown bike code"})
			return
		}
		logger.Error("Failed to get bike", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	inc := incident.Incident{
		ID:         uuid.New(),
		BikeID:     bk.ID,
		ReporterID: cust.ID,
		Type:       incident.Type(req.Type),
		Severity:   req.Severity,
	}
	if req.RideID != nil {
		inc.RideID = uuid.NullUUID{UUID: *req.RideID, Valid: true}
	}
	if req.Description != "" {
		inc.Description.String = req.Description
		inc.Description.Valid = true
	}

	if err := a.repos.Incidents.Create(c, &inc); err != nil {
		if errors.Is(err, incident.ErrInvalidType) {
			c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_TYPE", "message": "Unknown incident type"})
			return
		}
		logger.Error("Failed to create incident", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	// A critical incident just pulled the bike out of circulation.
	if inc.Type.Critical() {
		if err := a.cache.Invalidate(c, redisstore.BikeKey(bk.Code)); err != nil {
			logger.Warn("Failed to invalidate bike cache", "error", err)
		}
	}

	c.JSON(http.StatusCreated, inc)
}

func (a *API) listIncidentsHandler(c *gin.Context) {
	logger := middleware.GetLogger(c)

	cust, ok := a.currentCustomer(c)
	if !ok {
		return
	}

	incidents, err := a.repos.Incidents.ListByReporter(c, cust.ID)
	if err != nil {
		logger.Error("Failed to list incidents", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, incidents)
}

// listBikeIncidentsHandler gives operations the incident history of a bike,
// newest first.
func (a *API) listBikeIncidentsHandler(c *gin.Context) {
	logger := middleware.GetLogger(c)

	bk, err := a.repos.Bikes.GetBike(c, c.Param("code"))
	if err != nil {
		if errors.Is(err, bike.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"code": "BIKE_NOT_FOUND", "message": "Unknown bike code"})
			return
		}
		logger.Error("Failed to get bike", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	incidents, err := a.repos.Incidents.ListByBike(c, bk.ID)
	if err != nil {
		logger.Error("Failed to list bike incidents", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, incidents)
}

func (a *API) getIncidentHandler(c *gin.Context) {
	logger := middleware.GetLogger(c)

	cust, ok := a.currentCustomer(c)
	if !ok {
		return
	}

	id, err := uuid.Parse(c.Param("incidentId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid incident id"})
		return
	}

	inc, err := a.repos.Incidents.Get(c, id)
	if err != nil {
		if errors.Is(err, incident.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"code": "INCIDENT_NOT_FOUND", "message": "Unknown incident"})
			return
		}
		logger.Error("Failed to get incident", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if inc.ReporterID != cust.ID {
		c.JSON(http.StatusForbidden, gin.H{"code": "FORBIDDEN", "message": "Not your incident"})
		return
	}

	c.JSON(http.StatusOK, inc)
}

type updateIncidentRequest struct {
	Status       string `json:"status" binding:"required"`
	RefundAmount *int64 `json:"refundAmount"`
}

// updateIncidentHandler moves an incident along its lifecycle. Resolving with
// a refund credits the reporter's wallet; the ledger's (type, ref) uniqueness
// keeps a replayed resolve from refunding twice.
func (a *API) updateIncidentHandler(c *gin.Context) {
	logger := middleware.GetLogger(c)

	var req updateIncidentRequest
	if err := c.Bind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	id, err := uuid.Parse(c.Param("incidentId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid incident id"})
		return
	}

	status, ok := incident.ParseStatus(req.Status)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_STATUS", "message": "Unknown incident status"})
		return
	}

	inc, err := a.repos.Incidents.UpdateStatus(c, id, status, req.RefundAmount)
	if err != nil {
		switch {
		case errors.Is(err, incident.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"code": "INCIDENT_NOT_FOUND", "message": "Unknown incident"})
		case errors.Is(err, incident.ErrInvalidTransition):
			c.JSON(http.StatusConflict, gin.H{"code": "INVALID_TRANSITION", "message": "Incident status cannot move backwards"})
		default:
			logger.Error("Failed to update incident", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	reporter, rerr := a.repos.Customers.GetByID(c, inc.ReporterID)

	if status == incident.Resolved && inc.RefundAmount.Valid && inc.RefundAmount.Int64 > 0 {
		w, err := a.repos.Wallets.Credit(c, inc.ReporterID, inc.RefundAmount.Int64, wallet.EntryIncidentRefund, &inc.ID)
		if err != nil {
			logger.Error("Failed to credit incident refund", "error", err, "incidentId", inc.ID)
		} else if rerr == nil {
			a.hub.Publish(reporter.Auth0ID, events.New(events.WalletUpdated, walletJSON(w)))
		}
	}

	if rerr == nil {
		a.hub.Publish(reporter.Auth0ID, events.New(events.IncidentUpdated, inc))
	}

	c.JSON(http.StatusOK, inc)
}

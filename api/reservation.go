package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/freebike/rental-backend/bike"
	"github.com/freebike/rental-backend/internal/middleware"
	"github.com/freebike/rental-backend/reservation"
	"github.com/freebike/rental-backend/subscription"
)

type reservationResponse struct {
	ID          uuid.UUID `json:"id"`
	BikeID      uuid.UUID `json:"bikeId"`
	BikeCode    string    `json:"bikeCode"`
	BikeName    *string   `json:"bikeName,omitempty"`
	PackageType string    `json:"packageType"`
	StartTime   time.Time `json:"startTime"`
	EndTime     time.Time `json:"endTime"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"createdAt"`
}

func reservationJSON(r reservation.Reservation) reservationResponse {
	resp := reservationResponse{
		ID:          r.ID,
		BikeID:      r.BikeID,
		BikeCode:    r.BikeCode,
		PackageType: r.PackageType,
		StartTime:   r.StartTime,
		EndTime:     r.EndTime,
		Status:      string(r.Status()),
		CreatedAt:   r.CreatedAt,
	}
	if r.BikeName.Valid {
		name := r.BikeName.String
		resp.BikeName = &name
	}
	return resp
}

// reservationWindow turns a start time and package type into the concrete
// half-open window the reservation occupies.
func reservationWindow(startStr, packageStr string) (time.Time, time.Time, subscription.PackageType, error) {
	start, err := time.Parse(time.RFC3339, startStr)
	if err != nil {
		return time.Time{}, time.Time{}, "", errors.New("invalid startTime format")
	}

	pkg := subscription.PackageType(packageStr)
	if !pkg.Valid() {
		return time.Time{}, time.Time{}, "", errors.New("invalid packageType")
	}

	return start, start.Add(pkg.Duration()), pkg, nil
}

// checkAvailabilityHandler is the advisory pre-check before creating a
// reservation. The answer can go stale immediately; createReservationHandler
// re-checks inside a transaction.
func (a *API) checkAvailabilityHandler(c *gin.Context) {
	logger := middleware.GetLogger(c)

	cust, ok := a.currentCustomer(c)
	if !ok {
		return
	}

	bk, err := a.repos.Bikes.GetBike(c, c.Query("bikeCode"))
	if err != nil {
		if errors.Is(err, bike.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"code": "BIKE_NOT_FOUND", "message": "Unknown bike code"})
			return
		}
		logger.Error("Failed to get bike", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	start, end, _, err := reservationWindow(c.Query("startTime"), c.Query("packageType"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_WINDOW", "message": err.Error()})
		return
	}

	available, err := a.repos.Reservations.CheckAvailability(c, bk.ID, start, end)
	if err != nil {
		logger.Error("Failed to check availability", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := gin.H{"available": available, "startTime": start, "endTime": end}

	// Warn about the next reservation by someone else after the window, so
	// the client can show how long the bike is actually free for.
	if next, err := a.repos.Reservations.GetNextByOtherUser(c, bk.ID, cust.ID, end); err == nil && next != nil {
		resp["nextReservationAt"] = next.StartTime
	}

	c.JSON(http.StatusOK, resp)
}

type createReservationRequest struct {
	BikeCode    string `json:"bikeCode" binding:"required"`
	StartTime   string `json:"startTime" binding:"required"`
	PackageType string `json:"packageType" binding:"required"`
}

func (a *API) createReservationHandler(c *gin.Context) {
	logger := middleware.GetLogger(c)

	var req createReservationRequest
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

	start, end, pkg, err := reservationWindow(req.StartTime, req.PackageType)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_WINDOW", "message": err.Error()})
		return
	}
	if start.Before(time.Now()) {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_WINDOW", "message": "startTime is in the past"})
		return
	}

	res := reservation.Reservation{
		ID:          uuid.New(),
		BikeID:      bk.ID,
		UserID:      cust.ID,
		PackageType: string(pkg),
		StartTime:   start,
		EndTime:     end,
	}
	if err := a.repos.Reservations.Create(c, &res); err != nil {
		if errors.Is(err, reservation.ErrOverlap) {
			c.JSON(http.StatusConflict, gin.H{"code": "RESERVATION_CONFLICT", "message": "Bike is already reserved for that window"})
			return
		}
		if errors.Is(err, reservation.ErrInvalidDuration) {
			c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_WINDOW", "message": "end must be after start"})
			return
		}
		logger.Error("Failed to create reservation", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	res.BikeCode = bk.Code
	c.JSON(http.StatusCreated, reservationJSON(res))
}

func (a *API) getReservationsHandler(c *gin.Context) {
	logger := middleware.GetLogger(c)

	cust, ok := a.currentCustomer(c)
	if !ok {
		return
	}

	var statusFilter *reservation.Status
	if s := c.Query("status"); s != "" {
		status := reservation.Status(s)
		statusFilter = &status
	}

	reservations, err := a.repos.Reservations.GetByUserID(c, cust.ID, statusFilter)
	if err != nil {
		logger.Error("Failed to list reservations", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	out := make([]reservationResponse, 0, len(reservations))
	for _, r := range reservations {
		out = append(out, reservationJSON(r))
	}
	c.JSON(http.StatusOK, out)
}

func (a *API) cancelReservationHandler(c *gin.Context) {
	logger := middleware.GetLogger(c)

	cust, ok := a.currentCustomer(c)
	if !ok {
		return
	}

	id, err := uuid.Parse(c.Param("reservationId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid reservation id"})
		return
	}

	res, err := a.repos.Reservations.Cancel(c, id, cust.ID)
	if err != nil {
		switch {
		case errors.Is(err, reservation.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"code": "RESERVATION_NOT_FOUND", "message": "Unknown reservation"})
		case errors.Is(err, reservation.ErrNotAuthorized):
			c.JSON(http.StatusForbidden, gin.H{"code": "FORBIDDEN", "message": "Not your reservation"})
		case errors.Is(err, reservation.ErrCannotCancel):
			c.JSON(http.StatusConflict, gin.H{"code": "CANNOT_CANCEL", "message": "Reservation has already started, been used or been cancelled"})
		default:
			logger.Error("Failed to cancel reservation", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, reservationJSON(res))
}

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/freebike/rental-backend/internal/middleware"
)

type bikeAvailabilityResponse struct {
	BikeID       uuid.UUID                     `json:"bikeId"`
	BikeCode     string                        `json:"bikeCode"`
	DisplayName  *string                       `json:"displayName,omitempty"`
	BikeImage    *string                       `json:"imageUrl,omitempty"`
	Status       string                        `json:"status"`
	BatteryLevel int                           `json:"batteryLevel"`
	HourlyRate   int64                         `json:"hourlyRate"`
	Reservations []reservationTimeSlotResponse `json:"reservations"`
}

type reservationTimeSlotResponse struct {
	StartTime        time.Time `json:"startTime"`
	EndTime          time.Time `json:"endTime"`
	IsOwnReservation bool      `json:"isOwnReservation"`
}

// availabilityHandler lists the fleet with each bike's reserved windows, so
// clients can show when a bike is bookable. Other riders' windows are
// anonymised to a busy slot.
func (a *API) availabilityHandler(c *gin.Context) {
	logger := middleware.GetLogger(c)

	cust, ok := a.currentCustomer(c)
	if !ok {
		return
	}

	startDate, endDate, err := parseDate(c.Query("startDate"), c.Query("endDate"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_DATE", "message": err.Error()})
		return
	}

	bikes, err := a.repos.Bikes.GetBikes(c)
	if err != nil {
		logger.ErrorContext(c, "failed to get bikes", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	availability := make([]bikeAvailabilityResponse, 0, len(bikes))
	for _, bk := range bikes {
		slots, err := a.repos.Reservations.GetSlotsForBike(c, bk.ID, startDate, endDate)
		if err != nil {
			logger.ErrorContext(c, "failed to get slots for bike", "bikeId", bk.ID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}

		reservations := make([]reservationTimeSlotResponse, 0, len(slots))
		for _, slot := range slots {
			reservations = append(reservations, reservationTimeSlotResponse{
				StartTime:        slot.StartTime,
				EndTime:          slot.EndTime,
				IsOwnReservation: slot.UserID == cust.ID,
			})
		}

		availability = append(availability, bikeAvailabilityResponse{
			BikeID:       bk.ID,
			BikeCode:     bk.Code,
			DisplayName:  bk.DisplayName,
			BikeImage:    bk.ImageURL,
			Status:       bk.Status.String(),
			BatteryLevel: bk.BatteryLevel,
			HourlyRate:   bk.HourlyRate,
			Reservations: reservations,
		})
	}

	c.JSON(http.StatusOK, availability)
}

func parseDate(startDateStr string, endDateStr string) (*time.Time, *time.Time, error) {
	var startDate, endDate *time.Time
	if startDateStr != "" {
		t, err := time.Parse(time.RFC3339, startDateStr)
		if err != nil {
			return nil, nil, errors.New("invalid startDate format")
		}
		startDate = &t
	}
	if endDateStr != "" {
		t, err := time.Parse(time.RFC3339, endDateStr)
		if err != nil {
			return nil, nil, errors.New("invalid endDate format")
		}
		endDate = &t
	}
	return startDate, endDate, nil
}

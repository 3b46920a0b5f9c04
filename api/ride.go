package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/invoice"
	"go.opentelemetry.io/otel"

	"github.com/freebike/rental-backend/bike"
	"github.com/freebike/rental-backend/events"
	"github.com/freebike/rental-backend/internal/middleware"
	"github.com/freebike/rental-backend/internal/redisstore"
	riderepo "github.com/freebike/rental-backend/ride"
	"github.com/freebike/rental-backend/wallet"
)

type startRideRequest struct {
	BikeCode            string  `json:"bikeCode" binding:"required"`
	Lat                 float64 `json:"lat"`
	Lng                 float64 `json:"lng"`
	InspectionConfirmed bool    `json:"inspectionConfirmed"`
	// BatteryLevel is the charge percentage the app read from the lock over
	// Bluetooth while pairing. Zero means not reported.
	BatteryLevel int `json:"batteryLevel"`
}

type rideResponse struct {
	ID              uuid.UUID  `json:"id"`
	BikeID          uuid.UUID  `json:"bikeId"`
	Status          string     `json:"status"`
	StartedAt       time.Time  `json:"startedAt"`
	EndedAt         *time.Time `json:"endedAt,omitempty"`
	ElapsedSeconds  int64      `json:"elapsedSeconds"`
	BillableSeconds int64      `json:"billableSeconds"`
	PausedSeconds   int64      `json:"pausedSeconds"`
	DistanceMeters  float64    `json:"distanceMeters"`
	HourlyRate      int64      `json:"hourlyRate"`
	EstimatedCost   int64      `json:"estimatedCost"`
	Cost            *int64     `json:"cost,omitempty"`
}

func rideJSON(r riderepo.Ride) rideResponse {
	now := time.Now()
	resp := rideResponse{
		ID:              r.ID,
		BikeID:          r.BikeID,
		Status:          r.StatusAt(now).String(),
		StartedAt:       r.StartedAt,
		ElapsedSeconds:  int64(r.ElapsedAt(now).Seconds()),
		BillableSeconds: r.BillableAt(now),
		PausedSeconds:   r.PausedSeconds,
		DistanceMeters:  r.DistanceMeters,
		HourlyRate:      r.HourlyRate,
		EstimatedCost:   r.EstimateAt(now),
	}
	if r.EndedAt.Valid {
		t := r.EndedAt.Time
		resp.EndedAt = &t
	}
	if r.Cost.Valid {
		v := r.Cost.Int64
		resp.Cost = &v
	}
	return resp
}

// startRideHandler is the unlock flow: inspection acknowledgement, balance
// gate, a short Redis lock so two riders scanning the same bike don't race,
// then the transactional start. A reservation covering now is consumed.
func (a *API) startRideHandler(c *gin.Context) {
	logger := middleware.GetLogger(c)

	var req startRideRequest
	if err := c.Bind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !req.InspectionConfirmed {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"code":    "INSPECTION_REQUIRED",
			"message": "Confirm the pre-ride inspection before unlocking",
		})
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

	w, err := a.repos.Wallets.GetByUser(c, cust.ID)
	if err != nil {
		logger.Error("Failed to get wallet", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if min := bike.MinUnlockBalance(bk.HourlyRate); w.Balance < min {
		c.JSON(http.StatusPaymentRequired, gin.H{
			"code":           "INSUFFICIENT_BALANCE",
			"message":        "Balance too low to unlock this bike",
			"minimumBalance": min,
			"currentBalance": w.Balance,
		})
		return
	}

	locked, err := a.locks.AcquireBikeLock(c, bk.Code, 10*time.Second)
	if err != nil {
		logger.Error("Failed to acquire bike lock", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !locked {
		c.JSON(http.StatusConflict, gin.H{"code": "BIKE_BUSY", "message": "Bike is being unlocked by another rider"})
		return
	}
	defer a.locks.ReleaseBikeLock(c, bk.Code)

	ride, err := a.repos.Rides.StartRide(c, bk.ID, cust.ID, req.Lat, req.Lng)
	if err != nil {
		if riderID, ok := riderepo.RiderFromRideInProgressError(err); ok && riderID == cust.ID {
			logger.Info("Rider already has an active ride")
			active, aerr := a.repos.Rides.GetActiveByRider(c, cust.ID)
			if aerr != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": aerr.Error()})
				return
			}
			c.JSON(http.StatusOK, rideJSON(active))
			return
		}
		if errors.Is(err, riderepo.ErrBikeNotAvailable) {
			c.JSON(http.StatusConflict, gin.H{"code": "BIKE_NOT_AVAILABLE", "message": "Bike is not available"})
			return
		}
		if errors.Is(err, riderepo.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"code": "BIKE_NOT_FOUND", "message": "Unknown bike"})
			return
		}
		logger.Error("Failed to start ride", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	// Best effort: consume a reservation covering now, if one exists.
	if err := a.repos.Reservations.MarkUsed(c, bk.ID, cust.ID); err != nil {
		logger.Warn("Failed to mark reservation used", "error", err)
	}

	if req.BatteryLevel > 0 {
		if err := a.repos.Bikes.UpdateBattery(c, bk.IMEI, req.BatteryLevel); err != nil {
			logger.Warn("Failed to record battery level", "error", err)
		}
	}

	if err := a.cache.Invalidate(c, redisstore.BikeKey(bk.Code)); err != nil {
		logger.Warn("Failed to invalidate bike cache", "error", err)
	}

	middleware.CountRideStarted()
	a.hub.Publish(cust.Auth0ID, events.New(events.RideStarted, rideJSON(ride)))

	c.JSON(http.StatusCreated, rideJSON(ride))
}

type rideStateResponse struct {
	InProgress bool          `json:"inProgress"`
	Ride       *rideResponse `json:"ride,omitempty"`
}

func (a *API) currentRideHandler(c *gin.Context) {
	_, span := otel.GetTracerProvider().Tracer("api").Start(c.Request.Context(), "currentRideHandler")
	defer span.End()

	logger := middleware.GetLogger(c)

	cust, ok := a.currentCustomer(c)
	if !ok {
		return
	}

	ride, err := a.repos.Rides.GetActiveByRider(c, cust.ID)
	if err != nil {
		if errors.Is(err, riderepo.ErrNotFound) {
			c.JSON(http.StatusOK, rideStateResponse{InProgress: false})
			return
		}
		logger.Error("Failed to get current ride", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := rideJSON(ride)
	c.JSON(http.StatusOK, rideStateResponse{InProgress: true, Ride: &resp})
}

func (a *API) listRidesHandler(c *gin.Context) {
	logger := middleware.GetLogger(c)

	cust, ok := a.currentCustomer(c)
	if !ok {
		return
	}

	rides, err := a.repos.Rides.ListByRider(c, cust.ID)
	if err != nil {
		logger.Error("Failed to list rides", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	out := make([]rideResponse, 0, len(rides))
	for _, r := range rides {
		out = append(out, rideJSON(r))
	}
	c.JSON(http.StatusOK, out)
}

func (a *API) pauseRideHandler(c *gin.Context) {
	a.pauseResume(c, a.repos.Rides.Pause, events.RidePaused)
}

func (a *API) resumeRideHandler(c *gin.Context) {
	a.pauseResume(c, a.repos.Rides.Resume, events.RideResumed)
}

func (a *API) pauseResume(c *gin.Context, op func(ctx context.Context, id, riderID uuid.UUID) (riderepo.Ride, error), evType events.Type) {
	logger := middleware.GetLogger(c)

	cust, ok := a.currentCustomer(c)
	if !ok {
		return
	}

	rideID, err := uuid.Parse(c.Param("rideId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid ride id"})
		return
	}

	ride, err := op(c, rideID, cust.ID)
	if err != nil {
		switch {
		case errors.Is(err, riderepo.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"code": "RIDE_NOT_FOUND", "message": "Unknown ride"})
		case errors.Is(err, riderepo.ErrRideEnded):
			c.JSON(http.StatusConflict, gin.H{"code": "RIDE_ENDED", "message": "Ride has already ended"})
		case errors.Is(err, riderepo.ErrAlreadyPaused):
			c.JSON(http.StatusConflict, gin.H{"code": "ALREADY_PAUSED", "message": "Ride is already paused"})
		case errors.Is(err, riderepo.ErrNotPaused):
			c.JSON(http.StatusConflict, gin.H{"code": "NOT_PAUSED", "message": "Ride is not paused"})
		default:
			logger.Error("Failed to update ride pause state", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	a.hub.Publish(cust.Auth0ID, events.New(evType, rideJSON(ride)))
	c.JSON(http.StatusOK, rideJSON(ride))
}

type endRideRequest struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
	// DistanceMeters is the trip distance the app measured. Only applied while
	// the ride is still open, so a replayed end call cannot double-count it.
	DistanceMeters float64 `json:"distanceMeters"`
}

// endRideHandler settles the ride. Replays are safe end to end: the ride
// update is guarded, the wallet debit dedupes on the ride ID, and the whole
// response is also cached by the idempotency middleware.
func (a *API) endRideHandler(c *gin.Context) {
	logger := middleware.GetLogger(c)

	var req endRideRequest
	if err := c.Bind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cust, ok := a.currentCustomer(c)
	if !ok {
		return
	}

	rideID, err := uuid.Parse(c.Param("rideId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid ride id"})
		return
	}

	alreadySettled := false
	if existing, err := a.repos.Rides.GetByID(c, rideID, cust.ID); err == nil {
		alreadySettled = existing.EndedAt.Valid
	}

	if req.DistanceMeters > 0 && !alreadySettled {
		if err := a.repos.Rides.AddDistance(c, rideID, req.DistanceMeters); err != nil {
			logger.Warn("Failed to record ride distance", "error", err)
		}
	}

	ride, err := a.repos.Rides.EndRide(c, rideID, cust.ID, req.Lat, req.Lng)
	if err != nil {
		if errors.Is(err, riderepo.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"code": "RIDE_NOT_FOUND", "message": "Unknown ride"})
			return
		}
		logger.Error("Failed to end ride", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	w, err := a.repos.Wallets.DebitForRide(c, cust.ID, ride.ID, ride.Cost.Int64)
	if err != nil {
		if errors.Is(err, wallet.ErrInsufficientFunds) {
			// Ride is settled but the debt exceeds even the deposit. Record
			// nothing further; the rider is blocked from unlocking until
			// topped up.
			logger.Warn("Ride settled with unpayable balance", "rideId", ride.ID, "cost", ride.Cost.Int64)
			c.JSON(http.StatusOK, rideJSON(ride))
			return
		}
		logger.Error("Failed to debit wallet for ride", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if !alreadySettled {
		middleware.CountRideEnded()
		a.hub.Publish(cust.Auth0ID, events.New(events.RideEnded, rideJSON(ride)))
		a.hub.Publish(cust.Auth0ID, events.New(events.WalletUpdated, walletJSON(w)))

		if cust.StripeID.Valid && !ride.ChargeCreatedAt.Valid {
			go a.invoiceRide(logger, cust.StripeID.String, ride)
		}
	}

	c.JSON(http.StatusOK, rideJSON(ride))
}

// invoiceRide mirrors the wallet charge onto the rider's Stripe invoice for
// receipts. Runs async; failures are logged and retried by the reconciliation
// job, never surfaced to the rider.
func (a *API) invoiceRide(logger *slog.Logger, stripeID string, ride riderepo.Ride) {
	inParams := &stripe.InvoiceParams{
		Customer: stripe.String(stripeID),
	}
	in, err := invoice.New(inParams)
	if err != nil {
		logger.Error("Failed to create invoice", "error", err)
		return
	}

	mins := ride.BillableAt(ride.EndedAt.Time) / 60
	ilParams := &stripe.InvoiceAddLinesParams{
		Lines: []*stripe.InvoiceAddLinesLineParams{
			{
				Amount:      stripe.Int64(ride.Cost.Int64),
				Description: stripe.String(fmt.Sprintf("Ride - %d minutes", mins)),
			},
		},
	}
	_, err = invoice.AddLines(in.ID, ilParams)
	if err != nil {
		logger.Error("Failed to add lines to invoice", "error", err)
		return
	}

	_, err = invoice.FinalizeInvoice(in.ID, &stripe.InvoiceFinalizeInvoiceParams{})
	if err != nil {
		logger.Error("Failed to finalize invoice", "error", err)
		return
	}

	if err := a.repos.Rides.MarkCharged(context.Background(), ride.ID); err != nil {
		logger.Error("Failed to mark ride charged", "error", err)
	}
}

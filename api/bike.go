package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/freebike/rental-backend/bike"
	"github.com/freebike/rental-backend/internal/middleware"
	"github.com/freebike/rental-backend/internal/redisstore"
)

func (a *API) bikesHandler(c *gin.Context) {
	logger := middleware.GetLogger(c)

	var (
		bikes []bike.Bike
		err   error
	)
	if c.Query("available") == "true" {
		bikes, err = a.repos.Bikes.GetAvailableBikes(c)
	} else {
		bikes, err = a.repos.Bikes.GetBikes(c)
	}
	if err != nil {
		logger.Error("Failed to get bikes", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, bikes)
}

func (a *API) bikeHandler(c *gin.Context) {
	logger := middleware.GetLogger(c)
	code := c.Param("code")

	var bk bike.Bike
	hit, err := a.cache.GetJSON(c, redisstore.BikeKey(code), &bk)
	if err != nil {
		logger.Warn("Bike cache read failed", "error", err)
	}
	if hit {
		c.JSON(http.StatusOK, bk)
		return
	}

	bk, err = a.repos.Bikes.GetBike(c, code)
	if err != nil {
		if errors.Is(err, bike.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"code": "BIKE_NOT_FOUND", "message": "Unknown bike code"})
			return
		}
		logger.Error("Failed to get bike", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if err := a.cache.SetJSON(c, redisstore.BikeKey(code), bk, redisstore.BikeCacheTTL); err != nil {
		logger.Warn("Bike cache write failed", "error", err)
	}

	c.JSON(http.StatusOK, bk)
}

type setBikeStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

func (a *API) setBikeStatusHandler(c *gin.Context) {
	logger := middleware.GetLogger(c)
	code := c.Param("code")

	var req setBikeStatusRequest
	if err := c.Bind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var status bike.Status
	switch req.Status {
	case "available":
		status = bike.Available
	case "maintenance":
		status = bike.Maintenance
	case "unavailable":
		status = bike.Unavailable
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
		return
	}

	bk, err := a.repos.Bikes.SetStatus(c, code, status)
	if err != nil {
		if errors.Is(err, bike.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"code": "BIKE_NOT_FOUND", "message": "Unknown bike code"})
			return
		}
		logger.Error("Failed to set bike status", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if err := a.cache.Invalidate(c, redisstore.BikeKey(code)); err != nil {
		logger.Warn("Failed to invalidate bike cache", "error", err)
	}

	c.JSON(http.StatusOK, bk)
}

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/freebike/rental-backend/catalog"
	"github.com/freebike/rental-backend/events"
	"github.com/freebike/rental-backend/internal/middleware"
	"github.com/freebike/rental-backend/internal/redisstore"
	"github.com/freebike/rental-backend/subscription"
	"github.com/freebike/rental-backend/wallet"
)

func (a *API) getPlansHandler(c *gin.Context) {
	logger := middleware.GetLogger(c)

	var plans []subscription.Plan
	hit, err := a.cache.GetJSON(c, redisstore.PlansKey(), &plans)
	if err != nil {
		logger.Warn("Plan cache read failed", "error", err)
	}
	if hit {
		c.JSON(http.StatusOK, plans)
		return
	}

	plans, err = a.repos.Subscriptions.GetAvailablePlans(c)
	if err != nil {
		logger.Error("Failed to get plans", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if err := a.cache.SetJSON(c, redisstore.PlansKey(), plans, redisstore.PlanCacheTTL); err != nil {
		logger.Warn("Plan cache write failed", "error", err)
	}

	c.JSON(http.StatusOK, plans)
}

// quoteHandler prices a plan for display. The purchase path recomputes the
// quote; this response carries no authority.
func (a *API) quoteHandler(c *gin.Context) {
	logger := middleware.GetLogger(c)

	planID, err := uuid.Parse(c.Query("planId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid planId"})
		return
	}

	plan, err := a.repos.Subscriptions.GetPlan(c, planID)
	if err != nil {
		if errors.Is(err, subscription.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"code": "PLAN_NOT_FOUND", "message": "Unknown plan"})
			return
		}
		logger.Error("Failed to get plan", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	q := subscription.QuoteFor(plan)
	if code := c.Query("promo"); code != "" {
		percent, ok := a.resolvePromotion(c, code)
		if !ok {
			return
		}
		q = q.ApplyPromotion(percent)
	}

	c.JSON(http.StatusOK, q)
}

// resolvePromotion validates a promo code for immediate use. On failure the
// error response has already been written.
func (a *API) resolvePromotion(c *gin.Context, code string) (int64, bool) {
	promo, err := a.repos.Catalog.GetPromotionByCode(c, code)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			c.JSON(http.StatusBadRequest, gin.H{"code": "PROMO_INVALID", "message": "Unknown promo code"})
			return 0, false
		}
		middleware.GetLogger(c).Error("Failed to get promotion", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return 0, false
	}
	if !promo.ValidAt(time.Now()) {
		c.JSON(http.StatusBadRequest, gin.H{"code": "PROMO_INVALID", "message": "Promo code is not active"})
		return 0, false
	}
	return promo.DiscountPercent, true
}

func (a *API) currentSubscriptionHandler(c *gin.Context) {
	logger := middleware.GetLogger(c)

	cust, ok := a.currentCustomer(c)
	if !ok {
		return
	}

	sub, err := a.repos.Subscriptions.GetActiveByUser(c, cust.ID)
	if err != nil {
		logger.Error("Failed to get subscription", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if sub == nil {
		c.JSON(http.StatusOK, gin.H{"active": false})
		return
	}

	c.JSON(http.StatusOK, gin.H{"active": true, "subscription": sub})
}

type purchaseSubscriptionRequest struct {
	PlanID    uuid.UUID `json:"planId" binding:"required"`
	PromoCode string    `json:"promoCode"`
}

func (a *API) purchaseSubscriptionHandler(c *gin.Context) {
	logger := middleware.GetLogger(c)

	var req purchaseSubscriptionRequest
	if err := c.Bind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cust, ok := a.currentCustomer(c)
	if !ok {
		return
	}

	var promoPercent int64
	if req.PromoCode != "" {
		percent, valid := a.resolvePromotion(c, req.PromoCode)
		if !valid {
			return
		}
		promoPercent = percent
	}

	sub, err := a.repos.Subscriptions.Purchase(c, cust.ID, req.PlanID, promoPercent)
	if err != nil {
		switch {
		case errors.Is(err, subscription.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"code": "PLAN_NOT_FOUND", "message": "Unknown plan"})
		case errors.Is(err, subscription.ErrPlanRetired):
			c.JSON(http.StatusConflict, gin.H{"code": "PLAN_RETIRED", "message": "Plan is no longer available"})
		case errors.Is(err, wallet.ErrInsufficientFunds), errors.Is(err, wallet.ErrNotFound):
			c.JSON(http.StatusPaymentRequired, gin.H{"code": "TOP_UP_REQUIRED", "message": "Balance too low for this plan"})
		default:
			logger.Error("Failed to purchase subscription", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	if w, err := a.repos.Wallets.GetByUser(c, cust.ID); err == nil {
		a.hub.Publish(cust.Auth0ID, events.New(events.WalletUpdated, walletJSON(w)))
	}

	c.JSON(http.StatusCreated, sub)
}

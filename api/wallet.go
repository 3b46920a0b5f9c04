package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/paymentintent"

	"github.com/freebike/rental-backend/events"
	"github.com/freebike/rental-backend/internal/middleware"
	"github.com/freebike/rental-backend/wallet"
)

type walletResponse struct {
	Balance  int64  `json:"balance"`
	Deposit  int64  `json:"deposit"`
	Currency string `json:"currency"`
}

func walletJSON(w wallet.Wallet) walletResponse {
	return walletResponse{
		Balance:  w.Balance,
		Deposit:  w.Deposit,
		Currency: w.Currency,
	}
}

func (a *API) getWalletHandler(c *gin.Context) {
	logger := middleware.GetLogger(c)

	cust, ok := a.currentCustomer(c)
	if !ok {
		return
	}

	w, err := a.repos.Wallets.GetByUser(c, cust.ID)
	if err != nil {
		logger.Error("Failed to get wallet", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, walletJSON(w))
}

// minimumDeposit is required before the first unlock, in minor units.
const minimumDeposit = 5000

func (a *API) getDepositInfoHandler(c *gin.Context) {
	logger := middleware.GetLogger(c)

	cust, ok := a.currentCustomer(c)
	if !ok {
		return
	}

	w, err := a.repos.Wallets.GetByUser(c, cust.ID)
	if err != nil {
		logger.Error("Failed to get wallet", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"deposit":         w.Deposit,
		"minimumDeposit":  minimumDeposit,
		"depositComplete": w.Deposit >= minimumDeposit,
		"currency":        w.Currency,
	})
}

type rechargeDepositRequest struct {
	Amount int64 `json:"amount" binding:"required"`
}

// rechargeDepositHandler charges the rider's saved payment method and, on
// success, adds the amount to the held deposit.
func (a *API) rechargeDepositHandler(c *gin.Context) {
	logger := middleware.GetLogger(c)

	var req rechargeDepositRequest
	if err := c.Bind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Amount <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "amount must be positive"})
		return
	}

	cust, ok := a.currentCustomer(c)
	if !ok {
		return
	}

	if !cust.StripeID.Valid {
		c.JSON(http.StatusPreconditionFailed, gin.H{"code": "PAYMENT_METHOD_REQUIRED", "message": "Add a payment method first"})
		return
	}

	w, err := a.repos.Wallets.GetByUser(c, cust.ID)
	if err != nil {
		logger.Error("Failed to get wallet", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	piParams := &stripe.PaymentIntentParams{
		Amount:      stripe.Int64(req.Amount),
		Currency:    stripe.String(w.Currency),
		Customer:    stripe.String(cust.StripeID.String),
		Confirm:     stripe.Bool(true),
		OffSession:  stripe.Bool(true),
		Description: stripe.String("Deposit recharge"),
	}
	pi, err := paymentintent.New(piParams)
	if err != nil {
		logger.Error("Failed to create payment intent", "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"code": "PAYMENT_FAILED", "message": "Card charge failed"})
		return
	}
	if pi.Status != stripe.PaymentIntentStatusSucceeded {
		c.JSON(http.StatusPaymentRequired, gin.H{"code": "PAYMENT_INCOMPLETE", "message": "Charge did not complete", "paymentIntentStatus": string(pi.Status)})
		return
	}

	w, err = a.repos.Wallets.RechargeDeposit(c, cust.ID, req.Amount)
	if err != nil {
		logger.Error("Failed to record deposit recharge", "error", err, "paymentIntent", pi.ID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	a.hub.Publish(cust.Auth0ID, events.New(events.WalletUpdated, walletJSON(w)))
	c.JSON(http.StatusOK, walletJSON(w))
}

func (a *API) getLedgerHandler(c *gin.Context) {
	logger := middleware.GetLogger(c)

	cust, ok := a.currentCustomer(c)
	if !ok {
		return
	}

	limit := 50
	if l := c.Query("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 1 || n > 500 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = n
	}

	entries, err := a.repos.Wallets.Ledger(c, cust.ID, limit)
	if err != nil {
		if errors.Is(err, wallet.ErrNotFound) {
			c.JSON(http.StatusOK, []wallet.LedgerEntry{})
			return
		}
		logger.Error("Failed to get ledger", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, entries)
}

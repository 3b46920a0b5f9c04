package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v84"
	stripecustomer "github.com/stripe/stripe-go/v84/customer"
	"github.com/stripe/stripe-go/v84/customersession"
	"github.com/stripe/stripe-go/v84/setupintent"

	"github.com/freebike/rental-backend/internal/middleware"
)

// syncProfileHandler pulls the caller's profile from the identity provider
// and stores email and name locally for receipts and support.
func (a *API) syncProfileHandler(c *gin.Context) {
	logger := middleware.GetLogger(c)

	cust, ok := a.currentCustomer(c)
	if !ok {
		return
	}

	token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
	info, err := a.auth.GetUserInfo(c, token)
	if err != nil {
		logger.Error("Failed to fetch user info", "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "profile sync failed"})
		return
	}

	if err := a.repos.Customers.UpdateProfile(c, cust.Auth0ID, info.Email, info.Name); err != nil {
		logger.Error("Failed to update profile", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"email": info.Email, "name": info.Name})
}

func (a *API) createCustomerSession(c *gin.Context) {
	logger := middleware.GetLogger(c)

	cust, ok := a.currentCustomer(c)
	if !ok {
		return
	}

	if !cust.StripeID.Valid {
		stripeCustomer, err := stripecustomer.New(&stripe.CustomerParams{
			Metadata: map[string]string{
				"auth0_id": cust.Auth0ID,
				"id":       cust.ID.String(),
			},
		})
		if err != nil {
			logger.Error("Failed to create stripe customer", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		cust.StripeID.String = stripeCustomer.ID
		cust.StripeID.Valid = true

		err = a.repos.Customers.AddStripeID(c, cust.Auth0ID, stripeCustomer.ID)
		if err != nil {
			logger.Error("Failed to save stripe customer ID to customer", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
	}

	csParams := &stripe.CustomerSessionParams{
		Customer: stripe.String(cust.StripeID.String),
	}
	csParams.AddExtra("components[customer_sheet][enabled]", "true")
	csParams.AddExtra("components[customer_sheet][features][payment_method_remove]", "enabled")
	cs, err := customersession.New(csParams)
	if err != nil {
		logger.Error("Failed to create customer session", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, struct {
		CustomerID   string `json:"customerId"`
		ClientSecret string `json:"clientSecret"`
	}{
		CustomerID:   cust.StripeID.String,
		ClientSecret: cs.ClientSecret,
	})
}

func (a *API) createSetupIntent(c *gin.Context) {
	logger := middleware.GetLogger(c)

	cust, ok := a.currentCustomer(c)
	if !ok {
		return
	}

	if !cust.StripeID.Valid {
		logger.Error("Customer has no stripe ID", "customerId", cust.ID)
		c.JSON(http.StatusPreconditionFailed, gin.H{"error": "Customer has no stripe ID"})
		return
	}

	siparams := &stripe.SetupIntentParams{
		Customer: stripe.String(cust.StripeID.String),
		AutomaticPaymentMethods: &stripe.SetupIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	si, err := setupintent.New(siparams)
	if err != nil {
		logger.Error("Failed to create setup intent", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, struct {
		SetupIntent string `json:"setupIntent"`
	}{
		SetupIntent: si.ClientSecret,
	})
}

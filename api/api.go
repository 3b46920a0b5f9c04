package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/freebike/rental-backend/bike"
	"github.com/freebike/rental-backend/catalog"
	"github.com/freebike/rental-backend/customer"
	"github.com/freebike/rental-backend/events"
	"github.com/freebike/rental-backend/incident"
	"github.com/freebike/rental-backend/internal/auth0"
	"github.com/freebike/rental-backend/internal/middleware"
	"github.com/freebike/rental-backend/internal/o11y"
	"github.com/freebike/rental-backend/internal/redisstore"
	"github.com/freebike/rental-backend/reservation"
	riderepo "github.com/freebike/rental-backend/ride"
	"github.com/freebike/rental-backend/subscription"
	"github.com/freebike/rental-backend/wallet"
)

// Repositories groups the domain repositories the API serves.
type Repositories struct {
	Bikes         *bike.Repository
	Rides         *riderepo.Repository
	Reservations  *reservation.Repository
	Wallets       *wallet.Repository
	Subscriptions *subscription.Repository
	Incidents     *incident.Repository
	Customers     *customer.Repository
	Catalog       *catalog.Repository
}

type API struct {
	r     *gin.Engine
	repos Repositories

	hub   *events.Hub
	cache *redisstore.CacheStore
	locks *redisstore.LockStore
	auth  auth0.Client

	obs *o11y.Observability
}

// New wires the router. authMW validates bearer tokens and stows the claims
// for GetAuth0ID; acceptance tests swap in a header-based fake.
func New(
	repos Repositories,
	hub *events.Hub,
	cache *redisstore.CacheStore,
	locks *redisstore.LockStore,
	authClient auth0.Client,
	redisClient *redis.Client,
	obs *o11y.Observability,
	authMW gin.HandlerFunc,
	metricsUsername, metricsPassword string,
) *API {
	a := &API{
		r:     gin.New(),
		repos: repos,
		hub:   hub,
		cache: cache,
		locks: locks,
		auth:  authClient,
		obs:   obs,
	}

	a.r.Use(gin.Recovery())
	a.r.Use(middleware.Tracing())
	a.r.Use(middleware.Logging(obs.Logger))
	a.r.Use(middleware.Metrics(obs.Registry))

	a.r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	metrics := a.r.Group("/metrics", gin.BasicAuth(gin.Accounts{metricsUsername: metricsPassword}))
	metrics.GET("", gin.WrapH(promhttp.HandlerFor(obs.Registry, promhttp.HandlerOpts{})))

	a.r.GET("/bikes", a.bikesHandler)
	a.r.GET("/bikes/:code", a.bikeHandler)

	protected := a.r.Group("/")
	protected.Use(authMW)
	protected.Use(middleware.Idempotency(redisClient))
	{
		protected.GET("/availability", a.availabilityHandler)

		protected.POST("/rides/start", a.startRideHandler)
		protected.GET("/rides", a.listRidesHandler)
		protected.GET("/rides/current", a.currentRideHandler)
		protected.POST("/rides/:rideId/pause", a.pauseRideHandler)
		protected.POST("/rides/:rideId/resume", a.resumeRideHandler)
		protected.POST("/rides/:rideId/end", a.endRideHandler)

		protected.GET("/reservations", a.getReservationsHandler)
		protected.GET("/reservations/availability", a.checkAvailabilityHandler)
		protected.POST("/reservations", a.createReservationHandler)
		protected.POST("/reservations/:reservationId/cancel", a.cancelReservationHandler)

		protected.GET("/subscriptions/plans", a.getPlansHandler)
		protected.GET("/subscriptions/price", a.quoteHandler)
		protected.GET("/subscriptions/current", a.currentSubscriptionHandler)
		protected.POST("/subscriptions", a.purchaseSubscriptionHandler)

		protected.GET("/wallet", a.getWalletHandler)
		protected.GET("/wallet/deposit", a.getDepositInfoHandler)
		protected.POST("/wallet/deposit/recharge", a.rechargeDepositHandler)
		protected.GET("/wallet/ledger", a.getLedgerHandler)

		protected.POST("/incidents", a.createIncidentHandler)
		protected.GET("/incidents", a.listIncidentsHandler)
		protected.GET("/incidents/:incidentId", a.getIncidentHandler)

		protected.POST("/profile/sync", a.syncProfileHandler)
		protected.POST("/payment/customer-session", a.createCustomerSession)
		protected.POST("/payment/setup-intent", a.createSetupIntent)

		protected.GET("/events", a.eventsHandler)
		protected.GET("/notifications", a.notificationsHandler)
	}

	admin := protected.Group("/admin")
	admin.Use(middleware.RequirePermission("manage:catalog"))
	{
		admin.GET("/packages", a.getPackagesHandler)
		admin.POST("/packages", a.createPackageHandler)
		admin.PUT("/packages/:id", a.updatePackageHandler)
		admin.DELETE("/packages/:id", a.deletePackageHandler)

		admin.GET("/formulas", a.getFormulasHandler)
		admin.POST("/formulas", a.createFormulaHandler)
		admin.PUT("/formulas/:id", a.updateFormulaHandler)
		admin.DELETE("/formulas/:id", a.deleteFormulaHandler)

		admin.GET("/promotions", a.getPromotionsHandler)
		admin.POST("/promotions", a.createPromotionHandler)
		admin.PUT("/promotions/:id", a.updatePromotionHandler)
		admin.DELETE("/promotions/:id", a.deletePromotionHandler)

		admin.PUT("/incidents/:incidentId", a.updateIncidentHandler)
		admin.PUT("/bikes/:code/status", a.setBikeStatusHandler)
		admin.GET("/bikes/:code/incidents", a.listBikeIncidentsHandler)
	}

	return a
}

func (a *API) Router() *gin.Engine {
	return a.r
}

// currentCustomer resolves the authenticated customer, creating the row on
// first sight of a new token subject.
func (a *API) currentCustomer(c *gin.Context) (*customer.Customer, bool) {
	auth0ID, ok := middleware.GetAuth0ID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"code": "UNAUTHORIZED", "message": "Authentication required"})
		return nil, false
	}

	cust, err := a.repos.Customers.GetOrCreate(c, auth0ID)
	if err != nil {
		middleware.GetLogger(c).ErrorContext(c, "failed to resolve customer", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return nil, false
	}
	return cust, true
}

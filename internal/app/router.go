package app

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
	"github.com/newrelic/go-agent/v3/newrelic"

	"donations/internal/config"
	"donations/internal/handler"
	"donations/internal/metrics"
	"donations/internal/middleware"
)

// RouterDeps contains all dependencies needed for the router.
type RouterDeps struct {
	ChargeHandler   *handler.ChargeHandler
	WebhookHandler  *handler.WebhookHandler
	DonationHandler *handler.DonationHandler
	ResponseCache   middleware.ResponseCache
	Auth            config.AuthConfig
	NewRelicApp     *newrelic.Application
}

// NewRouter creates a new Gin router with all routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	router := gin.New()

	// Global middleware.
	router.Use(gin.Recovery())
	router.Use(gin.Logger())

	if deps.NewRelicApp != nil {
		router.Use(nrgin.Middleware(deps.NewRelicApp))
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", metrics.Handler())

	v1 := router.Group("/v1")
	{
		charges := v1.Group("/charges")
		charges.Use(middleware.Auth([]byte(deps.Auth.JWTSecret), deps.Auth.Issuer))
		charges.Use(middleware.Idempotency(deps.ResponseCache))
		{
			charges.POST("", deps.ChargeHandler.CreateCharge)
		}

		// The provider calls back with either verb.
		webhooks := v1.Group("/webhooks")
		{
			webhooks.GET("/mercadopago", deps.WebhookHandler.HandleNotification)
			webhooks.POST("/mercadopago", deps.WebhookHandler.HandleNotification)
		}

		v1.GET("/donations", deps.DonationHandler.ListRecent)
	}

	return router
}

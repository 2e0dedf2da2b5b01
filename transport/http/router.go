package http

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/layer-3/authbridge"
	"github.com/layer-3/authbridge/internal/metrics"
)

// Config holds the HTTP layer settings
type Config struct {
	CookieName   string
	CookieSecure bool
	SessionTTL   time.Duration
}

// SetupRouter sets up the Gin router.
// API routes pass the route gate only, pages pass both gates.
func SetupRouter(bridge authbridge.Bridge, cfg Config, m *metrics.Metrics, gatherer prometheus.Gatherer, logger zerolog.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), RequestID(logger), AccessLog(logger))

	handlers := NewHandlers(bridge, cfg)
	session := LoadSession(bridge, cfg.CookieName)
	routeGate := RouteGate(bridge, m)
	contentGate := ContentGate(bridge, m)

	router.GET("/healthz", handlers.Health)
	if gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	// Auth routes
	auth := router.Group("/auth")
	{
		auth.POST("/signin", handlers.SignIn)
		auth.POST("/logout", session, handlers.Logout)
		auth.POST("/credentials", session, routeGate, handlers.Credentials)
		auth.POST("/logout/backend", session, routeGate, handlers.BackendLogout)
	}

	// Backend relay
	api := router.Group("/api")
	api.Use(session, routeGate)
	{
		api.Any("/*path", handlers.Relay)
	}

	// Protected pages
	router.GET("/account", session, routeGate, contentGate, handlers.Account)

	return router
}

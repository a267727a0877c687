package bootstrap

import (
	"net/http"

	"github.com/formpilot/deviceauth/internal/config"
	"github.com/formpilot/deviceauth/internal/metrics"
	"github.com/formpilot/deviceauth/internal/middleware"
	"github.com/formpilot/deviceauth/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

// setupRouter configures the Gin router with all routes and middleware
func setupRouter(cfg *config.Config, app *Application) (*gin.Engine, error) {
	if cfg.IsProduction {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	r.Use(metrics.HTTPMetricsMiddleware(app.MetricsRecorder))
	r.Use(gin.Logger(), gin.Recovery())

	// Health check endpoint
	r.GET("/healthz", createHealthCheckHandler(app.Store))

	setupMetricsEndpoint(r, cfg)

	authorizeLimiter, tokenLimiter, err := setupRateLimiting(cfg)
	if err != nil {
		return nil, err
	}

	// Device flow routes, single /device namespace
	device := r.Group("/device")
	{
		device.POST("/authorize", authorizeLimiter, app.DeviceHandler.Authorize)
		device.POST("/token", tokenLimiter, app.TokenHandler.Token)

		// Approval surface routes: the host application forwards the
		// authenticated human identity as a bearer token.
		approval := device.Group("", middleware.RequireIdentity(app.TokenService))
		{
			approval.POST("/verify", app.DeviceHandler.Verify)
			approval.POST("/approve", app.DeviceHandler.Approve)
			approval.POST("/deny", app.DeviceHandler.Deny)
		}
	}

	log.WithFields(log.Fields{
		"addr":     cfg.ServerAddr,
		"base_url": cfg.BaseURL,
	}).Info("device authorization server configured")

	return r, nil
}

// createHealthCheckHandler reports store reachability.
func createHealthCheckHandler(s store.AuthorizationStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.Health(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  err.Error(),
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

// setupMetricsEndpoint configures the Prometheus metrics endpoint
func setupMetricsEndpoint(r *gin.Engine, cfg *config.Config) {
	switch {
	case !cfg.MetricsEnabled:
		log.Info("Prometheus metrics disabled")
	case cfg.MetricsToken != "":
		log.Info("Prometheus metrics enabled at /metrics with bearer token authentication")
		r.GET(
			"/metrics",
			middleware.MetricsAuthMiddleware(cfg.MetricsToken),
			gin.WrapH(promhttp.Handler()),
		)
	default:
		log.Info("Prometheus metrics enabled at /metrics (no authentication)")
		r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}
}

// setupRateLimiting builds the per-endpoint rate limiters. Disabled rate
// limiting yields pass-through middleware.
func setupRateLimiting(cfg *config.Config) (gin.HandlerFunc, gin.HandlerFunc, error) {
	if !cfg.RateLimitEnabled {
		passthrough := func(c *gin.Context) { c.Next() }
		return passthrough, passthrough, nil
	}

	storeType := middleware.RateLimitStoreMemory
	if cfg.RateLimitStoreDriver == config.StoreDriverRedis {
		storeType = middleware.RateLimitStoreRedis
	}

	authorizeLimiter, err := middleware.NewRateLimiter(middleware.RateLimitConfig{
		RequestsPerMinute: cfg.AuthorizePerMinute,
		StoreType:         storeType,
		RedisAddr:         cfg.RedisAddr,
		RedisPassword:     cfg.RedisPassword,
		RedisDB:           cfg.RedisDB,
	})
	if err != nil {
		return nil, nil, err
	}

	tokenLimiter, err := middleware.NewRateLimiter(middleware.RateLimitConfig{
		RequestsPerMinute: cfg.TokenPollPerMinute,
		StoreType:         storeType,
		RedisAddr:         cfg.RedisAddr,
		RedisPassword:     cfg.RedisPassword,
		RedisDB:           cfg.RedisDB,
	})
	if err != nil {
		return nil, nil, err
	}

	return authorizeLimiter, tokenLimiter, nil
}

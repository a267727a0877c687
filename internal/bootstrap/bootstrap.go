package bootstrap

import (
	"net/http"

	"github.com/formpilot/deviceauth/internal/config"
	"github.com/formpilot/deviceauth/internal/handlers"
	"github.com/formpilot/deviceauth/internal/metrics"
	"github.com/formpilot/deviceauth/internal/services"
	"github.com/formpilot/deviceauth/internal/store"

	"github.com/gin-gonic/gin"
)

// Application holds all initialized components
type Application struct {
	Config *config.Config

	// Core infrastructure
	Store           store.AuthorizationStore
	MetricsRecorder metrics.Recorder

	// Services
	TokenService  *services.TokenService
	DeviceService *services.DeviceService

	// HTTP
	DeviceHandler *handlers.DeviceHandler
	TokenHandler  *handlers.TokenHandler
	Router        *gin.Engine
	Server        *http.Server
}

// Run initializes and starts the application
func Run(cfg *config.Config) error {
	app := &Application{Config: cfg}

	// Phase 1: Validate configuration
	validateConfiguration(cfg)

	// Phase 2: Initialize infrastructure
	if err := app.initializeInfrastructure(); err != nil {
		return err
	}

	// Phase 3: Initialize business layer
	app.initializeBusinessLayer()

	// Phase 4: Initialize HTTP layer
	if err := app.initializeHTTPLayer(); err != nil {
		return err
	}

	// Phase 5: Start server with graceful shutdown
	app.startWithGracefulShutdown()

	return nil
}

// initializeInfrastructure sets up the authorization store and metrics
func (app *Application) initializeInfrastructure() error {
	var err error

	app.Store, err = initializeStore(app.Config)
	if err != nil {
		return err
	}

	app.MetricsRecorder = metrics.Init(app.Config.MetricsEnabled)
	return nil
}

// initializeBusinessLayer sets up services
func (app *Application) initializeBusinessLayer() {
	app.TokenService = services.NewTokenService(app.Config, app.MetricsRecorder)
	app.DeviceService = services.NewDeviceService(
		app.Store,
		app.TokenService,
		app.Config,
		app.MetricsRecorder,
	)
}

// initializeHTTPLayer sets up handlers, router, and server
func (app *Application) initializeHTTPLayer() error {
	app.DeviceHandler = handlers.NewDeviceHandler(app.DeviceService)
	app.TokenHandler = handlers.NewTokenHandler(app.DeviceService)

	router, err := setupRouter(app.Config, app)
	if err != nil {
		return err
	}
	app.Router = router
	app.Server = createHTTPServer(app.Config, app.Router)
	return nil
}

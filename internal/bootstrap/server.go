package bootstrap

import (
	"context"
	"net/http"
	"time"

	"github.com/formpilot/deviceauth/internal/config"
	"github.com/formpilot/deviceauth/internal/services"
	"github.com/formpilot/deviceauth/internal/store"

	"github.com/appleboy/graceful"
	log "github.com/sirupsen/logrus"
)

// createHTTPServer creates the HTTP server instance
func createHTTPServer(cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.ServerAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

// startWithGracefulShutdown starts the server and handles graceful shutdown
func (app *Application) startWithGracefulShutdown() {
	m := graceful.NewManager()

	addServerRunningJob(m, app.Server)
	addServerShutdownJob(m, app.Server)
	addStoreShutdownJob(m, app.Store)
	addTokenServiceShutdownJob(m, app.TokenService)

	<-m.Done()
}

// addServerRunningJob adds the HTTP server running job
func addServerRunningJob(m *graceful.Manager, srv *http.Server) {
	m.AddRunningJob(func(ctx context.Context) error {
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("Failed to start server: %v", err)
			}
		}()
		<-ctx.Done()
		return nil
	})
}

// addServerShutdownJob adds HTTP server shutdown handler
func addServerShutdownJob(m *graceful.Manager, srv *http.Server) {
	m.AddShutdownJob(func() error {
		log.Info("shutting down server")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			log.WithError(err).Error("server forced to shutdown")
			return err
		}

		log.Info("server exited")
		return nil
	})
}

// addStoreShutdownJob stops the store's expiry timers and sweep loop.
func addStoreShutdownJob(m *graceful.Manager, s store.AuthorizationStore) {
	m.AddShutdownJob(func() error {
		log.Info("closing authorization store")
		if err := s.Close(); err != nil {
			log.WithError(err).Error("error closing authorization store")
			return err
		}
		return nil
	})
}

// addTokenServiceShutdownJob stops the identity cache.
func addTokenServiceShutdownJob(m *graceful.Manager, ts *services.TokenService) {
	m.AddShutdownJob(func() error {
		ts.Close()
		return nil
	})
}

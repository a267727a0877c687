package bootstrap

import (
	"context"
	"time"

	"github.com/formpilot/deviceauth/internal/config"
	"github.com/formpilot/deviceauth/internal/store"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// initializeStore creates the configured authorization store backend.
func initializeStore(cfg *config.Config) (store.AuthorizationStore, error) {
	switch cfg.StoreDriver {
	case config.StoreDriverRedis:
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s, err := store.NewRedisStore(ctx, &redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, cfg.RetentionWindow)
		if err != nil {
			return nil, err
		}
		log.WithField("addr", cfg.RedisAddr).Info("using redis authorization store")
		return s, nil

	default:
		log.Info("using in-memory authorization store")
		return store.NewMemoryStore(cfg.SweepInterval, cfg.RetentionWindow), nil
	}
}

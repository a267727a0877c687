package bootstrap

import (
	"github.com/formpilot/deviceauth/internal/config"

	log "github.com/sirupsen/logrus"
)

const defaultSecret = "your-256-bit-secret-change-in-production"

// validateConfiguration fails fast on settings that cannot work and warns
// about insecure defaults.
func validateConfiguration(cfg *config.Config) {
	if cfg.JWTSecret == defaultSecret && cfg.IsProduction {
		log.Fatal("JWT_SECRET must be changed from the default in production")
	}
	if cfg.JWTSecret == defaultSecret {
		log.Warn("using the default JWT secret, change JWT_SECRET before deploying")
	}

	if cfg.DeviceCodeExpiration <= 0 {
		log.Fatal("DEVICE_CODE_EXPIRATION must be positive")
	}
	if cfg.PollingInterval <= 0 {
		log.Fatal("POLLING_INTERVAL must be positive")
	}
	if cfg.SweepInterval <= 0 {
		log.Fatal("SWEEP_INTERVAL must be positive")
	}
	if cfg.RetentionWindow < 0 {
		log.Fatal("RETENTION_WINDOW must not be negative")
	}

	switch cfg.StoreDriver {
	case config.StoreDriverMemory, config.StoreDriverRedis:
	default:
		log.Fatalf("unsupported STORE_DRIVER %q (use %q or %q)",
			cfg.StoreDriver, config.StoreDriverMemory, config.StoreDriverRedis)
	}

	if cfg.StoreDriver == config.StoreDriverMemory {
		log.Warn("memory store is single-instance only; " +
			"set STORE_DRIVER=redis when running multiple instances")
	}
}

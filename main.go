package main

import (
	"github.com/formpilot/deviceauth/internal/bootstrap"
	"github.com/formpilot/deviceauth/internal/config"

	log "github.com/sirupsen/logrus"
)

func main() {
	cfg := config.Load()

	if err := bootstrap.Run(cfg); err != nil {
		log.Fatalf("failed to start: %v", err)
	}
}

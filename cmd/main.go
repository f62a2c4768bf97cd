package main

import (
	"go.uber.org/fx"

	"api-tracking/internal/config"
	deliveryhttp "api-tracking/internal/delivery/http"
	"api-tracking/internal/infrastructure/logger"
	"api-tracking/internal/infrastructure/repository"
	"api-tracking/internal/server"
	"api-tracking/internal/tracking"
)

func main() {
	fx.New(
		// Configuration
		config.Module,

		// Infrastructure
		logger.Module,
		repository.Module,

		// Request tracking
		tracking.Module,

		// Delivery
		deliveryhttp.Module,

		// Server
		server.Module,
	).Run()
}

package repository

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"api-tracking/internal/config"
	"api-tracking/internal/domain/repository"
	"api-tracking/internal/infrastructure/database"
	"api-tracking/internal/infrastructure/redis"
)

// provideRequestLogRepository connects only the backend selected by tracking.store
func provideRequestLogRepository(lc fx.Lifecycle, cfg *config.Config, logger *zap.Logger) (repository.RequestLogRepository, error) {
	if cfg.UsesRedisStore() {
		client, err := redis.NewRedisClient(lc, cfg, logger)
		if err != nil {
			return nil, err
		}
		logger.Info("Request logs stored in redis", zap.Duration("ttl", cfg.Tracking.RedisTTL))
		return NewRedisRequestLogRepository(client, cfg.Tracking.RedisTTL, logger), nil
	}

	db, err := database.NewDatabase(lc, cfg, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("Request logs stored in postgres")
	return NewRequestLogRepository(db, logger), nil
}

var Module = fx.Module("repository",
	fx.Provide(provideRequestLogRepository),
)

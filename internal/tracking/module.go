package tracking

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"api-tracking/internal/config"
	"api-tracking/internal/domain/repository"
)

var Module = fx.Module("tracking",
	fx.Provide(
		NewRegistry,
		provideMetrics,
		providePersister,
		provideInterceptor,
		provideRetention,
	),
	fx.Invoke(func(*RetentionScheduler) {}),
)

// NewRegistry is the registry served on /metrics
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func provideMetrics(reg *prometheus.Registry) *Metrics {
	return NewMetrics(reg)
}

func providePersister(lc fx.Lifecycle, cfg *config.Config, repo repository.RequestLogRepository, logger *zap.Logger, metrics *Metrics) LogPersister {
	tc := cfg.Tracking

	var persister LogPersister = NewRepositoryPersister(repo, tc.PersistTimeout)
	if tc.Breaker.Enabled {
		persister = NewBreakerPersister(persister, tc.Breaker.MaxFailures, tc.Breaker.OpenTimeout, logger)
	}

	if tc.PersistMode == config.PersistAsync {
		async := NewAsyncPersister(persister, tc.AsyncWorkers, tc.AsyncQueueSize, tc.PersistTimeout, logger, metrics)
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				logger.Info("Draining request log queue")
				return async.Close(ctx)
			},
		})
		persister = async
	}

	logger.Info("Request log persister ready",
		zap.String("store", tc.Store),
		zap.String("mode", tc.PersistMode),
		zap.Bool("breaker", tc.Breaker.Enabled),
	)
	return persister
}

func provideInterceptor(cfg *config.Config, persister LogPersister, logger *zap.Logger, metrics *Metrics) (*Interceptor, error) {
	return New(ConfigFromSettings(cfg.Tracking), persister, logger, metrics)
}

func provideRetention(lc fx.Lifecycle, cfg *config.Config, repo repository.RequestLogRepository, logger *zap.Logger) *RetentionScheduler {
	s := NewRetentionScheduler(repo, cfg.Tracking.Retention.Days, cfg.Tracking.Retention.Schedule, logger)
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return s.Start()
		},
		OnStop: func(ctx context.Context) error {
			s.Stop()
			return nil
		},
	})
	return s
}

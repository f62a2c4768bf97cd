package tracking

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"api-tracking/internal/domain/repository"
)

// RetentionScheduler prunes request logs older than the retention window
// on a cron schedule.
type RetentionScheduler struct {
	repo     repository.RequestLogRepository
	days     int
	schedule string
	now      Clock
	cron     *cron.Cron
	logger   *zap.Logger

	mu      sync.Mutex
	running bool
}

func NewRetentionScheduler(repo repository.RequestLogRepository, days int, schedule string, logger *zap.Logger) *RetentionScheduler {
	return &RetentionScheduler{
		repo:     repo,
		days:     days,
		schedule: schedule,
		now:      time.Now,
		cron:     cron.New(),
		logger:   logger.With(zap.String("component", "tracking.retention")),
	}
}

// Start does nothing when retention is disabled (days <= 0 or no schedule)
func (s *RetentionScheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.days <= 0 || s.schedule == "" {
		s.logger.Info("Request log retention disabled")
		return nil
	}

	if _, err := cron.ParseStandard(s.schedule); err != nil {
		return fmt.Errorf("invalid retention schedule %q: %w", s.schedule, err)
	}

	if _, err := s.cron.AddFunc(s.schedule, func() {
		if _, err := s.Prune(context.Background()); err != nil {
			s.logger.Error("Scheduled request log pruning failed", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("failed to schedule retention: %w", err)
	}

	s.cron.Start()
	s.running = true

	s.logger.Info("Request log retention scheduled",
		zap.String("schedule", s.schedule),
		zap.Int("days", s.days),
	)
	return nil
}

// Prune deletes every record requested before now minus the retention window
func (s *RetentionScheduler) Prune(ctx context.Context) (int64, error) {
	cutoff := s.now().AddDate(0, 0, -s.days)

	deleted, err := s.repo.DeleteBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	s.logger.Info("Pruned request logs",
		zap.Time("cutoff", cutoff),
		zap.Int64("deleted", deleted),
	)
	return deleted, nil
}

// Stop waits for a running prune to finish
func (s *RetentionScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		<-s.cron.Stop().Done()
		s.running = false
	}
}

func (s *RetentionScheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

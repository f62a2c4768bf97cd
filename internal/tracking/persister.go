package tracking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"api-tracking/internal/domain/entity"
	"api-tracking/internal/domain/repository"
)

var (
	ErrQueueFull       = errors.New("request log queue is full")
	ErrPersisterClosed = errors.New("request log persister is closed")
)

// LogPersister commits accepted records to durable storage
type LogPersister interface {
	Persist(ctx context.Context, rec entity.RequestLog) error
}

// PersisterFunc adapts a function to LogPersister
type PersisterFunc func(ctx context.Context, rec entity.RequestLog) error

func (f PersisterFunc) Persist(ctx context.Context, rec entity.RequestLog) error {
	return f(ctx, rec)
}

// RepositoryPersister saves inline on the request path
type RepositoryPersister struct {
	repo    repository.RequestLogRepository
	timeout time.Duration
}

func NewRepositoryPersister(repo repository.RequestLogRepository, timeout time.Duration) *RepositoryPersister {
	return &RepositoryPersister{repo: repo, timeout: timeout}
}

func (p *RepositoryPersister) Persist(ctx context.Context, rec entity.RequestLog) error {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	if err := p.repo.Save(ctx, &rec); err != nil {
		return fmt.Errorf("failed to persist request log: %w", err)
	}
	return nil
}

// AsyncPersister hands records to a pool of workers so storage latency never
// reaches the response path. Records are dropped when the queue is full.
type AsyncPersister struct {
	next    LogPersister
	queue   chan entity.RequestLog
	timeout time.Duration
	logger  *zap.Logger
	metrics *Metrics

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewAsyncPersister(next LogPersister, workers, queueSize int, timeout time.Duration, logger *zap.Logger, metrics *Metrics) *AsyncPersister {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 1
	}
	p := &AsyncPersister{
		next:    next,
		queue:   make(chan entity.RequestLog, queueSize),
		timeout: timeout,
		logger:  logger,
		metrics: metrics,
	}

	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.work()
	}
	return p
}

// Persist enqueues a private copy of rec
func (p *AsyncPersister) Persist(_ context.Context, rec entity.RequestLog) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPersisterClosed
	}

	select {
	case p.queue <- rec.Clone():
		return nil
	default:
		p.metrics.dropped()
		return ErrQueueFull
	}
}

func (p *AsyncPersister) work() {
	defer p.wg.Done()

	for rec := range p.queue {
		ctx := context.Background()
		var cancel context.CancelFunc = func() {}
		if p.timeout > 0 {
			ctx, cancel = context.WithTimeout(ctx, p.timeout)
		}
		if err := p.next.Persist(ctx, rec); err != nil {
			p.metrics.persistFailed()
			p.logger.Warn("Failed to persist request log",
				zap.String("path", rec.Path),
				zap.String("method", rec.Method),
				zap.Error(err),
			)
		}
		cancel()
	}
}

// Close stops accepting records and waits for queued ones to be written
func (p *AsyncPersister) Close(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("request log queue not drained: %w", ctx.Err())
	}
}

// BreakerPersister fails fast while the store keeps failing
type BreakerPersister struct {
	next LogPersister
	cb   *gobreaker.CircuitBreaker
}

func NewBreakerPersister(next LogPersister, maxFailures uint32, openTimeout time.Duration, logger *zap.Logger) *BreakerPersister {
	if maxFailures == 0 {
		maxFailures = 5
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "request-log-store",
		Timeout: openTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Request log store breaker changed state",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return &BreakerPersister{next: next, cb: cb}
}

func (p *BreakerPersister) Persist(ctx context.Context, rec entity.RequestLog) error {
	_, err := p.cb.Execute(func() (interface{}, error) {
		return nil, p.next.Persist(ctx, rec)
	})
	return err
}

// State reports the breaker state
func (p *BreakerPersister) State() gobreaker.State {
	return p.cb.State()
}

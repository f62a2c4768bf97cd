package tracking

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"api-tracking/internal/config"
	"api-tracking/internal/domain/entity"
)

// ErrAlreadyPersisted is returned when a HandleLog hook persists twice
var ErrAlreadyPersisted = errors.New("request log already persisted")

// Config is fixed once the interceptor is built. Use With to derive a
// differently configured interceptor for a single route.
type Config struct {
	// LoggingMethods restricts logging to these methods; empty means all
	LoggingMethods     []string
	SensitiveFields    []string
	CleanedSubstitute  interface{}
	DecodeRequestBody  bool
	RecursiveRedaction bool

	// ShouldLog replaces MethodPolicy(LoggingMethods) when set. The method
	// gate is then open for every method; compose with MethodPolicy to keep it.
	ShouldLog ShouldLogFunc
	// HandleLog defaults to DefaultHandleLog
	HandleLog HandleLogFunc

	Clock Clock
}

// DefaultConfig logs every method and decodes request bodies
func DefaultConfig() Config {
	return Config{
		CleanedSubstitute: DefaultCleanedSubstitute,
		DecodeRequestBody: true,
	}
}

// ConfigFromSettings maps the tracking section of the application config
func ConfigFromSettings(cfg config.TrackingConfig) Config {
	return Config{
		LoggingMethods:     append([]string(nil), cfg.LoggingMethods...),
		SensitiveFields:    append([]string(nil), cfg.SensitiveFields...),
		CleanedSubstitute:  cfg.CleanedSubstitute,
		DecodeRequestBody:  cfg.DecodeRequestBody,
		RecursiveRedaction: cfg.RecursiveRedaction,
	}
}

func (c Config) clone() Config {
	c.LoggingMethods = append([]string(nil), c.LoggingMethods...)
	c.SensitiveFields = append([]string(nil), c.SensitiveFields...)
	return c
}

// Interceptor wraps handler invocations and records one audit log for each
// admitted request. It holds no per-request state and is safe for
// concurrent use.
type Interceptor struct {
	cfg       Config
	gate      map[string]struct{}
	redactor  *Redactor
	builder   *recordBuilder
	persister LogPersister
	logger    *zap.Logger
	metrics   *Metrics
}

// New validates cfg and fails on configuration errors such as a non-string
// cleaned substitute.
func New(cfg Config, persister LogPersister, logger *zap.Logger, metrics *Metrics) (*Interceptor, error) {
	if persister == nil {
		return nil, errors.New("tracking: persister is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	cfg = cfg.clone()
	redactor, err := NewRedactor(cfg.SensitiveFields, cfg.CleanedSubstitute, cfg.RecursiveRedaction)
	if err != nil {
		return nil, fmt.Errorf("tracking: invalid configuration: %w", err)
	}

	i := &Interceptor{
		cfg:       cfg,
		redactor:  redactor,
		builder:   &recordBuilder{decodeBody: cfg.DecodeRequestBody, logger: logger},
		persister: persister,
		logger:    logger,
		metrics:   metrics,
	}
	if cfg.ShouldLog == nil {
		i.gate = methodSet(cfg.LoggingMethods)
	}
	return i, nil
}

// With returns a new interceptor sharing the persister, logger and metrics,
// with apply run against a copy of the current config.
func (i *Interceptor) With(apply func(*Config)) (*Interceptor, error) {
	cfg := i.cfg.clone()
	apply(&cfg)
	return New(cfg, i.persister, i.logger, i.metrics)
}

// Admits is the method gate checked before anything else
func (i *Interceptor) Admits(method string) bool {
	return methodAllowed(i.gate, method)
}

// Intercept runs call and logs it. The handler's response and error are
// returned untouched. A panic in call is recorded and then re-raised with
// the original value.
func (i *Interceptor) Intercept(ctx context.Context, req Request, call func() (Response, error)) (resp Response, err error) {
	if !i.Admits(req.Method()) {
		i.metrics.observe(OutcomeSkipped)
		return call()
	}

	timer := startTimer(i.cfg.Clock)
	completed := false

	defer func() {
		if completed {
			return
		}
		r := recover()
		rec := i.builder.build(req, timer, outcome{
			panicked:  r != nil,
			recovered: r,
			stack:     captureStack(),
		})
		i.finish(ctx, req, unhandledResponse{}, rec)
		if r != nil {
			panic(r)
		}
	}()

	resp, err = call()
	completed = true

	rec := i.builder.build(req, timer, outcome{resp: resp, err: err})
	seen := resp
	if seen == nil {
		seen = errorResponse{status: rec.StatusCode}
	}
	i.finish(ctx, req, seen, rec)
	return resp, err
}

// finish redacts, applies the policy and hands the record to HandleLog.
// Persistence failures, panics included, are logged and counted, never
// returned or raised.
func (i *Interceptor) finish(ctx context.Context, req Request, resp Response, rec entity.RequestLog) {
	defer func() {
		if p := recover(); p != nil {
			i.metrics.persistFailed()
			i.logger.Error("Request log hook panicked",
				zap.String("method", rec.Method),
				zap.String("path", rec.Path),
				zap.Any("panic", p),
			)
		}
	}()

	i.redactor.Apply(&rec)
	i.metrics.observeResponse(rec.ResponseMs)

	if !i.shouldLog(req, resp) {
		i.metrics.observe(OutcomeDiscarded)
		return
	}

	handle := i.cfg.HandleLog
	if handle == nil {
		handle = DefaultHandleLog
	}

	persisted := false
	next := func(ctx context.Context, rec entity.RequestLog) error {
		if persisted {
			return ErrAlreadyPersisted
		}
		persisted = true
		i.metrics.observe(OutcomeKept)
		return i.persister.Persist(ctx, rec)
	}

	err := handle(ctx, rec, next)
	if !persisted {
		i.metrics.observe(OutcomeDiscarded)
	}

	switch {
	case err == nil:
	case errors.Is(err, ErrQueueFull):
		// already counted as an async drop
		i.logger.Debug("Request log dropped, queue full",
			zap.String("method", rec.Method),
			zap.String("path", rec.Path),
		)
	default:
		i.metrics.persistFailed()
		i.logger.Warn("Failed to persist request log",
			zap.String("method", rec.Method),
			zap.String("path", rec.Path),
			zap.Int("status_code", rec.StatusCode),
			zap.Error(err),
		)
	}
}

func (i *Interceptor) shouldLog(req Request, resp Response) bool {
	if i.cfg.ShouldLog != nil {
		return i.cfg.ShouldLog(req, resp)
	}
	return true
}

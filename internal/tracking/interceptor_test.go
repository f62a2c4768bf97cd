package tracking

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"api-tracking/internal/config"
	"api-tracking/internal/domain/entity"
)

func newInterceptor(t *testing.T, p LogPersister, apply func(*Config)) *Interceptor {
	t.Helper()

	cfg := DefaultConfig()
	if apply != nil {
		apply(&cfg)
	}
	i, err := New(cfg, p, zap.NewNop(), nil)
	require.NoError(t, err)
	return i
}

func TestIntercept_GetJSON(t *testing.T) {
	p := &memoryPersister{}
	i := newInterceptor(t, p, nil)

	resp, err := i.Intercept(context.Background(), get("/logging"), respond(jsonResponse(200, `{"get": "response"}`), nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode())

	recs := p.records()
	require.Len(t, recs, 1)
	assert.Equal(t, map[string]any{"get": "response"}, recs[0].ResponseData)
	assert.Equal(t, 200, recs[0].StatusCode)
	assert.Equal(t, "GET", recs[0].Method)
	assert.Equal(t, "get", recs[0].ViewMethod)
	assert.Equal(t, "/logging", recs[0].Path)
	assert.Equal(t, entity.AnonymousUser, recs[0].UsernamePersistent)
	assert.Nil(t, recs[0].User)
	assert.Nil(t, recs[0].Errors)
	assert.GreaterOrEqual(t, recs[0].ResponseMs, int64(0))
}

func TestIntercept_SensitiveFields(t *testing.T) {
	p := &memoryPersister{}
	i := newInterceptor(t, p, func(c *Config) {
		c.SensitiveFields = []string{"mY_fiEld"}
		c.CleanedSubstitute = "<SUBSTITUTE>"
	})

	_, err := i.Intercept(context.Background(), get("/sensitive"),
		respond(jsonResponse(200, `{"my_field": "secret", "other": "x"}`), nil))
	require.NoError(t, err)

	recs := p.records()
	require.Len(t, recs, 1)
	assert.Equal(t, map[string]any{"my_field": "<SUBSTITUTE>", "other": "x"}, recs[0].ResponseData)
}

func TestIntercept_RedactsRequestData(t *testing.T) {
	p := &memoryPersister{}
	i := newInterceptor(t, p, nil)

	req := post("/login")
	req.body = NewLazyBody(func() (map[string]any, error) {
		return map[string]any{"username": "alice", "Password": "hunter2"}, nil
	})

	_, err := i.Intercept(context.Background(), req, respond(jsonResponse(200, `{}`), nil))
	require.NoError(t, err)

	recs := p.records()
	require.Len(t, recs, 1)
	assert.Equal(t, map[string]any{"username": "alice", "Password": DefaultCleanedSubstitute}, recs[0].RequestData)
}

func TestNew_InvalidSubstitute(t *testing.T) {
	_, err := New(Config{CleanedSubstitute: 1}, &memoryPersister{}, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidSubstitute)

	_, err = New(DefaultConfig(), nil, nil, nil)
	assert.Error(t, err)
}

func TestIntercept_LoggingMethods(t *testing.T) {
	p := &memoryPersister{}
	i := newInterceptor(t, p, func(c *Config) { c.LoggingMethods = []string{"POST"} })

	called := 0
	call := func() (Response, error) {
		called++
		return jsonResponse(200, `"ok"`), nil
	}

	_, err := i.Intercept(context.Background(), get("/methods"), call)
	require.NoError(t, err)
	assert.Empty(t, p.records())

	_, err = i.Intercept(context.Background(), post("/methods"), call)
	require.NoError(t, err)
	assert.Len(t, p.records(), 1)
	assert.Equal(t, 2, called, "the handler runs whether or not the request is logged")
}

func TestIntercept_GateSkipsHooks(t *testing.T) {
	p := &memoryPersister{}
	hooks := 0
	i := newInterceptor(t, p, func(c *Config) {
		c.LoggingMethods = []string{"POST"}
		c.HandleLog = func(ctx context.Context, rec entity.RequestLog, next PersistFunc) error {
			hooks++
			return next(ctx, rec)
		}
	})

	body := NewLazyBody(func() (map[string]any, error) { return map[string]any{"a": 1}, nil })
	req := get("/gate")
	req.body = body

	_, err := i.Intercept(context.Background(), req, respond(jsonResponse(200, `{}`), nil))
	require.NoError(t, err)
	assert.Zero(t, hooks)
	assert.False(t, body.Accessed())
}

func containsLog(_ Request, resp Response) bool {
	return strings.Contains(ResponseData(resp).(string), "log")
}

func TestIntercept_CustomShouldLog(t *testing.T) {
	p := &memoryPersister{}
	i := newInterceptor(t, p, func(c *Config) { c.ShouldLog = containsLog })

	_, err := i.Intercept(context.Background(), get("/custom"), respond(jsonResponse(200, `"with logging"`), nil))
	require.NoError(t, err)
	_, err = i.Intercept(context.Background(), post("/custom"), respond(jsonResponse(200, `"no recording"`), nil))
	require.NoError(t, err)

	recs := p.records()
	require.Len(t, recs, 1)
	assert.Equal(t, "GET", recs[0].Method)
}

func TestIntercept_CustomShouldLogWithMethodPolicy(t *testing.T) {
	p := &memoryPersister{}
	i := newInterceptor(t, p, func(c *Config) {
		c.LoggingMethods = []string{"POST"}
		c.ShouldLog = All(MethodPolicy(c.LoggingMethods), containsLog)
	})

	_, _ = i.Intercept(context.Background(), get("/custom"), respond(jsonResponse(200, `"with logging"`), nil))
	_, _ = i.Intercept(context.Background(), post("/custom"), respond(jsonResponse(200, `"no recording"`), nil))

	assert.Empty(t, p.records())
}

// An override that skips MethodPolicy logs methods outside LoggingMethods
func TestIntercept_CustomShouldLogBypassesMethods(t *testing.T) {
	p := &memoryPersister{}
	i := newInterceptor(t, p, func(c *Config) {
		c.LoggingMethods = []string{"POST"}
		c.ShouldLog = containsLog
	})

	_, _ = i.Intercept(context.Background(), get("/custom"), respond(jsonResponse(200, `"with logging"`), nil))
	_, _ = i.Intercept(context.Background(), post("/custom"), respond(jsonResponse(200, `"with logging"`), nil))

	assert.Len(t, p.records(), 2)
}

func TestIntercept_HandlerErrorPassesThrough(t *testing.T) {
	p := &memoryPersister{}
	i := newInterceptor(t, p, nil)
	handlerErr := errors.New("with logging")

	resp, err := i.Intercept(context.Background(), get("/errors"), respond(nil, handlerErr))
	assert.Nil(t, resp)
	assert.Same(t, handlerErr, err)

	recs := p.records()
	require.Len(t, recs, 1)
	assert.Equal(t, 500, recs[0].StatusCode)
	require.NotNil(t, recs[0].Errors)
	assert.Equal(t, "with logging", recs[0].Errors.Message)
	assert.Equal(t, "*errors.errorString", recs[0].Errors.Type)
}

func TestIntercept_ErrorResponseKeepsStatus(t *testing.T) {
	p := &memoryPersister{}
	i := newInterceptor(t, p, nil)

	_, err := i.Intercept(context.Background(), get("/missing"), respond(jsonResponse(404, `{"detail": "not found"}`), nil))
	require.NoError(t, err)

	recs := p.records()
	require.Len(t, recs, 1)
	assert.Equal(t, 404, recs[0].StatusCode)
	require.NotNil(t, recs[0].Errors)
	assert.Equal(t, map[string]any{"detail": "not found"}, recs[0].Errors.Detail)
}

func TestIntercept_PanicIsRecordedAndRaised(t *testing.T) {
	p := &memoryPersister{}
	i := newInterceptor(t, p, func(c *Config) {
		c.Clock = stepClock(time.Unix(0, 0), 20*time.Millisecond)
	})

	assert.PanicsWithValue(t, "boom", func() {
		_, _ = i.Intercept(context.Background(), get("/panic"), func() (Response, error) {
			panic("boom")
		})
	})

	recs := p.records()
	require.Len(t, recs, 1)
	assert.Equal(t, entity.StatusUnhandled, recs[0].StatusCode)
	assert.Equal(t, int64(20), recs[0].ResponseMs)
	require.NotNil(t, recs[0].Errors)
	assert.Equal(t, "boom", recs[0].Errors.Message)
	assert.Contains(t, recs[0].Errors.Detail, "goroutine")
}

func TestIntercept_DecodeDisabled(t *testing.T) {
	p := &memoryPersister{}
	i := newInterceptor(t, p, func(c *Config) { c.DecodeRequestBody = false })

	body := NewLazyBody(func() (map[string]any, error) { return nil, errors.New("parse error") })
	req := post("/decode")
	req.body = body

	_, err := i.Intercept(context.Background(), req, respond(jsonResponse(200, `"Data processed"`), nil))
	require.NoError(t, err)

	recs := p.records()
	require.Len(t, recs, 1)
	assert.Nil(t, recs[0].RequestData)
	assert.False(t, body.Accessed())
}

func TestIntercept_DecodeErrorIsNotRaisedByLogger(t *testing.T) {
	p := &memoryPersister{}
	i := newInterceptor(t, p, nil)

	req := post("/decode")
	req.body = NewLazyBody(func() (map[string]any, error) { return nil, errors.New("parse error") })

	_, err := i.Intercept(context.Background(), req, respond(jsonResponse(200, `"ok"`), nil))
	require.NoError(t, err)

	recs := p.records()
	require.Len(t, recs, 1)
	assert.Nil(t, recs[0].RequestData)
}

func TestIntercept_Streaming(t *testing.T) {
	p := &memoryPersister{}
	i := newInterceptor(t, p, nil)

	stream := &fakeResponse{status: 200, contentType: "text/event-stream", streaming: true}
	resp, err := i.Intercept(context.Background(), get("/stream"), respond(stream, nil))
	require.NoError(t, err)
	assert.Same(t, stream, resp)

	recs := p.records()
	require.Len(t, recs, 1)
	assert.Equal(t, entity.StreamedContent, recs[0].ResponseData)
	assert.True(t, recs[0].Streamed)
	assert.Equal(t, 200, recs[0].StatusCode)
}

func TestIntercept_HandleLogSlowRequests(t *testing.T) {
	p := &memoryPersister{}
	fast := newInterceptor(t, p, func(c *Config) {
		c.HandleLog = SlowerThan(500)
		c.Clock = stepClock(time.Now(), 10*time.Millisecond)
	})
	slow, err := fast.With(func(c *Config) { c.Clock = stepClock(time.Now(), time.Second) })
	require.NoError(t, err)

	_, _ = fast.Intercept(context.Background(), get("/slow"), respond(jsonResponse(200, `"fast"`), nil))
	_, _ = slow.Intercept(context.Background(), post("/slow"), respond(jsonResponse(200, `"slow"`), nil))

	recs := p.records()
	require.Len(t, recs, 1)
	assert.Equal(t, "POST", recs[0].Method)
	assert.Equal(t, int64(1000), recs[0].ResponseMs)
}

func TestIntercept_PersistOnce(t *testing.T) {
	p := &memoryPersister{}
	var second error
	i := newInterceptor(t, p, func(c *Config) {
		c.HandleLog = func(ctx context.Context, rec entity.RequestLog, next PersistFunc) error {
			_ = next(ctx, rec)
			second = next(ctx, rec)
			return nil
		}
	})

	_, _ = i.Intercept(context.Background(), get("/once"), respond(jsonResponse(200, `{}`), nil))

	assert.Len(t, p.records(), 1)
	assert.ErrorIs(t, second, ErrAlreadyPersisted)
}

func TestIntercept_PersistFailureIsIsolated(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)

	i, err := New(DefaultConfig(), &memoryPersister{err: errors.New("db down")}, zap.New(core), metrics)
	require.NoError(t, err)

	want := jsonResponse(201, `{"id": 1}`)
	resp, err := i.Intercept(context.Background(), post("/create"), respond(want, nil))
	require.NoError(t, err)
	assert.Same(t, want, resp)

	require.Equal(t, 1, logs.FilterMessage("Failed to persist request log").Len())
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.persistErrors))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.requests.WithLabelValues(OutcomeKept)))
}

func TestIntercept_Metrics(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())
	i, err := New(Config{LoggingMethods: []string{"GET"}, ShouldLog: nil, DecodeRequestBody: true}, &memoryPersister{}, nil, metrics)
	require.NoError(t, err)
	picky, err := i.With(func(c *Config) { c.ShouldLog = ErrorsOnly() })
	require.NoError(t, err)

	_, _ = i.Intercept(context.Background(), post("/m"), respond(jsonResponse(200, `{}`), nil))
	_, _ = i.Intercept(context.Background(), get("/m"), respond(jsonResponse(200, `{}`), nil))
	_, _ = picky.Intercept(context.Background(), get("/m"), respond(jsonResponse(200, `{}`), nil))

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.requests.WithLabelValues(OutcomeSkipped)))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.requests.WithLabelValues(OutcomeKept)))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.requests.WithLabelValues(OutcomeDiscarded)))
}

func TestWith_DoesNotShareConfig(t *testing.T) {
	base := newInterceptor(t, &memoryPersister{}, func(c *Config) { c.LoggingMethods = []string{"GET"} })

	derived, err := base.With(func(c *Config) { c.LoggingMethods[0] = "POST" })
	require.NoError(t, err)

	assert.True(t, base.Admits("GET"))
	assert.False(t, base.Admits("POST"))
	assert.True(t, derived.Admits("post"))
}

func TestConfigFromSettings(t *testing.T) {
	cfg := ConfigFromSettings(config.TrackingConfig{
		LoggingMethods:    []string{"POST"},
		SensitiveFields:   []string{"card"},
		CleanedSubstitute: "x",
		DecodeRequestBody: true,
	})

	assert.Equal(t, []string{"POST"}, cfg.LoggingMethods)
	assert.Equal(t, "x", cfg.CleanedSubstitute)
	assert.True(t, cfg.DecodeRequestBody)
	assert.Nil(t, cfg.ShouldLog)
}

func explodingPersister() LogPersister {
	return PersisterFunc(func(context.Context, entity.RequestLog) error {
		panic("driver exploded")
	})
}

func TestIntercept_PersisterPanicKeepsResponse(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	metrics := NewMetrics(prometheus.NewRegistry())
	i, err := New(DefaultConfig(), explodingPersister(), zap.New(core), metrics)
	require.NoError(t, err)

	want := jsonResponse(200, `{"ok": true}`)
	var resp Response
	require.NotPanics(t, func() {
		resp, err = i.Intercept(context.Background(), get("/ok"), respond(want, nil))
	})
	require.NoError(t, err)
	assert.Same(t, want, resp)

	handlerErr := errors.New("handler failed")
	_, err = i.Intercept(context.Background(), get("/fail"), respond(nil, handlerErr))
	assert.Same(t, handlerErr, err)

	assert.Equal(t, 2, logs.FilterMessage("Request log hook panicked").Len())
	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.persistErrors))
}

func TestIntercept_PersisterPanicKeepsHandlerPanic(t *testing.T) {
	i, err := New(DefaultConfig(), explodingPersister(), zap.NewNop(), nil)
	require.NoError(t, err)

	assert.PanicsWithValue(t, "original", func() {
		_, _ = i.Intercept(context.Background(), get("/panic"), func() (Response, error) {
			panic("original")
		})
	})
}

func TestIntercept_ShouldLogPanicIsContained(t *testing.T) {
	p := &memoryPersister{}
	i := newInterceptor(t, p, func(c *Config) {
		c.ShouldLog = func(Request, Response) bool { panic("policy bug") }
	})

	resp, err := i.Intercept(context.Background(), get("/policy"), respond(jsonResponse(200, `{}`), nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode())
	assert.Empty(t, p.records())
}

func TestIntercept_QueueFullCountedOnce(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	metrics := NewMetrics(prometheus.NewRegistry())
	full := PersisterFunc(func(context.Context, entity.RequestLog) error {
		metrics.dropped()
		return ErrQueueFull
	})
	i, err := New(DefaultConfig(), full, zap.New(core), metrics)
	require.NoError(t, err)

	_, err = i.Intercept(context.Background(), get("/busy"), respond(jsonResponse(200, `{}`), nil))
	require.NoError(t, err)

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.asyncDropped))
	assert.Equal(t, float64(0), testutil.ToFloat64(metrics.persistErrors))
	assert.Zero(t, logs.Len())
}

func TestIntercept_HandleLogSkipCountsAsDiscarded(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())
	cfg := DefaultConfig()
	cfg.HandleLog = SlowerThan(500)
	cfg.Clock = stepClock(time.Now(), 10*time.Millisecond)
	i, err := New(cfg, &memoryPersister{}, zap.NewNop(), metrics)
	require.NoError(t, err)

	_, _ = i.Intercept(context.Background(), get("/fast"), respond(jsonResponse(200, `{}`), nil))

	assert.Equal(t, float64(0), testutil.ToFloat64(metrics.requests.WithLabelValues(OutcomeKept)))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.requests.WithLabelValues(OutcomeDiscarded)))
}

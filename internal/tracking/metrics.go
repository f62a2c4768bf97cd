package tracking

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome label values for the requests counter
const (
	OutcomeSkipped   = "skipped"
	OutcomeDiscarded = "discarded"
	OutcomeKept      = "kept"
)

// Metrics holds the interceptor's prometheus collectors. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	requests      *prometheus.CounterVec
	persistErrors prometheus.Counter
	asyncDropped  prometheus.Counter
	responseMs    prometheus.Histogram
}

// NewMetrics registers the collectors with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		requests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "api_tracking_requests_total",
				Help: "Intercepted requests by logging outcome",
			},
			[]string{"outcome"},
		),
		persistErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "api_tracking_persist_errors_total",
			Help: "Request logs that could not be persisted",
		}),
		asyncDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "api_tracking_async_dropped_total",
			Help: "Request logs dropped because the async queue was full",
		}),
		responseMs: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "api_tracking_response_ms",
			Help:    "Handler response time in milliseconds for tracked requests",
			Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}),
	}
}

func (m *Metrics) observe(outcome string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(outcome).Inc()
}

func (m *Metrics) observeResponse(ms int64) {
	if m == nil {
		return
	}
	m.responseMs.Observe(float64(ms))
}

func (m *Metrics) persistFailed() {
	if m == nil {
		return
	}
	m.persistErrors.Inc()
}

func (m *Metrics) dropped() {
	if m == nil {
		return
	}
	m.asyncDropped.Inc()
}

package pipeline

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics records pipeline outcomes. A nil *Metrics records nothing.
type Metrics struct {
	requests     *prometheus.CounterVec
	stepDuration *prometheus.HistogramVec
	asyncFailed  *prometheus.CounterVec
}

// NewMetrics registers the pipeline collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		requests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flowgate_requests_total",
				Help: "Requests handled by the gateway pipeline.",
			},
			[]string{"route", "method", "code"},
		),
		stepDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "flowgate_step_duration_seconds",
				Help:    "Duration of pipeline steps by strategy.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"strategy", "mode"},
		),
		asyncFailed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flowgate_async_step_failures_total",
				Help: "Fire-and-forget steps that failed or returned an error response.",
			},
			[]string{"strategy"},
		),
	}
}

func (m *Metrics) observeRequest(route, method string, code int) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(route, method, strconv.Itoa(code)).Inc()
}

func (m *Metrics) observeStep(strategy string, wait WaitPolicy, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.stepDuration.WithLabelValues(strategy, wait.String()).Observe(elapsed.Seconds())
}

func (m *Metrics) observeAsyncFailure(strategy string) {
	if m == nil {
		return
	}
	m.asyncFailed.WithLabelValues(strategy).Inc()
}

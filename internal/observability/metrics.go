package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the prometheus collectors used across the service.
type Metrics struct {
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	errors          *prometheus.CounterVec
	rpcCalls        *prometheus.CounterVec
	onboarding      *prometheus.CounterVec
	jobRuns         *prometheus.CounterVec
	jobItems        *prometheus.GaugeVec
}

// NewMetrics registers collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "arcadia_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path", "status"}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "arcadia_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
		errors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "arcadia_http_errors_total",
			Help: "HTTP requests that ended in a domain error.",
		}, []string{"method", "path", "code"}),
		rpcCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "arcadia_rpc_invocations_total",
			Help: "RPC method invocations by outcome.",
		}, []string{"method", "outcome"}),
		onboarding: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "arcadia_onboarding_transitions_total",
			Help: "Onboarding state transitions by target state.",
		}, []string{"state"}),
		jobRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "arcadia_job_runs_total",
			Help: "Reconciliation job runs by outcome.",
		}, []string{"job", "outcome"}),
		jobItems: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "arcadia_job_items_changed",
			Help: "Items changed by the last run of a reconciliation job.",
		}, []string{"job"}),
	}
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(method, path, code).Inc()
}

// RecordRPC counts an RPC invocation outcome.
func (m *Metrics) RecordRPC(method, outcome string) {
	if m == nil {
		return
	}
	m.rpcCalls.WithLabelValues(method, outcome).Inc()
}

// RecordOnboardingTransition counts entries into an onboarding state.
func (m *Metrics) RecordOnboardingTransition(state string) {
	if m == nil {
		return
	}
	m.onboarding.WithLabelValues(state).Inc()
}

// RecordJobRun records a finished job run.
func (m *Metrics) RecordJobRun(job string, changed int, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.jobRuns.WithLabelValues(job, outcome).Inc()
	m.jobItems.WithLabelValues(job).Set(float64(changed))
}

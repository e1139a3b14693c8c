package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "gym_access"

// Metrics holds the service's Prometheus collectors on a private registry.
type Metrics struct {
	registry      *prometheus.Registry
	requests      *prometheus.CounterVec
	latency       *prometheus.HistogramVec
	errors        *prometheus.CounterVec
	validations   *prometheus.CounterVec
	issued        prometheus.Counter
	oracleLatency *prometheus.HistogramVec
	pruned        prometheus.Counter
}

// NewMetrics registers all collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route and method.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "errors_total",
			Help:      "Error responses by route, method and error code.",
		}, []string{"route", "method", "code"}),
		validations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "validator",
			Name:      "decisions_total",
			Help:      "Credential validation decisions by outcome and denial reason.",
		}, []string{"outcome", "reason"}),
		issued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "issuer",
			Name:      "credentials_issued_total",
			Help:      "Credentials issued to members.",
		}),
		oracleLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "oracle",
			Name:      "query_duration_seconds",
			Help:      "Membership oracle latency by result.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"result"}),
		pruned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "access_log",
			Name:      "records_pruned_total",
			Help:      "Validation records removed by the retention worker.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests,
		m.latency,
		m.errors,
		m.validations,
		m.issued,
		m.oracleLatency,
		m.pruned,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.latency.WithLabelValues(route, method).Observe(duration.Seconds())
}

// RecordError increments error counters.
func (m *Metrics) RecordError(route, method, code string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(route, method, code).Inc()
}

// RecordValidation counts one validator decision. reason is empty for grants.
func (m *Metrics) RecordValidation(outcome, reason string) {
	if m == nil {
		return
	}
	m.validations.WithLabelValues(outcome, reason).Inc()
}

// RecordIssued counts one issued credential.
func (m *Metrics) RecordIssued() {
	if m == nil {
		return
	}
	m.issued.Inc()
}

// ObserveOracle records the latency of one membership query.
func (m *Metrics) ObserveOracle(result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.oracleLatency.WithLabelValues(result).Observe(duration.Seconds())
}

// RecordPruned adds n pruned records.
func (m *Metrics) RecordPruned(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.pruned.Add(float64(n))
}

package telemetry

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/DNAi-inc/DNHealth-sub001/internal/platform/fhir"
)

// Metrics holds the service's Prometheus collectors. It implements
// search.Metrics.
type Metrics struct {
	searches       *prometheus.CounterVec
	searchDuration *prometheus.HistogramVec
	searchMatches  *prometheus.HistogramVec
	reverseScanned *prometheus.HistogramVec
	issues         *prometheus.CounterVec
	corpusSize     *prometheus.GaugeVec

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	httpInFlight prometheus.Gauge

	gatherer prometheus.Gatherer
}

// NewMetrics creates the collectors and registers them on reg. A nil reg
// gets a fresh registry, which is what tests use.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		searches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fhir_search_executions_total",
			Help: "Search executions by resource type and outcome",
		}, []string{"resource_type", "outcome"}),
		searchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fhir_search_duration_seconds",
			Help:    "Search execution latency",
			Buckets: []float64{.0005, .001, .005, .01, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"resource_type"}),
		searchMatches: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fhir_search_matches",
			Help:    "Matches per search before pagination",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		}, []string{"resource_type"}),
		reverseScanned: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fhir_search_reverse_chain_scanned",
			Help:    "Resources scanned per _has clause",
			Buckets: prometheus.ExponentialBuckets(10, 10, 6),
		}, []string{"resource_type"}),
		issues: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fhir_search_issues_total",
			Help: "OperationOutcome issues raised during searches",
		}, []string{"severity", "code"}),
		corpusSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fhir_corpus_resources",
			Help: "Resources in the current corpus snapshot",
		}, []string{"resource_type"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by method, route and status",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Requests currently being served",
		}),
		gatherer: reg,
	}
	reg.MustRegister(
		m.searches, m.searchDuration, m.searchMatches, m.reverseScanned,
		m.issues, m.corpusSize, m.httpRequests, m.httpDuration, m.httpInFlight,
	)
	return m
}

// ObserveExecution implements search.Metrics.
func (m *Metrics) ObserveExecution(resourceType string, d time.Duration, matched int, err error) {
	m.searches.WithLabelValues(resourceType, outcome(err)).Inc()
	m.searchDuration.WithLabelValues(resourceType).Observe(d.Seconds())
	if err == nil {
		m.searchMatches.WithLabelValues(resourceType).Observe(float64(matched))
	}
}

// ObserveReverseChainScan implements search.Metrics.
func (m *Metrics) ObserveReverseChainScan(resourceType string, scanned int) {
	m.reverseScanned.WithLabelValues(resourceType).Observe(float64(scanned))
}

// ObserveIssue implements search.Metrics.
func (m *Metrics) ObserveIssue(severity, code string) {
	m.issues.WithLabelValues(severity, code).Inc()
}

// SetCorpusCounts replaces the per-type corpus gauge.
func (m *Metrics) SetCorpusCounts(counts map[string]int) {
	m.corpusSize.Reset()
	for rt, n := range counts {
		m.corpusSize.WithLabelValues(rt).Set(float64(n))
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, fhir.ErrCapabilityUnavailable):
		return "unavailable"
	default:
		return "error"
	}
}

// Package metrics exposes Prometheus collectors for the reconciler.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	pagesTotal                 *prometheus.CounterVec
	fetchErrorsTotal           *prometheus.CounterVec
	fetchDurationSeconds       prometheus.Histogram
	collectionRunsTotal        *prometheus.CounterVec
	collectionIdentifiers      prometheus.Gauge
	validationCoverage         prometheus.Gauge
	regionWarningsTotal        prometheus.Counter
	restrictionWritesTotal     *prometheus.CounterVec
	restrictionCandidates      prometheus.Gauge
	rateLimitDelaySeconds      prometheus.Histogram
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times; every Observe helper
// calls it as well.
func Init() {
	once.Do(func() {
		pagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reconciler_pages_total",
				Help: "Search pages processed, labeled by outcome (items, empty, error).",
			},
			[]string{"outcome"},
		)

		fetchErrorsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reconciler_fetch_errors_total",
				Help: "Page fetch failures, labeled by error kind.",
			},
			[]string{"kind"},
		)

		fetchDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "reconciler_fetch_duration_seconds",
				Help:    "Histogram of search page fetch latencies.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
		)

		collectionRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reconciler_collection_runs_total",
				Help: "Completed collection runs, labeled by stop reason.",
			},
			[]string{"stop_reason"},
		)

		collectionIdentifiers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "reconciler_collection_identifiers",
				Help: "Distinct identifiers collected by the most recent run.",
			},
		)

		validationCoverage = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "reconciler_validation_coverage_percent",
				Help: "Baseline coverage reported by the most recent validation.",
			},
		)

		regionWarningsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "reconciler_region_warnings_total",
				Help: "Validations that raised a region warning.",
			},
		)

		restrictionWritesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reconciler_restriction_writes_total",
				Help: "Restriction record writes, labeled by result (recorded, failed).",
			},
			[]string{"result"},
		)

		restrictionCandidates = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "reconciler_restriction_candidates",
				Help: "Baseline identifiers missing from the most recent detection run.",
			},
		)

		rateLimitDelaySeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "reconciler_rate_limit_delay_seconds",
				Help:    "Histogram of rate limiter wait durations before page fetches.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObservePage records one processed page. outcome is "items" or "empty".
func ObservePage(outcome string, duration time.Duration) {
	Init()
	pagesTotal.WithLabelValues(outcome).Inc()
	fetchDurationSeconds.Observe(duration.Seconds())
}

// ObserveFetchError records a failed page fetch.
func ObserveFetchError(kind string, duration time.Duration) {
	Init()
	pagesTotal.WithLabelValues("error").Inc()
	fetchErrorsTotal.WithLabelValues(kind).Inc()
	fetchDurationSeconds.Observe(duration.Seconds())
}

// ObserveCollection records the end of a collection run.
func ObserveCollection(stopReason string, identifiers int) {
	Init()
	collectionRunsTotal.WithLabelValues(stopReason).Inc()
	collectionIdentifiers.Set(float64(identifiers))
}

// ObserveValidation records a validation outcome.
func ObserveValidation(coverage float64, regionWarning bool) {
	Init()
	validationCoverage.Set(coverage)
	if regionWarning {
		regionWarningsTotal.Inc()
	}
}

// ObserveRestrictionWrite records one restriction upsert attempt.
func ObserveRestrictionWrite(ok bool) {
	Init()
	result := "recorded"
	if !ok {
		result = "failed"
	}
	restrictionWritesTotal.WithLabelValues(result).Inc()
}

// SetRestrictionCandidates records the candidate count of a detection run.
func SetRestrictionCandidates(n int) {
	Init()
	restrictionCandidates.Set(float64(n))
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(duration time.Duration) {
	Init()
	rateLimitDelaySeconds.Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

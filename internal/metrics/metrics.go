// Package metrics exposes Prometheus collectors for the crawl runner.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Run outcomes recorded by ObserveRun.
const (
	OutcomeSuccess  = "success"
	OutcomeFailure  = "failure"
	OutcomeFallback = "fallback"
	OutcomeTimeout  = "timeout"
	OutcomeSpawn    = "spawn_error"
	OutcomeConfig   = "config_error"
	OutcomeCanceled = "canceled"
)

var (
	runsTotal                  *prometheus.CounterVec
	runDurationSeconds         *prometheus.HistogramVec
	stageDurationSeconds       *prometheus.HistogramVec
	activeProcesses            prometheus.Gauge
	cleanupFailuresTotal       prometheus.Counter
	healthProbesTotal          *prometheus.CounterVec
	rateLimitedTotal           prometheus.Counter
	sinkErrorsTotal            *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		runsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawlrunner_runs_total",
				Help: "Total number of crawl executions, labeled by site and outcome.",
			},
			[]string{"site", "outcome"},
		)

		runDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "crawlrunner_run_duration_seconds",
				Help:    "Histogram of end-to-end crawl execution latencies, labeled by outcome.",
				Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
			},
			[]string{"outcome"},
		)

		stageDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "crawlrunner_stage_duration_seconds",
				Help:    "Histogram of pipeline stage latencies, labeled by stage.",
				Buckets: []float64{0.001, 0.01, 0.05, 0.25, 1, 5, 30, 120},
			},
			[]string{"stage"},
		)

		activeProcesses = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "crawlrunner_active_processes",
				Help: "Number of crawl subprocesses currently running.",
			},
		)

		cleanupFailuresTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "crawlrunner_cleanup_failures_total",
				Help: "Total number of workspace arenas that could not be removed.",
			},
		)

		healthProbesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawlrunner_health_probes_total",
				Help: "Total number of engine health probes, labeled by result.",
			},
			[]string{"result"},
		)

		rateLimitedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "crawlrunner_rate_limited_total",
				Help: "Total number of requests rejected by the rate limiter.",
			},
		)

		sinkErrorsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawlrunner_sink_errors_total",
				Help: "Total number of failed post-run writes, labeled by sink.",
			},
			[]string{"sink"},
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
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 30, 120},
			},
			[]string{"method", "route"},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveRun records one finished crawl execution.
func ObserveRun(site, outcome string, duration time.Duration) {
	runsTotal.WithLabelValues(SanitizeSite(site), outcome).Inc()
	runDurationSeconds.WithLabelValues(outcome).Observe(duration.Seconds())
}

// ObserveStage records how long one pipeline stage took.
func ObserveStage(stage string, duration time.Duration) {
	stageDurationSeconds.WithLabelValues(stage).Observe(duration.Seconds())
}

// IncActiveProcesses increments the running subprocess gauge.
func IncActiveProcesses() {
	activeProcesses.Inc()
}

// DecActiveProcesses decrements the running subprocess gauge.
func DecActiveProcesses() {
	activeProcesses.Dec()
}

// ObserveCleanupFailure counts an arena that survived cleanup.
func ObserveCleanupFailure() {
	cleanupFailuresTotal.Inc()
}

// ObserveHealthProbe counts a probe by result ("healthy" or "unhealthy").
func ObserveHealthProbe(healthy bool) {
	result := "unhealthy"
	if healthy {
		result = "healthy"
	}
	healthProbesTotal.WithLabelValues(result).Inc()
}

// ObserveRateLimited counts a request rejected with 429.
func ObserveRateLimited() {
	rateLimitedTotal.Inc()
}

// ObserveSinkError counts a failed archive, record, or publish.
func ObserveSinkError(sink string) {
	sinkErrorsTotal.WithLabelValues(sink).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

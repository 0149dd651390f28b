// Package metrics exposes Prometheus collectors for the harvester.
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

// Case outcomes recorded by ObserveCase.
const (
	CaseResolved = "resolved"
	CaseFailed   = "failed"
)

// Chunk statuses recorded by ObserveChunk.
const (
	ChunkProcessed = "processed"
	ChunkSkipped   = "skipped"
)

var (
	apiRequestsTotal           *prometheus.CounterVec
	apiRequestDurationSeconds  *prometheus.HistogramVec
	casesTotal                 *prometheus.CounterVec
	chunksTotal                *prometheus.CounterVec
	cooldownSecondsTotal       prometheus.Counter
	activeWorkers              prometheus.Gauge
	rateLimitDelaysSeconds     *prometheus.HistogramVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		apiRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvest_api_requests_total",
				Help: "Total number of remote API calls, labeled by action and outcome.",
			},
			[]string{"action", "outcome"},
		)

		apiRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "harvest_api_request_duration_seconds",
				Help:    "Histogram of remote API call latencies, labeled by action.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"action"},
		)

		casesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvest_cases_total",
				Help: "Total number of work items processed, labeled by job and outcome.",
			},
			[]string{"job", "outcome"},
		)

		chunksTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvest_chunks_total",
				Help: "Total number of chunks seen, labeled by job and status.",
			},
			[]string{"job", "status"},
		)

		cooldownSecondsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "harvest_cooldown_seconds_total",
				Help: "Total time spent in scheduled cooldown pauses.",
			},
		)

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "harvest_active_workers",
				Help: "Number of workers currently processing an item.",
			},
		)

		rateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "harvest_rate_limit_delays_seconds",
				Help:    "Histogram of request pacing wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
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

// ObserveAPICall records one remote API call.
func ObserveAPICall(action, outcome string, duration time.Duration) {
	Init()
	apiRequestsTotal.WithLabelValues(action, outcome).Inc()
	apiRequestDurationSeconds.WithLabelValues(action).Observe(duration.Seconds())
}

// ObserveCase records the outcome of one work item.
func ObserveCase(job, outcome string) {
	Init()
	casesTotal.WithLabelValues(job, outcome).Inc()
}

// ObserveChunk records a processed or skipped chunk.
func ObserveChunk(job, status string) {
	Init()
	chunksTotal.WithLabelValues(job, status).Inc()
}

// ObserveCooldown records time spent pausing between chunk groups.
func ObserveCooldown(d time.Duration) {
	Init()
	cooldownSecondsTotal.Add(d.Seconds())
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	Init()
	activeWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	Init()
	activeWorkers.Dec()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	Init()
	rateLimitDelaysSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

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

var (
	targetsTotal               *prometheus.CounterVec
	bytesTotal                 *prometheus.CounterVec
	fetchAttemptsTotal         *prometheus.CounterVec
	rateLimitDelaySeconds      prometheus.Histogram
	pagesExtractedTotal        *prometheus.CounterVec
	rowsTotal                  *prometheus.CounterVec
	proxyChecksTotal           *prometheus.CounterVec
	classificationsTotal       *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		targetsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_targets_total",
				Help: "Targets processed by the crawl orchestrator, labeled by site and outcome.",
			},
			[]string{"site", "outcome"},
		)

		bytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_bytes_total",
				Help: "Bytes fetched, labeled by site.",
			},
			[]string{"site"},
		)

		fetchAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_fetch_attempts_total",
				Help: "Fetch attempts including retries, labeled by site.",
			},
			[]string{"site"},
		)

		rateLimitDelaySeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "harvester_rate_limit_delays_seconds",
				Help:    "Histogram of token bucket wait durations.",
				Buckets: []float64{0.01, 0.1, 0.5, 1, 2, 5, 10, 30},
			},
		)

		pagesExtractedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_pages_extracted_total",
				Help: "Snapshots processed by the extractor, labeled by status.",
			},
			[]string{"status"},
		)

		rowsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_rows_total",
				Help: "Table rows seen and kept by the extractor.",
			},
			[]string{"stage"},
		)

		proxyChecksTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_proxy_checks_total",
				Help: "Proxy liveness checks, labeled by result.",
			},
			[]string{"result"},
		)

		classificationsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_classifications_total",
				Help: "Normalization results, labeled by classifier and tag.",
			},
			[]string{"classifier", "tag"},
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

// ObserveTarget counts one finished target.
func ObserveTarget(site string, outcome string, bytesFetched int) {
	Init()
	sanitizedSite := SanitizeSite(site)
	targetsTotal.WithLabelValues(sanitizedSite, outcome).Inc()
	if bytesFetched > 0 {
		bytesTotal.WithLabelValues(sanitizedSite).Add(float64(bytesFetched))
	}
}

// ObserveFetchAttempt counts one fetch attempt.
func ObserveFetchAttempt(site string) {
	Init()
	fetchAttemptsTotal.WithLabelValues(SanitizeSite(site)).Inc()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(duration time.Duration) {
	Init()
	rateLimitDelaySeconds.Observe(duration.Seconds())
}

// ObservePage counts one snapshot outcome in the extractor.
func ObservePage(status string) {
	Init()
	pagesExtractedTotal.WithLabelValues(status).Inc()
}

// ObserveRows adds extractor row counters.
func ObserveRows(total, kept int) {
	Init()
	rowsTotal.WithLabelValues("seen").Add(float64(total))
	rowsTotal.WithLabelValues("kept").Add(float64(kept))
}

// ObserveProxyCheck counts one liveness check.
func ObserveProxyCheck(alive bool) {
	Init()
	result := "dead"
	if alive {
		result = "alive"
	}
	proxyChecksTotal.WithLabelValues(result).Inc()
}

// ObserveClassification counts one normalization result.
func ObserveClassification(classifier, tag string) {
	Init()
	classificationsTotal.WithLabelValues(classifier, tag).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

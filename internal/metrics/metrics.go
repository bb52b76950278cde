// Package metrics exposes Prometheus collectors for the scraper
// service.
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
	scrapeRunsTotal            *prometheus.CounterVec
	scrapePostsTotal           *prometheus.CounterVec
	scrapeCommentsTotal        *prometheus.CounterVec
	scrapeDiscoveryRounds      *prometheus.HistogramVec
	scrapeRunDurationSeconds   *prometheus.HistogramVec
	mergeChangesTotal          *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	activeScrapes              prometheus.Gauge

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		scrapeRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_runs_total",
				Help: "Total scrape runs, labeled by platform and outcome.",
			},
			[]string{"platform", "outcome"},
		)

		scrapePostsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_posts_total",
				Help: "Total posts scraped, labeled by platform.",
			},
			[]string{"platform"},
		)

		scrapeCommentsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_comments_total",
				Help: "Total comments reconstructed, labeled by platform.",
			},
			[]string{"platform"},
		)

		scrapeDiscoveryRounds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scraper_discovery_links",
				Help:    "Histogram of candidate links found per run, labeled by platform.",
				Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250},
			},
			[]string{"platform"},
		)

		scrapeRunDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scraper_run_duration_seconds",
				Help:    "Histogram of scrape run durations, labeled by platform.",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
			[]string{"platform"},
		)

		mergeChangesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_merge_changes_total",
				Help: "Total merged posts, labeled by platform and change kind.",
			},
			[]string{"platform", "kind"},
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

		activeScrapes = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "scraper_active_runs",
				Help: "Number of scrape runs currently executing.",
			},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveRun records the outcome and duration of one scrape run.
func ObserveRun(platform, outcome string, duration time.Duration) {
	scrapeRunsTotal.WithLabelValues(platform, outcome).Inc()
	scrapeRunDurationSeconds.WithLabelValues(platform).Observe(duration.Seconds())
}

// ObserveScrapedPost records one scraped post and its comment count.
func ObserveScrapedPost(platform string, comments int) {
	scrapePostsTotal.WithLabelValues(platform).Inc()
	scrapeCommentsTotal.WithLabelValues(platform).Add(float64(comments))
}

// ObserveDiscovery records how many candidate links a run found.
func ObserveDiscovery(platform string, links int) {
	scrapeDiscoveryRounds.WithLabelValues(platform).Observe(float64(links))
}

// ObserveMerge records the merge change counts for a run.
func ObserveMerge(platform string, added, updated int) {
	if added > 0 {
		mergeChangesTotal.WithLabelValues(platform, "added").Add(float64(added))
	}
	if updated > 0 {
		mergeChangesTotal.WithLabelValues(platform, "updated").Add(float64(updated))
	}
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// IncActiveRuns increments the active runs gauge.
func IncActiveRuns() {
	activeScrapes.Inc()
}

// DecActiveRuns decrements the active runs gauge.
func DecActiveRuns() {
	activeScrapes.Dec()
}

// Package metrics exposes Prometheus collectors for the branding service.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	jobsTotal                *prometheus.CounterVec
	stageTransitionsTotal    *prometheus.CounterVec
	activityDurationSeconds  *prometheus.HistogramVec
	crawlPagesTotal          *prometheus.CounterVec
	crawlBytesTotal          *prometheus.CounterVec
	wizardAutofillTotal      *prometheus.CounterVec
	sweeperRecoveriesTotal   *prometheus.CounterVec
	httpRequestsTotal        *prometheus.CounterVec
	httpRequestDurationSecs  *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		jobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "branding_jobs_total",
				Help: "Total branding jobs, labeled by terminal status.",
			},
			[]string{"status"},
		)

		stageTransitionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "branding_stage_transitions_total",
				Help: "Total stage checkpoints written, labeled by stage.",
			},
			[]string{"stage"},
		)

		activityDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "branding_activity_duration_seconds",
				Help:    "Histogram of pipeline activity durations, labeled by activity.",
				Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120},
			},
			[]string{"activity"},
		)

		crawlPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "branding_crawl_pages_total",
				Help: "Total pages crawled, labeled by site and outcome.",
			},
			[]string{"site", "outcome"},
		)

		crawlBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "branding_crawl_bytes_total",
				Help: "Total bytes downloaded during crawls, labeled by site.",
			},
			[]string{"site"},
		)

		wizardAutofillTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "branding_wizard_autofill_total",
				Help: "Total wizard automation attempts, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		sweeperRecoveriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "branding_sweeper_recoveries_total",
				Help: "Total sweeper actions, labeled by action (requeued, retry_exhausted, stalled).",
			},
			[]string{"action"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSecs = promauto.NewHistogramVec(
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

// ObserveJob increments the terminal-status counter. All Observe helpers
// no-op until Init has run, so library code never needs to order itself
// against startup.
func ObserveJob(status string) {
	if jobsTotal == nil {
		return
	}
	jobsTotal.WithLabelValues(status).Inc()
}

// ObserveStage increments the checkpoint counter for a stage.
func ObserveStage(stage string) {
	if stageTransitionsTotal == nil {
		return
	}
	stageTransitionsTotal.WithLabelValues(stage).Inc()
}

// ObserveActivity records the duration of one pipeline activity.
func ObserveActivity(activity string, duration time.Duration) {
	if activityDurationSeconds == nil {
		return
	}
	activityDurationSeconds.WithLabelValues(activity).Observe(duration.Seconds())
}

// ObserveCrawlPage increments crawl counters for one fetched page.
func ObserveCrawlPage(site, outcome string, bytesFetched int64) {
	if crawlPagesTotal == nil {
		return
	}
	sanitized := SanitizeSite(site)
	crawlPagesTotal.WithLabelValues(sanitized, outcome).Inc()
	if bytesFetched > 0 {
		crawlBytesTotal.WithLabelValues(sanitized).Add(float64(bytesFetched))
	}
}

// ObserveWizard increments the autofill outcome counter.
func ObserveWizard(outcome string) {
	if wizardAutofillTotal == nil {
		return
	}
	wizardAutofillTotal.WithLabelValues(outcome).Inc()
}

// ObserveSweeper increments the sweeper action counter.
func ObserveSweeper(action string) {
	if sweeperRecoveriesTotal == nil {
		return
	}
	sweeperRecoveriesTotal.WithLabelValues(action).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	if httpRequestsTotal == nil {
		return
	}
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSecs.WithLabelValues(method, route).Observe(duration.Seconds())
}

// Middleware is a chi middleware that records HTTP request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)

		routePattern := chi.RouteContext(r.Context()).RoutePattern()
		if routePattern == "" {
			routePattern = "unknown"
		}

		ObserveHTTPRequest(r.Method, routePattern, ww.status, time.Since(start))
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "property_search"

// Metrics gom các Prometheus collector dùng bởi API, engine và matcher.
// Mọi method đều an toàn khi receiver nil.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	jobsSubmittedTotal  *prometheus.CounterVec
	jobsFinishedTotal   *prometheus.CounterVec
	jobsRunning         prometheus.Gauge
	itemsProcessedTotal *prometheus.CounterVec
	lookupDuration      *prometheus.HistogramVec
	matchOutcomesTotal  *prometheus.CounterVec
	cacheLookupsTotal   *prometheus.CounterVec
}

// NewMetrics tạo registry riêng và đăng ký các collector
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests by method, path and status.",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds by method and path.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		jobsSubmittedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bulk_jobs_submitted_total",
				Help:      "Total number of accepted bulk search jobs by search type.",
			},
			[]string{"search_type"},
		),
		jobsFinishedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bulk_jobs_finished_total",
				Help:      "Total number of bulk search jobs that reached a terminal status.",
			},
			[]string{"status"},
		),
		jobsRunning: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "bulk_jobs_running",
				Help:      "Number of bulk search jobs currently processing.",
			},
		),
		itemsProcessedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bulk_items_processed_total",
				Help:      "Total number of bulk search work items by branch and outcome.",
			},
			[]string{"branch", "outcome"},
		),
		lookupDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "lookup_duration_seconds",
				Help:      "External lookup duration in seconds grouped by source.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			},
			[]string{"source"},
		),
		matchOutcomesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "address_match_outcomes_total",
				Help:      "Total number of address validations by outcome.",
			},
			[]string{"outcome"},
		),
		cacheLookupsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "postal_cache_lookups_total",
				Help:      "Postal lookup cache hits and misses by layer.",
			},
			[]string{"layer", "result"},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.jobsSubmittedTotal,
		m.jobsFinishedTotal,
		m.jobsRunning,
		m.itemsProcessedTotal,
		m.lookupDuration,
		m.matchOutcomesTotal,
		m.cacheLookupsTotal,
	)

	return m
}

// Handler trả về handler cho /metrics
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// GinMiddleware ghi số request và thời gian xử lý theo route template
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "/metrics" {
			return
		}
		m.recordHTTPRequest(c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}

func (m *Metrics) IncJobSubmitted(searchType string) {
	if m == nil {
		return
	}
	m.jobsSubmittedTotal.WithLabelValues(normalizeLabel(searchType)).Inc()
	m.jobsRunning.Inc()
}

func (m *Metrics) IncJobFinished(status string) {
	if m == nil {
		return
	}
	m.jobsFinishedTotal.WithLabelValues(normalizeLabel(status)).Inc()
	m.jobsRunning.Dec()
}

func (m *Metrics) IncItemProcessed(branch, outcome string) {
	if m == nil {
		return
	}
	m.itemsProcessedTotal.WithLabelValues(normalizeLabel(branch), normalizeLabel(outcome)).Inc()
}

func (m *Metrics) ObserveLookup(source string, duration time.Duration) {
	if m == nil {
		return
	}
	seconds := duration.Seconds()
	if seconds < 0 {
		seconds = 0
	}
	m.lookupDuration.WithLabelValues(normalizeLabel(source)).Observe(seconds)
}

func (m *Metrics) IncMatchOutcome(outcome string) {
	if m == nil {
		return
	}
	m.matchOutcomesTotal.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (m *Metrics) IncCacheLookup(layer string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookupsTotal.WithLabelValues(normalizeLabel(layer), result).Inc()
}

func (m *Metrics) recordHTTPRequest(method string, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}

	methodLabel := strings.ToUpper(strings.TrimSpace(method))
	if methodLabel == "" {
		methodLabel = "UNKNOWN"
	}
	pathLabel := strings.TrimSpace(path)
	if pathLabel == "" {
		pathLabel = "unmatched"
	}

	m.httpRequestsTotal.WithLabelValues(methodLabel, pathLabel, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(methodLabel, pathLabel).Observe(duration.Seconds())
}

func normalizeLabel(v string) string {
	normalized := strings.ToLower(strings.TrimSpace(v))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}

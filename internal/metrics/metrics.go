package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the warehouse pipeline.
type Metrics struct {
	// Refresh pipeline metrics
	RefreshRuns     *prometheus.CounterVec
	RefreshDuration *prometheus.HistogramVec
	RowsUpserted    *prometheus.CounterVec

	// External fetch metrics
	FetchRequests    *prometheus.CounterVec
	FetchRetries     *prometheus.CounterVec
	FetchLatency     *prometheus.HistogramVec
	CacheHits        *prometheus.CounterVec
	EndpointFallback *prometheus.CounterVec

	// Aggregation metrics
	QueryLatency   *prometheus.HistogramVec
	ReportCacheHit *prometheus.CounterVec

	// HTTP metrics
	HTTPRequests  *prometheus.CounterVec
	RateLimitHits *prometheus.CounterVec
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics *Metrics

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics(namespace string) *Metrics {
	m := &Metrics{
		RefreshRuns: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "refresh_runs_total",
				Help:      "Refresh operations by source table and outcome",
			},
			[]string{"table", "status"},
		),
		RefreshDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "refresh_duration_seconds",
				Help:      "Wall time of refresh operations",
				Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 180},
			},
			[]string{"table"},
		),
		RowsUpserted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rows_upserted_total",
				Help:      "Rows written into fact tables",
			},
			[]string{"table"},
		),
		FetchRequests: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fetch_requests_total",
				Help:      "External API report requests by source",
			},
			[]string{"source", "status"},
		),
		FetchRetries: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fetch_retries_total",
				Help:      "Retries against external APIs",
			},
			[]string{"source"},
		),
		FetchLatency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "fetch_latency_seconds",
				Help:      "External API call latency",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"source", "operation"},
		),
		CacheHits: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fetch_cache_hits_total",
				Help:      "Report fetches satisfied from the file cache",
			},
			[]string{"source"},
		),
		EndpointFallback: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "endpoint_fallbacks_total",
				Help:      "CRM endpoint/parameter-variant fallbacks",
			},
			[]string{"reason"},
		),
		QueryLatency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "query_latency_seconds",
				Help:      "Aggregation query latency",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
			},
			[]string{"query"},
		),
		ReportCacheHit: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "report_cache_hits_total",
				Help:      "Aggregation results served from Redis",
			},
			[]string{"query"},
		),
		HTTPRequests: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "HTTP requests by path and status",
			},
			[]string{"path", "status"},
		),
		RateLimitHits: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_limit_hits_total",
				Help:      "Rate limit rejections",
			},
			[]string{"endpoint"},
		),
	}

	DefaultMetrics = m
	return m
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordRefresh records one refresh run.
func (m *Metrics) RecordRefresh(table, status string, rows int, elapsed time.Duration) {
	m.RefreshRuns.WithLabelValues(table, status).Inc()
	m.RefreshDuration.WithLabelValues(table).Observe(elapsed.Seconds())
	if rows > 0 {
		m.RowsUpserted.WithLabelValues(table).Add(float64(rows))
	}
}

// RecordFetch records one external API call.
func (m *Metrics) RecordFetch(source, operation, status string, elapsed time.Duration) {
	m.FetchRequests.WithLabelValues(source, status).Inc()
	m.FetchLatency.WithLabelValues(source, operation).Observe(elapsed.Seconds())
}

// RecordRetry records a backoff retry against a source.
func (m *Metrics) RecordRetry(source string) {
	m.FetchRetries.WithLabelValues(source).Inc()
}

// RecordCacheHit records a file-cache hit for a source.
func (m *Metrics) RecordCacheHit(source string) {
	m.CacheHits.WithLabelValues(source).Inc()
}

// RecordFallback records a CRM endpoint or parameter-variant fallback.
func (m *Metrics) RecordFallback(reason string) {
	m.EndpointFallback.WithLabelValues(reason).Inc()
}

// RecordHTTPRequest records one served request.
func (m *Metrics) RecordHTTPRequest(path, status string) {
	m.HTTPRequests.WithLabelValues(path, status).Inc()
}

// RecordRateLimitHit records a rate limit rejection.
func (m *Metrics) RecordRateLimitHit(endpoint string) {
	m.RateLimitHits.WithLabelValues(endpoint).Inc()
}

package providers

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"hoyn/internal/structures"
)

type MetricsProviderInterface interface {
	IncRequestsTotal(endpoint string, status int)
	ObserveRequestDuration(endpoint string, duration time.Duration)
	IncCacheHits(keyspace string)
	IncCacheMisses(keyspace string)
	ObservePersistenceDuration(duration time.Duration)
	IncMessagesSent(anonymous bool)
	IncRateLimited(scope string)
	IncScans(outcome string)
	// RegisterGauge exposes a value sampled at scrape time.
	RegisterGauge(name, help string, fn func() float64)
}

type MetricsProvider struct {
	registerer          prometheus.Registerer
	requestsTotal       *prometheus.CounterVec
	requestDuration     *prometheus.HistogramVec
	cacheHits           *prometheus.CounterVec
	cacheMisses         *prometheus.CounterVec
	persistenceDuration prometheus.Histogram
	messagesSent        *prometheus.CounterVec
	rateLimited         *prometheus.CounterVec
	scans               *prometheus.CounterVec
}

func (m *MetricsProvider) IncRequestsTotal(endpoint string, status int) {
	m.requestsTotal.WithLabelValues(endpoint, httpStatusBucket(status)).Inc()
}

func (m *MetricsProvider) ObserveRequestDuration(endpoint string, duration time.Duration) {
	m.requestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

func (m *MetricsProvider) IncCacheHits(keyspace string) {
	m.cacheHits.WithLabelValues(keyspace).Inc()
}

func (m *MetricsProvider) IncCacheMisses(keyspace string) {
	m.cacheMisses.WithLabelValues(keyspace).Inc()
}

func (m *MetricsProvider) ObservePersistenceDuration(duration time.Duration) {
	m.persistenceDuration.Observe(duration.Seconds())
}

func (m *MetricsProvider) IncMessagesSent(anonymous bool) {
	kind := "identified"
	if anonymous {
		kind = "anonymous"
	}
	m.messagesSent.WithLabelValues(kind).Inc()
}

func (m *MetricsProvider) IncRateLimited(scope string) {
	m.rateLimited.WithLabelValues(scope).Inc()
}

func (m *MetricsProvider) IncScans(outcome string) {
	m.scans.WithLabelValues(outcome).Inc()
}

func (m *MetricsProvider) RegisterGauge(name, help string, fn func() float64) {
	promauto.With(m.registerer).NewGaugeFunc(prometheus.GaugeOpts{Name: name, Help: help}, fn)
}

func httpStatusBucket(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}

func NewMetricsProvider(conf *structures.Config) MetricsProviderInterface {
	if !conf.Metrics.Enabled {
		return &noopMetrics{}
	}
	return newMetricsProvider(prometheus.DefaultRegisterer)
}

func newMetricsProvider(reg prometheus.Registerer) *MetricsProvider {
	f := promauto.With(reg)
	return &MetricsProvider{
		registerer: reg,
		requestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "hoyn_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"endpoint", "status"}),

		requestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "hoyn_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),

		cacheHits: f.NewCounterVec(prometheus.CounterOpts{
			Name: "hoyn_cache_hits_total",
			Help: "Cache hits by key family",
		}, []string{"keyspace"}),

		cacheMisses: f.NewCounterVec(prometheus.CounterOpts{
			Name: "hoyn_cache_misses_total",
			Help: "Cache misses by key family",
		}, []string{"keyspace"}),

		persistenceDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "hoyn_persistence_duration_seconds",
			Help:    "Duration of snapshot persistence in seconds",
			Buckets: prometheus.DefBuckets,
		}),

		messagesSent: f.NewCounterVec(prometheus.CounterOpts{
			Name: "hoyn_messages_sent_total",
			Help: "Messages persisted, by kind",
		}, []string{"kind"}),

		rateLimited: f.NewCounterVec(prometheus.CounterOpts{
			Name: "hoyn_rate_limited_total",
			Help: "Requests rejected by a rate limiter",
		}, []string{"scope"}),

		scans: f.NewCounterVec(prometheus.CounterOpts{
			Name: "hoyn_scans_total",
			Help: "QR scans by resolved intent",
		}, []string{"intent"}),
	}
}

// noopMetrics is a no-op implementation for when metrics are disabled.
type noopMetrics struct{}

func (n *noopMetrics) IncRequestsTotal(_ string, _ int)                 {}
func (n *noopMetrics) ObserveRequestDuration(_ string, _ time.Duration) {}
func (n *noopMetrics) IncCacheHits(_ string)                            {}
func (n *noopMetrics) IncCacheMisses(_ string)                          {}
func (n *noopMetrics) ObservePersistenceDuration(_ time.Duration)       {}
func (n *noopMetrics) IncMessagesSent(_ bool)                           {}
func (n *noopMetrics) IncRateLimited(_ string)                          {}
func (n *noopMetrics) IncScans(_ string)                                {}
func (n *noopMetrics) RegisterGauge(_, _ string, _ func() float64)      {}

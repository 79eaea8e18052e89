package providers

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hoyn/internal/structures"
)

func TestNoopMetrics_WhenDisabled(t *testing.T) {
	conf := &structures.Config{
		Metrics: structures.MetricsConfig{Enabled: false},
	}
	m := NewMetricsProvider(conf)
	_, ok := m.(*noopMetrics)
	assert.True(t, ok, "should return noopMetrics when disabled")

	// Ensure no-op methods don't panic
	m.IncRequestsTotal("/test", 200)
	m.ObserveRequestDuration("/test", time.Millisecond)
	m.IncCacheHits("profile:id")
	m.IncCacheMisses("profile:id")
	m.ObservePersistenceDuration(time.Millisecond)
	m.IncMessagesSent(true)
	m.IncRateLimited("messages")
	m.IncScans("view_profile")
	m.RegisterGauge("x", "y", func() float64 { return 1 })
}

func TestMetricsProvider_WhenEnabled(t *testing.T) {
	reg := prometheus.NewRegistry()
	prometheus.DefaultRegisterer = reg
	prometheus.DefaultGatherer = reg
	defer func() {
		prometheus.DefaultRegisterer = prometheus.NewRegistry()
		prometheus.DefaultGatherer = prometheus.DefaultRegisterer.(prometheus.Gatherer)
	}()

	conf := &structures.Config{
		Metrics: structures.MetricsConfig{Enabled: true},
	}
	m := NewMetricsProvider(conf)
	_, ok := m.(*MetricsProvider)
	assert.True(t, ok, "should return MetricsProvider when enabled")
}

func gathered(t *testing.T, reg *prometheus.Registry) map[string]*dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	out := make(map[string]*dto.MetricFamily, len(families))
	for _, f := range families {
		out[f.GetName()] = f
	}
	return out
}

func TestMetricsProvider_DomainCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := newMetricsProvider(reg)

	m.IncMessagesSent(false)
	m.IncMessagesSent(false)
	m.IncMessagesSent(true)
	m.IncRateLimited("messages")
	m.IncScans("not_found")
	m.IncRequestsTotal("POST /messages/send", 429)
	m.ObserveRequestDuration("POST /messages/send", 5*time.Millisecond)
	m.IncCacheHits("profile:slug")
	m.IncCacheHits("profile:slug")
	m.IncCacheMisses("scans")
	m.ObservePersistenceDuration(100 * time.Millisecond)

	families := gathered(t, reg)
	sent := families["hoyn_messages_sent_total"]
	require.NotNil(t, sent)
	byKind := map[string]float64{}
	for _, metric := range sent.GetMetric() {
		byKind[metric.GetLabel()[0].GetValue()] = metric.GetCounter().GetValue()
	}
	assert.Equal(t, map[string]float64{"identified": 2, "anonymous": 1}, byKind)

	require.NotNil(t, families["hoyn_rate_limited_total"])
	assert.Equal(t, 1.0, families["hoyn_rate_limited_total"].GetMetric()[0].GetCounter().GetValue())
	require.NotNil(t, families["hoyn_scans_total"])
	require.NotNil(t, families["hoyn_requests_total"])

	hits := families["hoyn_cache_hits_total"]
	require.NotNil(t, hits)
	require.Len(t, hits.GetMetric(), 1)
	assert.Equal(t, "profile:slug", hits.GetMetric()[0].GetLabel()[0].GetValue())
	assert.Equal(t, 2.0, hits.GetMetric()[0].GetCounter().GetValue())
	require.NotNil(t, families["hoyn_cache_misses_total"])
}

func TestMetricsProvider_RegisterGauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := newMetricsProvider(reg)
	m.RegisterGauge("hoyn_scan_buffer_size", "queued scans", func() float64 { return 5 })

	g := gathered(t, reg)["hoyn_scan_buffer_size"]
	require.NotNil(t, g)
	assert.Equal(t, 5.0, g.GetMetric()[0].GetGauge().GetValue())
}

func TestHttpStatusBucket(t *testing.T) {
	tests := []struct {
		code     int
		expected string
	}{
		{100, "1xx"},
		{200, "2xx"},
		{201, "2xx"},
		{301, "3xx"},
		{400, "4xx"},
		{404, "4xx"},
		{429, "4xx"},
		{500, "5xx"},
		{503, "5xx"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, httpStatusBucket(tt.code))
	}
}

package providers

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type cacheMetricsTestMetrics struct {
	hits   map[string]int
	misses map[string]int
}

func newCacheMetricsTestMetrics() *cacheMetricsTestMetrics {
	return &cacheMetricsTestMetrics{hits: map[string]int{}, misses: map[string]int{}}
}

func (m *cacheMetricsTestMetrics) IncRequestsTotal(_ string, _ int)                 {}
func (m *cacheMetricsTestMetrics) ObserveRequestDuration(_ string, _ time.Duration) {}
func (m *cacheMetricsTestMetrics) IncCacheHits(keyspace string)                     { m.hits[keyspace]++ }
func (m *cacheMetricsTestMetrics) IncCacheMisses(keyspace string)                   { m.misses[keyspace]++ }
func (m *cacheMetricsTestMetrics) ObservePersistenceDuration(_ time.Duration)       {}
func (m *cacheMetricsTestMetrics) IncMessagesSent(_ bool)                           {}
func (m *cacheMetricsTestMetrics) IncRateLimited(_ string)                          {}
func (m *cacheMetricsTestMetrics) IncScans(_ string)                                {}
func (m *cacheMetricsTestMetrics) RegisterGauge(_, _ string, _ func() float64)      {}

type cacheMetricsTestInner struct {
	data map[string][]byte
}

func (c *cacheMetricsTestInner) Get(key string) ([]byte, bool) {
	v, ok := c.data[key]
	return v, ok
}
func (c *cacheMetricsTestInner) Set(key string, value []byte) {
	c.data[key] = value
}
func (c *cacheMetricsTestInner) Del(key string) {
	delete(c.data, key)
}

func TestKeyspace(t *testing.T) {
	cases := map[string]string{
		"profile:id:p-1":       "profile:id",
		"profile:slug:a:b":     "profile:slug",
		"profile:username:neo": "profile:username",
		"profile:odd":          "profile",
		"scans:all":            "scans",
		"scans:p-1":            "scans",
		"plain":                "other",
		":leading":             "other",
	}
	for key, want := range cases {
		assert.Equal(t, want, keyspace(key), key)
	}
}

func TestMetricsCacheProvider_HitAndMissByKeyspace(t *testing.T) {
	inner := &cacheMetricsTestInner{data: map[string][]byte{"profile:id:p-1": []byte(`{"id":"p-1"}`)}}
	metrics := newCacheMetricsTestMetrics()
	cache := &MetricsCacheProvider{inner: inner, metrics: metrics}

	val, ok := cache.Get("profile:id:p-1")
	assert.True(t, ok)
	assert.Equal(t, []byte(`{"id":"p-1"}`), val)

	_, ok = cache.Get("profile:id:p-2")
	assert.False(t, ok)
	_, ok = cache.Get("scans:all")
	assert.False(t, ok)

	assert.Equal(t, map[string]int{"profile:id": 1}, metrics.hits)
	assert.Equal(t, map[string]int{"profile:id": 1, "scans": 1}, metrics.misses)
}

func TestMetricsCacheProvider_SetAndDelDelegate(t *testing.T) {
	inner := &cacheMetricsTestInner{data: map[string][]byte{}}
	cache := &MetricsCacheProvider{inner: inner, metrics: newCacheMetricsTestMetrics()}

	cache.Set("profile:username:trinity", []byte(`{"id":"p-2"}`))
	_, ok := inner.Get("profile:username:trinity")
	assert.True(t, ok)

	cache.Del("profile:username:trinity")
	_, ok = inner.Get("profile:username:trinity")
	assert.False(t, ok)
}

func TestNewInstrumentedCacheProvider_DisabledSkipsWrapping(t *testing.T) {
	conf := cacheConfig(false, 1, time.Second)
	c := NewInstrumentedCacheProvider(conf, &cacheTestLogger{}, newCacheMetricsTestMetrics())
	assert.IsType(t, &noopCache{}, c)
}

func TestNewInstrumentedCacheProvider_EnabledCountsLookups(t *testing.T) {
	metrics := newCacheMetricsTestMetrics()
	c := NewInstrumentedCacheProvider(cacheConfig(true, 1, time.Minute), &cacheTestLogger{}, metrics)

	c.Set("profile:slug:neo", []byte(`{"id":"p-neo"}`))
	c.Get("profile:slug:neo")
	c.Get("profile:slug:morpheus")
	c.Del("profile:slug:neo")
	c.Get("profile:slug:neo")

	assert.Equal(t, 1, metrics.hits["profile:slug"])
	assert.Equal(t, 2, metrics.misses["profile:slug"])
}

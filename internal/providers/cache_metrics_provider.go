package providers

import (
	"strings"

	"hoyn/internal/structures"
)

// MetricsCacheProvider counts hits and misses per key family.
type MetricsCacheProvider struct {
	inner   CacheProviderInterface
	metrics MetricsProviderInterface
}

// keyspace maps a cache key to a bounded label: "profile:slug:neo" -> "profile:slug",
// "scans:p-1" -> "scans".
func keyspace(key string) string {
	family, rest, found := strings.Cut(key, ":")
	if !found || family == "" {
		return "other"
	}
	if family == "profile" {
		if kind, _, ok := strings.Cut(rest, ":"); ok {
			return family + ":" + kind
		}
	}
	return family
}

func (c *MetricsCacheProvider) Get(key string) ([]byte, bool) {
	val, ok := c.inner.Get(key)
	if ok {
		c.metrics.IncCacheHits(keyspace(key))
	} else {
		c.metrics.IncCacheMisses(keyspace(key))
	}
	return val, ok
}

func (c *MetricsCacheProvider) Set(key string, value []byte) {
	c.inner.Set(key, value)
}

func (c *MetricsCacheProvider) Del(key string) {
	c.inner.Del(key)
}

// NewInstrumentedCacheProvider wraps the cache with hit/miss counters. A disabled
// cache stays unwrapped so it does not report a miss for every lookup.
func NewInstrumentedCacheProvider(conf *structures.Config, logger Logger, metrics MetricsProviderInterface) CacheProviderInterface {
	inner := NewCacheProvider(conf, logger)
	if !conf.Cache.Enabled {
		return inner
	}
	return &MetricsCacheProvider{
		inner:   inner,
		metrics: metrics,
	}
}

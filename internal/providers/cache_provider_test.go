package providers

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"hoyn/internal/structures"
)

// local mock logger to avoid import cycle with testutil
type cacheTestLogger struct{}

func (m *cacheTestLogger) Errorf(_ TypeEnum, _ string, _ ...interface{}) {}
func (m *cacheTestLogger) Warnf(_ TypeEnum, _ string, _ ...interface{})  {}
func (m *cacheTestLogger) Debugf(_ TypeEnum, _ string, _ ...interface{}) {}
func (m *cacheTestLogger) Infof(_ TypeEnum, _ string, _ ...interface{})  {}
func (m *cacheTestLogger) Fatalf(_ TypeEnum, _ string, _ ...interface{}) {}
func (m *cacheTestLogger) Close()                                        {}

func cacheConfig(enabled bool, size int, ttl time.Duration) *structures.Config {
	return &structures.Config{
		Cache: structures.CacheConfig{
			Enabled: enabled,
			Size:    size,
			TTL:     ttl,
		},
	}
}

func TestCacheProvider_DisabledReturnsNoop(t *testing.T) {
	logger := &cacheTestLogger{}
	c := NewCacheProvider(cacheConfig(false, 10, 5*time.Second), logger)
	_, ok := c.Get("any")
	assert.False(t, ok)
	assert.IsType(t, &noopCache{}, c)
}

func TestCacheProvider_ZeroSizeReturnsNoop(t *testing.T) {
	logger := &cacheTestLogger{}
	c := NewCacheProvider(cacheConfig(true, 0, 5*time.Second), logger)
	assert.IsType(t, &noopCache{}, c)
}

func TestCacheProvider_EnabledReturnsCacheProvider(t *testing.T) {
	logger := &cacheTestLogger{}
	c := NewCacheProvider(cacheConfig(true, 1, 5*time.Second), logger)
	assert.IsType(t, &CacheProvider{}, c)
}

func TestCacheProvider_SetAndGet(t *testing.T) {
	logger := &cacheTestLogger{}
	c := NewCacheProvider(cacheConfig(true, 1, 5*time.Second), logger)

	c.Set("profile:slug:neo", []byte(`{"id":"p-neo"}`))
	val, ok := c.Get("profile:slug:neo")
	assert.True(t, ok)
	assert.Equal(t, []byte(`{"id":"p-neo"}`), val)
}

func TestCacheProvider_Miss(t *testing.T) {
	logger := &cacheTestLogger{}
	c := NewCacheProvider(cacheConfig(true, 1, 5*time.Second), logger)

	val, ok := c.Get("nonexistent")
	assert.False(t, ok)
	assert.Nil(t, val)
}

func TestCacheProvider_Overwrite(t *testing.T) {
	logger := &cacheTestLogger{}
	c := NewCacheProvider(cacheConfig(true, 1, 5*time.Second), logger)

	c.Set("profile:slug:neo", []byte(`{"id":"p-old"}`))
	c.Set("profile:slug:neo", []byte(`{"id":"p-new"}`))

	val, ok := c.Get("profile:slug:neo")
	assert.True(t, ok)
	assert.Equal(t, []byte(`{"id":"p-new"}`), val)
}

func TestCacheProvider_Del(t *testing.T) {
	c := NewCacheProvider(cacheConfig(true, 1, 5*time.Second), &cacheTestLogger{})

	c.Set("profile:id:p-neo", []byte(`{"id":"p-neo"}`))
	c.Del("profile:id:p-neo")
	c.Del("profile:id:never-set")

	_, ok := c.Get("profile:id:p-neo")
	assert.False(t, ok)
}

func TestNoopCache_AlwaysMiss(t *testing.T) {
	c := &noopCache{}
	c.Set("profile:slug:neo", []byte(`{"id":"p-neo"}`))
	c.Del("profile:slug:neo")

	val, ok := c.Get("profile:slug:neo")
	assert.False(t, ok)
	assert.Nil(t, val)
}

func TestCacheProvider_TTLExpiry(t *testing.T) {
	logger := &cacheTestLogger{}
	c := NewCacheProvider(cacheConfig(true, 1, 1*time.Second), logger)

	c.Set("profile:slug:neo", []byte(`{"id":"p-neo"}`))
	val, ok := c.Get("profile:slug:neo")
	assert.True(t, ok)
	assert.Equal(t, []byte(`{"id":"p-neo"}`), val)

	time.Sleep(2100 * time.Millisecond)

	_, ok = c.Get("profile:slug:neo")
	assert.False(t, ok)
}

func TestCacheProvider_SubSecondTTLRoundsUp(t *testing.T) {
	c := NewCacheProvider(cacheConfig(true, 1, 0), &cacheTestLogger{}).(*CacheProvider)
	assert.Equal(t, 1, c.ttl)
}

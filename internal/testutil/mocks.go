package testutil

import (
	"sync"
	"time"

	"hoyn/internal/models"
	"hoyn/internal/providers"
)

// MockLogger implements providers.Logger and records calls.
type MockLogger struct {
	mu   sync.Mutex
	Logs []LogEntry
}

type LogEntry struct {
	Level  string
	Type   providers.TypeEnum
	Format string
	Args   []interface{}
}

func (m *MockLogger) record(level string, t providers.TypeEnum, format string, args ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Logs = append(m.Logs, LogEntry{Level: level, Type: t, Format: format, Args: args})
}

func (m *MockLogger) Errorf(t providers.TypeEnum, format string, args ...interface{}) {
	m.record("error", t, format, args...)
}
func (m *MockLogger) Warnf(t providers.TypeEnum, format string, args ...interface{}) {
	m.record("warn", t, format, args...)
}
func (m *MockLogger) Debugf(t providers.TypeEnum, format string, args ...interface{}) {
	m.record("debug", t, format, args...)
}
func (m *MockLogger) Infof(t providers.TypeEnum, format string, args ...interface{}) {
	m.record("info", t, format, args...)
}
func (m *MockLogger) Fatalf(t providers.TypeEnum, format string, args ...interface{}) {
	m.record("fatal", t, format, args...)
}
func (m *MockLogger) Close() {}

// Count returns how many entries were logged at level.
func (m *MockLogger) Count(level string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.Logs {
		if e.Level == level {
			n++
		}
	}
	return n
}

// MockScanStatisticService implements services.ScanStatisticServiceInterface.
type MockScanStatisticService struct {
	mu             sync.Mutex
	Scans          []*models.ScanEvent
	AggregateCalls int
	Data           map[string]*models.ScanRecord
	PutCalls       []map[string]*models.ScanRecord
	Scanners       map[string][]byte
	ScannersErr    error
	NotFound       uint64
}

func (m *MockScanStatisticService) AddScan(event *models.ScanEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Scans = append(m.Scans, event)
}

func (m *MockScanStatisticService) AggregateStats() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.AggregateCalls++
}

func (m *MockScanStatisticService) GetBufferSize() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Scans)
}

func (m *MockScanStatisticService) GetProfileStats(profileID string) (models.ScanRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.Data[profileID]; ok {
		return *rec, true
	}
	return models.ScanRecord{}, false
}

func (m *MockScanStatisticService) GetSnapshot() map[string]*models.ScanRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]*models.ScanRecord, len(m.Data))
	for k, v := range m.Data {
		rec := *v
		out[k] = &rec
	}
	return out
}

func (m *MockScanStatisticService) PutData(data map[string]*models.ScanRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PutCalls = append(m.PutCalls, data)
	m.Data = data
}

func (m *MockScanStatisticService) NotFoundScans() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.NotFound
}

func (m *MockScanStatisticService) PutNotFoundScans(n uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.NotFound = n
}

func (m *MockScanStatisticService) ExportScanners() (map[string][]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ScannersErr != nil {
		return nil, m.ScannersErr
	}
	return m.Scanners, nil
}

func (m *MockScanStatisticService) ImportScanners(data map[string][]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ScannersErr != nil {
		return m.ScannersErr
	}
	m.Scanners = data
	return nil
}

func (m *MockScanStatisticService) Profiles() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Data)
}

// MockMetrics implements providers.MetricsProviderInterface and counts domain events.
type MockMetrics struct {
	mu                  sync.Mutex
	MessagesSent        int
	AnonymousSent       int
	RateLimited         map[string]int
	Scans               map[string]int
	PersistenceObserved int
}

func (m *MockMetrics) IncRequestsTotal(_ string, _ int)                 {}
func (m *MockMetrics) ObserveRequestDuration(_ string, _ time.Duration) {}
func (m *MockMetrics) IncCacheHits(_ string)                            {}
func (m *MockMetrics) IncCacheMisses(_ string)                          {}

func (m *MockMetrics) ObservePersistenceDuration(_ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PersistenceObserved++
}

func (m *MockMetrics) IncMessagesSent(anonymous bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.MessagesSent++
	if anonymous {
		m.AnonymousSent++
	}
}

func (m *MockMetrics) IncRateLimited(scope string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.RateLimited == nil {
		m.RateLimited = make(map[string]int)
	}
	m.RateLimited[scope]++
}

func (m *MockMetrics) IncScans(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Scans == nil {
		m.Scans = make(map[string]int)
	}
	m.Scans[outcome]++
}

func (m *MockMetrics) RegisterGauge(_, _ string, _ func() float64) {}

// MockCache implements providers.CacheProviderInterface.
type MockCache struct {
	mu   sync.Mutex
	Data map[string][]byte
}

func NewMockCache() *MockCache {
	return &MockCache{Data: make(map[string][]byte)}
}

func (m *MockCache) Get(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	val, ok := m.Data[key]
	return val, ok
}

func (m *MockCache) Set(key string, value []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Data[key] = value
}

func (m *MockCache) Del(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.Data, key)
}

// MockCompressor implements interfaces.CompressorInterface with injectable behavior.
type MockCompressor struct {
	CompressFn   func([]byte) ([]byte, error)
	DecompressFn func([]byte) ([]byte, error)
}

func (m *MockCompressor) Compress(val []byte) ([]byte, error) {
	if m.CompressFn != nil {
		return m.CompressFn(val)
	}
	out := make([]byte, len(val))
	copy(out, val)
	return out, nil
}

func (m *MockCompressor) Decompress(val []byte) ([]byte, error) {
	if m.DecompressFn != nil {
		return m.DecompressFn(val)
	}
	out := make([]byte, len(val))
	copy(out, val)
	return out, nil
}

func (m *MockCompressor) Close() {}

package services

import (
	"sync"

	"go.uber.org/atomic"

	"hoyn/internal/models"
)

type ScanStatisticServiceInterface interface {
	AddScan(event *models.ScanEvent)
	AggregateStats()
	GetBufferSize() int
	GetProfileStats(profileID string) (models.ScanRecord, bool)
	GetSnapshot() map[string]*models.ScanRecord
	PutData(data map[string]*models.ScanRecord)
	// NotFoundScans counts scans of recognised codes that matched no profile.
	NotFoundScans() uint64
	PutNotFoundScans(n uint64)
	ExportScanners() (map[string][]byte, error)
	ImportScanners(data map[string][]byte) error
	Profiles() int
}

type scanBuffer struct {
	atomic.Bool
	Data []*models.ScanEvent
}

// ScanStatisticService queues scan events in the active buffer and folds the
// other one into the counters on AggregateStats, so recording never waits on aggregation.
type ScanStatisticService struct {
	mu       sync.Mutex
	buffer1  scanBuffer
	buffer2  scanBuffer
	aggMu    sync.Mutex
	counters *models.ScanStatistic
}

func (ss *ScanStatisticService) active() *scanBuffer {
	if ss.buffer1.Load() {
		return &ss.buffer1
	}
	return &ss.buffer2
}

func (ss *ScanStatisticService) AddScan(event *models.ScanEvent) {
	if event == nil {
		return
	}
	ss.mu.Lock()
	buf := ss.active()
	buf.Data = append(buf.Data, event)
	ss.mu.Unlock()
}

func (ss *ScanStatisticService) GetBufferSize() int {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	return len(ss.active().Data)
}

func (ss *ScanStatisticService) switchBuffer() []*models.ScanEvent {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	full := ss.active()
	ss.buffer1.Store(!ss.buffer1.Load())
	ss.buffer2.Store(!ss.buffer2.Load())
	data := full.Data
	full.Data = make([]*models.ScanEvent, 0, len(data))
	return data
}

func (ss *ScanStatisticService) AggregateStats() {
	ss.aggMu.Lock()
	defer ss.aggMu.Unlock()
	ss.counters.IncStats(ss.switchBuffer())
}

func (ss *ScanStatisticService) GetProfileStats(profileID string) (models.ScanRecord, bool) {
	return ss.counters.Get(profileID)
}

func (ss *ScanStatisticService) GetSnapshot() map[string]*models.ScanRecord {
	return ss.counters.GetData()
}

func (ss *ScanStatisticService) PutData(data map[string]*models.ScanRecord) {
	ss.counters.PutData(data)
}

func (ss *ScanStatisticService) NotFoundScans() uint64 {
	return ss.counters.NotFound()
}

func (ss *ScanStatisticService) PutNotFoundScans(n uint64) {
	ss.counters.PutNotFound(n)
}

func (ss *ScanStatisticService) ExportScanners() (map[string][]byte, error) {
	return ss.counters.ExportScanners()
}

func (ss *ScanStatisticService) ImportScanners(data map[string][]byte) error {
	return ss.counters.ImportScanners(data)
}

func (ss *ScanStatisticService) Profiles() int {
	return ss.counters.Len()
}

func NewScanStatisticService() ScanStatisticServiceInterface {
	ss := &ScanStatisticService{counters: models.NewScanStatistic()}
	ss.buffer1.Data = make([]*models.ScanEvent, 0)
	ss.buffer2.Data = make([]*models.ScanEvent, 0)
	ss.buffer1.Store(true)
	ss.buffer2.Store(false)
	return ss
}

package models

import (
	"fmt"
	"sync"
	"time"

	"github.com/RoaringBitmap/roaring/v2"
)

// ScanEvent is a single scan outcome queued for aggregation.
type ScanEvent struct {
	ProfileID string    `json:"p"`
	Outcome   string    `json:"o"`
	At        time.Time `json:"t"`
	// Scanner is a hash of the scanning client, zero when unknown.
	Scanner uint32 `json:"s,omitempty"`
}

type ScanRecord struct {
	Scans      int       `json:"scans"`
	LastScanAt time.Time `json:"lastScanAt"`
	// UniqueScanners is derived from the scanner bitmap on read.
	UniqueScanners uint64 `json:"uniqueScanners"`
}

// ScanSummary is the view over every tracked profile. Scans of recognised codes
// whose profile does not exist are only counted in NotFound.
type ScanSummary struct {
	Profiles map[string]*ScanRecord `json:"profiles"`
	NotFound uint64                 `json:"notFound"`
}

type ScanStatistic struct {
	Mutex    sync.RWMutex
	Data     map[string]*ScanRecord
	scanners map[string]*roaring.Bitmap
	notFound uint64
}

func NewScanStatistic() *ScanStatistic {
	return &ScanStatistic{
		Data:     make(map[string]*ScanRecord),
		scanners: make(map[string]*roaring.Bitmap),
	}
}

// record copies rec with the distinct scanner count filled in. Caller must hold the lock.
func (ss *ScanStatistic) record(profileID string, rec *ScanRecord) ScanRecord {
	out := *rec
	if bm, ok := ss.scanners[profileID]; ok {
		out.UniqueScanners = bm.GetCardinality()
	}
	return out
}

func (ss *ScanStatistic) Get(profileID string) (ScanRecord, bool) {
	ss.Mutex.RLock()
	defer ss.Mutex.RUnlock()
	val, ok := ss.Data[profileID]
	if !ok {
		return ScanRecord{}, false
	}
	return ss.record(profileID, val), true
}

func (ss *ScanStatistic) Len() int {
	ss.Mutex.RLock()
	defer ss.Mutex.RUnlock()
	return len(ss.Data)
}

func (ss *ScanStatistic) NotFound() uint64 {
	ss.Mutex.RLock()
	defer ss.Mutex.RUnlock()
	return ss.notFound
}

func (ss *ScanStatistic) PutNotFound(n uint64) {
	ss.Mutex.Lock()
	defer ss.Mutex.Unlock()
	ss.notFound = n
}

func (ss *ScanStatistic) PutData(data map[string]*ScanRecord) {
	ss.Mutex.Lock()
	defer ss.Mutex.Unlock()
	if data == nil {
		data = make(map[string]*ScanRecord)
	}
	ss.Data = data
}

func (ss *ScanStatistic) GetData() map[string]*ScanRecord {
	ss.Mutex.RLock()
	defer ss.Mutex.RUnlock()

	copyMap := make(map[string]*ScanRecord, len(ss.Data))
	for k, v := range ss.Data {
		rec := ss.record(k, v)
		copyMap[k] = &rec
	}
	return copyMap
}

// IncStats folds a batch of events into the counters. Not-found scans only bump
// the shared total; resolved events without a profile id are skipped.
func (ss *ScanStatistic) IncStats(events []*ScanEvent) {
	ss.Mutex.Lock()
	defer ss.Mutex.Unlock()

	for _, e := range events {
		if e == nil {
			continue
		}
		if e.Outcome == ScanOutcomeNotFound {
			ss.notFound++
			continue
		}
		if e.ProfileID == "" {
			continue
		}
		rec, ok := ss.Data[e.ProfileID]
		if !ok {
			rec = &ScanRecord{}
			ss.Data[e.ProfileID] = rec
		}
		rec.Scans++
		if e.Scanner != 0 {
			bm, ok := ss.scanners[e.ProfileID]
			if !ok {
				bm = roaring.New()
				ss.scanners[e.ProfileID] = bm
			}
			bm.Add(e.Scanner)
		}
		if e.At.After(rec.LastScanAt) {
			rec.LastScanAt = e.At
		}
	}
}

// ExportScanners serializes the per-profile scanner bitmaps.
func (ss *ScanStatistic) ExportScanners() (map[string][]byte, error) {
	ss.Mutex.RLock()
	defer ss.Mutex.RUnlock()

	out := make(map[string][]byte, len(ss.scanners))
	for id, bm := range ss.scanners {
		buf, err := bm.MarshalBinary()
		if err != nil {
			return nil, fmt.Errorf("scanners of %s: %w", id, err)
		}
		out[id] = buf
	}
	return out, nil
}

// ImportScanners replaces the scanner bitmaps. Nothing is replaced if any entry is corrupt.
func (ss *ScanStatistic) ImportScanners(data map[string][]byte) error {
	loaded := make(map[string]*roaring.Bitmap, len(data))
	for id, buf := range data {
		bm := roaring.New()
		if err := bm.UnmarshalBinary(buf); err != nil {
			return fmt.Errorf("scanners of %s: %w", id, err)
		}
		loaded[id] = bm
	}

	ss.Mutex.Lock()
	defer ss.Mutex.Unlock()
	ss.scanners = loaded
	return nil
}

const (
	ScanOutcomeResolved = "resolved"
	ScanOutcomeNotFound = "not_found"
)

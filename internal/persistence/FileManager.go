package persistence

import (
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	json "github.com/goccy/go-json"

	"hoyn/internal/models"
	"hoyn/internal/persistence/interfaces"
	"hoyn/internal/providers"
	"hoyn/internal/services"
	"hoyn/internal/storage"
)

// FileManager writes the process state into one compressed snapshot file: the whole
// store when it lives in memory, and the aggregated scan counters in every case.
type FileManager struct {
	store      storage.Store
	stats      services.ScanStatisticServiceInterface
	compressor interfaces.CompressorInterface
	logger     providers.Logger
	metrics    providers.MetricsProviderInterface
}

func NewFileManager(compressor interfaces.CompressorInterface, store storage.Store, stats services.ScanStatisticServiceInterface, logger providers.Logger, metrics providers.MetricsProviderInterface) *FileManager {
	return &FileManager{
		compressor: compressor,
		store:      store,
		stats:      stats,
		logger:     logger,
		metrics:    metrics,
	}
}

func (f *FileManager) snapshot() (*models.Snapshot, error) {
	var snap *models.Snapshot
	if s, ok := f.store.(storage.Snapshotter); ok {
		snap = s.Snapshot()
	} else {
		snap = &models.Snapshot{Version: models.SnapshotVersion}
	}
	snap.ScanStats = f.stats.GetSnapshot()
	scanners, err := f.stats.ExportScanners()
	if err != nil {
		return nil, err
	}
	snap.ScanScanners = scanners
	snap.ScanNotFound = f.stats.NotFoundScans()
	return snap, nil
}

func (f *FileManager) SaveToFile(fileName string) error {
	start := time.Now()
	defer func() { f.metrics.ObservePersistenceDuration(time.Since(start)) }()

	snap, err := f.snapshot()
	if err != nil {
		return err
	}
	jsonData, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	data, err := f.compressor.Compress(jsonData)
	if err != nil {
		return err
	}

	tmpFile := fileName + ".tmp"
	file, err := os.Create(tmpFile)
	if err != nil {
		return err
	}

	_, err = file.Write(data)
	if err != nil {
		file.Close()
		os.Remove(tmpFile)
		return err
	}

	if err = file.Sync(); err != nil {
		file.Close()
		os.Remove(tmpFile)
		return err
	}

	if err = file.Close(); err != nil {
		os.Remove(tmpFile)
		return err
	}

	if err = os.Rename(tmpFile, fileName); err != nil {
		return err
	}
	f.logger.Debugf(providers.TypeApp, "Snapshot written: %s", humanize.Bytes(uint64(len(data))))
	return nil
}

func (f *FileManager) Close() {
	f.compressor.Close()
}

// LoadFromFile restores a snapshot written by SaveToFile. A missing file is not an error.
func (f *FileManager) LoadFromFile(fileName string) error {
	data, err := os.ReadFile(fileName)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	decompressed, err := f.compressor.Decompress(data)
	if err != nil {
		return fmt.Errorf("decompress %s: %w", fileName, err)
	}

	var snap models.Snapshot
	if err := json.Unmarshal(decompressed, &snap); err != nil {
		return fmt.Errorf("decode %s: %w", fileName, err)
	}
	if snap.Version > models.SnapshotVersion {
		return fmt.Errorf("snapshot version %d is newer than supported %d", snap.Version, models.SnapshotVersion)
	}

	if s, ok := f.store.(storage.Snapshotter); ok {
		if err := s.Restore(&snap); err != nil {
			return err
		}
		f.logger.Infof(providers.TypeApp, "Restored %d profiles, %d conversations, %d messages",
			len(snap.Profiles), len(snap.Conversations), len(snap.Messages))
	} else if len(snap.Conversations) > 0 {
		f.logger.Warnf(providers.TypeApp, "Snapshot holds %d conversations but the store is durable, ignoring them", len(snap.Conversations))
	}
	f.stats.PutData(snap.ScanStats)
	f.stats.PutNotFoundScans(snap.ScanNotFound)
	if err := f.stats.ImportScanners(snap.ScanScanners); err != nil {
		return fmt.Errorf("decode %s: %w", fileName, err)
	}
	return nil
}

package persistence

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hoyn/internal/models"
	"hoyn/internal/services"
	"hoyn/internal/storage"
	"hoyn/internal/storage/memory"
	"hoyn/internal/testutil"
)

var (
	alice = "aaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	bob   = "bbbbbbbbbbbbbbbbbbbbbbbbbbbb"
)

func seededMemoryStore(t *testing.T) *memory.Store {
	t.Helper()
	ctx := context.Background()
	s := memory.New(nil)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.UpsertProfile(ctx, &models.Profile{ID: "p-bob", OwnerUID: bob, Username: "bob",
		Settings: models.UserMessagingSettings{CanReceiveMessages: true}}))
	_, err := s.EnsureConversation(ctx, "conv_"+alice+"_"+bob, []string{alice, bob}, false)
	require.NoError(t, err)
	sender := alice
	require.NoError(t, s.AppendMessageAtomic(ctx, "conv_"+alice+"_"+bob, &models.Message{
		ID: "m1", ConversationID: "conv_" + alice + "_" + bob, SenderID: &sender, RecipientID: bob,
		Text: "hi", Timestamp: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	}, []string{bob}))
	return s
}

func newTestFileManager(comp *testutil.MockCompressor, store storage.Store) (*FileManager, *testutil.MockScanStatisticService) {
	stats := &testutil.MockScanStatisticService{}
	fm := NewFileManager(comp, store, stats, &testutil.MockLogger{}, &testutil.MockMetrics{})
	return fm, stats
}

func TestFileManager_SaveToFile_AtomicWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hoyn.dat")
	fm, _ := newTestFileManager(&testutil.MockCompressor{}, seededMemoryStore(t))

	require.NoError(t, fm.SaveToFile(path))

	_, err := os.Stat(path)
	assert.NoError(t, err)
	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestFileManager_SaveToFile_ObservesDuration(t *testing.T) {
	metrics := &testutil.MockMetrics{}
	fm := NewFileManager(&testutil.MockCompressor{}, memory.New(nil), &testutil.MockScanStatisticService{}, &testutil.MockLogger{}, metrics)
	require.NoError(t, fm.SaveToFile(filepath.Join(t.TempDir(), "hoyn.dat")))
	assert.Equal(t, 1, metrics.PersistenceObserved)
}

func TestFileManager_LoadFromFile_FileNotExist(t *testing.T) {
	fm, stats := newTestFileManager(&testutil.MockCompressor{}, memory.New(nil))
	assert.NoError(t, fm.LoadFromFile("/nonexistent/path/file.dat"))
	assert.Empty(t, stats.PutCalls)
}

func TestFileManager_Roundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roundtrip.dat")
	comp, err := NewZstdCompressor()
	require.NoError(t, err)

	stats := services.NewScanStatisticService()
	stats.AddScan(&models.ScanEvent{ProfileID: "p-bob", Outcome: models.ScanOutcomeResolved, At: time.Now(), Scanner: 7})
	stats.AddScan(&models.ScanEvent{ProfileID: "p-bob", Outcome: models.ScanOutcomeResolved, At: time.Now(), Scanner: 9})
	stats.AddScan(&models.ScanEvent{Outcome: models.ScanOutcomeNotFound, At: time.Now()})
	stats.AggregateStats()

	src := NewFileManager(comp, seededMemoryStore(t), stats, &testutil.MockLogger{}, &testutil.MockMetrics{})
	require.NoError(t, src.SaveToFile(path))

	restored := memory.New(nil)
	defer restored.Close()
	restoredStats := services.NewScanStatisticService()
	dst := NewFileManager(comp, restored, restoredStats, &testutil.MockLogger{}, &testutil.MockMetrics{})
	require.NoError(t, dst.LoadFromFile(path))

	conv, err := restored.GetConversation(context.Background(), "conv_"+alice+"_"+bob)
	require.NoError(t, err)
	assert.Equal(t, "hi", conv.LastMessage)
	assert.Equal(t, 1, conv.UnreadCounts[bob])

	msgs, err := restored.GetMessages(context.Background(), conv.ID, 1, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "m1", msgs[0].ID)

	settings, err := restored.GetUserMessagingSettings(context.Background(), bob)
	require.NoError(t, err)
	assert.True(t, settings.CanReceiveMessages)

	rec, ok := restoredStats.GetProfileStats("p-bob")
	require.True(t, ok)
	assert.Equal(t, 2, rec.Scans)
	assert.Equal(t, uint64(2), rec.UniqueScanners)
	assert.Equal(t, uint64(1), restoredStats.NotFoundScans())
	assert.Equal(t, 1, restoredStats.Profiles())
}

type durableStore struct {
	storage.Store
}

func TestFileManager_DurableStoreKeepsOnlyScanStats(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stats.dat")
	snap := models.Snapshot{
		Version:   models.SnapshotVersion,
		ScanStats: map[string]*models.ScanRecord{"p1": {Scans: 3}},
	}
	data, err := json.Marshal(snap)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0644))

	fm, stats := newTestFileManager(&testutil.MockCompressor{}, durableStore{})
	require.NoError(t, fm.LoadFromFile(path))

	require.Len(t, stats.PutCalls, 1)
	assert.Equal(t, 3, stats.PutCalls[0]["p1"].Scans)

	// saving without a snapshotter writes stats only
	require.NoError(t, fm.SaveToFile(path))
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var saved models.Snapshot
	require.NoError(t, json.Unmarshal(raw, &saved))
	assert.Empty(t, saved.Conversations)
	assert.Equal(t, 3, saved.ScanStats["p1"].Scans)
}

func TestFileManager_LoadFromFile_NewerVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "future.dat")
	require.NoError(t, os.WriteFile(path, []byte(`{"version":99}`), 0644))

	fm, stats := newTestFileManager(&testutil.MockCompressor{}, memory.New(nil))
	assert.Error(t, fm.LoadFromFile(path))
	assert.Empty(t, stats.PutCalls)
}

func TestFileManager_LoadFromFile_InvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "invalid.dat")
	require.NoError(t, os.WriteFile(path, []byte("not json at all"), 0644))

	fm, _ := newTestFileManager(&testutil.MockCompressor{}, memory.New(nil))
	assert.Error(t, fm.LoadFromFile(path))
}

func TestFileManager_CompressError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "err.dat")
	comp := &testutil.MockCompressor{
		CompressFn: func(b []byte) ([]byte, error) {
			return nil, errors.New("compress failed")
		},
	}
	fm, _ := newTestFileManager(comp, memory.New(nil))

	err := fm.SaveToFile(path)
	assert.ErrorContains(t, err, "compress failed")
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestFileManager_DecompressError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dec.dat")
	require.NoError(t, os.WriteFile(path, []byte("some data"), 0644))

	comp := &testutil.MockCompressor{
		DecompressFn: func(b []byte) ([]byte, error) {
			return nil, errors.New("decompress failed")
		},
	}
	fm, _ := newTestFileManager(comp, memory.New(nil))
	assert.ErrorContains(t, fm.LoadFromFile(path), "decompress failed")
}

func TestFileManager_SaveToFile_BadDirectory(t *testing.T) {
	fm, _ := newTestFileManager(&testutil.MockCompressor{}, memory.New(nil))
	assert.Error(t, fm.SaveToFile("/nonexistent/dir/hoyn.dat"))
}

func TestFileManager_SaveToFile_ScannerExportError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hoyn.dat")
	fm, stats := newTestFileManager(&testutil.MockCompressor{}, memory.New(nil))
	stats.ScannersErr = errors.New("bitmap broken")

	assert.ErrorContains(t, fm.SaveToFile(path), "bitmap broken")
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestFileManager_LoadFromFile_CorruptScanners(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hoyn.dat")
	data, err := json.Marshal(models.Snapshot{
		Version:      models.SnapshotVersion,
		ScanScanners: map[string][]byte{"p1": []byte("garbage")},
	})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	fm := NewFileManager(&testutil.MockCompressor{}, memory.New(nil), services.NewScanStatisticService(), &testutil.MockLogger{}, &testutil.MockMetrics{})
	assert.Error(t, fm.LoadFromFile(path))
}

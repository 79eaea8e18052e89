package backend

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hoyn/internal/models"
	"hoyn/internal/storage"
	"hoyn/internal/storage/memory"
	"hoyn/internal/storage/pebblestore"
	"hoyn/internal/structures"
	"hoyn/internal/testutil"
)

func TestNewStore_Memory(t *testing.T) {
	conf := &structures.Config{Storage: structures.StorageConfig{Driver: DriverMemory}}
	s, cleanup, err := NewStore(conf, &testutil.MockLogger{})
	require.NoError(t, err)
	defer cleanup()

	assert.IsType(t, &memory.Store{}, s)
	_, ok := s.(storage.Snapshotter)
	assert.True(t, ok)
}

func TestNewStore_Pebble(t *testing.T) {
	conf := &structures.Config{Storage: structures.StorageConfig{
		Driver:    DriverPebble,
		PebbleDir: filepath.Join(t.TempDir(), "db"),
	}}
	s, cleanup, err := NewStore(conf, &testutil.MockLogger{})
	require.NoError(t, err)
	defer cleanup()

	assert.IsType(t, &pebblestore.Store{}, s)
	require.NoError(t, s.UpsertProfile(context.Background(), &models.Profile{ID: "p1", OwnerUID: "u1", Username: "neo"}))
	p, err := s.ProfileByUsername(context.Background(), "neo")
	require.NoError(t, err)
	assert.Equal(t, "p1", p.ID)
}

func TestNewStore_UnknownDriver(t *testing.T) {
	conf := &structures.Config{Storage: structures.StorageConfig{Driver: "mongo"}}
	_, _, err := NewStore(conf, &testutil.MockLogger{})
	assert.Error(t, err)
}

func TestNewStore_PostgresBadDSN(t *testing.T) {
	conf := &structures.Config{Storage: structures.StorageConfig{Driver: DriverPostgres, PostgresDSN: "::not a dsn::"}}
	_, _, err := NewStore(conf, &testutil.MockLogger{})
	assert.Error(t, err)
}

package providers

import (
	"os"
	"path/filepath"
	"testing"

	"hoyn/internal/structures"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetLogTypeByRequestType_POST(t *testing.T) {
	assert.Equal(t, TypeEnum(TypePost), GetLogTypeByRequestType("POST"))
}

func TestGetLogTypeByRequestType_GET(t *testing.T) {
	assert.Equal(t, TypeEnum(TypeGet), GetLogTypeByRequestType("GET"))
}

func TestGetLogTypeByRequestType_Other(t *testing.T) {
	assert.Equal(t, TypeEnum(TypeGet), GetLogTypeByRequestType("PUT"))
	assert.Equal(t, TypeEnum(TypeGet), GetLogTypeByRequestType("DELETE"))
}

func TestNewLogProvider_CreatesLogFiles(t *testing.T) {
	dir := t.TempDir()
	conf := &structures.Config{
		Logger: structures.LoggerConfig{
			Level: "info",
			Mode:  0644,
			Dir:   dir,
		},
	}

	logger, err := NewLogProvider(conf)
	require.NoError(t, err)

	logger.Infof(TypeApp, "test message")
	logger.Debugf(TypeGet, "get message")
	logger.Warnf(TypePost, "post message")
	logger.Infof(TypeMessaging, "message to %s", "bob")
	logger.Errorf(TypeScan, "scan failed")
	logger.Close()

	for _, name := range []string{"app.log", "get.log", "post.log", "messaging.log", "scan.log"} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, name)
	}

	data, err := os.ReadFile(filepath.Join(dir, "messaging.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "message to bob")

	// below the configured level
	data, err = os.ReadFile(filepath.Join(dir, "get.log"))
	require.NoError(t, err)
	assert.NotContains(t, string(data), "get message")
}

func TestNewLogProvider_DebugModeLowersLevel(t *testing.T) {
	dir := t.TempDir()
	conf := &structures.Config{
		Debug:  true,
		Logger: structures.LoggerConfig{Level: "error", Mode: 0644, Dir: dir},
	}
	logger, err := NewLogProvider(conf)
	require.NoError(t, err)
	logger.Debugf(TypeApp, "visible in debug")
	logger.Close()

	data, err := os.ReadFile(filepath.Join(dir, "app.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "visible in debug")
}

func TestNewLogProvider_InvalidDir(t *testing.T) {
	conf := &structures.Config{
		Logger: structures.LoggerConfig{
			Level: "info",
			Mode:  0644,
			Dir:   "/nonexistent/directory/path",
		},
	}

	_, err := NewLogProvider(conf)
	assert.Error(t, err)
}

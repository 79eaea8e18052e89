package providers

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"hoyn/internal/structures"
)

func validConfig() *structures.Config {
	return &structures.Config{
		WebServer: structures.Server{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Logger: structures.LoggerConfig{
			Level: "info",
			Mode:  0644,
			Dir:   "/tmp/logs",
		},
		Messaging: structures.MessagingConfig{
			RateLimitWindow:    5 * time.Minute,
			RateLimitMaxEvents: 5,
			MaxTextLength:      300,
			MaxAnonymousLength: 100,
		},
		QR: structures.QRConfig{
			BaseURL: "https://hoyn.app",
		},
		Storage: structures.StorageConfig{
			Driver:       "memory",
			SnapshotPath: "/tmp/hoyn.dat",
			SaveInterval: 30 * time.Second,
		},
	}
}

func TestConfigValidator_ValidConfig(t *testing.T) {
	v := NewCnfValidator(validConfig())
	assert.NoError(t, v.Validate())
}

func TestConfigValidator_EmptyHost(t *testing.T) {
	c := validConfig()
	c.WebServer.Host = ""
	v := NewCnfValidator(c)
	assert.Error(t, v.Validate())
}

func TestConfigValidator_ZeroPort(t *testing.T) {
	c := validConfig()
	c.WebServer.Port = 0
	v := NewCnfValidator(c)
	assert.Error(t, v.Validate())
}

func TestConfigValidator_EmptyLogLevel(t *testing.T) {
	c := validConfig()
	c.Logger.Level = ""
	v := NewCnfValidator(c)
	assert.Error(t, v.Validate())
}

func TestConfigValidator_InvalidLogLevel(t *testing.T) {
	c := validConfig()
	c.Logger.Level = "verbose"
	v := NewCnfValidator(c)
	assert.Error(t, v.Validate())
}

func TestConfigValidator_UnknownDriver(t *testing.T) {
	c := validConfig()
	c.Storage.Driver = "mongo"
	assert.Error(t, NewCnfValidator(c).Validate())
}

func TestConfigValidator_PebbleNeedsDir(t *testing.T) {
	c := validConfig()
	c.Storage.Driver = "pebble"
	assert.Error(t, NewCnfValidator(c).Validate())

	c.Storage.PebbleDir = "/tmp/hoyn-pebble"
	assert.NoError(t, NewCnfValidator(c).Validate())
}

func TestConfigValidator_PostgresNeedsDSN(t *testing.T) {
	c := validConfig()
	c.Storage.Driver = "postgres"
	assert.Error(t, NewCnfValidator(c).Validate())

	c.Storage.PostgresDSN = "postgres://hoyn@localhost/hoyn"
	assert.NoError(t, NewCnfValidator(c).Validate())
}

func TestConfigValidator_AnonymousLimitAboveTextLimit(t *testing.T) {
	c := validConfig()
	c.Messaging.MaxAnonymousLength = 400
	assert.Error(t, NewCnfValidator(c).Validate())
}

func TestConfigValidator_ShortJWTSecret(t *testing.T) {
	c := validConfig()
	c.Auth.JWTSecret = "short"
	assert.Error(t, NewCnfValidator(c).Validate())
}

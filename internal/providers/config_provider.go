package providers

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"hoyn/internal/structures"
)

var envBindings = map[string]string{
	"webServer.host":               "HOYN_HOST",
	"webServer.port":               "HOYN_PORT",
	"logger.level":                 "HOYN_LOG_LEVEL",
	"logger.dir":                   "HOYN_LOG_DIR",
	"qr.baseUrl":                   "HOYN_QR_BASE_URL",
	"storage.driver":               "HOYN_STORAGE_DRIVER",
	"storage.snapshotPath":         "HOYN_SNAPSHOT_PATH",
	"storage.saveInterval":         "HOYN_SAVE_INTERVAL",
	"storage.pebbleDir":            "HOYN_PEBBLE_DIR",
	"storage.postgresDsn":          "HOYN_POSTGRES_DSN",
	"messaging.rateLimitWindow":    "HOYN_RATE_LIMIT_WINDOW",
	"messaging.rateLimitMaxEvents": "HOYN_RATE_LIMIT_MAX",
	"analytics.interval":           "HOYN_AGGREGATION_INTERVAL",
	"cache.enabled":                "HOYN_CACHE_ENABLED",
	"cache.size":                   "HOYN_CACHE_SIZE",
	"metrics.enabled":              "HOYN_METRICS_ENABLED",
	"auth.jwtSecret":               "HOYN_JWT_SECRET",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("webServer.shutdownTimeout", 5*time.Second)
	v.SetDefault("messaging.rateLimitWindow", 5*time.Minute)
	v.SetDefault("messaging.rateLimitMaxEvents", 5)
	v.SetDefault("messaging.maxTextLength", 300)
	v.SetDefault("messaging.maxAnonymousLength", 100)
	v.SetDefault("messaging.sweepInterval", time.Minute)
	v.SetDefault("qr.scanRps", 5)
	v.SetDefault("qr.scanBurst", 10)
	v.SetDefault("storage.driver", "memory")
	v.SetDefault("storage.saveInterval", 30*time.Second)
	v.SetDefault("storage.maxConns", 10)
	v.SetDefault("analytics.interval", 10*time.Second)
	v.SetDefault("cache.ttl", time.Minute)
	v.SetDefault("auth.jwtIssuer", "hoyn")
}

func NewConfigProvider(flags *structures.CliFlags) (*structures.Config, error) {
	var conf structures.Config
	v := viper.New()

	filename := filepath.Base(flags.ConfigPath)
	v.AddConfigPath(filepath.Dir(flags.ConfigPath))
	v.SetConfigName(strings.TrimSuffix(filename, filepath.Ext(filename)))
	v.SetConfigType("yaml")

	setDefaults(v)
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind %s: %w", env, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	if err := v.Unmarshal(&conf); err != nil {
		return nil, fmt.Errorf("unable to decode into config struct: %w", err)
	}

	if err := NewCnfValidator(&conf).Validate(); err != nil {
		return nil, err
	}

	conf.AppName = "HoynCore"
	conf.Path = flags.ConfigPath
	conf.Debug = flags.DebugMode

	return &conf, nil
}

package structures

import "time"

type Server struct {
	Host            string        `yaml:"host" mapstructure:"host" validate:"required"`
	Port            int           `yaml:"port" mapstructure:"port" validate:"required|uint|min:1"`
	TrustProxy      bool          `yaml:"trustProxy" mapstructure:"trustProxy"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" mapstructure:"shutdownTimeout"`
}

type LoggerConfig struct {
	Level string `yaml:"level" mapstructure:"level" validate:"required|in:trace,debug,info,warn,error,fatal,panic"`
	Mode  uint32 `yaml:"mode" mapstructure:"mode" validate:"required|uint"`
	Dir   string `yaml:"dir" mapstructure:"dir" validate:"required|unixPath"`
}

type MessagingConfig struct {
	RateLimitWindow    time.Duration `yaml:"rateLimitWindow" mapstructure:"rateLimitWindow"`
	RateLimitMaxEvents int           `yaml:"rateLimitMaxEvents" mapstructure:"rateLimitMaxEvents"`
	MaxTextLength      int           `yaml:"maxTextLength" mapstructure:"maxTextLength"`
	MaxAnonymousLength int           `yaml:"maxAnonymousLength" mapstructure:"maxAnonymousLength"`
	SweepInterval      time.Duration `yaml:"sweepInterval" mapstructure:"sweepInterval"`
}

type QRConfig struct {
	BaseURL   string  `yaml:"baseUrl" mapstructure:"baseUrl" validate:"required|fullUrl"`
	ScanRPS   float64 `yaml:"scanRps" mapstructure:"scanRps"`
	ScanBurst int     `yaml:"scanBurst" mapstructure:"scanBurst"`
}

type StorageConfig struct {
	Driver       string        `yaml:"driver" mapstructure:"driver" validate:"required|in:memory,pebble,postgres"`
	SnapshotPath string        `yaml:"snapshotPath" mapstructure:"snapshotPath"`
	SaveInterval time.Duration `yaml:"saveInterval" mapstructure:"saveInterval"`
	PebbleDir    string        `yaml:"pebbleDir" mapstructure:"pebbleDir"`
	PostgresDSN  string        `yaml:"postgresDsn" mapstructure:"postgresDsn"`
	MaxConns     int32         `yaml:"maxConns" mapstructure:"maxConns"`
}

type AnalyticsConfig struct {
	Interval time.Duration `yaml:"interval" mapstructure:"interval"`
}

type CacheConfig struct {
	Enabled bool          `yaml:"enabled" mapstructure:"enabled"`
	Size    int           `yaml:"size" mapstructure:"size"`
	TTL     time.Duration `yaml:"ttl" mapstructure:"ttl"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwtSecret" mapstructure:"jwtSecret"`
	JWTIssuer string `yaml:"jwtIssuer" mapstructure:"jwtIssuer"`
}

type Config struct {
	AppName   string
	Debug     bool
	Path      string
	WebServer Server          `yaml:"webServer" mapstructure:"webServer"`
	Logger    LoggerConfig    `yaml:"logger" mapstructure:"logger"`
	Messaging MessagingConfig `yaml:"messaging" mapstructure:"messaging"`
	QR        QRConfig        `yaml:"qr" mapstructure:"qr"`
	Storage   StorageConfig   `yaml:"storage" mapstructure:"storage"`
	Analytics AnalyticsConfig `yaml:"analytics" mapstructure:"analytics"`
	Cache     CacheConfig     `yaml:"cache" mapstructure:"cache"`
	Metrics   MetricsConfig   `yaml:"metrics" mapstructure:"metrics"`
	Auth      AuthConfig      `yaml:"auth" mapstructure:"auth"`
}

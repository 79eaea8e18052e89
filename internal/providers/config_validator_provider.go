package providers

import (
	"errors"
	"fmt"

	"github.com/gookit/validate"
	"github.com/rs/zerolog"

	"hoyn/internal/structures"
)

type CnfValidator struct {
	conf *structures.Config
}

func NewCnfValidator(conf *structures.Config) *CnfValidator {
	return &CnfValidator{conf: conf}
}

// Validate runs the struct tag rules and then the checks that span several sections.
func (cv *CnfValidator) Validate() error {
	v := validate.Struct(cv.conf)
	if !v.Validate() {
		return fmt.Errorf("config validation: %w", v.Errors)
	}

	c := cv.conf
	if c.WebServer.Host == "" {
		return errors.New("webServer.host is required")
	}
	if _, err := zerolog.ParseLevel(c.Logger.Level); err != nil || c.Logger.Level == "" {
		return fmt.Errorf("logger.level %q is not a log level", c.Logger.Level)
	}
	if c.WebServer.Port < 1 || c.WebServer.Port > 65535 {
		return fmt.Errorf("webServer.port %d out of range", c.WebServer.Port)
	}
	switch c.Storage.Driver {
	case "pebble":
		if c.Storage.PebbleDir == "" {
			return errors.New("storage.pebbleDir is required for the pebble driver")
		}
	case "postgres":
		if c.Storage.PostgresDSN == "" {
			return errors.New("storage.postgresDsn is required for the postgres driver")
		}
	}
	if c.Messaging.RateLimitWindow < 0 || c.Messaging.RateLimitMaxEvents < 0 {
		return errors.New("messaging rate limit must not be negative")
	}
	if c.Messaging.MaxAnonymousLength > 0 && c.Messaging.MaxTextLength > 0 &&
		c.Messaging.MaxAnonymousLength > c.Messaging.MaxTextLength {
		return errors.New("messaging.maxAnonymousLength exceeds maxTextLength")
	}
	if c.Auth.JWTSecret != "" && len(c.Auth.JWTSecret) < 16 {
		return errors.New("auth.jwtSecret must be at least 16 bytes")
	}
	return nil
}

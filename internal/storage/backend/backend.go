package backend

import (
	"context"
	"fmt"
	"time"

	"hoyn/internal/providers"
	"hoyn/internal/storage"
	"hoyn/internal/storage/memory"
	"hoyn/internal/storage/pebblestore"
	"hoyn/internal/storage/postgres"
	"hoyn/internal/structures"
)

const (
	DriverMemory   = "memory"
	DriverPebble   = "pebble"
	DriverPostgres = "postgres"
)

const connectTimeout = 10 * time.Second

// NewStore opens the configured store. The returned cleanup closes it.
func NewStore(conf *structures.Config, logger providers.Logger) (storage.Store, func(), error) {
	onError := func(userID string, err error) {
		logger.Errorf(providers.TypeMessaging, "Conversation snapshot for %s failed: %s", userID, err)
	}

	switch conf.Storage.Driver {
	case DriverMemory, "":
		s := memory.New(onError)
		logger.Infof(providers.TypeApp, "Storage: in-memory, snapshot %q", conf.Storage.SnapshotPath)
		return s, closer(s, logger), nil

	case DriverPebble:
		s, err := pebblestore.Open(conf.Storage.PebbleDir, onError)
		if err != nil {
			return nil, nil, err
		}
		logger.Infof(providers.TypeApp, "Storage: pebble at %s", conf.Storage.PebbleDir)
		return s, closer(s, logger), nil

	case DriverPostgres:
		ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
		defer cancel()

		pool, err := postgres.NewPool(ctx, conf.Storage.PostgresDSN, conf.Storage.MaxConns)
		if err != nil {
			return nil, nil, err
		}
		version, err := postgres.Migrate(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		logger.Infof(providers.TypeApp, "Storage: postgres, schema version %d", version)
		s := postgres.New(pool, onError)
		return s, func() {
			closer(s, logger)()
			pool.Close()
		}, nil
	}
	return nil, nil, fmt.Errorf("unknown storage driver %q", conf.Storage.Driver)
}

func closer(s storage.Store, logger providers.Logger) func() {
	return func() {
		if err := s.Close(); err != nil {
			logger.Errorf(providers.TypeApp, "Close storage: %s", err)
		}
	}
}

//go:build wireinject
// +build wireinject

package di

import (
	wire "github.com/google/wire"

	"hoyn/internal"
	"hoyn/internal/controllers"
	"hoyn/internal/conversation"
	"hoyn/internal/dispatch"
	"hoyn/internal/persistence"
	"hoyn/internal/providers"
	"hoyn/internal/services"
	"hoyn/internal/storage"
	"hoyn/internal/storage/backend"
	"hoyn/internal/structures"
)

func InitApp(cfg *structures.CliFlags) (*internal.App, func(), error) {

	wire.Build(
		providers.NewConfigProvider,
		providers.NewLogProvider,
		providers.NewMetricsProvider,
		providers.NewInstrumentedCacheProvider,
		providers.NewIdentityProvider,

		backend.NewStore,
		wire.Bind(new(conversation.Creator), new(storage.Store)),
		wire.Bind(new(conversation.UnreadResetter), new(storage.Store)),
		wire.Bind(new(services.ProfileWriter), new(storage.Store)),
		wire.Bind(new(dispatch.ProfileLookup), new(*dispatch.CachedLookup)),
		wire.Bind(new(services.ProfileCache), new(*dispatch.CachedLookup)),
		conversation.NewDirectory,
		conversation.NewUnreadTracker,

		services.NewMessageLimiter,
		services.NewScanThrottle,
		services.NewScanStatisticService,
		services.NewProfileLookup,
		services.NewMessageService,
		services.NewQRService,
		services.NewProfileService,

		persistence.NewZstdCompressor,
		persistence.NewFileManager,
		persistence.NewScheduler,

		controllers.NewMessageController,
		controllers.NewQRController,
		controllers.NewConversationController,
		controllers.NewProfileController,
		controllers.NewStatsController,
		controllers.NewHealthController,
		internal.InitRoutes,
		internal.NewApp,
	)

	return nil, nil, nil
}

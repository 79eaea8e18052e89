package services

import (
	"context"
	"errors"
	"strings"

	"hoyn/internal/dispatch"
	"hoyn/internal/models"
	"hoyn/internal/providers"
	"hoyn/internal/storage"
)

type ProfileWriter interface {
	ProfileByID(ctx context.Context, id string) (*models.Profile, error)
	UpsertProfile(ctx context.Context, profile *models.Profile) error
}

// ProfileCache is satisfied by *dispatch.CachedLookup.
type ProfileCache interface {
	Forget(profile *models.Profile)
}

type ProfileServiceInterface interface {
	Upsert(ctx context.Context, profile *models.Profile) error
}

// ProfileService accepts profile records pushed by the profile collaborator and evicts
// the scan cache entries of both the old and the new record, so a renamed slug stops
// resolving on this instance at once. Other instances see it after the cache TTL.
type ProfileService struct {
	store  ProfileWriter
	cache  ProfileCache
	logger providers.Logger
}

func NewProfileService(store ProfileWriter, cache ProfileCache, logger providers.Logger) ProfileServiceInterface {
	return &ProfileService{store: store, cache: cache, logger: logger}
}

func (ps *ProfileService) Upsert(ctx context.Context, profile *models.Profile) error {
	if profile == nil || strings.TrimSpace(profile.ID) == "" {
		return &ValidationError{Field: "id", Constraint: "is required"}
	}
	if !ValidActorID(profile.OwnerUID) {
		return &ValidationError{Field: "ownerUid", Constraint: "must be a 28 character user id"}
	}
	if strings.TrimSpace(profile.Username) == "" {
		return &ValidationError{Field: "username", Constraint: "is required"}
	}

	previous, err := ps.store.ProfileByID(ctx, profile.ID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return transient("load profile", err)
	}
	if err := ps.store.UpsertProfile(ctx, profile); err != nil {
		return transient("upsert profile", err)
	}
	ps.cache.Forget(previous)
	ps.cache.Forget(profile)

	ps.logger.Infof(providers.TypeApp, "Profile %s (%s) upserted", profile.ID, profile.Username)
	return nil
}

// NewProfileLookup serves scan lookups from the cache before asking the store.
func NewProfileLookup(store storage.Store, cache providers.CacheProviderInterface) *dispatch.CachedLookup {
	return dispatch.NewCachedLookup(store, cache)
}

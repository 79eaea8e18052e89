package dispatch

import (
	"context"
	"fmt"

	json "github.com/goccy/go-json"

	"hoyn/internal/models"
	"hoyn/internal/storage"
)

// Cache is satisfied by providers.CacheProviderInterface.
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte)
	Del(key string)
}

// CachedLookup keeps found profiles in a byte cache. Misses are not cached so a
// freshly created profile resolves on the next scan.
type CachedLookup struct {
	inner ProfileLookup
	cache Cache
}

func NewCachedLookup(inner ProfileLookup, cache Cache) *CachedLookup {
	return &CachedLookup{inner: inner, cache: cache}
}

func slugKey(slug string) string         { return "profile:slug:" + slug }
func idKey(id string) string             { return "profile:id:" + id }
func usernameKey(username string) string { return "profile:username:" + username }

func (c *CachedLookup) ProfileBySlug(ctx context.Context, slug string) (*models.Profile, error) {
	return c.get(ctx, slugKey(slug), slug, c.inner.ProfileBySlug)
}

func (c *CachedLookup) ProfileByID(ctx context.Context, id string) (*models.Profile, error) {
	return c.get(ctx, idKey(id), id, c.inner.ProfileByID)
}

func (c *CachedLookup) ProfileByUsername(ctx context.Context, username string) (*models.Profile, error) {
	return c.get(ctx, usernameKey(username), username, c.inner.ProfileByUsername)
}

// Forget drops every cached alias of p. Nil is ignored.
func (c *CachedLookup) Forget(p *models.Profile) {
	if p == nil {
		return
	}
	c.cache.Del(idKey(p.ID))
	c.cache.Del(usernameKey(p.Username))
	if p.Slug != "" {
		c.cache.Del(slugKey(p.Slug))
	}
}

func (c *CachedLookup) get(ctx context.Context, key, value string, find func(context.Context, string) (*models.Profile, error)) (*models.Profile, error) {
	if raw, ok := c.cache.Get(key); ok {
		var p models.Profile
		if err := json.Unmarshal(raw, &p); err == nil && p.ID != "" {
			return &p, nil
		}
	}

	p, err := find(ctx, value)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("profile %s: %w", value, storage.ErrNotFound)
	}
	if raw, err := json.Marshal(p); err == nil {
		c.cache.Set(key, raw)
	}
	return p, nil
}

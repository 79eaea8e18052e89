package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hoyn/internal/dispatch"
	"hoyn/internal/models"
	"hoyn/internal/storage"
	"hoyn/internal/storage/memory"
	"hoyn/internal/testutil"
)

type profileFixture struct {
	svc    ProfileServiceInterface
	store  *memory.Store
	lookup *dispatch.CachedLookup
	cache  *testutil.MockCache
	logger *testutil.MockLogger
}

func newProfileFixture(t *testing.T) *profileFixture {
	t.Helper()
	mem := memory.New(nil)
	t.Cleanup(func() { _ = mem.Close() })
	f := &profileFixture{store: mem, cache: testutil.NewMockCache(), logger: &testutil.MockLogger{}}
	f.lookup = NewProfileLookup(mem, f.cache)
	f.svc = NewProfileService(mem, f.lookup, f.logger)
	return f
}

func TestProfileService_UpsertValidates(t *testing.T) {
	f := newProfileFixture(t)
	cases := map[string]*models.Profile{
		"id":       {OwnerUID: alice, Username: "neo"},
		"ownerUid": {ID: "p1", OwnerUID: "short", Username: "neo"},
		"username": {ID: "p1", OwnerUID: alice, Username: "  "},
	}
	for field, p := range cases {
		var verr *ValidationError
		require.ErrorAs(t, f.svc.Upsert(context.Background(), p), &verr, field)
		assert.Equal(t, field, verr.Field)
	}

	var verr *ValidationError
	assert.ErrorAs(t, f.svc.Upsert(context.Background(), nil), &verr)
}

func TestProfileService_RenameEvictsOldAliases(t *testing.T) {
	f := newProfileFixture(t)
	ctx := context.Background()
	require.NoError(t, f.svc.Upsert(ctx, &models.Profile{ID: "p1", OwnerUID: alice, Username: "neo", Slug: "the-one"}))

	_, err := f.lookup.ProfileBySlug(ctx, "the-one")
	require.NoError(t, err)
	_, err = f.lookup.ProfileByUsername(ctx, "neo")
	require.NoError(t, err)
	require.Len(t, f.cache.Data, 2)

	require.NoError(t, f.svc.Upsert(ctx, &models.Profile{ID: "p1", OwnerUID: alice, Username: "thomas", Slug: "anderson"}))
	assert.Empty(t, f.cache.Data)

	_, err = f.lookup.ProfileBySlug(ctx, "the-one")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	p, err := f.lookup.ProfileBySlug(ctx, "anderson")
	require.NoError(t, err)
	assert.Equal(t, "thomas", p.Username)
	assert.Equal(t, 2, f.logger.Count("info"))
}

type failingProfileStore struct {
	*memory.Store
	readErr  error
	writeErr error
}

func (s *failingProfileStore) ProfileByID(ctx context.Context, id string) (*models.Profile, error) {
	if s.readErr != nil {
		return nil, s.readErr
	}
	return s.Store.ProfileByID(ctx, id)
}

func (s *failingProfileStore) UpsertProfile(ctx context.Context, p *models.Profile) error {
	if s.writeErr != nil {
		return s.writeErr
	}
	return s.Store.UpsertProfile(ctx, p)
}

func TestProfileService_StoreFailuresAreTransient(t *testing.T) {
	mem := memory.New(nil)
	defer mem.Close()
	cache := testutil.NewMockCache()
	cache.Data["profile:id:p1"] = []byte(`{"id":"p1"}`)
	profile := &models.Profile{ID: "p1", OwnerUID: alice, Username: "neo"}

	for _, store := range []*failingProfileStore{
		{Store: mem, readErr: errors.New("read timeout")},
		{Store: mem, writeErr: errors.New("write timeout")},
	} {
		svc := NewProfileService(store, NewProfileLookup(mem, cache), &testutil.MockLogger{})
		var terr *TransientStoreError
		assert.ErrorAs(t, svc.Upsert(context.Background(), profile), &terr)
	}
	assert.Contains(t, cache.Data, "profile:id:p1")
}

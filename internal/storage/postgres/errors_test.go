package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"hoyn/internal/storage"
)

func TestMapError(t *testing.T) {
	assert.NoError(t, mapError(nil, "conversation", "c1"))
	assert.ErrorIs(t, mapError(pgx.ErrNoRows, "conversation", "c1"), storage.ErrNotFound)
	assert.ErrorIs(t, mapError(&pgconn.PgError{Code: "23503"}, "message", "m1"), storage.ErrNotFound)
	assert.ErrorIs(t, mapError(context.Canceled, "message", "m1"), context.Canceled)

	other := errors.New("connection reset")
	err := mapError(other, "profile", "p1")
	assert.ErrorIs(t, err, other)
	assert.NotErrorIs(t, err, storage.ErrNotFound)
	assert.Contains(t, err.Error(), "profile p1")
}

func TestNullIfEmpty(t *testing.T) {
	assert.Nil(t, nullIfEmpty(""))
	v := nullIfEmpty("slug")
	if assert.NotNil(t, v) {
		assert.Equal(t, "slug", *v)
	}
}

func TestMigrationsEmbedded(t *testing.T) {
	entries, err := migrationsFS.ReadDir("migrations")
	assert.NoError(t, err)
	assert.NotEmpty(t, entries)
}

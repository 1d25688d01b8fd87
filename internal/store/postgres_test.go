package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupPostgres(t *testing.T) *Postgres {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres container test in short mode")
	}

	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:15-alpine",
		postgres.WithDatabase("screener"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "failed to start postgres container")
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pg, err := NewPostgres(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pg.Close)

	require.NoError(t, pg.EnsureSchema(ctx))
	// applying twice must not fail
	require.NoError(t, pg.EnsureSchema(ctx))

	return pg
}

func TestPostgresUpsertGet(t *testing.T) {
	pg := setupPostgres(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)
	expires := now.Add(time.Minute)

	require.NoError(t, pg.Upsert(ctx, BasicTokens, Entry{
		Key:       "dexscreener_etag",
		Payload:   []byte(`"W/\"abc\""`),
		CreatedAt: now,
		ExpiresAt: &expires,
	}))

	e, err := pg.Get(ctx, BasicTokens, "dexscreener_etag", now)
	require.NoError(t, err)
	assert.JSONEq(t, `"W/\"abc\""`, string(e.Payload))
	assert.True(t, e.CreatedAt.Equal(now))
	require.NotNil(t, e.ExpiresAt)
	assert.True(t, e.ExpiresAt.Equal(expires))

	_, err = pg.Get(ctx, BasicTokens, "dexscreener_etag", expires)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = pg.Get(ctx, EnrichedTokens, "dexscreener_etag", now)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgresUpsertSupersedes(t *testing.T) {
	pg := setupPostgres(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, pg.Upsert(ctx, EnrichedTokens, Entry{Key: "k", Payload: []byte(`{"v":1}`), CreatedAt: now}))
	require.NoError(t, pg.Upsert(ctx, EnrichedTokens, Entry{Key: "k", Payload: []byte(`{"v":2}`), CreatedAt: now}))

	e, err := pg.Get(ctx, EnrichedTokens, "k", now)
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":2}`, string(e.Payload))
	assert.Nil(t, e.ExpiresAt)
}

func TestPostgresDeleteExpired(t *testing.T) {
	pg := setupPostgres(t)
	ctx := context.Background()
	now := time.Now().UTC()
	past := now.Add(-time.Second)
	future := now.Add(time.Hour)

	require.NoError(t, pg.Upsert(ctx, BasicTokens, Entry{Key: "old", Payload: []byte(`1`), CreatedAt: now, ExpiresAt: &past}))
	require.NoError(t, pg.Upsert(ctx, BasicTokens, Entry{Key: "new", Payload: []byte(`1`), CreatedAt: now, ExpiresAt: &future}))
	require.NoError(t, pg.Upsert(ctx, BasicTokens, Entry{Key: "forever", Payload: []byte(`1`), CreatedAt: now}))

	n, err := pg.DeleteExpired(ctx, BasicTokens, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = pg.DeleteExpired(ctx, BasicTokens, now)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	_, err = pg.Get(ctx, BasicTokens, "forever", now)
	assert.NoError(t, err)
}

func TestPostgresRejectsUnknownTable(t *testing.T) {
	_, err := tableIdent(Table("pg_catalog.pg_user"))
	assert.ErrorIs(t, err, ErrInvalidTable)

	ident, err := tableIdent(BasicTokens)
	require.NoError(t, err)
	assert.Equal(t, `"basic_tokens"`, ident)
}

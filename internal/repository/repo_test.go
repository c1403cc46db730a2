package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepo(t *testing.T) *Repo {
	t.Helper()
	db, err := OpenDB(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewRepo(db)
}

func TestOpenDBTwiceIsNoChange(t *testing.T) {
	dir := t.TempDir()
	db, err := OpenDB(dir)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = OpenDB(dir)
	require.NoError(t, err)
	require.NoError(t, db.Close())
}

func TestSettingsDefaultsAndUpdate(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	_, err := r.GetSettings(ctx, "g1")
	assert.ErrorIs(t, err, ErrNotFound)

	s, err := r.UpsertSettings(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, Settings{
		GuildID:               "g1",
		PlaylistLimit:         50,
		SecondsWaitAfterEmpty: 300,
		LeaveIfNoListeners:    true,
		AutoAnnounceNext:      true,
	}, *s)
	assert.Equal(t, 5*time.Minute, s.WaitAfterEmpty())

	s.PlaylistLimit = 7
	s.AutoAnnounceNext = false
	require.NoError(t, r.UpdateSettings(ctx, s))

	// Upserting again keeps the stored values.
	got, err := r.UpsertSettings(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, 7, got.PlaylistLimit)
	assert.False(t, got.AutoAnnounceNext)
	assert.True(t, got.LeaveIfNoListeners)
}

func TestUpdateMissingGuild(t *testing.T) {
	r := newTestRepo(t)
	err := r.UpdateSettings(context.Background(), &Settings{GuildID: "nope"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCatalogCacheTTL(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)
	r.now = func() time.Time { return now }

	require.NoError(t, r.CatalogPut(ctx, "spotify:album:x", `[{"title":"a"}]`))

	e, err := r.CatalogGet(ctx, "spotify:album:x", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, `[{"title":"a"}]`, e.Payload)
	assert.Equal(t, now, e.FetchedAt)

	now = now.Add(2 * time.Hour)
	_, err = r.CatalogGet(ctx, "spotify:album:x", time.Hour)
	assert.ErrorIs(t, err, ErrNotFound)

	n, err := r.CatalogPrune(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

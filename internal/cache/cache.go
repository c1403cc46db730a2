// Package cache keeps catalog listings in the database so repeated imports
// of the same album or playlist skip the catalog API.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/sonroyaalmerol/maobot/internal/repository"
	"github.com/sonroyaalmerol/maobot/internal/resolve"
	"github.com/sonroyaalmerol/maobot/internal/track"
)

// Store is the slice of repository.Repo the cache uses.
type Store interface {
	CatalogGet(ctx context.Context, key string, ttl time.Duration) (*repository.CatalogEntry, error)
	CatalogPut(ctx context.Context, key, payload string) error
}

// CatalogCache wraps a catalog backend. Only listings are cached; single
// track lookups go straight through.
type CatalogCache struct {
	next  resolve.CatalogBackend
	store Store
	ttl   time.Duration
}

// NewCatalogCache returns next unchanged when ttl is zero.
func NewCatalogCache(next resolve.CatalogBackend, store Store, ttl time.Duration) resolve.CatalogBackend {
	if ttl <= 0 || store == nil {
		return next
	}
	return &CatalogCache{next: next, store: store, ttl: ttl}
}

func (c *CatalogCache) PlaylistTracks(ctx context.Context, id string) ([]track.Meta, error) {
	return c.listing(ctx, "playlist:"+id, func() ([]track.Meta, error) { return c.next.PlaylistTracks(ctx, id) })
}

func (c *CatalogCache) AlbumTracks(ctx context.Context, id string) ([]track.Meta, error) {
	return c.listing(ctx, "album:"+id, func() ([]track.Meta, error) { return c.next.AlbumTracks(ctx, id) })
}

func (c *CatalogCache) ArtistTopTracks(ctx context.Context, id string) ([]track.Meta, error) {
	return c.listing(ctx, "artist:"+id, func() ([]track.Meta, error) { return c.next.ArtistTopTracks(ctx, id) })
}

func (c *CatalogCache) Track(ctx context.Context, id string) (track.Meta, error) {
	return c.next.Track(ctx, id)
}

func (c *CatalogCache) listing(ctx context.Context, key string, fetch func() ([]track.Meta, error)) ([]track.Meta, error) {
	log := zlog.With().Str("key", key).Logger()

	e, err := c.store.CatalogGet(ctx, key, c.ttl)
	switch {
	case err == nil:
		var out []track.Meta
		if err := json.Unmarshal([]byte(e.Payload), &out); err == nil {
			log.Debug().Int("tracks", len(out)).Msg("catalog cache hit")
			return out, nil
		}
		log.Warn().Msg("catalog cache entry unreadable, refetching")
	case !errors.Is(err, repository.ErrNotFound):
		log.Warn().Err(err).Msg("catalog cache read failed")
	}

	out, err := fetch()
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return out, nil
	}
	payload, err := json.Marshal(out)
	if err != nil {
		return out, nil
	}
	if err := c.store.CatalogPut(ctx, key, string(payload)); err != nil {
		log.Warn().Err(err).Msg("catalog cache write failed")
	}
	return out, nil
}

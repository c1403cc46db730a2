// Package resolve turns user input into playable tracks using a video
// backend (yt-dlp, YouTube search) and an optional music catalog (Spotify).
package resolve

import (
	"context"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/sonroyaalmerol/maobot/internal/track"
)

// SearchResult is a search candidate whose stream has not been resolved.
type SearchResult struct {
	Title        string
	CanonicalURL string
}

type PlaylistEntry struct {
	ID    string
	Title string
	URL   string
}

type VideoBackend interface {
	// SearchTop returns up to n candidates for a free-text query.
	SearchTop(ctx context.Context, query string, n int) ([]SearchResult, error)
	// Extract resolves a URL, or the best match for a free-text query.
	Extract(ctx context.Context, urlOrQuery string) (track.Track, error)
	PlaylistEntries(ctx context.Context, url string) ([]PlaylistEntry, error)
}

type CatalogBackend interface {
	PlaylistTracks(ctx context.Context, id string) ([]track.Meta, error)
	AlbumTracks(ctx context.Context, id string) ([]track.Meta, error)
	ArtistTopTracks(ctx context.Context, id string) ([]track.Meta, error)
	Track(ctx context.Context, id string) (track.Meta, error)
}

type Options struct {
	Workers       int
	Timeout       time.Duration
	Rate          float64
	Burst         int
	SearchResults int
}

// Expansion is a playlist flattened into inputs that Resolve accepts one by
// one: video URLs for video playlists, search queries for catalog listings.
type Expansion struct {
	Kind   Kind
	Inputs []string
}

type Resolver struct {
	video   VideoBackend
	catalog CatalogBackend
	pool    *pool
	topN    int
}

// New builds a resolver. catalog may be nil, in which case catalog links
// fail with ErrCatalogDisabled.
func New(video VideoBackend, catalog CatalogBackend, opts Options) *Resolver {
	var lim *rate.Limiter
	if opts.Rate > 0 {
		burst := opts.Burst
		if burst < 1 {
			burst = 1
		}
		lim = rate.NewLimiter(rate.Limit(opts.Rate), burst)
	}
	topN := opts.SearchResults
	if topN <= 0 {
		topN = 5
	}
	return &Resolver{
		video:   video,
		catalog: catalog,
		pool:    newPool(opts.Workers, lim, opts.Timeout),
		topN:    topN,
	}
}

func (r *Resolver) Close() { r.pool.close() }

func (r *Resolver) CatalogEnabled() bool { return r.catalog != nil }

// Resolve returns a single playable track for input. Playlist-like inputs
// are rejected; use Expand for those.
func (r *Resolver) Resolve(ctx context.Context, input string) (track.Track, error) {
	t := Classify(input)
	if t.Input == "" {
		return track.Track{}, resolutionError(input, ErrNoResults)
	}
	if t.Err != nil {
		return track.Track{}, resolutionError(input, t.Err)
	}

	switch t.Kind {
	case KindSearch, KindVideo:
		return r.extract(ctx, t.Input)
	case KindCatalogTrack:
		if r.catalog == nil {
			return track.Track{}, resolutionError(input, ErrCatalogDisabled)
		}
		meta, err := submit(ctx, r.pool, func(ctx context.Context) (track.Meta, error) {
			return r.catalog.Track(ctx, t.ID)
		})
		if err != nil {
			return track.Track{}, resolutionError(input, errors.Wrap(err, "catalog track"))
		}
		if meta.Query() == "" {
			return track.Track{}, resolutionError(input, ErrNoResults)
		}
		tr, err := r.extract(ctx, meta.Query())
		if err != nil {
			return track.Track{}, &ResolutionError{Input: input, Err: err}
		}
		return tr, nil
	default:
		return track.Track{}, resolutionError(input, errors.Wrapf(ErrUnsupported, "%s needs a playlist import", t.Kind))
	}
}

func (r *Resolver) extract(ctx context.Context, q string) (track.Track, error) {
	tr, err := submit(ctx, r.pool, func(ctx context.Context) (track.Track, error) {
		return r.video.Extract(ctx, q)
	})
	if err != nil {
		return track.Track{}, resolutionError(q, err)
	}
	if tr.StreamURL == "" {
		return track.Track{}, resolutionError(q, ErrNoResults)
	}
	if tr.ResolvedAt.IsZero() {
		tr.ResolvedAt = time.Now()
	}
	zlog.Debug().Str("input", q).Str("title", tr.Title).Msg("resolved track")
	return tr, nil
}

// Search returns up to n candidates without resolving their streams. n <= 0
// uses the configured default.
func (r *Resolver) Search(ctx context.Context, query string, n int) ([]SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, resolutionError(query, ErrNoResults)
	}
	if n <= 0 {
		n = r.topN
	}
	res, err := submit(ctx, r.pool, func(ctx context.Context) ([]SearchResult, error) {
		return r.video.SearchTop(ctx, query, n)
	})
	if err != nil {
		return nil, resolutionError(query, err)
	}
	if len(res) == 0 {
		return nil, resolutionError(query, ErrNoResults)
	}
	if len(res) > n {
		res = res[:n]
	}
	return res, nil
}

// Expand lists the entries of a playlist-like source. Only metadata is
// fetched here; each input still has to go through Resolve.
func (r *Resolver) Expand(ctx context.Context, source string) (Expansion, error) {
	t := Classify(source)
	if t.Err != nil {
		return Expansion{}, resolutionError(source, t.Err)
	}
	exp := Expansion{Kind: t.Kind}

	switch t.Kind {
	case KindVideoPlaylist:
		entries, err := submit(ctx, r.pool, func(ctx context.Context) ([]PlaylistEntry, error) {
			return r.video.PlaylistEntries(ctx, t.Input)
		})
		if err != nil {
			return exp, resolutionError(source, errors.Wrap(err, "playlist entries"))
		}
		for _, e := range entries {
			if e.URL != "" {
				exp.Inputs = append(exp.Inputs, e.URL)
			}
		}
	case KindCatalogPlaylist, KindCatalogAlbum, KindCatalogArtist:
		if r.catalog == nil {
			return exp, resolutionError(source, ErrCatalogDisabled)
		}
		metas, err := submit(ctx, r.pool, func(ctx context.Context) ([]track.Meta, error) {
			switch t.Kind {
			case KindCatalogPlaylist:
				return r.catalog.PlaylistTracks(ctx, t.ID)
			case KindCatalogAlbum:
				return r.catalog.AlbumTracks(ctx, t.ID)
			default:
				return r.catalog.ArtistTopTracks(ctx, t.ID)
			}
		})
		if err != nil {
			return exp, resolutionError(source, errors.Wrapf(err, "list %s", t.Kind))
		}
		for _, m := range metas {
			if q := m.Query(); q != "" {
				exp.Inputs = append(exp.Inputs, q)
			}
		}
	default:
		return exp, resolutionError(source, errors.Wrapf(ErrUnsupported, "%s is not a playlist", t.Kind))
	}

	if len(exp.Inputs) == 0 {
		return exp, resolutionError(source, ErrNoResults)
	}
	zlog.Debug().Str("source", source).Stringer("kind", t.Kind).Int("entries", len(exp.Inputs)).Msg("expanded playlist")
	return exp, nil
}

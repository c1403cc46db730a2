package stream

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/ppalone/ytsearch"
	"github.com/raitonoberu/ytmusic"
	zlog "github.com/rs/zerolog/log"

	"github.com/sonroyaalmerol/maobot/internal/resolve"
)

// SearchTop returns up to n candidates from the configured search source.
// When that source fails or finds nothing, yt-dlp's own search is tried.
func (b *Backend) SearchTop(ctx context.Context, query string, n int) ([]resolve.SearchResult, error) {
	var (
		hits []resolve.SearchResult
		err  error
	)
	switch b.opts.SearchSource {
	case "ytmusic":
		hits, err = searchYTMusicCtx(ctx, query, n)
	case "youtube":
		hits, err = searchYouTube(ctx, query, n)
	}
	if err == nil && len(hits) > 0 {
		return hits, nil
	}
	if err != nil {
		zlog.Debug().Err(err).Str("source", b.opts.SearchSource).Str("query", query).Msg("search failed, falling back to yt-dlp")
	}
	return b.searchYtdlp(ctx, query, n)
}

func searchYouTube(ctx context.Context, query string, n int) ([]resolve.SearchResult, error) {
	c := ytsearch.NewClient(nil)
	res, err := c.Search(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "youtube search")
	}
	out := make([]resolve.SearchResult, 0, n)
	for _, v := range res.Results {
		if v.VideoID == "" {
			continue
		}
		out = append(out, resolve.SearchResult{
			Title:        v.Title,
			CanonicalURL: "https://www.youtube.com/watch?v=" + v.VideoID,
		})
		if len(out) == n {
			break
		}
	}
	return out, nil
}

// searchYTMusicCtx runs the context-less YouTube Music client so that the
// caller's deadline still applies.
func searchYTMusicCtx(ctx context.Context, query string, n int) ([]resolve.SearchResult, error) {
	type result struct {
		hits []resolve.SearchResult
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		hits, err := searchYTMusic(query, n)
		ch <- result{hits, err}
	}()
	select {
	case r := <-ch:
		return r.hits, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func searchYTMusic(query string, n int) ([]resolve.SearchResult, error) {
	res, err := ytmusic.TrackSearch(query).Next()
	if err != nil {
		return nil, errors.Wrap(err, "youtube music search")
	}
	out := make([]resolve.SearchResult, 0, n)
	for _, v := range res.Tracks {
		if v.VideoID == "" {
			continue
		}
		title := v.Title
		if len(v.Artists) > 0 {
			title += " - " + v.Artists[0].Name
		}
		out = append(out, resolve.SearchResult{
			Title:        title,
			CanonicalURL: "https://music.youtube.com/watch?v=" + v.VideoID,
		})
		if len(out) == n {
			break
		}
	}
	return out, nil
}

func (b *Backend) searchYtdlp(ctx context.Context, query string, n int) ([]resolve.SearchResult, error) {
	b.ensureInstalled(ctx)

	target := searchTarget(query, n)
	res, err := b.command(target).
		FlatPlaylist().
		Print(playlistTemplate).
		Run(ctx, target)
	if err != nil {
		return nil, wrapRunError(err, target)
	}

	entries := parsePlaylist(res.Stdout)
	out := make([]resolve.SearchResult, 0, len(entries))
	for _, e := range entries {
		title := e.Title
		if strings.TrimSpace(title) == "" {
			title = e.URL
		}
		out = append(out, resolve.SearchResult{Title: title, CanonicalURL: e.URL})
	}
	return out, nil
}

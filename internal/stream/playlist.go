package stream

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/sonroyaalmerol/maobot/internal/resolve"
)

const playlistTemplate = "%(id)s\t%(title)s\t%(url)s"

// PlaylistEntries lists a playlist without resolving any streams.
func (b *Backend) PlaylistEntries(ctx context.Context, url string) ([]resolve.PlaylistEntry, error) {
	b.ensureInstalled(ctx)

	zlog.Debug().Str("url", url).Msg("fetching playlist")
	res, err := b.command(url).
		FlatPlaylist().
		Print(playlistTemplate).
		Run(ctx, url)
	if err != nil {
		return nil, wrapRunError(err, url)
	}

	entries := parsePlaylist(res.Stdout)
	if len(entries) == 0 {
		return nil, errors.Wrapf(resolve.ErrNoResults, "empty playlist %s", url)
	}
	zlog.Debug().Str("url", url).Int("entries", len(entries)).Msg("playlist parsed")
	return entries, nil
}

func parsePlaylist(stdout string) []resolve.PlaylistEntry {
	var out []resolve.PlaylistEntry
	for _, line := range strings.Split(strings.TrimSpace(stdout), "\n") {
		ps := strings.Split(strings.TrimRight(line, "\r"), "\t")
		if len(ps) < 3 {
			continue
		}
		e := resolve.PlaylistEntry{ID: na(ps[0]), Title: na(ps[1]), URL: na(ps[2])}
		if e.URL == "" && e.ID != "" {
			e.URL = "https://www.youtube.com/watch?v=" + e.ID
		}
		if e.URL == "" {
			continue
		}
		out = append(out, e)
	}
	return out
}

// na blanks the placeholder yt-dlp prints for missing fields.
func na(s string) string {
	if s == "NA" {
		return ""
	}
	return s
}

// Package autocomplete builds /play choices from YouTube query suggestions
// and, when configured, Spotify albums and tracks.
package autocomplete

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/sonroyaalmerol/maobot/internal/spotify"
	"github.com/sonroyaalmerol/maobot/internal/utils"
)

const (
	suggestEndpoint = "https://suggestqueries.google.com/complete/search"
	// Discord rejects longer choice names.
	maxChoiceName = 100
)

type SpotifySearcher interface {
	SearchAlbumsAndTracks(ctx context.Context, query string, limit int) ([]spotify.Suggestion, error)
}

type Suggester struct {
	http     *http.Client
	endpoint string
	spotify  SpotifySearcher
}

// New returns a Suggester; sp may be nil.
func New(sp SpotifySearcher) *Suggester {
	return &Suggester{
		http:     &http.Client{Timeout: 2 * time.Second},
		endpoint: suggestEndpoint,
		spotify:  sp,
	}
}

func (s *Suggester) YouTube(ctx context.Context, query string) ([]string, error) {
	u, err := url.Parse(s.endpoint)
	if err != nil {
		return nil, errors.Wrap(err, "suggest endpoint")
	}
	q := u.Query()
	q.Set("client", "firefox")
	q.Set("ds", "yt")
	q.Set("q", query)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "build suggest request")
	}
	req.Header.Set("User-Agent", utils.RandomUserAgent())

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "youtube suggest")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Newf("youtube suggest: status %d", resp.StatusCode)
	}

	// Response shape: ["query", ["s1", "s2", ...]]
	var parsed []any
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, errors.Wrap(err, "decode youtube suggest")
	}
	if len(parsed) < 2 {
		return nil, nil
	}
	arr, ok := parsed[1].([]any)
	if !ok {
		return nil, nil
	}
	out := make([]string, 0, len(arr))
	for _, v := range arr {
		if str, ok := v.(string); ok && str != "" {
			out = append(out, str)
		}
	}
	return out, nil
}

// Choices mixes YouTube suggestions with up to limit/2 Spotify results.
// Lookup failures only shrink the list.
func (s *Suggester) Choices(ctx context.Context, query string, limit int) []*discordgo.ApplicationCommandOptionChoice {
	if limit <= 0 {
		limit = 10
	}
	if query == "" {
		return nil
	}

	yt, err := s.YouTube(ctx, query)
	if err != nil {
		zlog.Debug().Err(err).Str("query", query).Msg("youtube suggestions failed")
	}

	var sp []spotify.Suggestion
	if s.spotify != nil {
		sp, err = s.spotify.SearchAlbumsAndTracks(ctx, query, limit/2)
		if err != nil {
			zlog.Debug().Err(err).Str("query", query).Msg("spotify suggestions failed")
			sp = nil
		}
	}

	keep := min(len(yt), limit-min(len(sp), limit))
	out := make([]*discordgo.ApplicationCommandOptionChoice, 0, limit)
	for _, v := range yt[:keep] {
		out = append(out, choice("YouTube: "+v, v))
	}
	for _, v := range sp {
		if len(out) == limit {
			break
		}
		icon := "🎵"
		if v.Album {
			icon = "💿"
		}
		name := "Spotify: " + icon + " " + v.Name
		if v.Artist != "" {
			name += " - " + v.Artist
		}
		out = append(out, choice(name, v.Value))
	}
	return out
}

func choice(name, value string) *discordgo.ApplicationCommandOptionChoice {
	return &discordgo.ApplicationCommandOptionChoice{
		Name:  utils.Truncate(name, maxChoiceName),
		Value: utils.Truncate(value, maxChoiceName),
	}
}

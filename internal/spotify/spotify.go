// Package spotify lists catalog tracks so they can be matched against the
// video backend.
package spotify

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/sonroyaalmerol/maobot/internal/track"
)

// maxTracks bounds how many pages of a huge playlist are fetched.
const maxTracks = 500

type Client struct {
	raw    *spotify.Client
	market string
}

func NewClientCredentials(ctx context.Context, clientID, clientSecret, market string) *Client {
	cfg := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     spotifyauth.TokenURL,
	}
	httpClient := cfg.Client(ctx)
	if market == "" {
		market = "US"
	}
	return &Client{raw: spotify.New(httpClient, spotify.WithRetry(true)), market: market}
}

func meta(name string, artists []spotify.SimpleArtist) track.Meta {
	m := track.Meta{Title: name}
	if len(artists) > 0 {
		m.Artist = artists[0].Name
	}
	return m
}

func (c *Client) AlbumTracks(ctx context.Context, id string) ([]track.Meta, error) {
	page, err := c.raw.GetAlbumTracks(ctx, spotify.ID(id))
	if err != nil {
		return nil, errors.Wrapf(err, "spotify album %s", id)
	}
	out := make([]track.Meta, 0, page.Total)
	for {
		for _, t := range page.Tracks {
			out = append(out, meta(t.Name, t.Artists))
		}
		if page.Next == "" || len(out) >= maxTracks {
			break
		}
		if err := c.raw.NextPage(ctx, page); err != nil {
			break
		}
	}
	return out, nil
}

func (c *Client) PlaylistTracks(ctx context.Context, id string) ([]track.Meta, error) {
	page, err := c.raw.GetPlaylistItems(ctx, spotify.ID(id))
	if err != nil {
		return nil, errors.Wrapf(err, "spotify playlist %s", id)
	}
	out := make([]track.Meta, 0, page.Total)
	for {
		for _, it := range page.Items {
			// Episodes and local files have no track.
			if t := it.Track.Track; t != nil {
				out = append(out, meta(t.Name, t.Artists))
			}
		}
		if page.Next == "" || len(out) >= maxTracks {
			break
		}
		if err := c.raw.NextPage(ctx, page); err != nil {
			break
		}
	}
	return out, nil
}

func (c *Client) ArtistTopTracks(ctx context.Context, id string) ([]track.Meta, error) {
	full, err := c.raw.GetArtistsTopTracks(ctx, spotify.ID(id), c.market)
	if err != nil {
		return nil, errors.Wrapf(err, "spotify artist %s", id)
	}
	out := make([]track.Meta, 0, len(full))
	for _, t := range full {
		out = append(out, meta(t.Name, t.Artists))
	}
	return out, nil
}

func (c *Client) Track(ctx context.Context, id string) (track.Meta, error) {
	t, err := c.raw.GetTrack(ctx, spotify.ID(id))
	if err != nil {
		return track.Meta{}, errors.Wrapf(err, "spotify track %s", id)
	}
	return meta(t.Name, t.Artists), nil
}

// Suggestion is an autocomplete entry whose Value is a spotify: URI.
type Suggestion struct {
	Name   string
	Artist string
	Value  string
	Album  bool
}

func (c *Client) SearchAlbumsAndTracks(ctx context.Context, query string, limit int) ([]Suggestion, error) {
	if limit <= 0 {
		limit = 10
	}
	res, err := c.raw.Search(ctx, query, spotify.SearchTypeAlbum|spotify.SearchTypeTrack, spotify.Limit(limit))
	if err != nil {
		return nil, errors.Wrap(err, "spotify search")
	}

	var out []Suggestion
	if res.Albums != nil {
		for _, a := range res.Albums.Albums {
			m := meta(a.Name, a.Artists)
			out = append(out, Suggestion{Name: m.Title, Artist: m.Artist, Value: "spotify:album:" + a.ID.String(), Album: true})
		}
	}
	if res.Tracks != nil {
		for _, t := range res.Tracks.Tracks {
			m := meta(t.Name, t.Artists)
			out = append(out, Suggestion{Name: m.Title, Artist: m.Artist, Value: "spotify:track:" + t.ID.String()})
		}
	}
	return out, nil
}

package autocomplete

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sonroyaalmerol/maobot/internal/spotify"
)

func suggestServer(t *testing.T, body string) *Suggester {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "yt", r.URL.Query().Get("ds"))
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	s := New(nil)
	s.endpoint = srv.URL
	return s
}

type fakeSpotify struct {
	out []spotify.Suggestion
	err error
}

func (f fakeSpotify) SearchAlbumsAndTracks(context.Context, string, int) ([]spotify.Suggestion, error) {
	return f.out, f.err
}

func TestYouTubeSuggestions(t *testing.T) {
	s := suggestServer(t, `["lofi",["lofi hip hop","lofi girl",""]]`)
	got, err := s.YouTube(context.Background(), "lofi")
	require.NoError(t, err)
	assert.Equal(t, []string{"lofi hip hop", "lofi girl"}, got)
}

func TestChoicesMixesSources(t *testing.T) {
	s := suggestServer(t, `["q",["a","b","c","d"]]`)
	s.spotify = fakeSpotify{out: []spotify.Suggestion{
		{Name: "Album", Artist: "X", Value: "spotify:album:1", Album: true},
		{Name: "Song", Value: "spotify:track:2"},
	}}

	got := s.Choices(context.Background(), "q", 4)
	require.Len(t, got, 4)
	assert.Equal(t, "YouTube: a", got[0].Name)
	assert.Equal(t, "YouTube: b", got[1].Name)
	assert.Equal(t, "Spotify: 💿 Album - X", got[2].Name)
	assert.Equal(t, "spotify:track:2", got[3].Value)
}

func TestChoicesSurvivesFailures(t *testing.T) {
	s := suggestServer(t, `not json`)
	s.spotify = fakeSpotify{err: errors.New("rate limited")}
	assert.Empty(t, s.Choices(context.Background(), "q", 10))
	assert.Nil(t, s.Choices(context.Background(), "", 10))
}

func TestChoiceNamesAreTruncated(t *testing.T) {
	long := strings.Repeat("x", 150)
	s := suggestServer(t, `["q",["`+long+`"]]`)
	got := s.Choices(context.Background(), "q", 5)
	require.Len(t, got, 1)
	assert.Len(t, []rune(got[0].Name), maxChoiceName)
}

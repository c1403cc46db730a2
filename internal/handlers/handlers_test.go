package handlers

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sonroyaalmerol/maobot/internal/player"
	"github.com/sonroyaalmerol/maobot/internal/repository"
	"github.com/sonroyaalmerol/maobot/internal/resolve"
	"github.com/sonroyaalmerol/maobot/internal/track"
)

func newStore(t *testing.T) *SettingsStore {
	t.Helper()
	db, err := repository.OpenDB(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewSettingsStore(repository.NewRepo(db), player.Settings{
		PlaylistLimit:  25,
		IdleDisconnect: 90 * time.Second,
		AnnounceNext:   true,
	})
}

func TestSettingsSeededFromDefaults(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()

	got := st.Settings(ctx, "g1")
	assert.Equal(t, player.Settings{PlaylistLimit: 25, IdleDisconnect: 90 * time.Second, AnnounceNext: true}, got)

	row, err := st.Update(ctx, "g1", func(s *repository.Settings) {
		s.PlaylistLimit = 3
		s.SecondsWaitAfterEmpty = 0
	})
	require.NoError(t, err)
	assert.Equal(t, 3, row.PlaylistLimit)

	got = st.Settings(ctx, "g1")
	assert.Equal(t, 3, got.PlaylistLimit)
	assert.Zero(t, got.IdleDisconnect)
	assert.True(t, st.LeaveIfNoListeners(ctx, "g1"))
}

type brokenRepo struct{}

func (brokenRepo) UpsertSettings(context.Context, string) (*repository.Settings, error) {
	return nil, errors.New("disk full")
}

func (brokenRepo) GetSettings(context.Context, string) (*repository.Settings, error) {
	return nil, errors.New("disk full")
}

func (brokenRepo) UpdateSettings(context.Context, *repository.Settings) error {
	return errors.New("disk full")
}

func TestSettingsFallBackOnError(t *testing.T) {
	def := player.Settings{PlaylistLimit: 9}
	st := NewSettingsStore(brokenRepo{}, def)
	assert.Equal(t, def, st.Settings(context.Background(), "g"))
	assert.False(t, st.LeaveIfNoListeners(context.Background(), "g"))
}

func TestDescribeSettings(t *testing.T) {
	msg := describeSettings(&repository.Settings{PlaylistLimit: 5, SecondsWaitAfterEmpty: 90})
	assert.Contains(t, msg, "Playlist Limit: 5")
	assert.Contains(t, msg, "1:30")

	msg = describeSettings(&repository.Settings{})
	assert.Contains(t, msg, "never leave")
}

func TestPendingSearchTake(t *testing.T) {
	ps := newPendingSearches(time.Minute, nil)
	token := ps.put(&pendingSearch{userID: "u1", results: []resolve.SearchResult{{Title: "a"}}})

	_, ok := ps.take(token, "someone else")
	assert.False(t, ok)

	got, ok := ps.take(token, "u1")
	require.True(t, ok)
	assert.Equal(t, "a", got.results[0].Title)

	_, ok = ps.take(token, "u1")
	assert.False(t, ok, "a selection can only be used once")
}

func TestPendingSearchExpires(t *testing.T) {
	var expired atomic.Int32
	ps := newPendingSearches(20*time.Millisecond, func(string, *pendingSearch) { expired.Add(1) })
	token := ps.put(&pendingSearch{userID: "u1"})

	assert.Eventually(t, func() bool { return expired.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.Zero(t, ps.len())
	_, ok := ps.take(token, "u1")
	assert.False(t, ok)
}

func TestPendingSearchTakenDoesNotExpire(t *testing.T) {
	var expired atomic.Int32
	ps := newPendingSearches(20*time.Millisecond, func(string, *pendingSearch) { expired.Add(1) })
	token := ps.put(&pendingSearch{userID: "u1"})
	_, ok := ps.take(token, "u1")
	require.True(t, ok)

	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, expired.Load())
}

func TestPickID(t *testing.T) {
	token, idx, ok := parsePickID(pickID("abc-def", 3))
	require.True(t, ok)
	assert.Equal(t, "abc-def", token)
	assert.Equal(t, 3, idx)

	for _, bad := range []string{"", "pick:", "pick:abc", "pick::1", "pick:abc:x", "pick:abc:-1", "other:abc:1"} {
		_, _, ok := parsePickID(bad)
		assert.False(t, ok, bad)
	}
}

func TestPickButtons(t *testing.T) {
	rows := pickButtons("tok", 7)
	require.Len(t, rows, 1)
	row := rows[0].(discordgo.ActionsRow)
	require.Len(t, row.Components, 5)
	assert.Equal(t, "pick:tok:0", row.Components[0].(discordgo.Button).CustomID)
	assert.Equal(t, "5", row.Components[4].(discordgo.Button).Label)
}

func TestReplies(t *testing.T) {
	tr := track.Track{Title: "Song_1"}
	assert.Equal(t, `Mao is boppin' to: Song\_1`, playReply(tr, player.EnqueueResult{Started: true}))
	assert.Equal(t, `Added to queue: Song\_1 (position 2)`, playReply(tr, player.EnqueueResult{Position: 2}))

	assert.Equal(t, "Added 10 songs from playlist to the queue.", importReply(player.ImportSummary{Added: 10, Total: 12}, nil))
	assert.Equal(t, "Playlist import stopped after 4 songs.",
		importReply(player.ImportSummary{Added: 4}, errors.Wrap(context.Canceled, "import abandoned")))
	assert.Contains(t, importReply(player.ImportSummary{}, errors.New("boom")), "Error processing playlist")
}

func TestUserMessage(t *testing.T) {
	wrapped := &resolve.ResolutionError{Input: "x", Err: resolve.ErrNoResults}
	assert.Equal(t, "no results found", userMessage(wrapped))
	assert.Equal(t, "the queue was cleared before it could be added", userMessage(player.ErrDiscarded))
	assert.Equal(t, "timed out", userMessage(errors.Wrap(context.DeadlineExceeded, "resolve")))
	assert.Equal(t, "403 forbidden", userMessage(errors.Wrap(errors.New("403 forbidden"), "extract")))
}

func TestSearchMessage(t *testing.T) {
	msg := searchMessage([]resolve.SearchResult{{Title: "One"}, {Title: "Two*"}})
	assert.Contains(t, msg, "1. One\n")
	assert.Contains(t, msg, `2. Two\*`)
}

func TestVoiceHelpers(t *testing.T) {
	states := []*discordgo.VoiceState{
		{UserID: "bot", ChannelID: "c1"},
		{UserID: "u1", ChannelID: "c1"},
		{UserID: "u2", ChannelID: "c2"},
		{UserID: "u3", ChannelID: ""},
	}
	ch, ok := voiceChannelOf(states, "u2")
	assert.True(t, ok)
	assert.Equal(t, "c2", ch)
	_, ok = voiceChannelOf(states, "u3")
	assert.False(t, ok)

	isBot := func(id string) bool { return id == "bot" }
	assert.Equal(t, 1, countListeners(states, "c1", isBot))
	assert.Equal(t, 0, countListeners(states, "c3", isBot))
}

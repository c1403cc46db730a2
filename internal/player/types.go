package player

import (
	"context"
	"fmt"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/sonroyaalmerol/maobot/internal/resolve"
	"github.com/sonroyaalmerol/maobot/internal/track"
)

type State int

const (
	StateIdle State = iota
	StatePlaying
	StatePaused
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	default:
		return "unknown"
	}
}

var (
	ErrNotConnected = errors.New("not connected to a voice channel")
	ErrClosed       = errors.New("player closed")
	// ErrDiscarded is returned when the queue was cleared while a track was
	// still being resolved.
	ErrDiscarded = errors.New("queue was cleared while resolving")
)

// SinkStartError means the voice sink refused a stream. The track is skipped.
type SinkStartError struct {
	Track track.Track
	Err   error
}

func (e *SinkStartError) Error() string {
	return fmt.Sprintf("start %q: %v", e.Track.Title, e.Err)
}

func (e *SinkStartError) Unwrap() error { return e.Err }

// Voice is a guild's voice connection and the audio sink bound to it. One
// stream plays at a time; onDone fires exactly once per started stream,
// whether it ended naturally, failed, or was stopped.
type Voice interface {
	Start(ctx context.Context, streamURL string, onDone func(error)) error
	Pause() bool
	Resume() bool
	Stop()
	Active() bool
	Paused() bool
	ChannelID() string
	Disconnect() error
}

type Connector interface {
	Connect(ctx context.Context, guildID, channelID string) (Voice, error)
}

// Notifier delivers text to whichever channel the guild last talked to us in.
type Notifier interface {
	Notify(text string)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(text string)

func (f NotifierFunc) Notify(text string) { f(text) }

// Resolver is the part of resolve.Resolver the player needs.
type Resolver interface {
	Resolve(ctx context.Context, input string) (track.Track, error)
	Expand(ctx context.Context, source string) (resolve.Expansion, error)
}

// Settings are per-guild knobs, backed by the settings table.
type Settings struct {
	PlaylistLimit  int
	IdleDisconnect time.Duration
	AnnounceNext   bool
}

type SettingsSource interface {
	Settings(ctx context.Context, guildID string) Settings
}

// Entry is one line of the queue display.
type Entry struct {
	Title        string
	CanonicalURL string
	Current      bool
}

// EnqueueResult tells the caller whether the track started right away or
// where it landed in the queue (1-based).
type EnqueueResult struct {
	Started  bool
	Position int
}

type ImportSummary struct {
	Added int
	Total int
}

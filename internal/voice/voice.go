// Package voice binds a Discord voice connection to the Opus transcoder and
// exposes it as the player's audio sink.
package voice

import (
	"context"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/sonroyaalmerol/maobot/internal/player"
	"github.com/sonroyaalmerol/maobot/internal/stream"
)

const (
	readyTimeout = 5 * time.Second
	stopTimeout  = 2 * time.Second
)

// source is a running transcode; *stream.Transcoder in production.
type source interface {
	Run(ctx context.Context, onPacket stream.OpusPacketHandler) error
	Close()
}

type openFunc func(streamURL string, bitrate int) (source, error)

func openTranscoder(streamURL string, bitrate int) (source, error) {
	return stream.Open(streamURL, bitrate)
}

type Connector struct {
	s       *discordgo.Session
	bitrate int
}

func NewConnector(s *discordgo.Session, bitrate int) *Connector {
	return &Connector{s: s, bitrate: bitrate}
}

// Connect joins channelID deafened and waits until the connection can send.
func (c *Connector) Connect(ctx context.Context, guildID, channelID string) (player.Voice, error) {
	vc, err := c.s.ChannelVoiceJoin(guildID, channelID, false, true)
	if err != nil {
		return nil, errors.Wrap(err, "voice join")
	}
	if err := waitReady(ctx, vc); err != nil {
		safeDisconnect(guildID, vc)
		return nil, err
	}
	if vc.OpusSend == nil {
		vc.OpusSend = make(chan []byte, 2)
	}

	conn := newConnection(guildID, channelID, c.bitrate, vc.OpusSend, openTranscoder)
	conn.speaking = func(on bool) { _ = vc.Speaking(on) }
	conn.disconnect = func() error {
		safeDisconnect(guildID, vc)
		return nil
	}
	return conn, nil
}

func waitReady(ctx context.Context, vc *discordgo.VoiceConnection) error {
	deadline := time.Now().Add(readyTimeout)
	for {
		vc.RLock()
		ready := vc.Ready
		vc.RUnlock()
		if ready {
			return nil
		}
		if time.Now().After(deadline) {
			return errors.New("voice connection not ready")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
}

// safeDisconnect leaves the channel. discordgo can panic on half-open
// connections, so that is recovered and logged.
func safeDisconnect(guildID string, vc *discordgo.VoiceConnection) {
	if vc == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			zlog.Error().Interface("panic", r).Str("guildID", guildID).Msg("voice disconnect panic recovered")
		}
	}()
	_ = vc.Speaking(false)
	if err := vc.Disconnect(); err != nil {
		zlog.Warn().Err(err).Str("guildID", guildID).Msg("voice disconnect")
	}
}

// Connection is one joined voice channel. It plays at most one stream.
type Connection struct {
	guildID   string
	channelID string
	bitrate   int
	send      chan<- []byte
	open      openFunc

	speaking   func(bool)
	disconnect func() error

	mu  sync.Mutex
	cur *playback
}

type playback struct {
	cancel context.CancelFunc
	done   chan struct{}
	// paused is non-nil while paused and closed on resume.
	paused chan struct{}
}

func newConnection(guildID, channelID string, bitrate int, send chan<- []byte, open openFunc) *Connection {
	return &Connection{
		guildID:    guildID,
		channelID:  channelID,
		bitrate:    bitrate,
		send:       send,
		open:       open,
		speaking:   func(bool) {},
		disconnect: func() error { return nil },
	}
}

func (c *Connection) ChannelID() string { return c.channelID }

// Start opens streamURL and plays it in the background. An error means
// nothing was started and onDone will not be called.
func (c *Connection) Start(ctx context.Context, streamURL string, onDone func(error)) error {
	src, err := c.open(streamURL, c.bitrate)
	if err != nil {
		return errors.Wrap(err, "open stream")
	}

	c.Stop()

	pctx, cancel := context.WithCancel(ctx)
	pb := &playback{cancel: cancel, done: make(chan struct{})}

	c.mu.Lock()
	c.cur = pb
	c.mu.Unlock()

	go c.play(pctx, pb, src, onDone)
	return nil
}

func (c *Connection) play(ctx context.Context, pb *playback, src source, onDone func(error)) {
	defer src.Close()

	c.speaking(true)
	err := src.Run(ctx, func(pkt []byte) error {
		if err := c.waitUnpaused(ctx, pb); err != nil {
			return err
		}
		select {
		case c.send <- pkt:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	c.speaking(false)

	c.mu.Lock()
	if c.cur == pb {
		c.cur = nil
	}
	c.mu.Unlock()
	pb.cancel()
	close(pb.done)

	// Being stopped is a normal end.
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	if err != nil {
		zlog.Warn().Err(err).Str("guildID", c.guildID).Msg("stream ended with error")
	}
	onDone(err)
}

func (c *Connection) waitUnpaused(ctx context.Context, pb *playback) error {
	c.mu.Lock()
	gate := pb.paused
	c.mu.Unlock()
	if gate == nil {
		return nil
	}
	c.speaking(false)
	select {
	case <-gate:
		c.speaking(true)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Connection) Pause() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cur == nil || c.cur.paused != nil {
		return false
	}
	c.cur.paused = make(chan struct{})
	return true
}

func (c *Connection) Resume() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cur == nil || c.cur.paused == nil {
		return false
	}
	close(c.cur.paused)
	c.cur.paused = nil
	return true
}

// Stop ends the current stream and waits briefly for it to wind down.
func (c *Connection) Stop() {
	c.mu.Lock()
	pb := c.cur
	c.cur = nil
	c.mu.Unlock()
	if pb == nil {
		return
	}
	pb.cancel()
	select {
	case <-pb.done:
	case <-time.After(stopTimeout):
		zlog.Warn().Str("guildID", c.guildID).Msg("stream did not stop in time")
	}
}

func (c *Connection) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cur != nil
}

func (c *Connection) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cur != nil && c.cur.paused != nil
}

func (c *Connection) Disconnect() error {
	c.Stop()
	return c.disconnect()
}

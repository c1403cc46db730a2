package player

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/sonroyaalmerol/maobot/internal/track"
)

type Options struct {
	// StreamTTL is how long a resolved stream URL is trusted before it is
	// re-resolved from the canonical URL.
	StreamTTL time.Duration
	// RefreshTimeout bounds that re-resolution.
	RefreshTimeout time.Duration
	// NoticeBuffer is how many notices may wait for a slow notifier before
	// new ones are dropped.
	NoticeBuffer int
	// Defaults apply when no SettingsSource is configured.
	Defaults Settings
}

// Player is one guild's playback state. All state changes run on a single
// goroutine; public methods hand it closures and wait, and callbacks from
// the voice sink or timers are posted without waiting.
type Player struct {
	guildID   string
	opts      Options
	resolver  Resolver
	connector Connector
	settings  SettingsSource

	queue *Queue

	ctx       context.Context
	cancel    context.CancelFunc
	ops       chan func()
	done      chan struct{}
	closeOnce sync.Once
	notices   chan notice

	// owned by the run goroutine
	state     State
	voice     Voice
	session   string
	notifier  Notifier
	idleTimer *time.Timer
	idleGen   uint64
	imports   map[string]context.CancelFunc

	// A dequeued track whose stream URL is being re-resolved. refreshGen
	// changes whenever the refresh is abandoned or finishes.
	refreshing    *track.Track
	refreshCancel context.CancelFunc
	refreshGen    uint64
}

type notice struct {
	n    Notifier
	text string
}

func NewPlayer(parent context.Context, guildID string, resolver Resolver, connector Connector, settings SettingsSource, opts Options) *Player {
	if opts.RefreshTimeout <= 0 {
		opts.RefreshTimeout = 30 * time.Second
	}
	if opts.NoticeBuffer <= 0 {
		opts.NoticeBuffer = 32
	}
	ctx, cancel := context.WithCancel(parent)
	p := &Player{
		guildID:   guildID,
		opts:      opts,
		resolver:  resolver,
		connector: connector,
		settings:  settings,
		queue:     NewQueue(),
		ctx:       ctx,
		cancel:    cancel,
		ops:       make(chan func()),
		done:      make(chan struct{}),
		notices:   make(chan notice, opts.NoticeBuffer),
		state:     StateIdle,
		imports:   make(map[string]context.CancelFunc),
	}
	go p.run()
	go p.deliver()
	return p
}

func (p *Player) GuildID() string { return p.guildID }

func (p *Player) run() {
	defer close(p.done)
	for {
		select {
		case fn := <-p.ops:
			fn()
		case <-p.ctx.Done():
			p.shutdown()
			return
		}
	}
}

// call runs fn on the player goroutine and waits for it to finish.
func (p *Player) call(fn func()) error {
	finished := make(chan struct{})
	select {
	case p.ops <- func() {
		defer close(finished)
		fn()
	}:
	case <-p.ctx.Done():
		return ErrClosed
	}
	<-finished
	return nil
}

// post queues fn without blocking the caller.
func (p *Player) post(fn func()) {
	go func() {
		select {
		case p.ops <- fn:
		case <-p.ctx.Done():
		}
	}()
}

// Close stops playback, leaves the voice channel and ends the goroutine.
func (p *Player) Close() {
	p.closeOnce.Do(p.cancel)
	<-p.done
}

func (p *Player) shutdown() {
	p.stopLocked()
	p.disconnectLocked()
}

// Settings returns the guild's current settings.
func (p *Player) Settings() Settings {
	if p.settings == nil {
		return p.opts.Defaults
	}
	return p.settings.Settings(p.ctx, p.guildID)
}

// SetNotifier records where asynchronous messages for this guild go.
func (p *Player) SetNotifier(n Notifier) {
	_ = p.call(func() { p.notifier = n })
}

// notify hands a message to the delivery goroutine. Notifiers talk to the
// network, so the player goroutine never waits on one.
func (p *Player) notify(format string, args ...any) {
	if p.notifier == nil {
		return
	}
	text := fmt.Sprintf(format, args...)
	select {
	case p.notices <- notice{n: p.notifier, text: text}:
	default:
		zlog.Warn().Str("guildID", p.guildID).Str("text", text).Msg("notifier backed up, dropping message")
	}
}

// deliver sends notices one at a time, in the order they were raised.
func (p *Player) deliver() {
	for {
		select {
		case nt := <-p.notices:
			nt.n.Notify(nt.text)
		case <-p.ctx.Done():
			return
		}
	}
}

// Join connects to channelID. Moving to another channel restarts the
// current track there from the beginning.
func (p *Player) Join(ctx context.Context, channelID string) error {
	var err error
	if cerr := p.call(func() { err = p.joinLocked(ctx, channelID) }); cerr != nil {
		return cerr
	}
	return err
}

func (p *Player) joinLocked(ctx context.Context, channelID string) error {
	if p.voice != nil && p.voice.ChannelID() == channelID {
		return nil
	}

	resume := false
	if p.voice != nil {
		if cur, ok := p.queue.Current(); ok {
			p.queue.pushFront(cur)
			resume = true
		} else if p.refreshing != nil {
			p.queue.pushFront(*p.refreshing)
			p.cancelRefreshLocked()
			resume = true
		}
		p.endSessionLocked()
		p.disconnectLocked()
	}

	v, err := p.connector.Connect(ctx, p.guildID, channelID)
	if err != nil {
		return errors.Wrapf(err, "join channel %s", channelID)
	}
	p.voice = v
	p.cancelIdleLocked()
	zlog.Info().Str("guildID", p.guildID).Str("channelID", channelID).Msg("joined voice channel")

	if resume || p.queue.Len() > 0 {
		p.advanceLocked()
	}
	return nil
}

// Leave stops playback, clears the queue and disconnects.
func (p *Player) Leave() error {
	var had bool
	if err := p.call(func() {
		had = p.voice != nil
		p.stopLocked()
		p.disconnectLocked()
	}); err != nil {
		return err
	}
	if !had {
		return ErrNotConnected
	}
	return nil
}

// Connected reports whether the guild has a voice connection and its channel.
func (p *Player) Connected() (string, bool) {
	var ch string
	var ok bool
	_ = p.call(func() {
		if p.voice != nil {
			ch, ok = p.voice.ChannelID(), true
		}
	})
	return ch, ok
}

// Play resolves query and enqueues it, starting playback when idle. The
// resolution happens on the caller's goroutine.
func (p *Player) Play(ctx context.Context, query string) (track.Track, EnqueueResult, error) {
	epoch := p.queue.Epoch()
	t, err := p.resolver.Resolve(ctx, query)
	if err != nil {
		return track.Track{}, EnqueueResult{}, err
	}
	res, ok, err := p.enqueue(epoch, t)
	if err != nil {
		return t, res, err
	}
	if !ok {
		return t, res, ErrDiscarded
	}
	return t, res, nil
}

// Enqueue adds an already resolved track, starting playback when idle.
func (p *Player) Enqueue(t track.Track) (EnqueueResult, error) {
	res, _, err := p.enqueue(p.queue.Epoch(), t)
	return res, err
}

func (p *Player) enqueue(epoch uint64, t track.Track) (EnqueueResult, bool, error) {
	var res EnqueueResult
	var ok bool
	err := p.call(func() {
		var pos int
		pos, ok = p.queue.EnqueueIf(epoch, t)
		if !ok {
			return
		}
		res.Position = pos
		if p.busyLocked() || p.voice == nil {
			return
		}
		p.advanceLocked()
		// t is last in line, so it was consumed only if everything was.
		consumed := pos - p.queue.Len()
		switch {
		case consumed < pos:
			res.Position = pos - consumed
		case p.busyLocked():
			res = EnqueueResult{Started: true}
		default:
			res.Position = 0
		}
	})
	return res, ok, err
}

// appendIf is used by imports: no autostart. It returns ErrDiscarded after
// a clear and ErrClosed once the player is gone.
func (p *Player) appendIf(epoch uint64, t track.Track) error {
	var ok bool
	if err := p.call(func() { _, ok = p.queue.EnqueueIf(epoch, t) }); err != nil {
		return err
	}
	if !ok {
		return ErrDiscarded
	}
	return nil
}

// StartIfIdle kicks off playback if nothing is playing and tracks are waiting.
func (p *Player) StartIfIdle() bool {
	var started bool
	_ = p.call(func() {
		if !p.busyLocked() && p.voice != nil && p.queue.Len() > 0 {
			p.advanceLocked()
			started = p.busyLocked()
		}
	})
	return started
}

func (p *Player) Pause() bool {
	var ok bool
	_ = p.call(func() {
		if p.state != StatePlaying || p.voice == nil || !p.voice.Pause() {
			return
		}
		p.state = StatePaused
		ok = true
	})
	return ok
}

func (p *Player) Resume() bool {
	var ok bool
	_ = p.call(func() {
		if p.state != StatePaused || p.voice == nil || !p.voice.Resume() {
			return
		}
		p.state = StatePlaying
		ok = true
	})
	return ok
}

// Skip ends the current track. The sink's completion callback advances the
// queue, same as a natural end. hasNext reports whether something is queued.
func (p *Player) Skip() (ok, hasNext bool) {
	_ = p.call(func() {
		if !p.busyLocked() || p.voice == nil {
			return
		}
		ok = true
		hasNext = p.queue.Len() > 0
		if p.refreshing != nil {
			// Nothing reached the sink yet, so no completion will advance.
			p.cancelRefreshLocked()
			p.advanceLocked()
			return
		}
		p.voice.Stop()
	})
	return ok, hasNext
}

// Stop ends playback, clears the queue and abandons running imports. It
// returns false when there was nothing to stop.
func (p *Player) Stop() bool {
	var active bool
	_ = p.call(func() {
		active = p.busyLocked() || p.queue.Len() > 0 || len(p.imports) > 0
		p.stopLocked()
		p.scheduleIdleLocked()
	})
	return active
}

// Clear empties the queue but leaves the current track playing.
func (p *Player) Clear() {
	_ = p.call(func() {
		cur, playing := p.queue.Current()
		p.queue.Clear()
		p.cancelImportsLocked()
		if playing {
			p.queue.setCurrent(&cur)
		}
		if p.refreshing != nil {
			p.cancelRefreshLocked()
			p.scheduleIdleLocked()
		}
	})
}

func (p *Player) Shuffle() bool {
	var ok bool
	_ = p.call(func() { ok = p.queue.Shuffle() })
	return ok
}

func (p *Player) Queue() []Entry {
	var out []Entry
	_ = p.call(func() { out = p.queue.PeekAll() })
	return out
}

func (p *Player) State() State {
	st := StateIdle
	_ = p.call(func() { st = p.state })
	return st
}

func (p *Player) Current() (track.Track, bool) {
	var t track.Track
	var ok bool
	_ = p.call(func() { t, ok = p.queue.Current() })
	return t, ok
}

// Importing reports whether a playlist import is still adding tracks.
func (p *Player) Importing() bool {
	var n int
	_ = p.call(func() { n = len(p.imports) })
	return n > 0
}

func (p *Player) busyLocked() bool {
	return p.state != StateIdle || p.refreshing != nil
}

// advanceLocked starts the next pending track. Tracks the sink refuses are
// reported and skipped. With nothing left the player goes idle. A track
// whose stream URL expired is handed to refreshLocked and the advance
// resumes once the new URL is posted back.
func (p *Player) advanceLocked() {
	p.cancelIdleLocked()
	for {
		if p.voice == nil {
			p.endSessionLocked()
			return
		}
		next, ok := p.queue.DequeueFront()
		if !ok {
			p.endSessionLocked()
			p.scheduleIdleLocked()
			return
		}
		if next.Stale(time.Now(), p.opts.StreamTTL) && next.CanonicalURL != "" {
			p.refreshLocked(next)
			return
		}
		if err := p.startLocked(next); err != nil {
			p.skipLocked(next, err)
			continue
		}
		return
	}
}

func (p *Player) skipLocked(t track.Track, err error) {
	zlog.Warn().Err(err).Str("guildID", p.guildID).Str("title", t.Title).Msg("failed to start track, skipping")
	p.notify("Error playing %s: %v", t.Title, errors.UnwrapAll(err))
}

// refreshLocked re-resolves t off the player goroutine. Stop, Clear, Skip
// and Leave cancel it through cancelRefreshLocked.
func (p *Player) refreshLocked(t track.Track) {
	p.cancelRefreshLocked()
	p.endSessionLocked()
	ctx, cancel := context.WithTimeout(p.ctx, p.opts.RefreshTimeout)
	p.refreshing = &t
	p.refreshCancel = cancel
	gen := p.refreshGen

	zlog.Debug().Str("guildID", p.guildID).Str("title", t.Title).Msg("refreshing expired stream url")
	go func() {
		fresh, err := p.resolver.Resolve(ctx, t.CanonicalURL)
		cancel()
		p.post(func() { p.refreshedLocked(gen, fresh, err) })
	}()
}

func (p *Player) refreshedLocked(gen uint64, fresh track.Track, err error) {
	if gen != p.refreshGen || p.refreshing == nil {
		zlog.Debug().Str("guildID", p.guildID).Msg("ignoring abandoned stream refresh")
		return
	}
	t := *p.refreshing
	p.cancelRefreshLocked()

	if err == nil {
		t.StreamURL, t.ResolvedAt = fresh.StreamURL, fresh.ResolvedAt
		err = p.startLocked(t)
	} else {
		err = &SinkStartError{Track: t, Err: err}
	}
	if err != nil {
		p.skipLocked(t, err)
		p.advanceLocked()
	}
}

func (p *Player) cancelRefreshLocked() {
	p.refreshGen++
	if p.refreshCancel != nil {
		p.refreshCancel()
	}
	p.refreshing = nil
	p.refreshCancel = nil
}

func (p *Player) startLocked(t track.Track) error {
	if p.voice == nil {
		return &SinkStartError{Track: t, Err: ErrNotConnected}
	}
	id := uuid.NewString()
	if err := p.voice.Start(p.ctx, t.StreamURL, p.completion(id)); err != nil {
		return &SinkStartError{Track: t, Err: err}
	}
	p.session = id
	p.state = StatePlaying
	p.queue.setCurrent(&t)

	zlog.Info().Str("guildID", p.guildID).Str("session", id).Str("title", t.Title).Msg("now playing")
	if p.Settings().AnnounceNext {
		p.notify("Now playing: %s", t.Title)
	}
	return nil
}

func (p *Player) completion(id string) func(error) {
	return func(err error) {
		p.post(func() { p.finishedLocked(id, err) })
	}
}

// finishedLocked handles the end of session id. Completions for anything
// but the live session are stale and ignored.
func (p *Player) finishedLocked(id string, err error) {
	if id != p.session || p.session == "" {
		zlog.Debug().Str("guildID", p.guildID).Str("session", id).Msg("ignoring stale completion")
		return
	}
	if err != nil {
		zlog.Warn().Err(err).Str("guildID", p.guildID).Str("session", id).Msg("playback ended with error")
	}
	p.session = ""
	p.queue.setCurrent(nil)
	p.state = StateIdle
	p.advanceLocked()
}

// endSessionLocked forgets the live session before touching the sink so its
// completion callback becomes a no-op.
func (p *Player) endSessionLocked() {
	p.session = ""
	p.state = StateIdle
	p.queue.setCurrent(nil)
	if p.voice != nil && p.voice.Active() {
		p.voice.Stop()
	}
}

func (p *Player) stopLocked() {
	p.cancelRefreshLocked()
	p.endSessionLocked()
	p.queue.Clear()
	p.cancelImportsLocked()
}

func (p *Player) disconnectLocked() {
	p.cancelIdleLocked()
	if p.voice == nil {
		return
	}
	if err := p.voice.Disconnect(); err != nil {
		zlog.Warn().Err(err).Str("guildID", p.guildID).Msg("voice disconnect failed")
	}
	p.voice = nil
}

func (p *Player) scheduleIdleLocked() {
	p.cancelIdleLocked()
	wait := p.Settings().IdleDisconnect
	if wait <= 0 || p.voice == nil {
		return
	}
	gen := p.idleGen
	p.idleTimer = time.AfterFunc(wait, func() {
		p.post(func() { p.idleExpiredLocked(gen) })
	})
}

func (p *Player) cancelIdleLocked() {
	p.idleGen++
	if p.idleTimer != nil {
		p.idleTimer.Stop()
		p.idleTimer = nil
	}
}

func (p *Player) idleExpiredLocked(gen uint64) {
	if gen != p.idleGen || p.busyLocked() || p.voice == nil || p.queue.Len() > 0 {
		return
	}
	zlog.Info().Str("guildID", p.guildID).Msg("leaving voice channel after inactivity")
	p.disconnectLocked()
	p.notify("Left the voice channel after inactivity.")
}

// beginImport registers a cancellable import. Stop, Clear and Leave cancel
// it; appends made with the returned epoch are dropped after a clear.
func (p *Player) beginImport(parent context.Context) (context.Context, uint64, func(), error) {
	var (
		ctx    context.Context
		epoch  uint64
		finish func()
	)
	err := p.call(func() {
		id := uuid.NewString()
		var cancel context.CancelFunc
		ctx, cancel = context.WithCancel(parent)
		p.imports[id] = cancel
		epoch = p.queue.Epoch()
		finish = func() {
			cancel()
			p.post(func() { delete(p.imports, id) })
		}
	})
	if err != nil {
		return nil, 0, nil, err
	}
	return ctx, epoch, finish, nil
}

func (p *Player) cancelImportsLocked() {
	for id, cancel := range p.imports {
		cancel()
		delete(p.imports, id)
	}
}

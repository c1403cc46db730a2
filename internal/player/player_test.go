package player

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sonroyaalmerol/maobot/internal/resolve"
	"github.com/sonroyaalmerol/maobot/internal/track"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

// fakeVoice behaves like a sink: Stop and natural ends both report through
// the onDone of the stream that was running, exactly once.
type fakeVoice struct {
	mu           sync.Mutex
	channel      string
	started      []string
	fail         map[string]error
	done         func(error)
	active       bool
	paused       bool
	disconnected bool
}

func newFakeVoice(channel string) *fakeVoice {
	return &fakeVoice{channel: channel, fail: map[string]error{}}
}

func (v *fakeVoice) Start(_ context.Context, url string, onDone func(error)) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.fail[url]; err != nil {
		return err
	}
	var once sync.Once
	v.started = append(v.started, url)
	v.done = func(err error) { once.Do(func() { onDone(err) }) }
	v.active, v.paused = true, false
	return nil
}

// end simulates the stream running out.
func (v *fakeVoice) end() {
	v.mu.Lock()
	done := v.done
	v.active, v.paused = false, false
	v.mu.Unlock()
	if done != nil {
		go done(nil)
	}
}

func (v *fakeVoice) lastDone() func(error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.done
}

func (v *fakeVoice) Pause() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.active || v.paused {
		return false
	}
	v.paused = true
	return true
}

func (v *fakeVoice) Resume() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.active || !v.paused {
		return false
	}
	v.paused = false
	return true
}

func (v *fakeVoice) Stop() {
	v.mu.Lock()
	done := v.done
	wasActive := v.active
	v.active, v.paused = false, false
	v.mu.Unlock()
	if wasActive && done != nil {
		go done(nil)
	}
}

func (v *fakeVoice) Active() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.active
}

func (v *fakeVoice) Paused() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.paused
}

func (v *fakeVoice) ChannelID() string { return v.channel }

func (v *fakeVoice) Disconnect() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.disconnected = true
	return nil
}

func (v *fakeVoice) startedURLs() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]string(nil), v.started...)
}

func (v *fakeVoice) isDisconnected() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.disconnected
}

type fakeConnector struct {
	mu     sync.Mutex
	voices map[string]*fakeVoice
	fail   map[string]error
}

func (c *fakeConnector) Connect(_ context.Context, _ string, channelID string) (Voice, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.fail[channelID]; err != nil {
		return nil, err
	}
	if c.voices == nil {
		c.voices = map[string]*fakeVoice{}
	}
	v := newFakeVoice(channelID)
	if prev, ok := c.voices[channelID]; ok {
		v.fail = prev.fail
	}
	c.voices[channelID] = v
	return v, nil
}

func (c *fakeConnector) voice(channelID string) *fakeVoice {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.voices[channelID]
}

// fakeResolver maps inputs to tracks named after them. Inputs listed in
// fail return a ResolutionError. If gate is set, Resolve blocks until it is
// closed or the context ends.
type fakeResolver struct {
	mu       sync.Mutex
	fail     map[string]bool
	expand   []string
	gate     chan struct{}
	calls    int
	inflight int
	peak     int
}

func (r *fakeResolver) Resolve(ctx context.Context, input string) (track.Track, error) {
	r.mu.Lock()
	r.calls++
	r.inflight++
	if r.inflight > r.peak {
		r.peak = r.inflight
	}
	gate := r.gate
	failing := r.fail[input]
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.inflight--
		r.mu.Unlock()
	}()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return track.Track{}, &resolve.ResolutionError{Input: input, Err: ctx.Err()}
		}
	}
	if failing {
		return track.Track{}, &resolve.ResolutionError{Input: input, Err: resolve.ErrNoResults}
	}
	return track.Track{StreamURL: "stream:" + input, Title: input, CanonicalURL: "https://youtube.com/watch?v=" + input}, nil
}

func (r *fakeResolver) Expand(_ context.Context, source string) (resolve.Expansion, error) {
	if len(r.expand) == 0 {
		return resolve.Expansion{}, &resolve.ResolutionError{Input: source, Err: resolve.ErrNoResults}
	}
	return resolve.Expansion{Kind: resolve.KindCatalogPlaylist, Inputs: r.expand}, nil
}

func (r *fakeResolver) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

type recorder struct {
	mu   sync.Mutex
	msgs []string
}

func (r *recorder) Notify(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, text)
}

func (r *recorder) with(prefix string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, m := range r.msgs {
		if strings.HasPrefix(m, prefix) {
			out = append(out, m)
		}
	}
	return out
}

type fixture struct {
	p    *Player
	res  *fakeResolver
	conn *fakeConnector
	note *recorder
}

func newFixture(t *testing.T, settings Settings) *fixture {
	t.Helper()
	f := &fixture{
		res:  &fakeResolver{fail: map[string]bool{}},
		conn: &fakeConnector{},
		note: &recorder{},
	}
	f.p = NewPlayer(context.Background(), "guild-1", f.res, f.conn, nil, Options{Defaults: settings})
	f.p.SetNotifier(f.note)
	t.Cleanup(f.p.Close)
	return f
}

func (f *fixture) join(t *testing.T) *fakeVoice {
	t.Helper()
	require.NoError(t, f.p.Join(context.Background(), "voice-1"))
	return f.conn.voice("voice-1")
}

func tr(name string) track.Track {
	return track.Track{StreamURL: "stream:" + name, Title: name, CanonicalURL: "https://youtube.com/watch?v=" + name}
}

func titles(entries []Entry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Title)
	}
	return out
}

func (f *fixture) currentTitle() string {
	cur, ok := f.p.Current()
	if !ok {
		return ""
	}
	return cur.Title
}

func TestAdvanceScenario(t *testing.T) {
	f := newFixture(t, Settings{})

	for _, name := range []string{"A", "B", "C"} {
		res, err := f.p.Enqueue(tr(name))
		require.NoError(t, err)
		assert.False(t, res.Started)
	}
	assert.Equal(t, StateIdle, f.p.State())

	v := f.join(t)
	assert.Equal(t, StatePlaying, f.p.State())
	assert.Equal(t, "A", f.currentTitle())
	assert.Equal(t, []string{"A", "B", "C"}, titles(f.p.Queue()))

	v.end()
	assert.Eventually(t, func() bool { return f.currentTitle() == "B" }, waitFor, tick)
	assert.Equal(t, []string{"B", "C"}, titles(f.p.Queue()))

	ok, hasNext := f.p.Skip()
	assert.True(t, ok)
	assert.True(t, hasNext)
	assert.Eventually(t, func() bool { return f.currentTitle() == "C" }, waitFor, tick)
	assert.Equal(t, []string{"C"}, titles(f.p.Queue()))

	v.end()
	assert.Eventually(t, func() bool { return f.p.State() == StateIdle }, waitFor, tick)
	_, playing := f.p.Current()
	assert.False(t, playing)
	assert.Empty(t, f.p.Queue())
	assert.Equal(t, []string{"stream:A", "stream:B", "stream:C"}, v.startedURLs())
}

func TestEnqueueWhileIdleStartsPlayback(t *testing.T) {
	f := newFixture(t, Settings{AnnounceNext: true})
	f.join(t)

	res, err := f.p.Enqueue(tr("A"))
	require.NoError(t, err)
	assert.True(t, res.Started)

	res, err = f.p.Enqueue(tr("B"))
	require.NoError(t, err)
	assert.False(t, res.Started)
	assert.Equal(t, 1, res.Position)

	assert.Eventually(t, func() bool { return len(f.note.with("Now playing")) == 1 }, waitFor, tick)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, []string{"Now playing: A"}, f.note.with("Now playing"))
}

func TestRacingCompletionsPopOnce(t *testing.T) {
	f := newFixture(t, Settings{})
	for _, name := range []string{"A", "B", "C"} {
		_, _ = f.p.Enqueue(tr(name))
	}
	v := f.join(t)
	require.Equal(t, "A", f.currentTitle())

	// The sink reports the session twice while a raw duplicate races both.
	id := f.sessionID()
	done := v.lastDone()
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			done(nil)
		}()
	}
	f.p.completion(id)(nil)
	wg.Wait()

	assert.Eventually(t, func() bool { return f.currentTitle() == "B" }, waitFor, tick)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, "B", f.currentTitle())
	assert.Equal(t, []string{"B", "C"}, titles(f.p.Queue()))
	assert.Equal(t, StatePlaying, f.p.State())
	assert.Equal(t, []string{"stream:A", "stream:B"}, v.startedURLs())
}

// sessionID reads the live session from the player goroutine.
func (f *fixture) sessionID() string {
	var id string
	_ = f.p.call(func() { id = f.p.session })
	return id
}

func TestDuplicateCompletionForSameSession(t *testing.T) {
	f := newFixture(t, Settings{})
	for _, name := range []string{"A", "B", "C"} {
		_, _ = f.p.Enqueue(tr(name))
	}
	v := f.join(t)
	id := f.sessionID()
	require.NotEmpty(t, id)

	cb := f.p.completion(id)
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cb(nil)
		}()
	}
	wg.Wait()

	assert.Eventually(t, func() bool { return f.currentTitle() == "B" }, waitFor, tick)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, []string{"B", "C"}, titles(f.p.Queue()))
	assert.Equal(t, []string{"stream:A", "stream:B"}, v.startedURLs())
}

func TestStaleCompletionAfterStop(t *testing.T) {
	f := newFixture(t, Settings{})
	for _, name := range []string{"A", "B"} {
		_, _ = f.p.Enqueue(tr(name))
	}
	v := f.join(t)
	stale := f.p.completion(f.sessionID())

	assert.True(t, f.p.Stop())
	stale(nil)
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, StateIdle, f.p.State())
	_, playing := f.p.Current()
	assert.False(t, playing)
	assert.Empty(t, f.p.Queue())
	assert.Equal(t, []string{"stream:A"}, v.startedURLs())

	assert.False(t, f.p.Stop(), "nothing left to stop")
}

func TestStaleCompletionAfterClear(t *testing.T) {
	f := newFixture(t, Settings{})
	for _, name := range []string{"A", "B", "C"} {
		_, _ = f.p.Enqueue(tr(name))
	}
	f.join(t)
	stale := f.p.completion(f.sessionID())
	_ = f.p.Stop()

	_, err := f.p.Enqueue(tr("D"))
	require.NoError(t, err)
	require.Equal(t, "D", f.currentTitle())

	stale(nil)
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, "D", f.currentTitle())
	assert.Equal(t, StatePlaying, f.p.State())
	assert.Equal(t, []string{"D"}, titles(f.p.Queue()))
}

func TestPauseResumeNegativeResults(t *testing.T) {
	f := newFixture(t, Settings{})
	f.join(t)

	assert.False(t, f.p.Pause())
	assert.Equal(t, StateIdle, f.p.State())
	assert.False(t, f.p.Resume())
	assert.Equal(t, StateIdle, f.p.State())
	ok, _ := f.p.Skip()
	assert.False(t, ok)

	_, _ = f.p.Enqueue(tr("A"))
	require.Equal(t, StatePlaying, f.p.State())
	assert.False(t, f.p.Resume())
	assert.Equal(t, StatePlaying, f.p.State())

	assert.True(t, f.p.Pause())
	assert.Equal(t, StatePaused, f.p.State())
	assert.False(t, f.p.Pause())
	assert.True(t, f.p.Resume())
	assert.Equal(t, StatePlaying, f.p.State())
}

func TestSkipWhilePausedAdvances(t *testing.T) {
	f := newFixture(t, Settings{})
	f.join(t)
	_, _ = f.p.Enqueue(tr("A"))
	_, _ = f.p.Enqueue(tr("B"))
	require.True(t, f.p.Pause())

	ok, _ := f.p.Skip()
	assert.True(t, ok)
	assert.Eventually(t, func() bool { return f.currentTitle() == "B" }, waitFor, tick)
	assert.Equal(t, StatePlaying, f.p.State())
}

func TestSinkStartErrorSkipsTrack(t *testing.T) {
	f := newFixture(t, Settings{})
	_, _ = f.p.Enqueue(tr("bad"))
	_, _ = f.p.Enqueue(tr("good"))

	f.conn.voices = map[string]*fakeVoice{"voice-1": newFakeVoice("voice-1")}
	f.conn.voices["voice-1"].fail["stream:bad"] = errors.New("403 forbidden")
	v := f.join(t)

	assert.Equal(t, "good", f.currentTitle())
	assert.Equal(t, []string{"stream:good"}, v.startedURLs())
	assert.Eventually(t, func() bool { return len(f.note.with("Error playing bad")) == 1 }, waitFor, tick)
	errs := f.note.with("Error playing bad")
	assert.Contains(t, errs[0], "403 forbidden")
}

func TestAllTracksFailGoesIdle(t *testing.T) {
	f := newFixture(t, Settings{})
	f.conn.voices = map[string]*fakeVoice{"voice-1": newFakeVoice("voice-1")}
	f.conn.voices["voice-1"].fail["stream:bad"] = errors.New("unreachable")
	f.join(t)

	res, err := f.p.Enqueue(tr("bad"))
	require.NoError(t, err)
	assert.False(t, res.Started)
	assert.Equal(t, StateIdle, f.p.State())
	assert.Empty(t, f.p.Queue())
}

func TestStaleStreamIsRefreshed(t *testing.T) {
	f := newFixture(t, Settings{})
	f.p.opts.StreamTTL = time.Minute
	v := f.join(t)

	old := tr("A")
	old.StreamURL = "expired"
	old.CanonicalURL = "A"
	old.ResolvedAt = time.Now().Add(-time.Hour)
	res, err := f.p.Enqueue(old)
	require.NoError(t, err)
	assert.True(t, res.Started)

	assert.Eventually(t, func() bool { return f.currentTitle() == "A" }, waitFor, tick)
	assert.Equal(t, []string{"stream:A"}, v.startedURLs())
	assert.Equal(t, StatePlaying, f.p.State())
}

func staleTrack(name string) track.Track {
	t := tr(name)
	t.StreamURL = "expired"
	t.CanonicalURL = name
	t.ResolvedAt = time.Now().Add(-time.Hour)
	return t
}

// returnsWithin reports whether fn finishes before d passes.
func returnsWithin(d time.Duration, fn func()) bool {
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn()
	}()
	select {
	case <-done:
		return true
	case <-time.After(d):
		return false
	}
}

func TestStopDuringStreamRefresh(t *testing.T) {
	f := newFixture(t, Settings{})
	f.p.opts.StreamTTL = time.Minute
	v := f.join(t)
	f.res.gate = make(chan struct{})
	defer close(f.res.gate)

	require.True(t, returnsWithin(time.Second, func() {
		_, err := f.p.Enqueue(staleTrack("A"))
		assert.NoError(t, err)
	}), "enqueue waited on the refresh")
	assert.Eventually(t, func() bool { return f.res.callCount() == 1 }, waitFor, tick)

	assert.True(t, returnsWithin(time.Second, func() { assert.False(t, f.p.Pause()) }))
	assert.True(t, returnsWithin(time.Second, func() { assert.True(t, f.p.Stop()) }))

	// The refresh saw its context end; nothing may start afterwards.
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, v.startedURLs())
	assert.Equal(t, StateIdle, f.p.State())
	assert.Empty(t, f.p.Queue())
	assert.False(t, f.p.Stop(), "nothing left to stop")
}

func TestRefreshFinishingAfterStopIsIgnored(t *testing.T) {
	f := newFixture(t, Settings{})
	f.p.opts.StreamTTL = time.Minute
	v := f.join(t)
	f.res.gate = make(chan struct{})
	defer close(f.res.gate)
	_, err := f.p.Enqueue(staleTrack("A"))
	require.NoError(t, err)

	var gen uint64
	require.NoError(t, f.p.call(func() { gen = f.p.refreshGen }))
	require.True(t, f.p.Stop())

	f.p.post(func() { f.p.refreshedLocked(gen, tr("A"), nil) })
	time.Sleep(50 * time.Millisecond)
	assert.NotContains(t, v.startedURLs(), "stream:A")
	assert.Equal(t, StateIdle, f.p.State())
}

func TestSkipDuringStreamRefresh(t *testing.T) {
	f := newFixture(t, Settings{})
	f.p.opts.StreamTTL = time.Minute
	v := f.join(t)
	f.res.gate = make(chan struct{})

	_, err := f.p.Enqueue(staleTrack("A"))
	require.NoError(t, err)
	res, err := f.p.Enqueue(tr("B"))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Position)

	ok, hasNext := f.p.Skip()
	assert.True(t, ok)
	assert.True(t, hasNext)
	assert.Equal(t, "B", f.currentTitle())

	close(f.res.gate)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, []string{"stream:B"}, v.startedURLs())
	assert.Equal(t, "B", f.currentTitle())
}

func TestFailedRefreshSkipsTrack(t *testing.T) {
	f := newFixture(t, Settings{})
	f.p.opts.StreamTTL = time.Minute
	v := f.join(t)
	f.res.fail["A"] = true

	_, _ = f.p.Enqueue(staleTrack("A"))
	_, _ = f.p.Enqueue(tr("B"))

	assert.Eventually(t, func() bool { return f.currentTitle() == "B" }, waitFor, tick)
	assert.Equal(t, []string{"stream:B"}, v.startedURLs())
	assert.Eventually(t, func() bool { return len(f.note.with("Error playing A")) == 1 }, waitFor, tick)
}

// blockingNotifier holds every Notify until release is closed.
type blockingNotifier struct {
	release chan struct{}
	rec     recorder
}

func (b *blockingNotifier) Notify(text string) {
	<-b.release
	b.rec.Notify(text)
}

func TestSlowNotifierDoesNotStallPlayer(t *testing.T) {
	f := newFixture(t, Settings{AnnounceNext: true})
	slow := &blockingNotifier{release: make(chan struct{})}
	f.p.SetNotifier(slow)
	v := f.join(t)

	require.True(t, returnsWithin(time.Second, func() {
		_, _ = f.p.Enqueue(tr("A"))
	}))
	assert.True(t, returnsWithin(time.Second, func() { assert.True(t, f.p.Pause()) }))
	assert.True(t, returnsWithin(time.Second, func() { assert.True(t, f.p.Resume()) }))

	v.end()
	assert.Eventually(t, func() bool { return f.p.State() == StateIdle }, waitFor, tick)
	_, _ = f.p.Enqueue(tr("B"))

	close(slow.release)
	assert.Eventually(t, func() bool { return len(slow.rec.with("Now playing")) == 2 }, waitFor, tick)
	assert.Equal(t, []string{"Now playing: A", "Now playing: B"}, slow.rec.with("Now playing"))
}

func TestAppendAfterClearOrClose(t *testing.T) {
	f := newFixture(t, Settings{})
	epoch := f.p.queue.Epoch()
	require.NoError(t, f.p.appendIf(epoch, tr("A")))

	f.p.Clear()
	assert.ErrorIs(t, f.p.appendIf(epoch, tr("B")), ErrDiscarded)

	f.p.Close()
	assert.ErrorIs(t, f.p.appendIf(f.p.queue.Epoch(), tr("C")), ErrClosed)
}

func TestPlayDiscardedAfterClear(t *testing.T) {
	f := newFixture(t, Settings{})
	f.join(t)
	f.res.gate = make(chan struct{})

	type result struct {
		t   track.Track
		err error
	}
	out := make(chan result, 1)
	go func() {
		got, _, err := f.p.Play(context.Background(), "late song")
		out <- result{got, err}
	}()

	assert.Eventually(t, func() bool { return f.res.callCount() == 1 }, waitFor, tick)
	f.p.Clear()
	close(f.res.gate)

	r := <-out
	assert.ErrorIs(t, r.err, ErrDiscarded)
	assert.Empty(t, f.p.Queue())
	assert.Equal(t, StateIdle, f.p.State())
}

func TestPlayResolutionError(t *testing.T) {
	f := newFixture(t, Settings{})
	f.join(t)
	f.res.fail["nothing"] = true

	_, _, err := f.p.Play(context.Background(), "nothing")
	var rerr *resolve.ResolutionError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, "nothing", rerr.Input)
	assert.Equal(t, StateIdle, f.p.State())
}

func TestJoinNewChannelRestartsCurrent(t *testing.T) {
	f := newFixture(t, Settings{})
	first := f.join(t)
	_, _ = f.p.Enqueue(tr("A"))
	_, _ = f.p.Enqueue(tr("B"))

	require.NoError(t, f.p.Join(context.Background(), "voice-2"))
	second := f.conn.voice("voice-2")

	assert.True(t, first.isDisconnected())
	assert.Equal(t, []string{"stream:A"}, second.startedURLs())
	assert.Equal(t, []string{"A", "B"}, titles(f.p.Queue()))

	ch, ok := f.p.Connected()
	assert.True(t, ok)
	assert.Equal(t, "voice-2", ch)
}

func TestLeave(t *testing.T) {
	f := newFixture(t, Settings{})
	assert.ErrorIs(t, f.p.Leave(), ErrNotConnected)

	v := f.join(t)
	_, _ = f.p.Enqueue(tr("A"))
	_, _ = f.p.Enqueue(tr("B"))

	require.NoError(t, f.p.Leave())
	assert.True(t, v.isDisconnected())
	assert.Empty(t, f.p.Queue())
	assert.Equal(t, StateIdle, f.p.State())
	_, ok := f.p.Connected()
	assert.False(t, ok)
}

func TestIdleDisconnect(t *testing.T) {
	f := newFixture(t, Settings{IdleDisconnect: 30 * time.Millisecond})
	v := f.join(t)
	_, _ = f.p.Enqueue(tr("A"))

	time.Sleep(60 * time.Millisecond)
	assert.False(t, v.isDisconnected(), "must not leave while playing")

	v.end()
	assert.Eventually(t, v.isDisconnected, waitFor, tick)
	assert.Eventually(t, func() bool { return len(f.note.with("Left the voice channel")) == 1 }, waitFor, tick)
}

func TestIdleTimerCancelledByPlayback(t *testing.T) {
	f := newFixture(t, Settings{IdleDisconnect: 40 * time.Millisecond})
	v := f.join(t)
	_, _ = f.p.Enqueue(tr("A"))
	v.end()
	assert.Eventually(t, func() bool { return f.p.State() == StateIdle }, waitFor, tick)

	_, _ = f.p.Enqueue(tr("B"))
	time.Sleep(80 * time.Millisecond)
	assert.False(t, v.isDisconnected())
	assert.Equal(t, "B", f.currentTitle())
}

func TestShuffleThroughPlayer(t *testing.T) {
	f := newFixture(t, Settings{})
	assert.False(t, f.p.Shuffle())
	_, _ = f.p.Enqueue(tr("A"))
	assert.False(t, f.p.Shuffle())
	_, _ = f.p.Enqueue(tr("B"))
	assert.True(t, f.p.Shuffle())
	assert.ElementsMatch(t, []string{"A", "B"}, titles(f.p.Queue()))
}

func TestClosedPlayer(t *testing.T) {
	f := newFixture(t, Settings{})
	v := f.join(t)
	_, _ = f.p.Enqueue(tr("A"))

	f.p.Close()
	assert.True(t, v.isDisconnected())
	assert.ErrorIs(t, f.p.Join(context.Background(), "voice-1"), ErrClosed)
	_, err := f.p.Enqueue(tr("B"))
	assert.ErrorIs(t, err, ErrClosed)
	assert.False(t, f.p.Pause())
}

func TestManager(t *testing.T) {
	m := NewManager(context.Background(), Deps{
		Resolver:  &fakeResolver{},
		Connector: &fakeConnector{},
	})

	a, err := m.Get("g1")
	require.NoError(t, err)
	again, err := m.Get("g1")
	require.NoError(t, err)
	assert.Same(t, a, again)

	b, err := m.Get("g2")
	require.NoError(t, err)
	assert.NotSame(t, a, b)

	_, ok := m.Peek("g3")
	assert.False(t, ok)

	m.Remove("g2")
	_, ok = m.Peek("g2")
	assert.False(t, ok)

	m.Close()
	_, err = m.Get("g1")
	assert.ErrorIs(t, err, ErrClosed)
}

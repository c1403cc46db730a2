package voice

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sonroyaalmerol/maobot/internal/player"
	"github.com/sonroyaalmerol/maobot/internal/stream"
)

// fakeSource emits packets until n is reached, then ends with err.
type fakeSource struct {
	n      int
	err    error
	closed atomic.Bool
}

func (f *fakeSource) Run(ctx context.Context, onPacket stream.OpusPacketHandler) error {
	for i := 0; f.n < 0 || i < f.n; i++ {
		if err := onPacket([]byte{byte(i)}); err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return f.err
}

func (f *fakeSource) Close() { f.closed.Store(true) }

func opener(src *fakeSource, openErr error) openFunc {
	return func(string, int) (source, error) {
		if openErr != nil {
			return nil, openErr
		}
		return src, nil
	}
}

func doneChan() (func(error), chan error) {
	ch := make(chan error, 4)
	return func(err error) { ch <- err }, ch
}

func TestStartPlaysToEnd(t *testing.T) {
	send := make(chan []byte, 16)
	src := &fakeSource{n: 3}
	c := newConnection("g", "ch", 128000, send, opener(src, nil))

	onDone, done := doneChan()
	require.NoError(t, c.Start(context.Background(), "https://stream", onDone))

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("onDone not called")
	}
	assert.Len(t, send, 3)
	assert.True(t, src.closed.Load())
	assert.False(t, c.Active())
}

func TestStartOpenFailure(t *testing.T) {
	c := newConnection("g", "ch", 128000, make(chan []byte), opener(nil, errors.New("403")))
	called := false
	err := c.Start(context.Background(), "https://stream", func(error) { called = true })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
	assert.False(t, called)
	assert.False(t, c.Active())
}

func TestStreamErrorReachesOnDone(t *testing.T) {
	send := make(chan []byte, 4)
	c := newConnection("g", "ch", 128000, send, opener(&fakeSource{n: 1, err: errors.New("decode")}, nil))

	onDone, done := doneChan()
	require.NoError(t, c.Start(context.Background(), "u", onDone))
	err := <-done
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode")
}

func TestStopReportsCleanEndOnce(t *testing.T) {
	send := make(chan []byte) // unbuffered: playback blocks until stopped
	c := newConnection("g", "ch", 128000, send, opener(&fakeSource{n: -1}, nil))

	onDone, done := doneChan()
	require.NoError(t, c.Start(context.Background(), "u", onDone))
	assert.True(t, c.Active())

	c.Stop()
	assert.False(t, c.Active())
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("onDone not called after stop")
	}
	assert.Empty(t, done)
}

func TestPauseResume(t *testing.T) {
	send := make(chan []byte, 1)
	c := newConnection("g", "ch", 128000, send, opener(&fakeSource{n: -1}, nil))

	assert.False(t, c.Pause(), "nothing playing")

	onDone, done := doneChan()
	require.NoError(t, c.Start(context.Background(), "u", onDone))

	assert.False(t, c.Resume(), "not paused")
	require.True(t, c.Pause())
	assert.True(t, c.Paused())
	assert.False(t, c.Pause())

	// Drain whatever was in flight; nothing more may arrive while paused.
	time.Sleep(20 * time.Millisecond)
	for len(send) > 0 {
		<-send
	}
	time.Sleep(30 * time.Millisecond)
	assert.LessOrEqual(t, len(send), 1)

	require.True(t, c.Resume())
	assert.False(t, c.Paused())
	assert.Eventually(t, func() bool {
		select {
		case <-send:
			return true
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, c.Disconnect())
	assert.NoError(t, <-done)
}

func TestSpeakingToggles(t *testing.T) {
	send := make(chan []byte, 8)
	c := newConnection("g", "ch", 128000, send, opener(&fakeSource{n: 2}, nil))
	var on, off atomic.Int32
	c.speaking = func(b bool) {
		if b {
			on.Add(1)
		} else {
			off.Add(1)
		}
	}
	onDone, done := doneChan()
	require.NoError(t, c.Start(context.Background(), "u", onDone))
	<-done
	assert.Equal(t, int32(1), on.Load())
	assert.Equal(t, int32(1), off.Load())
}

var _ player.Voice = (*Connection)(nil)
var _ player.Connector = (*Connector)(nil)

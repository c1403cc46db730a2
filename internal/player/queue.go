package player

import (
	"sync"

	"github.com/sonroyaalmerol/maobot/internal/track"
	"github.com/sonroyaalmerol/maobot/internal/utils"
)

// Queue is a guild's pending tracks plus the one currently playing. Clear
// bumps the epoch so appends tagged with an older epoch are dropped.
type Queue struct {
	mu      sync.Mutex
	pending []track.Track
	current *track.Track
	epoch   uint64
}

func NewQueue() *Queue { return &Queue{} }

func (q *Queue) Enqueue(t track.Track) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(q.pending, t)
	return len(q.pending)
}

// EnqueueIf appends t only if the queue has not been cleared since epoch.
func (q *Queue) EnqueueIf(epoch uint64, t track.Track) (int, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.epoch != epoch {
		return 0, false
	}
	q.pending = append(q.pending, t)
	return len(q.pending), true
}

func (q *Queue) Epoch() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.epoch
}

func (q *Queue) DequeueFront() (track.Track, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return track.Track{}, false
	}
	t := q.pending[0]
	q.pending[0] = track.Track{}
	q.pending = q.pending[1:]
	return t, true
}

// pushFront puts t back at the head, used when a channel move interrupts
// the current track.
func (q *Queue) pushFront(t track.Track) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append([]track.Track{t}, q.pending...)
}

// Shuffle reorders pending tracks. It returns false when there is nothing
// to shuffle.
func (q *Queue) Shuffle() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) < 2 {
		return false
	}
	utils.ShuffleSlice(q.pending)
	return true
}

func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = nil
	q.current = nil
	q.epoch++
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

func (q *Queue) Current() (track.Track, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.current == nil {
		return track.Track{}, false
	}
	return *q.current, true
}

func (q *Queue) setCurrent(t *track.Track) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.current = t
}

// PeekAll lists the current track first, then pending tracks in play order.
func (q *Queue) PeekAll() []Entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Entry, 0, len(q.pending)+1)
	if q.current != nil {
		out = append(out, Entry{Title: q.current.Title, CanonicalURL: q.current.CanonicalURL, Current: true})
	}
	for _, t := range q.pending {
		out = append(out, Entry{Title: t.Title, CanonicalURL: t.CanonicalURL})
	}
	return out
}

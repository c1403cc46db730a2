// Package track holds the resolved unit of playback shared by the resolver
// and the player.
package track

import (
	"strings"
	"time"
)

// Track is immutable once resolved. StreamURL is short-lived; CanonicalURL
// is the stable page the stream was extracted from.
type Track struct {
	StreamURL    string
	Title        string
	CanonicalURL string
	ResolvedAt   time.Time
}

// Stale reports whether StreamURL should be re-resolved before playback.
func (t Track) Stale(now time.Time, ttl time.Duration) bool {
	if t.StreamURL == "" {
		return true
	}
	if ttl <= 0 || t.ResolvedAt.IsZero() {
		return false
	}
	return now.Sub(t.ResolvedAt) >= ttl
}

// Meta is a catalog entry before it is matched against the video backend.
type Meta struct {
	Title  string `json:"title"`
	Artist string `json:"artist,omitempty"`
}

// Query is the search string used to find a playable match for m.
func (m Meta) Query() string {
	return strings.TrimSpace(m.Title + " " + m.Artist)
}

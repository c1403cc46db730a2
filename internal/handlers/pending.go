package handlers

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sonroyaalmerol/maobot/internal/resolve"
)

const (
	pickPrefix = "pick:"
	pickTTL    = 30 * time.Second
)

// pendingSearch is a /search result list waiting for its author to pick one.
type pendingSearch struct {
	guildID   string
	userID    string
	channelID string
	results   []resolve.SearchResult
	timer     *time.Timer
}

// pendingSearches holds open selections. Each one expires after ttl, at
// which point onExpire runs with the selection that timed out.
type pendingSearches struct {
	ttl      time.Duration
	onExpire func(token string, ps *pendingSearch)

	mu    sync.Mutex
	items map[string]*pendingSearch
}

func newPendingSearches(ttl time.Duration, onExpire func(string, *pendingSearch)) *pendingSearches {
	return &pendingSearches{ttl: ttl, onExpire: onExpire, items: make(map[string]*pendingSearch)}
}

func (p *pendingSearches) put(ps *pendingSearch) string {
	token := uuid.NewString()
	p.mu.Lock()
	defer p.mu.Unlock()
	p.items[token] = ps
	ps.timer = time.AfterFunc(p.ttl, func() {
		if expired, ok := p.remove(token); ok && p.onExpire != nil {
			p.onExpire(token, expired)
		}
	})
	return token
}

func (p *pendingSearches) remove(token string) (*pendingSearch, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ps, ok := p.items[token]
	if ok {
		delete(p.items, token)
	}
	return ps, ok
}

// take claims the selection for userID. Anyone else clicking leaves it in
// place.
func (p *pendingSearches) take(token, userID string) (*pendingSearch, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ps, ok := p.items[token]
	if !ok || ps.userID != userID {
		return nil, false
	}
	delete(p.items, token)
	ps.timer.Stop()
	return ps, true
}

func (p *pendingSearches) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.items)
}

func pickID(token string, idx int) string {
	return pickPrefix + token + ":" + strconv.Itoa(idx)
}

func parsePickID(customID string) (token string, idx int, ok bool) {
	rest, found := strings.CutPrefix(customID, pickPrefix)
	if !found {
		return "", 0, false
	}
	token, n, found := strings.Cut(rest, ":")
	if !found || token == "" {
		return "", 0, false
	}
	idx, err := strconv.Atoi(n)
	if err != nil || idx < 0 {
		return "", 0, false
	}
	return token, idx, true
}

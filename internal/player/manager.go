package player

import (
	"context"
	"sync"

	zlog "github.com/rs/zerolog/log"
)

type Deps struct {
	Resolver  Resolver
	Connector Connector
	Settings  SettingsSource
	Options   Options
}

// Manager finds or creates the Player for a guild.
type Manager struct {
	ctx  context.Context
	deps Deps

	mu      sync.Mutex
	players map[string]*Player
	closed  bool
}

func NewManager(ctx context.Context, deps Deps) *Manager {
	return &Manager{
		ctx:     ctx,
		deps:    deps,
		players: make(map[string]*Player),
	}
}

// Get returns the guild's player, creating it on first use.
func (m *Manager) Get(guildID string) (*Player, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	if p, ok := m.players[guildID]; ok {
		return p, nil
	}
	p := NewPlayer(m.ctx, guildID, m.deps.Resolver, m.deps.Connector, m.deps.Settings, m.deps.Options)
	m.players[guildID] = p
	zlog.Debug().Str("guildID", guildID).Msg("created player")
	return p, nil
}

// Peek returns the guild's player without creating one.
func (m *Manager) Peek(guildID string) (*Player, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.players[guildID]
	return p, ok
}

// Remove closes and forgets a guild's player, e.g. when the bot is kicked.
func (m *Manager) Remove(guildID string) {
	m.mu.Lock()
	p, ok := m.players[guildID]
	delete(m.players, guildID)
	m.mu.Unlock()
	if ok {
		p.Close()
	}
}

func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	players := m.players
	m.players = make(map[string]*Player)
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, p := range players {
		wg.Add(1)
		go func(p *Player) {
			defer wg.Done()
			p.Close()
		}(p)
	}
	wg.Wait()
}

package handlers

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/sonroyaalmerol/maobot/internal/player"
	"github.com/sonroyaalmerol/maobot/internal/repository"
)

const settingsTimeout = 2 * time.Second

type SettingsRepo interface {
	UpsertSettings(ctx context.Context, guild string) (*repository.Settings, error)
	GetSettings(ctx context.Context, guild string) (*repository.Settings, error)
	UpdateSettings(ctx context.Context, s *repository.Settings) error
}

// SettingsStore serves guild settings to the players. Guilds without a row
// get one seeded from the configured defaults.
type SettingsStore struct {
	repo     SettingsRepo
	defaults player.Settings
}

func NewSettingsStore(repo SettingsRepo, defaults player.Settings) *SettingsStore {
	return &SettingsStore{repo: repo, defaults: defaults}
}

// Settings never fails; on database errors the defaults are returned.
func (s *SettingsStore) Settings(ctx context.Context, guildID string) player.Settings {
	row, err := s.Load(ctx, guildID)
	if err != nil {
		zlog.Warn().Err(err).Str("guildID", guildID).Msg("using default guild settings")
		return s.defaults
	}
	return player.Settings{
		PlaylistLimit:  row.PlaylistLimit,
		IdleDisconnect: row.WaitAfterEmpty(),
		AnnounceNext:   row.AutoAnnounceNext,
	}
}

// Load returns the guild's row, creating it first if needed.
func (s *SettingsStore) Load(ctx context.Context, guildID string) (*repository.Settings, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), settingsTimeout)
	defer cancel()

	row, err := s.repo.GetSettings(ctx, guildID)
	if err == nil {
		return row, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	row, err = s.repo.UpsertSettings(ctx, guildID)
	if err != nil {
		return nil, err
	}
	row.PlaylistLimit = s.defaults.PlaylistLimit
	row.SecondsWaitAfterEmpty = int(s.defaults.IdleDisconnect / time.Second)
	row.AutoAnnounceNext = s.defaults.AnnounceNext
	if err := s.repo.UpdateSettings(ctx, row); err != nil {
		return nil, err
	}
	return row, nil
}

// Update loads the guild's row, applies fn and stores the result.
func (s *SettingsStore) Update(ctx context.Context, guildID string, fn func(*repository.Settings)) (*repository.Settings, error) {
	row, err := s.Load(ctx, guildID)
	if err != nil {
		return nil, err
	}
	fn(row)
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), settingsTimeout)
	defer cancel()
	if err := s.repo.UpdateSettings(ctx, row); err != nil {
		return nil, err
	}
	return row, nil
}

func (s *SettingsStore) LeaveIfNoListeners(ctx context.Context, guildID string) bool {
	row, err := s.Load(ctx, guildID)
	if err != nil {
		return false
	}
	return row.LeaveIfNoListeners
}

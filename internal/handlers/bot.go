package handlers

import (
	"context"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/sonroyaalmerol/maobot/internal/config"
	"github.com/sonroyaalmerol/maobot/internal/player"
)

type Bot struct {
	cfg      *config.Config
	s        *discordgo.Session
	pm       *player.Manager
	settings *SettingsStore
	cmd      *CommandHandler
}

func NewBot(ctx context.Context, cfg *config.Config, s *discordgo.Session, deps Deps) *Bot {
	return &Bot{
		cfg:      cfg,
		s:        s,
		pm:       deps.Manager,
		settings: deps.Settings,
		cmd:      NewCommandHandler(ctx, cfg, s, deps),
	}
}

// Run connects to the gateway and blocks until ctx is done. Players are
// shut down before the session closes so voice connections leave cleanly.
func (b *Bot) Run(ctx context.Context) error {
	dg := b.s
	dg.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildVoiceStates

	dg.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		zlog.Info().Str("user", s.State.User.Username).Int("guilds", len(r.Guilds)).Msg("connected")
		b.updateStatus(s)
		appID := s.State.User.ID

		if b.cfg.Discord.RegisterCommandsOnBot {
			if err := b.cmd.RegisterCommands(s, appID, ""); err != nil {
				zlog.Error().Err(err).Msg("register global commands")
			}
			return
		}

		var wg sync.WaitGroup
		for _, g := range r.Guilds {
			wg.Add(1)
			go func(guildID string) {
				defer wg.Done()
				if err := b.cmd.RegisterCommands(s, appID, guildID); err != nil {
					zlog.Error().Err(err).Str("guildID", guildID).Msg("register guild commands")
				}
			}(g.ID)
		}
		wg.Wait()

		if _, err := s.ApplicationCommandBulkOverwrite(appID, "", []*discordgo.ApplicationCommand{}); err != nil {
			zlog.Error().Err(err).Msg("clear global commands")
		}
		zlog.Info().Msg("registered commands on all guilds")
	})

	dg.AddHandler(func(s *discordgo.Session, g *discordgo.GuildCreate) {
		if b.cfg.Discord.RegisterCommandsOnBot || s.State.User == nil {
			return
		}
		if err := b.cmd.RegisterCommands(s, s.State.User.ID, g.ID); err != nil {
			zlog.Error().Err(err).Str("guildID", g.ID).Msg("register guild commands on join")
		}
	})

	dg.AddHandler(func(s *discordgo.Session, g *discordgo.GuildDelete) {
		if !g.Unavailable {
			b.pm.Remove(g.ID)
		}
	})

	dg.AddHandler(b.cmd.HandleInteraction)
	dg.AddHandler(b.onVoiceStateUpdate)

	if err := dg.Open(); err != nil {
		return errors.Wrap(err, "open discord session")
	}

	<-ctx.Done()
	zlog.Info().Msg("shutting down")
	b.pm.Close()
	return errors.Wrap(dg.Close(), "close discord session")
}

func (b *Bot) updateStatus(s *discordgo.Session) {
	err := s.UpdateStatusComplex(discordgo.UpdateStatusData{
		Status: b.cfg.Discord.Status,
		Activities: []*discordgo.Activity{{
			Name: b.cfg.Discord.Activity,
			Type: discordgo.ActivityTypeListening,
		}},
	})
	if err != nil {
		zlog.Warn().Err(err).Msg("update status")
	}
}

// onVoiceStateUpdate leaves a channel once only bots are left in it, when
// the guild has that setting on.
func (b *Bot) onVoiceStateUpdate(s *discordgo.Session, vs *discordgo.VoiceStateUpdate) {
	p, ok := b.pm.Peek(vs.GuildID)
	if !ok {
		return
	}
	chID, connected := p.Connected()
	if !connected {
		return
	}
	// Only departures from our channel matter.
	if vs.BeforeUpdate == nil || vs.BeforeUpdate.ChannelID != chID || vs.ChannelID == chID {
		return
	}
	if getNonBotSize(s, vs.GuildID, chID) > 0 {
		return
	}
	if !b.settings.LeaveIfNoListeners(context.Background(), vs.GuildID) {
		return
	}
	zlog.Info().Str("guildID", vs.GuildID).Str("channelID", chID).Msg("no listeners left, leaving")
	_ = p.Leave()
}

func getNonBotSize(s *discordgo.Session, guildID, channelID string) int {
	g, _ := s.State.Guild(guildID)
	if g == nil {
		return 0
	}
	return countListeners(g.VoiceStates, channelID, func(userID string) bool {
		m, _ := s.State.Member(guildID, userID)
		return m != nil && m.User != nil && m.User.Bot
	})
}

func countListeners(states []*discordgo.VoiceState, channelID string, isBot func(string) bool) int {
	n := 0
	for _, vs := range states {
		if vs.ChannelID == channelID && !isBot(vs.UserID) {
			n++
		}
	}
	return n
}

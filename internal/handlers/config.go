package handlers

import (
	"fmt"

	"github.com/bwmarrin/discordgo"
	zlog "github.com/rs/zerolog/log"

	"github.com/sonroyaalmerol/maobot/internal/repository"
	"github.com/sonroyaalmerol/maobot/internal/utils"
)

func (h *CommandHandler) cmdConfig(s *discordgo.Session, i *discordgo.InteractionCreate) {
	opts := i.ApplicationCommandData().Options
	if len(opts) == 0 {
		return
	}
	sub := opts[0]

	if sub.Name == "get" {
		set, err := h.settings.Load(h.ctx, i.GuildID)
		if err != nil {
			zlog.Error().Err(err).Str("guildID", i.GuildID).Msg("get settings failed")
			h.reply(s, i, "failed to fetch config", true)
			return
		}
		h.reply(s, i, describeSettings(set), false)
		return
	}

	if len(sub.Options) == 0 {
		return
	}
	val := sub.Options[0]

	var (
		apply func(*repository.Settings)
		ack   string
	)
	switch sub.Name {
	case "set-playlist-limit":
		limit := int(val.IntValue())
		if limit < 1 {
			h.reply(s, i, "invalid limit", true)
			return
		}
		apply, ack = func(set *repository.Settings) { set.PlaylistLimit = limit }, "👍 limit updated"
	case "set-wait-after-queue-empties":
		delay := int(val.IntValue())
		if delay < 0 {
			h.reply(s, i, "invalid delay", true)
			return
		}
		apply, ack = func(set *repository.Settings) { set.SecondsWaitAfterEmpty = delay }, "👍 wait delay updated"
	case "set-leave-if-no-listeners":
		b := val.BoolValue()
		apply, ack = func(set *repository.Settings) { set.LeaveIfNoListeners = b }, "👍 leave setting updated"
	case "set-auto-announce-next-song":
		b := val.BoolValue()
		apply, ack = func(set *repository.Settings) { set.AutoAnnounceNext = b }, "👍 auto announce setting updated"
	default:
		return
	}

	if _, err := h.settings.Update(h.ctx, i.GuildID, apply); err != nil {
		zlog.Error().Err(err).Str("guildID", i.GuildID).Str("key", sub.Name).Msg("update settings failed")
		h.reply(s, i, "failed to update config", true)
		return
	}
	zlog.Info().Str("guildID", i.GuildID).Str("key", sub.Name).Interface("value", val.Value).Msg("config updated")
	h.reply(s, i, ack, false)
}

func describeSettings(set *repository.Settings) string {
	wait := "never leave"
	if set.SecondsWaitAfterEmpty > 0 {
		wait = utils.PrettyTime(set.SecondsWaitAfterEmpty)
	}
	return fmt.Sprintf(
		"Config\n- Playlist Limit: %d\n- Wait before leaving after queue empty: %s\n- Leave if no listeners: %t\n- Auto announce next song: %t",
		set.PlaylistLimit, wait, set.LeaveIfNoListeners, set.AutoAnnounceNext,
	)
}

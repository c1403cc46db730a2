package handlers

import (
	"github.com/bwmarrin/discordgo"
	zlog "github.com/rs/zerolog/log"

	"github.com/sonroyaalmerol/maobot/internal/player"
	"github.com/sonroyaalmerol/maobot/internal/utils"
)

const maxMessage = 2000

// channelNotifier posts player messages to the text channel the last
// command came from.
func channelNotifier(s *discordgo.Session, guildID, channelID string) player.Notifier {
	return player.NotifierFunc(func(text string) {
		if _, err := s.ChannelMessageSend(channelID, utils.Truncate(text, maxMessage)); err != nil {
			zlog.Warn().Err(err).Str("guildID", guildID).Str("channelID", channelID).Msg("notify failed")
		}
	})
}

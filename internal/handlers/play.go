package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/sonroyaalmerol/maobot/internal/player"
	"github.com/sonroyaalmerol/maobot/internal/resolve"
	"github.com/sonroyaalmerol/maobot/internal/track"
	"github.com/sonroyaalmerol/maobot/internal/utils"
)

func stringOption(i *discordgo.InteractionCreate, name string) string {
	for _, o := range i.ApplicationCommandData().Options {
		if o.Name == name {
			return strings.TrimSpace(o.StringValue())
		}
	}
	return ""
}

// joinCaller connects p to the caller's voice channel unless it is
// already connected somewhere.
func (h *CommandHandler) joinCaller(s *discordgo.Session, guildID, userID string, p *player.Player) (string, bool) {
	chID, ok := userInVoice(s, guildID, userID)
	if !ok {
		return "You need to be in a voice channel to play music.", false
	}
	if _, connected := p.Connected(); connected {
		return "", true
	}
	ctx, cancel := context.WithTimeout(h.ctx, playTimeout)
	defer cancel()
	if err := p.Join(ctx, chID); err != nil {
		zlog.Warn().Err(err).Str("guildID", guildID).Str("channelID", chID).Msg("voice connect failed")
		return "Error connecting to voice channel: " + userMessage(err), false
	}
	return "", true
}

func (h *CommandHandler) cmdPlay(s *discordgo.Session, i *discordgo.InteractionCreate) {
	query := stringOption(i, "query")
	zlog.Info().Str("guildID", i.GuildID).Str("userID", userIDOf(i)).Str("query", query).Msg("cmd play")

	if _, ok := userInVoice(s, i.GuildID, userIDOf(i)); !ok {
		h.reply(s, i, "You need to be in a voice channel to play music.", false)
		return
	}
	h.deferReply(s, i)

	p, err := h.player(s, i)
	if err != nil {
		h.editReply(s, i, userMessage(err))
		return
	}
	if msg, ok := h.joinCaller(s, i.GuildID, userIDOf(i), p); !ok {
		h.editReply(s, i, msg)
		return
	}
	h.playOrImport(s, i, p, query)
}

// cmdQueue adds without joining; the bot has to be connected already.
func (h *CommandHandler) cmdQueue(s *discordgo.Session, i *discordgo.InteractionCreate) {
	query := stringOption(i, "query")
	zlog.Info().Str("guildID", i.GuildID).Str("userID", userIDOf(i)).Str("query", query).Msg("cmd queue")

	p, ok := h.connectedPlayer(s, i)
	if !ok {
		h.reply(s, i, "I need to join a voice channel first! Use /join", false)
		return
	}
	h.deferReply(s, i)
	h.playOrImport(s, i, p, query)
}

func (h *CommandHandler) cmdPlaylist(s *discordgo.Session, i *discordgo.InteractionCreate) {
	source := stringOption(i, "url")
	zlog.Info().Str("guildID", i.GuildID).Str("userID", userIDOf(i)).Str("url", source).Msg("cmd playlist")

	if _, ok := userInVoice(s, i.GuildID, userIDOf(i)); !ok {
		h.reply(s, i, "You need to be in a voice channel to play music.", false)
		return
	}
	kind := resolve.Classify(source).Kind
	if !kind.IsPlaylist() {
		h.reply(s, i, "That doesn't look like a valid playlist URL. Please provide a YouTube or Spotify playlist link.", false)
		return
	}
	if kind.IsCatalog() && !h.search.CatalogEnabled() {
		h.reply(s, i, "Spotify links are not enabled on this bot.", true)
		return
	}
	h.deferReply(s, i)

	p, err := h.player(s, i)
	if err != nil {
		h.editReply(s, i, userMessage(err))
		return
	}
	if msg, ok := h.joinCaller(s, i.GuildID, userIDOf(i), p); !ok {
		h.editReply(s, i, msg)
		return
	}
	h.startImport(s, i, p, source)
}

// playOrImport routes playlist-shaped input to the importer and everything
// else to a single-track play. The deferred reply gets the outcome.
func (h *CommandHandler) playOrImport(s *discordgo.Session, i *discordgo.InteractionCreate, p *player.Player, query string) {
	if resolve.Classify(query).Kind.IsPlaylist() {
		h.startImport(s, i, p, query)
		return
	}

	ctx, cancel := context.WithTimeout(h.ctx, playTimeout)
	defer cancel()
	t, res, err := p.Play(ctx, query)
	if err != nil {
		zlog.Warn().Err(err).Str("guildID", i.GuildID).Str("query", query).Msg("play failed")
		h.editReply(s, i, "Error processing URL: "+userMessage(err))
		return
	}
	h.editReply(s, i, playReply(t, res))
}

func (h *CommandHandler) startImport(s *discordgo.Session, i *discordgo.InteractionCreate, p *player.Player, source string) {
	h.editReply(s, i, "Processing playlist... This may take a moment.")
	n := channelNotifier(s, i.GuildID, i.ChannelID)
	go func() {
		sum, err := h.importer.Import(h.ctx, p, source, n)
		if err != nil {
			zlog.Warn().Err(err).Str("guildID", i.GuildID).Str("source", source).Msg("playlist import failed")
		}
		n.Notify(importReply(sum, err))
	}()
}

func (h *CommandHandler) cmdSearch(s *discordgo.Session, i *discordgo.InteractionCreate) {
	query := stringOption(i, "query")
	zlog.Info().Str("guildID", i.GuildID).Str("userID", userIDOf(i)).Str("query", query).Msg("cmd search")
	h.deferReply(s, i)

	ctx, cancel := context.WithTimeout(h.ctx, playTimeout)
	defer cancel()
	results, err := h.search.Search(ctx, query, h.cfg.Resolver.SearchResults)
	if err != nil || len(results) == 0 {
		if err != nil && !errors.Is(err, resolve.ErrNoResults) {
			zlog.Warn().Err(err).Str("guildID", i.GuildID).Str("query", query).Msg("search failed")
		}
		h.editReply(s, i, "No results found.")
		return
	}

	token := h.picks.put(&pendingSearch{
		guildID:   i.GuildID,
		userID:    userIDOf(i),
		channelID: i.ChannelID,
		results:   results,
	})
	content := searchMessage(results)
	components := pickButtons(token, len(results))
	if _, err := s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{
		Content:    &content,
		Components: &components,
	}); err != nil {
		zlog.Warn().Err(err).Str("guildID", i.GuildID).Msg("search results edit failed")
	}
}

func searchMessage(results []resolve.SearchResult) string {
	var b strings.Builder
	b.WriteString("**Search Results:**\n")
	for n, r := range results {
		fmt.Fprintf(&b, "%d. %s\n", n+1, utils.EscapeMd(r.Title))
	}
	b.WriteString("\nPick the number of the song you want to play.")
	return b.String()
}

func pickButtons(token string, n int) []discordgo.MessageComponent {
	row := discordgo.ActionsRow{}
	for idx := 0; idx < n && idx < 5; idx++ {
		row.Components = append(row.Components, discordgo.Button{
			Label:    fmt.Sprint(idx + 1),
			Style:    discordgo.PrimaryButton,
			CustomID: pickID(token, idx),
		})
	}
	return []discordgo.MessageComponent{row}
}

func (h *CommandHandler) handleComponent(s *discordgo.Session, i *discordgo.InteractionCreate) {
	token, idx, ok := parsePickID(i.MessageComponentData().CustomID)
	if !ok {
		return
	}
	ps, ok := h.picks.take(token, userIDOf(i))
	if !ok || idx >= len(ps.results) {
		h.reply(s, i, "That selection is no longer available.", true)
		return
	}
	selected := ps.results[idx]

	if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseUpdateMessage,
		Data: &discordgo.InteractionResponseData{
			Content:    fmt.Sprintf("Processing your selection: %s...", utils.EscapeMd(selected.Title)),
			Components: []discordgo.MessageComponent{},
		},
	}); err != nil {
		zlog.Warn().Err(err).Str("guildID", i.GuildID).Msg("selection update failed")
	}

	n := channelNotifier(s, ps.guildID, ps.channelID)
	p, err := h.pm.Get(ps.guildID)
	if err != nil {
		n.Notify("Error processing selection: " + userMessage(err))
		return
	}
	p.SetNotifier(n)
	if msg, ok := h.joinCaller(s, ps.guildID, ps.userID, p); !ok {
		n.Notify(msg)
		return
	}

	ctx, cancel := context.WithTimeout(h.ctx, playTimeout)
	defer cancel()
	t, res, err := p.Play(ctx, selected.CanonicalURL)
	if err != nil {
		n.Notify("Error processing selection: " + userMessage(err))
		return
	}
	n.Notify(playReply(t, res))
}

func (h *CommandHandler) pickExpired(_ string, ps *pendingSearch) {
	if h.s == nil {
		return
	}
	channelNotifier(h.s, ps.guildID, ps.channelID).Notify("Selection timed out.")
}

func playReply(t track.Track, res player.EnqueueResult) string {
	title := utils.EscapeMd(t.Title)
	if res.Started {
		return "Mao is boppin' to: " + title
	}
	if res.Position > 0 {
		return fmt.Sprintf("Added to queue: %s (position %d)", title, res.Position)
	}
	return "Added to queue: " + title
}

func importReply(sum player.ImportSummary, err error) string {
	switch {
	case err == nil:
		return fmt.Sprintf("Added %d songs from playlist to the queue.", sum.Added)
	case errors.Is(err, context.Canceled):
		return fmt.Sprintf("Playlist import stopped after %d songs.", sum.Added)
	default:
		return "Error processing playlist: " + userMessage(err)
	}
}

// userMessage turns an error into something short enough for chat.
func userMessage(err error) string {
	switch {
	case errors.Is(err, resolve.ErrNoResults):
		return "no results found"
	case errors.Is(err, resolve.ErrCatalogDisabled):
		return "Spotify links are not enabled on this bot"
	case errors.Is(err, resolve.ErrUnsupported):
		return "that link is not supported here"
	case errors.Is(err, player.ErrDiscarded):
		return "the queue was cleared before it could be added"
	case errors.Is(err, player.ErrClosed):
		return "the player is shutting down"
	case errors.Is(err, context.DeadlineExceeded):
		return "timed out"
	}
	return utils.Truncate(errors.UnwrapAll(err).Error(), 300)
}

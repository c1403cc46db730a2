package handlers

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/sonroyaalmerol/maobot/internal/autocomplete"
	"github.com/sonroyaalmerol/maobot/internal/config"
	"github.com/sonroyaalmerol/maobot/internal/player"
	"github.com/sonroyaalmerol/maobot/internal/resolve"
	"github.com/sonroyaalmerol/maobot/internal/ui"
)

const (
	playTimeout    = 2 * time.Minute
	autocompleteN  = 10
	defaultPageLen = 10
)

// Searcher is the part of resolve.Resolver the commands use directly.
type Searcher interface {
	Search(ctx context.Context, query string, n int) ([]resolve.SearchResult, error)
	CatalogEnabled() bool
}

type CommandHandler struct {
	ctx      context.Context
	cfg      *config.Config
	s        *discordgo.Session
	pm       *player.Manager
	importer *player.Importer
	search   Searcher
	settings *SettingsStore
	suggest  *autocomplete.Suggester
	picks    *pendingSearches
}

type Deps struct {
	Manager  *player.Manager
	Importer *player.Importer
	Search   Searcher
	Settings *SettingsStore
	Suggest  *autocomplete.Suggester
}

// NewCommandHandler wires the slash commands. ctx bounds background work
// such as playlist imports.
func NewCommandHandler(ctx context.Context, cfg *config.Config, s *discordgo.Session, deps Deps) *CommandHandler {
	h := &CommandHandler{
		ctx:      ctx,
		cfg:      cfg,
		s:        s,
		pm:       deps.Manager,
		importer: deps.Importer,
		search:   deps.Search,
		settings: deps.Settings,
		suggest:  deps.Suggest,
	}
	h.picks = newPendingSearches(pickTTL, h.pickExpired)
	return h
}

func queryOption(desc string) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Name:         "query",
		Description:  desc,
		Type:         discordgo.ApplicationCommandOptionString,
		Required:     true,
		Autocomplete: true,
	}
}

func commands() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{Name: "join", Description: "Join your voice channel"},
		{Name: "leave", Description: "Leave the voice channel"},
		{
			Name:        "play",
			Description: "Play a song from YouTube, Spotify or search term",
			Options:     []*discordgo.ApplicationCommandOption{queryOption("The song URL, playlist URL or search term")},
		},
		{
			Name:        "search",
			Description: "Search for a song on YouTube",
			Options: []*discordgo.ApplicationCommandOption{
				{Name: "query", Description: "The search term for the song", Type: discordgo.ApplicationCommandOptionString, Required: true},
			},
		},
		{Name: "stop", Description: "Stop playing and clear the queue"},
		{Name: "pause", Description: "Pause the current song"},
		{Name: "resume", Description: "Resume the paused song"},
		{
			Name:        "queue",
			Description: "Add a song to the queue",
			Options:     []*discordgo.ApplicationCommandOption{queryOption("The song URL or search term")},
		},
		{
			Name:        "show_queue",
			Description: "Show the current song queue",
			Options: []*discordgo.ApplicationCommandOption{
				{Name: "page", Description: "page of queue to show [default: 1]", Type: discordgo.ApplicationCommandOptionInteger},
			},
		},
		{Name: "now_playing", Description: "Show the current song"},
		{Name: "skip", Description: "Skip to the next song in the queue"},
		{Name: "shuffle", Description: "Shuffle the current queue"},
		{Name: "clear", Description: "Clear the queue but keep the current song"},
		{
			Name:        "playlist",
			Description: "Load a YouTube or Spotify playlist",
			Options: []*discordgo.ApplicationCommandOption{
				{Name: "url", Description: "The URL of the YouTube or Spotify playlist", Type: discordgo.ApplicationCommandOptionString, Required: true},
			},
		},
		{
			Name:        "config",
			Description: "Configure bot settings",
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "get", Description: "show settings"},
				{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "set-playlist-limit", Description: "set max playlist add", Options: []*discordgo.ApplicationCommandOption{
					{Name: "limit", Description: "max tracks", Type: discordgo.ApplicationCommandOptionInteger, Required: true},
				}},
				{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "set-wait-after-queue-empties", Description: "time to wait before leaving VC", Options: []*discordgo.ApplicationCommandOption{
					{Name: "delay", Description: "seconds (0 never leave)", Type: discordgo.ApplicationCommandOptionInteger, Required: true},
				}},
				{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "set-leave-if-no-listeners", Description: "leave when no listeners", Options: []*discordgo.ApplicationCommandOption{
					{Name: "value", Description: "true/false", Type: discordgo.ApplicationCommandOptionBoolean, Required: true},
				}},
				{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "set-auto-announce-next-song", Description: "auto announce next", Options: []*discordgo.ApplicationCommandOption{
					{Name: "value", Description: "true/false", Type: discordgo.ApplicationCommandOptionBoolean, Required: true},
				}},
			},
		},
	}
}

// RegisterCommands replaces the application's commands, globally when
// guildID is empty.
func (h *CommandHandler) RegisterCommands(s *discordgo.Session, appID, guildID string) error {
	start := time.Now()
	cmds := commands()
	if _, err := s.ApplicationCommandBulkOverwrite(appID, guildID, cmds); err != nil {
		return errors.Wrapf(err, "register commands (guild %q)", guildID)
	}
	zlog.Info().Str("guildID", guildID).Int("count", len(cmds)).Dur("took", time.Since(start)).Msg("registered commands")
	return nil
}

func (h *CommandHandler) HandleInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.GuildID == "" {
		return
	}
	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		zlog.Debug().Str("guildID", i.GuildID).Str("userID", userIDOf(i)).Str("command", i.ApplicationCommandData().Name).Msg("interaction: application command")
		h.handleChatCommand(s, i)
	case discordgo.InteractionApplicationCommandAutocomplete:
		h.handleAutocomplete(s, i)
	case discordgo.InteractionMessageComponent:
		h.handleComponent(s, i)
	default:
		zlog.Debug().Str("guildID", i.GuildID).Int("type", int(i.Type)).Msg("interaction: ignored type")
	}
}

func (h *CommandHandler) handleAutocomplete(s *discordgo.Session, i *discordgo.InteractionCreate) {
	var query string
	for _, opt := range i.ApplicationCommandData().Options {
		if opt.Focused {
			query = strings.TrimSpace(opt.StringValue())
			break
		}
	}
	choices := []*discordgo.ApplicationCommandOptionChoice{}
	if query != "" && h.suggest != nil {
		ctx, cancel := context.WithTimeout(h.ctx, 2*time.Second)
		choices = append(choices, h.suggest.Choices(ctx, query, autocompleteN)...)
		cancel()
	}
	if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionApplicationCommandAutocompleteResult,
		Data: &discordgo.InteractionResponseData{Choices: choices},
	}); err != nil {
		zlog.Debug().Err(err).Str("guildID", i.GuildID).Msg("autocomplete respond failed")
	}
}

func (h *CommandHandler) handleChatCommand(s *discordgo.Session, i *discordgo.InteractionCreate) {
	switch i.ApplicationCommandData().Name {
	case "join":
		h.cmdJoin(s, i)
	case "leave":
		h.cmdLeave(s, i)
	case "play":
		h.cmdPlay(s, i)
	case "search":
		h.cmdSearch(s, i)
	case "stop":
		h.cmdStop(s, i)
	case "pause":
		h.cmdPause(s, i)
	case "resume":
		h.cmdResume(s, i)
	case "queue":
		h.cmdQueue(s, i)
	case "show_queue":
		h.cmdShowQueue(s, i)
	case "now_playing":
		h.cmdNowPlaying(s, i)
	case "skip":
		h.cmdSkip(s, i)
	case "shuffle":
		h.cmdShuffle(s, i)
	case "clear":
		h.cmdClear(s, i)
	case "playlist":
		h.cmdPlaylist(s, i)
	case "config":
		h.cmdConfig(s, i)
	default:
		zlog.Debug().Str("name", i.ApplicationCommandData().Name).Str("guildID", i.GuildID).Msg("unknown command")
	}
}

func (h *CommandHandler) reply(s *discordgo.Session, i *discordgo.InteractionCreate, content string, ephemeral bool) {
	var flags discordgo.MessageFlags
	if ephemeral {
		flags = discordgo.MessageFlagsEphemeral
	}
	if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Content: content, Flags: flags},
	}); err != nil {
		zlog.Warn().Err(err).Str("guildID", i.GuildID).Str("userID", userIDOf(i)).Msg("reply failed")
	}
}

func (h *CommandHandler) deferReply(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	}); err != nil {
		zlog.Warn().Err(err).Str("guildID", i.GuildID).Str("userID", userIDOf(i)).Msg("defer reply failed")
	}
}

func (h *CommandHandler) editReply(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	if _, err := s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{Content: &content}); err != nil {
		zlog.Warn().Err(err).Str("guildID", i.GuildID).Str("userID", userIDOf(i)).Msg("edit reply failed")
	}
}

// player returns the guild's player and points its notifications at the
// channel the interaction came from.
func (h *CommandHandler) player(s *discordgo.Session, i *discordgo.InteractionCreate) (*player.Player, error) {
	p, err := h.pm.Get(i.GuildID)
	if err != nil {
		return nil, err
	}
	p.SetNotifier(channelNotifier(s, i.GuildID, i.ChannelID))
	return p, nil
}

// connectedPlayer is player for commands that need an existing connection.
func (h *CommandHandler) connectedPlayer(s *discordgo.Session, i *discordgo.InteractionCreate) (*player.Player, bool) {
	p, ok := h.pm.Peek(i.GuildID)
	if !ok {
		return nil, false
	}
	if _, connected := p.Connected(); !connected {
		return nil, false
	}
	p.SetNotifier(channelNotifier(s, i.GuildID, i.ChannelID))
	return p, true
}

func (h *CommandHandler) cmdJoin(s *discordgo.Session, i *discordgo.InteractionCreate) {
	chID, ok := userInVoice(s, i.GuildID, userIDOf(i))
	if !ok {
		h.reply(s, i, "You are not in a voice channel.", true)
		return
	}
	h.deferReply(s, i)

	p, err := h.player(s, i)
	if err != nil {
		h.editReply(s, i, userMessage(err))
		return
	}
	if cur, connected := p.Connected(); connected && cur == chID {
		h.editReply(s, i, "I'm already in your voice channel!")
		return
	}
	ctx, cancel := context.WithTimeout(h.ctx, 15*time.Second)
	defer cancel()
	if err := p.Join(ctx, chID); err != nil {
		zlog.Warn().Err(err).Str("guildID", i.GuildID).Str("channelID", chID).Msg("voice connect failed")
		h.editReply(s, i, "Error joining voice channel: "+userMessage(err))
		return
	}
	zlog.Info().Str("guildID", i.GuildID).Str("userID", userIDOf(i)).Msg("cmd join")
	h.editReply(s, i, "Mao has joined your great empire!")
}

func (h *CommandHandler) cmdLeave(s *discordgo.Session, i *discordgo.InteractionCreate) {
	p, ok := h.pm.Peek(i.GuildID)
	if !ok || p.Leave() != nil {
		h.reply(s, i, "I'm not connected to a voice channel.", false)
		return
	}
	zlog.Info().Str("guildID", i.GuildID).Str("userID", userIDOf(i)).Msg("cmd leave")
	h.reply(s, i, "Mao was disappointed in your channel", false)
}

func (h *CommandHandler) cmdStop(s *discordgo.Session, i *discordgo.InteractionCreate) {
	p, ok := h.connectedPlayer(s, i)
	if !ok {
		h.reply(s, i, "I'm not connected to a voice channel.", false)
		return
	}
	p.Stop()
	zlog.Info().Str("guildID", i.GuildID).Str("userID", userIDOf(i)).Msg("cmd stop")
	h.reply(s, i, "Stopped playing music.", false)
}

func (h *CommandHandler) cmdPause(s *discordgo.Session, i *discordgo.InteractionCreate) {
	p, ok := h.connectedPlayer(s, i)
	if !ok {
		h.reply(s, i, "I'm not connected to a voice channel.", false)
		return
	}
	if !p.Pause() {
		h.reply(s, i, "No music is currently playing.", false)
		return
	}
	zlog.Info().Str("guildID", i.GuildID).Str("userID", userIDOf(i)).Msg("cmd pause")
	h.reply(s, i, "Music paused.", false)
}

func (h *CommandHandler) cmdResume(s *discordgo.Session, i *discordgo.InteractionCreate) {
	p, ok := h.connectedPlayer(s, i)
	if !ok {
		h.reply(s, i, "I'm not connected to a voice channel.", false)
		return
	}
	if !p.Resume() {
		h.reply(s, i, "No music is currently paused.", false)
		return
	}
	zlog.Info().Str("guildID", i.GuildID).Str("userID", userIDOf(i)).Msg("cmd resume")
	h.reply(s, i, "Music resumed.", false)
}

func (h *CommandHandler) cmdSkip(s *discordgo.Session, i *discordgo.InteractionCreate) {
	p, ok := h.connectedPlayer(s, i)
	if !ok {
		h.reply(s, i, "I'm not connected to a voice channel.", false)
		return
	}
	skipped, hasNext := p.Skip()
	zlog.Info().Str("guildID", i.GuildID).Str("userID", userIDOf(i)).Bool("skipped", skipped).Bool("hasNext", hasNext).Msg("cmd skip")
	if skipped && hasNext {
		h.reply(s, i, "Skipped to next song.", false)
		return
	}
	h.reply(s, i, "No more songs in queue.", false)
}

func (h *CommandHandler) cmdShuffle(s *discordgo.Session, i *discordgo.InteractionCreate) {
	p, ok := h.pm.Peek(i.GuildID)
	if !ok || !p.Shuffle() {
		h.reply(s, i, "Queue is empty or contains only one song.", false)
		return
	}
	zlog.Info().Str("guildID", i.GuildID).Str("userID", userIDOf(i)).Msg("cmd shuffle")
	h.reply(s, i, "Queue has been shuffled.", false)
}

func (h *CommandHandler) cmdClear(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if p, ok := h.pm.Peek(i.GuildID); ok {
		p.Clear()
	}
	zlog.Info().Str("guildID", i.GuildID).Str("userID", userIDOf(i)).Msg("cmd clear queue")
	h.reply(s, i, "Queue cleared.", false)
}

func (h *CommandHandler) cmdShowQueue(s *discordgo.Session, i *discordgo.InteractionCreate) {
	page := 1
	for _, o := range i.ApplicationCommandData().Options {
		if o.Name == "page" {
			page = int(o.IntValue())
		}
	}
	p, ok := h.pm.Peek(i.GuildID)
	if !ok {
		h.reply(s, i, "Queue is empty.", false)
		return
	}
	embed, err := ui.BuildQueueEmbed(ui.QueueView{
		Entries:   p.Queue(),
		State:     p.State(),
		Importing: p.Importing(),
	}, page, defaultPageLen)
	if err != nil {
		if len(p.Queue()) == 0 {
			h.reply(s, i, "Queue is empty.", false)
			return
		}
		h.reply(s, i, err.Error(), true)
		return
	}
	if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Embeds: []*discordgo.MessageEmbed{embed}},
	}); err != nil {
		zlog.Warn().Err(err).Str("guildID", i.GuildID).Msg("queue respond failed")
	}
}

func (h *CommandHandler) cmdNowPlaying(s *discordgo.Session, i *discordgo.InteractionCreate) {
	var (
		cur   player.Entry
		ok    bool
		state = player.StateIdle
	)
	if p, found := h.pm.Peek(i.GuildID); found {
		t, playing := p.Current()
		cur = player.Entry{Title: t.Title, CanonicalURL: t.CanonicalURL, Current: true}
		ok = playing
		state = p.State()
	}
	if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Embeds: []*discordgo.MessageEmbed{ui.BuildPlayingEmbed(cur, ok, state)}},
	}); err != nil {
		zlog.Warn().Err(err).Str("guildID", i.GuildID).Msg("now-playing respond failed")
	}
}

func userInVoice(s *discordgo.Session, guildID, userID string) (channelID string, ok bool) {
	g, _ := s.State.Guild(guildID)
	if g == nil {
		return "", false
	}
	return voiceChannelOf(g.VoiceStates, userID)
}

func voiceChannelOf(states []*discordgo.VoiceState, userID string) (string, bool) {
	for _, vs := range states {
		if vs.UserID == userID && vs.ChannelID != "" {
			return vs.ChannelID, true
		}
	}
	return "", false
}

func userIDOf(i *discordgo.InteractionCreate) string {
	switch {
	case i == nil:
		return ""
	case i.Member != nil && i.Member.User != nil:
		return i.Member.User.ID
	case i.User != nil:
		return i.User.ID
	}
	return ""
}

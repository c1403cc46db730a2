package ui

import (
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/cockroachdb/errors"

	"github.com/sonroyaalmerol/maobot/internal/player"
	"github.com/sonroyaalmerol/maobot/internal/utils"
)

const (
	colorPlaying = 0x006400
	colorPaused  = 0x8B0000
	colorEmpty   = 0x992222

	maxTitle = 80
)

// QueueView is what the queue embed renders.
type QueueView struct {
	Entries   []player.Entry
	State     player.State
	Importing bool
}

func songLink(e player.Entry) string {
	title := utils.EscapeMd(utils.Truncate(e.Title, maxTitle))
	if e.CanonicalURL == "" {
		return title
	}
	return fmt.Sprintf("[%s](%s)", title, e.CanonicalURL)
}

func BuildPlayingEmbed(cur player.Entry, ok bool, state player.State) *discordgo.MessageEmbed {
	if !ok {
		return &discordgo.MessageEmbed{
			Title:       "Nothing Playing",
			Description: "No playing song found",
			Color:       colorEmpty,
		}
	}
	title, color, button := "Now Playing", colorPlaying, "▶️"
	if state == player.StatePaused {
		title, color, button = "Paused", colorPaused, "⏸️"
	}
	return &discordgo.MessageEmbed{
		Title:       title,
		Description: fmt.Sprintf("%s **%s**", button, songLink(cur)),
		Color:       color,
	}
}

// BuildQueueEmbed renders one page (1-based) of the queue. The current
// track, if any, heads every page.
func BuildQueueEmbed(v QueueView, page, pageSize int) (*discordgo.MessageEmbed, error) {
	if pageSize <= 0 {
		pageSize = 10
	}
	var cur *player.Entry
	pending := v.Entries
	if len(pending) > 0 && pending[0].Current {
		cur = &pending[0]
		pending = pending[1:]
	}
	if cur == nil && len(pending) == 0 {
		return nil, errors.New("queue is empty")
	}

	maxPage := max(1, (len(pending)+pageSize-1)/pageSize)
	if page < 1 || page > maxPage {
		return nil, errors.New("the queue isn't that big")
	}
	begin := (page - 1) * pageSize
	end := min(begin+pageSize, len(pending))

	var b strings.Builder
	if cur != nil {
		fmt.Fprintf(&b, "**%s**\n\n", songLink(*cur))
	}
	if v.Importing {
		b.WriteString("Note: still resolving more items… they will appear here as they're ready.\n\n")
	}
	if end > begin {
		b.WriteString("**Up next:**\n")
		for i, e := range pending[begin:end] {
			fmt.Fprintf(&b, "`%d.` %s\n", begin+i+1, songLink(e))
		}
	}

	title, color := "Queue", colorPlaying
	switch v.State {
	case player.StatePlaying:
		title = "Now Playing"
	case player.StatePaused:
		title, color = "Paused", colorPaused
	}

	resolving := "No"
	if v.Importing {
		resolving = "Yes"
	}
	return &discordgo.MessageEmbed{
		Title:       title,
		Description: b.String(),
		Color:       color,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "In queue", Value: queueInfo(len(pending)), Inline: true},
			{Name: "Page", Value: fmt.Sprintf("%d out of %d", page, maxPage), Inline: true},
			{Name: "Resolving", Value: resolving, Inline: true},
		},
	}, nil
}

func queueInfo(n int) string {
	switch n {
	case 0:
		return "-"
	case 1:
		return "1 song"
	}
	return fmt.Sprintf("%d songs", n)
}

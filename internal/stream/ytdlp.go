package stream

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	ytdlp "github.com/lrstanley/go-ytdlp"
	zlog "github.com/rs/zerolog/log"

	"github.com/sonroyaalmerol/maobot/internal/resolve"
	"github.com/sonroyaalmerol/maobot/internal/track"
)

const audioFormat = "ba[acodec^=opus]/ba[ext=m4a]/bestaudio/best"

type Options struct {
	CookiesPath  string
	POToken      string
	SearchSource string // youtube, ytmusic or ytdlp
}

// Backend talks to yt-dlp and the YouTube search clients. It satisfies
// resolve.VideoBackend.
type Backend struct {
	opts        Options
	installOnce sync.Once
}

func NewBackend(opts Options) *Backend {
	if opts.SearchSource == "" {
		opts.SearchSource = "youtube"
	}
	return &Backend{opts: opts}
}

// printTemplate makes yt-dlp emit one tab-separated line per video instead
// of the full JSON document.
const printTemplate = "%(id)s\t%(title)s\t%(webpage_url)s\t%(url)s"

type info struct {
	ID         string
	Title      string
	WebpageURL string
	URL        string
}

func (b *Backend) ensureInstalled(ctx context.Context) {
	b.installOnce.Do(func() {
		if _, err := ytdlp.Install(ctx, nil); err != nil {
			zlog.Warn().Err(err).Msg("yt-dlp install failed, relying on PATH")
		}
	})
}

// command returns a yt-dlp invocation with cookies and YouTube extractor
// arguments applied for target.
func (b *Backend) command(target string) *ytdlp.Command {
	cmd := ytdlp.New().
		NoWarnings().
		NoCheckCertificates()

	if b.opts.CookiesPath != "" {
		cmd = cmd.Cookies(b.opts.CookiesPath)
	}
	if args := extractorArgs(target, b.opts.POToken); args != "" {
		cmd = cmd.ExtractorArgs(args)
	}
	return cmd
}

func extractorArgs(target, poToken string) string {
	if !isYouTube(target) {
		return ""
	}
	args := "youtube:player-client=default,mweb"
	if poToken != "" {
		args += ";po_token=" + poToken
	}
	return args
}

func isYouTube(target string) bool {
	t := strings.ToLower(target)
	return strings.Contains(t, "youtube.com") || strings.Contains(t, "youtu.be") || strings.HasPrefix(t, "ytsearch")
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// searchTarget turns free text into a yt-dlp search expression.
func searchTarget(q string, n int) string {
	if n <= 1 {
		return "ytsearch1:" + q
	}
	return "ytsearch" + strconv.Itoa(n) + ":" + q
}

// Extract resolves a URL, or the best match for free text, to a playable
// track.
func (b *Backend) Extract(ctx context.Context, urlOrQuery string) (track.Track, error) {
	b.ensureInstalled(ctx)

	target := urlOrQuery
	if !isURL(target) {
		if b.opts.SearchSource == "ytmusic" {
			if hits, err := searchYTMusic(urlOrQuery, 1); err == nil && len(hits) > 0 {
				target = hits[0].CanonicalURL
			}
		}
		if !isURL(target) {
			target = searchTarget(urlOrQuery, 1)
		}
	}

	res, err := b.command(target).
		Format(audioFormat).
		NoPlaylist().
		Print(printTemplate).
		Run(ctx, target)
	if err != nil {
		return track.Track{}, wrapRunError(err, target)
	}

	in, ok := parseInfo(res.Stdout)
	if !ok {
		return track.Track{}, resolve.ErrNoResults
	}
	if !strings.HasPrefix(in.URL, "http") {
		return track.Track{}, errors.Wrapf(resolve.ErrNoResults, "no audio format for %s", target)
	}
	return track.Track{
		StreamURL:    in.URL,
		Title:        in.Title,
		CanonicalURL: canonicalURL(in, target),
		ResolvedAt:   time.Now(),
	}, nil
}

func wrapRunError(err error, target string) error {
	if strings.Contains(err.Error(), "Sign in to confirm") {
		return errors.Wrapf(err, "yt-dlp %s (PO token or cookies may be required)", target)
	}
	return errors.Wrapf(err, "yt-dlp %s", target)
}

// parseInfo reads the first complete line printed with printTemplate.
func parseInfo(stdout string) (info, bool) {
	for _, line := range strings.Split(strings.TrimSpace(stdout), "\n") {
		ps := strings.Split(strings.TrimRight(line, "\r"), "\t")
		if len(ps) < 4 {
			continue
		}
		return info{ID: na(ps[0]), Title: na(ps[1]), WebpageURL: na(ps[2]), URL: na(ps[3])}, true
	}
	return info{}, false
}

func canonicalURL(in info, target string) string {
	switch {
	case in.WebpageURL != "":
		return in.WebpageURL
	case in.ID != "" && isYouTube(target):
		return "https://www.youtube.com/watch?v=" + in.ID
	case isURL(target):
		return target
	}
	return ""
}

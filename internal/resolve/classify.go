package resolve

import (
	"net/url"
	"strings"

	"github.com/cockroachdb/errors"
)

type Kind int

const (
	KindSearch Kind = iota
	KindVideo
	KindVideoPlaylist
	KindCatalogTrack
	KindCatalogPlaylist
	KindCatalogAlbum
	KindCatalogArtist
)

func (k Kind) String() string {
	switch k {
	case KindSearch:
		return "search"
	case KindVideo:
		return "video"
	case KindVideoPlaylist:
		return "video playlist"
	case KindCatalogTrack:
		return "catalog track"
	case KindCatalogPlaylist:
		return "catalog playlist"
	case KindCatalogAlbum:
		return "catalog album"
	case KindCatalogArtist:
		return "catalog artist"
	default:
		return "unknown"
	}
}

// IsPlaylist reports whether inputs of this kind expand to many tracks.
func (k Kind) IsPlaylist() bool {
	switch k {
	case KindVideoPlaylist, KindCatalogPlaylist, KindCatalogAlbum, KindCatalogArtist:
		return true
	}
	return false
}

// IsCatalog reports whether the kind needs the catalog backend.
func (k Kind) IsCatalog() bool {
	switch k {
	case KindCatalogTrack, KindCatalogPlaylist, KindCatalogAlbum, KindCatalogArtist:
		return true
	}
	return false
}

// Target is a classified user input. ID is set for catalog kinds; Err is
// set when a catalog link could not be parsed.
type Target struct {
	Kind  Kind
	Input string
	ID    string
	Err   error
}

// Classify checks catalog links first, then direct video URLs, and treats
// everything else as a free-text search.
func Classify(input string) Target {
	q := strings.TrimSpace(input)
	t := Target{Kind: KindSearch, Input: q}

	if isCatalog(q) {
		typ, id, err := parseCatalog(q)
		if err != nil {
			// a malformed catalog link is not a useful search query either
			t.Kind = KindCatalogTrack
			t.Err = err
			return t
		}
		t.ID = id
		switch typ {
		case "track":
			t.Kind = KindCatalogTrack
		case "playlist":
			t.Kind = KindCatalogPlaylist
		case "album":
			t.Kind = KindCatalogAlbum
		case "artist":
			t.Kind = KindCatalogArtist
		}
		return t
	}

	if strings.HasPrefix(q, "http://") || strings.HasPrefix(q, "https://") {
		t.Kind = KindVideo
		if isPlaylistURL(q) {
			t.Kind = KindVideoPlaylist
		}
	}
	return t
}

func isCatalog(q string) bool {
	if strings.HasPrefix(q, "spotify:") {
		return true
	}
	u, err := url.Parse(q)
	if err != nil {
		return false
	}
	return u.Host == "open.spotify.com" || u.Host == "www.open.spotify.com"
}

// parseCatalog accepts spotify:<type>:<id> URIs and open.spotify.com links,
// including localized /intl-xx/ paths.
func parseCatalog(raw string) (typ, id string, err error) {
	if strings.HasPrefix(raw, "spotify:") {
		parts := strings.Split(raw, ":")
		if len(parts) != 3 || parts[2] == "" {
			return "", "", errors.Newf("invalid spotify URI %q", raw)
		}
		typ, id = parts[1], parts[2]
	} else {
		u, perr := url.Parse(raw)
		if perr != nil {
			return "", "", errors.Wrap(perr, "parse spotify URL")
		}
		parts := strings.Split(strings.Trim(u.Path, "/"), "/")
		if len(parts) > 0 && strings.HasPrefix(parts[0], "intl-") {
			parts = parts[1:]
		}
		if len(parts) < 2 || parts[1] == "" {
			return "", "", errors.Newf("invalid spotify URL path %q", u.Path)
		}
		typ, id = parts[0], parts[1]
	}

	switch typ {
	case "track", "playlist", "album", "artist":
		return typ, id, nil
	}
	return "", "", errors.Newf("unsupported spotify type %q", typ)
}

func isPlaylistURL(q string) bool {
	u, err := url.Parse(q)
	if err != nil {
		return false
	}
	if u.Query().Get("list") != "" {
		return true
	}
	return strings.HasPrefix(u.Path, "/playlist")
}

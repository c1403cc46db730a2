package utils

import (
	"fmt"
	"maps"
	"math/rand/v2"
	"net/textproto"
	"slices"
	"strings"
)

var defaultMediaHeaders = map[string]string{
	"Referer":         "https://www.youtube.com/",
	"Origin":          "https://www.youtube.com",
	"Accept":          "*/*",
	"Accept-Language": "en-US,en;q=0.9",
	"Connection":      "keep-alive",
}

// RandomUserAgent returns a recent desktop Chrome user agent.
func RandomUserAgent() string {
	major := 132 + rand.IntN(7)
	return fmt.Sprintf("Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/%d.0.0.0 Safari/537.36", major)
}

// BuildFFmpegHeaders renders headers for the libavformat "headers" option.
// Keys are canonicalised; browser-like defaults fill whatever extra omits.
func BuildFFmpegHeaders(extra map[string]string) string {
	h := make(map[string]string, len(extra)+len(defaultMediaHeaders)+1)
	for k, v := range defaultMediaHeaders {
		h[k] = v
	}
	h["User-Agent"] = RandomUserAgent()
	for k, v := range extra {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		h[textproto.CanonicalMIMEHeaderKey(k)] = strings.TrimSpace(v)
	}

	var b strings.Builder
	for _, k := range slices.Sorted(maps.Keys(h)) {
		fmt.Fprintf(&b, "%s: %s\r\n", k, h[k])
	}
	return b.String()
}

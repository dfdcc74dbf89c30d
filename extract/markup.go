// Package extract holds the pure markup extractors used by the resolver.
//
// Every function here is total: malformed or unrelated input yields the
// "not found" result, never an error or a panic.
package extract

import (
	"net/url"
	"regexp"
	"strings"
)

var (
	// reWatchPath matches a watch path carrying an 11-character video id.
	reWatchPath = regexp.MustCompile(`/watch\?v=([\w-]{11})`)

	// reManifest matches the embedded player-response field holding the HLS
	// playlist. The URL may carry a query string after the .m3u8 suffix.
	reManifest = regexp.MustCompile(`"hlsManifestUrl":"([^"]+?\.m3u8[^"]*)"`)

	reVideoID = regexp.MustCompile(`^[\w-]{11}$`)
)

// LiveVideoID returns the first video id referenced by a watch path in html.
func LiveVideoID(html string) (string, bool) {
	m := reWatchPath.FindStringSubmatch(html)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// ManifestURL returns the first embedded hlsManifestUrl in html, unescaped
// into a directly usable URL.
func ManifestURL(html string) (string, bool) {
	m := reManifest.FindStringSubmatch(html)
	if m == nil {
		return "", false
	}
	return UnescapeManifestURL(m[1]), true
}

// UnescapeManifestURL undoes the JSON-string escaping found in page markup:
// \u0026 becomes & and every remaining backslash is dropped.
func UnescapeManifestURL(s string) string {
	s = strings.ReplaceAll(s, `\u0026`, "&")
	return strings.ReplaceAll(s, `\`, "")
}

// IsVideoID reports whether s has the platform's fixed-length id shape.
func IsVideoID(s string) bool {
	return reVideoID.MatchString(s)
}

// VideoIDFromURL pulls the video id out of a watch URL
// (https://host/watch?v=ID), a live-chat URL (https://host/live_chat?v=ID)
// or a live permalink (https://host/live/ID). Relative URLs are accepted.
func VideoIDFromURL(rawURL string) (string, bool) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", false
	}

	switch {
	case u.Path == "/watch", u.Path == "/live_chat":
		if v := u.Query().Get("v"); IsVideoID(v) {
			return v, true
		}
	case strings.HasPrefix(u.Path, "/live/"):
		if v := strings.TrimPrefix(u.Path, "/live/"); IsVideoID(v) {
			return v, true
		}
	}
	return "", false
}

package resolver

import (
	"net/url"
	"strings"
)

// NormalizeHandle trims surrounding whitespace and strips exactly one leading
// "@". ok is false when nothing is left.
func NormalizeHandle(raw string) (handle string, ok bool) {
	handle = strings.TrimPrefix(strings.TrimSpace(raw), "@")
	return handle, handle != ""
}

// LiveURL is the channel's live-status page: <base>/@<handle>/live.
func LiveURL(base, handle string) string {
	return strings.TrimRight(base, "/") + "/@" + url.PathEscape(handle) + "/live"
}

// WatchURL is the watch page of one video: <base>/watch?v=<id>.
func WatchURL(base, videoID string) string {
	return strings.TrimRight(base, "/") + "/watch?v=" + url.QueryEscape(videoID)
}

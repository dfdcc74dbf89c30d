// Package player asks the platform's player API for a video's HLS manifest.
package player

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/kkdai/youtube/v2"
	"github.com/use-agent/livehls/models"
)

// Client wraps the player API client.
type Client struct {
	yt *youtube.Client
}

// New creates a Client. A zero timeout defaults to 15s.
func New(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{yt: &youtube.Client{HTTPClient: &http.Client{Timeout: timeout}}}
}

// ManifestURL returns the HLS manifest the player would use for videoID, or
// "" when the video has none or cannot be played anonymously.
func (c *Client) ManifestURL(ctx context.Context, videoID string) (string, error) {
	video, err := c.yt.GetVideoContext(ctx, videoID)
	if err != nil {
		if unplayable(err) {
			return "", nil
		}
		return "", models.NewResolveError(models.ErrCodeTransport, "player lookup failed for "+videoID, err)
	}
	return video.HLSManifestURL, nil
}

// unplayable reports errors that mean "no stream for anonymous viewers"
// rather than a fault.
func unplayable(err error) bool {
	switch {
	case errors.Is(err, youtube.ErrLoginRequired),
		errors.Is(err, youtube.ErrVideoPrivate),
		errors.Is(err, youtube.ErrNotPlayableInEmbed):
		return true
	}
	var statusErr *youtube.ErrPlayabiltyStatus
	return errors.As(err, &statusErr)
}

// Package probe checks that an HLS playlist still describes a running
// broadcast.
package probe

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"github.com/grafov/m3u8"
	"github.com/use-agent/livehls/engine"
	"github.com/use-agent/livehls/models"
)

// maxPlaylist caps how much of a playlist is read.
const maxPlaylist = 2 << 20

// Prober downloads playlists and inspects them.
type Prober struct {
	client  *http.Client
	timeout time.Duration
}

// New creates a Prober. A nil client uses http.DefaultClient.
func New(client *http.Client, timeout time.Duration) *Prober {
	if client == nil {
		client = http.DefaultClient
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Prober{client: client, timeout: timeout}
}

// Live fetches manifestURL and reports whether it is a live playlist.
// Transport faults and non-2xx statuses are errors; a body that does not
// decode as a playlist is simply not live.
func (p *Prober) Live(ctx context.Context, manifestURL string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, manifestURL, nil)
	if err != nil {
		return false, models.NewResolveError(models.ErrCodeTransport, "build playlist request", err)
	}
	req.Header.Set("User-Agent", engine.ChromeUA)
	req.Header.Set("Accept", "application/vnd.apple.mpegurl, */*")

	resp, err := p.client.Do(req)
	if err != nil {
		code := models.ErrCodeTransport
		if ctx.Err() != nil {
			code = models.ErrCodeTimeout
		}
		return false, models.NewResolveError(code, "failed to fetch playlist", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return false, models.NewStatusError(resp.StatusCode, manifestURL)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPlaylist))
	if err != nil {
		return false, models.NewResolveError(models.ErrCodeTransport, "failed to read playlist", err)
	}
	return IsLive(body), nil
}

// IsLive reports whether body is a master playlist with at least one variant
// or a media playlist without EXT-X-ENDLIST.
func IsLive(body []byte) bool {
	playlist, listType, err := m3u8.DecodeFrom(bytes.NewReader(body), false)
	if err != nil {
		return false
	}

	switch listType {
	case m3u8.MASTER:
		master, ok := playlist.(*m3u8.MasterPlaylist)
		return ok && len(master.Variants) > 0
	case m3u8.MEDIA:
		media, ok := playlist.(*m3u8.MediaPlaylist)
		return ok && !media.Closed
	}
	return false
}

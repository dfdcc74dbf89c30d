package scraper

import (
	"context"
	"fmt"
	"testing"

	"github.com/go-rod/rod/lib/proto"
	"github.com/stretchr/testify/assert"
	"github.com/use-agent/livehls/models"
)

func TestIsTrackerHost(t *testing.T) {
	tests := []struct {
		host string
		want bool
	}{
		{"doubleclick.net", true},
		{"static.doubleclick.net", true},
		{"pagead2.GoogleSyndication.com", true},
		{"www.youtube.com", false},
		{"i.ytimg.com", false},
		{"net", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, isTrackerHost(tt.host), tt.host)
	}
}

func TestBlockedTypeSetIgnoresUnknown(t *testing.T) {
	set := blockedTypeSet([]string{"Image", "Script", "Bogus", "Font"})
	assert.Len(t, set, 2)
	assert.Contains(t, set, proto.NetworkResourceTypeImage)
	assert.Contains(t, set, proto.NetworkResourceTypeFont)
}

func TestShouldBlock(t *testing.T) {
	blocked := blockedTypeSet([]string{"Image", "Media"})

	assert.True(t, shouldBlock(proto.NetworkResourceTypeImage, "https://i.ytimg.com/x.jpg", blocked, false))
	assert.False(t, shouldBlock(proto.NetworkResourceTypeScript, "https://www.youtube.com/s/player.js", blocked, true))
	assert.True(t, shouldBlock(proto.NetworkResourceTypeScript, "https://www.googletagmanager.com/gtm.js", blocked, true))
	assert.False(t, shouldBlock(proto.NetworkResourceTypeScript, "https://www.googletagmanager.com/gtm.js", blocked, false))
	assert.False(t, shouldBlock(proto.NetworkResourceTypeDocument, "https://doubleclick.net/", blocked, true),
		"documents are never blocked")
}

func TestCategorizeError(t *testing.T) {
	assert.Equal(t, models.ErrCodeTimeout, categorizeError(fmt.Errorf("wait: %w", context.DeadlineExceeded), "x").Code)
	assert.Equal(t, models.ErrCodeNavigation, categorizeError(assert.AnError, "x").Code)

	status := models.NewStatusError(503, "https://v.example/watch")
	assert.Same(t, status, categorizeError(fmt.Errorf("wrapped: %w", status), "x"), "typed errors pass through")
}

package resolver

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/livehls/config"
	"github.com/use-agent/livehls/engine"
	"github.com/use-agent/livehls/models"
)

const (
	liveURL  = base + "/@example/live"
	watchURL = base + "/watch?v=abcdefghijk"

	livePage    = `<html><body><a href="/watch?v=abcdefghijk">Live now</a></body></html>`
	offlinePage = `<html><body><a href="/@example/videos">Videos</a></body></html>`
	watchPage   = `<html><head><title>Launch stream</title></head><script>var p = {"hlsManifestUrl":"https:\/\/cdn.example\/live.m3u8?a=1\u0026b=2"};</script></html>`
	noHLSPage   = `<html><script>var p = {"dashManifestUrl":"https://cdn.example/live.mpd"};</script></html>`
)

func testConfig(policy string) Config {
	return Config{PlatformURL: base, OfflinePolicy: policy, StaticTimeout: time.Second, ResolveTimeout: 5 * time.Second}
}

func TestResolveRedirectOnStaticTier(t *testing.T) {
	static := newStatic(map[string]fakePage{
		liveURL:  {html: livePage},
		watchURL: {html: watchPage},
	})
	rendered := newRendered(nil)
	rec := &Recorder{}

	out := New(testConfig(config.OfflinePolicyOffline), static, rendered, WithObserver(rec)).
		Resolve(context.Background(), "@example")

	require.Equal(t, KindRedirect, out.Kind)
	assert.Equal(t, "https://cdn.example/live.m3u8?a=1&b=2", out.URL)
	assert.Equal(t, "example", out.Handle)
	assert.Equal(t, "abcdefghijk", out.VideoID)
	assert.Equal(t, watchURL, out.VideoURL)
	assert.Equal(t, engine.TierStatic, out.Tier)
	assert.Equal(t, "Launch stream", out.Title)

	assert.Equal(t, []string{liveURL, watchURL}, static.Fetched(), "fetches are sequential: live page, then watch page")
	assert.Zero(t, rendered.opened)
	assert.Equal(t, []Stage{
		StageFetchAttempted, StageExtraction,
		StageFetchAttempted, StageExtraction,
		StageOutcome,
	}, rec.Stages())
}

func TestResolveOfflineIsNotAnError(t *testing.T) {
	static := newStatic(map[string]fakePage{liveURL: {html: offlinePage}})
	rendered := newRendered(nil)

	out := New(testConfig(config.OfflinePolicyOffline), static, rendered).Resolve(context.Background(), "example")

	assert.Equal(t, KindOffline, out.Kind)
	assert.Nil(t, out.Err)
	assert.True(t, out.Negative())
	assert.Zero(t, rendered.opened, "offline policy never consults the browser")
}

func TestResolveLiveFetchFaultWithoutBrowser(t *testing.T) {
	static := newStatic(map[string]fakePage{liveURL: {err: models.NewStatusError(429, liveURL)}})

	out := New(testConfig(config.OfflinePolicyOffline), static, nil).Resolve(context.Background(), "example")

	require.Equal(t, KindUpstreamError, out.Kind, "a fetch fault is never reported as offline")
	assert.Equal(t, models.ErrCodeUpstreamStatus, out.Code)
	assert.Equal(t, 429, out.StatusCode)
	assert.Contains(t, out.Detail, liveURL)
}

func TestResolveLiveFetchFaultFallsBackToRendered(t *testing.T) {
	static := newStatic(map[string]fakePage{liveURL: {err: errors.New("connection reset")}})
	rendered := newRendered(map[string]fakePage{
		liveURL:  {html: offlinePage, link: watchURL},
		watchURL: {html: watchPage},
	})
	rec := &Recorder{}

	out := New(testConfig(config.OfflinePolicyOffline), static, rendered, WithObserver(rec)).
		Resolve(context.Background(), "example")

	require.Equal(t, KindRedirect, out.Kind)
	assert.Equal(t, engine.TierRendered, out.Tier)
	assert.Equal(t, "abcdefghijk", out.VideoID)
	assert.Equal(t, []string{liveURL}, static.Fetched(), "the watch page is not retried on the static tier")
	assert.Equal(t, []string{liveURL, watchURL}, rendered.Fetched())
	assert.Equal(t, 1, rendered.opened, "one browser session per resolution")
	assert.Equal(t, []bool{true}, rendered.closedOK)

	var fallback *Event
	for _, e := range rec.Events() {
		if e.Stage == StageFallback {
			fallback = &e
		}
	}
	require.NotNil(t, fallback)
	assert.Equal(t, FallbackStaticFailed, fallback.Reason)
}

func TestResolveVideoWithoutManifest(t *testing.T) {
	static := newStatic(map[string]fakePage{
		liveURL:  {html: livePage},
		watchURL: {html: noHLSPage},
	})

	out := New(testConfig(config.OfflinePolicyOffline), static, nil).Resolve(context.Background(), "example")

	assert.Equal(t, KindNotFound, out.Kind)
	assert.Equal(t, ReasonNoManifest, out.Reason)
	assert.Equal(t, "abcdefghijk", out.VideoID)
	assert.Nil(t, out.Err)
}

func TestResolveMissingHandle(t *testing.T) {
	for _, raw := range []string{"", "   ", "@"} {
		static := newStatic(nil)
		out := New(testConfig(config.OfflinePolicyOffline), static, nil).Resolve(context.Background(), raw)

		assert.Equal(t, KindBadRequest, out.Kind, "handle %q", raw)
		assert.Equal(t, ReasonMissingHandle, out.Reason)
		assert.Empty(t, static.Fetched())
	}
}

func TestResolveRecheckPolicy(t *testing.T) {
	static := newStatic(map[string]fakePage{liveURL: {html: offlinePage}})
	rendered := newRendered(map[string]fakePage{
		liveURL:  {html: livePage},
		watchURL: {html: watchPage},
	})
	rec := &Recorder{}

	out := New(testConfig(config.OfflinePolicyRecheck), static, rendered, WithObserver(rec)).
		Resolve(context.Background(), "example")

	require.Equal(t, KindRedirect, out.Kind)
	assert.Equal(t, engine.TierRendered, out.Tier)
	assert.Contains(t, rec.Stages(), StageFallback)

	reasons := []string{}
	for _, e := range rec.Events() {
		if e.Stage == StageFallback {
			reasons = append(reasons, e.Reason)
		}
	}
	assert.Equal(t, []string{FallbackNoLiveReference}, reasons)
}

func TestResolveRecheckConfirmsOffline(t *testing.T) {
	static := newStatic(map[string]fakePage{liveURL: {html: offlinePage}})
	rendered := newRendered(map[string]fakePage{
		liveURL: {html: offlinePage, link: base + "/@example"},
	})

	out := New(testConfig(config.OfflinePolicyRecheck), static, rendered).Resolve(context.Background(), "example")

	assert.Equal(t, KindOffline, out.Kind)
	assert.Equal(t, engine.TierRendered, out.Tier)
	assert.Equal(t, []bool{true}, rendered.closedOK, "an offline answer leaves the tab healthy")
}

func TestResolveRecheckWithoutBrowserIsOffline(t *testing.T) {
	static := newStatic(map[string]fakePage{liveURL: {html: offlinePage}})

	out := New(testConfig(config.OfflinePolicyRecheck), static, nil).Resolve(context.Background(), "example")

	assert.Equal(t, KindOffline, out.Kind)
}

func TestResolveRenderedFaultReleasesSession(t *testing.T) {
	static := newStatic(map[string]fakePage{liveURL: {err: errors.New("dns failure")}})
	rendered := newRendered(map[string]fakePage{
		liveURL: {err: models.NewResolveError(models.ErrCodeNavigation, "navigation failed", errors.New("net::ERR_ABORTED"))},
	})

	out := New(testConfig(config.OfflinePolicyOffline), static, rendered).Resolve(context.Background(), "example")

	require.Equal(t, KindUpstreamError, out.Kind)
	assert.Equal(t, models.ErrCodeNavigation, out.Code)
	assert.Equal(t, []bool{false}, rendered.closedOK)
	assert.Zero(t, rendered.active)
}

func TestResolveRenderedOpenFailure(t *testing.T) {
	static := newStatic(map[string]fakePage{liveURL: {err: errors.New("dns failure")}})
	rendered := newRendered(nil)
	rendered.openErr = models.NewResolveError(models.ErrCodeBrowserCrash, "failed to acquire browser tab", nil)

	out := New(testConfig(config.OfflinePolicyOffline), static, rendered).Resolve(context.Background(), "example")

	assert.Equal(t, KindUpstreamError, out.Kind)
	assert.Equal(t, models.ErrCodeBrowserCrash, out.Code)
}

func TestResolveVideoFetchFaultDoesNotFallBack(t *testing.T) {
	static := newStatic(map[string]fakePage{
		liveURL:  {html: livePage},
		watchURL: {err: errors.New("connection reset")},
	})
	rendered := newRendered(nil)

	out := New(testConfig(config.OfflinePolicyOffline), static, rendered).Resolve(context.Background(), "example")

	assert.Equal(t, KindUpstreamError, out.Kind)
	assert.Equal(t, "abcdefghijk", out.VideoID)
	assert.Zero(t, rendered.opened)
}

func TestResolveDeadline(t *testing.T) {
	static := newStatic(map[string]fakePage{liveURL: {err: errors.New("blocked")}})
	rendered := newRendered(map[string]fakePage{liveURL: {block: true}})

	cfg := testConfig(config.OfflinePolicyOffline)
	cfg.ResolveTimeout = 50 * time.Millisecond

	start := time.Now()
	out := New(cfg, static, rendered).Resolve(context.Background(), "example")

	assert.Less(t, time.Since(start), 2*time.Second)
	require.Equal(t, KindUpstreamError, out.Kind)
	assert.Equal(t, models.ErrCodeTimeout, out.Code)
	assert.Equal(t, []bool{false}, rendered.closedOK, "the tab is released after a timeout")
}

func TestResolveCallerCancellationReleasesSession(t *testing.T) {
	static := newStatic(map[string]fakePage{liveURL: {err: errors.New("blocked")}})
	rendered := newRendered(map[string]fakePage{liveURL: {block: true}})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	out := New(testConfig(config.OfflinePolicyOffline), static, rendered).Resolve(ctx, "example")

	assert.Equal(t, KindUpstreamError, out.Kind)
	assert.Zero(t, rendered.active)
	assert.Len(t, rendered.closedOK, 1)
}

func TestResolvePlayerFallback(t *testing.T) {
	pages := map[string]fakePage{
		liveURL:  {html: livePage},
		watchURL: {html: noHLSPage},
	}

	lookup := &fakeLookup{manifest: "https://cdn.example/player.m3u8"}
	out := New(testConfig(config.OfflinePolicyOffline), newStatic(pages), nil, WithPlayerFallback(lookup)).
		Resolve(context.Background(), "example")
	assert.Equal(t, KindRedirect, out.Kind)
	assert.Equal(t, "https://cdn.example/player.m3u8", out.URL)
	assert.Equal(t, 1, lookup.calls)

	failing := &fakeLookup{err: errors.New("player api unavailable")}
	out = New(testConfig(config.OfflinePolicyOffline), newStatic(pages), nil, WithPlayerFallback(failing)).
		Resolve(context.Background(), "example")
	assert.Equal(t, KindNotFound, out.Kind, "player faults keep the watch page's answer")
}

func TestResolvePlayerNotConsultedWhenManifestFound(t *testing.T) {
	lookup := &fakeLookup{manifest: "https://cdn.example/player.m3u8"}
	static := newStatic(map[string]fakePage{liveURL: {html: livePage}, watchURL: {html: watchPage}})

	out := New(testConfig(config.OfflinePolicyOffline), static, nil, WithPlayerFallback(lookup)).
		Resolve(context.Background(), "example")

	assert.Equal(t, KindRedirect, out.Kind)
	assert.Zero(t, lookup.calls)
}

func TestResolveProbe(t *testing.T) {
	pages := map[string]fakePage{liveURL: {html: livePage}, watchURL: {html: watchPage}}

	out := New(testConfig(config.OfflinePolicyOffline), newStatic(pages), nil, WithProbe(fakeProbe{live: false})).
		Resolve(context.Background(), "example")
	assert.Equal(t, KindNotFound, out.Kind)
	assert.Equal(t, ReasonNotLive, out.Reason)

	out = New(testConfig(config.OfflinePolicyOffline), newStatic(pages), nil, WithProbe(fakeProbe{err: errors.New("cdn down")})).
		Resolve(context.Background(), "example")
	assert.Equal(t, KindUpstreamError, out.Kind)

	out = New(testConfig(config.OfflinePolicyOffline), newStatic(pages), nil, WithProbe(fakeProbe{live: true})).
		Resolve(context.Background(), "example")
	assert.Equal(t, KindRedirect, out.Kind)
}

func TestResolveConcurrentRequestsAreIndependent(t *testing.T) {
	static := newStatic(map[string]fakePage{liveURL: {err: errors.New("blocked")}})
	rendered := newRendered(map[string]fakePage{
		liveURL:  {html: livePage},
		watchURL: {html: watchPage},
	})
	r := New(testConfig(config.OfflinePolicyOffline), static, rendered)

	done := make(chan Outcome)
	for i := 0; i < 8; i++ {
		go func() { done <- r.Resolve(context.Background(), "example") }()
	}
	for i := 0; i < 8; i++ {
		assert.Equal(t, KindRedirect, (<-done).Kind)
	}
	assert.Equal(t, 8, rendered.opened, "each resolution opens its own session")
	assert.Zero(t, rendered.active)
}

const uploadsPage = `<html><head><link rel="canonical" href="https://v.example/@example"></head>` +
	`<body><a href="/watch?v=VODVODVODVO">Yesterday's stream</a></body></html>`

func TestResolveRenderedCanonicalChannelIsOffline(t *testing.T) {
	static := newStatic(map[string]fakePage{liveURL: {html: offlinePage}})
	rendered := newRendered(map[string]fakePage{
		liveURL: {html: uploadsPage, link: base + "/@example"},
	})

	out := New(testConfig(config.OfflinePolicyRecheck), static, rendered).Resolve(context.Background(), "example")

	assert.Equal(t, KindOffline, out.Kind)
	assert.Empty(t, out.VideoID)
	assert.Equal(t, []string{liveURL}, rendered.Fetched(), "past uploads are not followed")
	assert.Equal(t, []bool{true}, rendered.closedOK)
}

func TestResolveRenderedFaultFallbackHonoursCanonical(t *testing.T) {
	static := newStatic(map[string]fakePage{liveURL: {err: errors.New("connection reset")}})
	rendered := newRendered(map[string]fakePage{
		liveURL: {html: uploadsPage, link: base + "/@example"},
	})

	out := New(testConfig(config.OfflinePolicyOffline), static, rendered).Resolve(context.Background(), "example")

	assert.Equal(t, KindOffline, out.Kind)
	assert.Equal(t, []string{liveURL}, rendered.Fetched())
}

func TestResolveLiveSelector(t *testing.T) {
	cfg := testConfig(config.OfflinePolicyRecheck)
	cfg.LiveSelector = `a.live-chat`

	static := newStatic(map[string]fakePage{liveURL: {html: offlinePage}})
	rendered := newRendered(map[string]fakePage{
		liveURL:  {html: uploadsPage, selected: base + "/live_chat?is_popout=1&v=abcdefghijk"},
		watchURL: {html: watchPage},
	})

	out := New(cfg, static, rendered).Resolve(context.Background(), "example")

	require.Equal(t, KindRedirect, out.Kind)
	assert.Equal(t, "abcdefghijk", out.VideoID)
	reqs := rendered.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, engine.ReadSelectorHref, reqs[0].Directive)
	assert.Equal(t, `a.live-chat`, reqs[0].Selector)
}

func TestResolveLiveSelectorMissFallsBackToCanonical(t *testing.T) {
	cfg := testConfig(config.OfflinePolicyRecheck)
	cfg.LiveSelector = `a.live-chat`

	static := newStatic(map[string]fakePage{liveURL: {html: offlinePage}})
	rendered := newRendered(map[string]fakePage{
		liveURL: {html: uploadsPage},
	})

	out := New(cfg, static, rendered).Resolve(context.Background(), "example")

	assert.Equal(t, KindOffline, out.Kind, "the canonical link in the markup names the channel")
	assert.Equal(t, []string{liveURL}, rendered.Fetched())
}

func TestRenderedReference(t *testing.T) {
	tests := []struct {
		name      string
		res       engine.FetchResult
		directive engine.Directive
		want      string
		wantOK    bool
	}{
		{"canonical watch", engine.FetchResult{Link: watchURL, HTML: uploadsPage}, engine.ReadCanonical, "abcdefghijk", true},
		{"canonical channel", engine.FetchResult{Link: base + "/@example", HTML: uploadsPage}, engine.ReadCanonical, "", false},
		{"no canonical", engine.FetchResult{HTML: livePage}, engine.ReadCanonical, "abcdefghijk", true},
		{"selector hit", engine.FetchResult{Link: "/live_chat?v=abcdefghijk", HTML: uploadsPage}, engine.ReadSelectorHref, "abcdefghijk", true},
		{"selector miss, markup canonical", engine.FetchResult{HTML: uploadsPage}, engine.ReadSelectorHref, "", false},
		{"selector miss, no canonical", engine.FetchResult{HTML: livePage}, engine.ReadSelectorHref, "abcdefghijk", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := tt.res
			got, ok := renderedReference(&res, tt.directive)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

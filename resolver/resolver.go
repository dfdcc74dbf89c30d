// Package resolver decides, for one channel handle, whether the channel is
// live and which HLS manifest plays it.
//
// A resolution walks Start → FetchingLivePage → (LiveVideoFound | Offline) →
// FetchingVideoPage → (ManifestFound | NotFound) → Done. Pages are fetched
// by the static tier first; the rendered tier takes over the whole
// resolution when the static tier faults, or when the offline policy asks
// for a browser re-check. Tiers never run concurrently.
package resolver

import (
	"context"
	"errors"
	"time"

	"github.com/use-agent/livehls/config"
	"github.com/use-agent/livehls/engine"
	"github.com/use-agent/livehls/extract"
)

// Config controls a Resolver.
type Config struct {
	// PlatformURL is the scheme and host the live and watch pages live on.
	PlatformURL string

	// OfflinePolicy is config.OfflinePolicyOffline or
	// config.OfflinePolicyRecheck.
	OfflinePolicy string

	// StaticTimeout bounds each static fetch.
	StaticTimeout time.Duration

	// ResolveTimeout bounds the whole resolution.
	ResolveTimeout time.Duration

	// LiveSelector, when set, selects an element of the rendered live page
	// whose href names the broadcast (a watch or live-chat link). It is
	// read before the canonical link.
	LiveSelector string
}

// ConfigFrom extracts the resolver settings from the application config.
func ConfigFrom(c config.ResolverConfig) Config {
	return Config{
		PlatformURL:    c.PlatformURL,
		OfflinePolicy:  c.OfflinePolicy,
		StaticTimeout:  c.StaticTimeout,
		ResolveTimeout: c.ResolveTimeout,
		LiveSelector:   c.LiveSelector,
	}
}

// ManifestLookup asks a secondary source for a video's manifest URL.
// An empty string with a nil error means the source has none.
type ManifestLookup interface {
	ManifestURL(ctx context.Context, videoID string) (string, error)
}

// ManifestProbe checks that a manifest still describes a running broadcast.
type ManifestProbe interface {
	Live(ctx context.Context, manifestURL string) (bool, error)
}

// Resolver is safe for concurrent use. It holds no per-request state.
type Resolver struct {
	cfg      Config
	static   engine.Engine
	rendered engine.Engine
	observer Observer
	player   ManifestLookup
	probe    ManifestProbe
}

// Option configures optional collaborators.
type Option func(*Resolver)

// WithObserver sets the event observer.
func WithObserver(o Observer) Option {
	return func(r *Resolver) { r.observer = o }
}

// WithPlayerFallback consults lookup when a watch page has no manifest.
func WithPlayerFallback(lookup ManifestLookup) Option {
	return func(r *Resolver) { r.player = lookup }
}

// WithProbe verifies every found manifest with probe before redirecting.
func WithProbe(probe ManifestProbe) Option {
	return func(r *Resolver) { r.probe = probe }
}

// New creates a Resolver. rendered may be nil, in which case the browser
// tier is unavailable.
func New(cfg Config, static, rendered engine.Engine, opts ...Option) *Resolver {
	if cfg.OfflinePolicy == "" {
		cfg.OfflinePolicy = config.OfflinePolicyOffline
	}
	if cfg.StaticTimeout <= 0 {
		cfg.StaticTimeout = 10 * time.Second
	}
	if cfg.ResolveTimeout <= 0 {
		cfg.ResolveTimeout = 45 * time.Second
	}
	r := &Resolver{
		cfg:      cfg,
		static:   static,
		rendered: rendered,
		observer: ObserverFunc(func(Event) {}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RenderedAvailable reports whether a browser tier is configured.
func (r *Resolver) RenderedAvailable() bool {
	return r.rendered != nil
}

// Resolve produces exactly one Outcome for rawHandle. It never returns an
// error: faults are reported as KindUpstreamError.
func (r *Resolver) Resolve(ctx context.Context, rawHandle string) Outcome {
	start := time.Now()

	handle, ok := NormalizeHandle(rawHandle)
	var out Outcome
	if !ok {
		out = badRequest(ReasonMissingHandle)
	} else {
		ctx, cancel := context.WithTimeout(ctx, r.cfg.ResolveTimeout)
		out = r.resolve(ctx, handle)
		cancel()
	}
	out.Handle = handle

	r.observer.Observe(Event{
		Stage:    StageOutcome,
		Handle:   handle,
		Tier:     out.Tier,
		URL:      out.URL,
		VideoID:  out.VideoID,
		Reason:   out.Reason,
		Outcome:  out.Kind,
		Err:      out.Err,
		Duration: time.Since(start),
	})
	return out
}

func (r *Resolver) resolve(ctx context.Context, handle string) Outcome {
	liveURL := LiveURL(r.cfg.PlatformURL, handle)

	// ── 1. Static live page ───────────────────────────────────────────
	sess, err := r.static.Open(ctx)
	if err != nil {
		r.emit(Event{Stage: StageFallback, Handle: handle, Tier: engine.TierStatic, Reason: FallbackStaticFailed, Err: err})
		return r.resolveRendered(ctx, handle, liveURL, err)
	}
	defer sess.Close(true)

	res, err := r.fetch(ctx, handle, r.static, sess, &engine.FetchRequest{
		URL:       liveURL,
		Directive: engine.ReadHTML,
	})
	if err != nil {
		// A fetch fault says nothing about liveness.
		r.emit(Event{Stage: StageFallback, Handle: handle, Tier: engine.TierStatic, Reason: FallbackStaticFailed, Err: err})
		return r.resolveRendered(ctx, handle, liveURL, err)
	}

	// ── 2. Live reference ─────────────────────────────────────────────
	videoID, found := extract.LiveVideoID(res.HTML)
	r.emit(Event{Stage: StageExtraction, Handle: handle, Tier: engine.TierStatic, URL: liveURL, VideoID: videoID, Found: found})
	if !found {
		if r.cfg.OfflinePolicy == config.OfflinePolicyRecheck && r.rendered != nil {
			r.emit(Event{Stage: StageFallback, Handle: handle, Tier: engine.TierStatic, Reason: FallbackNoLiveReference})
			return r.resolveRendered(ctx, handle, liveURL, nil)
		}
		return r.tagged(offline(), engine.TierStatic, "", "")
	}

	// ── 3. Video page, same tier ──────────────────────────────────────
	return r.resolveVideo(ctx, handle, r.static, sess, videoID)
}

// resolveRendered runs the whole resolution in one browser session. cause is
// the static fault that led here, or nil for a policy re-check.
func (r *Resolver) resolveRendered(ctx context.Context, handle, liveURL string, cause error) Outcome {
	if r.rendered == nil {
		if cause == nil {
			return r.tagged(offline(), engine.TierStatic, "", "")
		}
		return r.tagged(upstreamError(cause), engine.TierStatic, "", "")
	}

	sess, err := r.rendered.Open(ctx)
	if err != nil {
		r.emit(Event{Stage: StageFetchFailed, Handle: handle, Engine: r.rendered.Name(), Tier: engine.TierRendered, URL: liveURL, Err: err})
		return r.tagged(upstreamError(err), engine.TierRendered, "", "")
	}
	healthy := false
	defer func() { sess.Close(healthy) }()

	req := &engine.FetchRequest{URL: liveURL, Directive: engine.ReadCanonical}
	if r.cfg.LiveSelector != "" {
		req.Directive, req.Selector = engine.ReadSelectorHref, r.cfg.LiveSelector
	}
	res, err := r.fetch(ctx, handle, r.rendered, sess, req)
	if err != nil {
		return r.tagged(upstreamError(err), engine.TierRendered, "", "")
	}

	videoID, found := renderedReference(res, req.Directive)
	r.emit(Event{Stage: StageExtraction, Handle: handle, Tier: engine.TierRendered, URL: liveURL, VideoID: videoID, Found: found})
	if !found {
		healthy = true
		return r.tagged(offline(), engine.TierRendered, "", "")
	}

	out := r.resolveVideo(ctx, handle, r.rendered, sess, videoID)
	healthy = out.Kind != KindUpstreamError
	return out
}

// renderedReference picks the broadcast's video id from a rendered live page.
// The selector link wins when it names a video. A canonical link is
// authoritative otherwise: offline channels canonicalise to the channel
// itself, whose page still lists past uploads, so the markup is scanned only
// when the page has no canonical link at all.
func renderedReference(res *engine.FetchResult, directive engine.Directive) (string, bool) {
	canonical := res.Link
	if directive == engine.ReadSelectorHref {
		if id, ok := extract.VideoIDFromURL(res.Link); ok {
			return id, true
		}
		canonical, _ = extract.LinkHref(res.HTML, extract.CanonicalSelector)
	}
	if canonical != "" {
		return extract.VideoIDFromURL(canonical)
	}
	return extract.LiveVideoID(res.HTML)
}

// resolveVideo fetches the watch page of videoID on the given tier and turns
// it into a Redirect or NotFound.
func (r *Resolver) resolveVideo(ctx context.Context, handle string, eng engine.Engine, sess engine.Session, videoID string) Outcome {
	tier := eng.Tier()
	watchURL := WatchURL(r.cfg.PlatformURL, videoID)

	res, err := r.fetch(ctx, handle, eng, sess, &engine.FetchRequest{
		URL:       watchURL,
		Directive: engine.ReadHTML,
	})
	if err != nil {
		return r.tagged(upstreamError(err), tier, videoID, watchURL)
	}

	manifest, found := extract.ManifestURL(res.HTML)
	r.emit(Event{Stage: StageExtraction, Handle: handle, Tier: tier, URL: watchURL, VideoID: videoID, Found: found})

	if !found && r.player != nil {
		manifest, found = r.lookupPlayer(ctx, handle, tier, videoID)
	}
	if !found {
		return r.tagged(notFound(ReasonNoManifest), tier, videoID, watchURL)
	}

	if r.probe != nil {
		live, err := r.probe.Live(ctx, manifest)
		if err != nil {
			r.emit(Event{Stage: StageFetchFailed, Handle: handle, Engine: "probe", Tier: tier, URL: manifest, VideoID: videoID, Err: err})
			return r.tagged(upstreamError(err), tier, videoID, watchURL)
		}
		if !live {
			return r.tagged(notFound(ReasonNotLive), tier, videoID, watchURL)
		}
	}

	out := r.tagged(redirect(manifest), tier, videoID, watchURL)
	out.Title = extract.PageTitle(res.HTML)
	return out
}

// lookupPlayer asks the player source for a manifest. Its faults are logged
// through the observer and otherwise ignored: the watch page already
// answered.
func (r *Resolver) lookupPlayer(ctx context.Context, handle string, tier engine.Tier, videoID string) (string, bool) {
	start := time.Now()
	r.emit(Event{Stage: StageFetchAttempted, Handle: handle, Engine: "player", Tier: tier, VideoID: videoID})

	manifest, err := r.player.ManifestURL(ctx, videoID)
	if err != nil {
		r.emit(Event{Stage: StageFetchFailed, Handle: handle, Engine: "player", Tier: tier, VideoID: videoID, Err: err, Duration: time.Since(start)})
		return "", false
	}
	found := manifest != ""
	r.emit(Event{Stage: StageExtraction, Handle: handle, Engine: "player", Tier: tier, VideoID: videoID, Found: found})
	return manifest, found
}

// fetch runs one page fetch and reports it to the observer.
func (r *Resolver) fetch(ctx context.Context, handle string, eng engine.Engine, sess engine.Session, req *engine.FetchRequest) (*engine.FetchResult, error) {
	if eng.Tier() == engine.TierStatic {
		req.Timeout = r.cfg.StaticTimeout
	}
	ev := Event{Handle: handle, Engine: eng.Name(), Tier: eng.Tier(), URL: req.URL}

	ev.Stage = StageFetchAttempted
	r.emit(ev)

	start := time.Now()
	res, err := sess.Fetch(ctx, req)
	if err == nil && res == nil {
		err = errors.New(eng.Name() + ": empty fetch result")
	}
	if err != nil {
		ev.Stage, ev.Err, ev.Duration = StageFetchFailed, err, time.Since(start)
		r.emit(ev)
		return nil, err
	}
	return res, nil
}

func (r *Resolver) tagged(out Outcome, tier engine.Tier, videoID, videoURL string) Outcome {
	out.Tier = tier
	out.VideoID = videoID
	out.VideoURL = videoURL
	return out
}

func (r *Resolver) emit(e Event) {
	r.observer.Observe(e)
}

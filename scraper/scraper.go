package scraper

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/use-agent/livehls/config"
	"github.com/use-agent/livehls/engine"
	"github.com/use-agent/livehls/models"
)

// Scraper manages the global browser lifecycle and the tab pool.
// It is safe for concurrent use.
type Scraper struct {
	browser     *rod.Browser
	launcher    *launcher.Launcher
	pool        *engine.AdaptivePool[*rod.Page]
	browserCfg  config.BrowserConfig
	poolCfg     config.PoolConfig
	activePages atomic.Int32
}

// NewScraper launches a headless browser and initialises the tab pool.
func NewScraper(browserCfg config.BrowserConfig, poolCfg config.PoolConfig) (*Scraper, error) {
	l := launcher.New().
		Headless(browserCfg.Headless).
		NoSandbox(browserCfg.NoSandbox)

	if browserCfg.BrowserBin != "" {
		l = l.Bin(browserCfg.BrowserBin)
	}
	if browserCfg.DefaultProxy != "" {
		l = l.Proxy(browserCfg.DefaultProxy)
	}

	// ── Stealth flags ────────────────────────────────────────────────
	l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	l.Delete(flags.Flag("enable-automation"))
	l.Set(flags.Flag("disable-features"), "AudioServiceOutOfProcess,TranslateUI")
	l.Set(flags.Flag("disable-renderer-backgrounding"))
	l.Set(flags.Flag("disable-background-timer-throttling"))
	l.Set(flags.Flag("disable-component-update"))
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("disable-extensions"))
	l.Set(flags.Flag("mute-audio"))
	l.Set(flags.Flag("autoplay-policy"), "user-gesture-required")
	l.Set(flags.Flag("no-first-run"))

	controlURL, err := l.Launch()
	if err != nil {
		return nil, models.NewResolveError(
			models.ErrCodeBrowserCrash,
			"failed to launch browser",
			err,
		)
	}
	slog.Info("browser launched", "controlURL", controlURL)

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, models.NewResolveError(
			models.ErrCodeBrowserCrash,
			"failed to connect to browser",
			err,
		)
	}

	s := &Scraper{
		browser:    browser,
		launcher:   l,
		browserCfg: browserCfg,
		poolCfg:    poolCfg,
	}
	s.pool = engine.NewAdaptivePool(engine.AdaptivePoolConfig{
		MinSize:      poolCfg.MinPages,
		HardMax:      poolCfg.HardMax,
		MemThreshold: poolCfg.MemThreshold,
		ScaleStep:    poolCfg.ScaleStep,
	}, s.newTab, func(p *rod.Page) { _ = p.Close() })
	slog.Info("tab pool created", "minPages", poolCfg.MinPages, "hardMax", poolCfg.HardMax)

	return s, nil
}

// newTab creates a blank tab carrying the desktop browser identity.
func (s *Scraper) newTab() (*rod.Page, error) {
	page, err := s.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, err
	}
	if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
		UserAgent:      engine.ChromeUA,
		AcceptLanguage: "en-US,en",
	}); err != nil {
		_ = page.Close()
		return nil, err
	}
	_ = proto.NetworkSetExtraHTTPHeaders{
		Headers: toHeadersMap(map[string]string{"Accept-Language": "en-US,en;q=0.9"}),
	}.Call(page)
	return page, nil
}

// Open checks a tab out of the pool for one resolution. The returned session
// owns the tab exclusively until Close.
func (s *Scraper) Open(ctx context.Context, withStealth bool) (engine.Session, error) {
	h, err := s.pool.Get(ctx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, categorizeError(err, "timed out waiting for a browser tab")
		}
		return nil, models.NewResolveError(
			models.ErrCodeBrowserCrash,
			"failed to acquire browser tab",
			err,
		)
	}
	s.activePages.Add(1)

	sess := &Session{scraper: s, handle: h, page: h.Value}

	// Stealth must be installed before the first navigation of the session.
	if withStealth || s.browserCfg.Stealth {
		remove, evalErr := h.Value.EvalOnNewDocument(stealth.JS)
		if evalErr != nil {
			slog.Warn("stealth injection failed, proceeding without stealth",
				"error", evalErr,
			)
		} else {
			sess.removeStealth = remove
		}
	}
	return sess, nil
}

// Stats returns a snapshot of the pool's current state.
func (s *Scraper) Stats() models.PoolStats {
	return models.PoolStats{
		MaxPages:    s.pool.HardMax(),
		Pages:       s.pool.Size(),
		ActivePages: int(s.activePages.Load()),
	}
}

// Close drains the tab pool and kills the browser process.
// Call this on graceful shutdown to prevent zombie Chrome processes.
func (s *Scraper) Close() {
	slog.Info("scraper shutting down: draining tab pool")
	s.pool.Stop()
	slog.Info("scraper shutting down: closing browser")
	if err := s.browser.Close(); err != nil {
		slog.Warn("browser close failed", "error", err)
	}
	s.launcher.Kill()
	slog.Info("scraper shutdown complete")
}

package scraper

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/use-agent/livehls/engine"
	"github.com/use-agent/livehls/extract"
	"github.com/use-agent/livehls/models"
	"github.com/ysmood/gson"
)

// cleanupTimeout bounds the about:blank navigation on Close.
const cleanupTimeout = 5 * time.Second

// Session is a browser tab checked out for one resolution. Every Fetch runs
// in the same tab, so cookies and storage set by the live page carry over to
// the watch page.
type Session struct {
	scraper       *Scraper
	handle        *engine.Handle[*rod.Page]
	page          *rod.Page
	removeStealth func() error
	closeOnce     sync.Once
}

// Fetch loads req.URL in the session's tab and reads what req.Directive asks
// for.
//
// Lifecycle (numbered steps match the inline comments):
//
//  1. Timeout guard          – hard deadline on this page load
//  2. Hijack mount           – block images/CSS/fonts/media (before navigation!)
//  3. Context binding        – propagate the deadline to all Rod operations
//  4. Idle listener setup    – MUST be registered before Navigate
//  5. Navigate               – triggers page load
//  6. Wait                   – network idle, or DOM stability while the
//                              hijack router is mounted; bounded by IdleTimeout
//  7. Consent                – click through the consent wall if one is shown
//  8. Extract                – page.HTML(), status, final URL, link
func (s *Session) Fetch(ctx context.Context, req *engine.FetchRequest) (*engine.FetchResult, error) {
	cfg := s.scraper.browserCfg

	// ── 1. Timeout guard ──────────────────────────────────────────────
	timeout := req.Timeout
	if timeout <= 0 || timeout > cfg.NavigationTimeout {
		timeout = cfg.NavigationTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// ── 2. Mount hijack router ────────────────────────────────────────
	router := setupHijack(s.page, cfg.BlockedResourceTypes, cfg.BlockAds)
	if router != nil {
		defer func() { _ = router.Stop() }()
	}

	// ── 3. Bind request context to page ───────────────────────────────
	p := s.page.Context(ctx)

	// ── 4. Set up network idle waiter BEFORE navigation ───────────────
	// NOTE: WaitRequestIdle uses the Fetch domain which conflicts with
	// HijackRequests on Chromium 145+. Use WaitDOMStable in that case.
	idleCtx, idleCancel := context.WithTimeout(ctx, cfg.IdleTimeout)
	defer idleCancel()
	var waitIdle func()
	if router == nil {
		waitIdle = s.page.Context(idleCtx).WaitRequestIdle(500*time.Millisecond, nil, nil, nil)
	}

	// ── 5. Navigate ───────────────────────────────────────────────────
	if err := p.Navigate(req.URL); err != nil {
		return nil, categorizeError(err, "navigation to "+req.URL+" failed")
	}

	// ── 6. Wait strategy ──────────────────────────────────────────────
	// Reaching IdleTimeout is not an error: the DOM at that point is used.
	if waitIdle != nil {
		waitIdle()
	} else if err := s.page.Context(idleCtx).WaitDOMStable(300*time.Millisecond, 0.1); err != nil {
		slog.Debug("WaitDOMStable did not converge, proceeding with current DOM",
			"url", req.URL,
			"error", err,
		)
	}
	if err := ctx.Err(); err != nil {
		return nil, categorizeError(err, "page load of "+req.URL+" timed out")
	}

	// ── 7. Consent wall ───────────────────────────────────────────────
	if cfg.ConsentSelector != "" {
		dismissConsent(ctx, s.page, cfg.ConsentSelector, cfg.IdleTimeout)
	}

	// ── 8. Extract ────────────────────────────────────────────────────
	statusCode := navigationStatus(p)
	if statusCode >= 400 {
		return nil, models.NewStatusError(statusCode, req.URL)
	}

	rawHTML, err := p.HTML()
	if err != nil {
		return nil, categorizeError(err, "failed to extract page HTML")
	}

	finalURL := evalStringOrEmpty(p, `() => window.location.href`)
	if finalURL == "" {
		finalURL = req.URL
	}

	result := &engine.FetchResult{
		HTML:       rawHTML,
		StatusCode: statusCode,
		FinalURL:   finalURL,
	}

	switch req.Directive {
	case engine.ReadCanonical:
		result.Link, err = resolvedHref(p, extract.CanonicalSelector)
	case engine.ReadSelectorHref:
		result.Link, err = resolvedHref(p, req.Selector)
	}
	if err != nil {
		return nil, categorizeError(err, "failed to read link from "+req.URL)
	}
	return result, nil
}

// Close resets the tab and returns it to the pool. The about:blank
// navigation uses the page without the request context so it still works
// after the resolution deadline has passed. Close is idempotent.
func (s *Session) Close(ok bool) {
	s.closeOnce.Do(func() {
		defer s.scraper.activePages.Add(-1)

		if s.removeStealth != nil {
			if err := s.removeStealth(); err != nil {
				slog.Debug("cleanup: failed to remove stealth script", "error", err)
			}
		}
		if err := s.page.Timeout(cleanupTimeout).Navigate("about:blank"); err != nil {
			slog.Warn("cleanup: failed to navigate to about:blank",
				"error", err,
			)
			ok = false
		}
		s.scraper.pool.Put(s.handle, ok)
	})
}

// resolvedHref returns the href property (absolute, as the browser resolved
// it) of the first element matching selector, or "" when there is none.
func resolvedHref(p *rod.Page, selector string) (string, error) {
	if selector == "" {
		return "", nil
	}
	has, el, err := p.Has(selector)
	if err != nil || !has {
		return "", err
	}
	href, err := el.Property("href")
	if err != nil {
		return "", err
	}
	return href.Str(), nil
}

// navigationStatus reads the main document's HTTP status via the Navigation
// Timing API. It returns 0 when the browser does not expose it.
func navigationStatus(p *rod.Page) int {
	res, err := p.Eval(`() => {
		try {
			const entries = performance.getEntriesByType("navigation");
			if (entries.length > 0) return entries[0].responseStatus || 0;
		} catch(e) {}
		return 0;
	}`)
	if err != nil {
		return 0
	}
	return res.Value.Int()
}

// evalStringOrEmpty evaluates a JS expression and returns the string result,
// swallowing any errors (useful for optional metadata extraction).
func evalStringOrEmpty(page *rod.Page, js string) string {
	res, err := page.Eval(js)
	if err != nil {
		return ""
	}
	return res.Value.Str()
}

// toHeadersMap converts a plain string map to the proto.NetworkHeaders type
// (map[string]gson.JSON) required by NetworkSetExtraHTTPHeaders.
func toHeadersMap(headers map[string]string) proto.NetworkHeaders {
	m := make(proto.NetworkHeaders, len(headers))
	for k, v := range headers {
		m[k] = gson.New(v)
	}
	return m
}

// categorizeError wraps raw errors into typed ResolveErrors so the API layer
// can map them to appropriate HTTP status codes.
func categorizeError(err error, msg string) *models.ResolveError {
	var re *models.ResolveError
	switch {
	case errors.As(err, &re):
		return re
	case errors.Is(err, context.DeadlineExceeded):
		return models.NewResolveError(models.ErrCodeTimeout, msg, err)
	case errors.Is(err, context.Canceled):
		return models.NewResolveError(models.ErrCodeTimeout, "request canceled", err)
	default:
		return models.NewResolveError(models.ErrCodeNavigation, msg, err)
	}
}

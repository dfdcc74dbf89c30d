package scraper

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// dismissConsent clicks the first element matching selector, if any, and
// waits for the page to settle. Consent walls are optional: every failure is
// logged and swallowed.
func dismissConsent(ctx context.Context, page *rod.Page, selector string, settle time.Duration) {
	actionCtx, cancel := context.WithTimeout(ctx, settle)
	defer cancel()

	p := page.Context(actionCtx)

	has, el, err := p.Has(selector)
	if err != nil || !has {
		return
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		slog.Debug("consent click failed", "selector", selector, "error", err)
		return
	}
	slog.Debug("consent wall dismissed", "selector", selector)

	if err := p.WaitLoad(); err != nil {
		slog.Debug("page did not load after consent", "error", err)
		return
	}
	_ = p.WaitDOMStable(300*time.Millisecond, 0.1)
}

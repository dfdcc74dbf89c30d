package engine

import (
	"context"
	"time"
)

// Tier names a fetch strategy tier. Tiers are tried in the order they are
// declared: static before rendered.
type Tier string

const (
	TierStatic   Tier = "static"
	TierRendered Tier = "rendered"
)

// Directive tells a session what to read from the loaded page.
type Directive int

const (
	// ReadHTML returns the page markup only.
	ReadHTML Directive = iota

	// ReadCanonical additionally resolves the <link rel="canonical"> href.
	ReadCanonical

	// ReadSelectorHref additionally resolves the href of FetchRequest.Selector.
	ReadSelectorHref
)

func (d Directive) String() string {
	switch d {
	case ReadCanonical:
		return "canonical"
	case ReadSelectorHref:
		return "selector_href"
	default:
		return "html"
	}
}

// Engine is the interface that all fetch strategies must implement.
type Engine interface {
	// Name returns the engine identifier (e.g. "http", "rod", "rod-stealth").
	Name() string

	// Tier reports which strategy tier the engine belongs to.
	Tier() Tier

	// Open acquires whatever the engine needs for one resolution. The caller
	// must Close the returned session on every exit path.
	Open(ctx context.Context) (Session, error)
}

// Session fetches pages on behalf of a single resolution. Sessions are not
// safe for concurrent use.
type Session interface {
	Fetch(ctx context.Context, req *FetchRequest) (*FetchResult, error)

	// Close releases the session. ok reports whether the session's work
	// succeeded, which pooled engines use for health scoring.
	Close(ok bool)
}

// FetchRequest contains everything a session needs to fetch a page.
type FetchRequest struct {
	URL       string
	Directive Directive
	Selector  string // for ReadSelectorHref
	Timeout   time.Duration
}

// FetchResult is the output of a successful session fetch.
type FetchResult struct {
	HTML       string
	Link       string // resolved href for ReadCanonical / ReadSelectorHref; "" when absent
	StatusCode int
	FinalURL   string
	EngineName string
}

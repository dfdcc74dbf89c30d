package resolver

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/use-agent/livehls/engine"
)

// Stage names one step of a resolution.
type Stage string

const (
	StageFetchAttempted Stage = "fetch_attempted"
	StageFetchFailed    Stage = "fetch_failed"
	StageFallback       Stage = "fallback"
	StageExtraction     Stage = "extraction"
	StageOutcome        Stage = "outcome"
)

// Fallback reasons.
const (
	FallbackStaticFailed    = "static_fetch_failed"
	FallbackNoLiveReference = "no_live_reference"
)

// Event is emitted at every stage of a resolution.
type Event struct {
	Stage    Stage
	Handle   string
	Engine   string
	Tier     engine.Tier
	URL      string
	VideoID  string
	Reason   string
	Found    bool // extraction only
	Outcome  Kind // outcome only
	Err      error
	Duration time.Duration
}

// Observer receives resolution events. Implementations must be safe for
// concurrent use and must not block.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) Observe(e Event) { f(e) }

type multiObserver []Observer

func (m multiObserver) Observe(e Event) {
	for _, o := range m {
		o.Observe(e)
	}
}

// Multi fans every event out to all non-nil observers.
func Multi(observers ...Observer) Observer {
	out := make(multiObserver, 0, len(observers))
	for _, o := range observers {
		if o != nil {
			out = append(out, o)
		}
	}
	return out
}

// SlogObserver logs events. Negative outcomes are logged at Info, faults at
// Warn; nothing is ever logged at Error.
type SlogObserver struct {
	Logger *slog.Logger
}

func (o SlogObserver) Observe(e Event) {
	logger := o.Logger
	if logger == nil {
		logger = slog.Default()
	}

	attrs := []slog.Attr{
		slog.String("stage", string(e.Stage)),
		slog.String("handle", e.Handle),
	}
	if e.Tier != "" {
		attrs = append(attrs, slog.String("tier", string(e.Tier)))
	}
	if e.Engine != "" {
		attrs = append(attrs, slog.String("engine", e.Engine))
	}
	if e.URL != "" {
		attrs = append(attrs, slog.String("url", e.URL))
	}
	if e.VideoID != "" {
		attrs = append(attrs, slog.String("videoID", e.VideoID))
	}
	if e.Reason != "" {
		attrs = append(attrs, slog.String("reason", e.Reason))
	}
	if e.Duration > 0 {
		attrs = append(attrs, slog.Int64("durationMs", e.Duration.Milliseconds()))
	}
	if e.Err != nil {
		attrs = append(attrs, slog.String("error", e.Err.Error()))
	}

	level := slog.LevelDebug
	msg := "resolve " + string(e.Stage)
	switch e.Stage {
	case StageFetchFailed, StageFallback:
		level = slog.LevelWarn
	case StageExtraction:
		attrs = append(attrs, slog.Bool("found", e.Found))
	case StageOutcome:
		attrs = append(attrs, slog.String("outcome", string(e.Outcome)))
		level = slog.LevelInfo
		if e.Outcome == KindUpstreamError {
			level = slog.LevelWarn
		}
	}
	logger.LogAttrs(context.Background(), level, msg, attrs...)
}

// Recorder keeps every event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Observe(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Stages returns the recorded stages in order.
func (r *Recorder) Stages() []Stage {
	events := r.Events()
	stages := make([]Stage, len(events))
	for i, e := range events {
		stages[i] = e.Stage
	}
	return stages
}

// Reset drops everything recorded so far.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}

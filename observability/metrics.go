package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/use-agent/livehls/resolver"
)

var (
	Resolutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "livehls",
		Name:      "resolutions_total",
		Help:      "Resolutions by outcome and deciding tier",
	}, []string{"outcome", "tier"})

	ResolveDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "livehls",
		Name:      "resolve_duration_seconds",
		Help:      "End-to-end resolution duration",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 11),
	}, []string{"outcome"})

	Fetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "livehls",
		Name:      "fetches_total",
		Help:      "Page fetches by engine and result",
	}, []string{"engine", "result"})

	Fallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "livehls",
		Name:      "fallbacks_total",
		Help:      "Switches to the rendered tier by reason",
	}, []string{"reason"})

	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "livehls",
		Name:      "cache_lookups_total",
		Help:      "Outcome cache lookups by result",
	}, []string{"result"})

	BrowserPages = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "livehls",
		Name:      "browser_pages",
		Help:      "Browser tabs in the pool by state",
	}, []string{"state"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "livehls",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})
)

// MetricsObserver records resolution events as Prometheus metrics.
type MetricsObserver struct{}

func (MetricsObserver) Observe(e resolver.Event) {
	switch e.Stage {
	case resolver.StageFetchAttempted:
		Fetches.WithLabelValues(e.Engine, "attempted").Inc()
	case resolver.StageFetchFailed:
		Fetches.WithLabelValues(e.Engine, "failed").Inc()
	case resolver.StageFallback:
		Fallbacks.WithLabelValues(e.Reason).Inc()
	case resolver.StageOutcome:
		Resolutions.WithLabelValues(string(e.Outcome), string(e.Tier)).Inc()
		ResolveDuration.WithLabelValues(string(e.Outcome)).Observe(e.Duration.Seconds())
	}
}

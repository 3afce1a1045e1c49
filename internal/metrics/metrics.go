// Package metrics exposes the core's hot-path counters and histograms as
// Prometheus collectors, modeled on the pack's own metrics packages
// (etalazz-vsa's internal/ratelimiter/telemetry/churn global collectors,
// restructured as a constructor-injected Registry rather than package-level
// globals, since this core may run more than one project's components in
// the same process). HTTP exposition (the /metrics endpoint itself) is out
// of scope; callers mount Registry.Registerer() wherever they expose it.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds every collector the core components update. A nil
// *Registry is valid everywhere it's accepted: all methods degrade to
// no-ops, so components never need a separate "metrics enabled" check.
type Registry struct {
	CacheHits      prometheus.Counter
	CacheMisses    prometheus.Counter
	CacheEvictions prometheus.Counter
	CacheUtilization prometheus.Gauge

	BreakerTransitions *prometheus.CounterVec
	BreakerRejections  prometheus.Counter

	FlushTotal    prometheus.Counter
	FlushFailures prometheus.Counter
	FlushLatency  prometheus.Histogram
	FlushEvents   prometheus.Histogram

	SearchTier1Latency prometheus.Histogram
	SearchTier2Latency prometheus.Histogram
	SearchTier3Latency prometheus.Histogram
	SearchResults      prometheus.Histogram
}

// New constructs a Registry and registers every collector against reg. If
// reg is nil, a fresh private prometheus.Registry is used so callers that
// only want the Go values (not exposition) can still call the update
// methods without panicking on a nil Registerer.
func New(reg prometheus.Registerer) *Registry {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	r := &Registry{
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "udo_cache_hits_total",
			Help: "Total bounded LRU cache hits.",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "udo_cache_misses_total",
			Help: "Total bounded LRU cache misses.",
		}),
		CacheEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "udo_cache_evictions_total",
			Help: "Total bounded LRU cache evictions.",
		}),
		CacheUtilization: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "udo_cache_utilization_ratio",
			Help: "Current cache byte usage as a fraction of max_bytes.",
		}),
		BreakerTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "udo_breaker_transitions_total",
			Help: "Circuit breaker state transitions, labeled by resulting state.",
		}, []string{"state"}),
		BreakerRejections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "udo_breaker_rejections_total",
			Help: "Calls fast-failed while the breaker was OPEN.",
		}),
		FlushTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "udo_flush_total",
			Help: "Total debounce flushes attempted.",
		}),
		FlushFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "udo_flush_failures_total",
			Help: "Flushes that exhausted retries and were dropped to the dead-letter log.",
		}),
		FlushLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "udo_flush_latency_seconds",
			Help:    "Wall-clock time to persist a flushed batch note.",
			Buckets: prometheus.DefBuckets,
		}),
		FlushEvents: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "udo_flush_events",
			Help:    "Number of events coalesced into a single flush.",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250},
		}),
		SearchTier1Latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "udo_search_tier1_latency_seconds",
			Help:    "Tier-1 filename match latency.",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05},
		}),
		SearchTier2Latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "udo_search_tier2_latency_seconds",
			Help:    "Tier-2 frontmatter match latency.",
			Buckets: []float64{.001, .005, .01, .025, .05, .1},
		}),
		SearchTier3Latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "udo_search_tier3_latency_seconds",
			Help:    "Tier-3 content match latency.",
			Buckets: []float64{.001, .01, .05, .1, .25, .5},
		}),
		SearchResults: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "udo_search_results",
			Help:    "Number of results returned per search_knowledge call.",
			Buckets: []float64{0, 1, 2, 5, 10, 25, 50},
		}),
	}

	reg.MustRegister(
		r.CacheHits, r.CacheMisses, r.CacheEvictions, r.CacheUtilization,
		r.BreakerTransitions, r.BreakerRejections,
		r.FlushTotal, r.FlushFailures, r.FlushLatency, r.FlushEvents,
		r.SearchTier1Latency, r.SearchTier2Latency, r.SearchTier3Latency, r.SearchResults,
	)
	return r
}

// ObserveCache adds caller-computed hit/miss/eviction deltas to the cache
// counters and records the current utilization. Called after each cache
// operation; zero deltas are skipped.
func (r *Registry) ObserveCache(hitDelta, missDelta, evictionDelta uint64, utilization float64) {
	if r == nil {
		return
	}
	if hitDelta > 0 {
		r.CacheHits.Add(float64(hitDelta))
	}
	if missDelta > 0 {
		r.CacheMisses.Add(float64(missDelta))
	}
	if evictionDelta > 0 {
		r.CacheEvictions.Add(float64(evictionDelta))
	}
	r.CacheUtilization.Set(utilization)
}

// ObserveBreakerTransition records a state transition by its resulting
// state label ("CLOSED", "OPEN", "HALF_OPEN").
func (r *Registry) ObserveBreakerTransition(state string) {
	if r == nil {
		return
	}
	r.BreakerTransitions.WithLabelValues(state).Inc()
}

// ObserveBreakerRejection records a fast-fail while OPEN.
func (r *Registry) ObserveBreakerRejection() {
	if r == nil {
		return
	}
	r.BreakerRejections.Inc()
}

// ObserveFlush records the outcome of a single debounce flush.
func (r *Registry) ObserveFlush(eventsCount int, latencySeconds float64, failed bool) {
	if r == nil {
		return
	}
	r.FlushTotal.Inc()
	r.FlushEvents.Observe(float64(eventsCount))
	r.FlushLatency.Observe(latencySeconds)
	if failed {
		r.FlushFailures.Inc()
	}
}

// ObserveSearch records per-tier latency and the final result count for one
// search_knowledge call.
func (r *Registry) ObserveSearch(tier1, tier2, tier3 float64, resultCount int) {
	if r == nil {
		return
	}
	r.SearchTier1Latency.Observe(tier1)
	r.SearchTier2Latency.Observe(tier2)
	r.SearchTier3Latency.Observe(tier3)
	r.SearchResults.Observe(float64(resultCount))
}

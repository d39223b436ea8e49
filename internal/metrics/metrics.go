// Package metrics exposes the Prometheus counters and histograms the
// orchestrator and LLM retry wrapper report against: completed turns,
// cache hits/misses, LLM retry attempts, and turn latency.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups every collector the conversational backend reports
// against. It is safe for concurrent use, as all prometheus collectors are.
type Metrics struct {
	TurnsTotal      *prometheus.CounterVec
	CacheHitsTotal  prometheus.Counter
	CacheMissTotal  prometheus.Counter
	LLMRetriesTotal *prometheus.CounterVec
	TurnDuration    prometheus.Histogram
}

// New registers and returns a Metrics bound to reg. Pass
// prometheus.NewRegistry() in tests to avoid colliding with the global
// default registry across parallel test runs.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		TurnsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tag_turns_total",
			Help: "Completed conversational turns, by route and status.",
		}, []string{"route", "status"}),
		CacheHitsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "tag_cache_hits_total",
			Help: "Response cache hits.",
		}),
		CacheMissTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "tag_cache_misses_total",
			Help: "Response cache misses.",
		}),
		LLMRetriesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tag_llm_retries_total",
			Help: "LLM call attempts beyond the first, by task.",
		}, []string{"task"}),
		TurnDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "tag_turn_duration_seconds",
			Help:    "End-to-end turn processing duration.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// RecordTurn increments TurnsTotal for (route, status) and observes
// duration on TurnDuration.
func (m *Metrics) RecordTurn(route, status string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.TurnsTotal.WithLabelValues(route, status).Inc()
	m.TurnDuration.Observe(durationSeconds)
}

// RecordCacheHit increments CacheHitsTotal.
func (m *Metrics) RecordCacheHit() {
	if m == nil {
		return
	}
	m.CacheHitsTotal.Inc()
}

// RecordCacheMiss increments CacheMissTotal.
func (m *Metrics) RecordCacheMiss() {
	if m == nil {
		return
	}
	m.CacheMissTotal.Inc()
}

// RecordLLMRetry increments LLMRetriesTotal for task.
func (m *Metrics) RecordLLMRetry(task string) {
	if m == nil {
		return
	}
	m.LLMRetriesTotal.WithLabelValues(task).Inc()
}

package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "companion_matching"

var (
	CandidateSearches = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "candidate_searches_total", Help: "Total find-candidates requests processed"})
	CandidatesFound   = promauto.NewHistogram(prometheus.HistogramOpts{Namespace: namespace, Name: "candidates_returned", Help: "Candidates returned per search", Buckets: []float64{0, 1, 2, 5, 10, 20}})
	MatchLatency      = promauto.NewHistogram(prometheus.HistogramOpts{Namespace: namespace, Name: "match_latency_seconds", Help: "find-candidates latency seconds"})

	MeetingPoints = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "meeting_points_total", Help: "Meeting points suggested by origin"},
		[]string{"source"},
	)
	ProviderDegradations = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "provider_degradations_total", Help: "Provider calls resolved through a fallback"},
		[]string{"provider", "op"},
	)

	CacheHits    = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "geocache_hits_total", Help: "Geo-cache hits"})
	CacheMisses  = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "geocache_misses_total", Help: "Geo-cache misses, expired entries included"})
	CacheEntries = promauto.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "geocache_entries", Help: "Entries held after the last sweep"})

	IntentEventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "intent_events_published_total", Help: "Intent events handed to the broker"},
		[]string{"result"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

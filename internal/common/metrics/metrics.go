package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SyncRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_runs_total",
			Help: "Total number of sync runs by trigger",
		},
		[]string{"trigger"},
	)

	TranscriptsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_transcripts_processed_total",
			Help: "Total number of transcripts processed by outcome",
		},
		[]string{"status"},
	)

	SyncRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sync_run_duration_seconds",
			Help:    "Duration of a full sync run in seconds",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
		},
	)

	CRMRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dealcloud_requests_total",
			Help: "Total number of DealCloud API requests by operation and result",
		},
		[]string{"operation", "result"},
	)

	CRMCacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dealcloud_cache_hits_total",
			Help: "Query cache hits by operation",
		},
		[]string{"operation"},
	)

	RateLimitHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dealcloud_rate_limit_hits_total",
			Help: "Number of 429 responses handled via delay-and-replay",
		},
	)

	ContactsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sync_contacts_created_total",
			Help: "Number of contacts created in DealCloud",
		},
	)
)

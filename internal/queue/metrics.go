package queue

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Queue lifecycle metrics
var (
	EntriesEnqueuedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "queue_entries_enqueued_total",
			Help: "Total number of entries enqueued",
		},
	)

	SendsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_sends_total",
			Help: "Total number of provider send attempts",
		},
		[]string{"status"}, // accepted, error
	)

	SendDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "queue_send_duration_seconds",
			Help:    "Duration of provider send calls",
			Buckets: prometheus.DefBuckets,
		},
	)

	RetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "queue_retries_total",
			Help: "Total number of entries requeued for another send attempt",
		},
	)

	EntriesDeliveredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "queue_entries_delivered_total",
			Help: "Total number of entries confirmed delivered",
		},
	)

	EntriesFailedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "queue_entries_failed_total",
			Help: "Total number of entries that failed terminally",
		},
	)

	QueuesDrainedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "queue_drained_total",
			Help: "Total number of times a queue was found fully drained",
		},
	)
)

// Stall reconciler metrics
var (
	StallResolutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_stall_resolutions_total",
			Help: "Total number of stalled entries resolved by the sweeper",
		},
		[]string{"resolution"}, // delivered, failed, unlinked
	)
)

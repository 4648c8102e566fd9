package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Dispatcher metrics for Prometheus monitoring.
var (
	EventsScheduledTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_events_scheduled_total",
			Help: "Total number of events scheduled by name",
		},
		[]string{"name"},
	)

	EventsProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_events_processed_total",
			Help: "Total number of events processed by outcome",
		},
		[]string{"outcome"}, // handled, failed, dlq
	)

	EventProcessingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dispatch_event_processing_duration_seconds",
			Help:    "Duration of event handler executions",
			Buckets: prometheus.DefBuckets,
		},
	)

	DLQEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_dlq_events_total",
			Help: "Total number of events moved to the DLQ by reason",
		},
		[]string{"reason"},
	)
)

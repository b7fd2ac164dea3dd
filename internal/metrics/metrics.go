package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	FetchCount         prometheus.Counter
	FetchFailures      prometheus.Counter
	MessagesFetched    prometheus.Counter
	MessagesDeduped    prometheus.Counter
	ExtractionCalls    prometheus.Counter
	ExtractionFailures prometheus.Counter
	DrivesCreated      prometheus.Counter
	ReschedulesCreated prometheus.Counter
	SlotExhaustions    prometheus.Counter
	RunDuration        prometheus.Histogram
	QueueDepth         prometheus.Gauge
	ActiveWorkers      prometheus.Gauge
}

// NewMetrics creates new Prometheus metrics
func NewMetrics() *Metrics {
	return &Metrics{
		FetchCount: promauto.NewCounter(prometheus.CounterOpts{
			Name: "schedule_sync_fetch_count",
			Help: "Total number of mailbox fetch operations",
		}),
		FetchFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "schedule_sync_fetch_failures",
			Help: "Total number of mailbox fetches that failed after retries",
		}),
		MessagesFetched: promauto.NewCounter(prometheus.CounterOpts{
			Name: "schedule_sync_messages_fetched",
			Help: "Total number of messages fetched from mailboxes",
		}),
		MessagesDeduped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "schedule_sync_messages_deduped",
			Help: "Total number of messages skipped as already seen",
		}),
		ExtractionCalls: promauto.NewCounter(prometheus.CounterOpts{
			Name: "schedule_sync_extraction_calls",
			Help: "Total number of extraction batches sent to the inference service",
		}),
		ExtractionFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "schedule_sync_extraction_failures",
			Help: "Total number of extraction batches that failed and degraded to no-event",
		}),
		DrivesCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "schedule_sync_drives_created",
			Help: "Total number of company drive records created",
		}),
		ReschedulesCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "schedule_sync_reschedules_created",
			Help: "Total number of rescheduled class assignments created",
		}),
		SlotExhaustions: promauto.NewCounter(prometheus.CounterOpts{
			Name: "schedule_sync_slot_exhaustions",
			Help: "Total number of reschedule requests with no available slot",
		}),
		RunDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "schedule_sync_run_duration_seconds",
			Help:    "Time spent on full pipeline runs",
			Buckets: prometheus.DefBuckets,
		}),
		QueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "schedule_sync_queue_depth",
			Help: "Number of identities currently queued for fetching",
		}),
		ActiveWorkers: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "schedule_sync_active_workers",
			Help: "Number of fetch workers currently processing an identity",
		}),
	}
}

// Package metrics exposes edgebill's operational counters as Prometheus
// collectors. The sync daemon serves them on /metrics; everything else
// just increments.
package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	prometheus.MustRegister(
		EventsAppended, EventsAcked, PendingEvents,
		DuplicatesSuppressed, DedupFailures,
		LeaseAcquired, LeaseDenied,
		SyncBatches, SyncFailures, SyncLatency,
	)
}

var (
	EventsAppended = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "edgebill_events_appended_total",
		Help: "Total billing events appended to the local log",
	})

	EventsAcked = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "edgebill_events_acked_total",
		Help: "Total events pruned after a cloud ack",
	})

	PendingEvents = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "edgebill_events_pending",
		Help: "Events currently awaiting a cloud ack",
	})

	DuplicatesSuppressed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "edgebill_duplicates_suppressed_total",
		Help: "Inbound messages dropped by the dedup window",
	})

	DedupFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "edgebill_dedup_check_failures_total",
		Help: "Dedup existence checks answered by policy after a storage error",
	})

	LeaseAcquired = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "edgebill_lease_acquired_total",
		Help: "Successful lease grants and renewals",
	})

	LeaseDenied = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "edgebill_lease_denied_total",
		Help: "Lease attempts denied because another owner holds the key",
	})

	SyncBatches = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "edgebill_sync_batches_total",
		Help: "Event batches shipped to the cloud ledger",
	})

	SyncFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "edgebill_sync_failures_total",
		Help: "Sync attempts that failed before an ack was applied",
	})

	SyncLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "edgebill_sync_batch_seconds",
		Help:    "Wall time to ship one batch and apply its ack",
		Buckets: prometheus.DefBuckets,
	})
)

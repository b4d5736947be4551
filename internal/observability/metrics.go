package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for DroughtLedger.
type Metrics struct {
	// --- Engine ---
	CommandsApplied  *prometheus.CounterVec
	CommandsRejected *prometheus.CounterVec
	CommandDuration  *prometheus.HistogramVec
	EngineSequence   prometheus.Gauge

	// --- Domain ---
	PoliciesCreated       prometheus.Counter
	PoliciesDeactivated   prometheus.Counter
	ClaimsSettled         prometheus.Counter
	PayoutsTotal          prometheus.Counter
	PremiumsTotal         prometheus.Counter
	MeasurementsPublished prometheus.Counter
	PoolBalance           prometheus.Gauge

	// --- Measurement feed ---
	FeedDuplicates prometheus.Counter
	FeedStale      prometheus.Counter
	FeedParseFails prometheus.Counter

	// --- Persistence ---
	PersistEventsWritten prometheus.Counter
	PersistBatchDur      prometheus.Histogram
	PersistErrors        *prometheus.CounterVec
	PersistLastSequence  prometheus.Gauge
	PublishDrops         prometheus.Counter

	// --- Snapshot ---
	SnapshotTaken    prometheus.Counter
	SnapshotDuration prometheus.Histogram
	SnapshotLastSeq  prometheus.Gauge

	// --- HTTP API ---
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	latencyBuckets := []float64{
		0.00001, 0.000025, 0.00005, 0.0001, 0.00025,
		0.0005, 0.001, 0.002, 0.005, 0.01, 0.025, 0.05,
	}

	httpBuckets := []float64{
		0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1,
	}

	return &Metrics{
		CommandsApplied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "drought_engine_commands_applied_total",
			Help: "Commands successfully applied by the engine",
		}, []string{"command"}),

		CommandsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "drought_engine_commands_rejected_total",
			Help: "Commands rejected by the engine, by rejection code",
		}, []string{"command", "code"}),

		CommandDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "drought_engine_command_duration_seconds",
			Help:    "Time to execute a single command in the engine",
			Buckets: latencyBuckets,
		}, []string{"command"}),

		EngineSequence: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "drought_engine_sequence",
			Help: "Current global event sequence",
		}),

		PoliciesCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "drought_policies_created_total",
			Help: "Policies created",
		}),

		PoliciesDeactivated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "drought_policies_deactivated_total",
			Help: "Policies administratively deactivated",
		}),

		ClaimsSettled: promauto.NewCounter(prometheus.CounterOpts{
			Name: "drought_claims_settled_total",
			Help: "Claims settled with a payout",
		}),

		PayoutsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "drought_payouts_amount_total",
			Help: "Total payout amount in currency units",
		}),

		PremiumsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "drought_premiums_amount_total",
			Help: "Total premium amount credited to the pool",
		}),

		MeasurementsPublished: promauto.NewCounter(prometheus.CounterOpts{
			Name: "drought_measurements_published_total",
			Help: "Measurements accepted and stored",
		}),

		PoolBalance: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "drought_pool_balance",
			Help: "Current premium pool balance",
		}),

		FeedDuplicates: promauto.NewCounter(prometheus.CounterOpts{
			Name: "drought_feed_duplicates_total",
			Help: "Measurement publications skipped as duplicates",
		}),

		FeedStale: promauto.NewCounter(prometheus.CounterOpts{
			Name: "drought_feed_stale_total",
			Help: "Measurement publications skipped as stale (old feed sequence)",
		}),

		FeedParseFails: promauto.NewCounter(prometheus.CounterOpts{
			Name: "drought_feed_parse_failures_total",
			Help: "Measurement feed messages that failed to parse",
		}),

		PersistEventsWritten: promauto.NewCounter(prometheus.CounterOpts{
			Name: "drought_persist_events_written_total",
			Help: "Event envelopes written to the event log",
		}),

		PersistBatchDur: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "drought_persist_batch_duration_seconds",
			Help:    "Time to write one persistence batch",
			Buckets: latencyBuckets,
		}),

		PersistErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "drought_persist_errors_total",
			Help: "Persistence write errors",
		}, []string{"op"}),

		PersistLastSequence: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "drought_persist_last_sequence",
			Help: "Highest sequence durably written",
		}),

		PublishDrops: promauto.NewCounter(prometheus.CounterOpts{
			Name: "drought_publish_drops_total",
			Help: "Outbound audit events dropped (publish channel full)",
		}),

		SnapshotTaken: promauto.NewCounter(prometheus.CounterOpts{
			Name: "drought_snapshot_taken_total",
			Help: "State snapshots persisted",
		}),

		SnapshotDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "drought_snapshot_duration_seconds",
			Help:    "Time to capture and persist a snapshot",
			Buckets: httpBuckets,
		}),

		SnapshotLastSeq: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "drought_snapshot_last_sequence",
			Help: "Sequence of the most recent snapshot",
		}),

		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "drought_http_requests_total",
			Help: "HTTP API requests by route and status",
		}, []string{"route", "status"}),

		HTTPDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "drought_http_request_duration_seconds",
			Help:    "HTTP API request latency",
			Buckets: httpBuckets,
		}, []string{"route"}),
	}
}

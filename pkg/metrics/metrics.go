package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Scheduler metrics.
	SchedulerTasksSubmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vrouter_scheduler_tasks_submitted_total",
			Help: "Total number of tasks submitted to the scheduler, by task class",
		},
		[]string{"class"},
	)

	SchedulerTasksRunning = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "vrouter_scheduler_tasks_running",
			Help: "Number of tasks currently executing, by task class",
		},
		[]string{"class"},
	)

	SchedulerTaskWaitSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vrouter_scheduler_task_wait_seconds",
			Help:    "Time a task spent queued before it began running, by task class",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"class"},
	)

	// Partitioned table engine (pkg/db) metrics.
	DBShardQueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "vrouter_db_shard_queue_depth",
			Help: "Number of pending requests on a table shard's request queue",
		},
		[]string{"table", "shard"},
	)

	DBEntriesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "vrouter_db_entries_total",
			Help: "Number of entries held by a table, including deleted entries not yet retired",
		},
		[]string{"table"},
	)

	DBOverloadEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vrouter_db_overload_events_total",
			Help: "Total number of times a table shard crossed its high-water mark and paused its producer class",
		},
		[]string{"table", "shard"},
	)

	DBDeleteTimerExpiredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vrouter_db_delete_timer_expired_total",
			Help: "Total number of entry delete-timer expirations observed (fatal per table invariants)",
		},
		[]string{"table"},
	)

	DBNotifyDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vrouter_db_notify_duration_seconds",
			Help:    "Time taken to deliver one ADD/CHANGE/DELETE notification to a listener",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"table", "event"},
	)

	// Walker subsystem metrics.
	WalksActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "vrouter_walks_active",
			Help: "Number of walks currently in progress, by table",
		},
		[]string{"table"},
	)

	WalksCompletedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vrouter_walks_completed_total",
			Help: "Total number of completed walks, by table and outcome (done, cancelled)",
		},
		[]string{"table", "outcome"},
	)

	// Lifetime / retirement metrics.
	LifetimePendingActors = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "vrouter_lifetime_pending_actors",
			Help: "Number of DeleteActors in the retirement queue waiting on MayDelete to allow deletion",
		},
		[]string{"kind"},
	)

	LifetimeRetiredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vrouter_lifetime_retired_total",
			Help: "Total number of objects that completed the Delete -> MayDelete -> Destroy retirement protocol",
		},
		[]string{"kind"},
	)

	LifetimeRetirementDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vrouter_lifetime_retirement_duration_seconds",
			Help:    "Time from Delete() to Destroy() for retired objects",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	// Flow aging/export loop metrics.
	FlowTableEntriesTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "vrouter_flow_table_entries_total",
			Help: "Number of flow entries in the userspace flow table as last observed by the aging loop",
		},
	)

	FlowAgedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vrouter_flow_aged_total",
			Help: "Total number of flows aged out; the direction label carries the aging reason (short_flow, solo, paired)",
		},
		[]string{"direction"},
	)

	FlowExportTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "vrouter_flow_export_total",
			Help: "Total number of flow records successfully handed to the export sink",
		},
	)

	FlowExportFailedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "vrouter_flow_export_failed_total",
			Help: "Total number of flow records the export sink rejected",
		},
	)

	FlowPassDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vrouter_flow_pass_duration_seconds",
			Help:    "Wall-clock duration of one aging-loop pass",
			Buckets: prometheus.DefBuckets,
		},
	)

	FlowTimerIntervalMs = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "vrouter_flow_timer_interval_ms",
			Help: "Current adaptive interval between aging-loop passes, in milliseconds",
		},
	)

	FlowCountPerPass = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "vrouter_flow_count_per_pass",
			Help: "Number of flow entries the aging loop aims to examine in the current pass",
		},
	)

	FlowCounterWraparoundTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vrouter_flow_counter_wraparound_total",
			Help: "Total number of kernel packet/byte counter wraparounds (counter plus overflow field) reconciled against the 64-bit aggregate",
		},
		[]string{"field"},
	)

	// Diagnostics (ops-event bus) metrics.
	DiagnosticsEventsDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vrouter_diagnostics_events_dropped_total",
			Help: "Total number of diagnostic events dropped because a subscriber's channel was full",
		},
		[]string{"category"},
	)
)

func init() {
	prometheus.MustRegister(
		SchedulerTasksSubmitted,
		SchedulerTasksRunning,
		SchedulerTaskWaitSeconds,
		DBShardQueueDepth,
		DBEntriesTotal,
		DBOverloadEventsTotal,
		DBDeleteTimerExpiredTotal,
		DBNotifyDuration,
		WalksActive,
		WalksCompletedTotal,
		LifetimePendingActors,
		LifetimeRetiredTotal,
		LifetimeRetirementDuration,
		FlowTableEntriesTotal,
		FlowAgedTotal,
		FlowExportTotal,
		FlowExportFailedTotal,
		FlowPassDuration,
		FlowTimerIntervalMs,
		FlowCountPerPass,
		FlowCounterWraparoundTotal,
		DiagnosticsEventsDroppedTotal,
	)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

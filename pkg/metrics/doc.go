/*
Package metrics provides Prometheus metrics collection and exposition for
the vrouter-agent core: the task scheduler, the partitioned table
engine, the walker subsystem, the lifetime manager, and the flow aging
and export loop. Metrics are registered at package init and exposed via
an HTTP endpoint for scraping by Prometheus.

# Metrics Catalog

Scheduler:

vrouter_scheduler_tasks_submitted_total{class}:
  - Counter. Total tasks submitted, by task class.

vrouter_scheduler_tasks_running{class}:
  - Gauge. Tasks currently executing, by task class.

vrouter_scheduler_task_wait_seconds{class}:
  - Histogram. Time a task spent queued before it began running.

Partitioned table engine (pkg/db):

vrouter_db_shard_queue_depth{table, shard}:
  - Gauge. Pending requests on a table shard's request queue.

vrouter_db_entries_total{table}:
  - Gauge. Entries held by a table, including deleted entries not yet
    retired.

vrouter_db_overload_events_total{table, shard}:
  - Counter. Times a shard crossed its high-water mark and paused its
    producer class (spec.md section 7 OVERLOAD policy).

vrouter_db_delete_timer_expired_total{table}:
  - Counter. Delete-timer expirations observed — fatal per table
    invariants; each increment should correspond to a diagnostic dump
    and process exit.

vrouter_db_notify_duration_seconds{table, event}:
  - Histogram. Time to deliver one ADD/CHANGE/DELETE notification.

Walker subsystem:

vrouter_walks_active{table}:
  - Gauge. Walks currently in progress.

vrouter_walks_completed_total{table, outcome}:
  - Counter. Completed walks by outcome (done, cancelled).

Lifetime manager:

vrouter_lifetime_pending_actors{kind}:
  - Gauge. Actors in the retirement queue awaiting MayDelete.

vrouter_lifetime_retired_total{kind}:
  - Counter. Objects that completed Delete -> MayDelete -> Destroy.

vrouter_lifetime_retirement_duration_seconds{kind}:
  - Histogram. Time from Delete() to Destroy().

Flow aging and export loop:

vrouter_flow_table_entries_total:
  - Gauge. Active flow entries as last observed by the aging loop.

vrouter_flow_aged_total{direction}:
  - Counter. Flows aged out; the direction label carries the aging
    reason (short_flow, solo, paired).

vrouter_flow_export_total / vrouter_flow_export_failed_total:
  - Counters. Flow records handed to, or rejected by, the export sink.

vrouter_flow_pass_duration_seconds:
  - Histogram. Wall-clock duration of one aging-loop pass.

vrouter_flow_timer_interval_ms / vrouter_flow_count_per_pass:
  - Gauges. Current values of the adaptive-pacing formula (spec.md
    section 4.5).

vrouter_flow_counter_wraparound_total{field}:
  - Counter. Kernel counter wraparounds (counter plus its overflow
    field) reconciled against the 64-bit aggregate.

Diagnostics event bus (pkg/diagnostics):

vrouter_diagnostics_events_dropped_total{category}:
  - Counter. Events dropped because a subscriber's channel was full.

# Usage

	timer := metrics.NewTimer()
	// ... run a flow aging pass ...
	timer.ObserveDuration(metrics.FlowPassDuration)

	metrics.DBEntriesTotal.WithLabelValues("vrftable").Set(42)

	http.Handle("/metrics", metrics.Handler())

	checker := metrics.NewHealthChecker(agentInstance) // implements StatsSource
	http.Handle("/healthz", checker.HealthHandler())
	http.Handle("/readyz", checker.ReadyHandler())

# Integration Points

This package integrates with:

  - pkg/scheduler: submission, wait time, and running-task gauges
  - pkg/db: per-shard queue depth, entry counts, overload and
    delete-timer-expiry counters
  - pkg/walker: active and completed walk counts
  - pkg/lifetime: pending-actor and retirement counters
  - pkg/flow: the aging/export loop's pacing and counter-wraparound
    metrics
  - pkg/diagnostics: dropped-event counter
  - pkg/agent: wires a Collector that polls scheduler and table
    snapshots on an interval, the way the teacher's Collector polled
    its manager for cluster-wide counts

# Design Patterns

Metrics are package-level variables registered once in init() via
MustRegister, so every other package can reference them directly
without a constructor or registry handle. Labels are kept low-
cardinality (table name, task class, shard index, event kind) — entry
keys, UUIDs, and other unbounded values never appear as label values.
*/
package metrics

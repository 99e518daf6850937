// Package agent wires the core subsystems (scheduler, tables, walker,
// flow aging loop) into one running process — the bootstrap object a
// cmd package constructs once and starts.
package agent

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/opencontrail/vrouter-agent/pkg/config"
	"github.com/opencontrail/vrouter-agent/pkg/db"
	"github.com/opencontrail/vrouter-agent/pkg/diag"
	"github.com/opencontrail/vrouter-agent/pkg/flow"
	"github.com/opencontrail/vrouter-agent/pkg/flowtable"
	"github.com/opencontrail/vrouter-agent/pkg/log"
	"github.com/opencontrail/vrouter-agent/pkg/metrics"
	"github.com/opencontrail/vrouter-agent/pkg/scheduler"
	"github.com/opencontrail/vrouter-agent/pkg/vrerr"
	"github.com/opencontrail/vrouter-agent/pkg/vrftable"
	"github.com/opencontrail/vrouter-agent/pkg/walker"
)

// Policies is the task-class exclusion table from spec.md section 4.1.
// The spec's own table header names this class "db::DBTable" but every
// Excludes column that refers back to it spells it "DBTable"; both
// strings name the same class, so it is normalized to "DBTable" here
// (see DESIGN.md). Installed verbatim at bootstrap rather than
// discovered dynamically.
//
// Every pkg/db.Table (not one class per table) and pkg/lifetime's
// retirement sweep submit their real work under this literal "DBTable"
// class, and pkg/flow's aging loop submits under "FlowHandler" — so
// this table isn't just a declared graph, it is the graph the
// scheduler actually enforces against those classes' running tasks.
var Policies = []scheduler.Policy{
	{Name: "DBTable", Excludes: []string{"FlowHandler", "Services", "StatsCollector", "SandeshRecv", "IoReader", "Uve", "KSync"}},
	{Name: "FlowHandler", Excludes: []string{"StatsCollector", "IoReader"}},
	{Name: "SandeshRecv", Excludes: []string{"DBTable", "FlowHandler", "Services", "StatsCollector", "IoReader"}},
	{Name: "bgp::Config", Excludes: []string{"FlowHandler", "Services", "StatsCollector", "SandeshRecv", "IoReader", "XmppStateMachine", "DBTable"}},
	{Name: "xmpp::StateMachine", Excludes: []string{"IoReader", "DBTable"}},
	{Name: "KSync", Excludes: []string{"FlowHandler", "StatsCollector", "DBTable"}},
	// The classes named only as exclusion targets above still need to
	// exist for Install to resolve them; this module owns none of their
	// workloads (out of scope per spec.md section 1), so they're
	// registered with no policy of their own.
	{Name: "Services"},
	{Name: "StatsCollector"},
	{Name: "IoReader"},
	{Name: "Uve"},
	{Name: "XmppStateMachine"},
}

// Agent holds every long-lived component constructed at bootstrap.
type Agent struct {
	cfg config.Config

	Scheduler *scheduler.Scheduler
	Walker    *walker.Walker

	VrfTables  *vrftable.Table
	FlowTables *flowtable.Table

	FlowLoop *flow.Loop
	VNStats  *flow.VNStatsTable

	collector *metrics.Collector
}

// New constructs every component but does not start anything. kernel
// and sink are the out-of-scope collaborators named in spec.md section
// 6 (the kernel flow table and the export sink); sink may be nil, in
// which case flow.LoggingSink is used.
func New(cfg config.Config, kernel flow.KernelFlowTable, sink flow.ExportSink) *Agent {
	sched := scheduler.New(cfg.SchedulerWorkers)
	if err := sched.Install(Policies); err != nil {
		log.Logger.Fatal().Err(err).Msg("failed to install scheduler policy table")
	}

	a := &Agent{
		cfg:       cfg,
		Scheduler: sched,
		Walker:    walker.New(),
	}

	onInvariantViolation := func(err error) {
		a.dumpAndExit(err)
	}

	a.VrfTables = vrftable.New(sched, db.Options[string]{
		QueueHighWatermark:   cfg.DBQueueHighWatermark,
		ProducerClass:        "Services",
		OnInvariantViolation: onInvariantViolation,
	})

	a.FlowTables = flowtable.New(sched, db.Options[flowtable.Key]{
		QueueHighWatermark:   cfg.DBQueueHighWatermark,
		ProducerClass:        "FlowHandler",
		OnInvariantViolation: onInvariantViolation,
	})

	if sink == nil {
		sink = flow.NewLoggingSink()
	}
	a.VNStats = flow.NewVNStatsTable()
	a.FlowLoop = flow.New(a.FlowTables, kernel, sink, a.VNStats, sched, flow.Config{
		AgeTime:           time.Duration(cfg.FlowAgeTimeMs) * time.Millisecond,
		DefaultIntervalMs: cfg.FlowDefaultIntervalMs,
		CountPerPassMin:   cfg.FlowCountPerPassMin,
	})

	sched.OnPanic(func(panicValue any) {
		if err, ok := panicValue.(error); ok && errors.Is(err, vrerr.ErrInvariantViolation) {
			a.dumpAndExit(err)
		}
	})

	a.collector = metrics.NewCollector(a)

	return a
}

// Start starts the scheduler's worker pool, then the flow aging loop
// and the metrics collector. Tables have no start step of their own:
// their shard tasks are submitted whenever work is Enqueued and run
// once the scheduler is started.
func (a *Agent) Start() {
	a.Scheduler.Start()
	a.FlowLoop.Start()
	a.collector.Start()
}

// Stop halts the metrics collector, the flow aging loop, and the
// scheduler, in reverse order.
func (a *Agent) Stop() {
	a.collector.Stop()
	a.FlowLoop.Stop()
	a.Scheduler.Stop()
}

// SchedulerClassStats implements metrics.StatsSource.
func (a *Agent) SchedulerClassStats() []metrics.ClassSnapshot {
	stats := a.Scheduler.Stats()
	out := make([]metrics.ClassSnapshot, len(stats))
	for i, cs := range stats {
		out[i] = metrics.ClassSnapshot{Class: cs.Class, Pending: cs.Pending, Running: cs.Running, Paused: cs.Paused}
	}
	return out
}

// TableStatsSnapshots implements metrics.StatsSource.
func (a *Agent) TableStatsSnapshots() []metrics.TableSnapshot {
	tables := []db.TableStats{a.VrfTables.Stats(), a.FlowTables.Stats()}
	out := make([]metrics.TableSnapshot, len(tables))
	for i, ts := range tables {
		out[i] = metrics.TableSnapshot{Name: ts.Name, Entries: ts.Entries}
	}
	return out
}

// dumpAndExit implements spec.md section 7's fatal path: a diagnostic
// dump of scheduler and table state, then a non-zero exit. Called from
// a table's delete-timer expiry (via OnInvariantViolation) or from a
// scheduler task panic carrying vrerr.ErrInvariantViolation.
func (a *Agent) dumpAndExit(err error) {
	diag.Dump(os.Stderr, a.Scheduler, []db.TableStats{a.VrfTables.Stats(), a.FlowTables.Stats()})
	fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
	os.Exit(1)
}

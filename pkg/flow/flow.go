// Package flow implements the flow aging and export loop (spec.md
// section 4.5): a periodic pass over the flow table that reconciles
// userspace counters against the kernel's, exports a telemetry record
// for each visited flow that still has a kernel record (two for a local
// flow), and ages out flows that have gone quiet. A flow pair aged out
// together is deleted without an export.
package flow

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opencontrail/vrouter-agent/pkg/db"
	"github.com/opencontrail/vrouter-agent/pkg/flowtable"
	"github.com/opencontrail/vrouter-agent/pkg/log"
	"github.com/opencontrail/vrouter-agent/pkg/metrics"
	"github.com/opencontrail/vrouter-agent/pkg/scheduler"
	"github.com/rs/zerolog"
)

// TaskClass is the scheduler class the aging pass runs under (spec.md
// section 4.5, "a periodic task under the FlowHandler class").
const TaskClass = "FlowHandler"

const instanceKey = "aging-loop"

// Config tunes the aging loop's behavior. Zero values take the defaults
// noted per field.
type Config struct {
	// AgeTime is how long a flow may go without a stats update before it
	// becomes aging-eligible. Required.
	AgeTime time.Duration

	// DefaultIntervalMs is the pass interval used while the table is
	// empty. Defaults to 1000.
	DefaultIntervalMs int

	// CountPerPassMin floors flow_count_per_pass. Defaults to 100,
	// matching spec.md's literal formula floor.
	CountPerPassMin int

	// IntervalCeilingMs caps flow_timer_interval. Defaults to 1000,
	// matching spec.md's literal formula ceiling.
	IntervalCeilingMs int
}

// Loop is the flow aging and export loop. One Loop runs over one
// flowtable.Table.
type Loop struct {
	table   *flowtable.Table
	kernel  KernelFlowTable
	sink    ExportSink
	vnStats *VNStatsTable
	sched   *scheduler.Scheduler
	logger  zerolog.Logger

	ageTime           time.Duration
	defaultIntervalMs int
	countPerPassMin   int
	intervalCeilingMs int

	mu      sync.Mutex
	lastKey *flowtable.Key

	intervalMs   int64 // atomic, current pass interval
	countPerPass int64 // atomic, current pass size

	stopped int32
}

// New constructs a Loop. Call Start to begin passing.
func New(table *flowtable.Table, kernel KernelFlowTable, sink ExportSink, vnStats *VNStatsTable, sched *scheduler.Scheduler, cfg Config) *Loop {
	if cfg.DefaultIntervalMs <= 0 {
		cfg.DefaultIntervalMs = 1000
	}
	if cfg.CountPerPassMin <= 0 {
		cfg.CountPerPassMin = 100
	}
	if cfg.IntervalCeilingMs <= 0 {
		cfg.IntervalCeilingMs = 1000
	}
	sched.RegisterClass(TaskClass)

	l := &Loop{
		table:             table,
		kernel:            kernel,
		sink:              sink,
		vnStats:           vnStats,
		sched:             sched,
		logger:            log.WithComponent("flow-aging"),
		ageTime:           cfg.AgeTime,
		defaultIntervalMs: cfg.DefaultIntervalMs,
		countPerPassMin:   cfg.CountPerPassMin,
		intervalCeilingMs: cfg.IntervalCeilingMs,
	}
	l.intervalMs = int64(cfg.DefaultIntervalMs)
	l.countPerPass = int64(cfg.CountPerPassMin)
	return l
}

// Start submits the first pass. Subsequent passes resubmit themselves
// after an adaptively recomputed interval.
func (l *Loop) Start() {
	atomic.StoreInt32(&l.stopped, 0)
	l.scheduleNext(0)
}

// Stop prevents any further pass from being scheduled. A pass already
// queued or running completes normally.
func (l *Loop) Stop() {
	atomic.StoreInt32(&l.stopped, 1)
}

func (l *Loop) scheduleNext(after time.Duration) {
	time.AfterFunc(after, func() {
		if atomic.LoadInt32(&l.stopped) == 1 {
			return
		}
		if err := l.sched.Submit(TaskClass, instanceKey, l.pass); err != nil {
			l.logger.Error().Err(err).Msg("failed to submit aging pass")
		}
	})
}

// pass processes up to flow_count_per_pass entries and reschedules
// itself (spec.md section 4.5 "Timer").
func (l *Loop) pass() {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.FlowPassDuration)

	batch := l.nextBatch()
	for _, key := range batch {
		l.processEntry(key)
	}

	total := l.table.Len()
	metrics.FlowTableEntriesTotal.Set(float64(total))
	l.recalcPacing(total)

	if atomic.LoadInt32(&l.stopped) == 1 {
		return
	}
	l.scheduleNext(time.Duration(atomic.LoadInt64(&l.intervalMs)) * time.Millisecond)
}

// nextBatch returns up to flow_count_per_pass keys, starting from the
// successor of the last-visited key in sorted order and wrapping to the
// beginning at end (spec.md section 4.5 "Timer").
func (l *Loop) nextBatch() []flowtable.Key {
	keys := l.table.Keys()
	if len(keys) == 0 {
		return nil
	}
	sort.Slice(keys, func(i, j int) bool { return lessKey(keys[i], keys[j]) })

	l.mu.Lock()
	start := 0
	if l.lastKey != nil {
		start = sort.Search(len(keys), func(i int) bool { return lessKey(*l.lastKey, keys[i]) })
		if start == len(keys) {
			start = 0
		}
	}
	l.mu.Unlock()

	count := int(atomic.LoadInt64(&l.countPerPass))
	if count > len(keys) {
		count = len(keys)
	}

	batch := make([]flowtable.Key, 0, count)
	for i := 0; i < count; i++ {
		batch = append(batch, keys[(start+i)%len(keys)])
	}

	if len(batch) > 0 {
		l.mu.Lock()
		last := batch[len(batch)-1]
		l.lastKey = &last
		l.mu.Unlock()
	}
	return batch
}

func lessKey(a, b flowtable.Key) bool {
	if a.SrcIP != b.SrcIP {
		return a.SrcIP < b.SrcIP
	}
	if a.DstIP != b.DstIP {
		return a.DstIP < b.DstIP
	}
	if a.Proto != b.Proto {
		return a.Proto < b.Proto
	}
	if a.SrcPort != b.SrcPort {
		return a.SrcPort < b.SrcPort
	}
	return a.DstPort < b.DstPort
}

// processEntry runs the per-entry algorithm for key (spec.md section
// 4.5 "Per-entry algorithm").
func (l *Loop) processEntry(key flowtable.Key) {
	entry, ok := l.table.Lookup(key)
	if !ok {
		return
	}

	rec, kernelPresent := l.kernel.Lookup(entry.FlowHandle)

	if kernelPresent && (uint64(rec.Bytes) < entry.Bytes&0xFFFFFFFF || uint64(rec.Packets) < entry.Packets&0xFFFFFFFF) {
		// The kernel slot was reused for a different flow; this entry no
		// longer shadows anything real this pass.
		return
	}

	now := time.Now()
	agingEligible := now.Sub(entry.LastModifiedTime) >= l.ageTime

	if agingEligible && entry.HasReverse {
		reverse, reverseOK := l.table.Lookup(entry.ReverseKey)
		reverseAgingEligible := reverseOK && now.Sub(reverse.LastModifiedTime) >= l.ageTime
		if !reverseAgingEligible {
			// Paired aging: both sides must be eligible before either is
			// removed.
			agingEligible = false
		} else {
			l.deletePaired(key, entry.ReverseKey)
			return
		}
	}

	if kernelPresent {
		l.reconcileAndExport(key, entry, rec)
	}

	if entry.ShortFlow {
		metrics.FlowAgedTotal.WithLabelValues("short_flow").Inc()
		_ = l.table.Enqueue(db.OpDelete, key, nil)
		return
	}

	if agingEligible && !entry.HasReverse {
		metrics.FlowAgedTotal.WithLabelValues("solo").Inc()
		_ = l.table.Enqueue(db.OpDelete, key, nil)
	}
}

func (l *Loop) deletePaired(key, reverseKey flowtable.Key) {
	metrics.FlowAgedTotal.WithLabelValues("paired").Inc()
	_ = l.table.Enqueue(db.OpDelete, key, nil)
	_ = l.table.Enqueue(db.OpDelete, reverseKey, nil)
}

// reconcileAndExport reconciles counters against the kernel record,
// updates the VN-stats aggregator, persists the new counters, and emits
// export record(s) for entry (spec.md section 4.5 steps 4 and "Export
// record semantics").
func (l *Loop) reconcileAndExport(key flowtable.Key, entry flowtable.Entry, rec KernelFlowRecord) {
	newBytes, bytesWrapped := reconcileBytes(entry.Bytes, rec)
	newPackets, packetsWrapped := reconcilePackets(entry.Packets, rec)
	if bytesWrapped {
		metrics.FlowCounterWraparoundTotal.WithLabelValues("bytes").Inc()
	}
	if packetsWrapped {
		metrics.FlowCounterWraparoundTotal.WithLabelValues("packets").Inc()
	}

	diffBytes := newBytes - entry.Bytes
	diffPackets := newPackets - entry.Packets
	l.vnStats.Add(entry.SrcVN, entry.DstVN, diffBytes, diffPackets)

	now := time.Now()
	_ = l.table.Enqueue(db.OpChange, key, func(e *flowtable.Entry) {
		e.Bytes = newBytes
		e.Packets = newPackets
		e.LastModifiedTime = now
	})

	ingressRecord := l.buildExportRecord(entry, newBytes, newPackets, diffBytes, diffPackets, true)
	l.export(ingressRecord)

	if entry.Local {
		egressRecord := l.buildExportRecord(entry, newBytes, newPackets, diffBytes, diffPackets, false)
		egressRecord.PrimaryUUID = entry.EgressUUID
		l.export(egressRecord)
	}
}

// buildExportRecord assembles a FlowDataIpv4 for entry, applying the
// NAT source-IP override on the ingress direction only (spec.md section
// 4.5 "Source-IP override").
func (l *Loop) buildExportRecord(entry flowtable.Entry, bytes, packets, diffBytes, diffPackets uint64, ingress bool) FlowDataIpv4 {
	srcIP := entry.Key.SrcIP
	if ingress && entry.Nat && entry.HasReverse {
		if reverse, ok := l.table.Lookup(entry.ReverseKey); ok && reverse.Key.DstIP != srcIP {
			srcIP = reverse.Key.DstIP
		}
	}

	return FlowDataIpv4{
		PrimaryUUID:      entry.PrimaryUUID,
		EgressUUID:       entry.EgressUUID,
		SrcIP:            srcIP,
		DstIP:            entry.Key.DstIP,
		Proto:            entry.Key.Proto,
		SrcPort:          entry.Key.SrcPort,
		DstPort:          entry.Key.DstPort,
		SrcVN:            entry.SrcVN,
		DstVN:            entry.DstVN,
		VMName:           entry.VMName,
		Bytes:            bytes,
		Packets:          packets,
		DiffBytes:        diffBytes,
		DiffPackets:      diffPackets,
		SetupTime:        entry.SetupTime,
		TeardownTime:     entry.TeardownTime,
		DirectionIngress: ingress,
	}
}

func (l *Loop) export(rec FlowDataIpv4) {
	if err := l.sink.Export(context.Background(), rec); err != nil {
		metrics.FlowExportFailedTotal.Inc()
		l.logger.Warn().Err(err).Str("primary_uuid", rec.PrimaryUUID.String()).Msg("flow export failed")
		return
	}
	metrics.FlowExportTotal.Inc()
}

// recalcPacing recomputes flow_timer_interval and flow_count_per_pass
// (spec.md section 4.5 "Adaptive pacing"). The spec leaves the pass
// formula's multiplier unspecified; this module fixes it at 1.0 (see
// DESIGN.md).
func (l *Loop) recalcPacing(totalFlows int) {
	ageMs := float64(l.ageTime.Milliseconds())

	var intervalMs float64
	if totalFlows == 0 {
		intervalMs = float64(l.defaultIntervalMs)
	} else {
		intervalMs = ageMs / float64(totalFlows)
		if intervalMs > float64(l.intervalCeilingMs) {
			intervalMs = float64(l.intervalCeilingMs)
		}
	}

	countPerPass := intervalMs * float64(totalFlows) / ageMs
	if countPerPass < float64(l.countPerPassMin) {
		countPerPass = float64(l.countPerPassMin)
	}

	atomic.StoreInt64(&l.intervalMs, int64(intervalMs))
	atomic.StoreInt64(&l.countPerPass, int64(countPerPass))
	metrics.FlowTimerIntervalMs.Set(intervalMs)
	metrics.FlowCountPerPass.Set(countPerPass)
}

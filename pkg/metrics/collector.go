package metrics

import "time"

// StatsSource is the subset of agent.Agent a Collector polls. Defined
// here (rather than imported from pkg/agent) to avoid a dependency
// cycle, since pkg/agent already imports pkg/metrics indirectly through
// pkg/scheduler and pkg/db.
type StatsSource interface {
	SchedulerClassStats() []ClassSnapshot
	TableStatsSnapshots() []TableSnapshot
}

// ClassSnapshot mirrors scheduler.ClassStats without importing
// pkg/scheduler from pkg/metrics.
type ClassSnapshot struct {
	Class   string
	Pending int
	Running int
	Paused  bool
}

// TableSnapshot mirrors db.TableStats without importing pkg/db.
type TableSnapshot struct {
	Name    string
	Entries int
}

// Collector periodically republishes a running agent's scheduler and
// table snapshots as gauges, the way the teacher's Collector polled its
// manager for node/service/task counts.
type Collector struct {
	source StatsSource
	stopCh chan struct{}
}

// NewCollector creates a Collector that polls source every interval
// tick once started.
func NewCollector(source StatsSource) *Collector {
	return &Collector{
		source: source,
		stopCh: make(chan struct{}),
	}
}

// Start begins collecting metrics every 15 seconds.
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop halts collection.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	for _, cs := range c.source.SchedulerClassStats() {
		SchedulerTasksRunning.WithLabelValues(cs.Class).Set(float64(cs.Running))
	}
	for _, ts := range c.source.TableStatsSnapshots() {
		DBEntriesTotal.WithLabelValues(ts.Name).Set(float64(ts.Entries))
	}
}

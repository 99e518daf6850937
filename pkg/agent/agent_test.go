package agent

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/opencontrail/vrouter-agent/pkg/config"
	"github.com/opencontrail/vrouter-agent/pkg/db"
	"github.com/opencontrail/vrouter-agent/pkg/flow"
	"github.com/opencontrail/vrouter-agent/pkg/flowtable"
	"github.com/opencontrail/vrouter-agent/pkg/vrftable"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeKernel struct {
	mu      sync.Mutex
	records map[uint32]flow.KernelFlowRecord
}

func newFakeKernel() *fakeKernel {
	return &fakeKernel{records: make(map[uint32]flow.KernelFlowRecord)}
}

func (k *fakeKernel) Lookup(handle uint32) (flow.KernelFlowRecord, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	rec, ok := k.records[handle]
	return rec, ok
}

type recordingSink struct {
	mu      sync.Mutex
	records []flow.FlowDataIpv4
}

func (s *recordingSink) Export(ctx context.Context, rec flow.FlowDataIpv4) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

func testConfig() config.Config {
	cfg := config.Defaults()
	cfg.SchedulerWorkers = 2
	cfg.DBQueueHighWatermark = 64
	cfg.FlowAgeTimeMs = 3600000
	return cfg
}

func TestNew_WiresAllComponents(t *testing.T) {
	a := New(testConfig(), newFakeKernel(), &recordingSink{})
	t.Cleanup(a.Stop)

	require.NotNil(t, a.Scheduler)
	require.NotNil(t, a.Walker)
	require.NotNil(t, a.VrfTables)
	require.NotNil(t, a.FlowTables)
	require.NotNil(t, a.FlowLoop)
	require.NotNil(t, a.VNStats)
}

func TestNew_NilSinkDefaultsToLogging(t *testing.T) {
	a := New(testConfig(), newFakeKernel(), nil)
	t.Cleanup(a.Stop)
	require.NotNil(t, a.FlowLoop)
}

func TestStartStop_RunsFlowTableTraffic(t *testing.T) {
	a := New(testConfig(), newFakeKernel(), &recordingSink{})
	a.Start()
	t.Cleanup(a.Stop)

	key := flowtable.Key{SrcIP: 1, DstIP: 2, Proto: 6, SrcPort: 1000, DstPort: 80}
	require.NoError(t, a.FlowTables.Enqueue(db.OpAdd, key, flowtable.Entry{
		LastModifiedTime: time.Now(),
	}))

	require.Eventually(t, func() bool {
		_, ok := a.FlowTables.Lookup(key)
		return ok
	}, time.Second, time.Millisecond)

	stats := a.FlowTables.Stats()
	assert.Equal(t, 1, stats.Entries)
}

func TestStartStop_VrfTableIndependentOfFlowTable(t *testing.T) {
	a := New(testConfig(), newFakeKernel(), &recordingSink{})
	a.Start()
	t.Cleanup(a.Stop)

	require.NoError(t, a.VrfTables.Enqueue(db.OpAdd, "default-domain:admin:vrf1", vrftable.Entry{}))

	require.Eventually(t, func() bool {
		_, ok := a.VrfTables.Lookup("default-domain:admin:vrf1")
		return ok
	}, time.Second, time.Millisecond)
}

// TestPolicies_DBTableExcludesFlowHandler_EnforcedAtRuntime asserts the
// exclusion graph actually governs real task classes, not just that its
// names resolve: a task submitted under "DBTable" (the class every
// table's shard drain and the lifetime sweep run under) must block a
// "FlowHandler" task (the class the flow aging loop runs under) from
// starting until the DBTable task finishes.
func TestPolicies_DBTableExcludesFlowHandler_EnforcedAtRuntime(t *testing.T) {
	a := New(testConfig(), newFakeKernel(), &recordingSink{})
	a.Start()
	t.Cleanup(a.Stop)

	release := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, a.Scheduler.Submit("DBTable", "blocker", func() {
		close(started)
		<-release
	}))
	<-started

	flowRan := make(chan struct{})
	require.NoError(t, a.Scheduler.Submit("FlowHandler", "probe", func() {
		close(flowRan)
	}))

	select {
	case <-flowRan:
		t.Fatal("FlowHandler task ran concurrently with a running DBTable task")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	require.Eventually(t, func() bool {
		select {
		case <-flowRan:
			return true
		default:
			return false
		}
	}, time.Second, time.Millisecond)
}

func TestPolicies_ResolveEveryExclusionTarget(t *testing.T) {
	named := make(map[string]bool)
	for _, p := range Policies {
		named[p.Name] = true
	}
	for _, p := range Policies {
		for _, excl := range p.Excludes {
			assert.True(t, named[excl], "policy %q excludes unregistered class %q", p.Name, excl)
		}
	}
}

package routetable

import (
	"testing"
	"time"

	"github.com/opencontrail/vrouter-agent/pkg/db"
	"github.com/opencontrail/vrouter-agent/pkg/scheduler"
	"github.com/stretchr/testify/require"
)

func newTestScheduler(t *testing.T) *scheduler.Scheduler {
	t.Helper()
	sched := scheduler.New(2)
	require.NoError(t, sched.Install(nil))
	sched.Start()
	t.Cleanup(sched.Stop)
	return sched
}

func TestAddAndLookup_StampsPrefixFromKey(t *testing.T) {
	sched := newTestScheduler(t)
	table := New("inet.0", sched, db.Options[string]{Shards: 2})

	require.NoError(t, table.Enqueue(db.OpAdd, "10.0.0.0/24", Entry{NextHop: "10.0.0.1", Peer: "peerA"}))

	require.Eventually(t, func() bool {
		e, ok := table.Lookup("10.0.0.0/24")
		return ok && e.Prefix == "10.0.0.0/24" && e.NextHop == "10.0.0.1"
	}, time.Second, time.Millisecond)
}

func TestChange_ReplacesNextHopButKeepsPrefix(t *testing.T) {
	sched := newTestScheduler(t)
	table := New("inet.0", sched, db.Options[string]{Shards: 1})

	require.NoError(t, table.Enqueue(db.OpAdd, "10.0.0.0/24", Entry{NextHop: "10.0.0.1", Peer: "peerA"}))
	require.Eventually(t, func() bool { _, ok := table.Lookup("10.0.0.0/24"); return ok }, time.Second, time.Millisecond)

	require.NoError(t, table.Enqueue(db.OpChange, "10.0.0.0/24", Entry{NextHop: "10.0.0.2", Peer: "peerA"}))

	require.Eventually(t, func() bool {
		e, ok := table.Lookup("10.0.0.0/24")
		return ok && e.NextHop == "10.0.0.2" && e.Prefix == "10.0.0.0/24"
	}, time.Second, time.Millisecond)
}

func TestDelete_RemovesEntryWhenNoListeners(t *testing.T) {
	sched := newTestScheduler(t)
	table := New("inet.0", sched, db.Options[string]{Shards: 1})

	require.NoError(t, table.Enqueue(db.OpAdd, "10.0.0.0/24", Entry{NextHop: "10.0.0.1", Peer: "peerA"}))
	require.Eventually(t, func() bool { _, ok := table.Lookup("10.0.0.0/24"); return ok }, time.Second, time.Millisecond)

	require.NoError(t, table.Enqueue(db.OpDelete, "10.0.0.0/24", nil))

	require.Eventually(t, func() bool {
		_, ok := table.Lookup("10.0.0.0/24")
		return !ok
	}, time.Second, time.Millisecond)
}

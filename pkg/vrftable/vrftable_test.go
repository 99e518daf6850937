package vrftable

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/opencontrail/vrouter-agent/pkg/db"
	"github.com/opencontrail/vrouter-agent/pkg/routetable"
	"github.com/opencontrail/vrouter-agent/pkg/scheduler"
	"github.com/opencontrail/vrouter-agent/pkg/walker"
	"github.com/stretchr/testify/require"
)

func newTestScheduler(t *testing.T) *scheduler.Scheduler {
	t.Helper()
	sched := scheduler.New(4)
	require.NoError(t, sched.Install(nil))
	sched.Start()
	t.Cleanup(sched.Stop)
	return sched
}

func TestDeletePeerRoutes_RemovesOnlyMatchingPeerAcrossAllVrfs(t *testing.T) {
	sched := newTestScheduler(t)
	vrfTable := New(sched, db.Options[string]{Shards: 2})

	red := routetable.New("routes-red", sched, db.Options[string]{Shards: 2})
	blue := routetable.New("routes-blue", sched, db.Options[string]{Shards: 2})

	require.NoError(t, vrfTable.Enqueue(db.OpAdd, "red", red))
	require.NoError(t, vrfTable.Enqueue(db.OpAdd, "blue", blue))
	require.Eventually(t, func() bool { return vrfTable.Len() == 2 }, time.Second, time.Millisecond)

	require.NoError(t, red.Enqueue(db.OpAdd, "10.0.0.0/24", routetable.Entry{NextHop: "10.0.0.1", Peer: "peerA"}))
	require.NoError(t, red.Enqueue(db.OpAdd, "10.0.1.0/24", routetable.Entry{NextHop: "10.0.1.1", Peer: "peerB"}))
	require.NoError(t, blue.Enqueue(db.OpAdd, "10.1.0.0/24", routetable.Entry{NextHop: "10.1.0.1", Peer: "peerA"}))
	require.Eventually(t, func() bool { return red.Len() == 2 && blue.Len() == 1 }, time.Second, time.Millisecond)

	w := walker.New()
	var completed int32
	DeletePeerRoutes(w, vrfTable, "peerA", func() {
		atomic.StoreInt32(&completed, 1)
	})

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&completed) == 1
	}, time.Second, time.Millisecond)

	require.Eventually(t, func() bool { return red.Len() == 1 }, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return blue.Len() == 0 }, time.Second, time.Millisecond)

	payload, ok := red.Lookup("10.0.1.0/24")
	require.True(t, ok)
	require.Equal(t, "peerB", payload.Peer)
}

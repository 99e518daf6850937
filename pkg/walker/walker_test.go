package walker

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/opencontrail/vrouter-agent/pkg/db"
	"github.com/opencontrail/vrouter-agent/pkg/scheduler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type walkPayload struct{ val int }

type walkHooks struct{}

func (walkHooks) Alloc(key string, data any) walkPayload {
	v, _ := data.(int)
	return walkPayload{val: v}
}
func (walkHooks) OnChange(payload *walkPayload, data any) bool { return false }
func (walkHooks) CanDelete(payload *walkPayload) bool          { return true }
func (walkHooks) CanNotify(payload *walkPayload) bool          { return true }

func newWalkTestScheduler(t *testing.T) *scheduler.Scheduler {
	t.Helper()
	sched := scheduler.New(4)
	require.NoError(t, sched.Install(nil))
	sched.Start()
	t.Cleanup(sched.Stop)
	return sched
}

func TestWalkTable_VisitsEveryLiveEntry(t *testing.T) {
	sched := newWalkTestScheduler(t)
	tbl := db.New[string, walkPayload]("walk-test", walkHooks{}, sched, db.Options[string]{Shards: 4})

	for i := 0; i < 20; i++ {
		require.NoError(t, tbl.Enqueue(db.OpAdd, string(rune('a'+i)), i))
	}
	require.Eventually(t, func() bool { return tbl.Len() == 20 }, time.Second, time.Millisecond)

	var visited int32
	var doneCalled int32
	w := New()

	WalkTable(w, tbl, func(shardIndex int, e *db.Entry[string, walkPayload]) {
		atomic.AddInt32(&visited, 1)
	}, func(table *db.Table[string, walkPayload], cancelled bool) {
		atomic.StoreInt32(&doneCalled, 1)
		assert.False(t, cancelled)
	})

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&doneCalled) == 1
	}, time.Second, time.Millisecond)
	assert.Equal(t, int32(20), atomic.LoadInt32(&visited))
}

func TestWalkTable_EmptyTableStillCallsDone(t *testing.T) {
	sched := newWalkTestScheduler(t)
	tbl := db.New[string, walkPayload]("walk-empty", walkHooks{}, sched, db.Options[string]{Shards: 2})

	var doneCalled int32
	w := New()
	WalkTable(w, tbl, func(shardIndex int, e *db.Entry[string, walkPayload]) {
		t.Fatal("entryFn should never run on an empty table")
	}, func(table *db.Table[string, walkPayload], cancelled bool) {
		atomic.StoreInt32(&doneCalled, 1)
	})

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&doneCalled) == 1
	}, time.Second, time.Millisecond)
}

func TestWalkTable_CancelStopsVisitingAndDoneReportsCancelled(t *testing.T) {
	sched := newWalkTestScheduler(t)
	tbl := db.New[string, walkPayload]("walk-cancel", walkHooks{}, sched, db.Options[string]{Shards: 1})

	for i := 0; i < 50; i++ {
		require.NoError(t, tbl.Enqueue(db.OpAdd, string(rune('a'+i)), i))
	}
	require.Eventually(t, func() bool { return tbl.Len() == 50 }, time.Second, time.Millisecond)

	var doneCalled int32
	var cancelledFlag int32
	w := New()

	var id WalkId
	var once sync.Once
	id = WalkTable(w, tbl, func(shardIndex int, e *db.Entry[string, walkPayload]) {
		once.Do(func() { w.Cancel(id) })
	}, func(table *db.Table[string, walkPayload], cancelled bool) {
		atomic.StoreInt32(&doneCalled, 1)
		if cancelled {
			atomic.StoreInt32(&cancelledFlag, 1)
		}
	})

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&doneCalled) == 1
	}, time.Second, time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&cancelledFlag))
}

func TestCompositeWalk_FiresOnlyAfterOuterAndAllInnerDone(t *testing.T) {
	var fired int32
	cw := NewCompositeWalk(func() {
		atomic.AddInt32(&fired, 1)
	})

	cw.Spawn()
	cw.Spawn()
	cw.OuterDone()

	assert.Equal(t, int32(0), atomic.LoadInt32(&fired), "must wait for both inner walks")

	cw.InnerDone()
	assert.Equal(t, int32(0), atomic.LoadInt32(&fired), "one inner walk still pending")

	cw.InnerDone()
	assert.Equal(t, int32(1), atomic.LoadInt32(&fired))
}

func TestCompositeWalk_FiresExactlyOnce(t *testing.T) {
	var fired int32
	cw := NewCompositeWalk(func() {
		atomic.AddInt32(&fired, 1)
	})

	cw.OuterDone()
	cw.OuterDone()

	assert.Equal(t, int32(1), atomic.LoadInt32(&fired))
}

func TestCompositeWalk_NoInnerWalksCompletesImmediately(t *testing.T) {
	done := make(chan struct{})
	cw := NewCompositeWalk(func() { close(done) })
	cw.OuterDone()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected onComplete to fire with no inner walks pending")
	}
}

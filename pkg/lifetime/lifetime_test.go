package lifetime

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/opencontrail/vrouter-agent/pkg/scheduler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeActor struct {
	mayDelete int32
	destroyed int32
	shutdown  int32
}

func (f *fakeActor) MayDelete() bool { return atomic.LoadInt32(&f.mayDelete) != 0 }
func (f *fakeActor) Shutdown()       { atomic.AddInt32(&f.shutdown, 1) }
func (f *fakeActor) Destroy()        { atomic.AddInt32(&f.destroyed, 1) }

func newTestManager(t *testing.T) (*Manager, *scheduler.Scheduler) {
	t.Helper()
	sched := scheduler.New(2)
	require.NoError(t, sched.Install(nil))
	sched.Start()
	t.Cleanup(sched.Stop)
	mgr := New(sched, Config{Kind: "test-actor", SweepInterval: 10 * time.Millisecond})
	return mgr, sched
}

func TestDelete_DestroysOnceMayDeleteIsTrue(t *testing.T) {
	mgr, _ := newTestManager(t)
	actor := &fakeActor{mayDelete: 1}

	mgr.Delete(actor)

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&actor.destroyed) == 1
	}, time.Second, time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&actor.shutdown), "Shutdown must run before Destroy")
}

func TestDelete_WaitsUntilMayDeleteAllows(t *testing.T) {
	mgr, _ := newTestManager(t)
	actor := &fakeActor{mayDelete: 0}

	mgr.Delete(actor)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&actor.destroyed))
	assert.Equal(t, 1, mgr.Pending())

	atomic.StoreInt32(&actor.mayDelete, 1)

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&actor.destroyed) == 1
	}, time.Second, time.Millisecond)
	assert.Equal(t, 0, mgr.Pending())
}

func TestDelete_IsIdempotent(t *testing.T) {
	mgr, _ := newTestManager(t)
	actor := &fakeActor{mayDelete: 1}

	mgr.Delete(actor)
	mgr.Delete(actor)

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&actor.destroyed) >= 1
	}, time.Second, time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&actor.destroyed), "Destroy must be called exactly once")
}

func TestShutdown_RetiresEligibleActorsSynchronously(t *testing.T) {
	mgr, _ := newTestManager(t)
	eligible := &fakeActor{mayDelete: 1}
	ineligible := &fakeActor{mayDelete: 0}

	mgr.Delete(eligible)
	mgr.Delete(ineligible)

	mgr.Shutdown()

	assert.Equal(t, int32(1), atomic.LoadInt32(&eligible.destroyed))
	assert.Equal(t, int32(0), atomic.LoadInt32(&ineligible.destroyed))
}

package walker

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/opencontrail/vrouter-agent/pkg/db"
	"github.com/opencontrail/vrouter-agent/pkg/log"
	"github.com/opencontrail/vrouter-agent/pkg/metrics"
)

// WalkId identifies one in-flight or completed walk, returned by
// WalkTable and accepted by (*Walker).Cancel.
type WalkId int64

// EntryFunc is invoked once per live entry, synchronously within the
// shard task that owns it.
type EntryFunc[K comparable, P any] func(shardIndex int, entry *db.Entry[K, P])

// DoneFunc runs once all shards have been visited (or the walk was
// cancelled), on the same task class the walk itself ran under.
// cancelled reports whether WalkCancel was called before completion.
type DoneFunc[K comparable, P any] func(table *db.Table[K, P], cancelled bool)

// Walker tracks cancellation state for walks it started. A process
// normally constructs one Walker and threads it to every component that
// needs to start a walk, per the "explicit context threaded at
// construction" convention used throughout this module.
type Walker struct {
	mu        sync.Mutex
	nextID    WalkId
	cancelled map[WalkId]bool
}

// New constructs an empty Walker.
func New() *Walker {
	return &Walker{cancelled: make(map[WalkId]bool)}
}

// Cancel marks id cancelled. Shard tasks already running check the flag
// between entries and stop early; done_fn still runs exactly once.
func (w *Walker) Cancel(id WalkId) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.cancelled[id] = true
}

func (w *Walker) isCancelled(id WalkId) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cancelled[id]
}

func (w *Walker) forget(id WalkId) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.cancelled, id)
}

// WalkTable submits one task per shard of table, under table's own
// scheduler class so the walk can never race that shard's drain task.
// Each shard task invokes entryFn for every live entry in a snapshot of
// that shard taken at task-start. Once every shard has been visited (or
// the walk is cancelled), doneFn runs exactly once.
//
// Method type parameters aren't a thing in Go, so this is a free
// function taking the Walker as its first argument rather than a method
// on Walker.
func WalkTable[K comparable, P any](w *Walker, table *db.Table[K, P], entryFn EntryFunc[K, P], doneFn DoneFunc[K, P]) WalkId {
	w.mu.Lock()
	w.nextID++
	id := w.nextID
	w.cancelled[id] = false
	w.mu.Unlock()

	logger := log.WithComponent("walker")
	metrics.WalksActive.WithLabelValues(table.Name()).Inc()

	shards := table.Shards()
	remaining := int64(shards)
	var fired int32

	finish := func() {
		if !atomic.CompareAndSwapInt32(&fired, 0, 1) {
			return
		}
		metrics.WalksActive.WithLabelValues(table.Name()).Dec()
		cancelled := w.isCancelled(id)
		outcome := "done"
		if cancelled {
			outcome = "cancelled"
		}
		metrics.WalksCompletedTotal.WithLabelValues(table.Name(), outcome).Inc()
		w.forget(id)
		doneFn(table, cancelled)
	}

	if shards == 0 {
		finish()
		return id
	}

	sched := table.Scheduler()
	class := table.Class()
	for i := 0; i < shards; i++ {
		shardIndex := i
		instanceKey := fmt.Sprintf("%s-shard-%d", table.Name(), shardIndex)
		err := sched.Submit(class, instanceKey, func() {
			walkShard(w, id, table, shardIndex, entryFn)
			if atomic.AddInt64(&remaining, -1) == 0 {
				finish()
			}
		})
		if err != nil {
			logger.Error().Err(err).Str("table", table.Name()).Int("shard", shardIndex).
				Msg("walker: failed to submit shard task")
			if atomic.AddInt64(&remaining, -1) == 0 {
				finish()
			}
		}
	}

	return id
}

func walkShard[K comparable, P any](w *Walker, id WalkId, table *db.Table[K, P], shardIndex int, entryFn EntryFunc[K, P]) {
	for _, e := range table.SnapshotShard(shardIndex) {
		if w.isCancelled(id) {
			return
		}
		entryFn(shardIndex, e)
	}
}

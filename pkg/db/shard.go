package db

import (
	"fmt"
	"time"

	"github.com/opencontrail/vrouter-agent/pkg/metrics"
	"github.com/opencontrail/vrouter-agent/pkg/vrerr"
)

// drain processes every request currently queued on the shard. It runs
// as a single scheduler task (class "DBTable", instance
// "<table>-shard-<n>"), so the queue swap below never races with a
// concurrent drain of the same shard — the scheduler's intra-instance
// serialization guarantees exactly that.
func (s *shard[K, P]) drain() {
	s.mu.Lock()
	batch := s.queue
	s.queue = nil
	s.mu.Unlock()

	for _, req := range batch {
		s.table.process(s, req)
	}

	s.mu.Lock()
	depth := len(s.queue)
	s.mu.Unlock()

	// Lift OVERLOAD backpressure once this shard is back under its
	// high-water mark (see Enqueue).
	if s.table.producerClass != "" && depth < s.table.highWatermark {
		s.table.sched.Resume(s.table.producerClass)
	}

	metrics.DBShardQueueDepth.WithLabelValues(s.table.name, fmt.Sprint(s.index)).Set(float64(depth))
	metrics.DBEntriesTotal.WithLabelValues(s.table.name).Set(float64(s.table.Len()))
}

func (t *Table[K, P]) process(s *shard[K, P], req request[K]) {
	switch req.op {
	case OpAdd:
		t.processAdd(s, req)
	case OpChange:
		t.processChange(s, req)
	case OpDelete:
		t.processDelete(s, req)
	}
}

func (t *Table[K, P]) processAdd(s *shard[K, P], req request[K]) {
	s.mu.Lock()
	existing, ok := s.entries[req.key]

	switch {
	case ok && !existing.Deleted:
		s.mu.Unlock()
		t.applyChange(s, existing)
		return

	case ok && existing.Deleted:
		// The entry is retiring. Ask the resync source whether this
		// add is really the same logical object being recreated
		// (spec.md section 4.3 reuse protocol).
		if t.resync == nil {
			s.mu.Unlock()
			return
		}
		data, resyncOK := t.resync.Resync(t.name, req.key)
		if !resyncOK {
			s.mu.Unlock()
			return
		}
		existing.Payload = t.hooks.Alloc(req.key, data)
		existing.Deleted = false
		s.mu.Unlock()
		if t.hooks.CanNotify(&existing.Payload) {
			t.notifyAdd(s, existing)
		}
		return

	default:
		payload := t.hooks.Alloc(req.key, req.data)
		e := newEntry(req.key, payload)
		s.entries[req.key] = e
		s.mu.Unlock()
		if t.hooks.CanNotify(&e.Payload) {
			t.notifyAdd(s, e)
		}
	}
}

func (t *Table[K, P]) processChange(s *shard[K, P], req request[K]) {
	s.mu.Lock()
	e, ok := s.entries[req.key]
	if !ok || e.Deleted {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	changed := t.hooks.OnChange(&e.Payload, req.data)
	if changed && t.hooks.CanNotify(&e.Payload) {
		t.notifyChange(s, e)
	}
}

// applyChange handles an Add request that arrived for a key already
// present and live — treated as a CHANGE, matching many real table
// implementations where re-adding an existing key updates it in place.
func (t *Table[K, P]) applyChange(s *shard[K, P], e *Entry[K, P]) {
	changed := t.hooks.OnChange(&e.Payload, nil)
	if changed && t.hooks.CanNotify(&e.Payload) {
		t.notifyChange(s, e)
	}
}

func (t *Table[K, P]) processDelete(s *shard[K, P], req request[K]) {
	s.mu.Lock()
	e, ok := s.entries[req.key]
	if !ok || e.Deleted {
		s.mu.Unlock()
		return
	}
	e.Deleted = true
	s.mu.Unlock()

	t.notifyDelete(s, e)

	s.mu.Lock()
	ready := e.refCount() == 0 && t.hooks.CanDelete(&e.Payload)
	s.mu.Unlock()

	if ready {
		t.finalizeDelete(s, e)
		return
	}

	actor := &entryActor[K, P]{table: t, shard: s, entry: e}
	t.lifetimeMgr.Delete(actor)
	t.armDeleteDeadline(s, e)
}

// armDeleteDeadline fails the process if e is still present past the
// table's delete deadline — spec.md section 7's invariant-violation
// policy for a delete-timer expiry.
func (t *Table[K, P]) armDeleteDeadline(s *shard[K, P], e *Entry[K, P]) {
	time.AfterFunc(t.deleteDeadline, func() {
		s.mu.Lock()
		_, stillPresent := s.entries[e.Key]
		refs := e.refCount()
		s.mu.Unlock()
		if !stillPresent {
			return
		}
		metrics.DBDeleteTimerExpiredTotal.WithLabelValues(t.name).Inc()
		t.onInvariantViolation(fmt.Errorf(
			"table %s entry %v: delete deadline exceeded with %d listener(s) still attached: %w",
			t.name, e.Key, refs, vrerr.ErrInvariantViolation))
	})
}

// finalizeDelete physically removes e from s. Called directly from
// processDelete when no listener still holds e after the DELETE
// notification, from ReleaseState when the last listener releases it,
// and from the lifetime.Manager (via entryActor.Destroy) once MayDelete
// reports the entry is fully dereferenced.
func (t *Table[K, P]) finalizeDelete(s *shard[K, P], e *Entry[K, P]) {
	s.mu.Lock()
	delete(s.entries, e.Key)
	s.mu.Unlock()
	metrics.DBEntriesTotal.WithLabelValues(t.name).Set(float64(t.Len()))
}

// notifyAdd fans out an ADD to every registered listener, recording each
// as holding a reference to e. e.states is only ever touched under s.mu
// — drain runs each shard's requests one at a time, but ReleaseState can
// be called from any listener's own goroutine at any moment, so the
// entry's reference set needs its own lock discipline independent of
// the single-threaded drain path.
func (t *Table[K, P]) notifyAdd(s *shard[K, P], e *Entry[K, P]) {
	t.listenersMu.RLock()
	fns := make(map[ListenerID]NotifyFunc[K, P], len(t.listeners))
	for id, fn := range t.listeners {
		fns[id] = fn
	}
	t.listenersMu.RUnlock()

	for id, fn := range fns {
		s.mu.Lock()
		e.states[id] = struct{}{}
		s.mu.Unlock()

		timer := metrics.NewTimer()
		fn(OpAdd, e)
		timer.ObserveDurationVec(metrics.DBNotifyDuration, t.name, "ADD")
	}
}

func (t *Table[K, P]) notifyChange(s *shard[K, P], e *Entry[K, P]) {
	s.mu.Lock()
	ids := make([]ListenerID, 0, len(e.states))
	for id := range e.states {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	t.listenersMu.RLock()
	fns := make(map[ListenerID]NotifyFunc[K, P], len(ids))
	for _, id := range ids {
		if fn, ok := t.listeners[id]; ok {
			fns[id] = fn
		}
	}
	t.listenersMu.RUnlock()

	for _, fn := range fns {
		timer := metrics.NewTimer()
		fn(OpChange, e)
		timer.ObserveDurationVec(metrics.DBNotifyDuration, t.name, "CHANGE")
	}
}

func (t *Table[K, P]) notifyDelete(s *shard[K, P], e *Entry[K, P]) {
	s.mu.Lock()
	ids := make([]ListenerID, 0, len(e.states))
	for id := range e.states {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	t.listenersMu.RLock()
	fns := make(map[ListenerID]NotifyFunc[K, P], len(t.listeners))
	for id, fn := range t.listeners {
		fns[id] = fn
	}
	t.listenersMu.RUnlock()

	for _, id := range ids {
		fn, ok := fns[id]
		if !ok {
			s.mu.Lock()
			delete(e.states, id)
			s.mu.Unlock()
			continue
		}
		timer := metrics.NewTimer()
		release := fn(OpDelete, e)
		timer.ObserveDurationVec(metrics.DBNotifyDuration, t.name, "DELETE")
		if release {
			s.mu.Lock()
			delete(e.states, id)
			s.mu.Unlock()
		}
	}
}

// entryActor adapts an Entry into a lifetime.Actor so retirement runs
// through the same single-threaded-per-kind sweep as every other
// retiring object in the agent.
type entryActor[K comparable, P any] struct {
	table *Table[K, P]
	shard *shard[K, P]
	entry *Entry[K, P]
}

func (a *entryActor[K, P]) MayDelete() bool {
	a.shard.mu.Lock()
	defer a.shard.mu.Unlock()
	return a.entry.Deleted && a.entry.refCount() == 0 && a.table.hooks.CanDelete(&a.entry.Payload)
}

// Shutdown has nothing to do for a table entry beyond what Destroy
// already performs; the table engine has no separate pre-destroy phase.
func (a *entryActor[K, P]) Shutdown() {}

func (a *entryActor[K, P]) Destroy() {
	a.table.finalizeDelete(a.shard, a.entry)
}

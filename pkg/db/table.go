package db

import (
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/opencontrail/vrouter-agent/pkg/lifetime"
	"github.com/opencontrail/vrouter-agent/pkg/log"
	"github.com/opencontrail/vrouter-agent/pkg/metrics"
	"github.com/opencontrail/vrouter-agent/pkg/scheduler"
	"github.com/opencontrail/vrouter-agent/pkg/vrerr"
	"github.com/rs/zerolog"
)

// DefaultShardCount is the partition count a Table uses unless
// overridden (spec.md section 4.3 expansion).
const DefaultShardCount = 16

// DefaultQueueHighWatermark is the per-shard pending-request count above
// which Enqueue starts returning ErrOverload.
const DefaultQueueHighWatermark = 4096

// DefaultDeleteDeadline is how long an entry may remain referenced
// after Delete() before the table treats it as an invariant violation.
const DefaultDeleteDeadline = 30 * time.Second

// NotifyFunc is a listener's callback. For OpDelete, returning true
// releases the listener's hold on the entry immediately; returning
// false means the listener will call Table.ReleaseState itself once it
// has finished with the entry asynchronously (e.g. a walker still
// iterating it, or a netlink delete still in flight).
type NotifyFunc[K comparable, P any] func(op Op, entry *Entry[K, P]) (releaseNow bool)

// Options configures a Table at construction time.
type Options[K comparable] struct {
	Shards            int
	QueueHighWatermark int
	DeleteDeadline    time.Duration
	Resync            ResyncSource[K]
	// OnInvariantViolation is called when an entry's delete deadline
	// expires with listeners still attached. Defaults to logging and
	// exiting the process, per spec.md section 7.
	OnInvariantViolation func(err error)
	// ProducerClass is the scheduler class Enqueue pauses when a shard
	// crosses QueueHighWatermark (spec.md section 7 OVERLOAD policy).
	// If empty, no class is paused.
	ProducerClass string
}

// Table is the generic partitioned, reference-counted table engine
// (spec.md section 4.3). K is the entry key type (e.g. string for a VRF
// name, uuid.UUID for a flow's primary key); P is the payload type.
type Table[K comparable, P any] struct {
	name   string
	hooks  TableHooks[K, P]
	sched  *scheduler.Scheduler
	class  string
	logger zerolog.Logger

	shards             []*shard[K, P]
	highWatermark      int
	deleteDeadline     time.Duration
	resync             ResyncSource[K]
	onInvariantViolation func(error)
	producerClass      string

	lifetimeMgr *lifetime.Manager

	listenersMu sync.RWMutex
	listeners   map[ListenerID]NotifyFunc[K, P]
	nextListener ListenerID
}

type shard[K comparable, P any] struct {
	index   int
	table   *Table[K, P]
	mu      sync.Mutex
	entries map[K]*Entry[K, P]
	queue   []request[K]
}

// New constructs a Table with name, hooks, and the scheduler every
// shard's drain task is submitted to.
func New[K comparable, P any](name string, hooks TableHooks[K, P], sched *scheduler.Scheduler, opts Options[K]) *Table[K, P] {
	if opts.Shards <= 0 {
		opts.Shards = DefaultShardCount
	}
	if opts.QueueHighWatermark <= 0 {
		opts.QueueHighWatermark = DefaultQueueHighWatermark
	}
	if opts.DeleteDeadline <= 0 {
		opts.DeleteDeadline = DefaultDeleteDeadline
	}
	logger := log.WithTable(name)
	if opts.OnInvariantViolation == nil {
		opts.OnInvariantViolation = func(err error) {
			logger.Fatal().Err(err).Msg("table invariant violation, aborting process")
		}
	}

	// Every table's shard-drain task runs under the single "DBTable"
	// class (spec.md section 4.1's literal policy table), not a
	// per-table class — that is what lets the agent's exclusion
	// policies (flow aging vs. new-flow installation, db writes vs.
	// the control-plane classes that feed them) actually govern every
	// table rather than a class nothing is ever submitted under.
	// Distinct tables still run fully concurrently with each other:
	// the scheduler only serializes same-class work that shares an
	// instance key, and each shard task's key is table-qualified
	// (see Enqueue).
	const class = "DBTable"
	sched.RegisterClass(class)

	t := &Table[K, P]{
		name:                 name,
		hooks:                hooks,
		sched:                sched,
		class:                class,
		logger:               logger,
		highWatermark:        opts.QueueHighWatermark,
		deleteDeadline:       opts.DeleteDeadline,
		resync:               opts.Resync,
		onInvariantViolation: opts.OnInvariantViolation,
		producerClass:        opts.ProducerClass,
		listeners:            make(map[ListenerID]NotifyFunc[K, P]),
	}
	t.lifetimeMgr = lifetime.New(sched, lifetime.Config{Kind: name})

	t.shards = make([]*shard[K, P], opts.Shards)
	for i := range t.shards {
		t.shards[i] = &shard[K, P]{index: i, table: t, entries: make(map[K]*Entry[K, P])}
	}
	return t
}

// Name returns the table's name, as used in its scheduler class and
// metric labels.
func (t *Table[K, P]) Name() string { return t.name }

// AddListener registers notify to receive ADD/CHANGE/DELETE
// notifications for every shard's entries.
func (t *Table[K, P]) AddListener(notify NotifyFunc[K, P]) ListenerID {
	t.listenersMu.Lock()
	defer t.listenersMu.Unlock()
	id := t.nextListener
	t.nextListener++
	t.listeners[id] = notify
	return id
}

// RemoveListener unregisters a listener. Entries it still holds state
// for remain referenced until ReleaseState is called for each.
func (t *Table[K, P]) RemoveListener(id ListenerID) {
	t.listenersMu.Lock()
	defer t.listenersMu.Unlock()
	delete(t.listeners, id)
}

func (t *Table[K, P]) shardFor(key K) *shard[K, P] {
	h := fnv.New32a()
	fmt.Fprintf(h, "%v", key)
	return t.shards[int(h.Sum32())%len(t.shards)]
}

// Enqueue submits an Add, Change, or Delete request for key. It returns
// ErrOverload if the target shard's queue is at its high-water mark; the
// caller's producer class (if configured) is paused until the shard
// drains.
func (t *Table[K, P]) Enqueue(op Op, key K, data any) error {
	s := t.shardFor(key)

	s.mu.Lock()
	depth := len(s.queue)
	if depth >= t.highWatermark {
		s.mu.Unlock()
		metrics.DBOverloadEventsTotal.WithLabelValues(t.name, fmt.Sprint(s.index)).Inc()
		if t.producerClass != "" {
			t.sched.Pause(t.producerClass)
		}
		return fmt.Errorf("table %s shard %d queue at high watermark (%d): %w", t.name, s.index, t.highWatermark, vrerr.ErrOverload)
	}
	s.queue = append(s.queue, request[K]{op: op, key: key, data: data})
	newDepth := len(s.queue)
	s.mu.Unlock()

	metrics.DBShardQueueDepth.WithLabelValues(t.name, fmt.Sprint(s.index)).Set(float64(newDepth))

	return t.sched.Submit(t.class, fmt.Sprintf("%s-shard-%d", t.name, s.index), func() { s.drain() })
}

// Lookup returns the current payload for key, if present and not yet
// logically deleted. Equivalent to Find(key, false).
func (t *Table[K, P]) Lookup(key K) (P, bool) {
	return t.Find(key, false)
}

// Find returns the payload for key (spec.md section 4.3's
// Find(key, include_deleted?)). With includeDeleted false it behaves
// like Lookup, hiding any entry already marked Deleted. With
// includeDeleted true it also returns an entry that has been deleted
// but not yet retired — section 3's entry-lifecycle invariant that a
// key must still resolve while listeners are draining state against
// it, even after the delete has been applied.
func (t *Table[K, P]) Find(key K, includeDeleted bool) (P, bool) {
	s := t.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		var zero P
		return zero, false
	}
	if e.Deleted && !includeDeleted {
		var zero P
		return zero, false
	}
	return e.Payload, true
}

// ReleaseState is called by a listener once it is done with an entry it
// previously deferred releasing (NotifyFunc returned releaseNow=false
// for an OpDelete). Once every listener has released and the table's
// hooks agree the entry can be freed, it is physically removed.
func (t *Table[K, P]) ReleaseState(key K, id ListenerID) {
	s := t.shardFor(key)
	s.mu.Lock()
	e, ok := s.entries[key]
	if !ok {
		s.mu.Unlock()
		return
	}
	delete(e.states, id)
	ready := e.Deleted && e.refCount() == 0 && t.hooks.CanDelete(&e.Payload)
	s.mu.Unlock()

	if ready {
		t.finalizeDelete(s, e)
	}
}

// Shards reports the configured partition count.
func (t *Table[K, P]) Shards() int { return len(t.shards) }

// Class returns the scheduler task class every shard's drain task (and,
// per spec.md section 4.4, every walker over this table) submits under.
// Walkers and mutators sharing a class means the scheduler's
// intra-instance FIFO keeps them from ever racing the same shard.
func (t *Table[K, P]) Class() string { return t.class }

// Scheduler returns the scheduler this table submits its shard tasks to.
func (t *Table[K, P]) Scheduler() *scheduler.Scheduler { return t.sched }

// SnapshotShard returns a copy of every live entry in shard index,
// leaving deleted-but-not-yet-finalized entries out — a walker should
// never observe an entry mid-teardown.
func (t *Table[K, P]) SnapshotShard(index int) []*Entry[K, P] {
	s := t.shards[index]
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Entry[K, P], 0, len(s.entries))
	for _, e := range s.entries {
		if e.Deleted {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Len returns the number of entries, deleted or not, currently held
// across all shards.
func (t *Table[K, P]) Len() int {
	total := 0
	for _, s := range t.shards {
		s.mu.Lock()
		total += len(s.entries)
		s.mu.Unlock()
	}
	return total
}

// TableStats is a point-in-time snapshot of one table's size and
// per-shard queue depth, for diag.Dump (SPEC_FULL section 7).
type TableStats struct {
	Name        string
	Entries     int
	ShardDepths []int
}

// Stats returns a TableStats snapshot of t.
func (t *Table[K, P]) Stats() TableStats {
	depths := make([]int, len(t.shards))
	total := 0
	for i, s := range t.shards {
		s.mu.Lock()
		depths[i] = len(s.queue)
		total += len(s.entries)
		s.mu.Unlock()
	}
	return TableStats{Name: t.name, Entries: total, ShardDepths: depths}
}

// Keys returns every live key currently held across all shards. Cross-
// shard order is not guaranteed (spec.md section 5); callers needing a
// stable visitation order (e.g. the flow aging loop's paginated pass)
// must sort the result themselves.
func (t *Table[K, P]) Keys() []K {
	keys := make([]K, 0, t.Len())
	for _, s := range t.shards {
		s.mu.Lock()
		for k, e := range s.entries {
			if !e.Deleted {
				keys = append(keys, k)
			}
		}
		s.mu.Unlock()
	}
	return keys
}

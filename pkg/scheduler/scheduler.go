// Package scheduler implements the agent's task scheduler: a bounded
// worker pool that multiplexes every piece of agent work while honoring
// two invariants (spec.md section 4.1) —
//
//   - at most one running task per (class, instance_key), in FIFO
//     submission order;
//   - no two running tasks belong to classes that declare each other
//     mutually exclusive.
//
// Everything else in this module (the table engine, the walker
// subsystem, the lifetime manager, the flow aging loop) is a consumer:
// it never spawns a goroutine of its own for recurring work, it submits
// named tasks here instead.
package scheduler

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"github.com/opencontrail/vrouter-agent/pkg/log"
	"github.com/opencontrail/vrouter-agent/pkg/metrics"
	"github.com/rs/zerolog"
)

// instanceID names a (class, instance_key) pair — the unit the scheduler
// serializes work against.
type instanceID struct {
	class ClassID
	key   string
}

// job is one submitted unit of work, queued on its instance.
type job struct {
	fn       func()
	enqueued time.Time
}

// instanceQueue is the FIFO of pending jobs for one (class, instance_key),
// plus whether a job from this instance is currently running.
type instanceQueue struct {
	pending []job
	active  bool
}

// Scheduler is the process-wide task scheduler (spec.md design note
// section 9: "the process-wide scheduler is the only true singleton").
// It is constructed once at bootstrap and threaded by reference into
// every other component.
type Scheduler struct {
	logger zerolog.Logger

	classes *classRegistry

	mu        sync.Mutex
	cond      *sync.Cond
	instances map[instanceID]*instanceQueue
	running   map[ClassID]int  // count of currently running tasks per class
	paused    map[ClassID]bool // classes whose instances are held back (OVERLOAD backpressure)

	workers   int
	stopping  bool
	started   bool
	runningWG sync.WaitGroup

	// onPanic, if set, is called with a task's recovered panic value
	// instead of just logging it. Wired by the bootstrap command to
	// treat a panic wrapping vrerr.ErrInvariantViolation as fatal
	// (SPEC_FULL section 7); left nil, every panic is logged and
	// swallowed.
	onPanic func(panicValue any)
}

// OnPanic registers fn to be called, instead of the default log-and-
// swallow behavior, whenever a submitted task panics.
func (s *Scheduler) OnPanic(fn func(panicValue any)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onPanic = fn
}

// New creates a Scheduler with the given worker pool size. A size of 0
// defaults to runtime.NumCPU(), matching the teacher's worker-pool
// convention of sizing to the CPU count when unset.
func New(workers int) *Scheduler {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	s := &Scheduler{
		logger:    log.WithComponent("scheduler"),
		classes:   newClassRegistry(),
		instances: make(map[instanceID]*instanceQueue),
		running:   make(map[ClassID]int),
		paused:    make(map[ClassID]bool),
		workers:   workers,
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Install registers the task classes named by policies and builds the
// symmetric exclusion graph. It must be called before Start, and
// normally only once, with the literal policy table from spec.md
// section 4.1.
func (s *Scheduler) Install(policies []Policy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("scheduler: cannot Install after Start")
	}
	return s.classes.install(policies)
}

// RegisterClass registers a single task class with no exclusions beyond
// whatever Install later adds for it. Useful for ad-hoc classes in
// tests.
func (s *Scheduler) RegisterClass(name string) ClassID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.classes.register(name)
}

// Start launches the worker pool.
func (s *Scheduler) Start() {
	s.mu.Lock()
	s.started = true
	s.mu.Unlock()

	for i := 0; i < s.workers; i++ {
		s.runningWG.Add(1)
		go s.workerLoop()
	}
}

// Stop signals all workers to exit once their current task, if any,
// completes. Tasks still queued when Stop is called are abandoned.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopping = true
	s.cond.Broadcast()
	s.mu.Unlock()
	s.runningWG.Wait()
}

// Submit enqueues fn under (class, key). Returns an error if class is
// unknown. fn runs on a worker goroutine once no task of a mutually
// exclusive class is running and every earlier job queued for the same
// (class, key) has completed.
func (s *Scheduler) Submit(class string, key string, fn func()) error {
	s.mu.Lock()
	id, ok := s.classes.lookup(class)
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("scheduler: unknown task class %q", class)
	}
	iid := instanceID{class: id, key: key}
	q, ok := s.instances[iid]
	if !ok {
		q = &instanceQueue{}
		s.instances[iid] = q
	}
	q.pending = append(q.pending, job{fn: fn, enqueued: time.Now()})
	metrics.SchedulerTasksSubmitted.WithLabelValues(class).Inc()
	s.cond.Broadcast()
	s.mu.Unlock()
	return nil
}

// Pause prevents new work of class from being dispatched (but does not
// stop already-running tasks of that class). Used for OVERLOAD
// backpressure (spec.md section 7): the table engine pauses a producer
// class when a shard queue crosses its high-water mark, rather than
// dropping requests.
func (s *Scheduler) Pause(class string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.classes.lookup(class); ok {
		s.paused[id] = true
	}
}

// Resume reverses Pause.
func (s *Scheduler) Resume(class string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.classes.lookup(class); ok {
		delete(s.paused, id)
		s.cond.Broadcast()
	}
}

// ClassStats is a point-in-time snapshot of one task class's queue
// depth and running count, for diag.Dump.
type ClassStats struct {
	Class   string
	Pending int
	Running int
	Paused  bool
}

// Stats returns a snapshot of every registered class's queue depth and
// running count (SPEC_FULL section 7, "fatal diagnostic dump").
func (s *Scheduler) Stats() []ClassStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	pending := make(map[ClassID]int)
	for iid, q := range s.instances {
		pending[iid.class] += len(q.pending)
	}

	names := s.classes.allNames()
	out := make([]ClassStats, 0, len(names))
	for i, name := range names {
		id := ClassID(i)
		out = append(out, ClassStats{
			Class:   name,
			Pending: pending[id],
			Running: s.running[id],
			Paused:  s.paused[id],
		})
	}
	return out
}

// workerLoop implements one worker: find a runnable job respecting
// intra-instance serialization and class exclusion, run it to
// completion (recovering panics per spec.md section 4.1 "Failure
// semantics"), then look for the next one.
func (s *Scheduler) workerLoop() {
	defer s.runningWG.Done()
	for {
		s.mu.Lock()
		for {
			if s.stopping {
				s.mu.Unlock()
				return
			}
			iid, j, ok := s.findRunnable()
			if ok {
				q := s.instances[iid]
				q.active = true
				q.pending = q.pending[1:]
				s.running[iid.class]++
				s.mu.Unlock()
				s.runJob(iid, j)
				s.mu.Lock()
				s.running[iid.class]--
				q.active = false
				if len(q.pending) == 0 {
					delete(s.instances, iid)
				}
				s.cond.Broadcast()
				continue
			}
			s.cond.Wait()
		}
	}
}

// findRunnable scans pending instances for one whose head job's class
// does not conflict with any class currently running, is not currently
// paused, and is not itself already running a job (intra-instance
// serialization). Must be called with s.mu held.
func (s *Scheduler) findRunnable() (instanceID, job, bool) {
	for iid, q := range s.instances {
		if q.active || len(q.pending) == 0 {
			continue
		}
		if s.paused[iid.class] {
			continue
		}
		if s.conflictsWithRunning(iid.class) {
			continue
		}
		return iid, q.pending[0], true
	}
	return instanceID{}, job{}, false
}

func (s *Scheduler) conflictsWithRunning(class ClassID) bool {
	for runningClass, count := range s.running {
		if count == 0 {
			continue
		}
		if runningClass == class {
			// Another instance of the same class may run concurrently;
			// only the same instance key is serialized.
			continue
		}
		if s.classes.excludes(class, runningClass) {
			return true
		}
	}
	return false
}

func (s *Scheduler) runJob(iid instanceID, j job) {
	class := s.classes.name(iid.class)
	metrics.SchedulerTaskWaitSeconds.WithLabelValues(class).Observe(time.Since(j.enqueued).Seconds())
	metrics.SchedulerTasksRunning.WithLabelValues(class).Inc()
	defer metrics.SchedulerTasksRunning.WithLabelValues(class).Dec()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().
				Str("task_class", class).
				Str("instance_key", iid.key).
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("task panicked, recovering")

			s.mu.Lock()
			onPanic := s.onPanic
			s.mu.Unlock()
			if onPanic != nil {
				onPanic(r)
			}
		}
	}()
	j.fn()
}

// Package lifetime implements the agent's object retirement protocol
// (spec.md section 4.2): Delete() marks an object for removal,
// MayDelete() lets the object veto removal while it still has
// dependents, and once MayDelete() returns true the manager calls
// Destroy() exactly once.
//
// The retirement sweep itself runs as a recurring scheduler task rather
// than a free-running goroutine with its own ticker — grounded on
// pkg/reconciler's ticker-driven reconcile loop, but resubmitted through
// the scheduler so it participates in the exclusion graph like every
// other piece of agent work.
package lifetime

import (
	"sync"
	"time"

	"github.com/opencontrail/vrouter-agent/pkg/log"
	"github.com/opencontrail/vrouter-agent/pkg/metrics"
	"github.com/opencontrail/vrouter-agent/pkg/scheduler"
	"github.com/rs/zerolog"
)

// TaskClass is the scheduler class the retirement sweep runs under —
// the same "DBTable" class every table's shard-drain task runs under
// (spec.md section 4.2's "here db::DBTable"), so retirement is governed
// by the same exclusion policy as the writes that produced the objects
// it retires.
const TaskClass = "DBTable"

// Actor is anything that participates in the retirement protocol —
// spec.md's LifetimeActor.
type Actor interface {
	// MayDelete reports whether the object has no remaining dependents
	// and can be safely destroyed. Called repeatedly until it returns
	// true.
	MayDelete() bool

	// Shutdown runs once MayDelete first returns true, before Destroy.
	Shutdown()

	// Destroy releases the object's resources. Called exactly once,
	// immediately after Shutdown.
	Destroy()
}

type entry struct {
	kind      string
	actor     Actor
	deletedAt time.Time
}

// Manager tracks objects that have been marked for deletion and retires
// them once they report they may be deleted.
type Manager struct {
	sched       *scheduler.Scheduler
	kind        string
	instanceKey string

	mu      sync.Mutex
	pending map[Actor]*entry
	closed  bool

	logger zerolog.Logger
	period time.Duration
}

// Config configures a Manager.
type Config struct {
	// Kind labels this manager's metrics and logs (e.g. "vrf-entry",
	// "listener").
	Kind string
	// SweepInterval is how often a retirement sweep re-submits itself.
	// Defaults to 100ms.
	SweepInterval time.Duration
}

// New creates a Manager that retires objects via sched. The caller must
// have already installed TaskClass with the scheduler (or accept its
// default, unexcluded registration).
func New(sched *scheduler.Scheduler, cfg Config) *Manager {
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 100 * time.Millisecond
	}
	sched.RegisterClass(TaskClass)
	return &Manager{
		sched: sched,
		kind:  cfg.Kind,
		// Every kind gets its own instance key so two kinds' sweeps
		// (e.g. the vrftable's and the flow table's) run concurrently
		// under the shared TaskClass instead of serializing on a
		// collision. The scheduler only forces FIFO order within the
		// same (class, instance_key) pair.
		instanceKey: "lifetime::" + cfg.Kind,
		pending:     make(map[Actor]*entry),
		logger:      log.WithComponent("lifetime").With().Str("kind", cfg.Kind).Logger(),
		period:      cfg.SweepInterval,
	}
}

// Delete marks actor for retirement. It is safe to call Delete more
// than once for the same actor; subsequent calls are no-ops.
func (m *Manager) Delete(actor Actor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	if _, exists := m.pending[actor]; exists {
		return
	}
	m.pending[actor] = &entry{kind: m.kind, actor: actor, deletedAt: time.Now()}
	metrics.LifetimePendingActors.WithLabelValues(m.kind).Set(float64(len(m.pending)))
	m.scheduleSweep()
}

// Shutdown stops scheduling further sweeps. Objects already pending
// retirement are swept one final time synchronously; MayDelete is not
// forced, so objects that still veto deletion are simply abandoned in
// the pending set.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	m.closed = true
	pending := make([]*entry, 0, len(m.pending))
	for _, e := range m.pending {
		pending = append(pending, e)
	}
	m.mu.Unlock()

	for _, e := range pending {
		m.tryRetire(e)
	}
}

// scheduleSweep submits one retirement sweep task. Must be called with
// m.mu held.
func (m *Manager) scheduleSweep() {
	err := m.sched.Submit(TaskClass, m.instanceKey, m.sweep)
	if err != nil {
		m.logger.Error().Err(err).Msg("failed to submit retirement sweep")
	}
}

// sweep runs one retirement pass: every pending actor whose MayDelete()
// now returns true is destroyed and removed, and — unless the manager
// has been shut down and drained — a new sweep is scheduled after
// period so objects that still veto deletion get re-checked.
func (m *Manager) sweep() {
	m.mu.Lock()
	snapshot := make([]*entry, 0, len(m.pending))
	for _, e := range m.pending {
		snapshot = append(snapshot, e)
	}
	closed := m.closed
	m.mu.Unlock()

	for _, e := range snapshot {
		m.tryRetire(e)
	}

	m.mu.Lock()
	remaining := len(m.pending)
	m.mu.Unlock()

	if closed || remaining == 0 {
		return
	}
	time.AfterFunc(m.period, func() {
		m.mu.Lock()
		if !m.closed && len(m.pending) > 0 {
			m.scheduleSweep()
		}
		m.mu.Unlock()
	})
}

// tryRetire calls e.actor.MayDelete(); if it returns true, Shutdown then
// Destroy are called exactly once and the actor is removed from the
// pending set.
func (m *Manager) tryRetire(e *entry) {
	if !e.actor.MayDelete() {
		return
	}
	m.mu.Lock()
	if _, exists := m.pending[e.actor]; !exists {
		m.mu.Unlock()
		return
	}
	delete(m.pending, e.actor)
	metrics.LifetimePendingActors.WithLabelValues(m.kind).Set(float64(len(m.pending)))
	m.mu.Unlock()

	e.actor.Shutdown()
	e.actor.Destroy()
	metrics.LifetimeRetiredTotal.WithLabelValues(m.kind).Inc()
	metrics.LifetimeRetirementDuration.WithLabelValues(m.kind).Observe(time.Since(e.deletedAt).Seconds())
	m.logger.Debug().Dur("retirement_latency", time.Since(e.deletedAt)).Msg("actor retired")
}

// Pending reports how many actors are currently awaiting retirement.
func (m *Manager) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

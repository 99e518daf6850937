// Package vrftable instantiates the generic partitioned table engine
// over VRF entries (spec.md section 3's Table/Entry contract, applied to
// the VRF object named in SPEC_FULL's domain-stack expansion). It also
// hosts DeletePeerRoutes, the walk-of-walks composition exercising
// walker.CompositeWalk (spec.md section 4.4).
package vrftable

import (
	"sync"

	"github.com/opencontrail/vrouter-agent/pkg/db"
	"github.com/opencontrail/vrouter-agent/pkg/routetable"
	"github.com/opencontrail/vrouter-agent/pkg/scheduler"
	"github.com/opencontrail/vrouter-agent/pkg/walker"
)

// Entry is a VRF: its name (the table key), an allocated VRF-ID, and the
// route table holding routes learned within it.
type Entry struct {
	Name   string
	VrfID  int
	Routes *routetable.Table
}

// Table is the VRF table's concrete instantiation of the generic engine.
type Table = db.Table[string, Entry]

type hooks struct {
	mu     sync.Mutex
	nextID int
}

func newHooks() *hooks { return &hooks{} }

func (h *hooks) Alloc(key string, data any) Entry {
	h.mu.Lock()
	h.nextID++
	id := h.nextID
	h.mu.Unlock()

	routes, _ := data.(*routetable.Table)
	return Entry{Name: key, VrfID: id, Routes: routes}
}

func (h *hooks) OnChange(payload *Entry, data any) bool {
	routes, ok := data.(*routetable.Table)
	if !ok || routes == payload.Routes {
		return false
	}
	payload.Routes = routes
	return true
}

func (h *hooks) CanDelete(payload *Entry) bool { return true }
func (h *hooks) CanNotify(payload *Entry) bool { return true }

// New constructs the VRF table, submitting its shard tasks to sched.
func New(sched *scheduler.Scheduler, opts db.Options[string]) *Table {
	return db.New[string, Entry]("vrf", newHooks(), sched, opts)
}

// DeletePeerRoutes removes every route learned from peer across every
// VRF: an outer walk over vrfTable spawns, for each VRF, an inner walk
// of that VRF's route table that deletes matching routes; the whole
// operation's onComplete fires once every VRF's route table has been
// walked (spec.md section 4.4's worked "walk-of-walks" example).
func DeletePeerRoutes(w *walker.Walker, vrfTable *Table, peer string, onComplete func()) walker.WalkId {
	cw := walker.NewCompositeWalk(onComplete)

	id := walker.WalkTable(w, vrfTable,
		func(shardIndex int, vrfEntry *db.Entry[string, Entry]) {
			routes := vrfEntry.Payload.Routes
			if routes == nil {
				return
			}
			cw.Spawn()
			walker.WalkTable(w, routes,
				func(shardIndex int, routeEntry *db.Entry[string, routetable.Entry]) {
					if routeEntry.Payload.Peer == peer {
						_ = routes.Enqueue(db.OpDelete, routeEntry.Key, nil)
					}
				},
				func(table *routetable.Table, cancelled bool) {
					cw.InnerDone()
				},
			)
		},
		func(table *Table, cancelled bool) {
			cw.OuterDone()
		},
	)

	return id
}

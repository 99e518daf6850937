// Package routetable instantiates the generic partitioned table engine
// over route entries — one db.Table per VRF, exercised by
// vrftable.DeletePeerRoutes' inner walk (spec.md section 4.4
// composition pattern).
package routetable

import (
	"github.com/opencontrail/vrouter-agent/pkg/db"
	"github.com/opencontrail/vrouter-agent/pkg/scheduler"
)

// Entry is one route: a prefix, its next hop, and the peer that
// advertised it. Keyed by Prefix within a single VRF's table.
type Entry struct {
	Prefix  string
	NextHop string
	Peer    string
}

// Table is a route table's concrete instantiation of the generic engine,
// named so callers outside this package (vrftable) don't have to spell
// out the generic instantiation themselves.
type Table = db.Table[string, Entry]

type hooks struct{}

func (hooks) Alloc(key string, data any) Entry {
	e, _ := data.(Entry)
	e.Prefix = key
	return e
}

func (hooks) OnChange(payload *Entry, data any) bool {
	next, ok := data.(Entry)
	if !ok || next == *payload {
		return false
	}
	next.Prefix = payload.Prefix
	*payload = next
	return true
}

func (hooks) CanDelete(payload *Entry) bool { return true }
func (hooks) CanNotify(payload *Entry) bool { return true }

// New constructs a route table named name, submitting its shard tasks
// to sched.
func New(name string, sched *scheduler.Scheduler, opts db.Options[string]) *db.Table[string, Entry] {
	return db.New[string, Entry](name, hooks{}, sched, opts)
}

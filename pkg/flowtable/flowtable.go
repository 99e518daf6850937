// Package flowtable instantiates the generic partitioned table engine
// over flow entries — the userspace shadow of kernel flows that
// pkg/flow's aging and export loop operates on (spec.md section 3's
// FlowEntry, section 4.5).
package flowtable

import (
	"time"

	"github.com/google/uuid"
	"github.com/opencontrail/vrouter-agent/pkg/db"
	"github.com/opencontrail/vrouter-agent/pkg/scheduler"
	"github.com/opencontrail/vrouter-agent/pkg/types"
)

// Key is a flow's 5-tuple. It is a plain comparable struct rather than
// holding net.IP (a slice, and therefore not comparable) so it can be
// used directly as a db.Table map key.
type Key struct {
	SrcIP   uint32
	DstIP   uint32
	Proto   types.Protocol
	SrcPort uint16
	DstPort uint16
}

// Entry is the userspace shadow of one kernel flow (spec.md section 3).
type Entry struct {
	Key Key

	Bytes   uint64
	Packets uint64

	LastModifiedTime time.Time
	SetupTime        time.Time
	TeardownTime     time.Time

	HasReverse bool
	ReverseKey Key

	Ingress   bool
	Local     bool
	Nat       bool
	ShortFlow bool

	// FlowHandle indexes the out-of-scope kernel flow table this entry
	// shadows.
	FlowHandle uint32

	PrimaryUUID uuid.UUID
	EgressUUID  uuid.UUID

	SrcVN string
	DstVN string
	VMName string

	// NatSourceIP holds a post-NAT source address. The export path does
	// not read it: pkg/flow's NAT source-IP override (spec.md section 4.5
	// "Source-IP override") takes the reverse flow's destination IP
	// instead.
	NatSourceIP uint32
}

// Table is the flow table's concrete instantiation of the generic
// engine.
type Table = db.Table[Key, Entry]

type hooks struct{}

func (hooks) Alloc(key Key, data any) Entry {
	e, _ := data.(Entry)
	e.Key = key
	if e.SetupTime.IsZero() {
		e.SetupTime = time.Now()
	}
	return e
}

func (hooks) OnChange(payload *Entry, data any) bool {
	patch, ok := data.(func(*Entry))
	if !ok || patch == nil {
		return false
	}
	patch(payload)
	return true
}

func (hooks) CanDelete(payload *Entry) bool { return true }
func (hooks) CanNotify(payload *Entry) bool { return true }

// New constructs the flow table, submitting its shard tasks to sched.
func New(sched *scheduler.Scheduler, opts db.Options[Key]) *Table {
	return db.New[Key, Entry]("flow", hooks{}, sched, opts)
}

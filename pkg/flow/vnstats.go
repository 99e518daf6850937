package flow

import "sync"

// VNPair names a (source, destination) virtual-network pair.
type VNPair struct {
	SrcVN string
	DstVN string
}

// Counters is a cumulative byte/packet pair.
type Counters struct {
	Bytes   uint64
	Packets uint64
}

// VNStatsTable aggregates per-VN-pair traffic (spec.md section 4.5 step
// 4, "inter-VN stats aggregator"), updated once per aging pass and
// independently exportable.
type VNStatsTable struct {
	mu    sync.Mutex
	stats map[VNPair]*Counters
}

// NewVNStatsTable constructs an empty VNStatsTable.
func NewVNStatsTable() *VNStatsTable {
	return &VNStatsTable{stats: make(map[VNPair]*Counters)}
}

// Add accumulates diffBytes/diffPackets onto the (srcVN, dstVN) pair.
func (v *VNStatsTable) Add(srcVN, dstVN string, diffBytes, diffPackets uint64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	key := VNPair{SrcVN: srcVN, DstVN: dstVN}
	c, ok := v.stats[key]
	if !ok {
		c = &Counters{}
		v.stats[key] = c
	}
	c.Bytes += diffBytes
	c.Packets += diffPackets
}

// Snapshot returns a point-in-time copy of every aggregated pair.
func (v *VNStatsTable) Snapshot() map[VNPair]Counters {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make(map[VNPair]Counters, len(v.stats))
	for k, c := range v.stats {
		out[k] = *c
	}
	return out
}

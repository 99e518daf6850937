// Package walker implements table-wide, cancellable iteration over a
// db.Table (spec.md section 4.4). A walk submits one task per shard
// under the table's own scheduler class, so it never races that shard's
// mutators — the scheduler's intra-instance FIFO orders them instead.
// done_fn runs exactly once, whether the walk ran to completion or was
// cancelled partway through.
//
// CompositeWalk composes an outer walk with one inner walk per outer
// entry ("walk-of-walks"), the pattern vrftable.DeletePeerRoutes uses to
// delete every route learned from a peer: an outer walk over the VRF
// table spawns an inner walk of each VRF's route table, and the whole
// operation completes once every inner walk has.
package walker

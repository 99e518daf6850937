/*
Package db implements the agent's partitioned, reference-counted table
engine (spec.md section 4.3): a Table shards its Entry set across a
fixed number of partitions, each drained in isolation under the task
scheduler so one Table can absorb a high request rate without a single
global lock.

# Shape

A Table is constructed with a TableHooks implementation supplying the
table-specific behavior (how to allocate a payload, how to apply a
change request to it, whether it is still in use) and a shard count.
Callers Enqueue Add/Change/Delete requests; each request is routed to a
shard by hashing its key, and every shard's queue is drained by a single
recurring scheduler task (class "DBTable", instance "<table>-shard-<n>")
so requests for the same shard are always applied in FIFO order,
requests for different shards (even across different tables) run fully
concurrently, and the scheduler's exclusion policy for "DBTable" governs
every table at once rather than one table at a time.

Listeners subscribe to a Table and receive ADD/CHANGE/DELETE
notifications serially, once per shard, in the order changes were
applied.

# Reuse and resync

When an Add targets a key marked Deleted but not yet fully retired
(a listener still holds state for it), the table consults its
ResyncSource: if the source confirms the object is being recreated, the
existing Entry is resurrected with the source's data; otherwise, or if
no ResyncSource is configured, the Add is dropped and the entry keeps
retiring — this is the "configuration source" reuse protocol from
spec.md section 4.3.

# Delete-timer invariant

When a Delete leaves an entry still referenced (a listener deferred its
release, or the hooks' CanDelete vetoes removal), the entry is handed to
a lifetime.Manager for retirement and a delete deadline is armed. If
the entry is still present when the deadline elapses, the table reports
an invariant violation (spec.md section 7) through
Options.OnInvariantViolation: by default a fatal log that exits the
process; pkg/agent wires it to diag.Dump followed by a non-zero exit.
*/
package db

/*
Package scheduler implements the vrouter agent's task scheduler: a single
bounded worker pool that every other subsystem submits named work to,
rather than each subsystem running its own goroutines.

# Task classes and exclusion

Every unit of work is submitted under a task class (e.g. "DBTable" for
table shard drains and retirement sweeps, "FlowHandler" for the flow
aging loop) and an instance key scoping that class (e.g. a table
shard's "<table>-shard-<n>"). Two invariants hold
at all times:

 1. Intra-instance serialization: at most one task for a given
    (class, instance_key) runs at a time, and tasks for the same
    instance run in FIFO submission order.
 2. Exclusion: a Policy may declare that its class must never run
    concurrently with another. The scheduler installs this as a
    symmetric relation — if A excludes B, neither runs while the other
    is running, regardless of instance key.

Unrelated (class, instance_key) pairs run fully concurrently, bounded
only by the worker pool size.

# Usage

	sched := scheduler.New(0) // 0 = runtime.NumCPU()
	err := sched.Install([]scheduler.Policy{
		{Name: "db::VrfTable"},
		{Name: "walker::VrfTable", Excludes: []string{"db::VrfTable"}},
	})
	sched.Start()
	defer sched.Stop()

	sched.Submit("db::VrfTable", "shard-3", func() {
		// drain shard 3's request queue
	})

# Failure semantics

A panic inside a submitted task is recovered and logged with a stack
trace; it never brings down a worker goroutine or the process. Callers
that need stronger guarantees (e.g. the table engine's delete-timer
expiry) use vrerr.ErrInvariantViolation and fail the process themselves.

# Backpressure

Pause/Resume let a producer signal overload without dropping work: the
table engine pauses its own producer class when a shard's queue
crosses its high-water mark (vrerr.ErrOverload), and resumes it once
the queue drains.
*/
package scheduler

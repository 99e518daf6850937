// Package vrerr defines the error kinds the agent core distinguishes
// between, per spec.md section 7. Callers use errors.Is against the
// sentinel values; wrapped errors carry additional context via %w.
package vrerr

import "errors"

var (
	// ErrInvariantViolation marks a condition that leaves the object graph
	// in an inconsistent state: a delete-timer expiry (pkg/db) or an
	// exclusion-policy conflict detected at registration time
	// (pkg/scheduler). A repeated ADD for a live key is applied by pkg/db
	// as a change, not reported as a violation. Callers that observe this
	// are expected to fail the process.
	ErrInvariantViolation = errors.New("vrerr: invariant violation")

	// ErrTransient marks a recoverable error. Walker EntryFuncs return no
	// error, so no walk in this module produces or handles it.
	ErrTransient = errors.New("vrerr: transient error")

	// ErrNotFound marks a lookup miss.
	ErrNotFound = errors.New("vrerr: not found")

	// ErrOverload marks a shard request queue at its high-water mark.
	// Table.Enqueue returns it without queuing the request and pauses the
	// table's configured producer class until the shard drains.
	ErrOverload = errors.New("vrerr: overload")
)

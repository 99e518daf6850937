// Package diag implements the agent's fatal diagnostic dump (spec.md
// section 7, "User-visible behavior"): when an invariant violation
// leaves the object graph in a state the process cannot safely
// continue from, Dump writes a best-effort snapshot of scheduler and
// table state before the process exits, so the operator has something
// to look at other than a bare panic trace.
package diag

import (
	"fmt"
	"io"
	"time"

	"github.com/opencontrail/vrouter-agent/pkg/db"
	"github.com/opencontrail/vrouter-agent/pkg/scheduler"
)

// Dump writes a snapshot of sched's per-class queue state and every
// table's size and per-shard queue depth to w. Dump never returns an
// error: a write failure here would only compound the fatal condition
// that triggered it, so every error is swallowed.
func Dump(w io.Writer, sched *scheduler.Scheduler, tables []db.TableStats) {
	fmt.Fprintf(w, "=== vrouter-agent diagnostic dump (%s) ===\n", time.Now().UTC().Format(time.RFC3339))

	fmt.Fprintln(w, "--- scheduler classes ---")
	for _, cs := range sched.Stats() {
		fmt.Fprintf(w, "  class=%-24s pending=%-6d running=%-4d paused=%v\n", cs.Class, cs.Pending, cs.Running, cs.Paused)
	}

	fmt.Fprintln(w, "--- tables ---")
	for _, ts := range tables {
		fmt.Fprintf(w, "  table=%-16s entries=%-8d shard_depths=%v\n", ts.Name, ts.Entries, ts.ShardDepths)
	}
}

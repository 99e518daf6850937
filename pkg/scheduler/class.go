package scheduler

import (
	"fmt"

	"github.com/opencontrail/vrouter-agent/pkg/vrerr"
)

// ClassID is the small integer identifier a TaskClass is reduced to once
// registered. Tasks are tagged with a ClassID rather than a string at
// submission time so the hot path never does a map lookup by name.
type ClassID int

// Policy declares a named task class and the set of other classes that
// must never run concurrently with it. Exclusion is installed as a
// symmetric relation: if A's policy excludes B, the scheduler refuses to
// run A and B at the same time even if B's own policy omits A
// (spec.md section 3, TaskClass invariant).
type Policy struct {
	Name     string
	Excludes []string
}

// classRegistry resolves class names to ids and holds the symmetric
// exclusion graph computed from a set of Policy entries.
type classRegistry struct {
	ids       map[string]ClassID
	names     []string
	exclusion []map[ClassID]bool // exclusion[a][b] == true means a and b may not run concurrently
}

func newClassRegistry() *classRegistry {
	return &classRegistry{ids: make(map[string]ClassID)}
}

func (r *classRegistry) register(name string) ClassID {
	if id, ok := r.ids[name]; ok {
		return id
	}
	id := ClassID(len(r.names))
	r.ids[name] = id
	r.names = append(r.names, name)
	r.exclusion = append(r.exclusion, make(map[ClassID]bool))
	return id
}

func (r *classRegistry) lookup(name string) (ClassID, bool) {
	id, ok := r.ids[name]
	return id, ok
}

func (r *classRegistry) name(id ClassID) string {
	if int(id) < 0 || int(id) >= len(r.names) {
		return fmt.Sprintf("class(%d)", id)
	}
	return r.names[id]
}

// install registers every class named by policies (if not already known)
// and computes the symmetric closure of the exclusion relation. It
// returns ErrInvariantViolation-wrapped error if a policy names a class
// that is never itself declared elsewhere in the same call, since an
// unresolvable exclusion target is exactly the "exclusion-policy
// conflict detected at register time" spec.md section 7 calls fatal.
func (r *classRegistry) install(policies []Policy) error {
	for _, p := range policies {
		r.register(p.Name)
	}
	for _, p := range policies {
		a, _ := r.lookup(p.Name)
		for _, excludedName := range p.Excludes {
			b, ok := r.lookup(excludedName)
			if !ok {
				return fmt.Errorf("scheduler: policy for %q excludes unknown class %q: %w", p.Name, excludedName, vrerr.ErrInvariantViolation)
			}
			if a == b {
				continue
			}
			r.exclusion[a][b] = true
			r.exclusion[b][a] = true
		}
	}
	return nil
}

// allNames returns every registered class name indexed by its ClassID.
func (r *classRegistry) allNames() []string {
	return r.names
}

// excludes reports whether a and b may never run concurrently.
func (r *classRegistry) excludes(a, b ClassID) bool {
	if a == b {
		return false
	}
	return r.exclusion[a][b]
}

package db

// TableHooks supplies the table-specific behavior the generic engine
// needs but cannot know on its own (spec.md section 9's "dynamic
// dispatch over heterogeneous table hooks" design note). One
// implementation exists per concrete table (vrftable, flowtable,
// routetable).
type TableHooks[K comparable, P any] interface {
	// Alloc allocates a zero-value payload for a new entry with the
	// given key and add-request data.
	Alloc(key K, data any) P

	// OnChange applies a CHANGE request's data to payload in place and
	// reports whether anything actually changed (a no-op change never
	// notifies listeners).
	OnChange(payload *P, data any) bool

	// CanDelete reports whether payload's domain-specific state (e.g. a
	// reference count held outside the listener bookkeeping this
	// package already does) permits physical deletion right now.
	CanDelete(payload *P) bool

	// CanNotify reports whether payload is far enough along to be
	// handed to listeners at all. Some tables stage a payload across
	// more than one ADD before exposing it (spec.md section 4.3's
	// partial-construction case); returning false suppresses
	// notification without dropping the request.
	CanNotify(payload *P) bool
}

// ResyncSource is the named boundary to the out-of-scope configuration
// ingestion layer: when a key targeted by Enqueue is still retiring
// (Deleted but not yet fully dereferenced), the table asks the
// ResyncSource whether the same logical object is being recreated, so
// it can reuse the existing Entry instead of waiting for full teardown
// (spec.md section 4.3, "reuse protocol").
type ResyncSource[K comparable] interface {
	Resync(tableName string, key K) (data any, ok bool)
}

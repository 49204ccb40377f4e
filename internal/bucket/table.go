package bucket

import "github.com/lyft/statsrelay/internal/statsdline"

// Table is the mapping from metric key to Bucket state (spec component
// B). A Go map already gives amortized O(1) get/insert and grows by
// doubling; its load factor is set by the Go runtime and is not capped
// at 0.75. It is the "standard keyed associative container" spec.md §1
// says suffices; no external hash-map library is warranted.
//
// Table performs no locking of its own: spec.md §5 places the exclusive-
// access requirement on the caller (the engine facade), not the table.
type Table struct {
	buckets map[string]*Bucket
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{buckets: make(map[string]*Bucket)}
}

// Get returns the bucket for key, or nil if none exists yet.
func (t *Table) Get(key string) *Bucket {
	return t.buckets[key]
}

// GetOrCreate returns the existing bucket for key, or creates one of the
// given type with the given reservoir size. A bucket's Type is fixed at
// creation and this call never changes the type of an existing bucket.
func (t *Table) GetOrCreate(key string, mtype statsdline.MetricType, reservoirSize int) *Bucket {
	if b, ok := t.buckets[key]; ok {
		return b
	}
	b := New(key, mtype, reservoirSize)
	t.buckets[key] = b
	return b
}

// Len reports the number of distinct keys tracked.
func (t *Table) Len() int {
	return len(t.buckets)
}

// Iter invokes cb for every bucket in the table. Iteration order is
// unspecified, matching spec.md §4.F's "across keys the order is
// implementation-defined."
func (t *Table) Iter(cb func(*Bucket)) {
	for _, b := range t.buckets {
		cb(b)
	}
}

// Package bucket holds the per-key aggregation state (spec component B,
// the Keyed Bucket Table) and the Bucket type itself (spec component
// "Data Model"). It owns no sampling or flush logic; it is the shape
// those components mutate.
package bucket

import "github.com/lyft/statsrelay/internal/statsdline"

// Bucket is the persistent per-key aggregation state described in
// spec.md §3. Its Type field is fixed at creation and never changes.
type Bucket struct {
	Key  string
	Type statsdline.MetricType

	// Sampling state machine (component C).
	Sampling        bool
	LastWindowCount int64

	// Counter/timer aggregation (components D, E).
	Sum   float64
	Count float64

	// Timer-only fields (component D). Unused and zero-valued for
	// counter buckets.
	Reservoir      []float64
	ReservoirFull  []bool
	ReservoirIndex int

	Upper           float64
	Lower           float64
	UpperSet        bool
	LowerSet        bool
	UpperSampleRate float64
	LowerSampleRate float64
}

// New creates a bucket for key/mtype. reservoirSize is ignored for
// counter buckets.
func New(key string, mtype statsdline.MetricType, reservoirSize int) *Bucket {
	b := &Bucket{Key: key, Type: mtype}
	if mtype == statsdline.Timer {
		b.Reservoir = make([]float64, reservoirSize)
		b.ReservoirFull = make([]bool, reservoirSize)
	}
	return b
}

// NumReservoirSamples returns the count of non-sentinel reservoir slots.
func (b *Bucket) NumReservoirSamples() int {
	n := 0
	for _, full := range b.ReservoirFull {
		if full {
			n++
		}
	}
	return n
}

// ResetWindow clears per-window aggregation state after a flush, per
// spec.md §4.F. It does not touch Sampling or LastWindowCount, which are
// the sampling state machine's responsibility (internal/sampling).
func (b *Bucket) ResetWindow() {
	b.Sum = 0
	b.Count = 0
	b.UpperSet = false
	b.LowerSet = false
	b.Upper = 0
	b.Lower = 0
	b.UpperSampleRate = 0
	b.LowerSampleRate = 0
	for i := range b.ReservoirFull {
		b.ReservoirFull[i] = false
		b.Reservoir[i] = 0
	}
	b.ReservoirIndex = 0
}

// Package reservoir implements the timer reservoir with extrema capture
// described in spec.md §4.D: a size-k random-replacement sampler whose
// per-window maximum and minimum are tracked outside the reservoir so
// they survive random eviction.
package reservoir

import (
	"math/rand/v2"

	"github.com/lyft/statsrelay/internal/bucket"
)

// EffectiveCount returns 1/presample when presample is a genuine
// sub-sampling rate in (0,1), else 1. Shared with internal/counter,
// which applies the same compensation rule to counter buckets
// (spec.md §4.D, §4.E).
func EffectiveCount(presample float64) float64 {
	if presample > 0 && presample < 1 {
		return 1 / presample
	}
	return 1
}

// Absorb folds one timer observation into b. b.LastWindowCount must
// already reflect this observation (the sampling state machine
// increments it before calling Absorb) since the random-replacement step
// uses it as the denominator. onReplace, if given, is called once for
// every value that displaces an existing reservoir slot via random
// replacement (never for the initial left-to-right fill), so callers can
// count reservoir replacements as an operational metric.
func Absorb(b *bucket.Bucket, value, presample float64, rng *rand.Rand, onReplace ...func()) {
	effectiveCount := EffectiveCount(presample)
	b.Sum += value
	b.Count += effectiveCount

	value, skip := absorbExtrema(b, value, presample)
	if skip {
		return
	}
	insert(b, value, rng, onReplace...)
}

// absorbExtrema applies the extrema hand-off rule (spec.md §4.D, §9):
// the first observation of a window sets both extrema at once and is
// held solely as the extremum rather than entering the reservoir. Every
// later observation that displaces an extremum demotes the previous
// extremum into the reservoir candidate pool instead.
func absorbExtrema(b *bucket.Bucket, value, presample float64) (reservoirValue float64, skip bool) {
	if !b.UpperSet && !b.LowerSet {
		b.Upper, b.Lower = value, value
		b.UpperSet, b.LowerSet = true, true
		b.UpperSampleRate, b.LowerSampleRate = presample, presample
		return 0, true
	}

	if value > b.Upper {
		previous := b.Upper
		b.Upper = value
		b.UpperSampleRate = presample
		value = previous
	} else if value < b.Lower {
		previous := b.Lower
		b.Lower = value
		b.LowerSampleRate = presample
		value = previous
	}
	return value, false
}

// insert places value into the reservoir, filling left-to-right while
// there is room and falling back to algorithm-R-style random replacement
// once full. The replacement draw is uniform over [0, LastWindowCount)
// rather than [0, reservoirSize) so that earlier observations in the
// window are not systematically favored over later ones (spec.md §4.D).
func insert(b *bucket.Bucket, value float64, rng *rand.Rand, onReplace ...func()) {
	threshold := len(b.Reservoir)
	if threshold == 0 {
		return
	}
	if b.ReservoirIndex < threshold {
		b.Reservoir[b.ReservoirIndex] = value
		b.ReservoirFull[b.ReservoirIndex] = true
		b.ReservoirIndex++
		return
	}
	if b.LastWindowCount <= 0 {
		return
	}
	k := int(rng.Uint64N(uint64(b.LastWindowCount)))
	if k < threshold {
		b.Reservoir[k] = value
		b.ReservoirFull[k] = true
		if len(onReplace) > 0 && onReplace[0] != nil {
			onReplace[0]()
		}
	}
}

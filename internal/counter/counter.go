// Package counter implements the counter aggregator (spec component E):
// sum/count accumulation with pre-sample-rate compensation.
package counter

import (
	"github.com/lyft/statsrelay/internal/bucket"
	"github.com/lyft/statsrelay/internal/reservoir"
)

// Absorb un-samples an observation and folds it into b, per spec.md
// §4.E: effectiveCount = 1/presample when presample is a genuine
// sub-sampling rate in (0,1), else 1; effectiveValue = value *
// effectiveCount reconstructs what the producer would have sent had it
// not pre-sampled.
func Absorb(b *bucket.Bucket, value, presample float64) {
	effectiveCount := reservoir.EffectiveCount(presample)
	b.Sum += value * effectiveCount
	b.Count += effectiveCount
}

// Package sampling implements the per-bucket sampling state machine
// (spec component C): PASSTHROUGH/SAMPLING transitions, driven both by
// each observation (Consider) and by the window boundary (UpdateFlags).
package sampling

import (
	"math/rand/v2"

	"github.com/lyft/statsrelay/internal/bucket"
	"github.com/lyft/statsrelay/internal/counter"
	"github.com/lyft/statsrelay/internal/reservoir"
	"github.com/lyft/statsrelay/internal/statsdline"
)

// Result reports whether an observation was absorbed into a sampled
// summary (SAMPLING) or should be forwarded downstream verbatim
// (NotSampling).
type Result int

const (
	NotSampling Result = iota
	Sampling
)

// Logger is the minimal structured-logging capability the state machine
// needs: one debug line, once, on every PASSTHROUGH -> SAMPLING
// transition (spec.md §4.C). A *logrus.Entry satisfies this.
type Logger interface {
	Debugf(format string, args ...interface{})
}

type nopLogger struct{}

func (nopLogger) Debugf(string, ...interface{}) {}

// NopLogger discards transition log lines.
var NopLogger Logger = nopLogger{}

// Consider folds one observation into b and returns whether it was
// absorbed by the sampling summary or should pass through untouched.
// Callers must only invoke Consider for Counter and Timer buckets; all
// other types are the engine facade's concern (spec.md §7,
// UnsupportedType).
func Consider(b *bucket.Bucket, obs statsdline.Observation, threshold int64, rng *rand.Rand, log Logger, onReplace ...func()) Result {
	b.LastWindowCount++

	if !b.Sampling && b.LastWindowCount > threshold {
		b.Sampling = true
		if log != nil {
			log.Debugf("bucket %q entering sampling mode: last_window_count=%d threshold=%d",
				b.Key, b.LastWindowCount, threshold)
		}
	}

	if !b.Sampling {
		return NotSampling
	}

	switch b.Type {
	case statsdline.Timer:
		reservoir.Absorb(b, obs.Value, obs.PresamplingValue, rng, onReplace...)
	case statsdline.Counter:
		counter.Absorb(b, obs.Value, obs.PresamplingValue)
	}
	return Sampling
}

// UpdateFlags runs the window-boundary transition (spec.md §4.C):
// engage/stay-engaged if the window saw more than threshold arrivals,
// disengage (and rewind the reservoir fill pointer) if it previously was
// sampling but fell at or under threshold, and always reset the window
// counter. It is invoked once per bucket per flush, after emission
// (flush.Bucket) or in place of it (engine.Engine.UpdateFlags).
func UpdateFlags(b *bucket.Bucket, threshold int64) {
	switch {
	case b.LastWindowCount > threshold:
		b.Sampling = true
	case b.Sampling:
		b.Sampling = false
		b.ReservoirIndex = 0
	}
	b.LastWindowCount = 0
}

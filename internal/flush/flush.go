// Package flush implements the flush engine (spec component F): it
// walks the bucket table on each tick, serializes summarized state back
// into statsd line protocol, and resets the window.
package flush

import (
	"strconv"

	"github.com/lyft/statsrelay/internal/bucket"
	"github.com/lyft/statsrelay/internal/sampling"
	"github.com/lyft/statsrelay/internal/statsdline"
)

// Callback receives one emitted line for key. Implementations must not
// retain line past the call returns (spec.md §3, §6).
type Callback func(key string, line []byte)

// Bucket runs spec.md §4.F for a single bucket: emit lines if sampling
// is engaged and there is something to report, then always reset the
// window (both the aggregation state and the sampling state machine).
// threshold is the window-boundary gate UpdateFlags uses (spec.md §4.C).
func Bucket(b *bucket.Bucket, threshold int64, cb Callback) {
	if b.Sampling && b.Count > 0 {
		emit(b, cb)
	}
	b.ResetWindow()
	sampling.UpdateFlags(b, threshold)
}

// Table runs Bucket over every bucket in t. Across keys the emission
// order is the table's iteration order, which is implementation-defined
// (spec.md §4.F).
func Table(t *bucket.Table, threshold int64, cb Callback) {
	t.Iter(func(b *bucket.Bucket) {
		Bucket(b, threshold, cb)
	})
}

func emit(b *bucket.Bucket, cb Callback) {
	switch b.Type {
	case statsdline.Counter:
		emitCounter(b, cb)
	case statsdline.Timer:
		emitTimer(b, cb)
	}
}

// emitCounter writes a single line per spec.md §4.F: the mean value at
// the effective sample rate 1/count, which downstream un-samples back to
// count*mean == sum.
func emitCounter(b *bucket.Bucket, cb Callback) {
	mean := b.Sum / b.Count
	rate := 1 / b.Count
	cb(b.Key, line(b.Key, mean, statsdline.Counter, rate))
}

// emitTimer writes, in order, the upper extremum, the lower extremum
// (both always present once sampling has engaged, per spec.md §4.D
// step 1), and up to len(reservoir) sample lines at the derived rate
// num_samples/count.
func emitTimer(b *bucket.Bucket, cb Callback) {
	if b.UpperSet {
		cb(b.Key, line(b.Key, b.Upper, statsdline.Timer, b.UpperSampleRate))
	}
	if b.LowerSet {
		cb(b.Key, line(b.Key, b.Lower, statsdline.Timer, b.LowerSampleRate))
	}

	numSamples := b.NumReservoirSamples()
	if numSamples == 0 {
		return
	}
	sampleRate := float64(numSamples) / b.Count
	for i, full := range b.ReservoirFull {
		if !full {
			continue
		}
		cb(b.Key, line(b.Key, b.Reservoir[i], statsdline.Timer, sampleRate))
	}
}

// line formats a single output line, always including the @<rate>
// clause (spec.md §6). Following the worked examples in spec.md §8
// (e.g. "foo:5|c@0.5", "t:40|ms@1") rather than the grammar sketch's
// literal "|@", the rate is concatenated directly onto the type token
// with no separating pipe; (*statsdline.Parser).Parse accepts this form
// (its second-pipe scan is optional), so emitted lines still round-trip.
func line(key string, value float64, mtype statsdline.MetricType, rate float64) []byte {
	buf := make([]byte, 0, len(key)+32)
	buf = append(buf, key...)
	buf = append(buf, ':')
	buf = strconv.AppendFloat(buf, value, 'g', -1, 64)
	buf = append(buf, '|')
	buf = append(buf, mtype.String()...)
	buf = append(buf, '@')
	buf = strconv.AppendFloat(buf, rate, 'g', -1, 64)
	return buf
}

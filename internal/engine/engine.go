// Package engine is the facade (spec component G) coordinating the
// parser, bucket table, sampling state machine, reservoir, counter
// aggregator, and flush engine behind the four operations the spec
// names: consider, flush, update_flags, is_sampling.
package engine

import (
	"math/rand/v2"
	"time"

	"github.com/lyft/statsrelay/internal/bucket"
	"github.com/lyft/statsrelay/internal/flush"
	"github.com/lyft/statsrelay/internal/httpapi"
	"github.com/lyft/statsrelay/internal/sampling"
	"github.com/lyft/statsrelay/internal/statsdline"
)

// Config holds the three knobs spec.md §6 defines. ReservoirSize and
// Threshold are deliberately independent (see DESIGN.md's Open Question
// resolution): ReservoirSize fixes the reservoir's length, Threshold is
// the arrivals-per-window gate compared against LastWindowCount.
type Config struct {
	Threshold     int64
	Window        time.Duration
	ReservoirSize int
}

// Stats is the set of operational counters the engine reports through,
// satisfied by internal/stats. A nil Stats is valid and silently
// discards everything.
type Stats interface {
	ObserveConsidered(mtype statsdline.MetricType, result sampling.Result)
	ObservePassthroughType(mtype statsdline.MetricType)
	ObserveFlushLines(n int)
	ObserveReservoirReplacement()
}

type nopStats struct{}

func (nopStats) ObserveConsidered(statsdline.MetricType, sampling.Result) {}
func (nopStats) ObservePassthroughType(statsdline.MetricType)             {}
func (nopStats) ObserveFlushLines(int)                                    {}
func (nopStats) ObserveReservoirReplacement()                             {}

// Engine is the single-threaded-per-instance sampling and aggregation
// core described in spec.md §5: every exported method here must be
// called with exclusive access to this Engine value; the surrounding
// service may run many Engines in parallel (see internal/shard), each
// with its own table and its own goroutine-confinement.
type Engine struct {
	cfg   Config
	table *bucket.Table
	rng   *rand.Rand
	log   sampling.Logger
	stats Stats
}

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithLogger injects the debug-level transition logger spec.md §4.C
// calls for. Defaults to a no-op logger.
func WithLogger(log sampling.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// WithStats injects an operational-counters sink. Defaults to a no-op.
func WithStats(stats Stats) Option {
	return func(e *Engine) { e.stats = stats }
}

// WithRand overrides the engine's random source, primarily for
// deterministic tests; production callers should leave this to New's
// default wall-clock seeding (spec.md §5).
func WithRand(rng *rand.Rand) Option {
	return func(e *Engine) { e.rng = rng }
}

// New constructs an Engine. threshold and reservoirSize must be >= 1.
func New(threshold int64, window time.Duration, reservoirSize int, opts ...Option) *Engine {
	e := &Engine{
		cfg: Config{
			Threshold:     threshold,
			Window:        window,
			ReservoirSize: reservoirSize,
		},
		table: bucket.NewTable(),
		rng:   rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), uint64(time.Now().UnixNano()>>1))),
		log:   sampling.NopLogger,
		stats: nopStats{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Consider ingests one parsed observation for key (spec component G,
// "consider"). KV/Gauge/Histogram/Set observations are the
// UnsupportedType case from spec.md §7: they return NotSampling without
// creating or mutating a bucket.
func (e *Engine) Consider(key string, obs statsdline.Observation) sampling.Result {
	switch obs.Type {
	case statsdline.Counter, statsdline.Timer:
	default:
		e.stats.ObservePassthroughType(obs.Type)
		return sampling.NotSampling
	}

	b := e.table.GetOrCreate(key, obs.Type, e.cfg.ReservoirSize)
	result := sampling.Consider(b, obs, e.cfg.Threshold, e.rng, e.log, e.stats.ObserveReservoirReplacement)
	e.stats.ObserveConsidered(obs.Type, result)
	return result
}

// Flush walks every bucket, emits summarized lines through cb, and
// resets the window (spec component F via internal/flush, driven here
// as component G's "flush" operation).
func (e *Engine) Flush(cb flush.Callback) {
	emitted := 0
	flush.Table(e.table, e.cfg.Threshold, func(key string, line []byte) {
		emitted++
		cb(key, line)
	})
	e.stats.ObserveFlushLines(emitted)
}

// UpdateFlags runs the window-boundary transition for every bucket
// without emitting anything, for callers that flush on a cadence where
// no output is required (spec component G, "update_flags").
func (e *Engine) UpdateFlags() {
	e.table.Iter(func(b *bucket.Bucket) {
		sampling.UpdateFlags(b, e.cfg.Threshold)
	})
}

// IsSampling reports whether key's bucket is currently in SAMPLING
// state. Keys never observed report NotSampling (spec.md S5).
func (e *Engine) IsSampling(key string) sampling.Result {
	b := e.table.Get(key)
	if b == nil || !b.Sampling {
		return sampling.NotSampling
	}
	return sampling.Sampling
}

// Len reports how many distinct keys are currently tracked.
func (e *Engine) Len() int {
	return e.table.Len()
}

// Snapshot renders every tracked bucket as a httpapi.BucketSummary,
// satisfying httpapi.Snapshotter for the /debug/buckets surface.
func (e *Engine) Snapshot() []httpapi.BucketSummary {
	out := make([]httpapi.BucketSummary, 0, e.table.Len())
	e.table.Iter(func(b *bucket.Bucket) {
		out = append(out, httpapi.BucketSummary{
			Key:             b.Key,
			Type:            b.Type.String(),
			Sampling:        b.Sampling,
			LastWindowCount: b.LastWindowCount,
			Count:           b.Count,
			Sum:             b.Sum,
		})
	})
	return out
}

// Package shard routes keys across N independently-owned engines so a
// single sampling engine's single-goroutine confinement (spec.md §5)
// does not become a throughput bottleneck under many distinct keys.
// Each shard still owns its table exclusively; cross-shard state is
// never shared.
package shard

import (
	"hash/fnv"

	"github.com/lyft/statsrelay/internal/flush"
	"github.com/lyft/statsrelay/internal/httpapi"
	"github.com/lyft/statsrelay/internal/sampling"
	"github.com/lyft/statsrelay/internal/statsdline"
)

// Engine is the subset of *engine.Engine the shard set needs. Declared
// narrowly here so this package does not import internal/engine and
// can be unit tested against a fake.
type Engine interface {
	Consider(key string, obs statsdline.Observation) sampling.Result
	Flush(cb flush.Callback)
	UpdateFlags()
	IsSampling(key string) sampling.Result
	Len() int
	Snapshot() []httpapi.BucketSummary
}

// Set is a fixed number of shards selected by FNV-1a hash of the
// observation key, matching the partitioning scheme most of the pack's
// multi-worker services use for key-affine routing.
type Set struct {
	engines []Engine
}

// New builds a Set from already-constructed engines, one per shard.
func New(engines []Engine) *Set {
	if len(engines) == 0 {
		panic("shard: at least one engine is required")
	}
	return &Set{engines: engines}
}

// Index returns which shard key belongs to.
func (s *Set) Index(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(len(s.engines)))
}

// Consider routes to key's shard.
func (s *Set) Consider(key string, obs statsdline.Observation) sampling.Result {
	return s.engines[s.Index(key)].Consider(key, obs)
}

// IsSampling routes to key's shard.
func (s *Set) IsSampling(key string) sampling.Result {
	return s.engines[s.Index(key)].IsSampling(key)
}

// FlushAll flushes every shard in turn, in index order.
func (s *Set) FlushAll(cb flush.Callback) {
	for _, e := range s.engines {
		e.Flush(cb)
	}
}

// UpdateFlagsAll runs the window-boundary transition on every shard.
func (s *Set) UpdateFlagsAll() {
	for _, e := range s.engines {
		e.UpdateFlags()
	}
}

// Len sums the tracked-key count across all shards.
func (s *Set) Len() int {
	total := 0
	for _, e := range s.engines {
		total += e.Len()
	}
	return total
}

// Count returns the number of shards in the set.
func (s *Set) Count() int {
	return len(s.engines)
}

// Snapshot concatenates every shard's bucket summaries, satisfying
// httpapi.Snapshotter.
func (s *Set) Snapshot() []httpapi.BucketSummary {
	out := make([]httpapi.BucketSummary, 0, s.Len())
	for _, e := range s.engines {
		out = append(out, e.Snapshot()...)
	}
	return out
}

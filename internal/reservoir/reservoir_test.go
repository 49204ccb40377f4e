package reservoir

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lyft/statsrelay/internal/bucket"
	"github.com/lyft/statsrelay/internal/statsdline"
)

func newTimerBucket(reservoirSize int) *bucket.Bucket {
	return bucket.New("t", statsdline.Timer, reservoirSize)
}

func newRNG() *rand.Rand {
	return rand.New(rand.NewPCG(1, 2))
}

// S4 — timer extrema preservation, threshold=3 reservoir=3.
func TestAbsorbExtremaPreservation(t *testing.T) {
	b := newTimerBucket(3)
	rng := newRNG()

	// First three arrivals (10, 20, 30) are passthrough in the full
	// engine; only the engaged observations (5, 40, 25) reach the
	// reservoir, with LastWindowCount reflecting arrival order.
	b.LastWindowCount = 4
	Absorb(b, 5, 1.0, rng)
	b.LastWindowCount = 5
	Absorb(b, 40, 1.0, rng)
	b.LastWindowCount = 6
	Absorb(b, 25, 1.0, rng)

	assert.True(t, b.UpperSet)
	assert.True(t, b.LowerSet)
	assert.Equal(t, 40.0, b.Upper)
	assert.Equal(t, 5.0, b.Lower)
	assert.Equal(t, 1.0, b.UpperSampleRate)
	assert.Equal(t, 1.0, b.LowerSampleRate)
	assert.LessOrEqual(t, b.NumReservoirSamples(), 3)
}

func TestAbsorbFirstObservationHeldAsExtremumOnly(t *testing.T) {
	b := newTimerBucket(3)
	rng := newRNG()
	b.LastWindowCount = 1
	Absorb(b, 7, 1.0, rng)

	assert.Equal(t, 7.0, b.Upper)
	assert.Equal(t, 7.0, b.Lower)
	assert.Equal(t, 0, b.NumReservoirSamples(), "first observation must not enter the reservoir")
}

func TestAbsorbExtremaBoundsInvariant(t *testing.T) {
	b := newTimerBucket(5)
	rng := newRNG()
	values := []float64{10, -3, 99, 42, -50, 7, 0, 12}
	for i, v := range values {
		b.LastWindowCount = int64(i + 1)
		Absorb(b, v, 1.0, rng)
		require.True(t, b.UpperSet)
		require.True(t, b.LowerSet)
		assert.GreaterOrEqual(t, b.Upper, b.Lower)
		assert.LessOrEqual(t, v, b.Upper)
		assert.GreaterOrEqual(t, v, b.Lower)
	}
}

func TestReservoirSizeNeverExceedsBound(t *testing.T) {
	b := newTimerBucket(3)
	rng := newRNG()
	for i := 0; i < 50; i++ {
		b.LastWindowCount = int64(i + 1)
		Absorb(b, float64(i), 1.0, rng)
		assert.LessOrEqual(t, b.NumReservoirSamples(), 3)
	}
}

func TestEqualValuesDoNotReplaceExtrema(t *testing.T) {
	b := newTimerBucket(3)
	rng := newRNG()
	b.LastWindowCount = 1
	Absorb(b, 10, 1.0, rng)
	b.LastWindowCount = 2
	Absorb(b, 10, 1.0, rng)
	assert.Equal(t, 10.0, b.Upper)
	assert.Equal(t, 10.0, b.Lower)
	// The second equal observation is neither a new extremum nor the
	// first-of-window, so it lands in the reservoir.
	assert.Equal(t, 1, b.NumReservoirSamples())
}

func TestAbsorbCallsOnReplaceOnlyOnRandomReplacementNotInitialFill(t *testing.T) {
	b := newTimerBucket(2)
	rng := newRNG()
	replacements := 0
	onReplace := func() { replacements++ }

	// First observation: extremum hand-off, never reaches the reservoir.
	b.LastWindowCount = 1
	Absorb(b, 1, 1.0, rng, onReplace)
	assert.Equal(t, 0, replacements)

	// Second and third observations fill the two-slot reservoir
	// left-to-right; no replacement yet.
	b.LastWindowCount = 2
	Absorb(b, 2, 1.0, rng, onReplace)
	b.LastWindowCount = 3
	Absorb(b, 3, 1.0, rng, onReplace)
	assert.Equal(t, 0, replacements)
	assert.Equal(t, 2, b.NumReservoirSamples())

	// The reservoir is now full; further observations either replace a
	// slot (onReplace fires) or are dropped (it does not).
	for i := 0; i < 20; i++ {
		b.LastWindowCount = int64(i + 4)
		Absorb(b, float64(i+4), 1.0, rng, onReplace)
	}
	assert.Greater(t, replacements, 0)
	assert.Equal(t, 2, b.NumReservoirSamples())
}

func TestAbsorbToleratesNilOnReplace(t *testing.T) {
	b := newTimerBucket(1)
	rng := newRNG()
	assert.NotPanics(t, func() {
		for i := 0; i < 5; i++ {
			b.LastWindowCount = int64(i + 1)
			Absorb(b, float64(i), 1.0, rng)
		}
	})
}

func TestEffectiveCount(t *testing.T) {
	assert.Equal(t, 1.0, EffectiveCount(1.0))
	assert.Equal(t, 2.0, EffectiveCount(0.5))
	assert.Equal(t, 1.0, EffectiveCount(0))
}

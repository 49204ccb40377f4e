package sampling

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lyft/statsrelay/internal/bucket"
	"github.com/lyft/statsrelay/internal/statsdline"
)

func rng() *rand.Rand { return rand.New(rand.NewPCG(1, 2)) }

func counterObs(v float64) statsdline.Observation {
	return statsdline.Observation{Key: "foo", Value: v, Type: statsdline.Counter, PresamplingValue: 1.0}
}

// S1 — passthrough below threshold.
func TestConsiderPassthroughBelowThreshold(t *testing.T) {
	b := bucket.New("foo", statsdline.Counter, 3)
	for _, v := range []float64{1, 2, 3} {
		res := Consider(b, counterObs(v), 3, rng(), NopLogger)
		assert.Equal(t, NotSampling, res)
	}
	assert.False(t, b.Sampling)
	assert.Equal(t, int64(3), b.LastWindowCount)
}

// S2 — counter sampling engages at threshold=3.
func TestConsiderCounterEngages(t *testing.T) {
	b := bucket.New("foo", statsdline.Counter, 3)
	r := rng()
	for _, v := range []float64{1, 2, 3} {
		assert.Equal(t, NotSampling, Consider(b, counterObs(v), 3, r, NopLogger))
	}
	assert.Equal(t, Sampling, Consider(b, counterObs(4), 3, r, NopLogger))
	assert.Equal(t, Sampling, Consider(b, counterObs(6), 3, r, NopLogger))

	assert.True(t, b.Sampling)
	assert.Equal(t, 10.0, b.Sum)
	assert.Equal(t, 2.0, b.Count)
}

// S3 — counter with pre-sample rate.
func TestConsiderCounterWithPresampleRate(t *testing.T) {
	b := bucket.New("bar", statsdline.Counter, 3)
	r := rng()
	obs := statsdline.Observation{Key: "bar", Value: 1, Type: statsdline.Counter, PresamplingValue: 0.5}
	for i := 0; i < 3; i++ {
		assert.Equal(t, NotSampling, Consider(b, obs, 3, r, NopLogger))
	}
	assert.Equal(t, Sampling, Consider(b, obs, 3, r, NopLogger))
	assert.Equal(t, 2.0, b.Sum)
	assert.Equal(t, 2.0, b.Count)
}

func TestUpdateFlagsEngagesAndResets(t *testing.T) {
	b := bucket.New("foo", statsdline.Counter, 3)
	b.LastWindowCount = 5
	UpdateFlags(b, 3)
	assert.True(t, b.Sampling)
	assert.Equal(t, int64(0), b.LastWindowCount)
}

func TestUpdateFlagsDisengagesBelowThreshold(t *testing.T) {
	b := bucket.New("foo", statsdline.Counter, 3)
	b.Sampling = true
	b.ReservoirIndex = 2
	b.LastWindowCount = 1
	UpdateFlags(b, 3)
	assert.False(t, b.Sampling)
	assert.Equal(t, 0, b.ReservoirIndex)
	assert.Equal(t, int64(0), b.LastWindowCount)
}

func TestSamplingMonotonicWithinWindow(t *testing.T) {
	b := bucket.New("foo", statsdline.Counter, 3)
	r := rng()
	for i := 0; i < 3; i++ {
		Consider(b, counterObs(1), 3, r, NopLogger)
	}
	Consider(b, counterObs(1), 3, r, NopLogger)
	assert.True(t, b.Sampling)
	// Further observations within the same window never fall back to
	// passthrough.
	for i := 0; i < 10; i++ {
		res := Consider(b, counterObs(1), 3, r, NopLogger)
		assert.Equal(t, Sampling, res)
		assert.True(t, b.Sampling)
	}
}

func TestConsiderThreadsOnReplaceToTheReservoirForTimers(t *testing.T) {
	b := bucket.New("t", statsdline.Timer, 1)
	r := rng()
	obs := func(v float64) statsdline.Observation {
		return statsdline.Observation{Key: "t", Value: v, Type: statsdline.Timer, PresamplingValue: 1}
	}
	replacements := 0
	onReplace := func() { replacements++ }
	for i := 0; i < 3; i++ {
		assert.Equal(t, NotSampling, Consider(b, obs(float64(i)), 3, r, NopLogger, onReplace))
	}
	for i := 0; i < 20; i++ {
		Consider(b, obs(float64(i+10)), 3, r, NopLogger, onReplace)
	}
	assert.Greater(t, replacements, 0)
}

func TestTypeStabilityAcrossObservations(t *testing.T) {
	b := bucket.New("foo", statsdline.Timer, 3)
	r := rng()
	obs := statsdline.Observation{Key: "foo", Value: 1, Type: statsdline.Timer, PresamplingValue: 1}
	for i := 0; i < 5; i++ {
		Consider(b, obs, 3, r, NopLogger)
		assert.Equal(t, statsdline.Timer, b.Type)
	}
}

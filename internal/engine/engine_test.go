package engine

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lyft/statsrelay/internal/sampling"
	"github.com/lyft/statsrelay/internal/statsdline"
)

func newTestEngine(threshold int64, reservoirSize int) *Engine {
	return New(threshold, 0, reservoirSize, WithRand(rand.New(rand.NewPCG(1, 2))))
}

func mustParse(t *testing.T, parser *statsdline.Parser, line string) statsdline.Observation {
	t.Helper()
	obs, err := parser.Parse([]byte(line))
	require.NoError(t, err)
	return obs
}

// S1 — passthrough below threshold.
func TestEngineS1PassthroughBelowThreshold(t *testing.T) {
	e := newTestEngine(3, 3)
	p := statsdline.NewParser()
	for _, l := range []string{"foo:1|c", "foo:2|c", "foo:3|c"} {
		obs := mustParse(t, p, l)
		assert.Equal(t, sampling.NotSampling, e.Consider(obs.Key, obs))
	}
	var lines int
	e.Flush(func(string, []byte) { lines++ })
	assert.Equal(t, 0, lines)
}

// S2 — counter sampling engages.
func TestEngineS2CounterEngages(t *testing.T) {
	e := newTestEngine(3, 3)
	p := statsdline.NewParser()
	results := make([]sampling.Result, 0, 5)
	for _, l := range []string{"foo:1|c", "foo:2|c", "foo:3|c", "foo:4|c", "foo:6|c"} {
		obs := mustParse(t, p, l)
		results = append(results, e.Consider(obs.Key, obs))
	}
	assert.Equal(t, []sampling.Result{
		sampling.NotSampling, sampling.NotSampling, sampling.NotSampling,
		sampling.Sampling, sampling.Sampling,
	}, results)

	var lines []string
	e.Flush(func(_ string, line []byte) { lines = append(lines, string(line)) })
	require.Len(t, lines, 1)
	assert.Equal(t, "foo:5|c@0.5", lines[0])
}

// S3 — counter with pre-sample rate.
func TestEngineS3CounterWithPresampleRate(t *testing.T) {
	e := newTestEngine(3, 3)
	p := statsdline.NewParser()
	for i := 0; i < 4; i++ {
		obs := mustParse(t, p, "bar:1|c|@0.5")
		e.Consider(obs.Key, obs)
	}
	var lines []string
	e.Flush(func(_ string, line []byte) { lines = append(lines, string(line)) })
	require.Len(t, lines, 1)
	assert.Equal(t, "bar:1|c@0.5", lines[0])
}

// S4 — timer extrema preservation.
func TestEngineS4TimerExtrema(t *testing.T) {
	e := newTestEngine(3, 3)
	p := statsdline.NewParser()
	for _, l := range []string{"t:10|ms", "t:20|ms", "t:30|ms", "t:5|ms", "t:40|ms", "t:25|ms"} {
		obs := mustParse(t, p, l)
		e.Consider(obs.Key, obs)
	}
	var lines []string
	e.Flush(func(_ string, line []byte) { lines = append(lines, string(line)) })
	require.GreaterOrEqual(t, len(lines), 2)
	assert.Equal(t, "t:40|ms@1", lines[0])
	assert.Equal(t, "t:5|ms@1", lines[1])
}

// S5 — invalid line rejected, no bucket created.
func TestEngineS5InvalidLineRejected(t *testing.T) {
	e := newTestEngine(3, 3)
	p := statsdline.NewParser()
	_, err := p.Parse([]byte("noSeparator|c"))
	require.Error(t, err)
	assert.Equal(t, sampling.NotSampling, e.IsSampling("noSeparator"))
	assert.Equal(t, 0, e.Len())
}

// S6 — tag-like key with embedded colon.
func TestEngineS6TagLikeKey(t *testing.T) {
	p := statsdline.NewParser()
	obs := mustParse(t, p, "svc.__region=us:west:42.0|ms|@0.1")
	assert.Equal(t, "svc.__region=us:west", obs.Key)
	assert.Equal(t, 42.0, obs.Value)
	assert.Equal(t, statsdline.Timer, obs.Type)
	assert.Equal(t, 0.1, obs.PresamplingValue)
}

func TestEngineUnsupportedTypePassesThroughWithoutBucket(t *testing.T) {
	e := newTestEngine(1, 3)
	obs := statsdline.Observation{Key: "g1", Value: 1, Type: statsdline.Gauge, PresamplingValue: 1}
	assert.Equal(t, sampling.NotSampling, e.Consider("g1", obs))
	assert.Equal(t, 0, e.Len())
}

func TestEngineUpdateFlagsWithoutEmission(t *testing.T) {
	e := newTestEngine(3, 3)
	p := statsdline.NewParser()
	for _, l := range []string{"foo:1|c", "foo:2|c", "foo:3|c", "foo:4|c"} {
		obs := mustParse(t, p, l)
		e.Consider(obs.Key, obs)
	}
	e.UpdateFlags()
	assert.Equal(t, sampling.Sampling, e.IsSampling("foo"))
}

func TestEngineIsSamplingDiagnostic(t *testing.T) {
	e := newTestEngine(3, 3)
	assert.Equal(t, sampling.NotSampling, e.IsSampling("never-seen"))
}

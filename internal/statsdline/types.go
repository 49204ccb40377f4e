// Package statsdline decodes the statsd line protocol into typed
// observations. It is the tight inner loop referenced throughout the
// sampling engine: every byte the engine ever sees passes through Parse.
package statsdline

import "fmt"

// MetricType identifies the wire-format type token of an observation.
type MetricType uint8

const (
	// Counter is "c".
	Counter MetricType = iota
	// Timer is "ms".
	Timer
	// KV is "kv". Passed through untouched by the engine.
	KV
	// Gauge is "g". Passed through untouched by the engine.
	Gauge
	// Histogram is "h". Passed through untouched by the engine.
	Histogram
	// Set is "s". Passed through untouched by the engine.
	Set
)

func (t MetricType) String() string {
	switch t {
	case Counter:
		return "c"
	case Timer:
		return "ms"
	case KV:
		return "kv"
	case Gauge:
		return "g"
	case Histogram:
		return "h"
	case Set:
		return "s"
	default:
		return "unknown"
	}
}

// typeTokens maps the closed set of wire-format type tokens to MetricType.
var typeTokens = map[string]MetricType{
	"c":  Counter,
	"ms": Timer,
	"kv": KV,
	"g":  Gauge,
	"h":  Histogram,
	"s":  Set,
}

// Observation is a single decoded statsd line. It is transient: callers
// must not retain it past the consider() call it feeds.
type Observation struct {
	Key              string
	Value            float64
	Type             MetricType
	PresamplingValue float64
}

// Reason identifies why a line was rejected, suitable for a rejection
// metric label.
type Reason string

const (
	ReasonNoSeparator Reason = "no_separator"
	ReasonEmptyKey    Reason = "empty_key"
	ReasonBadValue    Reason = "bad_value"
	ReasonMissingType Reason = "missing_type"
	ReasonUnknownType Reason = "unknown_type"
	ReasonBadRate     Reason = "bad_rate"
	ReasonEmptyLine   Reason = "empty_line"
)

// InvalidLine reports why a raw line failed to parse.
type InvalidLine struct {
	Reason Reason
	Line   string
}

func (e *InvalidLine) Error() string {
	return fmt.Sprintf("statsdline: invalid line (%s): %q", e.Reason, e.Line)
}

func reject(reason Reason, line []byte) error {
	return &InvalidLine{Reason: reason, Line: string(line)}
}

// Package stats is the prometheus/client_golang-backed implementation
// of engine.Stats, generalizing the teacher's internal bookkeeping
// counters (statsd.go's acc.AddCounter/"statsd_listener" internal
// stats) into a registered metrics family for the whole process.
package stats

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/lyft/statsrelay/internal/sampling"
	"github.com/lyft/statsrelay/internal/statsdline"
)

// Recorder implements engine.Stats and also exposes the wider
// operational counters (ingest, parse rejection) the listener and
// parser layers report through.
type Recorder struct {
	registry *prometheus.Registry

	linesReceived        *prometheus.CounterVec
	linesRejected        *prometheus.CounterVec
	considered           *prometheus.CounterVec
	passthroughType      *prometheus.CounterVec
	flushLines           prometheus.Counter
	reservoirReplacement prometheus.Counter
	bucketsTracked       prometheus.GaugeFunc
}

// New builds a Recorder and registers its collectors against registry.
// trackedGauge, when non-nil, is polled to report the current bucket
// count (engine.Len); pass nil if no engine is available yet.
func New(registry *prometheus.Registry, trackedGauge func() float64) *Recorder {
	r := &Recorder{
		registry: registry,
		linesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "statsrelay",
			Name:      "lines_received_total",
			Help:      "Raw statsd lines received by protocol.",
		}, []string{"proto"}),
		linesRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "statsrelay",
			Name:      "lines_rejected_total",
			Help:      "Lines rejected by the parser, by reason.",
		}, []string{"reason"}),
		considered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "statsrelay",
			Name:      "observations_considered_total",
			Help:      "Observations passed to the sampling engine, by metric type and result.",
		}, []string{"type", "result"}),
		passthroughType: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "statsrelay",
			Name:      "unsupported_type_passthrough_total",
			Help:      "Observations of an unsupported type forwarded without bucketing.",
		}, []string{"type"}),
		flushLines: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "statsrelay",
			Name:      "flush_lines_emitted_total",
			Help:      "Lines emitted by engine flushes.",
		}),
		reservoirReplacement: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "statsrelay",
			Name:      "reservoir_replacements_total",
			Help:      "Timer observations that displaced an existing reservoir slot via random replacement.",
		}),
	}
	if trackedGauge != nil {
		r.bucketsTracked = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "statsrelay",
			Name:      "buckets_tracked",
			Help:      "Distinct keys currently tracked by the engine.",
		}, trackedGauge)
	}

	registry.MustRegister(r.linesReceived, r.linesRejected, r.considered, r.passthroughType, r.flushLines, r.reservoirReplacement)
	if r.bucketsTracked != nil {
		registry.MustRegister(r.bucketsTracked)
	}
	return r
}

// ObserveConsidered implements engine.Stats.
func (r *Recorder) ObserveConsidered(mtype statsdline.MetricType, result sampling.Result) {
	r.considered.WithLabelValues(mtype.String(), resultLabel(result)).Inc()
}

// ObservePassthroughType implements engine.Stats.
func (r *Recorder) ObservePassthroughType(mtype statsdline.MetricType) {
	r.passthroughType.WithLabelValues(mtype.String()).Inc()
}

// ObserveFlushLines implements engine.Stats.
func (r *Recorder) ObserveFlushLines(n int) {
	r.flushLines.Add(float64(n))
}

// ObserveReservoirReplacement implements engine.Stats.
func (r *Recorder) ObserveReservoirReplacement() {
	r.reservoirReplacement.Inc()
}

// ObserveLineReceived records one raw line arriving over proto ("udp" or "tcp").
func (r *Recorder) ObserveLineReceived(proto string) {
	r.linesReceived.WithLabelValues(proto).Inc()
}

// ObserveLineRejected records a parser rejection by reason.
func (r *Recorder) ObserveLineRejected(reason statsdline.Reason) {
	r.linesRejected.WithLabelValues(string(reason)).Inc()
}

func resultLabel(result sampling.Result) string {
	if result == sampling.Sampling {
		return "sampling"
	}
	return "not_sampling"
}

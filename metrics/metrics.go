// Package metrics defines the Prometheus collectors emitted by the join
// operator. The materialized-view writer records no metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"storj.io/dataflow/align"
)

// LatencyBuckets are the histogram buckets shared by every duration metric
// in this package, spanning sub-millisecond flush/align latencies up to a
// full minute of barrier skew.
var LatencyBuckets = []float64{
	.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60,
}

// Collectors bundles the metrics wired into one operator instance. Its
// methods must not be called on a nil Collectors; hashjoin.New substitutes
// NoOp() when given nil, and NoOp() also serves contexts (tests,
// standalone examples) that don't register with a Prometheus registry.
type Collectors struct {
	barrierAlignLatency *prometheus.HistogramVec
	joinFlushDuration   *prometheus.HistogramVec
	joinRowsEmitted     *prometheus.CounterVec
}

// New creates a Collectors and registers it with reg. namespace prefixes
// every metric name, so multiple operators in one process don't collide.
func New(reg prometheus.Registerer, namespace string) *Collectors {
	c := &Collectors{
		barrierAlignLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "barrier_align_latency_seconds",
			Help:      "time between an input barrier's arrival and alignment with its counterpart",
			Buckets:   LatencyBuckets,
		}, nil),
		joinFlushDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "join_flush_duration_seconds",
			Help:      "time spent writing one side's dirty join state to the backing store",
			Buckets:   LatencyBuckets,
		}, []string{"side"}),
		joinRowsEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "join_rows_emitted_total",
			Help:      "rows emitted by the join operator, labeled by change op",
		}, []string{"op"}),
	}
	reg.MustRegister(c.barrierAlignLatency, c.joinFlushDuration, c.joinRowsEmitted)
	return c
}

// NoOp returns a Collectors that records observations into unregistered
// vectors, safe for use in tests and examples that don't run a metrics
// server.
func NoOp() *Collectors {
	return &Collectors{
		barrierAlignLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "barrier_align_latency_seconds",
			Buckets: LatencyBuckets,
		}, nil),
		joinFlushDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "join_flush_duration_seconds",
			Buckets: LatencyBuckets,
		}, []string{"side"}),
		joinRowsEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "join_rows_emitted_total",
		}, []string{"op"}),
	}
}

// ObserveAlignLatency records the delay between a barrier's arrival on one
// side and its alignment with the other.
func (c *Collectors) ObserveAlignLatency(d time.Duration) {
	c.barrierAlignLatency.WithLabelValues().Observe(d.Seconds())
}

func sideLabel(s align.Side) string {
	if s == align.Left {
		return "left"
	}
	return "right"
}

// ObserveFlushDuration records how long a side's flush took.
func (c *Collectors) ObserveFlushDuration(s align.Side, d time.Duration) {
	c.joinFlushDuration.WithLabelValues(sideLabel(s)).Observe(d.Seconds())
}

// RowsEmitted adds counts[op] to the emitted-row counter for each change op
// present in counts, where op is one of streamchunk.Op's String() values.
func (c *Collectors) RowsEmitted(counts map[string]int) {
	for op, n := range counts {
		if n <= 0 {
			continue
		}
		c.joinRowsEmitted.WithLabelValues(op).Add(float64(n))
	}
}

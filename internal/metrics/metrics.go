// Package metrics exports per-pass refinement statistics as Prometheus metrics.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/cwbudde/fmrefine/internal/refine"
)

const namespace = "fmrefine"

var moveBuckets = prometheus.ExponentialBuckets(1, 4, 9)

// Recorder counts finished passes and observes their move statistics.
// It implements refine.PassObserver and is safe for concurrent use, so one
// Recorder can be shared by all jobs of refine.RunParallel.
type Recorder struct {
	// PassesTotal counts finished passes.
	// Labels: reason (exhausted, policy, aborted)
	PassesTotal *prometheus.CounterVec

	// ImprovingPassesTotal counts passes that left a strictly lower cut.
	ImprovingPassesTotal prometheus.Counter

	// MovesTotal counts every applied move, including undone ones.
	MovesTotal prometheus.Counter

	// PassMoves is the distribution of applied moves per pass.
	PassMoves prometheus.Histogram

	// PassRollbackMoves is the distribution of moves undone by the final rollback.
	PassRollbackMoves prometheus.Histogram

	// PassCutImprovement is the distribution of InitialCut-BestCut per pass.
	PassCutImprovement prometheus.Histogram
}

var _ refine.PassObserver = (*Recorder)(nil)

// NewRecorder registers the pass metrics with reg.
// Use prometheus.NewRegistry() in tests to avoid clashing with the default registry.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		PassesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "passes_total",
				Help:      "Total number of local-search passes by stop reason",
			},
			[]string{"reason"},
		),
		ImprovingPassesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "improving_passes_total",
				Help:      "Total number of passes that lowered the cut",
			},
		),
		MovesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "moves_total",
				Help:      "Total number of applied moves",
			},
		),
		PassMoves: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "pass",
				Name:      "moves",
				Help:      "Moves applied per pass",
				Buckets:   moveBuckets,
			},
		),
		PassRollbackMoves: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "pass",
				Name:      "rollback_moves",
				Help:      "Moves undone by rollback per pass",
				Buckets:   moveBuckets,
			},
		),
		PassCutImprovement: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "pass",
				Name:      "cut_improvement",
				Help:      "Cut reduction achieved per pass",
				Buckets:   []float64{0, 1, 2, 5, 10, 25, 50, 100, 250, 1000},
			},
		),
	}
}

// OnMove implements refine.PassObserver.
func (r *Recorder) OnMove(int, refine.Move, int64) {
	r.MovesTotal.Inc()
}

// OnPassEnd implements refine.PassObserver.
func (r *Recorder) OnPassEnd(res *refine.PassResult) {
	r.PassesTotal.WithLabelValues(string(res.Reason)).Inc()
	if res.Improved() {
		r.ImprovingPassesTotal.Inc()
	}
	r.PassMoves.Observe(float64(res.MovesApplied))
	r.PassRollbackMoves.Observe(float64(res.MovesUndone))
	r.PassCutImprovement.Observe(float64(res.InitialCut - res.BestCut))
}

// WriteFile writes everything g gathers to path in the text exposition
// format, suitable for the node exporter textfile collector.
func WriteFile(path string, g prometheus.Gatherer) error {
	if err := prometheus.WriteToTextfile(path, g); err != nil {
		return fmt.Errorf("failed to write metrics file: %w", err)
	}
	return nil
}

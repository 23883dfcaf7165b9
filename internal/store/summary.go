package store

import (
	"gonum.org/v1/gonum/stat"

	"github.com/cwbudde/fmrefine/internal/refine"
)

// PassSummary describes the moves of one pass in a trace.
type PassSummary struct {
	Pass         int     `json:"pass" yaml:"pass"`
	Moves        int     `json:"moves" yaml:"moves"`
	StartCut     int64   `json:"startCut" yaml:"start_cut"`
	BestCut      int64   `json:"bestCut" yaml:"best_cut"`
	BestIndex    int     `json:"bestIndex" yaml:"best_index"`
	MeanGain     float64 `json:"meanGain" yaml:"mean_gain"`
	GainVariance float64 `json:"gainVariance" yaml:"gain_variance"`
}

// TraceSummary aggregates a whole trace.
type TraceSummary struct {
	Moves        int           `json:"moves" yaml:"moves"`
	MeanGain     float64       `json:"meanGain" yaml:"mean_gain"`
	GainVariance float64       `json:"gainVariance" yaml:"gain_variance"`
	Passes       []PassSummary `json:"passes" yaml:"passes"`
}

// Summarize computes per-pass and overall gain statistics of a trace.
// Variance is the unbiased sample variance and is 0 for fewer than two moves.
func Summarize(entries []TraceEntry) TraceSummary {
	summary := TraceSummary{Moves: len(entries)}
	summary.MeanGain, summary.GainVariance = meanVariance(gainsOf(entries))

	for _, group := range groupByPass(entries) {
		first := group[0]
		ps := PassSummary{
			Pass:     first.Pass,
			Moves:    len(group),
			StartCut: first.Cut + first.Gain,
		}
		ps.BestCut = ps.StartCut
		for _, e := range group {
			if e.Cut < ps.BestCut {
				ps.BestCut = e.Cut
				ps.BestIndex = e.Index
			}
		}
		ps.MeanGain, ps.GainVariance = meanVariance(gainsOf(group))
		summary.Passes = append(summary.Passes, ps)
	}

	return summary
}

// ReplayAdaptive feeds each pass of a trace to a fresh random-walk policy
// and returns, per pass, the move index at which the adaptive rule would
// have stopped, or 0 if it would have let the pass run to its end.
func ReplayAdaptive(entries []TraceEntry, cfg refine.Config) []int {
	var stops []int
	for _, group := range groupByPass(entries) {
		policy := &refine.RandomWalkPolicy{}
		policy.ResetStatistics()
		stop := 0
		for _, e := range group {
			policy.UpdateStatistics(float64(e.Gain))
			if policy.SearchShouldStop(0, e.Index, cfg) {
				stop = e.Index
				break
			}
		}
		stops = append(stops, stop)
	}
	return stops
}

func gainsOf(entries []TraceEntry) []float64 {
	gains := make([]float64, len(entries))
	for i, e := range entries {
		gains[i] = float64(e.Gain)
	}
	return gains
}

func meanVariance(x []float64) (float64, float64) {
	switch len(x) {
	case 0:
		return 0, 0
	case 1:
		return x[0], 0
	}
	return stat.MeanVariance(x, nil)
}

// groupByPass splits entries into runs of equal Pass, keeping order.
func groupByPass(entries []TraceEntry) [][]TraceEntry {
	var groups [][]TraceEntry
	start := 0
	for i := 1; i <= len(entries); i++ {
		if i == len(entries) || entries[i].Pass != entries[start].Pass {
			groups = append(groups, entries[start:i])
			start = i
		}
	}
	return groups
}

package opt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/cwbudde/fmrefine/internal/partition"
	"github.com/cwbudde/fmrefine/internal/refine"
)

// Instance is one seed partition the tuner refines for every candidate.
// The seed itself is never modified; each evaluation refines a clone.
type Instance struct {
	Name           string
	Seed           *partition.Partition
	MaxBlockWeight int64
}

// TuneOptions bounds the search box and the cost of a candidate.
type TuneOptions struct {
	AlphaMax float64
	BetaMax  float64

	// MovePenalty weighs applied moves per vertex against relative cut
	MovePenalty float64

	// MaxPasses per refinement; 0 means until converged
	MaxPasses int

	// Convergence decides when a refinement stops starting new passes.
	// The zero value stops after the first pass without improvement.
	Convergence refine.ConvergenceConfig

	// Workers bounds concurrent refinements; 0 means one per instance
	Workers int
}

// TuneResult is the best adaptive configuration found.
type TuneResult struct {
	Config refine.Config `json:"-" yaml:"-"`

	Alpha float64 `json:"alpha" yaml:"alpha"`
	Beta  float64 `json:"beta" yaml:"beta"`
	Cost  float64 `json:"cost" yaml:"cost"`

	// BaselineCost is the cost of the base configuration as given
	BaselineCost float64 `json:"baselineCost" yaml:"baseline_cost"`

	Evaluations int `json:"evaluations" yaml:"evaluations"`
}

// Evaluation is the outcome of refining every instance with one configuration.
type Evaluation struct {
	// RelativeCut is the mean of FinalCut/InitialCut over instances
	RelativeCut float64

	// MovesPerVertex is the mean of applied moves divided by vertex count
	MovesPerVertex float64
}

// Cost combines the two measures into the minimized objective.
func (e Evaluation) Cost(movePenalty float64) float64 {
	return e.RelativeCut + movePenalty*e.MovesPerVertex
}

// Evaluate refines a clone of every instance with cfg in parallel.
// opts are passed to every search loop.
func Evaluate(ctx context.Context, instances []Instance, cfg refine.Config, maxPasses, workers int, opts ...refine.Option) (Evaluation, error) {
	if len(instances) == 0 {
		return Evaluation{}, errors.New("no instances to evaluate")
	}

	jobs := make([]refine.Job, len(instances))
	clones := make([]*partition.Partition, len(instances))
	for i, inst := range instances {
		p := inst.Seed.Clone()
		limit := inst.MaxBlockWeight
		clones[i] = p
		jobs[i] = refine.Job{
			Partition: p,
			NewSource: func() refine.MoveSource { return partition.NewFMSource(p, limit) },
			MaxPasses: maxPasses,
		}
	}

	results, err := refine.RunParallel(ctx, cfg, jobs, workers, opts...)
	if err != nil {
		return Evaluation{}, err
	}

	var e Evaluation
	for i, res := range results {
		initial := res.InitialCut
		if initial < 1 {
			initial = 1
		}
		e.RelativeCut += float64(res.FinalCut) / float64(initial)

		n := clones[i].Hypergraph().NumVertices()
		if n < 1 {
			n = 1
		}
		e.MovesPerVertex += float64(res.TotalMoves()) / float64(n)
	}
	e.RelativeCut /= float64(len(results))
	e.MovesPerVertex /= float64(len(results))
	return e, nil
}

// TuneAdaptive searches (Alpha, Beta) in [0, AlphaMax] x [0, BetaMax] for
// the adaptive rule that minimizes the evaluation cost over instances.
// All other thresholds are taken from base.
func TuneAdaptive(ctx context.Context, instances []Instance, base refine.Config, optimizer Optimizer, opts TuneOptions) (*TuneResult, error) {
	if len(instances) == 0 {
		return nil, errors.New("no instances to tune on")
	}
	if opts.AlphaMax <= 0 || opts.BetaMax <= 0 {
		return nil, fmt.Errorf("search box must be positive, got alpha_max=%g beta_max=%g", opts.AlphaMax, opts.BetaMax)
	}
	if err := base.Validate(); err != nil {
		return nil, err
	}

	loopOpts := []refine.Option{refine.WithConvergence(opts.Convergence)}
	baseline, err := Evaluate(ctx, instances, base, opts.MaxPasses, opts.Workers, loopOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate baseline: %w", err)
	}
	baselineCost := baseline.Cost(opts.MovePenalty)
	slog.Info("Tuning started",
		"instances", len(instances),
		"baseline_rule", base.StoppingRule.String(),
		"baseline_cost", baselineCost,
	)

	candidate := func(x []float64) refine.Config {
		cfg := base
		cfg.StoppingRule = refine.RuleAdaptiveOpt
		cfg.Alpha = x[0]
		cfg.Beta = x[1]
		return cfg
	}

	var (
		mu       sync.Mutex
		firstErr error
		evals    int
	)
	objective := func(x []float64) float64 {
		mu.Lock()
		evals++
		failed := firstErr != nil
		mu.Unlock()
		if failed {
			return math.Inf(1)
		}

		e, err := Evaluate(ctx, instances, candidate(x), opts.MaxPasses, opts.Workers, loopOpts...)
		if err != nil {
			mu.Lock()
			if firstErr == nil {
				firstErr = err
			}
			mu.Unlock()
			return math.Inf(1)
		}
		cost := e.Cost(opts.MovePenalty)
		slog.Debug("Candidate evaluated",
			"alpha", x[0],
			"beta", x[1],
			"relative_cut", e.RelativeCut,
			"moves_per_vertex", e.MovesPerVertex,
			"cost", cost,
		)
		return cost
	}

	best, cost, err := optimizer.Run(objective, []float64{0, 0}, []float64{opts.AlphaMax, opts.BetaMax})
	if err != nil {
		return nil, err
	}
	if firstErr != nil {
		return nil, fmt.Errorf("failed to evaluate candidate: %w", firstErr)
	}

	cfg := candidate(best)
	slog.Info("Tuning complete",
		"alpha", cfg.Alpha,
		"beta", cfg.Beta,
		"cost", cost,
		"baseline_cost", baselineCost,
		"evaluations", evals,
	)

	return &TuneResult{
		Config:       cfg,
		Alpha:        cfg.Alpha,
		Beta:         cfg.Beta,
		Cost:         cost,
		BaselineCost: baselineCost,
		Evaluations:  evals,
	}, nil
}

package refine

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// RefineResult holds the outcome of repeated passes over one partition.
type RefineResult struct {
	InitialCut int64         `json:"initialCut"`
	FinalCut   int64         `json:"finalCut"`
	Passes     []*PassResult `json:"passes"`
}

// TotalMoves returns the number of moves applied over all passes, including
// the ones that were rolled back.
func (r *RefineResult) TotalMoves() int {
	total := 0
	for _, p := range r.Passes {
		total += p.MovesApplied
	}
	return total
}

// Refine runs passes over p until the loop's convergence settings say the
// cut has stopped improving or maxPasses is reached (maxPasses <= 0 means no
// limit). With the default settings it stops after the first pass that does
// not lower the cut. newSource is called once per
// pass and must return a source that sees p's current state.
func Refine(ctx context.Context, loop *SearchLoop, p Partition, newSource func() MoveSource, maxPasses int) (*RefineResult, error) {
	result := &RefineResult{InitialCut: p.Cut()}
	convergence := NewConvergenceTracker(loop.convergence, result.InitialCut)

	for pass := 0; maxPasses <= 0 || pass < maxPasses; pass++ {
		pr, err := loop.Run(ctx, p, newSource())
		if pr != nil {
			result.Passes = append(result.Passes, pr)
		}
		if err != nil {
			result.FinalCut = p.Cut()
			return result, fmt.Errorf("pass %d: %w", pass, err)
		}
		if convergence.Update(p.Cut()) {
			break
		}
	}

	result.FinalCut = p.Cut()
	slog.Info("Refinement complete",
		"rule", loop.cfg.StoppingRule.String(),
		"passes", len(result.Passes),
		"initial_cut", result.InitialCut,
		"final_cut", result.FinalCut,
	)
	return result, nil
}

// Job is one independent refinement for RunParallel.
type Job struct {
	Partition Partition
	NewSource func() MoveSource
	MaxPasses int
	// Observer, if set, receives this job's passes only
	Observer PassObserver
}

// RunParallel refines every job concurrently with at most limit jobs in
// flight (limit <= 0 means no limit). Each job gets its own SearchLoop, so
// no policy or checkpoint state is shared between goroutines. A policy given
// through WithPolicy would be shared and is rejected with a *ConfigError;
// WithPolicyFactory builds one per job instead. Jobs must not share a
// Partition, and an observer in opts must be safe for concurrent use.
//
// Results are returned in job order. The first error cancels the remaining
// jobs.
func RunParallel(ctx context.Context, cfg Config, jobs []Job, limit int, opts ...Option) ([]*RefineResult, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	template, err := NewSearchLoop(cfg, opts...)
	if err != nil {
		return nil, err
	}
	if template.sharedPolicy {
		return nil, &ConfigError{Field: "Policy", Reason: "one policy instance cannot serve concurrent jobs, use WithPolicyFactory"}
	}

	results := make([]*RefineResult, len(jobs))
	g, gCtx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}

	for i, job := range jobs {
		i, job := i, job
		g.Go(func() error {
			jobOpts := append([]Option{}, opts...)
			if job.Observer != nil {
				jobOpts = append(jobOpts, WithObserver(job.Observer))
			}
			loop, err := NewSearchLoop(cfg, jobOpts...)
			if err != nil {
				return err
			}
			res, err := Refine(gCtx, loop, job.Partition, job.NewSource, job.MaxPasses)
			results[i] = res
			if err != nil {
				return fmt.Errorf("job %d: %w", i, err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

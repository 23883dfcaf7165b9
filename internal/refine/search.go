package refine

import (
	"context"
	"fmt"
	"log/slog"
)

// StopReason records why a pass ended.
type StopReason string

const (
	// StopExhausted means the move source had no candidate left
	StopExhausted StopReason = "exhausted"
	// StopPolicyTriggered means the stop policy ended the pass
	StopPolicyTriggered StopReason = "policy"
	// StopAborted means the caller's context ended the pass
	StopAborted StopReason = "aborted"
)

// PassResult summarizes one finished pass.
type PassResult struct {
	InitialCut   int64      `json:"initialCut"`
	BestCut      int64      `json:"bestCut"`
	MinCutIndex  int        `json:"minCutIndex"`
	MovesApplied int        `json:"movesApplied"`
	MovesUndone  int        `json:"movesUndone"`
	Reason       StopReason `json:"reason"`
}

// Improved reports whether the pass left a strictly better cut.
func (r *PassResult) Improved() bool {
	return r.BestCut < r.InitialCut
}

// PassObserver receives progress of a pass. Calls happen on the goroutine
// running the pass.
type PassObserver interface {
	OnMove(index int, m Move, cut int64)
	OnPassEnd(result *PassResult)
}

// MultiObserver forwards to every observer in order.
type MultiObserver []PassObserver

// OnMove implements PassObserver.
func (mo MultiObserver) OnMove(index int, m Move, cut int64) {
	for _, o := range mo {
		o.OnMove(index, m, cut)
	}
}

// OnPassEnd implements PassObserver.
func (mo MultiObserver) OnPassEnd(result *PassResult) {
	for _, o := range mo {
		o.OnPassEnd(result)
	}
}

// Option configures a SearchLoop.
type Option func(*SearchLoop)

// WithObserver attaches an observer to every pass.
func WithObserver(o PassObserver) Option {
	return func(s *SearchLoop) {
		s.observer = o
	}
}

// WithPolicy replaces the policy built from the configured rule.
// The loop then shares p with the caller, so RunParallel rejects it;
// use WithPolicyFactory there.
func WithPolicy(p StopPolicy) Option {
	return func(s *SearchLoop) {
		s.policy = p
		s.sharedPolicy = p != nil
	}
}

// WithPolicyFactory replaces the policy built from the configured rule with
// one returned by newPolicy. Every loop built with this option calls
// newPolicy once, so each gets an instance of its own.
func WithPolicyFactory(newPolicy func() StopPolicy) Option {
	return func(s *SearchLoop) {
		s.newPolicy = newPolicy
	}
}

// WithConvergence sets when Refine stops starting new passes.
func WithConvergence(c ConvergenceConfig) Option {
	return func(s *SearchLoop) {
		s.convergence = c
	}
}

// WithLogger sets the logger used for pass summaries.
func WithLogger(l *slog.Logger) Option {
	return func(s *SearchLoop) {
		s.logger = l
	}
}

// SearchLoop runs local-search passes with one stop policy.
//
// A SearchLoop may run many passes one after another; it resets its policy
// at the start of each. It must not run two passes at the same time.
type SearchLoop struct {
	cfg          Config
	policy       StopPolicy
	sharedPolicy bool
	newPolicy    func() StopPolicy
	observer     PassObserver
	logger       *slog.Logger
	convergence  ConvergenceConfig
}

// NewSearchLoop validates cfg and builds a loop with a fresh policy for its rule.
func NewSearchLoop(cfg Config, opts ...Option) (*SearchLoop, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &SearchLoop{cfg: cfg, convergence: DefaultConvergenceConfig()}
	for _, opt := range opts {
		opt(s)
	}

	if s.policy == nil && s.newPolicy != nil {
		s.policy = s.newPolicy()
		if s.policy == nil {
			return nil, &ConfigError{Field: "Policy", Reason: "factory returned nil"}
		}
	}
	if s.policy == nil {
		policy, err := NewStopPolicy(cfg.StoppingRule)
		if err != nil {
			return nil, err
		}
		s.policy = policy
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s, nil
}

// Config returns the thresholds the loop was built with.
func (s *SearchLoop) Config() Config {
	return s.cfg
}

// Policy returns the loop's stop policy.
func (s *SearchLoop) Policy() StopPolicy {
	return s.policy
}

// Run drives one pass over p with moves from src and rolls back to the best
// state seen. The cut of p after Run is never worse than before it.
//
// If ctx ends between two moves, Run rolls back and returns the result
// together with ctx.Err().
func (s *SearchLoop) Run(ctx context.Context, p Partition, src MoveSource) (*PassResult, error) {
	s.policy.ResetStatistics()

	tracker := NewCheckpointTracker(p.Cut())
	result := &PassResult{InitialCut: tracker.BestCut()}

	var abortErr error
	for {
		if err := ctx.Err(); err != nil {
			result.Reason = StopAborted
			abortErr = err
			break
		}

		m, ok := src.Next()
		if !ok {
			result.Reason = StopExhausted
			break
		}

		if err := p.Move(m); err != nil {
			// the move never happened, so the log is still consistent
			if _, rbErr := tracker.Rollback(p); rbErr != nil {
				return nil, fmt.Errorf("rollback after failed move: %w", rbErr)
			}
			return nil, fmt.Errorf("failed to apply move of vertex %d: %w", m.Vertex, err)
		}

		cut := p.Cut()
		tracker.Record(m, cut)
		if s.observer != nil {
			s.observer.OnMove(tracker.CurrentIndex(), m, cut)
		}

		s.policy.UpdateStatistics(float64(m.Gain))
		if s.policy.SearchShouldStop(tracker.MinCutIndex(), tracker.CurrentIndex(), s.cfg) {
			result.Reason = StopPolicyTriggered
			break
		}
	}

	result.MovesApplied = tracker.CurrentIndex()
	undone, err := tracker.Rollback(p)
	if err != nil {
		return nil, err
	}
	result.MovesUndone = undone
	result.MinCutIndex = tracker.MinCutIndex()
	result.BestCut = tracker.BestCut()

	s.logger.Debug("Pass finished",
		"rule", s.cfg.StoppingRule.String(),
		"reason", string(result.Reason),
		"initial_cut", result.InitialCut,
		"best_cut", result.BestCut,
		"moves_applied", result.MovesApplied,
		"moves_undone", result.MovesUndone,
	)

	if s.observer != nil {
		s.observer.OnPassEnd(result)
	}
	return result, abortErr
}

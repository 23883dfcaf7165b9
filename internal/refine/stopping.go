package refine

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// StoppingRule names one of the two stop policies.
type StoppingRule uint8

const (
	// RuleSimple stops after a fixed number of fruitless moves
	RuleSimple StoppingRule = iota
	// RuleAdaptiveOpt stops when the gain random walk stops paying off
	RuleAdaptiveOpt
)

// ErrUnknownStoppingRule is returned when a rule name cannot be resolved.
var ErrUnknownStoppingRule = errors.New("unknown stopping rule")

func (r StoppingRule) String() string {
	switch r {
	case RuleSimple:
		return "simple"
	case RuleAdaptiveOpt:
		return "adaptive_opt"
	}
	return fmt.Sprintf("StoppingRule(%d)", uint8(r))
}

// Valid reports whether r is one of the defined rules.
func (r StoppingRule) Valid() bool {
	return r == RuleSimple || r == RuleAdaptiveOpt
}

// ParseStoppingRule resolves a rule name as written in config files and flags.
func ParseStoppingRule(s string) (StoppingRule, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "simple":
		return RuleSimple, nil
	case "adaptive_opt", "adaptive":
		return RuleAdaptiveOpt, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownStoppingRule, s)
}

// StopPolicy decides when a local-search pass has stopped paying off.
//
// A policy instance belongs to exactly one pass at a time. Implementations
// are not safe for concurrent use; callers that refine in parallel must
// create one policy per pass.
type StopPolicy interface {
	// SearchShouldStop reports whether the pass should stop now.
	// minCutIndex is the position of the current checkpoint, currentIndex the
	// number of moves applied so far.
	SearchShouldStop(minCutIndex, currentIndex int, cfg Config) bool

	// ResetStatistics clears any per-pass state. Called at pass start.
	ResetStatistics()

	// UpdateStatistics records the realized gain of an applied move.
	UpdateStatistics(gain float64)
}

// NewStopPolicy returns a fresh policy for the given rule.
func NewStopPolicy(rule StoppingRule) (StopPolicy, error) {
	switch rule {
	case RuleSimple:
		return &FruitlessMovesPolicy{}, nil
	case RuleAdaptiveOpt:
		return &RandomWalkPolicy{}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownStoppingRule, rule)
}

// FruitlessMovesPolicy stops once the search is more than MaxFruitlessMoves
// moves past the checkpoint. It keeps no state of its own.
type FruitlessMovesPolicy struct{}

// SearchShouldStop implements StopPolicy.
func (FruitlessMovesPolicy) SearchShouldStop(minCutIndex, currentIndex int, cfg Config) bool {
	limit := cfg.MaxFruitlessMoves
	if limit < 0 {
		limit = 0
	}
	return currentIndex-minCutIndex > limit
}

// ResetStatistics implements StopPolicy.
func (FruitlessMovesPolicy) ResetStatistics() {}

// UpdateStatistics implements StopPolicy.
func (FruitlessMovesPolicy) UpdateStatistics(float64) {}

// RandomWalkPolicy models the sequence of move gains as a random walk and
// stops when numSteps*mean^2 exceeds Alpha*variance+Beta.
//
// Mean and variance come from running sums (count, sum, sum of squares) that
// are updated after every move; no gain history is kept.
type RandomWalkPolicy struct {
	numSteps         int
	sumGains         float64
	sumGainsSquared  float64
	expectedGain     float64
	expectedVariance float64
}

// SearchShouldStop implements StopPolicy. The indices are ignored.
func (p *RandomWalkPolicy) SearchShouldStop(_, _ int, cfg Config) bool {
	drift := float64(p.numSteps) * p.expectedGain * p.expectedGain
	noise := cfg.Alpha*p.expectedVariance + cfg.Beta
	stop := drift > noise
	if stop {
		slog.Debug("Random walk stop",
			"num_steps", p.numSteps,
			"expected_gain", p.expectedGain,
			"expected_variance", p.expectedVariance,
			"drift", drift,
			"noise", noise,
		)
	}
	return stop
}

// ResetStatistics implements StopPolicy.
func (p *RandomWalkPolicy) ResetStatistics() {
	p.numSteps = 0
	p.sumGains = 0
	p.sumGainsSquared = 0
	p.expectedGain = 0
	p.expectedVariance = 0
}

// UpdateStatistics implements StopPolicy.
func (p *RandomWalkPolicy) UpdateStatistics(gain float64) {
	p.numSteps++
	p.sumGains += gain
	p.sumGainsSquared += gain * gain
	n := float64(p.numSteps)
	p.expectedGain = p.sumGains / n
	// Unbiased running variance; a single sample has variance 0.
	if p.numSteps > 1 {
		p.expectedVariance = (p.sumGainsSquared - (p.sumGains*p.sumGains)/n) / (n - 1)
		// cancellation in the sum of squares can dip just below zero
		if p.expectedVariance < 0 {
			p.expectedVariance = 0
		}
	} else {
		p.expectedVariance = 0
	}
}

// NumSteps returns the number of gains observed since the last reset.
func (p *RandomWalkPolicy) NumSteps() int {
	return p.numSteps
}

// ExpectedGain returns the mean observed gain.
func (p *RandomWalkPolicy) ExpectedGain() float64 {
	return p.expectedGain
}

// ExpectedVariance returns the sample variance of the observed gains.
func (p *RandomWalkPolicy) ExpectedVariance() float64 {
	return p.expectedVariance
}

package refine

import (
	"log/slog"
)

// ConvergenceConfig decides when Refine stops starting new passes.
type ConvergenceConfig struct {
	// Patience is the number of consecutive passes without significant
	// improvement that ends refinement. Values below 1 are treated as 1.
	Patience int

	// Threshold is the minimum relative cut reduction of a pass that counts
	// as progress, measured against the cut of the last significant pass.
	// Example: 0.001 = 0.1% improvement required
	Threshold float64
}

// DefaultConvergenceConfig stops after the first pass that does not lower the cut.
func DefaultConvergenceConfig() ConvergenceConfig {
	return ConvergenceConfig{
		Patience:  1,
		Threshold: 0,
	}
}

// ConvergenceTracker tracks the cut after every pass and detects when
// further passes stop paying off.
type ConvergenceTracker struct {
	config          ConvergenceConfig
	cutHistory      []int64
	bestCut         int64
	lastSignificant int64
	staleCount      int
}

// NewConvergenceTracker starts tracking from the cut before the first pass.
func NewConvergenceTracker(config ConvergenceConfig, initialCut int64) *ConvergenceTracker {
	if config.Patience < 1 {
		config.Patience = 1
	}
	return &ConvergenceTracker{
		config:          config,
		bestCut:         initialCut,
		lastSignificant: initialCut,
	}
}

// Update records the cut after a pass and returns true if refinement has converged.
// A pass is significant if it lowers the cut by at least Threshold relative
// to the last significant cut. A zero improvement is never significant.
func (c *ConvergenceTracker) Update(cut int64) bool {
	c.cutHistory = append(c.cutHistory, cut)
	if cut < c.bestCut {
		c.bestCut = cut
	}

	improvement := c.lastSignificant - cut
	relative := 0.0
	if c.lastSignificant > 0 {
		relative = float64(improvement) / float64(c.lastSignificant)
	}

	if improvement > 0 && relative >= c.config.Threshold {
		c.lastSignificant = cut
		c.staleCount = 0
		slog.Debug("Pass improved cut",
			"cut", cut,
			"relative_improvement", relative,
		)
		return false
	}

	c.staleCount++
	slog.Debug("No significant cut improvement",
		"cut", cut,
		"last_significant", c.lastSignificant,
		"relative_improvement", relative,
		"stale_count", c.staleCount,
		"patience", c.config.Patience,
	)
	return c.staleCount >= c.config.Patience
}

// BestCut returns the lowest cut seen so far.
func (c *ConvergenceTracker) BestCut() int64 {
	return c.bestCut
}

// History returns the cut after every recorded pass.
func (c *ConvergenceTracker) History() []int64 {
	return append([]int64{}, c.cutHistory...)
}

// StaleCount returns the current number of passes without significant improvement.
func (c *ConvergenceTracker) StaleCount() int {
	return c.staleCount
}

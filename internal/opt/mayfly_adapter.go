package opt

import (
	"fmt"
	"math/rand"

	"github.com/cwbudde/mayfly"
)

// MayflyAdapter wraps the external Mayfly library to conform to our Optimizer interface
type MayflyAdapter struct {
	maxIters int
	popSize  int
	seed     int64
}

// NewMayfly creates a new Mayfly optimizer adapter.
// popSize must be at least 20.
func NewMayfly(maxIters, popSize int, seed int64) *MayflyAdapter {
	return &MayflyAdapter{
		maxIters: maxIters,
		popSize:  popSize,
		seed:     seed,
	}
}

// Run executes the Mayfly optimization using the external library.
//
// The library only supports one scalar bound for all dimensions, so the
// search runs on the unit cube and every position is scaled into
// [lower[i], upper[i]] before eval sees it.
func (m *MayflyAdapter) Run(eval func([]float64) float64, lower, upper []float64) ([]float64, float64, error) {
	dim := len(lower)
	if dim == 0 || len(upper) != dim {
		return nil, 0, fmt.Errorf("bounds mismatch: %d lower, %d upper", len(lower), len(upper))
	}
	for i := range lower {
		if upper[i] < lower[i] {
			return nil, 0, fmt.Errorf("dimension %d: upper bound %g below lower bound %g", i, upper[i], lower[i])
		}
	}

	scaled := func(unit []float64) []float64 {
		return scaleToBox(unit, lower, upper)
	}

	config := mayfly.NewDefaultConfig()
	config.ObjectiveFunc = func(unit []float64) float64 {
		return eval(scaled(unit))
	}
	config.ProblemSize = dim
	config.MaxIterations = m.maxIters
	config.NPop = m.popSize
	config.LowerBound = 0
	config.UpperBound = 1

	// Set random seed for reproducibility
	config.Rand = rand.New(rand.NewSource(m.seed))

	result, err := mayfly.Optimize(config)
	if err != nil {
		return nil, 0, fmt.Errorf("mayfly optimization failed: %w", err)
	}

	return scaled(result.GlobalBest.Position), result.GlobalBest.Cost, nil
}

// scaleToBox maps a point of the unit cube into [lower, upper], clamping
// coordinates that drift outside [0, 1].
func scaleToBox(unit, lower, upper []float64) []float64 {
	x := make([]float64, len(unit))
	for i, u := range unit {
		if u < 0 {
			u = 0
		} else if u > 1 {
			u = 1
		}
		x[i] = lower[i] + u*(upper[i]-lower[i])
	}
	return x
}

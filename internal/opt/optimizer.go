package opt

// Optimizer defines a derivative-free minimizer over a box
type Optimizer interface {
	// Run minimizes eval over the box [lower, upper].
	// lower and upper have one entry per dimension.
	// Returns: best parameters and best cost
	Run(eval func([]float64) float64, lower, upper []float64) ([]float64, float64, error)
}

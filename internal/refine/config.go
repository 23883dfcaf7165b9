package refine

import (
	"math"
)

// Config holds the thresholds consumed by a local-search pass.
// The search loop and stopping policies only ever read it.
type Config struct {
	// StoppingRule selects which StopPolicy a pass uses
	StoppingRule StoppingRule

	// MaxFruitlessMoves is how many moves the simple rule allows past the
	// last improvement before it stops the pass
	MaxFruitlessMoves int

	// Alpha weights the observed gain variance in the adaptive rule
	Alpha float64

	// Beta is the additive margin of the adaptive rule
	Beta float64
}

// DefaultConfig returns the thresholds used when nothing else is configured
func DefaultConfig() Config {
	return Config{
		StoppingRule:      RuleSimple,
		MaxFruitlessMoves: 350,
		Alpha:             1,
		Beta:              0,
	}
}

// BetaForSize returns ln(n), the size-dependent margin commonly paired with
// the adaptive rule. Graphs with fewer than two vertices get 0.
func BetaForSize(n int) float64 {
	if n < 2 {
		return 0
	}
	return math.Log(float64(n))
}

// Validate checks the thresholds for values no pass can work with.
// A negative MaxFruitlessMoves is accepted: the simple rule treats it as 0.
func (c Config) Validate() error {
	if !c.StoppingRule.Valid() {
		return &ConfigError{Field: "StoppingRule", Reason: "unknown rule " + c.StoppingRule.String()}
	}
	if math.IsNaN(c.Alpha) || math.IsInf(c.Alpha, 0) {
		return &ConfigError{Field: "Alpha", Reason: "must be finite"}
	}
	if math.IsNaN(c.Beta) || math.IsInf(c.Beta, 0) {
		return &ConfigError{Field: "Beta", Reason: "must be finite"}
	}
	if c.Beta < 0 {
		return &ConfigError{Field: "Beta", Reason: "cannot be negative"}
	}
	return nil
}

// ConfigError reports an unusable refinement threshold.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return "invalid refinement config: " + e.Field + " " + e.Reason
}

// Package config loads fmrefine settings from defaults, an optional YAML
// file, FMREFINE_* environment variables and command-line flags.
package config

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/cwbudde/fmrefine/internal/refine"
)

// EnvPrefix prefixes every environment override, e.g. FMREFINE_REFINE_ALPHA.
const EnvPrefix = "FMREFINE"

// Settings holds all configuration for fmrefine.
type Settings struct {
	DataDir   string            `mapstructure:"data_dir" yaml:"data_dir" validate:"required"`
	Partition PartitionSettings `mapstructure:"partition" yaml:"partition"`
	Refine    RefineSettings    `mapstructure:"refine" yaml:"refine"`
	Tune      TuneSettings      `mapstructure:"tune" yaml:"tune"`
}

// PartitionSettings controls the seed partition.
type PartitionSettings struct {
	K       int     `mapstructure:"k" yaml:"k" validate:"gte=2"`
	Epsilon float64 `mapstructure:"epsilon" yaml:"epsilon" validate:"gte=0,lte=1"`
	Seed    int64   `mapstructure:"seed" yaml:"seed"`
}

// RefineSettings holds the stopping thresholds and pass limits.
type RefineSettings struct {
	StoppingRule      string  `mapstructure:"stopping_rule" yaml:"stopping_rule" validate:"required"`
	MaxFruitlessMoves int     `mapstructure:"max_fruitless_moves" yaml:"max_fruitless_moves"`
	Alpha             float64 `mapstructure:"alpha" yaml:"alpha"`
	Beta              float64 `mapstructure:"beta" yaml:"beta" validate:"gte=0"`
	// BetaFromSize replaces Beta with ln(number of vertices)
	BetaFromSize bool `mapstructure:"beta_from_size" yaml:"beta_from_size"`
	MaxPasses    int  `mapstructure:"max_passes" yaml:"max_passes" validate:"gte=0"`
	// Patience is how many passes without significant improvement end a refinement
	Patience int `mapstructure:"patience" yaml:"patience" validate:"gte=1"`
	// MinImprovement is the relative cut reduction a pass needs to count as progress
	MinImprovement float64 `mapstructure:"min_improvement" yaml:"min_improvement" validate:"gte=0,lt=1"`
	// Workers bounds concurrent refinements; 0 means one per job
	Workers int `mapstructure:"workers" yaml:"workers" validate:"gte=0"`
	// Restarts is how many independently seeded partitions a run refines
	Restarts int `mapstructure:"restarts" yaml:"restarts" validate:"gte=1"`
}

// TuneSettings configures the mayfly search over the adaptive thresholds.
type TuneSettings struct {
	Iterations  int     `mapstructure:"iterations" yaml:"iterations" validate:"gte=1"`
	Population  int     `mapstructure:"population" yaml:"population" validate:"gte=20"`
	Seed        int64   `mapstructure:"seed" yaml:"seed"`
	AlphaMax    float64 `mapstructure:"alpha_max" yaml:"alpha_max" validate:"gt=0"`
	BetaMax     float64 `mapstructure:"beta_max" yaml:"beta_max" validate:"gt=0"`
	MovePenalty float64 `mapstructure:"move_penalty" yaml:"move_penalty" validate:"gte=0"`
	Instances   int     `mapstructure:"instances" yaml:"instances" validate:"gte=1"`
}

// flagKeys maps command-line flag names to setting keys.
var flagKeys = map[string]string{
	"data-dir":            "data_dir",
	"k":                   "partition.k",
	"epsilon":             "partition.epsilon",
	"seed":                "partition.seed",
	"stopping-rule":       "refine.stopping_rule",
	"max-fruitless-moves": "refine.max_fruitless_moves",
	"alpha":               "refine.alpha",
	"beta":                "refine.beta",
	"beta-from-size":      "refine.beta_from_size",
	"max-passes":          "refine.max_passes",
	"patience":            "refine.patience",
	"min-improvement":     "refine.min_improvement",
	"workers":             "refine.workers",
	"restarts":            "refine.restarts",
	"iterations":          "tune.iterations",
	"population":          "tune.population",
	"tune-seed":           "tune.seed",
	"alpha-max":           "tune.alpha_max",
	"beta-max":            "tune.beta_max",
	"move-penalty":        "tune.move_penalty",
	"instances":           "tune.instances",
}

var validate = validator.New()

// Default returns the built-in settings.
func Default() *Settings {
	v := viper.New()
	setDefaults(v)

	s := &Settings{}
	// defaults always decode
	_ = v.Unmarshal(s)
	return s
}

// Load resolves settings. Precedence (highest to lowest):
//  1. flags that were set explicitly
//  2. FMREFINE_* environment variables
//  3. the YAML file at path, if path is not empty
//  4. built-in defaults
//
// flags may be nil. Flags not listed in flagKeys are ignored.
func Load(path string, flags *pflag.FlagSet) (*Settings, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config from %s: %w", path, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("binding flag %s: %w", name, err)
				}
			}
		}
	}

	s := &Settings{}
	if err := v.Unmarshal(s); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checks field constraints and that the stopping rule resolves.
func (s *Settings) Validate() error {
	if err := validate.Struct(s); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return &refine.ConfigError{Field: fe.Namespace(), Reason: "failed " + fe.Tag() + " " + fe.Param()}
		}
		return fmt.Errorf("validating config: %w", err)
	}
	if _, err := refine.ParseStoppingRule(s.Refine.StoppingRule); err != nil {
		return &refine.ConfigError{Field: "Settings.Refine.StoppingRule", Reason: err.Error()}
	}
	return nil
}

// RefineConfig resolves the refinement thresholds for a hypergraph with
// numVertices vertices.
func (s *Settings) RefineConfig(numVertices int) (refine.Config, error) {
	rule, err := refine.ParseStoppingRule(s.Refine.StoppingRule)
	if err != nil {
		return refine.Config{}, err
	}
	cfg := refine.Config{
		StoppingRule:      rule,
		MaxFruitlessMoves: s.Refine.MaxFruitlessMoves,
		Alpha:             s.Refine.Alpha,
		Beta:              s.Refine.Beta,
	}
	if s.Refine.BetaFromSize {
		cfg.Beta = refine.BetaForSize(numVertices)
	}
	if err := cfg.Validate(); err != nil {
		return refine.Config{}, err
	}
	return cfg, nil
}

// Convergence returns when a refinement stops starting new passes.
func (s *Settings) Convergence() refine.ConvergenceConfig {
	return refine.ConvergenceConfig{
		Patience:  s.Refine.Patience,
		Threshold: s.Refine.MinImprovement,
	}
}

// Encode writes the settings as YAML.
func (s *Settings) Encode(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(s); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return enc.Close()
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	d := refine.DefaultConfig()
	c := refine.DefaultConvergenceConfig()

	v.SetDefault("data_dir", "./data")

	v.SetDefault("partition.k", 2)
	v.SetDefault("partition.epsilon", 0.03)
	v.SetDefault("partition.seed", 1)

	v.SetDefault("refine.stopping_rule", d.StoppingRule.String())
	v.SetDefault("refine.max_fruitless_moves", d.MaxFruitlessMoves)
	v.SetDefault("refine.alpha", d.Alpha)
	v.SetDefault("refine.beta", d.Beta)
	v.SetDefault("refine.beta_from_size", false)
	v.SetDefault("refine.max_passes", 0)
	v.SetDefault("refine.patience", c.Patience)
	v.SetDefault("refine.min_improvement", c.Threshold)
	v.SetDefault("refine.workers", 0)
	v.SetDefault("refine.restarts", 1)

	v.SetDefault("tune.iterations", 30)
	v.SetDefault("tune.population", 20)
	v.SetDefault("tune.seed", 1)
	v.SetDefault("tune.alpha_max", 16.0)
	v.SetDefault("tune.beta_max", 20.0)
	v.SetDefault("tune.move_penalty", 0.01)
	v.SetDefault("tune.instances", 4)
}

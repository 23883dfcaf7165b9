package config

import (
	"bytes"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/cwbudde/fmrefine/internal/refine"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fmrefine.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestDefault(t *testing.T) {
	s := Default()

	if s.DataDir != "./data" {
		t.Errorf("expected data dir ./data, got %q", s.DataDir)
	}
	if s.Partition.K != 2 || s.Partition.Epsilon != 0.03 {
		t.Errorf("unexpected partition defaults %+v", s.Partition)
	}
	if s.Refine.StoppingRule != "simple" || s.Refine.MaxFruitlessMoves != 350 {
		t.Errorf("unexpected refine defaults %+v", s.Refine)
	}
	if s.Refine.Alpha != 1 || s.Refine.Beta != 0 || s.Refine.Restarts != 1 {
		t.Errorf("unexpected refine defaults %+v", s.Refine)
	}
	if s.Tune.Population != 20 || s.Tune.Iterations != 30 {
		t.Errorf("unexpected tune defaults %+v", s.Tune)
	}
	if err := s.Validate(); err != nil {
		t.Errorf("defaults should validate, got %v", err)
	}
}

func TestLoad_NoFile(t *testing.T) {
	s, err := Load("", nil)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if s.Refine.MaxFruitlessMoves != 350 {
		t.Errorf("expected default max fruitless moves, got %d", s.Refine.MaxFruitlessMoves)
	}
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
data_dir: /tmp/fm
partition:
  k: 4
refine:
  stopping_rule: adaptive_opt
  alpha: 2.5
  beta: 3
  max_passes: 5
`)

	s, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if s.DataDir != "/tmp/fm" || s.Partition.K != 4 {
		t.Errorf("file values not applied: %+v", s)
	}
	if s.Refine.StoppingRule != "adaptive_opt" || s.Refine.Alpha != 2.5 || s.Refine.Beta != 3 || s.Refine.MaxPasses != 5 {
		t.Errorf("refine values not applied: %+v", s.Refine)
	}
	// untouched keys keep their defaults
	if s.Partition.Epsilon != 0.03 || s.Refine.MaxFruitlessMoves != 350 {
		t.Errorf("defaults lost: %+v", s)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), nil); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "refine:\n  alpha: 2\n")
	t.Setenv("FMREFINE_REFINE_ALPHA", "7.5")
	t.Setenv("FMREFINE_PARTITION_K", "8")

	s, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if s.Refine.Alpha != 7.5 {
		t.Errorf("expected env alpha 7.5, got %v", s.Refine.Alpha)
	}
	if s.Partition.K != 8 {
		t.Errorf("expected env k 8, got %d", s.Partition.K)
	}
}

func TestLoad_FlagsOverrideEnv(t *testing.T) {
	t.Setenv("FMREFINE_REFINE_MAX_FRUITLESS_MOVES", "100")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Int("max-fruitless-moves", 350, "")
	flags.String("stopping-rule", "simple", "")
	flags.Float64("beta", 0, "")
	if err := flags.Parse([]string{"--max-fruitless-moves=25", "--stopping-rule=adaptive"}); err != nil {
		t.Fatalf("flag parse failed: %v", err)
	}

	s, err := Load("", flags)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if s.Refine.MaxFruitlessMoves != 25 {
		t.Errorf("expected flag value 25, got %d", s.Refine.MaxFruitlessMoves)
	}
	if s.Refine.StoppingRule != "adaptive" {
		t.Errorf("expected stopping rule from flag, got %q", s.Refine.StoppingRule)
	}
	// unchanged flag does not shadow the default
	if s.Refine.Beta != 0 {
		t.Errorf("expected default beta, got %v", s.Refine.Beta)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		field   string
	}{
		{"k too small", "partition:\n  k: 1\n", "Settings.Partition.K"},
		{"negative beta", "refine:\n  beta: -1\n", "Settings.Refine.Beta"},
		{"small population", "tune:\n  population: 5\n", "Settings.Tune.Population"},
		{"unknown rule", "refine:\n  stopping_rule: greedy\n", "Settings.Refine.StoppingRule"},
		{"epsilon too large", "partition:\n  epsilon: 1.5\n", "Settings.Partition.Epsilon"},
		{"zero patience", "refine:\n  patience: 0\n", "Settings.Refine.Patience"},
		{"min improvement of one", "refine:\n  min_improvement: 1\n", "Settings.Refine.MinImprovement"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content), nil)
			var cErr *refine.ConfigError
			if !errors.As(err, &cErr) {
				t.Fatalf("expected ConfigError, got %v", err)
			}
			if cErr.Field != tt.field {
				t.Errorf("expected field %s, got %s", tt.field, cErr.Field)
			}
		})
	}
}

func TestUnknownRuleWrapsSentinel(t *testing.T) {
	s := Default()
	s.Refine.StoppingRule = "greedy"

	_, err := s.RefineConfig(10)
	if !errors.Is(err, refine.ErrUnknownStoppingRule) {
		t.Errorf("expected ErrUnknownStoppingRule, got %v", err)
	}
}

func TestRefineConfig(t *testing.T) {
	s := Default()
	s.Refine.StoppingRule = "Adaptive_Opt"
	s.Refine.Alpha = 3
	s.Refine.Beta = 1.5

	cfg, err := s.RefineConfig(100)
	if err != nil {
		t.Fatalf("RefineConfig failed: %v", err)
	}
	if cfg.StoppingRule != refine.RuleAdaptiveOpt || cfg.Alpha != 3 || cfg.Beta != 1.5 {
		t.Errorf("unexpected config %+v", cfg)
	}

	s.Refine.BetaFromSize = true
	cfg, err = s.RefineConfig(100)
	if err != nil {
		t.Fatalf("RefineConfig failed: %v", err)
	}
	if math.Abs(cfg.Beta-math.Log(100)) > 1e-12 {
		t.Errorf("expected beta ln(100), got %v", cfg.Beta)
	}
}

func TestConvergence(t *testing.T) {
	s := Default()
	if got := s.Convergence(); got != refine.DefaultConvergenceConfig() {
		t.Errorf("expected default convergence, got %+v", got)
	}

	path := writeConfig(t, "refine:\n  patience: 3\n  min_improvement: 0.02\n")
	s, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	c := s.Convergence()
	if c.Patience != 3 || c.Threshold != 0.02 {
		t.Errorf("expected patience 3 and threshold 0.02, got %+v", c)
	}
}

func TestEncode(t *testing.T) {
	s := Default()
	s.Refine.StoppingRule = "adaptive_opt"

	var buf bytes.Buffer
	if err := s.Encode(&buf); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if !strings.Contains(buf.String(), "stopping_rule: adaptive_opt") {
		t.Errorf("encoded config missing stopping rule:\n%s", buf.String())
	}

	// the encoded form loads back to the same settings
	path := writeConfig(t, buf.String())
	loaded, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load of encoded config failed: %v", err)
	}
	if *loaded != *s {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", loaded, s)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(buf.Bytes(), &raw); err != nil {
		t.Fatalf("encoded config is not YAML: %v", err)
	}
	if _, ok := raw["tune"]; !ok {
		t.Error("encoded config missing tune section")
	}
}

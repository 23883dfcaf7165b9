package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/cwbudde/fmrefine/internal/refine"
	"github.com/cwbudde/fmrefine/internal/store"
)

var replayAdaptive bool

var traceCmd = &cobra.Command{
	Use:   "trace <run-id>",
	Short: "Summarize the move trace of a run",
	Long: `Prints per-pass gain statistics of a recorded trace as YAML.
With --replay, also reports where the adaptive rule would have stopped each
pass. The replay uses the alpha and beta stored in the run record unless
--alpha or --beta are given.`,
	Args: cobra.ExactArgs(1),
	RunE: runTrace,
}

func init() {
	d := refine.DefaultConfig()
	traceCmd.Flags().BoolVar(&replayAdaptive, "replay", false, "Replay the adaptive rule over the trace")
	traceCmd.Flags().Float64("alpha", d.Alpha, "Variance weight for --replay (default: the run's)")
	traceCmd.Flags().Float64("beta", d.Beta, "Additive margin for --replay (default: the run's)")
	rootCmd.AddCommand(traceCmd)
}

// traceReport is the YAML document printed by the trace command.
type traceReport struct {
	RunID   string             `yaml:"run_id"`
	Summary store.TraceSummary `yaml:"summary"`
	Replay  *replayReport      `yaml:"replay,omitempty"`
}

type replayReport struct {
	Alpha float64 `yaml:"alpha"`
	Beta  float64 `yaml:"beta"`
	// StopIndex per pass; 0 means the rule never fired
	StopIndex []int `yaml:"stop_index"`
}

func runTrace(cmd *cobra.Command, args []string) error {
	settings, err := loadSettings(cmd)
	if err != nil {
		return err
	}

	report, err := buildTraceReport(settings.DataDir, args[0], replayAdaptive, cmd.Flags())
	if err != nil {
		return err
	}

	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	return enc.Close()
}

func buildTraceReport(dataDir, runID string, replay bool, flags *pflag.FlagSet) (*traceReport, error) {
	reader, err := store.NewTraceReader(dataDir, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to open trace: %w", err)
	}
	defer reader.Close()

	entries, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read trace: %w", err)
	}

	report := &traceReport{
		RunID:   runID,
		Summary: store.Summarize(entries),
	}
	if !replay {
		return report, nil
	}

	runStore, err := store.NewFSStore(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open run store: %w", err)
	}
	record, err := runStore.LoadRun(runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load run record: %w", err)
	}

	cfg, err := replayConfig(record.Config, flags)
	if err != nil {
		return nil, err
	}
	report.Replay = &replayReport{
		Alpha:     cfg.Alpha,
		Beta:      cfg.Beta,
		StopIndex: store.ReplayAdaptive(entries, cfg),
	}
	return report, nil
}

// replayConfig returns the adaptive thresholds a run was recorded with,
// overridden by --alpha and --beta when they were set.
func replayConfig(rc store.RunConfig, flags *pflag.FlagSet) (refine.Config, error) {
	cfg := refine.Config{
		StoppingRule: refine.RuleAdaptiveOpt,
		Alpha:        rc.Alpha,
		Beta:         rc.Beta,
	}
	if flags != nil {
		if flags.Changed("alpha") {
			alpha, err := flags.GetFloat64("alpha")
			if err != nil {
				return refine.Config{}, err
			}
			cfg.Alpha = alpha
		}
		if flags.Changed("beta") {
			beta, err := flags.GetFloat64("beta")
			if err != nil {
				return refine.Config{}, err
			}
			cfg.Beta = beta
		}
	}
	if err := cfg.Validate(); err != nil {
		return refine.Config{}, err
	}
	return cfg, nil
}

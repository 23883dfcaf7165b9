package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/cwbudde/fmrefine/internal/config"
)

var (
	logLevel   string
	configPath string
	logger     *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "fmrefine",
	Short: "FM local-search refinement with adaptive stopping",
	Long: `fmrefine refines k-way hypergraph partitions with FM local search.
Passes stop either after a fixed number of fruitless moves or when a
random-walk model of the move gains says further moves will not pay off.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Setup logger
		var level slog.Level
		switch logLevel {
		case "debug":
			level = slog.LevelDebug
		case "info":
			level = slog.LevelInfo
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		default:
			level = slog.LevelInfo
		}

		opts := &slog.HandlerOptions{Level: level}
		handler := slog.NewJSONHandler(os.Stderr, opts)
		logger = slog.New(handler)
		slog.SetDefault(logger)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file (FMREFINE_* environment variables override it)")
	rootCmd.PersistentFlags().String("data-dir", config.Default().DataDir, "Base directory for run storage")
}

// loadSettings resolves settings for cmd from --config, the environment and
// the flags the user set on cmd.
func loadSettings(cmd *cobra.Command) (*config.Settings, error) {
	settings, err := config.Load(configPath, cmd.Flags())
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return settings, nil
}

// addRefineFlags registers the flags shared by run and tune.
func addRefineFlags(cmd *cobra.Command) {
	d := config.Default()
	f := cmd.Flags()
	f.Int("k", d.Partition.K, "Number of blocks")
	f.Float64("epsilon", d.Partition.Epsilon, "Allowed imbalance")
	f.Int64("seed", d.Partition.Seed, "Seed of the random initial partition")
	f.String("stopping-rule", d.Refine.StoppingRule, "Stopping rule: simple, adaptive_opt")
	f.Int("max-fruitless-moves", d.Refine.MaxFruitlessMoves, "Moves allowed past the last improvement (simple rule)")
	f.Float64("alpha", d.Refine.Alpha, "Variance weight (adaptive rule)")
	f.Float64("beta", d.Refine.Beta, "Additive margin (adaptive rule)")
	f.Bool("beta-from-size", d.Refine.BetaFromSize, "Use ln(number of vertices) as beta")
	f.Int("max-passes", d.Refine.MaxPasses, "Maximum passes per refinement (0 = until no improvement)")
	f.Int("patience", d.Refine.Patience, "Passes without significant improvement before refinement stops")
	f.Float64("min-improvement", d.Refine.MinImprovement, "Relative cut reduction a pass needs to count as progress")
	f.Int("workers", d.Refine.Workers, "Concurrent refinements (0 = one per job)")
}

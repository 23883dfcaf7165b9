package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/cwbudde/fmrefine/internal/config"
	"github.com/cwbudde/fmrefine/internal/hypergraph"
	"github.com/cwbudde/fmrefine/internal/opt"
	"github.com/cwbudde/fmrefine/internal/partition"
)

var writeConfigPath string

var tuneCmd = &cobra.Command{
	Use:   "tune",
	Short: "Search alpha and beta of the adaptive stopping rule",
	Long: `Uses mayfly optimization to find the adaptive-rule thresholds that
minimize the mean relative final cut plus a penalty per applied move over a
set of random initial partitions. The configured rule is evaluated as the
baseline.`,
	RunE: runTune,
}

func init() {
	d := config.Default()
	tuneCmd.Flags().StringVar(&hgrPath, "hgr", "", "hMetis hypergraph file (required)")
	tuneCmd.Flags().StringVar(&writeConfigPath, "write-config", "", "Write the effective config with the tuned thresholds to this file")
	tuneCmd.Flags().Int("iterations", d.Tune.Iterations, "Mayfly iterations")
	tuneCmd.Flags().Int("population", d.Tune.Population, "Mayfly population size (at least 20)")
	tuneCmd.Flags().Int64("tune-seed", d.Tune.Seed, "Mayfly random seed")
	tuneCmd.Flags().Float64("alpha-max", d.Tune.AlphaMax, "Upper bound of the alpha search")
	tuneCmd.Flags().Float64("beta-max", d.Tune.BetaMax, "Upper bound of the beta search")
	tuneCmd.Flags().Float64("move-penalty", d.Tune.MovePenalty, "Cost per applied move per vertex")
	tuneCmd.Flags().Int("instances", d.Tune.Instances, "Number of random initial partitions")
	addRefineFlags(tuneCmd)

	tuneCmd.MarkFlagRequired("hgr")
	rootCmd.AddCommand(tuneCmd)
}

func runTune(cmd *cobra.Command, args []string) error {
	settings, err := loadSettings(cmd)
	if err != nil {
		return err
	}

	h, err := hypergraph.LoadHMetis(hgrPath)
	if err != nil {
		return err
	}

	base, err := settings.RefineConfig(h.NumVertices())
	if err != nil {
		return err
	}

	k := settings.Partition.K
	limit := partition.MaxBlockWeight(h, k, settings.Partition.Epsilon)
	instances := make([]opt.Instance, settings.Tune.Instances)
	for i := range instances {
		seed := settings.Partition.Seed + int64(i)
		p, err := partition.NewRandom(h, k, seed)
		if err != nil {
			return fmt.Errorf("failed to build initial partition: %w", err)
		}
		instances[i] = opt.Instance{
			Name:           fmt.Sprintf("seed-%d", seed),
			Seed:           p,
			MaxBlockWeight: limit,
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	optimizer := opt.NewMayfly(settings.Tune.Iterations, settings.Tune.Population, settings.Tune.Seed)
	result, err := opt.TuneAdaptive(ctx, instances, base, optimizer, opt.TuneOptions{
		AlphaMax:    settings.Tune.AlphaMax,
		BetaMax:     settings.Tune.BetaMax,
		MovePenalty: settings.Tune.MovePenalty,
		MaxPasses:   settings.Refine.MaxPasses,
		Convergence: settings.Convergence(),
		Workers:     settings.Refine.Workers,
	})
	if err != nil {
		return fmt.Errorf("tuning failed: %w", err)
	}

	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	if err := enc.Encode(result); err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	if err := enc.Close(); err != nil {
		return err
	}

	if writeConfigPath != "" {
		tuned := *settings
		tuned.Refine.StoppingRule = result.Config.StoppingRule.String()
		tuned.Refine.Alpha = result.Alpha
		tuned.Refine.Beta = result.Beta
		tuned.Refine.BetaFromSize = false
		if err := writeSettings(writeConfigPath, &tuned); err != nil {
			return err
		}
		slog.Info("Wrote tuned config", "path", writeConfigPath)
	}

	return nil
}

func writeSettings(path string, settings *config.Settings) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	if err := settings.Encode(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close config file: %w", err)
	}
	return nil
}

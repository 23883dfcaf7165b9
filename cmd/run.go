package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/cwbudde/fmrefine/internal/config"
	"github.com/cwbudde/fmrefine/internal/hypergraph"
	"github.com/cwbudde/fmrefine/internal/metrics"
	"github.com/cwbudde/fmrefine/internal/partition"
	"github.com/cwbudde/fmrefine/internal/refine"
	"github.com/cwbudde/fmrefine/internal/store"
)

var (
	hgrPath     string
	metricsPath string
	noTrace     bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Refine random partitions of a hypergraph",
	Long: `Loads an hMetis hypergraph, builds one random balanced partition per
restart and refines all of them concurrently. Every restart is saved as its
own run with its record and per-move trace.`,
	RunE: runRefinement,
}

func init() {
	runCmd.Flags().StringVar(&hgrPath, "hgr", "", "hMetis hypergraph file (required)")
	runCmd.Flags().StringVar(&metricsPath, "metrics-file", "", "Write pass metrics in Prometheus text format to this file")
	runCmd.Flags().BoolVar(&noTrace, "no-trace", false, "Do not record the per-move trace")
	runCmd.Flags().Int("restarts", config.Default().Refine.Restarts, "Number of independently seeded partitions")
	addRefineFlags(runCmd)

	runCmd.MarkFlagRequired("hgr")
	rootCmd.AddCommand(runCmd)
}

// restart is one seeded partition and everything recorded for it.
type restart struct {
	runID     string
	seed      int64
	partition *partition.Partition
	trace     *store.TraceWriter
	observer  *store.TraceObserver
}

func runRefinement(cmd *cobra.Command, args []string) error {
	settings, err := loadSettings(cmd)
	if err != nil {
		return err
	}

	h, err := hypergraph.LoadHMetis(hgrPath)
	if err != nil {
		return err
	}

	cfg, err := settings.RefineConfig(h.NumVertices())
	if err != nil {
		return err
	}

	runStore, err := store.NewFSStore(settings.DataDir)
	if err != nil {
		return fmt.Errorf("failed to create run store: %w", err)
	}

	k := settings.Partition.K
	limit := partition.MaxBlockWeight(h, k, settings.Partition.Epsilon)

	var registry *prometheus.Registry
	var recorder *metrics.Recorder
	if metricsPath != "" {
		registry = prometheus.NewRegistry()
		recorder = metrics.NewRecorder(registry)
	}

	restarts := make([]*restart, settings.Refine.Restarts)
	jobs := make([]refine.Job, len(restarts))
	for i := range restarts {
		r := &restart{
			runID: uuid.NewString(),
			seed:  settings.Partition.Seed + int64(i),
		}
		r.partition, err = partition.NewRandom(h, k, r.seed)
		if err != nil {
			closeTraces(restarts)
			return fmt.Errorf("failed to build initial partition: %w", err)
		}

		var observers refine.MultiObserver
		if recorder != nil {
			observers = append(observers, recorder)
		}
		if !noTrace {
			r.trace, err = store.NewTraceWriter(settings.DataDir, r.runID, false)
			if err != nil {
				closeTraces(restarts)
				return err
			}
			r.observer = store.NewTraceObserver(r.trace)
			observers = append(observers, r.observer)
		}
		restarts[i] = r

		p := r.partition
		jobs[i] = refine.Job{
			Partition: p,
			NewSource: func() refine.MoveSource { return partition.NewFMSource(p, limit) },
			MaxPasses: settings.Refine.MaxPasses,
		}
		if len(observers) > 0 {
			jobs[i].Observer = observers
		}
	}

	slog.Info("Starting refinement",
		"hypergraph", hgrPath,
		"vertices", h.NumVertices(),
		"hyperedges", h.NumEdges(),
		"k", k,
		"max_block_weight", limit,
		"rule", cfg.StoppingRule.String(),
		"restarts", len(restarts),
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	start := time.Now()
	loopOpts := []refine.Option{refine.WithConvergence(settings.Convergence())}
	if logger != nil {
		loopOpts = append(loopOpts, refine.WithLogger(logger.With("hypergraph", hgrPath)))
	}
	results, runErr := refine.RunParallel(ctx, cfg, jobs, settings.Refine.Workers, loopOpts...)
	elapsed := time.Since(start)

	if err := closeTraces(restarts); err != nil {
		slog.Warn("Failed to close trace", "error", err)
	}
	if runErr != nil {
		if errors.Is(runErr, context.Canceled) {
			return fmt.Errorf("refinement interrupted: %w", runErr)
		}
		return fmt.Errorf("refinement failed: %w", runErr)
	}

	runConfig := runConfigFrom(settings, cfg)
	best := 0
	for i, r := range restarts {
		rc := runConfig
		rc.Seed = r.seed
		record := store.NewRunRecord(r.runID, rc, results[i], r.partition.Assignment())
		if err := record.Validate(); err != nil {
			return fmt.Errorf("run %s: %w", r.runID, err)
		}
		if err := runStore.SaveRun(r.runID, record); err != nil {
			return fmt.Errorf("failed to save run: %w", err)
		}
		if results[i].FinalCut < results[best].FinalCut {
			best = i
		}
	}

	if recorder != nil {
		if err := metrics.WriteFile(metricsPath, registry); err != nil {
			return err
		}
		slog.Info("Wrote metrics", "path", metricsPath)
	}

	slog.Info("Refinement finished",
		"elapsed", elapsed,
		"best_run_id", restarts[best].runID,
		"best_cut", results[best].FinalCut,
	)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RUN ID\tSEED\tINITIAL CUT\tFINAL CUT\tPASSES\tMOVES\tIMBALANCE\t")
	for i, r := range restarts {
		marker := ""
		if i == best {
			marker = "*"
		}
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%d\t%.4f\t%s\n",
			r.runID,
			r.seed,
			results[i].InitialCut,
			results[i].FinalCut,
			len(results[i].Passes),
			results[i].TotalMoves(),
			r.partition.Imbalance(),
			marker,
		)
	}
	w.Flush()

	return nil
}

// runConfigFrom captures the settings a run used for its record.
func runConfigFrom(settings *config.Settings, cfg refine.Config) store.RunConfig {
	return store.RunConfig{
		HypergraphPath:    hgrPath,
		K:                 settings.Partition.K,
		Epsilon:           settings.Partition.Epsilon,
		Seed:              settings.Partition.Seed,
		StoppingRule:      cfg.StoppingRule.String(),
		MaxFruitlessMoves: cfg.MaxFruitlessMoves,
		Alpha:             cfg.Alpha,
		Beta:              cfg.Beta,
		MaxPasses:         settings.Refine.MaxPasses,
		Patience:          settings.Refine.Patience,
		MinImprovement:    settings.Refine.MinImprovement,
	}
}

func closeTraces(restarts []*restart) error {
	var errs []error
	for _, r := range restarts {
		if r == nil || r.trace == nil {
			continue
		}
		if err := r.trace.Close(); err != nil {
			errs = append(errs, err)
		}
		if r.observer != nil && r.observer.Err() != nil {
			errs = append(errs, r.observer.Err())
		}
		r.trace = nil
	}
	return errors.Join(errs...)
}

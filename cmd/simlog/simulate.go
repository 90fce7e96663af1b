package main

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/logflow/simlog/pkg/checkpoint"
	"github.com/logflow/simlog/pkg/report"
	"github.com/logflow/simlog/pkg/simulation"
	"github.com/logflow/simlog/pkg/storage"
	"github.com/logflow/simlog/pkg/tui"
	"github.com/logflow/simlog/pkg/watch"
)

var (
	simReplicates int
	simSeed       uint64
	simResume     bool
	simParquet    bool
	simWatch      bool
	simDebounce   time.Duration
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run replicated simulations for the configured inputs",
	Long: `For every input, annotate its process tree once and generate one log per
replicate from a fresh copy of the budgets. Each replicate writes its budget
tables before and after generation and the simulated log to the output store.

With --watch, simulate again whenever an input file changes.

Examples:
  simlog simulate --config simlog.yaml
  simlog simulate --tree hospital.tree --freq hospital.freq.json --replicates 10
  simlog simulate --input hospital --resume
  simlog simulate --watch`,
	RunE: runSimulate,
}

func init() {
	addSourceFlags(simulateCmd)
	simulateCmd.Flags().IntVarP(&simReplicates, "replicates", "n", 0, "Number of replicates (default from config)")
	simulateCmd.Flags().Uint64Var(&simSeed, "seed", 0, "Base seed; replicate r uses seed+r (default from config)")
	simulateCmd.Flags().BoolVar(&simResume, "resume", false, "Skip replicates with a complete checkpoint")
	simulateCmd.Flags().BoolVar(&simParquet, "parquet", false, "Also export Parquet")
	simulateCmd.Flags().BoolVarP(&simWatch, "watch", "w", false, "Re-run when input files change")
	simulateCmd.Flags().DurationVar(&simDebounce, "debounce", watch.DefaultDebounce, "Quiet period before a change triggers a run")
}

func runSimulate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	if cmd.Flags().Changed("replicates") {
		cfg.Simulation.Replicates = simReplicates
	}
	if cmd.Flags().Changed("seed") {
		cfg.Simulation.Seed = simSeed
	}
	if cmd.Flags().Changed("resume") {
		cfg.Simulation.Resume = simResume
	}
	if cmd.Flags().Changed("parquet") {
		cfg.Simulation.Parquet = simParquet
	}

	sources, err := selectedSources(cfg)
	if err != nil {
		return err
	}
	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}

	printer.Header(version)
	if err := simulateOnce(ctx, store, sources, nil); err != nil {
		return err
	}
	if !simWatch {
		return nil
	}
	return watchAndSimulate(ctx, store, sources)
}

// simulateOnce runs every source. Checkpoints of the inputs in reset are
// cleared first.
func simulateOnce(ctx context.Context, store storage.Store, sources []simulation.Source, reset []string) error {
	start := time.Now()

	inputs := make([]*simulation.Input, 0, len(sources))
	for _, src := range sources {
		in, err := simulation.LoadInput(ctx, src)
		if err != nil {
			return err
		}
		inputs = append(inputs, in)
	}

	opts := simulationOptions(cfg)
	driver, err := simulation.NewDriver(store, opts)
	if err != nil {
		return err
	}
	driver.WithLogger(logger)

	checkpoints, closeCheckpoints, err := openCheckpoints(ctx, cfg, store, driver.RunID())
	if err != nil {
		return err
	}
	defer closeCheckpoints()
	if checkpoints != nil {
		driver.WithCheckpoints(checkpoints)
		if err := resetCheckpoints(ctx, checkpoints, reset); err != nil {
			return err
		}
	}

	printer.Section("SIMULATING")
	printer.KeyValue("Run", driver.RunID())
	printer.KeyValue("Store", store.URI(""))
	printer.Rule()

	bar := printer.Progress(int64(len(inputs)*opts.Replicates), "  replicates")
	driver.OnReplicate(func(r simulation.ReplicateResult) {
		bar.Add(1)
		printer.Replicate(tui.ReplicateLine{
			Input:     r.Input,
			Replicate: r.Replicate,
			Traces:    r.Traces,
			Events:    r.Events,
			Dropped:   r.Dropped,
			Duration:  r.Duration,
			Skipped:   r.Skipped,
		})
	})

	run, runErr := driver.Run(ctx, inputs)
	bar.Finish()

	if cfg.Output.Report != "" && len(run.Replicates) > 0 {
		if err := writeTable(ctx, store, cfg.Output.Report, run); err != nil {
			if runErr == nil {
				runErr = err
			}
		}
	}
	if runErr != nil {
		return runErr
	}

	traces, events := run.Totals()
	logger.WithFields(logrus.Fields{
		"run_id":     run.RunID,
		"replicates": len(run.Replicates),
		"traces":     traces,
		"events":     events,
	}).Info("Simulation complete")

	printer.Rule()
	printer.KeyValue("Traces", tui.FormatNumber(int64(traces)))
	printer.KeyValue("Events", tui.FormatNumber(int64(events)))
	printer.Done("SIMULATION COMPLETE", time.Since(start))
	return nil
}

func resetCheckpoints(ctx context.Context, m *checkpoint.Manager, inputs []string) error {
	for _, name := range inputs {
		n, err := m.Reset(ctx, name)
		if err != nil {
			return err
		}
		logger.WithFields(logrus.Fields{"input": name, "checkpoints": n}).Debug("Cleared checkpoints")
	}
	return nil
}

// writeTable stores t at key as CSV or XLSX, chosen by extension.
func writeTable(ctx context.Context, store storage.Store, key string, t report.Tabular) error {
	w, err := store.Writer(ctx, key)
	if err != nil {
		return err
	}
	opts := report.Options{Delimiter: cfg.Output.Delimiter}
	if err := report.Write(w, report.FormatFor(key), t, opts); err != nil {
		w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	logger.WithField("uri", store.URI(key)).Info("Wrote table")
	return nil
}

// watchAndSimulate re-runs the inputs whose files change until ctx ends.
func watchAndSimulate(ctx context.Context, store storage.Store, sources []simulation.Source) error {
	w, err := watch.NewWatcher(simDebounce, logger)
	if err != nil {
		return err
	}

	owners := make(map[string][]simulation.Source)
	for _, src := range sources {
		if err := w.Watch(src.Paths()...); err != nil {
			w.Close()
			return err
		}
		for _, p := range src.Paths() {
			abs := absPath(p)
			owners[abs] = append(owners[abs], src)
		}
	}

	w.OnChange = func(ctx context.Context, path string) error {
		changed := owners[path]
		if len(changed) == 0 {
			return nil
		}
		names := make([]string, len(changed))
		for i, s := range changed {
			names[i] = s.Name
		}
		return simulateOnce(ctx, store, changed, names)
	}
	w.OnError = func(path string, err error) {
		logger.WithError(err).WithField("path", path).Error("Re-run failed")
		printer.Failure(err.Error())
	}

	printer.Section("WATCHING")
	for _, p := range w.Paths() {
		printer.KeyValue("File", p)
	}
	return w.Run(ctx)
}

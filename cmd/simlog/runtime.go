package main

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/logflow/simlog/pkg/checkpoint"
	"github.com/logflow/simlog/pkg/config"
	serrors "github.com/logflow/simlog/pkg/errors"
	"github.com/logflow/simlog/pkg/frequency"
	"github.com/logflow/simlog/pkg/risk"
	"github.com/logflow/simlog/pkg/simulation"
	"github.com/logflow/simlog/pkg/storage"
	"github.com/logflow/simlog/pkg/synth"
	"github.com/logflow/simlog/pkg/traversal"
	"github.com/logflow/simlog/pkg/writer"
)

// Input selection flags shared by annotate, generate and simulate.
var (
	inputName   string
	treePath    string
	freqPath    string
	logPath     string
	silentFreqs map[string]int
)

func addSourceFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&inputName, "input", "", "Name of a configured input (or the name for --tree)")
	cmd.Flags().StringVar(&treePath, "tree", "", "Process tree file (.json or tree notation)")
	cmd.Flags().StringVar(&freqPath, "freq", "", "Leaf frequency file (.json, .yaml)")
	cmd.Flags().StringVar(&logPath, "log", "", "XES log to count visible leaf frequencies from")
	cmd.Flags().StringToIntVar(&silentFreqs, "silent", nil, "Silent leaf frequencies when counting from --log (tau_1=3,...)")
}

func logOptions(c *config.Config) frequency.LogOptions {
	return frequency.LogOptions{
		Lifecycles:   c.Risk.Lifecycles,
		AllLifecycle: c.Risk.AllLifecycle,
	}
}

// sourceFromConfig converts a configured input. Relative paths are
// resolved against the --config file.
func sourceFromConfig(c *config.Config, in config.InputConfig) simulation.Source {
	silent := make(frequency.Map, len(in.SilentFrequencies))
	for k, v := range in.SilentFrequencies {
		silent[k] = v
	}
	return simulation.Source{
		Name:        in.Name,
		Tree:        config.ResolvePath(configPath, in.Tree),
		Frequencies: config.ResolvePath(configPath, in.Frequencies),
		Log:         config.ResolvePath(configPath, in.Log),
		Silent:      silent,
		LogOptions:  logOptions(c),
	}
}

// selectedSources returns the inputs chosen by the source flags: --tree
// builds an ad-hoc input, --input picks a configured one, and otherwise
// every configured input is used.
func selectedSources(c *config.Config) ([]simulation.Source, error) {
	if treePath != "" {
		name := inputName
		if name == "" {
			name = strings.TrimSuffix(filepath.Base(treePath), filepath.Ext(treePath))
		}
		if freqPath == "" && logPath == "" {
			return nil, serrors.New(serrors.CodeInvalidConfig, "--tree needs --freq or --log")
		}
		return []simulation.Source{{
			Name:        name,
			Tree:        treePath,
			Frequencies: freqPath,
			Log:         logPath,
			Silent:      frequency.Map(silentFreqs),
			LogOptions:  logOptions(c),
		}}, nil
	}

	if inputName != "" {
		in, ok := c.Input(inputName)
		if !ok {
			return nil, serrors.New(serrors.CodeInvalidConfig, "unknown input").WithContext("input", inputName)
		}
		return []simulation.Source{sourceFromConfig(c, in)}, nil
	}

	if len(c.Inputs) == 0 {
		return nil, serrors.New(serrors.CodeInvalidConfig, "no inputs: pass --tree or configure inputs")
	}
	out := make([]simulation.Source, 0, len(c.Inputs))
	for _, in := range c.Inputs {
		out = append(out, sourceFromConfig(c, in))
	}
	return out, nil
}

// singleSource is selectedSources for commands working on one input.
func singleSource(c *config.Config) (simulation.Source, error) {
	srcs, err := selectedSources(c)
	if err != nil {
		return simulation.Source{}, err
	}
	if len(srcs) > 1 {
		return simulation.Source{}, serrors.New(serrors.CodeInvalidConfig, "several inputs configured: pick one with --input")
	}
	return srcs[0], nil
}

func openStore(ctx context.Context, c *config.Config) (storage.Store, error) {
	return storage.Open(ctx, storage.Config{
		Backend: c.Storage.Backend,
		Dir:     c.Output.Dir,
		S3: storage.S3Config{
			Bucket:       c.Storage.S3.Bucket,
			Prefix:       c.Storage.S3.Prefix,
			Region:       c.Storage.S3.Region,
			Endpoint:     c.Storage.S3.Endpoint,
			UsePathStyle: c.Storage.S3.UsePathStyle,
			Timeout:      time.Minute,
		},
	})
}

// openCheckpoints returns the configured checkpoint manager, or nil when
// checkpoints are disabled. The returned func releases the backend.
func openCheckpoints(ctx context.Context, c *config.Config, store storage.Store, runID string) (*checkpoint.Manager, func() error, error) {
	noop := func() error { return nil }

	switch c.Checkpoint.Backend {
	case "none":
		return nil, noop, nil

	case "redis":
		rc := checkpoint.DefaultRedisConfig(c.Checkpoint.Redis.Address)
		rc.Password = c.Checkpoint.Redis.Password
		rc.Database = c.Checkpoint.Redis.DB
		if c.Checkpoint.Redis.Prefix != "" {
			rc.Prefix = c.Checkpoint.Redis.Prefix
		}
		if c.Checkpoint.Redis.TTL > 0 {
			rc.TTL = c.Checkpoint.Redis.TTL
		}
		backend, err := checkpoint.NewRedisBackend(ctx, rc)
		if err != nil {
			return nil, noop, err
		}
		return checkpoint.NewManager(backend, runID), backend.Close, nil

	case "store":
		return checkpoint.NewManager(checkpoint.NewStoreBackend(store, "checkpoints"), runID), noop, nil

	default:
		backend, err := checkpoint.NewFileBackend(c.Checkpoint.Dir)
		if err != nil {
			return nil, noop, err
		}
		return checkpoint.NewManager(backend, runID), noop, nil
	}
}

func simulationOptions(c *config.Config) simulation.Options {
	opts := simulation.Options{
		Replicates: c.Simulation.Replicates,
		Seed:       c.Simulation.Seed,
		Resume:     c.Simulation.Resume,
		Strict:     c.Annotator.StrictCompositeBudgets,
		Generator: traversal.Config{
			MaxFailedAttempts: c.Generator.MaxFailedAttempts,
			ForceDrainAt:      c.Generator.ForceDrainAt,
		},
		Transform: synth.Options{
			Epoch: time.Unix(c.Transform.EpochSeconds, 0).UTC(),
			Step:  c.Transform.Step,
		},
		Formats: []string{"xes"},
		Writer:  writer.DefaultConfig(),
	}
	if c.Simulation.Parquet {
		opts.Formats = append(opts.Formats, "parquet")
	}
	if c.Simulation.Compression != "" {
		opts.Writer.Compression = writer.ParseCompression(c.Simulation.Compression)
	}
	return opts
}

func riskOptions(c *config.Config) (risk.Options, error) {
	bk, err := risk.ParseBKType(c.Risk.BKType)
	if err != nil {
		return risk.Options{}, err
	}
	m, err := risk.ParseMeasurement(c.Risk.Measurement)
	if err != nil {
		return risk.Options{}, err
	}
	return risk.Options{
		BKType:               bk,
		Measurement:          m,
		AllLifecycle:         c.Risk.AllLifecycle,
		Lifecycles:           c.Risk.Lifecycles,
		Sensitive:            c.Risk.SensitiveAttributes,
		MaxCandidatesPerCase: c.Risk.MaxCandidatesPerCase,
	}, nil
}

func absPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}

// Package simulation runs replicated simulations: annotate a tree once,
// then for every replicate generate traces from a private copy of the
// budget table, turn them into a log and export the artifacts.
package simulation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/logflow/simlog/internal/model"
	"github.com/logflow/simlog/pkg/budget"
	"github.com/logflow/simlog/pkg/checkpoint"
	serrors "github.com/logflow/simlog/pkg/errors"
	"github.com/logflow/simlog/pkg/inspect"
	"github.com/logflow/simlog/pkg/processtree"
	"github.com/logflow/simlog/pkg/storage"
	"github.com/logflow/simlog/pkg/synth"
	"github.com/logflow/simlog/pkg/telemetry"
	"github.com/logflow/simlog/pkg/traversal"
	"github.com/logflow/simlog/pkg/writer"
)

// Options configures a run.
type Options struct {
	Replicates int
	// Seed is the base seed; replicate r uses Seed+r.
	Seed   uint64
	Resume bool
	// Strict requires agreeing child budgets under SEQUENCE and PARALLEL.
	Strict    bool
	Generator traversal.Config
	Transform synth.Options
	// Formats lists the export formats. Empty means XES only.
	Formats []string
	Writer  writer.Config
}

// DefaultOptions returns the default run settings.
func DefaultOptions() Options {
	return Options{
		Replicates: 5,
		Seed:       42,
		Strict:     true,
		Generator:  traversal.DefaultConfig(),
		Transform:  synth.DefaultOptions(),
		Formats:    []string{"xes"},
		Writer:     writer.DefaultConfig(),
	}
}

// Prepared is an input with its annotated budget table. The table is
// never consumed; replicates work on clones.
type Prepared struct {
	*Input
	Table *budget.Table
}

// Driver runs simulations and writes artifacts to a store.
type Driver struct {
	opts        Options
	store       storage.Store
	writers     []writer.LogWriter
	checkpoints *checkpoint.Manager
	logger      *logrus.Logger
	runID       string
	onReplicate func(ReplicateResult)
}

// NewDriver creates a driver writing to store.
func NewDriver(store storage.Store, opts Options) (*Driver, error) {
	if opts.Replicates < 1 {
		return nil, serrors.New(serrors.CodeInvalidConfig, "replicates must be at least 1").
			WithContext("replicates", opts.Replicates)
	}
	formats := opts.Formats
	if len(formats) == 0 {
		formats = []string{"xes"}
	}
	d := &Driver{
		opts:   opts,
		store:  store,
		logger: logrus.StandardLogger(),
		runID:  uuid.NewString(),
	}
	for _, f := range formats {
		w, err := writer.New(f, opts.Writer)
		if err != nil {
			return nil, err
		}
		d.writers = append(d.writers, w)
	}
	return d, nil
}

// WithCheckpoints records replicate progress in m.
func (d *Driver) WithCheckpoints(m *checkpoint.Manager) *Driver {
	d.checkpoints = m
	return d
}

// WithLogger sets the logger.
func (d *Driver) WithLogger(l *logrus.Logger) *Driver {
	d.logger = l
	return d
}

// OnReplicate registers a callback run after every replicate, skipped
// ones included.
func (d *Driver) OnReplicate(fn func(ReplicateResult)) *Driver {
	d.onReplicate = fn
	return d
}

// RunID identifies this driver's run in logs and checkpoints.
func (d *Driver) RunID() string {
	return d.runID
}

// Prepare annotates the tree of in.
func (d *Driver) Prepare(in *Input) (*Prepared, error) {
	table, err := budget.NewAnnotator(d.opts.Strict).Annotate(in.Tree, in.Frequencies)
	if err != nil {
		if se, ok := err.(*serrors.SimlogError); ok {
			return nil, se.WithContext("input", in.Name)
		}
		return nil, err
	}
	d.logger.WithFields(logrus.Fields{
		"input":  in.Name,
		"nodes":  in.Tree.Len(),
		"traces": table.Get(budget.RootKey(in.Tree)),
	}).Info("Annotated process tree")
	return &Prepared{Input: in, Table: table}, nil
}

// Run simulates every input in order. Replicates run sequentially. The
// first failing replicate stops the run; the report holds everything up
// to and including it.
func (d *Driver) Run(ctx context.Context, inputs []*Input) (*RunReport, error) {
	ctx, span := telemetry.StartSpan(ctx, "simulation.run",
		attribute.String("simlog.run_id", d.runID),
		attribute.Int("simlog.inputs", len(inputs)),
		attribute.Int("simlog.replicates", d.opts.Replicates))
	report := &RunReport{RunID: d.runID}

	err := func() error {
		for _, in := range inputs {
			p, err := d.Prepare(in)
			if err != nil {
				return err
			}
			for r := 1; r <= d.opts.Replicates; r++ {
				res, err := d.Replicate(ctx, p, r)
				report.Replicates = append(report.Replicates, res)
				if d.onReplicate != nil {
					d.onReplicate(res)
				}
				if err != nil {
					return err
				}
			}
		}
		return nil
	}()
	telemetry.End(span, err)
	return report, err
}

// Replicate runs replicate r of p, or skips it when resuming and its
// checkpoint is complete.
func (d *Driver) Replicate(ctx context.Context, p *Prepared, r int) (res ReplicateResult, err error) {
	seed := d.opts.Seed + uint64(r)
	res = ReplicateResult{Input: p.Name, Replicate: r, Seed: seed}
	start := time.Now()

	ctx, span := telemetry.StartSpan(ctx, "simulation.replicate",
		attribute.String("simlog.input", p.Name),
		attribute.Int("simlog.replicate", r),
		attribute.Int64("simlog.seed", int64(seed)))
	defer func() {
		res.Duration = time.Since(start)
		span.SetAttributes(
			attribute.Int("simlog.traces", res.Traces),
			attribute.Bool("simlog.skipped", res.Skipped))
		telemetry.End(span, err)
	}()

	logger := d.logger.WithFields(logrus.Fields{
		"run_id":    d.runID,
		"input":     p.Name,
		"replicate": r,
	})

	if d.checkpoints != nil && d.opts.Resume {
		done, err := d.checkpoints.Completed(ctx, p.Name, r)
		if err != nil {
			return res, err
		}
		if done != nil {
			res.Skipped = true
			res.Traces = done.Traces
			res.Artifacts = done.Artifacts
			logger.Info("Replicate already complete, skipping")
			return res, nil
		}
	}

	var cp *checkpoint.Checkpoint
	if d.checkpoints != nil {
		if cp, err = d.checkpoints.Start(ctx, p.Name, r, seed); err != nil {
			return res, err
		}
	}

	if err = d.simulate(ctx, p, r, seed, &res); err != nil {
		if cp != nil {
			if ferr := d.checkpoints.Fail(context.WithoutCancel(ctx), cp, err); ferr != nil {
				logger.WithError(ferr).Warn("Failed to record failed checkpoint")
			}
		}
		return res, err
	}

	if cp != nil {
		if err = d.checkpoints.Complete(ctx, cp, res.Traces, res.Artifacts); err != nil {
			return res, err
		}
	}

	logger.WithFields(logrus.Fields{
		"traces":   res.Traces,
		"events":   res.Events,
		"dropped":  res.Dropped,
		"failures": res.Failures,
	}).Info("Replicate complete")
	return res, nil
}

func (d *Driver) simulate(ctx context.Context, p *Prepared, r int, seed uint64, res *ReplicateResult) error {
	table := p.Table.Clone()
	before := p.Table

	if err := d.putSnapshot(ctx, SnapshotKey(p.Name, "before", r), p.Tree, table, res); err != nil {
		return err
	}

	out, genErr := traversal.New(p.Tree, table, d.opts.Generator, seed).Run(ctx)
	if out != nil {
		res.Attempts = out.Attempts
		res.Failures = out.Failures
		res.Draws = out.Draws
	}
	for _, n := range budget.Consumed(before, table) {
		res.Consumed += n
	}
	if serrors.IsCode(genErr, serrors.CodeContextCanceled) {
		return genErr
	}

	// The after snapshot is kept on failure too; it shows where budget
	// was stranded.
	if err := d.putSnapshot(ctx, SnapshotKey(p.Name, "after", r), p.Tree, table, res); err != nil {
		return err
	}
	if genErr != nil {
		if se, ok := genErr.(*serrors.SimlogError); ok {
			return se.WithContext("input", p.Name).WithContext("replicate", r)
		}
		return genErr
	}

	log, stats := synth.NewTransformer(d.opts.Transform).Transform(LogName(p.Name, r), out.Traces)
	res.Traces = stats.Traces
	res.Events = stats.Events
	res.Dropped = stats.Dropped

	profile := inspect.Profile(log, inspect.Options{GlobalClock: true})
	res.Variants = profile.Variants
	for _, is := range profile.Issues {
		d.logger.WithFields(logrus.Fields{
			"input":     p.Name,
			"replicate": r,
			"category":  is.Category,
			"affected":  is.Affected,
		}).Warn(is.Description)
	}

	for _, w := range d.writers {
		key := log.Name + w.Extension()
		if err := d.export(ctx, key, w, log); err != nil {
			return err
		}
		res.Artifacts = append(res.Artifacts, key)
	}
	return nil
}

func (d *Driver) putSnapshot(ctx context.Context, key string, tree *processtree.Tree, table *budget.Table, res *ReplicateResult) error {
	sw, err := d.store.Writer(ctx, key)
	if err != nil {
		return err
	}
	if err := budget.WriteSnapshot(sw, table.Snapshot(tree)); err != nil {
		sw.Close()
		return serrors.Wrap(err, serrors.CodeWriteFailed, "write budget snapshot").WithContext("key", key)
	}
	if err := sw.Close(); err != nil {
		return err
	}
	res.Artifacts = append(res.Artifacts, key)
	return nil
}

func (d *Driver) export(ctx context.Context, key string, lw writer.LogWriter, log *model.Log) error {
	w, err := d.store.Writer(ctx, key)
	if err != nil {
		return err
	}
	if err := lw.WriteLog(ctx, w, log); err != nil {
		w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	d.logger.WithFields(logrus.Fields{
		"uri":    d.store.URI(key),
		"events": log.EventCount(),
	}).Debug("Exported log")
	return nil
}

// LogName is the name of the simulated log of replicate r.
func LogName(input string, r int) string {
	return fmt.Sprintf("Simulated_%d_%s", r, input)
}

// SnapshotKey is the store key of a budget snapshot; phase is "before"
// or "after".
func SnapshotKey(input, phase string, r int) string {
	return fmt.Sprintf("%s_dict_%s%d.json", input, phase, r)
}

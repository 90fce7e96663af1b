// Package synth turns generated execution sequences into an event log.
package synth

import (
	"strconv"
	"time"

	"github.com/logflow/simlog/internal/model"
	"github.com/logflow/simlog/pkg/traversal"
)

// DefaultEpoch is the timestamp of the first emitted event.
var DefaultEpoch = time.Unix(10000000, 0).UTC()

// Options configures the synthetic clock.
type Options struct {
	Epoch time.Time
	Step  time.Duration
}

// DefaultOptions starts the clock at DefaultEpoch and advances one second
// per event.
func DefaultOptions() Options {
	return Options{Epoch: DefaultEpoch, Step: time.Second}
}

// Stats describes one transformation.
type Stats struct {
	Sequences int
	Traces    int
	Events    int
	// Dropped counts sequences made only of silent leaves.
	Dropped int
}

// Transformer converts sequences into traces sharing one clock. The clock
// is never reset between traces, so timestamps are strictly increasing
// across the whole log.
type Transformer struct {
	opts Options
}

// NewTransformer returns a transformer, filling zero options with defaults.
func NewTransformer(opts Options) *Transformer {
	if opts.Epoch.IsZero() {
		opts.Epoch = DefaultEpoch
	}
	if opts.Step <= 0 {
		opts.Step = time.Second
	}
	return &Transformer{opts: opts}
}

// Transform builds a log named name. Trace i (1-based, counting dropped
// sequences) gets concept:name "i".
func (t *Transformer) Transform(name string, seqs []traversal.Sequence) (*model.Log, Stats) {
	log := &model.Log{Name: name}
	stats := Stats{Sequences: len(seqs)}
	clock := t.opts.Epoch

	for i, seq := range seqs {
		caseID := strconv.Itoa(i + 1)
		tr := &model.Trace{
			CaseID:     caseID,
			Attributes: map[string]string{model.KeyConceptName: caseID},
		}

		for _, leaf := range seq {
			if leaf.IsSilent() {
				continue
			}
			tr.Events = append(tr.Events, &model.Event{
				CaseID:    []byte(caseID),
				Activity:  []byte(leaf.Label),
				Timestamp: clock.UnixNano(),
			})
			clock = clock.Add(t.opts.Step)
		}

		if len(tr.Events) == 0 {
			stats.Dropped++
			continue
		}
		stats.Events += len(tr.Events)
		log.Traces = append(log.Traces, tr)
	}

	stats.Traces = len(log.Traces)
	return log, stats
}

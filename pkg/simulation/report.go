package simulation

import (
	"strconv"
	"time"
)

// ReplicateResult describes one replicate of one input.
type ReplicateResult struct {
	Input     string
	Replicate int
	Seed      uint64
	// Skipped is set when a complete checkpoint was found.
	Skipped bool

	Attempts int
	Failures int
	Draws    int64
	Traces   int
	Events   int
	Variants int
	// Dropped counts generated sequences made only of silent leaves.
	Dropped int
	// Consumed is the total budget taken across all table entries.
	Consumed int

	Artifacts []string
	Duration  time.Duration
}

// RunReport collects the replicates of a run.
type RunReport struct {
	RunID      string
	Replicates []ReplicateResult
}

// Header returns the column names of Records.
func (r *RunReport) Header() []string {
	return []string{"input", "replicate", "seed", "skipped", "traces", "events",
		"variants", "dropped", "attempts", "failures", "draws", "consumed", "duration_ms"}
}

// Records returns one row per replicate.
func (r *RunReport) Records() [][]string {
	rows := make([][]string, 0, len(r.Replicates))
	for _, rep := range r.Replicates {
		rows = append(rows, []string{
			rep.Input,
			strconv.Itoa(rep.Replicate),
			strconv.FormatUint(rep.Seed, 10),
			strconv.FormatBool(rep.Skipped),
			strconv.Itoa(rep.Traces),
			strconv.Itoa(rep.Events),
			strconv.Itoa(rep.Variants),
			strconv.Itoa(rep.Dropped),
			strconv.Itoa(rep.Attempts),
			strconv.Itoa(rep.Failures),
			strconv.FormatInt(rep.Draws, 10),
			strconv.Itoa(rep.Consumed),
			strconv.FormatInt(rep.Duration.Milliseconds(), 10),
		})
	}
	return rows
}

// Totals sums traces and events over the replicates that ran.
func (r *RunReport) Totals() (traces, events int) {
	for _, rep := range r.Replicates {
		if !rep.Skipped {
			traces += rep.Traces
			events += rep.Events
		}
	}
	return traces, events
}

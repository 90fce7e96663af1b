// Package checkpoint records which simulation replicates have completed so
// an interrupted run can resume without regenerating finished logs.
package checkpoint

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	serrors "github.com/logflow/simlog/pkg/errors"
)

// Phase is the lifecycle state of a replicate.
type Phase string

const (
	PhaseRunning  Phase = "running"
	PhaseComplete Phase = "complete"
	PhaseFailed   Phase = "failed"
)

// Checkpoint tracks one replicate of one input.
type Checkpoint struct {
	ID        string `json:"id"`
	RunID     string `json:"run_id"`
	Input     string `json:"input"`
	Replicate int    `json:"replicate"`
	Seed      uint64 `json:"seed"`

	Phase Phase `json:"phase"`
	// Traces is the number of generated traces once complete.
	Traces int `json:"traces"`
	// Artifacts lists the storage keys written for the replicate.
	Artifacts []string `json:"artifacts,omitempty"`
	Error     string   `json:"error,omitempty"`

	StartedAt   time.Time  `json:"started_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// ID builds the checkpoint ID of a replicate.
func ID(input string, replicate int) string {
	return fmt.Sprintf("%s_r%d", sanitizeKey(input), replicate)
}

// Done reports whether the replicate completed.
func (c *Checkpoint) Done() bool {
	return c != nil && c.Phase == PhaseComplete
}

// Duration returns how long the replicate has been running.
func (c *Checkpoint) Duration() time.Duration {
	if c.CompletedAt != nil {
		return c.CompletedAt.Sub(c.StartedAt)
	}
	return time.Since(c.StartedAt)
}

// Manager drives replicate checkpoints on a Backend.
type Manager struct {
	backend Backend
	runID   string
	now     func() time.Time
}

// NewManager creates a manager writing checkpoints tagged with runID.
func NewManager(backend Backend, runID string) *Manager {
	return &Manager{backend: backend, runID: runID, now: time.Now}
}

// Backend returns the underlying backend.
func (m *Manager) Backend() Backend {
	return m.backend
}

// Completed returns the checkpoint of a finished replicate, or nil when
// the replicate has not completed.
func (m *Manager) Completed(ctx context.Context, input string, replicate int) (*Checkpoint, error) {
	cp, err := m.backend.Load(ctx, ID(input, replicate))
	if err != nil {
		if os.IsNotExist(err) || serrors.IsCode(err, serrors.CodeFileNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if !cp.Done() {
		return nil, nil
	}
	return cp, nil
}

// Start records a replicate as running.
func (m *Manager) Start(ctx context.Context, input string, replicate int, seed uint64) (*Checkpoint, error) {
	now := m.now()
	cp := &Checkpoint{
		ID:        ID(input, replicate),
		RunID:     m.runID,
		Input:     input,
		Replicate: replicate,
		Seed:      seed,
		Phase:     PhaseRunning,
		StartedAt: now,
		UpdatedAt: now,
	}
	return cp, m.backend.Save(ctx, cp)
}

// Complete marks cp finished with the number of generated traces.
func (m *Manager) Complete(ctx context.Context, cp *Checkpoint, traces int, artifacts []string) error {
	now := m.now()
	cp.Phase = PhaseComplete
	cp.Traces = traces
	cp.Artifacts = artifacts
	cp.UpdatedAt = now
	cp.CompletedAt = &now
	return m.backend.Save(ctx, cp)
}

// Fail marks cp failed. A failed replicate is run again on resume.
func (m *Manager) Fail(ctx context.Context, cp *Checkpoint, cause error) error {
	cp.Phase = PhaseFailed
	cp.Error = cause.Error()
	cp.UpdatedAt = m.now()
	return m.backend.Save(ctx, cp)
}

// Reset deletes the checkpoints of every replicate of input.
func (m *Manager) Reset(ctx context.Context, input string) (int, error) {
	cps, err := m.backend.List(ctx, sanitizeKey(input)+"_r")
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, cp := range cps {
		if cp.Input != input {
			continue
		}
		if err := m.backend.Delete(ctx, cp.ID); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// sanitizeKey removes characters that may cause issues in keys and file
// names.
func sanitizeKey(s string) string {
	return strings.NewReplacer("/", "_", ":", "_", " ", "_", "\\", "_").Replace(s)
}

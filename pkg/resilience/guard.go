// Package resilience isolates units of work so that one bad input cannot
// take down a whole batch.
package resilience

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	serrors "github.com/logflow/simlog/pkg/errors"
)

// Guard runs jobs with panic recovery and an optional per-job timeout.
// It is safe for concurrent use.
type Guard struct {
	timeout time.Duration
	code    serrors.Code

	processed int64
	failed    int64
	panics    int64

	// OnFailure is called for every failed job with its label.
	OnFailure func(label string, err error)
}

// NewGuard returns a guard that reports failures with code.
func NewGuard(code serrors.Code) *Guard {
	return &Guard{code: code}
}

// WithTimeout bounds every job. Zero disables the bound.
func (g *Guard) WithTimeout(d time.Duration) *Guard {
	g.timeout = d
	return g
}

// Do runs job. A panic becomes an error with the guard's code. When the
// timeout elapses Do returns without waiting; job sees its context canceled.
func (g *Guard) Do(ctx context.Context, label string, job func(ctx context.Context) error) error {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				atomic.AddInt64(&g.panics, 1)
				done <- serrors.New(g.code, fmt.Sprintf("panic: %v", r)).WithContext("job", label)
			}
		}()
		done <- job(ctx)
	}()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			err = serrors.New(g.code, "timed out").
				WithContext("job", label).
				WithContext("timeout", g.timeout.String())
		} else {
			err = serrors.ContextCanceled(label)
		}
	}

	if err != nil {
		atomic.AddInt64(&g.failed, 1)
		if g.OnFailure != nil {
			g.OnFailure(label, err)
		}
		return err
	}
	atomic.AddInt64(&g.processed, 1)
	return nil
}

// Stats returns job counters.
func (g *Guard) Stats() Stats {
	return Stats{
		Processed: atomic.LoadInt64(&g.processed),
		Failed:    atomic.LoadInt64(&g.failed),
		Panics:    atomic.LoadInt64(&g.panics),
	}
}

// Stats contains job counters.
type Stats struct {
	Processed int64
	Failed    int64
	Panics    int64
}

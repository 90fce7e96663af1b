// Package watch re-runs work when simulation inputs change on disk.
package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	serrors "github.com/logflow/simlog/pkg/errors"
)

// DefaultDebounce coalesces bursts of writes from editors and copy tools.
const DefaultDebounce = 500 * time.Millisecond

// Watcher monitors input files and calls OnChange after they settle.
type Watcher struct {
	watcher  *fsnotify.Watcher
	files    map[string]*fileState
	mu       sync.RWMutex
	debounce time.Duration
	logger   *logrus.Logger

	// OnChange runs once per settled change. Calls are serialized.
	OnChange func(ctx context.Context, path string) error
	OnError  func(path string, err error)

	runMu sync.Mutex
}

type fileState struct {
	path         string
	lastModified time.Time
	size         int64
}

// NewWatcher creates a watcher. A non-positive debounce uses DefaultDebounce.
func NewWatcher(debounce time.Duration, logger *logrus.Logger) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, serrors.Wrap(err, serrors.CodeUnknown, "create file watcher")
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Watcher{
		watcher:  fsWatcher,
		files:    make(map[string]*fileState),
		debounce: debounce,
		logger:   logger,
	}, nil
}

// Watch adds files. Their directories are watched so that editors that
// replace files by rename are still seen.
func (w *Watcher) Watch(paths ...string) error {
	for _, path := range paths {
		if path == "" {
			continue
		}
		absPath, err := filepath.Abs(path)
		if err != nil {
			return serrors.Wrap(err, serrors.CodeFileNotFound, "resolve watch path").WithContext("path", path)
		}
		stat, err := os.Stat(absPath)
		if err != nil {
			return serrors.FileNotFound(absPath)
		}

		w.mu.Lock()
		w.files[absPath] = &fileState{
			path:         absPath,
			lastModified: stat.ModTime(),
			size:         stat.Size(),
		}
		w.mu.Unlock()

		if err := w.watcher.Add(filepath.Dir(absPath)); err != nil {
			return serrors.Wrap(err, serrors.CodeUnknown, "watch directory").WithContext("dir", filepath.Dir(absPath))
		}
		w.logger.WithField("path", absPath).Debug("Watching input")
	}
	return nil
}

// Paths returns the watched files.
func (w *Watcher) Paths() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]string, 0, len(w.files))
	for p := range w.files {
		out = append(out, p)
	}
	return out
}

// Run starts the watch loop. Blocks until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	timers := make(map[string]*time.Timer)
	var timerMu sync.Mutex
	defer func() {
		timerMu.Lock()
		for _, t := range timers {
			t.Stop()
		}
		timerMu.Unlock()
		w.watcher.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}

			absPath, err := filepath.Abs(event.Name)
			if err != nil {
				continue
			}
			w.mu.RLock()
			state, watched := w.files[absPath]
			w.mu.RUnlock()
			if !watched {
				continue
			}

			timerMu.Lock()
			if t, exists := timers[absPath]; exists {
				t.Stop()
			}
			timers[absPath] = time.AfterFunc(w.debounce, func() {
				w.handleChange(ctx, state)
			})
			timerMu.Unlock()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.report("", err)
		}
	}
}

func (w *Watcher) handleChange(ctx context.Context, state *fileState) {
	if ctx.Err() != nil {
		return
	}
	w.runMu.Lock()
	defer w.runMu.Unlock()

	stat, err := os.Stat(state.path)
	if err != nil {
		// Mid-replace; the create event that follows retriggers.
		return
	}

	w.mu.Lock()
	unchanged := stat.ModTime().Equal(state.lastModified) && stat.Size() == state.size
	state.lastModified = stat.ModTime()
	state.size = stat.Size()
	w.mu.Unlock()
	if unchanged {
		return
	}

	w.logger.WithField("path", state.path).Info("Input changed")
	if w.OnChange != nil {
		if err := w.OnChange(ctx, state.path); err != nil {
			w.report(state.path, err)
		}
	}
}

func (w *Watcher) report(path string, err error) {
	if w.OnError != nil {
		w.OnError(path, err)
		return
	}
	w.logger.WithError(err).WithField("path", path).Error("Watch error")
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}

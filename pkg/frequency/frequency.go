// Package frequency supplies observed leaf firing counts to the budget
// annotator. Counts come from a replay result file, from an in-memory map,
// or are counted directly from an imported event log.
package frequency

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/logflow/simlog/internal/model"
	serrors "github.com/logflow/simlog/pkg/errors"
)

// Map is an in-memory name → count source.
type Map map[string]int

// Count implements budget.Source.
func (m Map) Count(name string) (int, bool) {
	v, ok := m[name]
	return v, ok
}

// Names returns the names in sorted order.
func (m Map) Names() []string {
	names := make([]string, 0, len(m))
	for n := range m {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Merge returns a new map with other's entries overriding m's.
func (m Map) Merge(other Map) Map {
	out := make(Map, len(m)+len(other))
	for k, v := range m {
		out[k] = v
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}

// LoadFile reads a count map from .json, .yaml or .yml.
func LoadFile(path string) (Map, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, serrors.FileNotFound(path)
		}
		return nil, serrors.Wrap(err, serrors.CodeParseFailed, "read frequencies").WithContext("path", path)
	}

	m := make(Map)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, &m)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &m)
	default:
		return nil, serrors.New(serrors.CodeParseFailed, "unsupported frequency file extension").
			WithContext("path", path)
	}
	if err != nil {
		return nil, serrors.Wrapf(err, serrors.CodeParseFailed, "decode frequencies %s", path)
	}
	return m, nil
}

// LogOptions controls counting activity occurrences in a log.
type LogOptions struct {
	// Lifecycles lists the lifecycle:transition values that count.
	// Ignored when AllLifecycle is set.
	Lifecycles []string

	// AllLifecycle counts events regardless of their lifecycle phase.
	AllLifecycle bool
}

// DefaultLogOptions counts every lifecycle phase.
func DefaultLogOptions() LogOptions {
	return LogOptions{
		Lifecycles:   []string{"complete", "", "COMPLETE"},
		AllLifecycle: true,
	}
}

// FromLog counts how often each activity occurs in log. Silent leaves have
// no events, so their counts must come from overrides.
func FromLog(log *model.Log, opts LogOptions, overrides Map) Map {
	allowed := make(map[string]bool, len(opts.Lifecycles))
	for _, lc := range opts.Lifecycles {
		allowed[lc] = true
	}

	m := make(Map)
	for _, tr := range log.Traces {
		for _, ev := range tr.Events {
			if !opts.AllLifecycle && !allowed[ev.Lifecycle()] {
				continue
			}
			m[string(ev.Activity)]++
		}
	}
	return m.Merge(overrides)
}

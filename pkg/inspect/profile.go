// Package inspect profiles event logs: volumes, time range, trace length
// distribution, variants and integrity issues.
package inspect

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/logflow/simlog/internal/model"
)

// Report contains the profile of one log.
type Report struct {
	Name string `json:"name"`

	// Basic counts
	Traces     int `json:"traces"`
	Events     int `json:"events"`
	Activities int `json:"activities"`
	Variants   int `json:"variants"`

	// Time range
	MinTimestamp time.Time `json:"min_timestamp"`
	MaxTimestamp time.Time `json:"max_timestamp"`

	Distribution DistributionMetrics `json:"distribution"`

	// ActivityCounts holds the occurrences of every activity.
	ActivityCounts map[string]int `json:"activity_counts"`

	Issues []Issue `json:"issues"`
}

// DistributionMetrics describes trace lengths.
type DistributionMetrics struct {
	AvgEventsPerTrace    float64 `json:"avg_events_per_trace"`
	MinEventsPerTrace    int     `json:"min_events_per_trace"`
	MaxEventsPerTrace    int     `json:"max_events_per_trace"`
	MedianEventsPerTrace int     `json:"median_events_per_trace"`

	// Top activities by frequency
	TopActivities []ActivityCount `json:"top_activities"`
}

// ActivityCount holds activity frequency.
type ActivityCount struct {
	Activity string `json:"activity"`
	Count    int    `json:"count"`
}

// Issue describes an integrity problem.
type Issue struct {
	Severity    string `json:"severity"` // "error", "warning"
	Category    string `json:"category"` // "completeness", "consistency", "ordering"
	Description string `json:"description"`
	Affected    int    `json:"affected"`
}

// Options selects the checks applied.
type Options struct {
	// GlobalClock requires timestamps to strictly increase across the
	// whole log in trace order, as the synthetic clock guarantees.
	GlobalClock bool

	// TopN limits TopActivities.
	TopN int
}

// Analyzer accumulates a profile trace by trace.
type Analyzer struct {
	opts Options
	name string

	traces int
	events int

	minTimestamp int64
	maxTimestamp int64

	lengths    []int
	activities map[string]int
	variants   map[string]struct{}
	caseIDs    map[string]int

	emptyTraces       int
	missingActivities int
	missingTimestamps int
	outOfOrder        int
	clockViolations   int
	lastTimestamp     int64
	clockStarted      bool
}

// NewAnalyzer creates an analyzer for the log called name.
func NewAnalyzer(name string, opts Options) *Analyzer {
	if opts.TopN <= 0 {
		opts.TopN = 10
	}
	return &Analyzer{
		opts:         opts,
		name:         name,
		minTimestamp: math.MaxInt64,
		maxTimestamp: math.MinInt64,
		activities:   make(map[string]int),
		variants:     make(map[string]struct{}),
		caseIDs:      make(map[string]int),
	}
}

// AddTrace processes one trace.
func (a *Analyzer) AddTrace(tr *model.Trace) {
	a.traces++
	a.caseIDs[tr.CaseID]++
	a.lengths = append(a.lengths, len(tr.Events))
	if len(tr.Events) == 0 {
		a.emptyTraces++
		return
	}
	a.variants[tr.Variant()] = struct{}{}

	var prev int64
	for i, ev := range tr.Events {
		a.events++
		if len(ev.Activity) == 0 {
			a.missingActivities++
		} else {
			a.activities[string(ev.Activity)]++
		}

		if ev.Timestamp == 0 {
			a.missingTimestamps++
			continue
		}
		a.minTimestamp = min(a.minTimestamp, ev.Timestamp)
		a.maxTimestamp = max(a.maxTimestamp, ev.Timestamp)

		if i > 0 && ev.Timestamp < prev {
			a.outOfOrder++
		}
		prev = ev.Timestamp

		if a.opts.GlobalClock {
			if a.clockStarted && ev.Timestamp <= a.lastTimestamp {
				a.clockViolations++
			}
			a.lastTimestamp = ev.Timestamp
			a.clockStarted = true
		}
	}
}

// Report generates the profile.
func (a *Analyzer) Report() *Report {
	r := &Report{
		Name:           a.name,
		Traces:         a.traces,
		Events:         a.events,
		Activities:     len(a.activities),
		Variants:       len(a.variants),
		ActivityCounts: a.activities,
	}
	if a.minTimestamp != math.MaxInt64 {
		r.MinTimestamp = time.Unix(0, a.minTimestamp).UTC()
		r.MaxTimestamp = time.Unix(0, a.maxTimestamp).UTC()
	}
	r.Distribution = a.distribution()
	r.Issues = a.issues()
	return r
}

func (a *Analyzer) distribution() DistributionMetrics {
	dm := DistributionMetrics{}
	if len(a.lengths) == 0 {
		return dm
	}

	lengths := append([]int(nil), a.lengths...)
	sort.Ints(lengths)
	total := 0
	for _, n := range lengths {
		total += n
	}
	dm.MinEventsPerTrace = lengths[0]
	dm.MaxEventsPerTrace = lengths[len(lengths)-1]
	dm.AvgEventsPerTrace = float64(total) / float64(len(lengths))
	dm.MedianEventsPerTrace = lengths[len(lengths)/2]
	dm.TopActivities = topN(a.activities, a.opts.TopN)
	return dm
}

// topN returns the top n activities by frequency, ties broken by name.
func topN(m map[string]int, n int) []ActivityCount {
	sorted := make([]ActivityCount, 0, len(m))
	for k, v := range m {
		sorted = append(sorted, ActivityCount{Activity: k, Count: v})
	}
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Count != sorted[j].Count {
			return sorted[i].Count > sorted[j].Count
		}
		return sorted[i].Activity < sorted[j].Activity
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

func (a *Analyzer) issues() []Issue {
	var issues []Issue
	add := func(severity, category string, affected int, format string, args ...interface{}) {
		if affected > 0 {
			issues = append(issues, Issue{
				Severity:    severity,
				Category:    category,
				Description: fmt.Sprintf(format, args...),
				Affected:    affected,
			})
		}
	}

	duplicates := 0
	for _, n := range a.caseIDs {
		if n > 1 {
			duplicates += n - 1
		}
	}

	add("error", "completeness", a.missingActivities, "%d events have no activity", a.missingActivities)
	add("warning", "completeness", a.missingTimestamps, "%d events have no timestamp", a.missingTimestamps)
	add("warning", "completeness", a.emptyTraces, "%d traces have no events", a.emptyTraces)
	add("error", "consistency", duplicates, "%d traces reuse a case ID", duplicates)
	add("warning", "ordering", a.outOfOrder, "%d events precede their predecessor in the trace", a.outOfOrder)
	add("error", "ordering", a.clockViolations, "%d events do not advance the log clock", a.clockViolations)
	return issues
}

// Profile analyzes a whole log.
func Profile(log *model.Log, opts Options) *Report {
	a := NewAnalyzer(log.Name, opts)
	for _, tr := range log.Traces {
		a.AddTrace(tr)
	}
	return a.Report()
}

// HasErrors reports whether any issue has error severity.
func (r *Report) HasErrors() bool {
	for _, is := range r.Issues {
		if is.Severity == "error" {
			return true
		}
	}
	return false
}

// Deviation is an activity whose count differs from the expected one.
type Deviation struct {
	Activity string
	Expected int
	Actual   int
}

// Compare lists activities whose occurrence count differs from expected,
// sorted by name. Activities absent from expected are ignored.
func (r *Report) Compare(expected map[string]int) []Deviation {
	var out []Deviation
	for act, want := range expected {
		if got := r.ActivityCounts[act]; got != want {
			out = append(out, Deviation{Activity: act, Expected: want, Actual: got})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Activity < out[j].Activity })
	return out
}

// Table is a set of profiles rendered side by side.
type Table []*Report

// Header returns metric followed by one column per log.
func (t Table) Header() []string {
	h := []string{"metric"}
	for _, r := range t {
		h = append(h, r.Name)
	}
	return h
}

// Records returns one row per metric.
func (t Table) Records() [][]string {
	metrics := []struct {
		name  string
		value func(*Report) string
	}{
		{"traces", func(r *Report) string { return strconv.Itoa(r.Traces) }},
		{"events", func(r *Report) string { return strconv.Itoa(r.Events) }},
		{"activities", func(r *Report) string { return strconv.Itoa(r.Activities) }},
		{"variants", func(r *Report) string { return strconv.Itoa(r.Variants) }},
		{"avg_trace_length", func(r *Report) string {
			return strconv.FormatFloat(r.Distribution.AvgEventsPerTrace, 'f', 2, 64)
		}},
		{"max_trace_length", func(r *Report) string { return strconv.Itoa(r.Distribution.MaxEventsPerTrace) }},
		{"issues", func(r *Report) string { return strconv.Itoa(len(r.Issues)) }},
	}
	rows := make([][]string, 0, len(metrics))
	for _, m := range metrics {
		row := []string{m.name}
		for _, r := range t {
			row = append(row, m.value(r))
		}
		rows = append(rows, row)
	}
	return rows
}

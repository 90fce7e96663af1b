package model

import "strings"

// Trace is one case: its attributes and its events in order.
type Trace struct {
	CaseID     string
	Attributes map[string]string
	Events     []*Event
}

// Activities returns the activity labels of the trace in order.
func (t *Trace) Activities() []string {
	out := make([]string, len(t.Events))
	for i, e := range t.Events {
		out[i] = string(e.Activity)
	}
	return out
}

// Variant returns the activity sequence joined into a single key.
func (t *Trace) Variant() string {
	return strings.Join(t.Activities(), "\x1f")
}

// Log is an ordered collection of traces.
type Log struct {
	Name   string
	Traces []*Trace
}

// EventCount returns the number of events across all traces.
func (l *Log) EventCount() int {
	n := 0
	for _, t := range l.Traces {
		n += len(t.Events)
	}
	return n
}

// Events returns all events in trace order.
func (l *Log) Events() []*Event {
	out := make([]*Event, 0, l.EventCount())
	for _, t := range l.Traces {
		out = append(out, t.Events...)
	}
	return out
}

// GroupEvents builds a log from events in arrival order, grouping by case ID.
// Trace order follows the first event of each case. Event attributes with
// the case: prefix become trace attributes.
func GroupEvents(name string, events []*Event) *Log {
	log := &Log{Name: name}
	index := make(map[string]*Trace)

	for _, e := range events {
		id := string(e.CaseID)
		tr, ok := index[id]
		if !ok {
			tr = &Trace{CaseID: id, Attributes: make(map[string]string)}
			index[id] = tr
			log.Traces = append(log.Traces, tr)
		}

		kept := e.Attributes[:0]
		for _, a := range e.Attributes {
			if k := string(a.Key); strings.HasPrefix(k, CaseAttrPrefix) {
				tr.Attributes[strings.TrimPrefix(k, CaseAttrPrefix)] = string(a.Value)
				continue
			}
			kept = append(kept, a)
		}
		e.Attributes = kept
		tr.Events = append(tr.Events, e)
	}
	return log
}

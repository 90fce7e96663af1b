// Package model defines the event log structures shared by importers,
// the trace transformer, exporters and the risk scorer.
package model

import "bytes"

// XES standard attribute keys.
const (
	KeyConceptName = "concept:name"
	KeyTimestamp   = "time:timestamp"
	KeyResource    = "org:resource"
	KeyLifecycle   = "lifecycle:transition"

	// CaseAttrPrefix marks trace-level attributes copied onto events.
	CaseAttrPrefix = "case:"
)

// Event represents a single process mining event.
// Timestamps are stored as int64 nanoseconds since Unix epoch.
type Event struct {
	// CaseID identifies the process instance (trace).
	CaseID []byte

	// Activity is the event name/activity label.
	Activity []byte

	// Timestamp in nanoseconds since Unix epoch.
	Timestamp int64

	// Resource is the actor/resource performing the activity.
	Resource []byte

	// Attributes holds additional key-value pairs.
	Attributes []Attribute
}

// Attribute represents a key-value pair for event metadata.
type Attribute struct {
	Key   []byte
	Value []byte
	Type  AttrType
}

// AttrType indicates the semantic type of an attribute value.
type AttrType uint8

const (
	AttrTypeString AttrType = iota
	AttrTypeInt
	AttrTypeFloat
	AttrTypeBool
	AttrTypeTimestamp
)

// XESTag returns the XES element name for the type.
func (t AttrType) XESTag() string {
	switch t {
	case AttrTypeInt:
		return "int"
	case AttrTypeFloat:
		return "float"
	case AttrTypeBool:
		return "boolean"
	case AttrTypeTimestamp:
		return "date"
	default:
		return "string"
	}
}

// Attr returns the value of the attribute with the given key.
func (e *Event) Attr(key string) ([]byte, bool) {
	for _, a := range e.Attributes {
		if bytes.Equal(a.Key, []byte(key)) {
			return a.Value, true
		}
	}
	return nil, false
}

// Lifecycle returns the lifecycle:transition value, or "" when absent.
func (e *Event) Lifecycle() string {
	v, _ := e.Attr(KeyLifecycle)
	return string(v)
}

// Reset clears the event for reuse from a pool.
func (e *Event) Reset() {
	e.CaseID = e.CaseID[:0]
	e.Activity = e.Activity[:0]
	e.Timestamp = 0
	e.Resource = e.Resource[:0]
	e.Attributes = e.Attributes[:0]
}

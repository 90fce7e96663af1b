// Package risk estimates the re-identification risk of an event log.
//
// An attacker is assumed to know a few activities of a victim's case
// (the background knowledge, of a given length). The scorer counts how
// many cases in the log are consistent with that knowledge and derives
// case, trace and attribute disclosure from the size of the match set.
package risk

import (
	"context"
	"strings"

	"github.com/logflow/simlog/internal/model"
	serrors "github.com/logflow/simlog/pkg/errors"
)

// BKType is the shape of the attacker's background knowledge.
type BKType uint8

const (
	// BKSet knows which distinct activities occurred.
	BKSet BKType = iota
	// BKMultiset also knows how often each occurred.
	BKMultiset
	// BKSequence knows their relative order.
	BKSequence
)

// String returns the background knowledge type name.
func (b BKType) String() string {
	switch b {
	case BKMultiset:
		return "multiset"
	case BKSequence:
		return "sequence"
	default:
		return "set"
	}
}

// ParseBKType parses set, multiset or sequence.
func ParseBKType(s string) (BKType, error) {
	switch strings.ToLower(s) {
	case "set":
		return BKSet, nil
	case "multiset":
		return BKMultiset, nil
	case "sequence":
		return BKSequence, nil
	default:
		return BKSet, serrors.New(serrors.CodeInvalidConfig, "unknown background knowledge type").
			WithContext("bk_type", s)
	}
}

// Measurement aggregates the disclosure of one case over its candidates.
type Measurement uint8

const (
	// Average takes the mean over all candidates of a case.
	Average Measurement = iota
	// WorstCase takes the maximum.
	WorstCase
)

// String returns the measurement name.
func (m Measurement) String() string {
	if m == WorstCase {
		return "worst_case"
	}
	return "average"
}

// ParseMeasurement parses average or worst_case.
func ParseMeasurement(s string) (Measurement, error) {
	switch strings.ToLower(s) {
	case "average", "avg", "":
		return Average, nil
	case "worst_case", "worst", "max":
		return WorstCase, nil
	default:
		return Average, serrors.New(serrors.CodeInvalidConfig, "unknown measurement").
			WithContext("measurement", s)
	}
}

// Options configures a scorer.
type Options struct {
	BKType      BKType
	Measurement Measurement

	// AllLifecycle keeps every event; otherwise only events whose
	// lifecycle:transition is listed in Lifecycles are projected.
	AllLifecycle bool
	Lifecycles   []string

	// Sensitive lists case attributes used for attribute disclosure.
	Sensitive []string

	// MaxCandidatesPerCase caps the background knowledge candidates
	// enumerated for one case.
	MaxCandidatesPerCase int
}

// DefaultOptions returns set-based, averaged scoring over all lifecycles.
func DefaultOptions() Options {
	return Options{
		BKType:               BKSet,
		Measurement:          Average,
		AllLifecycle:         true,
		Lifecycles:           []string{"complete", "", "COMPLETE"},
		MaxCandidatesPerCase: 2000,
	}
}

// Result holds the disclosure measures of one log for one knowledge length.
type Result struct {
	BKLength int

	CaseDisclosure      float64
	TraceDisclosure     float64
	AttributeDisclosure float64

	// UniqueMatched lists the cases singled out by at least one candidate.
	UniqueMatched []string

	// Cases is the number of cases with at least one candidate.
	Cases int
}

// Scorer measures re-identification risk.
type Scorer interface {
	Score(ctx context.Context, log *model.Log, bkLength int) (*Result, error)
}

package risk

import (
	"context"
	"sort"

	"github.com/RoaringBitmap/roaring"

	"github.com/logflow/simlog/internal/model"
	serrors "github.com/logflow/simlog/pkg/errors"
)

// SMS is a simple-matching scorer: a candidate matches every case that
// contains it, and the disclosure of a candidate is derived from the size
// of its match set.
type SMS struct {
	opts Options
}

// NewSMS returns a simple-matching scorer.
func NewSMS(opts Options) *SMS {
	if opts.MaxCandidatesPerCase <= 0 {
		opts.MaxCandidatesPerCase = DefaultOptions().MaxCandidatesPerCase
	}
	return &SMS{opts: opts}
}

// Options returns the scorer configuration.
func (s *SMS) Options() Options {
	return s.opts
}

// Score implements Scorer. Cases shorter than bkLength have no candidates
// and are left out of the averages.
func (s *SMS) Score(ctx context.Context, log *model.Log, bkLength int) (*Result, error) {
	if bkLength < 1 {
		return nil, serrors.New(serrors.CodeInvalidConfig, "background knowledge length must be positive").
			WithContext("bk_length", bkLength)
	}

	idx := buildIndex(project(log, s.opts))
	res := &Result{BKLength: bkLength}
	withSensitive := len(s.opts.Sensitive) > 0

	var cdSum, tdSum, adSum float64
	for i, c := range idx.cases {
		if i%64 == 0 {
			select {
			case <-ctx.Done():
				return nil, serrors.ContextCanceled("score log")
			default:
			}
		}

		cands := enumerate(s.opts.BKType, c.activities, bkLength, s.opts.MaxCandidatesPerCase)
		if len(cands) == 0 {
			continue
		}

		var agg [3]aggregate
		unique := false
		for _, cand := range cands {
			matches := s.match(idx, cand)
			n := float64(matches.GetCardinality())
			if n == 0 {
				// A candidate is drawn from its own case.
				return nil, serrors.New(serrors.CodeScoringFailed, "candidate does not match its own case").
					WithContext("case", c.id)
			}
			if n == 1 {
				unique = true
			}

			sameTrace, sameAttr := 0, 0
			it := matches.Iterator()
			for it.HasNext() {
				m := idx.cases[it.Next()]
				if m.variant == c.variant {
					sameTrace++
				}
				if withSensitive && m.sensitive == c.sensitive {
					sameAttr++
				}
			}

			agg[0].add(1 / n)
			agg[1].add(float64(sameTrace) / n)
			if withSensitive {
				agg[2].add(float64(sameAttr) / n)
			}
		}

		res.Cases++
		cdSum += agg[0].value(s.opts.Measurement)
		tdSum += agg[1].value(s.opts.Measurement)
		adSum += agg[2].value(s.opts.Measurement)
		if unique {
			res.UniqueMatched = append(res.UniqueMatched, c.id)
		}
	}

	if res.Cases > 0 {
		n := float64(res.Cases)
		res.CaseDisclosure = cdSum / n
		res.TraceDisclosure = tdSum / n
		res.AttributeDisclosure = adSum / n
	}
	sort.Strings(res.UniqueMatched)
	return res, nil
}

func (s *SMS) match(idx *caseIndex, c candidate) *roaring.Bitmap {
	if s.opts.BKType == BKSequence {
		return idx.matchSequence(c.seq)
	}
	return idx.matchCounts(c.counts)
}

type aggregate struct {
	sum, max float64
	n        int
}

func (a *aggregate) add(v float64) {
	a.sum += v
	if v > a.max {
		a.max = v
	}
	a.n++
}

func (a aggregate) value(m Measurement) float64 {
	if a.n == 0 {
		return 0
	}
	if m == WorstCase {
		return a.max
	}
	return a.sum / float64(a.n)
}

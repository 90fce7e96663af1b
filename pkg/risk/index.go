package risk

import (
	"strings"

	"github.com/RoaringBitmap/roaring"

	"github.com/logflow/simlog/internal/model"
)

// projectedCase is a case reduced to what the attacker can observe.
type projectedCase struct {
	id         string
	activities []string
	variant    string
	sensitive  string
}

// caseIndex maps activities to the cases containing them. counts[a][k-1]
// holds the cases with at least k occurrences of a.
type caseIndex struct {
	cases  []projectedCase
	counts map[string][]*roaring.Bitmap
}

func project(log *model.Log, opts Options) []projectedCase {
	keep := make(map[string]bool, len(opts.Lifecycles))
	for _, l := range opts.Lifecycles {
		keep[l] = true
	}

	out := make([]projectedCase, 0, len(log.Traces))
	for _, tr := range log.Traces {
		pc := projectedCase{id: tr.CaseID}
		for _, e := range tr.Events {
			if !opts.AllLifecycle && !keep[e.Lifecycle()] {
				continue
			}
			pc.activities = append(pc.activities, string(e.Activity))
		}
		pc.variant = strings.Join(pc.activities, "\x1f")
		pc.sensitive = sensitiveKey(tr, opts.Sensitive)
		out = append(out, pc)
	}
	return out
}

// sensitiveKey joins the sensitive values of a trace. Trace attributes win
// over the first event carrying the key.
func sensitiveKey(tr *model.Trace, keys []string) string {
	if len(keys) == 0 {
		return ""
	}
	vals := make([]string, len(keys))
	for i, k := range keys {
		if v, ok := tr.Attributes[k]; ok {
			vals[i] = v
			continue
		}
		for _, e := range tr.Events {
			if v, ok := e.Attr(k); ok {
				vals[i] = string(v)
				break
			}
		}
	}
	return strings.Join(vals, "\x1f")
}

func buildIndex(cases []projectedCase) *caseIndex {
	idx := &caseIndex{cases: cases, counts: make(map[string][]*roaring.Bitmap)}
	for i, c := range cases {
		seen := make(map[string]int)
		for _, a := range c.activities {
			seen[a]++
			k := seen[a]
			bms := idx.counts[a]
			if len(bms) < k {
				bms = append(bms, roaring.New())
				idx.counts[a] = bms
			}
			bms[k-1].Add(uint32(i))
		}
	}
	return idx
}

// atLeast returns the cases with at least n occurrences of a. The result
// must not be modified.
func (idx *caseIndex) atLeast(a string, n int) *roaring.Bitmap {
	bms := idx.counts[a]
	if n < 1 || n > len(bms) {
		return nil
	}
	return bms[n-1]
}

// matchCounts returns the cases containing every activity at least as
// often as given.
func (idx *caseIndex) matchCounts(counts map[string]int) *roaring.Bitmap {
	var result *roaring.Bitmap
	for a, n := range counts {
		bm := idx.atLeast(a, n)
		if bm == nil {
			return roaring.New()
		}
		if result == nil {
			result = bm.Clone()
		} else {
			result.And(bm)
		}
	}
	if result == nil {
		return roaring.New()
	}
	return result
}

// matchSequence returns the cases containing seq as a subsequence.
func (idx *caseIndex) matchSequence(seq []string) *roaring.Bitmap {
	counts := make(map[string]int, len(seq))
	for _, a := range seq {
		counts[a]++
	}
	candidates := idx.matchCounts(counts)

	out := roaring.New()
	it := candidates.Iterator()
	for it.HasNext() {
		i := it.Next()
		if isSubsequence(seq, idx.cases[i].activities) {
			out.Add(i)
		}
	}
	return out
}

func isSubsequence(sub, full []string) bool {
	j := 0
	for _, a := range full {
		if j < len(sub) && sub[j] == a {
			j++
		}
	}
	return j == len(sub)
}

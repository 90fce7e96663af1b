package risk

import (
	"sort"
	"strings"
)

// candidate is one piece of background knowledge about a case.
type candidate struct {
	// counts is used for set and multiset knowledge.
	counts map[string]int
	// seq is used for sequence knowledge.
	seq []string
}

// combinations calls fn with every k-subset of 0..n-1 in lexicographic
// order until fn returns false.
func combinations(n, k int, fn func([]int) bool) {
	if k <= 0 || k > n {
		return
	}
	idx := make([]int, k)
	for i := range idx {
		idx[i] = i
	}
	for {
		if !fn(idx) {
			return
		}
		i := k - 1
		for i >= 0 && idx[i] == n-k+i {
			i--
		}
		if i < 0 {
			return
		}
		idx[i]++
		for j := i + 1; j < k; j++ {
			idx[j] = idx[j-1] + 1
		}
	}
}

// enumerate returns the distinct candidates of length l for activities.
// At most limit candidates are returned; the scan itself is bounded so
// that long traces with many repeats stay cheap.
func enumerate(kind BKType, activities []string, l, limit int) []candidate {
	if limit <= 0 {
		limit = DefaultOptions().MaxCandidatesPerCase
	}

	var pool []string
	switch kind {
	case BKSet:
		seen := make(map[string]bool)
		for _, a := range activities {
			if !seen[a] {
				seen[a] = true
				pool = append(pool, a)
			}
		}
		sort.Strings(pool)
	case BKMultiset:
		pool = append(pool, activities...)
		sort.Strings(pool)
	default:
		pool = activities
	}

	var out []candidate
	dedup := make(map[string]bool)
	steps, maxSteps := 0, limit*16
	parts := make([]string, l)

	combinations(len(pool), l, func(pos []int) bool {
		steps++
		for i, p := range pos {
			parts[i] = pool[p]
		}
		key := strings.Join(parts, "\x1f")
		if !dedup[key] {
			dedup[key] = true
			c := candidate{}
			if kind == BKSequence {
				c.seq = append([]string(nil), parts...)
			} else {
				c.counts = make(map[string]int, l)
				for _, a := range parts {
					c.counts[a]++
				}
			}
			out = append(out, c)
		}
		return len(out) < limit && steps < maxSteps
	})
	return out
}

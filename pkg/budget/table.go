// Package budget holds per-node execution budgets of a process tree and the
// annotator that derives them from observed leaf firing counts.
//
// Budgets are keyed by (node, parent) so that a node's remaining firings
// are tracked per enclosing composite. Mutations made while generating
// traces are journaled; callers take a Savepoint before a tentative
// attempt and Rollback to it when the attempt fails.
package budget

import (
	"sort"

	"github.com/logflow/simlog/pkg/processtree"
)

// Key identifies a budget entry: a node under a specific parent.
type Key struct {
	Node   int
	Parent int
}

// RootKey returns the key of the root budget, i.e. the number of traces.
func RootKey(tree *processtree.Tree) Key {
	return Key{Node: tree.Root.ID, Parent: processtree.NoParent}
}

// KeyOf returns the key of n under its own parent.
func KeyOf(n *processtree.Node) Key {
	return Key{Node: n.ID, Parent: n.ParentID()}
}

type change struct {
	key   Key
	delta int
}

// Table maps (node, parent) to a remaining execution count.
type Table struct {
	counts  map[Key]int
	journal []change

	decrements int64
	restores   int64
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{counts: make(map[Key]int)}
}

// Get returns the remaining budget for k (0 when unset).
func (t *Table) Get(k Key) int {
	return t.counts[k]
}

// Has reports whether k has been assigned.
func (t *Table) Has(k Key) bool {
	_, ok := t.counts[k]
	return ok
}

// Set assigns a budget without journaling. Used during annotation.
func (t *Table) Set(k Key, v int) {
	t.counts[k] = v
}

// Decrement takes one unit from k. It returns false and leaves the table
// untouched when the budget is already zero.
func (t *Table) Decrement(k Key) bool {
	if t.counts[k] <= 0 {
		return false
	}
	t.counts[k]--
	t.journal = append(t.journal, change{key: k, delta: -1})
	t.decrements++
	return true
}

// Savepoint marks the current journal position.
func (t *Table) Savepoint() int {
	return len(t.journal)
}

// Rollback undoes every journaled change made after sp.
func (t *Table) Rollback(sp int) {
	for i := len(t.journal) - 1; i >= sp; i-- {
		c := t.journal[i]
		t.counts[c.key] -= c.delta
		t.restores++
	}
	t.journal = t.journal[:sp]
}

// Commit forgets the journal; committed changes can no longer be rolled back.
func (t *Table) Commit() {
	t.journal = t.journal[:0]
}

// Stats reports how many units were taken and how many were given back by
// rollbacks over the table's lifetime.
func (t *Table) Stats() (decrements, restores int64) {
	return t.decrements, t.restores
}

// Len returns the number of assigned entries.
func (t *Table) Len() int {
	return len(t.counts)
}

// Keys returns all keys ordered by node then parent.
func (t *Table) Keys() []Key {
	keys := make([]Key, 0, len(t.counts))
	for k := range t.counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Node != keys[j].Node {
			return keys[i].Node < keys[j].Node
		}
		return keys[i].Parent < keys[j].Parent
	})
	return keys
}

// Negative returns the keys whose budget is below zero.
func (t *Table) Negative() []Key {
	var out []Key
	for _, k := range t.Keys() {
		if t.counts[k] < 0 {
			out = append(out, k)
		}
	}
	return out
}

// Clone returns an independent copy with an empty journal.
func (t *Table) Clone() *Table {
	c := &Table{counts: make(map[Key]int, len(t.counts))}
	for k, v := range t.counts {
		c.counts[k] = v
	}
	return c
}

// Equal reports whether both tables hold the same entries.
func (t *Table) Equal(o *Table) bool {
	if len(t.counts) != len(o.counts) {
		return false
	}
	for k, v := range t.counts {
		ov, ok := o.counts[k]
		if !ok || ov != v {
			return false
		}
	}
	return true
}

// Consumed returns, per key, how much budget was spent going from before
// to after. Keys with no change are omitted.
func Consumed(before, after *Table) map[Key]int {
	out := make(map[Key]int)
	for k, v := range before.counts {
		if d := v - after.counts[k]; d != 0 {
			out[k] = d
		}
	}
	return out
}

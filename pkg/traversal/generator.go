// Package traversal generates execution sequences from a budget-annotated
// process tree. Every generated sequence consumes budget along the path it
// takes; a branch that cannot be completed is rolled back atomically, so
// the produced multiset of traces respects every (node, parent) budget.
package traversal

import (
	"context"
	"math/rand/v2"

	"github.com/logflow/simlog/pkg/budget"
	serrors "github.com/logflow/simlog/pkg/errors"
	"github.com/logflow/simlog/pkg/processtree"
)

// Config bounds and tunes generation.
type Config struct {
	// MaxFailedAttempts caps consecutive failed root attempts before the
	// budgets are reported as inconsistent.
	MaxFailedAttempts int

	// ForceDrainAt is the remaining LOOP budget at which the loop fires all
	// of its remaining redo budget in one go. Negative disables draining.
	ForceDrainAt int
}

// DefaultConfig returns the default generation settings.
func DefaultConfig() Config {
	return Config{
		MaxFailedAttempts: 1000,
		ForceDrainAt:      1,
	}
}

// Sequence is one generated execution: leaves in firing order. Silent
// leaves are included.
type Sequence []*processtree.Node

// Labels returns the visible activity labels of the sequence.
func (s Sequence) Labels() []string {
	out := make([]string, 0, len(s))
	for _, n := range s {
		if !n.IsSilent() {
			out = append(out, n.Label)
		}
	}
	return out
}

// Result is the outcome of a full traversal.
type Result struct {
	Traces   []Sequence
	Attempts int
	Failures int
	Draws    int64

	// RemainingRoot is the root budget left when generation stopped.
	RemainingRoot int
}

// Generator draws sequences from tree while consuming table. The table is
// mutated in place; pass a clone to keep the annotated original.
type Generator struct {
	tree  *processtree.Tree
	table *budget.Table
	cfg   Config
	rng   *rand.Rand

	draws    int64
	failedAt *processtree.Node
}

// New returns a generator with a PCG source seeded from seed.
func New(tree *processtree.Tree, table *budget.Table, cfg Config, seed uint64) *Generator {
	if cfg.MaxFailedAttempts <= 0 {
		cfg.MaxFailedAttempts = DefaultConfig().MaxFailedAttempts
	}
	return &Generator{
		tree:  tree,
		table: table,
		cfg:   cfg,
		rng:   rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// Table returns the table being consumed.
func (g *Generator) Table() *budget.Table {
	return g.table
}

// Run generates traces until the root budget is exhausted.
//
// A failed attempt leaves the table exactly as it was. If the attempt drew
// no random numbers, retrying would fail the same way, so generation stops
// at once; otherwise it stops after MaxFailedAttempts consecutive failures.
// Both cases return a CodeBudgetInconsistency error together with the
// traces produced so far.
func (g *Generator) Run(ctx context.Context) (*Result, error) {
	rootKey := budget.RootKey(g.tree)
	res := &Result{}
	consecutive := 0

	for g.table.Get(rootKey) > 0 {
		select {
		case <-ctx.Done():
			res.Draws = g.draws
			res.RemainingRoot = g.table.Get(rootKey)
			return res, serrors.ContextCanceled("generate traces")
		default:
		}

		drawsBefore := g.draws
		seq, ok := g.Next()
		res.Attempts++

		if ok {
			// The root budget is taken after the attempt: a root LOOP reads
			// its own budget including the trace being generated.
			g.table.Decrement(rootKey)
			g.table.Commit()
			res.Traces = append(res.Traces, seq)
			consecutive = 0
			continue
		}

		res.Failures++
		consecutive++
		deterministic := g.draws == drawsBefore
		if deterministic || consecutive >= g.cfg.MaxFailedAttempts {
			res.Draws = g.draws
			res.RemainingRoot = g.table.Get(rootKey)
			err := serrors.New(serrors.CodeBudgetInconsistency, "budgets cannot be fully consumed").
				WithContext("remaining_traces", res.RemainingRoot).
				WithContext("generated", len(res.Traces)).
				WithContext("consecutive_failures", consecutive).
				WithContext("deterministic", deterministic)
			if g.failedAt != nil {
				err = err.WithContext("failed_at", g.failedAt.String())
			}
			return res, err
		}
	}

	res.Draws = g.draws
	res.RemainingRoot = g.table.Get(rootKey)
	return res, nil
}

// Next performs one root-level attempt without touching the root budget.
// On failure the table is unchanged.
func (g *Generator) Next() (Sequence, bool) {
	g.failedAt = nil
	sp := g.table.Savepoint()
	seq, ok := g.exec(g.tree.Root)
	if !ok {
		g.table.Rollback(sp)
	}
	return seq, ok
}

func (g *Generator) fail(n *processtree.Node) (Sequence, bool) {
	if g.failedAt == nil {
		g.failedAt = n
	}
	return nil, false
}

func edge(child, parent *processtree.Node) budget.Key {
	return budget.Key{Node: child.ID, Parent: parent.ID}
}

// fire takes one unit of child's budget under parent and executes it.
// On failure the decrement is left for the caller's rollback.
func (g *Generator) fire(child, parent *processtree.Node) (Sequence, bool) {
	if !g.table.Decrement(edge(child, parent)) {
		return g.fail(child)
	}
	return g.exec(child)
}

func (g *Generator) exec(n *processtree.Node) (Sequence, bool) {
	switch n.Operator {
	case processtree.None:
		return Sequence{n}, true
	case processtree.Xor:
		return g.execXor(n)
	case processtree.Sequence:
		return g.execSequence(n)
	case processtree.Parallel:
		return g.execParallel(n)
	case processtree.Loop:
		return g.execLoop(n)
	default:
		return g.fail(n)
	}
}

// execXor fires the first child with budget left. Other branches are not
// tried when it fails.
func (g *Generator) execXor(n *processtree.Node) (Sequence, bool) {
	for _, c := range n.Children {
		if g.table.Get(edge(c, n)) <= 0 {
			continue
		}
		sp := g.table.Savepoint()
		seq, ok := g.fire(c, n)
		if !ok {
			g.table.Rollback(sp)
			return nil, false
		}
		return seq, true
	}
	return g.fail(n)
}

// execSequence fires every child in order. A child without budget is a gap
// and fails the whole sequence.
func (g *Generator) execSequence(n *processtree.Node) (Sequence, bool) {
	sp := g.table.Savepoint()
	var out Sequence
	for _, c := range n.Children {
		seq, ok := g.fire(c, n)
		if !ok {
			g.table.Rollback(sp)
			return nil, false
		}
		out = append(out, seq...)
	}
	return out, true
}

// execParallel fires every child that has budget, in declaration order,
// and concatenates their output.
func (g *Generator) execParallel(n *processtree.Node) (Sequence, bool) {
	var eligible []*processtree.Node
	for _, c := range n.Children {
		if g.table.Get(edge(c, n)) > 0 {
			eligible = append(eligible, c)
		}
	}
	if len(eligible) == 0 {
		return g.fail(n)
	}

	sp := g.table.Savepoint()
	var out Sequence
	for _, c := range eligible {
		seq, ok := g.fire(c, n)
		if !ok {
			g.table.Rollback(sp)
			return nil, false
		}
		out = append(out, seq...)
	}
	return out, true
}

// execLoop emits body (redo body)*. After each body it stops with
// probability remaining/bodyLeft, where remaining is the loop's own budget
// under its parent. At ForceDrainAt the remaining redo budget is spent.
func (g *Generator) execLoop(n *processtree.Node) (Sequence, bool) {
	body, redo := n.Children[0], n.Children[1]
	bodyKey, redoKey, ownKey := edge(body, n), edge(redo, n), budget.KeyOf(n)

	sp := g.table.Savepoint()
	out, ok := g.fire(body, n)
	if !ok {
		g.table.Rollback(sp)
		return nil, false
	}

	again := func() bool {
		seq, ok := g.fire(redo, n)
		if !ok {
			return false
		}
		out = append(out, seq...)
		seq, ok = g.fire(body, n)
		if !ok {
			return false
		}
		out = append(out, seq...)
		return true
	}

	for g.table.Get(redoKey) > 0 && g.table.Get(bodyKey) > 0 {
		remaining := g.table.Get(ownKey)

		if remaining == g.cfg.ForceDrainAt {
			for g.table.Get(redoKey) > 0 && g.table.Get(bodyKey) > 0 {
				if !again() {
					g.table.Rollback(sp)
					return nil, false
				}
			}
			break
		}

		pStop := float64(remaining) / float64(g.table.Get(bodyKey))
		if g.draw() < pStop {
			break
		}
		if !again() {
			g.table.Rollback(sp)
			return nil, false
		}
	}
	return out, true
}

func (g *Generator) draw() float64 {
	g.draws++
	return g.rng.Float64()
}

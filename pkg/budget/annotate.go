package budget

import (
	serrors "github.com/logflow/simlog/pkg/errors"
	"github.com/logflow/simlog/pkg/processtree"
)

// Source supplies the observed firing count of a leaf by name.
type Source interface {
	Count(name string) (int, bool)
}

// Annotator derives budgets for every node of a tree.
type Annotator struct {
	// Strict requires all positive child budgets of a SEQUENCE or PARALLEL
	// node to agree. When false the first positive budget is used.
	Strict bool
}

// NewAnnotator returns an annotator.
func NewAnnotator(strict bool) *Annotator {
	return &Annotator{Strict: strict}
}

// Annotate builds a fresh table: leaf budgets from src, composite budgets
// propagated bottom-up. The same tree and source always yield an equal table.
func (a *Annotator) Annotate(tree *processtree.Tree, src Source) (*Table, error) {
	table := NewTable()
	if err := AssignLeaves(tree, src, table); err != nil {
		return nil, err
	}
	if _, err := a.assign(tree.Root, table); err != nil {
		return nil, err
	}
	return table, nil
}

// AssignLeaves sets budget[leaf][parent] for every parent→leaf edge,
// visiting the tree breadth-first. Pairs already present are kept.
func AssignLeaves(tree *processtree.Tree, src Source, table *Table) error {
	if tree.Root.IsLeaf() {
		return assignLeaf(tree.Root, src, table)
	}

	queue := []*processtree.Node{tree.Root}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		for _, child := range n.Children {
			if child.IsLeaf() {
				if err := assignLeaf(child, src, table); err != nil {
					return err
				}
				continue
			}
			queue = append(queue, child)
		}
	}
	return nil
}

func assignLeaf(leaf *processtree.Node, src Source, table *Table) error {
	k := KeyOf(leaf)
	if table.Has(k) {
		return nil
	}
	count, ok := src.Count(leaf.Name)
	if !ok {
		return serrors.MissingFrequency(leaf.Name)
	}
	if count < 0 {
		return serrors.New(serrors.CodeBudgetInconsistency, "negative firing count").
			WithContext("leaf", leaf.Name).
			WithContext("count", count)
	}
	table.Set(k, count)
	return nil
}

func (a *Annotator) assign(n *processtree.Node, table *Table) (int, error) {
	k := KeyOf(n)
	if table.Has(k) {
		return table.Get(k), nil
	}

	switch n.Operator {
	case processtree.None:
		// Leaves are assigned by AssignLeaves; reaching one here means the
		// source skipped it.
		return 0, serrors.MissingFrequency(n.Name)

	case processtree.Xor:
		total := 0
		for _, c := range n.Children {
			v, err := a.assign(c, table)
			if err != nil {
				return 0, err
			}
			total += v
		}
		table.Set(k, total)

	case processtree.Sequence, processtree.Parallel:
		rep, found := 0, false
		for _, c := range n.Children {
			v, err := a.assign(c, table)
			if err != nil {
				return 0, err
			}
			if v <= 0 {
				continue
			}
			if !found {
				rep, found = v, true
				continue
			}
			if a.Strict && v != rep {
				return 0, serrors.New(serrors.CodeBudgetMismatch, "children disagree on execution count").
					WithContext("node", n.String()).
					WithContext("expected", rep).
					WithContext("child", c.String()).
					WithContext("got", v)
			}
		}
		table.Set(k, rep)

	case processtree.Loop:
		body, err := a.assign(n.Children[0], table)
		if err != nil {
			return 0, err
		}
		redo, err := a.assign(n.Children[1], table)
		if err != nil {
			return 0, err
		}
		if body < redo {
			return 0, serrors.New(serrors.CodeBudgetInconsistency, "loop redo fires more often than its body").
				WithContext("node", n.String()).
				WithContext("body", body).
				WithContext("redo", redo)
		}
		table.Set(k, body-redo)

	default:
		return 0, serrors.MalformedTree(n.String(), "unknown operator")
	}

	return table.Get(k), nil
}

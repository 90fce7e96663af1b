// Package processtree models block-structured process trees: leaves carry
// activities (or are silent), inner nodes combine their children with the
// XOR, SEQUENCE, PARALLEL or LOOP operator.
//
// A Tree owns its nodes. Nodes are numbered in pre-order so other packages
// can key per-node state by integer ID instead of by pointer.
package processtree

import (
	"fmt"
	"strings"

	serrors "github.com/logflow/simlog/pkg/errors"
)

// Operator is the control-flow operator of a node. None marks a leaf.
type Operator uint8

const (
	None Operator = iota
	Xor
	Sequence
	Parallel
	Loop
)

// String returns the operator name.
func (o Operator) String() string {
	switch o {
	case None:
		return "none"
	case Xor:
		return "xor"
	case Sequence:
		return "sequence"
	case Parallel:
		return "parallel"
	case Loop:
		return "loop"
	default:
		return "unknown"
	}
}

// Symbol returns the operator's symbol in the textual notation.
func (o Operator) Symbol() string {
	switch o {
	case Xor:
		return "X"
	case Sequence:
		return "->"
	case Parallel:
		return "+"
	case Loop:
		return "*"
	default:
		return ""
	}
}

// ParseOperator accepts an operator name or symbol.
func ParseOperator(s string) (Operator, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none", "leaf":
		return None, nil
	case "xor", "x", "choice":
		return Xor, nil
	case "sequence", "seq", "->":
		return Sequence, nil
	case "parallel", "and", "+":
		return Parallel, nil
	case "loop", "*":
		return Loop, nil
	default:
		return None, fmt.Errorf("unknown operator %q", s)
	}
}

// NoParent is the parent ID used for the root.
const NoParent = -1

// Node is one node of a process tree.
type Node struct {
	// ID is the pre-order index assigned by the owning Tree.
	ID int

	Operator Operator

	// Label is the activity of a visible leaf. Empty for silent leaves
	// and operator nodes.
	Label string

	// Name identifies the leaf when looking up firing counts.
	Name string

	Children []*Node

	// Parent is a navigation-only back reference; nil for the root.
	Parent *Node
}

// NewLeaf returns a visible leaf for the given activity.
func NewLeaf(label string) *Node {
	return &Node{Operator: None, Label: label}
}

// NewSilent returns a silent (tau) leaf.
func NewSilent() *Node {
	return &Node{Operator: None}
}

// NewOperator returns an inner node over children.
func NewOperator(op Operator, children ...*Node) *Node {
	return &Node{Operator: op, Children: children}
}

// Named sets the leaf's frequency name and returns the node.
func (n *Node) Named(name string) *Node {
	n.Name = name
	return n
}

// IsLeaf reports whether the node is a leaf.
func (n *Node) IsLeaf() bool {
	return n.Operator == None
}

// IsSilent reports whether the node is a leaf without an activity.
func (n *Node) IsSilent() bool {
	return n.Operator == None && n.Label == ""
}

// ParentID returns the parent's ID or NoParent for the root.
func (n *Node) ParentID() int {
	if n.Parent == nil {
		return NoParent
	}
	return n.Parent.ID
}

// String renders the subtree in the textual notation.
func (n *Node) String() string {
	var sb strings.Builder
	render(&sb, n, nil)
	return sb.String()
}

// Tree is a rooted process tree with dense pre-order node IDs.
type Tree struct {
	Root  *Node
	nodes []*Node
}

// NewTree links parents, assigns IDs and default leaf names, and validates
// the shape of every operator node.
func NewTree(root *Node) (*Tree, error) {
	if root == nil {
		return nil, serrors.New(serrors.CodeMalformedTree, "tree has no root")
	}

	t := &Tree{Root: root}
	seen := make(map[*Node]bool)
	silent := 0

	var visit func(n, parent *Node) error
	visit = func(n, parent *Node) error {
		if n == nil {
			return serrors.MalformedTree(parent.String(), "nil child")
		}
		if seen[n] {
			return serrors.MalformedTree(n.String(), "node appears under more than one parent")
		}
		seen[n] = true

		n.Parent = parent
		n.ID = len(t.nodes)
		t.nodes = append(t.nodes, n)

		if n.IsLeaf() && n.Name == "" {
			if n.IsSilent() {
				silent++
				n.Name = fmt.Sprintf("tau_%d", silent)
			} else {
				n.Name = n.Label
			}
		}

		if err := checkShape(n); err != nil {
			return err
		}
		for _, c := range n.Children {
			if err := visit(c, n); err != nil {
				return err
			}
		}
		return nil
	}

	if err := visit(root, nil); err != nil {
		return nil, err
	}
	return t, nil
}

func checkShape(n *Node) error {
	switch n.Operator {
	case None:
		if len(n.Children) > 0 {
			return serrors.MalformedTree(n.String(), "leaf has children").
				WithContext("children", len(n.Children))
		}
	case Loop:
		if len(n.Children) != 2 {
			return serrors.MalformedTree(n.String(), "loop needs exactly two children (body, redo)").
				WithContext("children", len(n.Children))
		}
	case Xor, Sequence, Parallel:
		if len(n.Children) == 0 {
			return serrors.MalformedTree(n.String(), "operator has no children").
				WithContext("operator", n.Operator.String())
		}
	default:
		return serrors.MalformedTree(n.String(), "unknown operator").
			WithContext("operator", int(n.Operator))
	}
	return nil
}

// Len returns the number of nodes.
func (t *Tree) Len() int {
	return len(t.nodes)
}

// Node returns the node with the given ID, or nil.
func (t *Tree) Node(id int) *Node {
	if id < 0 || id >= len(t.nodes) {
		return nil
	}
	return t.nodes[id]
}

// Nodes returns all nodes in pre-order.
func (t *Tree) Nodes() []*Node {
	return t.nodes
}

// Leaves returns the leaves in pre-order.
func (t *Tree) Leaves() []*Node {
	var leaves []*Node
	for _, n := range t.nodes {
		if n.IsLeaf() {
			leaves = append(leaves, n)
		}
	}
	return leaves
}

// CheckDistinctNames fails when two leaves share a frequency name. Counts
// taken per activity from a log cannot tell such leaves apart; giving one
// of them an explicit @name resolves it.
func (t *Tree) CheckDistinctNames() error {
	first := make(map[string]*Node)
	for _, n := range t.Leaves() {
		prev, ok := first[n.Name]
		if !ok {
			first[n.Name] = n
			continue
		}
		return serrors.MalformedTree(n.String(), "leaves share a frequency name; set an explicit @name on one of them").
			WithContext("name", n.Name).
			WithContext("first_id", prev.ID).
			WithContext("second_id", n.ID)
	}
	return nil
}

// Activities returns the distinct visible labels in pre-order.
func (t *Tree) Activities() []string {
	seen := make(map[string]bool)
	var out []string
	for _, n := range t.nodes {
		if n.IsLeaf() && !n.IsSilent() && !seen[n.Label] {
			seen[n.Label] = true
			out = append(out, n.Label)
		}
	}
	return out
}

// Depth returns the length of the longest root-to-leaf path in nodes.
func (t *Tree) Depth() int {
	var depth func(n *Node) int
	depth = func(n *Node) int {
		d := 0
		for _, c := range n.Children {
			if cd := depth(c); cd > d {
				d = cd
			}
		}
		return d + 1
	}
	return depth(t.Root)
}

// String renders the tree in the textual notation.
func (t *Tree) String() string {
	var sb strings.Builder
	silent := 0
	render(&sb, t.Root, &silent)
	return sb.String()
}

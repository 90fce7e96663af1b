package budget

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/logflow/simlog/pkg/processtree"
)

// Snapshot renders the table for auditing. Each node with at least one
// entry maps "<id> <subtree>" to "{<parent id>: <remaining>, ...}", with
// the root's parent written as None.
func (t *Table) Snapshot(tree *processtree.Tree) map[string]string {
	byNode := make(map[int][]Key)
	var order []int
	for _, k := range t.Keys() {
		if _, ok := byNode[k.Node]; !ok {
			order = append(order, k.Node)
		}
		byNode[k.Node] = append(byNode[k.Node], k)
	}

	snap := make(map[string]string, len(order))
	for _, id := range order {
		var sb strings.Builder
		sb.WriteByte('{')
		for i, k := range byNode[id] {
			if i > 0 {
				sb.WriteString(", ")
			}
			if k.Parent == processtree.NoParent {
				sb.WriteString("None")
			} else {
				fmt.Fprintf(&sb, "%d", k.Parent)
			}
			fmt.Fprintf(&sb, ": %d", t.counts[k])
		}
		sb.WriteByte('}')
		snap[nodeKey(tree, id)] = sb.String()
	}
	return snap
}

func nodeKey(tree *processtree.Tree, id int) string {
	if n := tree.Node(id); n != nil {
		return fmt.Sprintf("%d %s", id, n.String())
	}
	return fmt.Sprintf("%d", id)
}

// WriteSnapshot encodes a snapshot as indented JSON with sorted keys.
func WriteSnapshot(w io.Writer, snap map[string]string) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(snap)
}

package processtree

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	serrors "github.com/logflow/simlog/pkg/errors"
)

// jsonNode is the JSON wire form of a node.
type jsonNode struct {
	Operator string      `json:"operator,omitempty"`
	Label    string      `json:"label,omitempty"`
	Name     string      `json:"name,omitempty"`
	Children []*jsonNode `json:"children,omitempty"`
}

func toJSON(n *Node) *jsonNode {
	jn := &jsonNode{Label: n.Label, Name: n.Name}
	if !n.IsLeaf() {
		jn.Operator = n.Operator.String()
	}
	for _, c := range n.Children {
		jn.Children = append(jn.Children, toJSON(c))
	}
	return jn
}

func fromJSON(jn *jsonNode) (*Node, error) {
	if jn == nil {
		return nil, serrors.New(serrors.CodeParseFailed, "null tree node")
	}
	op, err := ParseOperator(jn.Operator)
	if err != nil {
		return nil, serrors.Wrap(err, serrors.CodeParseFailed, "invalid tree node")
	}
	n := &Node{Operator: op, Label: jn.Label, Name: jn.Name}
	for _, jc := range jn.Children {
		c, err := fromJSON(jc)
		if err != nil {
			return nil, err
		}
		n.Children = append(n.Children, c)
	}
	return n, nil
}

// MarshalJSON encodes the tree as nested JSON nodes.
func (t *Tree) MarshalJSON() ([]byte, error) {
	return json.Marshal(toJSON(t.Root))
}

// DecodeJSON reads a tree in JSON form.
func DecodeJSON(r io.Reader) (*Tree, error) {
	var root jsonNode
	if err := json.NewDecoder(r).Decode(&root); err != nil {
		return nil, serrors.Wrap(err, serrors.CodeParseFailed, "decode tree json")
	}
	n, err := fromJSON(&root)
	if err != nil {
		return nil, err
	}
	return NewTree(n)
}

// Load reads a tree file. Files ending in .json are decoded as JSON,
// anything else is parsed as textual notation.
func Load(path string) (*Tree, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, serrors.FileNotFound(path)
		}
		return nil, fmt.Errorf("open tree: %w", err)
	}
	defer f.Close()

	if strings.EqualFold(filepath.Ext(path), ".json") {
		return DecodeJSON(f)
	}

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read tree: %w", err)
	}
	t, err := Parse(string(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

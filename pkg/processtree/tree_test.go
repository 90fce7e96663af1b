package processtree

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	serrors "github.com/logflow/simlog/pkg/errors"
)

func TestParse_RoundTrip(t *testing.T) {
	tests := []string{
		"'A'",
		"->( 'A', X( 'B', 'C' ) )",
		"*( 'D', 'E' )",
		"->( 'start', +( 'x', 'y' ), X( tau, 'z' ), *( ->( 'a', 'b' ), tau ) )",
		"X( 'A'@A_first, tau@skip, 'it\\'s' )",
	}

	for _, src := range tests {
		tree, err := Parse(src)
		if err != nil {
			t.Fatalf("Parse(%q) failed: %v", src, err)
		}
		if got := tree.String(); got != src {
			t.Errorf("round trip: got %q, want %q", got, src)
		}
	}
}

func TestParse_IDsAndNames(t *testing.T) {
	tree, err := Parse("->( 'A', X( tau, 'B', tau ), 'A'@A_2 )")
	if err != nil {
		t.Fatal(err)
	}

	if tree.Len() != 6 {
		t.Fatalf("expected 6 nodes, got %d", tree.Len())
	}
	for i, n := range tree.Nodes() {
		if n.ID != i {
			t.Errorf("node %d has ID %d", i, n.ID)
		}
	}

	wantNames := []string{"A", "tau_1", "B", "tau_2", "A_2"}
	var gotNames []string
	for _, l := range tree.Leaves() {
		gotNames = append(gotNames, l.Name)
	}
	if len(gotNames) != len(wantNames) {
		t.Fatalf("leaves = %v, want %v", gotNames, wantNames)
	}
	for i := range wantNames {
		if gotNames[i] != wantNames[i] {
			t.Errorf("leaf %d name = %q, want %q", i, gotNames[i], wantNames[i])
		}
	}

	if tree.Root.ParentID() != NoParent {
		t.Error("root should report NoParent")
	}
	xor := tree.Node(2)
	if xor.Operator != Xor || xor.Parent != tree.Root {
		t.Errorf("node 2 should be the XOR under the root, got %s", xor)
	}
	if acts := tree.Activities(); len(acts) != 2 || acts[0] != "A" || acts[1] != "B" {
		t.Errorf("Activities() = %v", acts)
	}
	if tree.Depth() != 3 {
		t.Errorf("Depth() = %d, want 3", tree.Depth())
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		code serrors.Code
	}{
		{"empty", "", serrors.CodeParseFailed},
		{"unterminated", "->( 'A", serrors.CodeParseFailed},
		{"missing paren", "->( 'A', 'B'", serrors.CodeParseFailed},
		{"trailing", "'A' 'B'", serrors.CodeParseFailed},
		{"unknown operator", "O( 'A' )", serrors.CodeParseFailed},
		{"loop with one child", "*( 'A' )", serrors.CodeMalformedTree},
		{"loop with three children", "*( 'A', 'B', 'C' )", serrors.CodeMalformedTree},
		{"empty xor", "X( )", serrors.CodeMalformedTree},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.src)
			if err == nil {
				t.Fatal("expected error")
			}
			if !serrors.IsCode(err, tt.code) {
				t.Errorf("expected code %s, got %v", tt.code, err)
			}
		})
	}
}

func TestNewTree_RejectsSharedNode(t *testing.T) {
	shared := NewLeaf("A")
	root := NewOperator(Sequence, shared, NewOperator(Xor, shared, NewLeaf("B")))

	_, err := NewTree(root)
	if !serrors.IsCode(err, serrors.CodeMalformedTree) {
		t.Fatalf("expected malformed tree error, got %v", err)
	}
}

func TestCheckDistinctNames(t *testing.T) {
	tests := []struct {
		src string
		ok  bool
	}{
		{"X( ->( 'A', 'B' ), ->( 'C', 'A' ) )", false},
		{"X( ->( 'A', 'B' ), ->( 'C', 'A'@A_late ) )", true},
		{"->( 'A', X( tau, tau ) )", true},
		{"->( 'A', tau@A )", false},
	}
	for _, tt := range tests {
		tree, err := Parse(tt.src)
		if err != nil {
			t.Fatalf("Parse(%q): %v", tt.src, err)
		}
		err = tree.CheckDistinctNames()
		if tt.ok && err != nil {
			t.Errorf("%s: unexpected error %v", tt.src, err)
		}
		if !tt.ok && !serrors.IsCode(err, serrors.CodeMalformedTree) {
			t.Errorf("%s: expected malformed tree, got %v", tt.src, err)
		}
	}
}

func TestNotation_QuotedNames(t *testing.T) {
	root := NewOperator(Sequence, NewLeaf("A").Named("first A"), NewSilent().Named("skip it's"), NewLeaf("B").Named("b.2"))
	tree, err := NewTree(root)
	if err != nil {
		t.Fatal(err)
	}

	src := tree.String()
	parsed, err := Parse(src)
	if err != nil {
		t.Fatalf("Parse(%q): %v", src, err)
	}
	want := []string{"first A", "skip it's", "b.2"}
	for i, leaf := range parsed.Leaves() {
		if leaf.Name != want[i] {
			t.Errorf("leaf %d name = %q, want %q (notation %s)", i, leaf.Name, want[i], src)
		}
	}
	if parsed.String() != src {
		t.Errorf("round trip: got %q, want %q", parsed.String(), src)
	}

	if _, err := Parse("->( 'A'@, 'B' )"); !serrors.IsCode(err, serrors.CodeParseFailed) {
		t.Errorf("expected parse error for empty name, got %v", err)
	}
}

func TestJSON_RoundTrip(t *testing.T) {
	tree, err := Parse("->( 'A', X( 'B', tau ), *( 'C', 'D' ) )")
	if err != nil {
		t.Fatal(err)
	}

	data, err := json.Marshal(tree)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	decoded, err := DecodeJSON(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.String() != tree.String() {
		t.Errorf("json round trip: got %q, want %q", decoded.String(), tree.String())
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	textPath := filepath.Join(dir, "model.tree")
	if err := os.WriteFile(textPath, []byte("X( 'A', 'B' )\n"), 0644); err != nil {
		t.Fatal(err)
	}
	jsonPath := filepath.Join(dir, "model.json")
	jsonData := `{"operator":"loop","children":[{"label":"A"},{"name":"back"}]}`
	if err := os.WriteFile(jsonPath, []byte(jsonData), 0644); err != nil {
		t.Fatal(err)
	}

	tree, err := Load(textPath)
	if err != nil {
		t.Fatalf("Load text: %v", err)
	}
	if tree.Root.Operator != Xor {
		t.Errorf("expected XOR root, got %s", tree.Root.Operator)
	}

	tree, err = Load(jsonPath)
	if err != nil {
		t.Fatalf("Load json: %v", err)
	}
	if got := tree.String(); got != "*( 'A', tau@back )" {
		t.Errorf("unexpected tree %q", got)
	}

	if _, err := Load(filepath.Join(dir, "missing.tree")); !serrors.IsCode(err, serrors.CodeFileNotFound) {
		t.Errorf("expected file not found, got %v", err)
	}
}

func TestParseOperator(t *testing.T) {
	tests := []struct {
		in   string
		want Operator
	}{
		{"xor", Xor},
		{"->", Sequence},
		{"Parallel", Parallel},
		{"*", Loop},
		{"", None},
	}
	for _, tt := range tests {
		got, err := ParseOperator(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("ParseOperator(%q) = %v, %v; want %v", tt.in, got, err, tt.want)
		}
	}
	if _, err := ParseOperator("or"); err == nil {
		t.Error("expected error for unsupported operator")
	}
}

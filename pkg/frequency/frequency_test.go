package frequency

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/logflow/simlog/internal/model"
	serrors "github.com/logflow/simlog/pkg/errors"
)

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()

	files := map[string]string{
		"freq.json": `{"A": 3, "B": 2, "tau_1": 1}`,
		"freq.yaml": "A: 3\nB: 2\ntau_1: 1\n",
	}
	for name, content := range files {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}

		m, err := LoadFile(path)
		if err != nil {
			t.Fatalf("LoadFile(%s): %v", name, err)
		}
		if v, ok := m.Count("A"); !ok || v != 3 {
			t.Errorf("%s: A = %d, %v", name, v, ok)
		}
		if v, _ := m.Count("tau_1"); v != 1 {
			t.Errorf("%s: tau_1 = %d", name, v)
		}
		if _, ok := m.Count("missing"); ok {
			t.Errorf("%s: unexpected count for missing leaf", name)
		}
	}
}

func TestLoadFile_Errors(t *testing.T) {
	dir := t.TempDir()

	if _, err := LoadFile(filepath.Join(dir, "nope.json")); !serrors.IsCode(err, serrors.CodeFileNotFound) {
		t.Errorf("expected file not found, got %v", err)
	}

	bad := filepath.Join(dir, "bad.json")
	os.WriteFile(bad, []byte(`{"A": "three"}`), 0644)
	if _, err := LoadFile(bad); !serrors.IsCode(err, serrors.CodeParseFailed) {
		t.Errorf("expected parse error, got %v", err)
	}

	// A directory cannot be read as a file.
	asDir := filepath.Join(dir, "dir.json")
	if err := os.Mkdir(asDir, 0755); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFile(asDir); !serrors.IsCode(err, serrors.CodeParseFailed) {
		t.Errorf("expected coded read error, got %v", err)
	}

	txt := filepath.Join(dir, "freq.txt")
	os.WriteFile(txt, []byte(`A=1`), 0644)
	if _, err := LoadFile(txt); !serrors.IsCode(err, serrors.CodeParseFailed) {
		t.Errorf("expected parse error for unknown extension, got %v", err)
	}
}

func event(caseID, activity, lifecycle string) *model.Event {
	e := &model.Event{CaseID: []byte(caseID), Activity: []byte(activity)}
	if lifecycle != "" {
		e.Attributes = append(e.Attributes, model.Attribute{
			Key:   []byte(model.KeyLifecycle),
			Value: []byte(lifecycle),
		})
	}
	return e
}

func TestFromLog(t *testing.T) {
	log := model.GroupEvents("test", []*model.Event{
		event("1", "A", "start"),
		event("1", "A", "complete"),
		event("1", "B", "complete"),
		event("2", "A", "complete"),
	})

	all := FromLog(log, DefaultLogOptions(), Map{"tau_1": 4})
	if all["A"] != 3 || all["B"] != 1 || all["tau_1"] != 4 {
		t.Errorf("all lifecycles: %v", all)
	}

	opts := DefaultLogOptions()
	opts.AllLifecycle = false
	completeOnly := FromLog(log, opts, nil)
	if completeOnly["A"] != 2 {
		t.Errorf("complete only: A = %d, want 2", completeOnly["A"])
	}

	if names := all.Names(); len(names) != 3 || names[0] != "A" {
		t.Errorf("Names() = %v", names)
	}
}

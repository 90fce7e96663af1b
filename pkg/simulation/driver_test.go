package simulation

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/logflow/simlog/internal/model"
	"github.com/logflow/simlog/pkg/checkpoint"
	serrors "github.com/logflow/simlog/pkg/errors"
	"github.com/logflow/simlog/pkg/frequency"
	"github.com/logflow/simlog/pkg/logging"
	"github.com/logflow/simlog/pkg/parser"
	"github.com/logflow/simlog/pkg/processtree"
	"github.com/logflow/simlog/pkg/storage"
	"github.com/logflow/simlog/pkg/writer"
)

func mustInput(t *testing.T, name, src string, freq frequency.Map) *Input {
	t.Helper()
	tree, err := processtree.Parse(src)
	if err != nil {
		t.Fatal(err)
	}
	return &Input{Name: name, Tree: tree, Frequencies: freq}
}

func newDriver(t *testing.T, store storage.Store, mutate func(*Options)) *Driver {
	t.Helper()
	opts := DefaultOptions()
	opts.Replicates = 2
	if mutate != nil {
		mutate(&opts)
	}
	d, err := NewDriver(store, opts)
	if err != nil {
		t.Fatal(err)
	}
	return d.WithLogger(logging.Discard())
}

func TestRun_WritesArtifacts(t *testing.T) {
	ctx := context.Background()
	store, err := storage.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	in := mustInput(t, "hospital", "->( 'A', X( 'B', 'C' ) )", frequency.Map{"A": 3, "B": 2, "C": 1})

	var seen []ReplicateResult
	d := newDriver(t, store, func(o *Options) { o.Formats = []string{"xes", "parquet"} }).
		OnReplicate(func(r ReplicateResult) { seen = append(seen, r) })

	report, err := d.Run(ctx, []*Input{in})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(report.Replicates) != 2 || len(seen) != 2 {
		t.Fatalf("replicates = %d, callbacks = %d", len(report.Replicates), len(seen))
	}
	for _, rep := range report.Replicates {
		if rep.Traces != 3 || rep.Events != 6 || rep.Consumed == 0 {
			t.Errorf("replicate %d: %+v", rep.Replicate, rep)
		}
		if rep.Seed != 42+uint64(rep.Replicate) {
			t.Errorf("replicate %d seed = %d", rep.Replicate, rep.Seed)
		}
		if len(rep.Artifacts) != 4 {
			t.Errorf("replicate %d artifacts = %v", rep.Replicate, rep.Artifacts)
		}
	}

	for _, key := range []string{
		"hospital_dict_before1.json", "hospital_dict_after1.json",
		"Simulated_1_hospital.xes", "Simulated_2_hospital.parquet",
	} {
		if ok, _ := store.Exists(ctx, key); !ok {
			t.Errorf("missing artifact %s", key)
		}
	}

	data, err := storage.Get(ctx, store, "Simulated_2_hospital.xes")
	if err != nil {
		t.Fatal(err)
	}
	p, _ := parser.NewParser(parser.FormatXES, parser.DefaultConfig())
	log, err := parser.ReadLog(ctx, p, "sim", bytes.NewReader(data), parser.DefaultConfig())
	if err != nil {
		t.Fatalf("ReadLog: %v", err)
	}
	if len(log.Traces) != 3 {
		t.Errorf("exported log has %d traces", len(log.Traces))
	}

	var after map[string]string
	raw, _ := storage.Get(ctx, store, "hospital_dict_after1.json")
	if err := json.Unmarshal(raw, &after); err != nil {
		t.Fatalf("snapshot is not a string map: %v", err)
	}
	if after["0 "+in.Tree.Root.String()] != "{None: 0}" {
		t.Errorf("root after = %q", after["0 "+in.Tree.Root.String()])
	}
}

func TestReplicate_LeavesAnnotatedTableIntact(t *testing.T) {
	store, _ := storage.NewLocalStore(t.TempDir())
	d := newDriver(t, store, nil)
	p, err := d.Prepare(mustInput(t, "loop", "*( 'D', 'E' )", frequency.Map{"D": 4, "E": 2}))
	if err != nil {
		t.Fatal(err)
	}
	before := p.Table.Clone()

	for r := 1; r <= 3; r++ {
		if _, err := d.Replicate(context.Background(), p, r); err != nil {
			t.Fatalf("replicate %d: %v", r, err)
		}
	}
	if !p.Table.Equal(before) {
		t.Error("annotated table was consumed by a replicate")
	}
}

func TestRun_ResumeSkipsCompleted(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, _ := storage.NewLocalStore(filepath.Join(dir, "out"))
	backend, err := checkpoint.NewFileBackend(filepath.Join(dir, "cp"))
	if err != nil {
		t.Fatal(err)
	}
	in := mustInput(t, "h", "->( 'A', 'B' )", frequency.Map{"A": 2, "B": 2})

	first := newDriver(t, store, nil)
	first.WithCheckpoints(checkpoint.NewManager(backend, first.RunID()))
	if _, err := first.Run(ctx, []*Input{in}); err != nil {
		t.Fatal(err)
	}

	second := newDriver(t, store, func(o *Options) { o.Resume = true; o.Replicates = 3 })
	second.WithCheckpoints(checkpoint.NewManager(backend, second.RunID()))
	report, err := second.Run(ctx, []*Input{in})
	if err != nil {
		t.Fatal(err)
	}

	skipped := 0
	for _, rep := range report.Replicates {
		if rep.Skipped {
			skipped++
			if rep.Traces != 2 {
				t.Errorf("skipped replicate %d carries %d traces", rep.Replicate, rep.Traces)
			}
		}
	}
	if skipped != 2 || report.Replicates[2].Skipped {
		t.Errorf("skipped = %d, report = %+v", skipped, report.Replicates)
	}
	if traces, _ := report.Totals(); traces != 2 {
		t.Errorf("totals count %d traces, want only replicate 3", traces)
	}
	if first.RunID() == second.RunID() {
		t.Error("run IDs must differ")
	}
}

func TestRun_InconsistentBudgetsFailCheckpoint(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, _ := storage.NewLocalStore(dir)
	backend, _ := checkpoint.NewFileBackend(filepath.Join(dir, "cp"))

	d := newDriver(t, store, func(o *Options) { o.Strict = false })
	d.WithCheckpoints(checkpoint.NewManager(backend, d.RunID()))

	report, err := d.Run(ctx, []*Input{mustInput(t, "bad", "->( 'A', 'B' )", frequency.Map{"A": 2, "B": 1})})
	if !serrors.IsCode(err, serrors.CodeBudgetInconsistency) {
		t.Fatalf("expected budget inconsistency, got %v", err)
	}
	if len(report.Replicates) != 1 {
		t.Fatalf("run must stop at the failing replicate, got %d", len(report.Replicates))
	}
	if ok, _ := store.Exists(ctx, "bad_dict_after1.json"); !ok {
		t.Error("after snapshot should be written for a failed replicate")
	}
	if ok, _ := store.Exists(ctx, "Simulated_1_bad.xes"); ok {
		t.Error("no log may be exported for a failed replicate")
	}

	cp, err := backend.Load(ctx, checkpoint.ID("bad", 1))
	if err != nil {
		t.Fatal(err)
	}
	if cp.Phase != checkpoint.PhaseFailed || cp.Error == "" {
		t.Errorf("checkpoint = %+v", cp)
	}
}

func TestPrepare_StrictMismatch(t *testing.T) {
	store, _ := storage.NewLocalStore(t.TempDir())
	d := newDriver(t, store, nil)
	_, err := d.Prepare(mustInput(t, "m", "->( 'A', 'B' )", frequency.Map{"A": 2, "B": 1}))
	if !serrors.IsCode(err, serrors.CodeBudgetMismatch) {
		t.Errorf("expected budget mismatch, got %v", err)
	}
}

func TestNewDriver_Validation(t *testing.T) {
	store, _ := storage.NewLocalStore(t.TempDir())
	opts := DefaultOptions()
	opts.Replicates = 0
	if _, err := NewDriver(store, opts); !serrors.IsCode(err, serrors.CodeInvalidConfig) {
		t.Errorf("expected invalid config, got %v", err)
	}
	opts = DefaultOptions()
	opts.Formats = []string{"csv"}
	if _, err := NewDriver(store, opts); !serrors.IsCode(err, serrors.CodeWriteFailed) {
		t.Errorf("expected unsupported format, got %v", err)
	}
}

func TestLoadInput(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	write := func(name, content string) string {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
		return path
	}
	tree := write("h.tree", "->( 'A', X( 'B', tau ) )")

	ev := func(c, a string) *model.Event { return &model.Event{CaseID: []byte(c), Activity: []byte(a)} }
	var buf bytes.Buffer
	err := writer.NewXESWriter().WriteLog(ctx, &buf, model.GroupEvents("h", []*model.Event{
		ev("1", "A"), ev("1", "B"), ev("2", "A"),
	}))
	if err != nil {
		t.Fatal(err)
	}
	logPath := write("h.xes", buf.String())

	in, err := LoadInput(ctx, Source{
		Name:       "h",
		Tree:       tree,
		Log:        logPath,
		Silent:     frequency.Map{"tau_1": 1},
		LogOptions: frequency.DefaultLogOptions(),
	})
	if err != nil {
		t.Fatalf("LoadInput: %v", err)
	}
	if in.Frequencies["A"] != 2 || in.Frequencies["B"] != 1 || in.Frequencies["tau_1"] != 1 {
		t.Errorf("frequencies = %v", in.Frequencies)
	}

	freq := write("h.json", `{"A": 1, "B": 1, "tau_1": 0}`)
	in, err = LoadInput(ctx, Source{Name: "h", Tree: tree, Frequencies: freq, Log: logPath})
	if err != nil {
		t.Fatal(err)
	}
	if in.Frequencies["A"] != 1 {
		t.Errorf("frequency file must win over log, got %v", in.Frequencies)
	}

	if _, err := LoadInput(ctx, Source{Name: "h", Tree: tree}); !serrors.IsCode(err, serrors.CodeInvalidConfig) {
		t.Errorf("expected invalid config, got %v", err)
	}
}

func TestLoadInput_SharedLabelsNeedNames(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	write := func(name, content string) string {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
		return path
	}

	ev := func(c, a string) *model.Event { return &model.Event{CaseID: []byte(c), Activity: []byte(a)} }
	var buf bytes.Buffer
	err := writer.NewXESWriter().WriteLog(ctx, &buf, model.GroupEvents("dup", []*model.Event{
		ev("1", "A"), ev("1", "B"), ev("2", "C"), ev("2", "A"),
	}))
	if err != nil {
		t.Fatal(err)
	}
	logPath := write("dup.xes", buf.String())

	shared := write("shared.tree", "X( ->( 'A', 'B' ), ->( 'C', 'A' ) )")
	_, err = LoadInput(ctx, Source{Name: "dup", Tree: shared, Log: logPath, LogOptions: frequency.DefaultLogOptions()})
	if !serrors.IsCode(err, serrors.CodeMalformedTree) {
		t.Fatalf("expected malformed tree for shared label, got %v", err)
	}
	if !strings.Contains(err.Error(), "@name") {
		t.Errorf("error should point at @name: %v", err)
	}

	// A frequency file may name each leaf itself.
	freq := write("dup.json", `{"A": 1, "B": 1, "C": 1}`)
	if _, err := LoadInput(ctx, Source{Name: "dup", Tree: shared, Frequencies: freq}); err != nil {
		t.Errorf("frequency file input: %v", err)
	}
}

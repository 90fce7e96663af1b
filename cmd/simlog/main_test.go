package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/logflow/simlog/pkg/config"
	serrors "github.com/logflow/simlog/pkg/errors"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return p
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestSimulateThenRisk(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "h.tree", "->( 'A', X( 'B', 'C' ) )")
	writeFile(t, dir, "h.json", `{"A": 4, "B": 3, "C": 1}`)
	cfgFile := writeFile(t, dir, "simlog.yaml", fmt.Sprintf(`
simulation:
  replicates: 2
  parquet: true
inputs:
  - name: h
    tree: h.tree
    frequencies: h.json
output:
  dir: %q
  summary: Results/summary.csv
  report: Results/run.csv
checkpoint:
  backend: store
risk:
  max_bk_length: 2
  workers: 2
`, filepath.Join(dir, "out")))

	if _, err := execute(t, "simulate", "--config", cfgFile, "-q", "--log-level", "error"); err != nil {
		t.Fatalf("simulate: %v", err)
	}
	for _, f := range []string{
		"Simulated_1_h.xes", "Simulated_2_h.parquet", "h_dict_before2.json",
		"Results/run.csv", "checkpoints/h_r1.json",
	} {
		if _, err := os.Stat(filepath.Join(dir, "out", filepath.FromSlash(f))); err != nil {
			t.Errorf("missing %s: %v", f, err)
		}
	}

	if _, err := execute(t, "risk", "--config", cfgFile, "-q", "--log-level", "error"); err != nil {
		t.Fatalf("risk: %v", err)
	}
	summary, err := os.ReadFile(filepath.Join(dir, "out", "Results", "summary.csv"))
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(summary)), "\n")
	if len(lines) != 3 {
		t.Fatalf("summary has %d lines:\n%s", len(lines), summary)
	}
	if !strings.Contains(lines[0], "cd_Simulated_1_h") || !strings.Contains(lines[0], "cd_Simulated_2_h") {
		t.Errorf("header = %q", lines[0])
	}
}

func TestSelectedSources(t *testing.T) {
	defer func() { treePath, freqPath, logPath, inputName = "", "", "", "" }()

	c := config.Default()
	c.Inputs = []config.InputConfig{
		{Name: "a", Tree: "a.tree", Frequencies: "a.json"},
		{Name: "b", Tree: "b.tree", Log: "b.xes"},
	}

	srcs, err := selectedSources(c)
	if err != nil || len(srcs) != 2 {
		t.Fatalf("all inputs: %v, %v", srcs, err)
	}
	if _, err := singleSource(c); !serrors.IsCode(err, serrors.CodeInvalidConfig) {
		t.Errorf("expected ambiguity error, got %v", err)
	}

	inputName = "b"
	src, err := singleSource(c)
	if err != nil || src.Log != "b.xes" {
		t.Errorf("--input b: %+v, %v", src, err)
	}

	inputName = ""
	treePath, freqPath = "/models/hospital.tree", "/models/hospital.json"
	src, err = singleSource(c)
	if err != nil || src.Name != "hospital" || src.Frequencies != freqPath {
		t.Errorf("--tree: %+v, %v", src, err)
	}

	freqPath = ""
	if _, err := singleSource(c); !serrors.IsCode(err, serrors.CodeInvalidConfig) {
		t.Errorf("--tree without frequencies: %v", err)
	}
}

func TestSimulationOptions(t *testing.T) {
	c := config.Default()
	c.Simulation.Parquet = true
	c.Simulation.Compression = "zstd"
	c.Transform.EpochSeconds = 0

	opts := simulationOptions(c)
	if len(opts.Formats) != 2 || opts.Formats[1] != "parquet" {
		t.Errorf("formats = %v", opts.Formats)
	}
	if opts.Writer.Compression.String() != "zstd" {
		t.Errorf("compression = %v", opts.Writer.Compression)
	}
	if !opts.Transform.Epoch.Equal(opts.Transform.Epoch.UTC()) || opts.Transform.Epoch.Unix() != 0 {
		t.Errorf("epoch = %v", opts.Transform.Epoch)
	}
	if !opts.Strict || opts.Generator.MaxFailedAttempts != 1000 {
		t.Errorf("opts = %+v", opts)
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{serrors.ContextCanceled("simulate"), 130},
		{serrors.New(serrors.CodeBudgetInconsistency, "stuck"), 2},
		{serrors.MalformedTree("0", "loop needs two children"), 2},
		{serrors.FileNotFound("x"), 1},
	}
	for _, tt := range tests {
		if got := exitCode(tt.err); got != tt.want {
			t.Errorf("exitCode(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

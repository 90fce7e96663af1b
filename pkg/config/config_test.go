package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	serrors "github.com/logflow/simlog/pkg/errors"
)

func newTestManager(env map[string]string, paths ...string) *Manager {
	m := NewManager()
	m.getenv = func(k string) string { return env[k] }
	m.searchPaths = func() []string { return paths }
	return m
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestLoad_LayeredFiles(t *testing.T) {
	dir := t.TempDir()
	user := writeFile(t, dir, "user.yaml", `
simulation:
  replicates: 10
  seed: 7
risk:
  bk_type: multiset
`)
	project := writeFile(t, dir, "project.yaml", `
simulation:
  seed: 9
annotator:
  strict_composite_budgets: false
transform:
  step: 2s
`)
	missing := filepath.Join(dir, "absent.yaml")

	m := newTestManager(nil, user, missing, project)
	if err := m.Load(""); err != nil {
		t.Fatalf("Load: %v", err)
	}
	cfg := m.Get()

	if cfg.Simulation.Replicates != 10 {
		t.Errorf("replicates = %d, want 10 from user file", cfg.Simulation.Replicates)
	}
	if cfg.Simulation.Seed != 9 {
		t.Errorf("seed = %d, want project value 9", cfg.Simulation.Seed)
	}
	if cfg.Risk.BKType != "multiset" {
		t.Errorf("bk_type = %q", cfg.Risk.BKType)
	}
	if cfg.Annotator.StrictCompositeBudgets {
		t.Error("explicit false must override the default")
	}
	if cfg.Transform.Step != 2*time.Second {
		t.Errorf("step = %v", cfg.Transform.Step)
	}
	if cfg.Generator.MaxFailedAttempts != 1000 {
		t.Errorf("untouched default changed: %d", cfg.Generator.MaxFailedAttempts)
	}
	if got := m.GetPaths(); len(got) != 2 {
		t.Errorf("loaded paths = %v", got)
	}
}

func TestLoad_EnvOverridesFiles(t *testing.T) {
	dir := t.TempDir()
	explicit := writeFile(t, dir, "simlog.yaml", "simulation:\n  seed: 3\nlogging:\n  level: debug\n")

	m := newTestManager(map[string]string{
		"SIMLOG_SEED":       "100",
		"SIMLOG_REPLICATES": "2",
		"SIMLOG_LOG_FORMAT": "json",
		"SIMLOG_RESUME":     "true",
	})
	if err := m.Load(explicit); err != nil {
		t.Fatalf("Load: %v", err)
	}
	cfg := m.Get()
	if cfg.Simulation.Seed != 100 || cfg.Simulation.Replicates != 2 || !cfg.Simulation.Resume {
		t.Errorf("simulation = %+v", cfg.Simulation)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("logging = %+v", cfg.Logging)
	}
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name     string
		explicit string
		env      map[string]string
		code     serrors.Code
	}{
		{"missing explicit file", filepath.Join(dir, "nope.yaml"), nil, serrors.CodeFileNotFound},
		{"unknown key", writeFile(t, dir, "typo.yaml", "simulaton:\n  seed: 1\n"), nil, serrors.CodeInvalidConfig},
		{"bad env", "", map[string]string{"SIMLOG_SEED": "abc"}, serrors.CodeInvalidConfig},
		{"invalid value", writeFile(t, dir, "bad.yaml", "risk:\n  bk_type: bag\n"), nil, serrors.CodeInvalidConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := newTestManager(tt.env).Load(tt.explicit)
			if !serrors.IsCode(err, tt.code) {
				t.Errorf("expected %s, got %v", tt.code, err)
			}
		})
	}
}

func TestValidate_Inputs(t *testing.T) {
	cfg, err := Parse(strings.NewReader(`
inputs:
  - name: a
    tree: a.tree
    frequencies: a.json
  - name: a
    tree: b.tree
  - tree: c.tree
    log: c.xes
`))
	if err == nil {
		t.Fatal("expected validation errors")
	}
	multi, ok := err.(*serrors.MultiError)
	if !ok {
		t.Fatalf("expected MultiError, got %T", err)
	}
	// duplicate name, missing frequency source, missing name
	if len(multi.Errors) != 3 {
		t.Errorf("got %d errors: %v", len(multi.Errors), multi)
	}
	if cfg != nil {
		if _, ok := cfg.Input("a"); !ok {
			t.Error("Input(a) not found")
		}
	}
}

func TestWriteRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Inputs = []InputConfig{{Name: "hospital", Tree: "h.tree", Log: "h.xes", SilentFrequencies: map[string]int{"tau_1": 4}}}

	var buf bytes.Buffer
	if err := Write(&buf, cfg); err != nil {
		t.Fatal(err)
	}
	back, err := Parse(&buf)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	in, ok := back.Input("hospital")
	if !ok || in.SilentFrequencies["tau_1"] != 4 {
		t.Errorf("input = %+v", in)
	}
	if back.Checkpoint.Redis.TTL != cfg.Checkpoint.Redis.TTL {
		t.Errorf("ttl = %v", back.Checkpoint.Redis.TTL)
	}
}

func TestResolvePath(t *testing.T) {
	if got := ResolvePath("/etc/simlog/config.yaml", "h.tree"); got != "/etc/simlog/h.tree" {
		t.Errorf("got %q", got)
	}
	if got := ResolvePath("/etc/simlog/config.yaml", "/abs/h.tree"); got != "/abs/h.tree" {
		t.Errorf("got %q", got)
	}
	if got := ResolvePath("", "h.tree"); got != "h.tree" {
		t.Errorf("got %q", got)
	}
}

package tui

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

type fakeTable struct{}

func (fakeTable) Header() []string    { return []string{"bk_length", "cd_log"} }
func (fakeTable) Records() [][]string { return [][]string{{"1", "0.5"}, {"2", "0.75"}} }

func TestRenderTable(t *testing.T) {
	out := RenderTable(fakeTable{})
	for _, want := range []string{"bk_length", "cd_log", "0.75"} {
		if !strings.Contains(out, want) {
			t.Errorf("table missing %q:\n%s", want, out)
		}
	}
}

func TestPrinter_Quiet(t *testing.T) {
	var buf bytes.Buffer
	p := &Printer{Out: &buf, Quiet: true}
	p.Header("v1")
	p.Replicate(ReplicateLine{Input: "h", Replicate: 1, Traces: 3})
	if buf.Len() != 0 {
		t.Errorf("quiet printer wrote %q", buf.String())
	}

	p.Quiet = false
	p.Replicate(ReplicateLine{Input: "hospital", Replicate: 2, Skipped: true})
	if !strings.Contains(buf.String(), "hospital #2") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestFormat(t *testing.T) {
	tests := []struct {
		got, want string
	}{
		{FormatNumber(999), "999"},
		{FormatNumber(1500), "1.5K"},
		{FormatNumber(2500000), "2.5M"},
		{FormatDuration(250 * time.Millisecond), "250ms"},
		{FormatDuration(1500 * time.Millisecond), "1.5s"},
		{FormatDuration(125 * time.Second), "2m5s"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("got %q, want %q", tt.got, tt.want)
		}
	}
}

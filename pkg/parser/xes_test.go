package parser

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	serrors "github.com/logflow/simlog/pkg/errors"
)

const sampleXES = `<?xml version="1.0" encoding="UTF-8" ?>
<log xes.version="1.0" xmlns="http://www.xes-standard.org/">
	<extension name="Concept" prefix="concept" uri="http://www.xes-standard.org/concept.xesext"/>
	<global scope="trace">
		<string key="concept:name" value="__INVALID__"/>
	</global>
	<global scope="event">
		<string key="concept:name" value="__INVALID__"/>
	</global>
	<string key="concept:name" value="hospital"/>
	<trace>
		<string key="concept:name" value="case-1"/>
		<string key="diagnosis" value="flu &amp; fever"/>
		<event>
			<string key="concept:name" value="Register"/>
			<string key="lifecycle:transition" value="complete"/>
			<date key="time:timestamp" value="2020-01-01T10:00:00.000+00:00"/>
			<string key="org:resource" value="nurse"/>
		</event>
		<event>
			<string key="concept:name" value="Treat"/>
			<int key="cost" value="42"/>
			<date key="time:timestamp" value="2020-01-01T11:00:00.000+00:00"/>
		</event>
	</trace>
	<trace>
		<event>
			<string key="concept:name" value="Register"/>
		</event>
		<string key="concept:name" value="case-2"/>
	</trace>
	<trace>
		<event><string key="concept:name" value="Leave"/></event>
	</trace>
</log>
`

func TestXESParser_ReadLog(t *testing.T) {
	log, err := ReadLog(context.Background(), NewXESParser(DefaultConfig()), "hospital", strings.NewReader(sampleXES), DefaultConfig())
	if err != nil {
		t.Fatalf("ReadLog: %v", err)
	}
	if len(log.Traces) != 3 {
		t.Fatalf("expected 3 traces, got %d", len(log.Traces))
	}

	first := log.Traces[0]
	if first.CaseID != "case-1" {
		t.Errorf("case id = %q", first.CaseID)
	}
	if got := first.Attributes["diagnosis"]; got != "flu & fever" {
		t.Errorf("diagnosis = %q", got)
	}
	if got := strings.Join(first.Activities(), ","); got != "Register,Treat" {
		t.Errorf("activities = %s", got)
	}

	reg := first.Events[0]
	if reg.Lifecycle() != "complete" || string(reg.Resource) != "nurse" {
		t.Errorf("register event = %+v", reg)
	}
	want := time.Date(2020, 1, 1, 10, 0, 0, 0, time.UTC).UnixNano()
	if reg.Timestamp != want {
		t.Errorf("timestamp = %d, want %d", reg.Timestamp, want)
	}
	if v, ok := first.Events[1].Attr("cost"); !ok || string(v) != "42" {
		t.Errorf("cost = %q, %v", v, ok)
	}
	if _, ok := reg.Attr("case:diagnosis"); ok {
		t.Error("trace attributes should be lifted off the events")
	}

	if log.Traces[1].CaseID != "case-2" {
		t.Errorf("late trace name: %q", log.Traces[1].CaseID)
	}
	if log.Traces[2].CaseID != "3" {
		t.Errorf("unnamed trace id = %q, want position", log.Traces[2].CaseID)
	}
}

func TestXESParser_Malformed(t *testing.T) {
	cases := map[string]string{
		"unterminated": `<log><trace><event><string key="concept:name" value="A"/></event>`,
		"event outside trace": `<log><event><string key="concept:name" value="A"/></event></log>`,
	}
	for name, src := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ReadLog(context.Background(), NewXESParser(DefaultConfig()), "bad", strings.NewReader(src), DefaultConfig())
			if !serrors.IsCode(err, serrors.CodeParseFailed) {
				t.Errorf("expected parse error, got %v", err)
			}
		})
	}
}

func TestXESParser_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := ReadLog(ctx, NewXESParser(DefaultConfig()), "x", strings.NewReader(sampleXES), DefaultConfig())
	if !serrors.IsCode(err, serrors.CodeContextCanceled) {
		t.Errorf("expected cancellation, got %v", err)
	}
}

func TestReadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hospital.xes")
	if err := os.WriteFile(path, []byte(sampleXES), 0644); err != nil {
		t.Fatal(err)
	}

	log, err := ReadFile(context.Background(), path, DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	if log.Name != "hospital" || log.EventCount() != 4 {
		t.Errorf("name=%s events=%d", log.Name, log.EventCount())
	}

	if _, err := ReadFile(context.Background(), filepath.Join(dir, "none.xes"), DefaultConfig()); !serrors.IsCode(err, serrors.CodeFileNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
	if _, err := ReadFile(context.Background(), filepath.Join(dir, "log.csv"), DefaultConfig()); !serrors.IsCode(err, serrors.CodeParseFailed) {
		t.Errorf("expected unsupported format, got %v", err)
	}
}

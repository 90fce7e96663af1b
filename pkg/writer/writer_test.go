package writer

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/apache/arrow/go/v14/parquet"
	"github.com/apache/arrow/go/v14/parquet/pqarrow"

	"github.com/logflow/simlog/internal/model"
	serrors "github.com/logflow/simlog/pkg/errors"
	"github.com/logflow/simlog/pkg/parser"
)

func sampleLog() *model.Log {
	epoch := time.Unix(10000000, 0).UnixNano()
	ev := func(caseID, act string, i int) *model.Event {
		return &model.Event{CaseID: []byte(caseID), Activity: []byte(act), Timestamp: epoch + int64(i)*int64(time.Second)}
	}
	return &model.Log{
		Name: "sim",
		Traces: []*model.Trace{
			{CaseID: "1", Attributes: map[string]string{"concept:name": "1", "ward": "A&E"}, Events: []*model.Event{ev("1", "Register", 0), ev("1", "Treat <x>", 1)}},
			{CaseID: "3", Attributes: map[string]string{"concept:name": "3"}, Events: []*model.Event{ev("3", "Register", 2)}},
		},
	}
}

func TestXESWriter_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	if err := NewXESWriter().WriteLog(context.Background(), &buf, sampleLog()); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), `value="1970-04-26T17:46:40.000Z"`) {
		t.Errorf("epoch timestamp not found in:\n%s", buf.String())
	}

	got, err := parser.ReadLog(context.Background(), parser.NewXESParser(parser.DefaultConfig()), "sim", &buf, parser.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Traces) != 2 {
		t.Fatalf("traces = %d", len(got.Traces))
	}
	first := got.Traces[0]
	if first.CaseID != "1" || first.Attributes["ward"] != "A&E" {
		t.Errorf("trace = %+v", first)
	}
	if acts := strings.Join(first.Activities(), "|"); acts != "Register|Treat <x>" {
		t.Errorf("activities = %s", acts)
	}
	want := sampleLog().Traces[1].Events[0].Timestamp
	if ts := got.Traces[1].Events[0].Timestamp; ts != want {
		t.Errorf("timestamp = %d, want %d", ts, want)
	}
}

func TestParquetWriter(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BatchSize = 2

	var buf bytes.Buffer
	if err := NewParquetWriter(cfg).WriteLog(context.Background(), &buf, sampleLog()); err != nil {
		t.Fatal(err)
	}

	mem := memory.NewGoAllocator()
	tbl, err := pqarrow.ReadTable(context.Background(), bytes.NewReader(buf.Bytes()),
		parquet.NewReaderProperties(mem), pqarrow.ArrowReadProperties{}, mem)
	if err != nil {
		t.Fatal(err)
	}
	defer tbl.Release()

	if tbl.NumRows() != 3 || tbl.NumCols() != 4 {
		t.Fatalf("rows=%d cols=%d", tbl.NumRows(), tbl.NumCols())
	}
	acts := tbl.Column(1).Data().Chunk(0).(*array.String)
	if acts.Value(0) != "Register" {
		t.Errorf("first activity = %q", acts.Value(0))
	}
}

func TestNew(t *testing.T) {
	for format, ext := range map[string]string{"xes": ".xes", "parquet": ".parquet"} {
		w, err := New(format, DefaultConfig())
		if err != nil {
			t.Fatal(err)
		}
		if w.Extension() != ext {
			t.Errorf("%s: extension %s", format, w.Extension())
		}
	}
	if _, err := New("csv", DefaultConfig()); !serrors.IsCode(err, serrors.CodeWriteFailed) {
		t.Errorf("expected write error, got %v", err)
	}
	if ParseCompression("ZSTD") != CompressionZstd || CompressionLZ4.String() != "lz4" {
		t.Error("compression parsing")
	}
}

func TestXESWriter_SubMillisecondTimestamps(t *testing.T) {
	epoch := time.Unix(10000000, 0).UnixNano()
	steps := []time.Duration{100 * time.Microsecond, time.Nanosecond, 1500 * time.Microsecond}

	for _, step := range steps {
		var events []*model.Event
		for i := 0; i < 4; i++ {
			events = append(events, &model.Event{
				CaseID:    []byte("1"),
				Activity:  []byte("A"),
				Timestamp: epoch + int64(i)*int64(step),
			})
		}
		log := model.GroupEvents("sim", events)

		var buf bytes.Buffer
		if err := NewXESWriter().WriteLog(context.Background(), &buf, log); err != nil {
			t.Fatal(err)
		}
		got, err := parser.ReadLog(context.Background(), parser.NewXESParser(parser.DefaultConfig()), "sim", &buf, parser.DefaultConfig())
		if err != nil {
			t.Fatalf("step %v: %v", step, err)
		}
		read := got.Traces[0].Events
		if len(read) != len(events) {
			t.Fatalf("step %v: read %d events", step, len(read))
		}
		for i, e := range read {
			if e.Timestamp != events[i].Timestamp {
				t.Errorf("step %v: event %d timestamp %d, want %d", step, i, e.Timestamp, events[i].Timestamp)
			}
			if i > 0 && e.Timestamp <= read[i-1].Timestamp {
				t.Errorf("step %v: timestamps not strictly increasing at %d", step, i)
			}
		}
	}
}

func TestFormatXESTime(t *testing.T) {
	base := time.Unix(10000000, 0).UnixNano()
	tests := []struct {
		ns   int64
		want string
	}{
		{base, "1970-04-26T17:46:40.000Z"},
		{base + int64(100*time.Microsecond), "1970-04-26T17:46:40.000100Z"},
		{base + 7, "1970-04-26T17:46:40.000000007Z"},
	}
	for _, tt := range tests {
		if got := FormatXESTime(tt.ns); got != tt.want {
			t.Errorf("FormatXESTime(%d) = %s, want %s", tt.ns, got, tt.want)
		}
	}
}

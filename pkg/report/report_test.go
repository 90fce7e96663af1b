package report

import (
	"bytes"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	serrors "github.com/logflow/simlog/pkg/errors"
)

type table struct {
	header  []string
	records [][]string
}

func (t table) Header() []string     { return t.header }
func (t table) Records() [][]string { return t.records }

var summary = table{
	header:  []string{"bk_length", "cd_sim", "uniq_matched_sim"},
	records: [][]string{{"1", "0.25", "0"}, {"2", "0.5", "3"}},
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, FormatFor("out/summary.csv"), summary, Options{Delimiter: ";"}); err != nil {
		t.Fatal(err)
	}
	want := "bk_length;cd_sim;uniq_matched_sim\n1;0.25;0\n2;0.5;3\n"
	if buf.String() != want {
		t.Errorf("csv = %q", buf.String())
	}

	if err := WriteCSV(&buf, summary, ";;"); !serrors.IsCode(err, serrors.CodeInvalidConfig) {
		t.Errorf("expected invalid delimiter, got %v", err)
	}
}

func TestWriteXLSX(t *testing.T) {
	if FormatFor("summary.XLSX") != FormatXLSX {
		t.Fatal("xlsx extension not detected")
	}

	var buf bytes.Buffer
	if err := Write(&buf, FormatXLSX, summary, Options{}); err != nil {
		t.Fatal(err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	rows, err := f.GetRows("summary")
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 || strings.Join(rows[0], ",") != "bk_length,cd_sim,uniq_matched_sim" {
		t.Fatalf("rows = %v", rows)
	}
	if rows[2][1] != "0.5" {
		t.Errorf("cd@2 = %q", rows[2][1])
	}
}

// Package report writes tabular results as CSV or XLSX.
package report

import (
	"encoding/csv"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"

	serrors "github.com/logflow/simlog/pkg/errors"
)

// Tabular is anything with a header and string records.
type Tabular interface {
	Header() []string
	Records() [][]string
}

// Format is an output format for tables.
type Format uint8

const (
	FormatCSV Format = iota
	FormatXLSX
)

// FormatFor picks the format from a file name's extension. Anything but
// .xlsx is written as CSV.
func FormatFor(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		return FormatXLSX
	}
	return FormatCSV
}

// Options configures table output.
type Options struct {
	// Delimiter separates CSV fields. Defaults to a comma.
	Delimiter string

	// Sheet names the XLSX worksheet. Defaults to "summary".
	Sheet string
}

// Write writes t to w in the given format.
func Write(w io.Writer, format Format, t Tabular, opts Options) error {
	switch format {
	case FormatXLSX:
		return WriteXLSX(w, t, opts.Sheet)
	default:
		return WriteCSV(w, t, opts.Delimiter)
	}
}

// WriteCSV writes the header and records as delimited text.
func WriteCSV(w io.Writer, t Tabular, delimiter string) error {
	cw := csv.NewWriter(w)
	if delimiter != "" {
		r, size := utf8.DecodeRuneInString(delimiter)
		if size != len(delimiter) || r == utf8.RuneError {
			return serrors.New(serrors.CodeInvalidConfig, "CSV delimiter must be a single character").
				WithContext("delimiter", delimiter)
		}
		cw.Comma = r
	}

	if err := cw.Write(t.Header()); err != nil {
		return serrors.Wrap(err, serrors.CodeWriteFailed, "write csv header")
	}
	if err := cw.WriteAll(t.Records()); err != nil {
		return serrors.Wrap(err, serrors.CodeWriteFailed, "write csv records")
	}
	return nil
}

// WriteXLSX writes a single-sheet workbook. Cells that parse as numbers
// are stored as numbers.
func WriteXLSX(w io.Writer, t Tabular, sheet string) error {
	if sheet == "" {
		sheet = "summary"
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return serrors.Wrap(err, serrors.CodeWriteFailed, "name sheet")
	}

	rows := append([][]string{t.Header()}, t.Records()...)
	for i, rec := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return serrors.Wrap(err, serrors.CodeWriteFailed, "cell name")
		}
		values := make([]interface{}, len(rec))
		for j, v := range rec {
			values[j] = cellValue(v, i == 0)
		}
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return serrors.Wrapf(err, serrors.CodeWriteFailed, "write row %d", i+1)
		}
	}

	if err := f.Write(w); err != nil {
		return serrors.Wrap(err, serrors.CodeWriteFailed, "write xlsx")
	}
	return nil
}

func cellValue(v string, header bool) interface{} {
	if header {
		return v
	}
	if n, err := strconv.ParseInt(v, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return f
	}
	return v
}

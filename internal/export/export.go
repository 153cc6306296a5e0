// Package export writes normalized rows as CSV or JSON lines.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/AllenInstitute/ephys-analysis-tools/internal/record"
)

// Format is an output encoding.
type Format string

const (
	FormatCSV   Format = "csv"
	FormatJSONL Format = "jsonl"
)

// FormatForPath picks the format from a file extension.
func FormatForPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return FormatCSV, nil
	case ".jsonl", ".ndjson":
		return FormatJSONL, nil
	}
	return "", fmt.Errorf("cannot infer output format from %q (use .csv or .jsonl)", path)
}

// Columns orders the union of row keys: leading columns first, in the
// given order, then the rest in canonical order.
func Columns(rows []record.Row, leading []string) []string {
	cols := slices.Clone(leading)
	for _, c := range record.Columns(rows) {
		if !slices.Contains(leading, c) {
			cols = append(cols, c)
		}
	}
	return cols
}

// Write encodes rows to w. CSV output uses columns as the header; JSON
// lines ignore columns and write every row as canonical JSON.
func Write(w io.Writer, format Format, rows []record.Row, columns []string) error {
	switch format {
	case FormatCSV:
		return writeCSV(w, rows, columns)
	case FormatJSONL:
		return writeJSONL(w, rows)
	}
	return fmt.Errorf("unknown output format %q", format)
}

// WriteFile writes rows to path, inferring the format from the extension.
func WriteFile(path string, rows []record.Row, columns []string) (err error) {
	format, err := FormatForPath(path)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("failed to close output file: %w", cerr)
		}
	}()
	return Write(f, format, rows, columns)
}

func writeCSV(w io.Writer, rows []record.Row, columns []string) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(columns); err != nil {
		return err
	}
	for _, row := range rows {
		rec := make([]string, len(columns))
		for i, col := range columns {
			v, err := formatValue(row[col])
			if err != nil {
				return fmt.Errorf("column %s: %w", col, err)
			}
			rec[i] = v
		}
		if err := writer.Write(rec); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func writeJSONL(w io.Writer, rows []record.Row) error {
	for _, row := range rows {
		data, err := record.MarshalCanonical(row)
		if err != nil {
			return err
		}
		data = append(data, '\n')
		if _, err := w.Write(data); err != nil {
			return err
		}
	}
	return nil
}

// formatValue renders a cell. nil is empty; scalars use their canonical
// JSON form without quotes; lists and objects stay JSON.
func formatValue(v any) (string, error) {
	switch val := v.(type) {
	case nil:
		return "", nil
	case string:
		return val, nil
	}
	data, err := record.MarshalCanonical(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

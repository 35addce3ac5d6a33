// Package frame provides a small in-memory table of string cells with named
// columns. It is the tabular structure passed between the BigQuery, Sheets
// and Drive wrappers, the profiling helpers and the batch generation client.
package frame

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"slices"
)

var (
	// ErrColumnNotFound is returned when a named column does not exist.
	ErrColumnNotFound = errors.New("column not found")

	// ErrDuplicateColumn is returned when a header repeats a column name.
	ErrDuplicateColumn = errors.New("duplicate column")

	// ErrRowWidth is returned when a row does not match the number of columns.
	ErrRowWidth = errors.New("row width does not match column count")
)

// Frame is an ordered set of named columns and rows of string cells.
// An empty cell is treated as a null value by the profiling helpers.
// A Frame is not safe for concurrent mutation.
type Frame struct {
	columns []string
	index   map[string]int
	rows    [][]string
}

// New creates an empty frame with the given columns.
func New(columns ...string) (*Frame, error) {
	f := &Frame{index: make(map[string]int, len(columns))}
	for i, name := range columns {
		if _, ok := f.index[name]; ok {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateColumn, name)
		}
		f.index[name] = i
	}
	f.columns = slices.Clone(columns)
	return f, nil
}

// MustNew is like New but panics on duplicate columns. Intended for
// fixed, compile-time column sets.
func MustNew(columns ...string) *Frame {
	f, err := New(columns...)
	if err != nil {
		panic(err)
	}
	return f
}

// FromRecords builds a frame from a header row followed by data rows.
func FromRecords(records [][]string) (*Frame, error) {
	if len(records) == 0 {
		return New()
	}

	f, err := New(records[0]...)
	if err != nil {
		return nil, err
	}
	for i, rec := range records[1:] {
		if err := f.Append(rec...); err != nil {
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}
	}
	return f, nil
}

// utf8BOM is prepended to CSV exports by spreadsheet tools.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ReadCSV reads a CSV document whose first record is the header.
// A leading UTF-8 byte order mark is dropped.
func ReadCSV(r io.Reader) (*Frame, error) {
	br := bufio.NewReader(r)
	if head, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}

	reader := csv.NewReader(br)
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read csv: %w", err)
	}
	return FromRecords(records)
}

// WriteCSV writes the header followed by every row as CSV.
func (f *Frame) WriteCSV(w io.Writer) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(f.columns); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	if err := writer.WriteAll(f.rows); err != nil {
		return fmt.Errorf("failed to write csv rows: %w", err)
	}
	return nil
}

// Columns returns a copy of the column names in order.
func (f *Frame) Columns() []string {
	return slices.Clone(f.columns)
}

// Len returns the number of rows.
func (f *Frame) Len() int {
	return len(f.rows)
}

// HasColumn reports whether the frame has a column with the given name.
func (f *Frame) HasColumn(name string) bool {
	_, ok := f.index[name]
	return ok
}

// Append adds a row. The number of values must equal the number of columns.
func (f *Frame) Append(values ...string) error {
	if len(values) != len(f.columns) {
		return fmt.Errorf("%w: got %d values for %d columns", ErrRowWidth, len(values), len(f.columns))
	}
	f.rows = append(f.rows, slices.Clone(values))
	return nil
}

// Row returns a copy of the i-th row.
func (f *Frame) Row(i int) []string {
	return slices.Clone(f.rows[i])
}

// Value returns the cell at row i in the named column.
func (f *Frame) Value(i int, column string) (string, error) {
	j, ok := f.index[column]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrColumnNotFound, column)
	}
	return f.rows[i][j], nil
}

// Column returns a copy of every value in the named column.
func (f *Frame) Column(name string) ([]string, error) {
	j, ok := f.index[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrColumnNotFound, name)
	}
	values := make([]string, len(f.rows))
	for i, row := range f.rows {
		values[i] = row[j]
	}
	return values, nil
}

// Records returns the header followed by copies of every row.
func (f *Frame) Records() [][]string {
	records := make([][]string, 0, len(f.rows)+1)
	records = append(records, f.Columns())
	for _, row := range f.rows {
		records = append(records, slices.Clone(row))
	}
	return records
}

// SortBy sorts rows in place by the named column using less on the cell values.
func (f *Frame) SortBy(column string, less func(a, b string) int) error {
	j, ok := f.index[column]
	if !ok {
		return fmt.Errorf("%w: %q", ErrColumnNotFound, column)
	}
	slices.SortStableFunc(f.rows, func(a, b []string) int {
		return less(a[j], b[j])
	})
	return nil
}

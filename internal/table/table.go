// Package table holds the in-memory tables the pipeline stages reshape.
//
// A Table is immutable: every transform returns a new Table and leaves its
// receiver untouched. Row slices may be shared between tables when a
// transform does not change them, so callers must not modify the slices
// returned by Row or Rows.
package table

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrColumnNotFound is returned when a transform names a column the table does not have.
var ErrColumnNotFound = errors.New("column not found")

// Type is the logical type of a column. Every column is nullable.
type Type int

const (
	String Type = iota
	Int64
	Float64
	Date
)

func (t Type) String() string {
	switch t {
	case String:
		return "string"
	case Int64:
		return "int64"
	case Float64:
		return "float64"
	case Date:
		return "date"
	default:
		return fmt.Sprintf("Type(%d)", int(t))
	}
}

// Column describes one column of a table.
type Column struct {
	Name string
	Type Type
}

// Table is an ordered set of columns and the rows holding their values.
// Values are nil, string, int64, float64 or time.Time (a UTC midnight for Date columns).
type Table struct {
	columns []Column
	rows    [][]any
}

// New builds a table. Each row must have one value per column.
func New(columns []Column, rows [][]any) (*Table, error) {
	for i, row := range rows {
		if len(row) != len(columns) {
			return nil, fmt.Errorf("row %d has %d values, want %d", i, len(row), len(columns))
		}
	}
	cols := make([]Column, len(columns))
	copy(cols, columns)
	return &Table{columns: cols, rows: rows}, nil
}

// MustNew is like New but panics on error. Intended for fixtures.
func MustNew(columns []Column, rows [][]any) *Table {
	t, err := New(columns, rows)
	if err != nil {
		panic(err)
	}
	return t
}

// Columns returns a copy of the table's columns.
func (t *Table) Columns() []Column {
	cols := make([]Column, len(t.columns))
	copy(cols, t.columns)
	return cols
}

// ColumnNames returns the column names in order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.columns))
	for i, c := range t.columns {
		names[i] = c.Name
	}
	return names
}

// Index returns the position of the named column, or -1.
func (t *Table) Index(name string) int {
	for i, c := range t.columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.rows) }

// Row returns the values of row i.
func (t *Table) Row(i int) []any { return t.rows[i] }

// Rows returns all rows.
func (t *Table) Rows() [][]any { return t.rows }

// Value returns the value of the named column in row i.
func (t *Table) Value(i int, name string) (any, error) {
	idx := t.Index(name)
	if idx < 0 {
		return nil, fmt.Errorf("%w: %s", ErrColumnNotFound, name)
	}
	return t.rows[i][idx], nil
}

// Column returns all values of the named column.
func (t *Table) Column(name string) ([]any, error) {
	idx := t.Index(name)
	if idx < 0 {
		return nil, fmt.Errorf("%w: %s", ErrColumnNotFound, name)
	}
	out := make([]any, len(t.rows))
	for i, row := range t.rows {
		out[i] = row[idx]
	}
	return out, nil
}

func (t *Table) indexes(names []string) ([]int, error) {
	idx := make([]int, len(names))
	var missing []string
	for i, name := range names {
		idx[i] = t.Index(name)
		if idx[i] < 0 {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s (have %s)", ErrColumnNotFound,
			strings.Join(missing, ", "), strings.Join(t.ColumnNames(), ", "))
	}
	return idx, nil
}

// IsNull reports whether v is a null value.
func IsNull(v any) bool { return v == nil }

// AsDate returns v as a date, or false if v is null or not a date.
func AsDate(v any) (time.Time, bool) {
	d, ok := v.(time.Time)
	return d, ok
}

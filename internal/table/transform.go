package table

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Select projects the named columns, in the given order.
func (t *Table) Select(names ...string) (*Table, error) {
	idx, err := t.indexes(names)
	if err != nil {
		return nil, fmt.Errorf("select: %w", err)
	}
	cols := make([]Column, len(idx))
	for i, j := range idx {
		cols[i] = t.columns[j]
	}
	rows := make([][]any, len(t.rows))
	for r, row := range t.rows {
		out := make([]any, len(idx))
		for i, j := range idx {
			out[i] = row[j]
		}
		rows[r] = out
	}
	return &Table{columns: cols, rows: rows}, nil
}

// Distinct removes rows equal, value by value, to an earlier row.
// The first occurrence of each row is kept and the relative order is preserved.
func (t *Table) Distinct() *Table {
	seen := make(map[string]struct{}, len(t.rows))
	rows := make([][]any, 0, len(t.rows))
	var b strings.Builder
	for _, row := range t.rows {
		b.Reset()
		writeRowKey(&b, row)
		key := b.String()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		rows = append(rows, row)
	}
	return &Table{columns: t.Columns(), rows: rows}
}

// writeRowKey encodes a row so that two rows have the same key only when
// every value has the same type and the same content.
func writeRowKey(b *strings.Builder, row []any) {
	for _, v := range row {
		switch x := v.(type) {
		case nil:
			b.WriteString("n;")
		case string:
			b.WriteString("s")
			b.WriteString(strconv.Itoa(len(x)))
			b.WriteByte(':')
			b.WriteString(x)
		case int64:
			b.WriteString("i")
			b.WriteString(strconv.FormatInt(x, 10))
			b.WriteByte(';')
		case float64:
			b.WriteString("f")
			b.WriteString(strconv.FormatUint(math.Float64bits(x), 16))
			b.WriteByte(';')
		case time.Time:
			b.WriteString("d")
			b.WriteString(strconv.FormatInt(x.Unix(), 10))
			b.WriteByte(';')
		default:
			fmt.Fprintf(b, "x%T:%v;", x, x)
		}
	}
}

// Where keeps the rows whose value in the named column satisfies keep.
func (t *Table) Where(name string, keep func(v any) bool) (*Table, error) {
	idx := t.Index(name)
	if idx < 0 {
		return nil, fmt.Errorf("where: %w: %s", ErrColumnNotFound, name)
	}
	rows := make([][]any, 0, len(t.rows))
	for _, row := range t.rows {
		if keep(row[idx]) {
			rows = append(rows, row)
		}
	}
	return &Table{columns: t.Columns(), rows: rows}, nil
}

// Map replaces the named column with fn applied to each of its values.
func (t *Table) Map(name string, typ Type, fn func(v any) any) (*Table, error) {
	idx := t.Index(name)
	if idx < 0 {
		return nil, fmt.Errorf("map: %w: %s", ErrColumnNotFound, name)
	}
	cols := t.Columns()
	cols[idx].Type = typ
	rows := make([][]any, len(t.rows))
	for r, row := range t.rows {
		out := make([]any, len(row))
		copy(out, row)
		out[idx] = fn(row[idx])
		rows[r] = out
	}
	return &Table{columns: cols, rows: rows}, nil
}

// WithColumn derives a column from another one. The derived column replaces
// a column of the same name, or is appended when there is none.
func (t *Table) WithColumn(col Column, from string, fn func(v any) any) (*Table, error) {
	src := t.Index(from)
	if src < 0 {
		return nil, fmt.Errorf("with column %s: %w: %s", col.Name, ErrColumnNotFound, from)
	}
	return t.withColumn(col, func(_ int, row []any) any { return fn(row[src]) }), nil
}

// WithLiteral sets the named column to the same value on every row.
func (t *Table) WithLiteral(col Column, value any) *Table {
	return t.withColumn(col, func(int, []any) any { return value })
}

// IDGenerator produces surrogate ids.
type IDGenerator interface {
	NextID() int64
}

// WithSurrogateID appends an int64 column holding one generated id per row.
func (t *Table) WithSurrogateID(name string, gen IDGenerator) *Table {
	return t.withColumn(Column{Name: name, Type: Int64}, func(int, []any) any { return gen.NextID() })
}

func (t *Table) withColumn(col Column, value func(r int, row []any) any) *Table {
	cols := t.Columns()
	idx := t.Index(col.Name)
	if idx < 0 {
		cols = append(cols, col)
	} else {
		cols[idx] = col
	}
	rows := make([][]any, len(t.rows))
	for r, row := range t.rows {
		out := make([]any, len(cols))
		copy(out, row)
		if idx < 0 {
			out[len(cols)-1] = value(r, row)
		} else {
			out[idx] = value(r, row)
		}
		rows[r] = out
	}
	return &Table{columns: cols, rows: rows}
}

// Drop removes the named columns. Unknown names are ignored.
func (t *Table) Drop(names ...string) *Table {
	drop := make(map[string]bool, len(names))
	for _, n := range names {
		drop[n] = true
	}
	var keep []int
	var cols []Column
	for i, c := range t.columns {
		if !drop[c.Name] {
			keep = append(keep, i)
			cols = append(cols, c)
		}
	}
	rows := make([][]any, len(t.rows))
	for r, row := range t.rows {
		out := make([]any, len(keep))
		for i, j := range keep {
			out[i] = row[j]
		}
		rows[r] = out
	}
	return &Table{columns: cols, rows: rows}
}

// RenameColumns renames columns by position: the first column takes the
// first name, and so on. Pairing stops at the shorter of the two sequences,
// so trailing columns keep their names. Rows are shared with t.
func RenameColumns(t *Table, names []string) *Table {
	cols := t.Columns()
	for i := 0; i < len(cols) && i < len(names); i++ {
		cols[i].Name = names[i]
	}
	return &Table{columns: cols, rows: t.rows}
}

package table

import (
	"fmt"
	"strings"
)

// Partition is the subset of a table's rows sharing one value of the partition column.
type Partition struct {
	Value any
	Table *Table
}

// PartitionBy splits t by the distinct values of the named column. Partitions
// are returned in first-seen order and do not contain the partition column.
func (t *Table) PartitionBy(name string) ([]Partition, error) {
	idx := t.Index(name)
	if idx < 0 {
		return nil, fmt.Errorf("partition: %w: %s", ErrColumnNotFound, name)
	}
	rest := t.Drop(name)

	pos := make(map[string]int)
	var parts []Partition
	var groups [][][]any
	var b strings.Builder
	for r, row := range t.rows {
		b.Reset()
		writeRowKey(&b, row[idx:idx+1])
		key := b.String()
		p, ok := pos[key]
		if !ok {
			p = len(parts)
			pos[key] = p
			parts = append(parts, Partition{Value: row[idx]})
			groups = append(groups, nil)
		}
		groups[p] = append(groups[p], rest.rows[r])
	}
	for i := range parts {
		parts[i].Table = &Table{columns: rest.Columns(), rows: groups[i]}
	}
	return parts, nil
}

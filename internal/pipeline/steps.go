package pipeline

import (
	"i94_etl/internal/table"
)

// step is one table transform. Steps are chained with apply so a stage
// reads as the list of transforms it performs.
type step func(*table.Table) (*table.Table, error)

func apply(t *table.Table, steps ...step) (*table.Table, error) {
	var err error
	for _, s := range steps {
		if t, err = s(t); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func selectColumns(names ...string) step {
	return func(t *table.Table) (*table.Table, error) { return t.Select(names...) }
}

func where(column string, keep func(any) bool) step {
	return func(t *table.Table) (*table.Table, error) { return t.Where(column, keep) }
}

func distinct() step {
	return func(t *table.Table) (*table.Table, error) { return t.Distinct(), nil }
}

func withID(column string, ids table.IDGenerator) step {
	return func(t *table.Table) (*table.Table, error) { return t.WithSurrogateID(column, ids), nil }
}

func rename(names ...string) step {
	return func(t *table.Table) (*table.Table, error) { return table.RenameColumns(t, names), nil }
}

func literal(column string, value string) step {
	return func(t *table.Table) (*table.Table, error) {
		return t.WithLiteral(table.Column{Name: column, Type: table.String}, value), nil
	}
}

// mapColumns converts every named column in place.
func mapColumns(typ table.Type, fn func(any) any, columns ...string) step {
	return func(t *table.Table) (*table.Table, error) {
		var err error
		for _, c := range columns {
			if t, err = t.Map(c, typ, fn); err != nil {
				return nil, err
			}
		}
		return t, nil
	}
}

func derive(column string, typ table.Type, from string, fn func(any) any) step {
	return func(t *table.Table) (*table.Table, error) {
		return t.WithColumn(table.Column{Name: column, Type: typ}, from, fn)
	}
}

// dimension is the projection shared by the id-carrying tables: select the
// source columns, drop duplicate rows, attach a surrogate id and rename the
// source columns to the target schema.
func dimension(source, target []string, idColumn string, ids table.IDGenerator) []step {
	return []step{
		selectColumns(source...),
		distinct(),
		withID(idColumn, ids),
		rename(target...),
	}
}

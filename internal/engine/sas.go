package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"time"

	"github.com/kshedden/datareader"

	"i94_etl/internal/convert"
	"i94_etl/internal/table"
)

// sasChunkRows is the number of records decoded per datareader call.
var sasChunkRows = 100000

// rawColumn accumulates one SAS column across chunks. SAS columns are either
// numeric (float64) or character (string).
type rawColumn struct {
	name    string
	numeric bool
	floats  []float64
	strs    []string
	missing []bool
}

func (e *Engine) readSAS(ctx context.Context, path string, opts ReadOptions) (*table.Table, error) {
	local, release, err := e.store.Fetch(ctx, path)
	if err != nil {
		return nil, err
	}
	defer release()

	f, err := os.Open(local)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", local, err)
	}
	defer f.Close()

	sas, err := datareader.NewSAS7BDATReader(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read SAS7BDAT header of %s: %w", path, err)
	}

	names := sas.ColumnNames()
	cols := make([]*rawColumn, len(names))
	for i, name := range names {
		if opts.LowercaseNames {
			name = strings.ToLower(name)
		}
		cols[i] = &rawColumn{name: strings.TrimSpace(name)}
	}

	for chunk := 0; ; chunk++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		series, err := sas.Read(sasChunkRows)
		if len(series) > 0 {
			if aerr := appendSeries(cols, series); aerr != nil {
				return nil, fmt.Errorf("failed to decode %s chunk %d: %w", path, chunk, aerr)
			}
		}
		if errors.Is(err, io.EOF) || (err == nil && len(series) == 0) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read %s chunk %d: %w", path, chunk, err)
		}
		e.log.Debug("Decoded SAS chunk", "path", path, "chunk", chunk, "rows", series[0].Length())
	}
	return buildSASTable(cols, opts.InferLong)
}

func appendSeries(cols []*rawColumn, series []*datareader.Series) error {
	if len(series) != len(cols) {
		return fmt.Errorf("got %d series for %d columns", len(series), len(cols))
	}
	for i, s := range series {
		c := cols[i]
		n := s.Length()
		missing := s.Missing()
		switch data := s.Data().(type) {
		case []float64:
			c.numeric = true
			c.floats = append(c.floats, data...)
		case []string:
			c.strs = append(c.strs, data...)
		case []time.Time:
			// DATE-formatted columns arrive as times; keep them as day offsets.
			c.numeric = true
			for _, d := range data {
				c.floats = append(c.floats, float64(d.Unix()-convert.SASEpoch.Unix())/86400)
			}
		default:
			return fmt.Errorf("column %s: unexpected data type %T", c.name, data)
		}
		if missing == nil {
			c.missing = append(c.missing, make([]bool, n)...)
		} else {
			c.missing = append(c.missing, missing...)
		}
	}
	return nil
}

// buildSASTable turns decoded columns into a table. Missing numbers and
// blank strings are null. With inferLong, numeric columns whose values are
// all whole numbers become int64.
func buildSASTable(cols []*rawColumn, inferLong bool) (*table.Table, error) {
	nrows := 0
	if len(cols) > 0 {
		nrows = len(cols[0].missing)
	}
	columns := make([]table.Column, len(cols))
	rows := make([][]any, nrows)
	for r := range rows {
		rows[r] = make([]any, len(cols))
	}

	for i, c := range cols {
		if len(c.missing) != nrows {
			return nil, fmt.Errorf("column %s has %d values, want %d", c.name, len(c.missing), nrows)
		}
		if !c.numeric {
			columns[i] = table.Column{Name: c.name, Type: table.String}
			for r, s := range c.strs {
				if s = strings.TrimRight(s, " \x00"); !c.missing[r] && s != "" {
					rows[r][i] = s
				}
			}
			continue
		}

		asInt := inferLong && integralColumn(c)
		if asInt {
			columns[i] = table.Column{Name: c.name, Type: table.Int64}
		} else {
			columns[i] = table.Column{Name: c.name, Type: table.Float64}
		}
		for r, f := range c.floats {
			if c.missing[r] || math.IsNaN(f) {
				continue
			}
			if asInt {
				rows[r][i], _ = convert.Integral(f)
			} else {
				rows[r][i] = f
			}
		}
	}
	return table.New(columns, rows)
}

func integralColumn(c *rawColumn) bool {
	for r, f := range c.floats {
		if c.missing[r] || math.IsNaN(f) {
			continue
		}
		if _, ok := convert.Integral(f); !ok {
			return false
		}
	}
	return true
}

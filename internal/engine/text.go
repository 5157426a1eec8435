package engine

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"i94_etl/internal/table"
)

const utf8BOM = "\ufeff"

func (e *Engine) readCSV(ctx context.Context, path string, opts ReadOptions) (*table.Table, error) {
	rc, err := e.store.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	t, err := parseCSV(rc, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to parse CSV %s: %w", path, err)
	}
	return t, nil
}

// parseCSV reads delimited text into a table of string columns. Empty
// fields and fields missing from short records are null.
func parseCSV(r io.Reader, opts ReadOptions) (*table.Table, error) {
	reader := csv.NewReader(r)
	if opts.Delimiter != 0 {
		reader.Comma = opts.Delimiter
	}
	reader.FieldsPerRecord = -1 // Allow variable number of fields
	reader.LazyQuotes = true
	reader.ReuseRecord = true

	var columns []table.Column
	if !opts.NoHeader {
		header, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return nil, errors.New("missing header row")
		}
		if err != nil {
			return nil, fmt.Errorf("error reading header: %w", err)
		}
		for i, name := range header {
			if i == 0 {
				name = strings.TrimPrefix(name, utf8BOM)
			}
			columns = append(columns, table.Column{Name: strings.TrimSpace(name), Type: table.String})
		}
	}

	var rows [][]any
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error reading CSV record: %w", err)
		}

		// Skip empty rows
		if len(record) == 0 || (len(record) == 1 && record[0] == "") {
			continue
		}

		if opts.NoHeader && columns == nil {
			for i := range record {
				columns = append(columns, table.Column{Name: fmt.Sprintf("_c%d", i), Type: table.String})
			}
		}

		row := make([]any, len(columns))
		for i := range row {
			if i < len(record) && record[i] != "" {
				row[i] = record[i]
			}
		}
		rows = append(rows, row)
	}
	return table.New(columns, rows)
}

// ReadLines returns the lines of a text file without line terminators.
func (e *Engine) ReadLines(ctx context.Context, path string) ([]string, error) {
	rc, err := e.store.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var lines []string
	scanner := bufio.NewScanner(rc)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		lines = append(lines, strings.TrimSuffix(scanner.Text(), "\r"))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	e.log.Debug("Read text file", "path", path, "lines", len(lines))
	return lines, nil
}

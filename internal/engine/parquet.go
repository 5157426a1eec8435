package engine

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"i94_etl/internal/table"
)

const (
	// parquetWriterParallelism is the number of goroutines parquet-go uses to
	// encode one file's row groups.
	parquetWriterParallelism = 4
	// Flush periodically for large files
	flushEvery = 100000
)

// epochDays returns the number of days between 1970-01-01 and d, the
// physical representation of the parquet DATE type.
func epochDays(d time.Time) int32 {
	secs := d.Unix()
	days := secs / 86400
	if secs%86400 < 0 {
		days--
	}
	return int32(days)
}

// schemaMetadata describes the table's columns in parquet-go's CSV schema
// syntax. Every column is OPTIONAL so nulls can be stored.
func schemaMetadata(cols []table.Column) ([]string, error) {
	md := make([]string, len(cols))
	for i, c := range cols {
		switch c.Type {
		case table.String:
			md[i] = fmt.Sprintf("name=%s, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY, repetitiontype=OPTIONAL", c.Name)
		case table.Int64:
			md[i] = fmt.Sprintf("name=%s, type=INT64, repetitiontype=OPTIONAL", c.Name)
		case table.Float64:
			md[i] = fmt.Sprintf("name=%s, type=DOUBLE, repetitiontype=OPTIONAL", c.Name)
		case table.Date:
			md[i] = fmt.Sprintf("name=%s, type=INT32, convertedtype=DATE, repetitiontype=OPTIONAL", c.Name)
		default:
			return nil, fmt.Errorf("column %s: unsupported type %s", c.Name, c.Type)
		}
	}
	return md, nil
}

// parquetValue converts a table value to the physical value parquet-go expects.
func parquetValue(v any, typ table.Type) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch typ {
	case table.String:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case table.Int64:
		if i, ok := v.(int64); ok {
			return i, nil
		}
	case table.Float64:
		if f, ok := v.(float64); ok {
			return f, nil
		}
	case table.Date:
		if d, ok := v.(time.Time); ok {
			return epochDays(d), nil
		}
	}
	return nil, fmt.Errorf("value %v (%T) does not match column type %s", v, v, typ)
}

// writeParquetFile encodes t into a SNAPPY-compressed parquet file at localFileName.
func writeParquetFile(ctx context.Context, t *table.Table, localFileName string) (err error) {
	cols := t.Columns()
	md, err := schemaMetadata(cols)
	if err != nil {
		return err
	}

	fw, err := local.NewLocalFileWriter(localFileName)
	if err != nil {
		return fmt.Errorf("failed to create local file writer: %w", err)
	}
	defer func() {
		if cerr := fw.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("error closing file writer: %w", cerr)
		}
		if err != nil {
			os.Remove(localFileName)
		}
	}()

	pw, err := writer.NewCSVWriter(md, fw, parquetWriterParallelism)
	if err != nil {
		return fmt.Errorf("failed to create parquet writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	rec := make([]any, len(cols))
	for r, row := range t.Rows() {
		for i, v := range row {
			if rec[i], err = parquetValue(v, cols[i].Type); err != nil {
				return fmt.Errorf("row %d: %w", r, err)
			}
		}
		if err := pw.Write(append([]any(nil), rec...)); err != nil {
			return fmt.Errorf("error writing record %d: %w", r, err)
		}
		if (r+1)%flushEvery == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := pw.Flush(true); err != nil {
				return fmt.Errorf("error flushing records: %w", err)
			}
		}
	}

	if err := pw.WriteStop(); err != nil {
		return fmt.Errorf("error in WriteStop: %w", err)
	}
	return nil
}

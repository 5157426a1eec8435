package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"i94_etl/internal/storage"
	"i94_etl/internal/table"
)

const (
	// DefaultPartition names the directory holding rows whose partition value is null.
	DefaultPartition = "__HIVE_DEFAULT_PARTITION__"
	// SuccessMarker is written under the destination once every file is stored.
	SuccessMarker = "_SUCCESS"
)

type fileJob struct {
	dir   string
	index int
	table *table.Table
}

type fileResult struct {
	rows  int64
	bytes int64
}

// Write stores t as parquet under path. With one partition column, rows are
// split into <column>=<value> directories and the column is left out of the
// files. Partition files are written concurrently; Write returns once all of
// them are stored or the first one fails.
func (e *Engine) Write(ctx context.Context, t *table.Table, path string, mode WriteMode, partitionBy ...string) (WriteResult, error) {
	res := WriteResult{Path: path}
	if len(partitionBy) > 1 {
		return res, fmt.Errorf("write %s: at most one partition column is supported, got %v", path, partitionBy)
	}

	existing, err := e.store.List(ctx, path)
	if err != nil {
		return res, fmt.Errorf("write %s: %w", path, err)
	}
	switch mode {
	case Overwrite:
		if len(existing) > 0 {
			e.log.Debug("Overwriting destination", "path", path, "existing_files", len(existing))
			if err := e.store.RemoveAll(ctx, path); err != nil {
				return res, fmt.Errorf("write %s: %w", path, err)
			}
		}
	case ErrorIfExists:
		if len(existing) > 0 {
			return res, fmt.Errorf("write %s: %w", path, ErrDestinationExists)
		}
	default:
		return res, fmt.Errorf("write %s: unknown mode %s", path, mode)
	}

	jobs := []fileJob{{table: t}}
	if len(partitionBy) == 1 {
		parts, err := t.PartitionBy(partitionBy[0])
		if err != nil {
			return res, fmt.Errorf("write %s: %w", path, err)
		}
		jobs = make([]fileJob, len(parts))
		for i, p := range parts {
			jobs[i] = fileJob{
				dir:   partitionBy[0] + "=" + PartitionValue(p.Value),
				index: i,
				table: p.Table,
			}
		}
	}

	e.log.Info("Writing parquet", "path", path, "rows", t.Len(), "files", len(jobs), "mode", mode)
	writeID := uuid.NewString()
	group := e.pool.NewGroupContext(ctx)
	for _, job := range jobs {
		group.SubmitErr(func() (fileResult, error) {
			return e.writeFile(ctx, job, path, writeID)
		})
	}
	results, err := group.Wait()
	if err != nil {
		return res, fmt.Errorf("write %s: %w", path, err)
	}

	for _, r := range results {
		res.Rows += r.rows
		res.Bytes += r.bytes
	}
	res.Files = len(results)

	if err := e.writeMarker(ctx, path); err != nil {
		return res, fmt.Errorf("write %s: %w", path, err)
	}
	e.log.Info("Wrote parquet", "path", path, "rows", res.Rows, "files", res.Files, "bytes", res.Bytes)
	return res, nil
}

// writeFile encodes one job into a local temp file and hands it to the store.
func (e *Engine) writeFile(ctx context.Context, job fileJob, path, writeID string) (fileResult, error) {
	name := fmt.Sprintf("part-%05d-%s.snappy.parquet", job.index, writeID)
	dest := storage.Join(path, name)
	if job.dir != "" {
		dest = storage.Join(path, job.dir, name)
	}

	localFileName := filepath.Join(e.tempDir, fmt.Sprintf("temp_%d_%s", time.Now().UnixNano(), name))
	if err := writeParquetFile(ctx, job.table, localFileName); err != nil {
		return fileResult{}, fmt.Errorf("%s: %w", dest, err)
	}
	defer func() {
		if err := os.Remove(localFileName); err != nil {
			e.log.Warn("Failed to remove temp file", "path", localFileName, "error", err)
		}
	}()

	n, err := e.store.Put(ctx, localFileName, dest)
	if err != nil {
		return fileResult{}, err
	}
	e.log.Debug("Stored parquet file", "path", dest, "rows", job.table.Len(), "bytes", n)
	return fileResult{rows: int64(job.table.Len()), bytes: n}, nil
}

func (e *Engine) writeMarker(ctx context.Context, path string) error {
	f, err := os.CreateTemp(e.tempDir, "success_*")
	if err != nil {
		return fmt.Errorf("failed to create marker: %w", err)
	}
	f.Close()
	defer os.Remove(f.Name())

	_, err = e.store.Put(ctx, f.Name(), storage.Join(path, SuccessMarker))
	return err
}

// PartitionValue renders a partition column value as a directory name component.
func PartitionValue(v any) string {
	var s string
	switch x := v.(type) {
	case nil:
		return DefaultPartition
	case string:
		s = x
	case int64:
		s = strconv.FormatInt(x, 10)
	case float64:
		s = strconv.FormatFloat(x, 'g', -1, 64)
	case time.Time:
		s = x.Format("2006-01-02")
	default:
		s = fmt.Sprint(x)
	}
	if s == "" {
		return DefaultPartition
	}
	return escapePathName(s)
}

// escapePathName percent-encodes characters that are unsafe in a path
// component, the way Hive-style partition directories are named.
func escapePathName(s string) string {
	const unsafe = "\"#%'*/:=?\\\x7f{[]^"
	var b strings.Builder
	for _, r := range s {
		if r < 0x20 || (r < 0x80 && strings.ContainsRune(unsafe, r)) {
			fmt.Fprintf(&b, "%%%02X", r)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

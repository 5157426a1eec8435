// Package engine implements the tabular engine the pipeline stages run on:
// it reads SAS7BDAT and delimited text files into tables and writes tables
// as (optionally partitioned) parquet datasets.
//
// Inputs and outputs are addressed through a storage.Store, so the same
// engine serves local directories and S3 prefixes. Output files are always
// encoded into the local temp directory first and then handed to the store.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/alitto/pond/v2"

	"i94_etl/internal/logging"
	"i94_etl/internal/storage"
	"i94_etl/internal/table"
)

var (
	// ErrUnsupportedFormat is returned by Read for an unknown Format.
	ErrUnsupportedFormat = errors.New("unsupported format")
	// ErrDestinationExists is returned by Write in ErrorIfExists mode.
	ErrDestinationExists = errors.New("destination already exists")
)

// Format names an input file format.
type Format string

const (
	FormatSAS7BDAT Format = "sas7bdat"
	FormatCSV      Format = "csv"
)

// ReadOptions tunes the readers. Zero values give CSV with a ',' delimiter
// and a header row.
type ReadOptions struct {
	// Delimiter separates CSV fields. Defaults to ','.
	Delimiter rune
	// NoHeader treats the first CSV record as data and names columns _c0, _c1, ...
	NoHeader bool
	// LowercaseNames lower-cases SAS column names.
	LowercaseNames bool
	// InferLong stores SAS numeric columns holding only whole numbers as int64.
	InferLong bool
}

// WriteMode controls what happens to existing data at the destination.
type WriteMode int

const (
	// Overwrite replaces everything under the destination.
	Overwrite WriteMode = iota
	// ErrorIfExists fails when the destination already holds objects.
	ErrorIfExists
)

func (m WriteMode) String() string {
	switch m {
	case Overwrite:
		return "overwrite"
	case ErrorIfExists:
		return "error-if-exists"
	default:
		return fmt.Sprintf("WriteMode(%d)", int(m))
	}
}

// WriteResult summarizes one Write.
type WriteResult struct {
	Path  string `json:"path"`
	Rows  int64  `json:"rows"`
	Files int    `json:"files"`
	Bytes int64  `json:"bytes"`
}

// TabularEngine is what the pipeline needs from the engine.
type TabularEngine interface {
	Read(ctx context.Context, format Format, path string, opts ReadOptions) (*table.Table, error)
	ReadLines(ctx context.Context, path string) ([]string, error)
	Write(ctx context.Context, t *table.Table, path string, mode WriteMode, partitionBy ...string) (WriteResult, error)
}

// Engine is the TabularEngine backed by a storage.Store.
type Engine struct {
	store   storage.Store
	tempDir string
	pool    pond.ResultPool[fileResult]
	log     *slog.Logger
}

var _ TabularEngine = (*Engine)(nil)

// Config configures an Engine.
type Config struct {
	Store   storage.Store
	TempDir string
	// Workers bounds how many partition files are encoded and stored at once.
	Workers int
	Logger  *slog.Logger
}

// New returns an Engine. Close must be called to release its worker pool.
func New(cfg Config) (*Engine, error) {
	if cfg.Store == nil {
		return nil, errors.New("engine: store is required")
	}
	if cfg.TempDir == "" {
		return nil, errors.New("engine: temp dir is required")
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}
	return &Engine{
		store:   cfg.Store,
		tempDir: cfg.TempDir,
		pool:    pond.NewResultPool[fileResult](cfg.Workers),
		log:     cfg.Logger,
	}, nil
}

// Close waits for in-flight writes and stops the worker pool.
func (e *Engine) Close() {
	e.pool.StopAndWait()
}

// Read loads a whole file into a table.
func (e *Engine) Read(ctx context.Context, format Format, path string, opts ReadOptions) (*table.Table, error) {
	e.log.Info("Reading source", "format", format, "path", path)
	var (
		t   *table.Table
		err error
	)
	switch format {
	case FormatCSV:
		t, err = e.readCSV(ctx, path, opts)
	case FormatSAS7BDAT:
		t, err = e.readSAS(ctx, path, opts)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return nil, err
	}
	e.log.Info("Read source", "path", path, "rows", t.Len(), "columns", len(t.Columns()))
	return t, nil
}

// Package pipeline runs the i94 star-schema job: it reads the immigration,
// label, temperature and demography sources through a TabularEngine and
// writes the fact and dimension tables under the destination root.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"

	"i94_etl/internal/config"
	"i94_etl/internal/engine"
	"i94_etl/internal/logging"
	"i94_etl/internal/table"
)

// ErrAccessCheck is returned when the destination access check fails.
var ErrAccessCheck = errors.New("destination access check failed")

// AccessChecker verifies that the destination root is writable.
type AccessChecker interface {
	CheckAccess(ctx context.Context, root string) error
}

// Pipeline runs the four stages in order against one configuration.
type Pipeline struct {
	cfg     *config.Config
	engine  engine.TabularEngine
	ids     table.IDGenerator
	checker AccessChecker
	clock   clockwork.Clock
	log     *slog.Logger

	stats *RunStats
}

// Option configures optional Pipeline dependencies.
type Option func(*Pipeline)

// WithAccessChecker enables the destination access check before the first stage.
func WithAccessChecker(p AccessChecker) Option {
	return func(pl *Pipeline) { pl.checker = p }
}

// WithClock replaces the wall clock used for stage timings.
func WithClock(c clockwork.Clock) Option {
	return func(pl *Pipeline) { pl.clock = c }
}

// New creates a Pipeline. cfg is expected to be validated.
func New(cfg *config.Config, eng engine.TabularEngine, ids table.IDGenerator, log *slog.Logger, opts ...Option) (*Pipeline, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}
	if eng == nil {
		return nil, errors.New("engine cannot be nil")
	}
	if ids == nil {
		return nil, errors.New("id generator cannot be nil")
	}
	if log == nil {
		log = logging.Discard()
	}
	p := &Pipeline{
		cfg:    cfg,
		engine: eng,
		ids:    ids,
		clock:  clockwork.NewRealClock(),
		log:    log,
	}
	for _, opt := range opts {
		opt(p)
	}
	// Stages called outside Run record into these; Run starts over.
	p.stats = newRunStats(p.clock.Now())
	return p, nil
}

type stage struct {
	name    string
	enabled bool
	run     func(context.Context) error
}

func (p *Pipeline) stages() []stage {
	s := p.cfg.Stages
	return []stage{
		{name: "immigration", enabled: s.Immigration, run: p.processImmigration},
		{name: "labels", enabled: s.Labels, run: p.processLabelDescriptions},
		{name: "temperature", enabled: s.Temperature, run: p.processTemperature},
		{name: "demography", enabled: s.Demography, run: p.processDemography},
	}
}

// Run executes every enabled stage in order and stops at the first failure.
// The returned stats are always non-nil and are also written to the
// configured stats file, whether or not the run succeeded.
func (p *Pipeline) Run(ctx context.Context) (*RunStats, error) {
	start := p.clock.Now()
	p.stats = newRunStats(start)
	p.log.Info("Starting ETL pipeline",
		"run_id", p.stats.RunID,
		"source", p.cfg.Paths.SourceRoot,
		"destination", p.cfg.Paths.DestinationRoot)

	err := p.run(ctx)

	p.stats.finish(p.clock.Since(start), err)
	p.writeStats()
	if err != nil {
		p.log.Error("ETL pipeline failed", "error", err, logging.Since(start, p.clock.Now()))
		return p.stats, err
	}
	p.log.Info("ETL pipeline completed",
		"tables", len(p.stats.Tables),
		"rows", p.stats.TotalRowsWritten,
		logging.Since(start, p.clock.Now()))
	return p.stats, nil
}

func (p *Pipeline) run(ctx context.Context) error {
	if p.cfg.Write.VerifyAccess && p.checker != nil {
		p.log.Info("Testing destination access", "root", p.cfg.Paths.DestinationRoot)
		if err := p.checker.CheckAccess(ctx, p.cfg.Paths.DestinationRoot); err != nil {
			return fmt.Errorf("%w: %w", ErrAccessCheck, err)
		}
	}

	for _, s := range p.stages() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !s.enabled {
			p.log.Info("Skipping disabled stage", "stage", s.name)
			p.stats.addStage(s.name, StageSkipped, 0)
			continue
		}

		p.log.Info("Starting stage", "stage", s.name)
		started := p.clock.Now()
		err := s.run(ctx)
		elapsed := p.clock.Since(started)
		if err != nil {
			p.stats.addStage(s.name, StageFailed, elapsed)
			return fmt.Errorf("%s stage: %w", s.name, err)
		}
		p.stats.addStage(s.name, StageOK, elapsed)
		p.log.Info("Stage completed", "stage", s.name, logging.Since(started, p.clock.Now()))
	}
	return nil
}

// write overwrites the named table under the destination root.
func (p *Pipeline) write(ctx context.Context, name string, t *table.Table, partitionBy ...string) error {
	res, err := p.engine.Write(ctx, t, p.cfg.Destination(name), engine.Overwrite, partitionBy...)
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	p.stats.addTable(name, res)
	p.log.Info("Wrote table", "table", name, "rows", res.Rows, "files", res.Files, "path", res.Path)
	return nil
}

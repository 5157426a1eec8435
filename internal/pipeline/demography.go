package pipeline

import (
	"context"
	"fmt"

	"i94_etl/internal/convert"
	"i94_etl/internal/engine"
	"i94_etl/internal/table"
)

const (
	TableDemogPopulation = "d_demog_population"
	TableDemogStatistics = "d_demog_statistics"
)

var (
	populationSource = []string{"City", "State", "Male Population", "Female Population", "Number of Veterans", "Foreign-born", "Race"}
	populationTarget = []string{"city", "state", "male_population", "female_population", "num_vetarans", "foreign_born", "race"}

	statisticsSource = []string{"City", "State", "Median Age", "Average Household Size"}
	statisticsTarget = []string{"city", "state", "median_age", "avg_household_size"}
)

// processDemography derives the population and statistics dimensions from
// the semicolon-delimited city demographics file.
func (p *Pipeline) processDemography(ctx context.Context) error {
	df, err := p.engine.Read(ctx, engine.FormatCSV, p.cfg.Source(p.cfg.Paths.DemographyFile),
		engine.ReadOptions{Delimiter: ';'})
	if err != nil {
		return err
	}

	p.log.Info("Start processing d_demog_population")
	population, err := populationTable(df, p.ids)
	if err != nil {
		return fmt.Errorf("%s: %w", TableDemogPopulation, err)
	}
	if err := p.write(ctx, TableDemogPopulation, population); err != nil {
		return err
	}

	p.log.Info("Start processing d_demog_statistics")
	statistics, err := statisticsTable(df, p.ids)
	if err != nil {
		return fmt.Errorf("%s: %w", TableDemogStatistics, err)
	}
	return p.write(ctx, TableDemogStatistics, statistics)
}

func populationTable(df *table.Table, ids table.IDGenerator) (*table.Table, error) {
	steps := dimension(populationSource, populationTarget, "demog_pop_id", ids)
	steps = append(steps,
		mapColumns(table.Int64, convert.ToInt, "male_population", "female_population", "num_vetarans", "foreign_born"),
	)
	return apply(df, steps...)
}

// statisticsTable upper-cases city and state after deduplication, so rows
// differing only in case stay distinct.
func statisticsTable(df *table.Table, ids table.IDGenerator) (*table.Table, error) {
	steps := dimension(statisticsSource, statisticsTarget, "demog_stat_id", ids)
	steps = append(steps,
		mapColumns(table.String, convert.Upper, "city", "state"),
		mapColumns(table.Float64, convert.ToFloat, "median_age", "avg_household_size"),
	)
	return apply(df, steps...)
}

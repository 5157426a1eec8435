package pipeline

import (
	"context"
	"fmt"

	"i94_etl/internal/convert"
	"i94_etl/internal/engine"
	"i94_etl/internal/table"
)

const TableTemperature = "d_temperature"

var (
	temperatureSource = []string{"dt", "AverageTemperature", "AverageTemperatureUncertainty", "City", "Country"}
	temperatureTarget = []string{"dt", "avg_temp", "avg_temp_uncertnty", "city", "country"}
)

func (p *Pipeline) processTemperature(ctx context.Context) error {
	df, err := p.engine.Read(ctx, engine.FormatCSV, p.cfg.Source(p.cfg.Paths.TemperatureFile), engine.ReadOptions{})
	if err != nil {
		return err
	}

	p.log.Info("Start processing d_temperature", "country", p.cfg.Temperature.Country)
	t, err := temperatureTable(df, p.cfg.Temperature.Country)
	if err != nil {
		return fmt.Errorf("%s: %w", TableTemperature, err)
	}
	return p.write(ctx, TableTemperature, t)
}

// temperatureTable keeps one country's distinct observations and adds the
// year and month of each observation date. Bad dates and temperatures become null.
func temperatureTable(df *table.Table, country string) (*table.Table, error) {
	return apply(df,
		where("Country", convert.Equals(country)),
		selectColumns(temperatureSource...),
		distinct(),
		rename(temperatureTarget...),
		mapColumns(table.Date, convert.ParseDate, "dt"),
		mapColumns(table.Float64, convert.ToFloat, "avg_temp", "avg_temp_uncertnty"),
		derive("year", table.Int64, "dt", convert.Year),
		derive("month", table.Int64, "dt", convert.Month),
	)
}

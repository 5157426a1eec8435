package pipeline

import (
	"context"
	"fmt"

	"i94_etl/internal/convert"
	"i94_etl/internal/engine"
	"i94_etl/internal/table"
)

const (
	TableImmigration = "f_immigration"
	TableCitizen     = "d_citizen"
	TableAirline     = "d_airline"

	// ImmigrationPartition is the column f_immigration is partitioned by.
	ImmigrationPartition = "state_code"
	immigrationCountry   = "United States"
)

var (
	factSource = []string{"cicid", "i94yr", "i94mon", "i94port", "i94addr", "arrdate", "depdate", "i94mode", "i94visa"}
	factTarget = []string{"cic_id", "year", "month", "city_code", "state_code", "arrive_date", "departure_date", "mode", "visa"}

	citizenSource = []string{"cicid", "i94cit", "i94res", "biryear", "gender", "insnum"}
	citizenTarget = []string{"cic_id", "citizen_country", "residence_country", "birth_year", "gender", "ins_num"}

	airlineSource = []string{"cicid", "airline", "admnum", "fltno", "visatype"}
	airlineTarget = []string{"cic_id", "airline", "admin_num", "flight_number", "visa_type"}
)

// processImmigration derives f_immigration, d_citizen and d_airline from the I94 records.
func (p *Pipeline) processImmigration(ctx context.Context) error {
	df, err := p.engine.Read(ctx, engine.FormatSAS7BDAT, p.cfg.Source(p.cfg.Paths.ImmigrationFile),
		engine.ReadOptions{LowercaseNames: true, InferLong: true})
	if err != nil {
		return err
	}

	p.log.Info("Start processing f_immigration")
	fact, err := immigrationFact(df, p.ids)
	if err != nil {
		return fmt.Errorf("%s: %w", TableImmigration, err)
	}
	if err := p.write(ctx, TableImmigration, fact, ImmigrationPartition); err != nil {
		return err
	}

	p.log.Info("Start processing d_citizen")
	citizen, err := apply(df, dimension(citizenSource, citizenTarget, "immi_citizen_id", p.ids)...)
	if err != nil {
		return fmt.Errorf("%s: %w", TableCitizen, err)
	}
	if err := p.write(ctx, TableCitizen, citizen); err != nil {
		return err
	}

	p.log.Info("Start processing d_airline")
	airline, err := apply(df, dimension(airlineSource, airlineTarget, "immi_airline_id", p.ids)...)
	if err != nil {
		return fmt.Errorf("%s: %w", TableAirline, err)
	}
	return p.write(ctx, TableAirline, airline)
}

// immigrationFact builds the fact table: one row per distinct record, with
// a constant country and SAS day offsets turned into dates.
func immigrationFact(df *table.Table, ids table.IDGenerator) (*table.Table, error) {
	steps := dimension(factSource, factTarget, "immigration_id", ids)
	steps = append(steps,
		literal("country", immigrationCountry),
		mapColumns(table.Date, convert.SASDate, "arrive_date", "departure_date"),
	)
	return apply(df, steps...)
}

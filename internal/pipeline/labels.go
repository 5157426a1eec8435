package pipeline

import (
	"context"

	"i94_etl/internal/labels"
)

// processLabelDescriptions writes the country, city and state code lookups.
func (p *Pipeline) processLabelDescriptions(ctx context.Context) error {
	lines, err := p.engine.ReadLines(ctx, p.cfg.Source(p.cfg.Paths.LabelsFile))
	if err != nil {
		return err
	}

	lookups, err := labels.Extract(lines, p.cfg.LabelRules())
	if err != nil {
		return err
	}
	for _, l := range lookups {
		p.log.Info("Extracted codes", "table", l.Rule.Name, "codes", l.Len(),
			"lines", [2]int{l.Rule.Start, l.Rule.End})
		if err := p.write(ctx, l.Rule.Name, l.Table()); err != nil {
			return err
		}
	}
	return nil
}

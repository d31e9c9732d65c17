package statistics

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/hvalfangst/csvstats/internal/pipeline"
)

// Pipeline computes income correlations for an uploaded CSV.
type Pipeline struct {
	outputKey string
	logger    zerolog.Logger
}

func NewPipeline(outputKey string, logger zerolog.Logger) *Pipeline {
	return &Pipeline{outputKey: outputKey, logger: logger}
}

func (p *Pipeline) Name() string {
	return "statistics"
}

func (p *Pipeline) OutputKey() string {
	return p.outputKey
}

func (p *Pipeline) Validate(input []byte) error {
	if len(input) == 0 {
		return &ParseError{Reason: "input is empty"}
	}
	return nil
}

func (p *Pipeline) Transform(ctx context.Context, input []byte) (*pipeline.Output, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ds, err := ParseDataset(input)
	if err != nil {
		return nil, err
	}
	p.logger.Info().Int("rows", ds.Len()).Msg("Parsed dataset")

	report := Compute(ds)
	p.logger.Info().
		Float64("gender_to_income_corr", float64(report.GenderToIncome)).
		Float64("experience_to_income_corr", float64(report.ExperienceToIncome)).
		Float64("state_to_income_corr", float64(report.StateToIncome)).
		Msg("Computed correlations")

	data, err := report.MarshalIndent()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize report: %w", err)
	}
	return &pipeline.Output{Data: data, Rows: ds.Len()}, nil
}

var _ pipeline.Pipeline = (*Pipeline)(nil)

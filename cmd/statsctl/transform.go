package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/hvalfangst/csvstats/internal/pipeline/statistics"
)

func runTransform(c *cli.Context) error {
	input, err := os.ReadFile(c.Path("file"))
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", c.Path("file"), err)
	}

	p := statistics.NewPipeline("", zerolog.Nop())
	if err := p.Validate(input); err != nil {
		return err
	}
	out, err := p.Transform(c.Context, input)
	if err != nil {
		return err
	}

	if path := c.Path("out"); path != "" {
		return os.WriteFile(path, out.Data, 0o644)
	}
	fmt.Fprintln(c.App.Writer, string(out.Data))
	return nil
}

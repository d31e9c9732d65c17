package main

import (
	"database/sql"
	"fmt"
	"text/tabwriter"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/urfave/cli/v2"

	"github.com/hvalfangst/csvstats/internal/pipeline"
	"github.com/hvalfangst/csvstats/internal/repository/postgres"
)

func runRuns(c *cli.Context) error {
	// Initialize database connection
	db, err := sql.Open("pgx", c.String("db-url"))
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	// Test the connection
	if err := db.PingContext(c.Context); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	repo := pipeline.NewRepository(postgres.Wrap(sqlx.NewDb(db, "pgx"), 1))
	runs, err := repo.ListRecent(c.Context, c.Int("limit"))
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTARTED\tPIPELINE\tINPUT\tSTATUS\tROWS\tDURATION\tERROR")
	for _, run := range runs {
		duration := "-"
		if run.CompletedAt != nil {
			duration = run.CompletedAt.Sub(run.StartedAt).Round(time.Millisecond).String()
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			run.ID,
			run.StartedAt.Format(time.RFC3339),
			run.PipelineName,
			run.InputKey,
			run.Status,
			run.TotalRows,
			duration,
			run.ErrorMessage,
		)
	}
	return w.Flush()
}

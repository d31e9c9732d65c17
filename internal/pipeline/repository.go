package pipeline

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/hvalfangst/csvstats/internal/repository/postgres"
)

const schema = `
CREATE TABLE IF NOT EXISTS pipeline_runs (
	id            BIGSERIAL PRIMARY KEY,
	invocation_id TEXT        NOT NULL,
	pipeline_name TEXT        NOT NULL,
	input_key     TEXT        NOT NULL,
	output_key    TEXT        NOT NULL,
	etag          TEXT        NOT NULL DEFAULT '',
	status        TEXT        NOT NULL,
	total_rows    INTEGER     NOT NULL DEFAULT 0,
	started_at    TIMESTAMPTZ NOT NULL,
	completed_at  TIMESTAMPTZ,
	error_message TEXT        NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_pipeline_runs_started_at ON pipeline_runs (started_at DESC);
`

// Repository handles database operations for pipeline tracking
type Repository struct {
	db *postgres.DB
}

// NewRepository creates a new pipeline repository
func NewRepository(db *postgres.DB) *Repository {
	return &Repository{db: db}
}

// EnsureSchema creates the pipeline_runs table when it does not exist
func (r *Repository) EnsureSchema(ctx context.Context) error {
	return r.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, schema); err != nil {
			return fmt.Errorf("failed to create pipeline_runs: %w", err)
		}
		return nil
	})
}

// CreatePipelineRun creates a new pipeline run record
func (r *Repository) CreatePipelineRun(ctx context.Context, run *PipelineRun) error {
	query := `
		INSERT INTO pipeline_runs (
			invocation_id, pipeline_name, input_key, output_key,
			etag, status, total_rows, started_at
		) VALUES (
			:invocation_id, :pipeline_name, :input_key, :output_key,
			:etag, :status, :total_rows, :started_at
		)
		RETURNING id
	`

	return r.db.Do(ctx, func(ctx context.Context) error {
		rows, err := sqlx.NamedQueryContext(ctx, r.db, query, run)
		if err != nil {
			return fmt.Errorf("failed to insert pipeline run: %w", err)
		}
		defer rows.Close()

		if rows.Next() {
			if err := rows.Scan(&run.ID); err != nil {
				return fmt.Errorf("failed to read pipeline run id: %w", err)
			}
		}
		return rows.Err()
	})
}

// UpdatePipelineRun updates an existing pipeline run
func (r *Repository) UpdatePipelineRun(ctx context.Context, run *PipelineRun) error {
	query := `
		UPDATE pipeline_runs
		SET status = :status, total_rows = :total_rows,
		    completed_at = :completed_at, error_message = :error_message
		WHERE id = :id
	`

	return r.db.Do(ctx, func(ctx context.Context) error {
		if _, err := r.db.NamedExecContext(ctx, query, run); err != nil {
			return fmt.Errorf("failed to update pipeline run %d: %w", run.ID, err)
		}
		return nil
	})
}

// ListRecent returns the newest runs first
func (r *Repository) ListRecent(ctx context.Context, limit int) ([]PipelineRun, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `
		SELECT id, invocation_id, pipeline_name, input_key, output_key, etag,
		       status, total_rows, started_at, completed_at, error_message
		FROM pipeline_runs
		ORDER BY started_at DESC
		LIMIT $1
	`

	var runs []PipelineRun
	err := r.db.Do(ctx, func(ctx context.Context) error {
		return r.db.SelectContext(ctx, &runs, query, limit)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list pipeline runs: %w", err)
	}
	return runs, nil
}

var _ RunRecorder = (*Repository)(nil)

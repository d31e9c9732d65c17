package pipeline

import (
	"context"
	"time"
)

// Pipeline defines the interface that all object-triggered pipelines must implement
type Pipeline interface {
	// Name returns the unique identifier for this pipeline
	Name() string

	// Validate checks if the input object is acceptable before transforming it
	Validate(input []byte) error

	// Transform processes a single input object and returns the bytes to persist
	Transform(ctx context.Context, input []byte) (*Output, error)

	// OutputKey returns the object key the result is written to
	OutputKey() string
}

// Output is the result of a successful Transform.
type Output struct {
	Data []byte
	Rows int
}

// PipelineStatus represents the current state of a pipeline run
type PipelineStatus string

const (
	StatusProcessing PipelineStatus = "processing"
	StatusCompleted  PipelineStatus = "completed"
	StatusFailed     PipelineStatus = "failed"
)

// PipelineRun tracks a single invocation of a pipeline for one object event
type PipelineRun struct {
	ID           int64          `db:"id"`
	InvocationID string         `db:"invocation_id"`
	PipelineName string         `db:"pipeline_name"`
	InputKey     string         `db:"input_key"`
	OutputKey    string         `db:"output_key"`
	ETag         string         `db:"etag"`
	Status       PipelineStatus `db:"status"`
	TotalRows    int            `db:"total_rows"`
	StartedAt    time.Time      `db:"started_at"`
	CompletedAt  *time.Time     `db:"completed_at"`
	ErrorMessage string         `db:"error_message"`
}

// RunRecorder persists PipelineRun rows. Recording is best effort: the
// worker logs recorder errors and carries on.
type RunRecorder interface {
	CreatePipelineRun(ctx context.Context, run *PipelineRun) error
	UpdatePipelineRun(ctx context.Context, run *PipelineRun) error
}

type nopRecorder struct{}

func (nopRecorder) CreatePipelineRun(context.Context, *PipelineRun) error { return nil }
func (nopRecorder) UpdatePipelineRun(context.Context, *PipelineRun) error { return nil }

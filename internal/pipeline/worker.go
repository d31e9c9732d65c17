package pipeline

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hvalfangst/csvstats/internal/storage"
)

// Worker runs one Pipeline against object events: fetch, validate,
// transform, write, record.
type Worker struct {
	pipeline Pipeline
	store    storage.ObjectStorage
	repo     RunRecorder
	logger   zerolog.Logger
	now      func() time.Time
}

// NewWorker creates a new pipeline worker. repo may be nil when no run
// ledger is configured.
func NewWorker(p Pipeline, store storage.ObjectStorage, repo RunRecorder, logger zerolog.Logger) *Worker {
	if repo == nil {
		repo = nopRecorder{}
	}
	return &Worker{
		pipeline: p,
		store:    store,
		repo:     repo,
		logger:   logger.With().Str("pipeline", p.Name()).Logger(),
		now:      time.Now,
	}
}

// Name returns the name of the wrapped pipeline.
func (w *Worker) Name() string {
	return w.pipeline.Name()
}

// Handle processes the object named by event. Failures are logged and
// recorded, never returned: a failed invocation simply writes no output.
// The returned run describes what happened.
func (w *Worker) Handle(ctx context.Context, event storage.ObjectEvent) *PipelineRun {
	run := &PipelineRun{
		InvocationID: uuid.NewString(),
		PipelineName: w.pipeline.Name(),
		InputKey:     event.Key,
		OutputKey:    w.pipeline.OutputKey(),
		ETag:         event.ETag,
		Status:       StatusProcessing,
		StartedAt:    w.now(),
	}
	logger := w.logger.With().
		Str("invocation_id", run.InvocationID).
		Str("input_key", run.InputKey).
		Logger()

	if err := w.repo.CreatePipelineRun(ctx, run); err != nil {
		logger.Warn().Err(err).Msg("failed to record pipeline run")
	}

	logger.Info().Msg("Processing object")

	rows, err := w.process(ctx, logger, event.Key)
	completed := w.now()
	run.CompletedAt = &completed
	if err != nil {
		run.Status = StatusFailed
		run.ErrorMessage = err.Error()
		logger.Error().Err(err).Msg("Pipeline run failed; no output written")
	} else {
		run.Status = StatusCompleted
		run.TotalRows = rows
		logger.Info().
			Str("output_key", run.OutputKey).
			Int("rows", rows).
			Dur("duration", completed.Sub(run.StartedAt)).
			Msg("Pipeline run completed")
	}

	if err := w.repo.UpdatePipelineRun(ctx, run); err != nil {
		logger.Warn().Err(err).Msg("failed to update pipeline run")
	}
	return run
}

func (w *Worker) process(ctx context.Context, logger zerolog.Logger, key string) (rows int, err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Bytes("stack", debug.Stack()).Msg("pipeline panicked")
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	input, err := w.store.GetObject(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("failed to read %s: %w", key, err)
	}
	logger.Info().Int("bytes", len(input)).Msg("Fetched input object")

	if err := w.pipeline.Validate(input); err != nil {
		return 0, fmt.Errorf("validation failed: %w", err)
	}

	out, err := w.pipeline.Transform(ctx, input)
	if err != nil {
		return 0, fmt.Errorf("transformation failed: %w", err)
	}

	if err := w.store.PutObject(ctx, w.pipeline.OutputKey(), out.Data); err != nil {
		return 0, fmt.Errorf("failed to write %s: %w", w.pipeline.OutputKey(), err)
	}
	return out.Rows, nil
}

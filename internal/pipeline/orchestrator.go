package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/hvalfangst/csvstats/internal/storage"
)

type binding struct {
	key    string
	worker *Worker
}

// Orchestrator is the execution host for object-triggered workers. Workers
// are bound explicitly to an object key; Run subscribes to the notifier and
// dispatches matching events.
type Orchestrator struct {
	notifier storage.Notifier
	logger   zerolog.Logger
	bindings []binding
}

// NewOrchestrator creates a new Orchestrator.
func NewOrchestrator(notifier storage.Notifier, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		notifier: notifier,
		logger:   logger,
	}
}

// OnObjectCreated binds w to events for exactly key. Must be called before Run.
func (o *Orchestrator) OnObjectCreated(key string, w *Worker) {
	o.bindings = append(o.bindings, binding{key: storage.NormalizeKey(key), worker: w})
}

// Run subscribes every binding and dispatches events until ctx is cancelled.
// Events for one binding are handled one at a time; bindings run side by side.
func (o *Orchestrator) Run(ctx context.Context) error {
	if len(o.bindings) == 0 {
		return errors.New("no workers registered")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	for _, b := range o.bindings {
		events, err := o.notifier.Watch(ctx, b.key)
		if err != nil {
			cancel()
			_ = g.Wait()
			return fmt.Errorf("failed to watch %s: %w", b.key, err)
		}

		b := b
		g.Go(func() error {
			o.dispatch(ctx, b, events)
			return nil
		})
	}

	o.logger.Info().Int("bindings", len(o.bindings)).Msg("Orchestrator started")
	err := g.Wait()
	o.logger.Info().Msg("Orchestrator stopped")
	return err
}

func (o *Orchestrator) dispatch(ctx context.Context, b binding, events <-chan storage.ObjectEvent) {
	logger := o.logger.With().Str("key", b.key).Str("pipeline", b.worker.Name()).Logger()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				logger.Warn().Msg("event stream closed")
				return
			}
			// prefix watches may deliver neighbouring keys
			if storage.NormalizeKey(ev.Key) != b.key {
				continue
			}
			logger.Debug().Str("source", ev.Source).Str("etag", ev.ETag).Msg("Object created")
			b.worker.Handle(ctx, ev)
		}
	}
}

package intake

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
)

// Runner is the consume-execute-publish loop.
//
// Batches are processed one at a time, in arrival order. The environment
// is a single stateful machine, so there is nothing to gain from pulling
// ahead: a second batch would only block on the service mutex while its
// message sat unacknowledged.
type Runner struct {
	source Source
	sink   Sink
	exec   BatchExecutor
	logger *slog.Logger
}

// NewRunner wires a source and sink to the execution service.
func NewRunner(source Source, sink Sink, exec BatchExecutor, logger *slog.Logger) *Runner {
	return &Runner{
		source: source,
		sink:   sink,
		exec:   exec,
		logger: logger,
	}
}

// Run consumes batches until the context is cancelled or the source
// signals completion via io.EOF. Both are clean shutdowns and return nil;
// any other source error is fatal and returned.
//
// A batch the service rejects (validation, environment down) is reported
// on the sink with its error and the loop moves on. A sink failure is
// logged but doesn't stop consumption — the run is already recorded in
// history, losing the notification is the lesser harm.
func (r *Runner) Run(ctx context.Context) error {
	for {
		batch, err := r.source.NextBatch(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("next batch: %w", err)
		}

		r.logger.Info("batch received",
			slog.String("batchID", batch.ID),
			slog.Int("blocks", len(batch.Blocks)),
		)

		report := Report{Batch: batch}
		report.Run, report.Err = r.exec.Execute(ctx, batch.Blocks)
		if report.Err != nil {
			r.logger.Warn("batch rejected",
				slog.String("batchID", batch.ID),
				slog.String("error", report.Err.Error()),
			)
		}

		if err := r.sink.Publish(ctx, report); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			r.logger.Error("failed to publish report",
				slog.String("batchID", batch.ID),
				slog.String("error", err.Error()),
			)
		}
	}
}

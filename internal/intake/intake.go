// Package intake pulls code batches from a queue and feeds them to the
// execution service, publishing each outcome on a result topic.
//
// The HTTP API is synchronous: submit a batch, wait for the response.
// Intake is the asynchronous path for the same work — a producer drops
// batches on a topic and collects results later. Both paths converge on
// the same service, so batches from either source are serialized against
// the single environment.
package intake

import (
	"context"

	"shellbox/internal/executor"
	"shellbox/internal/model"
)

// Batch is a queued execution request.
type Batch struct {
	ID     string
	Blocks []executor.CodeBlock
}

// Report is the outcome of one batch. Exactly one of Run and Err is
// meaningful: Run when the batch reached the environment (even if a block
// failed), Err when the batch was rejected before execution.
type Report struct {
	Batch Batch
	Run   *model.Run
	Err   error
}

// Source produces batches. NextBatch blocks until a batch arrives, the
// context is cancelled, or the stream ends; a "done" marker from the
// producer surfaces as io.EOF.
type Source interface {
	NextBatch(ctx context.Context) (Batch, error)
	Close() error
}

// Sink receives reports for completed batches.
type Sink interface {
	Publish(ctx context.Context, report Report) error
	Close() error
}

// BatchExecutor is the slice of the run service the intake loop needs.
type BatchExecutor interface {
	Execute(ctx context.Context, blocks []executor.CodeBlock) (*model.Run, error)
}

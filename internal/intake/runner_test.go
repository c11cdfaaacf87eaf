package intake

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"testing"

	"shellbox/internal/apperror"
	"shellbox/internal/executor"
	"shellbox/internal/model"
)

type scriptedSource struct {
	batches []Batch
	index   int
	err     error
	closed  bool
}

func (s *scriptedSource) NextBatch(ctx context.Context) (Batch, error) {
	if err := ctx.Err(); err != nil {
		return Batch{}, err
	}
	if s.index < len(s.batches) {
		batch := s.batches[s.index]
		s.index++
		return batch, nil
	}
	if s.err != nil {
		return Batch{}, s.err
	}
	return Batch{}, io.EOF
}

func (s *scriptedSource) Close() error {
	s.closed = true
	return nil
}

type recordingSink struct {
	reports []Report
	err     error
}

func (s *recordingSink) Publish(_ context.Context, report Report) error {
	if s.err != nil {
		return s.err
	}
	s.reports = append(s.reports, report)
	return nil
}

func (s *recordingSink) Close() error { return nil }

type stubExecutor struct {
	run   *model.Run
	err   error
	calls int
}

func (e *stubExecutor) Execute(_ context.Context, blocks []executor.CodeBlock) (*model.Run, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	if e.run != nil {
		return e.run, nil
	}
	return &model.Run{ID: "run-1", Blocks: len(blocks), Output: "ok\n"}, nil
}

func testRunner(source Source, sink Sink, exec BatchExecutor) *Runner {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewRunner(source, sink, exec, logger)
}

func TestRunProcessesBatchesInOrder(t *testing.T) {
	source := &scriptedSource{batches: []Batch{
		{ID: "b1", Blocks: []executor.CodeBlock{{Language: "python", Code: "print(1)"}}},
		{ID: "b2", Blocks: []executor.CodeBlock{{Language: "bash", Code: "echo 2"}}},
	}}
	sink := &recordingSink{}
	exec := &stubExecutor{}

	err := testRunner(source, sink, exec).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if exec.calls != 2 {
		t.Errorf("executor called %d times, want 2", exec.calls)
	}
	if len(sink.reports) != 2 {
		t.Fatalf("published %d reports, want 2", len(sink.reports))
	}
	if sink.reports[0].Batch.ID != "b1" || sink.reports[1].Batch.ID != "b2" {
		t.Errorf("reports out of order: %q, %q", sink.reports[0].Batch.ID, sink.reports[1].Batch.ID)
	}
	if sink.reports[0].Run == nil || sink.reports[0].Err != nil {
		t.Errorf("expected a successful report, got %+v", sink.reports[0])
	}
}

func TestRunStopsCleanlyOnEOF(t *testing.T) {
	source := &scriptedSource{}
	err := testRunner(source, &recordingSink{}, &stubExecutor{}).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() should treat io.EOF as clean shutdown, got %v", err)
	}
}

func TestRunStopsCleanlyOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	source := &scriptedSource{batches: []Batch{{ID: "b1"}}}
	err := testRunner(source, &recordingSink{}, &stubExecutor{}).Run(ctx)
	if err != nil {
		t.Fatalf("Run() should treat cancellation as clean shutdown, got %v", err)
	}
}

func TestRunReturnsSourceErrors(t *testing.T) {
	source := &scriptedSource{err: errors.New("broker unreachable")}
	err := testRunner(source, &recordingSink{}, &stubExecutor{}).Run(context.Background())
	if err == nil {
		t.Fatal("Run() should surface source errors")
	}
}

func TestRunPublishesRejections(t *testing.T) {
	// A rejected batch produces a report with the error and the loop
	// keeps consuming.
	source := &scriptedSource{batches: []Batch{
		{ID: "b1"},
		{ID: "b2", Blocks: []executor.CodeBlock{{Language: "python", Code: "print(1)"}}},
	}}
	sink := &recordingSink{}
	exec := &stubExecutor{}
	exec.err = apperror.EmptyBatch()

	err := testRunner(source, sink, exec).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(sink.reports) != 2 {
		t.Fatalf("published %d reports, want 2", len(sink.reports))
	}
	if sink.reports[0].Err == nil {
		t.Error("first report should carry the rejection error")
	}
	if sink.reports[0].Run != nil {
		t.Error("rejected batch should have no run")
	}
}

func TestRunContinuesPastSinkFailure(t *testing.T) {
	source := &scriptedSource{batches: []Batch{
		{ID: "b1", Blocks: []executor.CodeBlock{{Language: "python", Code: "print(1)"}}},
		{ID: "b2", Blocks: []executor.CodeBlock{{Language: "python", Code: "print(2)"}}},
	}}
	sink := &recordingSink{err: errors.New("topic gone")}
	exec := &stubExecutor{}

	err := testRunner(source, sink, exec).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if exec.calls != 2 {
		t.Errorf("executor called %d times, want 2 (sink failures must not stop intake)", exec.calls)
	}
}

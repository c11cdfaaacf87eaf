// Package service contains the business logic layer of the application.
//
// THE THREE-LAYER ARCHITECTURE:
//
//	Handler (HTTP layer)     → parses requests, writes responses
//	Service (Business layer) → validates, enforces rules, orchestrates
//	Repository (Data layer)  → reads/writes to the database
//
// The service layer is also where the execution engine and the environment
// lifecycle meet: it is the one caller that knows a batch must not overlap
// another batch, and that a restart must not race a batch.
//
// DEPENDENCY INJECTION:
// RunService takes interfaces (BatchEngine, Environment, RunRepository),
// not concrete types. Tests pass hand-written fakes; main passes the real
// engine, manager, and SQLite repository.
package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"shellbox/internal/apperror"
	"shellbox/internal/environ"
	"shellbox/internal/executor"
	"shellbox/internal/model"
	"shellbox/internal/repository"
)

const (
	DefaultListLimit = 20
	MaxListLimit     = 100

	// MaxBlockLength bounds a single code block (~100KB).
	MaxBlockLength = 100000
)

// BatchEngine runs a batch of code blocks. *executor.Engine satisfies it.
type BatchEngine interface {
	Execute(ctx context.Context, blocks []executor.CodeBlock) (*executor.Result, error)
}

// Environment is the lifecycle surface the service drives.
// *environ.Manager satisfies it.
type Environment interface {
	State() environ.State
	ConnectionInfo() (environ.ConnectionInfo, error)
	Restart(ctx context.Context) error
	Stop() error
}

// EnvironmentStatus is the externally visible view of the environment.
type EnvironmentStatus struct {
	State string `json:"state"`
	Host  string `json:"host,omitempty"`
	Port  int    `json:"port,omitempty"`
	User  string `json:"user,omitempty"`
}

// RunService executes batches against the single environment and keeps
// their history. The mutex serializes batches with each other and with
// restarts: the environment is stateful, so interleaving would let one
// batch observe another's half-written files.
type RunService struct {
	engine    BatchEngine
	env       Environment
	transport io.Closer
	repo      repository.RunRepository
	logger    *slog.Logger

	mu sync.Mutex
}

// NewRunService wires the execution engine, the environment lifecycle, and
// the history repository together.
func NewRunService(engine BatchEngine, env Environment, transport io.Closer, repo repository.RunRepository, logger *slog.Logger) *RunService {
	return &RunService{
		engine:    engine,
		env:       env,
		transport: transport,
		repo:      repo,
		logger:    logger,
	}
}

// Execute validates and runs one batch, records it, and returns the run.
// Batches are strictly sequential; a second caller blocks until the first
// batch finishes.
func (s *RunService) Execute(ctx context.Context, blocks []executor.CodeBlock) (*model.Run, error) {
	if len(blocks) == 0 {
		return nil, apperror.EmptyBatch()
	}
	for i, block := range blocks {
		if strings.TrimSpace(block.Language) == "" {
			return nil, apperror.ValidationFailed("language",
				fmt.Sprintf("block %d has no language", i))
		}
		if len(block.Code) > MaxBlockLength {
			return nil, apperror.ValidationFailed("code",
				fmt.Sprintf("block %d exceeds %d characters", i, MaxBlockLength))
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if state := s.env.State(); state != environ.StateReady {
		return nil, &apperror.AppError{
			Err:     apperror.ErrEnvironment,
			Message: fmt.Sprintf("environment is %s", state),
		}
	}

	start := time.Now()
	result, err := s.engine.Execute(ctx, blocks)
	if err != nil {
		return nil, err
	}

	run := &model.Run{
		Blocks:    len(blocks),
		ExitCode:  result.ExitCode,
		Output:    result.Output,
		FirstFile: result.FirstFile,
		Duration:  time.Since(start),
	}

	// History is bookkeeping; the batch already ran. Losing the record is
	// worth a log line, not a failed response.
	if err := s.repo.Create(ctx, run); err != nil {
		s.logger.Error("failed to record run", slog.String("error", err.Error()))
	}

	s.logger.Info("batch executed",
		slog.String("id", run.ID),
		slog.Int("blocks", run.Blocks),
		slog.Int("exitCode", run.ExitCode),
		slog.Duration("took", run.Duration),
	)
	return run, nil
}

// GetRun retrieves a recorded run by its ID.
// Returns apperror.ErrNotFound if it doesn't exist.
func (s *RunService) GetRun(ctx context.Context, id string) (*model.Run, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperror.ValidationFailed("id", "run ID is required")
	}
	return s.repo.GetByID(ctx, id)
}

// ListRuns retrieves run history with pagination, newest first.
func (s *RunService) ListRuns(ctx context.Context, limit, offset int) ([]model.Run, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	if offset < 0 {
		offset = 0
	}

	runs, err := s.repo.List(ctx, repository.ListOptions{Limit: limit, Offset: offset})
	if err != nil {
		s.logger.Error("failed to list runs", slog.String("error", err.Error()))
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	return runs, nil
}

// DeleteRun removes a run from history.
func (s *RunService) DeleteRun(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return apperror.ValidationFailed("id", "run ID is required")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("run deleted", slog.String("id", id))
	return nil
}

// Restart reboots the environment. It takes the batch lock, so an
// in-flight batch finishes first and no batch starts mid-reboot.
func (s *RunService) Restart(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.env.Restart(ctx); err != nil {
		return err
	}
	s.logger.Info("environment restarted")
	return nil
}

// EnvironmentStatus reports the environment state and, when ready, its
// SSH coordinates.
func (s *RunService) EnvironmentStatus() EnvironmentStatus {
	status := EnvironmentStatus{State: s.env.State().String()}
	if info, err := s.env.ConnectionInfo(); err == nil {
		status.Host = info.Host
		status.Port = info.Port
		status.User = info.User
	}
	return status
}

// Stop closes the transport and destroys the environment. Idempotent, and
// waits for an in-flight batch before tearing anything down.
func (s *RunService) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.transport != nil {
		if err := s.transport.Close(); err != nil {
			s.logger.Warn("failed to close transport", slog.String("error", err.Error()))
		}
	}
	return s.env.Stop()
}

package environ

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"shellbox/internal/apperror"
)

const (
	defaultReadyTimeout = 60 * time.Second
	defaultPollInterval = 100 * time.Millisecond
	destroyTimeout      = 2 * time.Minute
)

// Options configures a Manager.
type Options struct {
	// ReadyTimeout bounds how long Start and Restart wait for the provider
	// to report a running machine. Defaults to 60 seconds.
	ReadyTimeout time.Duration

	// PollInterval is the delay between readiness probes. Defaults to
	// 100 milliseconds.
	PollInterval time.Duration

	// StopOnExit registers the environment with Shutdown so a
	// signal-driven exit still destroys it.
	StopOnExit bool

	// Shutdown is the registry used when StopOnExit is set. Defaults to
	// DefaultShutdown.
	Shutdown *ShutdownRegistry

	Logger *slog.Logger
}

// Manager owns a single environment from bring-up to teardown. It caches
// the SSH coordinates once the environment is ready and guarantees the
// backing machine is destroyed at most once.
type Manager struct {
	provider     Provider
	logger       *slog.Logger
	readyTimeout time.Duration
	pollInterval time.Duration

	mu         sync.Mutex
	state      State
	info       ConnectionInfo
	unregister func()
}

// Start brings the environment up and waits until the provider reports it
// running, then caches its connection info. On failure the manager is left
// in the failed state and the environment is not retried; callers decide
// whether to construct a fresh one.
func Start(ctx context.Context, provider Provider, opts Options) (*Manager, error) {
	if opts.ReadyTimeout <= 0 {
		opts.ReadyTimeout = defaultReadyTimeout
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Shutdown == nil {
		opts.Shutdown = DefaultShutdown
	}

	m := &Manager{
		provider:     provider,
		logger:       opts.Logger,
		readyTimeout: opts.ReadyTimeout,
		pollInterval: opts.PollInterval,
		state:        StateStarting,
	}

	m.logger.Info("starting execution environment")
	start := time.Now()
	if err := provider.Up(ctx); err != nil {
		m.setState(StateFailed)
		return nil, apperror.EnvironmentStartFailed(err.Error())
	}
	if err := m.awaitRunning(ctx); err != nil {
		m.abortStart()
		return nil, apperror.EnvironmentStartFailed(err.Error())
	}

	info, err := provider.ConnectionInfo(ctx)
	if err != nil {
		m.abortStart()
		return nil, apperror.EnvironmentStartFailed(fmt.Sprintf("connection info: %v", err))
	}

	m.mu.Lock()
	m.info = info
	m.state = StateReady
	m.mu.Unlock()

	if opts.StopOnExit {
		m.unregister = opts.Shutdown.Register(func() { _ = m.Stop() })
	}

	m.logger.Info("execution environment ready",
		slog.String("host", info.Host),
		slog.Int("port", info.Port),
		slog.Duration("took", time.Since(start)))
	return m, nil
}

// State reports the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// ConnectionInfo returns the cached SSH coordinates. It fails unless the
// environment is ready, so callers cannot dial a machine that is still
// booting or already destroyed.
func (m *Manager) ConnectionInfo() (ConnectionInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateReady {
		return ConnectionInfo{}, fmt.Errorf("environ: environment is %s, not ready", m.state)
	}
	return m.info, nil
}

// Restart reloads the environment and waits for it to report running
// again, refreshing the cached connection info. Callers must not have a
// batch in flight.
func (m *Manager) Restart(ctx context.Context) error {
	m.mu.Lock()
	switch m.state {
	case StateReady, StateFailed:
		m.state = StateStarting
	default:
		state := m.state
		m.mu.Unlock()
		return apperror.EnvironmentRestartFailed(fmt.Sprintf("environment is %s", state))
	}
	m.mu.Unlock()

	m.logger.Info("restarting execution environment")
	if err := m.provider.Reload(ctx); err != nil {
		m.setState(StateFailed)
		return apperror.EnvironmentRestartFailed(err.Error())
	}
	if err := m.awaitRunning(ctx); err != nil {
		m.setState(StateFailed)
		return apperror.EnvironmentRestartFailed(err.Error())
	}
	info, err := m.provider.ConnectionInfo(ctx)
	if err != nil {
		m.setState(StateFailed)
		return apperror.EnvironmentRestartFailed(fmt.Sprintf("connection info: %v", err))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	// Stop may have won the race while we were reloading; the machine is
	// gone, so stay destroyed.
	if m.state != StateStarting {
		return apperror.EnvironmentRestartFailed(fmt.Sprintf("environment is %s", m.state))
	}
	m.info = info
	m.state = StateReady
	m.logger.Info("execution environment ready")
	return nil
}

// Stop destroys the environment. It is idempotent: after the first call
// the manager is destroyed and further calls return nil without touching
// the provider.
func (m *Manager) Stop() error {
	m.mu.Lock()
	if m.state == StateDestroyed {
		m.mu.Unlock()
		return nil
	}
	m.state = StateDestroyed
	unregister := m.unregister
	m.unregister = nil
	m.mu.Unlock()

	if unregister != nil {
		unregister()
	}

	ctx, cancel := context.WithTimeout(context.Background(), destroyTimeout)
	defer cancel()

	m.logger.Info("destroying execution environment")
	if err := m.provider.Destroy(ctx); err != nil {
		return fmt.Errorf("environ: destroy: %w", err)
	}
	return nil
}

// abortStart tears down a machine that came up but never became usable.
// Start has already failed by this point, so the destroy is best effort;
// without it the machine would outlive the process that booted it.
func (m *Manager) abortStart() {
	m.setState(StateFailed)

	ctx, cancel := context.WithTimeout(context.Background(), destroyTimeout)
	defer cancel()
	if err := m.provider.Destroy(ctx); err != nil {
		m.logger.Warn("failed to destroy unusable environment", slog.String("error", err.Error()))
	}
}

// awaitRunning polls provider status until it reports running or the
// ready deadline elapses.
func (m *Manager) awaitRunning(ctx context.Context) error {
	deadline := time.Now().Add(m.readyTimeout)
	var lastStatus Status
	var lastErr error

	for {
		status, err := m.provider.Status(ctx)
		if err == nil && status == StatusRunning {
			return nil
		}
		lastStatus, lastErr = status, err

		if time.Now().After(deadline) {
			if lastErr != nil {
				return fmt.Errorf("not running after %s: %v", m.readyTimeout, lastErr)
			}
			return fmt.Errorf("not running after %s, last status %q", m.readyTimeout, lastStatus)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(m.pollInterval):
		}
	}
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

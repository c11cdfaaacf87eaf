// Package main is the entry point for the shellbox daemon.
//
// MAIN PACKAGE IN GO:
// Every Go program starts execution in the main() function of the "main" package.
// The main package should be kept minimal — its job is to:
// 1. Read configuration (from env vars, flags, or config files)
// 2. Create dependencies (logger, environment, transport, etc.)
// 3. Start the application
//
// All actual logic lives in imported packages (internal/server, internal/executor, etc.).
// This separation makes the app testable and its components reusable.
//
// BOOT ORDER:
// The execution environment comes up BEFORE the HTTP server starts listening.
// A daemon that accepts batches it cannot run is worse than one that fails
// fast at startup — so if `vagrant up` (or the container start) fails, we
// exit with an error instead of serving 503s forever.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"shellbox/internal/auth"
	"shellbox/internal/config"
	"shellbox/internal/environ"
	"shellbox/internal/environ/dockervm"
	"shellbox/internal/environ/vagrant"
	"shellbox/internal/executor"
	"shellbox/internal/server"
	"shellbox/internal/transport"
)

func main() {
	// === 1. SUBCOMMANDS ===
	// `shellboxd hash-key <key>` prints the bcrypt hash to put in
	// API_KEY_HASH, then exits. It runs before any config loading so it
	// works on a machine with nothing else set up.
	if len(os.Args) > 1 && os.Args[1] == "hash-key" {
		runHashKey(os.Args[2:])
		return
	}

	// === 2. SET UP LOGGING ===
	// slog.New creates a structured logger. slog.NewTextHandler outputs human-readable logs.
	// os.Stdout means logs go to the terminal. slog.LevelDebug enables all log levels.
	//
	// Log levels (from least to most severe): Debug → Info → Warn → Error
	// In production, you'd use LevelInfo or LevelWarn to reduce noise.
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	// === 3. READ CONFIGURATION ===
	// All knobs come from environment variables; see internal/config for
	// the full list and defaults. JWT_SECRET and API_KEY_HASH are required,
	// everything else has a sensible default.
	cfg, err := config.Load()
	if err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Ensure the data directory exists.
	// os.MkdirAll creates all parent directories if needed (like `mkdir -p`).
	// 0755 = owner can read/write/execute, others can read/execute.
	dbDir := filepath.Dir(cfg.DBPath)
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		logger.Error("failed to create database directory",
			slog.String("dir", dbDir),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	// === 4. BOOT THE EXECUTION ENVIRONMENT ===
	// The deferred Fire is the last-resort teardown: any exit that skips
	// the graceful shutdown path (a panic, an error below) still destroys
	// the machine we just booted. On a clean shutdown the server already
	// stopped the environment and Fire is a no-op.
	defer environ.DefaultShutdown.Fire()

	provider, err := buildProvider(cfg, logger)
	if err != nil {
		logger.Error("failed to create environment provider", slog.String("error", err.Error()))
		os.Exit(1)
	}

	env, err := environ.Start(context.Background(), provider, environ.Options{
		StopOnExit: true,
		Logger:     logger,
	})
	if err != nil {
		logger.Error("execution environment failed to start", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// === 5. TRANSPORT AND ENGINE ===
	// The SSH transport reads its coordinates from the environment manager,
	// so a restarted environment (new port, new host key) is picked up on
	// the next dial without rewiring anything.
	sshTransport := transport.NewSSH(env, transport.Options{Logger: logger})

	engine, err := executor.NewEngine(executor.Config{
		WorkDir:   cfg.WorkDir,
		Timeout:   cfg.ExecTimeout,
		RemoteDir: cfg.RemoteDir,
		Policies:  cfg.Policies,
	}, sshTransport, logger)
	if err != nil {
		logger.Error("failed to create execution engine", slog.String("error", err.Error()))
		environ.DefaultShutdown.Fire() // os.Exit skips defers
		os.Exit(1)
	}

	// === 6. CREATE AND START THE SERVER ===
	srv, err := server.New(server.Config{
		Port:             cfg.Port,
		DBPath:           cfg.DBPath,
		JWTSecret:        cfg.JWTSecret,
		APIKeyHash:       cfg.APIKeyHash,
		KafkaBrokers:     cfg.KafkaBrokers,
		KafkaBatchTopic:  cfg.KafkaBatchTopic,
		KafkaResultTopic: cfg.KafkaResultTopic,
		KafkaGroup:       cfg.KafkaGroup,
	}, logger, engine, env, sshTransport)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		environ.DefaultShutdown.Fire() // os.Exit skips defers
		os.Exit(1)
	}

	// Start() blocks until the server is shut down (via Ctrl+C or SIGTERM)
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		environ.DefaultShutdown.Fire() // os.Exit skips defers
		os.Exit(1)
	}
}

// buildProvider selects the environment backend from config. Vagrant is
// the default: PROVIDER=docker swaps in the container-based environment,
// which boots in seconds and is what the test suites and CI use.
func buildProvider(cfg *config.Config, logger *slog.Logger) (environ.Provider, error) {
	switch cfg.Provider {
	case config.ProviderDocker:
		dcfg := dockervm.DefaultConfig()
		if cfg.DockerImage != "" {
			dcfg.Image = cfg.DockerImage
		}
		return dockervm.New(dcfg, logger)
	default:
		vcfg := vagrant.DefaultConfig()
		vcfg.Dir = cfg.VagrantDir
		vcfg.Machine = cfg.VagrantMachine
		return vagrant.New(vcfg, logger)
	}
}

// runHashKey implements the hash-key subcommand:
//
//	shellboxd hash-key 'my-secret-key'
//
// The printed hash goes in the API_KEY_HASH environment variable; the
// plaintext key is what clients POST to /api/auth/token.
func runHashKey(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "usage: shellboxd hash-key <api-key>")
		os.Exit(2)
	}
	hash, err := auth.HashKey(args[0])
	if err != nil {
		fmt.Fprintln(os.Stderr, "hash-key:", err)
		os.Exit(1)
	}
	fmt.Println(hash)
}

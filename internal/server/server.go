// Package server sets up the HTTP server, router, and all route definitions.
//
// SERVER ARCHITECTURE:
// This package is the "wiring" layer — it connects handlers, middleware, and routes.
// Think of it as the control centre that decides:
// - Which URL patterns map to which handler functions
// - What middleware runs on which routes
// - How the server starts and stops gracefully
//
// WHY SEPARATE FROM main.go?
// Keeping server setup in its own package makes it:
// - Testable (we can create a test server without running main)
// - Reusable (multiple entry points could use the same server config)
// - Clean (main.go stays minimal — boot the environment, start the server)
//
// DEPENDENCY INJECTION FLOW:
// main.go creates the slow, stateful pieces — the environment provider,
// the lifecycle manager, the SSH transport, the execution engine — because
// booting a VM can take minutes and must fail fast before we ever listen.
// Server.New() then assembles the rest: sqlite.DB → RunService → handlers,
// plus the optional Kafka intake loop.
//
// This is the "composition root" pattern — all dependencies are wired
// in one place (New/setupRoutes), rather than scattered across the codebase.
package server

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"shellbox/internal/auth"
	"shellbox/internal/handler"
	"shellbox/internal/intake"
	intakekafka "shellbox/internal/intake/kafka"
	"shellbox/internal/middleware"
	sqliteRepo "shellbox/internal/repository/sqlite"
	"shellbox/internal/service"
)

// Config holds server configuration.
// Using a struct for config (instead of individual parameters) makes it easy to:
// - Add new config options without changing function signatures
// - Pass config around as a single value
// - Load config from files/env vars in one place
type Config struct {
	Port       int
	DBPath     string // path to the SQLite database file
	JWTSecret  string // HMAC secret for access tokens
	APIKeyHash string // bcrypt hash of the operator API key

	// Kafka intake; an empty broker list disables it
	KafkaBrokers     []string
	KafkaBatchTopic  string
	KafkaResultTopic string
	KafkaGroup       string
}

// Server represents the HTTP server and all its dependencies.
//
// RESOURCE MANAGEMENT:
// The Server owns a database connection, the run service (which in turn
// owns the SSH transport and the environment), and optionally a Kafka
// intake loop. All of them are released during graceful shutdown, in
// dependency order: HTTP first, then intake, then the service, then the DB.
type Server struct {
	router *chi.Mux
	config Config
	logger *slog.Logger
	db     *sqliteRepo.DB
	runs   *service.RunService
	tokens *auth.TokenService
	keys   *auth.APIKey

	intake        *intake.Runner
	intakeClosers []io.Closer
}

// New creates a new Server with the given config.
//
// DEPENDENCY INJECTION & WIRING:
// This is where the remaining dependency chain is assembled:
//  1. Create the database connection (sqlite.New)
//  2. Create the auth services from the configured secret and key hash
//  3. Create the run service with the injected engine and environment
//  4. Create the Kafka intake loop, if brokers are configured
//  5. Wire handlers to routes
//
// Each layer only receives what it needs:
// - Service gets the repository interface (not the concrete sqlite.DB)
// - Handlers get the service (not the repository or DB)
//
// IMPORT ALIAS:
// We import repository/sqlite as `sqliteRepo` to avoid confusion with
// the sqlite driver package, and intake/kafka as `intakekafka` to avoid
// colliding with the kafka-go library.
func New(cfg Config, logger *slog.Logger, engine service.BatchEngine, env service.Environment, transport io.Closer) (*Server, error) {
	// === CREATE DATABASE ===
	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// === AUTH SERVICES ===
	tokens, err := auth.NewTokenService(cfg.JWTSecret)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("configuring tokens: %w", err)
	}
	keys, err := auth.NewAPIKey(cfg.APIKeyHash)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("configuring API key: %w", err)
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		db:     db,
		runs:   service.NewRunService(engine, env, transport, db, logger),
		tokens: tokens,
		keys:   keys,
	}

	// === KAFKA INTAKE (optional) ===
	if len(cfg.KafkaBrokers) > 0 {
		if err := s.setupIntake(); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting up intake: %w", err)
		}
	}

	// Set up middleware and routes
	s.setupRoutes()

	return s, nil
}

// setupIntake wires the Kafka consumer and publisher to the run service.
func (s *Server) setupIntake() error {
	consumer, err := intakekafka.NewConsumer(intakekafka.Config{
		Brokers: s.config.KafkaBrokers,
		Topic:   s.config.KafkaBatchTopic,
		GroupID: s.config.KafkaGroup,
	})
	if err != nil {
		return fmt.Errorf("creating consumer: %w", err)
	}

	publisher, err := intakekafka.NewPublisher(intakekafka.PublisherConfig{
		Brokers: s.config.KafkaBrokers,
		Topic:   s.config.KafkaResultTopic,
	})
	if err != nil {
		consumer.Close()
		return fmt.Errorf("creating publisher: %w", err)
	}

	s.intake = intake.NewRunner(consumer, publisher, s.runs, s.logger)
	s.intakeClosers = []io.Closer{consumer, publisher}
	return nil
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
// GET    /healthz                    → Liveness check (public)
// POST   /api/auth/token             → Exchange API key for a JWT (public)
// POST   /api/runs                   → Execute a batch (auth)
// GET    /api/runs                   → List run history (auth)
// GET    /api/runs/{id}              → Get a single run (auth)
// DELETE /api/runs/{id}              → Delete a run (auth)
// GET    /api/environment            → Environment state + SSH coordinates (auth)
// POST   /api/environment/restart    → Reboot the environment (auth)
//
// MIDDLEWARE ORDER MATTERS:
// Middleware executes in the order it's added. Our order:
// 1. RequestID — assigns unique ID to each request (for tracing)
// 2. RealIP — extracts real client IP from proxy headers
// 3. Recoverer — catches panics and returns 500 instead of crashing
// 4. Logger — logs each request with timing info
// 5. RequireAuth — only on the protected group, after logging so rejected
//    requests still show up in the access log
func (s *Server) setupRoutes() {
	// === Global Middleware ===
	// These run on EVERY request, in order

	// Chi's built-in middleware
	s.router.Use(chimiddleware.RequestID) // Adds X-Request-ID header
	s.router.Use(chimiddleware.RealIP)    // Extracts real IP from X-Forwarded-For
	s.router.Use(chimiddleware.Recoverer) // Recovers from panics, returns 500

	// Our custom logging middleware
	s.router.Use(middleware.Logger(s.logger))

	// === Health Check ===
	// Public and dependency-free: it answers "is the daemon up", not
	// "is the environment ready" — that's what /api/environment is for.
	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	// === API Routes ===
	// DEPENDENCY CHAIN:
	//   s.db (sqlite.DB) → implements repository.RunRepository
	//   RunService receives the repository interface
	//   Handlers receive the service
	//
	// Notice: the handlers never touch the database or the SSH transport
	// directly. The service never touches HTTP. Clean separation!
	authHandler := handler.NewAuthHandler(s.keys, s.tokens, s.logger)
	runHandler := handler.NewRunHandler(s.runs, s.logger)
	envHandler := handler.NewEnvironmentHandler(s.runs, s.logger)

	s.router.Route("/api", func(r chi.Router) {
		// Public: this is how clients get a token in the first place
		r.Post("/auth/token", authHandler.HandleToken)

		// Everything else requires a Bearer token
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth(s.tokens))

			r.Post("/runs", runHandler.HandleExecute)
			r.Get("/runs", runHandler.HandleList)
			r.Get("/runs/{id}", runHandler.HandleGet)
			r.Delete("/runs/{id}", runHandler.HandleDelete)

			r.Get("/environment", envHandler.HandleStatus)
			r.Post("/environment/restart", envHandler.HandleRestart)
		})
	})
}

// Start starts the HTTP server and handles graceful shutdown.
//
// GRACEFUL SHUTDOWN:
// The daemon owns stateful resources beyond HTTP connections, so the
// order matters:
//  1. Stop accepting new HTTP connections, wait for in-flight requests
//  2. Stop the intake loop and close the Kafka reader/writer
//  3. Stop the run service — closes the SSH transport and destroys the
//     environment (a VM teardown can take a while)
//  4. Close the database (flushes WAL, releases the file lock)
//
// The `defer s.db.Close()` ensures step 4 happens even if something panics.
func (s *Server) Start() error {
	// Ensure the database is closed when the server stops.
	// This runs AFTER everything else in this function finishes.
	defer s.db.Close()

	// Create the HTTP server with sensible timeouts.
	// WriteTimeout must comfortably exceed the per-command execution
	// timeout, or long batches would be cut off mid-response.
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	// Start the intake loop, if configured
	intakeCtx, stopIntake := context.WithCancel(context.Background())
	defer stopIntake()
	intakeDone := make(chan struct{})
	if s.intake != nil {
		go func() {
			defer close(intakeDone)
			if err := s.intake.Run(intakeCtx); err != nil {
				// A dead intake loop doesn't take the HTTP API down with it
				s.logger.Error("intake loop stopped", slog.String("error", err.Error()))
			}
		}()
	} else {
		close(intakeDone)
	}

	// Channel to receive OS signals
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	// Channel to receive server errors
	serverErrors := make(chan error, 1)

	// Start the server in a goroutine (so it doesn't block)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
			slog.String("database", s.config.DBPath),
			slog.Bool("intake", s.intake != nil),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	// Block until we receive a signal or server error
	select {
	case err := <-serverErrors:
		// Server failed to start
		if err != http.ErrServerClosed {
			s.stopWorkers(stopIntake, intakeDone)
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		// Received shutdown signal
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		// Give in-flight requests 30 seconds to complete
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			s.stopWorkers(stopIntake, intakeDone)
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}

		s.stopWorkers(stopIntake, intakeDone)
		s.logger.Info("server stopped gracefully")
	}

	return nil
}

// stopWorkers winds down the intake loop and the run service.
func (s *Server) stopWorkers(stopIntake context.CancelFunc, intakeDone <-chan struct{}) {
	stopIntake()
	select {
	case <-intakeDone:
	case <-time.After(10 * time.Second):
		s.logger.Warn("intake loop did not stop in time")
	}
	for _, c := range s.intakeClosers {
		if err := c.Close(); err != nil {
			s.logger.Warn("failed to close intake client", slog.String("error", err.Error()))
		}
	}

	// Closes the SSH transport and destroys the environment
	if err := s.runs.Stop(); err != nil {
		s.logger.Error("failed to stop environment", slog.String("error", err.Error()))
	}
}

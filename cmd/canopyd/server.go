package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/canopy-host/canopy/internal/shell/api"
	"github.com/canopy-host/canopy/internal/shell/engine"
	"github.com/canopy-host/canopy/internal/shell/runtime"
	"github.com/canopy-host/canopy/internal/shell/store"
)

// =============================================================================
// Exit Codes
// =============================================================================

const (
	ExitSuccess         = 0
	ExitConfigError     = 1
	ExitDatabaseError   = 2
	ExitDockerError     = 3
	ExitHTTPServerError = 4
)

// =============================================================================
// Server
// =============================================================================

// Server wires the store, runtime gateway, engine and HTTP handler together.
type Server struct {
	config     *Config
	httpServer *http.Server
	store      *store.SQLiteStore
	rt         *runtime.DockerGateway
	logger     *slog.Logger
}

// NewServer creates and wires all server components.
func NewServer(cfg *Config, logger *slog.Logger) (*Server, error) {
	// Initialize database
	s, err := store.NewSQLiteStore(cfg.Database.DSN)
	if err != nil {
		return nil, &ServerError{
			Op:       "NewServer.store",
			Err:      err,
			ExitCode: ExitDatabaseError,
		}
	}

	// Initialize container runtime
	compose := runtime.NewComposeCLI(cfg.Docker.ComposeBin)
	rt, err := runtime.NewDockerGateway(cfg.Docker.Host, compose)
	if err != nil {
		s.Close()
		return nil, &ServerError{
			Op:       "NewServer.runtime",
			Err:      err,
			ExitCode: ExitDockerError,
		}
	}

	// Verify Docker connectivity
	pingCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := rt.Ping(pingCtx); err != nil {
		rt.Close()
		s.Close()
		return nil, &ServerError{
			Op:       "NewServer.ping",
			Err:      err,
			ExitCode: ExitDockerError,
		}
	}

	// Initialize orchestration engine
	eng := engine.New(s, rt, engine.Config{
		PortRangeStart: cfg.Engine.PortRangeStart,
		PortRangeEnd:   cfg.Engine.PortRangeEnd,
		HomesRoot:      cfg.Engine.HomesRoot,
		StacksRoot:     cfg.Engine.StacksRoot,
		ComposeFile:    cfg.Engine.ComposeFile,
		OpTimeout:      cfg.Engine.OpTimeout,
	}, logger)

	// Seed the template catalog on first boot
	seedCtx, seedCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer seedCancel()
	if err := eng.EnsureDefaultTemplates(seedCtx); err != nil {
		rt.Close()
		s.Close()
		return nil, &ServerError{
			Op:       "NewServer.templates",
			Err:      err,
			ExitCode: ExitDatabaseError,
		}
	}

	// Initialize HTTP handler
	handler := api.NewHandler(s, eng, rt, logger, cfg.Engine.HomesRoot)

	httpServer := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      handler.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return &Server{
		config:     cfg,
		httpServer: httpServer,
		store:      s,
		rt:         rt,
		logger:     logger,
	}, nil
}

// Start starts the server and blocks until shutdown.
func (s *Server) Start(ctx context.Context) error {
	// Setup signal handling
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Start HTTP server in goroutine
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server",
			"address", s.config.Server.Address())
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for shutdown signal or error
	select {
	case sig := <-sigCh:
		s.logger.Info("received shutdown signal", "signal", sig)
	case err := <-errCh:
		return &ServerError{
			Op:       "Start",
			Err:      err,
			ExitCode: ExitHTTPServerError,
		}
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown(context.Background())
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("initiating graceful shutdown")

	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.Server.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
	}

	if err := s.rt.Close(); err != nil {
		s.logger.Error("Docker client close error", "error", err)
	}

	if err := s.store.Close(); err != nil {
		s.logger.Error("database close error", "error", err)
	}

	s.logger.Info("shutdown complete")
	return nil
}

// =============================================================================
// Server Error
// =============================================================================

// ServerError represents an error during server operation.
type ServerError struct {
	Op       string
	Err      error
	ExitCode int
}

func (e *ServerError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *ServerError) Unwrap() error {
	return e.Err
}

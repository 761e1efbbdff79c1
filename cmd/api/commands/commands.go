package commands

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/tripboard/core/internal/application/services"
	"github.com/tripboard/core/internal/infrastructure/config"
	"github.com/tripboard/core/internal/infrastructure/logger"
	"github.com/tripboard/core/internal/infrastructure/metrics"
	"github.com/tripboard/core/internal/infrastructure/server"
	"github.com/tripboard/core/internal/ports"
)

// Build information, set with -ldflags "-X ..."
var (
	Version   = "dev"
	GitCommit = "development"
	BuildDate = "unknown"
)

// NewRootCommand creates the tripboard root command with every subcommand
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "tripboard",
		Short:        "TripBoard document store",
		Long:         `TripBoard keeps a shared trip plan in one JSON document, stored locally with rotating backups or in a GitHub repository.`,
		SilenceUsage: true,
	}

	// Add commands
	rootCmd.AddCommand(NewServeCommand())
	rootCmd.AddCommand(NewDocumentCommand())
	rootCmd.AddCommand(NewBackupsCommand())
	rootCmd.AddCommand(NewTokenCommand())
	rootCmd.AddCommand(NewVersionCommand())

	return rootCmd
}

// NewServeCommand creates the serve command
func NewServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the TripBoard API server",
		Long:  "Start the TripBoard API server with all configured routes and middleware",
		Run: func(cmd *cobra.Command, args []string) {
			runServer()
		},
	}
}

// NewVersionCommand creates the version command
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print TripBoard version",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "TripBoard %s\n", Version)
			fmt.Fprintf(out, "Build Date: %s\n", BuildDate)
			fmt.Fprintf(out, "Git Commit: %s\n", GitCommit)
		},
	}
}

func runServer() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	appLogger, err := logger.New(cfg.Logger)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer appLogger.Sync()

	registry := prometheus.NewRegistry()
	var storeMetrics *metrics.StoreMetrics
	if cfg.Metrics.Enabled {
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		storeMetrics = metrics.NewStoreMetrics(registry)
	}

	store, err := newStore(cfg, appLogger, storeMetrics)
	if err != nil {
		appLogger.Fatalw("Failed to initialize document store", "error", err)
	}

	deps := server.Dependencies{
		Documents: store.service,
		Readiness: store.local,
		Registry:  registry,
	}
	if cfg.Auth.Enabled {
		deps.Auth = services.NewAuthService(cfg.Auth, appLogger)
	}

	srv, err := server.New(cfg, deps, appLogger)
	if err != nil {
		appLogger.Fatalw("Failed to initialize server", "error", err)
	}

	appLogger.Infow("Starting TripBoard API server",
		"address", cfg.Server.Address(),
		"environment", cfg.App.Environment,
		"backend", store.service.Backend(),
		"document_path", cfg.Storage.DocumentPath(),
		"auth_enabled", cfg.Auth.Enabled,
	)

	go func() {
		if err := srv.Start(cfg.Server.Address()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Fatalw("Server failed to start", "error", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Errorw("Server forced to shutdown", "error", err)
	}

	appLogger.Infow("Server exited")
}

// loadCLI loads configuration for the one-shot commands. Logs go to stderr so
// stdout carries only command output.
func loadCLI() (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if cfg.Logger.Output != "file" {
		cfg.Logger.Output = "stderr"
	}
	if cfg.Logger.Format == "json" {
		cfg.Logger.Format = "console"
	}

	appLogger, err := logger.New(cfg.Logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return cfg, appLogger, nil
}

// withDocumentService runs fn against a document service built from config
func withDocumentService(fn func(cfg *config.Config, service ports.DocumentService) error) error {
	cfg, appLogger, err := loadCLI()
	if err != nil {
		return err
	}
	defer appLogger.Sync()

	store, err := newStore(cfg, appLogger, nil)
	if err != nil {
		return err
	}

	return fn(cfg, store.service)
}

package main

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"os/signal"
	"syscall"

	dapr "github.com/dapr/go-sdk/client"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/trace"

	"newsletter-go/internal/app"
	"newsletter-go/internal/config"
	"newsletter-go/internal/logging"
	"newsletter-go/internal/migrations"
	"newsletter-go/internal/repository"
	"newsletter-go/internal/telemetry"
)

func newServeCmd(configPath *string) *cobra.Command {
	var migrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the subscription API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), *configPath, migrate)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply pending migrations before serving")
	return cmd
}

func serve(ctx context.Context, configPath string, migrate bool) error {
	settings, err := config.LoadFromEnv(configPath)
	if err != nil {
		return fmt.Errorf("failed to read configuration: %w", err)
	}

	logger, err := logging.New(logging.Options{Level: settings.Log.Level, Format: settings.Log.Format})
	if err != nil {
		return err
	}

	tp, err := telemetry.InitTracing(telemetry.Options{
		ServiceName:    settings.Application.Name,
		ServiceVersion: settings.Application.Version,
		Exporter:       settings.Tracing.Exporter,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	defer func() {
		if err := telemetry.ShutdownTracing(context.Background(), tp); err != nil {
			logger.WithError(err).Error("Error shutting down tracer provider")
		}
	}()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, closeRepo, err := openRepository(ctx, settings, logger, tp, migrate)
	if err != nil {
		return err
	}
	defer closeRepo()

	listener, err := net.Listen("tcp", settings.Application.Address())
	if err != nil {
		return fmt.Errorf("failed to bind %s: %w", settings.Application.Address(), err)
	}

	application := app.Build(&app.Config{
		ServiceName:    settings.Application.Name,
		ServiceVersion: settings.Application.Version,
		Logger:         logger,
		TracerProvider: tp,
		GinMode:        settings.Application.GinMode,
		Repository:     repo,
	})

	serveErr := make(chan error, 1)
	go func() { serveErr <- application.Serve(listener) }()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), settings.Application.ShutdownGrace())
	defer cancel()
	if err := application.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("Server exited")
	return nil
}

// openRepository resolves the configured storage backend. The returned func
// releases the backend's resources.
func openRepository(ctx context.Context, settings *config.Settings, logger *logging.ContextLogger, tp trace.TracerProvider, migrate bool) (repository.SubscriberRepository, func(), error) {
	switch settings.Storage.Backend {
	case config.BackendMemory:
		logger.Warn("Using in-memory storage; subscribers are lost on restart")
		return repository.NewInMemorySubscriberRepository(tp), func() {}, nil

	case config.BackendDapr:
		client, err := dapr.NewClient()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to dapr sidecar: %w", err)
		}
		logger.WithFields(logrus.Fields{"store": settings.Storage.DaprStore}).Info("Using dapr state store")
		return repository.NewDaprSubscriberRepository(client, settings.Storage.DaprStore, tp), client.Close, nil

	default:
		db, err := openPool(ctx, settings.Database)
		if err != nil {
			return nil, nil, err
		}
		if migrate {
			if err := runMigrations(ctx, db, logger); err != nil {
				db.Close()
				return nil, nil, err
			}
		}
		return repository.NewPostgresSubscriberRepository(db, tp), func() { db.Close() }, nil
	}
}

func openPool(ctx context.Context, settings config.DatabaseSettings) (*sql.DB, error) {
	db, err := sql.Open("postgres", settings.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(settings.MaxOpenConns)
	db.SetMaxIdleConns(settings.MaxIdleConns)
	db.SetConnMaxLifetime(settings.ConnMaxLifetime())

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

func runMigrations(ctx context.Context, db *sql.DB, logger *logging.ContextLogger) error {
	runner, err := migrations.NewRunner(db, logger)
	if err != nil {
		return err
	}
	applied, err := runner.Up(ctx)
	if err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	logger.WithField("applied", len(applied)).Info("Database schema is up to date")
	return nil
}

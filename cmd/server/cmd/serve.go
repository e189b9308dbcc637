package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Togather-Foundation/eventdesk/internal/api"
	"github.com/Togather-Foundation/eventdesk/internal/api/handlers"
	"github.com/Togather-Foundation/eventdesk/internal/audit"
	"github.com/Togather-Foundation/eventdesk/internal/auth"
	"github.com/Togather-Foundation/eventdesk/internal/config"
	"github.com/Togather-Foundation/eventdesk/internal/domain/events"
	"github.com/Togather-Foundation/eventdesk/internal/domain/users"
	"github.com/Togather-Foundation/eventdesk/internal/media"
	"github.com/Togather-Foundation/eventdesk/internal/metrics"
	"github.com/Togather-Foundation/eventdesk/internal/storage"
	"github.com/Togather-Foundation/eventdesk/internal/storage/mongo"
	"github.com/Togather-Foundation/eventdesk/internal/storage/postgres"
	"github.com/Togather-Foundation/eventdesk/internal/telemetry"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	// Server flags (override config/env)
	serverHost  string
	serverPort  int
	autoMigrate bool
)

const (
	startupTimeout  = 15 * time.Second
	shutdownTimeout = 10 * time.Second
	dbStatsInterval = 15 * time.Second
)

func newServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the eventdesk HTTP server",
		Long: `Start the eventdesk HTTP server and begin accepting API requests.

The server will:
- Load configuration from environment variables (and --config if provided)
- Connect to the configured database and apply pending migrations
- Bootstrap an admin user if ADMIN_* env vars are set
- Handle graceful shutdown on SIGINT/SIGTERM

Examples:
  # Start with default configuration (from env vars)
  server serve

  # Start on a specific host and port
  server serve --host 127.0.0.1 --port 9090

  # Start with a config file and debug logging
  server serve --config /etc/eventdesk/config.yaml --log-level debug`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServer(ctx)
		},
	}

	cmd.Flags().StringVar(&serverHost, "host", "", "server host address (default: 0.0.0.0)")
	cmd.Flags().IntVar(&serverPort, "port", 0, "server port (default: 8080)")
	cmd.Flags().BoolVar(&autoMigrate, "migrate", true, "apply pending postgres migrations on startup")
	return cmd
}

func runServer(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}

	logger := config.NewLogger(cfg.Logging)
	logger.Info().Str("version", Version).Str("environment", cfg.Environment).Msg("starting eventdesk server")

	metrics.Init(Version, GitCommit, BuildDate)

	shutdownTracing, err := telemetry.InitTracing(ctx, cfg.Tracing, Version)
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer func() {
		tctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(tctx); err != nil {
			logger.Error().Err(err).Msg("tracing shutdown error")
		}
	}()

	startCtx, startCancel := context.WithTimeout(ctx, startupTimeout)
	backend, closeBackend, err := openBackend(startCtx, ctx, cfg, logger)
	startCancel()
	if err != nil {
		return err
	}
	defer closeBackend()

	store, storeCheck, err := openMediaStore(cfg)
	if err != nil {
		return err
	}

	hasher, err := auth.NewPasswordHasher(cfg.Auth.BcryptCost)
	if err != nil {
		return fmt.Errorf("password hasher: %w", err)
	}
	tokens := auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.JWTExpiry, cfg.Auth.JWTIssuer)
	auditLogger := audit.NewLogger(logger)

	userService := users.NewService(backend.Users(), hasher, tokens, users.Options{
		AllowAdminSignup: cfg.Auth.AllowAdminSignup,
		AuditLogger:      auditLogger,
	}, logger)
	eventService := events.NewService(backend.Events(), auditLogger, logger)

	bootstrapCtx, bootstrapCancel := context.WithTimeout(ctx, startupTimeout)
	bootstrapAdminUser(bootstrapCtx, cfg, userService, logger)
	bootstrapCancel()

	health := handlers.NewHealthChecker(Version, GitCommit).
		Register("database", backend.Ping).
		Register("media", storeCheck)

	handler := api.NewRouter(ctx, api.Dependencies{
		Config:    cfg,
		Logger:    logger,
		Users:     userService,
		Events:    eventService,
		Ingestor:  media.NewIngestor(store, logger),
		Tokens:    tokens,
		Health:    health,
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
	})

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           handler,
		ReadTimeout:       30 * time.Second, // multipart uploads up to 6 MiB
		WriteTimeout:      30 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown error")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}

func loadConfig() (config.Config, error) {
	cfg, err := config.LoadFile(configPath)
	if err != nil {
		return config.Config{}, err
	}
	applyFlagOverrides(&cfg)
	return cfg, nil
}

func applyFlagOverrides(cfg *config.Config) {
	if serverHost != "" {
		cfg.Server.Host = serverHost
	}
	if serverPort != 0 {
		cfg.Server.Port = serverPort
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if logFormat != "" {
		cfg.Logging.Format = logFormat
	}
}

// openBackend connects the configured database. startCtx bounds the connect
// and migration work; runCtx bounds background collectors.
func openBackend(startCtx, runCtx context.Context, cfg config.Config, logger zerolog.Logger) (storage.Backend, func(), error) {
	switch cfg.Database.Driver {
	case config.DriverPostgres:
		if autoMigrate {
			if err := postgres.MigrateUp(cfg.Database.URL); err != nil {
				return nil, nil, fmt.Errorf("migrate database: %w", err)
			}
			logger.Info().Msg("database migrations applied")
		}
		pool, err := postgres.Connect(startCtx, cfg.Database.URL, cfg.Database.MaxConnections)
		if err != nil {
			return nil, nil, fmt.Errorf("database connection failed: %w", err)
		}
		store, err := postgres.NewStore(pool, cfg.Database.QueryTimeout)
		if err != nil {
			pool.Close()
			return nil, nil, err
		}

		collector := metrics.NewDBCollector(config.DriverPostgres, store)
		go collector.Start(runCtx, dbStatsInterval)
		logger.Info().Msg("database metrics collector started")

		return store, func() {
			collector.Stop()
			_ = store.Close(context.Background())
		}, nil

	case config.DriverMongo:
		store, err := mongo.Connect(startCtx, cfg.Database.URL, cfg.Database.Name, cfg.Database.MaxConnections, cfg.Database.QueryTimeout)
		if err != nil {
			return nil, nil, fmt.Errorf("database connection failed: %w", err)
		}
		logger.Info().Str("database", cfg.Database.Name).Msg("connected to mongodb")

		collector := metrics.NewDBCollector(config.DriverMongo, store)
		go collector.Start(runCtx, dbStatsInterval)

		return store, func() {
			collector.Stop()
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := store.Close(ctx); err != nil {
				logger.Error().Err(err).Msg("mongodb disconnect error")
			}
		}, nil

	default:
		return nil, nil, fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}
}

// openMediaStore returns the banner store and its readiness probe.
func openMediaStore(cfg config.Config) (media.Store, handlers.CheckFunc, error) {
	switch cfg.Media.Driver {
	case config.MediaFilesystem:
		store := media.NewFilesystemStore(cfg.Media.Root)
		if err := os.MkdirAll(store.Dir(), 0o755); err != nil {
			return nil, nil, fmt.Errorf("create media directory: %w", err)
		}
		check := func(context.Context) error {
			_, err := os.Stat(store.Dir())
			return err
		}
		return store, check, nil

	case config.MediaMinio:
		m := cfg.Media.Minio
		store, err := media.NewMinioStore(m.Endpoint, m.AccessKey, m.SecretKey, m.Bucket, m.UseSSL)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Ping, nil

	default:
		return nil, nil, fmt.Errorf("unsupported media driver %q", cfg.Media.Driver)
	}
}

func bootstrapAdminUser(ctx context.Context, cfg config.Config, service *users.Service, logger zerolog.Logger) {
	bootstrap := cfg.AdminBootstrap
	if bootstrap.Email == "" {
		return
	}
	created, err := service.Bootstrap(ctx, bootstrap.Name, bootstrap.Email, bootstrap.Password)
	switch {
	case errors.Is(err, users.ErrBootstrapIncomplete):
		logger.Warn().Msg("admin bootstrap env vars not fully set; skipping")
	case err != nil:
		logger.Error().Err(err).Msg("admin bootstrap failed")
	case created:
		// email is omitted in production to keep PII out of logs
		if cfg.Environment == "production" {
			logger.Info().Msg("bootstrapped admin user")
		} else {
			logger.Info().Str("email", bootstrap.Email).Msg("bootstrapped admin user")
		}
	}
}

// Package cli holds the start-up steps shared by cmd/household-api,
// cmd/recurring-worker and cmd/sheets-worker.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"household/internal/config"
	"household/internal/lock"
	applog "household/internal/log"
	"household/internal/metrics"
	"household/internal/services"
	"household/internal/storage"
)

// SetupLogger builds the process logger from LOG_LEVEL and LOG_FORMAT and
// installs it as the slog default.
func SetupLogger(component string) *applog.Logger {
	cfg := applog.DefaultConfig()
	cfg.Component = component
	cfg.Level = applog.ParseLevel(os.Getenv("LOG_LEVEL"))
	cfg.JSON = os.Getenv("LOG_FORMAT") == "json"

	logger := applog.New(cfg)
	applog.SetDefault(logger)
	return logger
}

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads configuration and validates it.
// Returns the config or exits the process on validation failure.
func LoadAndValidateConfig(logger *applog.Logger) *config.Config {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}
	return cfg
}

// InitSQLite opens and migrates the database or exits the process.
func InitSQLite(logger *applog.Logger, dbPath string) *storage.SQLiteRepository {
	repo, err := storage.NewSQLiteRepository(dbPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", "error", err, "path", dbPath)
		os.Exit(1)
	}
	return repo
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM.
func SignalContext(logger *applog.Logger) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ctx.Done()
		logger.Info("Shutdown signal received", applog.FieldOperation, applog.OpShutdown)
	}()
	return ctx, stop
}

// Shutdown runs cleanup steps in order within timeout, logging failures.
func Shutdown(logger *applog.Logger, timeout time.Duration, steps ...func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	for _, step := range steps {
		if step == nil {
			continue
		}
		if err := step(ctx); err != nil {
			logger.Error("Shutdown step failed", "error", err)
		}
	}
	logger.Info("Shutdown complete")
}

// exit is replaced in tests.
var exit = os.Exit

// Abort releases what start-up has opened so far, in order, and exits with
// status 1. Callers log the cause first.
func Abort(logger *applog.Logger, steps ...func(context.Context) error) {
	Shutdown(logger, 5*time.Second, steps...)
	exit(1)
}

// NewRunLock picks the Redis lock when REDIS_ADDR is set and the in-process
// lock otherwise. The returned close func is never nil.
func NewRunLock(ctx context.Context, logger *applog.Logger, cfg *config.Config) (lock.RunLock, func(context.Context) error, error) {
	noop := func(context.Context) error { return nil }
	if cfg.RedisAddr == "" {
		logger.Info("Using in-process run lock", applog.FieldComponent, applog.ComponentLock)
		return lock.NewLocal(), noop, nil
	}

	client, err := lock.NewRedisClient(ctx, cfg.RedisAddr)
	if err != nil {
		return nil, noop, err
	}
	logger.Info("Using Redis run lock",
		applog.FieldComponent, applog.ComponentLock,
		"addr", cfg.RedisAddr,
		"ttl", cfg.LockTTL)
	return lock.NewRedis(client, cfg.LockTTL), func(context.Context) error { return client.Close() }, nil
}

// NewRunner assembles the locked recurring generator shared by the API
// trigger and the scheduled worker.
func NewRunner(cfg *config.Config, repo *storage.SQLiteRepository, l lock.RunLock, publisher services.TransactionPublisher, m *metrics.Metrics) *services.RecurringRunner {
	gen := services.NewRecurringGenerator(repo, publisher, m, services.GeneratorConfig{
		MaxPerRun:   cfg.RecurringMaxPerRun,
		Concurrency: cfg.RecurringConcurrency,
	})
	return services.NewRecurringRunner(gen, l, m)
}

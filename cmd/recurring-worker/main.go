package main

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"

	"household/internal/backend"
	"household/internal/cli"
	"household/internal/core"
	applog "household/internal/log"
	"household/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(applog.ComponentRecurring)
	cfg := cli.LoadAndValidateConfig(logger)

	ctx, stop := cli.SignalContext(logger)
	defer stop()

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	closeRepo := func(context.Context) error { return repo.Close() }

	runLock, closeLock, err := cli.NewRunLock(ctx, logger, cfg)
	if err != nil {
		logger.Error("Failed to initialize run lock", "error", err, "redis_addr", cfg.RedisAddr)
		cli.Abort(logger, closeRepo)
	}

	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", "error", err)
		cli.Abort(logger, closeLock, closeRepo)
	}
	publisher, closePublisher := backend.ConnectPublisher(bcfg, logger.Logger)
	stopPublisher := func(context.Context) error {
		if closePublisher == nil {
			return nil
		}
		return closePublisher()
	}

	// Metrics are only exposed by the API; the worker logs run outcomes.
	runner := cli.NewRunner(cfg, repo, runLock, publisher, nil)

	runOnce := func() {
		today := core.Today()
		res, err := runner.Run(ctx, today)
		switch {
		case errors.Is(err, services.ErrRunInProgress):
			logger.Info("Skipping run, another generation is in progress", applog.FieldToday, today.String())
		case err != nil:
			logger.Error("Recurring run failed", "error", err, applog.FieldToday, today.String())
		default:
			logger.Info("Recurring run complete",
				applog.FieldToday, today.String(),
				applog.FieldGenerated, res.Generated,
				applog.FieldRuleErrors, len(res.Errors))
			for _, e := range res.Errors {
				logger.Warn("Rule skipped for this run", "detail", e)
			}
		}
	}

	scheduler := cron.New(cron.WithLocation(time.UTC))
	if _, err := scheduler.AddFunc(cfg.RecurringSchedule, runOnce); err != nil {
		logger.Error("Invalid recurring schedule", "error", err, "schedule", cfg.RecurringSchedule)
		cli.Abort(logger, stopPublisher, closeLock, closeRepo)
	}

	logger.Info("Starting recurring-worker",
		"schedule", cfg.RecurringSchedule,
		"max_per_run", cfg.RecurringMaxPerRun,
		"concurrency", cfg.RecurringConcurrency,
		applog.FieldOperation, applog.OpStartup)

	// Initial run on startup.
	runOnce()
	scheduler.Start()

	<-ctx.Done()

	cli.Shutdown(logger, 30*time.Second,
		func(ctx context.Context) error {
			// Wait for an in-flight run to finish.
			select {
			case <-scheduler.Stop().Done():
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
		stopPublisher,
		closeLock,
		closeRepo,
	)
}

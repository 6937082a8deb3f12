package main

import (
	"context"
	"errors"
	"time"

	"household/internal/amqp"
	"household/internal/backend"
	"household/internal/cli"
	applog "household/internal/log"
	"household/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(applog.ComponentWorker)
	cfg := cli.LoadAndValidateConfig(logger)

	ctx, stop := cli.SignalContext(logger)
	defer stop()

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	closeRepo := func(context.Context) error { return repo.Close() }

	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", "error", err)
		cli.Abort(logger, closeRepo)
	}
	mirror, err := backend.NewFactory(logger.Logger).CreateWriter(ctx, bcfg)
	if err != nil {
		logger.Error("Failed to initialize mirror", "error", err, "backend", cfg.MirrorBackend)
		cli.Abort(logger, closeRepo)
	}

	syncWorker := worker.NewSyncWorker(repo, mirror.Writer, cfg.SyncBatchSize, cfg.SyncInterval)

	logger.Info("Starting sheets-worker",
		"backend", cfg.MirrorBackend,
		"batch_size", cfg.SyncBatchSize,
		"interval", cfg.SyncInterval,
		applog.FieldOperation, applog.OpStartup)

	// Pick up rows whose messages were lost while the worker was down.
	if err := syncWorker.StartupSyncCheck(ctx); err != nil {
		logger.Error("Startup sync check failed", "error", err)
	}
	if err := syncWorker.Start(ctx); err != nil {
		logger.Error("Failed to start periodic sync", "error", err)
	}

	var consumer *amqp.Client
	if cfg.AMQPURL != "" {
		consumer, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP consumer, relying on periodic sync", "error", err)
			consumer = nil
		}
	} else {
		logger.Info("AMQP not configured, relying on periodic sync")
	}
	if consumer != nil {
		go func() {
			err := consumer.ConsumeTransactionSync(ctx, syncWorker.HandleSyncMessage)
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Message consumption stopped", "error", err)
			}
		}()
	}

	<-ctx.Done()

	cli.Shutdown(logger, 30*time.Second,
		syncWorker.Stop,
		func(context.Context) error {
			if consumer == nil {
				return nil
			}
			return consumer.Close()
		},
		func(context.Context) error {
			if mirror.Cleanup == nil {
				return nil
			}
			return mirror.Cleanup()
		},
		closeRepo,
	)
}
